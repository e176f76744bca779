package astro

import (
	"context"
	"fmt"
)

// subtractModel returns plane - model as a new buffer. The cancellation
// signal is observed between pixels; on cancellation the partial buffer
// is discarded and the context error returned, never a half-corrected
// plane.
func subtractModel(ctx context.Context, plane []float32, model *Model) ([]float32, error) {
	if len(plane) != len(model.Data) {
		return nil, fmt.Errorf("%w: plane has %d pixels, model has %d",
			ErrRuntime, len(plane), len(model.Data))
	}
	out := make([]float32, len(plane))
	for i := range plane {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = plane[i] - model.Data[i]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizePlanes rescales all planes of a corrected image together
// into [0, 1]. A flat result maps to zero. Joint scaling preserves the
// ratios between channels.
func normalizePlanes(planes [][]float32) {
	if len(planes) == 0 {
		return
	}
	min := planes[0][0]
	max := planes[0][0]
	for _, p := range planes {
		for _, v := range p {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}
	span := max - min
	if span <= 0 {
		for _, p := range planes {
			for i := range p {
				p[i] = 0
			}
		}
		return
	}
	inv := 1 / span
	for _, p := range planes {
		for i := range p {
			p[i] = (p[i] - min) * inv
		}
	}
}
