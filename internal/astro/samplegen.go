package astro

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/nightjar-data/gradient.report/internal/monitoring"
)

// minBlockPixels is the smallest clipped block population that still
// yields usable statistics in automatic mode.
const minBlockPixels = 10

// generateSamples produces the candidate sample sequence for one plane
// according to the configured mode. Any generator failure triggers one
// retry with grid placement before the error is final.
func generateSamples(ctx context.Context, plane []float32, w, h int, s Settings, manual []Sample) ([]Sample, error) {
	var samples []Sample
	var err error

	switch s.SampleMode {
	case SampleModeGrid:
		samples = gridSamples(plane, w, h, s)
	case SampleModeAutomatic:
		samples, err = automaticSamples(ctx, plane, w, h, s)
	case SampleModeManual:
		samples, err = manualSamples(manual, w, h, s)
	default:
		return nil, fmt.Errorf("%w: unknown sample mode %q", ErrConfiguration, s.SampleMode)
	}
	if err == nil && countValid(samples) < s.MinSamples {
		err = fmt.Errorf("%w: %d samples below minimum %d", ErrSampling, countValid(samples), s.MinSamples)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if s.SampleMode != SampleModeGrid {
			monitoring.Logf("[SampleGen] %s mode failed (%v), retrying with grid", s.SampleMode, err)
			samples = gridSamples(plane, w, h, s)
			if countValid(samples) >= s.MinSamples {
				return samples, nil
			}
			return nil, fmt.Errorf("%w: grid fallback produced %d samples, minimum is %d",
				ErrSampling, countValid(samples), s.MinSamples)
		}
		return nil, err
	}
	return samples, nil
}

// gridSamples places samples on an evenly spaced interior lattice with
// step dimension/(count+1), sampling the raw pixel value at each point.
// The sequence is truncated at MaxSamples.
func gridSamples(plane []float32, w, h int, s Settings) []Sample {
	stepX := w / (s.GridCols + 1)
	stepY := h / (s.GridRows + 1)
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}
	samples := make([]Sample, 0, s.GridRows*s.GridCols)
	for row := 0; row < s.GridRows; row++ {
		y := stepY * (row + 1)
		if y >= h {
			break
		}
		for col := 0; col < s.GridCols; col++ {
			x := stepX * (col + 1)
			if x >= w {
				break
			}
			if len(samples) >= s.MaxSamples {
				return samples
			}
			samples = append(samples, Sample{X: x, Y: y, Value: plane[y*w+x]})
		}
	}
	return samples
}

// blockStat is one tile of the automatic search: its center, its mean
// pixel value, and the variance used for ranking.
type blockStat struct {
	cx, cy   int
	mean     float64
	variance float64
}

// automaticSamples tiles the plane into blocks, ranks them by ascending
// variance and greedily accepts block centers that keep a minimum
// pairwise distance, up to MaxSamples. Low variance marks likely
// background; the distance floor spreads the accepted set across the
// frame.
func automaticSamples(ctx context.Context, plane []float32, w, h int, s Settings) ([]Sample, error) {
	side := w
	if h < side {
		side = h
	}
	side /= 32
	if side < 8 {
		side = 8
	}
	step := side / 2
	if step < 1 {
		step = 1
	}

	var blocks []blockStat
	scratch := make([]float64, 0, side*side)
	for by := 0; by < h; by += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for bx := 0; bx < w; bx += step {
			x1 := bx + side
			if x1 > w {
				x1 = w
			}
			y1 := by + side
			if y1 > h {
				y1 = h
			}
			scratch = scratch[:0]
			for y := by; y < y1; y++ {
				row := y * w
				for x := bx; x < x1; x++ {
					scratch = append(scratch, float64(plane[row+x]))
				}
			}
			if len(scratch) < minBlockPixels {
				continue
			}
			mean, variance := stat.MeanVariance(scratch, nil)
			blocks = append(blocks, blockStat{
				cx:       bx + (x1-bx)/2,
				cy:       by + (y1-by)/2,
				mean:     mean,
				variance: variance,
			})
		}
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks with at least %d pixels", ErrSampling, minBlockPixels)
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].variance < blocks[j].variance })

	minDistSq := (side / 2) * (side / 2)
	samples := make([]Sample, 0, s.MaxSamples)
	for i := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(samples) >= s.MaxSamples {
			break
		}
		b := &blocks[i]
		tooClose := false
		for j := range samples {
			dx := samples[j].X - b.cx
			dy := samples[j].Y - b.cy
			if dx*dx+dy*dy < minDistSq {
				tooClose = true
				break
			}
		}
		if tooClose {
			continue
		}
		samples = append(samples, Sample{X: b.cx, Y: b.cy, Value: float32(b.mean)})
	}
	if len(samples) < s.MinSamples {
		return nil, fmt.Errorf("%w: automatic search accepted %d samples, minimum is %d",
			ErrSampling, len(samples), s.MinSamples)
	}
	return samples, nil
}

// manualSamples returns the externally registered samples with fresh
// rejection flags. Out-of-bounds entries are dropped; they cannot be
// indexed against the plane for error reporting.
func manualSamples(manual []Sample, w, h int, s Settings) ([]Sample, error) {
	samples := make([]Sample, 0, len(manual))
	for i := range manual {
		sm := manual[i]
		if sm.X < 0 || sm.X >= w || sm.Y < 0 || sm.Y >= h {
			continue
		}
		sm.Rejected = false
		samples = append(samples, sm)
	}
	if len(samples) < s.MinSamples {
		return nil, fmt.Errorf("%w: %d manual samples in bounds, minimum is %d",
			ErrSampling, len(samples), s.MinSamples)
	}
	if len(samples) > s.MaxSamples {
		samples = samples[:s.MaxSamples]
	}
	return samples, nil
}
