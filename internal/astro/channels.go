package astro

import (
	"context"
	"math"
)

// fitPlane is one plane pushed through the single-channel pipeline,
// tagged with the channel it represents. Channel is 0 for the
// synthesized combined/luminance planes.
type fitPlane struct {
	data    []float32
	channel int
}

// planesFor resolves the channel mode into the planes to fit. Combined
// fits the per-pixel channel mean, luminance-only fits the weighted
// luminance plane, per-channel fits every channel independently.
// Single-channel images always yield exactly their one plane.
func planesFor(img *Image, mode ChannelMode) []fitPlane {
	if img.Channels == 1 {
		return []fitPlane{{data: img.ChannelPlane(0), channel: 0}}
	}
	switch mode {
	case ChannelModePerChannel:
		planes := make([]fitPlane, img.Channels)
		for c := 0; c < img.Channels; c++ {
			planes[c] = fitPlane{data: img.ChannelPlane(c), channel: c}
		}
		return planes
	case ChannelModeLuminance:
		return []fitPlane{{data: img.LuminancePlane(), channel: 0}}
	default:
		return []fitPlane{{data: img.MeanPlane(), channel: 0}}
	}
}

// correctImage subtracts the fitted surfaces from the source image.
// With one model it is subtracted from every channel; with one model
// per channel each channel uses its own. Normalization rescales all
// planes jointly so channel ratios survive.
func correctImage(ctx context.Context, img *Image, models []*Model, normalize bool) (*Image, error) {
	out := NewImage(img.Width, img.Height, img.Channels)
	planes := make([][]float32, img.Channels)
	for c := 0; c < img.Channels; c++ {
		model := models[0]
		if len(models) == img.Channels {
			model = models[c]
		}
		corrected, err := subtractModel(ctx, img.ChannelPlane(c), model)
		if err != nil {
			return nil, err
		}
		copy(out.ChannelPlane(c), corrected)
		planes[c] = out.ChannelPlane(c)
	}
	if normalize {
		normalizePlanes(planes)
	}
	return out, nil
}

// aggregateMetrics folds per-channel metrics into one summary. Counts
// add; the RMS combines weighted by valid sample count; the maximum
// deviation is the worst across channels.
func aggregateMetrics(per []Metrics) Metrics {
	if len(per) == 1 {
		return per[0]
	}
	var agg Metrics
	var sumSq, sumAbs float64
	totalValid := 0
	for _, m := range per {
		agg.SampleCount += m.SampleCount
		agg.RejectedCount += m.RejectedCount
		valid := m.SampleCount - m.RejectedCount
		sumSq += float64(valid) * m.RMSError * m.RMSError
		sumAbs += float64(valid) * m.MeanDeviation
		if m.MaxDeviation > agg.MaxDeviation {
			agg.MaxDeviation = m.MaxDeviation
		}
		totalValid += valid
	}
	if totalValid > 0 {
		agg.RMSError = math.Sqrt(sumSq / float64(totalValid))
		agg.MeanDeviation = sumAbs / float64(totalValid)
	}
	return agg
}
