package astro

import (
	"context"
	"math"
	"testing"
)

func TestPlanesFor_SingleChannel(t *testing.T) {
	img := makeImage(4, 4, 1, func(x, y, c int) float32 { return 0.5 })
	for _, mode := range []ChannelMode{ChannelModeCombined, ChannelModePerChannel, ChannelModeLuminance} {
		planes := planesFor(img, mode)
		if len(planes) != 1 || planes[0].channel != 0 {
			t.Errorf("mode %s: got %d planes, want the single channel", mode, len(planes))
		}
	}
}

func TestPlanesFor_PerChannel(t *testing.T) {
	img := makeImage(4, 4, 3, func(x, y, c int) float32 { return float32(c) })
	planes := planesFor(img, ChannelModePerChannel)
	if len(planes) != 3 {
		t.Fatalf("got %d planes, want 3", len(planes))
	}
	for c, p := range planes {
		if p.channel != c {
			t.Errorf("plane %d tagged channel %d", c, p.channel)
		}
		if p.data[0] != float32(c) {
			t.Errorf("plane %d carries %v, want %v", c, p.data[0], float32(c))
		}
	}
}

func TestPlanesFor_LuminanceAndCombined(t *testing.T) {
	img := makeImage(1, 1, 3, func(x, y, c int) float32 {
		switch c {
		case 0:
			return 1
		case 1:
			return 0
		default:
			return 0
		}
	})
	lum := planesFor(img, ChannelModeLuminance)
	if len(lum) != 1 {
		t.Fatalf("luminance mode produced %d planes", len(lum))
	}
	if math.Abs(float64(lum[0].data[0])-0.299) > 1e-6 {
		t.Errorf("luminance = %v, want 0.299 for pure red", lum[0].data[0])
	}

	comb := planesFor(img, ChannelModeCombined)
	if math.Abs(float64(comb[0].data[0])-1.0/3) > 1e-6 {
		t.Errorf("combined = %v, want 1/3 for pure red", comb[0].data[0])
	}
}

func TestCorrectImage_SharedModel(t *testing.T) {
	img := makeImage(2, 2, 3, func(x, y, c int) float32 { return float32(c) + 0.5 })
	model := &Model{Width: 2, Height: 2, Data: []float32{0.5, 0.5, 0.5, 0.5}}

	out, err := correctImage(context.Background(), img, []*Model{model}, false)
	if err != nil {
		t.Fatalf("correctImage: %v", err)
	}
	for c := 0; c < 3; c++ {
		for i, v := range out.ChannelPlane(c) {
			if v != float32(c) {
				t.Errorf("channel %d pixel %d = %v, want %v", c, i, v, float32(c))
			}
		}
	}
}

func TestCorrectImage_PerChannelModels(t *testing.T) {
	img := makeImage(2, 1, 2, func(x, y, c int) float32 { return float32(c) + 1 })
	models := []*Model{
		{Width: 2, Height: 1, Data: []float32{1, 1}},
		{Width: 2, Height: 1, Data: []float32{2, 2}},
	}

	out, err := correctImage(context.Background(), img, models, false)
	if err != nil {
		t.Fatalf("correctImage: %v", err)
	}
	for c := 0; c < 2; c++ {
		for i, v := range out.ChannelPlane(c) {
			if v != 0 {
				t.Errorf("channel %d pixel %d = %v, want 0 with per-channel models", c, i, v)
			}
		}
	}
}

func TestCorrectImage_NormalizeJoint(t *testing.T) {
	img := makeImage(2, 1, 2, func(x, y, c int) float32 {
		return float32(2*c) + float32(x)
	})
	zero := &Model{Width: 2, Height: 1, Data: []float32{0, 0}}

	out, err := correctImage(context.Background(), img, []*Model{zero}, true)
	if err != nil {
		t.Fatalf("correctImage: %v", err)
	}
	// residuals span [0,3]; joint scaling maps channel 0 to {0, 1/3}
	// and channel 1 to {2/3, 1}
	want := [][]float32{{0, 1.0 / 3}, {2.0 / 3, 1}}
	for c := 0; c < 2; c++ {
		for i, v := range out.ChannelPlane(c) {
			if math.Abs(float64(v)-float64(want[c][i])) > 1e-6 {
				t.Errorf("channel %d pixel %d = %v, want %v", c, i, v, want[c][i])
			}
		}
	}
}

func TestAggregateMetrics(t *testing.T) {
	per := []Metrics{
		{SampleCount: 10, RejectedCount: 2, RMSError: 0.1, MeanDeviation: 0.05, MaxDeviation: 0.2},
		{SampleCount: 6, RejectedCount: 2, RMSError: 0.3, MeanDeviation: 0.25, MaxDeviation: 0.5},
	}
	agg := aggregateMetrics(per)

	if agg.SampleCount != 16 || agg.RejectedCount != 4 {
		t.Errorf("counts = %d/%d, want 16/4", agg.SampleCount, agg.RejectedCount)
	}
	// valid counts are 8 and 4; RMS combines as
	// sqrt((8*0.01 + 4*0.09) / 12)
	wantRMS := math.Sqrt((8*0.01 + 4*0.09) / 12)
	if math.Abs(agg.RMSError-wantRMS) > 1e-12 {
		t.Errorf("RMS = %v, want %v", agg.RMSError, wantRMS)
	}
	wantMean := (8*0.05 + 4*0.25) / 12
	if math.Abs(agg.MeanDeviation-wantMean) > 1e-12 {
		t.Errorf("mean deviation = %v, want %v", agg.MeanDeviation, wantMean)
	}
	if agg.MaxDeviation != 0.5 {
		t.Errorf("max deviation = %v, want 0.5", agg.MaxDeviation)
	}
}

func TestAggregateMetrics_SingleIdentity(t *testing.T) {
	m := Metrics{SampleCount: 5, RMSError: 0.42}
	if got := aggregateMetrics([]Metrics{m}); got != m {
		t.Errorf("single-plane aggregate = %+v, want identity", got)
	}
}
