package astro

import (
	"context"
	"errors"
	"testing"
)

// helper to build one plane whose pixels follow f(x, y)
func makePlane(w, h int, f func(x, y int) float32) []float32 {
	plane := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			plane[y*w+x] = f(x, y)
		}
	}
	return plane
}

func gradientPlane(w, h int) []float32 {
	return makePlane(w, h, func(x, y int) float32 {
		return 0.1 + 0.0002*float32(x)
	})
}

func TestGridSamples_LatticeGeometry(t *testing.T) {
	w, h := 512, 512
	plane := gradientPlane(w, h)
	s := Settings{GridRows: 8, GridCols: 8, MaxSamples: 2000}

	samples := gridSamples(plane, w, h, s)
	if len(samples) != 64 {
		t.Fatalf("got %d samples, want 64", len(samples))
	}
	// step is 512/9 = 56; the lattice starts one step in
	if samples[0].X != 56 || samples[0].Y != 56 {
		t.Errorf("first sample at (%d,%d), want (56,56)", samples[0].X, samples[0].Y)
	}
	last := samples[len(samples)-1]
	if last.X != 448 || last.Y != 448 {
		t.Errorf("last sample at (%d,%d), want (448,448)", last.X, last.Y)
	}
	for _, sm := range samples {
		if sm.Value != plane[sm.Y*w+sm.X] {
			t.Fatalf("sample at (%d,%d) carries %v, plane holds %v", sm.X, sm.Y, sm.Value, plane[sm.Y*w+sm.X])
		}
	}
}

func TestGridSamples_MaxSamplesCap(t *testing.T) {
	plane := gradientPlane(128, 128)
	s := Settings{GridRows: 16, GridCols: 16, MaxSamples: 10}
	samples := gridSamples(plane, 128, 128, s)
	if len(samples) != 10 {
		t.Errorf("got %d samples, want cap of 10", len(samples))
	}
}

func TestGenerateSamples_GridBelowMinimumFails(t *testing.T) {
	plane := gradientPlane(64, 64)
	s := Settings{
		SampleMode: SampleModeGrid,
		GridRows:   3, GridCols: 3,
		MinSamples: 20, MaxSamples: 2000,
	}
	_, err := generateSamples(context.Background(), plane, 64, 64, s, nil)
	if !errors.Is(err, ErrSampling) {
		t.Fatalf("err = %v, want sampling error", err)
	}
}

func TestAutomaticSamples_PairwiseDistance(t *testing.T) {
	w, h := 256, 256
	plane := makePlane(w, h, func(x, y int) float32 {
		return 0.1 + 0.0001*float32(x+y)
	})
	s := Settings{MinSamples: 10, MaxSamples: 500}

	samples, err := automaticSamples(context.Background(), plane, w, h, s)
	if err != nil {
		t.Fatalf("automaticSamples: %v", err)
	}
	if len(samples) < s.MinSamples || len(samples) > s.MaxSamples {
		t.Fatalf("got %d samples, want between %d and %d", len(samples), s.MinSamples, s.MaxSamples)
	}

	// block side is max(8, 256/32) = 8, so accepted centers must stay
	// at least 4 pixels apart
	const minDistSq = 16
	for i := range samples {
		for j := i + 1; j < len(samples); j++ {
			dx := samples[i].X - samples[j].X
			dy := samples[i].Y - samples[j].Y
			if dx*dx+dy*dy < minDistSq {
				t.Fatalf("samples %d and %d only %d apart squared, want >= %d",
					i, j, dx*dx+dy*dy, minDistSq)
			}
		}
	}
}

func TestAutomaticSamples_PrefersLowVariance(t *testing.T) {
	w, h := 128, 128
	// top-left 32x32 flickers hard, the rest is flat background
	plane := makePlane(w, h, func(x, y int) float32 {
		if x < 32 && y < 32 {
			if (x+y)%2 == 0 {
				return 0
			}
			return 5
		}
		return 0.5
	})
	s := Settings{MinSamples: 5, MaxSamples: 20}

	samples, err := automaticSamples(context.Background(), plane, w, h, s)
	if err != nil {
		t.Fatalf("automaticSamples: %v", err)
	}
	if len(samples) != 20 {
		t.Fatalf("got %d samples, want 20", len(samples))
	}
	for _, sm := range samples {
		if sm.X < 32 && sm.Y < 32 {
			t.Errorf("sample at (%d,%d) landed in the noisy region", sm.X, sm.Y)
		}
		if sm.Value != 0.5 {
			t.Errorf("sample at (%d,%d) carries %v, want flat 0.5", sm.X, sm.Y, sm.Value)
		}
	}
}

func TestGenerateSamples_AutomaticFallsBackToGrid(t *testing.T) {
	// a 4x4 plane yields a single automatic block, below the minimum,
	// so generation must retry with the grid
	plane := makePlane(4, 4, func(x, y int) float32 { return 0.3 })
	s := Settings{
		SampleMode: SampleModeAutomatic,
		GridRows:   3, GridCols: 3,
		MinSamples: 5, MaxSamples: 100,
	}
	samples, err := generateSamples(context.Background(), plane, 4, 4, s, nil)
	if err != nil {
		t.Fatalf("generateSamples: %v", err)
	}
	if len(samples) != 9 {
		t.Errorf("got %d samples, want 9 from the grid fallback", len(samples))
	}
}

func TestManualSamples_OutOfBoundsDropped(t *testing.T) {
	manual := []Sample{
		{X: 10, Y: 10, Value: 0.5},
		{X: -1, Y: 10, Value: 0.5},
		{X: 10, Y: 100, Value: 0.5},
		{X: 99, Y: 99, Value: 0.4, Rejected: true},
		{X: 0, Y: 0, Value: 0.3},
	}
	s := Settings{MinSamples: 3, MaxSamples: 100}
	samples, err := manualSamples(manual, 100, 100, s)
	if err != nil {
		t.Fatalf("manualSamples: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3 in bounds", len(samples))
	}
	for _, sm := range samples {
		if sm.Rejected {
			t.Errorf("sample at (%d,%d) kept a stale rejection flag", sm.X, sm.Y)
		}
	}
}

func TestGenerateSamples_ManualFallsBackToGrid(t *testing.T) {
	plane := gradientPlane(100, 100)
	manual := []Sample{{X: 5, Y: 5, Value: plane[505]}}
	s := Settings{
		SampleMode: SampleModeManual,
		GridRows:   4, GridCols: 4,
		MinSamples: 4, MaxSamples: 100,
	}
	samples, err := generateSamples(context.Background(), plane, 100, 100, s, manual)
	if err != nil {
		t.Fatalf("generateSamples: %v", err)
	}
	if len(samples) != 16 {
		t.Errorf("got %d samples, want 16 from the grid fallback", len(samples))
	}
}

func TestGenerateSamples_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	plane := gradientPlane(128, 128)
	s := Settings{
		SampleMode: SampleModeAutomatic,
		GridRows:   8, GridCols: 8,
		MinSamples: 10, MaxSamples: 2000,
	}
	_, err := generateSamples(ctx, plane, 128, 128, s, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestGenerateSamples_UnknownMode(t *testing.T) {
	plane := gradientPlane(32, 32)
	s := Settings{SampleMode: "spiral", MinSamples: 1, MaxSamples: 10}
	_, err := generateSamples(context.Background(), plane, 32, 32, s, nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
