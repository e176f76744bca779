package astro

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestSubtractModel(t *testing.T) {
	plane := []float32{1, 2, 3, 4}
	model := &Model{Width: 2, Height: 2, Data: []float32{0.5, 0.5, 1, 1}}

	out, err := subtractModel(context.Background(), plane, model)
	if err != nil {
		t.Fatalf("subtractModel: %v", err)
	}
	want := []float32{0.5, 1.5, 2, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	// the source plane must be untouched
	if plane[0] != 1 {
		t.Error("subtraction must not mutate the source plane")
	}
}

func TestSubtractModel_LengthMismatch(t *testing.T) {
	plane := []float32{1, 2, 3}
	model := &Model{Width: 2, Height: 2, Data: []float32{0, 0, 0, 0}}
	_, err := subtractModel(context.Background(), plane, model)
	if !errors.Is(err, ErrRuntime) {
		t.Fatalf("err = %v, want runtime error", err)
	}
}

func TestSubtractModel_CancelledDiscardsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plane := make([]float32, 64)
	model := &Model{Width: 8, Height: 8, Data: make([]float32, 64)}
	out, err := subtractModel(ctx, plane, model)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if out != nil {
		t.Error("cancelled subtraction must not return a partial buffer")
	}
}

func TestNormalizePlanes_JointScaling(t *testing.T) {
	a := []float32{0, 1}
	b := []float32{3}
	normalizePlanes([][]float32{a, b})

	if math.Abs(float64(a[0])) > 1e-6 {
		t.Errorf("a[0] = %v, want 0", a[0])
	}
	if math.Abs(float64(a[1])-1.0/3) > 1e-6 {
		t.Errorf("a[1] = %v, want 1/3", a[1])
	}
	if math.Abs(float64(b[0])-1) > 1e-6 {
		t.Errorf("b[0] = %v, want 1", b[0])
	}
}

func TestNormalizePlanes_FlatMapsToZero(t *testing.T) {
	p := []float32{2.5, 2.5, 2.5}
	normalizePlanes([][]float32{p})
	for i, v := range p {
		if v != 0 {
			t.Errorf("p[%d] = %v, want 0 for a flat plane", i, v)
		}
	}
}
