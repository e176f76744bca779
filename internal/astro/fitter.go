package astro

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/nightjar-data/gradient.report/internal/monitoring"
)

// SurfaceFitter fits a smooth surface to the accepted samples of one
// plane. Implementations are selected through Settings.Model; only the
// polynomial fitter ships, but alternative models plug in here without
// touching the worker.
type SurfaceFitter interface {
	// Name identifies the fitter in logs and results.
	Name() string

	// Fit solves for the surface through the non-rejected samples and
	// evaluates it over a width x height plane. Sample coordinates are
	// normalized by the plane dimensions before terms are formed.
	Fit(ctx context.Context, samples []Sample, width, height int) (*Model, error)
}

// fitterFor returns the fitter selected by the settings.
func fitterFor(s Settings) (SurfaceFitter, error) {
	switch s.Model {
	case ModelPolynomial:
		return &PolynomialFitter{Order: s.Order}, nil
	default:
		return nil, fmt.Errorf("%w: no fitter for model %q", ErrConfiguration, s.Model)
	}
}

// PolynomialFitter fits a 2D polynomial of total degree Order by
// least squares over normalized [0,1]x[0,1] coordinates.
type PolynomialFitter struct {
	// Order is the polynomial order, 1 to 3.
	Order int
}

var _ SurfaceFitter = (*PolynomialFitter)(nil)

// polyTermCount returns the term count for a total-degree-2D basis:
// 3 terms for order 1, 6 for order 2, 10 for order 3.
func polyTermCount(order int) int {
	switch order {
	case 1:
		return 3
	case 2:
		return 6
	case 3:
		return 10
	default:
		return 0
	}
}

// polyTerms fills row with the basis terms {1, x, y, x², xy, y², x³,
// x²y, xy², y³} truncated to the order's term count.
func polyTerms(order int, x, y float64, row []float64) {
	row[0] = 1
	row[1] = x
	row[2] = y
	if order >= 2 {
		row[3] = x * x
		row[4] = x * y
		row[5] = y * y
	}
	if order >= 3 {
		row[6] = x * x * x
		row[7] = x * x * y
		row[8] = x * y * y
		row[9] = y * y * y
	}
}

func (f *PolynomialFitter) Name() string {
	return fmt.Sprintf("polynomial-%d", f.Order)
}

// Fit builds the design matrix from the valid samples and solves the
// least-squares problem with a QR factorization. The system is
// overdetermined whenever more samples than terms survive rejection;
// QR handles both that and the exactly determined case.
func (f *PolynomialFitter) Fit(ctx context.Context, samples []Sample, width, height int) (*Model, error) {
	terms := polyTermCount(f.Order)
	if terms == 0 {
		return nil, fmt.Errorf("%w: polynomial order %d out of range 1-3", ErrFitting, f.Order)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: cannot fit over %dx%d plane", ErrFitting, width, height)
	}

	valid := make([]Sample, 0, len(samples))
	for i := range samples {
		if !samples[i].Rejected {
			valid = append(valid, samples[i])
		}
	}
	if len(valid) < terms {
		return nil, fmt.Errorf("%w: %d valid samples, order %d needs at least %d",
			ErrFitting, len(valid), f.Order, terms)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := mat.NewDense(len(valid), terms, nil)
	b := mat.NewVecDense(len(valid), nil)
	row := make([]float64, terms)
	for i := range valid {
		xn := float64(valid[i].X) / float64(width)
		yn := float64(valid[i].Y) / float64(height)
		polyTerms(f.Order, xn, yn, row)
		a.SetRow(i, row)
		b.SetVec(i, float64(valid[i].Value))
	}

	var qr mat.QR
	qr.Factorize(a)
	var coefVec mat.VecDense
	if err := qr.SolveVecTo(&coefVec, false, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: singular system: %v", ErrFitting, err)
		}
		monitoring.Logf("[PolynomialFitter] ill-conditioned system (cond=%v), keeping solution", err)
	}
	coeffs := make([]float64, terms)
	for i := 0; i < terms; i++ {
		coeffs[i] = coefVec.AtVec(i)
	}

	model := &Model{
		Width:  width,
		Height: height,
		Order:  f.Order,
		Coeffs: coeffs,
		Data:   make([]float32, width*height),
	}
	if err := f.evaluate(ctx, model); err != nil {
		return nil, err
	}
	return model, nil
}

// evaluate fills the model buffer with the polynomial value at every
// pixel, using the same coordinate normalization as the fit. The
// cancellation signal is observed once per row.
func (f *PolynomialFitter) evaluate(ctx context.Context, m *Model) error {
	terms := len(m.Coeffs)
	row := make([]float64, terms)
	for y := 0; y < m.Height; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		yn := float64(y) / float64(m.Height)
		base := y * m.Width
		for x := 0; x < m.Width; x++ {
			xn := float64(x) / float64(m.Width)
			polyTerms(f.Order, xn, yn, row)
			v := 0.0
			for t := 0; t < terms; t++ {
				v += m.Coeffs[t] * row[t]
			}
			m.Data[base+x] = float32(v)
		}
	}
	return nil
}

// EvaluateModel recomputes the dense buffer of a model restored from
// persistence, where only the coefficients survive serialization of a
// discarded-buffer run.
func EvaluateModel(ctx context.Context, m *Model) error {
	if m == nil || polyTermCount(m.Order) != len(m.Coeffs) {
		return fmt.Errorf("%w: model coefficients do not match order", ErrFitting)
	}
	if len(m.Data) != m.Width*m.Height {
		m.Data = make([]float32, m.Width*m.Height)
	}
	f := &PolynomialFitter{Order: m.Order}
	return f.evaluate(ctx, m)
}
