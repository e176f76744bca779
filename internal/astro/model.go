package astro

// Model is a fitted background surface evaluated over every pixel of
// the source plane. Data is row-major, one value per pixel. Coeffs
// holds the polynomial coefficients in term order for reporting and
// persistence; Order identifies which term basis they belong to.
type Model struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Order  int       `json:"order"`
	Coeffs []float64 `json:"coeffs"`
	Data   []float32 `json:"-"`
}

// At returns the fitted surface value at pixel (x, y).
func (m *Model) At(x, y int) float32 {
	return m.Data[y*m.Width+x]
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	out := &Model{Width: m.Width, Height: m.Height, Order: m.Order}
	out.Coeffs = append([]float64(nil), m.Coeffs...)
	out.Data = append([]float32(nil), m.Data...)
	return out
}
