package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/security"
)

// FormatTimestamp renders a time as a filesystem-friendly stamp.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir builds and creates a per-run directory under
// baseDir. The tag (usually a run id prefix) becomes a subdirectory;
// an empty tag falls back to a flat timestamped directory.
func MakePlotOutputDir(baseDir, tag string) (string, error) {
	var dir string
	if tag != "" {
		dir = filepath.Join(baseDir, security.SanitizeFilename(tag), FormatTimestamp(time.Now()))
	} else {
		dir = filepath.Join(baseDir, "run_"+FormatTimestamp(time.Now()))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot output directory: %w", err)
	}
	return dir, nil
}

// RunPlotter writes PNG plot artifacts for completed extraction runs:
// model row profiles, sample residuals, and rejection progression.
// Disabled until Start is called, so headless deployments pay nothing.
type RunPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
}

// NewRunPlotter creates a disabled plotter.
func NewRunPlotter() *RunPlotter {
	return &RunPlotter{}
}

// Start enables plot generation into the given base directory.
func (p *RunPlotter) Start(outputDir string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	p.outputDir = outputDir
	p.enabled = true
	return nil
}

// Stop disables plot generation.
func (p *RunPlotter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// IsEnabled reports whether plots will be generated.
func (p *RunPlotter) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// GeneratePlots writes every plot the result has data for and returns
// the created file paths. A disabled plotter returns nothing.
func (p *RunPlotter) GeneratePlots(res *astro.Result) ([]string, error) {
	p.mu.Lock()
	enabled, baseDir := p.enabled, p.outputDir
	p.mu.Unlock()
	if !enabled || res == nil {
		return nil, nil
	}

	tag := res.RunID
	if len(tag) > 8 {
		tag = tag[:8]
	}
	dir, err := MakePlotOutputDir(baseDir, tag)
	if err != nil {
		return nil, err
	}

	var files []string

	if res.HasModel() {
		path := filepath.Join(dir, "model_profiles.png")
		if err := plotModelProfiles(path, res.Model); err != nil {
			return files, err
		}
		files = append(files, path)

		if len(res.Samples) > 0 {
			path = filepath.Join(dir, "residuals.png")
			if err := plotResiduals(path, res.Samples, res.Model); err != nil {
				return files, err
			}
			files = append(files, path)
		}
	}

	if len(res.RejectionCounts) > 0 {
		path := filepath.Join(dir, "rejections.png")
		if err := plotRejections(path, res.RejectionCounts); err != nil {
			return files, err
		}
		files = append(files, path)
	}

	return files, nil
}

// plotModelProfiles draws the fitted surface along a handful of evenly
// spaced rows, one line per row.
func plotModelProfiles(path string, m *astro.Model) error {
	p := plot.New()
	p.Title.Text = "Background Model Row Profiles"
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "background level (normalized)"

	const rowCount = 5
	colors := generateColors(rowCount)

	step := m.Width / 256
	if step < 1 {
		step = 1
	}

	for i := 0; i < rowCount; i++ {
		y := (i + 1) * m.Height / (rowCount + 1)
		pts := make(plotter.XYs, 0, m.Width/step+1)
		for x := 0; x < m.Width; x += step {
			pts = append(pts, plotter.XY{X: float64(x), Y: float64(m.At(x, y))})
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create profile line: %w", err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("y=%d", y), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save profile plot: %w", err)
	}
	return nil
}

// plotResiduals draws sample value minus fitted surface over the
// sample index. Rejected samples are skipped; they never reached the
// solver.
func plotResiduals(path string, samples []astro.Sample, m *astro.Model) error {
	p := plot.New()
	p.Title.Text = "Sample Residuals"
	p.X.Label.Text = "sample index"
	p.Y.Label.Text = "value - model (normalized)"

	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		if s.Rejected || s.X >= m.Width || s.Y >= m.Height {
			continue
		}
		residual := float64(s.Value) - float64(m.At(s.X, s.Y))
		pts = append(pts, plotter.XY{X: float64(len(pts)), Y: residual})
	}
	if len(pts) == 0 {
		return nil
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create residual line: %w", err)
	}
	line.Color = color.RGBA{R: 53, G: 183, B: 121, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("residual", line)
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save residual plot: %w", err)
	}
	return nil
}

// plotRejections draws the number of samples clipped per rejection
// pass.
func plotRejections(path string, counts []int) error {
	p := plot.New()
	p.Title.Text = "Rejected Samples per Iteration"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "samples rejected"

	pts := make(plotter.XYs, len(counts))
	for i, c := range counts {
		pts[i] = plotter.XY{X: float64(i + 1), Y: float64(c)}
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create rejection line: %w", err)
	}
	line.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save rejection plot: %w", err)
	}
	return nil
}

// generateColors returns n visually distinct colors spread around the
// hue wheel.
func generateColors(n int) []color.Color {
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		colors[i] = hslToRGB(hue, 0.7, 0.5)
	}
	return colors
}

func hslToRGB(h, s, l float64) color.RGBA {
	var r, g, b float64
	if s == 0 {
		r, g, b = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		r = hueToRGB(p, q, h+1.0/3.0)
		g = hueToRGB(p, q, h)
		b = hueToRGB(p, q, h-1.0/3.0)
	}
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
