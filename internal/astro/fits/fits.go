// Package fits loads astronomical images into the extraction pipeline's
// normalized buffer format and writes results back out as FITS files.
package fits

import (
	"fmt"
	"io"
	"os"

	"github.com/astrogo/fitsio"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/monitoring"
)

// Pixel values are normalized into [0, 1] on load. Integer data divides
// by the type's full range after BZERO/BSCALE; floating data already in
// range passes through untouched, out-of-range floating data is scaled
// down by its maximum.

// Load reads the first image HDU of the FITS file at path.
func Load(path string) (*astro.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	img, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return img, nil
}

// Read decodes the first image HDU with at least two axes from r.
func Read(r io.ReadSeeker) (*astro.Image, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open fits stream: %w", err)
	}
	defer f.Close()

	for _, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		axes := img.Header().Axes()
		if len(axes) < 2 {
			continue
		}
		return decodeImage(img, axes)
	}
	return nil, fmt.Errorf("no image hdu with at least two axes")
}

func decodeImage(img fitsio.Image, axes []int) (*astro.Image, error) {
	width, height := axes[0], axes[1]
	channels := 1
	if len(axes) >= 3 {
		channels = axes[2]
	}
	for _, extra := range axes[3:] {
		if extra != 1 {
			return nil, fmt.Errorf("unsupported %d-dimensional image", len(axes))
		}
	}
	if width <= 0 || height <= 0 || channels <= 0 {
		return nil, fmt.Errorf("degenerate axes %v", axes)
	}

	hdr := img.Header()
	bzero := cardFloat(hdr.Get("BZERO"), 0)
	bscale := cardFloat(hdr.Get("BSCALE"), 1)

	n := width * height * channels
	out := astro.NewImage(width, height, channels)

	switch bitpix := hdr.Bitpix(); bitpix {
	case 8:
		raw := make([]int8, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read 8-bit data: %w", err)
		}
		for i, v := range raw {
			out.Pix[i] = float32((bzero + bscale*float64(uint8(v))) / 255)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read 16-bit data: %w", err)
		}
		for i, v := range raw {
			out.Pix[i] = float32((bzero + bscale*float64(v)) / 65535)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read 32-bit data: %w", err)
		}
		for i, v := range raw {
			out.Pix[i] = float32((bzero + bscale*float64(v)) / 4294967295)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read float data: %w", err)
		}
		copy(out.Pix, raw)
		normalizeFloats(out.Pix)
	case -64:
		raw := make([]float64, n)
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("read double data: %w", err)
		}
		for i, v := range raw {
			out.Pix[i] = float32(v)
		}
		normalizeFloats(out.Pix)
	default:
		return nil, fmt.Errorf("unsupported bitpix %d", bitpix)
	}

	clamp01(out.Pix)
	return out, nil
}

// normalizeFloats rescales floating data by its maximum when it exceeds
// the normalized range.
func normalizeFloats(pix []float32) {
	var max float32
	for _, v := range pix {
		if v > max {
			max = v
		}
	}
	if max <= 1 {
		return
	}
	monitoring.Logf("[FITS] float data peaks at %g, rescaling into [0,1]", max)
	inv := 1 / max
	for i := range pix {
		pix[i] *= inv
	}
}

func clamp01(pix []float32) {
	for i, v := range pix {
		if v < 0 {
			pix[i] = 0
		} else if v > 1 {
			pix[i] = 1
		}
	}
}

func cardFloat(c *fitsio.Card, def float64) float64 {
	if c == nil {
		return def
	}
	switch v := c.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// Write stores img as a 32-bit floating FITS file at path.
func Write(path string, img *astro.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteTo(f, img); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteTo encodes img as a single-HDU FITS stream. Multi-channel images
// are stored with the channel count as the third axis, matching the
// channel-planar pixel layout.
func WriteTo(w io.Writer, img *astro.Image) error {
	if !img.Valid() {
		return fmt.Errorf("cannot write invalid image")
	}
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("create fits stream: %w", err)
	}
	defer f.Close()

	axes := []int{img.Width, img.Height}
	if img.Channels > 1 {
		axes = append(axes, img.Channels)
	}
	hdu := fitsio.NewImage(-32, axes)
	defer hdu.Close()

	if err := hdu.Header().Append(
		fitsio.Card{Name: "CREATOR", Value: "gradient.report", Comment: "background gradient toolkit"},
	); err != nil {
		return fmt.Errorf("append header cards: %w", err)
	}
	data := make([]float32, len(img.Pix))
	copy(data, img.Pix)
	if err := hdu.Write(&data); err != nil {
		return fmt.Errorf("write pixel data: %w", err)
	}
	if err := f.Write(hdu); err != nil {
		return fmt.Errorf("write hdu: %w", err)
	}
	return nil
}

// SurfaceImage wraps a dense fitted surface as a single-channel image
// so it can be written out for inspection. Returns nil when the model
// carries no pixel buffer.
func SurfaceImage(m *astro.Model) *astro.Image {
	if m == nil || len(m.Data) != m.Width*m.Height {
		return nil
	}
	img := astro.NewImage(m.Width, m.Height, 1)
	copy(img.Pix, m.Data)
	return img
}
