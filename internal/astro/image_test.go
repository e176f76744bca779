package astro

import (
	"math"
	"testing"
)

// helper to build an image whose pixels follow f(x, y, c)
func makeImage(w, h, channels int, f func(x, y, c int) float32) *Image {
	img := NewImage(w, h, channels)
	for c := 0; c < channels; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Pix[c*w*h+y*w+x] = f(x, y, c)
			}
		}
	}
	return img
}

func TestImageValid(t *testing.T) {
	var nilImg *Image
	if nilImg.Valid() {
		t.Error("nil image must not be valid")
	}
	if (&Image{Width: 0, Height: 4, Channels: 1}).Valid() {
		t.Error("zero width must not be valid")
	}
	if (&Image{Width: 4, Height: 4, Channels: 1, Pix: make([]float32, 15)}).Valid() {
		t.Error("short buffer must not be valid")
	}
	if !NewImage(4, 4, 3).Valid() {
		t.Error("NewImage result must be valid")
	}
}

func TestImageIndexing(t *testing.T) {
	img := makeImage(5, 4, 2, func(x, y, c int) float32 {
		return float32(c*1000 + y*10 + x)
	})
	if got := img.At(3, 2, 1); got != 1023 {
		t.Errorf("At(3,2,1) = %v, want 1023", got)
	}
	plane := img.ChannelPlane(1)
	if got := plane[2*5+3]; got != 1023 {
		t.Errorf("ChannelPlane(1)[2*5+3] = %v, want 1023", got)
	}

	// ChannelPlane aliases the backing buffer
	plane[0] = -7
	if got := img.At(0, 0, 1); got != -7 {
		t.Errorf("plane write not visible through At, got %v", got)
	}
}

func TestMeanPlane(t *testing.T) {
	img := makeImage(2, 1, 2, func(x, y, c int) float32 {
		if c == 0 {
			return 0.2
		}
		return 0.6
	})
	mean := img.MeanPlane()
	for i, v := range mean {
		if math.Abs(float64(v)-0.4) > 1e-6 {
			t.Errorf("mean[%d] = %v, want 0.4", i, v)
		}
	}

	// single channel returns an independent copy
	one := makeImage(2, 2, 1, func(x, y, c int) float32 { return 0.5 })
	mp := one.MeanPlane()
	mp[0] = 9
	if one.Pix[0] != 0.5 {
		t.Error("MeanPlane of single channel must not alias the image")
	}
}

func TestLuminancePlane(t *testing.T) {
	img := makeImage(1, 1, 3, func(x, y, c int) float32 {
		switch c {
		case 0:
			return 0.5
		case 1:
			return 0.25
		default:
			return 0.1
		}
	})
	lum := img.LuminancePlane()
	want := 0.299*0.5 + 0.587*0.25 + 0.114*0.1
	if math.Abs(float64(lum[0])-want) > 1e-6 {
		t.Errorf("luminance = %v, want %v", lum[0], want)
	}

	// non-3-channel images fall back to the mean
	two := makeImage(1, 1, 2, func(x, y, c int) float32 { return float32(c) })
	if got := two.LuminancePlane()[0]; math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("2-channel luminance fallback = %v, want 0.5", got)
	}
}

func TestDownsample(t *testing.T) {
	img := makeImage(100, 50, 1, func(x, y, c int) float32 {
		return float32(y*100 + x)
	})
	small, err := img.Downsample(25)
	if err != nil {
		t.Fatalf("Downsample: %v", err)
	}
	if small.Width != 25 || small.Height != 12 {
		t.Fatalf("downsampled to %dx%d, want 25x12", small.Width, small.Height)
	}
	// nearest neighbor picks the top-left pixel of each 4x4 cell
	if got := small.At(3, 2, 0); got != float32(2*4*100+3*4) {
		t.Errorf("small.At(3,2) = %v, want %v", got, 2*4*100+3*4)
	}
}

func TestDownsampleWithinBoundClones(t *testing.T) {
	img := makeImage(30, 20, 1, func(x, y, c int) float32 { return 1 })
	out, err := img.Downsample(32)
	if err != nil {
		t.Fatalf("Downsample: %v", err)
	}
	if out.Width != 30 || out.Height != 20 {
		t.Fatalf("in-bound image resized to %dx%d", out.Width, out.Height)
	}
	out.Pix[0] = 99
	if img.Pix[0] != 1 {
		t.Error("in-bound Downsample must return an independent copy")
	}
}

func TestDownsampleRejectsBadInput(t *testing.T) {
	bad := &Image{Width: 4, Height: 4, Channels: 1}
	if _, err := bad.Downsample(2); ErrorKind(err) != "configuration" {
		t.Errorf("invalid image error kind = %q, want configuration", ErrorKind(err))
	}
	good := NewImage(4, 4, 1)
	if _, err := good.Downsample(0); ErrorKind(err) != "configuration" {
		t.Errorf("zero max size error kind = %q, want configuration", ErrorKind(err))
	}
}
