package astro

import "fmt"

// Luminance weights for RGB images (ITU-R BT.601).
const (
	lumWeightR = 0.299
	lumWeightG = 0.587
	lumWeightB = 0.114
)

// Image is a dense pixel buffer in channel-planar layout: the value of
// channel c at (x, y) lives at index c*Width*Height + y*Width + x.
// Pixel values are normalized to [0, 1] by the loading collaborator.
// An Image handed to an extraction run is read-only for the duration
// of that run.
type Image struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Channels int       `json:"channels"`
	Pix      []float32 `json:"-"`
}

// NewImage allocates a zero-filled image with the given dimensions.
func NewImage(width, height, channels int) *Image {
	return &Image{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float32, width*height*channels),
	}
}

// Valid reports whether the buffer is consistent with the declared
// dimensions: positive sizes, at least one channel, and a pixel count
// of exactly Width*Height*Channels.
func (im *Image) Valid() bool {
	if im == nil {
		return false
	}
	if im.Width <= 0 || im.Height <= 0 || im.Channels <= 0 {
		return false
	}
	return len(im.Pix) == im.Width*im.Height*im.Channels
}

// At returns the value of channel c at pixel (x, y). The caller is
// responsible for bounds; this is the hot path and does not re-check.
func (im *Image) At(x, y, c int) float32 {
	return im.Pix[c*im.Width*im.Height+y*im.Width+x]
}

// ChannelPlane returns the plane for channel c as a subslice of the
// backing buffer. Mutating the returned slice mutates the image.
func (im *Image) ChannelPlane(c int) []float32 {
	n := im.Width * im.Height
	return im.Pix[c*n : (c+1)*n]
}

// MeanPlane returns a new plane holding the per-pixel mean across all
// channels. For single-channel images it returns a copy of the plane.
func (im *Image) MeanPlane() []float32 {
	n := im.Width * im.Height
	out := make([]float32, n)
	if im.Channels == 1 {
		copy(out, im.Pix[:n])
		return out
	}
	inv := float32(1) / float32(im.Channels)
	for c := 0; c < im.Channels; c++ {
		plane := im.ChannelPlane(c)
		for i, v := range plane {
			out[i] += v * inv
		}
	}
	return out
}

// LuminancePlane returns a new plane holding the weighted luminance of
// a three-channel image. Images with any other channel count fall back
// to the per-pixel mean.
func (im *Image) LuminancePlane() []float32 {
	if im.Channels != 3 {
		return im.MeanPlane()
	}
	n := im.Width * im.Height
	out := make([]float32, n)
	r := im.ChannelPlane(0)
	g := im.ChannelPlane(1)
	b := im.ChannelPlane(2)
	for i := 0; i < n; i++ {
		out[i] = float32(lumWeightR)*r[i] + float32(lumWeightG)*g[i] + float32(lumWeightB)*b[i]
	}
	return out
}

// Clone returns a deep copy of the image.
func (im *Image) Clone() *Image {
	out := &Image{Width: im.Width, Height: im.Height, Channels: im.Channels}
	out.Pix = make([]float32, len(im.Pix))
	copy(out.Pix, im.Pix)
	return out
}

// Downsample returns a nearest-neighbor reduction of the image whose
// longer side is at most maxSize pixels. Images already within the
// bound are returned as a clone. The integer scale factor is shared by
// both axes so the aspect ratio survives up to integer truncation.
func (im *Image) Downsample(maxSize int) (*Image, error) {
	if !im.Valid() {
		return nil, fmt.Errorf("%w: cannot downsample invalid image", ErrConfiguration)
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: downsample max size %d must be positive", ErrConfiguration, maxSize)
	}
	longer := im.Width
	if im.Height > longer {
		longer = im.Height
	}
	scale := (longer + maxSize - 1) / maxSize
	if scale <= 1 {
		return im.Clone(), nil
	}
	w := im.Width / scale
	h := im.Height / scale
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := NewImage(w, h, im.Channels)
	for c := 0; c < im.Channels; c++ {
		src := im.ChannelPlane(c)
		dst := out.ChannelPlane(c)
		for y := 0; y < h; y++ {
			srcRow := y * scale * im.Width
			dstRow := y * w
			for x := 0; x < w; x++ {
				dst[dstRow+x] = src[srcRow+x*scale]
			}
		}
	}
	return out, nil
}
