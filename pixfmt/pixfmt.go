// Package pixfmt converts frames between the capture layout (interleaved BGR
// bytes), the single-channel intensity layout the pipeline works on, and the
// float64 planes the convolution engine consumes.
package pixfmt

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/convolve"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

var (
	// ErrChannelCount is returned when a raw frame does not carry exactly
	// three channels. It is a configuration error: the source delivers the
	// wrong pixel format.
	ErrChannelCount = errors.New("pixfmt: raw frame must have 3 channels")
	// ErrFrameSize is returned when a frame's buffer does not match its
	// declared dimensions.
	ErrFrameSize = errors.New("pixfmt: buffer size does not match dimensions")
)

// BT.601 luma weights in thousandths.
const (
	lumaR = 299
	lumaG = 587
	lumaB = 114
)

// ToIntensity converts a BGR frame to a single-channel frame using BT.601
// luma, rounded half-up. Metadata (Seq, Timestamp, TraceID, Source) is carried
// over.
func ToIntensity(raw *frame.Raw) (*frame.Intensity, error) {
	if raw.Channels != frame.BytesPerPixel {
		return nil, fmt.Errorf("%w: got %d", ErrChannelCount, raw.Channels)
	}
	if raw.Width <= 0 || raw.Height <= 0 || len(raw.Data) != raw.Width*raw.Height*frame.BytesPerPixel {
		return nil, fmt.Errorf("%w: %d bytes for %dx%dx%d",
			ErrFrameSize, len(raw.Data), raw.Width, raw.Height, raw.Channels)
	}

	out := frame.NewIntensity(raw.Width, raw.Height)
	copyMeta(out, raw)

	for i := range out.Pix {
		b := uint32(raw.Data[i*3+0])
		g := uint32(raw.Data[i*3+1])
		r := uint32(raw.Data[i*3+2])
		out.Pix[i] = uint8((lumaR*r + lumaG*g + lumaB*b + 500) / 1000)
	}

	return out, nil
}

// Widen returns the samples of in as a float64 plane.
func Widen(in *frame.Intensity) convolve.Plane {
	p := convolve.NewPlane(in.Width, in.Height)
	for i, v := range in.Pix {
		p.Pix[i] = float64(v)
	}
	return p
}

// Rewrite stores filtered values back into in, quantizing each one.
//
// Rewrite panics if len(values) != len(in.Pix).
func Rewrite(in *frame.Intensity, values []float64) {
	if len(values) != len(in.Pix) {
		panic(fmt.Sprintf("pixfmt: rewrite of %d values into %dx%d frame (%d samples)",
			len(values), in.Width, in.Height, len(in.Pix)))
	}
	for i, v := range values {
		in.Pix[i] = Quantize(v)
	}
}

// Quantize clamps v to [0, 255] and rounds to the nearest integer.
// NaN maps to 0.
func Quantize(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}

// ToDisplayable replicates an intensity frame into a 3-channel BGR frame.
//
// When width or height is non-zero and differs from the frame, the image is
// scaled with bilinear interpolation. A zero dimension keeps the frame's own.
func ToDisplayable(in *frame.Intensity, width, height int) (*frame.Raw, error) {
	if !in.Valid() {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrFrameSize, len(in.Pix), in.Width, in.Height)
	}
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("pixfmt: negative display size %dx%d", width, height)
	}
	if width == 0 {
		width = in.Width
	}
	if height == 0 {
		height = in.Height
	}

	gray := GrayImage(in)
	if width != in.Width || height != in.Height {
		scaled := image.NewGray(image.Rect(0, 0, width, height))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), gray, gray.Bounds(), draw.Src, nil)
		gray = scaled
	}

	out := &frame.Raw{
		Seq:       in.Seq,
		Timestamp: in.Timestamp,
		TraceID:   in.TraceID,
		Source:    in.Source,
		Width:     width,
		Height:    height,
		Channels:  frame.BytesPerPixel,
		Data:      make([]byte, width*height*frame.BytesPerPixel),
	}
	for i, v := range gray.Pix {
		out.Data[i*3+0] = v
		out.Data[i*3+1] = v
		out.Data[i*3+2] = v
	}

	return out, nil
}

// GrayImage returns an image.Gray sharing in's sample buffer.
func GrayImage(in *frame.Intensity) *image.Gray {
	return &image.Gray{
		Pix:    in.Pix,
		Stride: in.Width,
		Rect:   image.Rect(0, 0, in.Width, in.Height),
	}
}

// RGBAImage converts a BGR frame to an opaque image.RGBA.
func RGBAImage(raw *frame.Raw) (*image.RGBA, error) {
	if raw.Channels != frame.BytesPerPixel {
		return nil, fmt.Errorf("%w: got %d", ErrChannelCount, raw.Channels)
	}
	expected := raw.Width * raw.Height * frame.BytesPerPixel
	if len(raw.Data) != expected {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrFrameSize, len(raw.Data), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, raw.Width, raw.Height))
	for i := 0; i < raw.Width*raw.Height; i++ {
		img.Pix[i*4+0] = raw.Data[i*3+2] // R
		img.Pix[i*4+1] = raw.Data[i*3+1] // G
		img.Pix[i*4+2] = raw.Data[i*3+0] // B
		img.Pix[i*4+3] = 255
	}

	return img, nil
}

// FromImage converts any image to a BGR frame. Used by sources that decode
// still images and by tests.
func FromImage(img image.Image) *frame.Raw {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	raw := &frame.Raw{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Channels: frame.BytesPerPixel,
		Data:     make([]byte, b.Dx()*b.Dy()*frame.BytesPerPixel),
	}
	for i := 0; i < b.Dx()*b.Dy(); i++ {
		raw.Data[i*3+0] = rgba.Pix[i*4+2]
		raw.Data[i*3+1] = rgba.Pix[i*4+1]
		raw.Data[i*3+2] = rgba.Pix[i*4+0]
	}
	return raw
}

func copyMeta(dst *frame.Intensity, src *frame.Raw) {
	dst.Seq = src.Seq
	dst.Timestamp = src.Timestamp
	dst.TraceID = src.TraceID
	dst.Source = src.Source
}
