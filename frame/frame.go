// Package frame defines the frame types that flow through the filter pipeline.
//
// Two representations exist:
//
//	Raw        interleaved BGR bytes, as delivered by capture devices and
//	           accepted by display sinks (3 bytes per pixel)
//	Intensity  single-channel 8-bit samples, the unit of work of the pipeline
//
// Ownership contract:
//   - A frame has exactly one owner at any instant.
//   - Handing a frame to a channel or a Sink transfers ownership; the sender
//     MUST NOT read or write it afterwards.
//   - Frames are never pooled or reused.
package frame

import (
	"fmt"
	"time"
)

// BytesPerPixel is the size of one pixel in a Raw frame (B, G, R).
const BytesPerPixel = 3

// Raw is a multi-channel frame in the capture device's native layout.
type Raw struct {
	// Seq is the monotonic capture sequence number (starts at 1)
	Seq uint64
	// Timestamp is when the frame was captured
	Timestamp time.Time
	// TraceID follows the frame across pipeline stages in logs
	TraceID string
	// Source identifies where the frame came from (e.g. "synthetic", "camera-0")
	Source string

	Width    int
	Height   int
	Channels int

	// Data holds interleaved pixels, row-major, Channels bytes per pixel.
	// Channel order is B, G, R.
	Data []byte
}

// Resolution returns "WxH".
func (r *Raw) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Intensity is a single-channel frame.
//
// Pix holds Width*Height samples in row-major order. The pipeline widens the
// samples to float64 for convolution and writes the filtered values back in
// place, so an Intensity frame is mutated exactly once by its consumer.
type Intensity struct {
	Seq       uint64
	Timestamp time.Time
	TraceID   string
	Source    string

	Width  int
	Height int
	Pix    []uint8
}

// NewIntensity allocates a zeroed intensity frame.
func NewIntensity(width, height int) *Intensity {
	return &Intensity{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// At returns the sample at (x, y). Out-of-range coordinates panic.
func (f *Intensity) At(x, y int) uint8 {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		panic(fmt.Sprintf("frame: coordinate (%d,%d) outside %dx%d", x, y, f.Width, f.Height))
	}
	return f.Pix[y*f.Width+x]
}

// Valid reports whether Pix matches the declared dimensions.
func (f *Intensity) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height
}
