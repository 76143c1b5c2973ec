// Package convolve applies a square kernel to a single-channel plane.
//
// Convolve is the baseline nested-loop implementation: for every output pixel
// it walks the whole kernel, skipping offsets that fall outside the frame.
// Engine produces bit-identical results by splitting the output rows into
// bands processed concurrently; each output pixel is still computed by one
// goroutine with the same summation order.
package convolve

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/kernel"
)

// ErrDimensionMismatch is returned by Engine.Apply when the plane's sample
// count does not match its declared dimensions.
var ErrDimensionMismatch = errors.New("convolve: plane length does not match width*height")

// Plane is a widened single-channel frame, row-major.
type Plane struct {
	Width  int
	Height int
	Pix    []float64
}

// NewPlane allocates a zeroed plane.
func NewPlane(width, height int) Plane {
	return Plane{Width: width, Height: height, Pix: make([]float64, width*height)}
}

// At returns the sample at (x, y).
func (p Plane) At(x, y int) float64 {
	return p.Pix[y*p.Width+x]
}

// EdgePolicy selects how kernel offsets outside the frame are handled.
type EdgePolicy int

const (
	// EdgeTruncate skips out-of-bounds offsets. Border pixels receive a
	// partial kernel whose applied weights sum to less than 1.0, so borders
	// darken slightly.
	EdgeTruncate EdgePolicy = iota
	// EdgeRenormalize skips out-of-bounds offsets and divides by the sum of
	// the weights actually applied.
	EdgeRenormalize
	// EdgeClamp replicates the nearest in-bounds sample.
	EdgeClamp
)

// String returns the configuration name of the policy.
func (e EdgePolicy) String() string {
	switch e {
	case EdgeTruncate:
		return "truncate"
	case EdgeRenormalize:
		return "renormalize"
	case EdgeClamp:
		return "clamp"
	default:
		return fmt.Sprintf("EdgePolicy(%d)", int(e))
	}
}

// ParseEdgePolicy maps a configuration name to an EdgePolicy.
// The empty string selects EdgeTruncate.
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch s {
	case "", "truncate":
		return EdgeTruncate, nil
	case "renormalize":
		return EdgeRenormalize, nil
	case "clamp":
		return EdgeClamp, nil
	default:
		return 0, fmt.Errorf("convolve: unknown edge policy %q (want truncate, renormalize or clamp)", s)
	}
}

// Convolve applies k to p with the truncation edge policy and returns a new
// slice of Width*Height values. Neither input is modified.
//
// Convolve panics if len(p.Pix) != p.Width*p.Height or k is nil.
func Convolve(p Plane, k *kernel.Kernel) []float64 {
	return ConvolveEdge(p, k, EdgeTruncate)
}

// ConvolveEdge is Convolve with an explicit edge policy.
func ConvolveEdge(p Plane, k *kernel.Kernel, edge EdgePolicy) []float64 {
	mustMatch(p, k)

	out := make([]float64, len(p.Pix))
	convolveRows(p, k, edge, out, 0, p.Height)
	return out
}

// AppliedWeight returns the sum of the kernel weights that stay inside a
// width x height frame when k is anchored at (x, y).
func AppliedWeight(width, height, x, y int, k *kernel.Kernel) float64 {
	size := k.Size()
	c := k.Center()

	var sum float64
	for ky := 0; ky < size; ky++ {
		sy := y + ky - c
		if sy < 0 || sy >= height {
			continue
		}
		for kx := 0; kx < size; kx++ {
			sx := x + kx - c
			if sx < 0 || sx >= width {
				continue
			}
			sum += k.At(kx, ky)
		}
	}
	return sum
}

// convolveRows writes output rows [y0, y1) into out.
func convolveRows(p Plane, k *kernel.Kernel, edge EdgePolicy, out []float64, y0, y1 int) {
	for y := y0; y < y1; y++ {
		row := out[y*p.Width : (y+1)*p.Width]
		for x := range row {
			row[x] = pixel(p, k, edge, x, y)
		}
	}
}

// pixel computes one output value. Kernel rows are visited top to bottom and
// columns left to right for every policy.
func pixel(p Plane, k *kernel.Kernel, edge EdgePolicy, x, y int) float64 {
	size := k.Size()
	c := k.Center()

	var sum, applied float64
	for ky := 0; ky < size; ky++ {
		sy := y + ky - c
		if sy < 0 || sy >= p.Height {
			if edge != EdgeClamp {
				continue
			}
			sy = clamp(sy, p.Height)
		}
		weights := k.Row(ky)
		src := p.Pix[sy*p.Width : (sy+1)*p.Width]

		for kx, w := range weights {
			sx := x + kx - c
			if sx < 0 || sx >= p.Width {
				if edge != EdgeClamp {
					continue
				}
				sx = clamp(sx, p.Width)
			}
			sum += src[sx] * w
			applied += w
		}
	}

	if edge == EdgeRenormalize && applied != 0 {
		return sum / applied
	}
	return sum
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func mustMatch(p Plane, k *kernel.Kernel) {
	if k == nil {
		panic("convolve: nil kernel")
	}
	if p.Width < 0 || p.Height < 0 || len(p.Pix) != p.Width*p.Height {
		panic(fmt.Sprintf("convolve: plane has %d samples, want %dx%d=%d",
			len(p.Pix), p.Width, p.Height, p.Width*p.Height))
	}
}
