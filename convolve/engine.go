package convolve

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/kernel"
)

// minBandRows keeps bands large enough that goroutine overhead stays small
// compared to the per-row kernel work.
const minBandRows = 8

// Engine is the concurrent convolution front end.
//
// The zero value uses EdgeTruncate and GOMAXPROCS workers.
type Engine struct {
	Edge    EdgePolicy
	Workers int // 0 = GOMAXPROCS, 1 = run on the calling goroutine
}

// Apply convolves p with k and returns a new slice of Width*Height values.
//
// Output rows are split into contiguous bands, one per worker. All bands are
// joined before Apply returns, so the caller regains exclusive use of p.
// Results are bit-identical to ConvolveEdge(p, k, e.Edge).
//
// Returns ErrDimensionMismatch on malformed input, or ctx.Err() if the
// context is cancelled mid-frame.
func (e Engine) Apply(ctx context.Context, p Plane, k *kernel.Kernel) ([]float64, error) {
	if k == nil {
		return nil, fmt.Errorf("convolve: nil kernel")
	}
	if p.Width <= 0 || p.Height <= 0 || len(p.Pix) != p.Width*p.Height {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrDimensionMismatch, len(p.Pix), p.Width, p.Height)
	}

	out := make([]float64, len(p.Pix))

	bands := e.bands(p.Height)
	if bands == 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		convolveRows(p, k, e.Edge, out, 0, p.Height)
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	rowsPerBand := (p.Height + bands - 1) / bands
	for y0 := 0; y0 < p.Height; y0 += rowsPerBand {
		y0 := y0
		y1 := min(y0+rowsPerBand, p.Height)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				convolveRows(p, k, e.Edge, out, y, y+1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// bands returns the number of row bands for a plane of the given height.
func (e Engine) bands(height int) int {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if limit := height / minBandRows; workers > limit {
		workers = limit
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
