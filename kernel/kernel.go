// Package kernel builds the immutable square weight matrices used by the
// convolution engine.
//
// A Kernel is created once at startup and shared by pointer with every
// convolution call. It has no setters, so concurrent readers need no
// synchronization.
package kernel

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Configuration errors. They are raised before the pipeline starts.
var (
	ErrInvalidSize  = errors.New("kernel: size must be an odd positive integer")
	ErrInvalidSigma = errors.New("kernel: sigma must be a positive finite number")
	ErrDegenerate   = errors.New("kernel: weights sum to zero or overflow")
	ErrNotSquare    = errors.New("kernel: weights must form a square matrix")
	ErrNotFinite    = errors.New("kernel: weights must be finite")
)

// minRawSum is the smallest raw weight sum accepted for normalization.
// Anything below it (typically an underflowed Gaussian) cannot be divided
// out without producing Inf or NaN cells.
const minRawSum = 1e-300

// Kernel is an immutable square matrix of convolution weights with odd side.
type Kernel struct {
	size    int
	weights []float64 // row-major, size*size
}

// Gaussian builds a normalized isotropic Gaussian kernel.
//
// Each cell (x, y) holds exp(-(dx²+dy²)/(2σ²)) / (2πσ²) with dx = x-c,
// dy = y-c and c = size/2, divided by the sum of all cells so the kernel
// sums to 1.0. Identical (size, sigma) always yield bit-identical weights.
//
// Returns ErrInvalidSize, ErrInvalidSigma or ErrDegenerate on bad input.
func Gaussian(size int, sigma float64) (*Kernel, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}
	if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidSigma, sigma)
	}

	center := size / 2
	twoSigmaSq := 2 * sigma * sigma
	scale := 1 / (math.Pi * twoSigmaSq)

	weights := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x - center)
			dy := float64(y - center)
			weights[y*size+x] = math.Exp(-(dx*dx+dy*dy)/twoSigmaSq) * scale
		}
	}

	if err := normalize(weights); err != nil {
		return nil, fmt.Errorf("%w (size=%d, sigma=%v)", err, size, sigma)
	}

	return &Kernel{size: size, weights: weights}, nil
}

// Box builds a normalized kernel where every weight is 1/size².
func Box(size int) (*Kernel, error) {
	if err := validateSize(size); err != nil {
		return nil, err
	}

	weights := make([]float64, size*size)
	w := 1 / float64(size*size)
	for i := range weights {
		weights[i] = w
	}

	return &Kernel{size: size, weights: weights}, nil
}

// New builds a kernel from explicit weights, used as given.
//
// The matrix must be square with odd side and finite cells. New does not
// normalize; use NewNormalized for that.
func New(rows [][]float64) (*Kernel, error) {
	size := len(rows)
	if err := validateSize(size); err != nil {
		return nil, err
	}

	weights := make([]float64, 0, size*size)
	for i, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrNotSquare, i, len(row), size)
		}
		for _, w := range row {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, ErrNotFinite
			}
		}
		weights = append(weights, row...)
	}

	return &Kernel{size: size, weights: weights}, nil
}

// NewNormalized is New followed by division of every cell by the weight sum.
func NewNormalized(rows [][]float64) (*Kernel, error) {
	k, err := New(rows)
	if err != nil {
		return nil, err
	}
	if err := normalize(k.weights); err != nil {
		return nil, err
	}
	return k, nil
}

// Size returns the side length.
func (k *Kernel) Size() int { return k.size }

// Center returns size/2, the offset of the anchor cell.
func (k *Kernel) Center() int { return k.size / 2 }

// At returns the weight at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.weights[y*k.size+x]
}

// Sum returns the sum of all weights.
func (k *Kernel) Sum() float64 {
	return floats.Sum(k.weights)
}

// Weights returns a copy of the weights as rows.
func (k *Kernel) Weights() [][]float64 {
	rows := make([][]float64, k.size)
	for y := range rows {
		rows[y] = append([]float64(nil), k.weights[y*k.size:(y+1)*k.size]...)
	}
	return rows
}

// Row returns row y without copying. Callers MUST NOT modify it.
func (k *Kernel) Row(y int) []float64 {
	return k.weights[y*k.size : (y+1)*k.size : (y+1)*k.size]
}

// String returns a short description for logs.
func (k *Kernel) String() string {
	return fmt.Sprintf("kernel(%dx%d, sum=%.6f)", k.size, k.size, k.Sum())
}

func validateSize(size int) error {
	if size < 1 || size%2 == 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	return nil
}

// normalize divides weights by their sum in place.
func normalize(weights []float64) error {
	sum := floats.Sum(weights)
	if math.IsNaN(sum) || math.IsInf(sum, 0) || math.Abs(sum) < minRawSum {
		return ErrDegenerate
	}
	floats.Scale(1/sum, weights)

	for _, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return ErrDegenerate
		}
	}
	return nil
}
