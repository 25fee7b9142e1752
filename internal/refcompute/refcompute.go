// Package refcompute is the scenario harness's reference computation: the
// naive, single-threaded matmul a mesh run's collected output is checked
// against. It follows the same "pluggable concrete implementation behind a
// narrow constructor/interface" shape (NewMemory(size) -> Backend), kept
// here as NewModel(weights, biases) -> a Model that Computes a reference
// output. Sharded locking has no home here: the reference computation runs
// once, single-threaded, outside the simulated mesh entirely.
package refcompute

import (
	"fmt"

	"github.com/xpusim/xpusim/internal/matrix"
)

// Model is the reference weight/bias pair a scenario checks its simulated
// mesh output against.
type Model[E matrix.Scalar] struct {
	weights *matrix.Matrix[E]
	biases  []E
}

// NewModel constructs a Model over weights (in_features x out_features) and
// an optional biases vector (length out_features, or nil for no bias).
func NewModel[E matrix.Scalar](weights *matrix.Matrix[E], biases []E) *Model[E] {
	return &Model[E]{weights: weights, biases: biases}
}

// Size reports the model's in_features/out_features.
func (m *Model[E]) Size() (inFeatures, outFeatures int) {
	return m.weights.Rows, m.weights.Cols
}

// Compute returns x . weights (+ biases broadcast row-wise, if present).
func (m *Model[E]) Compute(x *matrix.Matrix[E]) (*matrix.Matrix[E], error) {
	return Reference(x, m.weights, m.biases)
}

// Reference computes the naive matmul x . w, adding bias (broadcast over
// every row) when non-nil: with no bias and an empty partial-sum buffer,
// a tile's downward output is exactly the row-major flattening of
// reshape(ibuf1) . weights.
func Reference[E matrix.Scalar](x, w *matrix.Matrix[E], bias []E) (*matrix.Matrix[E], error) {
	out, err := x.Dot(w)
	if err != nil {
		return nil, fmt.Errorf("refcompute: %w", err)
	}
	if bias != nil {
		if err := out.AddBiasRows(bias); err != nil {
			return nil, fmt.Errorf("refcompute: %w", err)
		}
	}
	return out, nil
}

// BlockTileWeights builds the full (R*w.Rows) x (C*w.Cols) block matrix
// W_mesh used when every tile in an R x C mesh shares identical weights
// when every tile in an R x C mesh shares identical weights: w is placed
// at every block (r, c).
func BlockTileWeights[E matrix.Scalar](w *matrix.Matrix[E], rows, cols int) *matrix.Matrix[E] {
	full := matrix.New[E](rows*w.Rows, cols*w.Cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			for i := 0; i < w.Rows; i++ {
				for j := 0; j < w.Cols; j++ {
					full.Set(r*w.Rows+i, c*w.Cols+j, w.At(i, j))
				}
			}
		}
	}
	return full
}

// RowTileInputs horizontally tiles x (numRows x w.Cols-compatible width)
// across cols column-blocks, producing numRows x (cols*x.Cols): the same
// activation row repeated in every column block: every mesh row injects
// the same activations at its left edge.
func RowTileInputs[E matrix.Scalar](x *matrix.Matrix[E], cols int) *matrix.Matrix[E] {
	full := matrix.New[E](x.Rows, cols*x.Cols)
	for r := 0; r < x.Rows; r++ {
		row := x.Row(r)
		for c := 0; c < cols; c++ {
			copy(full.Row(r)[c*x.Cols:(c+1)*x.Cols], row)
		}
	}
	return full
}
