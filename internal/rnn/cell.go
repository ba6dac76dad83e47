// Package rnn implements the recurrent inference engine: gated cells, the
// layer stack built from them, the linear output head, and binding of
// checkpoint parameters onto a model.
package rnn

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ductcast/internal/tensor"
)

// ErrClosed is returned by Forward on a model that has been torn down.
var ErrClosed = errors.New("rnn: model closed")

// Cell is one gated recurrent layer. It owns its weights (or borrowed views
// of them), its scratch arena and its persistent state.
//
// A cell is not safe for concurrent use.
type Cell interface {
	InputWidth() int
	HiddenWidth() int
	// Hidden is the committed hidden state, live until the next commit.
	Hidden() []float32
	// Reset zeroes all persistent state.
	Reset()
	// Scratch describes the cell's arena slots.
	Scratch() []Slot

	// step stages the next state from x and the committed state and
	// returns the staged hidden vector.
	step(x []float32) ([]float32, error)
	// commit promotes the staged state.
	commit()
	// params lists every weight in checkpoint order.
	params() []namedMat
}

type namedMat struct {
	name string
	m    *tensor.Mat
}

func releaseAll(ps []namedMat) {
	for _, p := range ps {
		p.m.Release()
	}
}

func checkCellDims(in, hidden int) error {
	if err := tensor.CheckDim(in); err != nil {
		return fmt.Errorf("input width %d: %w", in, err)
	}
	if err := tensor.CheckDim(hidden); err != nil {
		return fmt.Errorf("hidden width %d: %w", hidden, err)
	}
	return nil
}

func checkVec(v []float32, want int) error {
	if v == nil {
		return tensor.NullPointer
	}
	if len(v) != want {
		return tensor.InvalidDimension
	}
	return nil
}

// gate computes dst = x·wi + bi + h·wh + bh, using proj as scratch.
func gate(dst, proj, x, h []float32, wi, bi, wh, bh *tensor.Mat, in, hidden int) error {
	if err := tensor.MatMul(dst, x, wi.Data, 1, in, hidden); err != nil {
		return err
	}
	if err := tensor.Add(dst, dst, bi.Data, hidden); err != nil {
		return err
	}
	if err := tensor.MatMul(proj, h, wh.Data, 1, hidden, hidden); err != nil {
		return err
	}
	if err := tensor.Add(dst, dst, proj, hidden); err != nil {
		return err
	}
	return tensor.Add(dst, dst, bh.Data, hidden)
}

func newWeights(rows, cols int, owned bool) tensor.Mat {
	if owned {
		return tensor.NewMat(rows, cols)
	}
	return tensor.Mat{R: rows, C: cols}
}
