package rnn

import (
	"fmt"

	"github.com/samcharles93/ductcast/pkg/ckpt"
)

// Stack chains recurrent layers: layer 0 reads the model input and every
// later layer reads the hidden vector produced below it in the same step.
type Stack struct {
	cells []Cell
}

// NewStack builds a stack with zeroed, owned weights for d.
func NewStack(d ckpt.Dims) (*Stack, error) {
	return newStack(d, true)
}

func newStack(d ckpt.Dims, owned bool) (*Stack, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	s := &Stack{cells: make([]Cell, 0, d.NumLayers)}
	for l := 0; l < d.NumLayers; l++ {
		var (
			c   Cell
			err error
		)
		in := d.LayerInputWidth(l)
		switch d.Arch {
		case ckpt.ArchGRU:
			c, err = newGRUCell(in, d.HiddenWidth, owned)
		case ckpt.ArchLSTM:
			c, err = newLSTMCell(in, d.HiddenWidth, owned)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
		s.cells = append(s.cells, c)
	}
	return s, nil
}

// Layers is the number of recurrent layers.
func (s *Stack) Layers() int { return len(s.cells) }

// Cell returns layer l.
func (s *Stack) Cell(l int) Cell { return s.cells[l] }

// Forward runs one step through every layer, commits the new state and
// returns the top hidden vector. On error no layer's state changes.
func (s *Stack) Forward(x []float32) ([]float32, error) {
	if _, err := s.step(x); err != nil {
		return nil, err
	}
	s.commit()
	return s.cells[len(s.cells)-1].Hidden(), nil
}

func (s *Stack) step(x []float32) ([]float32, error) {
	h := x
	for l, c := range s.cells {
		next, err := c.step(h)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
		h = next
	}
	return h, nil
}

func (s *Stack) commit() {
	for _, c := range s.cells {
		c.commit()
	}
}

// Reset zeroes every layer's state.
func (s *Stack) Reset() {
	for _, c := range s.cells {
		c.Reset()
	}
}

func (s *Stack) params() []namedMat {
	var out []namedMat
	for _, c := range s.cells {
		out = append(out, c.params()...)
	}
	return out
}
