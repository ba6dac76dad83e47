package rnn

import (
	"errors"
	"fmt"

	"github.com/samcharles93/ductcast/internal/tensor"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

var errBorrowedWeights = errors.New("rnn: weights are borrowed")

// Preprocessor transforms the raw feature vector before layer 0. dst and src
// have the model's input width.
type Preprocessor interface {
	Apply(dst, src []float32) error
}

// Blob is the flat parameter buffer a model binds its weights to.
// *ckpt.Region satisfies it.
type Blob interface {
	tensor.Backing
	Len() int
	Slice(off, n int) ([]float32, error)
}

// Model is a recurrent stack followed by a linear head. Forward mutates the
// model's scratch and recurrent state, so a Model must not be shared between
// goroutines without external locking. Distinct models bound to the same
// blob are independent.
type Model struct {
	dims  ckpt.Dims
	pre   Preprocessor
	stack *Stack
	head  *Linear

	scaled []float32
	y      []float32
	closed bool
}

// New builds a model with zeroed, owned weights. pre may be nil.
func New(d ckpt.Dims, pre Preprocessor) (*Model, error) {
	return newModel(d, pre, true)
}

func newModel(d ckpt.Dims, pre Preprocessor, owned bool) (*Model, error) {
	stack, err := newStack(d, owned)
	if err != nil {
		return nil, err
	}
	head, err := newLinear(d.HiddenWidth, d.OutputWidth, owned)
	if err != nil {
		return nil, err
	}
	return &Model{
		dims:   d,
		pre:    pre,
		stack:  stack,
		head:   head,
		scaled: make([]float32, d.InputWidth),
		y:      make([]float32, d.OutputWidth),
	}, nil
}

// Bind builds a model whose every weight is a borrowed view into blob,
// assigned in checkpoint layout order. blob must hold exactly the parameter
// count of d. Each view retains blob until the model is closed.
func Bind(blob Blob, d ckpt.Dims, pre Preprocessor) (*Model, error) {
	if blob == nil {
		return nil, tensor.NullPointer
	}
	layout, err := ckpt.Layout(d)
	if err != nil {
		return nil, err
	}
	want, _ := ckpt.ParamCount(d)
	if got := blob.Len(); got != want {
		return nil, fmt.Errorf("%w: checkpoint holds %d floats, %s needs %d", ckpt.ErrSizeMismatch, got, d, want)
	}

	m, err := newModel(d, pre, false)
	if err != nil {
		return nil, err
	}
	slots := m.params()
	if len(slots) != len(layout) {
		m.Close()
		return nil, fmt.Errorf("%w: model has %d parameters, layout %d", ckpt.ErrSizeMismatch, len(slots), len(layout))
	}
	for i, p := range layout {
		s := slots[i]
		if s.name != p.Name || s.m.R != p.Rows || s.m.C != p.Cols {
			m.Close()
			return nil, fmt.Errorf("%w: parameter %d is %s[%d×%d], layout wants %s", ckpt.ErrSizeMismatch, i, s.name, s.m.R, s.m.C, p)
		}
		data, err := blob.Slice(p.Offset, p.Len())
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("bind %s: %w", p, err)
		}
		view, err := tensor.Borrow(blob, data, p.Rows, p.Cols)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("bind %s: %w", p, err)
		}
		*s.m = view
	}
	return m, nil
}

// Dims is the shape the model was built with.
func (m *Model) Dims() ckpt.Dims { return m.dims }

// Stack exposes the recurrent layers for inspection.
func (m *Model) Stack() *Stack { return m.stack }

// Head exposes the output layer.
func (m *Model) Head() *Linear { return m.head }

// Borrowed reports whether the weights are views into a checkpoint.
func (m *Model) Borrowed() bool {
	return m.head.W.Borrowed()
}

// ScratchFloats is the total size of every layer's arena, in float32 values.
func (m *Model) ScratchFloats() int {
	n := 0
	for _, c := range m.stack.cells {
		for _, s := range c.Scratch() {
			n += s.Size
		}
	}
	return n
}

// Forward runs one control-loop tick: scale in, step every layer, project to
// out[:OutputWidth]. out is written and recurrent state advances only when
// the whole pass succeeds; on error both are left as they were.
func (m *Model) Forward(out, in []float32) error {
	if m.closed {
		return ErrClosed
	}
	if out == nil || in == nil {
		return tensor.NullPointer
	}
	if len(in) != m.dims.InputWidth || len(out) < m.dims.OutputWidth {
		return tensor.InvalidDimension
	}
	x := in
	if m.pre != nil {
		if err := m.pre.Apply(m.scaled, in); err != nil {
			return fmt.Errorf("scale input: %w", err)
		}
		x = m.scaled
	}
	h, err := m.stack.step(x)
	if err != nil {
		return err
	}
	if err := m.head.Forward(m.y, h); err != nil {
		return fmt.Errorf("linear head: %w", err)
	}
	m.stack.commit()
	copy(out, m.y)
	return nil
}

// Randomize fills every owned weight with reproducible values in roughly
// (-scale/2, scale/2). It is meant for benchmarks and smoke tests.
func (m *Model) Randomize(seed int64, scale float32) error {
	if m.Borrowed() {
		return errBorrowedWeights
	}
	for i, p := range m.params() {
		tensor.FillRand(p.m, seed+int64(i), scale)
	}
	return nil
}

// Export flattens every weight in checkpoint layout order, ready for
// ckpt.WriteFile.
func (m *Model) Export() []float32 {
	params := m.params()
	n := 0
	for _, p := range params {
		n += len(p.m.Data)
	}
	out := make([]float32, 0, n)
	for _, p := range params {
		out = append(out, p.m.Data...)
	}
	return out
}

// Reset zeroes all recurrent state.
func (m *Model) Reset() {
	m.stack.Reset()
}

// Close releases every weight: owned buffers are dropped, borrowed views
// hand their reference back to the blob. Close is idempotent.
func (m *Model) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	releaseAll(m.params())
	return nil
}

func (m *Model) params() []namedMat {
	return append(m.stack.params(), m.head.params()...)
}
