package rnn

import (
	"fmt"

	"github.com/samcharles93/ductcast/internal/tensor"
)

// Linear is the output head: y = h·W + b with W [in × out] and b 1 × out.
type Linear struct {
	W, B tensor.Mat

	in, out int
}

// NewLinear builds a head with zeroed, owned weights.
func NewLinear(in, out int) (*Linear, error) {
	return newLinear(in, out, true)
}

func newLinear(in, out int, owned bool) (*Linear, error) {
	if err := tensor.CheckDim(in); err != nil {
		return nil, fmt.Errorf("linear: input width %d: %w", in, err)
	}
	if err := tensor.CheckDim(out); err != nil {
		return nil, fmt.Errorf("linear: output width %d: %w", out, err)
	}
	return &Linear{
		W:   newWeights(in, out, owned),
		B:   newWeights(1, out, owned),
		in:  in,
		out: out,
	}, nil
}

func (l *Linear) InputWidth() int  { return l.in }
func (l *Linear) OutputWidth() int { return l.out }

// Forward writes h·W + b into out[:OutputWidth()]. A sum that leaves the
// float32 range is OverflowRisk and out is then undefined.
func (l *Linear) Forward(out, h []float32) error {
	if err := checkVec(h, l.in); err != nil {
		return err
	}
	if err := tensor.MatMul(out, h, l.W.Data, 1, l.in, l.out); err != nil {
		return err
	}
	if err := tensor.Add(out, out, l.B.Data, l.out); err != nil {
		return err
	}
	return tensor.CheckFinite(out, l.out)
}

func (l *Linear) params() []namedMat {
	return []namedMat{{"W_out", &l.W}, {"b_out", &l.B}}
}
