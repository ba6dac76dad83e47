package rnn

import (
	"fmt"

	"github.com/samcharles93/ductcast/internal/tensor"
)

// LSTMWeights holds one LSTM layer's parameters, gate order i, f, g, o.
type LSTMWeights struct {
	WII, WIF, WIG, WIO tensor.Mat
	WHI, WHF, WHG, WHO tensor.Mat
	BII, BIF, BIG, BIO tensor.Mat
	BHI, BHF, BHG, BHO tensor.Mat
}

const (
	lstmHidden = iota
	lstmCell
	lstmNextH
	lstmNextC
	lstmIn
	lstmForget
	lstmCand
	lstmOut
	lstmProj
)

// LSTMCell is a long short-term memory layer:
//
//	i = σ(x·W_ii + b_ii + h·W_hi + b_hi)
//	f = σ(x·W_if + b_if + h·W_hf + b_hf)
//	g = tanh(x·W_ig + b_ig + h·W_hg + b_hg)
//	o = σ(x·W_io + b_io + h·W_ho + b_ho)
//	c' = f⊙c + i⊙g
//	h' = o⊙tanh(c')
type LSTMCell struct {
	W LSTMWeights

	in, hidden int
	mem        *arena
}

// NewLSTMCell builds a cell with zeroed, owned weights.
func NewLSTMCell(in, hidden int) (*LSTMCell, error) {
	return newLSTMCell(in, hidden, true)
}

func newLSTMCell(in, hidden int, owned bool) (*LSTMCell, error) {
	if err := checkCellDims(in, hidden); err != nil {
		return nil, fmt.Errorf("lstm: %w", err)
	}
	c := &LSTMCell{
		in:     in,
		hidden: hidden,
		mem: newArena(
			slotSpec{"hidden", hidden},
			slotSpec{"cell", hidden},
			slotSpec{"next_hidden", hidden},
			slotSpec{"next_cell", hidden},
			slotSpec{"input_gate", hidden},
			slotSpec{"forget_gate", hidden},
			slotSpec{"candidate", hidden},
			slotSpec{"output_gate", hidden},
			slotSpec{"proj", hidden},
		),
	}
	for i, p := range c.params() {
		switch {
		case i < 4:
			*p.m = newWeights(in, hidden, owned)
		case i < 8:
			*p.m = newWeights(hidden, hidden, owned)
		default:
			*p.m = newWeights(1, hidden, owned)
		}
	}
	return c, nil
}

func (c *LSTMCell) InputWidth() int   { return c.in }
func (c *LSTMCell) HiddenWidth() int  { return c.hidden }
func (c *LSTMCell) Hidden() []float32 { return c.mem.at(lstmHidden) }
func (c *LSTMCell) Scratch() []Slot   { return c.mem.layout() }

// CellState is the committed cell vector.
func (c *LSTMCell) CellState() []float32 { return c.mem.at(lstmCell) }

func (c *LSTMCell) Reset() {
	c.mem.zero(lstmHidden, lstmCell, lstmNextH, lstmNextC)
}

// Forward computes one step from x, hPrev and cPrev and returns the staged
// h' and c'. Both live in the cell's staging slots and are overwritten by the
// next call. hPrev and cPrev may alias the committed state.
func (c *LSTMCell) Forward(x, hPrev, cPrev []float32) (h, cell []float32, err error) {
	if err := checkVec(x, c.in); err != nil {
		return nil, nil, fmt.Errorf("lstm: input: %w", err)
	}
	if err := checkVec(hPrev, c.hidden); err != nil {
		return nil, nil, fmt.Errorf("lstm: previous hidden: %w", err)
	}
	if err := checkVec(cPrev, c.hidden); err != nil {
		return nil, nil, fmt.Errorf("lstm: previous cell: %w", err)
	}
	w := &c.W
	n := c.hidden
	ig := c.mem.at(lstmIn)
	fg := c.mem.at(lstmForget)
	gg := c.mem.at(lstmCand)
	og := c.mem.at(lstmOut)
	proj := c.mem.at(lstmProj)
	nextH := c.mem.at(lstmNextH)
	nextC := c.mem.at(lstmNextC)

	if err := gate(ig, proj, x, hPrev, &w.WII, &w.BII, &w.WHI, &w.BHI, c.in, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: input gate: %w", err)
	}
	if err := tensor.SigmoidVec(ig, ig, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: input gate: %w", err)
	}
	if err := gate(fg, proj, x, hPrev, &w.WIF, &w.BIF, &w.WHF, &w.BHF, c.in, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: forget gate: %w", err)
	}
	if err := tensor.SigmoidVec(fg, fg, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: forget gate: %w", err)
	}
	if err := gate(gg, proj, x, hPrev, &w.WIG, &w.BIG, &w.WHG, &w.BHG, c.in, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: candidate: %w", err)
	}
	if err := tensor.TanhVec(gg, gg, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: candidate: %w", err)
	}
	if err := gate(og, proj, x, hPrev, &w.WIO, &w.BIO, &w.WHO, &w.BHO, c.in, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: output gate: %w", err)
	}
	if err := tensor.SigmoidVec(og, og, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: output gate: %w", err)
	}

	// c' = f⊙c + i⊙g; g is dead after this so it takes i⊙g in place.
	if err := tensor.Mul(nextC, fg, cPrev, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: cell update: %w", err)
	}
	if err := tensor.Mul(gg, ig, gg, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: cell update: %w", err)
	}
	if err := tensor.Add(nextC, nextC, gg, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: cell update: %w", err)
	}
	if err := tensor.TanhVec(proj, nextC, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: hidden update: %w", err)
	}
	if err := tensor.Mul(nextH, og, proj, n); err != nil {
		return nil, nil, fmt.Errorf("lstm: hidden update: %w", err)
	}
	return nextH, nextC, nil
}

func (c *LSTMCell) step(x []float32) ([]float32, error) {
	h, _, err := c.Forward(x, c.mem.at(lstmHidden), c.mem.at(lstmCell))
	return h, err
}

func (c *LSTMCell) commit() {
	copy(c.mem.at(lstmHidden), c.mem.at(lstmNextH))
	copy(c.mem.at(lstmCell), c.mem.at(lstmNextC))
}

func (c *LSTMCell) params() []namedMat {
	w := &c.W
	return []namedMat{
		{"W_ii", &w.WII}, {"W_if", &w.WIF}, {"W_ig", &w.WIG}, {"W_io", &w.WIO},
		{"W_hi", &w.WHI}, {"W_hf", &w.WHF}, {"W_hg", &w.WHG}, {"W_ho", &w.WHO},
		{"b_ii", &w.BII}, {"b_if", &w.BIF}, {"b_ig", &w.BIG}, {"b_io", &w.BIO},
		{"b_hi", &w.BHI}, {"b_hf", &w.BHF}, {"b_hg", &w.BHG}, {"b_ho", &w.BHO},
	}
}
