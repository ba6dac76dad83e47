package rnn

import (
	"fmt"

	"github.com/samcharles93/ductcast/internal/tensor"
)

// GRUWeights holds one GRU layer's parameters. Input-side matrices are
// [in × hidden], hidden-side matrices [hidden × hidden], biases 1 × hidden.
type GRUWeights struct {
	WIR, WIZ, WIN tensor.Mat
	WHR, WHZ, WHN tensor.Mat
	BIR, BIZ, BIN tensor.Mat
	BHR, BHZ, BHN tensor.Mat
}

const (
	gruHidden = iota
	gruNext
	gruReset
	gruUpdate
	gruCand
	gruResetHidden
	gruProj
)

// GRUCell is a gated recurrent unit:
//
//	r = σ(x·W_ir + b_ir + h·W_hr + b_hr)
//	z = σ(x·W_iz + b_iz + h·W_hz + b_hz)
//	n = tanh(x·W_in + b_in + (r⊙h)·W_hn + b_hn)
//	h' = z⊙h + (1−z)⊙n
type GRUCell struct {
	W GRUWeights

	in, hidden int
	mem        *arena
}

// NewGRUCell builds a cell with zeroed, owned weights.
func NewGRUCell(in, hidden int) (*GRUCell, error) {
	return newGRUCell(in, hidden, true)
}

func newGRUCell(in, hidden int, owned bool) (*GRUCell, error) {
	if err := checkCellDims(in, hidden); err != nil {
		return nil, fmt.Errorf("gru: %w", err)
	}
	c := &GRUCell{
		in:     in,
		hidden: hidden,
		mem: newArena(
			slotSpec{"hidden", hidden},
			slotSpec{"next", hidden},
			slotSpec{"reset", hidden},
			slotSpec{"update", hidden},
			slotSpec{"candidate", hidden},
			slotSpec{"reset_hidden", hidden},
			slotSpec{"proj", hidden},
		),
	}
	for i, p := range c.params() {
		switch {
		case i < 3:
			*p.m = newWeights(in, hidden, owned)
		case i < 6:
			*p.m = newWeights(hidden, hidden, owned)
		default:
			*p.m = newWeights(1, hidden, owned)
		}
	}
	return c, nil
}

func (c *GRUCell) InputWidth() int   { return c.in }
func (c *GRUCell) HiddenWidth() int  { return c.hidden }
func (c *GRUCell) Hidden() []float32 { return c.mem.at(gruHidden) }
func (c *GRUCell) Scratch() []Slot   { return c.mem.layout() }

func (c *GRUCell) Reset() {
	c.mem.zero(gruHidden, gruNext)
}

// Forward computes one step from x and hPrev and returns h'. The result
// lives in the cell's staging slot and is overwritten by the next call; it
// does not change the committed state. hPrev may alias Hidden().
func (c *GRUCell) Forward(x, hPrev []float32) ([]float32, error) {
	if err := checkVec(x, c.in); err != nil {
		return nil, fmt.Errorf("gru: input: %w", err)
	}
	if err := checkVec(hPrev, c.hidden); err != nil {
		return nil, fmt.Errorf("gru: previous hidden: %w", err)
	}
	w := &c.W
	n := c.hidden
	r := c.mem.at(gruReset)
	z := c.mem.at(gruUpdate)
	cand := c.mem.at(gruCand)
	rh := c.mem.at(gruResetHidden)
	proj := c.mem.at(gruProj)
	next := c.mem.at(gruNext)

	if err := gate(r, proj, x, hPrev, &w.WIR, &w.BIR, &w.WHR, &w.BHR, c.in, n); err != nil {
		return nil, fmt.Errorf("gru: reset gate: %w", err)
	}
	if err := tensor.SigmoidVec(r, r, n); err != nil {
		return nil, fmt.Errorf("gru: reset gate: %w", err)
	}
	if err := gate(z, proj, x, hPrev, &w.WIZ, &w.BIZ, &w.WHZ, &w.BHZ, c.in, n); err != nil {
		return nil, fmt.Errorf("gru: update gate: %w", err)
	}
	if err := tensor.SigmoidVec(z, z, n); err != nil {
		return nil, fmt.Errorf("gru: update gate: %w", err)
	}
	if err := tensor.Mul(rh, r, hPrev, n); err != nil {
		return nil, fmt.Errorf("gru: candidate: %w", err)
	}
	if err := gate(cand, proj, x, rh, &w.WIN, &w.BIN, &w.WHN, &w.BHN, c.in, n); err != nil {
		return nil, fmt.Errorf("gru: candidate: %w", err)
	}
	if err := tensor.TanhVec(cand, cand, n); err != nil {
		return nil, fmt.Errorf("gru: candidate: %w", err)
	}
	for i := range next {
		next[i] = z[i]*hPrev[i] + (1-z[i])*cand[i]
	}
	return next, nil
}

func (c *GRUCell) step(x []float32) ([]float32, error) {
	return c.Forward(x, c.mem.at(gruHidden))
}

func (c *GRUCell) commit() {
	copy(c.mem.at(gruHidden), c.mem.at(gruNext))
}

func (c *GRUCell) params() []namedMat {
	w := &c.W
	return []namedMat{
		{"W_ir", &w.WIR}, {"W_iz", &w.WIZ}, {"W_in", &w.WIN},
		{"W_hr", &w.WHR}, {"W_hz", &w.WHZ}, {"W_hn", &w.WHN},
		{"b_ir", &w.BIR}, {"b_iz", &w.BIZ}, {"b_in", &w.BIN},
		{"b_hr", &w.BHR}, {"b_hz", &w.BHZ}, {"b_hn", &w.BHN},
	}
}
