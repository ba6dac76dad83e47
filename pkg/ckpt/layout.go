package ckpt

import "fmt"

// Checkpoint layout, little-endian float32, no header:
//
//	for each layer l in order:
//	    input-side weights   [in_l × hidden] per gate
//	    hidden-side weights  [hidden × hidden] per gate
//	    input-side biases    [hidden] per gate
//	    hidden-side biases   [hidden] per gate
//	head weights [hidden × output]
//	head bias    [output]
//
// in_l is InputWidth for layer 0 and HiddenWidth above it. Gate order is
// r, z, n for GRU and i, f, g, o for LSTM.

var gateNames = map[Arch][]string{
	ArchGRU:  {"r", "z", "n"},
	ArchLSTM: {"i", "f", "g", "o"},
}

// HeadLayer is the Layer value of the linear head parameters.
const HeadLayer = -1

// Param locates one weight or bias array inside a checkpoint. Offset and
// Len count float32 elements, not bytes.
type Param struct {
	Name   string
	Layer  int
	Rows   int
	Cols   int
	Offset int
}

// Len is the element count of the array.
func (p Param) Len() int { return p.Rows * p.Cols }

// End is the element offset one past the array.
func (p Param) End() int { return p.Offset + p.Len() }

func (p Param) String() string {
	return fmt.Sprintf("%s[%d×%d]@%d", p.Name, p.Rows, p.Cols, p.Offset)
}

// LayerParamNames lists the parameter names of one recurrent layer in file
// order, e.g. W_ir, W_iz, W_in, W_hr, ... for GRU.
func LayerParamNames(a Arch) []string {
	gates := gateNames[a]
	names := make([]string, 0, 4*len(gates))
	for _, prefix := range []string{"W_i", "W_h", "b_i", "b_h"} {
		for _, g := range gates {
			names = append(names, prefix+g)
		}
	}
	return names
}

// Layout returns every parameter of dims in file order.
func Layout(d Dims) ([]Param, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	names := LayerParamNames(d.Arch)
	gates := d.Arch.Gates()
	h := d.HiddenWidth

	params := make([]Param, 0, d.NumLayers*len(names)+2)
	off := 0
	add := func(name string, layer, rows, cols int) {
		params = append(params, Param{Name: name, Layer: layer, Rows: rows, Cols: cols, Offset: off})
		off += rows * cols
	}
	for l := 0; l < d.NumLayers; l++ {
		in := d.LayerInputWidth(l)
		for i, name := range names {
			switch {
			case i < gates:
				add(name, l, in, h)
			case i < 2*gates:
				add(name, l, h, h)
			default:
				add(name, l, 1, h)
			}
		}
	}
	add("W_out", HeadLayer, h, d.OutputWidth)
	add("b_out", HeadLayer, 1, d.OutputWidth)
	return params, nil
}

// ParamCount is the number of float32 values a checkpoint for d holds.
func ParamCount(d Dims) (int, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	return int(d.paramCount()), nil
}

// ExpectedBytes is the exact file size of a checkpoint for d.
func ExpectedBytes(d Dims) (int64, error) {
	n, err := ParamCount(d)
	if err != nil {
		return 0, err
	}
	return int64(n) * 4, nil
}
