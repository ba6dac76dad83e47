package ckpt

import (
	"fmt"
	"strings"

	"github.com/samcharles93/ductcast/internal/tensor"
)

// Arch selects the recurrent cell variant stored in a checkpoint.
type Arch uint8

const (
	ArchUnknown Arch = iota
	ArchGRU
	ArchLSTM
)

func (a Arch) String() string {
	switch a {
	case ArchGRU:
		return "gru"
	case ArchLSTM:
		return "lstm"
	default:
		return "unknown"
	}
}

// ParseArch accepts "gru" or "lstm" in any case.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gru":
		return ArchGRU, nil
	case "lstm":
		return ArchLSTM, nil
	default:
		return ArchUnknown, fmt.Errorf("%w: %q", ErrUnknownArch, s)
	}
}

// Gates is the number of gate blocks per layer: one input-side and one
// hidden-side matrix (and bias) per gate.
func (a Arch) Gates() int {
	switch a {
	case ArchGRU:
		return 3
	case ArchLSTM:
		return 4
	default:
		return 0
	}
}

// Dims is the shape contract a checkpoint was exported with. Nothing in the
// file records it, so the caller must supply the exact values.
type Dims struct {
	Arch        Arch
	NumLayers   int
	InputWidth  int
	HiddenWidth int
	OutputWidth int
}

// MaxParams bounds the parameter count of one model: 1 GiB of float32.
const MaxParams = 1 << 28

// Validate rejects unknown architectures, layer counts and widths outside
// [1, MaxDim], and shapes whose parameter count exceeds MaxParams.
func (d Dims) Validate() error {
	if d.Arch.Gates() == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownArch, d.Arch)
	}
	if err := tensor.CheckDim(d.NumLayers); err != nil {
		return fmt.Errorf("num_layers %d: %w", d.NumLayers, err)
	}
	for _, w := range []struct {
		name string
		v    int
	}{
		{"input_width", d.InputWidth},
		{"hidden_width", d.HiddenWidth},
		{"output_width", d.OutputWidth},
	} {
		if err := tensor.CheckDim(w.v); err != nil {
			return fmt.Errorf("%s %d: %w", w.name, w.v, err)
		}
	}
	if n := d.paramCount(); n > MaxParams {
		return fmt.Errorf("%s needs %d parameters, limit is %d: %w", d, n, MaxParams, tensor.ExceedsMaxDimension)
	}
	return nil
}

// paramCount assumes every field is within [1, MaxDim], which keeps the
// sum far inside int64.
func (d Dims) paramCount() int64 {
	g := int64(d.Arch.Gates())
	h := int64(d.HiddenWidth)
	var n int64
	for l := 0; l < d.NumLayers; l++ {
		n += g*int64(d.LayerInputWidth(l))*h + g*h*h + 2*g*h
	}
	return n + h*int64(d.OutputWidth) + int64(d.OutputWidth)
}

// LayerInputWidth is the width fed to layer l: the external input for
// layer 0, the previous hidden state above it.
func (d Dims) LayerInputWidth(l int) int {
	if l == 0 {
		return d.InputWidth
	}
	return d.HiddenWidth
}

func (d Dims) String() string {
	return fmt.Sprintf("%s layers=%d in=%d hidden=%d out=%d",
		d.Arch, d.NumLayers, d.InputWidth, d.HiddenWidth, d.OutputWidth)
}
