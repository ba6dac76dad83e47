package ckpt

import (
	"errors"
	"testing"

	"github.com/samcharles93/ductcast/internal/tensor"
)

func TestLayoutGRUOffsets(t *testing.T) {
	t.Parallel()

	d := Dims{Arch: ArchGRU, NumLayers: 2, InputWidth: 3, HiddenWidth: 2, OutputWidth: 1}
	params, err := Layout(d)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if len(params) != 2*12+2 {
		t.Fatalf("param count %d", len(params))
	}
	// Layer 0: 3 input mats of 3x2, 3 hidden mats of 2x2, 6 biases of 2.
	want0 := []Param{
		{"W_ir", 0, 3, 2, 0}, {"W_iz", 0, 3, 2, 6}, {"W_in", 0, 3, 2, 12},
		{"W_hr", 0, 2, 2, 18}, {"W_hz", 0, 2, 2, 22}, {"W_hn", 0, 2, 2, 26},
		{"b_ir", 0, 1, 2, 30}, {"b_iz", 0, 1, 2, 32}, {"b_in", 0, 1, 2, 34},
		{"b_hr", 0, 1, 2, 36}, {"b_hz", 0, 1, 2, 38}, {"b_hn", 0, 1, 2, 40},
	}
	for i, w := range want0 {
		if params[i] != w {
			t.Fatalf("param %d = %v want %v", i, params[i], w)
		}
	}
	// Layer 1 input matrices are hidden×hidden.
	if p := params[12]; p.Name != "W_ir" || p.Layer != 1 || p.Rows != 2 || p.Offset != 42 {
		t.Fatalf("layer 1 first param %v", p)
	}
	head := params[len(params)-2:]
	if head[0].Name != "W_out" || head[0].Layer != HeadLayer || head[0].Rows != 2 || head[0].Cols != 1 {
		t.Fatalf("head weight %v", head[0])
	}
	if head[1].Name != "b_out" || head[1].End() != mustCount(t, d) {
		t.Fatalf("head bias %v", head[1])
	}
}

func TestLayoutLSTMOrder(t *testing.T) {
	t.Parallel()

	names := LayerParamNames(ArchLSTM)
	want := []string{
		"W_ii", "W_if", "W_ig", "W_io", "W_hi", "W_hf", "W_hg", "W_ho",
		"b_ii", "b_if", "b_ig", "b_io", "b_hi", "b_hf", "b_hg", "b_ho",
	}
	if len(names) != len(want) {
		t.Fatalf("got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("name %d = %s want %s", i, names[i], want[i])
		}
	}
}

func TestLayoutContiguous(t *testing.T) {
	t.Parallel()

	for _, d := range []Dims{
		{Arch: ArchGRU, NumLayers: 3, InputWidth: 15, HiddenWidth: 64, OutputWidth: 4},
		{Arch: ArchLSTM, NumLayers: 3, InputWidth: 20, HiddenWidth: 64, OutputWidth: 4},
		{Arch: ArchLSTM, NumLayers: 1, InputWidth: 1, HiddenWidth: 1, OutputWidth: 1},
	} {
		params, err := Layout(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		off := 0
		for _, p := range params {
			if p.Offset != off {
				t.Fatalf("%s: %s starts at %d want %d", d, p, p.Offset, off)
			}
			off = p.End()
		}
		if n := mustCount(t, d); n != off {
			t.Fatalf("%s: ParamCount %d, layout ends at %d", d, n, off)
		}
		b, _ := ExpectedBytes(d)
		if b != int64(off)*4 {
			t.Fatalf("%s: expected bytes %d", d, b)
		}
	}
}

func TestDimsValidate(t *testing.T) {
	t.Parallel()

	ok := Dims{Arch: ArchGRU, NumLayers: 1, InputWidth: 2, HiddenWidth: 2, OutputWidth: 1}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid dims: %v", err)
	}
	bad := ok
	bad.Arch = ArchUnknown
	if err := bad.Validate(); !errors.Is(err, ErrUnknownArch) {
		t.Fatalf("arch: %v", err)
	}
	bad = ok
	bad.NumLayers = 0
	if err := bad.Validate(); !errors.Is(err, tensor.InvalidDimension) {
		t.Fatalf("layers: %v", err)
	}
	bad = ok
	bad.HiddenWidth = tensor.MaxDim + 1
	if err := bad.Validate(); !errors.Is(err, tensor.ExceedsMaxDimension) {
		t.Fatalf("hidden: %v", err)
	}
}

func TestParseArch(t *testing.T) {
	t.Parallel()

	if a, err := ParseArch(" LSTM "); err != nil || a != ArchLSTM {
		t.Fatalf("got %v %v", a, err)
	}
	if _, err := ParseArch("rnn"); !errors.Is(err, ErrUnknownArch) {
		t.Fatalf("got %v", err)
	}
}

func mustCount(t *testing.T, d Dims) int {
	t.Helper()
	n, err := ParamCount(d)
	if err != nil {
		t.Fatalf("param count: %v", err)
	}
	return n
}

func TestDimsValidateBoundsModelSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    Dims
	}{
		{"layers overflow", Dims{Arch: ArchGRU, NumLayers: 1 << 58, InputWidth: 2, HiddenWidth: 2, OutputWidth: 1}},
		{"layers above max", Dims{Arch: ArchLSTM, NumLayers: tensor.MaxDim + 1, InputWidth: 2, HiddenWidth: 2, OutputWidth: 1}},
		{"too many params", Dims{Arch: ArchLSTM, NumLayers: tensor.MaxDim, InputWidth: tensor.MaxDim, HiddenWidth: tensor.MaxDim, OutputWidth: 1}},
	}
	for _, tt := range tests {
		if err := tt.d.Validate(); !errors.Is(err, tensor.ExceedsMaxDimension) {
			t.Errorf("%s: Validate = %v", tt.name, err)
		}
		if _, err := Layout(tt.d); err == nil {
			t.Errorf("%s: Layout accepted", tt.name)
		}
		if _, err := ParamCount(tt.d); err == nil {
			t.Errorf("%s: ParamCount accepted", tt.name)
		}
	}

	largest := Dims{Arch: ArchGRU, NumLayers: 4, InputWidth: tensor.MaxDim, HiddenWidth: tensor.MaxDim, OutputWidth: tensor.MaxDim}
	if err := largest.Validate(); err != nil {
		t.Fatalf("wide model rejected: %v", err)
	}
}
