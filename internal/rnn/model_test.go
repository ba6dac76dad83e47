package rnn

import (
	"errors"
	"math"
	"testing"

	"github.com/samcharles93/ductcast/internal/tensor"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

var goldenDims = ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 1, InputWidth: 2, HiddenWidth: 2, OutputWidth: 1}

// goldenParams is a 1-layer GRU with every gate matrix the identity, zero
// biases and a head that sums the hidden vector.
func goldenParams() []float32 {
	eye := []float32{1, 0, 0, 1}
	var p []float32
	for range 6 {
		p = append(p, eye...)
	}
	p = append(p, make([]float32, 12)...)
	p = append(p, 1, 1, 0)
	return p
}

func goldenOutput() float64 {
	s := 1 / (1 + math.Exp(-1))
	return (1 - s) * math.Tanh(1)
}

func TestModelGoldenGRU(t *testing.T) {
	t.Parallel()

	region := ckpt.FromFloats(goldenParams())
	m, err := Bind(region, goldenDims, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	out := make([]float32, 1)
	if err := m.Forward(out, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if got, want := float64(out[0]), goldenOutput(); math.Abs(got-want) > 1e-6 {
		t.Fatalf("output = %.7f, want %.7f", got, want)
	}

	first := out[0]
	if err := m.Forward(out, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if out[0] == first {
		t.Fatal("hidden state must persist across calls")
	}

	m.Reset()
	if err := m.Forward(out, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if out[0] != first {
		t.Fatalf("after reset got %v, want %v", out[0], first)
	}
}

func TestOwnedAndBoundModelsAgree(t *testing.T) {
	t.Parallel()

	d := ckpt.Dims{Arch: ckpt.ArchLSTM, NumLayers: 2, InputWidth: 3, HiddenWidth: 4, OutputWidth: 2}
	owned, err := New(d, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := owned.Randomize(7, 0.5); err != nil {
		t.Fatal(err)
	}
	flat := owned.Export()
	if want, _ := ckpt.ParamCount(d); len(flat) != want {
		t.Fatalf("export has %d floats, want %d", len(flat), want)
	}
	bound, err := Bind(ckpt.FromFloats(flat), d, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bound.Borrowed() || owned.Borrowed() {
		t.Fatal("ownership tags wrong")
	}
	if err := bound.Randomize(1, 1); err == nil {
		t.Fatal("randomize must refuse borrowed weights")
	}

	a, b := make([]float32, 2), make([]float32, 2)
	for step := range 5 {
		x := []float32{float32(step), 0.5, -1}
		if err := owned.Forward(a, x); err != nil {
			t.Fatal(err)
		}
		if err := bound.Forward(b, x); err != nil {
			t.Fatal(err)
		}
		if a[0] != b[0] || a[1] != b[1] {
			t.Fatalf("step %d: owned %v bound %v", step, a, b)
		}
	}
}

func TestBindViewsMatchLayoutOffsets(t *testing.T) {
	t.Parallel()

	d := ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 2, InputWidth: 5, HiddenWidth: 3, OutputWidth: 2}
	n, _ := ckpt.ParamCount(d)
	flat := make([]float32, n)
	for i := range flat {
		flat[i] = float32(i)
	}
	region := ckpt.FromFloats(flat)
	m, err := Bind(region, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	layout, _ := ckpt.Layout(d)
	params := m.params()
	for i, p := range layout {
		got := params[i].m
		if !got.Borrowed() {
			t.Fatalf("%s not borrowed", p.Name)
		}
		if got.R != p.Rows || got.C != p.Cols {
			t.Fatalf("%s shape %dx%d", p, got.R, got.C)
		}
		for k, v := range got.Data {
			if v != float32(p.Offset+k) {
				t.Fatalf("%s[%d] = %v, want %v", p, k, v, p.Offset+k)
			}
		}
	}
	if cell := m.Stack().Cell(1); cell.InputWidth() != 3 {
		t.Fatalf("layer 1 input width %d, want hidden width", cell.InputWidth())
	}

	if region.Refs() != len(layout) {
		t.Fatalf("refs = %d, want %d", region.Refs(), len(layout))
	}
	if err := region.Close(); !errors.Is(err, ckpt.ErrRegionInUse) {
		t.Fatalf("close with live model: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if region.Refs() != 0 {
		t.Fatalf("refs after model close = %d", region.Refs())
	}
	if err := region.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBindRejects(t *testing.T) {
	t.Parallel()

	short := ckpt.FromFloats(goldenParams()[:38])
	if _, err := Bind(short, goldenDims, nil); !errors.Is(err, ckpt.ErrSizeMismatch) {
		t.Fatalf("short blob: %v", err)
	}
	long := ckpt.FromFloats(append(goldenParams(), 0))
	if _, err := Bind(long, goldenDims, nil); !errors.Is(err, ckpt.ErrSizeMismatch) {
		t.Fatalf("long blob: %v", err)
	}

	closed := ckpt.FromFloats(goldenParams())
	if err := closed.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Bind(closed, goldenDims, nil); err == nil {
		t.Fatal("bind on closed region must fail")
	}

	bad := goldenDims
	bad.Arch = ckpt.ArchUnknown
	if _, err := Bind(ckpt.FromFloats(goldenParams()), bad, nil); !errors.Is(err, ckpt.ErrUnknownArch) {
		t.Fatalf("unknown arch: %v", err)
	}

	huge := goldenDims
	huge.NumLayers = 1 << 58
	if _, err := Bind(ckpt.FromFloats(goldenParams()), huge, nil); !errors.Is(err, tensor.ExceedsMaxDimension) {
		t.Fatalf("huge layer count: %v", err)
	}
	if _, err := New(huge, nil); !errors.Is(err, tensor.ExceedsMaxDimension) {
		t.Fatalf("huge layer count, owned: %v", err)
	}
}

func TestFailedForwardLeavesStateAndOutput(t *testing.T) {
	t.Parallel()

	d := ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 1, InputWidth: 1, HiddenWidth: 2, OutputWidth: 1}
	m, err := New(d, nil)
	if err != nil {
		t.Fatal(err)
	}
	// h' = 0.5·h + 0.5·tanh(x) per unit; the head sums both units scaled to
	// MaxFloat32, so it overflows once the units sum past 1.
	gru := m.Stack().Cell(0).(*GRUCell)
	gru.W.WIN.Data[0], gru.W.WIN.Data[1] = 1, 1
	m.Head().W.Data[0], m.Head().W.Data[1] = math.MaxFloat32, math.MaxFloat32

	out := []float32{0}
	if err := m.Forward(out, []float32{1.5}); err != nil {
		t.Fatalf("first step: %v", err)
	}
	hidden := append([]float32(nil), gru.Hidden()...)

	out[0] = -42
	err = m.Forward(out, []float32{1.5})
	if !errors.Is(err, tensor.OverflowRisk) {
		t.Fatalf("second step: got %v, want OverflowRisk", err)
	}
	if out[0] != -42 {
		t.Fatalf("output written on failure: %v", out[0])
	}
	for i, v := range gru.Hidden() {
		if v != hidden[i] {
			t.Fatalf("hidden[%d] advanced on failure: %v -> %v", i, hidden[i], v)
		}
	}
}

type failingPre struct{}

func (failingPre) Apply(_, _ []float32) error { return tensor.OverflowRisk }

func TestModelForwardValidation(t *testing.T) {
	t.Parallel()

	m, err := New(goldenDims, nil)
	if err != nil {
		t.Fatal(err)
	}
	out := make([]float32, 1)
	if err := m.Forward(out, []float32{1}); !errors.Is(err, tensor.InvalidDimension) {
		t.Fatalf("short input: %v", err)
	}
	if err := m.Forward(nil, []float32{1, 2}); !errors.Is(err, tensor.NullPointer) {
		t.Fatalf("nil out: %v", err)
	}

	p, _ := New(goldenDims, failingPre{})
	if err := p.Forward(out, []float32{1, 2}); !errors.Is(err, tensor.OverflowRisk) {
		t.Fatalf("preprocessor error not propagated: %v", err)
	}

	m.Close()
	if err := m.Forward(out, []float32{1, 2}); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestModelForwardNoAllocs(t *testing.T) {
	for _, arch := range []ckpt.Arch{ckpt.ArchGRU, ckpt.ArchLSTM} {
		d := ckpt.Dims{Arch: arch, NumLayers: 3, InputWidth: 15, HiddenWidth: 32, OutputWidth: 4}
		m, err := New(d, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := m.Randomize(3, 0.2); err != nil {
			t.Fatal(err)
		}
		in := make([]float32, 15)
		out := make([]float32, 4)
		allocs := testing.AllocsPerRun(100, func() {
			if err := m.Forward(out, in); err != nil {
				t.Fatal(err)
			}
		})
		if allocs != 0 {
			t.Fatalf("%s forward allocates %v times per call", arch, allocs)
		}
	}
}

func TestScratchFloats(t *testing.T) {
	t.Parallel()

	d := ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 2, InputWidth: 3, HiddenWidth: 8, OutputWidth: 1}
	m, _ := New(d, nil)
	if got, want := m.ScratchFloats(), 2*7*8; got != want {
		t.Fatalf("scratch = %d, want %d", got, want)
	}
}

func BenchmarkModelForward(b *testing.B) {
	d := ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 2, InputWidth: 15, HiddenWidth: 64, OutputWidth: 4}
	m, err := New(d, nil)
	if err != nil {
		b.Fatal(err)
	}
	_ = m.Randomize(1, 0.1)
	in := make([]float32, 15)
	out := make([]float32, 4)
	b.ReportAllocs()
	for b.Loop() {
		if err := m.Forward(out, in); err != nil {
			b.Fatal(err)
		}
	}
}

func TestHeadOverflowIsRejected(t *testing.T) {
	t.Parallel()

	d := ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 1, InputWidth: 1, HiddenWidth: 1, OutputWidth: 1}
	m, err := New(d, nil)
	if err != nil {
		t.Fatal(err)
	}
	// h' = 0.5·tanh(10) ≈ 0.5, so h·W stays finite and only the bias add
	// leaves the float32 range.
	gru := m.Stack().Cell(0).(*GRUCell)
	gru.W.BIN.Data[0] = 10
	m.Head().W.Data[0] = math.MaxFloat32
	m.Head().B.Data[0] = math.MaxFloat32

	out := []float32{-42}
	err = m.Forward(out, []float32{1})
	if !errors.Is(err, tensor.OverflowRisk) {
		t.Fatalf("got %v, want OverflowRisk", err)
	}
	if out[0] != -42 {
		t.Fatalf("output written on failure: %v", out[0])
	}
	if h := gru.Hidden()[0]; h != 0 {
		t.Fatalf("hidden advanced on failure: %v", h)
	}
}

func TestLinearForward(t *testing.T) {
	t.Parallel()

	l, err := NewLinear(2, 1)
	if err != nil {
		t.Fatal(err)
	}
	copy(l.W.Data, []float32{2, 3})
	l.B.Data[0] = 1
	out := make([]float32, 1)
	if err := l.Forward(out, []float32{1, 1}); err != nil {
		t.Fatal(err)
	}
	if out[0] != 6 {
		t.Fatalf("got %v, want 6", out[0])
	}

	l.B.Data[0] = math.MaxFloat32
	l.W.Data[0], l.W.Data[1] = math.MaxFloat32/2, 0
	if err := l.Forward(out, []float32{1, 0}); !errors.Is(err, tensor.OverflowRisk) {
		t.Fatalf("overflowing bias: got %v", err)
	}
	if _, err := NewLinear(0, 1); !errors.Is(err, tensor.InvalidDimension) {
		t.Fatalf("zero width: got %v", err)
	}
}

func TestStackForwardCommitsAndResets(t *testing.T) {
	t.Parallel()

	d := ckpt.Dims{Arch: ckpt.ArchLSTM, NumLayers: 2, InputWidth: 3, HiddenWidth: 2, OutputWidth: 1}
	s, err := NewStack(d)
	if err != nil {
		t.Fatal(err)
	}
	if s.Layers() != 2 || s.Cell(0).InputWidth() != 3 || s.Cell(1).InputWidth() != 2 {
		t.Fatalf("layer widths: %d layers, in0=%d in1=%d", s.Layers(), s.Cell(0).InputWidth(), s.Cell(1).InputWidth())
	}
	lstm := s.Cell(0).(*LSTMCell)
	lstm.W.BIG.Data[0] = 1

	h, err := s.Forward([]float32{0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 2 {
		t.Fatalf("top hidden width %d", len(h))
	}
	if lstm.Hidden()[0] == 0 {
		t.Fatal("layer 0 state not committed")
	}
	s.Reset()
	for l := range s.Layers() {
		for i, v := range s.Cell(l).Hidden() {
			if v != 0 {
				t.Fatalf("layer %d hidden[%d] = %v after reset", l, i, v)
			}
		}
	}
	if _, err := s.Forward([]float32{0, 0}); !errors.Is(err, tensor.InvalidDimension) {
		t.Fatalf("short input: got %v", err)
	}
}
