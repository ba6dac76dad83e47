package engine

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/samcharles93/ductcast/internal/logger"
	"github.com/samcharles93/ductcast/internal/rnn"
	"github.com/samcharles93/ductcast/internal/scaler"
	"github.com/samcharles93/ductcast/internal/tensor"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

var dims = ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 1, InputWidth: 2, HiddenWidth: 2, OutputWidth: 1}

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func writeGolden(t *testing.T, withMetadata bool) string {
	t.Helper()
	var p []float32
	for range 6 {
		p = append(p, 1, 0, 0, 1)
	}
	p = append(p, make([]float32, 12)...)
	p = append(p, 1, 1, 0)

	path := filepath.Join(t.TempDir(), "gru.bin")
	if err := ckpt.WriteFile(path, dims, p); err != nil {
		t.Fatal(err)
	}
	if withMetadata {
		md, err := ckpt.NewMetadata("golden", dims)
		if err != nil {
			t.Fatal(err)
		}
		if err := ckpt.WriteMetadata(ckpt.MetadataPath(path), md); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestLoadForwardClose(t *testing.T) {
	t.Parallel()

	for _, noMmap := range []bool{false, true} {
		path := writeGolden(t, true)
		h, err := Loader{NoMmap: noMmap}.Load(testContext(), dims, path)
		if err != nil {
			t.Fatal(err)
		}
		out, err := h.Predict([]float32{1, 0})
		if err != nil {
			t.Fatal(err)
		}
		s := 1 / (1 + math.Exp(-1))
		if want := (1 - s) * math.Tanh(1); math.Abs(float64(out[0])-want) > 1e-6 {
			t.Fatalf("noMmap=%v: got %v want %v", noMmap, out[0], want)
		}

		info := h.Info()
		if info.Name != "golden" || info.NumParams != 39 || info.Scaler != scaler.KindNone || info.Mapped == noMmap {
			t.Fatalf("info = %+v", info)
		}
		if err := h.Close(); err != nil {
			t.Fatal(err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
		if err := h.Forward(out, []float32{1, 0}); !errors.Is(err, rnn.ErrClosed) {
			t.Fatalf("forward after close: %v", err)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	ctx := testContext()
	if _, err := (Loader{}).Load(ctx, dims, filepath.Join(t.TempDir(), "missing.bin")); !errors.Is(err, ckpt.ErrFileNotFound) {
		t.Fatalf("missing file: %v", err)
	}
	if _, err := (Loader{}).Load(ctx, dims, " "); err == nil {
		t.Fatal("empty path must fail")
	}

	path := writeGolden(t, false)
	wide := dims
	wide.HiddenWidth = 3
	if _, err := (Loader{}).Load(ctx, wide, path); !errors.Is(err, ckpt.ErrSizeMismatch) {
		t.Fatalf("wrong dims: %v", err)
	}

	withMD := writeGolden(t, true)
	lstm := dims
	lstm.Arch = ckpt.ArchLSTM
	if _, err := (Loader{}).Load(ctx, lstm, withMD); !errors.Is(err, ckpt.ErrSizeMismatch) {
		t.Fatalf("metadata disagreement: %v", err)
	}

	bad := Loader{Scaler: scaler.Spec{Kind: "standard", Mean: []float32{0, 0}, Std: []float32{1, 0}}}
	if _, err := bad.Load(ctx, dims, path); !errors.Is(err, tensor.OverflowRisk) {
		t.Fatalf("bad scaler: %v", err)
	}
}

func TestLoadAppliesScaler(t *testing.T) {
	t.Parallel()

	path := writeGolden(t, false)
	l := Loader{Scaler: scaler.Spec{Kind: "standard", Mean: []float32{10, 0}, Std: []float32{2, 1}}}
	h, err := l.Load(testContext(), dims, path)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	// (12-10)/2 = 1, so this matches the unscaled golden input [1, 0].
	out, err := h.Predict([]float32{12, 0})
	if err != nil {
		t.Fatal(err)
	}
	s := 1 / (1 + math.Exp(-1))
	if want := (1 - s) * math.Tanh(1); math.Abs(float64(out[0])-want) > 1e-6 {
		t.Fatalf("got %v want %v", out[0], want)
	}
}

func TestShareRegion(t *testing.T) {
	t.Parallel()

	path := writeGolden(t, false)
	primary, err := Loader{}.Load(testContext(), dims, path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Loader{Name: "replica"}.Share(primary.Region(), dims)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := primary.Predict([]float32{1, 0})
	_, _ = primary.Predict([]float32{1, 0})
	b, _ := second.Predict([]float32{1, 0})
	if a[0] != b[0] {
		t.Fatalf("shared models disagree on first step: %v vs %v", a[0], b[0])
	}

	if err := primary.Region().Close(); !errors.Is(err, ckpt.ErrRegionInUse) {
		t.Fatalf("region close with live models: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatal(err)
	}
	if !second.Info().Shared {
		t.Fatal("shared handle not marked")
	}
	if err := primary.Close(); err != nil {
		t.Fatalf("primary close after replica: %v", err)
	}
}

func TestCloseOwnerBeforeShared(t *testing.T) {
	t.Parallel()

	path := writeGolden(t, false)
	primary, err := Loader{}.Load(testContext(), dims, path)
	if err != nil {
		t.Fatal(err)
	}
	region := primary.Region()
	second, err := Loader{Name: "replica"}.Share(region, dims)
	if err != nil {
		t.Fatal(err)
	}

	if err := primary.Close(); !errors.Is(err, ckpt.ErrRegionInUse) {
		t.Fatalf("owner close with live replica: %v", err)
	}
	if _, err := second.Predict([]float32{1, 0}); err != nil {
		t.Fatalf("replica after owner close: %v", err)
	}
	if region.Len() == 0 {
		t.Fatal("region unmapped under a live replica")
	}

	if err := second.Close(); err != nil {
		t.Fatal(err)
	}
	if region.Len() != 0 || region.Refs() != 0 {
		t.Fatalf("region still mapped after last close: len=%d refs=%d", region.Len(), region.Refs())
	}
	if err := primary.Close(); err != nil {
		t.Fatalf("repeat owner close: %v", err)
	}
}
