package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/ductcast/internal/scaler"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

const sample = `
model:
  name: cabin-gru
  arch: GRU
  num_layers: 2
  input_width: 3
  hidden_width: 16
  output_width: 1
checkpoint: models/gru.bin
scaler:
  kind: standard
  mean: [0, 1, 2]
  std: [1, 1, 2]
features: [a, b, c]
outputs: [duct]
log_level: debug
log_format: json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sample)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	d, err := cfg.Dims()
	if err != nil {
		t.Fatal(err)
	}
	want := ckpt.Dims{Arch: ckpt.ArchGRU, NumLayers: 2, InputWidth: 3, HiddenWidth: 16, OutputWidth: 1}
	if d != want {
		t.Fatalf("dims = %+v", d)
	}
	if cfg.Checkpoint != filepath.Join(filepath.Dir(path), "models", "gru.bin") {
		t.Fatalf("checkpoint not resolved against config dir: %s", cfg.Checkpoint)
	}
	spec := cfg.ScalerSpec()
	if spec.Kind != scaler.KindStandard || len(spec.Std) != 3 || spec.Std[2] != 2 {
		t.Fatalf("scaler = %+v", spec)
	}
	if cfg.NoMmap != nil {
		t.Fatal("unset bool must stay nil")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	body := `
model:
  arch: transformer
  hidden_width: 0
  input_width: 2
features: [a, b, c]
scaler:
  kind: robust
log_format: xml
`
	_, err := LoadFile(writeConfig(t, body))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"model.arch", "hidden_width", "features lists 3", "scaler.kind", "log_format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
	if !errors.Is(err, ckpt.ErrUnknownArch) {
		t.Errorf("arch error not wrapped: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Checkpoint != "" || cfg.Model.NumLayers != nil {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadFile must report a missing file")
	}
}

func TestDimsRequiresEveryField(t *testing.T) {
	t.Parallel()

	two := 2
	cfg := Config{Model: Model{Arch: "lstm", NumLayers: &two}}
	if _, err := cfg.Dims(); err == nil {
		t.Fatal("partial model section must fail")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	d := ckpt.Dims{Arch: ckpt.ArchLSTM, NumLayers: 1, InputWidth: 15, HiddenWidth: 32, OutputWidth: 4}
	lo, hi := float32(-1), float32(1)
	cfg := Config{
		Model:      FromDims("cabin", d),
		Checkpoint: "/abs/lstm.bin",
		Scaler:     Scaler{Kind: "minmax", Min: make([]float32, 15), Max: make([]float32, 15), RangeMin: &lo, RangeMax: &hi},
	}
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	gd, err := got.Dims()
	if err != nil || gd != d {
		t.Fatalf("dims %+v err %v", gd, err)
	}
	if s := got.ScalerSpec(); s.RangeMin != -1 || s.RangeMax != 1 {
		t.Fatalf("range = [%v, %v]", s.RangeMin, s.RangeMax)
	}
	if got.Checkpoint != "/abs/lstm.bin" {
		t.Fatalf("absolute checkpoint rewritten: %s", got.Checkpoint)
	}
}

func TestPathHonoursEnv(t *testing.T) {
	t.Setenv(EnvPath, "/etc/ductcast.yaml")
	if got := Path(); got != "/etc/ductcast.yaml" {
		t.Fatalf("Path() = %s", got)
	}
}
