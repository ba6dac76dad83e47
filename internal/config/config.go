// Package config reads the ductcast YAML configuration file
// (~/.config/ductcast/config.yaml by default).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/ductcast/internal/logger"
	"github.com/samcharles93/ductcast/internal/scaler"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

// EnvPath overrides the default config location.
const EnvPath = "DUCTCAST_CONFIG"

// Config is the whole file. Numeric fields are pointers so "not set" can be
// told apart from zero and CLI flags only lose to values the file sets.
type Config struct {
	Model      Model  `yaml:"model"`
	Checkpoint string `yaml:"checkpoint"`
	NoMmap     *bool  `yaml:"no_mmap"`
	Scaler     Scaler `yaml:"scaler"`

	// Features and Outputs name the input and output vector elements.
	Features []string `yaml:"features"`
	Outputs  []string `yaml:"outputs"`

	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	ServerAddress string `yaml:"server_address"`
}

type Model struct {
	Name        string `yaml:"name,omitempty"`
	Arch        string `yaml:"arch"`
	NumLayers   *int   `yaml:"num_layers"`
	InputWidth  *int   `yaml:"input_width"`
	HiddenWidth *int   `yaml:"hidden_width"`
	OutputWidth *int   `yaml:"output_width"`
}

type Scaler struct {
	Kind     string    `yaml:"kind"`
	Mean     []float32 `yaml:"mean,omitempty"`
	Std      []float32 `yaml:"std,omitempty"`
	Min      []float32 `yaml:"min,omitempty"`
	Max      []float32 `yaml:"max,omitempty"`
	RangeMin *float32  `yaml:"range_min,omitempty"`
	RangeMax *float32  `yaml:"range_max,omitempty"`
}

// Path is the config file location: $DUCTCAST_CONFIG, else the user config
// dir. It is empty when neither can be determined.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ductcast", "config.yaml")
}

// Load reads path if it exists. A missing file yields a zero Config.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// LoadFile reads and validates path. A relative checkpoint is resolved
// against the file's directory.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Checkpoint != "" && !filepath.IsAbs(cfg.Checkpoint) {
		cfg.Checkpoint = filepath.Join(filepath.Dir(path), cfg.Checkpoint)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every field that is set. Unset fields are left to flags.
func (c Config) Validate() error {
	var errs []error
	if c.Model.Arch != "" {
		if _, err := ckpt.ParseArch(c.Model.Arch); err != nil {
			errs = append(errs, fmt.Errorf("model.arch: %w", err))
		}
	}
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"model.num_layers", c.Model.NumLayers},
		{"model.input_width", c.Model.InputWidth},
		{"model.hidden_width", c.Model.HiddenWidth},
		{"model.output_width", c.Model.OutputWidth},
	} {
		if f.v != nil && *f.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, *f.v))
		}
	}
	if c.Model.InputWidth != nil && len(c.Features) > 0 && len(c.Features) != *c.Model.InputWidth {
		errs = append(errs, fmt.Errorf("features lists %d names, model.input_width is %d", len(c.Features), *c.Model.InputWidth))
	}
	if c.Model.OutputWidth != nil && len(c.Outputs) > 0 && len(c.Outputs) != *c.Model.OutputWidth {
		errs = append(errs, fmt.Errorf("outputs lists %d names, model.output_width is %d", len(c.Outputs), *c.Model.OutputWidth))
	}
	switch strings.ToLower(c.Scaler.Kind) {
	case "", scaler.KindNone, scaler.KindStandard, scaler.KindMinMax, "min_max":
	default:
		errs = append(errs, fmt.Errorf("scaler.kind: %w: %q", scaler.ErrUnknownKind, c.Scaler.Kind))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", logger.FormatPretty, logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format %q: want pretty, text or json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Dims converts the model section. Every field must be set.
func (c Config) Dims() (ckpt.Dims, error) {
	m := c.Model
	if m.Arch == "" || m.NumLayers == nil || m.InputWidth == nil || m.HiddenWidth == nil || m.OutputWidth == nil {
		return ckpt.Dims{}, errors.New("config: model section needs arch, num_layers, input_width, hidden_width and output_width")
	}
	arch, err := ckpt.ParseArch(m.Arch)
	if err != nil {
		return ckpt.Dims{}, err
	}
	d := ckpt.Dims{
		Arch:        arch,
		NumLayers:   *m.NumLayers,
		InputWidth:  *m.InputWidth,
		HiddenWidth: *m.HiddenWidth,
		OutputWidth: *m.OutputWidth,
	}
	return d, d.Validate()
}

// ScalerSpec converts the scaler section.
func (c Config) ScalerSpec() scaler.Spec {
	s := scaler.Spec{
		Kind: c.Scaler.Kind,
		Mean: c.Scaler.Mean,
		Std:  c.Scaler.Std,
		Min:  c.Scaler.Min,
		Max:  c.Scaler.Max,
	}
	if c.Scaler.RangeMin != nil {
		s.RangeMin = *c.Scaler.RangeMin
	}
	s.RangeMax = 1
	if c.Scaler.RangeMax != nil {
		s.RangeMax = *c.Scaler.RangeMax
	}
	return s
}

// FromDims fills the model section from d.
func FromDims(name string, d ckpt.Dims) Model {
	return Model{
		Name:        name,
		Arch:        d.Arch.String(),
		NumLayers:   &d.NumLayers,
		InputWidth:  &d.InputWidth,
		HiddenWidth: &d.HiddenWidth,
		OutputWidth: &d.OutputWidth,
	}
}
