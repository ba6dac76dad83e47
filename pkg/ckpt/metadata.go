package ckpt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-json"
)

// Metadata is the JSON sidecar the training exporter writes next to a
// checkpoint (<checkpoint>.json). The binary file itself carries no header,
// so the sidecar is the only place dims can be cross-checked.
type Metadata struct {
	ModelName    string           `json:"model_name,omitempty"`
	Architecture string           `json:"model_architecture,omitempty"`
	NumParams    int              `json:"num_params"`
	Arch         string           `json:"arch,omitempty"`
	NumLayers    int              `json:"num_layers,omitempty"`
	InputWidth   int              `json:"input_width,omitempty"`
	HiddenWidth  int              `json:"hidden_width,omitempty"`
	OutputWidth  int              `json:"output_width,omitempty"`
	Shapes       map[string][]int `json:"shapes,omitempty"`
}

// MetadataPath is where the sidecar for a checkpoint lives.
func MetadataPath(checkpoint string) string {
	return checkpoint + ".json"
}

// NewMetadata describes a checkpoint laid out for d.
func NewMetadata(name string, d Dims) (Metadata, error) {
	params, err := Layout(d)
	if err != nil {
		return Metadata{}, err
	}
	n, _ := ParamCount(d)
	shapes := make(map[string][]int, len(params))
	for _, p := range params {
		key := p.Name
		if p.Layer != HeadLayer {
			key = fmt.Sprintf("l%d.%s", p.Layer, p.Name)
		}
		shapes[key] = []int{p.Rows, p.Cols}
	}
	return Metadata{
		ModelName:   name,
		NumParams:   n,
		Arch:        d.Arch.String(),
		NumLayers:   d.NumLayers,
		InputWidth:  d.InputWidth,
		HiddenWidth: d.HiddenWidth,
		OutputWidth: d.OutputWidth,
		Shapes:      shapes,
	}, nil
}

// ReadMetadata loads a sidecar. A missing sidecar returns (nil, nil).
func ReadMetadata(path string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var md Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("parse checkpoint metadata %s: %w", path, err)
	}
	return &md, nil
}

// WriteMetadata stores md as indented JSON.
func WriteMetadata(path string, md Metadata) error {
	raw, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// Check reports whether the sidecar agrees with d. Fields the exporter left
// empty are not compared.
func (md *Metadata) Check(d Dims) error {
	if md == nil {
		return nil
	}
	want, err := ParamCount(d)
	if err != nil {
		return err
	}
	if md.NumParams != 0 && md.NumParams != want {
		return fmt.Errorf("%w: metadata num_params=%d, %s needs %d", ErrSizeMismatch, md.NumParams, d, want)
	}
	if md.Arch != "" {
		a, err := ParseArch(md.Arch)
		if err != nil {
			return err
		}
		if a != d.Arch {
			return fmt.Errorf("%w: metadata arch %s, configured %s", ErrSizeMismatch, a, d.Arch)
		}
	}
	for _, f := range []struct {
		name     string
		got, cfg int
	}{
		{"num_layers", md.NumLayers, d.NumLayers},
		{"input_width", md.InputWidth, d.InputWidth},
		{"hidden_width", md.HiddenWidth, d.HiddenWidth},
		{"output_width", md.OutputWidth, d.OutputWidth},
	} {
		if f.got != 0 && f.got != f.cfg {
			return fmt.Errorf("%w: metadata %s=%d, configured %d", ErrSizeMismatch, f.name, f.got, f.cfg)
		}
	}
	return nil
}
