// Package engine is the load/forward entrypoint: it maps a checkpoint, binds
// a model onto it and hands both back bundled in one Handle so the mapping
// cannot be released while the model still reads from it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samcharles93/ductcast/internal/logger"
	"github.com/samcharles93/ductcast/internal/rnn"
	"github.com/samcharles93/ductcast/internal/scaler"
	"github.com/samcharles93/ductcast/pkg/ckpt"
)

type Loader struct {
	// Name labels the model in logs and metadata; defaults to the file name.
	Name   string
	Scaler scaler.Spec
	// NoMmap reads the checkpoint into memory instead of mapping it.
	NoMmap bool
	// IgnoreMetadata skips the <checkpoint>.json sidecar check.
	IgnoreMetadata bool
}

// Handle is a loaded model together with the region its weights borrow
// from. A Handle is not safe for concurrent Forward calls.
type Handle struct {
	Name     string
	Path     string
	Metadata *ckpt.Metadata

	model  *rnn.Model
	scaler scaler.Scaler
	region *ckpt.Region
	shared bool
	closed bool
}

// Info summarises a handle for display.
type Info struct {
	Name          string `json:"name,omitempty"`
	Path          string `json:"path,omitempty"`
	Arch          string `json:"arch"`
	NumLayers     int    `json:"num_layers"`
	InputWidth    int    `json:"input_width"`
	HiddenWidth   int    `json:"hidden_width"`
	OutputWidth   int    `json:"output_width"`
	NumParams     int    `json:"num_params"`
	Mapped        bool   `json:"mapped"`
	Shared        bool   `json:"shared"`
	Scaler        string `json:"scaler"`
	ScratchFloats int    `json:"scratch_floats"`
}

// Load opens the checkpoint at path, checks it against d and binds a model.
func (l Loader) Load(ctx context.Context, d ckpt.Dims, path string) (*Handle, error) {
	log := logger.FromContext(ctx)
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("checkpoint path is required")
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("model dims: %w", err)
	}

	var md *ckpt.Metadata
	if !l.IgnoreMetadata {
		var err error
		md, err = ckpt.ReadMetadata(ckpt.MetadataPath(path))
		if err != nil {
			return nil, err
		}
		if err := md.Check(d); err != nil {
			return nil, fmt.Errorf("metadata %s: %w", ckpt.MetadataPath(path), err)
		}
	}

	region, err := ckpt.OpenWith(path, ckpt.OpenOptions{NoMmap: l.NoMmap})
	if err != nil {
		return nil, err
	}
	h, err := l.bind(region, d)
	if err != nil {
		_ = region.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	h.Path = path
	h.Metadata = md
	h.Name = l.Name
	if h.Name == "" && md != nil {
		h.Name = md.ModelName
	}
	if h.Name == "" {
		h.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	log.Info("model loaded",
		"name", h.Name,
		"path", path,
		"dims", d.String(),
		"params", region.Len(),
		"mapped", region.Mapped(),
		"scaler", h.scaler.Kind(),
	)
	if md != nil {
		log.Debug("checkpoint metadata", "model_name", md.ModelName, "architecture", md.Architecture)
	}
	return h, nil
}

// Share binds another model onto region. The handle does not own region:
// closing it releases the model's views but leaves the mapping alone, and
// region.Close fails until every sharing handle is closed.
func (l Loader) Share(region *ckpt.Region, d ckpt.Dims) (*Handle, error) {
	if region == nil {
		return nil, errors.New("engine: nil region")
	}
	h, err := l.bind(region, d)
	if err != nil {
		return nil, err
	}
	h.shared = true
	h.Name = l.Name
	return h, nil
}

func (l Loader) bind(region *ckpt.Region, d ckpt.Dims) (*Handle, error) {
	sc, err := scaler.FromSpec(l.Scaler, d.InputWidth)
	if err != nil {
		return nil, err
	}
	m, err := rnn.Bind(region, d, sc)
	if err != nil {
		return nil, err
	}
	return &Handle{model: m, scaler: sc, region: region}, nil
}

// Forward runs one step; see rnn.Model.Forward.
func (h *Handle) Forward(out, in []float32) error {
	return h.model.Forward(out, in)
}

// Predict is Forward into a fresh output slice.
func (h *Handle) Predict(in []float32) ([]float32, error) {
	out := make([]float32, h.model.Dims().OutputWidth)
	if err := h.model.Forward(out, in); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset zeroes the recurrent state.
func (h *Handle) Reset() { h.model.Reset() }

func (h *Handle) Dims() ckpt.Dims       { return h.model.Dims() }
func (h *Handle) Region() *ckpt.Region  { return h.region }
func (h *Handle) Model() *rnn.Model     { return h.model }
func (h *Handle) Scaler() scaler.Scaler { return h.scaler }

func (h *Handle) Info() Info {
	d := h.model.Dims()
	info := Info{
		Name:          h.Name,
		Path:          h.Path,
		Arch:          d.Arch.String(),
		NumLayers:     d.NumLayers,
		InputWidth:    d.InputWidth,
		HiddenWidth:   d.HiddenWidth,
		OutputWidth:   d.OutputWidth,
		NumParams:     h.region.Len(),
		Mapped:        h.region.Mapped(),
		Shared:        h.shared,
		Scaler:        h.scaler.Kind(),
		ScratchFloats: h.model.ScratchFloats(),
	}
	return info
}

// Close tears the model down first, then unmaps the region unless it is
// shared. If sharing handles are still open it returns ckpt.ErrRegionInUse
// and the region is unmapped when the last of them closes. Close is
// idempotent.
func (h *Handle) Close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	if err := h.model.Close(); err != nil {
		return err
	}
	if h.shared {
		return nil
	}
	return h.region.Close()
}
