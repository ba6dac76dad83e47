// Package scaler holds the per-feature preprocessors applied to a raw
// sensor vector before it enters the recurrent stack.
package scaler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samcharles93/ductcast/internal/tensor"
)

// Scaler maps a raw feature vector to the model's input space. dst and src
// have Width() elements and may alias.
type Scaler interface {
	Apply(dst, src []float32) error
	Width() int
	Kind() string
}

var ErrUnknownKind = errors.New("scaler: unknown kind")

// Standard computes (x - mean) / std per feature.
type Standard struct {
	Mean []float32
	Std  []float32
}

// NewStandard validates the parameters once so Apply can only fail on a
// width mismatch.
func NewStandard(mean, std []float32) (*Standard, error) {
	if len(mean) != len(std) {
		return nil, fmt.Errorf("scaler: mean has %d values, std %d: %w", len(mean), len(std), tensor.InvalidDimension)
	}
	if err := tensor.CheckDim(len(mean)); err != nil {
		return nil, fmt.Errorf("scaler: width %d: %w", len(mean), err)
	}
	for i, s := range std {
		if s == 0 {
			return nil, fmt.Errorf("scaler: std[%d] is zero: %w", i, tensor.OverflowRisk)
		}
	}
	return &Standard{Mean: mean, Std: std}, nil
}

func (s *Standard) Apply(dst, src []float32) error {
	if len(src) != len(s.Mean) {
		return tensor.InvalidDimension
	}
	return tensor.StandardScaler(dst, src, len(s.Mean), s.Mean, s.Std)
}

func (s *Standard) Width() int   { return len(s.Mean) }
func (s *Standard) Kind() string { return KindStandard }

// MinMax rescales each feature from [Min[i], Max[i]] into [Lo, Hi].
type MinMax struct {
	Min, Max []float32
	Lo, Hi   float32
}

func NewMinMax(featMin, featMax []float32, lo, hi float32) (*MinMax, error) {
	if len(featMin) != len(featMax) {
		return nil, fmt.Errorf("scaler: min has %d values, max %d: %w", len(featMin), len(featMax), tensor.InvalidDimension)
	}
	if err := tensor.CheckDim(len(featMin)); err != nil {
		return nil, fmt.Errorf("scaler: width %d: %w", len(featMin), err)
	}
	if !(hi > lo) {
		return nil, fmt.Errorf("scaler: range [%g, %g]: %w", lo, hi, tensor.InvalidRange)
	}
	for i := range featMin {
		if featMax[i] == featMin[i] {
			return nil, fmt.Errorf("scaler: feature %d has zero span: %w", i, tensor.OverflowRisk)
		}
	}
	return &MinMax{Min: featMin, Max: featMax, Lo: lo, Hi: hi}, nil
}

func (m *MinMax) Apply(dst, src []float32) error {
	if len(src) != len(m.Min) {
		return tensor.InvalidDimension
	}
	return tensor.MinMaxScaler(dst, src, len(m.Min), m.Min, m.Max, m.Lo, m.Hi)
}

func (m *MinMax) Width() int   { return len(m.Min) }
func (m *MinMax) Kind() string { return KindMinMax }

// Identity copies its input. It exists so a handle always has a scaler.
type Identity struct {
	N int
}

func (id Identity) Apply(dst, src []float32) error {
	if dst == nil || src == nil {
		return tensor.NullPointer
	}
	if len(src) != id.N || len(dst) < id.N {
		return tensor.InvalidDimension
	}
	copy(dst, src)
	return nil
}

func (id Identity) Width() int   { return id.N }
func (id Identity) Kind() string { return KindNone }

const (
	KindNone     = "none"
	KindStandard = "standard"
	KindMinMax   = "minmax"
)

// Spec is the declarative form of a scaler, as read from configuration.
type Spec struct {
	Kind     string
	Mean     []float32
	Std      []float32
	Min      []float32
	Max      []float32
	RangeMin float32
	RangeMax float32
}

// FromSpec builds the scaler s describes for a model of the given input
// width. An empty kind means no scaling.
func FromSpec(s Spec, width int) (Scaler, error) {
	var (
		sc  Scaler
		err error
	)
	switch strings.ToLower(s.Kind) {
	case "", KindNone:
		sc = Identity{N: width}
	case KindStandard:
		sc, err = NewStandard(s.Mean, s.Std)
	case KindMinMax, "min_max":
		sc, err = NewMinMax(s.Min, s.Max, s.RangeMin, s.RangeMax)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if err != nil {
		return nil, err
	}
	if sc.Width() != width {
		return nil, fmt.Errorf("scaler: %s has %d features, model input is %d: %w", sc.Kind(), sc.Width(), width, tensor.InvalidDimension)
	}
	return sc, nil
}
