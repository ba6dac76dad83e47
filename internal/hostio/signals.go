// Package hostio is the boundary to the vehicle host: it orders named sensor
// signals into the model's input vector, reads recorded samples, and hands
// predictions to a Sink. The inference core never calls into this package.
package hostio

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultFeatures are the climate-control sensor signals the reference
// models were trained on, in input-vector order.
var DefaultFeatures = Order{
	"DefMotVolFb",
	"BlowerPwmSetVal",
	"AirDisMotVolFb",
	"AirIntakeMotVolFb",
	"AM_VolFb_Right",
	"AM_VolFb_Left",
	"HeatCoreInWatTemp",
	"SolarLeft",
	"SolarRight",
	"EvaporatorTemp",
	"CorrectedExterTemp",
	"AcPumpSpd",
	"BatPmpActSpdRatio",
	"AC_CDV1Pos",
	"AmbTempFildForAirCon",
}

// DefaultOutputs are the predicted duct temperatures, in output order.
var DefaultOutputs = Order{
	"DuctTempFootRight",
	"DuctTempFaceRight",
	"DuctTempFootLeft",
	"DuctTempFaceLeft",
}

var (
	ErrMissingSignal   = errors.New("hostio: missing signal")
	ErrDuplicateSignal = errors.New("hostio: duplicate signal")
)

// Order names the elements of a vector.
type Order []string

// Validate rejects empty and repeated names.
func (o Order) Validate() error {
	seen := make(map[string]struct{}, len(o))
	for i, name := range o {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("hostio: signal %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSignal, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Index returns the position of name, or -1.
func (o Order) Index(name string) int {
	for i, n := range o {
		if n == name {
			return i
		}
	}
	return -1
}

// Vector fills dst[i] with values[o[i]]. Every name must be present; extra
// values are ignored.
func (o Order) Vector(dst []float32, values map[string]float32) error {
	if len(dst) < len(o) {
		return fmt.Errorf("hostio: vector has %d slots, need %d", len(dst), len(o))
	}
	for i, name := range o {
		v, ok := values[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSignal, name)
		}
		dst[i] = v
	}
	return nil
}

// Named pairs each element of vec with its name.
func (o Order) Named(vec []float32) map[string]float32 {
	out := make(map[string]float32, len(o))
	for i, name := range o {
		if i < len(vec) {
			out[name] = vec[i]
		}
	}
	return out
}

// Generic returns feature_0 .. feature_{n-1}, used when a model has no
// configured names.
func Generic(prefix string, n int) Order {
	o := make(Order, n)
	for i := range o {
		o[i] = fmt.Sprintf("%s_%d", prefix, i)
	}
	return o
}
