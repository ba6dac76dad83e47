package tensor

import (
	"errors"
	"fmt"
)

// MaxDim bounds every dimension a kernel accepts.
const MaxDim = 1024

// Status is the result code of a kernel call. Every non-success Status is
// also an error, so kernels return error and callers can match a wrapped
// failure with errors.Is(err, tensor.OverflowRisk).
type Status int

const (
	Success             Status = 0
	NullPointer         Status = -1
	InvalidDimension    Status = -2
	OverflowRisk        Status = -3
	ExceedsMaxDimension Status = -4
	InvalidRange        Status = -5
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NullPointer:
		return "null_pointer"
	case InvalidDimension:
		return "invalid_dimension"
	case OverflowRisk:
		return "overflow_risk"
	case ExceedsMaxDimension:
		return "exceeds_max_dimension"
	case InvalidRange:
		return "invalid_range"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) Error() string {
	return "tensor: " + s.String()
}

// Err returns nil for Success and s otherwise.
func (s Status) Err() error {
	if s == Success {
		return nil
	}
	return s
}

// StatusOf recovers the Status carried by err. A nil error is Success; an
// error that wraps no Status reports ok=false.
func StatusOf(err error) (Status, bool) {
	if err == nil {
		return Success, true
	}
	var s Status
	if errors.As(err, &s) {
		return s, true
	}
	return 0, false
}

// CheckDim reports whether d is a usable dimension. Widths above MaxDim are
// reported as ExceedsMaxDimension so configuration errors can be told apart
// from malformed kernel calls.
func CheckDim(d int) error {
	if d <= 0 {
		return InvalidDimension
	}
	if d > MaxDim {
		return ExceedsMaxDimension
	}
	return nil
}

func validSize(size int) bool {
	return size > 0 && size <= MaxDim
}
