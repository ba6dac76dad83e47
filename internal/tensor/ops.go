package tensor

import (
	"math"
)

// Every kernel validates its arguments before touching out. Once validation
// passes, a kernel that still fails (MatMul overflow) may leave out partially
// written: callers must treat out as undefined on any non-nil error.

// MatMul computes out[m,p] = a[m,n] · b[n,p] in row-major order. out is
// zeroed before accumulation. A product or running sum that leaves the
// float32 range (or turns NaN) is reported as OverflowRisk at the step where
// it happens.
func MatMul(out, a, b []float32, m, n, p int) error {
	if out == nil || a == nil || b == nil {
		return NullPointer
	}
	if !validSize(m) || !validSize(n) || !validSize(p) {
		return InvalidDimension
	}
	if len(a) < m*n || len(b) < n*p || len(out) < m*p {
		return InvalidDimension
	}
	for i := 0; i < m; i++ {
		row := a[i*n : i*n+n]
		for j := 0; j < p; j++ {
			var acc float32
			for k, av := range row {
				prod := av * b[k*p+j]
				if nonFinite(prod) {
					return OverflowRisk
				}
				acc += prod
				if nonFinite(acc) {
					return OverflowRisk
				}
			}
			out[i*p+j] = acc
		}
	}
	return nil
}

// Add computes out[i] = a[i] + b[i].
func Add(out, a, b []float32, size int) error {
	if err := checkBinary(out, a, b, size); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		out[i] = a[i] + b[i]
	}
	return nil
}

// Mul computes the Hadamard product out[i] = a[i] * b[i].
func Mul(out, a, b []float32, size int) error {
	if err := checkBinary(out, a, b, size); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		out[i] = a[i] * b[i]
	}
	return nil
}

// SigmoidVec applies Sigmoid element-wise.
func SigmoidVec(out, x []float32, size int) error {
	if err := checkUnary(out, x, size); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		out[i] = Sigmoid(x[i])
	}
	return nil
}

// TanhVec applies Tanh element-wise.
func TanhVec(out, x []float32, size int) error {
	if err := checkUnary(out, x, size); err != nil {
		return err
	}
	for i := 0; i < size; i++ {
		out[i] = Tanh(x[i])
	}
	return nil
}

// RMSNorm computes out[i] = x[i] / sqrt(mean(x^2) + 1e-5).
func RMSNorm(out, x []float32, size int) error {
	if err := checkUnary(out, x, size); err != nil {
		return err
	}
	var sum float64
	for _, v := range x[:size] {
		sum += float64(v) * float64(v)
	}
	scale := 1.0 / math.Sqrt(sum/float64(size)+rmsEps)
	for i := 0; i < size; i++ {
		out[i] = float32(float64(x[i]) * scale)
	}
	return nil
}

const rmsEps = 1e-5

// Softmax writes the normalised exponentials of x to out. The maximum is
// subtracted before exponentiating so large logits cannot overflow.
func Softmax(out, x []float32, size int) error {
	if err := checkUnary(out, x, size); err != nil {
		return err
	}
	maxv := x[0]
	for _, v := range x[1:size] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for i := 0; i < size; i++ {
		e := math.Exp(float64(x[i] - maxv))
		out[i] = float32(e)
		sum += e
	}
	inv := float32(1.0 / sum)
	for i := 0; i < size; i++ {
		out[i] *= inv
	}
	return nil
}

// StandardScaler computes out[i] = (in[i]-mean[i]) / std[i]. A zero std is
// rejected as OverflowRisk before anything is written.
func StandardScaler(out, in []float32, size int, mean, std []float32) error {
	if out == nil || in == nil || mean == nil || std == nil {
		return NullPointer
	}
	if !validSize(size) || len(out) < size || len(in) < size || len(mean) < size || len(std) < size {
		return InvalidDimension
	}
	for _, s := range std[:size] {
		if s == 0 {
			return OverflowRisk
		}
	}
	for i := 0; i < size; i++ {
		out[i] = (in[i] - mean[i]) / std[i]
	}
	return nil
}

// MinMaxScaler rescales each feature from [featMin[i], featMax[i]] into
// [lo, hi]. hi must exceed lo (InvalidRange) and no feature may have an
// empty range (OverflowRisk).
func MinMaxScaler(out, in []float32, size int, featMin, featMax []float32, lo, hi float32) error {
	if out == nil || in == nil || featMin == nil || featMax == nil {
		return NullPointer
	}
	if !validSize(size) || len(out) < size || len(in) < size || len(featMin) < size || len(featMax) < size {
		return InvalidDimension
	}
	if !(hi > lo) {
		return InvalidRange
	}
	for i := 0; i < size; i++ {
		if featMax[i] == featMin[i] {
			return OverflowRisk
		}
	}
	span := hi - lo
	for i := 0; i < size; i++ {
		out[i] = (in[i]-featMin[i])/(featMax[i]-featMin[i])*span + lo
	}
	return nil
}

// CheckFinite reports OverflowRisk if any of x[:size] is infinite or NaN.
func CheckFinite(x []float32, size int) error {
	if x == nil {
		return NullPointer
	}
	if !validSize(size) || len(x) < size {
		return InvalidDimension
	}
	for _, v := range x[:size] {
		if nonFinite(v) {
			return OverflowRisk
		}
	}
	return nil
}

// Sigmoid computes the logistic sigmoid activation.
func Sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(float64(-x))))
}

// Tanh computes the hyperbolic tangent.
func Tanh(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

func checkUnary(out, x []float32, size int) error {
	if out == nil || x == nil {
		return NullPointer
	}
	if !validSize(size) || len(out) < size || len(x) < size {
		return InvalidDimension
	}
	return nil
}

func checkBinary(out, a, b []float32, size int) error {
	if out == nil || a == nil || b == nil {
		return NullPointer
	}
	if !validSize(size) || len(out) < size || len(a) < size || len(b) < size {
		return InvalidDimension
	}
	return nil
}

func nonFinite(v float32) bool {
	return v != v || v > math.MaxFloat32 || v < -math.MaxFloat32
}
