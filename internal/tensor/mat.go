package tensor

import (
	"errors"
	"math/rand"
)

// Backing owns memory that borrowed matrices point into, typically a
// read-only mapped checkpoint. Retain must fail once the backing is closed.
type Backing interface {
	Retain() error
	Release()
}

// Mat represents a dense row-major matrix of float32 values. Vectors are
// 1×C matrices.
//
// A Mat either owns Data (allocated and zeroed by NewMat) or borrows it from
// a Backing (Borrow). Borrowed data is read-only and only valid while the
// backing is alive; Release hands the reference back instead of dropping
// memory the Mat does not own.
type Mat struct {
	R, C int
	Data []float32

	owner Backing
}

var errDataMismatch = errors.New("tensor: data length mismatch")

// NewMat allocates a zeroed, owned matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// NewMatFromData wraps data as an owned matrix. The caller gives up data.
func NewMatFromData(r, c int, data []float32) (Mat, error) {
	if r < 0 || c < 0 || r*c != len(data) {
		return Mat{}, errDataMismatch
	}
	return Mat{R: r, C: c, Data: data}, nil
}

// Borrow creates a non-owning view of data, which must lie inside b. The
// backing is retained until Release is called.
func Borrow(b Backing, data []float32, r, c int) (Mat, error) {
	if b == nil || data == nil {
		return Mat{}, NullPointer
	}
	if r < 0 || c < 0 || r*c != len(data) {
		return Mat{}, errDataMismatch
	}
	if err := b.Retain(); err != nil {
		return Mat{}, err
	}
	// Cap the view so an append can never scribble past the region.
	return Mat{R: r, C: c, Data: data[:len(data):len(data)], owner: b}, nil
}

// Borrowed reports whether m is a view into someone else's memory.
func (m *Mat) Borrowed() bool {
	return m.owner != nil
}

// Len returns the element count.
func (m *Mat) Len() int {
	return m.R * m.C
}

// Row returns a view of the i-th row.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.C
	return m.Data[start : start+m.C]
}

// Release tears the matrix down. Owned data is dropped for the collector;
// borrowed data returns its reference to the backing. Release is idempotent.
func (m *Mat) Release() {
	if m.owner != nil {
		m.owner.Release()
		m.owner = nil
	}
	m.Data = nil
}

// FillRand fills the matrix with reproducible pseudo-random values in
// roughly (-scale/2, scale/2). Only owned matrices can be filled.
func FillRand(m *Mat, seed int64, scale float32) {
	if m.owner != nil {
		panic("FillRand on borrowed matrix")
	}
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * scale
	}
}
