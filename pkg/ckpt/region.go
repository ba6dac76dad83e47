package ckpt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"sync"
	"unsafe"
)

// Region is a read-only block of float32 parameters loaded from a
// checkpoint file. It is either a read-only memory mapping or, when mapping
// is unavailable, an owned copy of the file.
//
// Models built on a Region hold borrowed views into it. Every view retains
// the region and Close refuses to unmap while any are outstanding, so a
// region can never be released underneath a live model. A Region may be
// shared by several models at once; its contents are never written.
type Region struct {
	mu      sync.Mutex
	data    []byte
	floats  []float32
	mmapped bool
	refs    int
	closed  bool
	// closing is set by a Close that found borrowers; the last Release
	// then unmaps and parks any error in closeErr for the next Close.
	closing  bool
	closeErr error
}

// OpenOptions tunes Open.
type OpenOptions struct {
	// NoMmap forces the read-into-buffer path.
	NoMmap bool
}

// Open maps path read-only. If mmap is unavailable it falls back to reading
// the whole file into memory.
func Open(path string) (*Region, error) {
	return OpenWith(path, OpenOptions{})
}

// OpenWith is Open with explicit options.
func OpenWith(path string, opts OpenOptions) (*Region, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrMapFailed, path, err)
	}
	size, err := checkSize(stat.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if !opts.NoMmap {
		data, err := mmapFile(f, size)
		if err == nil {
			return newRegion(data, true), nil
		}
	}

	data, err := readAllAt(f, size)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMapFailed, path, err)
	}
	return newRegion(data, false), nil
}

// OpenReaderAt loads a checkpoint from a random-access reader without mmap.
func OpenReaderAt(r io.ReaderAt, size int64) (*Region, error) {
	n, err := checkSize(size)
	if err != nil {
		return nil, err
	}
	data, err := readAllAt(r, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapFailed, err)
	}
	return newRegion(data, false), nil
}

// FromFloats wraps params as an in-memory region, mostly for tests and for
// callers that assemble parameters themselves.
func FromFloats(params []float32) *Region {
	return &Region{floats: params[:len(params):len(params)]}
}

func checkSize(size int64) (int, error) {
	if size <= 0 || size%4 != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a whole number of float32 values", ErrSizeMismatch, size)
	}
	if size > int64(int(^uint(0)>>1)) {
		return 0, fmt.Errorf("%w: %d bytes too large to index", ErrSizeMismatch, size)
	}
	return int(size), nil
}

func newRegion(data []byte, mmapped bool) *Region {
	return &Region{data: data, floats: floatView(data), mmapped: mmapped}
}

// floatView reinterprets data as float32 without copying on little-endian
// hosts. Mapped memory is page aligned and a heap block whose size is a
// multiple of 4 is at least 4-byte aligned, so the cast is safe either way.
func floatView(data []byte) []float32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	if hostLittleEndian {
		return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(data))), n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

var hostLittleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// Len is the number of float32 values in the region.
func (r *Region) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.floats)
}

// Mapped reports whether the region is a live memory mapping.
func (r *Region) Mapped() bool {
	return r.mmapped
}

// Floats returns the whole region. The slice is read-only and must not be
// used after Close.
func (r *Region) Floats() []float32 {
	return r.floats
}

// Slice returns the n floats starting at off, or ErrSizeMismatch when that
// range is not inside the region.
func (r *Region) Slice(off, n int) ([]float32, error) {
	if off < 0 || n < 0 || off > len(r.floats)-n {
		return nil, fmt.Errorf("%w: range [%d,%d) outside %d floats", ErrSizeMismatch, off, off+n, len(r.floats))
	}
	return r.floats[off : off+n : off+n], nil
}

// Retain records a borrower. It fails once the region is closed or a close
// is pending.
func (r *Region) Retain() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.closing {
		return ErrRegionClosed
	}
	r.refs++
	return nil
}

// Release drops a borrower recorded by Retain.
func (r *Region) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs > 0 {
		r.refs--
	}
	if r.refs == 0 && r.closing && !r.closed {
		r.closeErr = r.unmapLocked()
	}
}

// Refs is the number of outstanding borrowers.
func (r *Region) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// Close unmaps the region. While borrowers still hold views it returns
// ErrRegionInUse and leaves the close pending: the last Release unmaps, and
// the next Close reports any unmap error. Closing a closed region is a no-op.
func (r *Region) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		err := r.closeErr
		r.closeErr = nil
		return err
	}
	if r.refs > 0 {
		r.closing = true
		return fmt.Errorf("%w: %d views outstanding", ErrRegionInUse, r.refs)
	}
	return r.unmapLocked()
}

func (r *Region) unmapLocked() error {
	r.closed = true
	r.floats = nil
	data := r.data
	r.data = nil
	if r.mmapped && data != nil {
		return munmap(data)
	}
	return nil
}
