// Package mmap exposes read-only memory mappings of files as reference
// counted regions. Slices handed out by a region stay valid for as long as
// the region holds at least one reference.
package mmap

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/errors"
)

const (
	// ErrMappingFailure is returned when the operating system refuses to map a file.
	ErrMappingFailure = errors.Error("failed to memory map file")

	errOutOfBounds = errors.Error("range out of mapped region")
	errReleased    = errors.Error("region already released")
)

// Region is an immutable byte view shared by reference count.
// The creator owns the first reference.
type Region struct {
	data  []byte
	refs  atomic.Int64
	unmap func([]byte) error
	name  string
}

// Map maps the whole file read-only. The file may be closed once Map returns.
func Map(f *os.File) (*Region, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(ErrMappingFailure, "failed to stat file"),
			errors.Fields{
				"file":  f.Name(),
				"error": err.Error(),
			})
	}

	size := fi.Size()
	if size == 0 {
		return NewRegion(nil, nil, f.Name()), nil
	}

	if int64(int(size)) != size {
		return nil, errors.WithFields(
			errors.Wrap(ErrMappingFailure, "file too large to map"),
			errors.Fields{
				"file": f.Name(),
				"size": size,
			})
	}

	data, err := mapFile(f, int(size))
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(ErrMappingFailure, "mmap call failed"),
			errors.Fields{
				"file":  f.Name(),
				"size":  size,
				"error": err.Error(),
			})
	}

	return NewRegion(data, unmapFile, f.Name()), nil
}

// NewRegion wraps data into a region holding one reference. release, if not
// nil, is called with data when the last reference is dropped.
func NewRegion(data []byte, release func([]byte) error, name string) *Region {
	r := &Region{
		data:  data,
		unmap: release,
		name:  name,
	}
	r.refs.Store(1)

	return r
}

// Name returns the name of the mapped file.
func (r *Region) Name() string {
	return r.name
}

// Bytes returns the whole mapping. The caller must hold a reference.
func (r *Region) Bytes() []byte {
	return r.data
}

// Len returns the size of the mapping in bytes.
func (r *Region) Len() int64 {
	return int64(len(r.data))
}

// RefCount returns the number of live references.
func (r *Region) RefCount() int64 {
	return r.refs.Load()
}

// Released reports whether the last reference has been dropped.
func (r *Region) Released() bool {
	return r.refs.Load() <= 0
}

func (r *Region) Retain() {
	if r.refs.Add(1) <= 1 {
		panic("mmap: retain on released region")
	}
}

// Release drops one reference and unmaps the region when none are left.
func (r *Region) Release() error {
	n := r.refs.Add(-1)

	switch {
	case n > 0:
		return nil
	case n < 0:
		panic("mmap: too many releases")
	}

	data := r.data
	r.data = nil

	if r.unmap == nil || data == nil {
		return nil
	}

	if err := r.unmap(data); err != nil {
		return errors.WithFields(
			errors.Wrap(err, "failed to unmap region"),
			errors.Fields{
				"file": r.name,
			})
	}

	return nil
}

// Slice returns a view of length bytes starting at offset, without copying.
func (r *Region) Slice(offset, length int64) ([]byte, error) {
	if r.Released() {
		return nil, errors.WithStack(errReleased)
	}

	if offset < 0 || length < 0 || offset > r.Len() || length > r.Len()-offset {
		return nil, errors.WithFields(
			errors.WithStack(errOutOfBounds),
			errors.Fields{
				"offset": offset,
				"length": length,
				"size":   r.Len(),
			})
	}

	return r.data[offset : offset+length : offset+length], nil
}

// Buffer returns an arrow buffer aliasing the given range. The buffer owns a
// reference to the region which is dropped once the buffer is released.
func (r *Region) Buffer(offset, length int64) (*memory.Buffer, error) {
	b, err := r.Slice(offset, length)
	if err != nil {
		return nil, err
	}

	r.Retain()

	return memory.NewBufferWithAllocator(b, regionAllocator{region: r}), nil
}

// Contains reports whether the whole of b lies inside the mapping.
func (r *Region) Contains(b []byte) bool {
	if len(b) == 0 || len(r.data) == 0 {
		return false
	}

	start := uintptr(unsafe.Pointer(unsafe.SliceData(r.data)))
	end := start + uintptr(len(r.data))
	p := uintptr(unsafe.Pointer(unsafe.SliceData(b)))

	return p >= start && p+uintptr(len(b)) <= end
}

// regionAllocator only ever frees: buffers built on it are immutable views,
// and freeing one gives its region reference back.
type regionAllocator struct {
	region *Region
}

func (a regionAllocator) Allocate(int) []byte {
	panic("mmap: cannot allocate from a read-only region")
}

func (a regionAllocator) Reallocate(int, []byte) []byte {
	panic("mmap: cannot reallocate a read-only region")
}

func (a regionAllocator) Free([]byte) {
	_ = a.region.Release()
}
