package source

import (
	"io"

	"github.com/hexbee-net/errors"
)

const (
	ErrWhence        = errors.Error("invalid whence")
	ErrInvalidOffset = errors.Error("invalid offset")
)

var whenceNames = map[int]string{
	io.SeekStart:   "SeekStart",
	io.SeekCurrent: "SeekCurrent",
	io.SeekEnd:     "SeekEnd",
}

// Seek computes the position resulting from seeking by offset from whence,
// for sources of the given size positioned at current.
func Seek(current, size, offset int64, whence int) (int64, error) {
	var pos int64

	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = current + offset
	case io.SeekEnd:
		pos = size + offset
	default:
		return current, errors.WithFields(
			errors.WithStack(ErrWhence),
			errors.Fields{
				"whence": whence,
			})
	}

	if pos < 0 || pos > size {
		return current, errors.WithFields(
			errors.WithStack(ErrInvalidOffset),
			errors.Fields{
				"offset":   offset,
				"whence":   whenceNames[whence],
				"fileSize": size,
			})
	}

	return pos, nil
}
