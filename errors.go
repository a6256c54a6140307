package columnar

import (
	"github.com/hexbee-net/columnar/format"
	"github.com/hexbee-net/columnar/mmap"
	"github.com/hexbee-net/errors"
)

const (
	// ErrSourceNotFileBacked is returned when memory mapping is requested
	// over a source that is not a local file.
	ErrSourceNotFileBacked = errors.Error("source is not backed by a local file")

	// ErrProjectionOutOfRange is returned when a projection names a column
	// the file does not have.
	ErrProjectionOutOfRange = errors.Error("projection index out of range")

	// ErrMappingFailure is returned when the file could not be mapped.
	ErrMappingFailure = mmap.ErrMappingFailure

	// ErrFormat is returned for malformed footers, dictionaries and blocks.
	ErrFormat = format.ErrFormat

	errReaderReleased = errors.Error("batch reader already released")
	errWriterClosed   = errors.Error("file writer already closed")
)
