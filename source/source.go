// Package source defines the byte sources files are read from and written to.
// Sub packages provide implementations for local files, memory, HTTP uploads
// and object stores.
package source

import (
	"io"
	"os"
)

// Reader is a seekable byte source.
type Reader interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Writer is a byte sink. Closing it commits the written data.
type Writer interface {
	io.Writer
	io.Closer
}

// FileBacked is implemented by readers whose bytes live in a local OS file.
// Only those can be memory mapped. File returns nil when the reader is
// currently not backed by a file.
type FileBacked interface {
	File() *os.File
}

// OSFile returns the file backing r, or nil if there is none.
func OSFile(r Reader) *os.File {
	fb, ok := r.(FileBacked)
	if !ok {
		return nil
	}

	return fb.File()
}
