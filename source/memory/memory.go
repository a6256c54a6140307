// Package memory provides in-memory sources. They are never file backed.
package memory

import (
	"bytes"
)

// Reader serves a byte slice.
type Reader struct {
	*bytes.Reader
}

func NewReader(data []byte) *Reader {
	return &Reader{
		Reader: bytes.NewReader(data),
	}
}

func (r *Reader) Close() error {
	return nil
}

// Writer accumulates written bytes.
type Writer struct {
	bytes.Buffer
}

func NewWriter(buf []byte) *Writer {
	return &Writer{
		Buffer: *bytes.NewBuffer(buf),
	}
}

func (w *Writer) Close() error {
	return nil
}
