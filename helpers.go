package columnar

import (
	"io"
)

// offsetReader counts the bytes actually read through a seekable reader.
type offsetReader struct {
	inner io.ReadSeeker
	count int64
}

func (r *offsetReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.count += int64(n)

	return n, err
}

func (r *offsetReader) Seek(offset int64, whence int) (int64, error) {
	return r.inner.Seek(offset, whence)
}

func (r *offsetReader) Count() int64 {
	return r.count
}

// offsetWriter tracks the number of bytes written, which is the offset of
// the next write.
type offsetWriter struct {
	inner  io.Writer
	offset int64
}

func (w *offsetWriter) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	w.offset += int64(n)

	return n, err
}

// pad writes zeros up to the next aligned offset.
func (w *offsetWriter) pad(align int64) error {
	n := (align - w.offset%align) % align
	if n == 0 {
		return nil
	}

	_, err := w.Write(make([]byte, n))

	return err
}
