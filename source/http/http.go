// Package http reads files uploaded through multipart HTTP requests.
package http

import (
	"mime/multipart"
	"os"

	"github.com/hexbee-net/errors"
)

// Reader reads one uploaded file. Uploads larger than the parser's memory
// limit are spilled to a temporary file, in which case the reader is file
// backed.
type Reader struct {
	fileHeader *multipart.FileHeader
	file       multipart.File
}

func NewReader(header *multipart.FileHeader) (*Reader, error) {
	f, err := header.Open()
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, "failed to open HTTP stream"),
			errors.Fields{
				"filename": header.Filename,
			})
	}

	return &Reader{
		fileHeader: header,
		file:       f,
	}, nil
}

// Size returns the size of the upload.
func (r *Reader) Size() int64 {
	return r.fileHeader.Size
}

// File returns the temporary file holding the upload, or nil when the
// upload is kept in memory.
func (r *Reader) File() *os.File {
	f, _ := r.file.(*os.File)
	return f
}

func (r *Reader) Read(p []byte) (n int, err error) {
	return r.file.Read(p)
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	return r.file.Seek(offset, whence)
}

func (r *Reader) Close() error {
	return r.file.Close()
}
