// Package local reads and writes files of the local file system.
package local

import (
	"os"

	"github.com/hexbee-net/errors"
)

// File is a local file opened for reading or writing. Readers are file
// backed and can be memory mapped.
type File struct {
	FilePath string
	file     *os.File
}

// NewReader opens a local file for reading.
func NewReader(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, "failed to open source file"),
			errors.Fields{
				"path": path,
			})
	}

	return &File{FilePath: path, file: f}, nil
}

// NewWriter creates or truncates a local file for writing.
func NewWriter(path string) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, "failed to create target file"),
			errors.Fields{
				"path": path,
			})
	}

	return &File{FilePath: path, file: f}, nil
}

// File returns the underlying OS file, nil once closed.
func (f *File) File() *os.File {
	return f.file
}

// Reader //////////////////////////////

func (f *File) Read(b []byte) (cnt int, err error) {
	var n int

	ln := len(b)

	for cnt < ln {
		n, err = f.file.Read(b[cnt:])
		cnt += n

		if err != nil {
			break
		}
	}

	return cnt, err
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	return f.file.Seek(offset, whence)
}

// Writer //////////////////////////////

func (f *File) Write(p []byte) (n int, err error) {
	return f.file.Write(p)
}

func (f *File) Close() error {
	if f.file == nil {
		return nil
	}

	err := f.file.Close()
	f.file = nil

	return err
}
