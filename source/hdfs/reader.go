package hdfs

import (
	"github.com/colinmarc/hdfs/v2"
	"github.com/hexbee-net/errors"
)

type Reader struct {
	file

	reader *hdfs.FileReader
}

// NewReader connects to the name nodes at hosts and opens name for reading.
func NewReader(hosts []string, user string, name string) (*Reader, error) {
	return newReader(nil, hosts, user, name)
}

// NewReaderWithClient is the same as NewReader but allows passing your own HDFS client.
func NewReaderWithClient(client *hdfs.Client, name string) (*Reader, error) {
	return newReader(client, nil, "", name)
}

func newReader(client *hdfs.Client, hosts []string, user, name string) (*Reader, error) {
	f, err := newFile(client, hosts, user, name)
	if err != nil {
		return nil, err
	}

	fr, err := f.client.Open(name)
	if err != nil {
		_ = f.Close()

		return nil, errors.WithFields(
			errors.Wrap(err, "failed to open HDFS file"),
			errors.Fields{
				"name": name,
			})
	}

	return &Reader{file: f, reader: fr}, nil
}

func (r *Reader) Read(p []byte) (n int, err error) {
	var cnt int

	for n < len(p) {
		cnt, err = r.reader.Read(p[n:])
		n += cnt

		if err != nil {
			break
		}
	}

	return n, err
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	return r.reader.Seek(offset, whence)
}

func (r *Reader) Close() error {
	if r.reader != nil {
		err := r.reader.Close()
		r.reader = nil

		if err != nil {
			_ = r.file.Close()
			return errors.Wrap(err, "failed to close HDFS reader")
		}
	}

	return r.file.Close()
}
