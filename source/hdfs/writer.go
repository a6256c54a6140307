package hdfs

import (
	"github.com/colinmarc/hdfs/v2"
	"github.com/hexbee-net/errors"
)

type Writer struct {
	file

	writer *hdfs.FileWriter
}

// NewWriter connects to the name nodes at hosts and creates name.
func NewWriter(hosts []string, user string, name string) (*Writer, error) {
	return newWriter(nil, hosts, user, name)
}

// NewWriterWithClient is the same as NewWriter but allows passing your own HDFS client.
func NewWriterWithClient(client *hdfs.Client, name string) (*Writer, error) {
	return newWriter(client, nil, "", name)
}

func newWriter(client *hdfs.Client, hosts []string, user, name string) (*Writer, error) {
	f, err := newFile(client, hosts, user, name)
	if err != nil {
		return nil, err
	}

	fw, err := f.client.Create(name)
	if err != nil {
		_ = f.Close()

		return nil, errors.WithFields(
			errors.Wrap(err, "failed to create HDFS file"),
			errors.Fields{
				"name": name,
			})
	}

	return &Writer{file: f, writer: fw}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *Writer) Close() error {
	if w.writer != nil {
		err := w.writer.Close()
		w.writer = nil

		if err != nil {
			_ = w.file.Close()
			return errors.Wrap(err, "failed to close HDFS writer")
		}
	}

	return w.file.Close()
}
