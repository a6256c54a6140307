package gcs

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/hexbee-net/errors"
	"google.golang.org/api/option"
)

// Writer uploads an object. The object becomes visible once closed.
type Writer struct {
	object

	writer *storage.Writer
}

// NewWriter creates a GCS Writer. The client is built from opts and closed
// with the writer.
func NewWriter(ctx context.Context, bucketName, name string, opts ...option.ClientOption) (*Writer, error) {
	return newWriter(ctx, nil, bucketName, name, opts)
}

// NewWriterWithClient is the same as NewWriter but allows passing your own GCS client.
func NewWriterWithClient(ctx context.Context, client *storage.Client, bucketName, name string) (*Writer, error) {
	return newWriter(ctx, client, bucketName, name, nil)
}

func newWriter(ctx context.Context, client *storage.Client, bucketName, name string, opts []option.ClientOption) (*Writer, error) {
	o, err := newObject(ctx, client, bucketName, name, opts)
	if err != nil {
		return nil, err
	}

	return &Writer{
		object: o,
		writer: o.handle.NewWriter(ctx),
	}, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *Writer) Close() error {
	if w.writer != nil {
		err := w.writer.Close()
		w.writer = nil

		if err != nil {
			_ = w.object.Close()
			return errors.Wrap(err, "failed to close GCS writer")
		}
	}

	return w.object.Close()
}
