package gcs

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/errors"
	"google.golang.org/api/option"
)

// Reader reads an object through one range request per Read.
type Reader struct {
	object

	size   int64
	offset int64
}

// NewReader creates a GCS Reader. The client is built from opts and closed
// with the reader.
func NewReader(ctx context.Context, bucketName, name string, opts ...option.ClientOption) (*Reader, error) {
	return newReader(ctx, nil, bucketName, name, opts)
}

// NewReaderWithClient is the same as NewReader but allows passing your own GCS client.
func NewReaderWithClient(ctx context.Context, client *storage.Client, bucketName, name string) (*Reader, error) {
	return newReader(ctx, client, bucketName, name, nil)
}

func newReader(ctx context.Context, client *storage.Client, bucketName, name string, opts []option.ClientOption) (*Reader, error) {
	o, err := newObject(ctx, client, bucketName, name, opts)
	if err != nil {
		return nil, err
	}

	attrs, err := o.handle.Attrs(ctx)
	if err != nil {
		_ = o.Close()

		return nil, errors.WithFields(
			errors.Wrap(err, "failed to get object attributes"),
			errors.Fields{
				"bucket": bucketName,
				"name":   name,
			})
	}

	return &Reader{
		object: o,
		size:   attrs.Size,
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}

	length := min(int64(len(p)), r.size-r.offset)

	rr, err := r.handle.NewRangeReader(r.ctx, r.offset, length)
	if err != nil {
		return 0, errors.WithFields(
			errors.Wrap(err, "failed to open range reader"),
			errors.Fields{
				"name":   r.FilePath,
				"offset": r.offset,
			})
	}
	defer func() { _ = rr.Close() }()

	n, err := io.ReadFull(rr, p[:length])
	r.offset += int64(n)

	if err != nil {
		return n, errors.Wrap(err, "failed to read object data")
	}

	return n, nil
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	pos, err := source.Seek(r.offset, r.size, offset, whence)
	if err != nil {
		return pos, err
	}

	r.offset = pos

	return pos, nil
}
