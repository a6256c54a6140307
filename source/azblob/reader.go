package azblob

import (
	"context"
	"io"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/errors"
)

// Reader reads a blob through one ranged download per Read.
type Reader struct {
	blob

	size   int64
	offset int64
}

// NewReader creates an Azure Blob Reader.
func NewReader(ctx context.Context, rawURL string, credential azblob.Credential, options Options) (*Reader, error) {
	b, err := openBlob(ctx, rawURL, credential, options)
	if err != nil {
		return nil, err
	}

	props, err := b.blobURL.GetProperties(ctx, azblob.BlobAccessConditions{})
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, "failed to get blob properties"),
			errors.Fields{
				"url": b.URL.String(),
			})
	}

	return &Reader{
		blob: b,
		size: props.ContentLength(),
	}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}

	count := min(int64(len(p)), r.size-r.offset)

	resp, err := r.blobURL.Download(r.ctx, r.offset, count, azblob.BlobAccessConditions{}, false)
	if err != nil {
		return 0, errors.WithFields(
			errors.Wrap(err, "failed to download blob range"),
			errors.Fields{
				"offset": r.offset,
				"count":  count,
			})
	}

	body := resp.Body(azblob.RetryReaderOptions{})
	defer func() { _ = body.Close() }()

	n, err := io.ReadFull(body, p[:count])
	r.offset += int64(n)

	if err != nil {
		return n, errors.Wrap(err, "failed to read blob data")
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

func (r *Reader) Close() error {
	return nil
}
