package azblob

import (
	"context"
	"io"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/hexbee-net/errors"
)

// Writer streams written bytes into a block blob upload running in the background.
type Writer struct {
	blob

	pipeWriter *io.PipeWriter
	done       chan error
}

// NewWriter creates an Azure Blob Writer.
func NewWriter(ctx context.Context, rawURL string, credential azblob.Credential, options Options) (*Writer, error) {
	b, err := openBlob(ctx, rawURL, credential, options)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()

	w := &Writer{
		blob:       b,
		pipeWriter: pw,
		done:       make(chan error, 1),
	}

	go func() {
		defer close(w.done)

		_, err := azblob.UploadStreamToBlockBlob(ctx, pr, b.blobURL, azblob.UploadStreamToBlockBlobOptions{
			MaxBuffers: options.Parallelism,
		})

		// unblock pending writes
		_ = pr.CloseWithError(err)

		w.done <- err
	}()

	return w, nil
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.pipeWriter.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "failed to stream data to blob")
	}

	return n, nil
}

// Close flushes the remaining data and waits for the upload to complete.
func (w *Writer) Close() error {
	if err := w.pipeWriter.Close(); err != nil {
		return errors.Wrap(err, "failed to close upload stream")
	}

	if err := <-w.done; err != nil {
		return errors.WithFields(
			errors.Wrap(err, "failed to upload blob"),
			errors.Fields{
				"url": w.URL.String(),
			})
	}

	return nil
}
