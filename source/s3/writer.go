package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/hexbee-net/errors"
)

// Writer streams written bytes to a multipart upload running in the background.
type Writer struct {
	Bucket string
	Key    string

	pipeWriter *io.PipeWriter
	done       chan error
}

// NewWriter creates an S3 Writer.
func NewWriter(ctx context.Context, bucket, key string, uploaderOptions []func(*s3manager.Uploader), configProvider client.ConfigProvider, configs ...*aws.Config) *Writer {
	return NewWriterWithClient(ctx, s3.New(configProvider, configs...), bucket, key, uploaderOptions...)
}

// NewWriterWithClient is the same as NewWriter but allows passing your own S3 client.
func NewWriterWithClient(ctx context.Context, s3Client s3iface.S3API, bucket, key string, uploaderOptions ...func(*s3manager.Uploader)) *Writer {
	pr, pw := io.Pipe()

	w := &Writer{
		Bucket:     bucket,
		Key:        key,
		pipeWriter: pw,
		done:       make(chan error, 1),
	}

	uploader := s3manager.NewUploaderWithClient(s3Client, uploaderOptions...)

	go func() {
		defer close(w.done)

		_, err := uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Body:   pr,
		})

		// unblock pending writes
		_ = pr.CloseWithError(err)

		w.done <- err
	}()

	return w
}

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.pipeWriter.Write(p)
	if err != nil {
		return n, errors.Wrap(err, "failed to stream data to S3")
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
			errors.Wrap(err, "failed to upload object"),
			errors.Fields{
				"bucket": w.Bucket,
				"key":    w.Key,
			})
	}

	return nil
}
