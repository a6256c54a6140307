// Package s3 reads and writes objects stored in Amazon S3.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/errors"
)

const rangeHeader = "bytes=%d-%d"

// Reader reads an object through ranged GET requests, one per Read.
type Reader struct {
	ctx        context.Context
	client     s3iface.S3API
	downloader *s3manager.Downloader

	Bucket string
	Key    string

	size   int64
	offset int64
}

// NewReader creates an S3 Reader.
func NewReader(ctx context.Context, bucket, key string, configProvider client.ConfigProvider, configs ...*aws.Config) (*Reader, error) {
	return NewReaderWithClient(ctx, s3.New(configProvider, configs...), bucket, key)
}

// NewReaderWithClient is the same as NewReader but allows passing your own S3 client.
func NewReaderWithClient(ctx context.Context, s3Client s3iface.S3API, bucket, key string) (*Reader, error) {
	head, err := s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, "failed to fetch object description"),
			errors.Fields{
				"bucket": bucket,
				"key":    key,
			})
	}

	return &Reader{
		ctx:        ctx,
		client:     s3Client,
		downloader: s3manager.NewDownloaderWithClient(s3Client),
		Bucket:     bucket,
		Key:        key,
		size:       aws.Int64Value(head.ContentLength),
	}, nil
}

// Size returns the object size reported by S3.
func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.offset >= r.size {
		return 0, io.EOF
	}

	if len(p) == 0 {
		return 0, nil
	}

	end := min(r.offset+int64(len(p)), r.size) - 1
	buf := aws.NewWriteAtBuffer(p[:0])

	n, err := r.downloader.DownloadWithContext(r.ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(r.Bucket),
		Key:    aws.String(r.Key),
		Range:  aws.String(fmt.Sprintf(rangeHeader, r.offset, end)),
	})
	if err != nil {
		return 0, errors.WithFields(
			errors.Wrap(err, "failed to download object range"),
			errors.Fields{
				"key":    r.Key,
				"offset": r.offset,
			})
	}

	// the buffer may have been reallocated while growing
	copy(p, buf.Bytes())
	r.offset += n

	return int(n), nil
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
