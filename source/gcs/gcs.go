// Package gcs reads and writes objects stored in Google Cloud Storage.
package gcs

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/hexbee-net/errors"
	"google.golang.org/api/option"
)

const errInstantiate = errors.Error("failed to instantiate GCS client")

type object struct {
	BucketName string
	FilePath   string

	ctx            context.Context
	client         *storage.Client
	externalClient bool
	handle         *storage.ObjectHandle
}

func newObject(ctx context.Context, client *storage.Client, bucketName, name string, opts []option.ClientOption) (object, error) {
	o := object{
		BucketName:     bucketName,
		FilePath:       name,
		ctx:            ctx,
		client:         client,
		externalClient: client != nil,
	}

	if o.client == nil {
		c, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return o, errors.WithFields(
				errors.Wrap(errInstantiate, err.Error()),
				errors.Fields{
					"bucket": bucketName,
				})
		}

		o.client = c
	}

	o.handle = o.client.Bucket(bucketName).Object(name)

	return o, nil
}

func (o *object) Close() error {
	if o.client != nil && !o.externalClient {
		err := o.client.Close()
		o.client = nil

		if err != nil {
			return errors.Wrap(err, "failed to close GCS client")
		}
	}

	return nil
}
