// Package azblob reads and writes block blobs stored in Azure Storage.
package azblob

import (
	"context"
	"net/url"

	"github.com/Azure/azure-pipeline-go/pipeline"
	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/hexbee-net/errors"
)

// Options configures the pipeline requests are sent through.
type Options struct {
	// HTTPSender configures the sender of HTTP requests
	HTTPSender pipeline.Factory
	// Retry configures the built-in retry policy behavior.
	RetryOptions azblob.RetryOptions
	// Log configures the pipeline's logging infrastructure indicating what information is logged and where.
	Log pipeline.LogOptions
	// Parallelism limits the number of buffers used to upload blob content (0 = default).
	Parallelism int
}

type blob struct {
	ctx     context.Context
	URL     *url.URL
	blobURL azblob.BlockBlobURL
}

func openBlob(ctx context.Context, rawURL string, credential azblob.Credential, options Options) (blob, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return blob{}, errors.WithFields(
			errors.Wrap(err, "failed to parse URL"),
			errors.Fields{
				"url": rawURL,
			})
	}

	p := azblob.NewPipeline(credential, azblob.PipelineOptions{
		HTTPSender: options.HTTPSender,
		Retry:      options.RetryOptions,
		Log:        options.Log,
	})

	return blob{
		ctx:     ctx,
		URL:     u,
		blobURL: azblob.NewBlockBlobURL(*u, p),
	}, nil
}
