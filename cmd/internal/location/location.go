// Package location opens sources and writers from URLs given on the command
// line.
//
// Supported forms:
//
//	path/to/file, file:///path/to/file
//	s3://bucket/key
//	gs://bucket/object
//	https://account.blob.core.windows.net/container/blob
//	hdfs://namenode:port/path
package location

import (
	"context"
	"net/url"
	"os"
	"strings"

	azstorage "github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/columnar/source/azblob"
	"github.com/hexbee-net/columnar/source/gcs"
	"github.com/hexbee-net/columnar/source/hdfs"
	"github.com/hexbee-net/columnar/source/local"
	"github.com/hexbee-net/columnar/source/s3"
	"github.com/hexbee-net/errors"
)

const errUnsupportedScheme = errors.Error("unsupported location scheme")

type Kind int

const (
	Local Kind = iota
	S3
	GCS
	Azure
	HDFS
)

// Location is a parsed URL.
type Location struct {
	Kind   Kind
	Host   string
	Bucket string
	Path   string
	URL    string
}

// Parse classifies rawURL. Anything without a scheme is a local path.
func Parse(rawURL string) (Location, error) {
	if !strings.Contains(rawURL, "://") {
		return Location{Kind: Local, Path: rawURL, URL: rawURL}, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Location{}, errors.WithFields(
			errors.Wrap(err, "failed to parse location"),
			errors.Fields{
				"location": rawURL,
			})
	}

	loc := Location{URL: rawURL}
	key := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "file":
		loc.Kind = Local
		loc.Path = u.Path
	case "s3":
		loc.Kind = S3
		loc.Bucket = u.Host
		loc.Path = key
	case "gs":
		loc.Kind = GCS
		loc.Bucket = u.Host
		loc.Path = key
	case "https", "http":
		if !strings.Contains(u.Host, ".blob.") {
			return Location{}, errors.WithFields(
				errors.WithStack(errUnsupportedScheme),
				errors.Fields{
					"location": rawURL,
				})
		}

		loc.Kind = Azure
		loc.Host = u.Host
		loc.Path = key
	case "hdfs":
		loc.Kind = HDFS
		loc.Host = u.Host
		loc.Path = u.Path
	default:
		return Location{}, errors.WithFields(
			errors.WithStack(errUnsupportedScheme),
			errors.Fields{
				"scheme": u.Scheme,
			})
	}

	if loc.Path == "" {
		return Location{}, errors.WithFields(
			errors.New("location has no path"),
			errors.Fields{
				"location": rawURL,
			})
	}

	return loc, nil
}

// OpenReader opens the location for reading. Only local files can be
// memory mapped.
func OpenReader(ctx context.Context, loc Location) (source.Reader, error) {
	switch loc.Kind {
	case S3:
		sess, err := session.NewSession()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create AWS session")
		}

		return s3.NewReader(ctx, loc.Bucket, loc.Path, sess)
	case GCS:
		return gcs.NewReader(ctx, loc.Bucket, loc.Path)
	case Azure:
		cred, err := azureCredential()
		if err != nil {
			return nil, err
		}

		return azblob.NewReader(ctx, loc.URL, cred, azblob.Options{})
	case HDFS:
		return hdfs.NewReader([]string{loc.Host}, hdfsUser(), loc.Path)
	default:
		return local.NewReader(loc.Path)
	}
}

// OpenWriter creates the location for writing. The data is committed when
// the writer is closed.
func OpenWriter(ctx context.Context, loc Location) (source.Writer, error) {
	switch loc.Kind {
	case S3:
		sess, err := session.NewSession()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create AWS session")
		}

		return s3.NewWriter(ctx, loc.Bucket, loc.Path, nil, sess), nil
	case GCS:
		return gcs.NewWriter(ctx, loc.Bucket, loc.Path)
	case Azure:
		cred, err := azureCredential()
		if err != nil {
			return nil, err
		}

		return azblob.NewWriter(ctx, loc.URL, cred, azblob.Options{})
	case HDFS:
		return hdfs.NewWriter([]string{loc.Host}, hdfsUser(), loc.Path)
	default:
		return local.NewWriter(loc.Path)
	}
}

// azureCredential uses the shared key of AZURE_STORAGE_ACCOUNT and
// AZURE_STORAGE_ACCESS_KEY when both are set, anonymous access otherwise.
func azureCredential() (azstorage.Credential, error) {
	account, key := os.Getenv("AZURE_STORAGE_ACCOUNT"), os.Getenv("AZURE_STORAGE_ACCESS_KEY")
	if account == "" || key == "" {
		return azstorage.NewAnonymousCredential(), nil
	}

	cred, err := azstorage.NewSharedKeyCredential(account, key)
	if err != nil {
		return nil, errors.Wrap(err, "invalid Azure storage credentials")
	}

	return cred, nil
}

func hdfsUser() string {
	if u := os.Getenv("HADOOP_USER_NAME"); u != "" {
		return u
	}

	return os.Getenv("USER")
}
