package location

import (
	"testing"

	"github.com/hexbee-net/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want Location
	}{
		{"data/file.clmn", Location{Kind: Local, Path: "data/file.clmn"}},
		{"file:///tmp/file.clmn", Location{Kind: Local, Path: "/tmp/file.clmn"}},
		{"s3://bucket/dir/file.clmn", Location{Kind: S3, Bucket: "bucket", Path: "dir/file.clmn"}},
		{"gs://bucket/file.clmn", Location{Kind: GCS, Bucket: "bucket", Path: "file.clmn"}},
		{"https://acct.blob.core.windows.net/c/file.clmn", Location{Kind: Azure, Host: "acct.blob.core.windows.net", Path: "c/file.clmn"}},
		{"hdfs://namenode:8020/data/file.clmn", Location{Kind: HDFS, Host: "namenode:8020", Path: "/data/file.clmn"}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.url)
		require.NoError(t, err, tt.url)

		tt.want.URL = tt.url
		assert.Equal(t, tt.want, got)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	_, err := Parse("ftp://host/file")
	assert.EqualError(t, errors.Cause(err), errUnsupportedScheme.Error())

	_, err = Parse("https://example.com/file")
	assert.EqualError(t, errors.Cause(err), errUnsupportedScheme.Error())

	_, err = Parse("s3://bucket")
	assert.Error(t, err)
}
