package azblob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/Azure/azure-storage-blob-go/azblob"
	"github.com/hexbee-net/columnar/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlobServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			var start, end int
			if _, err := fmt.Sscanf(r.Header.Get("x-ms-range"), "bytes=%d-%d", &start, &end); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(data[start : end+1])
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

var _ source.Reader = (*Reader)(nil)

func TestReader(t *testing.T) {
	t.Run("ReadSeek", TestReader_ReadSeek)
}

func TestReader_ReadSeek(t *testing.T) {
	t.Parallel()

	srv := newBlobServer(t, []byte("azure blob data"))

	r, err := NewReader(context.Background(), srv.URL+"/container/blob", azblob.NewAnonymousCredential(), Options{})
	require.NoError(t, err)

	defer r.Close()

	_, err = r.Seek(6, io.SeekStart)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "blob", string(buf[:n]))

	pos, err := r.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos, "offset must persist across calls")

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, " data", string(rest))
	assert.Nil(t, source.OSFile(r))
}
