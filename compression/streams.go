package compression

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/hexbee-net/errors"
	"github.com/pierrec/lz4"
)

// The stream based codecs share the same shape: wrap a writer to compress,
// wrap a reader to decompress into a buffer sized from the block header.

func compressStream(block []byte, wrap func(io.Writer) io.WriteCloser) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := wrap(buf)

	if _, err := w.Write(block); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompressStream(r io.Reader, size int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))

	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

type GZip struct{}

func (GZip) CompressBlock(block []byte) ([]byte, error) {
	return compressStream(block, func(w io.Writer) io.WriteCloser {
		return gzip.NewWriter(w)
	})
}

func (GZip) DecompressBlock(block []byte, size int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(block))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open GZIP stream")
	}

	ret, err := decompressStream(r, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress GZIP data")
	}

	return ret, r.Close()
}

type LZ4 struct{}

func (LZ4) CompressBlock(block []byte) ([]byte, error) {
	return compressStream(block, func(w io.Writer) io.WriteCloser {
		return lz4.NewWriter(w)
	})
}

func (LZ4) DecompressBlock(block []byte, size int) ([]byte, error) {
	ret, err := decompressStream(lz4.NewReader(bytes.NewReader(block)), size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress LZ4 data")
	}

	return ret, nil
}

type Brotli struct{}

func (Brotli) CompressBlock(block []byte) ([]byte, error) {
	return compressStream(block, func(w io.Writer) io.WriteCloser {
		return brotli.NewWriter(w)
	})
}

func (Brotli) DecompressBlock(block []byte, size int) ([]byte, error) {
	ret, err := decompressStream(brotli.NewReader(bytes.NewReader(block)), size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress Brotli data")
	}

	return ret, nil
}
