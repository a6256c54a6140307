package compression

import (
	"github.com/golang/snappy"
	"github.com/hexbee-net/errors"
	"github.com/klauspost/compress/zstd"
)

type Snappy struct{}

func (Snappy) CompressBlock(block []byte) ([]byte, error) {
	return snappy.Encode(nil, block), nil
}

func (Snappy) DecompressBlock(block []byte, size int) ([]byte, error) {
	ret, err := snappy.Decode(make([]byte, size), block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress Snappy data")
	}

	return ret, nil
}

// ZStd keeps one encoder and one decoder around; both are safe for
// concurrent EncodeAll / DecodeAll calls.
type ZStd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewZStd() *ZStd {
	// nil writer / reader with no options cannot fail.
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)

	return &ZStd{encoder: enc, decoder: dec}
}

func (c *ZStd) CompressBlock(block []byte) ([]byte, error) {
	return c.encoder.EncodeAll(block, nil), nil
}

func (c *ZStd) DecompressBlock(block []byte, size int) ([]byte, error) {
	ret, err := c.decoder.DecodeAll(block, make([]byte, 0, size))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress ZSTD data")
	}

	return ret, nil
}
