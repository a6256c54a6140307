package compression

import (
	"strings"

	"github.com/hexbee-net/errors"
)

const (
	errUnsupportedCodec = errors.Error("compression codec not supported")
	errInvalidSize      = errors.Error("invalid size for decompressed data")
)

// Codec identifies the compression applied to a block on disk.
type Codec int32

const (
	CodecUncompressed Codec = 0
	CodecSnappy       Codec = 1
	CodecGZip         Codec = 2
	CodecLZ4          Codec = 3
	CodecZStd         Codec = 4
	CodecBrotli       Codec = 5
)

var codecNames = map[Codec]string{
	CodecUncompressed: "uncompressed",
	CodecSnappy:       "snappy",
	CodecGZip:         "gzip",
	CodecLZ4:          "lz4",
	CodecZStd:         "zstd",
	CodecBrotli:       "brotli",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}

	return "unknown"
}

// Valid reports whether c is one of the known codecs.
func (c Codec) Valid() bool {
	_, ok := codecNames[c]
	return ok
}

// ParseCodec returns the codec matching the given name, case insensitive.
func ParseCodec(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "none" {
		return CodecUncompressed, nil
	}

	for c, n := range codecNames {
		if n == name {
			return c, nil
		}
	}

	return CodecUncompressed, errors.WithFields(
		errors.WithStack(errUnsupportedCodec),
		errors.Fields{
			"codec": name,
		})
}

type BlockCompressor interface {
	CompressBlock(block []byte) ([]byte, error)
	DecompressBlock(block []byte, size int) ([]byte, error)
}

// Compressors maps every codec a reader or writer accepts to its implementation.
type Compressors map[Codec]BlockCompressor

// Default returns the table of all built-in codecs.
func Default() Compressors {
	return Compressors{
		CodecUncompressed: Uncompressed{},
		CodecSnappy:       Snappy{},
		CodecGZip:         GZip{},
		CodecLZ4:          LZ4{},
		CodecZStd:         NewZStd(),
		CodecBrotli:       Brotli{},
	}
}

func (c Compressors) get(codec Codec) (BlockCompressor, error) {
	bc, ok := c[codec]
	if !ok {
		return nil, errors.WithFields(
			errors.WithStack(errUnsupportedCodec),
			errors.Fields{
				"codec": codec.String(),
			})
	}

	return bc, nil
}

func (c Compressors) Compress(codec Codec, block []byte) ([]byte, error) {
	bc, err := c.get(codec)
	if err != nil {
		return nil, err
	}

	return bc.CompressBlock(block)
}

// Decompress inflates block and checks the result has exactly size bytes.
func (c Compressors) Decompress(codec Codec, block []byte, size int64) ([]byte, error) {
	bc, err := c.get(codec)
	if err != nil {
		return nil, err
	}

	if size < 0 {
		return nil, errors.WithFields(
			errors.WithStack(errInvalidSize),
			errors.Fields{
				"expected": size,
			})
	}

	res, err := bc.DecompressBlock(block, int(size))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress block")
	}

	if int64(len(res)) != size {
		return nil, errors.WithFields(
			errors.WithStack(errInvalidSize),
			errors.Fields{
				"codec":    codec.String(),
				"expected": size,
				"actual":   len(res),
			})
	}

	return res, nil
}

// Uncompressed passes blocks through untouched.
type Uncompressed struct{}

func (Uncompressed) CompressBlock(block []byte) ([]byte, error) {
	return block, nil
}

func (Uncompressed) DecompressBlock(block []byte, _ int) ([]byte, error) {
	return block, nil
}
