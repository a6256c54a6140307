package format

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/mmap"
	"github.com/stretchr/testify/require"
)

type fileBuilder struct {
	buf  bytes.Buffer
	meta *FileMetaData
}

func newFileBuilder(t *testing.T, fields ...*Field) *fileBuilder {
	t.Helper()

	b := &fileBuilder{
		meta: &FileMetaData{
			Version: Version,
			Schema:  fields,
		},
	}
	require.NoError(t, WriteHeader(&b.buf))

	return b
}

func (b *fileBuilder) writeBlock(t *testing.T, codec compression.Codec, cols ...arrow.Array) *Block {
	t.Helper()

	body, chunks, err := EncodeColumns(cols)
	require.NoError(t, err)

	data, err := compression.Default().Compress(codec, body)
	require.NoError(t, err)

	blk := &Block{
		Offset:             int64(b.buf.Len()),
		Length:             int64(len(data)),
		UncompressedLength: int64(len(body)),
		NumRows:            int64(cols[0].Len()),
		Codec:              codec,
		Checksum:           Checksum(data),
		Columns:            chunks,
	}

	b.buf.Write(data)
	b.buf.Write(make([]byte, Pad(blk.Length)))

	return blk
}

func (b *fileBuilder) addBlock(t *testing.T, codec compression.Codec, cols ...arrow.Array) *Block {
	t.Helper()

	blk := b.writeBlock(t, codec, cols...)
	b.meta.Blocks = append(b.meta.Blocks, blk)
	b.meta.NumRows += blk.NumRows

	return blk
}

func (b *fileBuilder) addDictionary(t *testing.T, id int64, values arrow.Array) {
	t.Helper()

	b.meta.Dictionaries = append(b.meta.Dictionaries, &DictionaryBlock{
		ID:    id,
		Block: b.writeBlock(t, compression.CodecUncompressed, values),
	})
}

func (b *fileBuilder) finish(t *testing.T) []byte {
	t.Helper()

	require.NoError(t, WriteFooter(&b.buf, b.meta))

	return b.buf.Bytes()
}

func mapBytes(data []byte) *mmap.Region {
	return mmap.NewRegion(data, nil, "test")
}

func int64Array(values []int64, valid []bool) arrow.Array {
	bld := array.NewInt64Builder(memory.DefaultAllocator)
	defer bld.Release()

	bld.AppendValues(values, valid)

	return bld.NewArray()
}

func stringArray(values []string, valid []bool) arrow.Array {
	bld := array.NewStringBuilder(memory.DefaultAllocator)
	defer bld.Release()

	bld.AppendValues(values, valid)

	return bld.NewArray()
}

func int32Array(values []int32, valid []bool) arrow.Array {
	bld := array.NewInt32Builder(memory.DefaultAllocator)
	defer bld.Release()

	bld.AppendValues(values, valid)

	return bld.NewArray()
}

func dictID(id int64) *int64 {
	return &id
}
