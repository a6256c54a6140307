package format

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("Mapped_Primitives", TestDecode_Mapped_Primitives)
	t.Run("Mapped_Aliasing", TestDecode_Mapped_Aliasing)
	t.Run("Mapped_ReleaseReturnsReferences", TestDecode_Mapped_ReleaseReturnsReferences)
	t.Run("Mapped_CompressedRejected", TestDecode_Mapped_CompressedRejected)
	t.Run("Mapped_ChecksumMismatch", TestDecode_Mapped_ChecksumMismatch)
	t.Run("Mapped_SlicedInput", TestDecode_Mapped_SlicedInput)
	t.Run("Dictionary", TestDecode_Dictionary)
	t.Run("Dictionary_InvalidIndex", TestDecode_Dictionary_InvalidIndex)
	t.Run("Dictionary_InvalidOffsets", TestDecode_Dictionary_InvalidOffsets)
	t.Run("InvalidOffsets", TestDecode_InvalidOffsets)
	t.Run("Stream_Compressed", TestDecode_Stream_Compressed)
	t.Run("Stream_Truncated", TestDecode_Stream_Truncated)
	t.Run("BlockOutOfRange", TestDecode_BlockOutOfRange)
	t.Run("AllTypes", TestDecode_AllTypes)
}

func TestDecode_Mapped_Primitives(t *testing.T) {
	t.Parallel()

	data := buildSimpleFile(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	rec, err := DecodeBlock(meta, nil, region, 0, DecodeOptions{VerifyChecksums: true})
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(3), rec.NumRows())
	assert.Equal(t, []int64{1, 2, 3}, rec.Column(0).(*array.Int64).Int64Values())

	s := rec.Column(1).(*array.String)
	assert.Equal(t, "x", s.Value(0))
	assert.True(t, s.IsNull(1))
	assert.Equal(t, "zz", s.Value(2))
}

func TestDecode_Mapped_Aliasing(t *testing.T) {
	t.Parallel()

	data := buildSimpleFile(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	rec, err := DecodeBlock(meta, nil, region, 0, DecodeOptions{})
	require.NoError(t, err)
	defer rec.Release()

	for i, col := range rec.Columns() {
		for _, buf := range col.Data().Buffers() {
			if buf == nil || buf.Len() == 0 {
				continue
			}

			assert.True(t, region.Contains(buf.Bytes()), "column %d buffer copied", i)
		}
	}
}

func TestDecode_Mapped_ReleaseReturnsReferences(t *testing.T) {
	t.Parallel()

	data := buildSimpleFile(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)

	rec, err := DecodeBlock(meta, nil, region, 0, DecodeOptions{})
	require.NoError(t, err)
	assert.Greater(t, region.RefCount(), int64(1))

	require.NoError(t, region.Release())
	assert.False(t, region.Released())
	assert.Equal(t, int64(2), rec.Column(0).(*array.Int64).Value(1))

	rec.Release()
	assert.True(t, region.Released())
}

func TestDecode_Mapped_CompressedRejected(t *testing.T) {
	t.Parallel()

	b := newFileBuilder(t, &Field{Name: "a", Type: TypeInt64})

	a := int64Array([]int64{1, 2, 3, 4}, nil)
	defer a.Release()

	b.addBlock(t, compression.CodecSnappy, a)
	data := b.finish(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	_, err = DecodeBlock(meta, nil, region, 0, DecodeOptions{})
	assert.EqualError(t, errors.Cause(err), ErrFormat.Error())
	assert.Equal(t, int64(1), region.RefCount())
}

func TestDecode_Mapped_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	data := buildSimpleFile(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	data[meta.Blocks[0].Offset] ^= 0xff

	region := mapBytes(data)
	defer region.Release()

	_, err = DecodeBlock(meta, nil, region, 0, DecodeOptions{VerifyChecksums: true})
	assert.EqualError(t, errors.Cause(err), ErrFormat.Error())

	rec, err := DecodeBlock(meta, nil, region, 0, DecodeOptions{})
	require.NoError(t, err, "checksums are only checked on demand")
	rec.Release()
}

func TestDecode_Mapped_SlicedInput(t *testing.T) {
	t.Parallel()

	a := int64Array([]int64{1, 2, 3, 4, 5}, []bool{true, false, true, true, true})
	defer a.Release()

	s := stringArray([]string{"a", "bb", "ccc", "dddd", "e"}, nil)
	defer s.Release()

	sa := array.NewSlice(a, 2, 5)
	defer sa.Release()

	ss := array.NewSlice(s, 2, 5)
	defer ss.Release()

	b := newFileBuilder(t,
		&Field{Name: "a", Type: TypeInt64, Nullable: true},
		&Field{Name: "s", Type: TypeUtf8},
	)
	b.addBlock(t, compression.CodecUncompressed, sa, ss)
	data := b.finish(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	rec, err := DecodeBlock(meta, nil, region, 0, DecodeOptions{VerifyChecksums: true})
	require.NoError(t, err)
	defer rec.Release()

	assert.True(t, array.Equal(sa, rec.Column(0)))
	assert.True(t, array.Equal(ss, rec.Column(1)))
}

func buildDictionaryFile(t *testing.T, indices []int32) []byte {
	t.Helper()

	b := newFileBuilder(t,
		&Field{Name: "c1", Type: TypeUtf8, DictionaryID: dictID(0)},
		&Field{Name: "c2", Type: TypeUtf8, Nullable: true, DictionaryID: dictID(0)},
	)

	values := stringArray([]string{"red", "green", "blue"}, nil)
	defer values.Release()

	b.addDictionary(t, 0, values)

	for i := 0; i < 2; i++ {
		idx := int32Array(indices, nil)
		b.addBlock(t, compression.CodecUncompressed, idx, idx)
		idx.Release()
	}

	return b.finish(t)
}

func TestDecode_Dictionary(t *testing.T) {
	t.Parallel()

	data := buildDictionaryFile(t, []int32{2, 0, 1, 0})

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	dicts, err := DecodeDictionaries(meta, region, DecodeOptions{VerifyChecksums: true})
	require.NoError(t, err)
	defer dicts.Release()

	r1, err := DecodeBlock(meta, dicts, region, 0, DecodeOptions{})
	require.NoError(t, err)
	defer r1.Release()

	r2, err := DecodeBlock(meta, dicts, region, 1, DecodeOptions{})
	require.NoError(t, err)
	defer r2.Release()

	d1 := r1.Column(0).(*array.Dictionary)
	d2 := r2.Column(1).(*array.Dictionary)

	assert.Same(t, d1.Dictionary().Data(), d2.Dictionary().Data(), "blocks must share one dictionary")
	assert.Equal(t, "blue", d1.Dictionary().(*array.String).Value(d1.GetValueIndex(0)))
	assert.Equal(t, "green", d2.Dictionary().(*array.String).Value(d2.GetValueIndex(2)))

	_, ok := r1.Schema().Field(0).Type.(*arrow.DictionaryType)
	assert.True(t, ok)
}

func TestDecode_Dictionary_InvalidIndex(t *testing.T) {
	t.Parallel()

	data := buildDictionaryFile(t, []int32{0, 7})

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	dicts, err := DecodeDictionaries(meta, region, DecodeOptions{})
	require.NoError(t, err)
	defer dicts.Release()

	_, err = DecodeBlock(meta, dicts, region, 0, DecodeOptions{})
	assert.EqualError(t, errors.Cause(err), ErrFormat.Error())
}

func TestDecode_Stream_Compressed(t *testing.T) {
	t.Parallel()

	for codec := range compression.Default() {
		b := newFileBuilder(t, &Field{Name: "a", Type: TypeInt64, Nullable: true})

		a := int64Array([]int64{10, 20, 30, 40}, []bool{true, true, false, true})
		b.addBlock(t, codec, a)

		r := bytes.NewReader(b.finish(t))

		meta, err := ReadFooter(r)
		require.NoError(t, err, codec.String())

		rec, err := ReadBlock(r, meta, nil, 0, compression.Default(), DecodeOptions{VerifyChecksums: true})
		require.NoError(t, err, codec.String())

		assert.True(t, array.Equal(a, rec.Column(0)), codec.String())

		rec.Release()
		a.Release()
	}
}

func TestDecode_Stream_Truncated(t *testing.T) {
	t.Parallel()

	data := buildSimpleFile(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	r := bytes.NewReader(data[:meta.Blocks[0].Offset+2])

	_, err = ReadBlock(r, meta, nil, 0, compression.Default(), DecodeOptions{})
	assert.Error(t, err)
}

func TestDecode_BlockOutOfRange(t *testing.T) {
	t.Parallel()

	data := buildSimpleFile(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	_, err = DecodeBlock(meta, nil, region, 1, DecodeOptions{})
	assert.EqualError(t, errors.Cause(err), ErrFormat.Error())
}

func TestDecode_AllTypes(t *testing.T) {
	t.Parallel()

	mem := memory.DefaultAllocator

	var (
		fields []*Field
		cols   []arrow.Array
	)

	for typ := TypeBool; typ <= TypeBinary; typ++ {
		dt, err := typ.ArrowType()
		require.NoError(t, err)

		bld := array.NewBuilder(mem, dt)
		for i := 0; i < 11; i++ {
			if i%4 == 3 {
				bld.AppendNull()
				continue
			}

			require.NoError(t, bld.AppendValueFromString(sampleValue(typ, i)))
		}

		cols = append(cols, bld.NewArray())
		bld.Release()

		fields = append(fields, &Field{Name: typ.String(), Type: typ, Nullable: true})
	}

	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	b := newFileBuilder(t, fields...)
	b.addBlock(t, compression.CodecUncompressed, cols...)
	data := b.finish(t)

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	region := mapBytes(data)
	defer region.Release()

	rec, err := DecodeBlock(meta, nil, region, 0, DecodeOptions{VerifyChecksums: true})
	require.NoError(t, err)
	defer rec.Release()

	for i, c := range cols {
		assert.True(t, array.Equal(c, rec.Column(i)), fields[i].Name)
	}
}

func sampleValue(typ Type, i int) string {
	switch typ {
	case TypeBool:
		if i%2 == 0 {
			return "true"
		}

		return "false"
	case TypeUtf8:
		return string(rune('a' + i))
	case TypeBinary:
		return "AQI="
	default:
		return string(rune('0' + i%10))
	}
}

// rewriteOffsets overwrites the offsets buffer of column col in blk and
// updates the block checksum so that only the offsets are wrong.
func rewriteOffsets(data []byte, blk *Block, col int, offsets []int32) {
	start := blk.Offset + blk.Columns[col].Buffers[1].Offset

	for i, o := range offsets {
		binary.LittleEndian.PutUint32(data[start+int64(i)*4:], uint32(o))
	}

	blk.Checksum = Checksum(data[blk.Offset : blk.Offset+blk.Length])
}

func TestDecode_InvalidOffsets(t *testing.T) {
	t.Parallel()

	tests := map[string][]int32{
		"OutOfData":  {0, 100, 2, 3},
		"Decreasing": {0, 2, 1, 3},
		"Negative":   {-1, 1, 2, 3},
		"PastEnd":    {0, 1, 2, 4},
	}

	for name, offsets := range tests {
		b := newFileBuilder(t, &Field{Name: "s", Type: TypeUtf8})

		s := stringArray([]string{"a", "b", "c"}, nil)
		b.addBlock(t, compression.CodecUncompressed, s)
		s.Release()

		data := b.finish(t)

		meta, err := ParseFooter(data)
		require.NoError(t, err, name)

		rewriteOffsets(data, meta.Blocks[0], 0, offsets)

		region := mapBytes(data)

		_, err = DecodeBlock(meta, nil, region, 0, DecodeOptions{VerifyChecksums: true})
		assert.EqualError(t, errors.Cause(err), ErrFormat.Error(), name)

		_, err = ReadBlock(bytes.NewReader(data), meta, nil, 0, compression.Default(), DecodeOptions{VerifyChecksums: true})
		assert.EqualError(t, errors.Cause(err), ErrFormat.Error(), name)

		require.NoError(t, region.Release())
		assert.True(t, region.Released(), name)
	}
}

func TestDecode_Dictionary_InvalidOffsets(t *testing.T) {
	t.Parallel()

	data := buildDictionaryFile(t, []int32{0, 1})

	meta, err := ParseFooter(data)
	require.NoError(t, err)

	rewriteOffsets(data, meta.Dictionaries[0].Block, 0, []int32{0, 9, 5, 13})

	region := mapBytes(data)
	defer region.Release()

	_, err = DecodeDictionaries(meta, region, DecodeOptions{VerifyChecksums: true})
	assert.EqualError(t, errors.Cause(err), ErrFormat.Error())
}
