package format

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/errors"
)

// FieldFromArrow describes an arrow field. dictionaryID must be set for
// dictionary typed fields, whose index type must be int32.
func FieldFromArrow(f arrow.Field, dictionaryID *int64) (*Field, error) {
	t, err := TypeFromArrow(f.Type)
	if err != nil {
		return nil, errors.WithFields(err, errors.Fields{
			"field": f.Name,
		})
	}

	dict, isDict := f.Type.(*arrow.DictionaryType)

	switch {
	case isDict && dictionaryID == nil:
		return nil, errors.WithFields(
			errors.New("dictionary field without dictionary id"),
			errors.Fields{
				"field": f.Name,
			})
	case isDict && !arrow.TypeEqual(dict.IndexType, arrow.PrimitiveTypes.Int32):
		return nil, errors.WithFields(
			errors.New("dictionary index type must be int32"),
			errors.Fields{
				"field": f.Name,
				"type":  dict.IndexType.String(),
			})
	case !isDict:
		dictionaryID = nil
	}

	return &Field{
		Name:         f.Name,
		Type:         t,
		Nullable:     f.Nullable,
		DictionaryID: dictionaryID,
	}, nil
}

// EncodeColumns lays out the buffers of the given columns one after the other,
// each starting on an aligned offset. Dictionary columns contribute their
// indices only.
func EncodeColumns(cols []arrow.Array) ([]byte, []*ColumnChunk, error) {
	var body bytes.Buffer

	chunks := make([]*ColumnChunk, 0, len(cols))

	for i, col := range cols {
		chunk, err := encodeColumn(&body, col)
		if err != nil {
			return nil, nil, errors.WithFields(err, errors.Fields{
				"column": i,
			})
		}

		chunks = append(chunks, chunk)
	}

	return body.Bytes(), chunks, nil
}

func encodeColumn(body *bytes.Buffer, arr arrow.Array) (*ColumnChunk, error) {
	if dict, ok := arr.(*array.Dictionary); ok {
		arr = dict.Indices()
	}

	if arr.Data().Offset() != 0 {
		flat, err := array.Concatenate([]arrow.Array{arr}, memory.DefaultAllocator)
		if err != nil {
			return nil, errors.Wrap(err, "failed to flatten sliced array")
		}
		defer flat.Release()

		arr = flat
	}

	n := int64(arr.Len())
	chunk := &ColumnChunk{NullCount: int64(arr.NullN())}

	var validity []byte
	if arr.NullN() > 0 {
		validity = bufferBytes(arr.Data().Buffers()[0], bytesForBits(n))
	}

	chunk.Buffers = append(chunk.Buffers, appendBuffer(body, validity))

	t, err := TypeFromArrow(arr.DataType())
	if err != nil {
		return nil, err
	}

	bufs := arr.Data().Buffers()

	switch {
	case t.isVarBinary():
		offsets, data, err := varBinaryBuffers(arr)
		if err != nil {
			return nil, err
		}

		chunk.Buffers = append(chunk.Buffers,
			appendBuffer(body, offsets),
			appendBuffer(body, data))
	case t == TypeBool:
		chunk.Buffers = append(chunk.Buffers, appendBuffer(body, bufferBytes(bufs[1], bytesForBits(n))))
	default:
		chunk.Buffers = append(chunk.Buffers, appendBuffer(body, bufferBytes(bufs[1], n*t.byteWidth())))
	}

	return chunk, nil
}

func varBinaryBuffers(arr arrow.Array) ([]byte, []byte, error) {
	if arr.Len() == 0 {
		return make([]byte, 4), nil, nil
	}

	var offsets []int32

	switch a := arr.(type) {
	case *array.String:
		offsets = a.ValueOffsets()
	case *array.Binary:
		offsets = a.ValueOffsets()
	default:
		return nil, nil, errors.WithFields(
			errors.New("unexpected variable length array"),
			errors.Fields{
				"type": arr.DataType().String(),
			})
	}

	base := offsets[0]
	rebased := make([]int32, len(offsets))

	for i, o := range offsets {
		rebased[i] = o - base
	}

	data := bufferBytes(arr.Data().Buffers()[2], int64(offsets[len(offsets)-1]))

	return arrow.Int32Traits.CastToBytes(rebased), data[base:], nil
}

func bufferBytes(buf *memory.Buffer, n int64) []byte {
	if buf == nil || n == 0 {
		return nil
	}

	return buf.Bytes()[:n]
}

func appendBuffer(body *bytes.Buffer, b []byte) *BufferSpec {
	spec := &BufferSpec{
		Offset: int64(body.Len()),
		Length: int64(len(b)),
	}

	body.Write(b)
	body.Write(make([]byte, padding(spec.Length)))

	return spec
}

// Pad returns the number of zero bytes needed to align n.
func Pad(n int64) int64 {
	return padding(n)
}
