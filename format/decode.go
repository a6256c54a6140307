package format

import (
	"hash/crc32"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/mmap"
	"github.com/hexbee-net/errors"
)

// DecodeOptions controls block decoding.
type DecodeOptions struct {
	// VerifyChecksums compares each block with the crc32 stored in the footer.
	VerifyChecksums bool
}

// Dictionaries holds the decoded dictionaries of a file, by id.
type Dictionaries map[int64]arrow.Array

// Release drops the references held on every dictionary.
func (d Dictionaries) Release() {
	for id, arr := range d {
		arr.Release()
		delete(d, id)
	}
}

// bodySource hands out the buffers of one block body.
type bodySource interface {
	buffer(spec *BufferSpec) (*memory.Buffer, error)
}

// regionBody serves buffers that alias a mapped region.
type regionBody struct {
	region *mmap.Region
	offset int64
}

func (b regionBody) buffer(spec *BufferSpec) (*memory.Buffer, error) {
	if spec.Length == 0 {
		return nil, nil
	}

	buf, err := b.region.Buffer(b.offset+spec.Offset, spec.Length)
	if err != nil {
		return nil, formatError("buffer out of mapped region", errors.Fields{
			"offset": b.offset + spec.Offset,
			"length": spec.Length,
			"error":  err.Error(),
		})
	}

	return buf, nil
}

// ownedBody serves buffers over a decompressed copy of the block.
type ownedBody []byte

func (b ownedBody) buffer(spec *BufferSpec) (*memory.Buffer, error) {
	if spec.Length == 0 {
		return nil, nil
	}

	return memory.NewBufferBytes(b[spec.Offset : spec.Offset+spec.Length]), nil
}

func verifyChecksum(blk *Block, body []byte) error {
	if sum := crc32.ChecksumIEEE(body); int32(sum) != blk.Checksum {
		return formatError("block checksum mismatch", errors.Fields{
			"offset":   blk.Offset,
			"expected": uint32(blk.Checksum),
			"actual":   sum,
		})
	}

	return nil
}

// Checksum computes the value stored in Block.Checksum for the given on-disk bytes.
func Checksum(body []byte) int32 {
	return int32(crc32.ChecksumIEEE(body))
}

func mappedBody(region *mmap.Region, blk *Block, opts DecodeOptions) (bodySource, error) {
	if blk.Codec != compression.CodecUncompressed {
		return nil, formatError("compressed blocks cannot be memory mapped", errors.Fields{
			"codec": blk.Codec.String(),
		})
	}

	body, err := region.Slice(blk.Offset, blk.Length)
	if err != nil {
		return nil, formatError("block out of mapped region", errors.Fields{
			"offset": blk.Offset,
			"length": blk.Length,
			"error":  err.Error(),
		})
	}

	if opts.VerifyChecksums {
		if err := verifyChecksum(blk, body); err != nil {
			return nil, err
		}
	}

	return regionBody{region: region, offset: blk.Offset}, nil
}

func readBody(r io.ReadSeeker, blk *Block, codecs compression.Compressors, opts DecodeOptions) (bodySource, error) {
	if _, err := r.Seek(blk.Offset, io.SeekStart); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, "failed to seek to block"),
			errors.Fields{
				"offset": blk.Offset,
			})
	}

	data := make([]byte, blk.Length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, "failed to read block data"),
			errors.Fields{
				"offset": blk.Offset,
				"length": blk.Length,
			})
	}

	if opts.VerifyChecksums {
		if err := verifyChecksum(blk, data); err != nil {
			return nil, err
		}
	}

	body, err := codecs.Decompress(blk.Codec, data, blk.UncompressedLength)
	if err != nil {
		return nil, formatError("failed to decompress block", errors.Fields{
			"codec": blk.Codec.String(),
			"error": err.Error(),
		})
	}

	return ownedBody(body), nil
}

// DecodeDictionaries decodes every dictionary of the file from a mapped region.
// The returned arrays alias the region.
func DecodeDictionaries(meta *FileMetaData, region *mmap.Region, opts DecodeOptions) (Dictionaries, error) {
	return decodeDictionaries(meta, func(blk *Block) (bodySource, error) {
		return mappedBody(region, blk, opts)
	})
}

// ReadDictionaries reads and decodes every dictionary of the file.
func ReadDictionaries(r io.ReadSeeker, meta *FileMetaData, codecs compression.Compressors, opts DecodeOptions) (Dictionaries, error) {
	return decodeDictionaries(meta, func(blk *Block) (bodySource, error) {
		return readBody(r, blk, codecs, opts)
	})
}

func decodeDictionaries(meta *FileMetaData, load func(*Block) (bodySource, error)) (Dictionaries, error) {
	dicts := make(Dictionaries, len(meta.Dictionaries))

	for _, d := range meta.Dictionaries {
		arr, err := decodeDictionary(meta, d, load)
		if err != nil {
			dicts.Release()

			return nil, errors.WithFields(err, errors.Fields{
				"dictionary-id": d.ID,
			})
		}

		dicts[d.ID] = arr
	}

	return dicts, nil
}

func decodeDictionary(meta *FileMetaData, d *DictionaryBlock, load func(*Block) (bodySource, error)) (arrow.Array, error) {
	var valueType Type

	for _, f := range meta.Schema {
		if f.DictionaryID != nil && *f.DictionaryID == d.ID {
			valueType = f.Type
			break
		}
	}

	src, err := load(d.Block)
	if err != nil {
		return nil, err
	}

	values := &Field{Name: "values", Type: valueType, Nullable: true}

	return decodeColumn(values, d.Block.Columns[0], d.Block.NumRows, src, nil)
}

// DecodeBlock decodes data block i from a mapped region. Every buffer of the
// returned record aliases the region and holds a reference on it.
func DecodeBlock(meta *FileMetaData, dicts Dictionaries, region *mmap.Region, i int, opts DecodeOptions) (arrow.Record, error) {
	blk, err := blockAt(meta, i)
	if err != nil {
		return nil, err
	}

	src, err := mappedBody(region, blk, opts)
	if err != nil {
		return nil, errors.WithFields(err, errors.Fields{
			"block": i,
		})
	}

	return decodeRecord(meta, dicts, blk, src, i)
}

// ReadBlock reads and decodes data block i.
func ReadBlock(r io.ReadSeeker, meta *FileMetaData, dicts Dictionaries, i int, codecs compression.Compressors, opts DecodeOptions) (arrow.Record, error) {
	blk, err := blockAt(meta, i)
	if err != nil {
		return nil, err
	}

	src, err := readBody(r, blk, codecs, opts)
	if err != nil {
		return nil, errors.WithFields(err, errors.Fields{
			"block": i,
		})
	}

	return decodeRecord(meta, dicts, blk, src, i)
}

func blockAt(meta *FileMetaData, i int) (*Block, error) {
	if i < 0 || i >= len(meta.Blocks) {
		return nil, formatError("block index out of range", errors.Fields{
			"block":  i,
			"blocks": len(meta.Blocks),
		})
	}

	return meta.Blocks[i], nil
}

func decodeRecord(meta *FileMetaData, dicts Dictionaries, blk *Block, src bodySource, i int) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, len(meta.Schema))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for j, f := range meta.Schema {
		arr, err := decodeColumn(f, blk.Columns[j], blk.NumRows, src, dicts)
		if err != nil {
			return nil, errors.WithFields(err, errors.Fields{
				"block":  i,
				"column": f.Name,
			})
		}

		cols = append(cols, arr)
	}

	return array.NewRecord(meta.ArrowSchema(), cols, blk.NumRows), nil
}

func decodeColumn(f *Field, chunk *ColumnChunk, rows int64, src bodySource, dicts Dictionaries) (arrow.Array, error) {
	if f.DictionaryID != nil {
		return decodeDictionaryColumn(f, chunk, rows, src, dicts)
	}

	dt, err := f.Type.ArrowType()
	if err != nil {
		return nil, err
	}

	switch {
	case f.Type.isVarBinary():
		return decodeVarBinary(dt, chunk, rows, src)
	case f.Type == TypeBool:
		return decodeFixed(dt, chunk, rows, bytesForBits(rows), src)
	default:
		return decodeFixed(dt, chunk, rows, rows*f.Type.byteWidth(), src)
	}
}

func decodeDictionaryColumn(f *Field, chunk *ColumnChunk, rows int64, src bodySource, dicts Dictionaries) (arrow.Array, error) {
	dict, ok := dicts[*f.DictionaryID]
	if !ok {
		return nil, formatError("missing dictionary", errors.Fields{
			"dictionary-id": *f.DictionaryID,
		})
	}

	indices, err := decodeFixed(arrow.PrimitiveTypes.Int32, chunk, rows, rows*4, src)
	if err != nil {
		return nil, err
	}
	defer indices.Release()

	idx := indices.(*array.Int32)
	for i, v := range idx.Int32Values() {
		if idx.IsValid(i) && (v < 0 || int(v) >= dict.Len()) {
			return nil, formatError("invalid dictionary index", errors.Fields{
				"index":  v,
				"values": dict.Len(),
				"row":    i,
			})
		}
	}

	dt := &arrow.DictionaryType{
		IndexType: arrow.PrimitiveTypes.Int32,
		ValueType: dict.DataType(),
	}

	return array.NewDictionaryArray(dt, indices, dict), nil
}

func decodeValidity(chunk *ColumnChunk, rows int64, src bodySource) (*memory.Buffer, int64, error) {
	spec := chunk.Buffers[0]
	if spec.Length == 0 {
		if chunk.NullCount != 0 {
			return nil, 0, formatError("null count without validity bitmap", errors.Fields{
				"null-count": chunk.NullCount,
			})
		}

		return nil, 0, nil
	}

	if spec.Length < bytesForBits(rows) {
		return nil, 0, formatError("validity bitmap too short", errors.Fields{
			"length": spec.Length,
			"rows":   rows,
		})
	}

	buf, err := src.buffer(spec)
	if err != nil {
		return nil, 0, err
	}

	return buf, chunk.NullCount, nil
}

func decodeFixed(dt arrow.DataType, chunk *ColumnChunk, rows, size int64, src bodySource) (arrow.Array, error) {
	if len(chunk.Buffers) != 2 {
		return nil, formatError("unexpected buffer count", errors.Fields{
			"expected": 2,
			"actual":   len(chunk.Buffers),
		})
	}

	if chunk.Buffers[1].Length < size {
		return nil, formatError("values buffer too short", errors.Fields{
			"expected": size,
			"actual":   chunk.Buffers[1].Length,
		})
	}

	bufs, nulls, err := loadBuffers(chunk, rows, src)
	if err != nil {
		return nil, err
	}

	return makeArray(dt, rows, bufs, nulls), nil
}

func decodeVarBinary(dt arrow.DataType, chunk *ColumnChunk, rows int64, src bodySource) (arrow.Array, error) {
	if len(chunk.Buffers) != 3 {
		return nil, formatError("unexpected buffer count", errors.Fields{
			"expected": 3,
			"actual":   len(chunk.Buffers),
		})
	}

	if chunk.Buffers[1].Length < (rows+1)*4 {
		return nil, formatError("offsets buffer too short", errors.Fields{
			"expected": (rows + 1) * 4,
			"actual":   chunk.Buffers[1].Length,
		})
	}

	bufs, nulls, err := loadBuffers(chunk, rows, src)
	if err != nil {
		return nil, err
	}

	offsets := arrow.Int32Traits.CastFromBytes(bufs[1].Bytes())[:rows+1]

	if err := checkOffsets(offsets, chunk.Buffers[2].Length); err != nil {
		releaseBuffers(bufs)
		return nil, err
	}

	return makeArray(dt, rows, bufs, nulls), nil
}

// checkOffsets ensures every value of a var-binary column lies within the
// data buffer: offsets start at or after zero, never decrease and end
// within length.
func checkOffsets(offsets []int32, length int64) error {
	if offsets[0] < 0 {
		return formatError("negative value offset", errors.Fields{
			"offset": offsets[0],
		})
	}

	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return formatError("decreasing value offsets", errors.Fields{
				"row":   i - 1,
				"start": offsets[i-1],
				"end":   offsets[i],
			})
		}
	}

	if last := offsets[len(offsets)-1]; int64(last) > length {
		return formatError("offsets out of data buffer", errors.Fields{
			"last":   last,
			"length": length,
		})
	}

	return nil
}

func loadBuffers(chunk *ColumnChunk, rows int64, src bodySource) ([]*memory.Buffer, int64, error) {
	validity, nulls, err := decodeValidity(chunk, rows, src)
	if err != nil {
		return nil, 0, err
	}

	bufs := []*memory.Buffer{validity}

	for _, spec := range chunk.Buffers[1:] {
		buf, err := src.buffer(spec)
		if err != nil {
			releaseBuffers(bufs)
			return nil, 0, err
		}

		bufs = append(bufs, buf)
	}

	return bufs, nulls, nil
}

func makeArray(dt arrow.DataType, rows int64, bufs []*memory.Buffer, nulls int64) arrow.Array {
	data := array.NewData(dt, int(rows), bufs, nil, int(nulls), 0)
	releaseBuffers(bufs)

	defer data.Release()

	return array.MakeFromData(data)
}

func releaseBuffers(bufs []*memory.Buffer) {
	for _, b := range bufs {
		if b != nil {
			b.Release()
		}
	}
}
