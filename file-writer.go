package columnar

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/format"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/errors"
)

const (
	// DefaultBlockRows is the maximum number of rows per block of a FileWriter.
	DefaultBlockRows = 64 * 1024

	errSchemaMismatch    = errors.Error("record schema does not match file schema")
	errDictionaryChanged = errors.Error("dictionary changed between records")
)

// WriterOption configures a FileWriter.
type WriterOption func(*FileWriter)

// WithCompressionCodec compresses every block with codec. Compressed files
// can only be read with the stream strategy.
func WithCompressionCodec(codec compression.Codec) WriterOption {
	return func(w *FileWriter) {
		w.codec = codec
	}
}

func WithWriterCompressors(codecs compression.Compressors) WriterOption {
	return func(w *FileWriter) {
		w.codecs = codecs
	}
}

// WithMaxBlockRows caps the number of rows per block. Larger records are
// split over several blocks.
func WithMaxBlockRows(n int64) WriterOption {
	return func(w *FileWriter) {
		if n > 0 {
			w.blockRows = n
		}
	}
}

// WithMetaData adds key-value pairs to the file metadata.
func WithMetaData(data map[string]string) WriterOption {
	return func(w *FileWriter) {
		for k, v := range data {
			w.kv[k] = v
		}
	}
}

// FileWriter writes record batches to a columnar file.
// Always use NewFileWriter to create such an object.
type FileWriter struct {
	dst       source.Writer
	w         *offsetWriter
	schema    *arrow.Schema
	meta      *format.FileMetaData
	codec     compression.Codec
	codecs    compression.Compressors
	blockRows int64
	kv        map[string]string
	dicts     map[int64]arrow.Array
	closed    bool
}

// NewFileWriter writes the file header to w and returns a writer for records
// of the given schema. Every dictionary field gets its own dictionary.
func NewFileWriter(w source.Writer, schema *arrow.Schema, opts ...WriterOption) (*FileWriter, error) {
	fw := &FileWriter{
		dst:       w,
		w:         &offsetWriter{inner: w},
		schema:    schema,
		codec:     compression.CodecUncompressed,
		codecs:    compression.Default(),
		blockRows: DefaultBlockRows,
		kv:        make(map[string]string),
		dicts:     make(map[int64]arrow.Array),
	}

	md := schema.Metadata()
	for i, k := range md.Keys() {
		fw.kv[k] = md.Values()[i]
	}

	for _, opt := range opts {
		opt(fw)
	}

	fw.meta = &format.FileMetaData{
		Version: format.Version,
	}

	var nextID int64

	for _, f := range schema.Fields() {
		var id *int64

		if _, ok := f.Type.(*arrow.DictionaryType); ok {
			dictID := nextID
			id = &dictID
			nextID++
		}

		field, err := format.FieldFromArrow(f, id)
		if err != nil {
			return nil, err
		}

		fw.meta.Schema = append(fw.meta.Schema, field)
	}

	if err := format.WriteHeader(fw.w); err != nil {
		return nil, errors.Wrap(err, "failed to write file header")
	}

	return fw, nil
}

// Write appends rec to the file, split into blocks of at most the
// configured number of rows. Dictionary columns must keep the same
// dictionary across records.
func (w *FileWriter) Write(rec arrow.Record) error {
	if w.closed {
		return errors.WithStack(errWriterClosed)
	}

	if !rec.Schema().Equal(w.schema) {
		return errors.WithFields(
			errors.WithStack(errSchemaMismatch),
			errors.Fields{
				"expected": w.schema.String(),
				"actual":   rec.Schema().String(),
			})
	}

	if err := w.writeDictionaries(rec); err != nil {
		return err
	}

	for off := int64(0); off < rec.NumRows(); off += w.blockRows {
		end := off + w.blockRows
		if end > rec.NumRows() {
			end = rec.NumRows()
		}

		slice := rec.NewSlice(off, end)
		blk, err := w.writeBlock(slice.Columns(), slice.NumRows())
		slice.Release()

		if err != nil {
			return err
		}

		w.meta.Blocks = append(w.meta.Blocks, blk)
		w.meta.NumRows += blk.NumRows
	}

	return nil
}

func (w *FileWriter) writeDictionaries(rec arrow.Record) error {
	for i, f := range w.meta.Schema {
		if f.DictionaryID == nil {
			continue
		}

		dict := rec.Column(i).(*array.Dictionary).Dictionary()

		if prev, ok := w.dicts[*f.DictionaryID]; ok {
			if !array.Equal(prev, dict) {
				return errors.WithFields(
					errors.WithStack(errDictionaryChanged),
					errors.Fields{
						"field": f.Name,
					})
			}

			continue
		}

		if err := w.writeDictionary(*f.DictionaryID, dict); err != nil {
			return errors.WithFields(err, errors.Fields{
				"field": f.Name,
			})
		}
	}

	return nil
}

func (w *FileWriter) writeDictionary(id int64, values arrow.Array) error {
	blk, err := w.writeBlock([]arrow.Array{values}, int64(values.Len()))
	if err != nil {
		return err
	}

	values.Retain()
	w.dicts[id] = values

	w.meta.Dictionaries = append(w.meta.Dictionaries, &format.DictionaryBlock{
		ID:    id,
		Block: blk,
	})

	return nil
}

func (w *FileWriter) writeBlock(cols []arrow.Array, rows int64) (*format.Block, error) {
	body, chunks, err := format.EncodeColumns(cols)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode block")
	}

	data, err := w.codecs.Compress(w.codec, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compress block")
	}

	blk := &format.Block{
		Offset:             w.w.offset,
		Length:             int64(len(data)),
		UncompressedLength: int64(len(body)),
		NumRows:            rows,
		Codec:              w.codec,
		Checksum:           format.Checksum(data),
		Columns:            chunks,
	}

	if _, err := w.w.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to write block")
	}

	if err := w.w.pad(format.Alignment); err != nil {
		return nil, errors.Wrap(err, "failed to pad block")
	}

	return blk, nil
}

// Close writes the footer and closes the underlying writer. Dictionary
// fields that never saw a record get an empty dictionary. The underlying
// writer is closed even when the footer cannot be written.
func (w *FileWriter) Close() error {
	if w.closed {
		return nil
	}

	w.closed = true

	defer func() {
		for _, d := range w.dicts {
			d.Release()
		}
	}()

	if err := w.finish(); err != nil {
		_ = w.dst.Close()
		return err
	}

	return w.dst.Close()
}

func (w *FileWriter) finish() error {
	for _, f := range w.meta.Schema {
		if f.DictionaryID == nil {
			continue
		}

		if _, ok := w.dicts[*f.DictionaryID]; ok {
			continue
		}

		dt, err := f.Type.ArrowType()
		if err != nil {
			return err
		}

		empty := array.MakeArrayOfNull(memory.DefaultAllocator, dt, 0)
		err = w.writeDictionary(*f.DictionaryID, empty)
		empty.Release()

		if err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(w.kv))
	for k := range w.kv {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		v := w.kv[k]
		w.meta.KeyValueMetadata = append(w.meta.KeyValueMetadata, &format.KeyValue{Key: k, Value: &v})
	}

	if err := format.WriteFooter(w.w, w.meta); err != nil {
		return errors.Wrap(err, "failed to write file footer")
	}

	return nil
}
