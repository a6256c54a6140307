package format

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/errors"
)

// ParseFooter reads and validates the footer of a file held entirely in memory.
func ParseFooter(data []byte) (*FileMetaData, error) {
	size := int64(len(data))

	footerLen, err := checkTrailer(data[:min(size, HeaderSize)], data[max(0, size-trailerSize):], size)
	if err != nil {
		return nil, err
	}

	start := size - trailerSize - footerLen

	return decodeFooter(bytes.NewReader(data[start:size-trailerSize]), start, size)
}

// ReadFooter reads and validates the footer of a seekable file.
func ReadFooter(r io.ReadSeeker) (*FileMetaData, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to seek to the end of file")
	}

	if size < HeaderSize+trailerSize {
		return nil, formatError("file too small", errors.Fields{
			"size": size,
		})
	}

	header := make([]byte, HeaderSize)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to seek to the start of file")
	}

	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.Wrap(err, "failed to read file header")
	}

	trailer := make([]byte, trailerSize)
	if _, err := r.Seek(-trailerSize, io.SeekEnd); err != nil {
		return nil, errors.Wrap(err, "failed to seek to the footer length")
	}

	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, errors.Wrap(err, "failed to read footer length")
	}

	footerLen, err := checkTrailer(header, trailer, size)
	if err != nil {
		return nil, err
	}

	start := size - trailerSize - footerLen
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "failed to seek to the footer")
	}

	return decodeFooter(io.LimitReader(r, footerLen), start, size)
}

func checkTrailer(header, trailer []byte, size int64) (int64, error) {
	if size < HeaderSize+trailerSize {
		return 0, formatError("file too small", errors.Fields{
			"size": size,
		})
	}

	if string(header[:magicLen]) != Magic {
		return 0, formatError("invalid file header", errors.Fields{
			"header": header[:magicLen],
		})
	}

	if string(trailer[footerLenSize:]) != Magic {
		return 0, formatError("invalid file trailer", errors.Fields{
			"trailer": trailer[footerLenSize:],
		})
	}

	footerLen := int64(int32(binary.LittleEndian.Uint32(trailer[:footerLenSize])))
	if footerLen <= 0 || footerLen > size-HeaderSize-trailerSize {
		return 0, formatError("invalid footer length", errors.Fields{
			"footer-length": footerLen,
			"file-size":     size,
		})
	}

	return footerLen, nil
}

func decodeFooter(r io.Reader, start, size int64) (*FileMetaData, error) {
	meta := &FileMetaData{}
	if err := readThrift(meta, r); err != nil {
		return nil, formatError("failed to decode footer", errors.Fields{
			"error": err.Error(),
		})
	}

	if err := meta.validate(start); err != nil {
		return nil, errors.WithFields(err, errors.Fields{
			"file-size": size,
		})
	}

	return meta, nil
}

// WriteFooter writes the footer, its length and the trailing magic.
func WriteFooter(w io.Writer, meta *FileMetaData) error {
	var buf bytes.Buffer
	if err := writeThrift(meta, &buf); err != nil {
		return errors.Wrap(err, "failed to encode footer")
	}

	trailer := make([]byte, trailerSize)
	binary.LittleEndian.PutUint32(trailer, uint32(buf.Len()))
	copy(trailer[footerLenSize:], Magic)

	if _, err := buf.Write(trailer); err != nil {
		return err
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write footer")
	}

	return nil
}

// WriteHeader writes the leading magic and its padding.
func WriteHeader(w io.Writer) error {
	header := make([]byte, HeaderSize)
	copy(header, Magic)

	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "failed to write file header")
	}

	return nil
}

// validate checks the footer is self consistent and that every block lies
// between the header and footerStart.
func (m *FileMetaData) validate(footerStart int64) error {
	if m.Version != Version {
		return formatError("unsupported format version", errors.Fields{
			"version": m.Version,
		})
	}

	if len(m.Schema) == 0 {
		return formatError("schema has no field", nil)
	}

	dictTypes := make(map[int64]Type)

	for i, f := range m.Schema {
		if f == nil || f.Name == "" {
			return formatError("unnamed field", errors.Fields{
				"field": i,
			})
		}

		if !f.Type.Valid() {
			return formatError("unsupported column type", errors.Fields{
				"field": f.Name,
				"type":  int32(f.Type),
			})
		}

		if f.DictionaryID == nil {
			continue
		}

		if t, ok := dictTypes[*f.DictionaryID]; ok && t != f.Type {
			return formatError("dictionary shared by fields of different types", errors.Fields{
				"field":         f.Name,
				"dictionary-id": *f.DictionaryID,
			})
		}

		dictTypes[*f.DictionaryID] = f.Type
	}

	seen := make(map[int64]struct{}, len(m.Dictionaries))

	for _, d := range m.Dictionaries {
		if d == nil || d.Block == nil {
			return formatError("dictionary without block", nil)
		}

		if _, ok := seen[d.ID]; ok {
			return formatError("duplicate dictionary", errors.Fields{
				"dictionary-id": d.ID,
			})
		}

		seen[d.ID] = struct{}{}

		t, ok := dictTypes[d.ID]
		if !ok {
			return formatError("dictionary not referenced by any field", errors.Fields{
				"dictionary-id": d.ID,
			})
		}

		if err := validateBlock(d.Block, []*Field{{Name: "values", Type: t, Nullable: true}}, footerStart); err != nil {
			return errors.WithFields(err, errors.Fields{
				"dictionary-id": d.ID,
			})
		}
	}

	for id := range dictTypes {
		if _, ok := seen[id]; !ok {
			return formatError("missing dictionary", errors.Fields{
				"dictionary-id": id,
			})
		}
	}

	var rows int64

	for i, b := range m.Blocks {
		if b == nil {
			return formatError("missing block", errors.Fields{
				"block": i,
			})
		}

		if err := validateBlock(b, m.Schema, footerStart); err != nil {
			return errors.WithFields(err, errors.Fields{
				"block": i,
			})
		}

		rows += b.NumRows
	}

	if rows != m.NumRows {
		return formatError("row count does not match blocks", errors.Fields{
			"num-rows":   m.NumRows,
			"block-rows": rows,
		})
	}

	m.schema = m.buildSchema()

	return nil
}

func validateBlock(b *Block, fields []*Field, footerStart int64) error {
	if b.Offset < HeaderSize || b.Length < 0 || b.Offset > footerStart-b.Length {
		return formatError("block out of file bounds", errors.Fields{
			"offset": b.Offset,
			"length": b.Length,
		})
	}

	if b.Offset%Alignment != 0 {
		return formatError("misaligned block", errors.Fields{
			"offset":    b.Offset,
			"alignment": Alignment,
		})
	}

	if !b.Codec.Valid() {
		return formatError("unknown compression codec", errors.Fields{
			"codec": int32(b.Codec),
		})
	}

	if b.UncompressedLength < 0 || (b.Codec == compression.CodecUncompressed && b.UncompressedLength != b.Length) {
		return formatError("invalid uncompressed length", errors.Fields{
			"length":              b.Length,
			"uncompressed-length": b.UncompressedLength,
		})
	}

	if b.NumRows < 0 {
		return formatError("negative row count", errors.Fields{
			"num-rows": b.NumRows,
		})
	}

	if len(b.Columns) != len(fields) {
		return formatError("column count does not match schema", errors.Fields{
			"expected": len(fields),
			"actual":   len(b.Columns),
		})
	}

	for i, c := range b.Columns {
		if err := validateChunk(c, fields[i], b); err != nil {
			return errors.WithFields(err, errors.Fields{
				"column": fields[i].Name,
			})
		}
	}

	return nil
}

func validateChunk(c *ColumnChunk, f *Field, b *Block) error {
	if c == nil {
		return formatError("missing column chunk", nil)
	}

	want := 2
	if f.DictionaryID == nil && f.Type.isVarBinary() {
		want = 3
	}

	if len(c.Buffers) != want {
		return formatError("unexpected buffer count", errors.Fields{
			"expected": want,
			"actual":   len(c.Buffers),
		})
	}

	if c.NullCount < 0 || c.NullCount > b.NumRows {
		return formatError("invalid null count", errors.Fields{
			"null-count": c.NullCount,
			"num-rows":   b.NumRows,
		})
	}

	for _, s := range c.Buffers {
		if s == nil || s.Offset < 0 || s.Length < 0 || s.Offset > b.UncompressedLength-s.Length {
			return formatError("buffer out of block bounds", errors.Fields{
				"block-length": b.UncompressedLength,
			})
		}

		if s.Offset%Alignment != 0 {
			return formatError("misaligned buffer", errors.Fields{
				"offset":    s.Offset,
				"alignment": Alignment,
			})
		}
	}

	return nil
}
