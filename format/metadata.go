package format

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/thrift/lib/go/thrift"
	"github.com/hexbee-net/columnar/compression"
)

// FileMetaData is the footer of a file. It is immutable once read.
type FileMetaData struct {
	Version          int32
	Schema           []*Field
	Blocks           []*Block
	Dictionaries     []*DictionaryBlock
	KeyValueMetadata []*KeyValue
	NumRows          int64

	schema *arrow.Schema
}

// Field describes one column. Dictionary encoded columns reference the
// dictionary holding their values.
type Field struct {
	Name         string
	Type         Type
	Nullable     bool
	DictionaryID *int64
}

// Block locates one record batch (or one dictionary) in the file.
type Block struct {
	Offset             int64
	Length             int64
	UncompressedLength int64
	NumRows            int64
	Codec              compression.Codec
	// Checksum is the IEEE crc32 of the on-disk bytes.
	Checksum int32
	Columns  []*ColumnChunk
}

type ColumnChunk struct {
	NullCount int64
	Buffers   []*BufferSpec
}

// BufferSpec is relative to the start of the uncompressed block body.
type BufferSpec struct {
	Offset int64
	Length int64
}

type DictionaryBlock struct {
	ID    int64
	Block *Block
}

type KeyValue struct {
	Key   string
	Value *string
}

// ArrowSchema returns the schema of the record batches stored in the file.
func (m *FileMetaData) ArrowSchema() *arrow.Schema {
	if m.schema != nil {
		return m.schema
	}

	return m.buildSchema()
}

func (m *FileMetaData) buildSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(m.Schema))
	for i, f := range m.Schema {
		fields[i] = f.ArrowField()
	}

	var md *arrow.Metadata
	if len(m.KeyValueMetadata) > 0 {
		keys := make([]string, 0, len(m.KeyValueMetadata))
		values := make([]string, 0, len(m.KeyValueMetadata))

		for _, kv := range m.KeyValueMetadata {
			keys = append(keys, kv.Key)
			if kv.Value != nil {
				values = append(values, *kv.Value)
			} else {
				values = append(values, "")
			}
		}

		meta := arrow.NewMetadata(keys, values)
		md = &meta
	}

	return arrow.NewSchema(fields, md)
}

// ArrowField returns the arrow description of the column. Unknown types map
// to arrow's null type; footers are validated before being handed out.
func (f *Field) ArrowField() arrow.Field {
	dt, err := f.Type.ArrowType()
	if err != nil {
		dt = arrow.Null
	}

	if f.DictionaryID != nil {
		dt = &arrow.DictionaryType{
			IndexType: arrow.PrimitiveTypes.Int32,
			ValueType: dt,
		}
	}

	return arrow.Field{
		Name:     f.Name,
		Type:     dt,
		Nullable: f.Nullable,
	}
}

// NumColumns returns the number of columns of the file.
func (m *FileMetaData) NumColumns() int {
	return len(m.Schema)
}

func (m *FileMetaData) read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error) {
		var err error

		switch {
		case id == 1 && typ == thrift.I32:
			m.Version, err = p.ReadI32(ctx)
		case id == 2 && typ == thrift.LIST:
			m.Schema, err = readStructList[Field](ctx, p)
		case id == 3 && typ == thrift.LIST:
			m.Blocks, err = readStructList[Block](ctx, p)
		case id == 4 && typ == thrift.LIST:
			m.Dictionaries, err = readStructList[DictionaryBlock](ctx, p)
		case id == 5 && typ == thrift.LIST:
			m.KeyValueMetadata, err = readStructList[KeyValue](ctx, p)
		case id == 6 && typ == thrift.I64:
			m.NumRows, err = p.ReadI64(ctx)
		default:
			return false, nil
		}

		return true, err
	})
}

func (m *FileMetaData) write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, "FileMetaData", func() error {
		if err := writeI32(ctx, p, "version", 1, m.Version); err != nil {
			return err
		}

		if err := writeStructList(ctx, p, "schema", 2, m.Schema); err != nil {
			return err
		}

		if err := writeStructList(ctx, p, "blocks", 3, m.Blocks); err != nil {
			return err
		}

		if len(m.Dictionaries) > 0 {
			if err := writeStructList(ctx, p, "dictionaries", 4, m.Dictionaries); err != nil {
				return err
			}
		}

		if len(m.KeyValueMetadata) > 0 {
			if err := writeStructList(ctx, p, "key_value_metadata", 5, m.KeyValueMetadata); err != nil {
				return err
			}
		}

		return writeI64(ctx, p, "num_rows", 6, m.NumRows)
	})
}

func (f *Field) read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error) {
		var err error

		switch {
		case id == 1 && typ == thrift.STRING:
			f.Name, err = p.ReadString(ctx)
		case id == 2 && typ == thrift.I32:
			var t int32
			t, err = p.ReadI32(ctx)
			f.Type = Type(t)
		case id == 3 && typ == thrift.BOOL:
			f.Nullable, err = p.ReadBool(ctx)
		case id == 4 && typ == thrift.I64:
			var dictID int64
			dictID, err = p.ReadI64(ctx)
			f.DictionaryID = &dictID
		default:
			return false, nil
		}

		return true, err
	})
}

func (f *Field) write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, "Field", func() error {
		if err := writeString(ctx, p, "name", 1, f.Name); err != nil {
			return err
		}

		if err := writeI32(ctx, p, "type", 2, int32(f.Type)); err != nil {
			return err
		}

		err := writeField(ctx, p, "nullable", thrift.BOOL, 3, func() error {
			return p.WriteBool(ctx, f.Nullable)
		})
		if err != nil {
			return err
		}

		if f.DictionaryID != nil {
			return writeI64(ctx, p, "dictionary_id", 4, *f.DictionaryID)
		}

		return nil
	})
}

func (b *Block) read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error) {
		var err error

		switch {
		case id == 1 && typ == thrift.I64:
			b.Offset, err = p.ReadI64(ctx)
		case id == 2 && typ == thrift.I64:
			b.Length, err = p.ReadI64(ctx)
		case id == 3 && typ == thrift.I64:
			b.UncompressedLength, err = p.ReadI64(ctx)
		case id == 4 && typ == thrift.I64:
			b.NumRows, err = p.ReadI64(ctx)
		case id == 5 && typ == thrift.I32:
			var c int32
			c, err = p.ReadI32(ctx)
			b.Codec = compression.Codec(c)
		case id == 6 && typ == thrift.I32:
			b.Checksum, err = p.ReadI32(ctx)
		case id == 7 && typ == thrift.LIST:
			b.Columns, err = readStructList[ColumnChunk](ctx, p)
		default:
			return false, nil
		}

		return true, err
	})
}

func (b *Block) write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, "Block", func() error {
		if err := writeI64(ctx, p, "offset", 1, b.Offset); err != nil {
			return err
		}

		if err := writeI64(ctx, p, "length", 2, b.Length); err != nil {
			return err
		}

		if err := writeI64(ctx, p, "uncompressed_length", 3, b.UncompressedLength); err != nil {
			return err
		}

		if err := writeI64(ctx, p, "num_rows", 4, b.NumRows); err != nil {
			return err
		}

		if err := writeI32(ctx, p, "codec", 5, int32(b.Codec)); err != nil {
			return err
		}

		if err := writeI32(ctx, p, "checksum", 6, b.Checksum); err != nil {
			return err
		}

		return writeStructList(ctx, p, "columns", 7, b.Columns)
	})
}

func (c *ColumnChunk) read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error) {
		var err error

		switch {
		case id == 1 && typ == thrift.I64:
			c.NullCount, err = p.ReadI64(ctx)
		case id == 2 && typ == thrift.LIST:
			c.Buffers, err = readStructList[BufferSpec](ctx, p)
		default:
			return false, nil
		}

		return true, err
	})
}

func (c *ColumnChunk) write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, "ColumnChunk", func() error {
		if err := writeI64(ctx, p, "null_count", 1, c.NullCount); err != nil {
			return err
		}

		return writeStructList(ctx, p, "buffers", 2, c.Buffers)
	})
}

func (s *BufferSpec) read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error) {
		var err error

		switch {
		case id == 1 && typ == thrift.I64:
			s.Offset, err = p.ReadI64(ctx)
		case id == 2 && typ == thrift.I64:
			s.Length, err = p.ReadI64(ctx)
		default:
			return false, nil
		}

		return true, err
	})
}

func (s *BufferSpec) write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, "BufferSpec", func() error {
		if err := writeI64(ctx, p, "offset", 1, s.Offset); err != nil {
			return err
		}

		return writeI64(ctx, p, "length", 2, s.Length)
	})
}

func (d *DictionaryBlock) read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error) {
		var err error

		switch {
		case id == 1 && typ == thrift.I64:
			d.ID, err = p.ReadI64(ctx)
		case id == 2 && typ == thrift.STRUCT:
			d.Block = &Block{}
			err = d.Block.read(ctx, p)
		default:
			return false, nil
		}

		return true, err
	})
}

func (d *DictionaryBlock) write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, "DictionaryBlock", func() error {
		if err := writeI64(ctx, p, "id", 1, d.ID); err != nil {
			return err
		}

		return writeField(ctx, p, "block", thrift.STRUCT, 2, func() error {
			return d.Block.write(ctx, p)
		})
	})
}

func (kv *KeyValue) read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(ctx context.Context, p thrift.TProtocol, id int16, typ thrift.TType) (bool, error) {
		var err error

		switch {
		case id == 1 && typ == thrift.STRING:
			kv.Key, err = p.ReadString(ctx)
		case id == 2 && typ == thrift.STRING:
			var v string
			v, err = p.ReadString(ctx)
			kv.Value = &v
		default:
			return false, nil
		}

		return true, err
	})
}

func (kv *KeyValue) write(ctx context.Context, p thrift.TProtocol) error {
	return writeStruct(ctx, p, "KeyValue", func() error {
		if err := writeString(ctx, p, "key", 1, kv.Key); err != nil {
			return err
		}

		if kv.Value != nil {
			return writeString(ctx, p, "value", 2, *kv.Value)
		}

		return nil
	})
}
