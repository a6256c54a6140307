// Package format implements the on-disk layout of columnar files: the footer
// describing schema and blocks, and the primitives decoding dictionary and
// data blocks into arrow arrays.
//
// A file is laid out as:
//
//	"CLMN" 0x00000000        header, 8 bytes
//	dictionary and data blocks, each starting on an 8 byte boundary
//	footer                   thrift compact encoded FileMetaData
//	footer length            int32, little endian
//	"CLMN"
//
// Every block is decodable from the footer and its own bytes alone.
package format

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/hexbee-net/errors"
)

const (
	Magic         = "CLMN"
	magicLen      = len(Magic)
	HeaderSize    = 8
	footerLenSize = 4
	trailerSize   = int64(footerLenSize + magicLen)

	// Version is the only footer version this package reads and writes.
	Version int32 = 1

	// Alignment of blocks in the file and of buffers inside a block.
	Alignment = 8
)

// ErrFormat is the cause of every error raised for corrupt or unsupported content.
const ErrFormat = errors.Error("invalid columnar file format")

func formatError(msg string, fields errors.Fields) error {
	err := errors.Wrap(ErrFormat, msg)
	if len(fields) == 0 {
		return err
	}

	return errors.WithFields(err, fields)
}

// Type is the physical type of a column.
type Type int32

const (
	TypeBool Type = iota + 1
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeUtf8
	TypeBinary
)

var arrowTypes = map[Type]arrow.DataType{
	TypeBool:    arrow.FixedWidthTypes.Boolean,
	TypeInt8:    arrow.PrimitiveTypes.Int8,
	TypeInt16:   arrow.PrimitiveTypes.Int16,
	TypeInt32:   arrow.PrimitiveTypes.Int32,
	TypeInt64:   arrow.PrimitiveTypes.Int64,
	TypeUint8:   arrow.PrimitiveTypes.Uint8,
	TypeUint16:  arrow.PrimitiveTypes.Uint16,
	TypeUint32:  arrow.PrimitiveTypes.Uint32,
	TypeUint64:  arrow.PrimitiveTypes.Uint64,
	TypeFloat32: arrow.PrimitiveTypes.Float32,
	TypeFloat64: arrow.PrimitiveTypes.Float64,
	TypeUtf8:    arrow.BinaryTypes.String,
	TypeBinary:  arrow.BinaryTypes.Binary,
}

func (t Type) String() string {
	if dt, ok := arrowTypes[t]; ok {
		return dt.Name()
	}

	return "unknown"
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	_, ok := arrowTypes[t]
	return ok
}

// ArrowType returns the arrow type values of this type decode to.
func (t Type) ArrowType() (arrow.DataType, error) {
	dt, ok := arrowTypes[t]
	if !ok {
		return nil, formatError("unsupported column type", errors.Fields{
			"type": int32(t),
		})
	}

	return dt, nil
}

// byteWidth returns the size of one value, 0 for bit packed and variable length types.
func (t Type) byteWidth() int64 {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

func (t Type) isVarBinary() bool {
	return t == TypeUtf8 || t == TypeBinary
}

// TypeFromArrow maps an arrow type to its physical type. Dictionary types
// map to their value type.
func TypeFromArrow(dt arrow.DataType) (Type, error) {
	if dict, ok := dt.(*arrow.DictionaryType); ok {
		dt = dict.ValueType
	}

	for t, at := range arrowTypes {
		if arrow.TypeEqual(at, dt) {
			return t, nil
		}
	}

	return 0, errors.WithFields(
		errors.New("arrow type not supported"),
		errors.Fields{
			"type": dt.String(),
		})
}

func bytesForBits(n int64) int64 {
	return (n + 7) / 8
}

func padding(n int64) int64 {
	return (Alignment - n%Alignment) % Alignment
}
