// Package transform implements column functions applied to decoded arrays.
package transform

import (
	"context"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/errors"
)

const (
	errUnsupportedType = errors.Error("operation not supported for data type")
	errNoInput         = errors.Error("function expects one input field")
)

// NaNFunction is one of the functions dealing with floating point NaN values.
type NaNFunction int

const (
	IsNaN NaNFunction = iota
	IsNotNaN
	DropNaNs
)

func (f NaNFunction) String() string {
	switch f {
	case IsNaN:
		return "is_nan"
	case IsNotNaN:
		return "is_not_nan"
	case DropNaNs:
		return "drop_nans"
	default:
		return "unknown"
	}
}

// Field returns the output field of the function applied to fields[0]:
// boolean for the predicates, unchanged for DropNaNs.
func (f NaNFunction) Field(fields []arrow.Field) (arrow.Field, error) {
	if len(fields) == 0 {
		return arrow.Field{}, errors.WithFields(
			errors.WithStack(errNoInput),
			errors.Fields{
				"function": f.String(),
			})
	}

	out := fields[0]

	switch f {
	case IsNaN, IsNotNaN:
		out.Type = arrow.FixedWidthTypes.Boolean
	case DropNaNs:
	default:
		return arrow.Field{}, errors.Errorf("unknown NaN function %d", int(f))
	}

	return out, nil
}

// Apply runs the function on arr. The caller owns the result.
func (f NaNFunction) Apply(arr arrow.Array, mem memory.Allocator) (arrow.Array, error) {
	switch f {
	case IsNaN:
		return NaNMask(arr, false, mem)
	case IsNotNaN:
		return NaNMask(arr, true, mem)
	case DropNaNs:
		return DropNaN(arr, mem)
	default:
		return nil, errors.Errorf("unknown NaN function %d", int(f))
	}
}

// NaNMask reports for every value of a float column whether it is NaN, or
// whether it is not when negate is set. Nulls stay null.
func NaNMask(arr arrow.Array, negate bool, mem memory.Allocator) (*array.Boolean, error) {
	var isNaN func(i int) bool

	switch a := arr.(type) {
	case *array.Float32:
		isNaN = func(i int) bool { return math.IsNaN(float64(a.Value(i))) }
	case *array.Float64:
		isNaN = func(i int) bool { return math.IsNaN(a.Value(i)) }
	default:
		return nil, errors.WithFields(
			errors.WithStack(errUnsupportedType),
			errors.Fields{
				"type": arr.DataType().String(),
			})
	}

	bld := array.NewBooleanBuilder(mem)
	defer bld.Release()

	bld.Reserve(arr.Len())

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			bld.UnsafeAppendBoolToBitmap(false)
			continue
		}

		bld.UnsafeAppend(isNaN(i) != negate)
	}

	return bld.NewBooleanArray(), nil
}

// DropNaN removes NaN values from float columns. Nulls are kept. Other
// columns are returned as is, with an extra reference.
func DropNaN(arr arrow.Array, mem memory.Allocator) (arrow.Array, error) {
	switch arr.DataType().ID() {
	case arrow.FLOAT32, arrow.FLOAT64:
	default:
		arr.Retain()
		return arr, nil
	}

	mask, err := NaNMask(arr, true, mem)
	if err != nil {
		return nil, err
	}
	defer mask.Release()

	return Filter(context.Background(), arr, mask, compute.SelectionEmitNulls, mem)
}
