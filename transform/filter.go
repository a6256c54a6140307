package transform

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/compute/exec"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/errors"
)

const errMaskLength = errors.Error("mask length does not match array length")

// Mask converts a boolean array into a selection. Null slots are not selected.
func Mask(b *array.Boolean) []bool {
	keep := make([]bool, b.Len())
	for i := range keep {
		keep[i] = b.IsValid(i) && b.Value(i)
	}

	return keep
}

func checkMask(n int64, mask *array.Boolean) error {
	if int64(mask.Len()) == n {
		return nil
	}

	return errors.WithFields(
		errors.WithStack(errMaskLength),
		errors.Fields{
			"mask":  mask.Len(),
			"array": n,
		})
}

// Filter keeps the values of arr whose mask slot is true. Null mask slots
// are dropped or emitted as nulls depending on nulls. Dictionary arrays keep
// their dictionary; only their indices are filtered.
func Filter(ctx context.Context, arr arrow.Array, mask *array.Boolean, nulls compute.NullSelectionBehavior, mem memory.Allocator) (arrow.Array, error) {
	if err := checkMask(int64(arr.Len()), mask); err != nil {
		return nil, err
	}

	ctx = exec.WithAllocator(ctx, mem)
	opts := compute.FilterOptions{NullSelection: nulls}

	dict, ok := arr.(*array.Dictionary)
	if !ok {
		res, err := compute.FilterArray(ctx, arr, mask, opts)
		if err != nil {
			return nil, errors.Wrap(err, "failed to filter values")
		}

		return res, nil
	}

	indices, err := compute.FilterArray(ctx, dict.Indices(), mask, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to filter dictionary indices")
	}
	defer indices.Release()

	return array.NewDictionaryArray(dict.DataType(), indices, dict.Dictionary()), nil
}

// FilterRecord keeps the rows of rec whose mask slot is true. Null mask
// slots drop the row.
func FilterRecord(ctx context.Context, rec arrow.Record, mask *array.Boolean, mem memory.Allocator) (arrow.Record, error) {
	if err := checkMask(rec.NumRows(), mask); err != nil {
		return nil, err
	}

	if !hasDictionary(rec.Schema()) {
		opts := compute.FilterOptions{NullSelection: compute.SelectionDropNulls}

		res, err := compute.FilterRecordBatch(exec.WithAllocator(ctx, mem), rec, mask, &opts)
		if err != nil {
			return nil, errors.Wrap(err, "failed to filter record")
		}

		return res, nil
	}

	cols := make([]arrow.Array, 0, rec.NumCols())
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for i, col := range rec.Columns() {
		res, err := Filter(ctx, col, mask, compute.SelectionDropNulls, mem)
		if err != nil {
			return nil, errors.WithFields(err, errors.Fields{
				"column": rec.ColumnName(i),
			})
		}

		cols = append(cols, res)
	}

	// A schema with a dictionary field has at least one column.
	return array.NewRecord(rec.Schema(), cols, int64(cols[0].Len())), nil
}

func hasDictionary(schema *arrow.Schema) bool {
	for _, f := range schema.Fields() {
		if f.Type.ID() == arrow.DICTIONARY {
			return true
		}
	}

	return false
}
