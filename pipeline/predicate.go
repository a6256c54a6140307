package pipeline

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/columnar/transform"
	"github.com/hexbee-net/errors"
)

const errColumnNotFound = errors.Error("column not found")

// Predicate selects the rows of a record to keep. Null mask slots drop the row.
type Predicate interface {
	Evaluate(rec arrow.Record, mem memory.Allocator) (*array.Boolean, error)
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc func(rec arrow.Record, mem memory.Allocator) (*array.Boolean, error)

func (f PredicateFunc) Evaluate(rec arrow.Record, mem memory.Allocator) (*array.Boolean, error) {
	return f(rec, mem)
}

func column(rec arrow.Record, name string) (arrow.Array, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		return nil, errors.WithFields(
			errors.WithStack(errColumnNotFound),
			errors.Fields{
				"column": name,
			})
	}

	return rec.Column(idx[0]), nil
}

// NotNaN keeps the rows whose value in the float column name is not NaN.
func NotNaN(name string) Predicate {
	return PredicateFunc(func(rec arrow.Record, mem memory.Allocator) (*array.Boolean, error) {
		col, err := column(rec, name)
		if err != nil {
			return nil, err
		}

		return transform.NaNMask(col, true, mem)
	})
}

// NotNull keeps the rows whose value in column name is set.
func NotNull(name string) Predicate {
	return PredicateFunc(func(rec arrow.Record, mem memory.Allocator) (*array.Boolean, error) {
		col, err := column(rec, name)
		if err != nil {
			return nil, err
		}

		bld := array.NewBooleanBuilder(mem)
		defer bld.Release()

		bld.Reserve(col.Len())

		for i := 0; i < col.Len(); i++ {
			bld.UnsafeAppend(col.IsValid(i))
		}

		return bld.NewBooleanArray(), nil
	})
}

// And keeps the rows selected by every predicate.
func And(predicates ...Predicate) Predicate {
	return PredicateFunc(func(rec arrow.Record, mem memory.Allocator) (*array.Boolean, error) {
		keep := make([]bool, rec.NumRows())
		for i := range keep {
			keep[i] = true
		}

		for _, p := range predicates {
			mask, err := p.Evaluate(rec, mem)
			if err != nil {
				return nil, err
			}

			for i, k := range transform.Mask(mask) {
				keep[i] = keep[i] && k
			}

			mask.Release()
		}

		bld := array.NewBooleanBuilder(mem)
		defer bld.Release()

		bld.AppendValues(keep, nil)

		return bld.NewBooleanArray(), nil
	})
}

func applyPredicate(ctx context.Context, rec arrow.Record, p Predicate, mem memory.Allocator) (arrow.Record, error) {
	mask, err := p.Evaluate(rec, mem)
	if err != nil {
		return nil, errors.Wrap(err, "failed to evaluate predicate")
	}
	defer mask.Release()

	return transform.FilterRecord(ctx, rec, mask, mem)
}
