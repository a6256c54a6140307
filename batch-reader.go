package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/hexbee-net/errors"
)

// BatchReader is a forward-only sequence of record batches.
//
// Next returns io.EOF once every batch has been returned. Once Next fails,
// every later call returns the same error. The caller owns the returned
// records and must release them; they stay valid after the reader itself is
// released.
type BatchReader interface {
	Schema() *arrow.Schema
	Next() (arrow.Record, error)
	Release()
}

func projectSchema(schema *arrow.Schema, projection []int) (*arrow.Schema, error) {
	if projection == nil {
		return schema, nil
	}

	fields := make([]arrow.Field, len(projection))

	for i, idx := range projection {
		if idx < 0 || idx >= schema.NumFields() {
			return nil, errors.WithFields(
				errors.WithStack(ErrProjectionOutOfRange),
				errors.Fields{
					"index":   idx,
					"columns": schema.NumFields(),
				})
		}

		fields[i] = schema.Field(idx)
	}

	md := schema.Metadata()

	return arrow.NewSchema(fields, &md), nil
}

// projectRecord keeps the projected columns of rec, in projection order.
// It consumes rec; the columns are shared, not copied.
func projectRecord(rec arrow.Record, schema *arrow.Schema, projection []int) arrow.Record {
	if projection == nil {
		return rec
	}

	cols := make([]arrow.Array, len(projection))
	for i, idx := range projection {
		cols[i] = rec.Column(idx)
	}

	res := array.NewRecord(schema, cols, rec.NumRows())
	rec.Release()

	return res
}
