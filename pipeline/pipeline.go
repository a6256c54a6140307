// Package pipeline materializes a sequence of record batches into a table,
// applying a row limit, a predicate, aggregations and a row count column on
// the way.
package pipeline

import (
	"context"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/errors"
)

// Batches is a forward-only source of records. Next returns io.EOF once
// exhausted; the caller owns every returned record.
type Batches interface {
	Next() (arrow.Record, error)
}

// RowCount describes a column numbering the rows read from the source,
// starting at Offset.
type RowCount struct {
	Name   string
	Offset uint32
}

type Options struct {
	// Rechunk concatenates all batches into a single chunk per column.
	Rechunk bool
	// RowLimit stops reading once that many rows have been pulled from the source.
	RowLimit *int64
	// Predicate filters rows, after the row count column is added.
	Predicate Predicate
	// Aggregations reduce the filtered rows to a single row.
	Aggregations []Aggregation
	// Schema of the batches.
	Schema *arrow.Schema
	// RowCount adds a leading row count column when set.
	RowCount *RowCount
	// Allocator for the arrays built by the pipeline.
	Allocator memory.Allocator
}

func (o *Options) allocator() memory.Allocator {
	if o.Allocator == nil {
		return memory.DefaultAllocator
	}

	return o.Allocator
}

// Finish drains batches and builds the resulting table. The context is
// checked between batches.
func Finish(ctx context.Context, batches Batches, opts Options) (arrow.Table, error) {
	if opts.Schema == nil {
		return nil, errors.New("pipeline schema is required")
	}

	mem := opts.allocator()

	schema := opts.Schema
	if opts.RowCount != nil {
		schema = withRowCountField(schema, opts.RowCount.Name)
	}

	aggs, err := newAggregator(schema, opts.Aggregations, mem)
	if err != nil {
		return nil, err
	}
	defer aggs.release()

	var (
		records []arrow.Record
		rows    int64
	)

	defer func() {
		for _, r := range records {
			r.Release()
		}
	}()

	for opts.RowLimit == nil || rows < *opts.RowLimit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := batches.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		p, err := process(ctx, rec, rows, schema, &opts, mem)
		if err != nil {
			return nil, err
		}

		rows += p.source

		if aggs != nil {
			err = aggs.update(p.Record)
			p.Release()

			if err != nil {
				return nil, err
			}

			continue
		}

		records = append(records, p.Record)
	}

	if aggs != nil {
		rec, err := aggs.finish()
		if err != nil {
			return nil, err
		}
		defer rec.Release()

		return array.NewTableFromRecords(rec.Schema(), []arrow.Record{rec}), nil
	}

	if opts.Rechunk && len(records) > 1 {
		rec, err := concatenate(schema, records, mem)
		if err != nil {
			return nil, err
		}
		defer rec.Release()

		return array.NewTableFromRecords(schema, []arrow.Record{rec}), nil
	}

	return array.NewTableFromRecords(schema, records), nil
}

type processed struct {
	arrow.Record

	// source is the number of rows taken from the source batch.
	source int64
}

// process limits, numbers and filters one batch. It consumes rec.
func process(ctx context.Context, rec arrow.Record, read int64, schema *arrow.Schema, opts *Options, mem memory.Allocator) (processed, error) {
	if opts.RowLimit != nil && read+rec.NumRows() > *opts.RowLimit {
		sliced := rec.NewSlice(0, *opts.RowLimit-read)
		rec.Release()
		rec = sliced
	}

	res := processed{source: rec.NumRows()}

	if opts.RowCount != nil {
		numbered := addRowCount(rec, schema, opts.RowCount.Offset+uint32(read), mem)
		rec.Release()
		rec = numbered
	}

	if opts.Predicate != nil {
		filtered, err := applyPredicate(ctx, rec, opts.Predicate, mem)
		rec.Release()

		if err != nil {
			return res, err
		}

		rec = filtered
	}

	res.Record = rec

	return res, nil
}

func withRowCountField(schema *arrow.Schema, name string) *arrow.Schema {
	fields := make([]arrow.Field, 0, schema.NumFields()+1)
	fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Uint32})
	fields = append(fields, schema.Fields()...)

	md := schema.Metadata()

	return arrow.NewSchema(fields, &md)
}

func addRowCount(rec arrow.Record, schema *arrow.Schema, start uint32, mem memory.Allocator) arrow.Record {
	bld := array.NewUint32Builder(mem)
	defer bld.Release()

	n := int(rec.NumRows())
	bld.Reserve(n)

	for i := 0; i < n; i++ {
		bld.UnsafeAppend(start + uint32(i))
	}

	counts := bld.NewArray()
	defer counts.Release()

	cols := make([]arrow.Array, 0, rec.NumCols()+1)
	cols = append(cols, counts)
	cols = append(cols, rec.Columns()...)

	return array.NewRecord(schema, cols, rec.NumRows())
}

func concatenate(schema *arrow.Schema, records []arrow.Record, mem memory.Allocator) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, schema.NumFields())
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	var rows int64

	for _, r := range records {
		rows += r.NumRows()
	}

	chunks := make([]arrow.Array, len(records))

	for i := 0; i < schema.NumFields(); i++ {
		for j, r := range records {
			chunks[j] = r.Column(i)
		}

		col, err := array.Concatenate(chunks, mem)
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, "failed to rechunk column"),
				errors.Fields{
					"column": schema.Field(i).Name,
				})
		}

		cols = append(cols, col)
	}

	return array.NewRecord(schema, cols, rows), nil
}
