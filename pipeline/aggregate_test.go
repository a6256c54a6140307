package pipeline

import (
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalar(t *testing.T, tbl arrow.Table, name string) arrow.Array {
	t.Helper()

	idx := tbl.Schema().FieldIndices(name)
	require.Len(t, idx, 1)

	chunks := tbl.Column(idx[0]).Data().Chunks()
	require.Len(t, chunks, 1)
	require.Equal(t, 1, chunks[0].Len())

	return chunks[0]
}

func TestAggregate(t *testing.T) {
	t.Run("Numeric", TestAggregate_Numeric)
	t.Run("FirstLast", TestAggregate_FirstLast)
	t.Run("WithPredicate", TestAggregate_WithPredicate)
	t.Run("NoRows", TestAggregate_NoRows)
	t.Run("Nulls", TestAggregate_Nulls)
	t.Run("UnsupportedType", TestAggregate_UnsupportedType)
	t.Run("ColumnNotFound", TestAggregate_ColumnNotFound)
	t.Run("Aggregator_ReleasesColumns", TestAggregate_Aggregator_ReleasesColumns)
}

func TestAggregate_Numeric(t *testing.T) {
	t.Parallel()

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	batches := newBatches(mem, []int64{4, 2}, []int64{}, []int64{9, 1, 5})

	tbl, err := Finish(context.Background(), batches, Options{
		Schema: testSchema,
		Aggregations: []Aggregation{
			Sum("a"),
			Min("a").As("min_a"),
			Max("x").As("max_x"),
			Count("a").As("count"),
		},
		Allocator: mem,
	})
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(1), tbl.NumRows())
	assert.Equal(t, int64(21), scalar(t, tbl, "a").(*array.Int64).Value(0))
	assert.Equal(t, int64(1), scalar(t, tbl, "min_a").(*array.Int64).Value(0))
	assert.Equal(t, 4.5, scalar(t, tbl, "max_x").(*array.Float64).Value(0))
	assert.Equal(t, int64(5), scalar(t, tbl, "count").(*array.Int64).Value(0))
}

func TestAggregate_FirstLast(t *testing.T) {
	t.Parallel()

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	batches := newBatches(mem, []int64{7, 8}, []int64{9, 10})

	tbl, err := Finish(context.Background(), batches, Options{
		Schema:       testSchema,
		Aggregations: []Aggregation{First("a").As("first"), Last("a").As("last")},
		Allocator:    mem,
	})
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(7), scalar(t, tbl, "first").(*array.Int64).Value(0))
	assert.Equal(t, int64(10), scalar(t, tbl, "last").(*array.Int64).Value(0))
}

func TestAggregate_WithPredicate(t *testing.T) {
	t.Parallel()

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	batches := newBatches(mem, []int64{1, 2, 3}, []int64{4, 5, 6})

	tbl, err := Finish(context.Background(), batches, Options{
		Schema:       testSchema,
		Predicate:    keepEven("a"),
		Aggregations: []Aggregation{Sum("a"), Count("a").As("n")},
		Allocator:    mem,
	})
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(12), scalar(t, tbl, "a").(*array.Int64).Value(0))
	assert.Equal(t, int64(3), scalar(t, tbl, "n").(*array.Int64).Value(0))
}

func TestAggregate_NoRows(t *testing.T) {
	t.Parallel()

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	tbl, err := Finish(context.Background(), &sliceBatches{}, Options{
		Schema: testSchema,
		Aggregations: []Aggregation{
			Sum("a"),
			Max("a").As("max"),
			First("x"),
			Count("a").As("n"),
		},
		Allocator: mem,
	})
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(0), scalar(t, tbl, "a").(*array.Int64).Value(0))
	assert.True(t, scalar(t, tbl, "max").IsNull(0))
	assert.True(t, scalar(t, tbl, "x").IsNull(0))
	assert.Equal(t, int64(0), scalar(t, tbl, "n").(*array.Int64).Value(0))
}

func TestAggregate_Nulls(t *testing.T) {
	t.Parallel()

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	bld := array.NewRecordBuilder(mem, testSchema)
	bld.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	bld.Field(1).(*array.Float64Builder).AppendValues([]float64{0, 8, 0}, []bool{false, true, false})
	rec := bld.NewRecord()
	bld.Release()

	tbl, err := Finish(context.Background(), &sliceBatches{records: []arrow.Record{rec}}, Options{
		Schema: testSchema,
		Aggregations: []Aggregation{
			Min("x").As("min"),
			Sum("x").As("sum"),
			Count("x").As("n"),
		},
		Allocator: mem,
	})
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, float64(8), scalar(t, tbl, "min").(*array.Float64).Value(0))
	assert.Equal(t, float64(8), scalar(t, tbl, "sum").(*array.Float64).Value(0))
	assert.Equal(t, int64(1), scalar(t, tbl, "n").(*array.Int64).Value(0))
}

func TestAggregate_UnsupportedType(t *testing.T) {
	t.Parallel()

	schema := arrow.NewSchema([]arrow.Field{{Name: "s", Type: arrow.BinaryTypes.String}}, nil)

	_, err := Finish(context.Background(), &sliceBatches{}, Options{
		Schema:       schema,
		Aggregations: []Aggregation{Sum("s")},
	})
	assert.EqualError(t, errors.Cause(err), errUnsupportedAggregation.Error())

	tbl, err := Finish(context.Background(), &sliceBatches{}, Options{
		Schema:       schema,
		Aggregations: []Aggregation{Count("s"), Last("s").As("last")},
	})
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, arrow.BinaryTypes.String, tbl.Schema().Field(1).Type)
}

func TestAggregate_ColumnNotFound(t *testing.T) {
	t.Parallel()

	_, err := Finish(context.Background(), &sliceBatches{}, Options{
		Schema:       testSchema,
		Aggregations: []Aggregation{Max("missing")},
	})
	assert.EqualError(t, errors.Cause(err), errColumnNotFound.Error())
}

func TestAggregate_Aggregator_ReleasesColumns(t *testing.T) {
	t.Parallel()

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	g, err := newAggregator(testSchema, []Aggregation{Sum("a"), Count("x").As("n")}, mem)
	require.NoError(t, err)

	batches := newBatches(mem, []int64{1, 2}, []int64{3})
	for _, rec := range batches.records {
		require.NoError(t, g.update(rec))
		rec.Release()
	}

	require.Len(t, g.partials, 2)

	rec, err := g.finish()
	require.NoError(t, err)

	g.release()

	assert.Equal(t, int64(6), rec.Column(0).(*array.Int64).Value(0))
	assert.Equal(t, int64(3), rec.Column(1).(*array.Int64).Value(0))

	rec.Release()
}
