package pipeline

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/hexbee-net/errors"
)

const errUnsupportedAggregation = errors.Error("aggregation not supported for column type")

type AggregationKind int

const (
	AggSum AggregationKind = iota
	AggMin
	AggMax
	AggFirst
	AggLast
	AggCount
)

func (k AggregationKind) String() string {
	switch k {
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggFirst:
		return "first"
	case AggLast:
		return "last"
	case AggCount:
		return "count"
	default:
		return "unknown"
	}
}

// final returns the aggregation combining partial results.
func (k AggregationKind) final() AggregationKind {
	if k == AggCount {
		return AggSum
	}

	return k
}

// Aggregation reduces one column to a single value, named Alias if set.
type Aggregation struct {
	Kind   AggregationKind
	Column string
	Alias  string
}

func Sum(column string) Aggregation   { return Aggregation{Kind: AggSum, Column: column} }
func Min(column string) Aggregation   { return Aggregation{Kind: AggMin, Column: column} }
func Max(column string) Aggregation   { return Aggregation{Kind: AggMax, Column: column} }
func First(column string) Aggregation { return Aggregation{Kind: AggFirst, Column: column} }
func Last(column string) Aggregation  { return Aggregation{Kind: AggLast, Column: column} }
func Count(column string) Aggregation { return Aggregation{Kind: AggCount, Column: column} }

// As renames the output column.
func (a Aggregation) As(alias string) Aggregation {
	a.Alias = alias
	return a
}

func (a Aggregation) name() string {
	if a.Alias != "" {
		return a.Alias
	}

	return a.Column
}

// aggregator runs aggregations in two phases: every batch is reduced to a
// one row partial result, and partials are reduced again when finishing.
type aggregator struct {
	aggs     []Aggregation
	inputs   []int
	schema   *arrow.Schema
	partials []arrow.Record
	mem      memory.Allocator
}

func newAggregator(schema *arrow.Schema, aggs []Aggregation, mem memory.Allocator) (*aggregator, error) {
	if len(aggs) == 0 {
		return nil, nil
	}

	g := &aggregator{
		aggs: aggs,
		mem:  mem,
	}

	fields := make([]arrow.Field, 0, len(aggs))

	for _, a := range aggs {
		idx := schema.FieldIndices(a.Column)
		if len(idx) == 0 {
			return nil, errors.WithFields(
				errors.WithStack(errColumnNotFound),
				errors.Fields{
					"column":      a.Column,
					"aggregation": a.Kind.String(),
				})
		}

		dt := schema.Field(idx[0]).Type

		switch a.Kind {
		case AggSum, AggMin, AggMax:
			if !isNumeric(dt) {
				return nil, errors.WithFields(
					errors.WithStack(errUnsupportedAggregation),
					errors.Fields{
						"column":      a.Column,
						"type":        dt.String(),
						"aggregation": a.Kind.String(),
					})
			}
		case AggCount:
			dt = arrow.PrimitiveTypes.Int64
		case AggFirst, AggLast:
		default:
			return nil, errors.Errorf("unknown aggregation %d", int(a.Kind))
		}

		g.inputs = append(g.inputs, idx[0])
		fields = append(fields, arrow.Field{Name: a.name(), Type: dt, Nullable: true})
	}

	g.schema = arrow.NewSchema(fields, nil)

	return g, nil
}

func (g *aggregator) update(rec arrow.Record) error {
	if rec.NumRows() == 0 {
		return nil
	}

	cols := make([]arrow.Array, 0, len(g.aggs))
	defer func() { releaseArrays(cols) }()

	for j, a := range g.aggs {
		res, err := reduce(rec.Column(g.inputs[j]), a.Kind, g.mem)
		if err != nil {
			return errors.WithFields(err, errors.Fields{
				"column": a.Column,
			})
		}

		cols = append(cols, res)
	}

	g.partials = append(g.partials, array.NewRecord(g.schema, cols, 1))

	return nil
}

func (g *aggregator) finish() (arrow.Record, error) {
	cols := make([]arrow.Array, 0, len(g.aggs))
	defer func() { releaseArrays(cols) }()

	for j, a := range g.aggs {
		merged, err := g.merged(j)
		if err != nil {
			return nil, err
		}

		res, err := reduce(merged, a.Kind.final(), g.mem)
		merged.Release()

		if err != nil {
			return nil, errors.WithFields(err, errors.Fields{
				"column": a.Column,
			})
		}

		cols = append(cols, res)
	}

	return array.NewRecord(g.schema, cols, 1), nil
}

// merged returns the partial results of aggregation j as one array.
func (g *aggregator) merged(j int) (arrow.Array, error) {
	switch len(g.partials) {
	case 0:
		return array.MakeArrayOfNull(g.mem, g.schema.Field(j).Type, 0), nil
	case 1:
		col := g.partials[0].Column(j)
		col.Retain()

		return col, nil
	}

	chunks := make([]arrow.Array, len(g.partials))
	for i, p := range g.partials {
		chunks[i] = p.Column(j)
	}

	return array.Concatenate(chunks, g.mem)
}

func (g *aggregator) release() {
	if g == nil {
		return
	}

	for _, p := range g.partials {
		p.Release()
	}

	g.partials = nil
}

func releaseArrays(arrs []arrow.Array) {
	for _, a := range arrs {
		a.Release()
	}
}

func isNumeric(dt arrow.DataType) bool {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT32, arrow.FLOAT64:
		return true
	default:
		return false
	}
}

func reduce(arr arrow.Array, kind AggregationKind, mem memory.Allocator) (arrow.Array, error) {
	n := int64(arr.Len())

	switch kind {
	case AggFirst, AggLast:
		if n == 0 {
			return array.MakeArrayOfNull(mem, arr.DataType(), 1), nil
		}

		if kind == AggFirst {
			return array.NewSlice(arr, 0, 1), nil
		}

		return array.NewSlice(arr, n-1, n), nil
	case AggCount:
		bld := array.NewInt64Builder(mem)
		defer bld.Release()

		bld.Append(n - int64(arr.NullN()))

		return bld.NewArray(), nil
	}

	switch a := arr.(type) {
	case *array.Int8:
		return reduceNumeric(a, a.Int8Values(), kind, mem)
	case *array.Int16:
		return reduceNumeric(a, a.Int16Values(), kind, mem)
	case *array.Int32:
		return reduceNumeric(a, a.Int32Values(), kind, mem)
	case *array.Int64:
		return reduceNumeric(a, a.Int64Values(), kind, mem)
	case *array.Uint8:
		return reduceNumeric(a, a.Uint8Values(), kind, mem)
	case *array.Uint16:
		return reduceNumeric(a, a.Uint16Values(), kind, mem)
	case *array.Uint32:
		return reduceNumeric(a, a.Uint32Values(), kind, mem)
	case *array.Uint64:
		return reduceNumeric(a, a.Uint64Values(), kind, mem)
	case *array.Float32:
		return reduceNumeric(a, a.Float32Values(), kind, mem)
	case *array.Float64:
		return reduceNumeric(a, a.Float64Values(), kind, mem)
	default:
		return nil, errors.WithFields(
			errors.WithStack(errUnsupportedAggregation),
			errors.Fields{
				"type":        arr.DataType().String(),
				"aggregation": kind.String(),
			})
	}
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func reduceNumeric[T number](arr arrow.Array, values []T, kind AggregationKind, mem memory.Allocator) (arrow.Array, error) {
	var acc T

	found := false

	for i, v := range values {
		if arr.IsNull(i) {
			continue
		}

		switch {
		case !found:
			acc = v
		case kind == AggSum:
			acc += v
		case kind == AggMin && v < acc:
			acc = v
		case kind == AggMax && v > acc:
			acc = v
		}

		found = true
	}

	bld := array.NewBuilder(mem, arr.DataType())
	defer bld.Release()

	appender, ok := bld.(interface{ Append(T) })
	if !ok {
		return nil, errors.Errorf("no builder accepting %T values", acc)
	}

	switch {
	case found, kind == AggSum:
		appender.Append(acc)
	default:
		bld.AppendNull()
	}

	return bld.NewArray(), nil
}
