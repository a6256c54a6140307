package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/hexbee-net/columnar"
	"github.com/hexbee-net/columnar/pipeline"
	"github.com/hexbee-net/columnar/source/local"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T) string {
	t.Helper()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "n", Type: arrow.PrimitiveTypes.Int64},
		{Name: "x", Type: arrow.PrimitiveTypes.Float64},
	}, nil)

	bld := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer bld.Release()

	bld.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3, 4, 5}, nil)
	bld.Field(1).(*array.Float64Builder).AppendValues([]float64{0.5, 1, 1.5, 2, 2.5}, nil)

	rec := bld.NewRecord()
	defer rec.Release()

	path := filepath.Join(t.TempDir(), "scan.clmn")

	w, err := local.NewWriter(path)
	require.NoError(t, err)

	fw, err := columnar.NewFileWriter(w, schema, columnar.WithMaxBlockRows(2))
	require.NoError(t, err)
	require.NoError(t, fw.Write(rec))
	require.NoError(t, fw.Close())

	return path
}

func TestRun(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t)

	cfg := config{
		strategy: "mmap",
		columns:  arrayFlags{"n"},
		aggs:     arrayFlags{"sum:n"},
		limit:    -1,
		parallel: 1,
	}

	reg := prometheus.NewRegistry()
	require.NoError(t, run(context.Background(), cfg, path, reg, log.NewNopLogger()))

	var buf bytes.Buffer
	require.NoError(t, dumpMetrics(&buf, reg))
	assert.Contains(t, buf.String(), "columnar_blocks_decoded_total")
}

func TestRun_Parallel(t *testing.T) {
	t.Parallel()

	path := writeTestFile(t)

	cfg := config{
		strategy: "mmap",
		limit:    -1,
		parallel: 2,
	}

	require.NoError(t, run(context.Background(), cfg, path, prometheus.NewRegistry(), log.NewNopLogger()))
}

func TestReaderOptions(t *testing.T) {
	t.Parallel()

	_, err := readerOptions(config{strategy: "fast"}, nil, log.NewNopLogger())
	assert.Error(t, err)

	_, err = readerOptions(config{strategy: "auto", columns: arrayFlags{"a"}, projection: arrayFlags{"0"}}, nil, log.NewNopLogger())
	assert.Error(t, err)

	_, err = readerOptions(config{strategy: "auto", projection: arrayFlags{"one"}}, nil, log.NewNopLogger())
	assert.Error(t, err)

	opts, err := readerOptions(config{strategy: "stream", projection: arrayFlags{"1"}, limit: 2, notNaN: arrayFlags{"x"}}, nil, log.NewNopLogger())
	require.NoError(t, err)

	path := writeTestFile(t)

	src, err := local.NewReader(path)
	require.NoError(t, err)
	defer src.Close()

	tbl, err := columnar.NewFileReader(src, opts...).Finish(context.Background())
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(2), tbl.NumRows())
	assert.Equal(t, "x", tbl.Schema().Field(0).Name)
}

func TestParseAggregation(t *testing.T) {
	t.Parallel()

	agg, err := parseAggregation("max:x")
	require.NoError(t, err)
	assert.Equal(t, pipeline.AggMax, agg.Kind)
	assert.Equal(t, "x", agg.Column)
	assert.Equal(t, "max_x", agg.Alias)

	_, err = parseAggregation("median:x")
	assert.Error(t, err)

	_, err = parseAggregation("sum")
	assert.Error(t, err)
}
