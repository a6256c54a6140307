package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hexbee-net/columnar"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/source/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out.clmn")
	in := strings.NewReader("id,name\n1,alpha\n2,beta\n3,gamma\n")

	cfg := config{
		codec:     "snappy",
		blockRows: 2,
		chunk:     10,
		comma:     ",",
		meta:      arrayFlags{"source=test"},
	}

	rows, err := convert(context.Background(), cfg, in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)

	src, err := local.NewReader(out)
	require.NoError(t, err)
	defer src.Close()

	fr := columnar.NewFileReader(src, columnar.WithStrategy(columnar.StrategyAuto))

	md, err := fr.MetaData()
	require.NoError(t, err)
	assert.Equal(t, "test", md["source"])

	blocks, err := fr.BlockCount()
	require.NoError(t, err)
	assert.Equal(t, 2, blocks)

	tbl, err := fr.Finish(context.Background())
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(3), tbl.NumRows())
	assert.Equal(t, "id", tbl.Schema().Field(0).Name)
	assert.Equal(t, "name", tbl.Schema().Field(1).Name)
}

func TestWriterOptions(t *testing.T) {
	t.Parallel()

	_, err := writerOptions(config{codec: "rar"})
	assert.Error(t, err)

	_, err = writerOptions(config{codec: "zstd", meta: arrayFlags{"novalue"}})
	assert.Error(t, err)

	opts, err := writerOptions(config{codec: compression.CodecGZip.String(), blockRows: 10})
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}
