// Command colconvert converts a CSV file with a header line into a columnar
// file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hexbee-net/columnar"
	"github.com/hexbee-net/columnar/cmd/internal/location"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/errors"
)

type arrayFlags []string

func (a *arrayFlags) String() string {
	return strings.Join(*a, ",")
}

func (a *arrayFlags) Set(value string) error {
	*a = append(*a, value)
	return nil
}

type config struct {
	codec     string
	blockRows int64
	chunk     int
	comma     string
	nulls     arrayFlags
	meta      arrayFlags
}

func main() {
	var cfg config

	flag.StringVar(&cfg.codec, "codec", "uncompressed", "Block compression: uncompressed, snappy, gzip, lz4, zstd or brotli")
	flag.Int64Var(&cfg.blockRows, "block-rows", columnar.DefaultBlockRows, "Maximum number of rows per block")
	flag.IntVar(&cfg.chunk, "chunk", 16*1024, "Number of CSV lines read at once")
	flag.StringVar(&cfg.comma, "comma", ",", "CSV field delimiter")
	flag.Var(&cfg.nulls, "null", "CSV value read as null (repeatable)")
	flag.Var(&cfg.meta, "meta", "File metadata as key=value (repeatable)")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: colconvert [flags] <input.csv> <output location>\n")
		flag.Usage()
		os.Exit(1)
	}

	in, err := os.Open(flag.Arg(0))
	if err != nil {
		level.Error(logger).Log("msg", "failed to open input", "file", flag.Arg(0), "err", err)
		os.Exit(1)
	}
	defer in.Close()

	rows, err := convert(context.Background(), cfg, in, flag.Arg(1))
	if err != nil {
		level.Error(logger).Log("msg", "conversion failed", "output", flag.Arg(1), "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "conversion done", "output", flag.Arg(1), "rows", rows)
}

func writerOptions(cfg config) ([]columnar.WriterOption, error) {
	codec, err := compression.ParseCodec(cfg.codec)
	if err != nil {
		return nil, err
	}

	md := make(map[string]string, len(cfg.meta))

	for _, kv := range cfg.meta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.WithFields(
				errors.New("metadata must be key=value"),
				errors.Fields{
					"meta": kv,
				})
		}

		md[k] = v
	}

	return []columnar.WriterOption{
		columnar.WithCompressionCodec(codec),
		columnar.WithMaxBlockRows(cfg.blockRows),
		columnar.WithMetaData(md),
	}, nil
}

func convert(ctx context.Context, cfg config, in io.Reader, output string) (int64, error) {
	opts, err := writerOptions(cfg)
	if err != nil {
		return 0, err
	}

	comma := []rune(cfg.comma)
	if len(comma) != 1 {
		return 0, errors.WithFields(
			errors.New("delimiter must be a single character"),
			errors.Fields{
				"comma": cfg.comma,
			})
	}

	r := csv.NewInferringReader(in,
		csv.WithHeader(true),
		csv.WithComma(comma[0]),
		csv.WithChunk(cfg.chunk),
		csv.WithNullReader(true, cfg.nulls...),
	)
	defer r.Release()

	loc, err := location.Parse(output)
	if err != nil {
		return 0, err
	}

	var (
		fw   *columnar.FileWriter
		rows int64
	)

	for r.Next() {
		rec := r.Record()

		if fw == nil {
			fw, err = openWriter(ctx, loc, rec.Schema(), opts)
			if err != nil {
				return 0, err
			}
		}

		if err := fw.Write(rec); err != nil {
			_ = fw.Close()
			return rows, err
		}

		rows += rec.NumRows()
	}

	if err := r.Err(); err != nil {
		if fw != nil {
			_ = fw.Close()
		}

		return rows, errors.Wrap(err, "failed to read CSV input")
	}

	if fw == nil {
		return 0, errors.New("CSV input has no data row")
	}

	return rows, fw.Close()
}

func openWriter(ctx context.Context, loc location.Location, schema *arrow.Schema, opts []columnar.WriterOption) (*columnar.FileWriter, error) {
	w, err := location.OpenWriter(ctx, loc)
	if err != nil {
		return nil, err
	}

	fw, err := columnar.NewFileWriter(w, schema, opts...)
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	return fw, nil
}
