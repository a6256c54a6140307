// Command colscan reads a columnar file and prints a summary of its content.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hexbee-net/columnar"
	"github.com/hexbee-net/columnar/cmd/internal/location"
	"github.com/hexbee-net/columnar/pipeline"
	"github.com/hexbee-net/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"
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
	strategy    string
	columns     arrayFlags
	projection  arrayFlags
	aggs        arrayFlags
	notNaN      arrayFlags
	limit       int64
	rowCount    string
	parallel    int
	print       bool
	metrics     bool
	noChecksums bool
	logLevel    string
}

func main() {
	var cfg config

	flag.StringVar(&cfg.strategy, "strategy", "auto", "Read strategy: mmap, stream or auto")
	flag.Var(&cfg.columns, "column", "Column to read, by name (repeatable)")
	flag.Var(&cfg.projection, "index", "Column to read, by index (repeatable)")
	flag.Var(&cfg.aggs, "agg", "Aggregation as kind:column, kind one of sum, min, max, first, last, count (repeatable)")
	flag.Var(&cfg.notNaN, "not-nan", "Drop the rows where this float column is NaN (repeatable)")
	flag.Int64Var(&cfg.limit, "limit", -1, "Maximum number of rows to read")
	flag.StringVar(&cfg.rowCount, "row-count", "", "Name of a leading row number column to add")
	flag.IntVar(&cfg.parallel, "parallel", 1, "Number of partitions scanned concurrently (memory mapped files only)")
	flag.BoolVar(&cfg.print, "print", false, "Print the columns of the result")
	flag.BoolVar(&cfg.metrics, "metrics", false, "Dump reader metrics to stderr when done")
	flag.BoolVar(&cfg.noChecksums, "no-checksums", false, "Skip block checksum verification")
	flag.StringVar(&cfg.logLevel, "log.level", "info", "Log level: debug, info, warn or error")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.Allow(level.ParseDefault(cfg.logLevel, level.InfoValue())))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: colscan [flags] <location>\n")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		level.Info(logger).Log("msg", "received shutdown signal")
		cancel()
	}()

	reg := prometheus.NewRegistry()

	if err := run(ctx, cfg, flag.Arg(0), reg, logger); err != nil {
		level.Error(logger).Log("msg", "scan failed", "location", flag.Arg(0), "err", err)
		os.Exit(1)
	}

	if cfg.metrics {
		if err := dumpMetrics(os.Stderr, reg); err != nil {
			level.Error(logger).Log("msg", "failed to dump metrics", "err", err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, cfg config, rawURL string, reg prometheus.Registerer, logger log.Logger) error {
	opts, err := readerOptions(cfg, columnar.NewMetrics(reg), logger)
	if err != nil {
		return err
	}

	loc, err := location.Parse(rawURL)
	if err != nil {
		return err
	}

	src, err := location.OpenReader(ctx, loc)
	if err != nil {
		return err
	}
	defer src.Close()

	fr := columnar.NewFileReader(src, opts...)

	if cfg.parallel > 1 {
		return scanPartitions(ctx, fr, cfg.parallel, logger)
	}

	tbl, err := fr.Finish(ctx)
	if err != nil {
		return err
	}
	defer tbl.Release()

	level.Info(logger).Log("msg", "scan done", "rows", tbl.NumRows(), "columns", tbl.NumCols())

	if cfg.print {
		printTable(os.Stdout, tbl)
	}

	return nil
}

func readerOptions(cfg config, metrics *columnar.Metrics, logger log.Logger) ([]columnar.Option, error) {
	strategy, err := columnar.ParseStrategy(cfg.strategy)
	if err != nil {
		return nil, err
	}

	opts := []columnar.Option{
		columnar.WithStrategy(strategy),
		columnar.WithLogger(logger),
		columnar.WithMetrics(metrics),
		columnar.WithChecksumVerification(!cfg.noChecksums),
	}

	switch {
	case len(cfg.columns) > 0 && len(cfg.projection) > 0:
		return nil, errors.New("-column and -index are mutually exclusive")
	case len(cfg.columns) > 0:
		opts = append(opts, columnar.WithColumns(cfg.columns...))
	case len(cfg.projection) > 0:
		projection := make([]int, 0, len(cfg.projection))

		for _, s := range cfg.projection {
			i, err := strconv.Atoi(s)
			if err != nil {
				return nil, errors.WithFields(
					errors.Wrap(err, "invalid column index"),
					errors.Fields{
						"index": s,
					})
			}

			projection = append(projection, i)
		}

		opts = append(opts, columnar.WithProjection(projection))
	}

	if cfg.limit >= 0 {
		opts = append(opts, columnar.WithRowLimit(cfg.limit))
	}

	if cfg.rowCount != "" {
		opts = append(opts, columnar.WithRowCount(cfg.rowCount, 0))
	}

	if len(cfg.notNaN) > 0 {
		predicates := make([]pipeline.Predicate, 0, len(cfg.notNaN))
		for _, c := range cfg.notNaN {
			predicates = append(predicates, pipeline.NotNaN(c))
		}

		opts = append(opts, columnar.WithPredicate(pipeline.And(predicates...)))
	}

	for _, a := range cfg.aggs {
		agg, err := parseAggregation(a)
		if err != nil {
			return nil, err
		}

		opts = append(opts, columnar.WithAggregations(agg))
	}

	return opts, nil
}

func parseAggregation(s string) (pipeline.Aggregation, error) {
	kind, column, ok := strings.Cut(s, ":")
	if !ok || column == "" {
		return pipeline.Aggregation{}, errors.WithFields(
			errors.New("aggregation must be kind:column"),
			errors.Fields{
				"aggregation": s,
			})
	}

	ctors := map[string]func(string) pipeline.Aggregation{
		"sum":   pipeline.Sum,
		"min":   pipeline.Min,
		"max":   pipeline.Max,
		"first": pipeline.First,
		"last":  pipeline.Last,
		"count": pipeline.Count,
	}

	ctor, ok := ctors[strings.ToLower(kind)]
	if !ok {
		return pipeline.Aggregation{}, errors.WithFields(
			errors.New("unknown aggregation"),
			errors.Fields{
				"aggregation": kind,
			})
	}

	return ctor(column).As(kind + "_" + column), nil
}

func scanPartitions(ctx context.Context, fr *columnar.FileReader, n int, logger log.Logger) error {
	parts, err := fr.Partition(n)
	if err != nil {
		return err
	}

	rows := make([]int64, len(parts))

	g, ctx := errgroup.WithContext(ctx)

	for i, p := range parts {
		i, p := i, p

		g.Go(func() error {
			defer p.Release()

			for ctx.Err() == nil {
				rec, err := p.Next()
				if err == io.EOF {
					return nil
				}

				if err != nil {
					return errors.WithFields(err, errors.Fields{
						"partition": i,
					})
				}

				rows[i] += rec.NumRows()
				rec.Release()
			}

			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	var total int64

	for i, r := range rows {
		level.Debug(logger).Log("msg", "partition scanned", "partition", i, "rows", r)
		total += r
	}

	level.Info(logger).Log("msg", "scan done", "rows", total, "partitions", len(parts))

	return nil
}

func printTable(w io.Writer, tbl arrow.Table) {
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)

		fmt.Fprintf(w, "%s (%s):", col.Name(), col.DataType())

		for _, chunk := range col.Data().Chunks() {
			fmt.Fprintf(w, " %v", chunk)
		}

		fmt.Fprintln(w)
	}
}

func dumpMetrics(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}

	return nil
}
