package columnar

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-kit/log"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/format"
	"github.com/hexbee-net/columnar/pipeline"
	"github.com/hexbee-net/errors"
)

// Strategy selects how a FileReader gets at the bytes of the file.
type Strategy int

const (
	// StrategyMmap maps the file and decodes batches that alias the mapping.
	StrategyMmap Strategy = iota
	// StrategyStream reads and decompresses every block into owned buffers.
	StrategyStream
	// StrategyAuto maps the file when it is local and uncompressed, and
	// streams it otherwise.
	StrategyAuto
)

func (s Strategy) String() string {
	switch s {
	case StrategyMmap:
		return "mmap"
	case StrategyStream:
		return "stream"
	case StrategyAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{StrategyMmap, StrategyStream, StrategyAuto} {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}

	return StrategyMmap, errors.WithFields(
		errors.New("unknown read strategy"),
		errors.Fields{
			"strategy": name,
		})
}

// Option configures a FileReader.
type Option func(*readerOptions)

type readerOptions struct {
	selection       func(*arrow.Schema) ([]int, error)
	rowLimit        *int64
	predicate       pipeline.Predicate
	aggregations    []pipeline.Aggregation
	rowCount        *pipeline.RowCount
	strategy        Strategy
	rechunk         bool
	verifyChecksums bool
	logger          log.Logger
	metrics         *Metrics
	mem             memory.Allocator
	codecs          compression.Compressors
}

func defaultReaderOptions() readerOptions {
	return readerOptions{
		strategy:        StrategyMmap,
		verifyChecksums: true,
		logger:          log.NewNopLogger(),
		mem:             memory.DefaultAllocator,
		codecs:          compression.Default(),
	}
}

func (o *readerOptions) decodeOptions() format.DecodeOptions {
	return format.DecodeOptions{
		VerifyChecksums: o.verifyChecksums,
	}
}

// projection resolves the selected columns against the file schema.
// A nil result keeps every column.
func (o *readerOptions) projection(schema *arrow.Schema) ([]int, error) {
	if o.selection == nil {
		return nil, nil
	}

	return o.selection(schema)
}

// WithProjection selects columns by index, in the given order.
func WithProjection(indices []int) Option {
	return func(o *readerOptions) {
		projection := append([]int(nil), indices...)
		o.selection = func(*arrow.Schema) ([]int, error) {
			return projection, nil
		}
	}
}

// WithColumns selects columns by name, in the given order.
func WithColumns(names ...string) Option {
	return func(o *readerOptions) {
		o.selection = func(schema *arrow.Schema) ([]int, error) {
			projection := make([]int, 0, len(names))

			for _, name := range names {
				idx := schema.FieldIndices(name)
				if len(idx) == 0 {
					return nil, errors.WithFields(
						errors.Wrap(ErrProjectionOutOfRange, "column not found"),
						errors.Fields{
							"column": name,
						})
				}

				projection = append(projection, idx[0])
			}

			return projection, nil
		}
	}
}

// WithRowLimit stops reading once n rows have been read from the file.
func WithRowLimit(n int64) Option {
	return func(o *readerOptions) {
		o.rowLimit = &n
	}
}

// WithPredicate keeps the rows selected by p.
func WithPredicate(p pipeline.Predicate) Option {
	return func(o *readerOptions) {
		o.predicate = p
	}
}

// WithAggregations reduces the result of Finish to a single row.
func WithAggregations(aggs ...pipeline.Aggregation) Option {
	return func(o *readerOptions) {
		o.aggregations = append(o.aggregations, aggs...)
	}
}

// WithRowCount prepends a column numbering the rows read, from offset.
func WithRowCount(name string, offset uint32) Option {
	return func(o *readerOptions) {
		o.rowCount = &pipeline.RowCount{Name: name, Offset: offset}
	}
}

func WithStrategy(s Strategy) Option {
	return func(o *readerOptions) {
		o.strategy = s
	}
}

// WithRechunk concatenates the batches of a streamed Finish into one chunk.
// Memory mapped reads never rechunk.
func WithRechunk(rechunk bool) Option {
	return func(o *readerOptions) {
		o.rechunk = rechunk
	}
}

// WithChecksumVerification toggles the block checksum checks. Enabled by default.
func WithChecksumVerification(verify bool) Option {
	return func(o *readerOptions) {
		o.verifyChecksums = verify
	}
}

func WithLogger(logger log.Logger) Option {
	return func(o *readerOptions) {
		o.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *readerOptions) {
		o.metrics = m
	}
}

// WithAllocator sets the allocator of the arrays built while reading.
// Memory mapped buffers are never allocated.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *readerOptions) {
		o.mem = mem
	}
}

// WithCompressors replaces the codec table used by the stream strategy.
func WithCompressors(codecs compression.Compressors) Option {
	return func(o *readerOptions) {
		o.codecs = codecs
	}
}
