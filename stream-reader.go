package columnar

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/format"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/errors"
)

// streamBatchReader reads blocks one at a time through seeks and reads, so
// it works over any source, compressed blocks included.
type streamBatchReader struct {
	src        *offsetReader
	meta       *format.FileMetaData
	dicts      format.Dictionaries
	idx        int
	end        int
	projection []int
	schema     *arrow.Schema
	codecs     compression.Compressors
	decodeOpts format.DecodeOptions
	logger     log.Logger
	metrics    *Metrics
	err        error
	released   bool
}

func newStreamBatchReader(src source.Reader, meta *format.FileMetaData, projection []int, o *readerOptions) (*streamBatchReader, error) {
	schema, err := projectSchema(meta.ArrowSchema(), projection)
	if err != nil {
		return nil, err
	}

	r := &offsetReader{inner: src}

	dicts, err := format.ReadDictionaries(r, meta, o.codecs, o.decodeOptions())
	if err != nil {
		return nil, err
	}

	o.metrics.dictionariesDecoded(len(dicts))
	level.Debug(o.logger).Log("msg", "dictionaries resolved", "count", len(dicts), "bytes-read", r.Count())

	return &streamBatchReader{
		src:        r,
		meta:       meta,
		dicts:      dicts,
		end:        len(meta.Blocks),
		projection: projection,
		schema:     schema,
		codecs:     o.codecs,
		decodeOpts: o.decodeOptions(),
		logger:     o.logger,
		metrics:    o.metrics,
	}, nil
}

func (r *streamBatchReader) Schema() *arrow.Schema {
	return r.schema
}

func (r *streamBatchReader) Next() (arrow.Record, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.idx >= r.end {
		return nil, io.EOF
	}

	i := r.idx
	r.idx++

	rec, err := format.ReadBlock(r.src, r.meta, r.dicts, i, r.codecs, r.decodeOpts)
	if err != nil {
		r.err = err
		r.idx = r.end

		r.metrics.decodeFailed(strategyLabelStream)
		level.Warn(r.logger).Log("msg", "failed to read block", "block", i, "err", err)

		return nil, err
	}

	r.metrics.blockDecoded(strategyLabelStream, rec.NumRows())

	return projectRecord(rec, r.schema, r.projection), nil
}

// Release drops the dictionaries. The source stays open.
func (r *streamBatchReader) Release() {
	if r.released {
		return
	}

	r.released = true
	r.dicts.Release()

	level.Debug(r.logger).Log("msg", "batch reader released", "next-block", r.idx, "bytes-read", r.src.Count())

	r.idx = r.end

	if r.err == nil {
		r.err = errors.WithStack(errReaderReleased)
	}
}
