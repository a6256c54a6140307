package columnar

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hexbee-net/columnar/format"
	"github.com/hexbee-net/columnar/mmap"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/errors"
)

// loadMetadata maps the file behind src and parses its footer. The caller
// owns the returned region reference.
func loadMetadata(src source.Reader, logger log.Logger, metrics *Metrics) (*mmap.Region, *format.FileMetaData, error) {
	f := source.OSFile(src)
	if f == nil {
		return nil, nil, errors.WithFields(
			errors.WithStack(ErrSourceNotFileBacked),
			errors.Fields{
				"source": sourceName(src),
			})
	}

	region, err := mmap.Map(f)
	if err != nil {
		return nil, nil, err
	}

	metrics.mapped(region.Len())
	level.Debug(logger).Log("msg", "file mapped", "file", region.Name(), "size", region.Len())

	meta, err := format.ParseFooter(region.Bytes())
	if err != nil {
		releaseRegion(region, logger)

		return nil, nil, errors.WithFields(err, errors.Fields{
			"file": region.Name(),
		})
	}

	level.Debug(logger).Log("msg", "footer parsed",
		"file", region.Name(),
		"blocks", len(meta.Blocks),
		"dictionaries", len(meta.Dictionaries),
		"rows", meta.NumRows)

	return region, meta, nil
}

func releaseRegion(region *mmap.Region, logger log.Logger) {
	if err := region.Release(); err != nil {
		level.Warn(logger).Log("msg", "failed to release mapped region", "file", region.Name(), "err", err)
	}
}

func sourceName(src source.Reader) string {
	return fmt.Sprintf("%T", src)
}

// mmapBatchReader decodes the blocks [idx, end) of a mapped file. Batches
// alias the region and keep it alive on their own.
type mmapBatchReader struct {
	region     *mmap.Region
	meta       *format.FileMetaData
	dicts      format.Dictionaries
	idx        int
	end        int
	projection []int
	schema     *arrow.Schema
	decodeOpts format.DecodeOptions
	logger     log.Logger
	metrics    *Metrics
	err        error
}

// newMmapBatchReader decodes every dictionary of the file once and returns a
// reader over all blocks. It takes its own reference on region.
func newMmapBatchReader(region *mmap.Region, meta *format.FileMetaData, projection []int, o *readerOptions) (*mmapBatchReader, error) {
	schema, err := projectSchema(meta.ArrowSchema(), projection)
	if err != nil {
		return nil, err
	}

	dicts, err := format.DecodeDictionaries(meta, region, o.decodeOptions())
	if err != nil {
		return nil, errors.WithFields(err, errors.Fields{
			"file": region.Name(),
		})
	}

	o.metrics.dictionariesDecoded(len(dicts))
	level.Debug(o.logger).Log("msg", "dictionaries resolved", "file", region.Name(), "count", len(dicts))

	region.Retain()

	return &mmapBatchReader{
		region:     region,
		meta:       meta,
		dicts:      dicts,
		end:        len(meta.Blocks),
		projection: projection,
		schema:     schema,
		decodeOpts: o.decodeOptions(),
		logger:     o.logger,
		metrics:    o.metrics,
	}, nil
}

// sub returns a reader over the blocks [start, end) sharing the region and
// the dictionaries of r.
func (r *mmapBatchReader) sub(start, end int) *mmapBatchReader {
	r.region.Retain()

	dicts := make(format.Dictionaries, len(r.dicts))
	for id, d := range r.dicts {
		d.Retain()
		dicts[id] = d
	}

	s := *r
	s.dicts = dicts
	s.idx = start
	s.end = end

	return &s
}

// split divides the remaining blocks into n contiguous ranges of nearly
// equal block counts. Trailing ranges are empty when there are fewer blocks
// than readers.
func (r *mmapBatchReader) split(n int) []*mmapBatchReader {
	parts := make([]*mmapBatchReader, 0, n)

	blocks := r.end - r.idx
	start := r.idx

	for i := 0; i < n; i++ {
		size := blocks / n
		if i < blocks%n {
			size++
		}

		parts = append(parts, r.sub(start, start+size))
		start += size
	}

	return parts
}

func (r *mmapBatchReader) Schema() *arrow.Schema {
	return r.schema
}

func (r *mmapBatchReader) Next() (arrow.Record, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.idx >= r.end {
		return nil, io.EOF
	}

	i := r.idx
	r.idx++

	rec, err := format.DecodeBlock(r.meta, r.dicts, r.region, i, r.decodeOpts)
	if err != nil {
		r.err = err
		r.idx = r.end

		r.metrics.decodeFailed(strategyLabelMmap)
		level.Warn(r.logger).Log("msg", "failed to decode block", "file", r.region.Name(), "block", i, "err", err)

		return nil, err
	}

	r.metrics.blockDecoded(strategyLabelMmap, rec.NumRows())

	return projectRecord(rec, r.schema, r.projection), nil
}

// Release drops the references the reader holds on the region and the
// dictionaries. Records already returned stay valid.
func (r *mmapBatchReader) Release() {
	if r.region == nil {
		return
	}

	r.dicts.Release()
	releaseRegion(r.region, r.logger)

	level.Debug(r.logger).Log("msg", "batch reader released", "file", r.region.Name(), "next-block", r.idx)

	r.region = nil
	r.idx = r.end

	if r.err == nil {
		r.err = errors.WithStack(errReaderReleased)
	}
}
