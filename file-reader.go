// Package columnar reads and writes columnar files as Arrow record batches.
//
// Files are read either by memory mapping them, in which case the decoded
// batches alias the mapped bytes without copying, or by streaming every block
// through a seekable source, which also handles compressed blocks and
// sources that are not local files.
package columnar

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/go-kit/log/level"
	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/format"
	"github.com/hexbee-net/columnar/pipeline"
	"github.com/hexbee-net/columnar/source"
	"github.com/hexbee-net/errors"
)

// FileReader is used to read data from a columnar file.
// Always use NewFileReader to create such an object.
type FileReader struct {
	src  source.Reader
	opts readerOptions
	meta *format.FileMetaData
}

// NewFileReader creates a new FileReader over src. Nothing is read until
// the first call that needs the file.
func NewFileReader(src source.Reader, opts ...Option) *FileReader {
	o := defaultReaderOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &FileReader{
		src:  src,
		opts: o,
	}
}

// footer returns the file metadata, read once through the source.
func (f *FileReader) footer() (*format.FileMetaData, error) {
	if f.meta != nil {
		return f.meta, nil
	}

	meta, err := format.ReadFooter(f.src)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file meta data")
	}

	f.meta = meta

	return meta, nil
}

// strategy resolves StrategyAuto against the source and the file.
func (f *FileReader) strategy() (Strategy, error) {
	if f.opts.strategy != StrategyAuto {
		return f.opts.strategy, nil
	}

	if source.OSFile(f.src) == nil {
		return StrategyStream, nil
	}

	meta, err := f.footer()
	if err != nil {
		return StrategyAuto, err
	}

	for _, b := range meta.Blocks {
		if b.Codec != compression.CodecUncompressed {
			return StrategyStream, nil
		}
	}

	for _, d := range meta.Dictionaries {
		if d.Block.Codec != compression.CodecUncompressed {
			return StrategyStream, nil
		}
	}

	return StrategyMmap, nil
}

// Schema returns the schema of the batches, projection applied, without
// decoding any block.
func (f *FileReader) Schema() (*arrow.Schema, error) {
	meta, err := f.footer()
	if err != nil {
		return nil, err
	}

	projection, err := f.opts.projection(meta.ArrowSchema())
	if err != nil {
		return nil, err
	}

	return projectSchema(meta.ArrowSchema(), projection)
}

// Batches returns a reader over every batch of the file. Row limits,
// predicates and aggregations only apply to Finish.
func (f *FileReader) Batches() (BatchReader, error) {
	s, err := f.strategy()
	if err != nil {
		return nil, err
	}

	if s == StrategyMmap {
		r, err := f.mmapReader()
		if err != nil {
			return nil, err
		}

		return r, nil
	}

	r, err := f.streamReader()
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (f *FileReader) mmapReader() (*mmapBatchReader, error) {
	region, meta, err := loadMetadata(f.src, f.opts.logger, f.opts.metrics)
	if err != nil {
		return nil, err
	}
	defer releaseRegion(region, f.opts.logger)

	projection, err := f.opts.projection(meta.ArrowSchema())
	if err != nil {
		return nil, err
	}

	return newMmapBatchReader(region, meta, projection, &f.opts)
}

func (f *FileReader) streamReader() (*streamBatchReader, error) {
	meta, err := f.footer()
	if err != nil {
		return nil, err
	}

	projection, err := f.opts.projection(meta.ArrowSchema())
	if err != nil {
		return nil, err
	}

	return newStreamBatchReader(f.src, meta, projection, &f.opts)
}

// Finish reads the file into a table, applying the row limit, row count,
// predicate and aggregations configured on the reader.
func (f *FileReader) Finish(ctx context.Context) (arrow.Table, error) {
	s, err := f.strategy()
	if err != nil {
		return nil, err
	}

	if s == StrategyMmap {
		return f.finishMemmapped(ctx)
	}

	return f.finishStreaming(ctx)
}

func (f *FileReader) finishMemmapped(ctx context.Context) (arrow.Table, error) {
	r, err := f.mmapReader()
	if err != nil {
		return nil, err
	}
	defer r.Release()

	// Mapped batches are never rechunked.
	return pipeline.Finish(ctx, r, f.pipelineOptions(r.Schema(), false))
}

func (f *FileReader) finishStreaming(ctx context.Context) (arrow.Table, error) {
	r, err := f.streamReader()
	if err != nil {
		return nil, err
	}
	defer r.Release()

	return pipeline.Finish(ctx, r, f.pipelineOptions(r.Schema(), f.opts.rechunk))
}

func (f *FileReader) pipelineOptions(schema *arrow.Schema, rechunk bool) pipeline.Options {
	return pipeline.Options{
		Rechunk:      rechunk,
		RowLimit:     f.opts.rowLimit,
		Predicate:    f.opts.predicate,
		Aggregations: f.opts.aggregations,
		Schema:       schema,
		RowCount:     f.opts.rowCount,
		Allocator:    f.opts.mem,
	}
}

// Partition splits the blocks of the file into n contiguous ranges and
// returns one memory mapped reader per range. The readers share the mapping
// and the dictionaries, and may be drained from different goroutines.
func (f *FileReader) Partition(n int) ([]BatchReader, error) {
	if n < 1 {
		return nil, errors.WithFields(
			errors.New("invalid partition count"),
			errors.Fields{
				"partitions": n,
			})
	}

	r, err := f.mmapReader()
	if err != nil {
		return nil, err
	}
	defer r.Release()

	parts := r.split(n)
	readers := make([]BatchReader, len(parts))

	for i, p := range parts {
		readers[i] = p

		level.Debug(f.opts.logger).Log("msg", "partition created", "partition", i, "first-block", p.idx, "end-block", p.end)
	}

	return readers, nil
}

// MetaData returns a map of metadata key-value pairs stored in the file.
func (f *FileReader) MetaData() (map[string]string, error) {
	meta, err := f.footer()
	if err != nil {
		return nil, err
	}

	data := make(map[string]string)

	for _, kv := range meta.KeyValueMetadata {
		if kv.Value != nil {
			data[kv.Key] = *kv.Value
		}
	}

	return data, nil
}

// NumRows returns the number of rows in the file. This information is
// directly taken from the file's meta data.
func (f *FileReader) NumRows() (int64, error) {
	meta, err := f.footer()
	if err != nil {
		return 0, err
	}

	return meta.NumRows, nil
}

// BlockCount returns the number of data blocks in the file.
func (f *FileReader) BlockCount() (int, error) {
	meta, err := f.footer()
	if err != nil {
		return 0, err
	}

	return len(meta.Blocks), nil
}
