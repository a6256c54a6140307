package columnar

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	strategyLabelMmap   = "mmap"
	strategyLabelStream = "stream"
)

// Metrics holds the Prometheus metrics of the readers.
// A nil *Metrics records nothing.
type Metrics struct {
	BlocksDecoded        *prometheus.CounterVec
	DecodeErrors         *prometheus.CounterVec
	RowsRead             *prometheus.CounterVec
	MappedBytes          prometheus.Counter
	DictionariesResolved prometheus.Counter
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	blocksDecoded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "columnar_blocks_decoded_total",
		Help: "Total data blocks decoded",
	}, []string{"strategy"})

	decodeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "columnar_decode_errors_total",
		Help: "Total data blocks that failed to decode",
	}, []string{"strategy"})

	rowsRead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "columnar_rows_read_total",
		Help: "Total rows decoded from data blocks",
	}, []string{"strategy"})

	mappedBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "columnar_mapped_bytes_total",
		Help: "Total bytes of files memory mapped",
	})

	dictionariesResolved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "columnar_dictionaries_resolved_total",
		Help: "Total dictionaries decoded",
	})

	reg.MustRegister(blocksDecoded, decodeErrors, rowsRead, mappedBytes, dictionariesResolved)

	return &Metrics{
		BlocksDecoded:        blocksDecoded,
		DecodeErrors:         decodeErrors,
		RowsRead:             rowsRead,
		MappedBytes:          mappedBytes,
		DictionariesResolved: dictionariesResolved,
	}
}

func (m *Metrics) blockDecoded(strategy string, rows int64) {
	if m == nil {
		return
	}

	m.BlocksDecoded.WithLabelValues(strategy).Inc()
	m.RowsRead.WithLabelValues(strategy).Add(float64(rows))
}

func (m *Metrics) decodeFailed(strategy string) {
	if m == nil {
		return
	}

	m.DecodeErrors.WithLabelValues(strategy).Inc()
}

func (m *Metrics) mapped(size int64) {
	if m == nil {
		return
	}

	m.MappedBytes.Add(float64(size))
}

func (m *Metrics) dictionariesDecoded(n int) {
	if m == nil {
		return
	}

	m.DictionariesResolved.Add(float64(n))
}
