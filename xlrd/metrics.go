package xlrd

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts decoding work. A nil *Metrics records nothing.
type Metrics struct {
	records      *prometheus.CounterVec
	recordErrors *prometheus.CounterVec
	sheets       prometheus.Counter
	openSeconds  prometheus.Histogram
}

// NewMetrics creates the decoding metrics and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlrd",
			Name:      "records_total",
			Help:      "BIFF records decoded, by substream.",
		}, []string{"substream"}),
		recordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xlrd",
			Name:      "record_errors_total",
			Help:      "Recoverable decoding errors, by kind.",
		}, []string{"kind"}),
		sheets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xlrd",
			Name:      "sheets_decoded_total",
			Help:      "Worksheets decoded.",
		}),
		openSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "xlrd",
			Name:      "workbook_open_seconds",
			Help:      "Time to open a workbook and decode its eager sheets.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.records, m.recordErrors, m.sheets, m.openSeconds)
	}
	return m
}

func (m *Metrics) record(phase Phase) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(phase.String()).Inc()
}

func (m *Metrics) recordError(err error) {
	if m == nil {
		return
	}
	m.recordErrors.WithLabelValues(errorKind(err)).Inc()
}

func (m *Metrics) sheetDecoded() {
	if m == nil {
		return
	}
	m.sheets.Inc()
}

func (m *Metrics) observeOpen(seconds float64) {
	if m == nil {
		return
	}
	m.openSeconds.Observe(seconds)
}

var errorKinds = []struct {
	kind  error
	label string
}{
	{ErrTruncatedRecord, "truncated_record"},
	{ErrDanglingStringRef, "dangling_string_ref"},
	{ErrSheetTableInconsistent, "sheet_table_inconsistent"},
	{ErrFormat, "format"},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.label
		}
	}
	return "other"
}
