package recordsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts sync activity. A nil *Metrics records nothing.
type Metrics struct {
	uploaded   prometheus.Counter
	downloaded prometheus.Counter
	operations *prometheus.CounterVec
	page       *prometheus.HistogramVec
}

// NewMetrics creates the sync metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		uploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainsync_records_uploaded_total",
			Help: "Records sent to the remote.",
		}),
		downloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chainsync_records_downloaded_total",
			Help: "Records fetched from the remote and stored locally.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsync_operations_total",
			Help: "Sync operations completed, by kind.",
		}, []string{"kind"}),
		page: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainsync_page_duration_seconds",
			Help:    "Time to transfer and commit one page.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	reg.MustRegister(m.uploaded, m.downloaded, m.operations, m.page)
	return m
}

func (m *Metrics) observePage(kind Kind, n int, since time.Time) {
	if m == nil {
		return
	}
	m.page.WithLabelValues(kind.String()).Observe(time.Since(since).Seconds())
	switch kind {
	case Upload:
		m.uploaded.Add(float64(n))
	case Download:
		m.downloaded.Add(float64(n))
	}
}

func (m *Metrics) operationDone(kind Kind) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(kind.String()).Inc()
}
