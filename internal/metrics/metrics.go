package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rtdloader"

// Metrics holds the collectors of one process.
type Metrics struct {
	connectionState *prometheus.GaugeVec
	reconnects      *prometheus.CounterVec
	batches         *prometheus.CounterVec
	records         *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	flushDuration   *prometheus.HistogramVec
	rowsWritten     *prometheus.CounterVec
	writeErrors     *prometheus.CounterVec
	finalized       *prometheus.CounterVec
	purged          *prometheus.CounterVec
	skew            prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Supervisor state (0 idle, 1 connecting, 2 subscribed, 3 closed, 4 ended, 5 reconnecting, 6 stopped, 7 failed).",
		}, []string{"family"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts.",
		}, []string{"family"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Reassembled frame batches decoded.",
		}, []string{"family"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Decoded records by outcome (applied, skipped).",
		}, []string{"family", "outcome"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Records rejected by the decoder.",
		}, []string{"family"}),
		flushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of writer flush cycles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"family"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Change rows inserted.",
		}, []string{"family"}),
		writeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Failed flush cycles.",
		}, []string{"family"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_finalized_total",
			Help:      "Provisional rows rewritten with the clock skew.",
		}, []string{"family"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_purged_total",
			Help:      "Provisional rows deleted at teardown.",
		}, []string{"family"}),
		skew: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_skew_seconds",
			Help:      "Local clock minus exchange clock.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.connectionState,
			m.reconnects,
			m.batches,
			m.records,
			m.decodeErrors,
			m.flushDuration,
			m.rowsWritten,
			m.writeErrors,
			m.finalized,
			m.purged,
			m.skew,
		)
	}
	return m
}

// SetConnectionState records the numeric supervisor state.
func (m *Metrics) SetConnectionState(family string, state int) {
	if m == nil {
		return
	}
	m.connectionState.WithLabelValues(family).Set(float64(state))
}

// IncReconnects counts one reconnect attempt.
func (m *Metrics) IncReconnects(family string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(family).Inc()
}

// ObserveBatch records the outcome of one decoded batch.
func (m *Metrics) ObserveBatch(family string, applied, skipped, failed int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(family).Inc()
	m.records.WithLabelValues(family, "applied").Add(float64(applied))
	m.records.WithLabelValues(family, "skipped").Add(float64(skipped))
	m.decodeErrors.WithLabelValues(family).Add(float64(failed))
}

// ObserveFlush records one writer cycle.
func (m *Metrics) ObserveFlush(family string, rows int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.flushDuration.WithLabelValues(family).Observe(d.Seconds())
	if err != nil {
		m.writeErrors.WithLabelValues(family).Inc()
		return
	}
	m.rowsWritten.WithLabelValues(family).Add(float64(rows))
}

// AddFinalized counts rows rewritten with the skew.
func (m *Metrics) AddFinalized(family string, n int64) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(family).Add(float64(n))
}

// AddPurged counts provisional rows deleted.
func (m *Metrics) AddPurged(family string, n int64) {
	if m == nil {
		return
	}
	m.purged.WithLabelValues(family).Add(float64(n))
}

// SetSkew records the established clock skew.
func (m *Metrics) SetSkew(d time.Duration) {
	if m == nil {
		return
	}
	m.skew.Set(d.Seconds())
}
