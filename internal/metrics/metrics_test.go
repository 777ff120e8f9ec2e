package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.SetConnectionState("quotes", 2)
	m.IncReconnects("quotes")
	m.ObserveBatch("quotes", 1, 2, 3)
	m.ObserveFlush("quotes", 5, time.Second, nil)
	m.AddFinalized("quotes", 1)
	m.AddPurged("quotes", 1)
	m.SetSkew(time.Second)
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBatch("book", 3, 1, 2)
	m.ObserveFlush("book", 4, 10*time.Millisecond, nil)
	m.ObserveFlush("book", 0, 10*time.Millisecond, errors.New("boom"))
	m.AddFinalized("book", 7)
	m.SetConnectionState("book", 2)
	m.SetSkew(1500 * time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.records.WithLabelValues("book", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.records.WithLabelValues("book", "skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.decodeErrors.WithLabelValues("book")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.rowsWritten.WithLabelValues("book")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writeErrors.WithLabelValues("book")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.finalized.WithLabelValues("book")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionState.WithLabelValues("book")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.skew))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
