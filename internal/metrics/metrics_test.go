package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAPICall("1m", 20*time.Millisecond, nil)
	m.ObserveAPICall("1m", 30*time.Millisecond, errors.New("boom"))
	m.ObserveAPICall("1d", 10*time.Millisecond, nil)
	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveCacheLookup(false)
	m.ObserveChunks(3, 1)
	m.ObserveRequest("partial")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCalls.WithLabelValues("1m", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCalls.WithLabelValues("1m", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.apiLatency))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.chunks.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunks.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("partial")))
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPICall("1m", time.Second, nil)
		m.ObserveCacheLookup(true)
		m.ObserveChunks(1, 0)
		m.ObserveRequest("ok")
	})
}
