package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "candlesync"

// Metrics exports request processing counters. A nil *Metrics records nothing.
type Metrics struct {
	apiCalls     *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	chunks       *prometheus.CounterVec
	requests     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_calls_total",
			Help:      "Exchange candle calls by timeframe and outcome.",
		}, []string{"timeframe", "outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_call_duration_seconds",
			Help:      "Exchange candle call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"timeframe"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Processed chunks by final status.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Top-level candle requests by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.apiCalls, m.apiLatency, m.cacheLookups, m.chunks, m.requests)
	return m
}

func (m *Metrics) ObserveAPICall(timeframe string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.apiCalls.WithLabelValues(timeframe, outcome).Inc()
	m.apiLatency.WithLabelValues(timeframe).Observe(latency.Seconds())
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveChunks(completed, failed int) {
	if m == nil {
		return
	}
	m.chunks.WithLabelValues("completed").Add(float64(completed))
	m.chunks.WithLabelValues("failed").Add(float64(failed))
}

// ObserveRequest counts a finished request; outcome is ok, partial or error.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}
