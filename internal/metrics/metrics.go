package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	eventsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagelog",
			Subsystem: "events",
			Name:      "opened_total",
			Help:      "Number of events accepted by the factory.",
		}, []string{"type", "durable"},
	)
	eventsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagelog",
			Subsystem: "events",
			Name:      "rejected_total",
			Help:      "Number of events rejected by payload validation.",
		}, []string{"type"},
	)
	eventsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagelog",
			Subsystem: "events",
			Name:      "closed_total",
			Help:      "Number of durable events closed.",
		}, []string{"type"},
	)
	bufferedRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "usagelog",
			Subsystem: "buffer",
			Name:      "records",
			Help:      "Closed records waiting for the next flush.",
		},
	)
	flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagelog",
			Subsystem: "flush",
			Name:      "total",
			Help:      "Number of flushes by result (ok, error, empty).",
		}, []string{"result"},
	)
	flushedRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "usagelog",
			Subsystem: "flush",
			Name:      "records_total",
			Help:      "Number of records delivered to the sink.",
		},
	)
	flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "usagelog",
			Subsystem: "flush",
			Name:      "duration_seconds",
			Help:      "Time spent in the sink per non-empty flush.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	collectorBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagelog",
			Subsystem: "collector",
			Name:      "batches_total",
			Help:      "Batches received by the collector by HTTP status code.",
		}, []string{"code"},
	)
	collectorRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagelog",
			Subsystem: "collector",
			Name:      "records_total",
			Help:      "Records persisted by the collector per event name.",
		}, []string{"name"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		eventsOpened, eventsRejected, eventsClosed, bufferedRecords,
		flushes, flushedRecords, flushDuration,
		collectorBatches, collectorRecords,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncOpened(typ string, durable bool) {
	if regOK.Load() {
		d := "false"
		if durable {
			d = "true"
		}
		eventsOpened.WithLabelValues(typ, d).Inc()
	}
}

func IncRejected(typ string) {
	if regOK.Load() {
		eventsRejected.WithLabelValues(typ).Inc()
	}
}

func IncClosed(typ string) {
	if regOK.Load() {
		eventsClosed.WithLabelValues(typ).Inc()
	}
}

func SetBuffered(n int) {
	if regOK.Load() {
		bufferedRecords.Set(float64(n))
	}
}

// ObserveFlush records one flush. result is "ok", "error" or "empty".
func ObserveFlush(result string, records int, seconds float64) {
	if !regOK.Load() {
		return
	}
	flushes.WithLabelValues(result).Inc()
	if result == "empty" {
		return
	}
	flushDuration.Observe(seconds)
	if result == "ok" {
		flushedRecords.Add(float64(records))
	}
}

func IncCollectorBatch(code string) {
	if regOK.Load() {
		collectorBatches.WithLabelValues(code).Inc()
	}
}

func AddCollectorRecords(name string, n int) {
	if regOK.Load() {
		collectorRecords.WithLabelValues(name).Add(float64(n))
	}
}
