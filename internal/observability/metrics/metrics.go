package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "medasset_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	batchEvents    *prometheus.CounterVec
	batchSize      *prometheus.HistogramVec
	derivedUpdates *prometheus.CounterVec

	validationFindings *prometheus.CounterVec

	consumerLag *prometheus.GaugeVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest requests by stream and result",
			},
			[]string{"stream", "result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by stream and reason",
			},
			[]string{"stream", "reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stream", "result"},
		)

		batchEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "batch_events_total",
				Help: "Total batch-submitted events by stream and outcome",
			},
			[]string{"stream", "outcome"},
		)
		batchSize = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "batch_size",
				Help:    "Submitted batch sizes by stream",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"stream"},
		)
		derivedUpdates = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "derived_state_updates_total",
				Help: "Total derived asset-state updates by kind and result",
			},
			[]string{"kind", "result"},
		)

		validationFindings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "validation_findings_total",
				Help: "Total validation findings by stream and kind (error/warning)",
			},
			[]string{"stream", "kind"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			batchEvents,
			batchSize,
			derivedUpdates,
			validationFindings,
			consumerLag,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records ingest request duration and result for one stream.
func ObserveIngest(stream, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(stream, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(stream, result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(stream, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(stream, reason).Inc()
	}
}

// ObserveBatch records the outcome counts of one submitted batch.
func ObserveBatch(stream string, processed, failed int) {
	if batchSize != nil {
		batchSize.WithLabelValues(stream).Observe(float64(processed + failed))
	}
	if batchEvents == nil {
		return
	}
	if processed > 0 {
		batchEvents.WithLabelValues(stream, "processed").Add(float64(processed))
	}
	if failed > 0 {
		batchEvents.WithLabelValues(stream, "failed").Add(float64(failed))
	}
}

// IncDerivedUpdate increments the derived-state update counter.
func IncDerivedUpdate(kind, result string) {
	if result == "" {
		result = resultSuccess
	}
	if derivedUpdates != nil {
		derivedUpdates.WithLabelValues(kind, result).Inc()
	}
}

// AddValidationFindings adds error/warning counts for one validated event.
func AddValidationFindings(stream string, errors, warnings int) {
	if validationFindings == nil {
		return
	}
	if errors > 0 {
		validationFindings.WithLabelValues(stream, "error").Add(float64(errors))
	}
	if warnings > 0 {
		validationFindings.WithLabelValues(stream, "warning").Add(float64(warnings))
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
