// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// Collected series are pushed to a Pushgateway at Flush instead of being
// exposed on a scrape endpoint, which suits short-lived reconciliation runs.
// All Prometheus-specific dependencies stay in this package.
package prompush

import (
	"fmt"

	"shopetl/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	recordCounter   *prometheus.CounterVec // shopetl_records_total{entity,outcome}
	degradedCounter *prometheus.CounterVec // shopetl_degraded_values_total{entity}
	batchCounter    *prometheus.CounterVec // shopetl_batches_total{entity,status}
	batchDuration   *prometheus.SummaryVec // shopetl_batch_duration_seconds{entity,status}
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "shopetl"
	}

	reg := prometheus.NewRegistry()

	recordCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Records reconciled, partitioned by entity and outcome.",
		},
		[]string{"entity", "outcome"},
	)
	degradedCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.DegradedTotal,
			Help: "Field values stored as null after a failed coercion.",
		},
		[]string{"entity"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Batches processed, partitioned by entity and status.",
		},
		[]string{"entity", "status"},
	)
	batchDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.BatchDuration,
			Help:       "Batch duration in seconds, partitioned by entity and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"entity", "status"},
	)

	for name, c := range map[string]prometheus.Collector{
		"record counter":   recordCounter,
		"degraded counter": degradedCounter,
		"batch counter":    batchCounter,
		"batch summary":    batchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:      gatewayURL,
		jobName:         jobName,
		reg:             reg,
		recordCounter:   recordCounter,
		degradedCounter: degradedCounter,
		batchCounter:    batchCounter,
		batchDuration:   batchDuration,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.RecordsTotal:
		if b.recordCounter == nil {
			return
		}
		b.recordCounter.WithLabelValues(labels["entity"], labels["outcome"]).Add(delta)

	case metrics.DegradedTotal:
		if b.degradedCounter == nil {
			return
		}
		b.degradedCounter.WithLabelValues(labels["entity"]).Add(delta)

	case metrics.BatchesTotal:
		if b.batchCounter == nil {
			return
		}
		b.batchCounter.WithLabelValues(labels["entity"], labels["status"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.BatchDuration || b.batchDuration == nil {
		return
	}
	b.batchDuration.WithLabelValues(labels["entity"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
