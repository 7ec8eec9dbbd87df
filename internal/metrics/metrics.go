// Package metrics provides a small, backend-agnostic abstraction for recording
// reconciliation metrics.
//
// Concrete systems live in subpackages (prompush, datadog) and plug in through
// the Backend interface. A Recorder with no backend is a no-op, so callers can
// always record.
package metrics

import "time"

// Metric names emitted by Recorder.
const (
	RecordsTotal  = "shopetl_records_total"
	DegradedTotal = "shopetl_degraded_values_total"
	BatchesTotal  = "shopetl_batches_total"
	BatchDuration = "shopetl_batch_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

// Recorder records reconciliation metrics to one backend. It is safe for
// concurrent use when the backend is.
type Recorder struct {
	b Backend
}

// New returns a Recorder for b. A nil backend records nothing.
func New(b Backend) *Recorder {
	if b == nil {
		b = nopBackend{}
	}
	return &Recorder{b: b}
}

// Nop returns a Recorder that discards everything.
func Nop() *Recorder { return New(nil) }

// RecordOutcome counts records of entity that ended in outcome
// ("inserted", "updated", "skipped", "errored").
func (r *Recorder) RecordOutcome(entity, outcome string, delta int64) {
	if delta <= 0 {
		return
	}
	r.b.IncCounter(RecordsTotal, float64(delta), Labels{
		"entity":  entity,
		"outcome": outcome,
	})
}

// RecordDegraded counts values that failed coercion and were stored as null.
func (r *Recorder) RecordDegraded(entity string, delta int64) {
	if delta <= 0 {
		return
	}
	r.b.IncCounter(DegradedTotal, float64(delta), Labels{"entity": entity})
}

// RecordBatch measures one batch. status is "success", "partial" or
// "failure".
func (r *Recorder) RecordBatch(entity, status string, d time.Duration) {
	lbls := Labels{
		"entity": entity,
		"status": status,
	}
	r.b.IncCounter(BatchesTotal, 1, lbls)
	r.b.ObserveHistogram(BatchDuration, d.Seconds(), lbls)
}

// Flush delegates to the backend.
func (r *Recorder) Flush() error {
	return r.b.Flush()
}
