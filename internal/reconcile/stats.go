package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxErrors bounds Stats.Errors when no limit is configured.
const DefaultMaxErrors = 1000

// Batch statuses reported to metrics.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailure = "failure"
)

// Stats aggregates the outcomes of one batch.
type Stats struct {
	RunID  uuid.UUID
	Entity string
	Table  string

	// Documents is the number of inbound documents; Rows the number of row
	// documents after expansion.
	Documents int
	Rows      int

	Inserted int
	Updated  int
	Skipped  int
	Errored  int

	// Degraded counts field values stored as null after failed coercion.
	Degraded int

	// Errors holds every non-fatal problem in the order it occurred: record
	// failures, missing identities and degraded values. It is capped at the
	// configured maximum; Suppressed counts the ones dropped past the cap.
	Errors     []string
	Suppressed int

	// Aborted is set when the batch stopped before its first record because
	// the store was unusable. Outcomes is then empty.
	Aborted bool

	Outcomes []Outcome

	Started  time.Time
	Duration time.Duration
}

func newStats(entity, table string, docs int) Stats {
	return Stats{
		RunID:     uuid.New(),
		Entity:    entity,
		Table:     table,
		Documents: docs,
		Started:   time.Now(),
	}
}

// add folds o into the counters.
func (s *Stats) add(o Outcome, maxErrors int) {
	s.Outcomes = append(s.Outcomes, o)
	s.Degraded += o.Degraded
	for _, msg := range o.Issues {
		s.addError(msg, maxErrors)
	}
	switch o.Kind {
	case Inserted:
		s.Inserted++
	case Updated:
		s.Updated++
	case Skipped:
		s.Skipped++
	case Errored:
		s.Errored++
		s.addError(o.Message, maxErrors)
	}
}

func (s *Stats) addError(msg string, maxErrors int) {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	if len(s.Errors) >= maxErrors {
		s.Suppressed++
		return
	}
	s.Errors = append(s.Errors, msg)
}

// Success reports whether the batch finished without any error.
func (s Stats) Success() bool {
	return len(s.Errors) == 0 && s.Suppressed == 0
}

// Status classifies the batch as success, partial or failure.
func (s Stats) Status() string {
	switch {
	case s.Aborted:
		return StatusFailure
	case s.Success():
		return StatusSuccess
	default:
		return StatusPartial
	}
}

// Summary renders the counters on one line.
func (s Stats) Summary() string {
	out := fmt.Sprintf("%s: %s inserted=%d updated=%d skipped=%d errored=%d degraded=%d docs=%d rows=%d in %s",
		s.Entity, s.Status(), s.Inserted, s.Updated, s.Skipped, s.Errored, s.Degraded,
		s.Documents, s.Rows, s.Duration.Round(time.Millisecond))
	if s.Suppressed > 0 {
		out += fmt.Sprintf(" (%d errors suppressed)", s.Suppressed)
	}
	return out
}
