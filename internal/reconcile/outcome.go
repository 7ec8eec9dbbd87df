package reconcile

import (
	"fmt"

	"shopetl/internal/detect"
	"shopetl/internal/mapping"
	"shopetl/internal/upsert"
)

// OutcomeKind is the terminal state of one record.
type OutcomeKind = upsert.Kind

const (
	Inserted = upsert.Inserted
	Updated  = upsert.Updated
	Skipped  = upsert.Skipped
	Errored  = upsert.Errored
)

// Stage is the last step a record completed before reaching its outcome.
type Stage int

const (
	Received Stage = iota
	Mapped
	Derived
	Decided
	Executed
)

func (s Stage) String() string {
	switch s {
	case Received:
		return "received"
	case Mapped:
		return "mapped"
	case Derived:
		return "derived"
	case Decided:
		return "decided"
	case Executed:
		return "executed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Outcome is what happened to one row document.
type Outcome struct {
	// Seq is the row's position in the batch after expansion, from 0.
	Seq  int
	Kind OutcomeKind
	Key  mapping.Key

	Stage Stage

	// Decision is the detector's verdict; zero when the record never got
	// that far.
	Decision detect.Decision

	// Message is the skip reason or error text.
	Message string
	Err     error

	// Degraded counts values stored as null after a failed coercion.
	Degraded int

	// Issues are the non-fatal problems of this record (missing identity,
	// degraded values), each prefixed with the key or row.
	Issues []string

	// Fingerprint identifies the source document in audit trails.
	Fingerprint string
}
