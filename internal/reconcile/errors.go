package reconcile

import (
	"errors"

	"shopetl/internal/detect"
	"shopetl/internal/storage"
	"shopetl/internal/upsert"
)

// Error taxonomy. Per-record errors never leave ProcessBatch; they are
// carried by Outcome.Err and Stats.Errors. Only ErrStoreConnection and
// ErrSchema are returned from ProcessBatch, and both abort the batch.
var (
	// ErrMappingDegradation marks a value that could not be coerced and was
	// stored as null.
	ErrMappingDegradation = errors.New("mapping degradation")

	// ErrIdentityMissing marks a document without a usable identity key.
	ErrIdentityMissing = errors.New("identity missing")

	// ErrStoreConnection marks a batch that could not reach its store.
	ErrStoreConnection = errors.New("store connection failed")

	// ErrSchema marks a destination table that is missing or lacks the
	// entity's identity columns.
	ErrSchema = errors.New("destination schema unusable")

	ErrStoreStatement = upsert.ErrStatement
	ErrComparison     = detect.ErrComparison
	ErrConstraint     = storage.ErrConstraint
)

// Fatal reports whether err aborted a whole batch.
func Fatal(err error) bool {
	return errors.Is(err, ErrStoreConnection) || errors.Is(err, ErrSchema)
}
