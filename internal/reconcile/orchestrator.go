// Package reconcile runs batches of source documents through the mapping,
// derivation, change detection and upsert steps for one entity kind.
//
// A batch holds one store connection for its whole duration and processes
// documents strictly in order. Each record is written in its own
// transaction, so a failing record is rolled back and reported while the
// rest of the batch carries on. Only an unreachable store or an unusable
// destination table aborts a batch.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopetl/internal/detect"
	"shopetl/internal/document"
	"shopetl/internal/entity"
	"shopetl/internal/mapping"
	"shopetl/internal/metrics"
	"shopetl/internal/schema"
	"shopetl/internal/storage"
	"shopetl/internal/upsert"
)

// DefaultStatementTimeout bounds each store call when Options leaves it
// unset.
const DefaultStatementTimeout = 30 * time.Second

// Opener opens the store connection for one batch.
type Opener func(ctx context.Context) (storage.Store, error)

// AuditSink receives skipped and errored outcomes.
type AuditSink interface {
	Write(runID uuid.UUID, entity string, o Outcome) error
}

// Options configures an Orchestrator.
type Options struct {
	Entity entity.Entity

	// Table overrides Entity.Table.
	Table string

	Open Opener

	// StatementTimeout bounds each record's store work.
	StatementTimeout time.Duration

	// MaxErrors caps Stats.Errors. Zero means DefaultMaxErrors.
	MaxErrors int

	Logger  *zap.SugaredLogger
	Metrics *metrics.Recorder
	Audit   AuditSink
}

// Orchestrator processes batches for one entity kind. Batches on the same
// Orchestrator may run concurrently; each opens its own connection.
type Orchestrator struct {
	ent     entity.Entity
	table   string
	open    Opener
	timeout time.Duration
	maxErr  int
	log     *zap.SugaredLogger
	rec     *metrics.Recorder
	audit   AuditSink
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Entity.Kind == "" {
		return nil, errors.New("reconcile: entity is required")
	}
	if len(opts.Entity.Mapping.Key) == 0 {
		return nil, fmt.Errorf("reconcile: entity %s declares no identity", opts.Entity.Kind)
	}
	if opts.Open == nil {
		return nil, errors.New("reconcile: store opener is required")
	}
	o := &Orchestrator{
		ent:     opts.Entity,
		table:   opts.Table,
		open:    opts.Open,
		timeout: opts.StatementTimeout,
		maxErr:  opts.MaxErrors,
		log:     opts.Logger,
		rec:     opts.Metrics,
		audit:   opts.Audit,
	}
	if o.table == "" {
		o.table = opts.Entity.Table
	}
	if o.table == "" {
		o.table = opts.Entity.Kind
	}
	if o.timeout <= 0 {
		o.timeout = DefaultStatementTimeout
	}
	if o.maxErr <= 0 {
		o.maxErr = DefaultMaxErrors
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	if o.rec == nil {
		o.rec = metrics.Nop()
	}
	return o, nil
}

// Table returns the destination table.
func (o *Orchestrator) Table() string { return o.table }

// ProcessBatch maps, decides and writes every document in docs, in order.
//
// Record-level failures are reported in the returned Stats and never as an
// error. The error is non-nil only when the batch could not start (wrapping
// ErrStoreConnection or ErrSchema; Stats then carries a single error and no
// outcomes) or when ctx was cancelled between records. A cancelled batch
// still finishes the record in flight.
func (o *Orchestrator) ProcessBatch(ctx context.Context, docs []document.Value) (Stats, error) {
	st := newStats(o.ent.Kind, o.table, len(docs))
	log := o.log.With("entity", o.ent.Kind, "table", o.table, "run_id", st.RunID.String())

	store, cs, err := o.prepare(ctx)
	if err != nil {
		st.Aborted = true
		st.addError(err.Error(), o.maxErr)
		o.finish(log, &st)
		log.Errorw("reconcile: batch aborted", "err", err)
		return st, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnw("reconcile: close store", "err", err)
		}
	}()

	exec := upsert.New(store, o.ent.Required, log)

	var stopErr error
	seq := 0
loop:
	for _, doc := range docs {
		for _, row := range o.ent.Documents(doc) {
			if err := ctx.Err(); err != nil {
				stopErr = fmt.Errorf("reconcile: stopped after %d rows: %w", seq, err)
				break loop
			}
			out := o.processRow(ctx, log, seq, row, cs, store, exec)
			st.add(out, o.maxErr)
			o.report(log, st.RunID, out)
			seq++
		}
	}
	st.Rows = seq

	o.finish(log, &st)
	if stopErr != nil {
		log.Warnw("reconcile: batch cancelled", "err", stopErr, "summary", st.Summary())
		return st, stopErr
	}
	log.Infow("reconcile: batch done",
		"inserted", st.Inserted,
		"updated", st.Updated,
		"skipped", st.Skipped,
		"errored", st.Errored,
		"degraded", st.Degraded,
		"duration", st.Duration,
	)
	return st, nil
}

// prepare opens the store and loads the destination schema. The schema is
// read once and is not refreshed for the rest of the batch.
func (o *Orchestrator) prepare(ctx context.Context) (storage.Store, schema.ColumnSchema, error) {
	store, err := o.open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrStoreConnection, o.ent.Kind, err)
	}

	dctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	cs, err := store.Describe(dctx, o.table)
	if err == nil {
		for _, col := range o.ent.Mapping.KeyColumns() {
			if !cs.Has(col) {
				err = fmt.Errorf("identity column %q not declared", col)
				break
			}
		}
	}
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("%w: table %s: %w", ErrSchema, o.table, err)
	}
	return store, cs, nil
}

// processRow carries one row document to a terminal outcome. Store work runs
// under its own timeout, detached from ctx's cancellation, so a transaction
// that has started is always committed or rolled back.
func (o *Orchestrator) processRow(
	ctx context.Context,
	log *zap.SugaredLogger,
	seq int,
	doc document.Value,
	cs schema.ColumnSchema,
	store storage.Store,
	exec *upsert.Executor,
) Outcome {
	out := Outcome{Seq: seq, Stage: Received, Fingerprint: document.Fingerprint(doc)}

	m := mapping.Map(doc, o.ent.Mapping, cs)
	out.Stage = Mapped
	out.Key = m.Key
	out.Degraded = m.Degraded
	for _, note := range m.Notes {
		log.Debugw("reconcile: mapping note", "seq", seq, "key", m.Key.String(), "note", note)
	}
	where := fmt.Sprintf("row %d", seq)
	if m.Key.Complete() {
		where = m.Key.String()
	}
	for _, note := range m.Degradations {
		out.Issues = append(out.Issues, fmt.Sprintf("%s: %s", where, note))
	}

	rec := m.Record
	if o.ent.Derive != nil {
		rec = o.ent.Derive(rec)
	}
	out.Stage = Derived
	rec, dropped := rec.Project(cs)
	if len(dropped) > 0 {
		log.Debugw("reconcile: dropped undeclared columns", "seq", seq, "columns", dropped)
	}

	if !m.Key.Complete() {
		out.Kind = Skipped
		out.Message = upsert.ReasonMissingIdentity
		out.Err = fmt.Errorf("row %d: %w for %v", seq, ErrIdentityMissing, m.Key.Columns)
		out.Issues = append(out.Issues, out.Err.Error())
		return out
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	c := detect.Candidate{Table: o.table, Key: m.Key, Record: rec}
	d, err := detect.NeedsWrite(rctx, c, cs, store)
	if err != nil {
		log.Warnw("reconcile: comparison failed, inserting", "key", m.Key.String(), "err", err)
	}
	out.Stage = Decided
	out.Decision = d

	res := exec.Execute(rctx, d, c)
	out.Stage = Executed
	out.Kind = res.Kind
	out.Message = res.Message
	out.Err = res.Err
	if res.Kind == Errored {
		log.Warnw("reconcile: record failed", "key", m.Key.String(), "err", res.Err)
	}
	return out
}

// report sends skipped and errored outcomes to the audit sink.
func (o *Orchestrator) report(log *zap.SugaredLogger, runID uuid.UUID, out Outcome) {
	if o.audit == nil || out.Kind == Inserted || out.Kind == Updated {
		return
	}
	if err := o.audit.Write(runID, o.ent.Kind, out); err != nil {
		log.Warnw("reconcile: audit write failed", "seq", out.Seq, "err", err)
	}
}

func (o *Orchestrator) finish(log *zap.SugaredLogger, st *Stats) {
	st.Duration = time.Since(st.Started)

	o.rec.RecordOutcome(st.Entity, Inserted.String(), int64(st.Inserted))
	o.rec.RecordOutcome(st.Entity, Updated.String(), int64(st.Updated))
	o.rec.RecordOutcome(st.Entity, Skipped.String(), int64(st.Skipped))
	o.rec.RecordOutcome(st.Entity, Errored.String(), int64(st.Errored))
	o.rec.RecordDegraded(st.Entity, int64(st.Degraded))
	o.rec.RecordBatch(st.Entity, st.Status(), st.Duration)

	if st.Degraded > 0 {
		log.Infow("reconcile: degraded values stored as null", "count", st.Degraded, "err", ErrMappingDegradation)
	}
}
