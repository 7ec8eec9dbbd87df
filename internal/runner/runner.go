// Package runner executes one configured job: it resolves each entity's
// inputs, loads the documents and hands them to a reconcile batch, then
// flushes metrics.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopetl/internal/config"
	"shopetl/internal/datasource/file"
	"shopetl/internal/entity"
	"shopetl/internal/metrics"
	"shopetl/internal/reconcile"
	"shopetl/internal/storage"
)

// Exit codes reported by the CLI.
const (
	ExitOK         = 0
	ExitFatal      = 1 // configuration, input or schema errors
	ExitPartial    = 2 // some records errored
	ExitConnection = 3 // the store could not be reached
)

// openStore is a test seam.
var openStore = storage.New

// Runner runs a job. A Runner may Run repeatedly (scheduled or watch mode);
// every Run opens fresh connections.
type Runner struct {
	job   config.Job
	log   *zap.SugaredLogger
	rec   *metrics.Recorder
	audit reconcile.AuditSink
}

// New returns a Runner for job. log, rec and audit may be nil.
func New(job config.Job, log *zap.SugaredLogger, rec *metrics.Recorder, audit reconcile.AuditSink) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Runner{job: job, log: log, rec: rec, audit: audit}
}

// Run processes every configured entity, at most runtime.parallelism at a
// time, and returns their statistics in configuration order. An entity that
// cannot be loaded or whose batch aborts contributes an error; the others
// still run. Record-level failures are reported only through the stats.
func (r *Runner) Run(ctx context.Context) ([]reconcile.Stats, error) {
	since, err := r.job.Runtime.ParseUpdatedSince()
	if err != nil {
		return nil, err
	}

	stats := make([]reconcile.Stats, len(r.job.Entities))
	errs := make([]error, len(r.job.Entities))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.job.Runtime.Parallelism
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, ec := range r.job.Entities {
		g.Go(func() error {
			st, err := r.runEntity(gctx, ec, since)
			stats[i] = st
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", ec.Kind, err)
			}
			// Entities are independent; one failing must not cancel the rest.
			return nil
		})
	}
	_ = g.Wait()

	if err := r.rec.Flush(); err != nil {
		r.log.Warnw("runner: metrics flush failed", "err", err)
	}
	return stats, multierr.Combine(errs...)
}

func (r *Runner) runEntity(ctx context.Context, ec config.Entity, since time.Time) (reconcile.Stats, error) {
	ent, err := entity.Lookup(ec.Kind)
	if err != nil {
		return reconcile.Stats{Entity: ec.Kind}, err
	}
	log := r.log.With("entity", ent.Kind)

	srcs, err := file.Resolve(ec.Inputs)
	if err != nil {
		return reconcile.Stats{Entity: ent.Kind}, err
	}
	if len(srcs) == 0 {
		log.Warnw("runner: no input files matched", "inputs", ec.Inputs)
	}
	docs, lst, err := file.Load(ctx, srcs, file.FromConfigOptions(ec.Options, since))
	if err != nil {
		return reconcile.Stats{Entity: ent.Kind}, err
	}
	log.Infow("runner: documents loaded", "files", lst.Files, "documents", lst.Documents, "filtered", lst.Filtered)

	sc := storage.Config{
		Kind:           r.job.Storage.Kind,
		DSN:            r.job.Storage.DSN,
		ConnectTimeout: r.job.Storage.ConnectTimeout,
	}
	orch, err := reconcile.New(reconcile.Options{
		Entity: ent,
		Table:  ec.Table,
		Open: func(ctx context.Context) (storage.Store, error) {
			return openStore(ctx, sc)
		},
		StatementTimeout: r.job.Storage.StatementTimeout,
		MaxErrors:        r.job.Runtime.MaxErrors,
		Logger:           log,
		Metrics:          r.rec,
		Audit:            r.audit,
	})
	if err != nil {
		return reconcile.Stats{Entity: ent.Kind}, err
	}

	st, err := orch.ProcessBatch(ctx, docs)
	log.Infow("runner: "+st.Summary(), "run_id", st.RunID.String())
	return st, err
}

// ExitCode maps a Run result to the process exit status. A store that could
// not be reached wins over everything else so schedulers can alert on it.
func ExitCode(stats []reconcile.Stats, err error) int {
	switch {
	case errors.Is(err, reconcile.ErrStoreConnection):
		return ExitConnection
	case err != nil:
		return ExitFatal
	}
	for _, st := range stats {
		if !st.Success() {
			return ExitPartial
		}
	}
	return ExitOK
}
