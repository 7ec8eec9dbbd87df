package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"shopetl/internal/auditlog"
	"shopetl/internal/config"
	"shopetl/internal/entity"
	"shopetl/internal/logging"
	"shopetl/internal/reconcile"
	"shopetl/internal/runner"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

// loadJob reads and lints the job config. Warnings are printed; errors stop
// the command with ExitFatal.
func loadJob(opts *globalOptions, stderr io.Writer) (config.Job, error) {
	job, err := config.Load(opts.configPath)
	if err != nil {
		return job, withCode(runner.ExitFatal, err)
	}
	if opts.logLevel != "" {
		job.Log.Level = opts.logLevel
	}
	issues := config.Validate(job)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return job, withCode(runner.ExitFatal, fmt.Errorf("configuration is invalid: %s", opts.configPath))
	}
	return job, nil
}

// session holds everything a run needs besides the job itself.
type session struct {
	log    *zap.SugaredLogger
	runner *runner.Runner
	close  func() error
}

func newSession(job config.Job) (*session, error) {
	log, err := logging.New(job.Log.Level, job.Log.Development)
	if err != nil {
		return nil, withCode(runner.ExitFatal, err)
	}
	rec, closeRec, err := runner.NewRecorder(job)
	if err != nil {
		return nil, withCode(runner.ExitFatal, err)
	}

	var audit reconcile.AuditSink
	var sink *auditlog.Sink
	if job.Audit.Path != "" {
		sink, err = auditlog.Open(job.Audit.Path)
		if err != nil {
			_ = closeRec()
			return nil, withCode(runner.ExitFatal, err)
		}
		audit = sink
	}

	s := &session{log: log.With("job", job.Name)}
	s.runner = runner.New(job, s.log, rec, audit)
	s.close = func() error {
		var err error
		if sink != nil {
			for reason, n := range sink.Counts() {
				s.log.Infow("audit: "+reason, "count", n)
			}
			err = multierr.Append(err, sink.Close())
		}
		err = multierr.Append(err, closeRec())
		_ = log.Sync()
		return err
	}
	return s, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printStats(w io.Writer, stats []reconcile.Stats) {
	for _, st := range stats {
		fmt.Fprintln(w, st.Summary())
		for _, msg := range st.Errors {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}
}

func validateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the job configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadJob(opts, cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", opts.configPath)
			return nil
		},
	}
}

func runCmd(opts *globalOptions) *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile every configured entity once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := loadJob(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if since != "" {
				job.Runtime.UpdatedSince = since
			}
			s, err := newSession(job)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(); cerr != nil {
					s.log.Warnw("shutdown", "err", cerr)
				}
			}()

			ctx, stop := signalContext(cmd)
			defer stop()

			stats, runErr := s.runner.Run(ctx)
			printStats(cmd.OutOrStdout(), stats)
			switch code := runner.ExitCode(stats, runErr); code {
			case runner.ExitOK:
				return nil
			case runner.ExitPartial:
				return withCode(code, errors.New("some records failed"))
			default:
				return withCode(code, runErr)
			}
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only process documents updated at or after this time (overrides runtime.updated_since)")
	return cmd
}

func scheduleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the job on schedule.cron until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := loadJob(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if job.Schedule.Cron == "" {
				return withCode(runner.ExitFatal, fmt.Errorf("schedule.cron is not set"))
			}
			s, err := newSession(job)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signalContext(cmd)
			defer stop()
			if err := s.runner.Schedule(ctx, job.Schedule.Cron, reportTo(s.log)); err != nil {
				return withCode(runner.ExitFatal, err)
			}
			return nil
		},
	}
}

func watchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the job whenever files land in schedule.watch_dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := loadJob(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if job.Schedule.WatchDir == "" {
				return withCode(runner.ExitFatal, fmt.Errorf("schedule.watch_dir is not set"))
			}
			s, err := newSession(job)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signalContext(cmd)
			defer stop()
			if err := s.runner.Watch(ctx, job.Schedule.WatchDir, job.Schedule.Debounce, reportTo(s.log)); err != nil {
				return withCode(runner.ExitFatal, err)
			}
			return nil
		},
	}
}

// reportTo logs the outcome of a triggered run; long-running modes keep going
// after a failed run.
func reportTo(log *zap.SugaredLogger) runner.DoneFunc {
	return func(stats []reconcile.Stats, err error) {
		code := runner.ExitCode(stats, err)
		if code == runner.ExitOK {
			log.Infow("run finished", "entities", len(stats))
			return
		}
		log.Errorw("run finished with failures", "exit_code", code, "err", err)
	}
}

func entitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the entity kinds and their default tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, k := range entity.Kinds() {
				e, err := entity.Lookup(k)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%-18s table=%s key=%v\n", e.Kind, e.Table, e.Mapping.KeyColumns())
			}
			return nil
		},
	}
}
