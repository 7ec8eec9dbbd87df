package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"shopetl/internal/reconcile"
)

// DoneFunc receives the result of every triggered run.
type DoneFunc func(stats []reconcile.Stats, err error)

// Schedule runs the job on a standard cron expression until ctx is done.
// A tick that fires while the previous run is still going is skipped.
// Schedule waits for an in-flight run before returning.
func (r *Runner) Schedule(ctx context.Context, spec string, done DoneFunc) error {
	logger := cronLogger{r.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		r.log.Infow("runner: scheduled run starting", "cron", spec)
		stats, err := r.Run(ctx)
		if done != nil {
			done(stats, err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	c.Start()
	r.log.Infow("runner: scheduler started", "cron", spec)
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Watch runs the job whenever files in dir are created or written, once the
// directory has been quiet for debounce. Runs never overlap; changes seen
// during a run trigger one more run afterwards.
func (r *Runner) Watch(ctx context.Context, dir string, debounce time.Duration, done DoneFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	r.log.Infow("runner: watching", "dir", dir, "debounce", debounce)

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			r.log.Debugw("runner: change detected", "file", ev.Name, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			stats, err := r.Run(ctx)
			if done != nil {
				done(stats, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warnw("runner: watcher error", "err", err)
		}
	}
}

// cronLogger adapts a zap logger to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "err", err)...)
}
