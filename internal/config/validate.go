package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"

	"shopetl/internal/entity"
	"shopetl/internal/storage"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced to users but
	// does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Job.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "entities[1].inputs"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of a Job. It does not mutate the job.
// Storage kinds are checked against the backends registered with the storage
// package, so callers should link the backends they intend to use first.
func Validate(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "name",
			Message:  "name is empty; metrics will be pushed under the default job",
		})
	}
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateEntities(j.Entities)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateMetrics(j.Metrics)...)
	issues = append(issues, validateSchedule(j.Schedule)...)

	if _, err := zapcore.ParseLevel(j.Log.Level); j.Log.Level != "" && err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "log.level",
			Message:  fmt.Sprintf("unknown log level %q", j.Log.Level),
		})
	}
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	} else if kinds := storage.ListKinds(); len(kinds) > 0 && !slices.Contains(kinds, strings.ToLower(s.Kind)) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; registered: %s", s.Kind, strings.Join(kinds, ", ")),
		})
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty (set it in the file or SHOPETL_STORAGE_DSN)",
		})
	}
	if s.ConnectTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.connect_timeout",
			Message:  "connect_timeout must not be negative",
		})
	}
	if s.StatementTimeout <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.statement_timeout",
			Message:  "statement_timeout is not positive; the 30s default applies",
		})
	}
	return issues
}

func validateEntities(es []Entity) []Issue {
	var issues []Issue

	if len(es) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "entities",
			Message:  "at least one entity must be configured",
		})
	}

	seen := map[string]int{}
	for i, e := range es {
		path := fmt.Sprintf("entities[%d]", i)
		if _, err := entity.Lookup(e.Kind); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".kind",
				Message:  err.Error(),
			})
		}
		key := strings.ToLower(strings.TrimSpace(e.Kind)) + "/" + e.Table
		if prev, ok := seen[key]; ok {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path,
				Message:  fmt.Sprintf("duplicates entities[%d]; both batches write the same table", prev),
			})
		}
		seen[key] = i

		if len(e.Inputs) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".inputs",
				Message:  "inputs must list at least one file or glob",
			})
		}
		for k, in := range e.Inputs {
			if _, err := filepath.Match(in, ""); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("%s.inputs[%d]", path, k),
					Message:  fmt.Sprintf("bad glob %q: %v", in, err),
				})
			}
		}
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.Parallelism < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.parallelism",
			Message:  "parallelism must not be negative",
		})
	}
	if r.MaxErrors < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_errors",
			Message:  "max_errors must not be negative",
		})
	}
	if _, err := r.ParseUpdatedSince(); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.updated_since",
			Message:  err.Error(),
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch strings.ToLower(m.Backend) {
	case "", "none":
	case "prometheus":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires pushgateway_url",
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend requires datadog_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; want none, prometheus or datadog", m.Backend),
		})
	}
	return issues
}

func validateSchedule(s Schedule) []Issue {
	var issues []Issue

	if s.Cron != "" {
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "schedule.cron",
				Message:  fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if s.Debounce < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "schedule.debounce",
			Message:  "debounce must not be negative",
		})
	}
	return issues
}
