// Package config defines the job configuration for shopetl and loads it from
// YAML or JSON files with environment overrides.
//
// A job names one destination store and the entity kinds to reconcile into
// it. Every component receives the values it needs from a Job explicitly;
// nothing reads the environment on its own.
//
// Example (trimmed):
//
//	name: nightly
//	storage:
//	  kind: postgres
//	  dsn: postgres://etl@warehouse/shop
//	  statement_timeout: 30s
//	entities:
//	  - kind: orders
//	    inputs: ["inbox/orders-*.json"]
//	  - kind: order_lines
//	    inputs: ["inbox/orders-*.json"]
//	    options: { envelope: orders }
//	metrics:
//	  backend: prometheus
//	  pushgateway_url: http://pushgateway:9091
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: SHOPETL_STORAGE_DSN overrides
// storage.dsn.
const EnvPrefix = "SHOPETL"

// Job is the top-level configuration object.
type Job struct {
	// Name labels metrics pushes and log lines.
	Name string `mapstructure:"name"`

	Storage  Storage  `mapstructure:"storage"`
	Entities []Entity `mapstructure:"entities"`
	Runtime  Runtime  `mapstructure:"runtime"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Audit    Audit    `mapstructure:"audit"`
	Schedule Schedule `mapstructure:"schedule"`
	Log      Log      `mapstructure:"log"`
}

// Storage selects the destination backend.
type Storage struct {
	// Kind is a registered backend: postgres, mysql, mssql or sqlite.
	Kind string `mapstructure:"kind"`
	DSN  string `mapstructure:"dsn"`

	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// Entity is one entity kind to reconcile.
type Entity struct {
	Kind string `mapstructure:"kind"`

	// Table overrides the entity's default destination table.
	Table string `mapstructure:"table"`

	// Inputs are file paths or glob patterns of source documents.
	Inputs []string `mapstructure:"inputs"`

	// Options is read by the document source:
	//   envelope (string)      key of the document array in an envelope object
	//   updated_field (string) field compared with runtime.updated_since
	Options Options `mapstructure:"options"`
}

// Runtime controls how batches run.
type Runtime struct {
	// Parallelism bounds how many entity batches run at once. Each batch is
	// itself sequential.
	Parallelism int `mapstructure:"parallelism"`

	// MaxErrors caps the error messages kept per batch.
	MaxErrors int `mapstructure:"max_errors"`

	// UpdatedSince, when set, drops documents last updated before it
	// (RFC 3339 or YYYY-MM-DD).
	UpdatedSince string `mapstructure:"updated_since"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	// Backend is "none", "prometheus" or "datadog".
	Backend string `mapstructure:"backend"`

	PushgatewayURL string   `mapstructure:"pushgateway_url"`
	DatadogAddr    string   `mapstructure:"datadog_addr"`
	Namespace      string   `mapstructure:"namespace"`
	Tags           []string `mapstructure:"tags"`
}

// Audit configures the skipped/errored outcome log.
type Audit struct {
	// Path of the CSV file. Empty disables the audit log.
	Path string `mapstructure:"path"`
}

// Schedule configures the long-running modes.
type Schedule struct {
	// Cron is a standard five-field cron expression for `shopetl schedule`.
	Cron string `mapstructure:"cron"`

	// WatchDir is the inbox directory for `shopetl watch`.
	WatchDir string `mapstructure:"watch_dir"`

	// Debounce delays a watch-triggered run until writes settle.
	Debounce time.Duration `mapstructure:"debounce"`
}

// Log configures the logger.
type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// defaults are applied before the file and environment. Every key that may
// be overridden from the environment needs an entry here.
var defaults = map[string]any{
	"name":                      "shopetl",
	"storage.kind":              "postgres",
	"storage.dsn":               "",
	"storage.connect_timeout":   "10s",
	"storage.statement_timeout": "30s",
	"runtime.parallelism":       1,
	"runtime.max_errors":        1000,
	"runtime.updated_since":     "",
	"metrics.backend":           "none",
	"metrics.pushgateway_url":   "",
	"metrics.datadog_addr":      "",
	"metrics.namespace":         "",
	"audit.path":                "",
	"schedule.cron":             "",
	"schedule.watch_dir":        "",
	"schedule.debounce":         "2s",
	"log.level":                 "info",
	"log.development":           false,
}

// Load reads the job at path (YAML or JSON, chosen by extension) and applies
// SHOPETL_* environment overrides. An empty path yields defaults plus the
// environment.
func Load(path string) (Job, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Job{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var j Job
	if err := v.Unmarshal(&j); err != nil {
		return Job{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	for i := range j.Entities {
		if j.Entities[i].Options == nil {
			j.Entities[i].Options = Options{}
		}
	}
	return j, nil
}

// ParseUpdatedSince parses runtime.updated_since. The zero time means no
// cursor.
func (r Runtime) ParseUpdatedSince() (time.Time, error) {
	s := strings.TrimSpace(r.UpdatedSince)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("config: updated_since %q is not RFC 3339 or YYYY-MM-DD", s)
}

// Options is a small helper to fetch typed values from free-form option maps.
// It performs only minimal type coercion and returns the provided default when
// a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. YAML yields int, JSON float64.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}
