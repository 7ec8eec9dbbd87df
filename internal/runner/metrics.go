package runner

import (
	"fmt"
	"strings"

	"shopetl/internal/config"
	"shopetl/internal/metrics"
	"shopetl/internal/metrics/datadog"
	"shopetl/internal/metrics/prompush"
)

// NewRecorder builds the metrics recorder selected by job.Metrics. The
// returned close function releases the backend and is never nil.
func NewRecorder(job config.Job) (*metrics.Recorder, func() error, error) {
	noop := func() error { return nil }
	m := job.Metrics
	switch strings.ToLower(m.Backend) {
	case "", "none":
		return metrics.Nop(), noop, nil
	case "prometheus":
		b, err := prompush.NewBackend(job.Name, m.PushgatewayURL)
		if err != nil {
			return nil, noop, err
		}
		return metrics.New(b), noop, nil
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  m.Namespace,
			GlobalTags: append([]string{"job:" + job.Name}, m.Tags...),
		})
		if err != nil {
			return nil, noop, err
		}
		return metrics.New(b), b.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown metrics.backend %q", m.Backend)
	}
}
