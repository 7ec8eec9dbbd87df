package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"shopetl/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec for assertions in tests.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{
			name:       "missing gateway URL returns error",
			jobName:    "orders-sync",
			gatewayURL: "",
			wantErr:    true,
		},
		{
			name:        "empty job name uses default",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "shopetl",
		},
		{
			name:        "explicit job name is preserved",
			jobName:     "nightly",
			gatewayURL:  "http://pushgateway:9091",
			wantJobName: "nightly",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewBackend(%q, %q) error = nil, want non-nil", tt.jobName, tt.gatewayURL)
				}
				if b != nil {
					t.Fatalf("NewBackend(%q, %q) backend = %v, want nil", tt.jobName, tt.gatewayURL, b)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v, want nil", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.gatewayURL != tt.gatewayURL {
				t.Fatalf("backend.gatewayURL = %q, want %q", b.gatewayURL, tt.gatewayURL)
			}
			if b.recordCounter == nil || b.degradedCounter == nil || b.batchCounter == nil || b.batchDuration == nil {
				t.Fatalf("collectors not initialised: %+v", b)
			}
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	type args struct {
		name   string
		delta  float64
		labels metrics.Labels
	}
	tests := []struct {
		name  string
		args  []args
		check func(t *testing.T, b *Backend)
	}{
		{
			name: "records counter by entity and outcome",
			args: []args{
				{metrics.RecordsTotal, 3, metrics.Labels{"entity": "orders", "outcome": "inserted"}},
				{metrics.RecordsTotal, 2, metrics.Labels{"entity": "orders", "outcome": "inserted"}},
			},
			check: func(t *testing.T, b *Backend) {
				if got := readCounterValue(t, b.recordCounter.WithLabelValues("orders", "inserted")); got != 5 {
					t.Fatalf("recordCounter value = %v, want 5", got)
				}
			},
		},
		{
			name: "degraded counter by entity",
			args: []args{
				{metrics.DegradedTotal, 4, metrics.Labels{"entity": "customers"}},
			},
			check: func(t *testing.T, b *Backend) {
				if got := readCounterValue(t, b.degradedCounter.WithLabelValues("customers")); got != 4 {
					t.Fatalf("degradedCounter value = %v, want 4", got)
				}
			},
		},
		{
			name: "batch counter by status",
			args: []args{
				{metrics.BatchesTotal, 1, metrics.Labels{"entity": "orders", "status": "partial"}},
			},
			check: func(t *testing.T, b *Backend) {
				if got := readCounterValue(t, b.batchCounter.WithLabelValues("orders", "partial")); got != 1 {
					t.Fatalf("batchCounter value = %v, want 1", got)
				}
			},
		},
		{
			name: "unknown metric name is ignored",
			args: []args{
				{"unknown_metric", 10, metrics.Labels{"entity": "orders"}},
			},
			check: func(t *testing.T, b *Backend) {
				if got := readCounterValue(t, b.batchCounter.WithLabelValues("orders", "success")); got != 0 {
					t.Fatalf("batchCounter value = %v, want 0 (unchanged)", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend("shopetl", "http://example.com")
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			for _, a := range tt.args {
				b.IncCounter(a.name, a.delta, a.labels)
			}
			tt.check(t, b)
		})
	}
}

func TestIncCounterNilMetrics(t *testing.T) {
	t.Parallel()

	b := &Backend{} // zero-value backend with nil collectors

	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"entity": "orders", "outcome": "updated"})
	b.IncCounter(metrics.DegradedTotal, 1, metrics.Labels{"entity": "orders"})
	b.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.BatchDuration, 1, metrics.Labels{})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		metricName string
		value      float64
		wantCount  uint64
		wantSum    float64
	}{
		{"records batch duration", metrics.BatchDuration, 1.5, 1, 1.5},
		{"ignores unknown metric name", "other_metric", 2.0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend("shopetl", "http://example.com")
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			b.ObserveHistogram(tt.metricName, tt.value, metrics.Labels{"entity": "orders", "status": "success"})

			gotCount, gotSum := readSummaryCountSum(t, b.batchDuration, "orders", "success")
			if gotCount != tt.wantCount {
				t.Fatalf("summary sample count = %d, want %d", gotCount, tt.wantCount)
			}
			if gotSum != tt.wantSum {
				t.Fatalf("summary sample sum = %v, want %v", gotSum, tt.wantSum)
			}
		})
	}
}

// TestFlush verifies that Flush pushes through a Recorder to a fake Pushgateway.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequestInfo{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("orders-sync", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	rec := metrics.New(b)
	rec.RecordOutcome("orders", "inserted", 1)

	if err := rec.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Fatalf("push method = %q, want PUT", got.method)
	}
	if got.path != "/metrics/job/orders-sync" {
		t.Fatalf("push path = %q, want /metrics/job/orders-sync", got.path)
	}
	if got.bodyLen == 0 {
		t.Fatalf("Push request body length = 0, want > 0")
	}
}

func BenchmarkIncCounterRecord(b *testing.B) {
	backend, err := NewBackend("shopetl", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"entity": "orders", "outcome": "skipped"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RecordsTotal, 1, labels)
	}
}
