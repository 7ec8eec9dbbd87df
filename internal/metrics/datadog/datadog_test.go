package datadog

import (
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"shopetl/internal/metrics"
)

func TestNewBackendRequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend(Config{}); err == nil {
		t.Fatalf("NewBackend(empty) error = nil, want non-nil")
	}
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   metrics.Labels
		want []string
	}{
		{"nil", nil, nil},
		{"sorted", metrics.Labels{"outcome": "inserted", "entity": "orders"}, []string{"entity:orders", "outcome:inserted"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := labelsToTags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("labelsToTags(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNilClientIsNoop(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.RecordsTotal, 1, nil)
	b.ObserveHistogram(metrics.BatchDuration, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() = %v, want nil", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
}

// TestSendsToAgent points the client at a local UDP listener standing in
// for the DogStatsD agent.
func TestSendsToAgent(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listener unavailable: %v", err)
	}
	defer pc.Close()

	b, err := NewBackend(Config{Addr: pc.LocalAddr().String(), Namespace: "shop.", GlobalTags: []string{"job:nightly"}})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	defer b.Close()

	metrics.New(b).RecordOutcome("orders", "inserted", 2)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	got := string(buf[:n])
	for _, want := range []string{"shop.shopetl_records_total:2|c", "entity:orders", "outcome:inserted", "job:nightly"} {
		if !strings.Contains(got, want) {
			t.Fatalf("datagram = %q, want it to contain %q", got, want)
		}
	}
}
