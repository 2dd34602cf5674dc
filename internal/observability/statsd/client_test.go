package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestMetricName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefix, name, want string
	}{
		{"wasm", "jobs.submitted", "wasm.jobs.submitted"},
		{"wasm", " stage/duration ", "wasm.stage_duration"},
		{"wasm", "pipeline..stage.", "wasm.pipeline.stage"},
		{"wasm", "a:b|c", "wasm.a_b_c"},
		{"", "jobs.failed", "jobs.failed"},
		{"wasm", " . ", ""},
	}
	for _, tt := range tests {
		if got := metricName(tt.prefix, tt.name); got != tt.want {
			t.Errorf("metricName(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestClientWritesLines(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listener unavailable: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     ".wasm.",
		GlobalTags: map[string]string{" env ": " prod ", "": "dropped"},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()
	if !client.Enabled() {
		t.Fatal("client with an address should be enabled")
	}

	client.Count("jobs.submitted", 1, map[string]string{"operation": "create"})
	client.Timing("stage.duration", 1500*time.Microsecond, nil)
	client.Gauge("workers busy", 2.5, map[string]string{"env": "stage"})

	want := []string{
		"wasm.jobs.submitted:1|c|#env:prod,operation:create",
		"wasm.stage.duration:1.5|ms|#env:prod",
		"wasm.workers_busy:2.5|g|#env:stage",
	}
	buf := make([]byte, 512)
	for i, w := range want {
		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, readErr := pc.ReadFrom(buf)
		if readErr != nil {
			t.Fatalf("datagram %d: %v", i, readErr)
		}
		if got := string(buf[:n]); got != w {
			t.Errorf("datagram %d = %q, want %q", i, got, w)
		}
	}
}

func TestDisabledClientDropsMetrics(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{Enabled: true, Address: "   "})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Enabled() {
		t.Fatal("client without an address must stay disabled")
	}
	client.Count("jobs.submitted", 1, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	var nilClient *Client
	nilClient.Timing("stage.duration", time.Second, nil)
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	if err == nil || !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("expected dial error, got %v", err)
	}
}

func TestTee(t *testing.T) {
	t.Parallel()

	a, b := &recordingSink{}, &recordingSink{}
	sink := Tee(a, nil, b)
	sink.Count("jobs.failed", 2, nil)
	sink.Gauge("queue.depth", 3, nil)
	sink.Timing("stage.duration", time.Second, nil)

	for _, r := range []*recordingSink{a, b} {
		if strings.Join(r.names, ",") != "jobs.failed,queue.depth,stage.duration" {
			t.Fatalf("unexpected fan-out: %v", r.names)
		}
	}
	if Tee(nil, nil) != nil {
		t.Fatal("Tee of nothing should be nil")
	}
	if Tee(a) != Sink(a) {
		t.Fatal("Tee of one sink should return it unchanged")
	}
}

type recordingSink struct{ names []string }

func (r *recordingSink) Count(name string, _ int64, _ map[string]string) { r.names = append(r.names, name) }
func (r *recordingSink) Gauge(name string, _ float64, _ map[string]string) { r.names = append(r.names, name) }
func (r *recordingSink) Timing(name string, _ time.Duration, _ map[string]string) { r.names = append(r.names, name) }
