package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oqs-hq/chatrelay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Helper function to create test config
func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:         true,
		Namespace:       "test",
		DurationBuckets: []float64{0.1, 0.5, 1.0, 5.0},
	}
}

func TestCollector_NewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(testConfig(), registry)

	if collector == nil {
		t.Fatal("Expected non-nil collector")
	}
	if collector.Registry() != registry {
		t.Error("Collector registry not set correctly")
	}
}

func TestCollector_RecordRequest(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordRequest("ollama", "llama3.2:1b", "stream", "ok", 1200*time.Millisecond)
	collector.RecordRequest("ollama", "llama3.2:1b", "stream", "ok", 300*time.Millisecond)
	collector.RecordRequest("ollama", "llama3.2:1b", "once", "degraded", 10*time.Millisecond)

	if got := testutil.ToFloat64(collector.requests.WithLabelValues("ollama", "stream", "ok")); got != 2 {
		t.Errorf("expected 2 ok streams, got %v", got)
	}
	if got := testutil.ToFloat64(collector.requests.WithLabelValues("ollama", "once", "degraded")); got != 1 {
		t.Errorf("expected 1 degraded request, got %v", got)
	}
	if got := testutil.ToFloat64(collector.modelRequests.WithLabelValues("ollama", "llama3.2:1b")); got != 3 {
		t.Errorf("expected 3 model requests, got %v", got)
	}
	if n := testutil.CollectAndCount(collector.requestDuration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestCollector_ModelCardinality(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	for i := 0; i < maxModelLabels+10; i++ {
		collector.RecordRequest("ollama", fmt.Sprintf("model-%d", i), "once", "ok", time.Millisecond)
	}

	if got := testutil.ToFloat64(collector.modelRequests.WithLabelValues("ollama", "other")); got != 10 {
		t.Errorf("expected 10 requests aggregated into other, got %v", got)
	}
}

func TestCollector_Counters(t *testing.T) {
	collector := NewCollector(testConfig(), nil)

	collector.RecordDegraded("ollama", "timeout")
	collector.RecordRetry("ollama", "http:503")
	collector.RecordRetry("ollama", "http:503")
	collector.RecordHeartbeats("ollama", 3)
	collector.RecordHeartbeats("ollama", 0)
	collector.RecordFragments("ollama", 7)
	collector.SetBackendUp("ollama", true)
	collector.SetBackendUp("hosted", false)
	collector.SetActiveSessions(4)
	collector.RecordLedgerDropped()

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"degraded", collector.degraded.WithLabelValues("ollama", "timeout"), 1},
		{"retries", collector.retries.WithLabelValues("ollama", "http:503"), 2},
		{"heartbeats", collector.heartbeats.WithLabelValues("ollama"), 3},
		{"fragments", collector.fragments.WithLabelValues("ollama"), 7},
		{"backend up", collector.backendUp.WithLabelValues("ollama"), 1},
		{"backend down", collector.backendUp.WithLabelValues("hosted"), 0},
		{"sessions", collector.activeSessions, 4},
		{"ledger dropped", collector.ledgerDropped, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, nil)

	collector.RecordRequest("ollama", "m", "once", "ok", time.Second)
	collector.RecordDegraded("ollama", "timeout")

	if n := testutil.CollectAndCount(collector.requests); n != 0 {
		t.Errorf("expected no series when disabled, got %d", n)
	}
}

func TestCollector_Nil(t *testing.T) {
	var collector *Collector

	// Must not panic.
	collector.RecordRequest("ollama", "m", "once", "ok", time.Second)
	collector.RecordRetry("ollama", "timeout")
	collector.SetBackendUp("ollama", true)
	collector.RecordLedgerDropped()
}

func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), nil)
	collector.RecordRequest("ollama", "llama3.2:1b", "once", "echo", time.Millisecond)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `test_requests_total{backend="ollama",mode="once",status="echo"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}

func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)

	if !cl.Allow("a") || !cl.Allow("b") {
		t.Fatal("expected first two label sets to be allowed")
	}
	if cl.Allow("c") {
		t.Error("expected third label set to be rejected")
	}
	if !cl.Allow("a") {
		t.Error("expected known label set to stay allowed")
	}
	if cl.Count() != 2 {
		t.Errorf("expected count 2, got %d", cl.Count())
	}
}
