package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/providers/echo"
	"oqs-hq/chatrelay/pkg/scheduler"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{name: "default timeout", timeout: 0, expectedTimeout: 5 * time.Second},
		{name: "custom timeout", timeout: 10 * time.Second, expectedTimeout: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(tt.timeout, nil)
			if checker.checkTimeout != tt.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", tt.expectedTimeout, checker.checkTimeout)
			}
			if len(checker.ListChecks()) != 0 {
				t.Errorf("expected no checks, got %v", checker.ListChecks())
			}
		})
	}
}

func TestRegisterBackends(t *testing.T) {
	checker := New(time.Second, nil)
	checker.RegisterBackends([]providers.Adapter{echo.New("ollama", "m"), echo.New("hosted", "m")})

	names := checker.ListChecks()
	if len(names) != 2 || names[0] != "hosted" || names[1] != "ollama" {
		t.Errorf("unexpected checks %v", names)
	}

	checker.UnregisterCheck("hosted")
	if len(checker.ListChecks()) != 1 {
		t.Errorf("expected one check after unregister, got %v", checker.ListChecks())
	}
}

func TestRun_UpdatesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "chatrelay"}, reg)
	checker := New(time.Second, collector)
	checker.RegisterCheck("ollama", func(context.Context) error { return nil })
	checker.RegisterCheck("hosted", func(context.Context) error { return errors.New("connection refused") })

	results := checker.Run(context.Background())
	if results["ollama"].Status != StatusOK || results["hosted"].Status != StatusUnhealthy {
		t.Errorf("unexpected results %+v", results)
	}
	if results["hosted"].Message != "connection refused" {
		t.Errorf("unexpected message %q", results["hosted"].Message)
	}

	expected := `
# HELP chatrelay_backend_up Backend health status (1=healthy, 0=unhealthy)
# TYPE chatrelay_backend_up gauge
chatrelay_backend_up{backend="hosted"} 0
chatrelay_backend_up{backend="ollama"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "chatrelay_backend_up"); err != nil {
		t.Error(err)
	}
}

func TestRun_Timeout(t *testing.T) {
	checker := New(20*time.Millisecond, nil)
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	result := checker.Run(context.Background())["slow"]
	if result.Status != StatusUnhealthy || result.Message != ErrCheckTimeout.Error() {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]error
		want   string
	}{
		{name: "no checks", checks: nil, want: StatusReady},
		{name: "all healthy", checks: map[string]error{"a": nil, "b": nil}, want: StatusReady},
		{name: "some unhealthy", checks: map[string]error{"a": nil, "b": errors.New("down")}, want: StatusDegraded},
		{name: "all unhealthy", checks: map[string]error{"a": errors.New("down")}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second, nil)
			for name, err := range tt.checks {
				name, err := name, err
				checker.RegisterCheck(name, func(context.Context) error { return err })
			}
			if got := checker.CheckReadiness(context.Background()); got.Status != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got.Status)
			}
		})
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		err        error
		wantStatus int
	}{
		{name: "healthy", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "unhealthy", method: http.MethodGet, err: errors.New("down"), wantStatus: http.StatusServiceUnavailable},
		{name: "head", method: http.MethodHead, wantStatus: http.StatusOK},
		{name: "post not allowed", method: http.MethodPost, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second, nil)
			checker.RegisterCheck("ollama", func(context.Context) error { return tt.err })

			rec := httptest.NewRecorder()
			checker.ReadinessHandler()(rec, httptest.NewRequest(tt.method, "/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.method == http.MethodGet {
				var status HealthStatus
				if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
					t.Fatalf("invalid body: %v", err)
				}
				if _, ok := status.Checks["ollama"]; !ok {
					t.Errorf("expected ollama check in %+v", status)
				}
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler("1.2.3", "abc123", "2026-10-19")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestSchedule(t *testing.T) {
	checker := New(time.Second, nil)
	sched := scheduler.New("test")
	if err := checker.Schedule(sched, "@every 30s"); err != nil {
		t.Fatalf("Schedule() failed: %v", err)
	}
	if err := checker.Schedule(sched, "not a schedule"); err == nil {
		t.Error("expected error for an invalid schedule")
	}
}
