package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"oqs-hq/chatrelay/pkg/config"
	"oqs-hq/chatrelay/pkg/providers"
	"oqs-hq/chatrelay/pkg/relay"
	"oqs-hq/chatrelay/pkg/scheduler"
	"oqs-hq/chatrelay/pkg/telemetry/metrics"
)

func openTestSQL(t *testing.T) *SQLStorage {
	t.Helper()
	s, err := OpenSQL(context.Background(), SQLConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "nested", "ledger.db"),
	})
	if err != nil {
		t.Fatalf("OpenSQL() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(id, backend, status string, at time.Time) *Record {
	return &Record{
		ID:         id,
		RequestID:  "req-" + id,
		Time:       at,
		Mode:       relay.ModeStream,
		Backend:    backend,
		Model:      "llama3.2:1b",
		Provider:   "ollama:chat:llama3.2:1b",
		Status:     status,
		DoneReason: "stop",
		Fragments:  3,
		Heartbeats: 1,
		Attempts:   1,
		LatencyMs:  42,
	}
}

func TestStorage(t *testing.T) {
	backends := map[string]Storage{
		"sql":    openTestSQL(t),
		"memory": NewMemoryStorage(),
	}

	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().Add(-time.Hour).Truncate(time.Millisecond).UTC()

			for i, status := range []string{"ok", "degraded", "ok"} {
				rec := testRecord(fmt.Sprintf("r%d", i), "ollama", status, base.Add(time.Duration(i)*time.Minute))
				if err := s.Store(ctx, rec); err != nil {
					t.Fatalf("Store() failed: %v", err)
				}
			}
			hosted := testRecord("h1", "hosted", "ok", base)
			hosted.Client = "mobile"
			if err := s.Store(ctx, hosted); err != nil {
				t.Fatalf("Store() failed: %v", err)
			}

			all, err := s.Query(ctx, Query{})
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(all) != 4 {
				t.Fatalf("expected 4 records, got %d", len(all))
			}
			if all[0].ID != "r2" {
				t.Errorf("expected newest first, got %s", all[0].ID)
			}
			if !all[0].Time.Equal(base.Add(2*time.Minute)) || all[0].LatencyMs != 42 || all[0].DoneReason != "stop" {
				t.Errorf("record did not round-trip: %+v", all[0])
			}

			n, err := s.Count(ctx, Query{Backend: "ollama", Status: "ok"})
			if err != nil || n != 2 {
				t.Errorf("Count() = %d, %v; want 2", n, err)
			}

			byClient, err := s.Query(ctx, Query{Client: "mobile"})
			if err != nil || len(byClient) != 1 || byClient[0].ID != "h1" || byClient[0].Client != "mobile" {
				t.Errorf("unexpected client query %+v, %v", byClient, err)
			}

			limited, _ := s.Query(ctx, Query{Limit: 1, Since: base.Add(30 * time.Second)})
			if len(limited) != 1 || limited[0].ID != "r2" {
				t.Errorf("unexpected limited query %+v", limited)
			}

			deleted, err := s.DeleteBefore(ctx, base.Add(90*time.Second))
			if err != nil || deleted != 3 {
				t.Errorf("DeleteBefore() = %d, %v; want 3", deleted, err)
			}
		})
	}
}

func TestOpenSQL_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), SQLConfig{Driver: "oracle", DSN: "x"})
	var se *StorageError
	if !errors.As(err, &se) || se.Operation != "open" {
		t.Errorf("expected open StorageError, got %v", err)
	}
}

func TestOpenSQL_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	for i := 0; i < 2; i++ {
		s, err := OpenSQL(context.Background(), SQLConfig{Driver: DriverSQLite, DSN: path})
		if err != nil {
			t.Fatalf("OpenSQL() #%d failed: %v", i, err)
		}
		_ = s.Close()
	}
}

func TestRecorder_WritesResults(t *testing.T) {
	storage := NewMemoryStorage()
	rec := NewRecorder(storage, RecorderConfig{QueueSize: 10}, nil)

	rec.Observe(context.Background(), relay.Result{
		ID:         "res-1",
		RequestID:  "req-1",
		Mode:       relay.ModeOnce,
		Backend:    "ollama",
		Model:      "llama3.2:1b",
		Provider:   "degraded:timeout",
		Status:     providers.StatusDegraded,
		Attempts:   2,
		Latency:    1500 * time.Millisecond,
		Started:    time.Now(),
		Fragments:  0,
		Heartbeats: 0,
	})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	records, _ := storage.Query(context.Background(), Query{})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Status != "degraded" || r.Provider != "degraded:timeout" || r.LatencyMs != 1500 || r.Attempts != 2 {
		t.Errorf("unexpected record %+v", r)
	}
}

// blockingStorage blocks every Store until release is closed.
type blockingStorage struct {
	*MemoryStorage
	release chan struct{}
}

func (b *blockingStorage) Store(ctx context.Context, r *Record) error {
	<-b.release
	return b.MemoryStorage.Store(ctx, r)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "chatrelay"}, reg)

	storage := &blockingStorage{MemoryStorage: NewMemoryStorage(), release: make(chan struct{})}
	rec := NewRecorder(storage, RecorderConfig{QueueSize: 1}, collector)

	accepted := 0
	for i := 0; i < 5; i++ {
		if rec.Enqueue(context.Background(), testRecord(fmt.Sprintf("r%d", i), "ollama", "ok", time.Now())) {
			accepted++
		}
	}
	// One record may be held by the worker and one by the queue.
	if accepted < 1 || accepted > 2 {
		t.Errorf("expected 1 or 2 accepted records, got %d", accepted)
	}

	close(storage.release)
	_ = rec.Close()

	expected := fmt.Sprintf(`
# HELP chatrelay_ledger_dropped_total Ledger records dropped because the write queue was full
# TYPE chatrelay_ledger_dropped_total counter
chatrelay_ledger_dropped_total %d
`, 5-accepted)
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "chatrelay_ledger_dropped_total"); err != nil {
		t.Error(err)
	}

	if rec.Enqueue(context.Background(), testRecord("late", "ollama", "ok", time.Now())) {
		t.Error("a closed recorder must not accept records")
	}
}

func TestPruner(t *testing.T) {
	storage := NewMemoryStorage()
	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	ctx := context.Background()

	_ = storage.Store(ctx, testRecord("old", "ollama", "ok", now.AddDate(0, 0, -31)))
	_ = storage.Store(ctx, testRecord("new", "ollama", "ok", now.AddDate(0, 0, -1)))

	p := NewPruner(storage, 30)
	p.now = func() time.Time { return now }

	deleted, err := p.Prune(ctx)
	if err != nil || deleted != 1 {
		t.Errorf("Prune() = %d, %v; want 1", deleted, err)
	}

	keepForever := NewPruner(storage, 0)
	if deleted, _ := keepForever.Prune(ctx); deleted != 0 {
		t.Errorf("retention 0 must keep records, deleted %d", deleted)
	}

	if err := p.Schedule(scheduler.New("test"), "0 3 * * *"); err != nil {
		t.Errorf("Schedule() failed: %v", err)
	}
}

func TestExport(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	records := []*Record{testRecord("r1", "ollama", "ok", at)}

	var buf bytes.Buffer
	if err := Export(&buf, records, FormatCSV); err != nil {
		t.Fatalf("Export(csv) failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "id,request_id,time") {
		t.Errorf("unexpected csv %q", buf.String())
	}
	if !strings.Contains(lines[1], "r1,req-r1,2026-10-19T12:00:00Z,stream,ollama") {
		t.Errorf("unexpected csv row %q", lines[1])
	}

	buf.Reset()
	if err := Export(&buf, nil, FormatJSON); err != nil {
		t.Fatalf("Export(json) failed: %v", err)
	}
	var decoded []Record
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || len(decoded) != 0 {
		t.Errorf("expected an empty JSON array, got %q", buf.String())
	}

	if err := Export(&buf, records, "xml"); err == nil {
		t.Error("expected error for an unsupported format")
	}
}

func TestLedger_New(t *testing.T) {
	cfg := config.Default().Ledger
	l := New(NewMemoryStorage(), cfg, nil)
	if err := l.Schedule(scheduler.New("test")); err != nil {
		t.Errorf("Schedule() failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}
