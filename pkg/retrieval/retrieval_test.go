package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIndex_Search(t *testing.T) {
	ix := NewIndex([]Passage{
		{Source: "a", Text: "Goroutines are cheap. Channels connect goroutines."},
		{Source: "b", Text: "The weather in Lisbon is mild."},
		{Source: "c", Text: "Channels can be buffered; channels block when full."},
	})

	hits := ix.Search("How do CHANNELS work?", 5)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].Source != "c" {
		t.Errorf("expected passage c first, got %q", hits[0].Source)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not sorted by score: %v < %v", hits[0].Score, hits[1].Score)
	}

	if got := ix.Search("channels", 1); len(got) != 1 {
		t.Errorf("topK not applied, got %d hits", len(got))
	}
	if got := ix.Search("?!", 3); got != nil {
		t.Errorf("expected no hits for a query without terms, got %+v", got)
	}
	if got := NewIndex(nil).Search("channels", 3); got != nil {
		t.Errorf("expected no hits on an empty index, got %+v", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Olá, Mundo! go1.25 über-fast")
	want := []string{"olá", "mundo", "go1", "25", "über", "fast"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestChunk(t *testing.T) {
	text := "first para\r\n\r\nsecond para\n\n\n\n" + strings.Repeat("x", 30) + "\n\nlast"
	got := Chunk(text, 25)

	want := []string{
		"first para\n\nsecond para",
		strings.Repeat("x", 30),
		"last",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if got := Chunk("  \n\n  ", 10); len(got) != 0 {
		t.Errorf("expected no chunks for blank text, got %q", got)
	}
}

func TestStore_Search(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "go/concurrency.md", "Channels let goroutines communicate.\n\nSelect waits on several channels.")
	writeDoc(t, dir, "go/notes.TXT", "Slices share their backing array.")
	writeDoc(t, dir, "go/skip.pdf", "channels channels channels")
	writeDoc(t, dir, "go/.hidden/secret.md", "channels are hidden here")
	writeDoc(t, dir, "cooking/bread.md", "Knead the dough. Channels of flavour.")

	s, err := New(dir, 3, 0)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	got, err := s.Search(context.Background(), "go", "how do channels work")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 passage, got %d: %q", len(got), got)
	}
	if !strings.Contains(got[0], "Select waits") {
		t.Errorf("unexpected passage %q", got[0])
	}

	got, err = s.Search(context.Background(), "go", "backing array")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(got) != 1 || !strings.Contains(got[0], "Slices") {
		t.Errorf("expected the .TXT document, got %q", got)
	}

	got, err = s.Search(context.Background(), "go", "dough")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("namespaces must not leak into each other, got %q", got)
	}
}

func TestStore_Truncates(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "ns/doc.md", "ação "+strings.Repeat("a", 100))

	s, err := New(dir, 1, 6)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	got, err := s.Search(context.Background(), "ns", "ação")
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(got) != 1 || got[0] != "ação a" {
		t.Errorf("expected passage cut to 6 characters, got %q", got)
	}
}

func TestStore_Namespaces(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "ns/doc.md", "hello")
	writeDoc(t, dir, "file.md", "hello")
	s, err := New(dir, 3, 0)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	tests := []struct {
		name      string
		namespace string
		notFound  bool
	}{
		{"missing", "absent", true},
		{"file is not a namespace", "file.md", true},
		{"parent traversal", "..", false},
		{"nested path", "ns/../ns", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(context.Background(), tt.namespace, "hello")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrNamespaceNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrNamespaceNotFound) = %v, want %v (err %v)", got, tt.notFound, err)
			}
		})
	}
}

func TestNew_RequiresDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing"), 3, 0); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestStore_Invalidate(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "ns/a.md", "alpha")
	s, err := New(dir, 3, 0)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()

	if got, _ := s.Search(ctx, "ns", "beta"); len(got) != 0 {
		t.Fatalf("unexpected hits %q", got)
	}
	writeDoc(t, dir, "ns/b.md", "beta")
	if got, _ := s.Search(ctx, "ns", "beta"); len(got) != 0 {
		t.Errorf("index must stay cached until invalidated, got %q", got)
	}

	s.Invalidate("ns")
	if got, _ := s.Search(ctx, "ns", "beta"); len(got) != 1 {
		t.Errorf("expected the new document after Invalidate, got %q", got)
	}

	writeDoc(t, dir, "ns/c.md", "gamma")
	s.Invalidate("")
	if got, _ := s.Search(ctx, "ns", "gamma"); len(got) != 1 {
		t.Errorf("expected the new document after a full purge, got %q", got)
	}
}

func TestStore_Watch(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "ns/a.md", "alpha")
	s, err := New(dir, 3, 0)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	if got, _ := s.Search(ctx, "ns", "zebra"); len(got) != 0 {
		t.Fatalf("unexpected hits %q", got)
	}

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	writeDoc(t, dir, "ns/b.md", "a zebra appears")
	writeDoc(t, dir, "fresh/c.md", "new namespace")

	deadline := time.After(3 * time.Second)
	for {
		got, _ := s.Search(ctx, "ns", "zebra")
		if len(got) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("index was not invalidated after a file change")
		case <-time.After(20 * time.Millisecond):
		}
	}

	got, err := s.Search(ctx, "fresh", "namespace")
	if err != nil || len(got) != 1 {
		t.Errorf("expected the new namespace to be searchable, got %q (err %v)", got, err)
	}
}

func TestNamespaceOf(t *testing.T) {
	s := &Store{root: filepath.FromSlash("/data/docs")}
	tests := map[string]string{
		"/data/docs":             "",
		"/data/docs/ns":          "ns",
		"/data/docs/ns/sub/a.md": "ns",
		"/data/other/ns/a.md":    "",
	}
	for path, want := range tests {
		if got := s.namespaceOf(filepath.FromSlash(path)); got != want {
			t.Errorf("namespaceOf(%q) = %q, want %q", path, got, want)
		}
	}
}
