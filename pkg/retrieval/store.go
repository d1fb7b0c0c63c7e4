package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"oqs-hq/chatrelay/pkg/config"
)

// ErrNamespaceNotFound is returned when a namespace has no directory.
var ErrNamespaceNotFound = errors.New("namespace not found")

const (
	// DefaultCacheSize bounds the number of namespace indexes kept in memory.
	DefaultCacheSize = 64

	// maxChunkChars is the size paragraphs are merged up to when chunking.
	maxChunkChars = 800

	// maxFileBytes skips documents too large to index.
	maxFileBytes = 8 << 20
)

// Store serves BM25 searches over a directory of namespaces. Each
// immediate subdirectory of the root is a namespace holding .txt and .md
// documents.
type Store struct {
	root     string
	topK     int
	maxChars int

	cache  *lru.Cache[string, *Index]
	flight singleflight.Group
	logger *slog.Logger

	// gen is bumped by Invalidate so a build racing a change is not cached.
	gen atomic.Uint64
}

// New creates a store rooted at dir returning up to topK passages, each cut
// to maxChars characters (0 disables the cut).
func New(dir string, topK, maxChars int) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("retrieval directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("retrieval directory %q is not a directory", dir)
	}
	if topK <= 0 {
		topK = config.DefaultRetrievalTopK
	}

	cache, err := lru.New[string, *Index](DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		root:     dir,
		topK:     topK,
		maxChars: maxChars,
		cache:    cache,
		logger:   slog.Default().With("component", "retrieval"),
	}, nil
}

// FromConfig builds a store from the retrieval section.
func FromConfig(cfg config.RetrievalConfig) (*Store, error) {
	return New(cfg.Dir, cfg.TopK, cfg.MaxPassageChars)
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.root
}

// Search returns the best passages of namespace for query, best first.
func (s *Store) Search(ctx context.Context, namespace, query string) ([]string, error) {
	ix, err := s.index(ctx, namespace)
	if err != nil {
		return nil, err
	}

	hits := ix.Search(query, s.topK)
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, truncate(h.Text, s.maxChars))
	}
	return out, nil
}

// Invalidate drops the cached index of namespace, or of every namespace
// when namespace is empty.
func (s *Store) Invalidate(namespace string) {
	s.gen.Add(1)
	if namespace == "" {
		s.cache.Purge()
		return
	}
	s.cache.Remove(namespace)
}

func (s *Store) index(ctx context.Context, namespace string) (*Index, error) {
	if !config.ValidNamespace(namespace) {
		return nil, fmt.Errorf("invalid namespace %q", namespace)
	}
	if ix, ok := s.cache.Get(namespace); ok {
		return ix, nil
	}

	v, err, _ := s.flight.Do(namespace, func() (any, error) {
		if ix, ok := s.cache.Get(namespace); ok {
			return ix, nil
		}
		gen := s.gen.Load()
		ix, err := s.build(ctx, namespace)
		if err != nil {
			return nil, err
		}
		if s.gen.Load() == gen {
			s.cache.Add(namespace, ix)
		}
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

func (s *Store) build(ctx context.Context, namespace string) (*Index, error) {
	dir := filepath.Join(s.root, namespace)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()) {
		return nil, fmt.Errorf("%w: %s", ErrNamespaceNotFound, namespace)
	}
	if err != nil {
		return nil, err
	}

	var passages []Passage
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isDocument(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileBytes {
			s.logger.Warn("document skipped", "path", path, "size", info.Size())
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		for _, text := range Chunk(string(data), maxChunkChars) {
			passages = append(passages, Passage{Source: filepath.ToSlash(rel), Text: text})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index namespace %s: %w", namespace, err)
	}

	s.logger.Info("namespace indexed", "namespace", namespace, "passages", len(passages))
	return NewIndex(passages), nil
}

func isDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// Chunk splits text on blank lines and merges consecutive paragraphs up to
// size characters. A paragraph longer than size stays whole.
func Chunk(text string, size int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
