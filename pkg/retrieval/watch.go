package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates a namespace's index whenever a file below it changes.
// New subdirectories are watched as they appear. It blocks until ctx is
// done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := s.watchTree(watcher, s.root); err != nil {
		return err
	}
	s.logger.Info("retrieval watcher started", "dir", s.root)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retrieval watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if err := s.watchTree(watcher, event.Name); err != nil {
					s.logger.Warn("retrieval watch failed", "path", event.Name, "error", err)
				}
			}

			ns := s.namespaceOf(event.Name)
			s.logger.Debug("retrieval file event", "path", event.Name, "op", event.Op.String(), "namespace", ns)
			s.Invalidate(ns)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			s.logger.Error("retrieval watcher error", "error", err)
		}
	}
}

// watchTree adds path and every directory below it. Files are ignored.
func (s *Store) watchTree(w *fsnotify.Watcher, path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != s.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(p); err != nil {
			return fmt.Errorf("failed to watch %q: %w", p, err)
		}
		return nil
	})
}

// namespaceOf maps a path below the root to its namespace. Events on the
// root itself map to "", which invalidates everything.
func (s *Store) namespaceOf(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first
}
