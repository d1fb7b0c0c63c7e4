package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileProvider reads secrets from individual files in a directory. The file
// name is the secret name and surrounding whitespace is trimmed from the
// content. Files must be regular files with mode 0600 or 0400.
type FileProvider struct {
	dir string
}

// NewFileProvider creates a provider rooted at dir, which must exist.
func NewFileProvider(dir string) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets directory %s is not a directory", dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	return &FileProvider{dir: abs}, nil
}

// Kind returns "file".
func (p *FileProvider) Kind() string { return "file" }

// Dir returns the absolute directory the provider reads from.
func (p *FileProvider) Dir() string { return p.dir }

// Lookup reads the file named name.
func (p *FileProvider) Lookup(_ context.Context, name string) (string, error) {
	path, err := p.path(name)
	if err != nil {
		return "", err
	}

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm != 0o600 && perm != 0o400 {
		return "", fmt.Errorf("secret %s has insecure permissions %o (want 0600 or 0400)", name, perm)
	}

	// #nosec G304 - path is confined to p.dir
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// path maps name into the directory and rejects traversal.
func (p *FileProvider) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	return filepath.Join(p.dir, name), nil
}

// Watch reports writes, creations, renames and removals in the directory
// until ctx is done.
func (p *FileProvider) Watch(ctx context.Context, changed func(name string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create secrets watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", p.dir, err)
	}
	slog.Info("watching secrets directory", "path", p.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(event.Name)
			// Kubernetes swaps a ..data symlink; every secret may have moved.
			if strings.HasPrefix(name, "..") {
				name = ""
			}
			slog.Debug("secret file changed", "op", event.Op.String())
			changed(name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("secrets watcher error", "error", err)
		}
	}
}
