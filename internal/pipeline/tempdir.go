package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// TempDir is a private scratch directory for encoded and decoded
// artifacts. Everything in it is removed by Close, which callers defer so
// that decrypted plaintext never outlives the run.
type TempDir struct {
	path   string
	mu     sync.Mutex
	closed bool
}

// NewTempDir creates the scratch directory under base, or under the system
// temp location when base is empty.
func NewTempDir(base string) (*TempDir, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0o700); err != nil {
			return nil, fmt.Errorf("create temp base %s: %w", base, err)
		}
	}
	dir, err := os.MkdirTemp(base, "syftvault-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempDir{path: dir}, nil
}

func (t *TempDir) Path() string { return t.path }

// File returns a fresh, not yet existing path inside the directory.
func (t *TempDir) File(prefix string) string {
	return filepath.Join(t.path, prefix+"."+uuid.NewString())
}

// Release removes a single artifact early. Missing files are ignored.
func (t *TempDir) Release(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove temp artifact", "path", path, "error", err)
	}
}

func (t *TempDir) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return os.RemoveAll(t.path)
}
