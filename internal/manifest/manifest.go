// Package manifest loads and persists the remote index: the tree the remote
// is believed to hold, stored through the content pipeline at a fixed key.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/openmined/syftvault/internal/pipeline"
	"github.com/openmined/syftvault/internal/storage"
)

const (
	// Key is where the index lives under the root URL.
	Key = ".syftvault_index"
	// ObjectPrefix precedes the name hash in every file object key.
	ObjectPrefix = "syftvault_"
)

// ErrSaveAborted is returned when the retry policy declines another attempt
// at writing the index.
var ErrSaveAborted = errors.New("index save aborted")

// IndexError means the index exists but could not be decoded or parsed. It
// is never treated as an empty index.
type IndexError struct {
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("remote index is unreadable: %v", e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

// ObjectKey is the remote key of a file's content.
func ObjectKey(o fsobject.Object) string {
	return ObjectPrefix + o.NameHash()
}

// Index is a loaded remote index.
type Index struct {
	Tree fsobject.Tree
	// Found is false when the remote had no index yet.
	Found bool
}

// Load fetches and decodes the index. A missing index yields an empty tree.
func Load(ctx context.Context, d storage.Driver, p *pipeline.Pipeline, tmp *pipeline.TempDir) (fsobject.Tree, error) {
	idx, err := LoadIndex(ctx, d, p, tmp)
	if err != nil {
		return nil, err
	}
	return idx.Tree, nil
}

func LoadIndex(ctx context.Context, d storage.Driver, p *pipeline.Pipeline, tmp *pipeline.TempDir) (*Index, error) {
	enc := tmp.File("index-remote")
	defer tmp.Release(enc)

	if err := d.Get(ctx, Key, enc); storage.IsNotFound(err) {
		slog.Debug("no remote index, starting empty", "key", Key)
		return &Index{Tree: fsobject.Tree{}}, nil
	} else if err != nil {
		return nil, err
	}

	plain := tmp.File("index-plain")
	defer tmp.Release(plain)

	if err := p.Decode(ctx, enc, plain); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &IndexError{Err: err}
	}

	data, err := os.ReadFile(plain)
	if err != nil {
		return nil, fmt.Errorf("read decoded index: %w", err)
	}

	tree, err := Unmarshal(data)
	if err != nil {
		return nil, &IndexError{Err: err}
	}

	slog.Debug("loaded remote index", "key", Key, "size", humanize.Bytes(uint64(len(data))), "entries", len(tree))
	return &Index{Tree: tree, Found: true}, nil
}

// Save serializes tree, encodes it and puts it at Key. Put failures are
// offered to policy; a nil policy never retries.
func Save(ctx context.Context, d storage.Driver, p *pipeline.Pipeline, tmp *pipeline.TempDir, tree fsobject.Tree, policy RetryPolicy) error {
	data, err := Marshal(tree)
	if err != nil {
		return fmt.Errorf("serialize index: %w", err)
	}

	plain := tmp.File("index-plain")
	defer tmp.Release(plain)
	if err := os.WriteFile(plain, data, 0o600); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	enc := tmp.File("index-local")
	defer tmp.Release(enc)
	if err := p.Encode(ctx, plain, enc); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := d.Put(ctx, Key, enc)
		if err == nil {
			slog.Debug("saved remote index", "key", Key, "size", humanize.Bytes(uint64(len(data))), "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		slog.Warn("index save failed", "key", Key, "attempt", attempt, "error", err)
		if policy == nil || !policy.ShouldRetry(ctx, attempt, err) {
			return fmt.Errorf("%w after %d attempt(s): %w", ErrSaveAborted, attempt, err)
		}
	}
}
