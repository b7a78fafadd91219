// Package snapshot walks the local inclusion patterns into an in-memory
// fsobject tree. It is the only part of a backup run that reads local disk.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syftvault/internal/fsobject"
)

type Builder struct {
	exclude []string
	ignore  *IgnoreList
	hasher  fsobject.Hasher
}

type Option func(*Builder)

// WithExclude adds glob patterns; a path is excluded when a pattern matches
// its full path or its base name.
func WithExclude(patterns ...string) Option {
	return func(b *Builder) {
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p != "" {
				b.exclude = append(b.exclude, fsobject.NormPath(p))
			}
		}
	}
}

func WithIgnoreList(l *IgnoreList) Option {
	return func(b *Builder) {
		b.ignore = l
	}
}

func WithHasher(h fsobject.Hasher) Option {
	return func(b *Builder) {
		b.hasher = h
	}
}

func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{hasher: fsobject.StreamHasher}
	for _, opt := range opts {
		opt(b)
	}
	for _, p := range b.exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	return b, nil
}

// Excluded reports whether p (slash-separated) matches an exclude pattern
// or the ignore list.
func (b *Builder) Excluded(p string) bool {
	for _, pattern := range b.exclude {
		if pattern == p {
			return true
		}
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, path.Base(p)); ok {
			return true
		}
	}
	return b.ignore.ShouldIgnore(p)
}

// Build expands each pattern and returns the top-level objects keyed by
// path. Patterns that match nothing are skipped. Overlapping patterns are
// deduplicated by resolved path, and a match that lies inside another
// matched directory is left to that directory.
func (b *Builder) Build(ctx context.Context, patterns []string) (fsobject.Tree, error) {
	matched := mapset.NewThreadUnsafeSet[string]()
	for _, pattern := range patterns {
		matches, err := expand(pattern)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			slog.Debug("snapshot pattern matched nothing", "pattern", pattern)
			continue
		}
		for _, m := range matches {
			matched.Add(fsobject.NormPath(m))
		}
	}

	// ancestors sort before their descendants
	paths := matched.ToSlice()
	sort.Strings(paths)

	tree := fsobject.Tree{}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.Excluded(p) {
			slog.Debug("snapshot excluded", "path", p)
			continue
		}
		if dir := coveringDir(tree, p); dir != "" {
			slog.Debug("snapshot already covered", "path", p, "by", dir)
			continue
		}

		slog.Debug("snapshot", "path", p)
		obj, err := fsobject.FromPath(p,
			fsobject.WithContext(ctx),
			fsobject.WithHasher(b.hasher),
			fsobject.WithSkip(b.Excluded),
		)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", p, err)
		}
		tree[p] = obj
	}

	return tree, nil
}

// coveringDir returns the top-level directory of tree whose walk already
// reached p, if any.
func coveringDir(tree fsobject.Tree, p string) string {
	for cur, parent := p, path.Dir(p); parent != cur; cur, parent = parent, path.Dir(parent) {
		if d, ok := tree[parent].(*fsobject.Directory); ok {
			if hasDescendant(d, p) {
				return parent
			}
			return ""
		}
	}
	return ""
}

func hasDescendant(d *fsobject.Directory, p string) bool {
	for _, child := range d.Children() {
		if child.Path() == p {
			return true
		}
		if sub, ok := child.(*fsobject.Directory); ok && strings.HasPrefix(p, sub.Path()+"/") {
			return hasDescendant(sub, p)
		}
	}
	return false
}

func expand(pattern string) ([]string, error) {
	pattern = fsobject.NormPath(strings.TrimSpace(pattern))
	if pattern == "" {
		return nil, nil
	}

	matches, err := doublestar.FilepathGlob(filepath.FromSlash(pattern), doublestar.WithNoFollow())
	if err != nil {
		return nil, fmt.Errorf("expand pattern %q: %w", pattern, err)
	}
	for i, m := range matches {
		matches[i] = filepath.ToSlash(m)
	}
	return matches, nil
}
