package fsobject

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// Directory owns its children. There are no parent pointers, and symlinked
// children are recorded as Symlinks rather than followed, so the tree can
// never contain a cycle.
type Directory struct {
	base
	children Tree
}

// NewDirectory enumerates p and recursively builds its children.
func NewDirectory(p string, opts ...Option) (*Directory, error) {
	return newDirectory(p, buildOptions(opts))
}

func newDirectory(p string, o *options) (*Directory, error) {
	b := newBase(p)
	osPath := filepath.FromSlash(b.path)

	info, err := os.Lstat(osPath)
	if err != nil {
		return nil, &InvalidPathError{Path: b.path, Want: KindDirectory, Err: err}
	}
	if !info.IsDir() {
		return nil, &InvalidPathError{Path: b.path, Want: KindDirectory}
	}

	entries, err := os.ReadDir(osPath)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", b.path, err)
	}

	children := make(Tree, len(entries))
	for _, entry := range entries {
		if err := o.ctx.Err(); err != nil {
			return nil, err
		}

		childPath := path.Join(b.path, entry.Name())
		if o.skip(childPath) {
			continue
		}

		child, err := fromPath(childPath, o)
		if err != nil {
			return nil, err
		}
		children[childPath] = child
	}

	return &Directory{base: b, children: children}, nil
}

// RestoreDirectory rebuilds a Directory from a manifest record.
func RestoreDirectory(p string, children Tree) *Directory {
	if children == nil {
		children = Tree{}
	}
	return &Directory{base: newBase(p), children: children}
}

func (d *Directory) Kind() Kind { return KindDirectory }

// Children returns the directory's owned child tree. Callers must not
// modify it.
func (d *Directory) Children() Tree { return d.children }

// FromPath classifies p with Lstat and constructs the matching variant.
func FromPath(p string, opts ...Option) (Object, error) {
	return fromPath(p, buildOptions(opts))
}

func fromPath(p string, o *options) (Object, error) {
	p = NormPath(p)
	info, err := os.Lstat(filepath.FromSlash(p))
	if err != nil {
		return nil, &InvalidPathError{Path: p, Want: KindFile, Err: err}
	}

	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return NewSymlink(p)
	case mode.IsDir():
		return newDirectory(p, o)
	case mode.IsRegular():
		return NewFile(p, WithHasher(o.hasher))
	default:
		return nil, &InvalidPathError{Path: p, Want: KindFile, Err: fmt.Errorf("unsupported file mode %s", mode)}
	}
}
