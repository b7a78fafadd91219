package fsobject

import (
	"os"
	"path/filepath"
)

// Symlink records a link's raw target. Links are never uploaded as content;
// they live only in the manifest.
type Symlink struct {
	base
	target string
}

func NewSymlink(p string) (*Symlink, error) {
	b := newBase(p)
	osPath := filepath.FromSlash(b.path)

	info, err := os.Lstat(osPath)
	if err != nil {
		return nil, &InvalidPathError{Path: b.path, Want: KindSymlink, Err: err}
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil, &InvalidPathError{Path: b.path, Want: KindSymlink}
	}

	target, err := os.Readlink(osPath)
	if err != nil {
		return nil, &InvalidPathError{Path: b.path, Want: KindSymlink, Err: err}
	}

	return &Symlink{base: b, target: target}, nil
}

func RestoreSymlink(p, target string) *Symlink {
	return &Symlink{base: newBase(p), target: target}
}

func (s *Symlink) Kind() Kind     { return KindSymlink }
func (s *Symlink) Target() string { return s.target }
