package fsobject

import (
	"os"
	"path/filepath"
)

// File is a regular file identified by the SHA-256 of its contents.
type File struct {
	base
	contentHash string
	size        int64
}

// NewFile hashes the regular file at p.
func NewFile(p string, opts ...Option) (*File, error) {
	o := buildOptions(opts)
	b := newBase(p)

	info, err := os.Lstat(filepath.FromSlash(b.path))
	if err != nil {
		return nil, &InvalidPathError{Path: b.path, Want: KindFile, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &InvalidPathError{Path: b.path, Want: KindFile}
	}

	sum, err := o.hasher.HashFile(b.path, info)
	if err != nil {
		return nil, &InvalidPathError{Path: b.path, Want: KindFile, Err: err}
	}

	return &File{base: b, contentHash: sum, size: info.Size()}, nil
}

// RestoreFile rebuilds a File from a manifest record without touching disk.
func RestoreFile(p, contentHash string, size int64) *File {
	return &File{base: newBase(p), contentHash: contentHash, size: size}
}

func (f *File) Kind() Kind          { return KindFile }
func (f *File) ContentHash() string { return f.contentHash }
func (f *File) Size() int64         { return f.size }
