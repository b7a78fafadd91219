package fsobject

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
)

// Hasher computes the content hash of a regular file. The snapshot builder
// swaps in a cached implementation; the default reads the whole file.
type Hasher interface {
	HashFile(path string, info fs.FileInfo) (string, error)
}

// HasherFunc adapts a plain function to Hasher.
type HasherFunc func(path string, info fs.FileInfo) (string, error)

func (f HasherFunc) HashFile(path string, info fs.FileInfo) (string, error) {
	return f(path, info)
}

// StreamHasher hashes the file contents on every call.
var StreamHasher Hasher = HasherFunc(func(p string, _ fs.FileInfo) (string, error) {
	f, err := os.Open(filepath.FromSlash(p))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sum, _, err := HashContent(f)
	return sum, err
})

type options struct {
	ctx    context.Context
	hasher Hasher
	skip   func(path string) bool
}

type Option func(*options)

// WithContext makes directory enumeration stop early once ctx is done.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// WithHasher overrides the file content hasher.
func WithHasher(h Hasher) Option {
	return func(o *options) {
		if h != nil {
			o.hasher = h
		}
	}
}

// WithSkip drops directory children for which skip returns true. The
// function receives the slash-normalized child path.
func WithSkip(skip func(path string) bool) Option {
	return func(o *options) {
		o.skip = skip
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		ctx:    context.Background(),
		hasher: StreamHasher,
		skip:   func(string) bool { return false },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
