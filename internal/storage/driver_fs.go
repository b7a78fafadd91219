package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

func init() {
	Register("file", openFileDriver)
	Register("mem", openMemDriver)
}

// FsDriver stores objects as plain files under a root directory of an
// afero filesystem. The file scheme uses the OS filesystem, the mem scheme
// a process-wide in-memory one.
type FsDriver struct {
	fs   afero.Fs
	root string
	url  string
}

// NewFsDriver creates the root directory if needed.
func NewFsDriver(fsys afero.Fs, root, displayURL string) (*FsDriver, error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, Wrap("open", root, err)
	}
	return &FsDriver{fs: fsys, root: root, url: displayURL}, nil
}

func openFileDriver(_ context.Context, u *url.URL, _ Options) (Driver, error) {
	root := u.Path
	if u.Host != "" && u.Host != "localhost" {
		// UNC share
		root = "//" + u.Host + u.Path
	}
	if root == "" {
		return nil, errors.New("file root URL has no path")
	}
	return NewFsDriver(afero.NewOsFs(), filepath.FromSlash(root), root)
}

var (
	memMu  sync.Mutex
	memFss = map[string]afero.Fs{}
)

// MemFs returns the in-memory filesystem backing mem://name, creating it on
// first use. Every Open of the same name sees the same objects.
func MemFs(name string) afero.Fs {
	memMu.Lock()
	defer memMu.Unlock()
	fsys, ok := memFss[name]
	if !ok {
		fsys = afero.NewMemMapFs()
		memFss[name] = fsys
	}
	return fsys
}

func openMemDriver(_ context.Context, u *url.URL, _ Options) (Driver, error) {
	root := u.Path
	if root == "" {
		root = "/"
	}
	return NewFsDriver(MemFs(u.Host), root, u.String())
}

func (d *FsDriver) keyPath(key string) string {
	if _, ok := d.fs.(*afero.OsFs); ok {
		return filepath.Join(d.root, filepath.FromSlash(key))
	}
	return path.Join(d.root, key)
}

func (d *FsDriver) Get(ctx context.Context, key, dstPath string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("get", key, err)
	}

	src, err := d.fs.Open(d.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return NotFound("get", key)
	} else if err != nil {
		return Wrap("get", key, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Wrap("get", key, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return Wrap("get", key, err)
	}
	return Wrap("get", key, dst.Close())
}

// Put writes to a sibling temp file and renames it over the key.
func (d *FsDriver) Put(ctx context.Context, key, srcPath string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("put", key, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return Wrap("put", key, err)
	}
	defer src.Close()

	target := d.keyPath(key)
	tmp := target + ".tmp." + uuid.NewString()[:8]
	dst, err := d.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Wrap("put", key, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		d.fs.Remove(tmp)
		return Wrap("put", key, err)
	}
	if err := dst.Close(); err != nil {
		d.fs.Remove(tmp)
		return Wrap("put", key, err)
	}
	if err := d.fs.Rename(tmp, target); err != nil {
		d.fs.Remove(tmp)
		return Wrap("put", key, fmt.Errorf("rename into place: %w", err))
	}
	return nil
}

func (d *FsDriver) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("delete", key, err)
	}
	err := d.fs.Remove(d.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return NotFound("delete", key)
	}
	return Wrap("delete", key, err)
}

func (d *FsDriver) URL() string {
	return d.url
}

func (d *FsDriver) Close() error {
	return nil
}
