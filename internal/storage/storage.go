// Package storage defines the transport contract every backend satisfies
// and resolves a backend from the scheme of a root URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is wrapped by a StorageError when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Driver moves whole objects between local files and keys under the
// driver's root URL. Keys are opaque strings, never local paths.
//
// Put is an upsert: drivers whose transport refuses to overwrite must delete
// first. Get and Delete on a missing key return an error matching
// ErrNotFound. Drivers are used by one goroutine at a time.
type Driver interface {
	Get(ctx context.Context, key, dstPath string) error
	Put(ctx context.Context, key, srcPath string) error
	Delete(ctx context.Context, key string) error
	// URL is the root URL with credentials redacted.
	URL() string
	Close() error
}

// StorageError carries the failing operation and key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap builds a StorageError, passing nil through.
func Wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) && se.Key == key {
		return err
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

// NotFound builds the StorageError drivers return for a missing key.
func NotFound(op, key string) error {
	return &StorageError{Op: op, Key: key, Err: ErrNotFound}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// DriverNotFoundError is returned by Open for an unregistered scheme.
type DriverNotFoundError struct {
	Scheme string
}

func (e *DriverNotFoundError) Error() string {
	return fmt.Sprintf("no storage driver for scheme %q", e.Scheme)
}

// Options are passed to every driver factory.
type Options struct {
	// SSHKeyPath is an optional private key for sftp.
	SSHKeyPath string
	// KnownHostsPath overrides ~/.ssh/known_hosts for sftp.
	KnownHostsPath string
}

// Factory opens a driver for a parsed root URL.
type Factory func(ctx context.Context, root *url.URL, opts Options) (Driver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a driver available for scheme. It panics on duplicates,
// as registration happens from init.
func Register(scheme string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	scheme = strings.ToLower(scheme)
	if _, dup := registry[scheme]; dup {
		panic("storage: driver registered twice for scheme " + scheme)
	}
	registry[scheme] = f
}

// Schemes lists the registered schemes.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	schemes := make([]string, 0, len(registry))
	for s := range registry {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

var drivePrefix = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// ParseRoot parses a root URL. Plain paths, Windows drive paths and UNC
// paths all resolve to the file scheme.
func ParseRoot(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty root URL")
	}

	if drivePrefix.MatchString(raw) || strings.HasPrefix(raw, `\\`) || !strings.Contains(raw, "://") {
		return &url.URL{Scheme: "file", Path: trimPath(strings.ReplaceAll(raw, `\`, "/"))}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid root URL: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	// file://c:/foo puts the drive letter in the host
	if h := u.Hostname(); u.Scheme == "file" && len(h) == 1 && u.Port() == "" {
		u.Path = h + ":" + u.Path
		u.Host = ""
	}

	switch {
	case u.Scheme == "file" && u.Path == "":
		return nil, fmt.Errorf("root URL %q has no path", raw)
	case u.Scheme != "file" && u.Host == "":
		return nil, fmt.Errorf("root URL %q has no host", raw)
	}
	u.Path = trimPath(u.Path)
	u.RawPath = ""
	return u, nil
}

// trimPath drops trailing slashes but keeps a lone root.
func trimPath(p string) string {
	if p == "" {
		return ""
	}
	if p = strings.TrimRight(p, "/"); p == "" {
		return "/"
	}
	return p
}

// Open resolves the driver for rawURL's scheme and connects it.
func Open(ctx context.Context, rawURL string, opts Options) (Driver, error) {
	u, err := ParseRoot(rawURL)
	if err != nil {
		return nil, err
	}

	registryMu.RLock()
	factory, ok := registry[u.Scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, &DriverNotFoundError{Scheme: u.Scheme}
	}

	return factory(ctx, u, opts)
}

// JoinKey joins a key onto a root path with exactly one slash.
func JoinKey(root, key string) string {
	root = strings.TrimRight(root, "/")
	key = strings.TrimLeft(key, "/")
	if root == "" {
		return key
	}
	return root + "/" + key
}
