// Package fsobject models the things a backup run compares: regular files,
// directories and symbolic links, each addressed by a hash of its local path.
package fsobject

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
)

// hashChunkSize bounds the amount of file data held in memory while hashing.
const hashChunkSize = 1 << 20

type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "file":
		return KindFile, nil
	case "directory":
		return KindDirectory, nil
	case "symlink":
		return KindSymlink, nil
	}
	return 0, fmt.Errorf("unknown object kind %q", s)
}

// Object is implemented by *File, *Directory and *Symlink only.
type Object interface {
	// Path is the slash-normalized local path, without a trailing slash.
	Path() string
	// NameHash is the hex SHA-256 of Path, used to build remote keys.
	NameHash() string
	Kind() Kind

	isObject()
}

// Tree maps object paths to objects. A Directory's children and the top
// level of a snapshot are both Trees.
type Tree map[string]Object

type base struct {
	path     string
	nameHash string
}

func newBase(p string) base {
	p = NormPath(p)
	return base{path: p, nameHash: HashName(p)}
}

func (b base) Path() string     { return b.path }
func (b base) NameHash() string { return b.nameHash }
func (base) isObject()          {}

// NormPath converts separators to slashes and strips trailing slashes.
func NormPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// HashName returns the hex SHA-256 of the path text.
func HashName(p string) string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:])
}

// HashContent streams r through SHA-256 and returns the hex digest along with
// the number of bytes read.
func HashContent(r io.Reader) (string, int64, error) {
	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	n, err := io.CopyBuffer(h, r, buf)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Base returns the last element of the object's path.
func Base(o Object) string {
	return path.Base(o.Path())
}
