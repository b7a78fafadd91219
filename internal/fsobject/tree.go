package fsobject

import (
	"fmt"
	"path"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Equal reports whether a and b describe the same content at the same path.
// Directories are equal when their children are pairwise equal.
func Equal(a, b Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Path() != b.Path() || a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case *File:
		return x.contentHash == b.(*File).contentHash
	case *Symlink:
		return x.target == b.(*Symlink).target
	case *Directory:
		y := b.(*Directory)
		if len(x.children) != len(y.children) {
			return false
		}
		for p, child := range x.children {
			if !Equal(child, y.children[p]) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("fsobject: unknown object type %T", a))
	}
}

// Keys returns the tree's paths in lexical order.
func (t Tree) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WalkFunc is called for every object reached by Walk. Returning an error
// stops the walk.
type WalkFunc func(o Object) error

// Walk visits every object in t depth-first, parents before children, in
// lexical path order. It uses an explicit stack so deeply nested trees do
// not grow the goroutine stack.
func Walk(t Tree, fn WalkFunc) error {
	stack := make([]Object, 0, len(t))
	pushSorted := func(tree Tree) {
		keys := tree.Keys()
		for i := len(keys) - 1; i >= 0; i-- {
			stack = append(stack, tree[keys[i]])
		}
	}
	pushSorted(t)

	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(o); err != nil {
			return err
		}
		if d, ok := o.(*Directory); ok {
			pushSorted(d.children)
		}
	}
	return nil
}

// Leaves flattens o into the files and symlinks it contains. A file or
// symlink is its own only leaf.
func Leaves(o Object) []Object {
	var leaves []Object
	_ = Walk(Tree{o.Path(): o}, func(o Object) error {
		if o.Kind() != KindDirectory {
			leaves = append(leaves, o)
		}
		return nil
	})
	return leaves
}

// Find returns the objects in t whose full path or base name matches the
// glob pattern. A matching directory is returned whole and not searched
// further; non-matching directories are searched recursively.
func Find(t Tree, pattern string) ([]Object, error) {
	pattern = NormPath(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	var found []Object
	for _, k := range t.Keys() {
		o := t[k]
		if matches(pattern, o.Path()) {
			found = append(found, o)
			continue
		}
		if d, ok := o.(*Directory); ok {
			sub, err := Find(d.children, pattern)
			if err != nil {
				return nil, err
			}
			found = append(found, sub...)
		}
	}
	return found, nil
}

func matches(pattern, p string) bool {
	if pattern == p {
		return true
	}
	if ok, _ := doublestar.Match(pattern, p); ok {
		return true
	}
	ok, _ := doublestar.Match(pattern, path.Base(p))
	return ok
}

// Stats summarizes a tree.
type Stats struct {
	Files       int
	Directories int
	Symlinks    int
	Bytes       int64
}

func Count(t Tree) Stats {
	var s Stats
	_ = Walk(t, func(o Object) error {
		switch x := o.(type) {
		case *File:
			s.Files++
			s.Bytes += x.size
		case *Directory:
			s.Directories++
		case *Symlink:
			s.Symlinks++
		default:
			panic(fmt.Sprintf("fsobject: unknown object type %T", o))
		}
		return nil
	})
	return s
}
