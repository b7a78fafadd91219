// Package diff compares a local tree with the remote index. It is pure and
// performs no I/O.
package diff

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syftvault/internal/fsobject"
)

// Updated lists what must be uploaded for remote to match local: entries
// new to local, files whose content hash changed, symlinks whose target
// changed, and entries whose kind changed. A new directory is reported
// whole.
func Updated(local, remote fsobject.Tree) []fsobject.Object {
	var out []fsobject.Object
	for p, l := range local {
		r, ok := remote[p]
		if !ok {
			out = append(out, l)
			continue
		}
		out = append(out, updatedPair(l, r)...)
	}
	sortByPath(out)
	return out
}

func updatedPair(l, r fsobject.Object) []fsobject.Object {
	if l.Kind() != r.Kind() {
		return []fsobject.Object{l}
	}

	switch x := l.(type) {
	case *fsobject.Directory:
		return Updated(x.Children(), r.(*fsobject.Directory).Children())
	case *fsobject.File:
		if x.ContentHash() != r.(*fsobject.File).ContentHash() {
			return []fsobject.Object{l}
		}
	case *fsobject.Symlink:
		if x.Target() != r.(*fsobject.Symlink).Target() {
			return []fsobject.Object{l}
		}
	default:
		panic(fmt.Sprintf("diff: unknown object type %T", l))
	}
	return nil
}

// Removed lists remote entries that no longer exist locally. When a path
// changed kind the stale remote object is reported here as well, so its
// leaves are cleaned up in the same run that uploads the replacement.
func Removed(local, remote fsobject.Tree) []fsobject.Object {
	localPaths := mapset.NewThreadUnsafeSetFromMapKeys(local)

	var out []fsobject.Object
	for p, r := range remote {
		if !localPaths.Contains(p) {
			out = append(out, r)
			continue
		}

		l := local[p]
		switch {
		case l.Kind() != r.Kind():
			out = append(out, r)
		case r.Kind() == fsobject.KindDirectory:
			out = append(out, Removed(l.(*fsobject.Directory).Children(), r.(*fsobject.Directory).Children())...)
		}
	}
	sortByPath(out)
	return out
}

func sortByPath(objs []fsobject.Object) {
	sort.Slice(objs, func(i, j int) bool {
		return objs[i].Path() < objs[j].Path()
	})
}

// Summary is the outcome of comparing two trees.
type Summary struct {
	Updated []fsobject.Object
	Removed []fsobject.Object
}

func Compute(local, remote fsobject.Tree) Summary {
	return Summary{
		Updated: Updated(local, remote),
		Removed: Removed(local, remote),
	}
}

func (s Summary) Empty() bool {
	return len(s.Updated) == 0 && len(s.Removed) == 0
}

// Leaves flattens objs into the files and symlinks they contain.
func Leaves(objs []fsobject.Object) []fsobject.Object {
	var leaves []fsobject.Object
	for _, o := range objs {
		leaves = append(leaves, fsobject.Leaves(o)...)
	}
	return leaves
}

// Counts are leaf counts, as the orchestrator acts on leaves only.
type Counts struct {
	UpdatedFiles    int
	UpdatedSymlinks int
	RemovedFiles    int
	RemovedSymlinks int
	UploadBytes     int64
}

func (s Summary) Counts() Counts {
	var c Counts
	for _, o := range Leaves(s.Updated) {
		if f, ok := o.(*fsobject.File); ok {
			c.UpdatedFiles++
			c.UploadBytes += f.Size()
		} else {
			c.UpdatedSymlinks++
		}
	}
	for _, o := range Leaves(s.Removed) {
		if o.Kind() == fsobject.KindFile {
			c.RemovedFiles++
		} else {
			c.RemovedSymlinks++
		}
	}
	return c
}
