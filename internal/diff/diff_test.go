package diff

import (
	"testing"

	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/stretchr/testify/assert"
)

func file(p, hash string) *fsobject.File {
	return fsobject.RestoreFile(p, hash, int64(len(hash)))
}

func dir(p string, children ...fsobject.Object) *fsobject.Directory {
	t := fsobject.Tree{}
	for _, c := range children {
		t[c.Path()] = c
	}
	return fsobject.RestoreDirectory(p, t)
}

func tree(objs ...fsobject.Object) fsobject.Tree {
	t := fsobject.Tree{}
	for _, o := range objs {
		t[o.Path()] = o
	}
	return t
}

func paths(objs []fsobject.Object) []string {
	out := []string{}
	for _, o := range objs {
		out = append(out, o.Path())
	}
	return out
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name        string
		local       fsobject.Tree
		remote      fsobject.Tree
		wantUpdated []string
		wantRemoved []string
	}{
		{
			name:        "new files against empty remote",
			local:       tree(file("a.txt", "H1"), file("b.txt", "H2")),
			remote:      tree(),
			wantUpdated: []string{"a.txt", "b.txt"},
			wantRemoved: []string{},
		},
		{
			name:        "everything deleted locally",
			local:       tree(),
			remote:      tree(file("c.txt", "H3")),
			wantUpdated: []string{},
			wantRemoved: []string{"c.txt"},
		},
		{
			name:        "content changed",
			local:       tree(file("a.txt", "H1'")),
			remote:      tree(file("a.txt", "H1")),
			wantUpdated: []string{"a.txt"},
			wantRemoved: []string{},
		},
		{
			name:        "unchanged",
			local:       tree(file("a.txt", "H1"), fsobject.RestoreSymlink("l", "a.txt")),
			remote:      tree(file("a.txt", "H1"), fsobject.RestoreSymlink("l", "a.txt")),
			wantUpdated: []string{},
			wantRemoved: []string{},
		},
		{
			name:        "symlink retargeted",
			local:       tree(fsobject.RestoreSymlink("l", "b")),
			remote:      tree(fsobject.RestoreSymlink("l", "a")),
			wantUpdated: []string{"l"},
			wantRemoved: []string{},
		},
		{
			name: "nested changes recurse into shared directories",
			local: tree(dir("d",
				file("d/keep", "K"),
				file("d/change", "C2"),
				file("d/new", "N"),
				dir("d/sub", file("d/sub/x", "X")),
			)),
			remote: tree(dir("d",
				file("d/keep", "K"),
				file("d/change", "C1"),
				file("d/gone", "G"),
				dir("d/old", file("d/old/y", "Y")),
			)),
			wantUpdated: []string{"d/change", "d/new", "d/sub"},
			wantRemoved: []string{"d/gone", "d/old"},
		},
		{
			name:        "file replaced by directory",
			local:       tree(dir("x", file("x/inner", "I"))),
			remote:      tree(file("x", "F")),
			wantUpdated: []string{"x"},
			wantRemoved: []string{"x"},
		},
		{
			name:        "directory replaced by symlink",
			local:       tree(fsobject.RestoreSymlink("x", "elsewhere")),
			remote:      tree(dir("x", file("x/inner", "I"))),
			wantUpdated: []string{"x"},
			wantRemoved: []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(tt.local, tt.remote)
			assert.Equal(t, tt.wantUpdated, paths(s.Updated))
			assert.Equal(t, tt.wantRemoved, paths(s.Removed))
			assert.Equal(t, len(tt.wantUpdated) == 0 && len(tt.wantRemoved) == 0, s.Empty())
		})
	}
}

func TestTypeChange_ReportsDistinctObjects(t *testing.T) {
	local := tree(dir("x", file("x/inner", "I")))
	remote := tree(file("x", "F"))

	s := Compute(local, remote)
	assert.Same(t, local["x"], s.Updated[0])
	assert.Same(t, remote["x"], s.Removed[0])
}

func TestPartition(t *testing.T) {
	local := tree(
		file("only-local", "A"),
		file("both", "B"),
		dir("d", file("d/l", "L"), file("d/both", "DB")),
	)
	remote := tree(
		file("only-remote", "C"),
		file("both", "B"),
		dir("d", file("d/r", "R"), file("d/both", "DB")),
	)

	s := Compute(local, remote)
	assert.Contains(t, paths(s.Updated), "only-local")
	assert.Contains(t, paths(s.Updated), "d/l")
	assert.Contains(t, paths(s.Removed), "only-remote")
	assert.Contains(t, paths(s.Removed), "d/r")

	for _, u := range s.Updated {
		for _, r := range s.Removed {
			assert.False(t, u == r, "object %s in both outputs", u.Path())
		}
	}
	assert.NotContains(t, paths(s.Updated), "both")
	assert.NotContains(t, paths(s.Updated), "d/both")
}

func TestIdempotent(t *testing.T) {
	local := tree(dir("d", file("d/a", "1"), fsobject.RestoreSymlink("d/l", "a")), file("b", "2"))
	assert.True(t, Compute(local, local).Empty())
}

func TestCounts(t *testing.T) {
	local := tree(dir("d", file("d/a", "1234"), fsobject.RestoreSymlink("d/l", "a")))
	remote := tree(file("old", "xx"), fsobject.RestoreSymlink("oldlink", "x"))

	c := Compute(local, remote).Counts()
	assert.Equal(t, Counts{
		UpdatedFiles:    1,
		UpdatedSymlinks: 1,
		RemovedFiles:    1,
		RemovedSymlinks: 1,
		UploadBytes:     4,
	}, c)
}
