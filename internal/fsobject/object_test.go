package fsobject

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, p string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
}

func TestNormPath(t *testing.T) {
	cases := map[string]string{
		"a/b/":      "a/b",
		"a\\b\\c":   "a/b/c",
		"/":         "/",
		"dir///":    "dir",
		"plain.txt": "plain.txt",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormPath(in), in)
	}
}

func TestHashName_Deterministic(t *testing.T) {
	assert.Equal(t, HashName("docs/a.txt"), HashName("docs/a.txt"))
	assert.NotEqual(t, HashName("docs/a.txt"), HashName("docs/b.txt"))
	// sha256("") is well known
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashName(""))
}

func TestHashContent_StableAndSensitive(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 300_000) // spans several chunks
	h1, n, err := HashContent(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	h2, _, err := HashContent(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	data[len(data)/2] ^= 0x01
	h3, _, err := HashContent(bytes.NewReader(data))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestNewFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	writeFile(t, p, "hello")

	f, err := NewFile(p)
	require.NoError(t, err)
	assert.Equal(t, NormPath(p), f.Path())
	assert.Equal(t, HashName(NormPath(p)), f.NameHash())
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", f.ContentHash())
	assert.Equal(t, int64(5), f.Size())
	assert.Equal(t, KindFile, f.Kind())
}

func TestNewFile_InvalidPath(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFile(dir)
	var ipe *InvalidPathError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, KindFile, ipe.Want)

	_, err = NewFile(filepath.Join(dir, "missing"))
	require.ErrorAs(t, err, &ipe)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewDirectory_InvalidPath(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	writeFile(t, p, "x")

	_, err := NewDirectory(p)
	var ipe *InvalidPathError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, KindDirectory, ipe.Want)
}

func TestNewDirectory_BuildsChildren(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(dir, "skip.log"), "ignored")
	require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "link")))

	d, err := NewDirectory(dir, WithSkip(func(p string) bool {
		return filepath.Ext(p) == ".log"
	}))
	require.NoError(t, err)

	root := NormPath(dir)
	children := d.Children()
	require.Len(t, children, 3)

	assert.IsType(t, &File{}, children[root+"/a.txt"])
	assert.IsType(t, &Directory{}, children[root+"/sub"])
	link, ok := children[root+"/link"].(*Symlink)
	require.True(t, ok)
	assert.Equal(t, "a.txt", link.Target())

	sub := children[root+"/sub"].(*Directory)
	assert.Contains(t, sub.Children(), root+"/sub/b.txt")
}

func TestNewDirectory_DoesNotFollowSymlinkedDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "b")
	// a link back to the parent would loop forever if followed
	require.NoError(t, os.Symlink("..", filepath.Join(dir, "sub", "up")))

	d, err := NewDirectory(dir)
	require.NoError(t, err)

	stats := Count(Tree{d.Path(): d})
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 1, stats.Symlinks)
	assert.Equal(t, 2, stats.Directories)
}

func TestFromPath_Classifies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f"), "x")
	require.NoError(t, os.Symlink("f", filepath.Join(dir, "l")))

	o, err := FromPath(filepath.Join(dir, "f"))
	require.NoError(t, err)
	assert.Equal(t, KindFile, o.Kind())

	o, err = FromPath(filepath.Join(dir, "l"))
	require.NoError(t, err)
	assert.Equal(t, KindSymlink, o.Kind())

	o, err = FromPath(dir + "/")
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, o.Kind())
	assert.Equal(t, NormPath(dir), o.Path())
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindFile, KindDirectory, KindSymlink} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("socket")
	assert.Error(t, err)
}
