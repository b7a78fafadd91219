package hashcache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingCache(t *testing.T, path string) (*Cache, *int) {
	t.Helper()
	c, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	calls := 0
	c.hasher = fsobject.HasherFunc(func(p string, info fs.FileInfo) (string, error) {
		calls++
		return fsobject.StreamHasher.HashFile(p, info)
	})
	return c, &calls
}

func TestCache_HitsWhenUnchanged(t *testing.T) {
	c, calls := countingCache(t, ":memory:")

	p := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))
	info, err := os.Stat(p)
	require.NoError(t, err)

	first, err := c.HashFile(p, info)
	require.NoError(t, err)
	second, err := c.HashFile(p, info)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, *calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCache_RehashesOnChange(t *testing.T) {
	c, calls := countingCache(t, ":memory:")

	p := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello"), 0o644))
	info, err := os.Stat(p)
	require.NoError(t, err)
	before, err := c.HashFile(p, info)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("hello, world"), 0o644))
	later := info.ModTime().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(p, later, later))
	info, err = os.Stat(p)
	require.NoError(t, err)

	after, err := c.HashFile(p, info)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, 2, *calls)
}

func TestCache_MatchesStreamHasher(t *testing.T) {
	c, _ := countingCache(t, ":memory:")

	p := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(p, []byte{0, 1, 2, 3}, 0o644))

	f, err := fsobject.NewFile(p, fsobject.WithHasher(c))
	require.NoError(t, err)
	plain, err := fsobject.NewFile(p)
	require.NoError(t, err)
	assert.Equal(t, plain.ContentHash(), f.ContentHash())
}

func TestCache_PersistsAcrossOpens(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "hashcache.db")
	p := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("persist"), 0o644))
	info, err := os.Stat(p)
	require.NoError(t, err)

	c1, calls1 := countingCache(t, dbPath)
	_, err = c1.HashFile(p, info)
	require.NoError(t, err)
	require.NoError(t, c1.Close())
	assert.Equal(t, 1, *calls1)

	c2, calls2 := countingCache(t, dbPath)
	_, err = c2.HashFile(p, info)
	require.NoError(t, err)
	assert.Equal(t, 0, *calls2)
}

func TestCache_Prune(t *testing.T) {
	c, _ := countingCache(t, ":memory:")

	p := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	info, err := os.Stat(p)
	require.NoError(t, err)
	_, err = c.HashFile(p, info)
	require.NoError(t, err)

	n, err := c.Prune(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = c.Prune(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
