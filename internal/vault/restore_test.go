package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/syftvault/internal/manifest"
	"github.com/openmined/syftvault/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestRestore_All(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(e.src, "empty"), 0o755))
	e.backup(t)

	d := &recordingDriver{Driver: memDriver(t, e)}
	v := e.open(t, WithDriver(d))
	dest := t.TempDir()

	rep, err := v.Restore(context.Background(), RestoreOptions{Dest: dest, All: true})
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, rep.Phase)
	assert.Equal(t, []string{e.src + "/a.txt", e.src + "/link", e.src + "/sub/b.txt"}, rep.Restored)

	root := DestPath(dest, e.src)
	assert.Equal(t, "alpha", readFile(t, filepath.Join(root, "a.txt")))
	assert.Equal(t, "bravo", readFile(t, filepath.Join(root, "sub", "b.txt")))
	assert.DirExists(t, filepath.Join(root, "empty"))

	target, err := os.Readlink(filepath.Join(root, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)

	// the index plus one fetch per file, none for the symlink
	assert.Equal(t, []string{manifest.Key, e.objectKey("a.txt"), e.objectKey("sub/b.txt")}, d.gets)
}

func TestRestore_Selectors(t *testing.T) {
	e := newTestEnv(t)
	e.backup(t)
	v := e.open(t)
	ctx := context.Background()

	t.Run("basename glob", func(t *testing.T) {
		dest := t.TempDir()
		rep, err := v.Restore(ctx, RestoreOptions{Dest: dest, Selectors: []string{"b.*"}})
		require.NoError(t, err)
		assert.Equal(t, []string{e.src + "/sub/b.txt"}, rep.Restored)
		assert.NoFileExists(t, filepath.Join(DestPath(dest, e.src), "a.txt"))
	})

	t.Run("directory brings its subtree", func(t *testing.T) {
		dest := t.TempDir()
		rep, err := v.Restore(ctx, RestoreOptions{Dest: dest, Selectors: []string{e.src + "/sub"}})
		require.NoError(t, err)
		assert.Equal(t, []string{e.src + "/sub/b.txt"}, rep.Restored)
	})

	t.Run("overlapping selectors restore once", func(t *testing.T) {
		dest := t.TempDir()
		rep, err := v.Restore(ctx, RestoreOptions{Dest: dest, Selectors: []string{"sub", "b.txt"}})
		require.NoError(t, err)
		assert.Equal(t, []string{e.src + "/sub/b.txt"}, rep.Restored)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := v.Restore(ctx, RestoreOptions{Dest: t.TempDir(), Selectors: []string{"missing.doc"}})
		assert.ErrorIs(t, err, ErrNoMatch)
	})

	t.Run("nothing selected", func(t *testing.T) {
		_, err := v.Restore(ctx, RestoreOptions{Dest: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestRestore_Overwrite(t *testing.T) {
	e := newTestEnv(t)
	e.backup(t)
	v := e.open(t)
	ctx := context.Background()

	dest := t.TempDir()
	existing := filepath.Join(DestPath(dest, e.src), "a.txt")
	writeFile(t, existing, "local edits")

	_, err := v.Restore(ctx, RestoreOptions{Dest: dest, Selectors: []string{"a.txt"}})
	assert.ErrorIs(t, err, ErrDestinationExists)
	assert.Equal(t, "local edits", readFile(t, existing))

	_, err = v.Restore(ctx, RestoreOptions{Dest: dest, Selectors: []string{"a.txt", "link"}, Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, "alpha", readFile(t, existing))

	// running again replaces the symlink too
	_, err = v.Restore(ctx, RestoreOptions{Dest: dest, Selectors: []string{"link"}, Overwrite: true})
	require.NoError(t, err)
}

func TestRestore_NoIndex(t *testing.T) {
	e := newTestEnv(t)
	v := e.open(t)

	_, err := v.Restore(context.Background(), RestoreOptions{Dest: t.TempDir(), All: true})
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestRestore_Encrypted(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.Passphrase = "correct horse"
	e.backup(t)

	dest := t.TempDir()
	v := e.open(t)
	_, err := v.Restore(context.Background(), RestoreOptions{Dest: dest, All: true})
	require.NoError(t, err)
	assert.Equal(t, "alpha", readFile(t, filepath.Join(DestPath(dest, e.src), "a.txt")))
	require.NoError(t, v.Close())

	// a compress-only run cannot read an encrypted index
	plain := e.open(t, WithPipeline(pipeline.New(pipeline.Options{})))
	_, err = plain.Restore(context.Background(), RestoreOptions{Dest: t.TempDir(), All: true})
	var ie *manifest.IndexError
	assert.ErrorAs(t, err, &ie)
}

func TestDestPath(t *testing.T) {
	dest := filepath.FromSlash("/restore")
	assert.Equal(t, filepath.Join(dest, "home", "me", "a.txt"), DestPath(dest, "/home/me/a.txt"))
	assert.Equal(t, filepath.Join(dest, "C", "Users", "me"), DestPath(dest, "C:/Users/me"))
	assert.Equal(t, filepath.Join(dest, "rel", "x"), DestPath(dest, "rel/x"))

	// dot-dot segments are clamped at the destination
	assert.Equal(t, filepath.Join(dest, "etc", "cron.d", "x"), DestPath(dest, "../../etc/cron.d/x"))
	assert.Equal(t, filepath.Join(dest, "tmp", "evil"), DestPath(dest, "/../../tmp/evil"))
	assert.Equal(t, filepath.Join(dest, "x"), DestPath(dest, "C:/../../x"))
}

func TestCheckTarget(t *testing.T) {
	dest := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, checkTarget(dest, filepath.Join(dest, "a", "b.txt")))
	require.NoError(t, checkTarget(dest, dest))

	err := checkTarget(dest, filepath.Join(outside, "x"))
	assert.ErrorIs(t, err, ErrOutsideDestination)

	require.NoError(t, os.Symlink(outside, filepath.Join(dest, "home")))
	err = checkTarget(dest, filepath.Join(dest, "home", "me", "a.txt"))
	assert.ErrorIs(t, err, ErrOutsideDestination)

	// the symlink itself may be replaced, just not written through
	require.NoError(t, checkTarget(dest, filepath.Join(dest, "home")))
}

func TestRestore_RefusesToWriteThroughSymlink(t *testing.T) {
	e := newTestEnv(t)
	e.backup(t)
	v := e.open(t)

	dest := t.TempDir()
	outside := t.TempDir()
	root := DestPath(dest, e.src)
	require.NoError(t, os.MkdirAll(filepath.Dir(root), 0o755))
	require.NoError(t, os.Symlink(outside, root))

	_, err := v.Restore(context.Background(), RestoreOptions{Dest: dest, Selectors: []string{"a.txt"}})
	assert.ErrorIs(t, err, ErrOutsideDestination)
	assert.NoFileExists(t, filepath.Join(outside, "a.txt"))
}
