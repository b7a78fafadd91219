package vault

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/openmined/syftvault/internal/diff"
	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/openmined/syftvault/internal/manifest"
	"github.com/openmined/syftvault/internal/snapshot"
	"github.com/openmined/syftvault/internal/storage"
)

const (
	opBackup  = "backup"
	opRestore = "restore"
)

var ErrNoSources = errors.New("no source paths given")

// Backup mirrors the objects matched by sources to the remote. Any object
// failure aborts the run; re-running is safe because the next diff picks up
// where this one stopped. The index is written last.
func (v *Vault) Backup(ctx context.Context, sources []string) (*Report, error) {
	r := v.newRun(opBackup)
	rep := r.report
	rep.DryRun = v.cfg.DryRun

	r.enter(PhaseInit)
	if len(sources) == 0 {
		return rep, r.fail(ErrNoSources)
	}
	builder, err := v.snapshotBuilder()
	if err != nil {
		return rep, r.fail(err)
	}

	r.enter(PhaseLoadRemoteIndex)
	idx, err := manifest.LoadIndex(ctx, v.driver, v.pipe, v.tmp)
	if err != nil {
		return rep, r.fail(err)
	}

	r.enter(PhaseBuildLocalSnapshot)
	local, err := builder.Build(ctx, sources)
	if err != nil {
		return rep, r.fail(err)
	}
	stats := fsobject.Count(local)
	r.log.Info("local snapshot",
		"files", stats.Files,
		"dirs", stats.Directories,
		"symlinks", stats.Symlinks,
		"size", humanize.Bytes(uint64(stats.Bytes)),
	)

	r.enter(PhaseDiff)
	plan := diff.Compute(local, idx.Tree)
	removed := diff.Leaves(plan.Removed)
	updated := diff.Leaves(plan.Updated)
	rep.Removed = leafPaths(removed)
	rep.Updated = leafPaths(updated)
	counts := plan.Counts()
	r.log.Info("diff",
		"update", counts.UpdatedFiles+counts.UpdatedSymlinks,
		"remove", counts.RemovedFiles+counts.RemovedSymlinks,
		"upload", humanize.Bytes(uint64(counts.UploadBytes)),
	)

	if rep.DryRun {
		for _, o := range removed {
			r.log.Info("would remove", "path", o.Path(), "kind", o.Kind())
		}
		for _, o := range updated {
			r.log.Info("would update", "path", o.Path(), "kind", o.Kind())
		}
		return r.done(), nil
	}

	r.enter(PhaseRemove)
	for _, o := range removed {
		if err := v.removeObject(ctx, r, o); err != nil {
			return rep, r.fail(err)
		}
	}

	r.enter(PhaseUpdate)
	for _, o := range updated {
		n, err := v.updateObject(ctx, r, o)
		if err != nil {
			return rep, r.fail(err)
		}
		rep.BytesUploaded += n
	}

	r.enter(PhasePersistIndex)
	if plan.Empty() && idx.Found {
		r.log.Info("remote is up to date")
	} else {
		if err := manifest.Save(ctx, v.driver, v.pipe, v.tmp, local, v.retry); err != nil {
			return rep, r.fail(err)
		}
		rep.IndexSaved = true
	}

	v.pruneHashCache(ctx, r)
	return r.done(), nil
}

func (v *Vault) snapshotBuilder() (*snapshot.Builder, error) {
	opts := []snapshot.Option{
		snapshot.WithExclude(v.cfg.Exclude...),
		snapshot.WithIgnoreList(snapshot.LoadIgnoreList(v.cfg.IgnoreFile)),
	}
	if v.hasher != nil {
		opts = append(opts, snapshot.WithHasher(v.hasher))
	}
	return snapshot.NewBuilder(opts...)
}

// removeObject deletes a file's remote object. Symlinks only live in the
// index, and a key that is already gone counts as removed.
func (v *Vault) removeObject(ctx context.Context, r *run, o fsobject.Object) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}

	switch x := o.(type) {
	case *fsobject.File:
		key := manifest.ObjectKey(x)
		err := v.driver.Delete(ctx, key)
		if storage.IsNotFound(err) {
			r.log.Debug("already removed", "path", x.Path(), "key", key)
			return nil
		}
		if err != nil {
			return err
		}
		r.log.Info("removed", "path", x.Path())
	case *fsobject.Symlink:
		r.log.Debug("dropped symlink", "path", x.Path())
	default:
		panic(fmt.Sprintf("vault: unexpected leaf %T", o))
	}
	return nil
}

// updateObject encodes and uploads a file, returning the encoded size.
// The existing object is deleted first for transports that cannot
// overwrite.
func (v *Vault) updateObject(ctx context.Context, r *run, o fsobject.Object) (int64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}

	switch x := o.(type) {
	case *fsobject.File:
		key := manifest.ObjectKey(x)
		artifact := v.tmp.File("upload")
		defer v.tmp.Release(artifact)

		if err := v.pipe.Encode(ctx, x.Path(), artifact); err != nil {
			return 0, err
		}
		info, err := os.Stat(artifact)
		if err != nil {
			return 0, err
		}

		if err := v.driver.Delete(ctx, key); err != nil && !storage.IsNotFound(err) {
			return 0, err
		}
		if err := v.driver.Put(ctx, key, artifact); err != nil {
			return 0, err
		}

		r.log.Info("uploaded", "path", x.Path(), "size", humanize.Bytes(uint64(x.Size())), "stored", humanize.Bytes(uint64(info.Size())))
		return info.Size(), nil
	case *fsobject.Symlink:
		r.log.Debug("recorded symlink", "path", x.Path(), "target", x.Target())
		return 0, nil
	default:
		panic(fmt.Sprintf("vault: unexpected leaf %T", o))
	}
}

func leafPaths(objs []fsobject.Object) []string {
	paths := make([]string, 0, len(objs))
	for _, o := range objs {
		paths = append(paths, o.Path())
	}
	return paths
}
