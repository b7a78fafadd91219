package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/openmined/syftvault/internal/manifest"
	"github.com/openmined/syftvault/internal/utils"
)

var (
	// ErrNoMatch is returned when a restore selector matches nothing in the
	// remote index.
	ErrNoMatch = errors.New("no match in remote index")
	// ErrNoIndex is returned when restoring from a root that has never been
	// backed up to.
	ErrNoIndex = errors.New("remote has no index")
	// ErrDestinationExists guards against clobbering local files.
	ErrDestinationExists = errors.New("destination exists")
	// ErrOutsideDestination is returned for an entry that would be written
	// outside the restore directory.
	ErrOutsideDestination = errors.New("path escapes restore destination")
)

type RestoreOptions struct {
	// Dest is the directory the original paths are recreated under.
	Dest string
	// All restores the whole index and ignores Selectors.
	All bool
	// Selectors are exact paths or globs, matched against full paths and
	// base names. A selected directory brings its whole subtree.
	Selectors []string
	// Overwrite replaces existing destination files.
	Overwrite bool
}

// Restore recreates the selected index entries under opts.Dest. Files are
// downloaded, decoded and renamed into place; symlinks are recreated
// without network I/O.
func (v *Vault) Restore(ctx context.Context, opts RestoreOptions) (*Report, error) {
	r := v.newRun(opRestore)
	rep := r.report

	r.enter(PhaseInit)
	if opts.Dest == "" {
		return rep, r.fail(errors.New("restore destination is required"))
	}
	if !opts.All && len(opts.Selectors) == 0 {
		return rep, r.fail(errors.New("nothing selected: pass paths or restore all"))
	}
	dest, err := utils.ResolvePath(opts.Dest)
	if err != nil {
		return rep, r.fail(err)
	}

	r.enter(PhaseLoadRemoteIndex)
	idx, err := manifest.LoadIndex(ctx, v.driver, v.pipe, v.tmp)
	if err != nil {
		return rep, r.fail(err)
	}
	if !idx.Found {
		return rep, r.fail(ErrNoIndex)
	}

	selected, err := selectObjects(idx.Tree, opts)
	if err != nil {
		return rep, r.fail(err)
	}

	r.enter(PhaseRestore)
	seen := mapset.NewThreadUnsafeSet[string]()
	err = fsobject.Walk(selected, func(o fsobject.Object) error {
		if !seen.Add(o.Path()) {
			return nil
		}
		if err := checkCtx(ctx); err != nil {
			return err
		}

		target := DestPath(dest, o.Path())
		if err := checkTarget(dest, target); err != nil {
			return err
		}
		n, err := v.restoreObject(ctx, r, o, target, opts.Overwrite)
		if err != nil {
			return err
		}
		if o.Kind() != fsobject.KindDirectory {
			rep.Restored = append(rep.Restored, o.Path())
			rep.BytesDownloaded += n
		}
		return nil
	})
	if err != nil {
		return rep, r.fail(err)
	}

	return r.done(), nil
}

// selectObjects returns the whole index or the objects the selectors match.
func selectObjects(tree fsobject.Tree, opts RestoreOptions) (fsobject.Tree, error) {
	if opts.All {
		return tree, nil
	}

	selected := fsobject.Tree{}
	for _, sel := range opts.Selectors {
		found, err := fsobject.Find(tree, sel)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("%q: %w", sel, ErrNoMatch)
		}
		for _, o := range found {
			selected[o.Path()] = o
		}
	}
	return selected, nil
}

// DestPath maps an indexed path under dest. Drive colons are dropped so
// `C:/data` lands in `<dest>/C/data`, and ".." cannot climb above dest.
func DestPath(dest, p string) string {
	rel := path.Clean("/" + utils.StripDriveColons(p))
	return filepath.Join(dest, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
}

// checkTarget makes sure target lies under dest and that no existing
// directory between them is a symlink.
func checkTarget(dest, target string) error {
	rel, err := filepath.Rel(dest, target)
	if err != nil || !filepath.IsLocal(rel) {
		return fmt.Errorf("%s: %w", target, ErrOutsideDestination)
	}

	dir := dest
	parts := strings.Split(filepath.Dir(rel), string(filepath.Separator))
	for _, part := range parts {
		if part == "." {
			continue
		}
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		} else if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%s: parent %s is a symlink: %w", target, dir, ErrOutsideDestination)
		}
	}
	return nil
}

func (v *Vault) restoreObject(ctx context.Context, r *run, o fsobject.Object, target string, overwrite bool) (int64, error) {
	switch x := o.(type) {
	case *fsobject.Directory:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return 0, fmt.Errorf("create directory %s: %w", target, err)
		}
		return 0, nil

	case *fsobject.File:
		if err := checkDest(target, overwrite); err != nil {
			return 0, err
		}

		artifact := v.tmp.File("download")
		defer v.tmp.Release(artifact)
		if err := v.driver.Get(ctx, manifest.ObjectKey(x), artifact); err != nil {
			return 0, err
		}
		info, err := os.Stat(artifact)
		if err != nil {
			return 0, err
		}

		err = utils.AtomicWrite(target, func(tmpPath string) error {
			return v.pipe.Decode(ctx, artifact, tmpPath)
		})
		if err != nil {
			return 0, err
		}
		r.log.Info("restored", "path", x.Path(), "to", target, "size", humanize.Bytes(uint64(x.Size())))
		return info.Size(), nil

	case *fsobject.Symlink:
		if err := checkDest(target, overwrite); err != nil {
			return 0, err
		}
		if err := utils.EnsureParent(target); err != nil {
			return 0, err
		}
		if utils.PathExists(target) {
			if err := os.Remove(target); err != nil {
				return 0, err
			}
		}
		if err := os.Symlink(x.Target(), target); err != nil {
			return 0, fmt.Errorf("create symlink %s: %w", target, err)
		}
		r.log.Info("restored symlink", "path", x.Path(), "target", x.Target())
		return 0, nil

	default:
		panic(fmt.Sprintf("vault: unknown object type %T", o))
	}
}

func checkDest(target string, overwrite bool) error {
	if overwrite || !utils.PathExists(target) {
		return nil
	}
	return fmt.Errorf("%s: %w (use overwrite to replace it)", target, ErrDestinationExists)
}
