// Package vault drives backup and restore runs: it ties the snapshot
// builder, remote index, diff engine, content pipeline and storage driver
// together in a fixed sequence of phases.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/syftvault/internal/config"
	"github.com/openmined/syftvault/internal/fsobject"
	"github.com/openmined/syftvault/internal/hashcache"
	"github.com/openmined/syftvault/internal/manifest"
	"github.com/openmined/syftvault/internal/pipeline"
	"github.com/openmined/syftvault/internal/storage"
)

const (
	indexRetryBackoff = time.Second
	// hashCacheTTL is how long a hash cache entry survives without a hit.
	hashCacheTTL = 30 * 24 * time.Hour
)

// Vault runs operations against one root URL. It is not safe for
// concurrent use; one operation runs at a time.
type Vault struct {
	cfg    *config.Config
	driver storage.Driver
	pipe   *pipeline.Pipeline
	tmp    *pipeline.TempDir
	retry  manifest.RetryPolicy
	hasher fsobject.Hasher
	cache  *hashcache.Cache
	lock   *runLock
	log    *slog.Logger
}

type Option func(*Vault)

// WithDriver uses d instead of resolving one from the root URL. The vault
// closes it.
func WithDriver(d storage.Driver) Option {
	return func(v *Vault) {
		v.driver = d
	}
}

func WithPipeline(p *pipeline.Pipeline) Option {
	return func(v *Vault) {
		v.pipe = p
	}
}

// WithRetryPolicy decides what happens when the index save fails.
func WithRetryPolicy(r manifest.RetryPolicy) Option {
	return func(v *Vault) {
		v.retry = r
	}
}

func WithHasher(h fsobject.Hasher) Option {
	return func(v *Vault) {
		v.hasher = h
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		v.log = l
	}
}

// New takes the run lock for cfg's root and connects the storage driver.
// cfg must have been validated.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Vault, error) {
	v := &Vault{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.open(ctx); err != nil {
		v.Close()
		return nil, err
	}

	v.log.Debug("vault ready", "root", v.driver.URL(), "mode", v.pipe.Mode())
	return v, nil
}

func (v *Vault) open(ctx context.Context) (err error) {
	cfg := v.cfg
	if v.lock, err = acquireLock(cfg.LockPath()); err != nil {
		return err
	}

	if v.tmp, err = pipeline.NewTempDir(cfg.TempDir); err != nil {
		return err
	}

	if v.pipe == nil {
		v.pipe = pipeline.New(pipeline.Options{Passphrase: cfg.Passphrase})
	}

	if v.retry == nil {
		if cfg.Retries > 1 {
			v.retry = manifest.MaxAttempts{N: cfg.Retries, Backoff: indexRetryBackoff}
		} else {
			v.retry = manifest.NoRetry
		}
	}

	if v.hasher == nil && cfg.HashCache {
		if v.cache, err = hashcache.Open(ctx, cfg.HashCachePath()); err != nil {
			return err
		}
		v.hasher = v.cache
	}

	if v.driver == nil {
		if v.driver, err = storage.Open(ctx, cfg.RootURL, cfg.StorageOptions()); err != nil {
			return err
		}
	}
	return nil
}

// Close removes every temp artifact and releases the driver and lock.
func (v *Vault) Close() error {
	var errs []error
	if v.tmp != nil {
		errs = append(errs, v.tmp.Close())
	}
	if v.driver != nil {
		errs = append(errs, v.driver.Close())
	}
	if v.cache != nil {
		hits, misses := v.cache.Stats()
		v.log.Debug("hash cache", "hits", hits, "misses", misses)
		errs = append(errs, v.cache.Close())
	}
	if v.lock != nil {
		errs = append(errs, v.lock.release())
	}
	return errors.Join(errs...)
}

// List returns the remote index without touching local files.
func (v *Vault) List(ctx context.Context) (fsobject.Tree, error) {
	tree, err := manifest.Load(ctx, v.driver, v.pipe, v.tmp)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseLoadRemoteIndex, Err: err}
	}
	return tree, nil
}

func (v *Vault) pruneHashCache(ctx context.Context, r *run) {
	if v.cache == nil {
		return
	}
	n, err := v.cache.Prune(ctx, time.Now().Add(-hashCacheTTL))
	if err != nil {
		r.log.Warn("hash cache prune failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Debug("hash cache pruned", "entries", n)
	}
}

// run tracks the phase of one operation and stamps the report when it ends.
type run struct {
	report *Report
	log    *slog.Logger
	start  time.Time
}

func (v *Vault) newRun(op string) *run {
	rep := newReport(op)
	return &run{
		report: rep,
		log:    v.log.With("run", rep.RunID, "op", op),
		start:  time.Now(),
	}
}

func (r *run) enter(p Phase) {
	r.report.Phase = p
	r.log.Debug("phase", "phase", p)
}

func (r *run) fail(err error) error {
	failed := r.report.Phase
	r.report.Phase = PhaseFailed
	r.report.Duration = time.Since(r.start)
	r.log.Error("run failed", "phase", failed, "error", err)
	return &PhaseError{Phase: failed, Err: err}
}

func (r *run) done() *Report {
	r.report.Phase = PhaseDone
	r.report.Duration = time.Since(r.start)
	r.log.Info("run complete", "report", r.report)
	return r.report
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	return nil
}
