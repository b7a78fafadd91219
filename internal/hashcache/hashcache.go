// Package hashcache remembers content hashes by path, size and modification
// time so unchanged files are not re-read on every backup.
package hashcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/syftvault/internal/db"
	"github.com/openmined/syftvault/internal/fsobject"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_hashes (
	path       TEXT PRIMARY KEY,
	size       INTEGER NOT NULL,
	mod_time   INTEGER NOT NULL,
	hash       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

type entry struct {
	Path    string `db:"path"`
	Size    int64  `db:"size"`
	ModTime int64  `db:"mod_time"`
	Hash    string `db:"hash"`
}

// Cache implements fsobject.Hasher on top of SQLite. A file whose size or
// modification time changed is always re-hashed.
type Cache struct {
	db     *sqlx.DB
	hasher fsobject.Hasher
	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens or creates the cache at path. Use ":memory:" for a throwaway
// cache.
func Open(ctx context.Context, path string) (*Cache, error) {
	conn, err := db.NewSqliteDB(ctx, db.WithPath(path), db.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("hash cache: %w", err)
	}
	return &Cache{db: conn, hasher: fsobject.StreamHasher}, nil
}

func (c *Cache) HashFile(p string, info fs.FileInfo) (string, error) {
	key, err := filepath.Abs(filepath.FromSlash(p))
	if err != nil {
		return "", err
	}
	size, mtime := info.Size(), info.ModTime().UnixNano()

	var e entry
	err = c.db.Get(&e, `SELECT path, size, mod_time, hash FROM file_hashes WHERE path = ?`, key)
	switch {
	case err == nil && e.Size == size && e.ModTime == mtime:
		c.hits.Add(1)
		if _, err := c.db.Exec(`UPDATE file_hashes SET updated_at = ? WHERE path = ?`, time.Now().Unix(), key); err != nil {
			slog.Warn("hash cache touch failed", "path", p, "error", err)
		}
		return e.Hash, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		slog.Warn("hash cache lookup failed", "path", p, "error", err)
	}

	c.misses.Add(1)
	sum, err := c.hasher.HashFile(p, info)
	if err != nil {
		return "", err
	}

	_, err = c.db.Exec(`
		INSERT INTO file_hashes (path, size, mod_time, hash, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size = excluded.size, mod_time = excluded.mod_time,
			hash = excluded.hash, updated_at = excluded.updated_at`,
		key, size, mtime, sum, time.Now().Unix())
	if err != nil {
		slog.Warn("hash cache store failed", "path", p, "error", err)
	}
	return sum, nil
}

// Prune drops entries not refreshed since before.
func (c *Cache) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM file_hashes WHERE updated_at < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("hash cache prune: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns the hit and miss counts since Open.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) Close() error {
	return c.db.Close()
}
