// Package modcache stores validated module interfaces in SQLite, keyed by
// module name and the hash of the source they were computed from.
package modcache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/diekev/delsace-sub011/compiler/wire"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("kuri.cache")

// ErrNotFound is returned when no interface matches a lookup.
var ErrNotFound = errors.New("modcache: not found")

// Entry describes one stored interface.
type Entry struct {
	ID          string
	Module      string
	Path        string
	SourceHash  string // hex
	Fingerprint string // hex
	StoredAt    time.Time
}

// Stats summarizes the cache content.
type Stats struct {
	Modules int
	Entries int
	Bytes   int64
}

// Config holds configuration for the cache.
type Config struct {
	Path string
}

// Cache is a SQLite-backed interface store. It is safe for concurrent use.
type Cache struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if needed) the cache database at cfg.Path.
func Open(cfg Config) (*Cache, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("modcache: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("modcache: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("modcache: open database: %w", err)
	}

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("modcache: initialize schema: %w", err)
	}
	log.Debugf("opened %s", cfg.Path)
	return c, nil
}

func (c *Cache) initSchema() error {
	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS interfaces (
		id TEXT NOT NULL UNIQUE,
		module TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		source_hash TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		data BLOB NOT NULL,
		stored_at INTEGER NOT NULL,
		PRIMARY KEY (module, source_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_interfaces_fingerprint ON interfaces(fingerprint);
	`)
	return err
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put stores iface, replacing any entry for the same module and source.
// It returns the id assigned to the entry.
func (c *Cache) Put(ctx context.Context, iface *wire.Interface) (string, error) {
	data, err := wire.MarshalInterface(iface)
	if err != nil {
		return "", fmt.Errorf("modcache: encode %s: %w", iface.Module, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO interfaces (id, module, path, source_hash, fingerprint, data, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, iface.Module, iface.Path, hex.EncodeToString(iface.SourceHash[:]),
		hex.EncodeToString(iface.Fingerprint[:]), data, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("modcache: store %s: %w", iface.Module, err)
	}
	return id, nil
}

// Get returns the interface stored for module at sourceHash.
func (c *Cache) Get(ctx context.Context, module string, sourceHash [32]byte) (*wire.Interface, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var data []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT data FROM interfaces WHERE module = ? AND source_hash = ?
	`, module, hex.EncodeToString(sourceHash[:])).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("modcache: get %s: %w", module, err)
	}
	return wire.UnmarshalInterface(data)
}

// Lookup is Get keyed by the module's source text.
func (c *Cache) Lookup(ctx context.Context, module, source string) (*wire.Interface, error) {
	return c.Get(ctx, module, wire.SourceHash(source))
}

// Entries lists stored interfaces, newest first. An empty module lists
// every module.
func (c *Cache) Entries(ctx context.Context, module string) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := `SELECT id, module, path, source_hash, fingerprint, stored_at FROM interfaces`
	var args []any
	if module != "" {
		query += ` WHERE module = ?`
		args = append(args, module)
	}
	query += ` ORDER BY stored_at DESC, module`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("modcache: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var stored int64
		if err := rows.Scan(&e.ID, &e.Module, &e.Path, &e.SourceHash, &e.Fingerprint, &stored); err != nil {
			return nil, fmt.Errorf("modcache: scan: %w", err)
		}
		e.StoredAt = time.Unix(0, stored)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes every entry for module and returns how many were removed.
func (c *Cache) Delete(ctx context.Context, module string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM interfaces WHERE module = ?`, module)
	if err != nil {
		return 0, fmt.Errorf("modcache: delete %s: %w", module, err)
	}
	return res.RowsAffected()
}

// Prune keeps the newest keep entries of each module and removes the rest.
func (c *Cache) Prune(ctx context.Context, keep int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		DELETE FROM interfaces WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY module ORDER BY stored_at DESC) AS rank
				FROM interfaces
			) WHERE rank > ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("modcache: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if n > 0 {
		log.Infof("pruned %d interfaces", n)
	}
	return n, err
}

// Statistics summarizes the cache.
func (c *Cache) Statistics(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Stats
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT module), COUNT(*), COALESCE(SUM(LENGTH(data)), 0) FROM interfaces
	`).Scan(&s.Modules, &s.Entries, &s.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("modcache: statistics: %w", err)
	}
	return s, nil
}
