package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"bgmrules/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// cacheSchemaVersion is bumped when the cache layout changes. A mismatched
// database is dropped and recreated since it only holds transport responses.
const cacheSchemaVersion = 1

// Cache stores raw Bangumi search payloads keyed by request. A Cache opened
// with an empty path is inert: Get always misses and writes are discarded.
type Cache struct {
	db     *sql.DB
	path   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// CacheStats summarizes cache contents.
type CacheStats struct {
	Path      string
	Entries   int
	Expired   int
	Oldest    time.Time
	Newest    time.Time
	SizeBytes int64
}

// OpenCache opens or creates the SQLite cache at path.
func OpenCache(path string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	logger = logging.NewComponentLogger(logger, "bangumi_cache")
	cache := &Cache{path: path, ttl: ttl, logger: logger, now: time.Now}
	if path == "" {
		return cache, nil
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	cache.db = db
	if err := cache.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply cache schema: %w", err)
	}

	var version int
	err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := c.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", cacheSchemaVersion); err != nil {
			return fmt.Errorf("record cache schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read cache schema version: %w", err)
	case version == cacheSchemaVersion:
		return nil
	}

	c.logger.Info("resetting bangumi cache after schema change",
		logging.Int("found_version", version),
		logging.Int("expected_version", cacheSchemaVersion),
	)
	for _, stmt := range []string{"DROP TABLE IF EXISTS search_cache", "DELETE FROM schema_version"} {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset cache: %w", err)
		}
	}
	return c.initSchema(ctx)
}

// Enabled reports whether the cache is backed by a database.
func (c *Cache) Enabled() bool {
	return c != nil && c.db != nil
}

// Path returns the database location.
func (c *Cache) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached payload for key when present and not expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	var payload string
	var fetchedAt int64
	err := c.db.QueryRowContext(ctx,
		"SELECT payload, fetched_at FROM search_cache WHERE cache_key = ?", key,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if c.expired(fetchedAt) {
		return nil, false, nil
	}
	return []byte(payload), true, nil
}

// Put stores payload under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key string, payload []byte) error {
	if !c.Enabled() {
		return nil
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO search_cache (cache_key, payload, fetched_at) VALUES (?, ?, ?)
         ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, string(payload), c.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Purge removes expired entries and returns how many were deleted.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	if !c.Enabled() || c.ttl <= 0 {
		return 0, nil
	}
	res, err := c.db.ExecContext(ctx, "DELETE FROM search_cache WHERE fetched_at <= ?", c.cutoff())
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every entry and returns how many were deleted.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	res, err := c.db.ExecContext(ctx, "DELETE FROM search_cache")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return res.RowsAffected()
}

// Stats reports entry counts and the age range of cached payloads.
func (c *Cache) Stats(ctx context.Context) (CacheStats, error) {
	stats := CacheStats{Path: c.Path()}
	if !c.Enabled() {
		return stats, nil
	}
	var oldest, newest sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1), MIN(fetched_at), MAX(fetched_at) FROM search_cache",
	).Scan(&stats.Entries, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("count cache entries: %w", err)
	}
	if oldest.Valid {
		stats.Oldest = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		stats.Newest = time.Unix(newest.Int64, 0)
	}
	if c.ttl > 0 {
		if err := c.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM search_cache WHERE fetched_at <= ?", c.cutoff(),
		).Scan(&stats.Expired); err != nil {
			return stats, fmt.Errorf("count expired entries: %w", err)
		}
	}
	if info, err := os.Stat(c.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func (c *Cache) cutoff() int64 {
	return c.now().Add(-c.ttl).Unix()
}

func (c *Cache) expired(fetchedAt int64) bool {
	if c.ttl <= 0 {
		return false
	}
	return fetchedAt <= c.cutoff()
}
