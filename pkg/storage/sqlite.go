package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/devmail/webapp/pkg/config"
	"github.com/devmail/webapp/pkg/version"
)

// DB is the persistence context shared by request handlers.
type DB struct {
	sqlDB *sql.DB
	path  string
	log   *zap.SugaredLogger
}

// Open opens the SQLite database described by cfg and ensures it is created.
func Open(ctx context.Context, cfg config.Database, log *zap.SugaredLogger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	cleanPath := filepath.Clean(cfg.Path)
	log = log.Named("storage")

	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", DSN(cleanPath, cfg.SharedCache))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	db := &DB{sqlDB: sqlDB, path: cleanPath, log: log}
	if err := db.EnsureCreated(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	log.Infow("SQLite database ready", "path", cleanPath, "sharedCache", cfg.SharedCache)
	return db, nil
}

// DSN builds a modernc.org/sqlite data source name for path.
func DSN(path string, sharedCache bool) string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "foreign_keys(1)")
	if sharedCache {
		params.Set("cache", "shared")
	}
	return "file:" + path + "?" + params.Encode()
}

// EnsureCreated creates the metadata table and records which application
// version first created the file. It is idempotent.
func (db *DB) EnsureCreated(ctx context.Context) error {
	if _, err := db.sqlDB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		created_by_version TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure schema_meta: %w", err)
	}
	res, err := db.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_meta (id, created_by_version, created_at) VALUES (1, ?, ?)`,
		version.Version, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record schema_meta: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.log.Infow("Created database", "path", db.path, "version", version.Version)
	}
	return nil
}

// CreatedBy returns the application version that created the database.
func (db *DB) CreatedBy(ctx context.Context) (string, error) {
	var v string
	if err := db.sqlDB.QueryRowContext(ctx, `SELECT created_by_version FROM schema_meta WHERE id = 1`).Scan(&v); err != nil {
		return "", fmt.Errorf("read schema_meta: %w", err)
	}
	return v, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db == nil || db.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return db.sqlDB.PingContext(ctx)
}

// SQL exposes the underlying handle for packages that own tables.
func (db *DB) SQL() *sql.DB {
	return db.sqlDB
}

// Close releases the underlying SQLite connection.
func (db *DB) Close() error {
	if db == nil || db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}
