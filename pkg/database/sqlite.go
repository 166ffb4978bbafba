package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
)

const driverName = "sqlite"

// DB wraps the SQLite handle for the local mirror.
type DB struct {
	*sql.DB
	path     string
	readOnly bool
}

// Config holds mirror connection configuration.
type Config struct {
	Path        string
	ReadOnly    bool
	BusyTimeout time.Duration
}

// ColumnInfo describes one column of a mirror table.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// Open opens the mirror at cfg.Path.
//
// Writable handles create the parent directory and apply pending migrations.
// Read-only handles require an existing file and never migrate; they return
// apperrors.ErrStoreMissing when the file is absent.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	if cfg.ReadOnly {
		if _, err := os.Stat(cfg.Path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrStoreMissing, cfg.Path)
		}
	} else if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(driverName, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// A single writer avoids SQLITE_BUSY between the builder's transactions.
	if !cfg.ReadOnly {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	db := &DB{DB: sqlDB, path: cfg.Path, readOnly: cfg.ReadOnly}

	if !cfg.ReadOnly {
		if err := RunMigrations(sqlDB, logger); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	return db, nil
}

// OpenMemory opens a private in-memory mirror with migrations applied.
// The pool is pinned to one connection so every caller sees the same database.
func OpenMemory(ctx context.Context, logger *zap.Logger) (*DB, error) {
	sqlDB, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory store: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping in-memory store: %w", err)
	}
	if err := RunMigrations(sqlDB, logger); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, path: ":memory:"}, nil
}

func dsn(cfg *Config) string {
	busy := cfg.BusyTimeout
	if busy == 0 {
		busy = 5 * time.Second
	}

	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	if cfg.ReadOnly {
		q.Set("mode", "ro")
		q.Add("_pragma", "query_only(1)")
	} else {
		q.Add("_pragma", "synchronous(normal)")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Path returns the file the mirror was opened from.
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether the handle was opened read-only.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// Tables lists the user tables of the mirror in name order, excluding
// SQLite internals and migration bookkeeping.
func (db *DB) Tables(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		  AND name <> 'schema_migrations'
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Columns describes table. The caller must have validated the name.
func (db *DB) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	ok, err := db.HasTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: table %s", apperrors.ErrNotFound, table)
	}

	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			col     ColumnInfo
			notNull int
			pk      int
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		col.NotNull = notNull != 0
		col.PrimaryKey = pk != 0
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// HasTable reports whether table exists in the mirror.
func (db *DB) HasTable(ctx context.Context, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", table, err)
	}
	return n > 0, nil
}
