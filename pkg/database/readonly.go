package database

import (
	"context"
	"database/sql"
)

// ReadOnlyScope pins one connection with PRAGMA query_only enabled, so the
// SQLite engine itself refuses writes regardless of what the statement says.
type ReadOnlyScope struct {
	Conn *sql.Conn
}

// Close re-enables writes and returns the connection to the pool.
// This MUST be called so the pragma does not leak to the builder.
func (s *ReadOnlyScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.ExecContext(context.Background(), "PRAGMA query_only = OFF")
	_ = s.Conn.Close()
}

// WithReadOnly acquires a connection and switches it to query-only mode.
// The returned ReadOnlyScope MUST be closed with defer scope.Close().
func (db *DB) WithReadOnly(ctx context.Context) (*ReadOnlyScope, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &ReadOnlyScope{Conn: conn}, nil
}
