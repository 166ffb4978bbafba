// Package gateway runs model-authored SQL against the mirror, one read-only
// SELECT at a time.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/logging"
	sqlguard "github.com/ekaya-inc/pokedex/pkg/sql"
)

const (
	DefaultRowCap  = 500
	DefaultTimeout = 10 * time.Second
)

// QueryResult is the tabular result of one query.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Config bounds query execution. Zero values use the defaults.
type Config struct {
	RowCap  int
	Timeout time.Duration
}

// Gateway validates and executes read-only queries.
type Gateway struct {
	db      *database.DB
	rowCap  int
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a gateway over db.
func New(db *database.DB, cfg *Config, logger *zap.Logger) *Gateway {
	g := &Gateway{
		db:      db,
		rowCap:  DefaultRowCap,
		timeout: DefaultTimeout,
		logger:  logger.Named("gateway"),
	}
	if cfg != nil {
		if cfg.RowCap > 0 {
			g.rowCap = cfg.RowCap
		}
		if cfg.Timeout > 0 {
			g.timeout = cfg.Timeout
		}
	}
	return g
}

// RunQuery executes exactly one SELECT statement.
//
// Statements that fail validation return a KindForbidden error without
// touching the store. Rows beyond the cap are dropped and Truncated is set.
// Driver errors return KindQueryFailed; exceeding the timeout returns KindTimeout.
func (g *Gateway) RunQuery(ctx context.Context, query string) (*QueryResult, error) {
	validated := sqlguard.ValidateReadOnly(query)
	if validated.Error != nil {
		g.logger.Info("Rejected query",
			zap.String("sql", logging.SanitizeQuery(query)),
			zap.Error(validated.Error))
		return nil, apperrors.Wrap(apperrors.KindForbidden, validated.Error.Error(), validated.Error)
	}

	start := time.Now()
	qctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.execute(qctx, validated.NormalizedSQL)
	if err != nil {
		return nil, g.classify(qctx, err)
	}

	g.logger.Debug("Query complete",
		zap.String("sql", logging.SanitizeQuery(query)),
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// execute runs query on a query-only connection. The connection is released
// before execute returns so callers may use the pool again.
func (g *Gateway) execute(ctx context.Context, query string) (*QueryResult, error) {
	scope, err := g.db.WithReadOnly(ctx)
	if err != nil {
		return nil, err
	}
	defer scope.Close()

	rows, err := scope.Conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if len(result.Rows) == g.rowCap {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// ListTables returns the mirror's queryable tables.
func (g *Gateway) ListTables(ctx context.Context) ([]string, error) {
	all, err := g.db.Tables(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindQueryFailed, "failed to list tables", err)
	}
	tables := make([]string, 0, len(all))
	for _, t := range all {
		if !strings.HasPrefix(t, "mirror_") {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// TableInfo describes the columns of one table.
func (g *Gateway) TableInfo(ctx context.Context, table string) ([]database.ColumnInfo, error) {
	if err := sqlguard.ValidateIdentifier("table", table); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidArguments, err.Error(), err)
	}
	cols, err := g.db.Columns(ctx, table)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.New(apperrors.KindQueryFailed, "no such table: "+table+g.tableHint(ctx, table))
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindQueryFailed, err.Error(), err)
	}
	return cols, nil
}

var noSuchTable = regexp.MustCompile(`no such table: ([A-Za-z0-9_.]+)`)

func (g *Gateway) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout,
			fmt.Sprintf("query exceeded %s", g.timeout), err)
	}
	msg := err.Error()
	if m := noSuchTable.FindStringSubmatch(msg); m != nil {
		msg += g.tableHint(context.WithoutCancel(ctx), m[1])
	}
	return apperrors.Wrap(apperrors.KindQueryFailed, msg, err)
}

// tableHint suggests the singular or plural form of a missing table name
// when that form exists, e.g. "pokemon_stat" -> "pokemon_stats".
func (g *Gateway) tableHint(ctx context.Context, table string) string {
	tables, err := g.ListTables(ctx)
	if err != nil {
		return ""
	}
	known := make(map[string]bool, len(tables))
	for _, t := range tables {
		known[t] = true
	}
	for _, candidate := range []string{inflection.Plural(table), inflection.Singular(table)} {
		if candidate != table && known[candidate] {
			return fmt.Sprintf(" (did you mean %s?)", candidate)
		}
	}
	return ""
}
