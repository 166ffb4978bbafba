package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/database"
	"github.com/ekaya-inc/pokedex/pkg/logging"
	"github.com/ekaya-inc/pokedex/pkg/pokeapi"
	sqlguard "github.com/ekaya-inc/pokedex/pkg/sql"
)

// Source lists and fetches remote resources. *pokeapi.Client satisfies it.
type Source interface {
	List(ctx context.Context, resource string) ([]pokeapi.NamedResource, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
	ListURL(resource string) (string, error)
}

var _ Source = (*pokeapi.Client)(nil)

// Failure records one resource (or a whole category listing) that could not be loaded.
type Failure struct {
	Category string `json:"category"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	Error    string `json:"error"`
}

// Stats summarizes a refresh.
type Stats struct {
	RunID        string        `json:"run_id,omitempty"`
	Skipped      bool          `json:"skipped"`
	Forced       bool          `json:"forced"`
	Categories   int           `json:"categories"`
	Records      int           `json:"records"`
	Associations int           `json:"associations"`
	Failures     []Failure     `json:"failures,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Builder loads the catalog's categories from a Source into the mirror.
type Builder struct {
	db      *database.DB
	source  Source
	catalog *Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewBuilder creates a builder. A nil catalog uses the embedded default.
func NewBuilder(db *database.DB, source Source, catalog *Catalog, logger *zap.Logger) (*Builder, error) {
	if catalog == nil {
		var err error
		catalog, err = DefaultCatalog()
		if err != nil {
			return nil, err
		}
	}
	if db.ReadOnly() {
		return nil, errors.New("mirror builder requires a writable store")
	}
	return &Builder{
		db:      db,
		source:  source,
		catalog: catalog,
		logger:  logger.Named("mirror"),
		now:     time.Now,
	}, nil
}

// Refresh populates the mirror.
//
// Without force, a store that already holds a completed run is left
// untouched and the returned Stats has Skipped set. With force, every
// catalog table is emptied first and reloaded. Per-resource failures are
// logged and recorded but do not abort the run; each category commits in
// its own transaction so a failed category leaves earlier ones intact.
func (b *Builder) Refresh(ctx context.Context, force bool) (*Stats, error) {
	start := b.now()

	if !force {
		done, err := b.hasCompletedRun(ctx)
		if err != nil {
			return nil, err
		}
		if done {
			b.logger.Info("Mirror already populated; skipping refresh (use force to rebuild)",
				zap.String("path", b.db.Path()))
			return &Stats{Skipped: true}, nil
		}
	}

	stats := &Stats{RunID: uuid.New().String(), Forced: force}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO mirror_runs (id, started_at, forced) VALUES (?, ?, ?)`,
		stats.RunID, start.UTC().Format(time.RFC3339), boolInt(force)); err != nil {
		return nil, fmt.Errorf("failed to record mirror run: %w", err)
	}

	if force {
		if err := b.truncate(ctx); err != nil {
			return nil, err
		}
	}

	b.logger.Info("Starting mirror refresh",
		zap.String("run_id", stats.RunID),
		zap.Bool("force", force),
		zap.Int("categories", len(b.catalog.Categories)))

	for i := range b.catalog.Categories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := &b.catalog.Categories[i]
		if err := b.loadCategory(ctx, c, stats); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to load %s: %w", c.Resource, err)
		}
		stats.Categories++
	}

	stats.Duration = b.now().Sub(start)
	if err := b.finishRun(ctx, stats); err != nil {
		return nil, err
	}

	b.logger.Info("Mirror refresh complete",
		zap.String("run_id", stats.RunID),
		zap.Int("records", stats.Records),
		zap.Int("associations", stats.Associations),
		zap.Int("failures", len(stats.Failures)),
		zap.Duration("elapsed", stats.Duration))

	return stats, nil
}

// loadCategory fetches every resource of c and writes it in one transaction.
// Only store errors are returned; remote failures are recorded in stats.
func (b *Builder) loadCategory(ctx context.Context, c *Category, stats *Stats) error {
	logger := b.logger.With(zap.String("category", c.Resource))

	items, err := b.source.List(ctx, c.Resource)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		listURL, _ := b.source.ListURL(c.Resource)
		logger.Warn("Failed to list category", zap.String("error", logging.SanitizeError(err)))
		stats.Failures = append(stats.Failures, Failure{Category: c.Resource, URL: listURL, Error: err.Error()})
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	loaded := 0
	for _, item := range items {
		doc, err := b.source.Fetch(ctx, item.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Failed to fetch resource",
				zap.String("name", item.Name),
				zap.String("error", logging.SanitizeError(err)))
			stats.Failures = append(stats.Failures, Failure{Category: c.Resource, Name: item.Name, URL: item.URL, Error: err.Error()})
			continue
		}

		tables, err := Flatten(c, doc)
		if err != nil {
			logger.Warn("Failed to flatten resource", zap.String("name", item.Name), zap.Error(err))
			stats.Failures = append(stats.Failures, Failure{Category: c.Resource, Name: item.Name, URL: item.URL, Error: err.Error()})
			continue
		}

		assoc, err := writeResource(ctx, tx, tables)
		if err != nil {
			return fmt.Errorf("failed to write %s %s: %w", c.Resource, item.Name, err)
		}
		loaded++
		stats.Records++
		stats.Associations += assoc
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", c.Resource, err)
	}

	logger.Info("Loaded category",
		zap.Int("listed", len(items)),
		zap.Int("loaded", loaded))
	return nil
}

// writeResource upserts the category row and replaces the resource's
// association rows. Returns the number of association rows written.
func writeResource(ctx context.Context, tx *sql.Tx, tables []TableRows) (int, error) {
	parent := tables[0]
	if _, err := tx.ExecContext(ctx, insertSQL("INSERT OR REPLACE", parent.Table, parent.Columns), parent.Rows[0]...); err != nil {
		return 0, err
	}
	parentID := parent.Rows[0][0]

	written := 0
	for _, tr := range tables[1:] {
		del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", sqlguard.QuoteIdentifier(tr.Table), sqlguard.QuoteIdentifier(tr.Key))
		if _, err := tx.ExecContext(ctx, del, parentID); err != nil {
			return written, err
		}
		if len(tr.Rows) == 0 {
			continue
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL("INSERT", tr.Table, tr.Columns))
		if err != nil {
			return written, err
		}
		for _, row := range tr.Rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				stmt.Close()
				return written, err
			}
			written++
		}
		stmt.Close()
	}
	return written, nil
}

func insertSQL(verb, table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = sqlguard.QuoteIdentifier(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, sqlguard.QuoteIdentifier(table), strings.Join(quoted, ", "), placeholders)
}

func (b *Builder) truncate(ctx context.Context) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin truncate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range b.catalog.Tables() {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqlguard.QuoteIdentifier(table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit truncate: %w", err)
	}
	b.logger.Info("Cleared mirror tables", zap.Int("tables", len(b.catalog.Tables())))
	return nil
}

func (b *Builder) hasCompletedRun(ctx context.Context) (bool, error) {
	var n int
	if err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mirror_runs WHERE finished_at IS NOT NULL`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check mirror runs: %w", err)
	}
	return n > 0, nil
}

func (b *Builder) finishRun(ctx context.Context, stats *Stats) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin run bookkeeping: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range stats.Failures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mirror_failures (run_id, category, name, url, error) VALUES (?, ?, ?, ?, ?)`,
			stats.RunID, f.Category, f.Name, f.URL, f.Error); err != nil {
			return fmt.Errorf("failed to record failure: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE mirror_runs SET finished_at = ?, records = ?, associations = ?, failures = ? WHERE id = ?`,
		b.now().UTC().Format(time.RFC3339), stats.Records, stats.Associations, len(stats.Failures), stats.RunID); err != nil {
		return fmt.Errorf("failed to finish mirror run: %w", err)
	}

	return tx.Commit()
}

// LastRun returns the most recent completed run, or nil if there is none.
func LastRun(ctx context.Context, db *database.DB) (*Stats, error) {
	var (
		s        Stats
		started  string
		finished string
		forced   int
		failures int
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, forced, records, associations, failures
		FROM mirror_runs
		WHERE finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT 1`).Scan(&s.RunID, &started, &finished, &forced, &s.Records, &s.Associations, &failures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last mirror run: %w", err)
	}

	s.Forced = forced != 0
	startedAt, _ := time.Parse(time.RFC3339, started)
	finishedAt, _ := time.Parse(time.RFC3339, finished)
	s.Duration = finishedAt.Sub(startedAt)
	if failures > 0 {
		s.Failures = make([]Failure, 0, failures)
		rows, err := db.QueryContext(ctx,
			`SELECT category, COALESCE(name, ''), COALESCE(url, ''), error FROM mirror_failures WHERE run_id = ?`, s.RunID)
		if err != nil {
			return nil, fmt.Errorf("failed to read mirror failures: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var f Failure
			if err := rows.Scan(&f.Category, &f.Name, &f.URL, &f.Error); err != nil {
				return nil, fmt.Errorf("failed to scan mirror failure: %w", err)
			}
			s.Failures = append(s.Failures, f)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
