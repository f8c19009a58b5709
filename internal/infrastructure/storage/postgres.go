package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

// DefaultTable stores processed post ids.
const DefaultTable = "processed_posts"

const schema = `CREATE TABLE IF NOT EXISTS %s (
    external_id TEXT PRIMARY KEY,
    author      TEXT NOT NULL,
    text        TEXT NOT NULL,
    posted_at   TIMESTAMPTZ NOT NULL,
    links       TEXT[] NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore persists ingested post ids so aggregator dedup survives restarts.
type PostgresStore struct {
	db    *sql.DB
	table string
	qb    sq.StatementBuilderType
}

var _ ports.ProcessedStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{
		db:    db,
		table: table,
		qb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// OpenPostgres opens and pings a lib/pq connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the table when it is missing.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(schema, r.table)); err != nil {
		return fmt.Errorf("create %s: %w", r.table, err)
	}
	return nil
}

// AlreadyProcessed returns a map with IDs that already exist in storage.
func (r *PostgresStore) AlreadyProcessed(ctx context.Context, ids []string) (map[string]bool, error) {
	if r.db == nil || len(ids) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := r.qb.Select("external_id").
		From(r.table).
		Where("external_id = ANY(?)", pq.Array(ids)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build processed query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processed: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// MarkProcessed records post; repeated calls for the same id are ignored.
func (r *PostgresStore) MarkProcessed(ctx context.Context, post domain.Post) error {
	if r.db == nil {
		return nil
	}

	links := post.Links
	if links == nil {
		links = []string{}
	}
	query, args, err := r.qb.Insert(r.table).
		Columns("external_id", "author", "text", "posted_at", "links").
		Values(post.ID, post.Author, post.Text, post.Time().UTC().Truncate(time.Millisecond), pq.Array(links)).
		Suffix("ON CONFLICT (external_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert processed %s: %w", post.ID, err)
	}

	return nil
}
