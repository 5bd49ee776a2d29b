package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/raphaelgruber/sitechat/internal/db"
	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

const pgSchemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	embedding  vector(%[2]d) NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops);
CREATE INDEX IF NOT EXISTS %[1]s_client_idx ON %[1]s ((metadata->>'client_id'));
`

// Pgvector stores documents in Postgres using the pgvector extension.
type Pgvector struct {
	db        *sql.DB
	table     string
	dimension int
	opts      options
}

// OpenPgvector connects to dsn and prepares table.
func OpenPgvector(ctx context.Context, dsn, table string, dimension int, opts ...Option) (*Pgvector, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p, err := NewPgvector(ctx, conn, table, dimension, opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// NewPgvector prepares table on an open connection. The index owns conn.
func NewPgvector(ctx context.Context, conn *sql.DB, table string, dimension int, opts ...Option) (*Pgvector, error) {
	if err := db.ValidateTable(table); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}
	p := &Pgvector{db: conn, table: table, dimension: dimension, opts: buildOptions(opts)}
	if err := p.refresh(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pgvector) refresh(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(pgSchemaTemplate, p.table, p.dimension)); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Add upserts documents in one transaction.
func (p *Pgvector) Add(ctx context.Context, docs []models.Document) error {
	start := time.Now()
	docs = usable(docs, p.opts.log)
	if len(docs) == 0 {
		return nil
	}

	err := withRefresh(ctx, p.opts.log, p.refresh, func() error {
		return pgStale(p.insert(ctx, docs))
	})
	if err != nil {
		p.opts.metrics.RecordError(metrics.OpIndexAdd)
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	p.opts.metrics.RecordTiming(metrics.OpIndexAdd, time.Since(start))
	return nil
}

func (p *Pgvector) insert(ctx context.Context, docs []models.Document) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata) VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content,
			embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`, p.table))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata.Fields())
		if err != nil {
			return fmt.Errorf("encode metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Text, pgvector.NewVector(d.Vector), string(meta)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search orders by cosine distance using the <=> operator.
func (p *Pgvector) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]models.QueryResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if topK <= 0 || len(vector) == 0 {
		return []models.QueryResult{}, nil
	}
	start := time.Now()

	where, args := pgPredicates(filter, 2)
	args = append([]any{pgvector.NewVector(vector)}, args...)
	args = append(args, topK)
	query := fmt.Sprintf(`SELECT id, content, metadata, embedding <=> $1 AS distance
		FROM %s%s ORDER BY distance LIMIT $%d`, p.table, where, len(args))

	results, err := searchWithRefresh(ctx, p.opts.log, p.refresh, func() ([]models.QueryResult, error) {
		out, err := p.query(ctx, query, args)
		return out, pgStale(err)
	})
	if err != nil {
		p.opts.metrics.RecordError(metrics.OpIndexSearch)
		return nil, fmt.Errorf("search: %w", err)
	}
	p.opts.metrics.RecordTiming(metrics.OpIndexSearch, time.Since(start))
	return results, nil
}

func (p *Pgvector) query(ctx context.Context, query string, args []any) ([]models.QueryResult, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.QueryResult{}
	for rows.Next() {
		var r models.QueryResult
		var meta []byte
		if err := rows.Scan(&r.ID, &r.Text, &meta, &r.Distance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored documents.
func (p *Pgvector) Count(ctx context.Context) (int, error) {
	var n int
	err := withRefresh(ctx, p.opts.log, p.refresh, func() error {
		return pgStale(p.db.QueryRowContext(ctx, "SELECT count(*) FROM "+p.table).Scan(&n))
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// DeleteWhere removes documents matching filter.
func (p *Pgvector) DeleteWhere(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	if err := validateFilter(filter); err != nil {
		return err
	}
	where, args := pgPredicates(filter, 1)
	err := withRefresh(ctx, p.opts.log, p.refresh, func() error {
		_, err := p.db.ExecContext(ctx, "DELETE FROM "+p.table+where, args...)
		return pgStale(err)
	})
	if err != nil {
		return fmt.Errorf("delete where: %w", err)
	}
	return nil
}

// Reset truncates the table.
func (p *Pgvector) Reset(ctx context.Context) error {
	err := withRefresh(ctx, p.opts.log, p.refresh, func() error {
		_, err := p.db.ExecContext(ctx, "TRUNCATE "+p.table)
		return pgStale(err)
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pgvector) Close(context.Context) error {
	return p.db.Close()
}

// pgPredicates renders filter as a WHERE clause with placeholders numbered
// from first.
func pgPredicates(filter Filter, first int) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	for i, k := range sortedKeys(filter) {
		clauses = append(clauses, fmt.Sprintf("metadata->>'%s' = $%d", k, first+i))
		args = append(args, filter[k])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func pgStale(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w: %w", ErrStaleHandle, err)
	}
	return err
}
