package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/sitechat/internal/db"
	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
)

// knnEF is the HNSW search breadth.
const knnEF = 40

// Surreal stores documents in a SurrealDB table with an HNSW cosine index.
type Surreal struct {
	client    *db.Client
	table     string
	dimension int
	opts      options
}

type surrealRow struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Metadata models.Metadata `json:"metadata"`
	Distance float64         `json:"distance"`
}

// NewSurreal prepares table on client. The index owns client and closes it.
func NewSurreal(ctx context.Context, client *db.Client, table string, dimension int, opts ...Option) (*Surreal, error) {
	s := &Surreal{client: client, table: table, dimension: dimension, opts: buildOptions(opts)}
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Surreal) refresh(ctx context.Context) error {
	return s.client.InitSchema(ctx, s.table, s.dimension)
}

// Add inserts documents, overwriting existing IDs.
func (s *Surreal) Add(ctx context.Context, docs []models.Document) error {
	start := time.Now()
	docs = usable(docs, s.opts.log)
	if len(docs) == 0 {
		return nil
	}

	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		rows[i] = map[string]any{
			"id":        d.ID,
			"content":   d.Text,
			"embedding": d.Vector,
			"metadata":  d.Metadata.Fields(),
		}
	}
	sql := fmt.Sprintf(`INSERT INTO %s $rows ON DUPLICATE KEY UPDATE
		content = $input.content, embedding = $input.embedding, metadata = $input.metadata`, s.table)

	err := withRefresh(ctx, s.opts.log, s.refresh, func() error {
		return staleErr(s.client.Exec(ctx, sql, map[string]any{"rows": rows}))
	})
	if err != nil {
		s.opts.metrics.RecordError(metrics.OpIndexAdd)
		return fmt.Errorf("add %d documents: %w", len(docs), err)
	}
	s.opts.metrics.RecordTiming(metrics.OpIndexAdd, time.Since(start))
	return nil
}

// Search runs an HNSW query. Filtered searches scan the matching rows with
// exact cosine distance instead: the knn operator picks its candidates
// before the WHERE applies, so a tenant outranked by others could get
// fewer than topK results.
func (s *Surreal) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]models.QueryResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if topK <= 0 || len(vector) == 0 {
		return []models.QueryResult{}, nil
	}
	start := time.Now()

	where, vars := surrealPredicates(filter)
	vars["emb"] = vector
	var sql string
	if len(filter) > 0 {
		sql = fmt.Sprintf(`
		SELECT record::id(id) AS id, content, metadata, 1 - vector::similarity::cosine(embedding, $emb) AS distance
		FROM %s
		WHERE true%s
		ORDER BY distance
		LIMIT %d`, s.table, where, topK)
	} else {
		sql = fmt.Sprintf(`
		SELECT record::id(id) AS id, content, metadata, vector::distance::knn() AS distance
		FROM %s
		WHERE embedding <|%d,%d|> $emb
		ORDER BY distance
		LIMIT %d`, s.table, topK, knnEF, topK)
	}

	results, err := searchWithRefresh(ctx, s.opts.log, s.refresh, func() ([]models.QueryResult, error) {
		rows, err := db.Select[surrealRow](ctx, s.client, sql, vars)
		if err != nil {
			return nil, staleErr(err)
		}
		out := make([]models.QueryResult, len(rows))
		for i, r := range rows {
			out[i] = models.QueryResult{ID: r.ID, Text: r.Content, Metadata: r.Metadata, Distance: r.Distance}
		}
		return out, nil
	})
	if err != nil {
		s.opts.metrics.RecordError(metrics.OpIndexSearch)
		return nil, fmt.Errorf("search: %w", err)
	}
	s.opts.metrics.RecordTiming(metrics.OpIndexSearch, time.Since(start))
	return results, nil
}

// Count returns the number of stored documents.
func (s *Surreal) Count(ctx context.Context) (int, error) {
	sql := fmt.Sprintf("SELECT count() AS c FROM %s GROUP ALL", s.table)
	var n int
	err := withRefresh(ctx, s.opts.log, s.refresh, func() error {
		rows, err := db.Select[struct {
			C int `json:"c"`
		}](ctx, s.client, sql, nil)
		if err != nil {
			return staleErr(err)
		}
		n = 0
		if len(rows) > 0 {
			n = rows[0].C
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// DeleteWhere removes documents matching filter.
func (s *Surreal) DeleteWhere(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	if err := validateFilter(filter); err != nil {
		return err
	}
	where, vars := surrealPredicates(filter)
	sql := fmt.Sprintf("DELETE %s WHERE%s", s.table, strings.TrimPrefix(where, " AND"))
	err := withRefresh(ctx, s.opts.log, s.refresh, func() error {
		return staleErr(s.client.Exec(ctx, sql, vars))
	})
	if err != nil {
		return fmt.Errorf("delete where: %w", err)
	}
	return nil
}

// Reset deletes every document, keeping the table and its index.
func (s *Surreal) Reset(ctx context.Context) error {
	err := withRefresh(ctx, s.opts.log, s.refresh, func() error {
		return staleErr(s.client.Exec(ctx, "DELETE "+s.table, nil))
	})
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Surreal) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// surrealPredicates renders filter as " AND metadata.k = $fN" clauses.
func surrealPredicates(filter Filter) (string, map[string]any) {
	var b strings.Builder
	vars := make(map[string]any, len(filter)+1)
	for i, k := range sortedKeys(filter) {
		name := fmt.Sprintf("f%d", i)
		fmt.Fprintf(&b, " AND metadata.%s = $%s", k, name)
		vars[name] = filter[k]
	}
	return b.String(), vars
}

func staleErr(err error) error {
	if errors.Is(err, db.ErrTableMissing) {
		return fmt.Errorf("%w: %w", ErrStaleHandle, err)
	}
	return err
}
