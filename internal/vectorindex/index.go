// Package vectorindex stores embedded chunks and answers nearest-neighbour
// queries with cosine distance.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
)

var (
	// ErrStaleHandle means the backing table or collection has gone away
	// underneath an open handle.
	ErrStaleHandle = errors.New("stale index handle")

	// ErrEmptyFilter guards DeleteWhere against wiping everything; use Reset.
	ErrEmptyFilter = errors.New("delete filter must not be empty")

	// ErrInvalidFilter means a filter names an unknown metadata key or
	// carries an empty value.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrLengthMismatch means the parallel slices given to AddBatch differ in length.
	ErrLengthMismatch = errors.New("ids, vectors, texts and metadatas must have equal length")
)

// Filter is an exact-match conjunction on metadata keys.
type Filter map[string]string

// Index is a vector store of documents. Distances are cosine distances in
// [0, 2]; lower means more similar.
type Index interface {
	Add(ctx context.Context, docs []models.Document) error
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]models.QueryResult, error)
	Count(ctx context.Context) (int, error)
	DeleteWhere(ctx context.Context, filter Filter) error
	Reset(ctx context.Context) error
	Close(ctx context.Context) error
}

// AddBatch adds documents given as parallel slices.
func AddBatch(ctx context.Context, idx Index, ids []string, vectors [][]float32, texts []string, metas []models.Metadata) error {
	n := len(ids)
	if len(vectors) != n || len(texts) != n || len(metas) != n {
		return fmt.Errorf("%w: %d/%d/%d/%d", ErrLengthMismatch, n, len(vectors), len(texts), len(metas))
	}
	docs := make([]models.Document, n)
	for i := range ids {
		docs[i] = models.Document{ID: ids[i], Vector: vectors[i], Text: texts[i], Metadata: metas[i]}
	}
	return idx.Add(ctx, docs)
}

// usable drops documents without a vector.
func usable(docs []models.Document, log *slog.Logger) []models.Document {
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		if len(d.Vector) > 0 {
			out = append(out, d)
		}
	}
	if dropped := len(docs) - len(out); dropped > 0 {
		log.Warn("dropping documents without embeddings", "dropped", dropped, "kept", len(out))
	}
	return out
}

func validateFilter(f Filter) error {
	for k := range f {
		if !slices.Contains(models.MetadataKeys, k) {
			return fmt.Errorf("%w: unknown metadata key %q", ErrInvalidFilter, k)
		}
		// Untagged documents lack the key, which backends treat differently.
		if f[k] == "" {
			return fmt.Errorf("%w: empty value for %q", ErrInvalidFilter, k)
		}
	}
	return nil
}

// sortedKeys gives filters a stable predicate order.
func sortedKeys(f Filter) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func matches(m models.Metadata, f Filter) bool {
	for k, v := range f {
		if m.Get(k) != v {
			return false
		}
	}
	return true
}

// cosineDistance returns 1 - cos(a, b). Zero vectors are at distance 1.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// withRefresh runs op and, when it reports a stale handle, refreshes once
// and runs it again.
func withRefresh(ctx context.Context, log *slog.Logger, refresh func(context.Context) error, op func() error) error {
	err := op()
	if !errors.Is(err, ErrStaleHandle) {
		return err
	}
	log.Warn("index handle stale, refreshing", "error", err)
	if rerr := refresh(ctx); rerr != nil {
		return fmt.Errorf("refresh index: %w", errors.Join(err, rerr))
	}
	return op()
}

// searchWithRefresh degrades a search that stays stale after a refresh to
// an empty result.
func searchWithRefresh(ctx context.Context, log *slog.Logger, refresh func(context.Context) error, op func() ([]models.QueryResult, error)) ([]models.QueryResult, error) {
	var results []models.QueryResult
	err := withRefresh(ctx, log, refresh, func() error {
		var err error
		results, err = op()
		return err
	})
	if errors.Is(err, ErrStaleHandle) {
		log.Warn("index still stale after refresh, returning no results", "error", err)
		return []models.QueryResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

type options struct {
	log     *slog.Logger
	metrics *metrics.Collector
}

// Option configures a backend.
type Option func(*options)

// WithLogger sets the backend logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records add and search timings.
func WithMetrics(mc *metrics.Collector) Option {
	return func(o *options) { o.metrics = mc }
}

func buildOptions(opts []Option) options {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}
