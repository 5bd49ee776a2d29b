package vectorindex

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
)

// Memory is an in-process index with brute-force search.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]models.Document
	opts options
}

// NewMemory creates an empty in-memory index.
func NewMemory(opts ...Option) *Memory {
	return &Memory{docs: make(map[string]models.Document), opts: buildOptions(opts)}
}

// Add stores documents, replacing any with the same ID.
func (m *Memory) Add(_ context.Context, docs []models.Document) error {
	start := time.Now()
	docs = usable(docs, m.opts.log)
	if len(docs) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, d := range docs {
		d.Vector = slices.Clone(d.Vector)
		m.docs[d.ID] = d
	}
	m.mu.Unlock()

	m.opts.metrics.RecordTiming(metrics.OpIndexAdd, time.Since(start))
	return nil
}

// Search returns up to topK documents matching filter, nearest first.
func (m *Memory) Search(_ context.Context, vector []float32, topK int, filter Filter) ([]models.QueryResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if topK <= 0 || len(vector) == 0 {
		return []models.QueryResult{}, nil
	}
	start := time.Now()

	m.mu.RLock()
	results := make([]models.QueryResult, 0, len(m.docs))
	for _, d := range m.docs {
		if !matches(d.Metadata, filter) {
			continue
		}
		results = append(results, models.QueryResult{
			ID:       d.ID,
			Text:     d.Text,
			Metadata: d.Metadata,
			Distance: cosineDistance(vector, d.Vector),
		})
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b models.QueryResult) int {
		return cmp.Or(cmp.Compare(a.Distance, b.Distance), strings.Compare(a.ID, b.ID))
	})
	if len(results) > topK {
		results = results[:topK]
	}

	m.opts.metrics.RecordTiming(metrics.OpIndexSearch, time.Since(start))
	return results, nil
}

// Count returns the number of stored documents.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs), nil
}

// DeleteWhere removes every document matching filter.
func (m *Memory) DeleteWhere(_ context.Context, filter Filter) error {
	if len(filter) == 0 {
		return ErrEmptyFilter
	}
	if err := validateFilter(filter); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.docs {
		if matches(d.Metadata, filter) {
			delete(m.docs, id)
		}
	}
	return nil
}

// Reset drops every document.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	m.docs = make(map[string]models.Document)
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *Memory) Close(context.Context) error {
	return nil
}
