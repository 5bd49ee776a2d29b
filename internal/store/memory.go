package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

type memEntry struct {
	rec Record
	seq uint64
}

// Memory is a Store held in process memory.
type Memory struct {
	mu    sync.RWMutex
	seq   uint64
	colls map[string]map[string]*memEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{colls: make(map[string]map[string]*memEntry)}
}

func (m *Memory) FindOne(_ context.Context, collection, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.colls[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	rec := copyRecord(e.rec)
	return &rec, nil
}

func (m *Memory) Find(_ context.Context, collection string, filter Filter, limit int) ([]Record, error) {
	match, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	entries := make([]*memEntry, 0, len(m.colls[collection]))
	for _, e := range m.colls[collection] {
		if match.match(e.rec.Body) {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *memEntry) int {
		return cmp.Or(b.rec.CreatedAt.Compare(a.rec.CreatedAt), cmp.Compare(b.seq, a.seq))
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = copyRecord(e.rec)
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, collection, id string, doc any) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.colls[collection]
	if !ok {
		coll = make(map[string]*memEntry)
		m.colls[collection] = coll
	}
	if e, ok := coll[id]; ok {
		e.rec.Body = body
		e.rec.UpdatedAt = now
		return nil
	}
	m.seq++
	coll[id] = &memEntry{rec: Record{ID: id, Body: body, CreatedAt: now, UpdatedAt: now}, seq: m.seq}
	return nil
}

func (m *Memory) DeleteOne(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.colls[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.colls[collection], id)
	return nil
}

func (m *Memory) DeleteMany(_ context.Context, collection string, filter Filter) (int, error) {
	match, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.colls[collection] {
		if match.match(e.rec.Body) {
			delete(m.colls[collection], id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) Count(_ context.Context, collection string, filter Filter) (int, error) {
	match, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.colls[collection] {
		if match.match(e.rec.Body) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func copyRecord(r Record) Record {
	r.Body = slices.Clone(r.Body)
	return r
}
