// Package store keeps JSON documents (jobs, chat sessions) in named
// collections behind a small document-store interface.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

var (
	// ErrNotFound means no record has the requested ID.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidKey means a collection or record ID is empty.
	ErrInvalidKey = errors.New("collection and id must not be empty")
)

// Filter is an exact-match conjunction on top-level document fields.
type Filter map[string]any

// Record is a stored document.
type Record struct {
	ID        string
	Body      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the record body into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	return nil
}

// Store is a collection-scoped document store. Find returns newest records
// first; a limit of zero or less means no limit. Upsert keeps the original
// CreatedAt of an existing record.
type Store interface {
	FindOne(ctx context.Context, collection, id string) (*Record, error)
	Find(ctx context.Context, collection string, filter Filter, limit int) ([]Record, error)
	Upsert(ctx context.Context, collection, id string, doc any) error
	DeleteOne(ctx context.Context, collection, id string) error
	DeleteMany(ctx context.Context, collection string, filter Filter) (int, error)
	Count(ctx context.Context, collection string, filter Filter) (int, error)
	Close() error
}

// matcher is a filter normalised through JSON so that Go values compare
// equal to their decoded document counterparts.
type matcher map[string]any

func compileFilter(f Filter) (matcher, error) {
	if len(f) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	var m matcher
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("normalise filter: %w", err)
	}
	return m, nil
}

func (m matcher) match(body []byte) bool {
	if len(m) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	for k, want := range m {
		got, ok := doc[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func checkKey(collection, id string) error {
	if collection == "" || id == "" {
		return ErrInvalidKey
	}
	return nil
}
