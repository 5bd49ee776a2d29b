package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type job struct {
	ID       string `json:"job_id"`
	Status   string `json:"status"`
	ClientID string `json:"client_id,omitempty"`
	Pages    int    `json:"pages"`
}

func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "test.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("FindOneMissing", func(t *testing.T) {
				s := open(t)
				_, err := s.FindOne(context.Background(), "jobs", "nope")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("UpsertAndFindOne", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Upsert(ctx, "jobs", "j1", job{ID: "j1", Status: "pending"}))

				rec, err := s.FindOne(ctx, "jobs", "j1")
				require.NoError(t, err)
				assert.Equal(t, "j1", rec.ID)
				var got job
				require.NoError(t, rec.Decode(&got))
				assert.Equal(t, job{ID: "j1", Status: "pending"}, got)
				assert.False(t, rec.CreatedAt.IsZero())
			})

			t.Run("UpsertPreservesCreatedAt", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Upsert(ctx, "jobs", "j1", job{Status: "pending"}))
				first, err := s.FindOne(ctx, "jobs", "j1")
				require.NoError(t, err)

				time.Sleep(5 * time.Millisecond)
				require.NoError(t, s.Upsert(ctx, "jobs", "j1", job{Status: "running"}))
				second, err := s.FindOne(ctx, "jobs", "j1")
				require.NoError(t, err)

				assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
				assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
				var got job
				require.NoError(t, second.Decode(&got))
				assert.Equal(t, "running", got.Status)

				n, err := s.Count(ctx, "jobs", nil)
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("InvalidKey", func(t *testing.T) {
				s := open(t)
				assert.ErrorIs(t, s.Upsert(context.Background(), "jobs", "", job{}), ErrInvalidKey)
				assert.ErrorIs(t, s.Upsert(context.Background(), "", "j1", job{}), ErrInvalidKey)
			})

			t.Run("FindNewestFirstWithFilterAndLimit", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				for i := range 5 {
					status := "completed"
					if i%2 == 0 {
						status = "failed"
					}
					id := fmt.Sprintf("j%d", i)
					require.NoError(t, s.Upsert(ctx, "jobs", id, job{ID: id, Status: status, Pages: i}))
				}

				all, err := s.Find(ctx, "jobs", nil, 0)
				require.NoError(t, err)
				require.Len(t, all, 5)
				assert.Equal(t, "j4", all[0].ID)
				assert.Equal(t, "j0", all[4].ID)

				limited, err := s.Find(ctx, "jobs", nil, 2)
				require.NoError(t, err)
				assert.Equal(t, []string{"j4", "j3"}, recordIDs(limited))

				failed, err := s.Find(ctx, "jobs", Filter{"status": "failed"}, 0)
				require.NoError(t, err)
				assert.Equal(t, []string{"j4", "j2", "j0"}, recordIDs(failed))

				// numeric filter values match their JSON form
				byPages, err := s.Find(ctx, "jobs", Filter{"pages": 3}, 0)
				require.NoError(t, err)
				assert.Equal(t, []string{"j3"}, recordIDs(byPages))

				none, err := s.Find(ctx, "jobs", Filter{"client_id": "acme"}, 0)
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("CollectionsAreIsolated", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Upsert(ctx, "jobs", "x", job{}))
				require.NoError(t, s.Upsert(ctx, "sessions", "x", map[string]string{"kind": "session"}))

				n, err := s.Count(ctx, "jobs", nil)
				require.NoError(t, err)
				assert.Equal(t, 1, n)

				rec, err := s.FindOne(ctx, "sessions", "x")
				require.NoError(t, err)
				assert.JSONEq(t, `{"kind":"session"}`, string(rec.Body))
			})

			t.Run("DeleteOneAndMany", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Upsert(ctx, "jobs", "a", job{ClientID: "acme"}))
				require.NoError(t, s.Upsert(ctx, "jobs", "b", job{ClientID: "acme"}))
				require.NoError(t, s.Upsert(ctx, "jobs", "c", job{ClientID: "globex"}))

				require.NoError(t, s.DeleteOne(ctx, "jobs", "c"))
				assert.ErrorIs(t, s.DeleteOne(ctx, "jobs", "c"), ErrNotFound)

				n, err := s.DeleteMany(ctx, "jobs", Filter{"client_id": "acme"})
				require.NoError(t, err)
				assert.Equal(t, 2, n)

				n, err = s.Count(ctx, "jobs", nil)
				require.NoError(t, err)
				assert.Zero(t, n)
			})

			t.Run("CountWithFilter", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				require.NoError(t, s.Upsert(ctx, "jobs", "a", job{Status: "running"}))
				require.NoError(t, s.Upsert(ctx, "jobs", "b", job{Status: "completed"}))

				n, err := s.Count(ctx, "jobs", Filter{"status": "running"})
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("ConcurrentUpserts", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				var wg sync.WaitGroup
				for i := range 20 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						id := fmt.Sprintf("j%d", i%5)
						assert.NoError(t, s.Upsert(ctx, "jobs", id, job{ID: id, Pages: i}))
					}()
				}
				wg.Wait()

				n, err := s.Count(ctx, "jobs", nil)
				require.NoError(t, err)
				assert.Equal(t, 5, n)
			})
		})
	}
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(ctx, "jobs", "j1", job{Status: "completed"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.FindOne(ctx, "jobs", "j1")
	require.NoError(t, err)
	var got job
	require.NoError(t, rec.Decode(&got))
	assert.Equal(t, "completed", got.Status)
}

func recordIDs(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
