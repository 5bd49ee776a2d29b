package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
)

func doc(id, client string, vec ...float32) models.Document {
	return models.Document{
		ID:       id,
		Text:     "text of " + id,
		Vector:   vec,
		Metadata: models.Metadata{SourceURL: "https://example.com/" + id, Title: id, ClientID: client},
	}
}

func ids(results []models.QueryResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestMemory_SearchOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	mc := metrics.NewCollector()
	idx := NewMemory(WithMetrics(mc))

	require.NoError(t, idx.Add(ctx, []models.Document{
		doc("far", "", 0, 1),
		doc("near", "", 1, 0.1),
		doc("exact", "", 1, 0),
		doc("opposite", "", -1, 0),
	}))

	results, err := idx.Search(ctx, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "near", "far"}, ids(results))
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.InDelta(t, 1, results[2].Distance, 1e-6)
	assert.Equal(t, "text of exact", results[0].Text)
	assert.Equal(t, "https://example.com/exact", results[0].Metadata.SourceURL)

	all, err := idx.Search(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.InDelta(t, 2, all[3].Distance, 1e-6)

	assert.EqualValues(t, 1, mc.Snapshot().Operations[metrics.OpIndexAdd].Count)
	assert.EqualValues(t, 2, mc.Snapshot().Operations[metrics.OpIndexSearch].Count)
}

func TestMemory_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Add(ctx, []models.Document{
		doc("a1", "acme", 1, 0),
		doc("a2", "acme", 0.9, 0.1),
		doc("g1", "globex", 1, 0),
		doc("shared", "", 1, 0),
	}))

	results, err := idx.Search(ctx, []float32{1, 0}, 5, Filter{models.KeyClientID: "acme"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, ids(results), "untagged documents stay out of tenant searches")

	results, err = idx.Search(ctx, []float32{1, 0}, 5, Filter{models.KeyClientID: "initech"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestMemory_AddDropsDocumentsWithoutVectors(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Add(ctx, []models.Document{doc("a", "", 1, 0), doc("b", "")}))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.Add(ctx, []models.Document{doc("c", "")}))
	n, _ = idx.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestMemory_AddReplacesSameID(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Add(ctx, []models.Document{doc("a", "", 1, 0)}))
	replaced := doc("a", "", 0, 1)
	replaced.Text = "new text"
	require.NoError(t, idx.Add(ctx, []models.Document{replaced}))

	results, err := idx.Search(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new text", results[0].Text)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestMemory_DeleteWhereAndReset(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Add(ctx, []models.Document{
		doc("a1", "acme", 1, 0),
		doc("g1", "globex", 1, 0),
	}))

	assert.ErrorIs(t, idx.DeleteWhere(ctx, nil), ErrEmptyFilter)
	assert.ErrorIs(t, idx.DeleteWhere(ctx, Filter{"color": "red"}), ErrInvalidFilter)

	require.NoError(t, idx.DeleteWhere(ctx, Filter{models.KeyClientID: "acme"}))
	n, _ := idx.Count(ctx)
	assert.Equal(t, 1, n)

	require.NoError(t, idx.Reset(ctx))
	n, _ = idx.Count(ctx)
	assert.Zero(t, n)

	results, err := idx.Search(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, idx.Add(ctx, []models.Document{
		doc("n1", "acme", 1, 0),
		doc("n2", "acme", 0, 1),
		doc("n3", "", 1, 1),
	}))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "index is usable after reset")
}

func TestMemory_SearchEdgeCases(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()
	require.NoError(t, idx.Add(ctx, []models.Document{doc("a", "", 1, 0)}))

	results, err := idx.Search(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = idx.Search(ctx, []float32{1, 0}, 5, Filter{"tenant": "x"})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = idx.Search(ctx, []float32{1, 0}, 5, Filter{models.KeyClientID: ""})
	assert.ErrorIs(t, err, ErrInvalidFilter, "empty values would match untagged documents")
	assert.ErrorIs(t, idx.DeleteWhere(ctx, Filter{models.KeyClientID: ""}), ErrInvalidFilter)
}

func TestAddBatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	err := AddBatch(ctx, idx, []string{"a", "b"}, [][]float32{{1, 0}}, []string{"x", "y"}, make([]models.Metadata, 2))
	assert.ErrorIs(t, err, ErrLengthMismatch)

	err = AddBatch(ctx, idx,
		[]string{"a", "b"},
		[][]float32{{1, 0}, {0, 1}},
		[]string{"alpha", "beta"},
		[]models.Metadata{{Title: "A"}, {Title: "B"}},
	)
	require.NoError(t, err)
	n, _ := idx.Count(ctx)
	assert.Equal(t, 2, n)
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
		{"length mismatch", []float32{1}, []float32{1, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineDistance(tt.a, tt.b), 1e-6)
		})
	}
}
