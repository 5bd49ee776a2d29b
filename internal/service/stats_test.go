package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/store"
	"github.com/raphaelgruber/sitechat/internal/vectorindex"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	collector := metrics.NewCollector()
	idx := vectorindex.NewMemory(vectorindex.WithMetrics(collector))
	require.NoError(t, idx.Add(ctx, []models.Document{
		{ID: "a", Text: "a", Vector: []float32{1, 0}},
		{ID: "b", Text: "b", Vector: []float32{0, 1}},
	}))
	collector.RecordTiming(metrics.OpEmbedding, time.Millisecond)

	jobs := NewJobManager(store.NewMemory(), nil)
	_, err := jobs.CreateJob(ctx, crawlJob(""))
	require.NoError(t, err)

	src := StatsSource{
		Index:              idx,
		Jobs:               jobs,
		Search:             NewSearchService(&fakeEmbedder{}, idx, &fakeGenerator{}, SearchOptions{TopK: 3, MaxDistance: 0.8}),
		Model:              "gpt-4o-mini",
		EmbeddingModel:     "text-embedding-3-small",
		TokenizerAvailable: true,
		Metrics:            collector,
	}

	stats, err := src.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 3, stats.TopK)
	assert.InDelta(t, 0.8, stats.MaxDistance, 1e-9)
	assert.Equal(t, "gpt-4o-mini", stats.Model)
	assert.True(t, stats.TokenizerAvailable)
	require.Contains(t, stats.Metrics.Operations, metrics.OpEmbedding)
	require.Contains(t, stats.Metrics.Operations, metrics.OpIndexAdd)
	assert.EqualValues(t, 1, stats.Metrics.Operations[metrics.OpEmbedding].Count)
}

func TestStats_WithoutJobsOrMetrics(t *testing.T) {
	idx := vectorindex.NewMemory()
	src := StatsSource{
		Index:  idx,
		Search: NewSearchService(&fakeEmbedder{}, idx, &fakeGenerator{}, SearchOptions{}),
	}
	stats, err := src.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)
	assert.Zero(t, stats.TotalJobs)
	assert.NotNil(t, stats.Metrics.Operations)
}
