package service

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/vectorindex"
)

// Stats summarises the knowledge base and the models serving it.
type Stats struct {
	TotalDocuments     int              `json:"total_documents"`
	TotalJobs          int              `json:"total_jobs"`
	TopK               int              `json:"top_k"`
	MaxDistance        float64          `json:"max_distance"`
	Model              string           `json:"model"`
	EmbeddingModel     string           `json:"embedding_model"`
	TokenizerAvailable bool             `json:"tokenizer_available"`
	Metrics            metrics.Snapshot `json:"metrics"`
}

// StatsSource gathers Stats from the running services.
type StatsSource struct {
	Index              vectorindex.Index
	Jobs               *JobManager
	Search             *SearchService
	Model              string
	EmbeddingModel     string
	TokenizerAvailable bool
	Metrics            *metrics.Collector
}

// Stats collects a snapshot.
func (s StatsSource) Stats(ctx context.Context) (Stats, error) {
	docs, err := s.Index.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}
	stats := Stats{
		TotalDocuments:     docs,
		TopK:               s.Search.TopK(),
		MaxDistance:        s.Search.MaxDistance(),
		Model:              s.Model,
		EmbeddingModel:     s.EmbeddingModel,
		TokenizerAvailable: s.TokenizerAvailable,
	}
	if s.Jobs != nil {
		if stats.TotalJobs, err = s.Jobs.Count(ctx); err != nil {
			return Stats{}, err
		}
	}
	if s.Metrics != nil {
		stats.Metrics = s.Metrics.Snapshot()
	}
	return stats, nil
}
