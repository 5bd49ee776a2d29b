// Package tools provides the MCP tool handlers and their registration.
package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/service"
)

// Ingester starts and inspects ingestion jobs.
type Ingester interface {
	Start(ctx context.Context, req service.IngestRequest) (*models.IngestionJob, error)
	Wait(ctx context.Context, jobID string, poll time.Duration) (*models.IngestionJob, error)
	Jobs() *service.JobManager
}

// StatsProvider reports knowledge base statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (service.Stats, error)
}

// Dependencies holds the services tool handlers call into. Handlers
// capture it by closure.
type Dependencies struct {
	Ingest Ingester
	Search *service.SearchService
	Chat   *service.ChatService
	Stats  StatsProvider
	Logger *slog.Logger
}
