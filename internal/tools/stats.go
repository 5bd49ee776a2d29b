package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatsInput is empty; the stats tool takes no arguments.
type StatsInput struct{}

// NewStatsHandler reports knowledge base statistics.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, any, error) {
		stats, err := deps.Stats.Stats(ctx)
		if err != nil {
			deps.Logger.Error("stats failed", "error", err)
			return ErrorResult("Failed to collect stats", "The vector index may be unavailable"), nil, nil
		}
		return JSONResult(stats), nil, nil
	}
}
