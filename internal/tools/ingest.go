package tools

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/service"
)

const waitPoll = 250 * time.Millisecond

// IngestInput defines the input schema for the ingest tool.
type IngestInput struct {
	URL      string   `json:"url,omitempty" jsonschema:"website to crawl; a missing scheme means https"`
	Files    []string `json:"files,omitempty" jsonschema:"local .txt, .pdf or .md files to extract instead of crawling"`
	MaxPages int      `json:"max_pages,omitempty" jsonschema:"page limit 1-500, default 50"`
	MaxDepth int      `json:"max_depth,omitempty" jsonschema:"link depth 1-10, default 3"`
	Reset    bool     `json:"reset,omitempty" jsonschema:"clear the whole index before ingesting"`
	ClientID string   `json:"client_id,omitempty" jsonschema:"tenant the documents belong to"`
	Wait     bool     `json:"wait,omitempty" jsonschema:"block until the job finishes"`
}

// NewIngestHandler starts an ingestion job.
func NewIngestHandler(deps *Dependencies) mcp.ToolHandlerFor[IngestInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, any, error) {
		job, err := deps.Ingest.Start(ctx, service.IngestRequest{
			URL:      input.URL,
			Files:    input.Files,
			MaxPages: input.MaxPages,
			MaxDepth: input.MaxDepth,
			Reset:    input.Reset,
			ClientID: input.ClientID,
		})
		if errors.Is(err, service.ErrInvalidRequest) {
			return ErrorResult(err.Error(), "Provide either url or files"), nil, nil
		}
		if err != nil {
			deps.Logger.Error("ingest failed to start", "error", err)
			return ErrorResult("Failed to start ingestion", "Job store may be unavailable"), nil, nil
		}

		if input.Wait {
			done, err := deps.Ingest.Wait(ctx, job.ID, waitPoll)
			if err != nil {
				return ErrorResult("Stopped waiting for job "+job.ID, "Poll job_status instead"), nil, nil
			}
			job = done
		}
		return JSONResult(job), nil, nil
	}
}

// JobStatusInput defines the input schema for the job_status tool.
type JobStatusInput struct {
	JobID string `json:"job_id" jsonschema:"the job to inspect"`
}

// NewJobStatusHandler returns a job record.
func NewJobStatusHandler(deps *Dependencies) mcp.ToolHandlerFor[JobStatusInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input JobStatusInput) (*mcp.CallToolResult, any, error) {
		if input.JobID == "" {
			return ErrorResult("job_id cannot be empty", "Use list_jobs to find one"), nil, nil
		}
		job, err := deps.Ingest.Jobs().GetJob(ctx, input.JobID)
		if errors.Is(err, service.ErrJobNotFound) {
			return ErrorResult("Job not found: "+input.JobID, "Use list_jobs to find one"), nil, nil
		}
		if err != nil {
			deps.Logger.Error("job lookup failed", "job_id", input.JobID, "error", err)
			return ErrorResult("Job lookup failed", ""), nil, nil
		}
		return JSONResult(job), nil, nil
	}
}

// ListJobsInput defines the input schema for the list_jobs tool.
type ListJobsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"max jobs 1-100, default 20"`
}

// NewListJobsHandler lists recent jobs.
func NewListJobsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListJobsInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListJobsInput) (*mcp.CallToolResult, any, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			return ErrorResult("Limit must be 1-100", "Reduce limit value"), nil, nil
		}
		jobs, err := deps.Ingest.Jobs().ListJobs(ctx, limit)
		if err != nil {
			deps.Logger.Error("list jobs failed", "error", err)
			return ErrorResult("Failed to list jobs", ""), nil, nil
		}
		return JSONResult(struct {
			Jobs  []models.IngestionJob `json:"jobs"`
			Count int                   `json:"count"`
		}{jobs, len(jobs)}), nil, nil
	}
}
