package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers every tool with the MCP server. Call it before Run.
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the ingested website content, citing source pages",
	}, NewAskHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat",
		Description: "Continue a conversation; the session transcript is kept between calls",
	}, NewChatHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest",
		Description: "Crawl a website or extract local files into the knowledge base",
	}, NewIngestHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "job_status",
		Description: "Show the status and progress of an ingestion job",
	}, NewJobStatusHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_jobs",
		Description: "List recent ingestion jobs, newest first",
	}, NewListJobsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Report document count, retrieval settings and runtime metrics",
	}, NewStatsHandler(deps))
}
