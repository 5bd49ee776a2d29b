package tools_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/sitechat/internal/crawler"
	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/parser"
	"github.com/raphaelgruber/sitechat/internal/service"
	"github.com/raphaelgruber/sitechat/internal/store"
	"github.com/raphaelgruber/sitechat/internal/tools"
	"github.com/raphaelgruber/sitechat/internal/vectorindex"
)

type stubCrawler struct{ pages []models.Page }

func (s stubCrawler) Crawl(context.Context, string, int, int) ([]models.Page, error) {
	return s.pages, nil
}

// stubEmbedder maps every text onto the same direction so any query
// retrieves every document.
type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateAnswer(_ context.Context, query, _ string, _ []models.ChatMessage, _ string) (string, error) {
	return "answer to " + query, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// connect registers the tools on a fresh server backed by in-memory
// components and returns a connected client session.
func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	logger := testLogger()

	st := store.NewMemory()
	idx := vectorindex.NewMemory()
	seg, err := parser.NewSegmenter(100, 10, nil)
	require.NoError(t, err)

	jobs := service.NewJobManager(st, logger)
	pages := stubCrawler{pages: []models.Page{{URL: "https://example.com", Title: "Home", Content: "Example Corp sells widgets."}}}
	ingest := service.NewIngestService(jobs, pages, crawler.NewFileExtractor(logger), seg, stubEmbedder{}, idx, service.IngestOptions{Logger: logger})
	t.Cleanup(ingest.Close)
	search := service.NewSearchService(stubEmbedder{}, idx, stubGenerator{}, service.SearchOptions{Logger: logger})

	deps := &tools.Dependencies{
		Ingest: ingest,
		Search: search,
		Chat:   service.NewChatService(search, st, logger),
		Stats:  service.StatsSource{Index: idx, Jobs: jobs, Search: search},
		Logger: logger,
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "test-sitechat", Version: "0.0.1-test"}, nil)
	tools.RegisterAll(server, deps)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = server.Run(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content should be TextContent")
	return text.Text, result.IsError
}

func TestRegisterAll(t *testing.T) {
	session := connect(t)

	result, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	assert.ElementsMatch(t, []string{"ask", "chat", "ingest", "job_status", "list_jobs", "stats"}, names)
}

func TestIngestThenAsk(t *testing.T) {
	session := connect(t)

	text, isErr := call(t, session, "ingest", map[string]any{"url": "example.com", "client_id": "acme", "wait": true})
	require.False(t, isErr, text)
	var job models.IngestionJob
	require.NoError(t, json.Unmarshal([]byte(text), &job))
	assert.Equal(t, models.JobStatusCompleted, job.Status, job.Error)
	assert.Equal(t, "https://example.com", job.URL)
	assert.Equal(t, 1, job.Progress.Stored)

	text, isErr = call(t, session, "job_status", map[string]any{"job_id": job.ID})
	require.False(t, isErr, text)
	assert.Contains(t, text, job.ID)

	text, isErr = call(t, session, "ask", map[string]any{"query": "What do they sell?", "client_id": "acme"})
	require.False(t, isErr, text)
	var answer service.Answer
	require.NoError(t, json.Unmarshal([]byte(text), &answer))
	assert.Equal(t, "answer to What do they sell?", answer.Text)
	assert.True(t, answer.ContextUsed)
	assert.Equal(t, []models.Source{{URL: "https://example.com", Title: "Home"}}, answer.Sources)

	text, isErr = call(t, session, "stats", map[string]any{})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"total_documents": 1`)

	text, isErr = call(t, session, "list_jobs", map[string]any{})
	require.False(t, isErr, text)
	assert.Contains(t, text, `"count": 1`)
}

func TestChatKeepsSession(t *testing.T) {
	session := connect(t)

	text, isErr := call(t, session, "chat", map[string]any{"message": "hello"})
	require.False(t, isErr, text)
	var resp service.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	require.NotEmpty(t, resp.SessionID)

	text, isErr = call(t, session, "chat", map[string]any{"message": "again", "session_id": resp.SessionID, "client_id": "other"})
	assert.True(t, isErr)
	assert.Contains(t, text, "another client")
}

func TestToolErrors(t *testing.T) {
	session := connect(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"empty query", "ask", map[string]any{"query": ""}, "Query cannot be empty"},
		{"no source", "ingest", map[string]any{}, "invalid request"},
		{"both sources", "ingest", map[string]any{"url": "example.com", "files": []string{"a.txt"}}, "invalid request"},
		{"unknown job", "job_status", map[string]any{"job_id": "nope"}, "Job not found"},
		{"limit too high", "list_jobs", map[string]any{"limit": 500}, "Limit must be 1-100"},
		{"empty message", "chat", map[string]any{"message": ""}, "invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isErr := call(t, session, tt.tool, tt.args)
			assert.True(t, isErr)
			assert.Contains(t, text, tt.want)
		})
	}
}
