package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/vectorindex"
)

// Fixed texts substituted when retrieval or generation comes up empty.
const (
	NoContextPlaceholder = "No relevant information found in the knowledge base."
	ApologyResponse      = "I apologize, but I'm having trouble generating a response right now. Please try again."
)

// Retrieval defaults.
const (
	DefaultTopK        = 5
	DefaultMaxDistance = 1.0
)

// QueryEmbedder encodes a single query.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer grounded in contextText.
type Generator interface {
	GenerateAnswer(ctx context.Context, query, contextText string, history []models.ChatMessage, systemPrompt string) (string, error)
}

// SearchOptions tunes retrieval.
type SearchOptions struct {
	TopK        int
	MaxDistance float64
	Logger      *slog.Logger
}

// AnswerRequest is one question. An empty ClientID searches every tenant.
type AnswerRequest struct {
	Query        string
	ClientID     string
	SystemPrompt string
	History      []models.ChatMessage
}

// Answer is a generated response with the pages it drew on.
type Answer struct {
	Text        string          `json:"response"`
	Sources     []models.Source `json:"sources"`
	ContextUsed bool            `json:"context_used"`
}

// SearchService answers questions from the vector index.
type SearchService struct {
	embedder  QueryEmbedder
	index     vectorindex.Index
	generator Generator
	topK      int
	maxDist   float64
	log       *slog.Logger
}

// NewSearchService creates a search service.
func NewSearchService(emb QueryEmbedder, idx vectorindex.Index, gen Generator, opts SearchOptions) *SearchService {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = DefaultMaxDistance
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SearchService{
		embedder:  emb,
		index:     idx,
		generator: gen,
		topK:      opts.TopK,
		maxDist:   opts.MaxDistance,
		log:       opts.Logger,
	}
}

// TopK returns the number of results retrieved per query.
func (s *SearchService) TopK() int { return s.topK }

// MaxDistance returns the cosine distance cut-off.
func (s *SearchService) MaxDistance() float64 { return s.maxDist }

// Answer never fails: retrieval problems yield an empty context and
// generation problems yield ApologyResponse.
func (s *SearchService) Answer(ctx context.Context, req AnswerRequest) Answer {
	results, err := s.Retrieve(ctx, req.Query, req.ClientID)
	if err != nil {
		s.log.Warn("retrieval failed, answering without context", "client_id", req.ClientID, "error", err)
	}

	contextText, sources := s.BuildContext(results)
	if contextText == "" {
		contextText = NoContextPlaceholder
	}

	text, err := s.generator.GenerateAnswer(ctx, req.Query, contextText, req.History, req.SystemPrompt)
	if err != nil {
		s.log.Error("generation failed", "client_id", req.ClientID, "error", err)
		text = ApologyResponse
	}

	return Answer{Text: text, Sources: sources, ContextUsed: len(sources) > 0}
}

// Retrieve embeds query and returns the nearest documents, scoped to
// clientID when it is set.
func (s *SearchService) Retrieve(ctx context.Context, query, clientID string) ([]models.QueryResult, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	var filter vectorindex.Filter
	if clientID != "" {
		filter = vectorindex.Filter{models.KeyClientID: clientID}
	}
	results, err := s.index.Search(ctx, vector, s.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return results, nil
}

// BuildContext keeps results within the distance cut-off, at most topK of
// them in rank order, and labels each as a numbered source. Sources are
// deduplicated by URL, first occurrence wins.
func (s *SearchService) BuildContext(results []models.QueryResult) (string, []models.Source) {
	parts := make([]string, 0, len(results))
	sources := []models.Source{}
	seen := make(map[string]bool)

	for _, r := range results {
		if len(parts) == s.topK {
			break
		}
		if r.Distance > s.maxDist || strings.TrimSpace(r.Text) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[Source %d]\n%s\n", len(parts)+1, r.Text))

		url := r.Metadata.SourceURL
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		title := r.Metadata.Title
		if title == "" {
			title = "Untitled"
		}
		sources = append(sources, models.Source{URL: url, Title: title})
	}
	return strings.Join(parts, "\n"), sources
}
