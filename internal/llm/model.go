package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/raphaelgruber/sitechat/internal/config"
	"github.com/raphaelgruber/sitechat/internal/metrics"
	"github.com/raphaelgruber/sitechat/internal/models"
)

// userPromptTemplate wraps the retrieved context and the question.
const userPromptTemplate = `Context information:
%s

User question: %s

Please answer the question based on the context provided above. If the information needed to answer the question is not in the context, clearly state that you don't have that information available.`

// ModelOptions configures a Model.
type ModelOptions struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	HistoryLimit int
	MaxRetries   int
	RetryDelay   time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Collector
}

// Model wraps a langchaingo LLM for grounded answer generation.
type Model struct {
	llm     llms.Model
	opts    ModelOptions
	log     *slog.Logger
	metrics *metrics.Collector
}

// NewModel creates a generation model for the configured provider.
func NewModel(ctx context.Context, cfg config.Config, mc *metrics.Collector, log *slog.Logger) (*Model, error) {
	backend, err := newBackend(ctx, cfg.LLMProvider, cfg.LLMModel, roleGenerate, cfg)
	if err != nil {
		return nil, err
	}
	return newModel(backend, ModelOptions{
		Model:        cfg.LLMModel,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		SystemPrompt: cfg.SystemPrompt,
		HistoryLimit: cfg.HistoryLimit,
		MaxRetries:   cfg.EmbedMaxRetries,
		RetryDelay:   cfg.EmbedRetryDelay,
		Logger:       log,
		Metrics:      mc,
	}), nil
}

func newModel(llm llms.Model, opts ModelOptions) *Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = config.DefaultSystemPrompt
	}
	return &Model{llm: llm, opts: opts, log: opts.Logger, metrics: opts.Metrics}
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.opts.Model
}

// GenerateAnswer answers query from contextText. An empty systemPrompt uses
// the configured default; only the most recent history messages are sent.
func (m *Model) GenerateAnswer(ctx context.Context, query, contextText string, history []models.ChatMessage, systemPrompt string) (string, error) {
	messages := m.buildMessages(query, contextText, history, systemPrompt)

	start := time.Now()
	var resp *llms.ContentResponse
	err := withRetry(ctx, m.opts.MaxRetries, m.opts.RetryDelay, func() error {
		r, err := m.llm.GenerateContent(ctx, messages,
			llms.WithTemperature(m.opts.Temperature),
			llms.WithMaxTokens(m.opts.MaxTokens),
		)
		if err != nil {
			return err
		}
		if len(r.Choices) == 0 {
			return fmt.Errorf("no response choices")
		}
		resp = r
		return nil
	}, func(err error, wait time.Duration) {
		m.log.Warn("generation attempt failed, retrying", "model", m.opts.Model, "wait", wait, "error", err)
	})
	if err != nil {
		m.metrics.RecordError(metrics.OpLLMGenerate)
		return "", fmt.Errorf("generate answer: %w", err)
	}

	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start), in, out)
	m.log.Debug("answer generated", "model", m.opts.Model, "duration_ms", time.Since(start).Milliseconds(), "input_tokens", in, "output_tokens", out)
	return choice.Content, nil
}

func (m *Model) buildMessages(query, contextText string, history []models.ChatMessage, systemPrompt string) []llms.MessageContent {
	if systemPrompt == "" {
		systemPrompt = m.opts.SystemPrompt
	}
	if limit := m.opts.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case models.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		}
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(userPromptTemplate, contextText, query)))
	return messages
}

// tokenUsage reads token counts from provider generation info. Providers use
// different key names; missing keys count as zero.
func tokenUsage(info map[string]any) (in, out int64) {
	pick := func(keys ...string) int64 {
		for _, k := range keys {
			switch v := info[k].(type) {
			case int:
				return int64(v)
			case int32:
				return int64(v)
			case int64:
				return v
			case float64:
				return int64(v)
			}
		}
		return 0
	}
	return pick("PromptTokens", "InputTokens", "input_tokens"), pick("CompletionTokens", "OutputTokens", "output_tokens")
}
