package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/raphaelgruber/sitechat/internal/config"
)

// role says which capability a backend is built for; it picks the model
// option each provider expects.
type role int

const (
	roleEmbed role = iota
	roleGenerate
)

// newBackend builds the provider client once. Every provider returns an
// llms.Model; those that can embed also implement embeddings.EmbedderClient.
func newBackend(ctx context.Context, provider, model string, r role, cfg config.Config) (llms.Model, error) {
	switch provider {
	case config.ProviderLocal:
		client, err := ollama.New(
			ollama.WithModel(model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return client, nil

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is required for provider %s", ErrConfiguration, provider)
		}
		opts := []openai.Option{openai.WithToken(cfg.OpenAIAPIKey)}
		if r == roleEmbed {
			opts = append(opts, openai.WithEmbeddingModel(model))
		} else {
			opts = append(opts, openai.WithModel(model))
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil

	case config.ProviderGoogle:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("%w: GOOGLE_API_KEY is required for provider %s", ErrConfiguration, provider)
		}
		opts := []googleai.Option{googleai.WithAPIKey(cfg.GoogleAPIKey)}
		if r == roleEmbed {
			opts = append(opts, googleai.WithDefaultEmbeddingModel(model))
		} else {
			opts = append(opts, googleai.WithDefaultModel(model))
		}
		client, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create google client: %w", err)
		}
		return client, nil

	case config.ProviderAnthropic:
		if r == roleEmbed {
			return nil, fmt.Errorf("%w: provider %s cannot produce embeddings", ErrConfiguration, provider)
		}
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY is required for provider %s", ErrConfiguration, provider)
		}
		client, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrConfiguration, provider)
	}
}

// newEmbeddingClient builds the embedding side of a provider.
func newEmbeddingClient(ctx context.Context, cfg config.Config) (embeddings.Embedder, error) {
	backend, err := newBackend(ctx, cfg.EmbedProvider, cfg.EmbedModel, roleEmbed, cfg)
	if err != nil {
		return nil, err
	}
	client, ok := backend.(embeddings.EmbedderClient)
	if !ok {
		return nil, fmt.Errorf("%w: provider %s cannot produce embeddings", ErrConfiguration, cfg.EmbedProvider)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(cfg.EmbedBatchSize))
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}
	return embedder, nil
}

// nativeBatch reports whether a provider embeds arbitrarily large inputs in one call.
func nativeBatch(provider string) bool {
	return provider == config.ProviderLocal
}
