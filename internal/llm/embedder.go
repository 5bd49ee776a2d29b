// Package llm provides embedding and text generation on top of langchaingo
// providers (local Ollama, OpenAI-compatible APIs, Google, Anthropic).
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/sitechat/internal/config"
	"github.com/raphaelgruber/sitechat/internal/metrics"
)

// EncoderOptions configures an Encoder.
type EncoderOptions struct {
	Model       string
	Dimension   int // 0 disables the dimension check
	BatchSize   int
	NativeBatch bool
	MaxRetries  int
	RetryDelay  time.Duration
	BatchPause  time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Collector
}

// Encoder turns text into vectors with retries and partial-failure batching.
type Encoder struct {
	client  embeddings.Embedder
	opts    EncoderOptions
	limiter *rate.Limiter
	log     *slog.Logger
	metrics *metrics.Collector
}

// NewEncoder creates an encoder for the configured embedding provider.
// Missing credentials fail with ErrConfiguration.
func NewEncoder(ctx context.Context, cfg config.Config, mc *metrics.Collector, log *slog.Logger) (*Encoder, error) {
	client, err := newEmbeddingClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newEncoder(client, EncoderOptions{
		Model:       cfg.EmbedModel,
		Dimension:   cfg.EmbedDimension,
		BatchSize:   cfg.EmbedBatchSize,
		NativeBatch: nativeBatch(cfg.EmbedProvider),
		MaxRetries:  cfg.EmbedMaxRetries,
		RetryDelay:  cfg.EmbedRetryDelay,
		BatchPause:  cfg.EmbedBatchPause,
		Logger:      log,
		Metrics:     mc,
	}), nil
}

func newEncoder(client embeddings.Embedder, opts EncoderOptions) *Encoder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	limit := rate.Inf
	if opts.BatchPause > 0 {
		limit = rate.Every(opts.BatchPause)
	}
	return &Encoder{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Model returns the embedding model name.
func (e *Encoder) Model() string {
	return e.opts.Model
}

// Dimension returns the expected embedding dimension.
func (e *Encoder) Dimension() int {
	return e.opts.Dimension
}

// Embed encodes one text. Blank text is ErrInvalidInput. Transient failures
// are retried; the last error is returned once attempts run out.
func (e *Encoder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", ErrInvalidInput)
	}

	start := time.Now()
	var vector []float32
	err := withRetry(ctx, e.opts.MaxRetries, e.opts.RetryDelay, func() error {
		v, err := e.client.EmbedQuery(ctx, text)
		if err != nil {
			return err
		}
		if err := e.checkDimension(v); err != nil {
			return backoff.Permanent(err)
		}
		vector = v
		return nil
	}, e.notify("embed"))
	if err != nil {
		e.metrics.RecordError(metrics.OpEmbedding)
		e.log.Warn("embedding failed", "model", e.opts.Model, "text_len", len(text), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}

	e.metrics.RecordTiming(metrics.OpEmbedding, time.Since(start))
	e.log.Debug("embedding complete", "model", e.opts.Model, "text_len", len(text), "duration_ms", time.Since(start).Milliseconds())
	return vector, nil
}

// EmbedBatch encodes texts, returning one entry per input. Entries of a
// sub-batch that still fails after retries, and blank texts, are nil. The
// error is non-nil only when ctx ends.
func (e *Encoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	size := e.opts.BatchSize
	if e.opts.NativeBatch || size <= 0 {
		size = len(texts)
	}

	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		if err := e.limiter.Wait(ctx); err != nil {
			return out, err
		}
		if err := e.embedSubBatch(ctx, texts[start:end], out[start:end]); err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			e.metrics.RecordError(metrics.OpEmbedBatch)
			e.log.Warn("embedding sub-batch failed, leaving entries empty",
				"model", e.opts.Model, "from", start, "to", end, "error", err)
		}
	}
	return out, nil
}

// embedSubBatch fills dst with vectors for the non-blank texts of batch.
func (e *Encoder) embedSubBatch(ctx context.Context, batch []string, dst [][]float32) error {
	var idx []int
	var inputs []string
	for i, t := range batch {
		if strings.TrimSpace(t) != "" {
			idx = append(idx, i)
			inputs = append(inputs, t)
		}
	}
	if len(inputs) == 0 {
		return nil
	}

	start := time.Now()
	var vectors [][]float32
	err := withRetry(ctx, e.opts.MaxRetries, e.opts.RetryDelay, func() error {
		v, err := e.client.EmbedDocuments(ctx, inputs)
		if err != nil {
			return err
		}
		if len(v) != len(inputs) {
			return fmt.Errorf("count mismatch: got %d, want %d", len(v), len(inputs))
		}
		for _, vec := range v {
			if err := e.checkDimension(vec); err != nil {
				return backoff.Permanent(err)
			}
		}
		vectors = v
		return nil
	}, e.notify("embed batch"))
	if err != nil {
		return err
	}

	for j, i := range idx {
		dst[i] = vectors[j]
	}
	e.metrics.RecordTiming(metrics.OpEmbedBatch, time.Since(start))
	return nil
}

func (e *Encoder) checkDimension(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("provider returned an empty vector")
	}
	if e.opts.Dimension > 0 && len(v) != e.opts.Dimension {
		return fmt.Errorf("dimension mismatch: got %d, want %d", len(v), e.opts.Dimension)
	}
	return nil
}

func (e *Encoder) notify(op string) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		e.log.Warn("embedding attempt failed, retrying", "op", op, "model", e.opts.Model, "wait", wait, "error", err)
	}
}
