package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/sitechat/internal/crawler"
	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/vectorindex"
)

// DefaultIngestBatchSize is how many chunks go to the encoder at once.
const DefaultIngestBatchSize = 50

// ErrJobActive means a job cannot be purged while it is still running.
var ErrJobActive = errors.New("job is still active")

// PageCrawler produces pages from a seed URL.
type PageCrawler interface {
	Crawl(ctx context.Context, seed string, maxPages, maxDepth int) ([]models.Page, error)
}

// FileSource produces pages from local files, skipping unreadable ones.
type FileSource interface {
	ExtractAll(ctx context.Context, paths []string) []models.Page
}

// ChunkSegmenter splits pages into chunks.
type ChunkSegmenter interface {
	SegmentPages(pages []models.Page, extra models.Metadata) []models.Chunk
}

// BatchEmbedder encodes texts, leaving nil entries for failures.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestOptions tunes the pipeline.
type IngestOptions struct {
	BatchSize  int
	BatchPause time.Duration
	Logger     *slog.Logger
}

// IngestService runs ingestion jobs: pages, chunks, vectors, index.
type IngestService struct {
	jobs      *JobManager
	crawler   PageCrawler
	files     FileSource
	segmenter ChunkSegmenter
	embedder  BatchEmbedder
	index     vectorindex.Index
	batchSize int
	pause     time.Duration
	log       *slog.Logger

	// ctx bounds background jobs; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewIngestService wires the pipeline stages.
func NewIngestService(jobs *JobManager, pc PageCrawler, fs FileSource, seg ChunkSegmenter, emb BatchEmbedder, idx vectorindex.Index, opts IngestOptions) *IngestService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIngestBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &IngestService{
		jobs:      jobs,
		crawler:   pc,
		files:     fs,
		segmenter: seg,
		embedder:  emb,
		index:     idx,
		batchSize: opts.BatchSize,
		pause:     opts.BatchPause,
		log:       opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start validates req, records a pending job and runs it in the background.
// It returns as soon as the job is stored.
func (s *IngestService) Start(ctx context.Context, req IngestRequest) (*models.IngestionJob, error) {
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	draft := models.IngestionJob{
		Files:    req.Files,
		ClientID: req.ClientID,
		MaxPages: req.MaxPages,
		MaxDepth: req.MaxDepth,
		Reset:    req.Reset,
	}
	if req.URL != "" {
		seed, err := crawler.NormalizeSeed(req.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: url: %w", ErrInvalidRequest, err)
		}
		draft.Type = models.JobTypeCrawl
		draft.URL = seed
	} else {
		draft.Type = models.JobTypeUpload
	}

	job, err := s.jobs.CreateJob(ctx, draft)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func(job models.IngestionJob) {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("ingestion goroutine panicked", "job_id", job.ID, "panic", r)
				if err := s.jobs.Fail(context.Background(), job.ID, fmt.Errorf("internal panic: %v", r)); err != nil {
					s.log.Warn("failed to record panic", "job_id", job.ID, "error", err)
				}
			}
		}()
		s.Run(s.ctx, job)
	}(*job)

	return job, nil
}

// Run executes a pending job to completion or failure. Failures are
// recorded on the job, never returned.
func (s *IngestService) Run(ctx context.Context, job models.IngestionJob) {
	if err := s.jobs.SetRunning(ctx, job.ID); err != nil {
		s.log.Error("cannot start job", "job_id", job.ID, "error", err)
		return
	}

	progress, err := s.run(ctx, job)
	// Bookkeeping must land even when ctx ended the run.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		if ferr := s.jobs.Fail(bg, job.ID, err); ferr != nil {
			s.log.Error("failed to record job failure", "job_id", job.ID, "error", ferr)
		}
		return
	}
	if cerr := s.jobs.Complete(bg, job.ID, progress); cerr != nil {
		s.log.Error("failed to record job completion", "job_id", job.ID, "error", cerr)
	}
}

func (s *IngestService) run(ctx context.Context, job models.IngestionJob) (models.JobProgress, error) {
	var p models.JobProgress

	if job.Reset {
		s.stage(ctx, job.ID, &p, "resetting", "clearing the index")
		if err := s.index.Reset(ctx); err != nil {
			return p, fmt.Errorf("reset index: %w", err)
		}
	}

	s.stage(ctx, job.ID, &p, "extracting", "collecting pages")
	pages, err := s.pages(ctx, job)
	if err != nil {
		return p, err
	}
	p.Pages = len(pages)
	if len(pages) == 0 {
		if job.Type == models.JobTypeCrawl {
			return p, fmt.Errorf("no pages could be crawled from %s", job.URL)
		}
		return p, fmt.Errorf("no text could be extracted from %d uploaded files", len(job.Files))
	}

	s.stage(ctx, job.ID, &p, "segmenting", fmt.Sprintf("chunking %d pages", len(pages)))
	chunks := s.segmenter.SegmentPages(pages, models.Metadata{ClientID: job.ClientID, JobID: job.ID})
	p.Chunks = len(chunks)
	if len(chunks) == 0 {
		return p, fmt.Errorf("no chunks were created from %d pages; content may be empty", len(pages))
	}

	s.stage(ctx, job.ID, &p, "embedding", fmt.Sprintf("embedding %d chunks", len(chunks)))
	vectors, err := s.embed(ctx, job.ID, chunks, &p)
	if err != nil {
		return p, err
	}
	if p.Embedded == 0 {
		return p, fmt.Errorf("none of the %d chunks could be embedded", len(chunks))
	}

	s.stage(ctx, job.ID, &p, "storing", fmt.Sprintf("storing %d documents", p.Embedded))
	docs := documents(job.ClientID, uuid.NewString(), chunks, vectors)
	if err := s.index.Add(ctx, docs); err != nil {
		return p, fmt.Errorf("store documents: %w", err)
	}
	p.Stored = len(docs)
	p.Message = fmt.Sprintf("stored %d documents from %d pages", p.Stored, p.Pages)
	return p, nil
}

func (s *IngestService) pages(ctx context.Context, job models.IngestionJob) ([]models.Page, error) {
	switch job.Type {
	case models.JobTypeCrawl:
		pages, err := s.crawler.Crawl(ctx, job.URL, job.MaxPages, job.MaxDepth)
		if err != nil {
			return nil, fmt.Errorf("crawl %s: %w", job.URL, err)
		}
		return pages, nil
	case models.JobTypeUpload:
		return s.files.ExtractAll(ctx, job.Files), nil
	default:
		return nil, fmt.Errorf("unknown job type %q", job.Type)
	}
}

// embed encodes chunks in fixed-size batches, pausing between batches.
func (s *IngestService) embed(ctx context.Context, jobID string, chunks []models.Chunk, p *models.JobProgress) ([][]float32, error) {
	limit := rate.Inf
	if s.pause > 0 {
		limit = rate.Every(s.pause)
	}
	limiter := rate.NewLimiter(limit, 1)

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}

		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks: %w", err)
		}
		for _, v := range batch {
			if v == nil {
				p.Failed++
			} else {
				p.Embedded++
			}
		}
		vectors = append(vectors, batch...)

		p.Message = fmt.Sprintf("embedded %d/%d chunks", end, len(chunks))
		s.report(ctx, jobID, *p)
	}
	return vectors, nil
}

// documents pairs chunks with vectors under batch-scoped IDs, dropping
// chunks that could not be embedded.
func documents(clientID, batchID string, chunks []models.Chunk, vectors [][]float32) []models.Document {
	docs := make([]models.Document, 0, len(chunks))
	for i, c := range chunks {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		docs = append(docs, models.Document{
			ID:       documentID(clientID, batchID, i),
			Text:     c.Text,
			Vector:   vectors[i],
			Metadata: c.Metadata,
		})
	}
	return docs
}

func documentID(clientID, batchID string, ordinal int) string {
	if clientID != "" {
		return fmt.Sprintf("%s_%s_%d", clientID, batchID, ordinal)
	}
	return fmt.Sprintf("%s_%d", batchID, ordinal)
}

func (s *IngestService) stage(ctx context.Context, jobID string, p *models.JobProgress, stage, msg string) {
	p.Stage = stage
	p.Message = msg
	s.log.Info("ingestion stage", "job_id", jobID, "stage", stage, "message", msg)
	s.report(ctx, jobID, *p)
}

func (s *IngestService) report(ctx context.Context, jobID string, p models.JobProgress) {
	if err := s.jobs.UpdateProgress(context.WithoutCancel(ctx), jobID, p); err != nil {
		s.log.Warn("failed to persist job progress", "job_id", jobID, "error", err)
	}
}

// Purge removes a finished job's documents from the index and deletes the job.
func (s *IngestService) Purge(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobActive, jobID, job.Status)
	}
	if err := s.index.DeleteWhere(ctx, vectorindex.Filter{models.KeyJobID: jobID}); err != nil {
		return nil, fmt.Errorf("purge documents of %s: %w", jobID, err)
	}
	if err := s.jobs.DeleteJob(ctx, jobID); err != nil {
		return nil, err
	}
	s.log.Info("job purged", "job_id", jobID)
	return job, nil
}

// Wait polls a job until it reaches a terminal status.
func (s *IngestService) Wait(ctx context.Context, jobID string, poll time.Duration) (*models.IngestionJob, error) {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Jobs exposes the job manager.
func (s *IngestService) Jobs() *JobManager {
	return s.jobs
}

// Close cancels running jobs and waits for their goroutines.
func (s *IngestService) Close() {
	s.cancel()
	s.wg.Wait()
}
