// Package service runs ingestion jobs and answers questions over the index.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/sitechat/internal/models"
	"github.com/raphaelgruber/sitechat/internal/store"
)

const jobsCollection = "jobs"

var (
	// ErrJobNotFound means no job has the requested ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition means a status change skips or leaves a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

var transitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending: {models.JobStatusRunning},
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusFailed},
}

// JobManager persists ingestion jobs and enforces their state machine.
type JobManager struct {
	store store.Store
	log   *slog.Logger

	// mu serialises read-modify-write cycles on job records.
	mu sync.Mutex
}

// NewJobManager creates a job manager over st.
func NewJobManager(st store.Store, log *slog.Logger) *JobManager {
	if log == nil {
		log = slog.Default()
	}
	return &JobManager{store: st, log: log}
}

// CreateJob stores a new pending job built from draft. ID, status and
// timestamps in draft are ignored.
func (m *JobManager) CreateJob(ctx context.Context, draft models.IngestionJob) (*models.IngestionJob, error) {
	job := draft
	job.ID = uuid.NewString()
	job.Status = models.JobStatusPending
	job.CreatedAt = time.Now().UTC()
	job.StartedAt = nil
	job.CompletedAt = nil
	job.Error = ""
	job.Progress = models.JobProgress{Stage: "queued"}

	if err := m.store.Upsert(ctx, jobsCollection, job.ID, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	m.log.Info("job created", "job_id", job.ID, "type", job.Type, "url", job.URL, "files", len(job.Files), "client_id", job.ClientID)
	return &job, nil
}

// GetJob loads a job by ID.
func (m *JobManager) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	rec, err := m.store.FindOne(ctx, jobsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var job models.IngestionJob
	if err := rec.Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns up to limit jobs, most recent first. A limit of zero or
// less returns every job.
func (m *JobManager) ListJobs(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	recs, err := m.store.Find(ctx, jobsCollection, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]models.IngestionJob, 0, len(recs))
	for _, rec := range recs {
		var job models.IngestionJob
		if err := rec.Decode(&job); err != nil {
			m.log.Warn("skipping unreadable job record", "job_id", rec.ID, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// SetRunning moves a pending job to running.
func (m *JobManager) SetRunning(ctx context.Context, id string) error {
	return m.update(ctx, id, func(job *models.IngestionJob) error {
		if err := transition(job, models.JobStatusRunning); err != nil {
			return err
		}
		now := time.Now().UTC()
		job.StartedAt = &now
		job.Progress.Stage = "starting"
		return nil
	})
}

// UpdateProgress records progress on a running job.
func (m *JobManager) UpdateProgress(ctx context.Context, id string, progress models.JobProgress) error {
	return m.update(ctx, id, func(job *models.IngestionJob) error {
		if job.Status != models.JobStatusRunning {
			return fmt.Errorf("%w: progress on %s job", ErrInvalidTransition, job.Status)
		}
		job.Progress = progress
		return nil
	})
}

// Complete marks a running job completed with its final progress.
func (m *JobManager) Complete(ctx context.Context, id string, progress models.JobProgress) error {
	err := m.update(ctx, id, func(job *models.IngestionJob) error {
		if err := transition(job, models.JobStatusCompleted); err != nil {
			return err
		}
		now := time.Now().UTC()
		job.CompletedAt = &now
		progress.Stage = "completed"
		job.Progress = progress
		return nil
	})
	if err == nil {
		m.log.Info("job completed", "job_id", id, "pages", progress.Pages, "chunks", progress.Chunks, "stored", progress.Stored, "failed", progress.Failed)
	}
	return err
}

// Fail marks a running job failed with a readable reason.
func (m *JobManager) Fail(ctx context.Context, id string, reason error) error {
	err := m.update(ctx, id, func(job *models.IngestionJob) error {
		if err := transition(job, models.JobStatusFailed); err != nil {
			return err
		}
		now := time.Now().UTC()
		job.CompletedAt = &now
		job.Error = reason.Error()
		job.Progress.Stage = "failed"
		return nil
	})
	if err == nil {
		m.log.Error("job failed", "job_id", id, "error", reason)
	}
	return err
}

// ErrInterrupted is recorded on jobs that were still active when the
// previous process stopped.
var ErrInterrupted = errors.New("interrupted by restart")

// FailInterruptedJobs marks every pending or running job failed. Jobs run
// in-process, so at startup no such job has a worker left. Returns the
// number of jobs marked.
func (m *JobManager) FailInterruptedJobs(ctx context.Context) (int, error) {
	var ids []string
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusRunning} {
		recs, err := m.store.Find(ctx, jobsCollection, store.Filter{"status": string(status)}, 0)
		if err != nil {
			return 0, fmt.Errorf("find %s jobs: %w", status, err)
		}
		for _, rec := range recs {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		m.log.Info("no interrupted jobs")
		return 0, nil
	}

	failed := 0
	for _, id := range ids {
		// Pending jobs never started, so this bypasses the transition table.
		err := m.update(ctx, id, func(job *models.IngestionJob) error {
			if job.Status.Terminal() {
				return nil
			}
			now := time.Now().UTC()
			job.Status = models.JobStatusFailed
			job.CompletedAt = &now
			job.Error = ErrInterrupted.Error()
			job.Progress.Stage = "failed"
			return nil
		})
		if err != nil {
			m.log.Warn("failed to mark interrupted job", "job_id", id, "error", err)
			continue
		}
		failed++
	}
	m.log.Warn("marked interrupted jobs failed", "count", failed)
	return failed, nil
}

// DeleteJob removes a job record.
func (m *JobManager) DeleteJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.store.DeleteOne(ctx, jobsCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return err
}

func (m *JobManager) update(ctx context.Context, id string, fn func(*models.IngestionJob) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(job); err != nil {
		return fmt.Errorf("job %s: %w", id, err)
	}
	if err := m.store.Upsert(ctx, jobsCollection, id, job); err != nil {
		return fmt.Errorf("save job %s: %w", id, err)
	}
	return nil
}

func transition(job *models.IngestionJob, to models.JobStatus) error {
	if !slices.Contains(transitions[job.Status], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
	}
	job.Status = to
	return nil
}

// Count returns the number of stored jobs.
func (m *JobManager) Count(ctx context.Context) (int, error) {
	n, err := m.store.Count(ctx, jobsCollection, nil)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return n, nil
}
