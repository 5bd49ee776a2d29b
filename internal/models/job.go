package models

import "time"

// JobType says where an ingestion job gets its pages from.
type JobType string

const (
	JobTypeCrawl  JobType = "crawl"
	JobTypeUpload JobType = "upload"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobProgress describes how far a running job got.
type JobProgress struct {
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message,omitempty"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
	Embedded int    `json:"embedded"`
	Failed   int    `json:"failed"`
	Stored   int    `json:"stored"`
}

// IngestionJob is the persisted record of one ingestion run.
type IngestionJob struct {
	ID          string      `json:"job_id"`
	Type        JobType     `json:"type"`
	Status      JobStatus   `json:"status"`
	URL         string      `json:"url,omitempty"`
	Files       []string    `json:"files,omitempty"`
	ClientID    string      `json:"client_id,omitempty"`
	MaxPages    int         `json:"max_pages,omitempty"`
	MaxDepth    int         `json:"max_depth,omitempty"`
	Reset       bool        `json:"reset,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Error       string      `json:"error,omitempty"`
	Progress    JobProgress `json:"progress"`
}
