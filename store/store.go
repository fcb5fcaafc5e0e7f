package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("not found")

// JobState is the lifecycle state of a processing job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Done reports whether the state is terminal.
func (s JobState) Done() bool {
	return s == JobCompleted || s == JobFailed
}

// JobStats are the accumulated per-file counters of a job.
type JobStats struct {
	Renamed           int `json:"renamed"`
	Skipped           int `json:"skipped"`
	Errors            int `json:"errors"`
	PostersDownloaded int `json:"posters_downloaded"`
}

// Job is one background folder run.
type Job struct {
	ID              string     `json:"id"`
	FolderPath      string     `json:"folderPath"`
	ShowID          int        `json:"showId"`
	ShowName        string     `json:"showName"`
	State           JobState   `json:"state"`
	ConfirmRenames  bool       `json:"confirmRenames"`
	DownloadPosters bool       `json:"downloadPosters"`
	WriteTags       bool       `json:"writeTags"`
	MatchStrategy   string     `json:"matchStrategy"`
	Error           string     `json:"error,omitempty"`
	Stats           JobStats   `json:"stats"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// Rename is an audit record of one file rename.
type Rename struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"jobId"`
	Season    int       `json:"season"`
	Episode   int       `json:"episode"`
	OldPath   string    `json:"oldPath"`
	NewPath   string    `json:"newPath"`
	RenamedAt time.Time `json:"renamedAt"`
}

// Store is the backend-agnostic interface for all persistence operations.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, j Job) (Job, error)
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
	JobIDsWithPrefix(ctx context.Context, prefix string, limit int) ([]string, error)
	SetJobState(ctx context.Context, id string, state JobState, errMsg string) error
	AddJobStats(ctx context.Context, id string, stats JobStats) error
	ListUnfinishedJobs(ctx context.Context) ([]Job, error)
	FailUnfinishedJob(ctx context.Context, id, errMsg string) (bool, error)

	// Rename history
	RecordRename(ctx context.Context, r Rename) error
	ListRenames(ctx context.Context, jobID string) ([]Rename, error)

	Close() error
}
