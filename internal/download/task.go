package download

import "time"

// Status is the lifecycle state of a download task.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether the status is a final outcome.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is the externally visible state of one download. Snapshots handed to
// subscribers are copies; mutating them has no effect on the orchestrator.
type Task struct {
	ArtifactID  string
	Name        string
	Status      Status
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// FetchResult reports the outcome of transferring an artifact package.
type FetchResult struct {
	Success   bool
	LocalPath string
	SizeBytes int64
	Error     string
}

// PreviewResult reports the outcome of fetching an artifact preview.
type PreviewResult struct {
	Success bool
	DataURL string
	Error   string
}
