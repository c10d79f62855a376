package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Artifact is a downloaded mod package recorded in the local catalog.
type Artifact struct {
	ID           string
	Name         string
	Author       string
	Tags         []string
	SizeBytes    int64
	LocalPath    string
	DownloadedAt time.Time
}

// HistoryStatus is the terminal outcome recorded for a download attempt.
type HistoryStatus string

const (
	HistoryCompleted HistoryStatus = "completed"
	HistoryFailed    HistoryStatus = "failed"
)

// HistoryEntry is one row of the append-only download history log.
type HistoryEntry struct {
	ID         string
	ArtifactID string
	Name       string
	Status     HistoryStatus
	Error      string
	CreatedAt  time.Time
}

// EventOp distinguishes catalog change notifications.
type EventOp string

const (
	OpPut    EventOp = "put"
	OpDelete EventOp = "delete"
)

// Event describes a catalog mutation delivered to subscribers.
type Event struct {
	Op         EventOp
	ArtifactID string
}
