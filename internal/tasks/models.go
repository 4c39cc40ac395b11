package tasks

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a topic task.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSummarizing Status = "summarizing"
	StatusNotifying   Status = "notifying"
	StatusCompleted   Status = "completed"
	StatusUnchanged   Status = "unchanged"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusSummarizing,
	StatusNotifying,
	StatusCompleted,
	StatusUnchanged,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusSummarizing: {},
	StatusNotifying:   {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status ends the task's lifecycle.
func IsTerminalStatus(status Status) bool {
	switch status {
	case StatusCompleted, StatusUnchanged, StatusFailed:
		return true
	default:
		return false
	}
}

// Task represents a per-topic digest task persisted in SQLite.
type Task struct {
	ID            int64
	RunID         string
	Topic         string
	Recipients    []string
	Status        Status
	Attempts      int
	NextAttemptAt *time.Time
	EnqueuedAt    time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
	ErrorMessage  string
	Delivered     []string
}

// IsProcessing returns true when the task reflects an in-flight operation.
func (t Task) IsProcessing() bool {
	_, ok := processingStatuses[t.Status]
	return ok
}

// SetFailed dead-letters the task with the given reason.
func (t *Task) SetFailed(reason string) {
	t.Status = StatusFailed
	t.ErrorMessage = reason
	t.LastHeartbeat = nil
	t.NextAttemptAt = nil
}

// HealthSummary describes aggregated queue counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Unchanged  int
	Failed     int
}
