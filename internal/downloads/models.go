package downloads

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a download.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// InterruptedMessage is recorded on rows found mid-transfer after a
// daemon restart.
const InterruptedMessage = "interrupted by restart"

var allStatuses = []Status{
	StatusQueued,
	StatusDownloading,
	StatusPaused,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// terminalStatuses are final states. Paused is deliberately absent: a
// paused download still owns its partial file.
var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// ParseStatus validates a user-supplied status string.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := statusSet[status]; !ok {
		return "", fmt.Errorf("unknown download status %q", value)
	}
	return status, nil
}

// Statuses lists every status in display order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsTerminal reports whether a status is final.
func (s Status) IsTerminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// Request describes a download before it enters the queue. DisplayName
// and Size are optional hints from the source (an import provider, an
// upstream index entry); the transfer itself remains authoritative for
// both.
type Request struct {
	URL         string
	DisplayName string
	Size        int64
}

// Item is one download owned by the queue.
type Item struct {
	ID              string
	URL             string
	Source          string
	Filename        string
	TargetPath      string
	Status          Status
	BytesReceived   int64
	TotalBytes      int64
	ErrorMessage    string
	ResumeRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Stats summarizes the download queue.
type Stats struct {
	ByStatus       map[Status]int `json:"by_status"`
	Total          int            `json:"total"`
	CompletedBytes int64          `json:"completed_bytes"`
}
