package queue

import (
	"strings"
	"time"

	"hillview/internal/capture"
)

// Status represents the lifecycle of a capture item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusUploading Status = "uploading"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusUploading,
	StatusCompleted,
	StatusFailed,
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
	switch normalized {
	case StatusPending, StatusUploading, StatusCompleted, StatusFailed:
		return normalized, true
	}
	return "", false
}

// Terminal reports whether the status ends a capture's queue lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Item is the unit of work in the capture queue, persisted in SQLite.
// The image payload is owned exclusively by the item until its upload
// completes, then released together with the row.
type Item struct {
	ID            string
	PlaceholderID string
	ImageData     []byte
	Location      capture.Location
	CapturedAt    int64 // capture wall-clock time, milliseconds since epoch
	Mode          capture.Mode
	Status        Status
	Attempts      int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	NextAttemptAt time.Time
}

// Counters are the lifetime queue statistics persisted alongside the
// items so they survive restarts. All values are monotonic.
type Counters struct {
	TotalCaptured  uint64
	TotalProcessed uint64
	TotalFailed    uint64
	SlowMode       uint64
	FastMode       uint64
	SingleMode     uint64
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Active    int
	Pending   int
	Uploading int
}

const (
	counterTotalCaptured  = "total_captured"
	counterTotalProcessed = "total_processed"
	counterTotalFailed    = "total_failed"
	counterModeSlow       = "mode_slow"
	counterModeFast       = "mode_fast"
	counterModeSingle     = "mode_single"
)

func modeCounter(mode capture.Mode) string {
	switch mode {
	case capture.ModeSlow:
		return counterModeSlow
	case capture.ModeFast:
		return counterModeFast
	default:
		return counterModeSingle
	}
}
