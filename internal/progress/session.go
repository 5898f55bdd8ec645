package progress

import (
	"slices"
	"time"
)

// Status is the lifecycle state of an import session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	default:
		return 2
	}
}

// Performance holds throughput figures for a session.
type Performance struct {
	ThroughputPerSec    float64 `json:"throughputPerSec"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
	PeakMemoryBytes     uint64  `json:"peakMemoryBytes"`
}

// Session is a snapshot of one import run.
type Session struct {
	ID              string      `json:"id"`
	UserID          string      `json:"userId"`
	Platform        string      `json:"platform"`
	Status          Status      `json:"status"`
	Stage           string      `json:"stage,omitempty"`
	ProgressPercent int         `json:"progress"`
	TotalCount      int         `json:"totalCount"`
	ProcessedCount  int         `json:"processedCount"`
	ImportedCount   int         `json:"importedCount"`
	SkippedCount    int         `json:"skippedCount"`
	Errors          []string    `json:"errors"`
	Warnings        []string    `json:"warnings"`
	Performance     Performance `json:"performance"`
	StartedAt       time.Time   `json:"startedAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
}

func (s Session) clone() Session {
	s.Errors = slices.Clone(s.Errors)
	s.Warnings = slices.Clone(s.Warnings)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

// Update is a partial session change. Nil fields are left untouched.
type Update struct {
	Status          *Status
	Stage           *string
	TotalCount      *int
	ProgressPercent *int
	Performance     *Performance
}

// Ptr is a helper for building Updates.
func Ptr[T any](v T) *T { return &v }
