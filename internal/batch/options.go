package batch

import (
	"github.com/MikeSquared-Agency/promptvault/internal/dedup"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
	"github.com/MikeSquared-Agency/promptvault/internal/recovery"
)

const (
	DefaultMaxConcurrency     = 3
	DefaultChunkSize          = 10
	DefaultMaxRetries         = 2
	DefaultLargeFileThreshold = 5 << 20
	DefaultMaxFileSize        = 50 << 20
)

// Options tunes one ProcessBatch run. Start from DefaultOptions; zero
// numeric fields fall back to their defaults.
type Options struct {
	MaxConcurrency int
	ChunkSize      int
	EnableRecovery bool
	MaxRetries     int

	// Platform forces a parser by name; empty or "auto" detects per file.
	Platform string

	// Files above LargeFileThreshold are parsed piecewise when their parser
	// can split them. Files above MaxFileSize are rejected.
	LargeFileThreshold int64
	MaxFileSize        int64

	DedupThreshold float64

	// Progress, when set, receives one update per finished file and a final
	// update once the batch completes. Calls are serialized.
	Progress func(Progress)
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:     DefaultMaxConcurrency,
		ChunkSize:          DefaultChunkSize,
		EnableRecovery:     true,
		MaxRetries:         DefaultMaxRetries,
		LargeFileThreshold: DefaultLargeFileThreshold,
		MaxFileSize:        DefaultMaxFileSize,
		DedupThreshold:     dedup.DefaultThreshold,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.LargeFileThreshold <= 0 {
		o.LargeFileThreshold = DefaultLargeFileThreshold
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.DedupThreshold <= 0 {
		o.DedupThreshold = dedup.DefaultThreshold
	}
	return o
}

// Stage names reported through Progress.
const (
	StageProcessing = "processing"
	StageCompleted  = "completed"
)

// Progress is a point-in-time view of a running batch.
type Progress struct {
	Stage               string  `json:"stage"`
	FilesProcessed      int     `json:"filesProcessed"`
	TotalFiles          int     `json:"totalFiles"`
	PromptsFound        int     `json:"promptsFound"`
	Percent             int     `json:"percent"`
	ThroughputPerSec    float64 `json:"throughputPerSec"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
	PeakMemoryBytes     uint64  `json:"peakMemoryBytes"`
	CurrentFile         string  `json:"currentFile,omitempty"`
}

// FileFailure is a file that could not be imported.
type FileFailure struct {
	File  string                    `json:"file"`
	Error *recovery.ClassifiedError `json:"error"`
}

// Result is the outcome of ProcessBatch. Every input file ends up counted
// in exactly one of SucceededFiles and Failed.
type Result struct {
	Successful        []prompt.ExtractedPrompt `json:"successful"`
	Failed            []FileFailure            `json:"failed"`
	TotalProcessed    int                      `json:"totalProcessed"`
	SucceededFiles    int                      `json:"succeededFiles"`
	Retries           int                      `json:"retries"`
	DuplicatesRemoved int                      `json:"duplicatesRemoved"`
	SuccessRate       float64                  `json:"successRate"`
	DurationMs        int64                    `json:"durationMs"`
	ThroughputPerSec  float64                  `json:"throughputPerSec"`
}

// AddFailures counts files that failed before reaching the batch, such as
// unreadable paths, and recomputes the success rate.
func (r *Result) AddFailures(failed ...FileFailure) {
	if len(failed) == 0 {
		return
	}
	r.Failed = append(failed, r.Failed...)
	r.TotalProcessed += len(failed)
	r.SuccessRate = float64(r.SucceededFiles) / float64(r.TotalProcessed)
}
