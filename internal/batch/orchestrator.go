package batch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/promptvault/internal/dedup"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/parser"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
	"github.com/MikeSquared-Agency/promptvault/internal/recovery"
)

const msgCancelled = "import cancelled before file was processed"

// Orchestrator parses export files in bounded-concurrency chunks.
type Orchestrator struct {
	registry  *parser.Registry
	recoverer *recovery.Recoverer
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates an orchestrator. m may be nil.
func New(registry *parser.Registry, recoverer *recovery.Recoverer, m *metrics.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if recoverer == nil {
		recoverer = recovery.NewRecoverer(logger)
	}
	return &Orchestrator{
		registry:  registry,
		recoverer: recoverer,
		metrics:   m,
		logger:    logger,
	}
}

type fileOutcome struct {
	prompts    []prompt.ExtractedPrompt
	failure    *recovery.ClassifiedError
	retries    int
	dispatched bool
}

// ProcessBatch parses files chunk by chunk. Within a chunk up to
// MaxConcurrency files run at once and the chunk finishes before the next
// starts. Cancellation is checked between chunks: files not yet dispatched
// are reported as failed, files already running finish. The merged prompts
// are deduplicated once, in file order.
//
// The returned Result is always non-nil; the error is ctx.Err() when the
// batch was cut short.
func (o *Orchestrator) ProcessBatch(ctx context.Context, files []prompt.RawFile, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()
	run := &runState{opts: opts, total: len(files), start: start}
	outcomes := make([]fileOutcome, len(files))

	o.logger.Info("batch started",
		"files", len(files),
		"chunk_size", opts.ChunkSize,
		"max_concurrency", opts.MaxConcurrency,
		"platform", opts.Platform,
	)

	// In-flight files are never interrupted.
	fileCtx := context.WithoutCancel(ctx)

	cancelled := false
	for _, c := range partition(len(files), opts.ChunkSize) {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		g := new(errgroup.Group)
		g.SetLimit(opts.MaxConcurrency)
		for i := c.start; i < c.end; i++ {
			g.Go(func() error {
				out := o.processFile(fileCtx, files[i], opts, run)
				out.dispatched = true
				outcomes[i] = out
				return nil
			})
		}
		_ = g.Wait()
	}

	res := &Result{TotalProcessed: len(files)}
	var extracted []prompt.ExtractedPrompt
	for i, out := range outcomes {
		switch {
		case !out.dispatched:
			res.Failed = append(res.Failed, FileFailure{
				File:  files[i].Path,
				Error: recovery.New(recovery.Unknown, msgCancelled, recovery.Context{File: files[i].Path}),
			})
		case out.failure != nil:
			res.Failed = append(res.Failed, FileFailure{File: files[i].Path, Error: out.failure})
		default:
			res.SucceededFiles++
			extracted = append(extracted, out.prompts...)
		}
		res.Retries += out.retries
	}

	kept, dr := dedup.DedupeWithResult(extracted, opts.DedupThreshold)
	res.Successful = kept
	res.DuplicatesRemoved = dr.Deduped
	o.metrics.DuplicatesRemoved(dr.Deduped)

	elapsed := time.Since(start)
	res.DurationMs = elapsed.Milliseconds()
	if len(files) > 0 {
		res.SuccessRate = float64(res.SucceededFiles) / float64(len(files))
	}
	if secs := elapsed.Seconds(); secs > 0 {
		res.ThroughputPerSec = float64(len(files)) / secs
	}

	run.finish(len(kept), res.ThroughputPerSec)

	o.logger.Info("batch finished",
		"files", len(files),
		"succeeded", res.SucceededFiles,
		"failed", len(res.Failed),
		"prompts", len(kept),
		"duplicates_removed", res.DuplicatesRemoved,
		"retries", res.Retries,
		"duration_ms", res.DurationMs,
	)

	if cancelled {
		return res, ctx.Err()
	}
	return res, nil
}

func (o *Orchestrator) processFile(ctx context.Context, raw prompt.RawFile, opts Options, run *runState) (out fileOutcome) {
	fileStart := time.Now()
	source := "unknown"

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("parser panicked", "file", raw.Path, "panic", r)
			out.prompts = nil
			out.failure = recovery.Classify(fmt.Errorf("parser panicked: %v", r), recovery.Context{File: raw.Path})
		}
		outcome := "success"
		if out.failure != nil {
			outcome = "failed"
		}
		d := time.Since(fileStart)
		o.metrics.FileProcessed(outcome, source, d)
		run.fileDone(raw.Path, len(out.prompts), d)
	}()

	if ce := checkSize(raw, opts); ce != nil {
		out.failure = ce
		return out
	}

	attempt := func() ([]prompt.ExtractedPrompt, error) {
		p, err := o.registry.Resolve(opts.Platform, raw)
		if err != nil {
			return nil, err
		}
		source = string(p.Source())
		if size(raw) > opts.LargeFileThreshold {
			if s, ok := p.(parser.Splitter); ok {
				return o.parsePieces(p, s, raw)
			}
		}
		return p.Parse(raw)
	}

	c := recovery.Context{File: raw.Path}
	prompts, err := attempt()
	if err != nil {
		out.failure = recovery.Classify(err, c)
	}
	for out.failure != nil && opts.EnableRecovery && out.retries < opts.MaxRetries {
		typ := out.failure.Type
		retried := false
		rec := recovery.Recover(ctx, o.recoverer, out.failure, c, func(context.Context) ([]prompt.ExtractedPrompt, error) {
			retried = true
			out.retries++
			o.metrics.Retry(string(typ))
			o.logger.Warn("retrying file", "file", raw.Path, "type", typ, "attempt", out.retries+1)
			return attempt()
		})
		if !retried {
			o.logger.Info("not retrying file", "file", raw.Path, "type", typ)
			break
		}
		if rec.Success {
			prompts, out.failure = rec.Result, nil
			break
		}
		out.failure = rec.Err
	}
	if out.failure != nil {
		o.logger.Warn("file failed", "file", raw.Path, "type", out.failure.Type, "error", out.failure.Message)
		return out
	}

	out.prompts = prompts
	o.metrics.PromptsExtracted(len(prompts))
	return out
}

// parsePieces parses a large file one piece at a time. A piece that fails
// is logged and skipped; the file only fails when every piece does.
func (o *Orchestrator) parsePieces(p parser.Parser, s parser.Splitter, raw prompt.RawFile) ([]prompt.ExtractedPrompt, error) {
	pieces := s.Split(string(raw.Content))
	var (
		all      []prompt.ExtractedPrompt
		firstErr error
		failed   int
	)
	for i, piece := range pieces {
		got, err := p.Parse(prompt.NewRawFile(raw.Path, []byte(piece)))
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			o.logger.Warn("skipping unparseable piece", "file", raw.Path, "piece", i, "error", err)
			continue
		}
		all = append(all, got...)
	}
	if len(pieces) > 0 && failed == len(pieces) {
		return nil, firstErr
	}
	o.logger.Info("parsed large file piecewise", "file", raw.Path, "pieces", len(pieces), "failed_pieces", failed, "prompts", len(all))
	return all, nil
}

func checkSize(raw prompt.RawFile, opts Options) *recovery.ClassifiedError {
	c := recovery.Context{File: raw.Path}
	n := size(raw)
	if n == 0 || len(bytes.TrimSpace(raw.Content)) == 0 {
		return recovery.New(recovery.EmptyFile, "file is empty", c)
	}
	if n > opts.MaxFileSize {
		return recovery.New(recovery.LargeFile,
			fmt.Sprintf("file too large: %s exceeds the maximum of %s", humanBytes(n), humanBytes(opts.MaxFileSize)), c)
	}
	return nil
}

func size(raw prompt.RawFile) int64 {
	return max(raw.SizeBytes, int64(len(raw.Content)))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// runState aggregates per-file results into serialized progress updates.
type runState struct {
	mu           sync.Mutex
	opts         Options
	total        int
	start        time.Time
	processed    int
	promptsFound int
	fileTime     time.Duration
	peakMem      uint64
}

func (r *runState) fileDone(file string, prompts int, d time.Duration) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	r.promptsFound += prompts
	r.fileTime += d
	r.peakMem = max(r.peakMem, ms.HeapAlloc)

	if r.opts.Progress == nil {
		return
	}
	pct := 0
	if r.total > 0 {
		pct = min(r.processed*100/r.total, 99)
	}
	throughput := 0.0
	if secs := time.Since(r.start).Seconds(); secs > 0 {
		throughput = float64(r.processed) / secs
	}
	r.opts.Progress(Progress{
		Stage:               StageProcessing,
		FilesProcessed:      r.processed,
		TotalFiles:          r.total,
		PromptsFound:        r.promptsFound,
		Percent:             pct,
		ThroughputPerSec:    throughput,
		AvgProcessingTimeMs: float64(r.fileTime.Milliseconds()) / float64(r.processed),
		PeakMemoryBytes:     r.peakMem,
		CurrentFile:         file,
	})
}

func (r *runState) finish(prompts int, throughput float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.opts.Progress == nil {
		return
	}
	avg := 0.0
	if r.processed > 0 {
		avg = float64(r.fileTime.Milliseconds()) / float64(r.processed)
	}
	r.opts.Progress(Progress{
		Stage:               StageCompleted,
		FilesProcessed:      r.processed,
		TotalFiles:          r.total,
		PromptsFound:        prompts,
		Percent:             100,
		ThroughputPerSec:    throughput,
		AvgProcessingTimeMs: avg,
		PeakMemoryBytes:     r.peakMem,
	})
}
