// Package importer runs an import session end to end: parse and dedupe the
// uploaded files, drop prompts the tenant already has, apply the quota,
// categorize, persist, and report progress throughout.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/promptvault/internal/batch"
	"github.com/MikeSquared-Agency/promptvault/internal/dedup"
	"github.com/MikeSquared-Agency/promptvault/internal/hermes"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/progress"
	"github.com/MikeSquared-Agency/promptvault/internal/prompt"
	"github.com/MikeSquared-Agency/promptvault/internal/quota"
	"github.com/MikeSquared-Agency/promptvault/internal/store"
)

// Stages reported on the session while it runs.
const (
	StageParsing      = "parsing"
	StageFiltering    = "filtering"
	StageCategorizing = "categorizing"
	StageSaving       = "saving"
)

// parseShare is the part of the progress bar covered by the parsing phase.
const parseShare = 50

const notifyTimeout = 10 * time.Second

// Categorizer enriches prompts. It must not fail.
type Categorizer interface {
	Categorize(ctx context.Context, prompts []prompt.ExtractedPrompt) []prompt.CategorizedPrompt
}

// Notifier announces finished sessions, e.g. to Slack.
type Notifier interface {
	PostImportSummary(ctx context.Context, s progress.Session) (string, error)
}

// EventPublisher mirrors finished sessions to the message bus.
type EventPublisher interface {
	PublishImportFinished(ev hermes.ImportFinished) error
}

// Request is one import.
type Request struct {
	// SessionID is generated when empty.
	SessionID string
	UserID    string
	Platform  string
	Files     []prompt.RawFile
	Options   batch.Options
}

// Importer wires the pipeline stages together.
type Importer struct {
	tracker     *progress.Tracker
	batch       *batch.Orchestrator
	store       store.PromptStore
	quota       quota.Service
	categorizer Categorizer
	notifier    Notifier
	events      EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger

	duplicateCheckLimit int
	wg                  sync.WaitGroup
}

// Option configures an Importer.
type Option func(*Importer)

func WithNotifier(n Notifier) Option        { return func(im *Importer) { im.notifier = n } }
func WithEvents(p EventPublisher) Option    { return func(im *Importer) { im.events = p } }
func WithMetrics(m *metrics.Metrics) Option { return func(im *Importer) { im.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(im *Importer) { im.logger = l } }
func WithDuplicateCheckLimit(n int) Option  { return func(im *Importer) { im.duplicateCheckLimit = n } }

func New(tracker *progress.Tracker, orch *batch.Orchestrator, st store.PromptStore, q quota.Service, c Categorizer, opts ...Option) *Importer {
	im := &Importer{
		tracker:             tracker,
		batch:               orch,
		store:               st,
		quota:               q,
		categorizer:         c,
		logger:              slog.Default(),
		duplicateCheckLimit: store.DefaultDuplicateCheckLimit,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run imports synchronously and returns the terminal session. The error is
// non-nil only when the session could not be started; pipeline failures
// are reported through the session's failed status.
func (im *Importer) Run(ctx context.Context, req Request) (progress.Session, error) {
	req, err := im.begin(req)
	if err != nil {
		return progress.Session{}, err
	}
	return im.run(ctx, req), nil
}

// Start begins an import in the background and returns its session id once
// the session exists. The import outlives ctx's cancellation.
func (im *Importer) Start(ctx context.Context, req Request) (string, error) {
	req, err := im.begin(req)
	if err != nil {
		return "", err
	}
	bg := context.WithoutCancel(ctx)
	im.wg.Add(1)
	go func() {
		defer im.wg.Done()
		im.run(bg, req)
	}()
	return req.SessionID, nil
}

// Wait blocks until every background import has finished.
func (im *Importer) Wait() {
	im.wg.Wait()
}

func (im *Importer) begin(req Request) (Request, error) {
	if req.UserID == "" {
		return req, fmt.Errorf("start import: user id is required")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.Platform == "" {
		req.Platform = "auto"
	}
	if _, err := im.tracker.Start(req.SessionID, req.UserID, req.Platform, len(req.Files)); err != nil {
		return req, fmt.Errorf("start import: %w", err)
	}
	im.metrics.SessionStarted()
	im.logger.Info("import started",
		"session_id", req.SessionID,
		"user_id", req.UserID,
		"platform", req.Platform,
		"files", len(req.Files),
	)
	return req, nil
}

func (im *Importer) run(ctx context.Context, req Request) progress.Session {
	id := req.SessionID
	log := im.logger.With("session_id", id)

	fail := func(msg string) progress.Session {
		log.Warn("import failed", "reason", msg)
		s, err := im.tracker.Fail(id, msg)
		if err != nil {
			log.Error("fail session", "error", err)
		}
		return im.finished(ctx, s)
	}

	// Parse.
	im.setStage(id, StageParsing)
	opts := req.Options
	opts.Platform = req.Platform
	if opts.DedupThreshold <= 0 {
		opts.DedupThreshold = dedup.DefaultThreshold
	}
	callerProgress := opts.Progress
	opts.Progress = func(p batch.Progress) {
		pct := p.Percent * parseShare / 100
		if _, err := im.tracker.Update(id, progress.Update{
			Status:          progress.Ptr(progress.StatusProcessing),
			ProgressPercent: &pct,
			Performance: &progress.Performance{
				ThroughputPerSec:    p.ThroughputPerSec,
				AvgProcessingTimeMs: p.AvgProcessingTimeMs,
				PeakMemoryBytes:     p.PeakMemoryBytes,
			},
		}); err != nil {
			log.Debug("progress update dropped", "error", err)
		}
		if callerProgress != nil {
			callerProgress(p)
		}
	}

	res, err := im.batch.ProcessBatch(ctx, req.Files, opts)
	for _, f := range res.Failed {
		msg := f.Error.Error()
		if f.Error.Suggestion != "" {
			msg += ". " + f.Error.Suggestion
		}
		im.addError(id, msg)
	}
	if err != nil {
		return fail(fmt.Sprintf("import cancelled: %v", err))
	}
	if len(req.Files) > 0 && res.SucceededFiles == 0 {
		return fail(fmt.Sprintf("all %d files failed to import", len(req.Files)))
	}
	if res.DuplicatesRemoved > 0 {
		im.addWarning(id, fmt.Sprintf("%d duplicate prompts removed", res.DuplicatesRemoved))
	}

	// Drop what the tenant already has.
	im.setStage(id, StageFiltering)
	prompts := res.Successful
	existing, err := im.store.FindExistingForDuplicateCheck(ctx, req.UserID, im.duplicateCheckLimit)
	if err != nil {
		return fail(fmt.Sprintf("prompt store unavailable: %v", err))
	}
	prompts, known := dedup.FilterExisting(prompts, store.Contents(existing), opts.DedupThreshold)
	if known > 0 {
		im.addWarning(id, fmt.Sprintf("%d prompts already in your library were skipped", known))
	}

	if len(prompts) == 0 {
		im.addWarning(id, "no new prompts found")
		return im.complete(ctx, id, log)
	}
	total := len(prompts)
	if _, err := im.tracker.Update(id, progress.Update{TotalCount: &total}); err != nil {
		log.Error("set total", "error", err)
	}

	// Quota.
	remaining, err := im.quota.RemainingSlots(ctx, req.UserID)
	if err != nil {
		return fail(fmt.Sprintf("quota check failed: %v", err))
	}
	if remaining == 0 {
		return fail(quota.ExhaustedMessage(ctx, im.quota, req.UserID))
	}
	kept, dropped := quota.Apply(prompts, remaining)
	if dropped > 0 {
		log.Warn("quota truncated import", "dropped", dropped, "remaining", remaining)
		im.addWarning(id, quota.TruncatedWarning(dropped, remaining))
		for range dropped {
			im.increment(id, false)
		}
	}

	// Categorize and persist.
	im.setStage(id, StageCategorizing)
	categorized := im.categorizer.Categorize(ctx, kept)

	im.setStage(id, StageSaving)
	for _, c := range categorized {
		if _, err := im.store.InsertPrompt(ctx, req.UserID, c, c.SuggestedFolder, promptMetadata(id, c)); err != nil {
			log.Error("insert prompt", "title", c.Title, "error", err)
			im.metrics.PromptStored("failed")
			im.addError(id, fmt.Sprintf("could not save %q: %v", c.Title, err))
			im.increment(id, false)
			continue
		}
		im.metrics.PromptStored("imported")
		im.increment(id, true)
	}

	return im.complete(ctx, id, log)
}

func (im *Importer) complete(ctx context.Context, id string, log *slog.Logger) progress.Session {
	s, err := im.tracker.Complete(id)
	if err != nil {
		log.Error("complete session", "error", err)
	}
	return im.finished(ctx, s)
}

func (im *Importer) finished(ctx context.Context, s progress.Session) progress.Session {
	im.metrics.SessionFinished(string(s.Status))
	im.logger.Info("import finished",
		"session_id", s.ID,
		"status", s.Status,
		"imported", s.ImportedCount,
		"skipped", s.SkippedCount,
		"errors", len(s.Errors),
		"warnings", len(s.Warnings),
	)

	if im.events != nil {
		ev := hermes.ImportFinished{
			SessionID: s.ID,
			UserID:    s.UserID,
			Platform:  s.Platform,
			Status:    string(s.Status),
			Imported:  s.ImportedCount,
			Skipped:   s.SkippedCount,
			Processed: s.ProcessedCount,
			Errors:    s.Errors,
			Warnings:  s.Warnings,
		}
		if err := im.events.PublishImportFinished(ev); err != nil {
			im.logger.Warn("publish import finished", "session_id", s.ID, "error", err)
		}
	}
	if im.notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if _, err := im.notifier.PostImportSummary(nctx, s); err != nil {
			im.logger.Warn("post import summary", "session_id", s.ID, "error", err)
		}
	}
	return s
}

func (im *Importer) setStage(id, stage string) {
	if _, err := im.tracker.Update(id, progress.Update{Stage: &stage}); err != nil {
		im.logger.Debug("stage update dropped", "session_id", id, "error", err)
	}
}

func (im *Importer) increment(id string, imported bool) {
	if _, err := im.tracker.IncrementProcessed(id, imported); err != nil {
		im.logger.Error("increment processed", "session_id", id, "error", err)
	}
}

func (im *Importer) addError(id, msg string) {
	if _, err := im.tracker.AddError(id, msg); err != nil {
		im.logger.Error("add session error", "session_id", id, "error", err)
	}
}

func (im *Importer) addWarning(id, msg string) {
	if _, err := im.tracker.AddWarning(id, msg); err != nil {
		im.logger.Error("add session warning", "session_id", id, "error", err)
	}
}

func promptMetadata(sessionID string, c prompt.CategorizedPrompt) map[string]any {
	m := map[string]any{
		"sessionId":         sessionID,
		"source":            c.Metadata.Source,
		"conversationId":    c.Metadata.ConversationID,
		"conversationTitle": c.Metadata.ConversationTitle,
		"suggestedName":     c.SuggestedName,
		"heuristic":         c.Heuristic,
	}
	if c.Metadata.TimestampMillis > 0 {
		m["timestamp"] = c.Metadata.TimestampMillis
	}
	if c.Metadata.Model != "" {
		m["model"] = c.Metadata.Model
	}
	if len(c.Metadata.CodeBlocks) > 0 {
		m["codeBlocks"] = c.Metadata.CodeBlocks
	}
	if len(c.Metadata.FileReferences) > 0 {
		m["fileReferences"] = c.Metadata.FileReferences
	}
	if c.Metadata.Task != nil {
		m["task"] = c.Metadata.Task
	}
	return m
}
