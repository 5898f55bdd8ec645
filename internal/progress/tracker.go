package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// DefaultRetention is how long a finished session stays readable.
const DefaultRetention = 5 * time.Minute

var (
	ErrNotFound          = errors.New("session not found")
	ErrExists            = errors.New("session already exists")
	ErrTerminal          = errors.New("session already finished")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCountOverflow     = errors.New("processed count would exceed total")
)

// Sink receives every snapshot after it is applied. Implementations must
// not block; they are called with the tracker locked so that mirrored
// snapshots keep their production order.
type Sink interface {
	PublishProgress(s Session) error
}

// Tracker owns the state of every live import session. All mutations go
// through its methods.
type Tracker struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	retention time.Duration
	sink      Sink
	logger    *slog.Logger
	now       func() time.Time
	nextSubID int
}

type entry struct {
	s     Session
	subs  map[int]*subscriber
	timer *time.Timer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRetention overrides how long finished sessions are kept.
func WithRetention(d time.Duration) Option {
	return func(t *Tracker) { t.retention = d }
}

// WithSink mirrors every snapshot to s.
func WithSink(s Sink) Option {
	return func(t *Tracker) { t.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		sessions:  make(map[string]*entry),
		retention: DefaultRetention,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start creates a pending session with zero counters.
func (t *Tracker) Start(id, userID, platform string, total int) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.sessions[id]; ok {
		return Session{}, fmt.Errorf("start %s: %w", id, ErrExists)
	}
	now := t.now()
	e := &entry{
		s: Session{
			ID:         id,
			UserID:     userID,
			Platform:   platform,
			Status:     StatusPending,
			TotalCount: max(total, 0),
			Errors:     []string{},
			Warnings:   []string{},
			StartedAt:  now,
			UpdatedAt:  now,
		},
		subs: make(map[int]*subscriber),
	}
	t.sessions[id] = e
	t.publishLocked(e)
	return e.s.clone(), nil
}

// Update merges u into the session. Percent never moves backwards and stays
// below 100 until the session finishes; terminal statuses are only reachable
// through Complete and Fail.
func (t *Tracker) Update(id string, u Update) (Session, error) {
	return t.mutate(id, func(s *Session) error {
		if u.Status != nil {
			next := *u.Status
			if next.Terminal() || next.rank() < s.Status.rank() {
				return fmt.Errorf("%s -> %s: %w", s.Status, next, ErrInvalidTransition)
			}
			s.Status = next
		}
		if u.Stage != nil {
			s.Stage = *u.Stage
		}
		if u.TotalCount != nil {
			s.TotalCount = max(*u.TotalCount, s.ProcessedCount)
		}
		if u.ProgressPercent != nil {
			s.ProgressPercent = clampPercent(s.ProgressPercent, *u.ProgressPercent)
		}
		if u.Performance != nil {
			peak := max(s.Performance.PeakMemoryBytes, u.Performance.PeakMemoryBytes)
			s.Performance = *u.Performance
			s.Performance.PeakMemoryBytes = peak
		}
		return nil
	})
}

// IncrementProcessed counts one more processed item, as imported or skipped,
// and recomputes the percentage.
func (t *Tracker) IncrementProcessed(id string, imported bool) (Session, error) {
	return t.mutate(id, func(s *Session) error {
		if s.ProcessedCount >= s.TotalCount {
			return fmt.Errorf("%d/%d: %w", s.ProcessedCount, s.TotalCount, ErrCountOverflow)
		}
		s.ProcessedCount++
		if imported {
			s.ImportedCount++
		} else {
			s.SkippedCount++
		}
		pct := int(math.Round(float64(s.ProcessedCount) / float64(s.TotalCount) * 100))
		s.ProgressPercent = clampPercent(s.ProgressPercent, pct)
		if s.Status == StatusPending {
			s.Status = StatusProcessing
		}
		return nil
	})
}

// AddError appends to the error log without changing status.
func (t *Tracker) AddError(id, msg string) (Session, error) {
	return t.mutate(id, func(s *Session) error {
		s.Errors = append(s.Errors, msg)
		return nil
	})
}

// AddWarning appends a non-fatal notice, such as quota truncation.
func (t *Tracker) AddWarning(id, msg string) (Session, error) {
	return t.mutate(id, func(s *Session) error {
		s.Warnings = append(s.Warnings, msg)
		return nil
	})
}

// Complete marks the session completed at 100%.
func (t *Tracker) Complete(id string) (Session, error) {
	return t.finish(id, StatusCompleted, "")
}

// Fail marks the session failed at 100% and records msg.
func (t *Tracker) Fail(id, msg string) (Session, error) {
	return t.finish(id, StatusFailed, msg)
}

func (t *Tracker) finish(id string, status Status, msg string) (Session, error) {
	return t.mutate(id, func(s *Session) error {
		if msg != "" {
			s.Errors = append(s.Errors, msg)
		}
		now := t.now()
		s.Status = status
		s.ProgressPercent = 100
		s.CompletedAt = &now
		return nil
	})
}

// Get returns a copy of the session.
func (t *Tracker) Get(id string) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.sessions[id]
	if !ok {
		return Session{}, false
	}
	return e.s.clone(), true
}

// Len returns the number of sessions held, finished ones included.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Stream returns a channel that yields the current snapshot immediately and
// then every later snapshot of the session in order. The channel is closed
// after the terminal snapshot, or when ctx is done.
func (t *Tracker) Stream(ctx context.Context, id string) (<-chan Session, error) {
	t.mu.Lock()
	e, ok := t.sessions[id]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("stream %s: %w", id, ErrNotFound)
	}
	sub := newSubscriber()
	sub.push(e.s.clone())
	subID := -1
	if !e.s.Status.Terminal() {
		t.nextSubID++
		subID = t.nextSubID
		e.subs[subID] = sub
	}
	t.mu.Unlock()

	go func() {
		sub.pump(ctx)
		if subID >= 0 {
			t.unsubscribe(id, subID)
		}
	}()
	return sub.out, nil
}

// Close stops pending retention timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.sessions {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

func (t *Tracker) mutate(id string, fn func(*Session) error) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if e.s.Status.Terminal() {
		return e.s.clone(), fmt.Errorf("update %s: %w", id, ErrTerminal)
	}

	next := e.s.clone()
	if err := fn(&next); err != nil {
		return e.s.clone(), fmt.Errorf("update %s: %w", id, err)
	}
	next.UpdatedAt = t.now()
	e.s = next
	t.publishLocked(e)

	if e.s.Status.Terminal() {
		e.subs = nil
		e.timer = time.AfterFunc(t.retention, func() { t.remove(id) })
	}
	return e.s.clone(), nil
}

func (t *Tracker) publishLocked(e *entry) {
	for _, sub := range e.subs {
		sub.push(e.s.clone())
	}
	if t.sink != nil {
		if err := t.sink.PublishProgress(e.s.clone()); err != nil {
			t.logger.Debug("progress sink publish failed", "session", e.s.ID, "error", err)
		}
	}
}

func (t *Tracker) unsubscribe(id string, subID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.sessions[id]; ok && e.subs != nil {
		delete(e.subs, subID)
	}
}

func (t *Tracker) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.sessions[id]; ok && e.s.Status.Terminal() {
		delete(t.sessions, id)
		t.logger.Debug("session expired", "session", id)
	}
}

// clampPercent keeps percent monotonic and below 100 for running sessions.
func clampPercent(cur, next int) int {
	next = min(max(next, 0), 99)
	return max(cur, next)
}
