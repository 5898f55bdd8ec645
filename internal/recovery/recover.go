package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

const (
	defaultMemoryPause  = 1 * time.Second
	defaultNetworkPause = 3 * time.Second
)

// Outcome is the result of a recovery attempt.
type Outcome[T any] struct {
	Success bool
	Result  T
	Err     *ClassifiedError
}

// Recoverer applies the per-type recovery policy before retrying.
type Recoverer struct {
	MemoryPause  time.Duration
	NetworkPause time.Duration
	logger       *slog.Logger
}

// NewRecoverer returns a Recoverer with the default pauses.
func NewRecoverer(logger *slog.Logger) *Recoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recoverer{
		MemoryPause:  defaultMemoryPause,
		NetworkPause: defaultNetworkPause,
		logger:       logger,
	}
}

// Prepare runs the policy for ce and reports whether a retry should follow.
// memory_error hints the GC and pauses; network_error pauses longer;
// parse_error and non-recoverable types refuse.
func (r *Recoverer) Prepare(ctx context.Context, ce *ClassifiedError) error {
	if !ce.Recoverable {
		return fmt.Errorf("%s is not recoverable", ce.Type)
	}
	switch ce.Type {
	case ParseError:
		return fmt.Errorf("parse errors need a corrected file, not a retry")
	case MemoryError:
		runtime.GC()
		return r.pause(ctx, r.MemoryPause)
	case NetworkError:
		return r.pause(ctx, r.NetworkPause)
	}
	return nil
}

func (r *Recoverer) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recover classifies err and, when the policy allows, invokes retry once.
func Recover[T any](ctx context.Context, r *Recoverer, err error, c Context, retry func(context.Context) (T, error)) Outcome[T] {
	ce := Classify(err, c)
	if perr := r.Prepare(ctx, ce); perr != nil {
		r.logger.Debug("recovery refused", "type", ce.Type, "file", ce.File, "reason", perr)
		return Outcome[T]{Err: ce}
	}

	r.logger.Debug("retrying after recoverable error", "type", ce.Type, "file", ce.File)
	res, rerr := retry(ctx)
	if rerr != nil {
		return Outcome[T]{Err: Classify(rerr, c)}
	}
	return Outcome[T]{Success: true, Result: res}
}
