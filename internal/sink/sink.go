// Package sink applies corrective actions to the derived index through a
// downstream Manager and records whether any correction was attempted.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/indexsync/internal/metrics"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Result is the downstream answer to an update.
type Result struct {
	// NotFound is set when the downstream accepted the request but the
	// object no longer exists in the authority.
	NotFound bool
}

// Manager performs the downstream index operations.
type Manager interface {
	Update(ctx context.Context, id string) (Result, error)
	Delete(ctx context.Context, id string) error
}

// Config holds sink configuration.
type Config struct {
	// KeepStale suppresses every delete, including the ones that follow a
	// failed update.
	KeepStale bool
	// DeleteOnUpdateFailure deletes the derived entry after any failed
	// update, not only after an object-missing answer.
	DeleteOnUpdateFailure bool
}

// Stats counts applied operations.
type Stats struct {
	Updated      int
	UpdateFailed int
	NotFound     int
	Deleted      int
	DeleteFailed int
}

// Failed returns the number of operations that did not succeed.
func (s Stats) Failed() int {
	return s.UpdateFailed + s.DeleteFailed
}

// Option configures a Sink.
type Option func(*Sink)

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// Sink applies actions. It is not safe for concurrent use.
type Sink struct {
	cfg     Config
	mgr     Manager
	logger  *slog.Logger
	metrics *metrics.Metrics

	updated bool
	stats   Stats
}

// New creates a Sink.
func New(cfg Config, mgr Manager, logger *slog.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		cfg:    cfg,
		mgr:    mgr,
		logger: logger.With("component", "sink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply applies a. Downstream failures are logged and counted, never
// returned; the only error is cancellation of ctx.
func (s *Sink) Apply(ctx context.Context, a model.Action) error {
	switch a.Type {
	case model.ActionUpdate:
		s.ApplyUpdate(ctx, a.ID)
	case model.ActionDelete:
		s.ApplyDelete(ctx, a.ID)
	default:
		return fmt.Errorf("unknown action type %q", a.Type)
	}
	return ctx.Err()
}

// ApplyUpdate asks the downstream to reindex id.
func (s *Sink) ApplyUpdate(ctx context.Context, id string) {
	s.updated = true
	s.metrics.IncAction(string(model.ActionUpdate))
	s.logger.Debug("attempting to update", "id", id)

	res, err := s.mgr.Update(ctx, id)
	switch {
	case err == nil && !res.NotFound:
		s.stats.Updated++
		s.metrics.IncApply(string(model.ActionUpdate), metrics.ResultOK)
		s.logger.Info("updated", "id", id)
		return

	case err == nil:
		s.stats.NotFound++
		s.metrics.IncApply(string(model.ActionUpdate), metrics.ResultNotFound)
		s.logger.Info("failed to update, object not found upstream", "id", id)

	default:
		s.stats.UpdateFailed++
		s.metrics.IncApply(string(model.ActionUpdate), metrics.ResultFailed)
		s.logger.Warn("failed to update", "id", id, "error", asApplyError(model.Update(id), err))
		if ctx.Err() != nil || !s.cfg.DeleteOnUpdateFailure {
			return
		}
	}

	if s.cfg.KeepStale {
		return
	}
	s.ApplyDelete(ctx, id)
}

// ApplyDelete asks the downstream to drop id.
func (s *Sink) ApplyDelete(ctx context.Context, id string) {
	s.updated = true
	s.metrics.IncAction(string(model.ActionDelete))
	s.logger.Debug("attempting to delete", "id", id)

	if err := s.mgr.Delete(ctx, id); err != nil {
		s.stats.DeleteFailed++
		s.metrics.IncApply(string(model.ActionDelete), metrics.ResultFailed)
		s.logger.Warn("failed to delete", "id", id, "error", asApplyError(model.Delete(id), err))
		return
	}
	s.stats.Deleted++
	s.metrics.IncApply(string(model.ActionDelete), metrics.ResultOK)
	s.logger.Debug("deleted", "id", id)
}

// Updated reports whether any update or delete was attempted.
func (s *Sink) Updated() bool {
	return s.updated
}

// Stats returns the counts so far.
func (s *Sink) Stats() Stats {
	return s.stats
}

func asApplyError(a model.Action, err error) error {
	var applyErr *model.ApplyError
	if errors.As(err, &applyErr) {
		return err
	}
	return &model.ApplyError{Action: a, Err: err}
}
