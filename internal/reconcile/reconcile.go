// Package reconcile runs one comparison of an authority index against a
// derived index and applies the corrective actions downstream.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syntrixbase/indexsync/internal/config"
	"github.com/syntrixbase/indexsync/internal/diff"
	"github.com/syntrixbase/indexsync/internal/metrics"
	"github.com/syntrixbase/indexsync/internal/sink"
	"github.com/syntrixbase/indexsync/internal/source/cel"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Report summarises a finished run.
type Report struct {
	RunID   string
	Diff    diff.Stats
	Sink    sink.Stats
	Updated bool
	Elapsed time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collected during the run.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithClock replaces time.Now, which anchors relative windows.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// Runner executes runs of one validated configuration.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Runner. cfg must have passed Validate.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run compares the two indexes once. The returned report is valid even
// when err is non-nil; Updated then tells whether anything was attempted
// before the failure.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: newRunID()}
	logger := r.logger.With("run_id", report.RunID)
	began := r.now()

	filter, err := cel.Compile(r.cfg.Filter)
	if err != nil {
		return report, fmt.Errorf("%w: filter: %v", model.ErrInvalidConfig, err)
	}

	start := r.cfg.Window.Start(began)
	logger.Info("starting comparison",
		"authority", r.cfg.Authority.Type,
		"derived", r.cfg.Derived.Type,
		"window", r.cfg.Window.String(),
		"start", start.String(),
		"keep_stale", r.cfg.KeepStale)

	authority, err := OpenSource(ctx, r.cfg.Authority, start, r.cfg.QueryLimit, logger, r.metrics)
	if err != nil {
		return report, fmt.Errorf("authority: %w", err)
	}
	derived, err := OpenSource(ctx, r.cfg.Derived, start, r.cfg.QueryLimit, logger, r.metrics)
	if err != nil {
		authority.Close()
		return report, fmt.Errorf("derived: %w", err)
	}

	d := diff.New(diff.Config{KeepStale: r.cfg.KeepStale}, filter.Wrap(authority), filter.Wrap(derived), logger)
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("failed to close sources", "error", err)
		}
	}()

	mgr, err := OpenManager(r.cfg.Manager, report.RunID)
	if err != nil {
		return report, fmt.Errorf("manager: %w", err)
	}
	defer mgr.Close()

	s := sink.New(sink.Config{
		KeepStale:             r.cfg.KeepStale,
		DeleteOnUpdateFailure: r.cfg.DeleteOnUpdateFailure,
	}, mgr, logger, sink.WithMetrics(r.metrics))

	report.Diff, err = diff.Run(ctx, d, s.Apply)
	report.Sink = s.Stats()
	report.Updated = s.Updated()
	report.Elapsed = r.now().Sub(began)

	r.metrics.ObserveRun(report.Updated, report.Elapsed)
	r.push(ctx, logger)

	if err != nil {
		logger.Error("comparison aborted", "error", err, "updated", report.Updated)
		return report, err
	}

	logger.Info("comparison finished",
		"updates", report.Diff.Updates,
		"deletes", report.Diff.Deletes,
		"in_sync", report.Diff.InSync,
		"skipped", report.Diff.Skipped,
		"failed", report.Sink.Failed(),
		"updated", report.Updated,
		"elapsed", report.Elapsed)
	return report, nil
}

// push sends the metrics even after a failed run; a canceled ctx gets a
// short detached deadline instead.
func (r *Runner) push(ctx context.Context, logger *slog.Logger) {
	if r.metrics == nil || r.cfg.Metrics.PushURL == "" {
		return
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if err := r.metrics.Push(ctx, r.cfg.Metrics.PushURL, r.cfg.Metrics.Job); err != nil {
		logger.Warn("failed to push metrics", "error", err)
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
