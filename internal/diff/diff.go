// Package diff merges two ordered record streams and yields the actions
// that bring the derived side in line with the authority.
//
// Both sources must be ordered by (timestamp, id). The merge holds one
// head per side and never buffers ahead, so memory use is independent of
// the size of either stream.
package diff

import (
	"context"
	"errors"
	"log/slog"

	"github.com/syntrixbase/indexsync/internal/source"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Config holds merge configuration.
type Config struct {
	// KeepStale leaves derived entries that have no authority counterpart
	// alone instead of emitting a delete for them.
	KeepStale bool
}

// Stats counts merge decisions.
type Stats struct {
	Updates int
	Deletes int
	InSync  int
	Skipped int
}

// Actions returns the number of actions emitted.
func (s Stats) Actions() int {
	return s.Updates + s.Deletes
}

type head struct {
	rec     model.Record
	ok      bool
	pending bool // advance before the next comparison
}

// Differ is a pull iterator over the corrective actions of one merge.
type Differ struct {
	cfg       Config
	authority source.OrderedSource
	derived   source.OrderedSource
	logger    *slog.Logger

	a, d    head
	started bool
	done    bool
	action  model.Action
	err     error
	stats   Stats
}

// New creates a Differ over the two sources. The Differ takes ownership
// of both; Close closes them.
func New(cfg Config, authority, derived source.OrderedSource, logger *slog.Logger) *Differ {
	if logger == nil {
		logger = slog.Default()
	}
	return &Differ{
		cfg:       cfg,
		authority: authority,
		derived:   derived,
		logger:    logger.With("component", "diff"),
	}
}

// Next advances to the next action. It returns false when both sources
// are exhausted or one of them failed; check Err to tell them apart.
func (d *Differ) Next(ctx context.Context) bool {
	if d.done {
		return false
	}
	if err := ctx.Err(); err != nil {
		return d.fail(err)
	}

	if !d.started {
		d.started = true
		d.a.pending = true
		d.d.pending = true
	}

	for {
		if !d.step(ctx, d.authority, &d.a) || !d.step(ctx, d.derived, &d.d) {
			return false
		}

		switch {
		case d.a.ok && d.d.ok:
			switch c := model.Compare(d.a.rec, d.d.rec); {
			case c < 0:
				d.logger.Debug("authority entry older or missing from derived, update", "id", d.a.rec.ID)
				return d.emit(model.Update(d.a.rec.ID), &d.a)
			case c > 0:
				d.logger.Debug("derived entry older or unknown to authority, update", "id", d.d.rec.ID)
				return d.emit(model.Update(d.d.rec.ID), &d.d)
			default:
				d.stats.InSync++
				d.a.pending = true
				d.d.pending = true
			}

		case d.a.ok:
			d.logger.Debug("authority leftover, update", "id", d.a.rec.ID)
			return d.emit(model.Update(d.a.rec.ID), &d.a)

		case d.d.ok:
			if d.cfg.KeepStale {
				d.logger.Debug("derived leftover, keeping", "id", d.d.rec.ID)
				d.stats.Skipped++
				d.d.pending = true
				continue
			}
			d.logger.Debug("derived leftover, delete", "id", d.d.rec.ID)
			return d.emit(model.Delete(d.d.rec.ID), &d.d)

		default:
			d.done = true
			return false
		}
	}
}

// Action returns the current action.
func (d *Differ) Action() model.Action {
	return d.action
}

// Err returns the error that ended the merge, or nil.
func (d *Differ) Err() error {
	return d.err
}

// Stats returns the counts so far.
func (d *Differ) Stats() Stats {
	return d.stats
}

// Close closes both sources.
func (d *Differ) Close() error {
	d.done = true
	return errors.Join(d.authority.Close(), d.derived.Close())
}

func (d *Differ) step(ctx context.Context, src source.OrderedSource, h *head) bool {
	if !h.pending {
		return true
	}
	h.pending = false
	if src.Next(ctx) {
		h.rec, h.ok = src.Record(), true
		return true
	}
	h.ok = false
	if err := src.Err(); err != nil {
		return d.fail(err)
	}
	return true
}

func (d *Differ) emit(a model.Action, from *head) bool {
	switch a.Type {
	case model.ActionUpdate:
		d.stats.Updates++
	case model.ActionDelete:
		d.stats.Deletes++
	}
	d.action = a
	from.pending = true
	return true
}

func (d *Differ) fail(err error) bool {
	d.err = err
	d.done = true
	return false
}

// Run drives d to completion, passing each action to apply. It stops at
// the first error from either the merge or apply.
func Run(ctx context.Context, d *Differ, apply func(context.Context, model.Action) error) (Stats, error) {
	for d.Next(ctx) {
		if err := apply(ctx, d.Action()); err != nil {
			d.done = true
			return d.Stats(), err
		}
	}
	return d.Stats(), d.Err()
}
