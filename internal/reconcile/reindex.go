package reconcile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/syntrixbase/indexsync/internal/sink"
)

// Reindex requests an update for every identifier in the first column of
// the CSV read from in. Values without a namespace separator are skipped.
// A failed update is logged and never followed by a delete.
func (r *Runner) Reindex(ctx context.Context, in io.Reader) (*Report, error) {
	report := &Report{RunID: newRunID()}
	logger := r.logger.With("run_id", report.RunID)
	began := r.now()

	mgr, err := OpenManager(r.cfg.Manager, report.RunID)
	if err != nil {
		return report, fmt.Errorf("manager: %w", err)
	}
	defer mgr.Close()

	s := sink.New(sink.Config{KeepStale: true}, mgr, logger, sink.WithMetrics(r.metrics))

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			report.Sink, report.Updated = s.Stats(), s.Updated()
			return report, fmt.Errorf("failed to read identifiers at row %d: %w", line, err)
		}
		if len(row) == 0 {
			continue
		}

		id := strings.TrimSpace(row[0])
		if !strings.Contains(id, ":") {
			logger.Debug("skipping invalid identifier", "row", line, "id", id)
			continue
		}
		s.ApplyUpdate(ctx, id)
		if err := ctx.Err(); err != nil {
			report.Sink, report.Updated = s.Stats(), s.Updated()
			return report, err
		}
	}

	report.Sink = s.Stats()
	report.Updated = s.Updated()
	report.Elapsed = r.now().Sub(began)
	r.metrics.ObserveRun(report.Updated, report.Elapsed)
	r.push(ctx, logger)

	logger.Info("reindex finished",
		"updated", report.Sink.Updated,
		"not_found", report.Sink.NotFound,
		"failed", report.Sink.Failed(),
		"elapsed", report.Elapsed)
	return report, nil
}
