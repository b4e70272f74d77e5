package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/syntrixbase/indexsync/internal/metrics"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// DefaultPageLimit is the number of records fetched per page.
const DefaultPageLimit = 10000

// ErrStalledCursor is returned when a page does not move past the cursor.
var ErrStalledCursor = errors.New("page did not advance past cursor")

// Option configures a Pager.
type Option func(*Pager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pager) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pager) {
		p.metrics = m
	}
}

// Pager turns a PageFetcher into an OrderedSource.
//
// The cursor is the only state kept between pages. It starts at the caller's
// lower bound and is moved to the last record of each consumed page.
type Pager struct {
	fetcher PageFetcher
	limit   int
	logger  *slog.Logger
	metrics *metrics.Metrics

	cursor *model.Cursor
	page   []model.Record
	pos    int
	cur    model.Record
	prev   *model.Record
	err    error
	done   bool
	pages  int
}

// NewPager creates a Pager starting at start (nil for no lower bound).
func NewPager(fetcher PageFetcher, start *model.Cursor, limit int, opts ...Option) *Pager {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	p := &Pager{
		fetcher: fetcher,
		limit:   limit,
		cursor:  start,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "source", "source", fetcher.Name())
	return p
}

// Next implements OrderedSource.
func (p *Pager) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}

	for p.pos >= len(p.page) {
		if err := p.fetch(ctx); err != nil {
			p.err = err
			p.page = nil
			return false
		}
		if p.done {
			return false
		}
	}

	p.cur = p.page[p.pos]
	p.pos++
	p.checkOrder()
	return true
}

// Record implements OrderedSource.
func (p *Pager) Record() model.Record {
	return p.cur
}

// Err implements OrderedSource.
func (p *Pager) Err() error {
	return p.err
}

// Close implements OrderedSource.
func (p *Pager) Close() error {
	p.done = true
	p.page = nil
	if c, ok := p.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Cursor returns the position the next page will be requested after.
func (p *Pager) Cursor() *model.Cursor {
	return p.cursor
}

func (p *Pager) fetch(ctx context.Context) error {
	if len(p.page) > 0 {
		last := p.page[len(p.page)-1]
		if p.cursor.HasID() && !p.cursor.Admits(last) {
			return &model.SourceUnavailableError{
				Source: p.fetcher.Name(),
				Err:    fmt.Errorf("%w: cursor %s, last record %s", ErrStalledCursor, p.cursor, last),
			}
		}
		p.cursor = last.Cursor()
	}

	start := time.Now()
	page, err := p.fetcher.FetchPage(ctx, p.cursor, p.limit)
	if err != nil {
		if ctx.Err() != nil && model.IsCanceled(err) {
			return model.WrapError(err)
		}
		var sue *model.SourceUnavailableError
		if errors.As(err, &sue) {
			return err
		}
		return &model.SourceUnavailableError{Source: p.fetcher.Name(), Err: err}
	}

	p.pages++
	p.metrics.ObservePage(p.fetcher.Name(), len(page), time.Since(start))
	p.logger.Debug("fetched page",
		"page", p.pages,
		"after", p.cursor.String(),
		"records", len(page),
		"elapsed", time.Since(start))

	if len(page) == 0 {
		p.done = true
		return nil
	}
	p.page = page
	p.pos = 0
	return nil
}

func (p *Pager) checkOrder() {
	if p.prev != nil && model.Compare(*p.prev, p.cur) >= 0 {
		p.metrics.IncOutOfOrder(p.fetcher.Name())
		p.logger.Warn("record out of order",
			"previous", p.prev.String(),
			"record", p.cur.String())
	}
	rec := p.cur
	p.prev = &rec
}
