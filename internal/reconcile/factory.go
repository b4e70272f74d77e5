package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/syntrixbase/indexsync/internal/config"
	"github.com/syntrixbase/indexsync/internal/httpclient"
	"github.com/syntrixbase/indexsync/internal/metrics"
	"github.com/syntrixbase/indexsync/internal/sink"
	"github.com/syntrixbase/indexsync/internal/sink/gsearch"
	"github.com/syntrixbase/indexsync/internal/sink/natsmgr"
	"github.com/syntrixbase/indexsync/internal/source"
	"github.com/syntrixbase/indexsync/internal/source/mongo"
	"github.com/syntrixbase/indexsync/internal/source/resourceindex"
	"github.com/syntrixbase/indexsync/internal/source/solr"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Manager is a sink.Manager holding a connection that must be released.
type Manager interface {
	sink.Manager
	io.Closer
}

// Replaced in tests.
var connectNATS = func(cfg natsmgr.Config, runID string) (Manager, error) {
	m, err := natsmgr.Connect(cfg, runID)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// OpenSource builds the ordered source described by cfg, starting at start.
func OpenSource(ctx context.Context, cfg config.SourceConfig, start *model.Cursor, limit int, logger *slog.Logger, m *metrics.Metrics) (source.OrderedSource, error) {
	fetcher, err := newFetcher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return source.NewPager(fetcher, start, limit, source.WithLogger(logger), source.WithMetrics(m)), nil
}

func newFetcher(ctx context.Context, cfg config.SourceConfig) (source.PageFetcher, error) {
	switch cfg.Type {
	case config.SourceResourceIndex:
		client, err := httpclient.New(cfg.URL, cfg.ClientOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", resourceindex.Name, err)
		}
		return resourceindex.New(client, resourceindex.Config{
			ExcludedDisseminationTypes: cfg.ResourceIndex.ExcludedDisseminationTypes,
		}), nil

	case config.SourceSolr:
		client, err := httpclient.New(cfg.URL, cfg.ClientOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", solr.Name, err)
		}
		return solr.New(client, solr.Config{
			TimestampField: cfg.Solr.TimestampField,
			IDField:        cfg.Solr.IDField,
		}), nil

	case config.SourceMongo:
		f, err := mongo.Open(ctx, cfg.Mongo)
		if err != nil {
			return nil, &model.SourceUnavailableError{Source: mongo.Name, Err: err}
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: unknown source type %q", model.ErrInvalidConfig, cfg.Type)
}

// OpenManager builds the downstream manager described by cfg.
func OpenManager(cfg config.ManagerConfig, runID string) (Manager, error) {
	switch cfg.Type {
	case config.ManagerGSearch:
		client, err := httpclient.New(cfg.URL, cfg.ClientOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to create gsearch client: %w", err)
		}
		return gsearch.New(client), nil

	case config.ManagerNATS:
		return connectNATS(cfg.NATS, runID)
	}
	return nil, fmt.Errorf("%w: unknown manager type %q", model.ErrInvalidConfig, cfg.Type)
}
