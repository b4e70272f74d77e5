// Package source provides ordered, lazily paginated record streams.
//
// Every source yields records ascending by (timestamp, id). Producers only
// implement PageFetcher; the pagination loop and cursor handling live in
// Pager so that all producers share one definition of "the next page".
package source

import (
	"context"

	"github.com/syntrixbase/indexsync/internal/httpclient"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// OrderedSource is a single forward traversal over records.
type OrderedSource interface {
	// Next advances to the next record. Returns false at end of stream or on error.
	Next(ctx context.Context) bool
	// Record returns the current record.
	Record() model.Record
	// Err returns the error that stopped the traversal, or nil at a clean end.
	Err() error
	// Close releases the source resources.
	Close() error
}

// PageFetcher fetches one page of records from an upstream store.
type PageFetcher interface {
	// Name identifies the upstream in logs, metrics and errors.
	Name() string
	// FetchPage returns up to limit records ordered by (timestamp, id).
	//
	// With a nil cursor there is no lower bound. With a cursor that has no ID
	// the page starts at records whose timestamp is >= the cursor timestamp.
	// Otherwise the page holds only records strictly after the cursor:
	//
	//	(timestamp == after.Timestamp AND id > after.ID) OR timestamp > after.Timestamp
	//
	// A non-success upstream response must be returned as an error, never as
	// an empty page.
	FetchPage(ctx context.Context, after *model.Cursor, limit int) ([]model.Record, error)
}

// UnavailableError converts a failed page request of the named source into
// a *model.SourceUnavailableError, keeping the status and body of an HTTP
// error response.
func UnavailableError(name string, err error) error {
	if httpErr, ok := httpclient.GetHTTPError(err); ok {
		return &model.SourceUnavailableError{Source: name, StatusCode: httpErr.StatusCode, Body: httpErr.Body}
	}
	return &model.SourceUnavailableError{Source: name, Err: err}
}
