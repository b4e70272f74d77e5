// Package solr reads the derived record stream from a Solr core with a
// sorted /select scan.
package solr

import (
	"context"
	"fmt"
	"strings"

	"github.com/syntrixbase/indexsync/internal/httpclient"
	"github.com/syntrixbase/indexsync/internal/source"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Name identifies the source in logs, metrics and errors.
const Name = "Solr"

// Field defaults of a Fedora GSearch index.
const (
	DefaultTimestampField = "fgs_lastModifiedDate_dt"
	DefaultIDField        = "PID"
)

// Config names the fields holding the record key.
type Config struct {
	TimestampField string
	IDField        string
}

// Fetcher implements source.PageFetcher over <base>/select.
type Fetcher struct {
	client  *httpclient.Client
	tsField string
	idField string
}

// New creates a Fetcher. The client's base URL is the core URL, e.g.
// http://localhost:8080/solr.
func New(client *httpclient.Client, cfg Config) *Fetcher {
	f := &Fetcher{client: client, tsField: cfg.TimestampField, idField: cfg.IDField}
	if f.tsField == "" {
		f.tsField = DefaultTimestampField
	}
	if f.idField == "" {
		f.idField = DefaultIDField
	}
	return f
}

// Name implements source.PageFetcher.
func (f *Fetcher) Name() string {
	return Name
}

// SelectRequest is the form posted to /select.
type SelectRequest struct {
	Q       string   `schema:"q"`
	Sort    string   `schema:"sort"`
	Fl      string   `schema:"fl"`
	Rows    int      `schema:"rows"`
	Wt      string   `schema:"wt"`
	Filters []string `schema:"fq,omitempty"`
}

type selectResponse struct {
	Response struct {
		NumFound int              `json:"numFound"`
		Docs     []map[string]any `json:"docs"`
	} `json:"response"`
}

// Request builds the /select form for the page following after.
func (f *Fetcher) Request(after *model.Cursor, limit int) SelectRequest {
	req := SelectRequest{
		Q:    "*:*",
		Sort: fmt.Sprintf("%s asc,%s asc", f.tsField, f.idField),
		Fl:   f.idField + " " + f.tsField,
		Rows: limit,
		Wt:   "json",
	}
	if fq := f.cursorFilter(after); fq != "" {
		req.Filters = []string{fq}
	}
	return req
}

// FetchPage implements source.PageFetcher.
func (f *Fetcher) FetchPage(ctx context.Context, after *model.Cursor, limit int) ([]model.Record, error) {
	var body selectResponse
	if err := f.client.PostFormJSON(ctx, "/select", f.Request(after, limit), &body); err != nil {
		return nil, source.UnavailableError(Name, err)
	}
	if body.Response.NumFound == 0 {
		return nil, nil
	}

	records := make([]model.Record, 0, len(body.Response.Docs))
	for i, doc := range body.Response.Docs {
		id, ok := stringField(doc, f.idField)
		if !ok {
			return nil, &model.SourceUnavailableError{Source: Name, Err: fmt.Errorf("doc %d has no %s", i, f.idField)}
		}
		raw, ok := stringField(doc, f.tsField)
		if !ok {
			return nil, &model.SourceUnavailableError{Source: Name, Err: fmt.Errorf("doc %s has no %s", id, f.tsField)}
		}
		ts, err := model.ParseTimestamp(raw)
		if err != nil {
			return nil, &model.SourceUnavailableError{Source: Name, Err: fmt.Errorf("doc %s: %w", id, err)}
		}
		records = append(records, model.Record{ID: id, Timestamp: ts})
	}
	return records, nil
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	return f.client.Close()
}

var termEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (f *Fetcher) cursorFilter(after *model.Cursor) string {
	if after == nil {
		return ""
	}
	ts := model.FormatTimestamp(after.Timestamp)
	if !after.HasID() {
		return fmt.Sprintf(`%s:["%s" TO *]`, f.tsField, ts)
	}
	return fmt.Sprintf(`(%[1]s:"%[2]s" AND %[3]s:{"%[4]s" TO *]) OR %[1]s:{"%[2]s" TO *]`,
		f.tsField, ts, f.idField, termEscaper.Replace(after.ID))
}

// stringField reads a stored field, taking the first value of a
// multi-valued one.
func stringField(doc map[string]any, name string) (string, bool) {
	switch v := doc[name].(type) {
	case string:
		return v, true
	case []any:
		if len(v) > 0 {
			s, ok := v[0].(string)
			return s, ok
		}
	}
	return "", false
}
