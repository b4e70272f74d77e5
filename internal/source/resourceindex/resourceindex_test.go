package resourceindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/schema"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/indexsync/internal/httpclient"
	"github.com/syntrixbase/indexsync/internal/source"
	"github.com/syntrixbase/indexsync/pkg/model"
)

func TestRenderQuery_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	bound := time.Date(2014, 7, 12, 20, 18, 12, 0, time.UTC)
	last := time.Date(2014, 7, 12, 20, 18, 12, 23000000, time.UTC)

	g.Assert(t, "query_full_scan", []byte(RenderQuery(DefaultExcludedDisseminationTypes, nil)))
	g.Assert(t, "query_lower_bound", []byte(RenderQuery(DefaultExcludedDisseminationTypes, &model.Cursor{Timestamp: bound})))
	g.Assert(t, "query_after_cursor", []byte(RenderQuery(DefaultExcludedDisseminationTypes, &model.Cursor{Timestamp: last, ID: "demo:7"})))
	g.Assert(t, "query_no_exclusions", []byte(RenderQuery(nil, nil)))
}

func TestRenderQuery_KeepsMillisecondDigits(t *testing.T) {
	ts, err := model.ParseTimestamp("2014-07-12T20:18:12.020Z")
	require.NoError(t, err)

	q := RenderQuery(nil, &model.Cursor{Timestamp: ts, ID: "demo:1"})
	assert.Contains(t, q, `?timestamp = "2014-07-12T20:18:12.020Z"^^xsd:dateTime`)
	assert.Contains(t, q, `?timestamp > "2014-07-12T20:18:12.020Z"^^xsd:dateTime`)
	assert.NotContains(t, q, `.02Z`)
}

func TestRenderQuery_EscapesID(t *testing.T) {
	q := RenderQuery(nil, &model.Cursor{Timestamp: time.Unix(0, 0), ID: `odd"id\x`})
	assert.Contains(t, q, `"info:fedora/odd\"id\\x"^^xsd:string`)
}

var (
	afterPattern = regexp.MustCompile(`\?timestamp = "([^"]+)"\^\^xsd:dateTime && xsd:string\(\?obj\) > "info:fedora/([^"]+)"`)
	boundPattern = regexp.MustCompile(`\?timestamp >= "([^"]+)"`)
)

type riRequest struct {
	Type   string `schema:"type"`
	Format string `schema:"format"`
	Lang   string `schema:"lang"`
	Query  string `schema:"query"`
	Limit  int    `schema:"limit"`
}

// fakeRI answers tuple queries from an ordered record list, honouring the
// cursor filter and limit rendered into the query.
type fakeRI struct {
	t       *testing.T
	records []model.Record

	mu       sync.Mutex
	requests []riRequest
	failAt   int
}

func (f *fakeRI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	var req riRequest
	require.NoError(f.t, schema.NewDecoder().Decode(&req, r.PostForm))

	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	if f.failAt > 0 && n >= f.failAt {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("triplestore exploded"))
		return
	}

	var cursor *model.Cursor
	if m := afterPattern.FindStringSubmatch(req.Query); m != nil {
		ts, err := model.ParseTimestamp(m[1])
		require.NoError(f.t, err)
		cursor = &model.Cursor{Timestamp: ts, ID: m[2]}
	} else if m := boundPattern.FindStringSubmatch(req.Query); m != nil {
		ts, err := model.ParseTimestamp(m[1])
		require.NoError(f.t, err)
		cursor = &model.Cursor{Timestamp: ts}
	}

	type row struct {
		Obj       string `json:"obj"`
		Timestamp string `json:"timestamp"`
	}
	results := []row{}
	for _, rec := range f.records {
		if len(results) == req.Limit {
			break
		}
		if cursor.Admits(rec) {
			results = append(results, row{Obj: "info:fedora/" + rec.ID, Timestamp: model.FormatTimestamp(rec.Timestamp)})
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func newFetcher(t *testing.T, handler http.Handler, auth httpclient.AuthConfig) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := httpclient.New(srv.URL, httpclient.Options{Auth: auth})
	require.NoError(t, err)
	return New(client, Config{})
}

func sharedTimestamp(n int, ts time.Time) []model.Record {
	records := make([]model.Record, n)
	for i := range records {
		records[i] = model.Record{ID: fmt.Sprintf("demo:%03d", i), Timestamp: ts}
	}
	return records
}

func TestFetcher_PagesAcrossSharedTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 500000000, time.UTC)
	records := append(sharedTimestamp(25, ts), model.Record{ID: "demo:zzz", Timestamp: ts.Add(time.Second)})
	fake := &fakeRI{t: t, records: records}

	f := newFetcher(t, fake, httpclient.AuthConfig{})
	got, err := source.Drain(context.Background(), source.NewPager(f, nil, 10))
	require.NoError(t, err)
	assert.Equal(t, records, got)

	// two full pages, a partial one, then the empty page
	require.Len(t, fake.requests, 4)
	for _, req := range fake.requests {
		assert.Equal(t, "tuples", req.Type)
		assert.Equal(t, "json", req.Format)
		assert.Equal(t, "sparql", req.Lang)
		assert.Equal(t, 10, req.Limit)
	}
	assert.NotContains(t, fake.requests[0].Query, "?timestamp >")
	assert.Contains(t, fake.requests[1].Query, `"info:fedora/demo:009"^^xsd:string`)
	assert.Contains(t, fake.requests[2].Query, `"info:fedora/demo:019"^^xsd:string`)
	assert.Contains(t, fake.requests[3].Query, `"info:fedora/demo:zzz"^^xsd:string`)
}

func TestFetcher_LowerBound(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []model.Record{
		{ID: "a:1", Timestamp: base.Add(-time.Second)},
		{ID: "a:2", Timestamp: base},
		{ID: "a:3", Timestamp: base.Add(time.Second)},
	}
	fake := &fakeRI{t: t, records: records}

	f := newFetcher(t, fake, httpclient.AuthConfig{})
	got, err := source.Drain(context.Background(), source.NewPager(f, &model.Cursor{Timestamp: base}, 10))
	require.NoError(t, err)
	assert.Equal(t, records[1:], got)
	assert.Contains(t, fake.requests[0].Query, `FILTER(?timestamp >= "2024-03-01T00:00:00.000Z"^^xsd:dateTime)`)
}

func TestFetcher_Empty(t *testing.T) {
	f := newFetcher(t, &fakeRI{t: t}, httpclient.AuthConfig{})
	records, err := f.FetchPage(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetcher_HTTPFailure(t *testing.T) {
	fake := &fakeRI{t: t, records: sharedTimestamp(15, time.Unix(1700000000, 0).UTC()), failAt: 2}

	f := newFetcher(t, fake, httpclient.AuthConfig{})
	got, err := source.Drain(context.Background(), source.NewPager(f, nil, 10))
	require.Error(t, err)
	assert.Len(t, got, 10)
	assert.ErrorIs(t, err, model.ErrSourceUnavailable)

	var srcErr *model.SourceUnavailableError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, Name, srcErr.Source)
	assert.Equal(t, http.StatusInternalServerError, srcErr.StatusCode)
	assert.Equal(t, "triplestore exploded", srcErr.Body)
	assert.Equal(t, "RI query failed with HTTP code 500. Body: triplestore exploded", err.Error())
	assert.Len(t, fake.requests, 2)
}

func TestFetcher_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>`},
		{"bad timestamp", `{"results":[{"obj":"info:fedora/a:1","timestamp":"yesterday"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}), httpclient.AuthConfig{})
			_, err := f.FetchPage(context.Background(), nil, 10)
			assert.ErrorIs(t, err, model.ErrSourceUnavailable)
		})
	}
}

func TestFetcher_ParsesResults(t *testing.T) {
	f := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "fedoraAdmin" || pass != "islandora" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"obj":"info:fedora/islandora:root","timestamp":"2014-07-12T20:18:12.023Z"},
			{"obj":"info:fedora/islandora:1","timestamp":"2014-07-12T20:18:13"}
		]}`))
	}), httpclient.AuthConfig{Type: httpclient.AuthBasic, Username: "fedoraAdmin", Password: "islandora"})

	records, err := f.FetchPage(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []model.Record{
		{ID: "islandora:root", Timestamp: time.Date(2014, 7, 12, 20, 18, 12, 23000000, time.UTC)},
		{ID: "islandora:1", Timestamp: time.Date(2014, 7, 12, 20, 18, 13, 0, time.UTC)},
	}, records)
	assert.Equal(t, Name, f.Name())
	assert.NoError(t, f.Close())
}

func TestNew_ExcludedTypes(t *testing.T) {
	client, err := httpclient.New("http://localhost:8080/fedora/risearch", httpclient.Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultExcludedDisseminationTypes, New(client, Config{}).excluded)
	assert.Empty(t, New(client, Config{ExcludedDisseminationTypes: []string{}}).excluded)
	assert.Equal(t, []string{"FOO"}, New(client, Config{ExcludedDisseminationTypes: []string{"FOO"}}).excluded)
}
