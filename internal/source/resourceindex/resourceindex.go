// Package resourceindex reads the authority record stream from a Fedora
// Resource Index by paging through a SPARQL tuple query.
package resourceindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/syntrixbase/indexsync/internal/httpclient"
	"github.com/syntrixbase/indexsync/internal/source"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Name identifies the source in logs, metrics and errors.
const Name = "RI"

const uriPrefix = "info:fedora/"

// DefaultExcludedDisseminationTypes are the service objects that are never
// indexed.
var DefaultExcludedDisseminationTypes = []string{"DS-COMPOSITE-MODEL", "METHODMAP"}

// Config configures the query.
type Config struct {
	// ExcludedDisseminationTypes drops objects that disseminate any of
	// these types. Nil means DefaultExcludedDisseminationTypes.
	ExcludedDisseminationTypes []string
}

// Fetcher implements source.PageFetcher over the risearch endpoint.
type Fetcher struct {
	client   *httpclient.Client
	excluded []string
}

// New creates a Fetcher. The client's base URL is the risearch endpoint
// itself, e.g. http://localhost:8080/fedora/risearch.
func New(client *httpclient.Client, cfg Config) *Fetcher {
	excluded := cfg.ExcludedDisseminationTypes
	if excluded == nil {
		excluded = DefaultExcludedDisseminationTypes
	}
	return &Fetcher{client: client, excluded: excluded}
}

// Name implements source.PageFetcher.
func (f *Fetcher) Name() string {
	return Name
}

type tupleRequest struct {
	Type   string `schema:"type"`
	Format string `schema:"format"`
	Lang   string `schema:"lang"`
	Query  string `schema:"query"`
	Limit  int    `schema:"limit"`
}

type tupleResponse struct {
	Results []struct {
		Obj       string `json:"obj"`
		Timestamp string `json:"timestamp"`
	} `json:"results"`
}

// FetchPage implements source.PageFetcher.
func (f *Fetcher) FetchPage(ctx context.Context, after *model.Cursor, limit int) ([]model.Record, error) {
	req := tupleRequest{
		Type:   "tuples",
		Format: "json",
		Lang:   "sparql",
		Query:  RenderQuery(f.excluded, after),
		Limit:  limit,
	}

	var body tupleResponse
	if err := f.client.PostFormJSON(ctx, "", req, &body); err != nil {
		return nil, source.UnavailableError(Name, err)
	}

	records := make([]model.Record, 0, len(body.Results))
	for _, r := range body.Results {
		ts, err := model.ParseTimestamp(r.Timestamp)
		if err != nil {
			return nil, &model.SourceUnavailableError{Source: Name, Err: fmt.Errorf("object %s: %w", r.Obj, err)}
		}
		records = append(records, model.Record{
			ID:        strings.TrimPrefix(r.Obj, uriPrefix),
			Timestamp: ts,
		})
	}
	return records, nil
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	return f.client.Close()
}

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// RenderQuery builds the SPARQL query for the page following after.
func RenderQuery(excluded []string, after *model.Cursor) string {
	var b strings.Builder
	b.WriteString("PREFIX xsd: <http://www.w3.org/2001/XMLSchema#>\n")
	b.WriteString("SELECT ?obj ?timestamp\n")
	b.WriteString("FROM <#ri>\n")
	b.WriteString("WHERE {\n")
	b.WriteString("  ?obj <fedora-model:hasModel> <info:fedora/fedora-system:FedoraObject-3.0> ;\n")
	b.WriteString("       <fedora-model:state> <fedora-model:Active> ;\n")
	b.WriteString("       <fedora-view:lastModifiedDate> ?timestamp .\n")
	if len(excluded) > 0 {
		b.WriteString("  OPTIONAL {\n")
		b.WriteString("    ?obj <fedora-view:disseminates> ?exclude .\n")
		for i, t := range excluded {
			if i == 0 {
				b.WriteString("    {\n")
			} else {
				b.WriteString("    } UNION {\n")
			}
			fmt.Fprintf(&b, "      ?exclude <fedora-view:disseminationType> <info:fedora/*/%s> .\n", t)
		}
		b.WriteString("    }\n")
		b.WriteString("  }\n")
		b.WriteString("  FILTER(!bound(?exclude))\n")
	}
	if filter := cursorFilter(after); filter != "" {
		b.WriteString("  " + filter + "\n")
	}
	b.WriteString("}\n")
	b.WriteString("ORDER BY ?timestamp ?obj\n")
	return b.String()
}

func cursorFilter(after *model.Cursor) string {
	if after == nil {
		return ""
	}
	ts := model.FormatTimestamp(after.Timestamp)
	if !after.HasID() {
		return fmt.Sprintf(`FILTER(?timestamp >= "%s"^^xsd:dateTime)`, ts)
	}
	obj := literalEscaper.Replace(uriPrefix + after.ID)
	return fmt.Sprintf(`FILTER((?timestamp = "%[1]s"^^xsd:dateTime && xsd:string(?obj) > "%[2]s"^^xsd:string) || ?timestamp > "%[1]s"^^xsd:dateTime)`, ts, obj)
}
