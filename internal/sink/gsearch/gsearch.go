// Package gsearch drives a Fedora GSearch REST endpoint as the downstream
// index manager.
package gsearch

import (
	"context"
	"strings"

	"github.com/syntrixbase/indexsync/internal/httpclient"
	"github.com/syntrixbase/indexsync/internal/sink"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// NotFoundMarker is the text GSearch embeds in a 200 response when the
// object is gone from Fedora.
const NotFoundMarker = "Object not found in low-level storage"

type updateIndexRequest struct {
	Operation string `schema:"operation"`
	Action    string `schema:"action"`
	Value     string `schema:"value"`
}

// Manager implements sink.Manager.
type Manager struct {
	client *httpclient.Client
}

var _ sink.Manager = (*Manager)(nil)

// New creates a Manager. The client's base URL is the REST endpoint, e.g.
// http://localhost:8080/fedoragsearch/rest.
func New(client *httpclient.Client) *Manager {
	return &Manager{client: client}
}

// Update implements sink.Manager.
func (m *Manager) Update(ctx context.Context, id string) (sink.Result, error) {
	resp, err := m.post(ctx, model.Update(id), "fromPid")
	if err != nil {
		return sink.Result{}, err
	}
	return sink.Result{NotFound: strings.Contains(string(resp.Body), NotFoundMarker)}, nil
}

// Delete implements sink.Manager.
func (m *Manager) Delete(ctx context.Context, id string) error {
	_, err := m.post(ctx, model.Delete(id), "deletePid")
	return err
}

// Close releases idle connections.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) post(ctx context.Context, a model.Action, action string) (*httpclient.Response, error) {
	resp, err := m.client.PostForm(ctx, "", updateIndexRequest{
		Operation: "updateIndex",
		Action:    action,
		Value:     a.ID,
	})
	if err != nil {
		return nil, &model.ApplyError{Action: a, Err: err}
	}
	if !resp.OK() {
		return nil, &model.ApplyError{Action: a, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
