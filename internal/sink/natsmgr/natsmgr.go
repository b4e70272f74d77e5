// Package natsmgr hands index operations to a downstream indexing worker
// over NATS request/reply.
package natsmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/syntrixbase/indexsync/internal/sink"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Defaults.
const (
	DefaultSubjectPrefix = "indexsync"
	DefaultTimeout       = 30 * time.Second
)

// Config configures the manager.
type Config struct {
	URL           string        `yaml:"url" toml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix" toml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout" toml:"timeout"`
}

// Requester is the part of *nats.Conn the manager needs.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Request is the payload sent to the worker.
type Request struct {
	ID    string `json:"id"`
	RunID string `json:"run_id,omitempty"`
}

// Reply is the worker's answer.
type Reply struct {
	OK       bool   `json:"ok"`
	NotFound bool   `json:"not_found,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Manager implements sink.Manager.
type Manager struct {
	nc      Requester
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	runID   string
}

var _ sink.Manager = (*Manager)(nil)

// Connect dials the NATS server in cfg.URL.
func Connect(cfg Config, runID string) (*Manager, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("indexsync"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	m := New(nc, cfg, runID)
	m.conn = nc
	return m, nil
}

// New creates a Manager over an existing connection.
func New(nc Requester, cfg Config, runID string) *Manager {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Manager{
		nc:      nc,
		prefix:  cfg.SubjectPrefix,
		timeout: cfg.Timeout,
		runID:   runID,
	}
}

// Update implements sink.Manager.
func (m *Manager) Update(ctx context.Context, id string) (sink.Result, error) {
	reply, err := m.request(ctx, model.Update(id))
	if err != nil {
		return sink.Result{}, err
	}
	return sink.Result{NotFound: reply.NotFound}, nil
}

// Delete implements sink.Manager.
func (m *Manager) Delete(ctx context.Context, id string) error {
	_, err := m.request(ctx, model.Delete(id))
	return err
}

// Close drains the connection if the Manager opened it.
func (m *Manager) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Drain()
}

// Subject returns the subject an action is sent on.
func (m *Manager) Subject(t model.ActionType) string {
	return m.prefix + "." + string(t)
}

func (m *Manager) request(ctx context.Context, a model.Action) (*Reply, error) {
	data, err := json.Marshal(Request{ID: a.ID, RunID: m.runID})
	if err != nil {
		return nil, &model.ApplyError{Action: a, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg, err := m.nc.RequestWithContext(ctx, m.Subject(a.Type), data)
	if err != nil {
		return nil, &model.ApplyError{Action: a, Err: err}
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, &model.ApplyError{Action: a, Err: fmt.Errorf("invalid reply: %w", err)}
	}
	if reply.NotFound {
		return &reply, nil
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = "worker rejected request"
		}
		return nil, &model.ApplyError{Action: a, Err: errors.New(msg)}
	}
	return &reply, nil
}
