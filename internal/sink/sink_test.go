package sink

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/indexsync/internal/metrics"
	"github.com/syntrixbase/indexsync/pkg/model"
)

type MockManager struct {
	mock.Mock
}

func (m *MockManager) Update(ctx context.Context, id string) (Result, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Result), args.Error(1)
}

func (m *MockManager) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newTestSink(cfg Config, mgr Manager) (*Sink, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(cfg, mgr, logger), &buf
}

func TestSink_InitiallyNotUpdated(t *testing.T) {
	s, _ := newTestSink(Config{}, &MockManager{})
	assert.False(t, s.Updated())
	assert.Equal(t, Stats{}, s.Stats())
}

func TestSink_UpdateSucceeds(t *testing.T) {
	mgr := &MockManager{}
	mgr.On("Update", mock.Anything, "a:1").Return(Result{}, nil).Once()

	s, logs := newTestSink(Config{}, mgr)
	require.NoError(t, s.Apply(context.Background(), model.Update("a:1")))

	assert.True(t, s.Updated())
	assert.Equal(t, Stats{Updated: 1}, s.Stats())
	assert.Contains(t, logs.String(), "level=INFO msg=updated component=sink id=a:1")
	mgr.AssertExpectations(t)
}

func TestSink_UpdateNotFound(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		wantDelete bool
	}{
		{"deletes by default", Config{}, true},
		{"keep stale", Config{KeepStale: true}, false},
		{"keep stale wins over delete on failure", Config{KeepStale: true, DeleteOnUpdateFailure: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := &MockManager{}
			mgr.On("Update", mock.Anything, "a:2").Return(Result{NotFound: true}, nil).Once()
			if tt.wantDelete {
				mgr.On("Delete", mock.Anything, "a:2").Return(nil).Once()
			}

			s, _ := newTestSink(tt.cfg, mgr)
			s.ApplyUpdate(context.Background(), "a:2")

			assert.True(t, s.Updated())
			want := Stats{NotFound: 1}
			if tt.wantDelete {
				want.Deleted = 1
			}
			assert.Equal(t, want, s.Stats())
			mgr.AssertExpectations(t)
			if !tt.wantDelete {
				mgr.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestSink_UpdateFails(t *testing.T) {
	failure := &model.ApplyError{Action: model.Update("a:3"), StatusCode: 500}

	t.Run("logged, not deleted", func(t *testing.T) {
		mgr := &MockManager{}
		mgr.On("Update", mock.Anything, "a:3").Return(Result{}, failure).Once()

		s, logs := newTestSink(Config{}, mgr)
		require.NoError(t, s.Apply(context.Background(), model.Update("a:3")))

		assert.True(t, s.Updated())
		assert.Equal(t, Stats{UpdateFailed: 1}, s.Stats())
		assert.Equal(t, 1, s.Stats().Failed())
		assert.Contains(t, logs.String(), `level=WARN msg="failed to update" component=sink id=a:3 error="failed to update a:3 (HTTP code 500)"`)
		mgr.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("delete on failure", func(t *testing.T) {
		mgr := &MockManager{}
		mgr.On("Update", mock.Anything, "a:3").Return(Result{}, errors.New("connection refused")).Once()
		mgr.On("Delete", mock.Anything, "a:3").Return(nil).Once()

		s, _ := newTestSink(Config{DeleteOnUpdateFailure: true}, mgr)
		s.ApplyUpdate(context.Background(), "a:3")

		assert.Equal(t, Stats{UpdateFailed: 1, Deleted: 1}, s.Stats())
		mgr.AssertExpectations(t)
	})

	t.Run("no delete after cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		mgr := &MockManager{}
		mgr.On("Update", mock.Anything, "a:3").Return(Result{}, context.Canceled).Once()

		s, _ := newTestSink(Config{DeleteOnUpdateFailure: true}, mgr)
		err := s.Apply(ctx, model.Update("a:3"))
		assert.ErrorIs(t, err, context.Canceled)
		mgr.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestSink_Delete(t *testing.T) {
	mgr := &MockManager{}
	mgr.On("Delete", mock.Anything, "a:4").Return(nil).Once()
	mgr.On("Delete", mock.Anything, "a:5").Return(errors.New("HTTP 503")).Once()

	s, logs := newTestSink(Config{}, mgr)
	require.NoError(t, s.Apply(context.Background(), model.Delete("a:4")))
	require.NoError(t, s.Apply(context.Background(), model.Delete("a:5")))

	assert.True(t, s.Updated())
	assert.Equal(t, Stats{Deleted: 1, DeleteFailed: 1}, s.Stats())
	assert.Contains(t, logs.String(), `msg="failed to delete" component=sink id=a:5 error="failed to delete a:5: HTTP 503"`)
	mgr.AssertExpectations(t)
}

func TestSink_FlagMeansAttempted(t *testing.T) {
	mgr := &MockManager{}
	mgr.On("Delete", mock.Anything, "a:6").Return(errors.New("down")).Once()

	s, _ := newTestSink(Config{}, mgr)
	s.ApplyDelete(context.Background(), "a:6")
	assert.True(t, s.Updated())
	assert.Equal(t, 0, s.Stats().Deleted)
}

func TestSink_UnknownAction(t *testing.T) {
	s, _ := newTestSink(Config{}, &MockManager{})
	err := s.Apply(context.Background(), model.Action{Type: "merge", ID: "x"})
	assert.Error(t, err)
	assert.False(t, s.Updated())
}

func TestSink_Metrics(t *testing.T) {
	m := metrics.New()
	mgr := &MockManager{}
	mgr.On("Update", mock.Anything, "ok").Return(Result{}, nil)
	mgr.On("Update", mock.Anything, "gone").Return(Result{NotFound: true}, nil)
	mgr.On("Delete", mock.Anything, "gone").Return(nil)

	s := New(Config{}, mgr, nil, WithMetrics(m))
	s.ApplyUpdate(context.Background(), "ok")
	s.ApplyUpdate(context.Background(), "gone")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActionsTotal.WithLabelValues("update")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionsTotal.WithLabelValues("delete")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AppliesTotal.WithLabelValues("update", metrics.ResultOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AppliesTotal.WithLabelValues("update", metrics.ResultNotFound)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AppliesTotal.WithLabelValues("delete", metrics.ResultOK)))
}
