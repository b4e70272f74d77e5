package diff

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/indexsync/internal/source"
	"github.com/syntrixbase/indexsync/pkg/model"
)

func rec(id string, ts int64) model.Record {
	return model.Record{ID: id, Timestamp: time.Unix(ts, 0).UTC()}
}

func collect(t *testing.T, cfg Config, authority, derived []model.Record) ([]model.Action, Stats) {
	t.Helper()
	d := New(cfg, source.NewSlice(authority...), source.NewSlice(derived...), nil)
	var actions []model.Action
	stats, err := Run(context.Background(), d, func(_ context.Context, a model.Action) error {
		actions = append(actions, a)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, d.Close())
	return actions, stats
}

func TestDiffer_Scenarios(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		authority []model.Record
		derived   []model.Record
		want      []model.Action
		stats     Stats
	}{
		{
			name:      "fully in sync",
			authority: []model.Record{rec("a:1", 100), rec("a:2", 200)},
			derived:   []model.Record{rec("a:1", 100), rec("a:2", 200)},
			stats:     Stats{InSync: 2},
		},
		{
			name:      "stale derived entry",
			authority: []model.Record{rec("a:1", 100)},
			derived:   []model.Record{rec("a:1", 100), rec("a:2", 50)},
			want:      []model.Action{model.Delete("a:2")},
			stats:     Stats{InSync: 1, Deletes: 1},
		},
		{
			name:      "stale derived entry kept",
			cfg:       Config{KeepStale: true},
			authority: []model.Record{rec("a:1", 100)},
			derived:   []model.Record{rec("a:1", 100), rec("a:2", 50)},
			stats:     Stats{InSync: 1, Skipped: 1},
		},
		{
			name:      "timestamp tie broken by id",
			authority: []model.Record{rec("b", 100)},
			derived:   []model.Record{rec("a", 100)},
			want:      []model.Action{model.Update("a"), model.Update("b")},
			stats:     Stats{Updates: 2},
		},
		{
			name:      "both empty",
			authority: nil,
			derived:   nil,
		},
		{
			name:      "derived empty",
			authority: []model.Record{rec("a:1", 1), rec("a:2", 2)},
			want:      []model.Action{model.Update("a:1"), model.Update("a:2")},
			stats:     Stats{Updates: 2},
		},
		{
			name:    "authority empty",
			derived: []model.Record{rec("a:1", 1), rec("a:2", 2)},
			want:    []model.Action{model.Delete("a:1"), model.Delete("a:2")},
			stats:   Stats{Deletes: 2},
		},
		{
			name:      "derived copy outdated",
			authority: []model.Record{rec("a:1", 100), rec("a:2", 300)},
			derived:   []model.Record{rec("a:1", 100), rec("a:2", 200)},
			// the old derived copy sorts first and is refreshed by id;
			// the authority entry then has no partner and is refreshed again
			want:  []model.Action{model.Update("a:2"), model.Update("a:2")},
			stats: Stats{InSync: 1, Updates: 2},
		},
		{
			name:      "derived copy newer than authority",
			authority: []model.Record{rec("a:1", 100), rec("a:2", 200)},
			derived:   []model.Record{rec("a:1", 100), rec("a:2", 250)},
			want:      []model.Action{model.Update("a:2"), model.Delete("a:2")},
			stats:     Stats{InSync: 1, Updates: 1, Deletes: 1},
		},
		{
			name:      "interleaved",
			authority: []model.Record{rec("a", 1), rec("c", 3), rec("e", 5)},
			derived:   []model.Record{rec("b", 2), rec("c", 3), rec("d", 4), rec("f", 6)},
			want: []model.Action{
				model.Update("a"),
				model.Update("b"),
				model.Update("d"),
				model.Update("e"),
				model.Delete("f"),
			},
			stats: Stats{InSync: 1, Updates: 4, Deletes: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, stats := collect(t, tt.cfg, tt.authority, tt.derived)
			assert.Equal(t, tt.want, actions)
			assert.Equal(t, tt.stats, stats)
			assert.Equal(t, len(tt.want), stats.Actions())
		})
	}
}

// expected computes the actions of a merge of two sorted, duplicate-free
// streams without walking them in step.
func expected(authority, derived []model.Record, keepStale bool) []model.Action {
	type keyed struct {
		r model.Record
		a model.Action
	}
	inA := map[model.Record]bool{}
	for _, r := range authority {
		inA[r] = true
	}
	inD := map[model.Record]bool{}
	for _, r := range derived {
		inD[r] = true
	}

	var out []keyed
	for _, r := range authority {
		if !inD[r] {
			out = append(out, keyed{r, model.Update(r.ID)})
		}
	}
	for _, r := range derived {
		if inA[r] {
			continue
		}
		if len(authority) > 0 && model.Compare(r, authority[len(authority)-1]) < 0 {
			out = append(out, keyed{r, model.Update(r.ID)})
		} else if !keepStale {
			out = append(out, keyed{r, model.Delete(r.ID)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return model.Compare(out[i].r, out[j].r) < 0 })

	var actions []model.Action
	for _, k := range out {
		actions = append(actions, k.a)
	}
	return actions
}

func randomStream(rng *rand.Rand, n int) []model.Record {
	seen := map[model.Record]bool{}
	var out []model.Record
	for len(out) < n {
		r := rec(fmt.Sprintf("o:%02d", rng.Intn(30)), int64(rng.Intn(10)))
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return model.Compare(out[i], out[j]) < 0 })
	return out
}

func TestDiffer_MergeCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		authority := randomStream(rng, rng.Intn(40))
		derived := randomStream(rng, rng.Intn(40))
		keepStale := i%2 == 1

		actions, _ := collect(t, Config{KeepStale: keepStale}, authority, derived)
		require.Equal(t, expected(authority, derived, keepStale), actions, "iteration %d", i)
	}
}

func TestDiffer_SecondRunIsIdempotent(t *testing.T) {
	authority := []model.Record{rec("a:1", 1), rec("a:2", 2), rec("a:3", 2), rec("a:4", 9)}
	derived := []model.Record{rec("a:1", 1), rec("a:3", 1), rec("a:9", 3)}

	actions, _ := collect(t, Config{}, authority, derived)
	require.NotEmpty(t, actions)

	// once every action has been applied the derived side mirrors the authority
	actions, stats := collect(t, Config{}, authority, authority)
	assert.Empty(t, actions)
	assert.Equal(t, Stats{InSync: len(authority)}, stats)
}

// failingSource yields its records and then fails.
type failingSource struct {
	*source.Slice
	err    error
	failed bool
	closed bool
}

func (f *failingSource) Next(ctx context.Context) bool {
	if f.Slice.Next(ctx) {
		return true
	}
	f.failed = true
	return false
}

func (f *failingSource) Err() error {
	if f.failed {
		return f.err
	}
	return nil
}

func (f *failingSource) Close() error {
	f.closed = true
	return nil
}

func TestDiffer_SourceErrorAborts(t *testing.T) {
	boom := &model.SourceUnavailableError{Source: "Solr", StatusCode: 500}

	tests := []struct {
		name      string
		authority source.OrderedSource
		derived   source.OrderedSource
		want      []model.Action
	}{
		{
			name:      "derived fails mid stream",
			authority: source.NewSlice(rec("a", 1), rec("b", 2), rec("c", 3)),
			derived:   &failingSource{Slice: source.NewSlice(rec("a", 1)), err: boom},
		},
		{
			name:      "authority fails after yielding",
			authority: &failingSource{Slice: source.NewSlice(rec("a", 1)), err: boom},
			derived:   source.NewSlice(rec("b", 2), rec("c", 3)),
			want:      []model.Action{model.Update("a")},
		},
		{
			name:      "authority fails on first page",
			authority: &failingSource{Slice: source.NewSlice(), err: boom},
			derived:   source.NewSlice(rec("b", 2)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{}, tt.authority, tt.derived, nil)
			var actions []model.Action
			_, err := Run(context.Background(), d, func(_ context.Context, a model.Action) error {
				actions = append(actions, a)
				return nil
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrSourceUnavailable)
			assert.Equal(t, tt.want, actions)

			assert.False(t, d.Next(context.Background()))
			assert.Equal(t, err, d.Err())
		})
	}
}

func TestDiffer_AdvancesLazily(t *testing.T) {
	authority := &failingSource{Slice: source.NewSlice(rec("a", 1)), err: errors.New("late failure")}
	d := New(Config{}, authority, source.NewSlice(), nil)

	// the failure behind the first record surfaces only when the merge
	// needs the next authority head
	require.True(t, d.Next(context.Background()))
	assert.Equal(t, model.Update("a"), d.Action())
	assert.False(t, authority.failed)

	assert.False(t, d.Next(context.Background()))
	assert.EqualError(t, d.Err(), "late failure")
}

func TestRun_ApplyErrorStops(t *testing.T) {
	d := New(Config{}, source.NewSlice(rec("a", 1), rec("b", 2)), source.NewSlice(), nil)
	stop := errors.New("stop")

	calls := 0
	stats, err := Run(context.Background(), d, func(context.Context, model.Action) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, stats.Updates)
	assert.False(t, d.Next(context.Background()))
}

func TestDiffer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(Config{}, source.NewSlice(rec("a", 1)), source.NewSlice(), nil)
	assert.False(t, d.Next(ctx))
	assert.ErrorIs(t, d.Err(), context.Canceled)
}

func TestDiffer_CloseClosesSources(t *testing.T) {
	a := &failingSource{Slice: source.NewSlice()}
	b := &failingSource{Slice: source.NewSlice()}
	d := New(Config{}, a, b, nil)
	require.NoError(t, d.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.False(t, d.Next(context.Background()))
}
