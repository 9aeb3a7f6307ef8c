package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/evalkernel/history"
)

type storeFactory func(t *testing.T) history.Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) history.Store {
			return history.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) history.Store {
			store, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
			require.NoError(t, err)
			return store
		},
	}
}

func ptr(s string) *string { return &s }

func lines(entries []history.Entry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Line
	}
	return out
}

func seed(t *testing.T, store history.Store, inputs ...string) {
	t.Helper()
	ctx := context.Background()
	for i, in := range inputs {
		require.NoError(t, store.Append(ctx, history.Entry{Line: i + 1, Source: in, SourceRaw: in}))
	}
}

func TestStore_AppendRequiresSession(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			defer store.Close()

			err := store.Append(context.Background(), history.Entry{Line: 1, Source: "x"})
			assert.ErrorIs(t, err, history.ErrNoSession)
		})
	}
}

func TestStore_AppendOutOfOrder(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			defer store.Close()

			_, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, store.Append(ctx, history.Entry{Line: 2, Source: "a"}))

			assert.ErrorIs(t, store.Append(ctx, history.Entry{Line: 2, Source: "b"}), history.ErrOutOfOrder)
			assert.ErrorIs(t, store.Append(ctx, history.Entry{Line: 1, Source: "c"}), history.ErrOutOfOrder)
			assert.NoError(t, store.Append(ctx, history.Entry{Line: 5, Source: "d"}))
		})
	}
}

func TestStore_Range(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			defer store.Close()

			first, err := store.Begin(ctx)
			require.NoError(t, err)
			seed(t, store, "a", "b", "c", "d", "e")

			second, err := store.Begin(ctx)
			require.NoError(t, err)
			require.Equal(t, first+1, second)
			seed(t, store, "v", "w", "x")

			tests := []struct {
				name    string
				session int
				start   int
				stop    int
				want    []int
				inputs  []string
			}{
				{name: "absolute session 2..4", session: first, start: 2, stop: 4, want: []int{2, 3}, inputs: []string{"b", "c"}},
				{name: "live session", session: 0, start: 1, stop: 0, want: []int{1, 2, 3}, inputs: []string{"v", "w", "x"}},
				{name: "relative previous", session: -1, start: 4, stop: 0, want: []int{4, 5}, inputs: []string{"d", "e"}},
				{name: "empty interval", session: 0, start: 3, stop: 3, want: []int{}},
				{name: "missing session", session: 99, start: 1, stop: 0, want: []int{}},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := store.Range(ctx, tt.session, tt.start, tt.stop)
					require.NoError(t, err)
					assert.Equal(t, tt.want, lines(got))
					for i, in := range tt.inputs {
						assert.Equal(t, in, got[i].Source)
					}
				})
			}
		})
	}
}

func TestStore_TailAcrossSessions(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			defer store.Close()

			_, err := store.Begin(ctx)
			require.NoError(t, err)
			seed(t, store, "a", "b", "c")
			_, err = store.Begin(ctx)
			require.NoError(t, err)
			seed(t, store, "d", "e")

			got, err := store.Tail(ctx, 3)
			require.NoError(t, err)

			var inputs []string
			for _, e := range got {
				inputs = append(inputs, e.Source)
			}
			assert.Equal(t, []string{"c", "d", "e"}, inputs)

			all, err := store.Tail(ctx, 100)
			require.NoError(t, err)
			assert.Len(t, all, 5)

			_, err = store.Tail(ctx, -1)
			assert.ErrorIs(t, err, history.ErrInvalidQuery)
		})
	}
}

func TestStore_Search(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			defer store.Close()

			_, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, store.Append(ctx, history.Entry{Line: 1, Source: "square(3)", SourceRaw: "square 3"}))
			require.NoError(t, store.Append(ctx, history.Entry{Line: 2, Source: "x := 1", SourceRaw: "x := 1"}))
			require.NoError(t, store.Append(ctx, history.Entry{Line: 3, Source: "square(4)", SourceRaw: "square 4"}))

			transformed, err := store.Search(ctx, "square(*)", false)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 3}, lines(transformed))

			raw, err := store.Search(ctx, "square ?", true)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 3}, lines(raw))

			none, err := store.Search(ctx, "square ?", false)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStore_SearchClasses(t *testing.T) {
	tests := []struct {
		pattern string
		want    []int
	}{
		{pattern: "[]a]*", want: []int{1, 3}},
		{pattern: "[^]a]*", want: []int{2, 4}},
		{pattern: "[a-b]1", want: []int{2}},
		{pattern: "*]*", want: []int{1, 3}},
	}

	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			defer store.Close()

			_, err := store.Begin(ctx)
			require.NoError(t, err)
			seed(t, store, "a]1", "b1", "]z", "c2")

			for _, tt := range tests {
				got, err := store.Search(ctx, tt.pattern, false)
				require.NoError(t, err, tt.pattern)
				assert.Equal(t, tt.want, lines(got), tt.pattern)
			}
		})
	}
}

func TestMemoryStore_SearchInvalidPattern(t *testing.T) {
	ctx := context.Background()
	store := history.NewMemoryStore()
	defer store.Close()

	_, err := store.Begin(ctx)
	require.NoError(t, err)

	for _, pattern := range []string{"[abc", "[z-a]"} {
		_, err := store.Search(ctx, pattern, false)
		assert.ErrorIs(t, err, history.ErrInvalidQuery, pattern)
	}
}

func TestStore_OutputOnlyWhenRecorded(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			defer store.Close()

			_, err := store.Begin(ctx)
			require.NoError(t, err)
			require.NoError(t, store.Append(ctx, history.Entry{Line: 1, Source: "x := 1", SourceRaw: "x := 1"}))
			require.NoError(t, store.Append(ctx, history.Entry{Line: 2, Source: "x+1", SourceRaw: "x+1", Output: ptr("2")}))

			got, err := store.Range(ctx, 0, 1, 0)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Nil(t, got[0].Output)
			require.NotNil(t, got[1].Output)
			assert.Equal(t, "2", *got[1].Output)

			n, err := store.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestSQLite_SessionsPersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := history.OpenSQLite(path)
	require.NoError(t, err)
	first, err := store.Begin(ctx)
	require.NoError(t, err)
	seed(t, store, "a", "b")
	require.NoError(t, store.Close())

	reopened, err := history.OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	second, err := reopened.Begin(ctx)
	require.NoError(t, err)
	assert.Greater(t, second, first)

	previous, err := reopened.Range(ctx, -1, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, lines(previous))
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name    string
		cfg     history.Config
		wantErr bool
	}{
		{name: "default", cfg: history.DefaultConfig()},
		{name: "sqlite in memory", cfg: history.Config{Backend: history.BackendSQLite}},
		{name: "unknown backend", cfg: history.Config{Backend: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := history.NewStore(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()

			session, err := store.Begin(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, session)
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.Merge(&history.Config{Backend: history.BackendSQLite, Path: "/tmp/h.db"})

	assert.Equal(t, history.BackendSQLite, cfg.Backend)
	assert.Equal(t, "/tmp/h.db", cfg.Path)

	cfg.Merge(&history.Config{})
	assert.Equal(t, history.BackendSQLite, cfg.Backend)
}
