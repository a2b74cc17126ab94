package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlendpoint/internal/apperr"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]int
}

func (r *recorder) fetch(_ context.Context, keys []int) (map[int]string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]int(nil), keys...))
	r.mu.Unlock()
	out := make(map[int]string, len(keys))
	for _, k := range keys {
		if k < 0 {
			continue
		}
		out[k] = fmt.Sprintf("v%d", k)
	}
	return out, nil
}

func TestLoadCollapsesSameKeyIntoOneCall(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	l := New("items", rec.fetch)

	a := l.Load(1)
	b := l.Load(2)
	c := l.Load(1)
	require.Equal(t, 2, l.Pending())

	require.NoError(t, l.Dispatch(ctx))

	for _, tc := range []struct {
		th   *Thunk[int, string]
		want string
	}{{a, "v1"}, {b, "v2"}, {c, "v1"}} {
		got, err := tc.th.Get(ctx)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
	if diff := cmp.Diff([][]int{{1, 2}}, rec.calls); diff != "" {
		t.Fatalf("batch calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCachedKeysAreNotFetchedAgain(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	l := New("items", rec.fetch)

	l.Load(1)
	require.NoError(t, l.Dispatch(ctx))
	l.Load(1)
	l.Load(3)
	require.NoError(t, l.Dispatch(ctx))

	require.Equal(t, [][]int{{1}, {3}}, rec.calls)
}

func TestAwaitBeforeDispatchFetchesLazily(t *testing.T) {
	rec := &recorder{}
	l := New("items", rec.fetch)
	v, err := l.Load(7).Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v7", v)
	require.Len(t, rec.calls, 1)
}

func TestMissingKeyResolvesToZero(t *testing.T) {
	rec := &recorder{}
	l := New("items", rec.fetch)
	th := l.Load(-1)
	require.NoError(t, l.Dispatch(context.Background()))
	v, err := th.Get(context.Background())
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestBatchErrorFailsEveryKey(t *testing.T) {
	boom := errors.New("backend down")
	l := New("items", func(context.Context, []int) (map[int]string, error) { return nil, boom })
	a, b := l.Load(1), l.Load(2)
	require.ErrorIs(t, l.Dispatch(context.Background()), boom)

	_, errA := a.Get(context.Background())
	_, errB := b.Get(context.Background())
	require.ErrorIs(t, errA, boom)
	require.ErrorIs(t, errB, boom)
}

func TestBatchPanicBecomesError(t *testing.T) {
	l := New("items", func(context.Context, []int) (map[int]string, error) { panic("bad") })
	th := l.Load(1)
	require.Error(t, l.Dispatch(context.Background()))
	_, err := th.Get(context.Background())
	require.ErrorContains(t, err, "panic: bad")
}

func TestPrimeSkipsFetch(t *testing.T) {
	rec := &recorder{}
	l := New("items", rec.fetch)
	th := l.Load(4)
	l.Prime(4, "primed")
	require.Zero(t, l.Pending())

	v, err := th.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, "primed", v)
	require.Empty(t, rec.calls)
}

func TestLoadManyAndThen(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	l := New("items", rec.fetch)

	many := l.LoadMany([]int{3, 1, 3})
	joined := Then(l.Load(2), func(v any) (any, error) { return v.(string) + "!", nil })
	require.NoError(t, l.Dispatch(ctx))

	got, err := many.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"v3", "v1", "v3"}, got)

	got, err = joined.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "v2!", got)
	require.Len(t, rec.calls, 1)
}

func TestRegistryDispatchesEveryPendingLoaderOnce(t *testing.T) {
	ctx := context.Background()
	authors, books := &recorder{}, &recorder{}
	reg := NewRegistry()
	require.NoError(t, reg.Add(New("authors", authors.fetch)))
	require.NoError(t, reg.Add(New("books", books.fetch)))
	require.NoError(t, reg.Add(New("idle", (&recorder{}).fetch)))

	var cfg *apperr.ConfigurationError
	require.True(t, errors.As(reg.Add(New("authors", authors.fetch)), &cfg))

	al, err := Get[int, string](reg, "authors")
	require.NoError(t, err)
	bl, err := Get[int, string](reg, "books")
	require.NoError(t, err)

	for _, k := range []int{5, 6, 5} {
		al.Load(k)
	}
	bl.Load(9)
	require.Equal(t, 3, reg.Pending())

	require.NoError(t, reg.Dispatch(ctx))
	require.Zero(t, reg.Pending())

	sort.Ints(authors.calls[0])
	require.Equal(t, [][]int{{5, 6}}, authors.calls)
	require.Equal(t, [][]int{{9}}, books.calls)
	require.Equal(t, []string{"authors", "books", "idle"}, reg.Names())
}

func TestGetWrongTypes(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Add(New("authors", (&recorder{}).fetch)))

	_, err := Get[string, string](reg, "authors")
	var cfg *apperr.ConfigurationError
	require.True(t, errors.As(err, &cfg))

	_, err = Get[int, string](reg, "missing")
	var nf *apperr.NotFoundError
	require.True(t, errors.As(err, &nf))

	_, err = Get[int, string](nil, "authors")
	require.True(t, errors.As(err, &cfg))
}
