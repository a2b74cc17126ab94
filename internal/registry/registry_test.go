package registry

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlendpoint/internal/apperr"
)

type item struct{ name string }

func TestAddGetHas(t *testing.T) {
	r := New[*item]("item")
	a := &item{name: "a"}
	require.NoError(t, r.Add("A", a))
	require.True(t, r.Has("A"))

	got, err := r.Get("A")
	require.NoError(t, err)
	require.Same(t, a, got)
	require.Equal(t, 1, r.Len())
}

func TestAddDuplicateKeepsOriginal(t *testing.T) {
	r := New[*item]("item")
	first := &item{name: "first"}
	require.NoError(t, r.Add("A", first))

	err := r.Add("A", &item{name: "second"})
	var cfg *apperr.ConfigurationError
	require.True(t, errors.As(err, &cfg), "got %v", err)

	got, err := r.Get("A")
	require.NoError(t, err)
	require.Same(t, first, got)
	require.Equal(t, 1, r.Len())
}

func TestAddRejectsEmptyKeyAndNil(t *testing.T) {
	r := New[*item]("item")

	var cfg *apperr.ConfigurationError
	require.True(t, errors.As(r.Add("", &item{}), &cfg))
	require.True(t, errors.As(r.Add("A", nil), &cfg))
	require.Zero(t, r.Len())

	fr := New[func()]("callback")
	require.True(t, errors.As(fr.Add("f", nil), &cfg))
	require.Zero(t, fr.Len())
}

func TestKeysAreCaseSensitive(t *testing.T) {
	r := New[int]("number")
	require.NoError(t, r.Add("query", 1))
	require.NoError(t, r.Add("Query", 2))
	require.Equal(t, []string{"Query", "query"}, r.Keys())
}

func TestGetMissing(t *testing.T) {
	r := New[int]("number")
	_, err := r.Get("nope")
	var nf *apperr.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "nope", nf.Key)
}

func TestRemoveAndClear(t *testing.T) {
	r := New[int]("number")
	require.NoError(t, r.Add("a", 1))
	require.NoError(t, r.Add("b", 2))

	r.Remove("a")
	r.Remove("never-added")
	require.False(t, r.Has("a"))
	require.True(t, r.Has("b"))

	r.Clear()
	require.Zero(t, r.Len())
	require.NoError(t, r.Add("b", 3), "cleared registry accepts keys again")
}

func TestEachVisitsInKeyOrder(t *testing.T) {
	r := New[int]("number")
	for i, k := range []string{"c", "a", "b"} {
		require.NoError(t, r.Add(k, i))
	}
	var seen []string
	r.Each(func(key string, _ int) { seen = append(seen, key) })
	require.Equal(t, []string{"a", "b", "c"}, seen)
}
