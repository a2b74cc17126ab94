// Package loader implements request-scoped batch loaders. A resolver asks a
// Loader for a key and receives a Deferred value; the engine dispatches every
// loader with pending keys once per execution wave, so keys requested during
// the same wave are fetched by a single batch call.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
)

// Deferred is a value that becomes available after its loader has been
// dispatched.
type Deferred interface {
	Await(ctx context.Context) (any, error)
}

// BatchFunc fetches values for keys. Keys missing from the returned map
// resolve to the zero value of V. A returned error fails every key of the
// batch.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

type result[V any] struct {
	done  bool
	value V
	err   error
}

// Loader collects keys and resolves them in batches. Results are cached for
// the lifetime of the Loader, which is normally one request.
type Loader[K comparable, V any] struct {
	name  string
	fetch BatchFunc[K, V]

	mu      sync.Mutex
	pending []K
	results map[K]*result[V]
	// serializes batch calls so that Await and Registry.Dispatch never
	// fetch the same pending keys twice
	dispatchMu sync.Mutex
}

// New returns a Loader named name that fetches with fetch.
func New[K comparable, V any](name string, fetch BatchFunc[K, V]) *Loader[K, V] {
	return &Loader[K, V]{name: name, fetch: fetch, results: make(map[K]*result[V])}
}

func (l *Loader[K, V]) Name() string { return l.name }

// Load schedules key and returns a Deferred for its value. Loading a key that
// is already pending or resolved does not schedule it again.
func (l *Loader[K, V]) Load(key K) *Thunk[K, V] {
	l.mu.Lock()
	if _, ok := l.results[key]; !ok {
		l.results[key] = &result[V]{}
		l.pending = append(l.pending, key)
	}
	l.mu.Unlock()
	return &Thunk[K, V]{loader: l, key: key}
}

// LoadMany schedules keys and returns a Deferred resolving to []V in key
// order.
func (l *Loader[K, V]) LoadMany(keys []K) Deferred {
	thunks := make([]*Thunk[K, V], len(keys))
	for i, k := range keys {
		thunks[i] = l.Load(k)
	}
	return deferredFunc(func(ctx context.Context) (any, error) {
		out := make([]V, len(thunks))
		for i, th := range thunks {
			v, err := th.Get(ctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	})
}

// Prime stores value for key without fetching it.
func (l *Loader[K, V]) Prime(key K, value V) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.results[key]; ok && r.done {
		return
	}
	l.results[key] = &result[V]{done: true, value: value}
	l.removePending(key)
}

// Pending reports the number of keys waiting for the next dispatch.
func (l *Loader[K, V]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Dispatch fetches every pending key with one batch call. It returns the
// batch error, which is also recorded for each key of the batch.
func (l *Loader[K, V]) Dispatch(ctx context.Context) error {
	l.dispatchMu.Lock()
	defer l.dispatchMu.Unlock()

	l.mu.Lock()
	keys := l.pending
	l.pending = nil
	l.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	values, err := l.call(ctx, keys)
	eventbus.Publish(ctx, events.LoaderDispatch{
		Loader:   l.name,
		Keys:     len(keys),
		Duration: time.Since(start),
		Err:      err,
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range keys {
		r := l.results[k]
		if r == nil {
			r = &result[V]{}
			l.results[k] = r
		}
		r.done = true
		if err != nil {
			r.err = err
			continue
		}
		r.value = values[k]
	}
	return err
}

func (l *Loader[K, V]) call(ctx context.Context, keys []K) (values map[K]V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("loader %s: panic: %v", l.name, p)
		}
	}()
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return l.fetch(ctx, keys)
}

func (l *Loader[K, V]) get(ctx context.Context, key K) (V, error) {
	l.mu.Lock()
	r, ok := l.results[key]
	l.mu.Unlock()
	if !ok {
		l.Load(key)
	}
	if !ok || !r.done {
		// Awaited before the engine dispatched this wave, e.g. by a
		// resolver chaining loads.
		if err := l.Dispatch(ctx); err != nil {
			var zero V
			return zero, err
		}
	}
	l.mu.Lock()
	r = l.results[key]
	l.mu.Unlock()
	return r.value, r.err
}

func (l *Loader[K, V]) removePending(key K) {
	for i, k := range l.pending {
		if k == key {
			l.pending = append(l.pending[:i:i], l.pending[i+1:]...)
			return
		}
	}
}

// Thunk is the Deferred returned by Loader.Load.
type Thunk[K comparable, V any] struct {
	loader *Loader[K, V]
	key    K
}

// Get waits for the value with its static type.
func (t *Thunk[K, V]) Get(ctx context.Context) (V, error) { return t.loader.get(ctx, t.key) }

func (t *Thunk[K, V]) Await(ctx context.Context) (any, error) { return t.Get(ctx) }

type deferredFunc func(ctx context.Context) (any, error)

func (f deferredFunc) Await(ctx context.Context) (any, error) { return f(ctx) }

// Then returns a Deferred that applies fn to the value of d. fn may itself
// return a Deferred, which the engine awaits in a later wave.
func Then(d Deferred, fn func(v any) (any, error)) Deferred {
	return deferredFunc(func(ctx context.Context) (any, error) {
		v, err := d.Await(ctx)
		if err != nil {
			return nil, err
		}
		return fn(v)
	})
}

// Resolved returns a Deferred that is already available.
func Resolved(v any, err error) Deferred {
	return deferredFunc(func(context.Context) (any, error) { return v, err })
}
