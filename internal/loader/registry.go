package loader

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/registry"
)

// Dispatcher is the untyped view of a Loader held by a Registry.
type Dispatcher interface {
	Name() string
	Pending() int
	Dispatch(ctx context.Context) error
}

// Registry holds the loaders of one request.
type Registry struct {
	loaders *registry.Registry[Dispatcher]
}

func NewRegistry() *Registry {
	return &Registry{loaders: registry.New[Dispatcher]("loader")}
}

// Add registers d under its name.
func (r *Registry) Add(d Dispatcher) error {
	if d == nil {
		return apperr.Configuration("loader must not be nil")
	}
	return r.loaders.Add(d.Name(), d)
}

func (r *Registry) Has(name string) bool { return r.loaders.Has(name) }

func (r *Registry) Names() []string { return r.loaders.Keys() }

// Pending reports the number of keys waiting across all loaders.
func (r *Registry) Pending() int {
	n := 0
	r.loaders.Each(func(_ string, d Dispatcher) { n += d.Pending() })
	return n
}

// Dispatch flushes every loader with pending keys. Distinct loaders fetch
// concurrently; each loader issues at most one batch call. The returned error
// is the first batch failure; failures are also delivered to each awaiting
// Deferred.
func (r *Registry) Dispatch(ctx context.Context) error {
	var g errgroup.Group
	r.loaders.Each(func(_ string, d Dispatcher) {
		if d.Pending() == 0 {
			return
		}
		g.Go(func() error { return d.Dispatch(ctx) })
	})
	return g.Wait()
}

// Get returns the loader registered under name with its static types.
func Get[K comparable, V any](r *Registry, name string) (*Loader[K, V], error) {
	if r == nil {
		return nil, apperr.Configuration("no loader registry in request context")
	}
	d, err := r.loaders.Get(name)
	if err != nil {
		return nil, err
	}
	l, ok := d.(*Loader[K, V])
	if !ok {
		return nil, errors.WithStack(&apperr.ConfigurationError{
			Message: "loader " + name + " has a different key or value type",
		})
	}
	return l, nil
}
