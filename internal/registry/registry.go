// Package registry provides a keyed collection with uniqueness and
// non-empty-key invariants enforced at insertion time.
package registry

import (
	"reflect"
	"sort"
	"sync"

	"github.com/hanpama/gqlendpoint/internal/apperr"
)

// Registry maps string keys to items of type T. It is safe for concurrent
// use; writes are expected at startup and reads during requests.
type Registry[T any] struct {
	kind  string
	mu    sync.RWMutex
	items map[string]T
}

// New returns an empty registry. kind names the stored items in error
// messages, e.g. "resolver".
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, items: make(map[string]T)}
}

// Add stores item under key. It fails with a ConfigurationError when key is
// empty, item is nil, or key is already present; the registry is left
// unchanged in every failure case.
func (r *Registry[T]) Add(key string, item T) error {
	if key == "" {
		return apperr.Configuration("%s key must not be empty", r.kind)
	}
	if isNil(item) {
		return apperr.Configuration("%s %q must not be nil", r.kind, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; ok {
		return apperr.Configuration("%s %q is already registered", r.kind, key)
	}
	r.items[key] = item
	return nil
}

// Remove deletes key. Removing an absent key is a no-op.
func (r *Registry[T]) Remove(key string) {
	r.mu.Lock()
	delete(r.items, key)
	r.mu.Unlock()
}

// Get returns the item stored under key or a NotFoundError.
func (r *Registry[T]) Get(key string) (T, error) {
	r.mu.RLock()
	item, ok := r.items[key]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, apperr.NotFound(key)
	}
	return item, nil
}

// Lookup returns the item stored under key and whether it was present.
func (r *Registry[T]) Lookup(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key]
	return item, ok
}

func (r *Registry[T]) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Clear removes every entry.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	r.items = make(map[string]T)
	r.mu.Unlock()
}

func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Keys returns the registered keys in lexical order.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Each calls fn for every entry in key order.
func (r *Registry[T]) Each(fn func(key string, item T)) {
	for _, k := range r.Keys() {
		if item, ok := r.Lookup(k); ok {
			fn(k, item)
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
