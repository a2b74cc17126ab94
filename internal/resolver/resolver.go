// Package resolver defines the type-keyed field resolution contract and the
// registry that maps GraphQL type names to resolvers.
package resolver

import (
	"context"
	"net/http"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/loader"
	"github.com/hanpama/gqlendpoint/internal/registry"
)

// Resolver resolves every field of exactly one named GraphQL type.
// Resolve may return a loader.Deferred to take part in wave batching.
type Resolver interface {
	Type() string
	Resolve(ctx context.Context, parent any, args map[string]any, rc *RequestContext, info *ResolveInfo) (any, error)
}

// TypeResolver is implemented by resolvers of interface and union types to
// pick the concrete object type of a value.
type TypeResolver interface {
	ResolveType(ctx context.Context, value any) (string, error)
}

// FieldFunc is the signature of a field-resolution callback.
type FieldFunc func(ctx context.Context, parent any, args map[string]any, rc *RequestContext, info *ResolveInfo) (any, error)

// Func adapts a FieldFunc into a Resolver for TypeName.
type Func struct {
	TypeName string
	Fn       FieldFunc
}

func (f *Func) Type() string { return f.TypeName }

func (f *Func) Resolve(ctx context.Context, parent any, args map[string]any, rc *RequestContext, info *ResolveInfo) (any, error) {
	return f.Fn(ctx, parent, args, rc, info)
}

// Fields builds a Resolver that dispatches on the field name. Fields without
// an entry fall back to default resolution against the parent value.
type Fields struct {
	TypeName string
	ByField  map[string]FieldFunc
	Fallback FieldFunc
}

func (f *Fields) Type() string { return f.TypeName }

func (f *Fields) Resolve(ctx context.Context, parent any, args map[string]any, rc *RequestContext, info *ResolveInfo) (any, error) {
	if fn, ok := f.ByField[info.FieldName]; ok {
		return fn(ctx, parent, args, rc, info)
	}
	if f.Fallback != nil {
		return f.Fallback(ctx, parent, args, rc, info)
	}
	return DefaultField(parent, info.FieldName)
}

// RequestContext is the per-request value handed to every resolver call.
type RequestContext struct {
	// Services is the application service container.
	Services *registry.Registry[any]
	// Request is the inbound HTTP request.
	Request *http.Request
	// Loaders is the request's loader registry; nil in simple mode.
	Loaders   *loader.Registry
	RequestID string
}

// Service returns the service registered under name with its static type.
func Service[T any](rc *RequestContext, name string) (T, bool) {
	var zero T
	if rc == nil || rc.Services == nil {
		return zero, false
	}
	v, ok := rc.Services.Lookup(name)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// ResolveInfo describes the field being resolved.
type ResolveInfo struct {
	FieldName  string
	ParentType string
	ReturnType *ast.Type
	Path       []any
	FieldNodes []*ast.Field
	Operation  *ast.OperationDefinition
	Variables  map[string]any
	Schema     *ast.Schema
}

// Registry maps type names to resolvers.
type Registry struct {
	entries *registry.Registry[Resolver]
}

func NewRegistry() *Registry {
	return &Registry{entries: registry.New[Resolver]("resolver")}
}

// Add registers r under r.Type(). It fails with a ConfigurationError when the
// type is empty, r is nil or cannot be invoked, or the type is taken.
func (g *Registry) Add(r Resolver) error {
	if isNilResolver(r) {
		return apperr.Configuration("resolver must not be nil")
	}
	if fn, ok := r.(*Func); ok && fn.Fn == nil {
		return apperr.Configuration("resolver %q has no field function", fn.TypeName)
	}
	return g.entries.Add(r.Type(), r)
}

// MustAdd is Add for startup wiring; it panics on error.
func (g *Registry) MustAdd(rs ...Resolver) *Registry {
	for _, r := range rs {
		if err := g.Add(r); err != nil {
			panic(err)
		}
	}
	return g
}

// Remove deletes the resolver for typeName; absent types are ignored.
func (g *Registry) Remove(typeName string) { g.entries.Remove(typeName) }

// Get returns the resolver for typeName or a NotFoundError.
func (g *Registry) Get(typeName string) (Resolver, error) { return g.entries.Get(typeName) }

// Lookup returns the resolver for typeName and whether one is registered.
func (g *Registry) Lookup(typeName string) (Resolver, bool) { return g.entries.Lookup(typeName) }

func (g *Registry) Has(typeName string) bool { return g.entries.Has(typeName) }

func (g *Registry) Clear() { g.entries.Clear() }

func (g *Registry) Len() int { return g.entries.Len() }

func (g *Registry) Types() []string { return g.entries.Keys() }

func isNilResolver(r Resolver) bool {
	if r == nil {
		return true
	}
	rv := reflect.ValueOf(r)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
