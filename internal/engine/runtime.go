package engine

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/gqlendpoint/internal/executor"
	"github.com/hanpama/gqlendpoint/internal/loader"
	"github.com/hanpama/gqlendpoint/internal/provider"
	"github.com/hanpama/gqlendpoint/internal/resolver"
)

// runtime implements executor.Runtime for one request.
// Invariants and boundaries:
//   - Dispatch: async tasks go to the Resolver attached to their parent type;
//     sync tasks and types without a resolver use resolver.DefaultField.
//   - Waves: every resolver of a depth runs first, then the request's loaders
//     are dispatched once and the returned Deferred values are awaited. A
//     Deferred resolving to another Deferred is awaited after one more
//     dispatch, so chained loads stay batched.
//   - Ordering: tasks are resolved one after another in task order, which
//     makes root mutation fields run serially.
//   - Panics raised by a resolver become the error of its field only.
type runtime struct {
	exe *provider.Executable
	rc  *resolver.RequestContext
}

var _ executor.Runtime = (*runtime)(nil)

func newRuntime(exe *provider.Executable, rc *resolver.RequestContext) *runtime {
	if rc == nil {
		rc = &resolver.RequestContext{}
	}
	return &runtime{exe: exe, rc: rc}
}

// ResolveSync projects the field from the parent value. A Deferred found on
// the parent is awaited in place.
func (r *runtime) ResolveSync(ctx context.Context, task *executor.FieldTask) (any, error) {
	v, err := resolver.DefaultField(task.Source, task.Field)
	if err != nil {
		return nil, err
	}
	if d, ok := v.(loader.Deferred); ok {
		return d.Await(ctx)
	}
	return v, nil
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []*executor.FieldTask) []executor.AsyncResolveResult {
	results := make([]executor.AsyncResolveResult, len(tasks))
	deferred := make([]loader.Deferred, len(tasks))
	var pending []int

	for i, task := range tasks {
		v, err := r.resolve(ctx, task)
		if err != nil {
			results[i].Error = err
			continue
		}
		if d, ok := v.(loader.Deferred); ok {
			deferred[i] = d
			pending = append(pending, i)
			continue
		}
		results[i].Value = v
	}

	for len(pending) > 0 {
		if r.rc.Loaders != nil {
			// batch failures are delivered to each Deferred as well
			_ = r.rc.Loaders.Dispatch(ctx)
		}
		next := pending[:0]
		for _, i := range pending {
			v, err := deferred[i].Await(ctx)
			if err != nil {
				results[i].Error = err
				continue
			}
			if d, ok := v.(loader.Deferred); ok {
				deferred[i] = d
				next = append(next, i)
				continue
			}
			results[i].Value = v
		}
		pending = next
	}
	return results
}

func (r *runtime) resolve(ctx context.Context, task *executor.FieldTask) (v any, err error) {
	typ := r.exe.Schema.Types[task.ObjectType]
	if typ == nil || typ.Resolver == nil {
		return resolver.DefaultField(task.Source, task.Field)
	}
	defer func() {
		if p := recover(); p != nil {
			v, err = nil, errors.Errorf("resolver %s.%s: panic: %v", task.ObjectType, task.Field, p)
		}
	}()
	return typ.Resolver.Resolve(ctx, task.Source, task.Args, r.rc, r.info(task))
}

func (r *runtime) info(task *executor.FieldTask) *resolver.ResolveInfo {
	path := make([]any, len(task.Path))
	for i, p := range task.Path {
		path[i] = p
	}
	var returnType *ast.Type
	if def := r.exe.AST.Types[task.ObjectType]; def != nil {
		if fd := def.Fields.ForName(task.Field); fd != nil {
			returnType = fd.Type
		}
	}
	return &resolver.ResolveInfo{
		FieldName:  task.Field,
		ParentType: task.ObjectType,
		ReturnType: returnType,
		Path:       path,
		FieldNodes: task.Nodes,
		Operation:  task.Operation,
		Variables:  task.Variables,
		Schema:     r.exe.AST,
	}
}

// ResolveType asks the abstract type's resolver when it implements
// resolver.TypeResolver. Otherwise the value names its type with a
// "__typename" entry, or its Go type is named after a possible type.
func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	typ := r.exe.Schema.Types[abstractType]
	if typ != nil {
		if tr, ok := typ.Resolver.(resolver.TypeResolver); ok {
			return tr.ResolveType(ctx, value)
		}
	}
	if v, err := resolver.DefaultField(value, "__typename"); err == nil {
		if name, ok := v.(string); ok && name != "" {
			return name, nil
		}
	}
	if typ != nil {
		rt := reflect.TypeOf(value)
		for rt != nil && rt.Kind() == reflect.Ptr {
			rt = rt.Elem()
		}
		if rt != nil {
			for _, name := range typ.PossibleTypes {
				if rt.Name() == name {
					return name, nil
				}
			}
		}
	}
	return "", errors.Errorf("cannot determine the concrete type of %s from %T", abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	typ := r.exe.Schema.Types[typeName]
	if typ == nil {
		return nil, errors.Errorf("unknown leaf type %s", typeName)
	}
	return serializeLeaf(typ, value)
}
