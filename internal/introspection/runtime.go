// Package introspection answers the __schema and __type meta fields and the
// fields of the introspection types (__Schema, __Type, __Field, ...) from the
// executable schema, delegating everything else to a base runtime.
package introspection

import (
	"context"
	"sort"
	"strings"

	executor "github.com/hanpama/gqlendpoint/internal/executor"
	schema "github.com/hanpama/gqlendpoint/internal/schema"
)

// Wrap returns a Runtime that serves introspection from sch. The meta fields
// must already be declared on the query type, as gqlparser's prelude does.
func Wrap(base executor.Runtime, sch *schema.Schema) executor.Runtime {
	return &runtime{base: base, schema: sch}
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema
}

func (r *runtime) ResolveSync(ctx context.Context, task *executor.FieldTask) (any, error) {
	if task.ObjectType == r.schema.QueryType {
		switch task.Field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := task.Args["name"].(string)
			if t := r.schema.Types[name]; t != nil {
				return t, nil
			}
			return nil, nil
		}
	}

	switch src := task.Source.(type) {
	case *schema.Schema:
		if v, ok := r.schemaField(src, task.Field); ok {
			return v, nil
		}
	case *schema.Type:
		if v, ok := r.typeField(src, task.Field, task.Args); ok {
			return v, nil
		}
	case *schema.TypeRef:
		if v, ok := r.wrapperField(src, task.Field); ok {
			return v, nil
		}
	case *schema.Field:
		if v, ok := r.fieldField(src, task.Field, task.Args); ok {
			return v, nil
		}
	case *schema.InputValue:
		if v, ok := r.inputValueField(src, task.Field); ok {
			return v, nil
		}
	case *schema.EnumValue:
		if v, ok := enumValueField(src, task.Field); ok {
			return v, nil
		}
	case *schema.Directive:
		if v, ok := r.directiveField(src, task.Field, task.Args); ok {
			return v, nil
		}
	}

	return r.base.ResolveSync(ctx, task)
}

func (r *runtime) BatchResolveAsync(ctx context.Context, tasks []*executor.FieldTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	return r.base.SerializeLeafValue(ctx, typ, value)
}

// typeOf returns the value introspection exposes for ref: the named type
// itself, or the wrapper reference for lists and non-null.
func (r *runtime) typeOf(ref *schema.TypeRef) any {
	if ref == nil {
		return nil
	}
	if ref.Kind == schema.TypeRefKindNamed {
		if t := r.schema.Types[ref.Named]; t != nil {
			return t
		}
		return nil
	}
	return ref
}

func (r *runtime) schemaField(sch *schema.Schema, field string) (any, bool) {
	switch field {
	case "description":
		return optional(sch.Description), true
	case "types":
		names := make([]string, 0, len(sch.Types))
		for name := range sch.Types {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]*schema.Type, len(names))
		for i, name := range names {
			out[i] = sch.Types[name]
		}
		return out, true
	case "queryType":
		return sch.GetQueryType(), true
	case "mutationType":
		return sch.GetMutationType(), true
	case "subscriptionType":
		return sch.GetSubscriptionType(), true
	case "directives":
		names := make([]string, 0, len(sch.Directives))
		for name := range sch.Directives {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]*schema.Directive, len(names))
		for i, name := range names {
			out[i] = sch.Directives[name]
		}
		return out, true
	}
	return nil, false
}

func (r *runtime) typeField(t *schema.Type, field string, args map[string]any) (any, bool) {
	includeDeprecated := boolArg(args, "includeDeprecated")
	switch field {
	case "kind":
		return string(t.Kind), true
	case "name":
		return t.Name, true
	case "description":
		return optional(t.Description), true
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, true
		}
		return *t.SpecifiedByURL, true
	case "isOneOf":
		return t.OneOf, true
	case "ofType":
		return nil, true
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		out := []*schema.Field{}
		for _, f := range t.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			if includeDeprecated || !f.IsDeprecated {
				out = append(out, f)
			}
		}
		return out, true
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, true
		}
		return r.namedTypes(t.Interfaces), true
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, true
		}
		return r.namedTypes(t.PossibleTypes), true
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, true
		}
		out := []*schema.EnumValue{}
		for _, ev := range t.EnumValues {
			if includeDeprecated || !ev.IsDeprecated {
				out = append(out, ev)
			}
		}
		return out, true
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, true
		}
		return filterInputValues(t.InputFields, includeDeprecated), true
	}
	return nil, false
}

// wrapperField serves __Type fields for LIST and NON_NULL references.
func (r *runtime) wrapperField(ref *schema.TypeRef, field string) (any, bool) {
	switch field {
	case "kind":
		return string(ref.Kind), true
	case "ofType":
		return r.typeOf(ref.OfType), true
	case "name", "description", "specifiedByURL", "fields", "interfaces",
		"possibleTypes", "enumValues", "inputFields", "isOneOf":
		return nil, true
	}
	return nil, false
}

func (r *runtime) fieldField(f *schema.Field, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return f.Name, true
	case "description":
		return optional(f.Description), true
	case "args":
		return filterInputValues(f.Arguments, boolArg(args, "includeDeprecated")), true
	case "type":
		return r.typeOf(f.Type), true
	case "isDeprecated":
		return f.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(f.IsDeprecated, f.DeprecationReason), true
	}
	return nil, false
}

func (r *runtime) inputValueField(iv *schema.InputValue, field string) (any, bool) {
	switch field {
	case "name":
		return iv.Name, true
	case "description":
		return optional(iv.Description), true
	case "type":
		return r.typeOf(iv.Type), true
	case "defaultValue":
		return optional(iv.DefaultLiteral), true
	case "isDeprecated":
		return iv.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(iv.IsDeprecated, iv.DeprecationReason), true
	}
	return nil, false
}

func enumValueField(ev *schema.EnumValue, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return optional(ev.Description), true
	case "isDeprecated":
		return ev.IsDeprecated, true
	case "deprecationReason":
		return deprecationReason(ev.IsDeprecated, ev.DeprecationReason), true
	}
	return nil, false
}

func (r *runtime) directiveField(d *schema.Directive, field string, args map[string]any) (any, bool) {
	switch field {
	case "name":
		return d.Name, true
	case "description":
		return optional(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		return append([]string(nil), d.Locations...), true
	case "args":
		return filterInputValues(d.Arguments, boolArg(args, "includeDeprecated")), true
	}
	return nil, false
}

func (r *runtime) namedTypes(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t := r.schema.Types[name]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

func filterInputValues(values []*schema.InputValue, includeDeprecated bool) []*schema.InputValue {
	out := []*schema.InputValue{}
	for _, iv := range values {
		if includeDeprecated || !iv.IsDeprecated {
			out = append(out, iv)
		}
	}
	return out
}

func deprecationReason(deprecated bool, reason string) any {
	if !deprecated {
		return nil
	}
	return reason
}

// optional maps the empty string to null.
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}
