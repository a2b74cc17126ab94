package schema

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/hanpama/gqlendpoint/internal/resolver"
)

// TypeConfig is the per-type configuration a Decorator may adjust while the
// executable schema is built.
type TypeConfig struct {
	Name     string
	Kind     TypeKind
	Resolver resolver.Resolver
}

// Decorator is invoked once per named type during BuildFromAST.
type Decorator func(cfg TypeConfig, def *ast.Definition) TypeConfig

// BuildFromAST converts a validated gqlparser schema into an executable
// Schema. Every field of a type whose config carries a Resolver is
// asynchronous, so resolver calls are batched per execution wave; fields of
// other types are resolved synchronously against their parent value.
func BuildFromAST(src *ast.Schema, decorate Decorator) (*Schema, error) {
	if src == nil {
		return nil, errors.New("nil schema")
	}
	if src.Query == nil {
		return nil, errors.New("schema has no query type")
	}

	s := NewSchema(src.Description)
	s.SetQueryType(src.Query.Name)
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}

	names := make([]string, 0, len(src.Types))
	for name := range src.Types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := src.Types[name]
		cfg := TypeConfig{Name: def.Name, Kind: kindOf(def.Kind)}
		if decorate != nil {
			cfg = decorate(cfg, def)
		}
		t, err := buildType(src, def, cfg)
		if err != nil {
			return nil, err
		}
		s.AddType(t)
	}

	for _, dir := range src.Directives {
		s.AddDirective(buildDirective(dir))
	}
	return s, nil
}

func kindOf(k ast.DefinitionKind) TypeKind {
	switch k {
	case ast.Object:
		return TypeKindObject
	case ast.Interface:
		return TypeKindInterface
	case ast.Union:
		return TypeKindUnion
	case ast.Enum:
		return TypeKindEnum
	case ast.InputObject:
		return TypeKindInputObject
	}
	return TypeKindScalar
}

func buildType(src *ast.Schema, def *ast.Definition, cfg TypeConfig) (*Type, error) {
	t := NewType(def.Name, kindOf(def.Kind), def.Description).SetResolver(cfg.Resolver)
	if cfg.Resolver != nil && t.Kind != TypeKindObject && t.Kind != TypeKindInterface && t.Kind != TypeKindUnion {
		return nil, errors.Errorf("resolver for %s: %s types have no fields to resolve", def.Name, t.Kind)
	}

	switch t.Kind {
	case TypeKindObject, TypeKindInterface:
		t.Interfaces = append(t.Interfaces, def.Interfaces...)
		for _, fd := range def.Fields {
			f, err := buildField(fd, cfg.Resolver != nil)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", def.Name, fd.Name)
			}
			t.AddField(f)
		}
		if t.Kind == TypeKindInterface {
			for _, pt := range src.GetPossibleTypes(def) {
				t.AddPossibleType(pt.Name)
			}
		}
	case TypeKindUnion:
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
	case TypeKindEnum:
		for _, ev := range def.EnumValues {
			v := &EnumValue{Name: ev.Name, Description: ev.Description}
			v.IsDeprecated, v.DeprecationReason = deprecation(ev.Directives)
			t.AddEnumValue(v)
		}
	case TypeKindInputObject:
		for _, fd := range def.Fields {
			iv, err := buildInputValue(fd.Name, fd.Description, fd.Type, fd.DefaultValue, fd.Directives)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.%s", def.Name, fd.Name)
			}
			t.AddInputField(iv)
		}
		t.OneOf = def.Directives.ForName("oneOf") != nil
	case TypeKindScalar:
		if d := def.Directives.ForName("specifiedBy"); d != nil {
			if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
	}
	return t, nil
}

func buildField(fd *ast.FieldDefinition, resolverBacked bool) (*Field, error) {
	// Meta fields are answered by the introspection runtime, never by the
	// type's resolver.
	async := resolverBacked && !strings.HasPrefix(fd.Name, "__")
	f := NewField(fd.Name, fd.Description, buildTypeRef(fd.Type)).SetAsync(async)
	if ok, reason := deprecation(fd.Directives); ok {
		f.Deprecate(reason)
	}
	for _, ad := range fd.Arguments {
		iv, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %s", ad.Name)
		}
		f.AddArgument(iv)
	}
	return f, nil
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value, dirs ast.DirectiveList) (*InputValue, error) {
	iv := NewInputValue(name, description, buildTypeRef(typ))
	if def != nil {
		v, err := def.Value(nil)
		if err != nil {
			return nil, errors.Wrap(err, "default value")
		}
		iv.DefaultValue = v
		iv.DefaultLiteral = def.String()
	}
	iv.IsDeprecated, iv.DeprecationReason = deprecation(dirs)
	return iv, nil
}

func buildDirective(d *ast.DirectiveDefinition) *Directive {
	out := &Directive{Name: d.Name, Description: d.Description, IsRepeatable: d.IsRepeatable}
	for _, loc := range d.Locations {
		out.Locations = append(out.Locations, string(loc))
	}
	for _, ad := range d.Arguments {
		iv, err := buildInputValue(ad.Name, ad.Description, ad.Type, ad.DefaultValue, ad.Directives)
		if err != nil {
			// Directive defaults that are not constant are left unset.
			iv = NewInputValue(ad.Name, ad.Description, buildTypeRef(ad.Type))
		}
		out.Arguments = append(out.Arguments, iv)
	}
	return out
}

func buildTypeRef(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(buildTypeRef(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}

func deprecation(dirs ast.DirectiveList) (bool, string) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	reason := "No longer supported"
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		reason = arg.Value.Raw
	}
	return true, reason
}
