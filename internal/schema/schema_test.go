package schema

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/hanpama/gqlendpoint/internal/resolver"
)

const librarySDL = `
"Entry point"
type Query {
  greet(name: String! = "World"): String!
  books(first: Int = 10): [Book!]!
  node(id: ID!): Node
}

interface Node { id: ID! }

type Book implements Node {
  id: ID!
  title: String!
  isbn: String @deprecated(reason: "use id")
  author: Author
}

type Author implements Node {
  id: ID!
  name: String!
}

union SearchResult = Book | Author

enum Genre { FICTION SCIENCE @deprecated }

input BookFilter @oneOf {
  genre: Genre
  title: String
}

scalar Date @specifiedBy(url: "https://example.com/date")
`

func loadAST(t *testing.T, sdl string) *ast.Schema {
	t.Helper()
	s, err := validator.LoadSchema(validator.Prelude, &ast.Source{Name: "test.graphql", Input: sdl})
	require.NoError(t, err)
	return s
}

func TestLoadASTIncludesPreludeOnce(t *testing.T) {
	s := loadAST(t, librarySDL)
	require.NotNil(t, s.Types["Int"])
	require.True(t, s.Types["Int"].BuiltIn)
	require.NotNil(t, s.Directives["skip"])
	require.NotNil(t, s.Types["Book"])
}

func noop(typeName string) resolver.Resolver {
	return &resolver.Func{TypeName: typeName, Fn: func(context.Context, any, map[string]any, *resolver.RequestContext, *resolver.ResolveInfo) (any, error) {
		return nil, nil
	}}
}

func TestBuildFromASTAttachesResolvers(t *testing.T) {
	seen := map[string]TypeKind{}
	decorate := func(cfg TypeConfig, def *ast.Definition) TypeConfig {
		seen[cfg.Name] = cfg.Kind
		if cfg.Name == "Query" {
			cfg.Resolver = noop("Query")
		}
		return cfg
	}

	s, err := BuildFromAST(loadAST(t, librarySDL), decorate)
	require.NoError(t, err)

	require.Equal(t, "Query", s.QueryType)
	require.Empty(t, s.MutationType)
	require.Equal(t, TypeKindObject, seen["Book"])
	require.Equal(t, TypeKindScalar, seen["String"])
	require.Equal(t, TypeKindObject, seen["__Schema"])

	q := s.GetQueryType()
	require.NotNil(t, q.Resolver)
	require.True(t, q.Field("greet").Async)
	require.True(t, q.Field("books").Async)
	require.False(t, q.Field("__schema").Async, "meta fields stay synchronous")
	require.False(t, q.Field("__type").Async)

	book := s.Types["Book"]
	require.Nil(t, book.Resolver)
	require.False(t, book.Field("title").Async)
}

func TestBuildFromASTTypeDetails(t *testing.T) {
	s, err := BuildFromAST(loadAST(t, librarySDL), nil)
	require.NoError(t, err)

	q := s.GetQueryType()
	require.Equal(t, "Entry point", q.Description)
	greet := q.Field("greet")
	require.Equal(t, "String!", greet.Type.String())
	require.Len(t, greet.Arguments, 1)
	require.Equal(t, "World", greet.Arguments[0].DefaultValue)
	require.Equal(t, `"World"`, greet.Arguments[0].DefaultLiteral)
	require.Equal(t, "[Book!]!", q.Field("books").Type.String())
	require.Equal(t, int64(10), q.Field("books").Arguments[0].DefaultValue)

	book := s.Types["Book"]
	require.Equal(t, []string{"Node"}, book.Interfaces)
	isbn := book.Field("isbn")
	require.True(t, isbn.IsDeprecated)
	require.Equal(t, "use id", isbn.DeprecationReason)

	node := s.Types["Node"]
	require.ElementsMatch(t, []string{"Book", "Author"}, node.PossibleTypes)
	require.Equal(t, []string{"Book", "Author"}, s.Types["SearchResult"].PossibleTypes)

	genre := s.Types["Genre"]
	want := []*EnumValue{
		{Name: "FICTION"},
		{Name: "SCIENCE", IsDeprecated: true, DeprecationReason: "No longer supported"},
	}
	if diff := cmp.Diff(want, genre.EnumValues); diff != "" {
		t.Fatalf("enum values mismatch (-want +got):\n%s", diff)
	}

	require.True(t, s.Types["BookFilter"].OneOf)
	require.Len(t, s.Types["BookFilter"].InputFields, 2)
	require.Equal(t, "https://example.com/date", *s.Types["Date"].SpecifiedByURL)

	require.Contains(t, s.Directives, "include")
	require.Contains(t, s.Directives, "skip")
	require.Contains(t, s.Directives["skip"].Locations, "FIELD")
}

func TestIsPossibleType(t *testing.T) {
	s, err := BuildFromAST(loadAST(t, librarySDL), nil)
	require.NoError(t, err)

	require.True(t, s.IsPossibleType("Book", "Book"))
	require.True(t, s.IsPossibleType("Node", "Author"))
	require.True(t, s.IsPossibleType("SearchResult", "Book"))
	require.False(t, s.IsPossibleType("Author", "Book"))
	require.False(t, s.IsPossibleType("Missing", "Book"))
}

func TestBuildFromASTRejectsResolverOnLeafType(t *testing.T) {
	decorate := func(cfg TypeConfig, _ *ast.Definition) TypeConfig {
		if cfg.Name == "Genre" {
			cfg.Resolver = noop("Genre")
		}
		return cfg
	}
	_, err := BuildFromAST(loadAST(t, librarySDL), decorate)
	require.ErrorContains(t, err, "Genre")
}

func TestTypeRefHelpers(t *testing.T) {
	ref := NonNullType(ListType(NonNullType(NamedType("Book"))))
	require.True(t, IsNonNull(ref))
	require.True(t, IsList(ref))
	require.Equal(t, "Book", GetNamedType(ref))
	require.Equal(t, "[Book!]", Unwrap(ref).String())
	require.False(t, IsList(NamedType("Book")))
}
