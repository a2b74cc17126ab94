package bookstore

import (
	"context"
	"regexp"

	"github.com/pkg/errors"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/loader"
	"github.com/hanpama/gqlendpoint/internal/registry"
	"github.com/hanpama/gqlendpoint/internal/resolver"
)

// ServiceName is the key of the *Store in the service container.
const ServiceName = "bookstore"

// Loader names registered by Loaders.
const (
	AuthorLoader        = "author"
	BooksByAuthorLoader = "booksByAuthor"
)

// Register adds store to services under ServiceName.
func Register(services *registry.Registry[any], store *Store) error {
	return services.Add(ServiceName, store)
}

// Loaders returns a loader hook registering the store's batch loaders on each
// request.
func Loaders(store *Store) func(context.Context, *loader.Registry) {
	return func(_ context.Context, loaders *loader.Registry) {
		_ = loaders.Add(loader.New(AuthorLoader, store.AuthorsByID))
		_ = loaders.Add(loader.New(BooksByAuthorLoader, store.BooksByAuthor))
	}
}

// Resolvers returns the resolvers of Query, Book and Author.
func Resolvers() *resolver.Registry {
	return resolver.NewRegistry().MustAdd(
		&resolver.Fields{TypeName: "Query", ByField: map[string]resolver.FieldFunc{
			"greet":  greet,
			"books":  books,
			"book":   book,
			"author": author,
		}},
		&resolver.Fields{TypeName: "Book", ByField: map[string]resolver.FieldFunc{
			"author": bookAuthor,
		}},
		&resolver.Fields{TypeName: "Author", ByField: map[string]resolver.FieldFunc{
			"books": authorBooks,
		}},
	)
}

var tags = regexp.MustCompile(`<[^>]*>?`)

func greet(_ context.Context, _ any, args map[string]any, _ *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
	name, _ := args["name"].(string)
	return "Hello " + tags.ReplaceAllString(name, ""), nil
}

func books(_ context.Context, _ any, args map[string]any, rc *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
	s, err := storeOf(rc)
	if err != nil {
		return nil, err
	}
	genre, _ := args["genre"].(string)
	return s.Books(Genre(genre)), nil
}

func book(_ context.Context, _ any, args map[string]any, rc *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
	s, err := storeOf(rc)
	if err != nil {
		return nil, err
	}
	id, _ := args["id"].(string)
	b, ok := s.Book(id)
	if !ok {
		return nil, apperr.NewClientError("NOT_FOUND", "book %q not found", id)
	}
	return b, nil
}

func author(ctx context.Context, _ any, args map[string]any, rc *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
	id, _ := args["id"].(string)
	a, err := loadAuthor(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	return loader.Then(a, func(v any) (any, error) {
		if v.(*Author) == nil {
			return nil, apperr.NewClientError("NOT_FOUND", "author %q not found", id)
		}
		return v, nil
	}), nil
}

func bookAuthor(ctx context.Context, parent any, _ map[string]any, rc *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
	b, ok := parent.(*Book)
	if !ok {
		return nil, errors.Errorf("Book.author: unexpected parent %T", parent)
	}
	return loadAuthor(ctx, rc, b.AuthorID)
}

func authorBooks(ctx context.Context, parent any, _ map[string]any, rc *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
	a, ok := parent.(*Author)
	if !ok {
		return nil, errors.Errorf("Author.books: unexpected parent %T", parent)
	}
	if l, err := loader.Get[string, []*Book](rc.Loaders, BooksByAuthorLoader); err == nil {
		return l.Load(a.ID), nil
	}
	s, err := storeOf(rc)
	if err != nil {
		return nil, err
	}
	byAuthor, err := s.BooksByAuthor(ctx, []string{a.ID})
	if err != nil {
		return nil, err
	}
	return byAuthor[a.ID], nil
}

// loadAuthor defers to the request's author loader when there is one and
// reads the store directly otherwise.
func loadAuthor(ctx context.Context, rc *resolver.RequestContext, id string) (loader.Deferred, error) {
	if l, err := loader.Get[string, *Author](rc.Loaders, AuthorLoader); err == nil {
		return l.Load(id), nil
	}
	s, err := storeOf(rc)
	if err != nil {
		return nil, err
	}
	found, err := s.AuthorsByID(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return loader.Resolved(found[id], nil), nil
}

func storeOf(rc *resolver.RequestContext) (*Store, error) {
	s, ok := resolver.Service[*Store](rc, ServiceName)
	if !ok {
		return nil, errors.Errorf("service %q is not registered", ServiceName)
	}
	return s, nil
}
