// Package provider turns SDL into an executable schema: it reads the source
// (or a cached parse of it), validates it against the GraphQL prelude, and
// attaches the registered resolvers type by type.
package provider

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
	language "github.com/hanpama/gqlendpoint/internal/language"
	"github.com/hanpama/gqlendpoint/internal/resolver"
	"github.com/hanpama/gqlendpoint/internal/schema"
	"github.com/hanpama/gqlendpoint/internal/schemacache"
)

// Executable pairs the validated gqlparser schema, used to validate queries,
// with the executor's schema carrying the resolvers.
type Executable struct {
	AST    *ast.Schema
	Schema *schema.Schema
}

// Provider builds Executables. It is safe for concurrent use as long as the
// resolver registry is not modified while building.
type Provider struct {
	source     Source
	resolvers  *resolver.Registry
	cache      schemacache.Cache
	decorators []schema.Decorator
	log        *zap.Logger
}

type Option func(*Provider)

// WithCache enables the parse cache. A nil cache disables it.
func WithCache(c schemacache.Cache) Option {
	return func(p *Provider) { p.cache = c }
}

// WithDecorator adds a decorator that runs after resolvers are attached.
func WithDecorator(d schema.Decorator) Option {
	return func(p *Provider) { p.decorators = append(p.decorators, d) }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

func New(source Source, resolvers *resolver.Registry, opts ...Option) *Provider {
	if resolvers == nil {
		resolvers = resolver.NewRegistry()
	}
	p := &Provider{source: source, resolvers: resolvers, log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Resolvers returns the registry consulted on every build.
func (p *Provider) Resolvers() *resolver.Registry { return p.resolvers }

// BuildSchema returns a new Executable on every call. Failures are
// *apperr.SchemaBuildError.
func (p *Provider) BuildSchema(ctx context.Context) (*Executable, error) {
	start := time.Now()
	exe, fromCache, err := p.build(ctx)
	ev := events.SchemaBuilt{Source: p.source.Name(), FromCache: fromCache, Duration: time.Since(start), Err: err}
	if exe != nil {
		ev.Types = len(exe.Schema.Types)
	}
	eventbus.Publish(ctx, ev)
	if err != nil {
		return nil, apperr.SchemaBuild(err)
	}
	return exe, nil
}

func (p *Provider) build(ctx context.Context) (*Executable, bool, error) {
	doc, fromCache, err := p.document(ctx)
	if err != nil {
		return nil, false, err
	}

	prelude, err := parser.ParseSchema(validator.Prelude)
	if err != nil {
		return nil, fromCache, errors.Wrap(err, "parse prelude")
	}
	merged := &ast.SchemaDocument{}
	merged.Merge(prelude)
	merged.Merge(doc)

	src, err := validator.ValidateSchemaDocument(merged)
	if err != nil {
		return nil, fromCache, err
	}

	sch, err := schema.BuildFromAST(src, p.decorate)
	if err != nil {
		return nil, fromCache, err
	}
	for _, name := range p.resolvers.Types() {
		if sch.Types[name] == nil {
			p.log.Warn("resolver registered for a type the schema does not define", zap.String("type", name))
		}
	}
	return &Executable{AST: src, Schema: sch}, fromCache, nil
}

// document returns a freshly parsed or decoded SDL document; validation
// mutates it, so it is never shared between builds.
func (p *Provider) document(ctx context.Context) (*ast.SchemaDocument, bool, error) {
	if p.cache != nil {
		doc, ok, err := p.cache.Load(ctx)
		switch {
		case err != nil:
			p.log.Warn("schema cache unusable, parsing source",
				zap.String("backend", p.cache.Name()), zap.Error(err))
		case ok:
			return doc, true, nil
		}
	}

	sdl, err := p.source.Read(ctx)
	if err != nil {
		return nil, false, err
	}
	doc, err := language.ParseSchema(p.source.Name(), sdl)
	if err != nil {
		return nil, false, err
	}

	if p.cache != nil {
		err := p.cache.Store(ctx, doc)
		eventbus.Publish(ctx, events.SchemaCacheStored{Backend: p.cache.Name(), Err: err})
		if err != nil {
			p.log.Warn("schema cache write failed", zap.String("backend", p.cache.Name()), zap.Error(err))
		}
	}
	return doc, false, nil
}

func (p *Provider) decorate(cfg schema.TypeConfig, def *ast.Definition) schema.TypeConfig {
	if r, ok := p.resolvers.Lookup(cfg.Name); ok {
		cfg.Resolver = r
	}
	for _, d := range p.decorators {
		cfg = d(cfg, def)
	}
	return cfg
}
