package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/gqlendpoint/internal/bookstore"
	"github.com/hanpama/gqlendpoint/internal/config"
	"github.com/hanpama/gqlendpoint/internal/engine"
	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/logging"
	"github.com/hanpama/gqlendpoint/internal/metrics"
	"github.com/hanpama/gqlendpoint/internal/otel"
	"github.com/hanpama/gqlendpoint/internal/provider"
	"github.com/hanpama/gqlendpoint/internal/registry"
	"github.com/hanpama/gqlendpoint/internal/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP GraphQL endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
			if err != nil {
				return errors.Wrap(err, "otel setup")
			}
			defer func() { _ = shutdown(context.Background()) }()

			app, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			// Fail fast on a broken schema instead of answering 500s.
			if _, err := app.provider.BuildSchema(cmd.Context()); err != nil {
				return err
			}
			return app.serve(cmd.Context(), cfg.Server.Addr)
		},
	}
}

// app is the wired endpoint: the bookstore domain behind the GraphQL handler,
// plus the metrics and health endpoints.
type app struct {
	log      *zap.Logger
	provider *provider.Provider
	mux      *http.ServeMux
	closers  []func()
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log, mux: http.NewServeMux()}

	eventbus.Use(eventbus.New())
	a.closers = append(a.closers, func() { eventbus.Use(nil) })
	a.closers = append(a.closers, logging.Subscribe(log))
	m := metrics.New()
	a.closers = append(a.closers, m.Subscribe())

	cache, closeCache, err := openCache(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeCache)

	store := bookstore.Seed()
	services := registry.New[any]("service")
	if err := bookstore.Register(services, store); err != nil {
		a.Close()
		return nil, err
	}

	popts := []provider.Option{provider.WithLogger(log)}
	if cache != nil {
		popts = append(popts, provider.WithCache(cache))
	}
	a.provider = provider.New(provider.FileSource{Path: cfg.GraphQL.Schema}, bookstore.Resolvers(), popts...)

	eng := engine.New(
		engine.WithDebug(cfg.DebugFlags()),
		engine.WithMaxTokens(cfg.GraphQL.MaxTokens),
		engine.WithLogger(log),
	)

	mode := server.Simple
	if cfg.Server.Mode == "batching" {
		mode = server.Batching
	}
	sopts := []server.Option{
		server.WithMode(mode),
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithServices(services),
		server.WithLoaderHook(bookstore.Loaders(store)),
		server.WithLogger(log),
	}
	if cfg.Server.Lenient {
		sopts = append(sopts, server.WithLenient())
	}
	if cfg.Server.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	if len(cfg.Server.MetadataHeaders) > 0 {
		sopts = append(sopts, server.WithMetadataHeaders(cfg.Server.MetadataHeaders...))
	}

	a.mux.Handle("/graphql", server.New(a.provider, eng, sopts...))
	a.mux.Handle("/metrics", m.Handler())
	a.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	log.Info("endpoint configured",
		zap.Stringer("mode", mode),
		zap.String("schema", cfg.GraphQL.Schema),
		zap.Bool("schema_cache", cache != nil),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: a.mux, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("GraphQL server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
