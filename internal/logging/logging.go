// Package logging builds the endpoint's zap logger and turns bus events into
// log lines.
package logging

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
	"github.com/hanpama/gqlendpoint/internal/reqid"
)

// New returns a JSON logger at level, or a console logger with caller and
// stack information when development is set.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Subscribe writes an access log line per HTTP request and debug lines for
// schema builds, loader dispatches and GraphQL operations. It returns a
// function removing the subscriptions.
func Subscribe(log *zap.Logger) (unsubscribe func()) {
	offs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			fields := []zap.Field{
				requestID(ctx),
				zap.String("method", e.Request.Method),
				zap.String("path", e.Request.URL.Path),
				zap.Int("status", e.Status),
				zap.String("size", humanize.Bytes(uint64(e.Bytes))),
				zap.Duration("duration", e.Duration),
			}
			if e.Status >= 500 {
				log.Warn("http request", fields...)
				return
			}
			log.Info("http request", fields...)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			if ce := log.Check(zapcore.DebugLevel, "graphql operation"); ce != nil {
				ce.Write(
					requestID(ctx),
					zap.String("operation", e.OperationName),
					zap.String("type", e.OperationType),
					zap.Int("errors", len(e.Errors)),
					zap.Duration("duration", e.Duration),
				)
			}
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SchemaBuilt) {
			if e.Err != nil {
				log.Error("schema build failed", requestID(ctx), zap.String("source", e.Source), zap.Error(e.Err))
				return
			}
			log.Debug("schema built",
				requestID(ctx),
				zap.String("source", e.Source),
				zap.Bool("from_cache", e.FromCache),
				zap.String("types", humanize.Comma(int64(e.Types))),
				zap.Duration("duration", e.Duration),
			)
		}),

		eventbus.Subscribe(func(_ context.Context, e events.SchemaCacheStored) {
			if e.Err != nil {
				log.Warn("schema cache store failed", zap.String("backend", e.Backend), zap.Error(e.Err))
				return
			}
			log.Debug("schema cache stored", zap.String("backend", e.Backend))
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.LoaderDispatch) {
			fields := []zap.Field{
				requestID(ctx),
				zap.String("loader", e.Loader),
				zap.Int("keys", e.Keys),
				zap.Duration("duration", e.Duration),
			}
			if e.Err != nil {
				log.Warn("loader dispatch failed", append(fields, zap.Error(e.Err))...)
				return
			}
			log.Debug("loader dispatch", fields...)
		}),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func requestID(ctx context.Context) zap.Field {
	rid, _ := reqid.FromContext(ctx)
	return zap.String("request_id", rid)
}
