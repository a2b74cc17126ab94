package logging

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
	"github.com/hanpama/gqlendpoint/internal/reqid"
)

func TestNew(t *testing.T) {
	log, err := New("debug", false)
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New("warn", true)
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud", false)
	require.Error(t, err)
}

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	prev := eventbus.Current()
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(prev) })

	core, logs := observer.New(level)
	t.Cleanup(Subscribe(zap.New(core)))
	return logs
}

func TestAccessLog(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)
	ctx, rid := reqid.NewContext(context.Background())
	r := httptest.NewRequest("POST", "/graphql", nil)

	eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: 200, Bytes: 2048, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: 500, Bytes: 10})

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	require.Equal(t, rid, fields["request_id"])
	require.Equal(t, "POST", fields["method"])
	require.Equal(t, "/graphql", fields["path"])
	require.EqualValues(t, 200, fields["status"])
	require.Equal(t, "2.0 kB", fields["size"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestDebugEventsRespectLevel(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)
	ctx := context.Background()

	eventbus.Publish(ctx, events.SchemaBuilt{Source: "schema.graphql", Types: 12})
	eventbus.Publish(ctx, events.LoaderDispatch{Loader: "author", Keys: 3})
	eventbus.Publish(ctx, events.GraphQLFinish{OperationName: "Q"})
	require.Zero(t, logs.Len())

	eventbus.Publish(ctx, events.SchemaBuilt{Source: "schema.graphql", Err: errors.New("bad sdl")})
	eventbus.Publish(ctx, events.LoaderDispatch{Loader: "author", Err: errors.New("timeout")})
	eventbus.Publish(ctx, events.SchemaCacheStored{Backend: "file", Err: errors.New("read-only")})
	require.Equal(t, 1, logs.FilterMessage("schema build failed").Len())
	require.Equal(t, 1, logs.FilterMessage("loader dispatch failed").Len())
	require.Equal(t, 1, logs.FilterMessage("schema cache store failed").Len())
}

func TestDebugEvents(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	eventbus.Publish(context.Background(), events.SchemaBuilt{Source: "schema.graphql", FromCache: true, Types: 1234})
	entries := logs.FilterMessage("schema built").All()
	require.Len(t, entries, 1)
	require.Equal(t, "1,234", entries[0].ContextMap()["types"])
	require.Equal(t, true, entries[0].ContextMap()["from_cache"])
}
