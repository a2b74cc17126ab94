package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hanpama/gqlendpoint/internal/config"
	"github.com/hanpama/gqlendpoint/internal/eventbus"
)

const schemaFile = "../../res/graphql/schema.graphql"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSchemaCompile(t *testing.T) {
	out, err := run(t, "schema", "compile", "--schema", schemaFile)
	require.NoError(t, err)
	require.Contains(t, out, "type Query {")
	require.Contains(t, out, "greet(name: String!): String")
	require.Contains(t, out, "enum Genre {")
	require.NotContains(t, out, "__schema")
}

func TestSchemaCompileToFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "schema.graphql")
	out, err := run(t, "schema", "compile", "--schema", schemaFile, "--out", dst)
	require.NoError(t, err)
	require.Empty(t, out)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Contains(t, string(data), "type Book {")
}

func TestSchemaCompileRejectsInvalidSDL(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.graphql")
	require.NoError(t, os.WriteFile(bad, []byte(`type Query { a: Missing }`), 0o644))
	_, err := run(t, "schema", "compile", "--schema", bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Missing")
}

func TestCacheLifecycle(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "cache", "schema.ast.zst")

	_, err := run(t, "schema", "compile", "--schema", schemaFile, "--schema-cache", "--cache-path", artifact)
	require.NoError(t, err)
	require.FileExists(t, artifact)

	out, err := run(t, "schema", "clear-cache", "--cache-path", artifact)
	require.NoError(t, err)
	require.Equal(t, "cleared file schema cache\n", out)
	require.NoFileExists(t, artifact)
}

func TestUnknownMode(t *testing.T) {
	_, err := run(t, "schema", "compile", "--schema", schemaFile, "--mode", "eager")
	require.Error(t, err)
}

func TestServeMux(t *testing.T) {
	prev := eventbus.Current()
	defer eventbus.Use(prev)

	v := config.New()
	v.Set("graphql.schema", schemaFile)
	v.Set("server.mode", "batching")
	cfg, err := config.Load(v)
	require.NoError(t, err)

	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		a.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}
	require.Equal(t, http.StatusOK, get("/healthz").Code)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ greet(name: \"Person\") books { author { name } } }"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"greet":"Hello Person"`)
	require.Contains(t, w.Body.String(), `"name":"Carl Sagan"`)

	metrics := get("/metrics").Body.String()
	require.Contains(t, metrics, `gqlendpoint_http_requests_total{code="200"} 1`)
	require.Contains(t, metrics, `gqlendpoint_loader_batches_total{loader="author",outcome="ok"} 1`)
}
