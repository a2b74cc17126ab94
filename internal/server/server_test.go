package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/engine"
	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
	"github.com/hanpama/gqlendpoint/internal/loader"
	"github.com/hanpama/gqlendpoint/internal/provider"
	"github.com/hanpama/gqlendpoint/internal/registry"
	"github.com/hanpama/gqlendpoint/internal/reqid"
	"github.com/hanpama/gqlendpoint/internal/resolver"
)

const sdl = `
type Query {
  greet(name: String!): String
  hello: String
  book(id: ID!): Book
  books: [Book!]!
  fail: String
}

type Book {
  id: ID!
  title: String
  author: Author
}

type Author { name: String }
`

type book struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	AuthorID string `json:"-"`
}

type author struct {
	Name string `json:"name"`
}

var shelf = []*book{
	{ID: "1", Title: "Go", AuthorID: "ann"},
	{ID: "2", Title: "Rust", AuthorID: "bob"},
	{ID: "3", Title: "Go 2", AuthorID: "ann"},
}

type fixture struct {
	mu       sync.Mutex
	batches  [][]string
	captured *resolver.RequestContext
	md       metadata.MD
}

func (f *fixture) resolvers() *resolver.Registry {
	query := &resolver.Fields{TypeName: "Query", ByField: map[string]resolver.FieldFunc{
		"greet": func(_ context.Context, _ any, args map[string]any, _ *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
			return "Hello " + args["name"].(string), nil
		},
		"hello": func(ctx context.Context, _ any, _ map[string]any, rc *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
			f.mu.Lock()
			f.captured = rc
			f.md, _ = metadata.FromOutgoingContext(ctx)
			f.mu.Unlock()
			if greeting, ok := resolver.Service[string](rc, "greeting"); ok {
				return greeting, nil
			}
			return "world", nil
		},
		"book": func(_ context.Context, _ any, args map[string]any, _ *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
			return nil, apperr.NewClientError("NOT_FOUND", "book %v not found", args["id"])
		},
		"books": func(context.Context, any, map[string]any, *resolver.RequestContext, *resolver.ResolveInfo) (any, error) {
			return shelf, nil
		},
		"fail": func(context.Context, any, map[string]any, *resolver.RequestContext, *resolver.ResolveInfo) (any, error) {
			return nil, errors.New("dial tcp 10.0.0.1:5432: connection refused")
		},
	}}
	bookResolver := &resolver.Fields{TypeName: "Book", ByField: map[string]resolver.FieldFunc{
		"author": func(_ context.Context, parent any, _ map[string]any, rc *resolver.RequestContext, _ *resolver.ResolveInfo) (any, error) {
			l, err := loader.Get[string, *author](rc.Loaders, "author")
			if err != nil {
				return nil, err
			}
			return l.Load(parent.(*book).AuthorID), nil
		},
	}}
	return resolver.NewRegistry().MustAdd(query, bookResolver)
}

func (f *fixture) authorLoader(_ context.Context, loaders *loader.Registry) {
	_ = loaders.Add(loader.New("author", func(_ context.Context, keys []string) (map[string]*author, error) {
		f.mu.Lock()
		f.batches = append(f.batches, append([]string(nil), keys...))
		f.mu.Unlock()
		out := make(map[string]*author, len(keys))
		for _, k := range keys {
			out[k] = &author{Name: strings.ToUpper(k)}
		}
		return out, nil
	}))
}

func newHandler(t *testing.T, f *fixture, eopts []engine.Option, opts ...Option) *Handler {
	t.Helper()
	p := provider.New(provider.StringSource{SDL: sdl}, f.resolvers())
	return New(p, engine.New(eopts...), opts...)
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) any {
	t.Helper()
	var out any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireBody(t *testing.T, want any, w *httptest.ResponseRecorder) {
	t.Helper()
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyQuery(t *testing.T) {
	h := newHandler(t, &fixture{}, nil)
	w := serve(h, postJSON(`{}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "Query can not be empty")
	require.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestGreet(t *testing.T) {
	h := newHandler(t, &fixture{}, nil)
	w := serve(h, postJSON(`{"query": "{greet(name:\"Person\")}"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Hello Person")
	requireBody(t, map[string]any{"data": map[string]any{"greet": "Hello Person"}}, w)
}

func TestContentTypeMustBeJSON(t *testing.T) {
	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("Content-Type", "text/plain")

	w := serve(newHandler(t, &fixture{}, nil), req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	requireBody(t, map[string]any{"errors": []any{
		map[string]any{"message": apperr.InternalErrorMessage},
	}}, w)

	req = postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("Content-Type", "text/plain")
	w = serve(newHandler(t, &fixture{}, []engine.Option{engine.WithDebug(apperr.IncludeDebugMessage)}), req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "application/json")
}

func TestLenientAcceptsForms(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`query=%7Bhello%7D`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := serve(newHandler(t, &fixture{}, nil, WithLenient()), req)
	require.Equal(t, http.StatusOK, w.Code)
	requireBody(t, map[string]any{"data": map[string]any{"hello": "world"}}, w)
}

func TestClientSafeErrorType(t *testing.T) {
	w := serve(newHandler(t, &fixture{}, nil), postJSON(`{"query":"{ book(id: 7) { title } }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	requireBody(t, map[string]any{
		"data": map[string]any{"book": nil},
		"errors": []any{map[string]any{
			"message":    "book 7 not found",
			"locations":  []any{map[string]any{"line": 1.0, "column": 3.0}},
			"path":       []any{"book"},
			"extensions": map[string]any{"type": "NOT_FOUND"},
		}},
	}, w)
}

func TestInternalErrorIsMasked(t *testing.T) {
	w := serve(newHandler(t, &fixture{}, nil), postJSON(`{"query":"{ fail hello }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "connection refused")
	requireBody(t, map[string]any{
		"data": map[string]any{"fail": nil, "hello": "world"},
		"errors": []any{map[string]any{
			"message":   apperr.InternalErrorMessage,
			"locations": []any{map[string]any{"line": 1.0, "column": 3.0}},
			"path":      []any{"fail"},
		}},
	}, w)
}

func TestQueryValidationErrorsAreOK(t *testing.T) {
	w := serve(newHandler(t, &fixture{}, nil), postJSON(`{"query":"{ nope }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `Cannot query field \"nope\" on type \"Query\".`)
	require.NotContains(t, w.Body.String(), `"data"`)
}

func TestSchemaBuildFailure(t *testing.T) {
	p := provider.New(provider.StringSource{SDL: `type Query { a: Missing }`}, nil)
	w := serve(New(p, engine.New()), postJSON(`{"query":"{ a }"}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	requireBody(t, map[string]any{"errors": []any{
		map[string]any{"message": apperr.InternalErrorMessage},
	}}, w)
}

func TestBatchingCollapsesLoads(t *testing.T) {
	f := &fixture{}
	h := newHandler(t, f, nil, WithMode(Batching), WithLoaderHook(f.authorLoader))
	w := serve(h, postJSON(`{"query":"{ books { title author { name } } }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	requireBody(t, map[string]any{"data": map[string]any{"books": []any{
		map[string]any{"title": "Go", "author": map[string]any{"name": "ANN"}},
		map[string]any{"title": "Rust", "author": map[string]any{"name": "BOB"}},
		map[string]any{"title": "Go 2", "author": map[string]any{"name": "ANN"}},
	}}}, w)
	require.Equal(t, [][]string{{"ann", "bob"}}, f.batches)
}

func TestLoadersArePerRequest(t *testing.T) {
	f := &fixture{}
	h := newHandler(t, f, nil, WithMode(Batching), WithLoaderHook(f.authorLoader))
	serve(h, postJSON(`{"query":"{ books { author { name } } }"}`))
	serve(h, postJSON(`{"query":"{ books { author { name } } }"}`))
	require.Len(t, f.batches, 2)
}

func TestSimpleModeHasNoLoaders(t *testing.T) {
	f := &fixture{}
	w := serve(newHandler(t, f, nil, WithLoaderHook(f.authorLoader)), postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	require.Nil(t, f.captured.Loaders)
	require.Empty(t, f.batches)
}

func TestBatchBody(t *testing.T) {
	f := &fixture{}
	h := newHandler(t, f, nil, WithMode(Batching), WithLoaderHook(f.authorLoader))
	w := serve(h, postJSON(`[{"query":"{ hello }"},{"query":"{ greet(name: $n) }"},{"query":"query($n: String!) { greet(name: $n) }","variables":{"n":"B"}}]`))
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w).([]any)
	require.Len(t, out, 3)
	require.Equal(t, map[string]any{"data": map[string]any{"hello": "world"}}, out[0])
	require.Contains(t, out[1], "errors")
	require.Equal(t, map[string]any{"data": map[string]any{"greet": "Hello B"}}, out[2])

	w = serve(newHandler(t, f, nil), postJSON(`[{"query":"{ hello }"}]`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestResponseHook(t *testing.T) {
	var statuses []int
	hook := func(_ context.Context, res *Response) {
		statuses = append(statuses, res.Status)
		res.Header.Set("X-Served-By", "gqlendpoint")
	}
	h := newHandler(t, &fixture{}, nil, WithMode(Batching), WithResponseHook(hook))

	w := serve(h, postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, "gqlendpoint", w.Header().Get("X-Served-By"))

	w = serve(h, postJSON(`{}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "gqlendpoint", w.Header().Get("X-Served-By"))
	require.Equal(t, []int{http.StatusOK, http.StatusInternalServerError}, statuses)
}

func TestResponseHookCanReplaceBody(t *testing.T) {
	hook := func(_ context.Context, res *Response) {
		res.Status = http.StatusTeapot
		res.Body = map[string]string{"short": "stout"}
	}
	w := serve(newHandler(t, &fixture{}, nil, WithResponseHook(hook)), postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusTeapot, w.Code)
	requireBody(t, map[string]any{"short": "stout"}, w)
}

func TestUnencodableBodyReportsSentStatus(t *testing.T) {
	prev := eventbus.Current()
	eventbus.Use(eventbus.New())
	defer eventbus.Use(prev)

	var finished []events.HTTPFinish
	defer eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
		finished = append(finished, e)
	})()

	hook := func(_ context.Context, res *Response) {
		res.Body = map[string]any{"data": make(chan int)}
	}
	w := serve(newHandler(t, &fixture{}, nil, WithResponseHook(hook)), postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	requireBody(t, map[string]any{"errors": []any{
		map[string]any{"message": apperr.InternalErrorMessage},
	}}, w)

	require.Len(t, finished, 1)
	require.Equal(t, http.StatusInternalServerError, finished[0].Status)
	require.Equal(t, w.Body.Len(), finished[0].Bytes)
}

func TestPanicsBecome500(t *testing.T) {
	hook := func(context.Context, *loader.Registry) { panic("hook exploded") }
	w := serve(newHandler(t, &fixture{}, nil, WithMode(Batching), WithLoaderHook(hook)), postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	requireBody(t, map[string]any{"errors": []any{
		map[string]any{"message": apperr.InternalErrorMessage},
	}}, w)
}

func TestIntrospection(t *testing.T) {
	w := serve(newHandler(t, &fixture{}, nil), postJSON(`{"query":"{ __typename __schema { queryType { name } } }"}`))
	require.Equal(t, http.StatusOK, w.Code)
	requireBody(t, map[string]any{"data": map[string]any{
		"__typename": "Query",
		"__schema":   map[string]any{"queryType": map[string]any{"name": "Query"}},
	}}, w)
}

func TestRequestContext(t *testing.T) {
	f := &fixture{}
	services := registry.New[any]("service")
	require.NoError(t, services.Add("greeting", "hi there"))
	h := newHandler(t, f, nil, WithServices(services))

	req := postJSON(`{"query":"{ hello }"}`)
	w := serve(h, req)
	requireBody(t, map[string]any{"data": map[string]any{"hello": "hi there"}}, w)

	id := w.Header().Get(reqid.Header)
	require.NotEmpty(t, id)
	require.Equal(t, id, f.captured.RequestID)
	require.Same(t, req, f.captured.Request)
	require.Equal(t, []string{id}, f.md.Get("x-request-id"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := &fixture{}
	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set(reqid.Header, "0b9c1f36-6d35-4a43-9f2e-3c1b1c1f4d11")
	w := serve(newHandler(t, f, nil), req)
	require.Equal(t, "0b9c1f36-6d35-4a43-9f2e-3c1b1c1f4d11", w.Header().Get(reqid.Header))

	req = postJSON(`{"query":"{ hello }"}`)
	req.Header.Set(reqid.Header, "not a uuid\nwith newline")
	w = serve(newHandler(t, f, nil), req)
	require.NotContains(t, w.Header().Get(reqid.Header), "not a uuid")
}

func TestForwardedHeaders(t *testing.T) {
	f := &fixture{}
	h := newHandler(t, f, nil, WithMetadataHeaders("X-Test"))

	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("X-Test", "abc")
	req.Header.Set("X-Other", "nope")
	w := serve(h, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if f.md == nil || f.md.Get("x-test")[0] != "abc" || len(f.md.Get("x-other")) > 0 {
		t.Fatalf("metadata not propagated correctly: %v", f.md)
	}
}

func TestForwardedHeadersDefaultEmpty(t *testing.T) {
	f := &fixture{}
	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("X-Test", "abc")
	w := serve(newHandler(t, f, nil), req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if len(f.md.Get("x-test")) > 0 {
		t.Fatalf("header should not be forwarded by default: %v", f.md)
	}
}

func TestCORSAndPreflight(t *testing.T) {
	h := newHandler(t, &fixture{}, nil, WithCORS("*"))

	// simple request
	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("Origin", "http://example.com")
	w := serve(h, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}

	// preflight
	pre := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := serve(h, pre)
	if pw.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", pw.Code)
	}
	if pw.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight missing CORS header")
	}
	if pw.Header().Get("Access-Control-Allow-Headers") != "X-Test" {
		t.Fatalf("preflight missing allow headers")
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := newHandler(t, &fixture{}, nil, WithMaxBodyBytes(10))
	w := serve(h, postJSON(`{"query":"1234567890"}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
}

func TestGraphiQL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := serve(newHandler(t, &fixture{}, nil), req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "GraphiQL.createFetcher")

	w = serve(newHandler(t, &fixture{}, nil, WithGraphiQL(false)), req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGzipResponse(t *testing.T) {
	req := postJSON(`{"query":"{ hello }"}`)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	w := serve(newHandler(t, &fixture{}, nil), req)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.JSONEq(t, `{"data":{"hello":"world"}}`, string(body))
}

func TestPretty(t *testing.T) {
	w := serve(newHandler(t, &fixture{}, nil, WithPretty()), postJSON(`{"query":"{ hello }"}`))
	require.Equal(t, "{\n  \"data\": {\n    \"hello\": \"world\"\n  }\n}\n", w.Body.String())
}

func TestDispatchWithoutHTTPServer(t *testing.T) {
	h := newHandler(t, &fixture{}, nil)
	res := h.Dispatch(context.Background(), postJSON(`{"query":"{ greet(name: \"Go\") }"}`))
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, &engine.Result{Data: map[string]any{"greet": "Hello Go"}}, res.Body)
}
