// Package server is the HTTP dispatcher of the endpoint. Every request runs
// validation, schema build and execution, and is answered with a JSON body:
// status 200 once execution ran (field errors included), status 500 with
// {"errors": [...]} when anything before or around execution failed.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/engine"
	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
	"github.com/hanpama/gqlendpoint/internal/loader"
	"github.com/hanpama/gqlendpoint/internal/provider"
	"github.com/hanpama/gqlendpoint/internal/registry"
	"github.com/hanpama/gqlendpoint/internal/reqid"
	"github.com/hanpama/gqlendpoint/internal/request"
	"github.com/hanpama/gqlendpoint/internal/resolver"
)

// Mode selects how resolvers are executed.
type Mode int

const (
	// Simple executes one operation per request without loaders.
	Simple Mode = iota
	// Batching gives every request a loader registry, so deferred loads of
	// one execution wave share a batch call, and accepts batched bodies.
	Batching
)

func (m Mode) String() string {
	if m == Batching {
		return "batching"
	}
	return "simple"
}

// Response is the outcome of one dispatch before it is written. Response
// hooks may change any part of it.
type Response struct {
	Status int
	Header http.Header
	// Body is encoded as JSON: an *engine.Result, or a slice of them for
	// batched requests.
	Body any
}

// LoaderHook registers request-scoped loaders before the request is
// validated.
type LoaderHook func(ctx context.Context, loaders *loader.Registry)

// ResponseHook runs after dispatch and before the response is written.
type ResponseHook func(ctx context.Context, res *Response)

// Handler is an http.Handler that serves a GraphQL endpoint.
type Handler struct {
	provider  *provider.Provider
	engine    *engine.Engine
	validator *request.Validator
	opt       Options
}

type Options struct {
	Mode Mode

	// Lenient accepts GET query strings and form bodies besides JSON.
	Lenient bool

	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into outgoing gRPC
	// metadata for resolvers calling gRPC backends. Header names are
	// case-insensitive. Default is none.
	MetadataHeaders []string

	// GraphiQL enables the in-browser IDE when true.
	GraphiQL bool

	// Services is handed to resolvers through the request context.
	Services *registry.Registry[any]

	LoaderHooks   []LoaderHook
	ResponseHooks []ResponseHook

	Logger *zap.Logger
}

type Option func(*Options)

func WithMode(m Mode) Option             { return func(o *Options) { o.Mode = m } }
func WithLenient() Option                { return func(o *Options) { o.Lenient = true } }
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithGraphiQL(enable bool) Option    { return func(o *Options) { o.GraphiQL = enable } }
func WithLogger(l *zap.Logger) Option    { return func(o *Options) { o.Logger = l } }
func WithLoaderHook(h LoaderHook) Option {
	return func(o *Options) { o.LoaderHooks = append(o.LoaderHooks, h) }
}
func WithResponseHook(h ResponseHook) Option {
	return func(o *Options) { o.ResponseHooks = append(o.ResponseHooks, h) }
}
func WithServices(s *registry.Registry[any]) Option { return func(o *Options) { o.Services = s } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler building its schema with p and executing
// operations with e.
func New(p *provider.Provider, e *engine.Engine, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second, GraphiQL: true}
	for _, f := range opts {
		f(&op)
	}
	if op.Logger == nil {
		op.Logger = zap.NewNop()
	}
	if op.Services == nil {
		op.Services = registry.New[any]("service")
	}

	vopts := []request.Option{request.WithMaxBodyBytes(op.MaxBodyBytes)}
	if op.Lenient {
		vopts = append(vopts, request.Lenient())
	}
	if op.Mode == Batching {
		vopts = append(vopts, request.AllowBatch())
	}
	return &Handler{provider: p, engine: e, validator: request.NewValidator(vopts...), opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status, written := http.StatusOK, 0
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Bytes: written, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if r.Method == http.MethodOptions {
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	// Serve GraphiQL IDE when enabled and the client expects HTML.
	if r.Method == http.MethodGet && h.opt.GraphiQL && acceptsHTML(r.Header.Get("Accept")) && r.URL.Query().Get("query") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		written, _ = io.WriteString(w, graphiqlPage)
		return
	}

	// Map configured headers into metadata
	md := metadata.MD{}
	if len(h.opt.MetadataHeaders) > 0 {
		allowed := make(map[string]struct{}, len(h.opt.MetadataHeaders))
		for _, hdr := range h.opt.MetadataHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
	}
	md[strings.ToLower(reqid.Header)] = []string{rid}
	ctx = metadata.NewOutgoingContext(ctx, md)

	status, written = h.write(w, r, h.Dispatch(ctx, r))
}

// Dispatch runs one request through validation, schema build and execution.
// It never fails: errors and panics become a 500 Response.
func (h *Handler) Dispatch(ctx context.Context, r *http.Request) (res *Response) {
	defer func() {
		if p := recover(); p != nil {
			h.opt.Logger.Error("panic while dispatching request", zap.Any("panic", p), zap.Stack("stack"))
			res = h.failure(ctx, errors.Errorf("panic: %v", p))
		}
		h.runResponseHooks(ctx, res)
	}()

	var loaders *loader.Registry
	if h.opt.Mode == Batching {
		loaders = loader.NewRegistry()
		for _, hook := range h.opt.LoaderHooks {
			hook(ctx, loaders)
		}
	}

	req, err := h.validator.Validate(r)
	if err != nil {
		return h.failure(ctx, err)
	}

	exe, err := h.provider.BuildSchema(ctx)
	if err != nil {
		return h.failure(ctx, err)
	}

	rid, _ := reqid.FromContext(ctx)
	rc := &resolver.RequestContext{Services: h.opt.Services, Request: r, Loaders: loaders, RequestID: rid}

	if !req.Batch {
		return &Response{Status: http.StatusOK, Header: http.Header{}, Body: h.engine.Execute(ctx, exe, rc, req.Operations[0])}
	}
	// Operations of a batch run in order and share the loader registry, so
	// keys loaded by an earlier operation are served from its cache.
	results := make([]*engine.Result, len(req.Operations))
	for i, params := range req.Operations {
		results[i] = h.engine.Execute(ctx, exe, rc, params)
	}
	return &Response{Status: http.StatusOK, Header: http.Header{}, Body: results}
}

func (h *Handler) runResponseHooks(ctx context.Context, res *Response) {
	defer func() {
		if p := recover(); p != nil {
			h.opt.Logger.Error("panic in response hook", zap.Any("panic", p))
			*res = *h.failure(ctx, errors.Errorf("panic: %v", p))
		}
	}()
	for _, hook := range h.opt.ResponseHooks {
		hook(ctx, res)
	}
}

func (h *Handler) failure(ctx context.Context, err error) *Response {
	var (
		invalid *apperr.InvalidRequestError
		empty   *apperr.EmptyQueryError
	)
	if errors.As(err, &invalid) || errors.As(err, &empty) {
		h.opt.Logger.Debug("request rejected", zap.Error(err))
	} else {
		rid, _ := reqid.FromContext(ctx)
		h.opt.Logger.Error("request failed", zap.String("request_id", rid), zap.Error(err))
	}
	return &Response{
		Status: http.StatusInternalServerError,
		Header: http.Header{},
		Body:   &engine.Result{Errors: h.engine.Formatter().Format(err, h.engine.Debug())},
	}
}

// write encodes res and returns the number of body bytes written.
// write sends res and reports the status and body bytes actually sent. A body
// that fails to encode is replaced by a 500 response.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, res *Response) (status, n int) {
	body, err := encode(res.Body, h.opt.Pretty)
	if err != nil {
		h.opt.Logger.Error("encode response", zap.Error(err))
		res = h.failure(r.Context(), errors.Wrap(err, "encode response"))
		body, _ = encode(res.Body, h.opt.Pretty)
	}

	for k, vs := range res.Header {
		w.Header()[k] = vs
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	var out io.Writer = w
	// If the receiver accepts gzip, then we would update the writer
	// and send gzipped content instead.
	if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gzw := gzip.NewWriter(w)
		defer gzw.Close()
		out = gzw
	}
	w.WriteHeader(res.Status)
	n, err = out.Write(body)
	if err != nil {
		h.opt.Logger.Debug("write response", zap.Error(err))
	}
	return res.Status, n
}

func encode(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	if accept == "" {
		return false
	}
	for _, p := range strings.Split(accept, ",") {
		p = strings.TrimSpace(p)
		if strings.HasPrefix(p, "text/html") {
			return true
		}
	}
	return false
}
