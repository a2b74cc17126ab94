// Package engine executes GraphQL operations against a provider.Executable:
// it parses and validates the query with gqlparser, runs the breadth-first
// executor with a runtime that dispatches to the registered resolvers, and
// formats the outcome into the response shape.
package engine

import (
	"context"
	"time"

	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"

	"github.com/hanpama/gqlendpoint/internal/apperr"
	"github.com/hanpama/gqlendpoint/internal/eventbus"
	"github.com/hanpama/gqlendpoint/internal/events"
	"github.com/hanpama/gqlendpoint/internal/executor"
	"github.com/hanpama/gqlendpoint/internal/introspection"
	language "github.com/hanpama/gqlendpoint/internal/language"
	"github.com/hanpama/gqlendpoint/internal/provider"
	"github.com/hanpama/gqlendpoint/internal/request"
	"github.com/hanpama/gqlendpoint/internal/resolver"
)

// Result is the response body of one operation.
type Result struct {
	Data   any                     `json:"data,omitempty"`
	Errors []apperr.FormattedError `json:"errors,omitempty"`
}

// Engine is safe for concurrent use.
type Engine struct {
	formatter *apperr.Formatter
	debug     apperr.DebugFlag
	maxTokens int
	log       *zap.Logger
}

type Option func(*Engine)

func WithFormatter(f *apperr.Formatter) Option {
	return func(e *Engine) {
		if f != nil {
			e.formatter = f
		}
	}
}

// WithDebug selects the internal details exposed in formatted errors.
func WithDebug(flags apperr.DebugFlag) Option { return func(e *Engine) { e.debug = flags } }

// WithMaxTokens caps the number of lexer tokens of a query; 0 means no cap.
func WithMaxTokens(n int) Option { return func(e *Engine) { e.maxTokens = n } }

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{formatter: apperr.NewFormatter(), log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Formatter() *apperr.Formatter { return e.formatter }

func (e *Engine) Debug() apperr.DebugFlag { return e.debug }

// Execute runs one operation. Query syntax and validation errors, as well as
// field errors, are returned inside the Result; Execute itself never fails.
func (e *Engine) Execute(ctx context.Context, exe *provider.Executable, rc *resolver.RequestContext, params request.Params) *Result {
	doc, err := language.ParseQueryLimit(params.Query, e.maxTokens)
	if err != nil {
		return &Result{Errors: e.formatter.Format(err, e.debug)}
	}

	opType := ""
	if op := doc.Operations.ForName(params.OperationName); op != nil {
		opType = string(op.Operation)
	}
	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{Query: params.Query, OperationName: params.OperationName, OperationType: opType})

	res, errs := e.execute(ctx, exe, rc, doc, params)

	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         params.Query,
		OperationName: params.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return res
}

func (e *Engine) execute(ctx context.Context, exe *provider.Executable, rc *resolver.RequestContext, doc *language.QueryDocument, params request.Params) (*Result, []error) {
	if list := validator.ValidateWithRules(exe.AST, doc, nil); len(list) > 0 {
		errs := make([]error, len(list))
		for i, err := range list {
			errs[i] = err
		}
		return &Result{Errors: e.formatter.Format(list, e.debug)}, errs
	}

	rt := introspection.Wrap(newRuntime(exe, rc), exe.Schema)
	res := executor.NewExecutor(rt, exe.Schema).ExecuteRequest(ctx, doc, params.OperationName, params.Variables, nil)

	out := &Result{Data: res.Data}
	errs := make([]error, len(res.Errors))
	for i, ge := range res.Errors {
		errs[i] = ge
		if ge.Cause != nil {
			e.log.Debug("field error", zap.Any("path", ge.Path), zap.Error(ge.Cause))
		}
		out.Errors = append(out.Errors, e.formatter.FormatField(ge.Cause, ge.Message, pathOf(ge.Path), locationsOf(ge.Locations), e.debug))
	}
	return out, errs
}

func pathOf(p executor.Path) []any {
	if len(p) == 0 {
		return nil
	}
	out := make([]any, len(p))
	for i, el := range p {
		out[i] = el
	}
	return out
}

func locationsOf(locs []executor.Location) []apperr.Location {
	if len(locs) == 0 {
		return nil
	}
	out := make([]apperr.Location, len(locs))
	for i, l := range locs {
		out[i] = apperr.Location{Line: l.Line, Column: l.Column}
	}
	return out
}
