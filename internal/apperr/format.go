package apperr

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// DebugFlag selects which internal details the formatter may expose.
type DebugFlag int

const (
	IncludeDebugMessage DebugFlag = 1 << iota
	IncludeTrace

	DebugNone DebugFlag = 0
	DebugAll            = IncludeDebugMessage | IncludeTrace
)

// Has reports whether all bits of o are set in f.
func (f DebugFlag) Has(o DebugFlag) bool { return f&o == o }

// InternalErrorMessage replaces the message of errors that are not client-safe.
const InternalErrorMessage = "Unexpected error"

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// FormattedError is the GraphQL error shape written to responses.
type FormattedError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Formatter converts errors into FormattedErrors, masking internal details.
type Formatter struct {
	internalMessage string
}

// NewFormatter returns a Formatter that masks internal errors with
// InternalErrorMessage.
func NewFormatter() *Formatter {
	return &Formatter{internalMessage: InternalErrorMessage}
}

// WithInternalMessage returns a copy of f using msg for masked errors.
func (f *Formatter) WithInternalMessage(msg string) *Formatter {
	return &Formatter{internalMessage: msg}
}

// Format formats an error that escaped dispatch. A gqlerror.List yields one
// entry per element; every other error yields exactly one entry.
func (f *Formatter) Format(err error, flags DebugFlag) []FormattedError {
	if err == nil {
		return nil
	}
	var list gqlerror.List
	if errors.As(err, &list) && len(list) > 0 {
		out := make([]FormattedError, 0, len(list))
		for _, e := range list {
			out = append(out, f.format(e, flags))
		}
		return out
	}
	return []FormattedError{f.format(err, flags)}
}

// FormatField formats an error recorded during field resolution. cause is the
// Go error returned by the resolver, or nil when the executor produced message
// itself (non-null violations, argument coercion); such messages are shown
// verbatim.
func (f *Formatter) FormatField(cause error, message string, path []any, locations []Location, flags DebugFlag) FormattedError {
	if cause == nil {
		return FormattedError{Message: message, Path: path, Locations: locations}
	}
	out := f.format(cause, flags)
	if len(path) > 0 {
		out.Path = path
	}
	if len(out.Locations) == 0 {
		out.Locations = locations
	}
	return out
}

func (f *Formatter) format(err error, flags DebugFlag) FormattedError {
	var out FormattedError

	var (
		gqlErr   *gqlerror.Error
		aware    ClientAware
		buildErr *SchemaBuildError
	)
	switch {
	case errors.As(err, &buildErr):
		// SDL errors describe the server's schema, not the client's query.
		out.Message = f.internalMessage
		if flags.Has(IncludeDebugMessage) {
			out.setExtension("debugMessage", err.Error())
		}
	case errors.As(err, &gqlErr):
		out.Message = gqlErr.Message
		for _, loc := range gqlErr.Locations {
			if loc.Line <= 0 {
				continue
			}
			out.Locations = append(out.Locations, Location{Line: loc.Line, Column: loc.Column})
		}
		for _, p := range gqlErr.Path {
			switch v := p.(type) {
			case ast.PathName:
				out.Path = append(out.Path, string(v))
			case ast.PathIndex:
				out.Path = append(out.Path, int(v))
			}
		}
	case errors.As(err, &aware) && aware.IsClientSafe():
		out.Message = aware.Error()
		out.setExtension("type", aware.ExceptionType())
	default:
		out.Message = f.internalMessage
		if flags.Has(IncludeDebugMessage) {
			out.setExtension("debugMessage", err.Error())
		}
	}

	if flags.Has(IncludeTrace) {
		if frames := stackFrames(err); len(frames) > 0 {
			out.setExtension("trace", frames)
		}
	}
	return out
}

func (e *FormattedError) setExtension(key string, value any) {
	if e.Extensions == nil {
		e.Extensions = map[string]any{}
	}
	e.Extensions[key] = value
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// stackFrames returns the deepest stack trace recorded in err's chain.
func stackFrames(err error) []string {
	var deepest errors.StackTrace
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			deepest = st.StackTrace()
		}
	}
	if len(deepest) == 0 {
		return nil
	}
	out := make([]string, len(deepest))
	for i, fr := range deepest {
		out[i] = fmt.Sprintf("%n (%s:%d)", fr, fr, fr)
	}
	return out
}
