// Package apperr defines the error taxonomy of the endpoint and the formatter
// that turns any error into the GraphQL error shape.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// ClientAware is implemented by errors that know whether their message and
// type may be shown to API clients.
type ClientAware interface {
	error
	IsClientSafe() bool
	ExceptionType() string
}

// InvalidRequestError reports a malformed transport-level request.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string { return e.Message }

// InvalidRequest returns an InvalidRequestError carrying a stack trace.
func InvalidRequest(format string, args ...any) error {
	return errors.WithStack(&InvalidRequestError{Message: fmt.Sprintf(format, args...)})
}

// EmptyQueryMessage is the message of every EmptyQueryError.
const EmptyQueryMessage = "Query can not be empty"

// EmptyQueryError reports a request without a query string. It is always
// shown to the client.
type EmptyQueryError struct{}

func (e *EmptyQueryError) Error() string         { return EmptyQueryMessage }
func (e *EmptyQueryError) IsClientSafe() bool    { return true }
func (e *EmptyQueryError) ExceptionType() string { return "EMPTY_QUERY" }

// EmptyQuery returns an EmptyQueryError carrying a stack trace.
func EmptyQuery() error {
	return errors.WithStack(&EmptyQueryError{})
}

// ConfigurationError reports misuse of a registry at wiring time.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// Configuration returns a ConfigurationError carrying a stack trace.
func Configuration(format string, args ...any) error {
	return errors.WithStack(&ConfigurationError{Message: fmt.Sprintf(format, args...)})
}

// NotFoundError reports a lookup of a key that was never registered.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("no entry registered for %q", e.Key) }

// NotFound returns a NotFoundError carrying a stack trace.
func NotFound(key string) error {
	return errors.WithStack(&NotFoundError{Key: key})
}

// SchemaBuildError reports an SDL source that cannot be parsed or built.
type SchemaBuildError struct {
	Cause error
}

func (e *SchemaBuildError) Error() string { return "build schema: " + e.Cause.Error() }
func (e *SchemaBuildError) Unwrap() error { return e.Cause }

// SchemaBuild wraps cause into a SchemaBuildError. A nil cause returns nil.
func SchemaBuild(cause error) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&SchemaBuildError{Cause: cause})
}

// ClientError is a client-safe error raised by resolvers. Its Type is exposed
// as the "type" extension of the formatted error.
type ClientError struct {
	Type    string
	Message string
}

func (e *ClientError) Error() string         { return e.Message }
func (e *ClientError) IsClientSafe() bool    { return true }
func (e *ClientError) ExceptionType() string { return e.Type }

// NewClientError returns a ClientError carrying a stack trace.
func NewClientError(typ, format string, args ...any) error {
	return errors.WithStack(&ClientError{Type: typ, Message: fmt.Sprintf(format, args...)})
}
