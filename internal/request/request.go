// Package request validates inbound GraphQL HTTP requests and decodes their
// operations.
package request

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/hanpama/gqlendpoint/internal/apperr"
)

// ContentTypeMessage is the message of the InvalidRequestError returned for a
// missing or non-JSON content type.
const ContentTypeMessage = "The request must contain header 'Content-Type' with value 'application/json'"

// Params is one GraphQL operation request.
type Params struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Request is a validated GraphQL HTTP request. Batch is set when the body was
// a JSON array; Operations then holds its elements in order.
type Request struct {
	Operations []Params
	Batch      bool
}

// Validator checks the transport-level preconditions of a request and decodes
// it. In strict mode only JSON POST bodies are accepted. Lenient mode also
// accepts GET query strings, form-encoded bodies and application/graphql.
type Validator struct {
	lenient      bool
	batch        bool
	maxBodyBytes int64
}

type Option func(*Validator)

// Lenient accepts form and query string parameters in addition to JSON.
func Lenient() Option { return func(v *Validator) { v.lenient = true } }

// AllowBatch accepts a JSON array of operations.
func AllowBatch() Option { return func(v *Validator) { v.batch = true } }

// WithMaxBodyBytes limits the decoded body size; 0 means unlimited.
func WithMaxBodyBytes(n int64) Option { return func(v *Validator) { v.maxBodyBytes = n } }

func NewValidator(opts ...Option) *Validator {
	v := &Validator{}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate decodes r. It fails with an InvalidRequestError for a malformed
// request and an EmptyQueryError when any operation lacks a query.
func (v *Validator) Validate(r *http.Request) (*Request, error) {
	var (
		req *Request
		err error
	)
	switch {
	case r.Method == http.MethodGet && v.lenient:
		var p Params
		p, err = paramsFromValues(r.URL.Query())
		req = &Request{Operations: []Params{p}}
	case r.Method == http.MethodPost:
		req, err = v.decodePost(r)
	case r.Method == http.MethodGet:
		return nil, apperr.InvalidRequest(ContentTypeMessage)
	default:
		return nil, apperr.InvalidRequest("method %s is not allowed", r.Method)
	}
	if err != nil {
		return nil, err
	}
	for _, p := range req.Operations {
		if strings.TrimSpace(p.Query) == "" {
			return nil, apperr.EmptyQuery()
		}
	}
	return req, nil
}

// mediaTypeOf returns the media type of a Content-Type header. Malformed
// parameters are ignored, and a header that does not parse at all still
// counts as JSON when it names application/json.
func mediaTypeOf(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if mt != "" && (err == nil || errors.Is(err, mime.ErrInvalidMediaParameter)) {
		return mt
	}
	if strings.Contains(strings.ToLower(ct), "application/json") {
		return "application/json"
	}
	return mt
}

func (v *Validator) decodePost(r *http.Request) (*Request, error) {
	mediaType := mediaTypeOf(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json":
		body, err := v.readBody(r)
		if err != nil {
			return nil, err
		}
		return v.decodeJSON(body)
	case !v.lenient:
		return nil, apperr.InvalidRequest(ContentTypeMessage)
	case mediaType == "application/graphql":
		body, err := v.readBody(r)
		if err != nil {
			return nil, err
		}
		p, err := paramsFromValues(r.URL.Query())
		if err != nil {
			return nil, err
		}
		p.Query = string(body)
		return &Request{Operations: []Params{p}}, nil
	default:
		if v.maxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(nil, r.Body, v.maxBodyBytes)
		}
		if err := r.ParseForm(); err != nil {
			return nil, apperr.InvalidRequest("invalid form body: %v", err)
		}
		p, err := paramsFromValues(r.Form)
		if err != nil {
			return nil, err
		}
		return &Request{Operations: []Params{p}}, nil
	}
}

func (v *Validator) decodeJSON(body []byte) (*Request, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		if !v.batch {
			return nil, apperr.InvalidRequest("batched requests are not supported")
		}
		var ops []Params
		if err := json.Unmarshal(body, &ops); err != nil {
			return nil, apperr.InvalidRequest("Not a valid GraphQL request body: %v", err)
		}
		if len(ops) == 0 {
			return nil, apperr.InvalidRequest("empty batch")
		}
		return &Request{Operations: ops, Batch: true}, nil
	}

	var p Params
	if len(body) > 0 {
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, apperr.InvalidRequest("Not a valid GraphQL request body: %v", err)
		}
	}
	return &Request{Operations: []Params{p}}, nil
}

type gzreadCloser struct {
	*gzip.Reader
	io.Closer
}

func (gz gzreadCloser) Close() error {
	if err := gz.Reader.Close(); err != nil {
		return err
	}
	return gz.Closer.Close()
}

func (v *Validator) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	if strings.EqualFold(r.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, apperr.InvalidRequest("unable to parse gzip body: %v", err)
		}
		r.Body = gzreadCloser{zr, r.Body}
	}
	defer r.Body.Close()

	reader := io.Reader(r.Body)
	if v.maxBodyBytes > 0 {
		reader = io.LimitReader(r.Body, v.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	if v.maxBodyBytes > 0 && int64(len(body)) > v.maxBodyBytes {
		return nil, apperr.InvalidRequest("request body exceeds %d bytes", v.maxBodyBytes)
	}
	return body, nil
}

// paramsFromValues reads query, operationName and a JSON encoded variables
// parameter.
func paramsFromValues(values map[string][]string) (Params, error) {
	get := func(key string) string {
		if vs := values[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}
	p := Params{Query: get("query"), OperationName: get("operationName")}
	if raw := get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Variables); err != nil {
			return Params{}, apperr.InvalidRequest("invalid 'variables' JSON: %v", err)
		}
	}
	return p, nil
}
