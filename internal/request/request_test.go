package request

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/gqlendpoint/internal/apperr"
)

func post(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestValidateJSON(t *testing.T) {
	v := NewValidator()
	req, err := v.Validate(post(`{"query":"{ greet }","operationName":"A","variables":{"n":1}}`, "application/json; charset=utf-8"))
	require.NoError(t, err)
	require.False(t, req.Batch)
	require.Equal(t, []Params{{
		Query:         "{ greet }",
		OperationName: "A",
		Variables:     map[string]any{"n": float64(1)},
	}}, req.Operations)
}

func TestValidateEmptyQuery(t *testing.T) {
	v := NewValidator(AllowBatch())
	for name, body := range map[string]string{
		"empty object":   `{}`,
		"blank query":    `{"query":"  "}`,
		"empty body":     ``,
		"batch with gap": `[{"query":"{ a }"},{"query":""}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(post(body, "application/json"))
			var empty *apperr.EmptyQueryError
			require.ErrorAs(t, err, &empty)
			require.Equal(t, apperr.EmptyQueryMessage, err.Error())
		})
	}
}

func TestValidateContentType(t *testing.T) {
	v := NewValidator()
	for name, ct := range map[string]string{
		"missing":   "",
		"form":      "application/x-www-form-urlencoded",
		"graphql":   "application/graphql",
		"text":      "text/plain",
		"malformed": "text/plain; =",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(post(`{"query":"{ a }"}`, ct))
			var invalid *apperr.InvalidRequestError
			require.ErrorAs(t, err, &invalid)
		})
	}

	_, err := v.Validate(httptest.NewRequest(http.MethodGet, "/graphql?query=%7Ba%7D", nil))
	var invalid *apperr.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, ContentTypeMessage, invalid.Message)
}

func TestValidateContentTypeWithBadParameters(t *testing.T) {
	v := NewValidator()
	for name, ct := range map[string]string{
		"charset":      "application/json; charset=utf-8",
		"bare param":   "application/json; charset",
		"empty param":  "application/json; =",
		"upper case":   "Application/JSON",
		"list of many": "application/json, text/plain",
	} {
		t.Run(name, func(t *testing.T) {
			req, err := v.Validate(post(`{"query":"{ a }"}`, ct))
			require.NoError(t, err)
			require.Equal(t, "{ a }", req.Operations[0].Query)
		})
	}
}

func TestValidateMalformedBody(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(post(`{"query":`, "application/json"))
	var invalid *apperr.InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	_, err = v.Validate(post(`[{"query":"{ a }"}]`, "application/json"))
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "batched requests are not supported", invalid.Message)
}

func TestValidateBatch(t *testing.T) {
	v := NewValidator(AllowBatch())
	req, err := v.Validate(post(` [{"query":"{ a }"},{"query":"{ b }"}]`, "application/json"))
	require.NoError(t, err)
	require.True(t, req.Batch)
	require.Len(t, req.Operations, 2)
	require.Equal(t, "{ b }", req.Operations[1].Query)

	_, err = v.Validate(post(`[]`, "application/json"))
	var invalid *apperr.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
}

func TestValidateLenient(t *testing.T) {
	v := NewValidator(Lenient())

	form := url.Values{"query": {"{ greet }"}, "variables": {`{"n":"x"}`}}
	req, err := v.Validate(post(form.Encode(), "application/x-www-form-urlencoded"))
	require.NoError(t, err)
	require.Equal(t, Params{Query: "{ greet }", Variables: map[string]any{"n": "x"}}, req.Operations[0])

	req, err = v.Validate(httptest.NewRequest(http.MethodGet, "/graphql?query=%7B+a+%7D&operationName=Q", nil))
	require.NoError(t, err)
	require.Equal(t, Params{Query: "{ a }", OperationName: "Q"}, req.Operations[0])

	req, err = v.Validate(post(`{ b }`, "application/graphql"))
	require.NoError(t, err)
	require.Equal(t, "{ b }", req.Operations[0].Query)

	_, err = v.Validate(post(url.Values{"query": {"{ a }"}, "variables": {"{"}}.Encode(), "application/x-www-form-urlencoded"))
	var invalid *apperr.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
}

func TestValidateGzipBody(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"query":"{ a }"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	r := post(buf.String(), "application/json")
	r.Header.Set("Content-Encoding", "gzip")
	req, err := NewValidator().Validate(r)
	require.NoError(t, err)
	require.Equal(t, "{ a }", req.Operations[0].Query)

	r = post("not gzip", "application/json")
	r.Header.Set("Content-Encoding", "gzip")
	_, err = NewValidator().Validate(r)
	var invalid *apperr.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
}

func TestValidateBodyLimit(t *testing.T) {
	v := NewValidator(WithMaxBodyBytes(10))
	_, err := v.Validate(post(`{"query":"{ greet }"}`, "application/json"))
	var invalid *apperr.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "request body exceeds 10 bytes", invalid.Message)
}

func TestValidateMethod(t *testing.T) {
	_, err := NewValidator(Lenient()).Validate(httptest.NewRequest(http.MethodPut, "/graphql", nil))
	var invalid *apperr.InvalidRequestError
	require.ErrorAs(t, err, &invalid)
}
