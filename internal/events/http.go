package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when the endpoint receives a request.
// Context carries the request id.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the response has been written.
type HTTPFinish struct {
	Request  *http.Request
	Status   int
	Bytes    int
	Duration time.Duration
}
