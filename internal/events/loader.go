package events

import "time"

// LoaderDispatch is emitted once per batch call issued by a deferred loader.
type LoaderDispatch struct {
	Loader   string
	Keys     int
	Duration time.Duration
	Err      error
}
