package events

import "time"

// SchemaBuilt is emitted after the executable schema has been assembled.
type SchemaBuilt struct {
	Source    string
	FromCache bool
	Types     int
	Duration  time.Duration
	Err       error
}

// SchemaCacheStored is emitted after a parsed document was handed to the
// cache backend.
type SchemaCacheStored struct {
	Backend string
	Err     error
}
