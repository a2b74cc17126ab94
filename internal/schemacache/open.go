package schemacache

import "github.com/pkg/errors"

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Open returns the backend named kind. For the file backend path is the
// artifact file; for badger it is the database directory (empty for an
// in-memory store). Backends that hold resources implement io.Closer.
func Open(kind, path string) (Cache, error) {
	switch kind {
	case "", BackendFile:
		if path == "" {
			return nil, errors.New("schemacache: file backend needs a path")
		}
		return NewFile(path), nil
	case BackendMemory:
		return NewMemory(0)
	case BackendBadger:
		return OpenBadger(path)
	}
	return nil, errors.Errorf("schemacache: unknown backend %q", kind)
}
