package schemacache

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
)

const memoryKey = "schema"

// Memory keeps the encoded artifact in a ristretto cache. Only bytes are
// stored, so every Load decodes a fresh document.
type Memory struct {
	cache *ristretto.Cache[string, []byte]
}

// NewMemory returns an in-process cache that admits artifacts up to maxBytes.
func NewMemory(maxBytes int64) (*Memory, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 100,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "schemacache: create memory cache")
	}
	return &Memory{cache: cache}, nil
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Load(ctx context.Context) (*ast.SchemaDocument, bool, error) {
	data, ok := m.cache.Get(memoryKey)
	if !ok {
		return nil, false, nil
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

func (m *Memory) Store(ctx context.Context, doc *ast.SchemaDocument) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if !m.cache.Set(memoryKey, data, int64(len(data))) {
		return errors.New("schemacache: memory cache rejected artifact")
	}
	m.cache.Wait()
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.cache.Del(memoryKey)
	m.cache.Wait()
	return nil
}

func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
