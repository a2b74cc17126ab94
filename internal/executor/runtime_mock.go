package executor

import (
	"context"
	"fmt"
	"sync"
)

// MockResolver resolves a single item; MockRuntime adapts it for batched calls in tests.
type MockResolver func(ctx context.Context, source any, args map[string]any) (any, error)

// CallKind identifies whether a call was from ResolveSync or BatchResolveAsync.
const (
	CallKindSync  = "sync"
	CallKindAsync = "async"
)

// NewMockValueResolver returns a MockResolver that always returns the provided value.
func NewMockValueResolver(val any) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return val, nil
	}
}

// NewMockErrorResolver returns a MockResolver that always returns the provided error.
func NewMockErrorResolver(err error) MockResolver {
	return func(ctx context.Context, source any, args map[string]any) (any, error) {
		return nil, err
	}
}

// Call is one task-level invocation record. Async calls made in the same
// flush share a BatchID.
type Call struct {
	Kind       string
	ObjectType string
	Field      string
	Path       string
	Source     any
	Args       map[string]any
	BatchID    int // 0 for sync
}

// MockRuntime implements Runtime over a table of per-field resolvers and
// records every call it receives. Fields without a resolver fall back to map
// lookup on the source value.
type MockRuntime struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call
	batchSeq  int

	TypeResolver func(value any) (string, error)
	Serializer   func(typeName string, value any) (any, error)
}

// NewMockRuntime creates a MockRuntime. Resolver keys have the form
// "ObjectType.Field".
func NewMockRuntime(resolvers map[string]MockResolver) *MockRuntime {
	m := &MockRuntime{resolvers: make(map[string]MockResolver, len(resolvers))}
	for k, v := range resolvers {
		m.resolvers[k] = v
	}
	return m
}

// SetResolver registers or replaces the resolver for objectType.field.
func (m *MockRuntime) SetResolver(objectType, field string, resolver MockResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvers[objectType+"."+field] = resolver
}

func (m *MockRuntime) resolve(ctx context.Context, task *FieldTask) (any, error) {
	m.mu.Lock()
	r := m.resolvers[task.ObjectType+"."+task.Field]
	m.mu.Unlock()
	if r != nil {
		return r(ctx, task.Source, task.Args)
	}
	if src, ok := task.Source.(map[string]any); ok {
		return src[task.Field], nil
	}
	return nil, nil
}

func (m *MockRuntime) record(kind string, task *FieldTask, batchID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{
		Kind:       kind,
		ObjectType: task.ObjectType,
		Field:      task.Field,
		Path:       pathToString(task.Path),
		Source:     task.Source,
		Args:       task.Args,
		BatchID:    batchID,
	})
}

func (m *MockRuntime) ResolveSync(ctx context.Context, task *FieldTask) (any, error) {
	m.record(CallKindSync, task, 0)
	return m.resolve(ctx, task)
}

func (m *MockRuntime) BatchResolveAsync(ctx context.Context, tasks []*FieldTask) []AsyncResolveResult {
	m.mu.Lock()
	m.batchSeq++
	batchID := m.batchSeq
	m.mu.Unlock()

	results := make([]AsyncResolveResult, len(tasks))
	for i, task := range tasks {
		m.record(CallKindAsync, task, batchID)
		v, err := m.resolve(ctx, task)
		results[i] = AsyncResolveResult{Value: v, Error: err}
	}
	return results
}

func (m *MockRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if m.TypeResolver != nil {
		return m.TypeResolver(value)
	}
	if obj, ok := value.(map[string]any); ok {
		if typename, ok := obj["__typename"].(string); ok {
			return typename, nil
		}
	}
	return "", fmt.Errorf("cannot resolve type of %T for %s", value, abstractType)
}

func (m *MockRuntime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	if m.Serializer != nil {
		return m.Serializer(typeName, value)
	}
	return value, nil
}

// Calls returns a copy of the recorded calls in order.
func (m *MockRuntime) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// BatchCount returns how many times BatchResolveAsync has been called.
func (m *MockRuntime) BatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchSeq
}
