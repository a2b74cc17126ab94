package executor

import (
	"context"

	language "github.com/hanpama/gqlendpoint/internal/language"
	schema "github.com/hanpama/gqlendpoint/internal/schema"
)

// Runtime defines the host integration surface for field resolution, batching,
// abstract type resolution, and leaf-value serialization used by the Executor.
//
// General contract
//   - The Executor performs a breadth-first execution. At each depth it drains all
//     synchronous fields first via ResolveSync, then calls BatchResolveAsync ONCE
//     with all async tasks collected at that depth. The next depth does not begin
//     until BatchResolveAsync returns and those results are completed.
//   - ResolveSync is never invoked for fields marked async, and
//     BatchResolveAsync is only invoked when there is at least one async field
//     at the current depth.
//   - Errors returned from any method are converted into located GraphQL errors
//     that keep the returned error as Cause. If the field's return type is
//     Non-Null, the null propagates to the nearest nullable ancestor.
//   - Implementations must not mutate task sources or args.
//
// Partial success and determinism
//   - BatchResolveAsync must return one AsyncResolveResult per task, in task
//     order. Failures in one element do not affect the others.
//
// Cancellation
//   - Tasks under paths nullified by a Non-Null violation are filtered out
//     before BatchResolveAsync is called. When ctx is done the executor stops
//     calling the runtime and fails the remaining tasks with ctx.Err().
type Runtime interface {
	// ResolveSync resolves a synchronous field value immediately.
	// Return (nil, nil) to produce a GraphQL null for nullable fields.
	ResolveSync(ctx context.Context, task *FieldTask) (any, error)

	// BatchResolveAsync resolves one execution depth of async field tasks.
	BatchResolveAsync(ctx context.Context, tasks []*FieldTask) []AsyncResolveResult

	// ResolveType determines the concrete object type name for a value of an
	// interface or union type.
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value. Enums serialize to their symbolic name.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// FieldTask describes one field instance to resolve.
type FieldTask struct {
	// ObjectType is the parent GraphQL object type name for the field.
	ObjectType string
	// Field is the GraphQL field name to resolve.
	Field string
	// Source is the parent object value (the root value for root fields).
	Source any
	// Args are the field arguments, coerced to Go values per the schema.
	Args map[string]any

	Path       Path
	ReturnType *schema.TypeRef
	Nodes      []*language.Field
	Operation  *language.OperationDefinition
	Variables  map[string]any
}

type AsyncResolveResult struct {
	// Value is the resolved raw value prior to completion, or nil on error.
	Value any
	// Error contains a failure specific to this element; other elements in the
	// same batch are unaffected.
	Error error
}
