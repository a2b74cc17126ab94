// Package executor runs GraphQL operations breadth-first, one wave per level
// of resolver-backed fields.
//
// # Waves
//
// Fields are either synchronous or asynchronous, as recorded in
// schema.Field.Async. schema.BuildFromAST marks every field of a type with a
// registered resolver as asynchronous; fields of other types project the
// parent value and are resolved on the spot through Runtime.ResolveSync.
//
// Execution repeats until no work is left:
//
//	A. Expand: walk the current selection sets. Synchronous fields are
//	   resolved and completed immediately, descending into objects without
//	   starting a new wave. Asynchronous fields become FieldTasks.
//	B. Resolve: hand every task of the wave to Runtime.BatchResolveAsync in
//	   one call. The runtime returns one result per task, in task order. This
//	   is where a host awaits deferred values, so all loads issued by one
//	   wave share a batch call.
//	C. Complete: complete each result. Object results contribute their
//	   subfields to the next wave.
//
// For an operation whose resolver-backed fields nest d levels deep,
// BatchResolveAsync is called exactly d times.
//
// # Completion and errors
//
// Values are completed per the GraphQL rules: Non-Null unwraps and fails on
// null, lists complete element by element with index paths, leaves go through
// Runtime.SerializeLeafValue, and abstract types through Runtime.ResolveType
// before completing as the chosen object type.
//
// A resolver error or a null in a Non-Null position becomes a located error
// carrying the response path (aliases, not field names) and the first field
// node's location. The error is kept as Cause so the host can decide how much
// of it to expose. A Non-Null violation nulls the top-level field that
// contains it, and tasks queued below that field are dropped. Results of one
// wave are independent, so one failing field leaves its siblings intact.
//
// Mutation root fields go through the same loop; they are resolved in
// selection order, and running them serially is left to the runtime.
package executor
