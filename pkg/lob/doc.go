// Package lob implements transaction-scoped, handle-based streaming access
// to large objects kept in a backing object store.
//
// A Session is the per-transaction entry point. Handle-producing calls
// (Open, Create) lazily create the session's arena, route stream creation
// through it, and register the stream in a fixed 256-slot handle table.
// Handle-consuming calls (Read, Write, Seek, Tell, Close) look the handle up
// and delegate to the backing store. EndTransaction tears everything down:
// on commit it runs each stream's commit-time index cleanup first, on abort
// it skips the hook, and in both cases every live handle becomes invalid.
//
// Bulk import/export stream whole objects between local files and the store
// in fixed-size chunks, independent of the handle table. Both are privileged
// operations gated by the session's Authorizer.
//
// Handles never survive their transaction. The package assumes a single
// logical thread of control per session and performs no internal locking.
package lob
