// Package api defines the shared contract between chimera's engine packages:
// the record types stored in the registry, the error kinds surfaced to
// clients, and the capability set injected into executing tools.
//
// Engine packages (artifact, registry, validate, executor, dispatch, chain,
// metatools) communicate through these types instead of importing each
// other's internals, which keeps the dependency graph acyclic: everything
// may import api, api imports nothing of chimera.
//
// # Error Kinds
//
// Every failure class a client can observe has a sentinel error here.
// Packages wrap them with context (fmt.Errorf("...: %w", ErrX)) so callers
// can branch with errors.Is while logs keep the detail:
//
//	if errors.Is(err, api.ErrToolNotFound) { ... }
//
// # Capabilities
//
// A dispatched tool never reaches into the engine; it receives a
// Capabilities value carrying its identity (persona, tool name), query
// functions scoped to the metadata and data stores, a log helper, and the
// sub-executor closure used to call other tools. See the dispatch package
// for how the set is assembled.
package api
