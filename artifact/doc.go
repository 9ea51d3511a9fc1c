// Package artifact holds the snapshot of a finished module compile and the
// per-process context a patch session works against.
//
// A CompiledModule is immutable once built. A Context borrows one and
// records the internal functions compiled by patches during the session,
// together with the ids assigned to them, so repeated patches reuse both.
package artifact
