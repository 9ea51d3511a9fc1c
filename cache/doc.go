// Package cache stores compiled artifacts across runs.
//
// A Cache encodes payloads as JSON into a Store. Lookups compute and store
// on a miss; a stored payload that fails the cache's schema check, such as
// one written before a field existed, is recomputed and stored again once.
// Stores are shared between processes: writes are atomic and idempotent,
// and two writers racing on a key both succeed with the last one winning.
package cache
