// Package engine runs assembled modules on wazero.
//
// The engine package provides three main types:
//
//	WazeroEngine   - Creates and manages a wazero runtime
//	WazeroModule   - A compiled module, can create instances
//	WazeroInstance - A running instance with exported functions and globals
//
// Produced modules have no imports and exchange only i64 values, so calls
// take and return int64 directly. Storage lives in exported mutable globals
// which callers read and write between calls to carry state across patched
// instances.
//
// Traps raised during a call are reported as runtime_trap errors.
package engine
