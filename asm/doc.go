// Package asm lowers IR trees to WebAssembly.
//
// Every function becomes a wasm function over i64 values. Globals declared
// in the tree become mutable exported i64 globals, and dispatch cases are
// gathered into an exported selector dispatcher. Function labels and ids
// must be unique across the tree.
//
// Two lowering paths exist. Assemble expects a tree already optimized by
// ir.Optimize. AssembleAlt takes unoptimized IR and runs a peephole pass
// over each function's linear instruction stream instead.
package asm
