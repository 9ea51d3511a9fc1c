package artifact

import (
	"maps"
	"slices"

	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/toolchain"
)

// CompiledModule is a read-only snapshot of a full module compile.
type CompiledModule struct {
	Name      string
	Filename  string
	Namespace *toolchain.Namespace
	Settings  toolchain.Settings
	// RuntimeIR is the unoptimized IR of the whole module.
	RuntimeIR *ir.Node
	// Data is the static data appended to every bytecode output.
	Data        []byte
	Bytecode    []byte
	SourceMap   *toolchain.SourceMap
	AssignedIDs map[string]int
	Compiled    []string
	Producer    string
	Fingerprint string
}

// New snapshots a compile output. Maps and slices are copied so later edits
// of out do not leak into the module.
func New(mod *toolchain.Module, settings toolchain.Settings, out *toolchain.Output, producer string) *CompiledModule {
	return &CompiledModule{
		Name:        mod.Source.Name,
		Filename:    mod.Source.Filename,
		Namespace:   mod.Namespace,
		Settings:    settings,
		RuntimeIR:   out.RuntimeIR,
		Data:        slices.Clone(out.DataSection),
		Bytecode:    slices.Clone(out.Bytecode),
		SourceMap:   out.SourceMap,
		AssignedIDs: maps.Clone(out.AssignedIDs),
		Compiled:    slices.Clone(out.Compiled),
		Producer:    producer,
	}
}

// HasCompiled reports whether the internal function was part of the module
// compile.
func (m *CompiledModule) HasCompiled(key string) bool {
	return slices.Contains(m.Compiled, key)
}
