// Package toolchain defines the contract between the patch pipeline and the
// language toolchain that parses, analyzes, generates and assembles code.
//
// The pipeline never looks inside syntax trees; it only consumes the symbol
// metadata and IR exposed here.
package toolchain

import (
	"github.com/wippyai/hotpatch/ir"
)

// AST is a parsed syntax tree owned by a Toolchain.
type AST interface {
	// Source returns the text the tree was parsed from.
	Source() string
}

// Annotated is the result of semantic analysis of a single-function tree.
type Annotated struct {
	Tree AST
	Func *FuncSymbol
}

// Toolchain is the opaque front end and back end used by the pipeline.
// Implementations must be safe to use from a single goroutine at a time.
type Toolchain interface {
	// Identity names the producer and its version, e.g. "hp 1.2.0".
	Identity() string
	// Version is the semantic version of the toolchain.
	Version() string

	// Parse turns source text into a tree. Malformed text yields a syntax error.
	Parse(text string) (AST, error)
	// FoldConstants resolves the compile-time constants of ns inside tree.
	// It is a pre-pass independent of namespace resolution.
	FoldConstants(ns *Namespace, tree AST) (AST, error)
	// Analyze resolves tree against a borrowed read-only namespace.
	Analyze(tree AST, ns *Namespace) (*Annotated, error)
	// InferType returns the exact type of an expression under ns.
	// A non-nil error means the type is indeterminate.
	InferType(expr string, ns *Namespace) (string, error)

	// GenerateExternalIR compiles an externally dispatched function.
	GenerateExternalIR(fn *FuncSymbol, ns *Namespace) (ir.Fragment, error)
	// GenerateInternalIR compiles an internal function under the given id.
	GenerateInternalIR(fn *FuncSymbol, ns *Namespace, id int) (ir.Fragment, error)

	Optimize(n *ir.Node) *ir.Node
	// Assemble lowers optimized IR to bytecode.
	Assemble(n *ir.Node) ([]byte, *SourceMap, error)
	// AssembleAlt lowers unoptimized IR through the alternate path.
	AssembleAlt(n *ir.Node) ([]byte, *SourceMap, error)

	// CompileModule performs a full compile of a resolved module.
	CompileModule(mod *Module, settings Settings) (*Output, error)
	// LoadModule parses and analyzes a module and its imports.
	LoadModule(src Source, search []string) (*Module, error)
}

// Source is one input file.
type Source struct {
	Name     string
	Filename string
	Text     string
}

// Settings are the compile settings recorded on a module.
type Settings struct {
	Optimize   bool `json:"optimize"`
	AltCodegen bool `json:"alt_codegen"`
}

// Module is a parsed and analyzed module together with its imports.
type Module struct {
	Source    Source
	Tree      AST
	Namespace *Namespace
	Imports   []*Module
}

// Output is the result of a full module compile.
type Output struct {
	RuntimeIR   *ir.Node       `json:"runtime_ir"`
	Bytecode    []byte         `json:"bytecode"`
	DataSection []byte         `json:"data_section"`
	SourceMap   *SourceMap     `json:"source_map,omitempty"`
	AssignedIDs map[string]int `json:"assigned_ids"`
	Compiled    []string       `json:"compiled"`
}

// SourceMap relates code offsets in bytecode back to functions and lines.
type SourceMap struct {
	Entries []SourceMapEntry `json:"entries"`
}

// SourceMapEntry describes one function body in the bytecode.
type SourceMapEntry struct {
	Label  string `json:"label"`
	ID     int    `json:"id,omitempty"`
	Offset int    `json:"offset"`
	Size   int    `json:"size"`
	Line   int    `json:"line,omitempty"`
}

// Lookup returns the entry containing the byte offset.
func (m *SourceMap) Lookup(offset int) (SourceMapEntry, bool) {
	if m == nil {
		return SourceMapEntry{}, false
	}
	for _, e := range m.Entries {
		if offset >= e.Offset && offset < e.Offset+e.Size {
			return e, true
		}
	}
	return SourceMapEntry{}, false
}
