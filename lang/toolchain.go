// Package lang is the reference toolchain: it compiles a small,
// indentation-based contract language to WebAssembly.
//
// A source file declares imports, compile-time constants, int storage
// variables and functions decorated @external or @internal:
//
//	import mathlib
//
//	SCALE: constant(int) = 2
//	counter: int
//
//	@internal
//	def double(x: int) -> int:
//	    return x * SCALE
//
//	@external
//	def bump(by: int = 1) -> int:
//	    self.counter = self.counter + by
//	    return self.counter
//
// External functions are reached through the module dispatcher by selector
// and are exported under their own name. Internal functions are compiled
// only when reachable from an external one. Identifiers starting with "__"
// are reserved for generated code.
package lang

import (
	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/asm"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/lang/internal/parser"
	"github.com/wippyai/hotpatch/toolchain"
)

// Name is the producer name reported in Identity.
const Name = "hp"

// DefaultVersion is the version of the built-in toolchain.
const DefaultVersion = "1.2.0"

var _ toolchain.Toolchain = (*Toolchain)(nil)

// Toolchain implements toolchain.Toolchain for the language.
type Toolchain struct {
	version string
	logger  *zap.Logger
}

// Option configures a Toolchain.
type Option func(*Toolchain)

// WithVersion overrides the reported version.
func WithVersion(v string) Option {
	return func(tc *Toolchain) { tc.version = v }
}

// WithLogger sets the logger used for debug events.
func WithLogger(l *zap.Logger) Option {
	return func(tc *Toolchain) {
		if l != nil {
			tc.logger = l
		}
	}
}

// New creates a toolchain.
func New(opts ...Option) *Toolchain {
	tc := &Toolchain{version: DefaultVersion, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

func (tc *Toolchain) Identity() string { return Name + " " + tc.version }

func (tc *Toolchain) Version() string { return tc.version }

func (tc *Toolchain) Parse(text string) (toolchain.AST, error) {
	mod, err := parser.ParseModule(text)
	if err != nil {
		return nil, err
	}
	return &Tree{mod: mod, text: text}, nil
}

func (tc *Toolchain) FoldConstants(ns *toolchain.Namespace, tree toolchain.AST) (toolchain.AST, error) {
	t, err := asTree(tree)
	if err != nil {
		return nil, err
	}
	return foldConstants(ns, t), nil
}

// Analyze resolves a tree holding exactly one function against ns. The
// namespace is only read.
func (tc *Toolchain) Analyze(tree toolchain.AST, ns *toolchain.Namespace) (*toolchain.Annotated, error) {
	t, err := asTree(tree)
	if err != nil {
		return nil, err
	}
	m := t.mod
	if len(m.Imports) > 0 || len(m.Constants) > 0 || len(m.Storage) > 0 {
		return nil, errors.Semantic(0, "patch source may only define a function")
	}
	if len(m.Funcs) != 1 {
		return nil, errors.Semantic(0, "patch source must define exactly one function, found %d", len(m.Funcs))
	}
	def := m.Funcs[0]
	if _, exists := ns.Funcs[def.Name]; exists {
		return nil, errors.Semantic(def.Line, "%s is already defined in %s", def.Name, ns.Module)
	}

	fn, err := declareFunc(def, ns.Module, ns, t.text)
	if err != nil {
		return nil, err
	}
	calls, err := checkFunc(def, ns)
	if err != nil {
		return nil, err
	}
	fn.Reachable = reachable(calls, ns, nil)
	return &toolchain.Annotated{Tree: t, Func: fn}, nil
}

// InferType reports the type of an expression evaluated in a function of ns
// with no locals.
func (tc *Toolchain) InferType(expr string, ns *toolchain.Namespace) (string, error) {
	e, err := parser.ParseExpr(expr)
	if err != nil {
		return "", err
	}
	typ, err := newChecker(ns, nil).expr(e)
	if err != nil {
		return "", err
	}
	if typ == "" {
		return "", errors.Semantic(e.Pos(), "%s does not produce a value", expr)
	}
	return typ, nil
}

func (tc *Toolchain) GenerateExternalIR(fn *toolchain.FuncSymbol, ns *toolchain.Namespace) (ir.Fragment, error) {
	if fn.Visibility != toolchain.External {
		return ir.Fragment{}, errors.Inconsistent(errors.PhaseCodegen, "%s is not external", fn.Key())
	}
	body, err := generate(fn, ns)
	if err != nil {
		return ir.Fragment{}, err
	}
	body.Export = fn.Name
	return ir.Fragment{
		Dispatch: ir.Case(fn.Selector, fn.EntryLabel, fn.ParamNames(), fn.ReturnType != ""),
		Body:     body,
	}, nil
}

func (tc *Toolchain) GenerateInternalIR(fn *toolchain.FuncSymbol, ns *toolchain.Namespace, id int) (ir.Fragment, error) {
	if fn.Visibility != toolchain.Internal {
		return ir.Fragment{}, errors.Inconsistent(errors.PhaseCodegen, "%s is not internal", fn.Key())
	}
	body, err := generate(fn, ns)
	if err != nil {
		return ir.Fragment{}, err
	}
	body.ID = id
	return ir.Fragment{Body: body}, nil
}

func (tc *Toolchain) Optimize(n *ir.Node) *ir.Node { return ir.Optimize(n) }

func (tc *Toolchain) Assemble(n *ir.Node) ([]byte, *toolchain.SourceMap, error) {
	return asm.Assemble(n)
}

func (tc *Toolchain) AssembleAlt(n *ir.Node) ([]byte, *toolchain.SourceMap, error) {
	return asm.AssembleAlt(n)
}

func (tc *Toolchain) CompileModule(mod *toolchain.Module, settings toolchain.Settings) (*toolchain.Output, error) {
	return tc.compileModule(mod, settings)
}

func (tc *Toolchain) LoadModule(src toolchain.Source, search []string) (*toolchain.Module, error) {
	return tc.loadModule(src, search)
}

func asTree(tree toolchain.AST) (*Tree, error) {
	t, ok := tree.(*Tree)
	if !ok || t == nil {
		return nil, errors.Inconsistent(errors.PhaseAnalyze, "foreign syntax tree %T", tree)
	}
	return t, nil
}
