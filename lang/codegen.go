package lang

import (
	"maps"
	"slices"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/lang/internal/ast"
	"github.com/wippyai/hotpatch/lang/internal/parser"
	"github.com/wippyai/hotpatch/toolchain"
)

// findNamespace resolves the namespace of a module reachable from root.
func findNamespace(root *toolchain.Namespace, module string) (*toolchain.Namespace, bool) {
	seen := make(map[*toolchain.Namespace]bool)
	var find func(ns *toolchain.Namespace) *toolchain.Namespace
	find = func(ns *toolchain.Namespace) *toolchain.Namespace {
		if seen[ns] {
			return nil
		}
		seen[ns] = true
		if ns.Module == module {
			return ns
		}
		for _, alias := range slices.Sorted(maps.Keys(ns.Imports)) {
			if found := find(ns.Imports[alias]); found != nil {
				return found
			}
		}
		return nil
	}
	found := find(root)
	return found, found != nil
}

// globalName returns the IR global holding a storage variable. Storage of
// the compiled module keeps its own name; storage of imported modules is
// qualified by module.
func globalName(root *toolchain.Namespace, module, name string) string {
	if module == root.Module {
		return name
	}
	return module + "." + name
}

type generator struct {
	root *toolchain.Namespace
	own  *toolchain.Namespace
	fn   *toolchain.FuncSymbol
}

func generate(fn *toolchain.FuncSymbol, root *toolchain.Namespace) (*ir.Node, error) {
	if fn.Def == nil {
		return nil, errors.MissingDefinition(fn.Key())
	}
	def, ok := fn.Def.(*funcTree)
	if !ok {
		return nil, errors.Inconsistent(errors.PhaseCodegen, "%s: foreign syntax tree %T", fn.Key(), fn.Def)
	}
	own, ok := findNamespace(root, fn.Module)
	if !ok {
		return nil, errors.NotFound(errors.PhaseCodegen, "module", fn.Module)
	}

	g := &generator{root: root, own: own, fn: fn}
	body, err := g.stmts(def.def.Body)
	if err != nil {
		return nil, err
	}
	f := ir.Func(fn.EntryLabel, fn.ParamNames(), fn.ReturnType != "", body)
	f.Line = fn.Line
	return f, nil
}

func (g *generator) stmts(body []ast.Stmt) (*ir.Node, error) {
	out := make([]*ir.Node, 0, len(body))
	for _, s := range body {
		n, err := g.stmt(s)
		if err != nil {
			return nil, err
		}
		n.Line = s.Pos()
		out = append(out, n)
	}
	return ir.Seq(out...), nil
}

func (g *generator) stmt(s ast.Stmt) (*ir.Node, error) {
	switch s := s.(type) {
	case *ast.Return:
		if s.Value == nil {
			return ir.Return(nil), nil
		}
		v, err := g.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return ir.Return(v), nil
	case *ast.Pass:
		return ir.Pass(), nil
	case *ast.StoreStmt:
		v, err := g.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return ir.Store(globalName(g.root, g.own.Module, s.Name), v), nil
	case *ast.LocalDecl:
		v, err := g.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return ir.SetLocal(s.Name, v), nil
	case *ast.Assign:
		v, err := g.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return ir.SetLocal(s.Name, v), nil
	case *ast.ExprStmt:
		return g.expr(s.X)
	case *ast.If:
		cond, err := g.expr(s.Cond)
		if err != nil {
			return nil, err
		}
		then, err := g.stmts(s.Then)
		if err != nil {
			return nil, err
		}
		var els *ir.Node
		if len(s.Else) > 0 {
			if els, err = g.stmts(s.Else); err != nil {
				return nil, err
			}
		}
		return ir.If(cond, then, els), nil
	}
	return nil, errors.Inconsistent(errors.PhaseCodegen, "unsupported statement %T", s)
}

func (g *generator) expr(e ast.Expr) (*ir.Node, error) {
	var n *ir.Node
	switch e := e.(type) {
	case *ast.Int:
		n = ir.Const(e.Value)
	case *ast.Name:
		if v, ok := g.own.Constants[e.Name]; ok {
			n = ir.Const(v)
		} else {
			n = ir.Var(e.Name)
		}
	case *ast.SelfAttr:
		n = ir.Load(globalName(g.root, g.own.Module, e.Name))
	case *ast.MsgSelector:
		n = ir.Load(ir.SelectorVar)
	case *ast.Unary:
		x, err := g.expr(e.X)
		if err != nil {
			return nil, err
		}
		n = ir.Binary(ir.Sub, ir.Const(0), x)
	case *ast.Binary:
		l, err := g.expr(e.L)
		if err != nil {
			return nil, err
		}
		r, err := g.expr(e.R)
		if err != nil {
			return nil, err
		}
		n = ir.Binary(binaryOps[e.Op], l, r)
	case *ast.Call:
		call, err := g.call(e)
		if err != nil {
			return nil, err
		}
		n = call
	default:
		return nil, errors.Inconsistent(errors.PhaseCodegen, "unsupported expression %T", e)
	}
	n.Line = e.Pos()
	return n, nil
}

func (g *generator) call(e *ast.Call) (*ir.Node, error) {
	owner := g.own
	if e.Recv != "self" {
		imp, ok := g.own.Imports[e.Recv]
		if !ok {
			return nil, errors.NotFound(errors.PhaseCodegen, "module", e.Recv)
		}
		owner = imp
	}
	callee, ok := owner.Funcs[e.Name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseCodegen, "function", owner.Module+"."+e.Name)
	}

	args := make([]*ir.Node, len(callee.Params))
	for i, p := range callee.Params {
		if i < len(e.Args) {
			a, err := g.expr(e.Args[i])
			if err != nil {
				return nil, err
			}
			args[i] = a
			continue
		}
		if !p.HasDefault {
			return nil, errors.Inconsistent(errors.PhaseCodegen, "missing argument %s for %s", p.Name, callee.Key())
		}
		v, err := defaultValue(p, owner)
		if err != nil {
			return nil, err
		}
		args[i] = ir.Const(v)
	}
	return ir.Call(callee.EntryLabel, args...), nil
}

// defaultValue evaluates a parameter default in the namespace that declared it.
func defaultValue(p toolchain.Param, owner *toolchain.Namespace) (int64, error) {
	e, err := parser.ParseExpr(p.Default)
	if err != nil {
		return 0, err
	}
	return evalConst(e, owner.Constants)
}
