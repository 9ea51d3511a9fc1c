package lang

import (
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/lang/internal/ast"
	"github.com/wippyai/hotpatch/toolchain"
)

var binaryOps = map[string]string{
	"+":  ir.Add,
	"-":  ir.Sub,
	"*":  ir.Mul,
	"/":  ir.Div,
	"%":  ir.Mod,
	"==": ir.Eq,
	"!=": ir.Ne,
	"<":  ir.Lt,
	"<=": ir.Le,
	">":  ir.Gt,
	">=": ir.Ge,
}

// evalConst evaluates a compile-time constant expression.
func evalConst(e ast.Expr, consts map[string]int64) (int64, error) {
	switch e := e.(type) {
	case *ast.Int:
		return e.Value, nil
	case *ast.Name:
		v, ok := consts[e.Name]
		if !ok {
			return 0, errors.Semantic(e.Line, "%s is not a constant", e.Name)
		}
		return v, nil
	case *ast.Unary:
		v, err := evalConst(e.X, consts)
		return -v, err
	case *ast.Binary:
		a, err := evalConst(e.L, consts)
		if err != nil {
			return 0, err
		}
		b, err := evalConst(e.R, consts)
		if err != nil {
			return 0, err
		}
		v, ok := ir.Fold(binaryOps[e.Op], a, b)
		if !ok {
			return 0, errors.Semantic(e.Line, "cannot evaluate %s at compile time", ast.Format(e))
		}
		return v, nil
	}
	return 0, errors.Semantic(e.Pos(), "%s is not a constant expression", ast.Format(e))
}

// foldConstants returns a copy of tree with every reference to a constant of
// ns replaced by its value. Names bound as parameters or locals are kept.
func foldConstants(ns *toolchain.Namespace, tree *Tree) *Tree {
	if len(ns.Constants) == 0 {
		return tree
	}
	mod := *tree.mod
	mod.Funcs = make([]*ast.FuncDef, len(tree.mod.Funcs))
	for i, fn := range tree.mod.Funcs {
		bound := make(map[string]bool)
		for _, p := range fn.Params {
			bound[p.Name] = true
		}
		ast.InspectStmts(fn.Body, func(s ast.Stmt) {
			if d, ok := s.(*ast.LocalDecl); ok {
				bound[d.Name] = true
			}
		})
		f := &constFolder{consts: ns.Constants, bound: bound}

		c := *fn
		c.Body = f.stmts(fn.Body)
		c.Params = append([]ast.Param(nil), fn.Params...)
		for j := range c.Params {
			if c.Params[j].Default != nil {
				c.Params[j].Default = f.expr(c.Params[j].Default)
			}
		}
		mod.Funcs[i] = &c
	}
	return &Tree{mod: &mod, text: tree.text}
}

type constFolder struct {
	consts map[string]int64
	bound  map[string]bool
}

func (f *constFolder) stmts(body []ast.Stmt) []ast.Stmt {
	if body == nil {
		return nil
	}
	out := make([]ast.Stmt, len(body))
	for i, s := range body {
		out[i] = f.stmt(s)
	}
	return out
}

func (f *constFolder) stmt(s ast.Stmt) ast.Stmt {
	switch s := s.(type) {
	case *ast.Return:
		if s.Value == nil {
			return s
		}
		return &ast.Return{Value: f.expr(s.Value), Line: s.Line}
	case *ast.StoreStmt:
		return &ast.StoreStmt{Name: s.Name, Value: f.expr(s.Value), Line: s.Line}
	case *ast.LocalDecl:
		return &ast.LocalDecl{Name: s.Name, Type: s.Type, Value: f.expr(s.Value), Line: s.Line}
	case *ast.Assign:
		return &ast.Assign{Name: s.Name, Value: f.expr(s.Value), Line: s.Line}
	case *ast.ExprStmt:
		return &ast.ExprStmt{X: f.expr(s.X), Line: s.Line}
	case *ast.If:
		return &ast.If{Cond: f.expr(s.Cond), Then: f.stmts(s.Then), Else: f.stmts(s.Else), Line: s.Line}
	}
	return s
}

func (f *constFolder) expr(e ast.Expr) ast.Expr {
	switch e := e.(type) {
	case *ast.Name:
		if v, ok := f.consts[e.Name]; ok && !f.bound[e.Name] {
			return &ast.Int{Value: v, Line: e.Line}
		}
	case *ast.Unary:
		return &ast.Unary{Op: e.Op, X: f.expr(e.X), Line: e.Line}
	case *ast.Binary:
		return &ast.Binary{Op: e.Op, L: f.expr(e.L), R: f.expr(e.R), Line: e.Line}
	case *ast.Call:
		args := make([]ast.Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = f.expr(a)
		}
		return &ast.Call{Recv: e.Recv, Name: e.Name, Args: args, Line: e.Line}
	}
	return e
}
