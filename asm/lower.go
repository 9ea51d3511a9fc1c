package asm

import (
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/wasm"
)

// program is the collected top level of an IR tree.
type program struct {
	globals   []*ir.Node
	globalIdx map[string]uint32
	funcs     []*ir.Node
	funcIdx   map[string]uint32
}

func collect(root *ir.Node) (*program, error) {
	p := &program{
		globalIdx: make(map[string]uint32),
		funcIdx:   make(map[string]uint32),
	}
	ids := make(map[int]string)

	var visit func(n *ir.Node) error
	visit = func(n *ir.Node) error {
		switch n.Op {
		case ir.OpSeq:
			for _, a := range n.Args {
				if err := visit(a); err != nil {
					return err
				}
			}
		case ir.OpPass, ir.OpCase:
		case ir.OpGlobal:
			if _, dup := p.globalIdx[n.Name]; dup {
				return errors.Inconsistent(errors.PhaseAssemble, "global %s declared twice", n.Name)
			}
			p.globalIdx[n.Name] = uint32(len(p.globals))
			p.globals = append(p.globals, n)
		case ir.OpFunc:
			if _, dup := p.funcIdx[n.Name]; dup {
				return errors.New(errors.PhaseAssemble, errors.KindInternalConsistency).
					Symbol(n.Name).Detail("duplicate label").Build()
			}
			if n.ID > 0 {
				if first, dup := ids[n.ID]; dup {
					return errors.IDCollision(errors.PhaseAssemble, n.ID, first, n.Name)
				}
				ids[n.ID] = n.Name
			}
			p.funcIdx[n.Name] = uint32(len(p.funcs))
			p.funcs = append(p.funcs, n)
		default:
			return errors.Inconsistent(errors.PhaseAssemble, "unexpected %s at top level", n.Op)
		}
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}

	if _, ok := p.globalIdx[ir.SelectorVar]; !ok {
		p.globalIdx[ir.SelectorVar] = uint32(len(p.globals))
		p.globals = append(p.globals, ir.Global(ir.SelectorVar, 0))
	}
	if cases := ir.Cases(root); len(cases) > 0 {
		if _, ok := p.funcIdx[ir.DispatchLabel]; ok {
			return nil, errors.New(errors.PhaseAssemble, errors.KindInternalConsistency).
				Symbol(ir.DispatchLabel).Detail("duplicate label").Build()
		}
		p.funcIdx[ir.DispatchLabel] = uint32(len(p.funcs))
		p.funcs = append(p.funcs, ir.Dispatcher(cases))
	}
	return p, nil
}

// funcLowerer lowers one function body to a linear instruction list.
type funcLowerer struct {
	prog      *program
	fn        *ir.Node
	locals    map[string]uint32
	nextLocal uint32
	code      []instr
}

func lowerFunc(p *program, fn *ir.Node) ([]instr, uint32, error) {
	l := &funcLowerer{prog: p, fn: fn, locals: make(map[string]uint32)}
	for _, name := range fn.Params {
		l.locals[name] = l.nextLocal
		l.nextLocal++
	}
	if err := l.stmt(fn.Body()); err != nil {
		return nil, 0, err
	}
	if fn.Result {
		l.emit(wasm.OpI64Const, 0)
	}
	l.emit(wasm.OpEnd, 0)
	return l.code, l.nextLocal - uint32(len(fn.Params)), nil
}

func (l *funcLowerer) emit(op byte, imm int64) {
	l.code = append(l.code, instr{op: op, imm: imm})
}

func (l *funcLowerer) fail(n *ir.Node, format string, args ...any) error {
	return errors.New(errors.PhaseAssemble, errors.KindInternalConsistency).
		Symbol(l.fn.Name).Line(n.Line).Detail(format, args...).Build()
}

func (l *funcLowerer) local(name string, declare bool) (uint32, bool) {
	if idx, ok := l.locals[name]; ok {
		return idx, true
	}
	if !declare {
		return 0, false
	}
	idx := l.nextLocal
	l.locals[name] = idx
	l.nextLocal++
	return idx, true
}

func (l *funcLowerer) global(n *ir.Node) (uint32, error) {
	idx, ok := l.prog.globalIdx[n.Name]
	if !ok {
		return 0, l.fail(n, "undeclared global %s", n.Name)
	}
	return idx, nil
}

func (l *funcLowerer) callee(n *ir.Node) (*ir.Node, uint32, error) {
	idx, ok := l.prog.funcIdx[n.Name]
	if !ok {
		return nil, 0, errors.MissingDefinition(n.Name)
	}
	target := l.prog.funcs[idx]
	if len(n.Args) != len(target.Params) {
		return nil, 0, l.fail(n, "%s takes %d arguments, got %d", n.Name, len(target.Params), len(n.Args))
	}
	for _, a := range n.Args {
		if err := l.expr(a); err != nil {
			return nil, 0, err
		}
	}
	return target, idx, nil
}

func (l *funcLowerer) bind(n *ir.Node) error {
	if err := l.expr(n.Args[0]); err != nil {
		return err
	}
	if _, ok := l.prog.globalIdx[n.Name]; ok {
		idx, _ := l.global(n)
		l.emit(wasm.OpGlobalSet, int64(idx))
		return nil
	}
	idx, _ := l.local(n.Name, true)
	l.emit(wasm.OpLocalSet, int64(idx))
	return nil
}

func (l *funcLowerer) stmt(n *ir.Node) error {
	switch n.Op {
	case ir.OpSeq:
		for _, a := range n.Args {
			if err := l.stmt(a); err != nil {
				return err
			}
		}
	case ir.OpPass:
	case ir.OpSetLocal:
		if err := l.expr(n.Args[0]); err != nil {
			return err
		}
		idx, _ := l.local(n.Name, true)
		l.emit(wasm.OpLocalSet, int64(idx))
	case ir.OpStore:
		idx, err := l.global(n)
		if err != nil {
			return err
		}
		if err := l.expr(n.Args[0]); err != nil {
			return err
		}
		l.emit(wasm.OpGlobalSet, int64(idx))
	case ir.OpIf:
		if err := l.expr(n.Args[0]); err != nil {
			return err
		}
		l.emit(wasm.OpI64Eqz, 0)
		l.emit(wasm.OpI32Eqz, 0)
		l.emit(wasm.OpIf, int64(wasm.BlockTypeVoid))
		if err := l.stmt(n.Args[1]); err != nil {
			return err
		}
		if len(n.Args) > 2 {
			l.emit(wasm.OpElse, 0)
			if err := l.stmt(n.Args[2]); err != nil {
				return err
			}
		}
		l.emit(wasm.OpEnd, 0)
	case ir.OpReturn:
		if len(n.Args) > 0 {
			if err := l.expr(n.Args[0]); err != nil {
				return err
			}
			if !l.fn.Result {
				l.emit(wasm.OpDrop, 0)
			}
		} else if l.fn.Result {
			l.emit(wasm.OpI64Const, 0)
		}
		l.emit(wasm.OpReturn, 0)
	case ir.OpGoto:
		target, idx, err := l.callee(n)
		if err != nil {
			return err
		}
		l.emit(wasm.OpCall, int64(idx))
		switch {
		case target.Result && !l.fn.Result:
			l.emit(wasm.OpDrop, 0)
		case !target.Result && l.fn.Result:
			l.emit(wasm.OpI64Const, 0)
		}
		l.emit(wasm.OpReturn, 0)
	case ir.OpCall:
		target, idx, err := l.callee(n)
		if err != nil {
			return err
		}
		l.emit(wasm.OpCall, int64(idx))
		if target.Result {
			l.emit(wasm.OpDrop, 0)
		}
	case ir.OpWith:
		if err := l.bind(n); err != nil {
			return err
		}
		return l.stmt(n.Args[1])
	case ir.OpTrap:
		l.emit(wasm.OpUnreachable, 0)
	case ir.OpConst, ir.OpVar, ir.OpLoad, ir.OpBinary:
		if err := l.expr(n); err != nil {
			return err
		}
		l.emit(wasm.OpDrop, 0)
	default:
		return l.fail(n, "unexpected %s in function body", n.Op)
	}
	return nil
}

func (l *funcLowerer) expr(n *ir.Node) error {
	switch n.Op {
	case ir.OpConst:
		l.emit(wasm.OpI64Const, n.Value)
	case ir.OpVar:
		idx, ok := l.local(n.Name, false)
		if !ok {
			return l.fail(n, "undefined local %s", n.Name)
		}
		l.emit(wasm.OpLocalGet, int64(idx))
	case ir.OpLoad:
		idx, err := l.global(n)
		if err != nil {
			return err
		}
		l.emit(wasm.OpGlobalGet, int64(idx))
	case ir.OpBinary:
		op, ok := binaryOps[n.Name]
		if !ok {
			return l.fail(n, "unknown operator %s", n.Name)
		}
		if err := l.expr(n.Args[0]); err != nil {
			return err
		}
		if err := l.expr(n.Args[1]); err != nil {
			return err
		}
		l.emit(op, 0)
		if isComparison(op) {
			l.emit(wasm.OpI64ExtendI32U, 0)
		}
	case ir.OpCall:
		target, idx, err := l.callee(n)
		if err != nil {
			return err
		}
		if !target.Result {
			return l.fail(n, "call to %s yields no value", n.Name)
		}
		l.emit(wasm.OpCall, int64(idx))
	case ir.OpWith:
		if err := l.bind(n); err != nil {
			return err
		}
		return l.expr(n.Args[1])
	default:
		return l.fail(n, "%s is not an expression", n.Op)
	}
	return nil
}
