// Package irexec evaluates IR trees directly, without lowering to bytecode.
//
// An Interpreter is built from the same linked tree the assembler consumes
// and observes the same semantics: i64 arithmetic, comparisons yielding 0 or
// 1, traps on division by zero, on MinInt64 / -1 and on unknown selectors.
package irexec

import (
	stderrors "errors"
	"fmt"
	"maps"
	"math"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
)

// MaxDepth bounds the call stack of a single invocation.
const MaxDepth = 4096

var (
	ErrDivideByZero   = stderrors.New("integer divide by zero")
	ErrOverflow       = stderrors.New("integer overflow")
	ErrStackExhausted = stderrors.New("call stack exhausted")
)

// Interpreter holds the function table and global state of one linked tree.
// It is not safe for concurrent use.
type Interpreter struct {
	funcs   map[string]*ir.Node
	globals map[string]int64
}

// New builds an interpreter from a linked IR tree.
func New(root *ir.Node) (*Interpreter, error) {
	in := &Interpreter{
		funcs:   make(map[string]*ir.Node),
		globals: map[string]int64{ir.SelectorVar: 0},
	}

	var collect func(n *ir.Node) error
	collect = func(n *ir.Node) error {
		switch n.Op {
		case ir.OpSeq:
			for _, a := range n.Args {
				if err := collect(a); err != nil {
					return err
				}
			}
		case ir.OpGlobal:
			in.globals[n.Name] = n.Value
		case ir.OpFunc:
			if _, dup := in.funcs[n.Name]; dup {
				return errors.New(errors.PhaseLink, errors.KindInternalConsistency).
					Symbol(n.Name).Detail("duplicate label").Build()
			}
			in.funcs[n.Name] = n
		}
		return nil
	}
	if root == nil {
		return nil, errors.InvalidInput(errors.PhaseLink, "nil IR")
	}
	if err := collect(root); err != nil {
		return nil, err
	}
	if cases := ir.Cases(root); len(cases) > 0 {
		in.funcs[ir.DispatchLabel] = ir.Dispatcher(cases)
	}
	return in, nil
}

// Has reports whether a function label is defined.
func (in *Interpreter) Has(label string) bool {
	_, ok := in.funcs[label]
	return ok
}

// Entry invokes the rewired patch entry.
func (in *Interpreter) Entry(args ...int64) (int64, error) {
	return in.Call(ir.EntryLabel, args...)
}

// Dispatch routes a call through the selector dispatcher.
func (in *Interpreter) Dispatch(selector int64, args ...int64) (int64, error) {
	slots := make([]int64, 1+ir.MaxDispatchArgs)
	slots[0] = selector
	copy(slots[1:], args)
	return in.Call(ir.DispatchLabel, slots...)
}

// Call invokes the function with the given label. Void functions yield zero.
func (in *Interpreter) Call(label string, args ...int64) (int64, error) {
	return in.call(label, args, 0)
}

// Global returns the current value of a global.
func (in *Interpreter) Global(name string) (int64, bool) {
	v, ok := in.globals[name]
	return v, ok
}

// SetGlobal overwrites a declared global.
func (in *Interpreter) SetGlobal(name string, v int64) error {
	if _, ok := in.globals[name]; !ok {
		return errors.NotFound(errors.PhaseRuntime, "global", name)
	}
	in.globals[name] = v
	return nil
}

// Globals returns a snapshot of every global.
func (in *Interpreter) Globals() map[string]int64 {
	return maps.Clone(in.globals)
}

type frame struct {
	fn     *ir.Node
	locals map[string]int64
	depth  int
}

// flow reports that a return was executed.
type flow struct {
	returned bool
	value    int64
}

func (in *Interpreter) call(label string, args []int64, depth int) (int64, error) {
	fn, ok := in.funcs[label]
	if !ok {
		return 0, errors.MissingDefinition(label)
	}
	if len(args) != len(fn.Params) {
		return 0, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s takes %d arguments, got %d", label, len(fn.Params), len(args)))
	}
	if depth >= MaxDepth {
		return 0, errors.Trap(label, ErrStackExhausted)
	}

	f := &frame{fn: fn, locals: make(map[string]int64, len(args)), depth: depth}
	for i, p := range fn.Params {
		f.locals[p] = args[i]
	}
	res, err := in.exec(f, fn.Body())
	if err != nil {
		return 0, err
	}
	if !fn.Result {
		return 0, nil
	}
	return res.value, nil
}

func (in *Interpreter) exec(f *frame, n *ir.Node) (flow, error) {
	switch n.Op {
	case ir.OpSeq:
		for _, a := range n.Args {
			res, err := in.exec(f, a)
			if err != nil || res.returned {
				return res, err
			}
		}
	case ir.OpPass:
	case ir.OpSetLocal:
		v, err := in.eval(f, n.Args[0])
		if err != nil {
			return flow{}, err
		}
		f.locals[n.Name] = v
	case ir.OpStore:
		v, err := in.eval(f, n.Args[0])
		if err != nil {
			return flow{}, err
		}
		if _, ok := in.globals[n.Name]; !ok {
			return flow{}, errors.Inconsistent(errors.PhaseRuntime, "undeclared global %s", n.Name)
		}
		in.globals[n.Name] = v
	case ir.OpIf:
		c, err := in.eval(f, n.Args[0])
		if err != nil {
			return flow{}, err
		}
		if c != 0 {
			return in.exec(f, n.Args[1])
		}
		if len(n.Args) > 2 {
			return in.exec(f, n.Args[2])
		}
	case ir.OpReturn:
		if len(n.Args) == 0 {
			return flow{returned: true}, nil
		}
		v, err := in.eval(f, n.Args[0])
		return flow{returned: true, value: v}, err
	case ir.OpGoto:
		v, err := in.invoke(f, n)
		return flow{returned: true, value: v}, err
	case ir.OpWith:
		if err := in.bind(f, n); err != nil {
			return flow{}, err
		}
		return in.exec(f, n.Args[1])
	case ir.OpTrap:
		return flow{}, errors.Trap(f.fn.Name, stderrors.New(n.Name))
	default:
		_, err := in.eval(f, n)
		return flow{}, err
	}
	return flow{}, nil
}

func (in *Interpreter) eval(f *frame, n *ir.Node) (int64, error) {
	switch n.Op {
	case ir.OpConst:
		return n.Value, nil
	case ir.OpVar:
		v, ok := f.locals[n.Name]
		if !ok {
			return 0, errors.Inconsistent(errors.PhaseRuntime, "undefined local %s in %s", n.Name, f.fn.Name)
		}
		return v, nil
	case ir.OpLoad:
		v, ok := in.globals[n.Name]
		if !ok {
			return 0, errors.Inconsistent(errors.PhaseRuntime, "undeclared global %s", n.Name)
		}
		return v, nil
	case ir.OpBinary:
		a, err := in.eval(f, n.Args[0])
		if err != nil {
			return 0, err
		}
		b, err := in.eval(f, n.Args[1])
		if err != nil {
			return 0, err
		}
		if v, ok := ir.Fold(n.Name, a, b); ok {
			return v, nil
		}
		if (n.Name == ir.Div || n.Name == ir.Mod) && b == 0 {
			return 0, errors.Trap(f.fn.Name, ErrDivideByZero)
		}
		if n.Name == ir.Div && a == math.MinInt64 && b == -1 {
			return 0, errors.Trap(f.fn.Name, ErrOverflow)
		}
		return 0, errors.Inconsistent(errors.PhaseRuntime, "unknown operator %s", n.Name)
	case ir.OpCall:
		return in.invoke(f, n)
	case ir.OpWith:
		if err := in.bind(f, n); err != nil {
			return 0, err
		}
		return in.eval(f, n.Args[1])
	}
	return 0, errors.Inconsistent(errors.PhaseRuntime, "%s is not an expression", n.Op)
}

func (in *Interpreter) invoke(f *frame, n *ir.Node) (int64, error) {
	args := make([]int64, len(n.Args))
	for i, a := range n.Args {
		v, err := in.eval(f, a)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	return in.call(n.Name, args, f.depth+1)
}

func (in *Interpreter) bind(f *frame, n *ir.Node) error {
	v, err := in.eval(f, n.Args[0])
	if err != nil {
		return err
	}
	if _, ok := in.globals[n.Name]; ok {
		in.globals[n.Name] = v
	} else {
		f.locals[n.Name] = v
	}
	return nil
}
