package ir

import (
	"math"
	"slices"
	"strconv"
)

// RewireEntry turns an externally dispatched fragment into a directly invoked
// one. The dispatch case is discarded; an exported entry function binds a
// sentinel selector so that selector references still resolve, then jumps
// straight to the fragment's entry label.
func RewireEntry(frag Fragment) *Node {
	body := frag.Body
	params := append([]string(nil), body.Params...)
	args := make([]*Node, len(params))
	for i, p := range params {
		args[i] = Var(p)
	}

	entry := Func(EntryLabel, params, body.Result,
		With(SelectorVar, Const(0), Goto(body.Name, args...)))
	entry.Export = EntryLabel
	entry.Line = body.Line

	return Seq(entry, body)
}

// Merge concatenates a patch fragment with the base module IR and any extra
// function definitions. The base tree is shared, never copied or modified.
func Merge(fragment, base *Node, extra ...*Node) *Node {
	args := make([]*Node, 0, 2+len(extra))
	args = append(args, fragment, base)
	args = append(args, extra...)
	return Seq(args...)
}

// Optimize folds constant arithmetic, resolves constant conditions and
// flattens nested sequences. The input tree is left untouched.
func Optimize(n *Node) *Node {
	if n == nil {
		return nil
	}

	switch n.Op {
	case OpSeq:
		var out []*Node
		for _, a := range n.Args {
			o := Optimize(a)
			switch o.Op {
			case OpPass:
				continue
			case OpSeq:
				out = append(out, o.Args...)
			default:
				out = append(out, o)
			}
		}
		return &Node{Op: OpSeq, Args: out, Line: n.Line}

	case OpBinary:
		a, b := Optimize(n.Args[0]), Optimize(n.Args[1])
		if a.Op == OpConst && b.Op == OpConst {
			if v, ok := Fold(n.Name, a.Value, b.Value); ok {
				return &Node{Op: OpConst, Value: v, Line: n.Line}
			}
		}
		return &Node{Op: OpBinary, Name: n.Name, Args: []*Node{a, b}, Line: n.Line}

	case OpIf:
		cond := Optimize(n.Args[0])
		if cond.Op == OpConst {
			if cond.Value != 0 {
				return Optimize(n.Args[1])
			}
			if len(n.Args) > 2 {
				return Optimize(n.Args[2])
			}
			return Pass()
		}
	}

	c := *n
	c.Params = slices.Clone(n.Params)
	if n.Args != nil {
		c.Args = make([]*Node, len(n.Args))
		for i, a := range n.Args {
			c.Args[i] = Optimize(a)
		}
	}
	return &c
}

// Fold evaluates a binary operator on constants. Division or remainder by
// zero and the overflowing MinInt64 / -1 are left to runtime so the trap is
// preserved.
func Fold(op string, a, b int64) (int64, bool) {
	switch op {
	case Add:
		return a + b, true
	case Sub:
		return a - b, true
	case Mul:
		return a * b, true
	case Div:
		if b == 0 || (a == math.MinInt64 && b == -1) {
			return 0, false
		}
		return a / b, true
	case Mod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case Eq:
		return bool64(a == b), true
	case Ne:
		return bool64(a != b), true
	case Lt:
		return bool64(a < b), true
	case Le:
		return bool64(a <= b), true
	case Gt:
		return bool64(a > b), true
	case Ge:
		return bool64(a >= b), true
	}
	return 0, false
}

func bool64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// MaxDispatchArgs is the number of argument slots of a dispatcher.
const MaxDispatchArgs = 4

// Dispatcher builds the selector dispatcher for a set of dispatch cases.
// It binds SelectorVar for the duration of the routed call and traps on an
// unknown selector. Void targets report zero.
func Dispatcher(cases []*Node) *Node {
	params := []string{"sel"}
	for i := 0; i < MaxDispatchArgs; i++ {
		params = append(params, "a"+strconv.Itoa(i))
	}

	var body []*Node
	for _, c := range cases {
		args := make([]*Node, len(c.Params))
		for i := range c.Params {
			args[i] = Var(params[i+1])
		}
		var route *Node
		if c.Result {
			route = Return(Call(c.Name, args...))
		} else {
			route = Seq(Call(c.Name, args...), Return(Const(0)))
		}
		body = append(body, If(Binary(Eq, Var("sel"), Const(c.Value)),
			With(SelectorVar, Var("sel"), route), nil))
	}
	body = append(body, Trap("unknown selector"))

	fn := Func(DispatchLabel, params, true, Seq(body...))
	fn.Export = DispatchLabel
	return fn
}
