package ir

import (
	"slices"
	"strconv"
	"strings"
)

// Op identifies the kind of an IR node.
type Op uint8

const (
	OpSeq      Op = iota // Args evaluated in order
	OpPass               // no-op
	OpConst              // Value
	OpVar                // local or parameter Name
	OpSetLocal           // Name = Args[0]
	OpGlobal             // module global declaration Name with initial Value
	OpLoad               // read global Name
	OpStore              // global Name = Args[0]
	OpBinary             // Name is the operator, Args[0] and Args[1] the operands
	OpIf                 // Args[0] condition, Args[1] then, optional Args[2] else
	OpCall               // call label Name with Args
	OpReturn             // optional Args[0] value
	OpGoto               // unconditional jump to label Name forwarding Args
	OpWith               // bind Name to Args[0] while evaluating Args[1]
	OpFunc               // function definition labelled Name, body Args[0]
	OpCase               // dispatch case: selector Value routes to label Name
	OpTrap               // abort execution, Name is the reason
)

var opNames = [...]string{
	OpSeq:      "seq",
	OpPass:     "pass",
	OpConst:    "const",
	OpVar:      "var",
	OpSetLocal: "set",
	OpGlobal:   "global",
	OpLoad:     "load",
	OpStore:    "store",
	OpBinary:   "binop",
	OpIf:       "if",
	OpCall:     "call",
	OpReturn:   "return",
	OpGoto:     "goto",
	OpWith:     "with",
	OpFunc:     "func",
	OpCase:     "case",
	OpTrap:     "trap",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Binary operators understood by every lowering.
const (
	Add = "add"
	Sub = "sub"
	Mul = "mul"
	Div = "div"
	Mod = "mod"
	Eq  = "eq"
	Ne  = "ne"
	Lt  = "lt"
	Le  = "le"
	Gt  = "gt"
	Ge  = "ge"
)

// SelectorVar is the global holding the selector of the current dispatch.
const SelectorVar = "__selector"

// EntryLabel is the label of the rewired patch entry function.
const EntryLabel = "__entry"

// DispatchLabel is the label of a module's selector dispatcher.
const DispatchLabel = "__dispatch"

// Node is a single IR tree node. Nodes are treated as immutable once built;
// every pass in this package returns new nodes instead of editing in place.
type Node struct {
	Op     Op       `json:"op"`
	Name   string   `json:"name,omitempty"`
	Value  int64    `json:"value,omitempty"`
	Params []string `json:"params,omitempty"`
	Result bool     `json:"result,omitempty"`
	ID     int      `json:"id,omitempty"`
	Export string   `json:"export,omitempty"`
	Line   int      `json:"line,omitempty"`
	Args   []*Node  `json:"args,omitempty"`
}

// Fragment is the IR generated for one function.
// Dispatch is nil for internal functions.
type Fragment struct {
	Dispatch *Node
	Body     *Node
}

func Seq(args ...*Node) *Node { return &Node{Op: OpSeq, Args: args} }

func Pass() *Node { return &Node{Op: OpPass} }

func Const(v int64) *Node { return &Node{Op: OpConst, Value: v} }

func Var(name string) *Node { return &Node{Op: OpVar, Name: name} }

func SetLocal(name string, v *Node) *Node { return &Node{Op: OpSetLocal, Name: name, Args: []*Node{v}} }

func Global(name string, init int64) *Node { return &Node{Op: OpGlobal, Name: name, Value: init} }

func Load(name string) *Node { return &Node{Op: OpLoad, Name: name} }

func Store(name string, v *Node) *Node { return &Node{Op: OpStore, Name: name, Args: []*Node{v}} }

func Binary(op string, a, b *Node) *Node { return &Node{Op: OpBinary, Name: op, Args: []*Node{a, b}} }

func Call(label string, args ...*Node) *Node { return &Node{Op: OpCall, Name: label, Args: args} }

func Goto(label string, args ...*Node) *Node { return &Node{Op: OpGoto, Name: label, Args: args} }

func Trap(reason string) *Node { return &Node{Op: OpTrap, Name: reason} }

func With(name string, v, body *Node) *Node {
	return &Node{Op: OpWith, Name: name, Args: []*Node{v, body}}
}

func If(cond, then, els *Node) *Node {
	if els == nil {
		return &Node{Op: OpIf, Args: []*Node{cond, then}}
	}
	return &Node{Op: OpIf, Args: []*Node{cond, then, els}}
}

func Return(v *Node) *Node {
	if v == nil {
		return &Node{Op: OpReturn}
	}
	return &Node{Op: OpReturn, Args: []*Node{v}}
}

// Func defines a function. A non-empty export name makes it externally callable.
func Func(label string, params []string, result bool, body *Node) *Node {
	return &Node{Op: OpFunc, Name: label, Params: params, Result: result, Args: []*Node{body}}
}

// Case routes selector to label, forwarding one dispatcher argument per param.
func Case(selector int64, label string, params []string, result bool) *Node {
	return &Node{Op: OpCase, Name: label, Value: selector, Params: params, Result: result}
}

// Body returns the body of a function node.
func (n *Node) Body() *Node {
	if n.Op != OpFunc || len(n.Args) == 0 {
		return nil
	}
	return n.Args[0]
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Params = slices.Clone(n.Params)
	if n.Args != nil {
		c.Args = make([]*Node, len(n.Args))
		for i, a := range n.Args {
			c.Args[i] = a.Clone()
		}
	}
	return &c
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the children of the current node.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, a := range n.Args {
		Walk(a, fn)
	}
}

// Funcs returns every function definition in the tree in order.
func Funcs(n *Node) []*Node {
	var out []*Node
	Walk(n, func(c *Node) bool {
		if c.Op == OpFunc {
			out = append(out, c)
			return false
		}
		return true
	})
	return out
}

// Cases returns the dispatch cases declared outside function bodies.
func Cases(n *Node) []*Node {
	var out []*Node
	Walk(n, func(c *Node) bool {
		switch c.Op {
		case OpCase:
			out = append(out, c)
		case OpFunc:
			return false
		}
		return true
	})
	return out
}

// Labels returns the labels of every function defined in the tree.
func Labels(n *Node) []string {
	funcs := Funcs(n)
	out := make([]string, len(funcs))
	for i, f := range funcs {
		out[i] = f.Name
	}
	return out
}

// Calls returns the labels referenced by call and goto nodes, in order of
// first appearance.
func Calls(n *Node) []string {
	seen := make(map[string]bool)
	var out []string
	Walk(n, func(c *Node) bool {
		if (c.Op == OpCall || c.Op == OpGoto) && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c.Name)
		}
		return true
	})
	return out
}

// String renders the tree as an s-expression.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if n == nil {
		b.WriteString("nil")
		return
	}
	switch n.Op {
	case OpConst:
		b.WriteString(strconv.FormatInt(n.Value, 10))
		return
	case OpVar:
		b.WriteString(n.Name)
		return
	case OpPass:
		b.WriteString("pass")
		return
	}

	b.WriteByte('(')
	if n.Op == OpBinary {
		b.WriteString(n.Name)
	} else {
		b.WriteString(n.Op.String())
	}
	switch n.Op {
	case OpBinary, OpSeq, OpIf, OpReturn:
	case OpGlobal:
		b.WriteByte(' ')
		b.WriteString(n.Name)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(n.Value, 10))
	case OpCase:
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(n.Value, 10))
		b.WriteByte(' ')
		b.WriteString(n.Name)
	case OpFunc:
		b.WriteByte(' ')
		b.WriteString(n.Name)
		if n.ID > 0 {
			b.WriteString(" #")
			b.WriteString(strconv.Itoa(n.ID))
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(n.Params, " "))
		b.WriteByte(']')
		if n.Result {
			b.WriteString(" ->")
		}
		if n.Export != "" {
			b.WriteString(" export=")
			b.WriteString(n.Export)
		}
	default:
		b.WriteByte(' ')
		b.WriteString(n.Name)
	}
	for _, a := range n.Args {
		b.WriteByte(' ')
		a.write(b)
	}
	b.WriteByte(')')
}
