package ast

import (
	"strconv"
	"strings"
)

// Module is a parsed source file.
type Module struct {
	Imports   []Import
	Constants []Constant
	Storage   []Storage
	Funcs     []*FuncDef
}

type Import struct {
	Name string
	Line int
}

type Constant struct {
	Name  string
	Type  string
	Value Expr
	Line  int
}

type Storage struct {
	Name string
	Type string
	Line int
}

// Decorators
const (
	External = "external"
	Internal = "internal"
)

type FuncDef struct {
	Name      string
	Decorator string
	Params    []Param
	Return    string // empty when the function returns nothing
	Body      []Stmt
	Line      int
}

type Param struct {
	Name    string
	Type    string
	Default Expr // nil when the parameter is positional
	Line    int
}

type Stmt interface {
	Pos() int
	stmt()
}

type Expr interface {
	Pos() int
	expr()
}

type (
	Return struct {
		Value Expr // nil for a bare return
		Line  int
	}
	Pass struct {
		Line int
	}
	// StoreStmt assigns a storage variable: self.Name = Value
	StoreStmt struct {
		Name  string
		Value Expr
		Line  int
	}
	// LocalDecl declares a typed local: Name: Type = Value
	LocalDecl struct {
		Name  string
		Type  string
		Value Expr
		Line  int
	}
	// Assign reassigns a declared local.
	Assign struct {
		Name  string
		Value Expr
		Line  int
	}
	ExprStmt struct {
		X    Expr
		Line int
	}
	If struct {
		Cond Expr
		Then []Stmt
		Else []Stmt
		Line int
	}
)

type (
	Int struct {
		Value int64
		Line  int
	}
	Name struct {
		Name string
		Line int
	}
	// SelfAttr reads a storage variable: self.Name
	SelfAttr struct {
		Name string
		Line int
	}
	// Call invokes Recv.Name, where Recv is "self" or an imported module.
	Call struct {
		Recv string
		Name string
		Args []Expr
		Line int
	}
	MsgSelector struct {
		Line int
	}
	Unary struct {
		Op   string
		X    Expr
		Line int
	}
	Binary struct {
		Op   string
		L, R Expr
		Line int
	}
)

func (s *Return) Pos() int    { return s.Line }
func (s *Pass) Pos() int      { return s.Line }
func (s *StoreStmt) Pos() int { return s.Line }
func (s *LocalDecl) Pos() int { return s.Line }
func (s *Assign) Pos() int    { return s.Line }
func (s *ExprStmt) Pos() int  { return s.Line }
func (s *If) Pos() int        { return s.Line }

func (*Return) stmt()    {}
func (*Pass) stmt()      {}
func (*StoreStmt) stmt() {}
func (*LocalDecl) stmt() {}
func (*Assign) stmt()    {}
func (*ExprStmt) stmt()  {}
func (*If) stmt()        {}

func (e *Int) Pos() int         { return e.Line }
func (e *Name) Pos() int        { return e.Line }
func (e *SelfAttr) Pos() int    { return e.Line }
func (e *Call) Pos() int        { return e.Line }
func (e *MsgSelector) Pos() int { return e.Line }
func (e *Unary) Pos() int       { return e.Line }
func (e *Binary) Pos() int      { return e.Line }

func (*Int) expr()         {}
func (*Name) expr()        {}
func (*SelfAttr) expr()    {}
func (*Call) expr()        {}
func (*MsgSelector) expr() {}
func (*Unary) expr()       {}
func (*Binary) expr()      {}

// Format renders an expression back to source form.
func Format(e Expr) string {
	var b strings.Builder
	format(&b, e)
	return b.String()
}

func format(b *strings.Builder, e Expr) {
	switch e := e.(type) {
	case *Int:
		b.WriteString(strconv.FormatInt(e.Value, 10))
	case *Name:
		b.WriteString(e.Name)
	case *SelfAttr:
		b.WriteString("self.")
		b.WriteString(e.Name)
	case *MsgSelector:
		b.WriteString("msg.selector")
	case *Call:
		b.WriteString(e.Recv)
		b.WriteByte('.')
		b.WriteString(e.Name)
		b.WriteByte('(')
		for i, a := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, a)
		}
		b.WriteByte(')')
	case *Unary:
		b.WriteString(e.Op)
		format(b, e.X)
	case *Binary:
		b.WriteByte('(')
		format(b, e.L)
		b.WriteByte(' ')
		b.WriteString(e.Op)
		b.WriteByte(' ')
		format(b, e.R)
		b.WriteByte(')')
	}
}

// InspectExpr calls fn for e and every sub-expression in pre-order.
func InspectExpr(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch e := e.(type) {
	case *Call:
		for _, a := range e.Args {
			InspectExpr(a, fn)
		}
	case *Unary:
		InspectExpr(e.X, fn)
	case *Binary:
		InspectExpr(e.L, fn)
		InspectExpr(e.R, fn)
	}
}

// InspectStmts calls fn for every statement in body, descending into blocks.
func InspectStmts(body []Stmt, fn func(Stmt)) {
	for _, s := range body {
		fn(s)
		if s, ok := s.(*If); ok {
			InspectStmts(s.Then, fn)
			InspectStmts(s.Else, fn)
		}
	}
}

// Exprs returns the top-level expressions held directly by s.
func Exprs(s Stmt) []Expr {
	switch s := s.(type) {
	case *Return:
		if s.Value != nil {
			return []Expr{s.Value}
		}
	case *StoreStmt:
		return []Expr{s.Value}
	case *LocalDecl:
		return []Expr{s.Value}
	case *Assign:
		return []Expr{s.Value}
	case *ExprStmt:
		return []Expr{s.X}
	case *If:
		return []Expr{s.Cond}
	}
	return nil
}
