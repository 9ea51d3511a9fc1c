package parser

import (
	stderrors "errors"
	"strconv"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/lang/internal/ast"
	"github.com/wippyai/hotpatch/lang/internal/token"
)

type Parser struct {
	tokens []token.Token
	pos    int
}

func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// ParseModule tokenizes and parses a complete source file.
func ParseModule(src string) (*ast.Module, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return New(tokens).Parse()
}

// ParseExpr parses text that must consist of exactly one expression.
func ParseExpr(src string) (ast.Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := New(tokens)
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == token.Newline {
		p.next()
	}
	if t := p.peek(); t.Type != token.EOF {
		return nil, errors.Syntax(t.Line, "unexpected %s after expression", t)
	}
	return e, nil
}

func tokenize(src string) ([]token.Token, error) {
	tokens, err := token.Tokenize(src)
	if err != nil {
		var te *token.Error
		if stderrors.As(err, &te) {
			return nil, errors.Syntax(te.Line, "%s", te.Msg)
		}
		return nil, errors.Syntax(0, "%v", err)
	}
	return tokens, nil
}

func (p *Parser) peek() *token.Token {
	if p.pos >= len(p.tokens) {
		return &p.tokens[len(p.tokens)-1]
	}
	return &p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) *token.Token {
	if p.pos+offset >= len(p.tokens) {
		return &p.tokens[len(p.tokens)-1]
	}
	return &p.tokens[p.pos+offset]
}

func (p *Parser) next() *token.Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) expect(typ token.Type) (*token.Token, error) {
	t := p.next()
	if t.Type != typ {
		return nil, errors.Syntax(t.Line, "expected %v, got %q", typ, t.String())
	}
	return t, nil
}

func (p *Parser) expectOp(v string) (*token.Token, error) {
	t := p.next()
	if !t.Is(v) {
		return nil, errors.Syntax(t.Line, "expected %q, got %q", v, t.String())
	}
	return t, nil
}

func (p *Parser) accept(v string) bool {
	if p.peek().Is(v) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) Parse() (*ast.Module, error) {
	mod := &ast.Module{}
	for {
		t := p.peek()
		switch {
		case t.Type == token.EOF:
			return mod, nil
		case t.Type == token.Newline:
			p.next()
		case t.Is("import"):
			p.next()
			name, err := p.expect(token.Name)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.Newline); err != nil {
				return nil, err
			}
			mod.Imports = append(mod.Imports, ast.Import{Name: name.Value, Line: name.Line})
		case t.Is("@"):
			fn, err := p.parseFunc()
			if err != nil {
				return nil, err
			}
			mod.Funcs = append(mod.Funcs, fn)
		case t.Is("def"):
			return nil, errors.Syntax(t.Line, "function definition requires a decorator")
		case t.Type == token.Name && p.peekAt(1).Is(":"):
			if err := p.parseDeclaration(mod); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Syntax(t.Line, "unexpected %q at module level", t.String())
		}
	}
}

// parseDeclaration parses "NAME: constant(type) = expr" or "name: type".
func (p *Parser) parseDeclaration(mod *ast.Module) error {
	name := p.next()
	p.next() // ':'

	if p.peek().Is("constant") {
		p.next()
		if _, err := p.expectOp("("); err != nil {
			return err
		}
		typ, err := p.expect(token.Name)
		if err != nil {
			return err
		}
		if _, err := p.expectOp(")"); err != nil {
			return err
		}
		if _, err := p.expectOp("="); err != nil {
			return err
		}
		value, err := p.parseExpr()
		if err != nil {
			return err
		}
		if _, err := p.expect(token.Newline); err != nil {
			return err
		}
		mod.Constants = append(mod.Constants, ast.Constant{Name: name.Value, Type: typ.Value, Value: value, Line: name.Line})
		return nil
	}

	typ, err := p.expect(token.Name)
	if err != nil {
		return err
	}
	if p.peek().Is("=") {
		return errors.Syntax(name.Line, "storage variable %s cannot have an initializer", name.Value)
	}
	if _, err := p.expect(token.Newline); err != nil {
		return err
	}
	mod.Storage = append(mod.Storage, ast.Storage{Name: name.Value, Type: typ.Value, Line: name.Line})
	return nil
}

func (p *Parser) parseFunc() (*ast.FuncDef, error) {
	p.next() // '@'
	dec, err := p.expect(token.Name)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Newline); err != nil {
		return nil, err
	}
	def, err := p.expectOp("def")
	if err != nil {
		return nil, err
	}
	name, err := p.expect(token.Name)
	if err != nil {
		return nil, err
	}
	fn := &ast.FuncDef{Name: name.Value, Decorator: dec.Value, Line: def.Line}

	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	for !p.peek().Is(")") {
		if len(fn.Params) > 0 {
			if _, err := p.expectOp(","); err != nil {
				return nil, err
			}
		}
		pname, err := p.expect(token.Name)
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp(":"); err != nil {
			return nil, err
		}
		ptype, err := p.expect(token.Name)
		if err != nil {
			return nil, err
		}
		param := ast.Param{Name: pname.Value, Type: ptype.Value, Line: pname.Line}
		if p.accept("=") {
			if param.Default, err = p.parseExpr(); err != nil {
				return nil, err
			}
		}
		fn.Params = append(fn.Params, param)
	}
	p.next() // ')'

	if p.accept("->") {
		ret, err := p.expect(token.Name)
		if err != nil {
			return nil, err
		}
		fn.Return = ret.Value
	}

	if fn.Body, err = p.parseBlock(); err != nil {
		return nil, err
	}
	return fn, nil
}

// parseBlock parses ": NEWLINE INDENT stmt+ DEDENT".
func (p *Parser) parseBlock() ([]ast.Stmt, error) {
	if _, err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Newline); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Indent); err != nil {
		return nil, err
	}
	var body []ast.Stmt
	for p.peek().Type != token.Dedent && p.peek().Type != token.EOF {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, s)
	}
	if _, err := p.expect(token.Dedent); err != nil {
		return nil, err
	}
	return body, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	t := p.peek()
	switch {
	case t.Is("return"):
		p.next()
		s := &ast.Return{Line: t.Line}
		if p.peek().Type != token.Newline {
			v, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			s.Value = v
		}
		return s, p.endStmt()

	case t.Is("pass"):
		p.next()
		return &ast.Pass{Line: t.Line}, p.endStmt()

	case t.Is("if"):
		return p.parseIf()

	case t.Is("self") && p.peekAt(1).Is(".") && p.peekAt(2).Type == token.Name && p.peekAt(3).Is("="):
		p.next()
		p.next()
		name := p.next()
		p.next()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.StoreStmt{Name: name.Value, Value: v, Line: t.Line}, p.endStmt()

	case t.Type == token.Name && p.peekAt(1).Is(":"):
		p.next()
		p.next()
		typ, err := p.expect(token.Name)
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp("="); err != nil {
			return nil, err
		}
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.LocalDecl{Name: t.Value, Type: typ.Value, Value: v, Line: t.Line}, p.endStmt()

	case t.Type == token.Name && p.peekAt(1).Is("="):
		p.next()
		p.next()
		v, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Assign{Name: t.Value, Value: v, Line: t.Line}, p.endStmt()
	}

	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.ExprStmt{X: x, Line: t.Line}, p.endStmt()
}

func (p *Parser) parseIf() (ast.Stmt, error) {
	t := p.next() // "if" or "elif"
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	s := &ast.If{Cond: cond, Line: t.Line}
	if s.Then, err = p.parseBlock(); err != nil {
		return nil, err
	}
	switch {
	case p.peek().Is("elif"):
		nested, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		s.Else = []ast.Stmt{nested}
	case p.peek().Is("else"):
		p.next()
		if s.Else, err = p.parseBlock(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *Parser) endStmt() error {
	t := p.peek()
	if t.Type == token.EOF || t.Type == token.Dedent {
		return nil
	}
	_, err := p.expect(token.Newline)
	return err
}

var comparisons = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *Parser) parseExpr() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.Type == token.Op && comparisons[t.Value] {
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if n := p.peek(); n.Type == token.Op && comparisons[n.Value] {
			return nil, errors.Syntax(n.Line, "comparisons cannot be chained")
		}
		return &ast.Binary{Op: t.Value, L: left, R: right, Line: t.Line}, nil
	}
	return left, nil
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().Is("+") || p.peek().Is("-") {
		op := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op.Value, L: left, R: right, Line: op.Line}
	}
	return left, nil
}

func (p *Parser) parseTerm() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().Is("*") || p.peek().Is("/") || p.peek().Is("%") {
		op := p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Op: op.Value, L: left, R: right, Line: op.Line}
	}
	return left, nil
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if t := p.peek(); t.Is("-") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := x.(*ast.Int); ok {
			return &ast.Int{Value: -lit.Value, Line: t.Line}, nil
		}
		return &ast.Unary{Op: "-", X: x, Line: t.Line}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.next()
	switch {
	case t.Type == token.Number:
		v, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, errors.Syntax(t.Line, "integer literal %s out of range", t.Value)
		}
		return &ast.Int{Value: v, Line: t.Line}, nil

	case t.Is("("):
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return e, nil

	case t.Is("msg"):
		if _, err := p.expectOp("."); err != nil {
			return nil, err
		}
		attr, err := p.expect(token.Name)
		if err != nil {
			return nil, err
		}
		if attr.Value != "selector" {
			return nil, errors.Syntax(attr.Line, "unknown attribute msg.%s", attr.Value)
		}
		return &ast.MsgSelector{Line: t.Line}, nil

	case t.Type == token.Name:
		if !p.peek().Is(".") {
			if keywords[t.Value] {
				return nil, errors.Syntax(t.Line, "unexpected keyword %q", t.Value)
			}
			return &ast.Name{Name: t.Value, Line: t.Line}, nil
		}
		p.next()
		attr, err := p.expect(token.Name)
		if err != nil {
			return nil, err
		}
		if !p.peek().Is("(") {
			if t.Value != "self" {
				return nil, errors.Syntax(attr.Line, "expected call on %s.%s", t.Value, attr.Value)
			}
			return &ast.SelfAttr{Name: attr.Value, Line: t.Line}, nil
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &ast.Call{Recv: t.Value, Name: attr.Value, Args: args, Line: t.Line}, nil
	}
	return nil, errors.Syntax(t.Line, "unexpected %q in expression", t.String())
}

func (p *Parser) parseArgs() ([]ast.Expr, error) {
	p.next() // '('
	var args []ast.Expr
	for !p.peek().Is(")") {
		if len(args) > 0 {
			if _, err := p.expectOp(","); err != nil {
				return nil, err
			}
		}
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	p.next() // ')'
	return args, nil
}

var keywords = map[string]bool{
	"def": true, "return": true, "pass": true, "if": true, "elif": true,
	"else": true, "import": true, "self": true, "msg": true, "constant": true,
}
