package lang

import (
	"strings"

	"github.com/hashicorp/go-set/v3"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/lang/internal/ast"
	"github.com/wippyai/hotpatch/toolchain"
)

// IntType is the only value type of the language.
const IntType = "int"

// reservedPrefix marks identifiers owned by generated code.
const reservedPrefix = "__"

func externalLabel(name string) string { return "external_" + name }

func internalLabel(module, name string) string { return "internal_" + module + "_" + name }

// analyzeModule builds the namespace of a parsed module whose imports have
// already been analyzed.
func analyzeModule(name string, tree *Tree, imports map[string]*toolchain.Namespace) (*toolchain.Namespace, error) {
	ns := toolchain.NewNamespace(name)
	for alias, imp := range imports {
		ns.Imports[alias] = imp
	}
	taken := make(map[string]int)
	declare := func(id string, line int) error {
		if strings.HasPrefix(id, reservedPrefix) {
			return errors.Semantic(line, "identifier %s is reserved", id)
		}
		if prev, ok := taken[id]; ok {
			return errors.Semantic(line, "%s already declared on line %d", id, prev)
		}
		if _, ok := imports[id]; ok {
			return errors.Semantic(line, "%s shadows an imported module", id)
		}
		taken[id] = line
		return nil
	}

	for _, c := range tree.mod.Constants {
		if err := declare(c.Name, c.Line); err != nil {
			return nil, err
		}
		if c.Type != IntType {
			return nil, errors.Semantic(c.Line, "unsupported type %s", c.Type)
		}
		v, err := evalConst(c.Value, ns.Constants)
		if err != nil {
			return nil, err
		}
		ns.Constants[c.Name] = v
	}

	for _, s := range tree.mod.Storage {
		if err := declare(s.Name, s.Line); err != nil {
			return nil, err
		}
		if s.Type != IntType {
			return nil, errors.Semantic(s.Line, "unsupported type %s", s.Type)
		}
		ns.Storage = append(ns.Storage, s.Name)
	}

	for _, def := range tree.mod.Funcs {
		if err := declare(def.Name, def.Line); err != nil {
			return nil, err
		}
		fn, err := declareFunc(def, name, ns, tree.text)
		if err != nil {
			return nil, err
		}
		if fn.Visibility == toolchain.External && len(fn.Params) > ir.MaxDispatchArgs {
			return nil, errors.Semantic(def.Line, "external function %s takes more than %d parameters", def.Name, ir.MaxDispatchArgs)
		}
		ns.Funcs[def.Name] = fn
	}

	direct := make(map[string][]string, len(tree.mod.Funcs))
	for _, def := range tree.mod.Funcs {
		calls, err := checkFunc(def, ns)
		if err != nil {
			return nil, err
		}
		direct[name+"."+def.Name] = calls
	}
	for _, fn := range ns.Funcs {
		fn.Reachable = reachable(direct[fn.Key()], ns, direct)
	}
	return ns, nil
}

// declareFunc builds the symbol of a function definition without checking
// its body.
func declareFunc(def *ast.FuncDef, module string, ns *toolchain.Namespace, text string) (*toolchain.FuncSymbol, error) {
	fn := &toolchain.FuncSymbol{
		Name:       def.Name,
		Module:     module,
		ReturnType: def.Return,
		Line:       def.Line,
		Def:        &funcTree{def: def, module: module, text: text},
	}
	switch def.Decorator {
	case ast.External:
		fn.Visibility = toolchain.External
		fn.EntryLabel = externalLabel(def.Name)
	case ast.Internal:
		fn.Visibility = toolchain.Internal
		fn.EntryLabel = internalLabel(module, def.Name)
	default:
		return nil, errors.Semantic(def.Line, "unknown decorator @%s", def.Decorator)
	}
	if def.Return != "" && def.Return != IntType {
		return nil, errors.Semantic(def.Line, "unsupported return type %s", def.Return)
	}

	seen := make(map[string]bool)
	for _, p := range def.Params {
		if p.Type != IntType {
			return nil, errors.Semantic(p.Line, "unsupported type %s", p.Type)
		}
		if seen[p.Name] {
			return nil, errors.Semantic(p.Line, "duplicate parameter %s", p.Name)
		}
		seen[p.Name] = true
		param := toolchain.Param{Name: p.Name, Type: p.Type}
		if p.Default != nil {
			if _, err := evalConst(p.Default, ns.Constants); err != nil {
				return nil, err
			}
			param.Default = ast.Format(p.Default)
			param.HasDefault = true
		} else if len(fn.Params) > 0 && fn.Params[len(fn.Params)-1].HasDefault {
			return nil, errors.Semantic(p.Line, "positional parameter %s follows a default", p.Name)
		}
		fn.Params = append(fn.Params, param)
	}
	if fn.Visibility == toolchain.External {
		fn.Selector = toolchain.SelectorOf(fn.Signature())
	}
	return fn, nil
}

// reachable returns the transitive internal callees starting from calls, in
// depth-first order of first appearance. Keys of other modules resolve
// through ns and reuse their recorded closures.
func reachable(calls []string, ns *toolchain.Namespace, direct map[string][]string) []string {
	seen := set.New[string](len(calls))
	var out []string
	var visit func(key string)
	visit = func(key string) {
		if !seen.Insert(key) {
			return
		}
		out = append(out, key)
		if next, ok := direct[key]; ok {
			for _, k := range next {
				visit(k)
			}
			return
		}
		if f, ok := ns.Lookup(key); ok {
			for _, k := range f.Reachable {
				visit(k)
			}
		}
	}
	for _, k := range calls {
		visit(k)
	}
	return out
}

// checker validates one function body against a namespace it never modifies.
type checker struct {
	ns     *toolchain.Namespace
	def    *ast.FuncDef
	locals map[string]bool
	calls  []string
	seen   *set.Set[string]
}

func newChecker(ns *toolchain.Namespace, def *ast.FuncDef) *checker {
	return &checker{ns: ns, def: def, locals: make(map[string]bool), seen: set.New[string](4)}
}

// checkFunc validates a function body and returns the keys of the functions
// it calls directly.
func checkFunc(def *ast.FuncDef, ns *toolchain.Namespace) ([]string, error) {
	c := newChecker(ns, def)
	for _, p := range def.Params {
		if err := c.bindable(p.Name, p.Line); err != nil {
			return nil, err
		}
		c.locals[p.Name] = true
	}
	if err := c.stmts(def.Body); err != nil {
		return nil, err
	}
	return c.calls, nil
}

func (c *checker) bindable(name string, line int) error {
	if _, ok := c.ns.Constants[name]; ok {
		return errors.Semantic(line, "%s shadows a constant", name)
	}
	if name == "self" || name == "msg" {
		return errors.Semantic(line, "%s cannot be rebound", name)
	}
	return nil
}

func (c *checker) stmts(body []ast.Stmt) error {
	for _, s := range body {
		if err := c.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *checker) stmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.Return:
		switch {
		case s.Value == nil && c.def.Return != "":
			return errors.Semantic(s.Line, "%s must return a value", c.def.Name)
		case s.Value != nil && c.def.Return == "":
			return errors.Semantic(s.Line, "%s does not return a value", c.def.Name)
		case s.Value != nil:
			return c.value(s.Value)
		}
	case *ast.Pass:
	case *ast.StoreStmt:
		if !c.ns.HasStorage(s.Name) {
			return errors.Semantic(s.Line, "self.%s is not a storage variable", s.Name)
		}
		return c.value(s.Value)
	case *ast.LocalDecl:
		if s.Type != IntType {
			return errors.Semantic(s.Line, "unsupported type %s", s.Type)
		}
		if c.locals[s.Name] {
			return errors.Semantic(s.Line, "%s already declared", s.Name)
		}
		if err := c.bindable(s.Name, s.Line); err != nil {
			return err
		}
		if err := c.value(s.Value); err != nil {
			return err
		}
		c.locals[s.Name] = true
	case *ast.Assign:
		if !c.locals[s.Name] {
			if _, ok := c.ns.Constants[s.Name]; ok {
				return errors.Semantic(s.Line, "cannot assign to constant %s", s.Name)
			}
			return errors.Semantic(s.Line, "%s is not declared", s.Name)
		}
		return c.value(s.Value)
	case *ast.ExprStmt:
		_, err := c.expr(s.X)
		return err
	case *ast.If:
		if err := c.value(s.Cond); err != nil {
			return err
		}
		if err := c.stmts(s.Then); err != nil {
			return err
		}
		return c.stmts(s.Else)
	}
	return nil
}

// value checks an expression that must produce an int.
func (c *checker) value(e ast.Expr) error {
	typ, err := c.expr(e)
	if err != nil {
		return err
	}
	if typ == "" {
		return errors.Semantic(e.Pos(), "%s does not produce a value", ast.Format(e))
	}
	return nil
}

// expr checks e and returns its type, empty for calls without a result.
func (c *checker) expr(e ast.Expr) (string, error) {
	switch e := e.(type) {
	case *ast.Int, *ast.MsgSelector:
		return IntType, nil
	case *ast.Name:
		if c.locals[e.Name] {
			return IntType, nil
		}
		if _, ok := c.ns.Constants[e.Name]; ok {
			return IntType, nil
		}
		if c.ns.HasStorage(e.Name) {
			return "", errors.Semantic(e.Line, "storage variable %s must be accessed as self.%s", e.Name, e.Name)
		}
		return "", errors.Semantic(e.Line, "undeclared name %s", e.Name)
	case *ast.SelfAttr:
		if !c.ns.HasStorage(e.Name) {
			return "", errors.Semantic(e.Line, "self.%s is not a storage variable", e.Name)
		}
		return IntType, nil
	case *ast.Unary:
		return IntType, c.value(e.X)
	case *ast.Binary:
		if _, ok := binaryOps[e.Op]; !ok {
			return "", errors.Semantic(e.Line, "unknown operator %s", e.Op)
		}
		if err := c.value(e.L); err != nil {
			return "", err
		}
		return IntType, c.value(e.R)
	case *ast.Call:
		return c.call(e)
	}
	return "", errors.Semantic(e.Pos(), "unsupported expression %s", ast.Format(e))
}

func (c *checker) call(e *ast.Call) (string, error) {
	owner := c.ns
	if e.Recv != "self" {
		imp, ok := c.ns.Imports[e.Recv]
		if !ok {
			return "", errors.Semantic(e.Line, "%s is not an imported module", e.Recv)
		}
		owner = imp
	}
	fn, ok := owner.Funcs[e.Name]
	if !ok {
		return "", errors.Semantic(e.Line, "%s.%s is not defined", e.Recv, e.Name)
	}
	if fn.Visibility != toolchain.Internal {
		return "", errors.Semantic(e.Line, "%s.%s is external and cannot be called internally", e.Recv, e.Name)
	}

	required := 0
	for _, p := range fn.Params {
		if !p.HasDefault {
			required++
		}
	}
	if len(e.Args) < required || len(e.Args) > len(fn.Params) {
		return "", errors.Semantic(e.Line, "%s.%s takes %d to %d arguments, got %d",
			e.Recv, e.Name, required, len(fn.Params), len(e.Args))
	}
	for _, a := range e.Args {
		if err := c.value(a); err != nil {
			return "", err
		}
	}

	if c.seen.Insert(fn.Key()) {
		c.calls = append(c.calls, fn.Key())
	}
	return fn.ReturnType, nil
}
