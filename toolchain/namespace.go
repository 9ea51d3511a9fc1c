package toolchain

import (
	"hash/fnv"
	"maps"
	"slices"
	"strings"
)

// Visibility controls how a function can be reached.
type Visibility uint8

const (
	Internal Visibility = iota
	External
)

func (v Visibility) String() string {
	if v == External {
		return "external"
	}
	return "internal"
}

// Param is a declared function parameter.
type Param struct {
	Name       string
	Type       string
	Default    string // source text of the default, if any
	HasDefault bool
}

// FuncSymbol is the resolved metadata of one function.
type FuncSymbol struct {
	Name       string
	Module     string
	Params     []Param
	ReturnType string
	Visibility Visibility
	EntryLabel string
	Selector   int64
	Line       int
	// Reachable holds the keys of every internal function transitively
	// called from this function's body.
	Reachable []string
	// Def is the function's syntax tree; nil when no definition was recorded.
	Def AST
}

// Key identifies the function across modules.
func (f *FuncSymbol) Key() string {
	return f.Module + "." + f.Name
}

// ParamNames returns the parameter names in declaration order.
func (f *FuncSymbol) ParamNames() []string {
	out := make([]string, len(f.Params))
	for i, p := range f.Params {
		out[i] = p.Name
	}
	return out
}

// Signature renders the canonical signature used for selectors.
func (f *FuncSymbol) Signature() string {
	types := make([]string, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type
	}
	return f.Name + "(" + strings.Join(types, ",") + ")"
}

// SelectorOf computes the dispatch selector of a signature. Zero is reserved
// for direct patch entry.
func SelectorOf(signature string) int64 {
	h := fnv.New32a()
	h.Write([]byte(signature))
	sel := int64(h.Sum32())
	if sel == 0 {
		sel = 1
	}
	return sel
}

// Namespace is the resolved set of module-level symbols. Once a module has
// been analyzed its namespace is shared read-only.
type Namespace struct {
	Module    string
	Constants map[string]int64
	Storage   []string
	Funcs     map[string]*FuncSymbol
	Imports   map[string]*Namespace
}

// NewNamespace creates an empty namespace for a module.
func NewNamespace(module string) *Namespace {
	return &Namespace{
		Module:    module,
		Constants: make(map[string]int64),
		Funcs:     make(map[string]*FuncSymbol),
		Imports:   make(map[string]*Namespace),
	}
}

// HasStorage reports whether name is a storage variable of this module.
func (ns *Namespace) HasStorage(name string) bool {
	return slices.Contains(ns.Storage, name)
}

// Lookup resolves a function key in this namespace or any imported one.
func (ns *Namespace) Lookup(key string) (*FuncSymbol, bool) {
	return ns.lookup(key, make(map[*Namespace]bool))
}

func (ns *Namespace) lookup(key string, seen map[*Namespace]bool) (*FuncSymbol, bool) {
	if seen[ns] {
		return nil, false
	}
	seen[ns] = true

	if mod, name, ok := strings.Cut(key, "."); ok && mod == ns.Module {
		if f, ok := ns.Funcs[name]; ok {
			return f, true
		}
	}
	for _, alias := range slices.Sorted(maps.Keys(ns.Imports)) {
		if f, ok := ns.Imports[alias].lookup(key, seen); ok {
			return f, true
		}
	}
	return nil, false
}

// Functions returns the module's own functions sorted by source line.
func (ns *Namespace) Functions() []*FuncSymbol {
	out := slices.Collect(maps.Values(ns.Funcs))
	slices.SortFunc(out, func(a, b *FuncSymbol) int {
		if a.Line != b.Line {
			return a.Line - b.Line
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// With returns a namespace that additionally resolves fn in this module.
// The receiver is not modified.
func (ns *Namespace) With(fn *FuncSymbol) *Namespace {
	c := *ns
	c.Funcs = maps.Clone(ns.Funcs)
	c.Funcs[fn.Name] = fn
	return &c
}
