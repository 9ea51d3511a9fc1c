package lang

import (
	"github.com/wippyai/hotpatch/lang/internal/ast"
)

// Tree is a parsed source file.
type Tree struct {
	mod  *ast.Module
	text string
}

func (t *Tree) Source() string { return t.text }

// Imports returns the names of the modules imported by the file.
func (t *Tree) Imports() []string {
	out := make([]string, len(t.mod.Imports))
	for i, imp := range t.mod.Imports {
		out[i] = imp.Name
	}
	return out
}

// funcTree is the recorded definition of a single function.
type funcTree struct {
	def    *ast.FuncDef
	module string
	text   string
}

func (f *funcTree) Source() string { return f.text }
