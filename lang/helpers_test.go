package lang

import "github.com/wippyai/hotpatch/lang/internal/ast"

func formatStmt(s ast.Stmt) string {
	if exprs := ast.Exprs(s); len(exprs) == 1 {
		return ast.Format(exprs[0])
	}
	return ""
}
