package asm

import (
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/wasm"
)

// peephole rewrites a linear instruction list until no rule applies:
//
//	local.set x; local.get x        -> local.tee x
//	i64.const a; i64.const b; binop -> i64.const (a binop b)
//
// Comparisons fold together with their trailing i64.extend_i32_u.
// Division or remainder by zero is never folded.
func peephole(code []instr) []instr {
	for {
		out, changed := peepholeOnce(code)
		if !changed {
			return out
		}
		code = out
	}
}

func peepholeOnce(code []instr) ([]instr, bool) {
	out := make([]instr, 0, len(code))
	changed := false
	for i := 0; i < len(code); i++ {
		in := code[i]

		if in.op == wasm.OpLocalSet && i+1 < len(code) &&
			code[i+1].op == wasm.OpLocalGet && code[i+1].imm == in.imm {
			out = append(out, instr{op: wasm.OpLocalTee, imm: in.imm})
			i++
			changed = true
			continue
		}

		if in.op == wasm.OpI64Const && i+2 < len(code) && code[i+1].op == wasm.OpI64Const {
			if v, width, ok := foldAt(code[i:]); ok {
				out = append(out, instr{op: wasm.OpI64Const, imm: v})
				i += width - 1
				changed = true
				continue
			}
		}

		out = append(out, in)
	}
	return out, changed
}

// foldAt folds code[0:width] when it is a constant binary operation.
func foldAt(code []instr) (int64, int, bool) {
	name, ok := opNames[code[2].op]
	if !ok {
		return 0, 0, false
	}
	width := 3
	if isComparison(code[2].op) {
		if len(code) < 4 || code[3].op != wasm.OpI64ExtendI32U {
			return 0, 0, false
		}
		width = 4
	}
	v, ok := ir.Fold(name, code[0].imm, code[1].imm)
	return v, width, ok
}
