package asm

import (
	"bytes"

	"github.com/wippyai/hotpatch/wasm"
)

// instr is one lowered wasm instruction. imm holds the index, constant or
// block type depending on op.
type instr struct {
	op  byte
	imm int64
}

func (i instr) hasIndex() bool {
	switch i.op {
	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee,
		wasm.OpGlobalGet, wasm.OpGlobalSet, wasm.OpCall:
		return true
	}
	return false
}

func encodeInstrs(code []instr) []byte {
	var w bytes.Buffer
	for _, in := range code {
		w.WriteByte(in.op)
		switch {
		case in.op == wasm.OpI64Const:
			wasm.WriteLEB128s64(&w, in.imm)
		case in.op == wasm.OpIf:
			w.WriteByte(byte(in.imm))
		case in.hasIndex():
			wasm.WriteLEB128u(&w, uint32(in.imm))
		}
	}
	return w.Bytes()
}

var binaryOps = map[string]byte{
	"add": wasm.OpI64Add,
	"sub": wasm.OpI64Sub,
	"mul": wasm.OpI64Mul,
	"div": wasm.OpI64DivS,
	"mod": wasm.OpI64RemS,
	"eq":  wasm.OpI64Eq,
	"ne":  wasm.OpI64Ne,
	"lt":  wasm.OpI64LtS,
	"le":  wasm.OpI64LeS,
	"gt":  wasm.OpI64GtS,
	"ge":  wasm.OpI64GeS,
}

// opNames maps opcodes back to IR operator names for peephole folding.
var opNames = func() map[byte]string {
	m := make(map[byte]string, len(binaryOps))
	for name, op := range binaryOps {
		m[op] = name
	}
	return m
}()

func isComparison(op byte) bool {
	return op >= wasm.OpI64Eq && op <= wasm.OpI64GeS
}
