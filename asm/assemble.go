package asm

import (
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/toolchain"
	"github.com/wippyai/hotpatch/wasm"
)

// Assemble lowers an IR tree to a wasm module. Tree-level optimization is
// expected to have run already.
func Assemble(root *ir.Node) ([]byte, *toolchain.SourceMap, error) {
	return assemble(root, false)
}

// AssembleAlt lowers unoptimized IR and optimizes the linear instruction
// stream instead of the tree.
func AssembleAlt(root *ir.Node) ([]byte, *toolchain.SourceMap, error) {
	return assemble(root, true)
}

func assemble(root *ir.Node, linear bool) ([]byte, *toolchain.SourceMap, error) {
	if root == nil {
		return nil, nil, errors.InvalidInput(errors.PhaseAssemble, "nil IR")
	}
	p, err := collect(root)
	if err != nil {
		return nil, nil, err
	}

	m := &wasm.Module{}
	exports := make(map[string]bool)
	export := func(name string, kind byte, idx uint32) error {
		if exports[name] {
			return errors.New(errors.PhaseAssemble, errors.KindInternalConsistency).
				Symbol(name).Detail("duplicate export").Build()
		}
		exports[name] = true
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
		return nil
	}

	for i, g := range p.globals {
		m.Globals = append(m.Globals, wasm.Global{Type: wasm.ValI64, Mutable: true, Init: g.Value})
		if err := export(g.Name, wasm.KindGlobal, uint32(i)); err != nil {
			return nil, nil, err
		}
	}

	for i, fn := range p.funcs {
		ft := wasm.FuncType{Params: make([]wasm.ValType, len(fn.Params))}
		for j := range ft.Params {
			ft.Params[j] = wasm.ValI64
		}
		if fn.Result {
			ft.Results = []wasm.ValType{wasm.ValI64}
		}
		m.Funcs = append(m.Funcs, m.AddType(ft))

		code, extra, err := lowerFunc(p, fn)
		if err != nil {
			return nil, nil, err
		}
		if linear {
			code = peephole(code)
		}
		body := wasm.FuncBody{Code: encodeInstrs(code)}
		if extra > 0 {
			body.Locals = []wasm.LocalEntry{{Count: extra, ValType: wasm.ValI64}}
		}
		m.Code = append(m.Code, body)

		if fn.Export != "" {
			if err := export(fn.Export, wasm.KindFunc, uint32(i)); err != nil {
				return nil, nil, err
			}
		}
	}

	data, layout := m.Encode()

	sm := &toolchain.SourceMap{}
	for i, fn := range p.funcs {
		r := layout.Bodies[i]
		sm.Entries = append(sm.Entries, toolchain.SourceMapEntry{
			Label:  fn.Name,
			ID:     fn.ID,
			Offset: r.Offset,
			Size:   r.Size,
			Line:   fn.Line,
		})
	}
	return data, sm, nil
}
