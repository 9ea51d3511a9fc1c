package lang

import (
	"encoding/json"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/asm"
	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/ir"
	"github.com/wippyai/hotpatch/toolchain"
	"github.com/wippyai/hotpatch/wasm"
)

// DataSectionName names the custom section carrying the method table.
const DataSectionName = "hotpatch.data"

// Method describes one externally dispatched function.
type Method struct {
	Name     string   `json:"name"`
	Selector int64    `json:"selector"`
	Params   []string `json:"params"`
	Returns  string   `json:"returns,omitempty"`
}

// Methods reads the method table from bytecode produced by CompileModule.
func Methods(bytecode []byte) ([]Method, error) {
	sections, err := wasm.CustomSections(bytecode)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "read custom sections")
	}
	for _, s := range sections {
		if s.Name != DataSectionName {
			continue
		}
		var methods []Method
		if err := json.Unmarshal(s.Data, &methods); err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "decode method table")
		}
		return methods, nil
	}
	return nil, errors.NotFound(errors.PhaseLoad, "custom section", DataSectionName)
}

func methodTable(externals []*toolchain.FuncSymbol) ([]byte, error) {
	methods := make([]Method, len(externals))
	for i, fn := range externals {
		methods[i] = Method{
			Name:     fn.Name,
			Selector: fn.Selector,
			Params:   fn.ParamNames(),
			Returns:  fn.ReturnType,
		}
	}
	data, err := json.Marshal(methods)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCodegen, errors.KindInternalConsistency, err, "encode method table")
	}
	return wasm.EncodeCustomSection(DataSectionName, data), nil
}

// storageGlobals declares the storage of root and every module it imports.
func storageGlobals(root *toolchain.Namespace) []*ir.Node {
	var out []*ir.Node
	seen := make(map[*toolchain.Namespace]bool)
	var visit func(ns *toolchain.Namespace)
	visit = func(ns *toolchain.Namespace) {
		if seen[ns] {
			return
		}
		seen[ns] = true
		for _, s := range ns.Storage {
			out = append(out, ir.Global(globalName(root, ns.Module, s), 0))
		}
		for _, alias := range slices.Sorted(maps.Keys(ns.Imports)) {
			visit(ns.Imports[alias])
		}
	}
	visit(root)
	return out
}

func (tc *Toolchain) compileModule(mod *toolchain.Module, settings toolchain.Settings) (*toolchain.Output, error) {
	ns := mod.Namespace
	if ns == nil {
		return nil, errors.InvalidInput(errors.PhaseCodegen, "module has not been analyzed")
	}

	var externals []*toolchain.FuncSymbol
	for _, fn := range ns.Functions() {
		if fn.Visibility == toolchain.External {
			externals = append(externals, fn)
		}
	}

	decls := storageGlobals(ns)
	var cases, bodies []*ir.Node
	var internals []string
	seen := make(map[string]bool)
	for _, fn := range externals {
		frag, err := tc.GenerateExternalIR(fn, ns)
		if err != nil {
			return nil, err
		}
		cases = append(cases, frag.Dispatch)
		bodies = append(bodies, frag.Body)
		for _, key := range fn.Reachable {
			if !seen[key] {
				seen[key] = true
				internals = append(internals, key)
			}
		}
	}

	out := &toolchain.Output{AssignedIDs: make(map[string]int, len(internals))}
	for i, key := range internals {
		fn, ok := ns.Lookup(key)
		if !ok {
			return nil, errors.MissingDefinition(key)
		}
		id := i + 1
		frag, err := tc.GenerateInternalIR(fn, ns, id)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, frag.Body)
		out.AssignedIDs[key] = id
		out.Compiled = append(out.Compiled, key)
	}

	tree := make([]*ir.Node, 0, len(decls)+len(cases)+len(bodies))
	tree = append(tree, decls...)
	tree = append(tree, cases...)
	tree = append(tree, bodies...)
	out.RuntimeIR = ir.Seq(tree...)

	data, err := methodTable(externals)
	if err != nil {
		return nil, err
	}
	out.DataSection = data

	var code []byte
	switch {
	case settings.AltCodegen:
		code, out.SourceMap, err = asm.AssembleAlt(out.RuntimeIR)
	case settings.Optimize:
		code, out.SourceMap, err = asm.Assemble(ir.Optimize(out.RuntimeIR))
	default:
		code, out.SourceMap, err = asm.Assemble(out.RuntimeIR)
	}
	if err != nil {
		return nil, err
	}
	out.Bytecode = append(code, data...)

	tc.logger.Debug("module compiled",
		zap.String("module", ns.Module),
		zap.Int("externals", len(externals)),
		zap.Int("internals", len(internals)),
		zap.Int("bytes", len(out.Bytecode)))
	return out, nil
}
