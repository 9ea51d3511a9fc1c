// Package wasm encodes the WebAssembly subset produced by the assembler.
//
// Modules carry i64 functions, mutable i64 globals, exports and custom
// sections. There are no imports, tables or memories.
//
// # Encoding
//
//	m := &wasm.Module{}
//	t := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}})
//	m.Funcs = append(m.Funcs, t)
//	m.Code = append(m.Code, wasm.FuncBody{Code: []byte{wasm.OpI64Const, 42, wasm.OpEnd}})
//	data, layout := m.Encode()
//
// layout.Bodies[i] is the byte range of function i's instructions in data,
// which source maps use to relate offsets back to functions.
//
// # Custom Sections
//
// EncodeCustomSection produces a standalone section that may be appended to
// an encoded module; CustomSections reads them back.
package wasm
