package wasm

// ValType is a WebAssembly value type.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	}
	return "unknown"
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Global is a module-defined mutable or immutable global.
type Global struct {
	Type    ValType
	Mutable bool
	// Init is the constant initial value.
	Init int64
}

// Export makes a function or global visible to the host.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is the code of one defined function.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// CustomSection is a named section ignored by the runtime.
type CustomSection struct {
	Name string
	Data []byte
}

// Module is the subset of a WebAssembly module the assembler produces:
// no imports, tables or memories.
type Module struct {
	Types          []FuncType
	Funcs          []uint32 // type index per defined function
	Globals        []Global
	Exports        []Export
	Code           []FuncBody
	CustomSections []CustomSection
}

// AddType returns the index of t, appending it when not yet present.
func (m *Module) AddType(t FuncType) uint32 {
	for i, existing := range m.Types {
		if existing.Equal(t) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, t)
	return uint32(len(m.Types) - 1)
}

// Layout records where each function body landed in encoded output.
type Layout struct {
	// Bodies has one range per entry of Module.Code, covering the body's
	// instructions (locals excluded).
	Bodies []Range
}

// Range is a byte span in an encoded module.
type Range struct {
	Offset int
	Size   int
}
