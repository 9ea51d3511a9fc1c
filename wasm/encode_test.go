package wasm

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func answerModule() *Module {
	m := &Module{}
	t := m.AddType(FuncType{Results: []ValType{ValI64}})
	m.Funcs = []uint32{t, t}
	m.Globals = []Global{{Type: ValI64, Mutable: true, Init: -1}}
	m.Exports = []Export{{Name: "answer", Kind: KindFunc, Idx: 1}}
	m.Code = []FuncBody{
		{Code: []byte{OpI64Const, 1, OpEnd}},
		{Locals: []LocalEntry{{Count: 2, ValType: ValI64}}, Code: []byte{OpI64Const, 42, OpReturn, OpEnd}},
	}
	return m
}

func TestEncodeHeader(t *testing.T) {
	data, _ := answerModule().Encode()
	want := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(data[:8], want) {
		t.Fatalf("header = % x, want % x", data[:8], want)
	}
}

func TestEncodeLayout(t *testing.T) {
	m := answerModule()
	data, layout := m.Encode()
	if len(layout.Bodies) != len(m.Code) {
		t.Fatalf("got %d body ranges, want %d", len(layout.Bodies), len(m.Code))
	}
	for i, r := range layout.Bodies {
		got := data[r.Offset : r.Offset+r.Size]
		if !bytes.Equal(got, m.Code[i].Code) {
			t.Errorf("body %d at %d = % x, want % x", i, r.Offset, got, m.Code[i].Code)
		}
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &Module{}
	a := m.AddType(FuncType{Params: []ValType{ValI64}, Results: []ValType{ValI64}})
	b := m.AddType(FuncType{})
	c := m.AddType(FuncType{Params: []ValType{ValI64}, Results: []ValType{ValI64}})
	if a != c || a == b {
		t.Errorf("AddType indices = %d, %d, %d", a, b, c)
	}
	if len(m.Types) != 2 {
		t.Errorf("len(Types) = %d, want 2", len(m.Types))
	}
}

func TestCustomSections(t *testing.T) {
	m := answerModule()
	m.CustomSections = []CustomSection{{Name: "first", Data: []byte{1, 2, 3}}}
	data, _ := m.Encode()
	data = append(data, EncodeCustomSection("second", []byte("payload"))...)

	got, err := CustomSections(data)
	if err != nil {
		t.Fatalf("CustomSections: %v", err)
	}
	want := []CustomSection{
		{Name: "first", Data: []byte{1, 2, 3}},
		{Name: "second", Data: []byte("payload")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sections mismatch (-want +got):\n%s", diff)
	}
}

func TestCustomSectionsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0x00, 0x61}},
		{"bad_magic", []byte{1, 2, 3, 4, 1, 0, 0, 0}},
		{"truncated_section", []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, 0x00, 0x10, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CustomSections(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLEB128(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, 64, -64, -65, 42, 1 << 40, -(1 << 40)} {
		var buf bytes.Buffer
		WriteLEB128s64(&buf, v)
		got, err := ReadLEB128s64(bytes.NewReader(buf.Bytes()))
		if err != nil || got != v {
			t.Errorf("signed %d: got %d, %v", v, got, err)
		}
	}
	for _, v := range []uint32{0, 127, 128, 624485} {
		got, err := ReadLEB128u(bytes.NewReader(AppendLEB128u(nil, v)))
		if err != nil || got != v {
			t.Errorf("unsigned %d: got %d, %v", v, got, err)
		}
	}
	if got := AppendLEB128u(nil, 624485); !bytes.Equal(got, []byte{0xE5, 0x8E, 0x26}) {
		t.Errorf("AppendLEB128u(624485) = % x", got)
	}
}
