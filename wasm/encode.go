package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode encodes the module to WebAssembly binary format and reports where
// each function body was placed.
func (m *Module) Encode() ([]byte, Layout) {
	var w bytes.Buffer
	var layout Layout

	// Magic number and version
	_ = binary.Write(&w, binary.LittleEndian, Magic)
	_ = binary.Write(&w, binary.LittleEndian, Version)

	if len(m.Types) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.WriteByte(FuncTypeByte)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, SectionType, sec.Bytes())
	}

	if len(m.Funcs) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			WriteLEB128u(&sec, typeIdx)
		}
		writeSection(&w, SectionFunction, sec.Bytes())
	}

	if len(m.Globals) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Globals)))
		for _, g := range m.Globals {
			sec.WriteByte(byte(g.Type))
			if g.Mutable {
				sec.WriteByte(1)
			} else {
				sec.WriteByte(0)
			}
			sec.WriteByte(OpI64Const)
			WriteLEB128s64(&sec, g.Init)
			sec.WriteByte(OpEnd)
		}
		writeSection(&w, SectionGlobal, sec.Bytes())
	}

	if len(m.Exports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			writeName(&sec, exp.Name)
			sec.WriteByte(exp.Kind)
			WriteLEB128u(&sec, exp.Idx)
		}
		writeSection(&w, SectionExport, sec.Bytes())
	}

	if len(m.Code) > 0 {
		var sec bytes.Buffer
		rel := make([]Range, len(m.Code))
		WriteLEB128u(&sec, uint32(len(m.Code)))
		for i, body := range m.Code {
			var b bytes.Buffer
			WriteLEB128u(&b, uint32(len(body.Locals)))
			for _, l := range body.Locals {
				WriteLEB128u(&b, l.Count)
				b.WriteByte(byte(l.ValType))
			}
			codeStart := b.Len()
			b.Write(body.Code)

			WriteLEB128u(&sec, uint32(b.Len()))
			rel[i] = Range{Offset: sec.Len() + codeStart, Size: len(body.Code)}
			sec.Write(b.Bytes())
		}
		base := w.Len() + 1 + len(AppendLEB128u(nil, uint32(sec.Len())))
		for _, r := range rel {
			layout.Bodies = append(layout.Bodies, Range{Offset: base + r.Offset, Size: r.Size})
		}
		writeSection(&w, SectionCode, sec.Bytes())
	}

	for _, cs := range m.CustomSections {
		w.Write(EncodeCustomSection(cs.Name, cs.Data))
	}

	return w.Bytes(), layout
}

// EncodeCustomSection encodes a standalone custom section. The result can be
// appended to any valid module.
func EncodeCustomSection(name string, data []byte) []byte {
	var sec bytes.Buffer
	writeName(&sec, name)
	sec.Write(data)

	var w bytes.Buffer
	writeSection(&w, SectionCustom, sec.Bytes())
	return w.Bytes()
}

// CustomSections returns the custom sections of an encoded module in order.
func CustomSections(data []byte) ([]CustomSection, error) {
	r := bytes.NewReader(data)
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if binary.LittleEndian.Uint32(header[:4]) != Magic {
		return nil, fmt.Errorf("invalid magic number")
	}

	var out []CustomSection
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := ReadLEB128u(r)
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		if int(size) > r.Len() {
			return nil, fmt.Errorf("section %d: size %d exceeds remaining %d bytes", id, size, r.Len())
		}
		payload := make([]byte, size)
		_, _ = io.ReadFull(r, payload)
		if id != SectionCustom {
			continue
		}

		pr := bytes.NewReader(payload)
		n, err := ReadLEB128u(pr)
		if err != nil || int(n) > pr.Len() {
			return nil, fmt.Errorf("custom section name: malformed")
		}
		name := make([]byte, n)
		_, _ = io.ReadFull(pr, name)
		rest := payload[len(payload)-pr.Len():]
		out = append(out, CustomSection{Name: string(name), Data: rest})
	}
	return out, nil
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	WriteLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeName(w *bytes.Buffer, name string) {
	WriteLEB128u(w, uint32(len(name)))
	w.WriteString(name)
}

func writeValTypes(w *bytes.Buffer, types []ValType) {
	WriteLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}
