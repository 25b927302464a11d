package wasm

import (
	"encoding/binary"
	"slices"
)

// FuncType is a function signature
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	return slices.Equal(f.Params, o.Params) && slices.Equal(f.Results, o.Results)
}

type funcImport struct {
	module string
	name   string
	typ    uint32
}

type funcDef struct {
	locals []ValType
	body   []byte
	typ    uint32
}

type global struct {
	typ     ValType
	mutable bool
	init    int64
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type dataSegment struct {
	data   []byte
	offset uint32
}

type customSection struct {
	name string
	data []byte
}

// Builder assembles a core module. Function indices count imports first, so
// every import must be declared before the first Func.
type Builder struct {
	memMax   *uint32
	types    []FuncType
	imports  []funcImport
	funcs    []funcDef
	globals  []global
	exports  []export
	data     []dataSegment
	customs  []customSection
	memMin   uint32
	hasMem   bool
	start    uint32
	hasStart bool
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Type interns a function type and returns its index.
func (b *Builder) Type(ft FuncType) uint32 {
	for i, t := range b.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, ft FuncType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasm: imports must be declared before functions")
	}
	b.imports = append(b.imports, funcImport{module: module, name: name, typ: b.Type(ft)})
	return uint32(len(b.imports) - 1)
}

// Func defines a function and returns its function index. body is the
// instruction sequence without the trailing end.
func (b *Builder) Func(ft FuncType, locals []ValType, body []byte) uint32 {
	b.funcs = append(b.funcs, funcDef{typ: b.Type(ft), locals: locals, body: body})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// Memory declares the single linear memory.
func (b *Builder) Memory(minPages uint32, maxPages *uint32) {
	b.hasMem = true
	b.memMin = minPages
	b.memMax = maxPages
}

// Global declares a global initialised with a constant and returns its index.
func (b *Builder) Global(t ValType, mutable bool, init int64) uint32 {
	b.globals = append(b.globals, global{typ: t, mutable: mutable, init: init})
	return uint32(len(b.globals) - 1)
}

// Export exports an item of kind under name.
func (b *Builder) Export(name string, kind byte, idx uint32) {
	b.exports = append(b.exports, export{name: name, kind: kind, idx: idx})
}

// ExportFunc exports a function.
func (b *Builder) ExportFunc(name string, idx uint32) {
	b.Export(name, KindFunc, idx)
}

// Data adds an active data segment for memory 0.
func (b *Builder) Data(offset uint32, data []byte) {
	b.data = append(b.data, dataSegment{offset: offset, data: data})
}

// Start sets the start function.
func (b *Builder) Start(idx uint32) {
	b.start = idx
	b.hasStart = true
}

// Custom appends a custom section, emitted after all known sections.
func (b *Builder) Custom(name string, data []byte) {
	b.customs = append(b.customs, customSection{name: name, data: data})
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	out := binary.LittleEndian.AppendUint32(nil, Magic)
	out = binary.LittleEndian.AppendUint32(out, Version)

	if len(b.types) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.types)))
		for _, t := range b.types {
			sec = append(sec, funcTypeByte)
			sec = appendValTypes(sec, t.Params)
			sec = appendValTypes(sec, t.Results)
		}
		out = appendSection(out, SectionType, sec)
	}

	if len(b.imports) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.imports)))
		for _, imp := range b.imports {
			sec = appendName(sec, imp.module)
			sec = appendName(sec, imp.name)
			sec = append(sec, KindFunc)
			sec = AppendULEB128(sec, uint64(imp.typ))
		}
		out = appendSection(out, SectionImport, sec)
	}

	if len(b.funcs) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.funcs)))
		for _, f := range b.funcs {
			sec = AppendULEB128(sec, uint64(f.typ))
		}
		out = appendSection(out, SectionFunction, sec)
	}

	if b.hasMem {
		sec := AppendULEB128(nil, 1)
		if b.memMax != nil {
			sec = append(sec, 0x01)
			sec = AppendULEB128(sec, uint64(b.memMin))
			sec = AppendULEB128(sec, uint64(*b.memMax))
		} else {
			sec = append(sec, 0x00)
			sec = AppendULEB128(sec, uint64(b.memMin))
		}
		out = appendSection(out, SectionMemory, sec)
	}

	if len(b.globals) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.globals)))
		for _, g := range b.globals {
			sec = append(sec, byte(g.typ))
			if g.mutable {
				sec = append(sec, 0x01)
			} else {
				sec = append(sec, 0x00)
			}
			sec = append(sec, constExpr(g.typ, g.init)...)
			sec = append(sec, OpEnd)
		}
		out = appendSection(out, SectionGlobal, sec)
	}

	if len(b.exports) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.exports)))
		for _, e := range b.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = AppendULEB128(sec, uint64(e.idx))
		}
		out = appendSection(out, SectionExport, sec)
	}

	if b.hasStart {
		out = appendSection(out, SectionStart, AppendULEB128(nil, uint64(b.start)))
	}

	if len(b.funcs) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.funcs)))
		for _, f := range b.funcs {
			body := appendLocals(nil, f.locals)
			body = append(body, f.body...)
			body = append(body, OpEnd)
			sec = AppendULEB128(sec, uint64(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, SectionCode, sec)
	}

	if len(b.data) > 0 {
		sec := AppendULEB128(nil, uint64(len(b.data)))
		for _, d := range b.data {
			sec = append(sec, 0x00) // active, memory 0
			sec = append(sec, constExpr(ValI32, int64(int32(d.offset)))...)
			sec = append(sec, OpEnd)
			sec = AppendULEB128(sec, uint64(len(d.data)))
			sec = append(sec, d.data...)
		}
		out = appendSection(out, SectionData, sec)
	}

	for _, c := range b.customs {
		out = appendCustom(out, c.name, c.data)
	}
	return out
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = AppendULEB128(out, uint64(len(payload)))
	return append(out, payload...)
}

func appendCustom(out []byte, name string, data []byte) []byte {
	payload := appendName(nil, name)
	payload = append(payload, data...)
	return appendSection(out, SectionCustom, payload)
}

func appendValTypes(b []byte, types []ValType) []byte {
	b = AppendULEB128(b, uint64(len(types)))
	for _, t := range types {
		b = append(b, byte(t))
	}
	return b
}

// appendLocals run-length encodes local declarations.
func appendLocals(b []byte, locals []ValType) []byte {
	type run struct {
		t ValType
		n uint64
	}
	var runs []run
	for _, l := range locals {
		if len(runs) > 0 && runs[len(runs)-1].t == l {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{t: l, n: 1})
	}
	b = AppendULEB128(b, uint64(len(runs)))
	for _, r := range runs {
		b = AppendULEB128(b, r.n)
		b = append(b, byte(r.t))
	}
	return b
}

func constExpr(t ValType, v int64) []byte {
	switch t {
	case ValI64:
		return AppendSLEB128([]byte{OpI64Const}, v)
	case ValF32:
		return binary.LittleEndian.AppendUint32([]byte{OpF32Const}, uint32(v))
	case ValF64:
		return binary.LittleEndian.AppendUint64([]byte{OpF64Const}, uint64(v))
	}
	return AppendSLEB128([]byte{OpI32Const}, int64(int32(v)))
}
