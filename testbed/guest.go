package testbed

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Memory layout of assembled guests
const (
	staticBase = 256
	heapBase   = 16 * 1024
	guestPages = 16
)

// Import is a function a guest imports from the bridge host module.
type Import struct {
	Name    string
	Params  []wasm.ValType
	Results []wasm.ValType
}

// Built-in imports.
var (
	ThrowImport      = Import{Name: engine.BuiltinThrow, Params: []wasm.ValType{wasm.ValI32}}
	LogImport        = Import{Name: engine.BuiltinLog, Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}}
	FindPluginImport = Import{Name: engine.BuiltinFindPlugin, Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI64}}
)

// Guest assembles a plugin module: a bump allocator, constant managed
// objects, classes and the metadata section describing them.
//
// The allocator never reuses memory; it counts live allocations so tests can
// check that every bridge temporary was freed.
type Guest struct {
	b       *wasm.Builder
	imports map[string]uint32
	globals map[string]uint32
	classes []*engine.ClassMeta
	statics []byte
	alloc   uint32
	heap    uint32
	live    uint32
}

// NewGuest declares imports (all of them up front) and the allocator.
func NewGuest(imports ...Import) *Guest {
	g := &Guest{
		b:       wasm.NewBuilder(),
		imports: make(map[string]uint32, len(imports)),
		globals: make(map[string]uint32),
	}
	for _, imp := range imports {
		g.imports[imp.Name] = g.b.ImportFunc(engine.HostModule, imp.Name, wasm.FuncType{Params: imp.Params, Results: imp.Results})
	}

	g.b.Memory(guestPages, nil)
	g.b.Export("memory", wasm.KindMemory, 0)
	g.heap = g.b.Global(wasm.ValI32, true, heapBase)
	g.live = g.b.Global(wasm.ValI32, true, 0)

	i32 := []wasm.ValType{wasm.ValI32}

	// alloc(size) -> ptr, 8 byte aligned
	g.alloc = g.b.Func(wasm.FuncType{Params: i32, Results: i32}, i32, wasm.NewCode().
		GlobalGet(g.heap).I32Const(7).Op(wasm.OpI32Add).I32Const(-8).Op(wasm.OpI32And).LocalTee(1).
		LocalGet(0).Op(wasm.OpI32Add).GlobalSet(g.heap).
		GlobalGet(g.live).I32Const(1).Op(wasm.OpI32Add).GlobalSet(g.live).
		LocalGet(1).Bytes())
	g.b.ExportFunc("alloc", g.alloc)

	// free(ptr)
	free := g.b.Func(wasm.FuncType{Params: i32}, nil, wasm.NewCode().
		LocalGet(0).Op(wasm.OpI32Eqz).If(wasm.BlockVoid).Return().End().
		GlobalGet(g.live).I32Const(1).Op(wasm.OpI32Sub).GlobalSet(g.live).Bytes())
	g.b.ExportFunc("free", free)

	// live() -> outstanding allocations
	live := g.b.Func(wasm.FuncType{Results: i32}, nil, wasm.NewCode().GlobalGet(g.live).Bytes())
	g.b.ExportFunc(LiveExport, live)
	return g
}

// LiveExport reports the number of allocations not yet freed.
const LiveExport = "live"

// Import returns the function index of a declared import.
func (g *Guest) Import(name string) uint32 {
	idx, ok := g.imports[name]
	if !ok {
		panic(fmt.Sprintf("testbed: import %q not declared", name))
	}
	return idx
}

// Alloc returns the function index of the allocator.
func (g *Guest) Alloc() uint32 { return g.alloc }

// Global declares (once) a mutable global by name.
func (g *Guest) Global(name string, t wasm.ValType) uint32 {
	if idx, ok := g.globals[name]; ok {
		return idx
	}
	idx := g.b.Global(t, true, 0)
	g.globals[name] = idx
	return idx
}

func (g *Guest) static(data []byte) uint32 {
	for len(g.statics)%8 != 0 {
		g.statics = append(g.statics, 0)
	}
	addr := staticBase + uint32(len(g.statics))
	g.statics = append(g.statics, data...)
	if staticBase+len(g.statics) > heapBase {
		panic("testbed: static area exhausted")
	}
	return addr
}

// String places a constant managed string and returns its address.
func (g *Guest) String(s string) uint32 {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	return g.static(append(buf, s...))
}

// Int32Array places a constant managed int32[] and returns its address.
func (g *Guest) Int32Array(elems ...int32) uint32 {
	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(elems)))
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	for _, e := range elems {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(e))
	}
	return g.static(buf)
}

// Cell places a by-reference cell holding init and returns its address.
func (g *Guest) Cell(init uint64) uint32 {
	return g.static(binary.LittleEndian.AppendUint64(nil, init))
}

// ClassBuilder adds methods to one class.
type ClassBuilder struct {
	g    *Guest
	meta *engine.ClassMeta
}

// Class starts a class. base is "Namespace.Name" or empty.
func (g *Guest) Class(namespace, name, base string) *ClassBuilder {
	meta := &engine.ClassMeta{Namespace: namespace, Name: name, Base: base}
	g.classes = append(g.classes, meta)
	return &ClassBuilder{g: g, meta: meta}
}

// Method defines a method implemented by body. Locals follow the parameters;
// instance methods see the object handle as local 0.
func (c *ClassBuilder) Method(m engine.MethodMeta, locals []wasm.ValType, body *wasm.Code) *ClassBuilder {
	if m.Export == "" {
		m.Export = c.meta.FullName() + "." + m.Name
	}
	idx := c.g.b.Func(funcType(m), locals, body.Bytes())
	c.g.b.ExportFunc(m.Export, idx)
	c.meta.Methods = append(c.meta.Methods, m)
	return c
}

// Ctor defines the constructor; it must return an object handle.
func (c *ClassBuilder) Ctor(params []signature.ManagedParam, locals []wasm.ValType, body *wasm.Code) *ClassBuilder {
	m := engine.MethodMeta{
		Name:   ".ctor",
		Export: c.meta.FullName() + "..ctor",
		Return: "intptr",
		Params: params,
		Static: true,
	}
	idx := c.g.b.Func(funcType(m), locals, body.Bytes())
	c.g.b.ExportFunc(m.Export, idx)
	c.meta.Ctor = &m
	return c
}

// Bytes encodes the guest with its metadata section.
func (g *Guest) Bytes() []byte {
	if len(g.statics) > 0 {
		g.b.Data(staticBase, g.statics)
	}
	meta := engine.Metadata{Version: engine.MetadataVersion}
	for _, c := range g.classes {
		meta.Classes = append(meta.Classes, *c)
	}
	data, err := engine.EncodeMetadata(&meta)
	if err != nil {
		panic(err)
	}
	g.b.Custom(engine.MetadataSection, data)
	return g.b.Bytes()
}

func funcType(m engine.MethodMeta) wasm.FuncType {
	var ft wasm.FuncType
	if !m.Static {
		ft.Params = append(ft.Params, wasm.ValI64)
	}
	for _, p := range m.Params {
		ft.Params = append(ft.Params, valType(signature.ParseManaged(p.Type), p.Ref))
	}
	ret := signature.Void
	if m.Return != "" {
		ret = signature.ParseManaged(m.Return)
	}
	if ret != signature.Void {
		ft.Results = []wasm.ValType{valType(ret, false)}
	}
	return ft
}

func valType(t signature.Tag, ref bool) wasm.ValType {
	return wasm.ValType(convert.ValueType(t, ref))
}

// ValTypes returns the wasm types of a descriptor's parameters and result.
func ValTypes(desc *signature.Descriptor) (params, results []wasm.ValType) {
	for _, p := range desc.Params() {
		params = append(params, valType(p.Type, p.Ref))
	}
	if r := desc.Return(); r != signature.Void {
		results = []wasm.ValType{valType(r, false)}
	}
	return params, results
}

// Params builds managed parameters from type names; a "ref " prefix marks
// by-reference parameters.
func Params(types ...string) []signature.ManagedParam {
	out := make([]signature.ManagedParam, len(types))
	for i, t := range types {
		if rest, ok := strings.CutPrefix(t, "ref "); ok {
			out[i] = signature.ManagedParam{Type: rest, Ref: true}
			continue
		}
		out[i] = signature.ManagedParam{Type: t}
	}
	return out
}
