package testbed

import (
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/wasm"
)

// SampleHandle is the object handle returned by the sample plugin constructor.
const SampleHandle int64 = 0x5A5A

// PluginBase is the base class the sample plugin class extends.
const PluginBase = "Wand.Plugin"

// Native methods imported by PluginGuest
const (
	UpperName     = "Host.Text.Util.Upper"
	FillName      = "Host.Text.Util.Fill"
	IncName       = "Host.Num.Util.Inc"
	TotalName     = "Host.Num.Util.Total"
	MixName       = "Host.Num.Util.Mix"
	FailName      = "Host.Num.Util.Fail"
	SubscribeName = "Host.Events.Bus.Subscribe"
)

// Constant values written by guest methods
const (
	FilledString = "filled"
	BoomMessage  = "boom"
	StartedLog   = "started"
	EndedLog     = "ended"
)

// TickPrototype is the callback shape accepted by SubscribeName.
var TickPrototype = signature.MustNew(signature.Int32, signature.P(signature.Int32))

// NativeDecls declares the native methods PluginGuest imports.
func NativeDecls() []signature.MethodDecl {
	proto := signature.Decl(TickPrototype)
	return []signature.MethodDecl{
		{Name: "Upper", FuncName: UpperName, Return: "string", Params: []signature.ParamDecl{{Type: "string"}}},
		{Name: "Fill", FuncName: FillName, Return: "void", Params: []signature.ParamDecl{
			{Type: "int32"}, {Type: "string", Ref: true}, {Type: "int32[]", Ref: true},
		}},
		{Name: "Inc", FuncName: IncName, Return: "void", Params: []signature.ParamDecl{{Type: "int32", Ref: true}}},
		{Name: "Total", FuncName: TotalName, Return: "int32", Params: []signature.ParamDecl{{Type: "int32[]"}}},
		{Name: "Mix", FuncName: MixName, Return: "double", Params: []signature.ParamDecl{
			{Type: "int64"}, {Type: "float"}, {Type: "double"}, {Type: "uint8"},
		}},
		{Name: "Fail", FuncName: FailName, Return: "int32"},
		{Name: "Subscribe", FuncName: SubscribeName, Return: "void", Params: []signature.ParamDecl{
			{Type: "function", Prototype: &proto},
		}},
	}
}

// NativeImports returns the guest import declarations for NativeDecls.
func NativeImports() []Import {
	decls := NativeDecls()
	out := make([]Import, 0, len(decls))
	for _, d := range decls {
		m, err := d.Build()
		if err != nil {
			panic(err)
		}
		params, results := ValTypes(m.Desc)
		out = append(out, Import{Name: d.FuncName, Params: params, Results: results})
	}
	return out
}

// MathGuest is a guest with a single static class Demo.Math and no native
// imports.
func MathGuest() []byte {
	g := NewGuest(ThrowImport, LogImport)
	addMath(g)
	return g.Bytes()
}

// PluginGuest is the full sample plugin: Demo.Math, Demo.Calls (which calls
// every native in NativeDecls) and the plugin class Demo.Sample.
func PluginGuest() []byte {
	imports := append([]Import{ThrowImport, LogImport, FindPluginImport}, NativeImports()...)
	g := NewGuest(imports...)
	addMath(g)
	addCalls(g)
	addSample(g)
	return g.Bytes()
}

// BarePluginGuest holds only the plugin class Demo.Sample. With extra, a
// second class Demo.Other also extends PluginBase.
func BarePluginGuest(extra bool) []byte {
	g := NewGuest(LogImport)
	addSample(g)
	if extra {
		g.Class("Demo", "Other", PluginBase).
			Ctor(Params(ctorParams...), nil, wasm.NewCode().I64Const(1))
	}
	return g.Bytes()
}

var ctorParams = []string{"long", "string", "string", "string", "string", "string", "string", "string[]"}

func static(name, ret string, params ...string) engine.MethodMeta {
	return engine.MethodMeta{Name: name, Return: ret, Params: Params(params...), Static: true}
}

func instance(name, ret string, params ...string) engine.MethodMeta {
	return engine.MethodMeta{Name: name, Return: ret, Params: Params(params...)}
}

func addMath(g *Guest) {
	i32 := wasm.ValI32
	filled := g.String(FilledString)
	boom := g.String(BoomMessage)
	nums := g.Int32Array(1, 2, 3)

	g.Class("Demo", "Math", "").
		Method(static("Add", "int32", "int32", "int32"), nil, wasm.NewCode().
			LocalGet(0).LocalGet(1).Op(wasm.OpI32Add)).
		Method(static("AddLong", "long", "long", "long"), nil, wasm.NewCode().
			LocalGet(0).LocalGet(1).Op(wasm.OpI64Add)).
		Method(static("Half", "double", "double"), nil, wasm.NewCode().
			LocalGet(0).F64Const(0.5).Op(wasm.OpF64Mul)).
		Method(static("Echo", "string", "string"), nil, wasm.NewCode().
			LocalGet(0)).
		Method(static("Len", "int32", "string"), nil, wasm.NewCode().
			LocalGet(0).Op(wasm.OpI32Eqz).If(wasm.BlockI32).
			I32Const(0).
			Else().
			LocalGet(0).I32Load(2, 0).
			End()).
		// locals: 1 index, 2 sum, 3 length
		Method(static("Sum", "int32", "int32[]"), []wasm.ValType{i32, i32, i32}, wasm.NewCode().
			LocalGet(0).Op(wasm.OpI32Eqz).If(wasm.BlockVoid).I32Const(0).Return().End().
			LocalGet(0).I32Load(2, 0).LocalSet(3).
			Block(wasm.BlockVoid).Loop(wasm.BlockVoid).
			LocalGet(1).LocalGet(3).Op(wasm.OpI32GeU).BrIf(1).
			LocalGet(2).
			LocalGet(0).LocalGet(1).I32Const(2).Op(wasm.OpI32Shl).Op(wasm.OpI32Add).I32Load(2, 8).
			Op(wasm.OpI32Add).LocalSet(2).
			LocalGet(1).I32Const(1).Op(wasm.OpI32Add).LocalSet(1).
			Br(0).
			End().End().
			LocalGet(2)).
		Method(static("Nums", "int32[]"), nil, wasm.NewCode().
			I32Const(int32(nums))).
		Method(static("Nothing", "string"), nil, wasm.NewCode().
			I32Const(0)).
		// writes "filled" and a fresh [x, x+1] into the cells
		Method(static("Fill", "void", "int32", "ref string", "ref int32[]"), []wasm.ValType{i32}, wasm.NewCode().
			LocalGet(1).I32Const(int32(filled)).I32Store(2, 0).
			I32Const(16).Call(g.Alloc()).LocalSet(3).
			LocalGet(3).I32Const(2).I32Store(2, 0).
			LocalGet(3).I32Const(0).I32Store(2, 4).
			LocalGet(3).LocalGet(0).I32Store(2, 8).
			LocalGet(3).LocalGet(0).I32Const(1).Op(wasm.OpI32Add).I32Store(2, 12).
			LocalGet(2).LocalGet(3).I32Store(2, 0)).
		Method(static("Bump", "void", "ref int32"), nil, wasm.NewCode().
			LocalGet(0).LocalGet(0).I32Load(2, 0).I32Const(1).Op(wasm.OpI32Add).I32Store(2, 0)).
		Method(static("BumpLong", "void", "ref long"), nil, wasm.NewCode().
			LocalGet(0).LocalGet(0).I64Load(3, 0).I64Const(1).Op(wasm.OpI64Add).I64Store(3, 0)).
		Method(static("Clear", "void", "ref string"), nil, wasm.NewCode().
			LocalGet(0).I32Const(0).I32Store(2, 0)).
		Method(static("Throw", "int32"), nil, wasm.NewCode().
			I32Const(int32(boom)).Call(g.Import(engine.BuiltinThrow)).
			I32Const(1)).
		Method(static("Trap", "int32"), nil, wasm.NewCode().
			Unreachable())
}

func addCalls(g *Guest) {
	in := g.String("in")
	cellS := g.Cell(uint64(in))
	cellA := g.Cell(uint64(g.Int32Array(1, 2, 3)))
	cellN := g.Cell(41)
	total := g.Int32Array(4, 5, 6)

	g.Class("Demo", "Calls", "").
		Method(static("Upper", "string", "string"), nil, wasm.NewCode().
			LocalGet(0).Call(g.Import(UpperName))).
		Method(static("CallFill", "string"), nil, wasm.NewCode().
			I32Const(7).I32Const(int32(cellS)).I32Const(int32(cellA)).Call(g.Import(FillName)).
			I32Const(int32(cellS)).I32Load(2, 0)).
		Method(static("FilledString", "string"), nil, wasm.NewCode().
			I32Const(int32(cellS)).I32Load(2, 0)).
		Method(static("FilledArray", "int32[]"), nil, wasm.NewCode().
			I32Const(int32(cellA)).I32Load(2, 0)).
		Method(static("CallInc", "int32"), nil, wasm.NewCode().
			I32Const(int32(cellN)).Call(g.Import(IncName)).
			I32Const(int32(cellN)).I32Load(2, 0)).
		Method(static("CallTotal", "int32"), nil, wasm.NewCode().
			I32Const(int32(total)).Call(g.Import(TotalName))).
		Method(static("CallMix", "double"), nil, wasm.NewCode().
			I64Const(-5).F32Const(1.5).F64Const(2.25).I32Const(200).Call(g.Import(MixName))).
		Method(static("CallFail", "int32"), nil, wasm.NewCode().
			Call(g.Import(FailName))).
		Method(static("Find", "long", "string"), nil, wasm.NewCode().
			LocalGet(0).Call(g.Import(engine.BuiltinFindPlugin))).
		Method(static("Log", "void", "string"), nil, wasm.NewCode().
			I32Const(engine.GuestLevelWarn).LocalGet(0).Call(g.Import(engine.BuiltinLog)))
}

func addSample(g *Guest) {
	gid := g.Global("id", wasm.ValI64)
	nameLen := g.Global("name_len", wasm.ValI32)
	deps := g.Global("deps", wasm.ValI32)
	started := g.Global("started", wasm.ValI32)
	startedMsg := g.String(StartedLog)
	endedMsg := g.String(EndedLog)
	logFn := g.Import(engine.BuiltinLog)

	tick := static("OnTick", "int32", "int32")
	tick.Subscribe = SubscribeName

	g.Class("Demo", "Sample", PluginBase).
		// id, name, friendly name, description, version, author, url, dependencies
		Ctor(Params(ctorParams...), nil, wasm.NewCode().
			LocalGet(0).GlobalSet(gid).
			LocalGet(1).I32Load(2, 0).GlobalSet(nameLen).
			LocalGet(7).I32Load(2, 0).GlobalSet(deps).
			I64Const(SampleHandle)).
		Method(instance("Id", "long"), nil, wasm.NewCode().
			GlobalGet(gid)).
		Method(instance("NameLen", "int32"), nil, wasm.NewCode().
			GlobalGet(nameLen)).
		Method(instance("DepCount", "int32"), nil, wasm.NewCode().
			GlobalGet(deps)).
		Method(static("State", "int32"), nil, wasm.NewCode().
			GlobalGet(started)).
		Method(instance("OnStart", "void"), nil, wasm.NewCode().
			I32Const(1).GlobalSet(started).
			I32Const(engine.GuestLevelInfo).I32Const(int32(startedMsg)).Call(logFn)).
		Method(instance("OnEnd", "void"), nil, wasm.NewCode().
			I32Const(2).GlobalSet(started).
			I32Const(engine.GuestLevelInfo).I32Const(int32(endedMsg)).Call(logFn)).
		// traps unless called on the plugin object
		Method(instance("Handle", "int32", "int32"), nil, wasm.NewCode().
			LocalGet(0).I64Const(SampleHandle).Op(wasm.OpI64Eq).Op(wasm.OpI32Eqz).
			If(wasm.BlockVoid).Unreachable().End().
			LocalGet(1).I32Const(1).Op(wasm.OpI32Add)).
		Method(tick, nil, wasm.NewCode().
			LocalGet(0).I32Const(2).Op(wasm.OpI32Mul))
}
