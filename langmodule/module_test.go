package langmodule_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-bridge/config"
	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/langmodule"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/testbed"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// subscriptions collects callback addresses handed to the Subscribe native.
type subscriptions struct {
	addrs []uintptr
	mu    sync.Mutex
}

func (s *subscriptions) add(cb uintptr) {
	s.mu.Lock()
	s.addrs = append(s.addrs, cb)
	s.mu.Unlock()
}

func (s *subscriptions) list() []uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uintptr(nil), s.addrs...)
}

func newModule(t *testing.T, cfg config.Config) (*langmodule.Module, *observer.ObservedLogs) {
	t.Helper()
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	m := langmodule.New(zap.New(core))
	cfg.Compiler = config.CompilerInterpreter
	if err := m.InitializeWith(ctx, cfg); err != nil {
		t.Fatalf("InitializeWith: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return m, logs
}

// hostPlugin provides every native PluginGuest imports. patch may replace
// declarations before they are exported.
func hostPlugin(subs *subscriptions, patch func(*signature.MethodDecl)) *langmodule.Plugin {
	fns := testbed.HostNatives(subs.add)
	p := &langmodule.Plugin{Name: "host", ID: 1}
	for _, d := range testbed.NativeDecls() {
		if patch != nil {
			patch(&d)
		}
		p.Methods = append(p.Methods, langmodule.NativeMethod{Decl: d, Fn: fns[d.FuncName]})
	}
	return p
}

func decl(name, funcName, ret string, params ...string) signature.MethodDecl {
	d := signature.MethodDecl{Name: name, FuncName: funcName, Return: ret}
	for _, p := range params {
		d.Params = append(d.Params, signature.ParamDecl{Type: p})
	}
	return d
}

func demoPlugin(exported ...signature.MethodDecl) *langmodule.Plugin {
	return &langmodule.Plugin{
		ID:              3,
		Name:            "demo",
		FriendlyName:    "Demo",
		Version:         "1.0",
		Dependencies:    []string{"host", "math"},
		Wasm:            testbed.PluginGuest(),
		ExportedMethods: exported,
	}
}

func addrOf(t *testing.T, addrs []langmodule.MethodAddress, name string) trampoline.Address {
	t.Helper()
	for _, a := range addrs {
		if a.Name == name {
			return a.Addr
		}
	}
	t.Fatalf("no address for %s in %v", name, addrs)
	return 0
}

func fn[F any](t *testing.T, m *langmodule.Module, addr trampoline.Address) F {
	t.Helper()
	f, err := trampoline.As[F](m.Table(), addr)
	if err != nil {
		t.Fatalf("As: %v", err)
	}
	return f
}

func TestModule_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m, logs := newModule(t, config.Default())
	subs := &subscriptions{}

	m.OnMethodExport(hostPlugin(subs, nil))
	demo := demoPlugin(
		decl("Add", "demo.Demo.Math.Add", "int32", "int32", "int32"),
		decl("Echo", "demo.Demo.Math.Echo", "string", "string"),
		decl("Find", "demo.Demo.Calls.Find", "int64", "string"),
		decl("State", "demo.Demo.Sample.State", "int32"),
		decl("NameLen", "demo.Demo.Sample.NameLen", "int32"),
		decl("Handle", "demo.Demo.Sample.Handle", "int32", "int32"),
	)
	addrs, err := m.OnPluginLoad(ctx, demo)
	if err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	if len(addrs) != 6 {
		t.Fatalf("got %d addresses, want 6", len(addrs))
	}

	script, ok := m.FindScript("demo")
	if !ok {
		t.Fatal("script instance not registered")
	}
	if script.Class().FullName() != "Demo.Sample" || int64(script.Object()) != testbed.SampleHandle {
		t.Errorf("script = %s object %#x", script.Class().FullName(), script.Object())
	}

	if got := fn[func(int32, int32) int32](t, m, addrOf(t, addrs, "Add"))(2, 3); got != 5 {
		t.Errorf("Add = %d, want 5", got)
	}
	if got := fn[func(string) string](t, m, addrOf(t, addrs, "Echo"))("héllo"); got != "héllo" {
		t.Errorf("Echo = %q", got)
	}
	find := fn[func(string) int64](t, m, addrOf(t, addrs, "Find"))
	if got := find("demo"); got != 3 {
		t.Errorf("Find(demo) = %d, want 3", got)
	}
	if got := find("nope"); got != -1 {
		t.Errorf("Find(nope) = %d, want -1", got)
	}
	if got := fn[func() int32](t, m, addrOf(t, addrs, "NameLen"))(); got != 4 {
		t.Errorf("NameLen = %d, want 4", got)
	}
	// instance methods of the plugin class get the plugin object
	if got := fn[func(int32) int32](t, m, addrOf(t, addrs, "Handle"))(1); got != 2 {
		t.Errorf("Handle = %d, want 2", got)
	}

	state := fn[func() int32](t, m, addrOf(t, addrs, "State"))
	if got := state(); got != 0 {
		t.Errorf("State before start = %d", got)
	}
	m.OnPluginStart(ctx, demo)
	if got := state(); got != 1 {
		t.Errorf("State after start = %d, want 1", got)
	}
	if n := logs.FilterMessage(testbed.StartedLog).FilterField(zap.String("plugin", "demo")).Len(); n != 1 {
		t.Errorf("%d %q entries, want 1", n, testbed.StartedLog)
	}

	cbs := subs.list()
	if len(cbs) != 1 {
		t.Fatalf("%d subscriptions, want 1", len(cbs))
	}
	tick := fn[func(int32) int32](t, m, trampoline.Address(cbs[0]))
	if got := tick(21); got != 42 {
		t.Errorf("OnTick(21) = %d, want 42", got)
	}
	if n := logs.FilterLevelExact(zapcore.WarnLevel).Len(); n != 0 {
		t.Errorf("unexpected warnings: %v", logs.FilterLevelExact(zapcore.WarnLevel).All())
	}

	m.OnPluginEnd(ctx, demo)
	if got := state(); got != 2 {
		t.Errorf("State after end = %d, want 2", got)
	}
	if logs.FilterMessage(testbed.EndedLog).Len() != 1 {
		t.Errorf("missing %q entry", testbed.EndedLog)
	}
}

func TestModule_ScriptToNative(t *testing.T) {
	ctx := context.Background()
	m, _ := newModule(t, config.Default())
	m.OnMethodExport(hostPlugin(&subscriptions{}, nil))

	addrs, err := m.OnPluginLoad(ctx, demoPlugin(
		decl("Upper", "demo.Demo.Calls.Upper", "string", "string"),
		decl("CallFill", "demo.Demo.Calls.CallFill", "string"),
		decl("CallInc", "demo.Demo.Calls.CallInc", "int32"),
		decl("CallTotal", "demo.Demo.Calls.CallTotal", "int32"),
		decl("CallMix", "demo.Demo.Calls.CallMix", "double"),
	))
	if err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}

	if got := fn[func(string) string](t, m, addrOf(t, addrs, "Upper"))("abc"); got != "ABC" {
		t.Errorf("Upper = %q", got)
	}
	if got := fn[func() string](t, m, addrOf(t, addrs, "CallFill"))(); got != "in-7" {
		t.Errorf("CallFill = %q, want in-7", got)
	}
	if got := fn[func() int32](t, m, addrOf(t, addrs, "CallInc"))(); got != 42 {
		t.Errorf("CallInc = %d, want 42", got)
	}
	if got := fn[func() int32](t, m, addrOf(t, addrs, "CallTotal"))(); got != 15 {
		t.Errorf("CallTotal = %d, want 15", got)
	}
	if got := fn[func() float64](t, m, addrOf(t, addrs, "CallMix"))(); got != 198.75 {
		t.Errorf("CallMix = %v, want 198.75", got)
	}
}

func TestModule_DuplicateExport(t *testing.T) {
	ctx := context.Background()
	m, logs := newModule(t, config.Default())
	m.OnMethodExport(hostPlugin(&subscriptions{}, nil))

	var upper signature.MethodDecl
	for _, d := range testbed.NativeDecls() {
		if d.FuncName == testbed.UpperName {
			upper = d
		}
	}
	m.OnMethodExport(&langmodule.Plugin{Name: "other", Methods: []langmodule.NativeMethod{
		{Decl: upper, Fn: func(string) string { return "second" }},
	}})

	dups := logs.FilterLevelExact(zapcore.ErrorLevel).FilterMessage("method name duplicate: " + testbed.UpperName)
	if dups.Len() != 1 {
		t.Fatalf("%d duplicate entries, want 1: %v", dups.Len(), logs.All())
	}

	addrs, err := m.OnPluginLoad(ctx, demoPlugin(decl("Upper", "demo.Demo.Calls.Upper", "string", "string")))
	if err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	if got := fn[func(string) string](t, m, addrOf(t, addrs, "Upper"))("abc"); got != "ABC" {
		t.Errorf("Upper = %q, the first registration must stay active", got)
	}
}

func TestModule_ExportRejected(t *testing.T) {
	m, logs := newModule(t, config.Default())
	m.OnMethodExport(&langmodule.Plugin{Name: "bad", Methods: []langmodule.NativeMethod{
		{Decl: decl("Wrong", "Bad.NS.C.Wrong", "int32", "int32"), Fn: func(string) int32 { return 0 }},
		{Decl: decl("None", "Bad.NS.C.None", "void")},
		{Decl: decl("Good", "Bad.NS.C.Good", "int32", "int32"), Fn: func(x int32) int32 { return x }},
	}})

	if n := logs.FilterMessage("method trampoline generation failed").Len(); n != 2 {
		t.Errorf("%d failures logged, want 2", n)
	}
	if _, ok := m.Import("Bad.NS.C.Wrong"); ok {
		t.Error("mismatched native registered")
	}
	if _, ok := m.Import("Bad.NS.C.Good"); !ok {
		t.Error("valid native not registered")
	}
}

func TestModule_LoadSkipsUncompilableMethod(t *testing.T) {
	ctx := context.Background()
	m, logs := newModule(t, config.Default())
	m.OnMethodExport(hostPlugin(&subscriptions{}, nil))

	add := decl("Add", "demo.Demo.Math.Add", "int32", "int32", "int32")
	add.CallConv = "stdcall"
	addrs, err := m.OnPluginLoad(ctx, demoPlugin(
		decl("Echo", "demo.Demo.Math.Echo", "string", "string"),
		add,
	))
	if err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	if len(addrs) != 1 || addrs[0].Name != "Echo" {
		t.Fatalf("addresses = %v, want only Echo", addrs)
	}
	if got := fn[func(string) string](t, m, addrs[0].Addr)("kept"); got != "kept" {
		t.Errorf("Echo = %q", got)
	}

	failed := logs.FilterMessage("method trampoline generation failed").All()
	if len(failed) != 1 || failed[0].Level != zapcore.ErrorLevel {
		t.Fatalf("logged %v, want one error", failed)
	}
	if got := failed[0].ContextMap()["method"]; got != "demo.Demo.Math.Add" {
		t.Errorf("method field = %v", got)
	}
	if _, ok := m.FindScript("demo"); !ok {
		t.Error("plugin not registered")
	}
}

func TestModule_LoadErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := newModule(t, config.Default())
	m.OnMethodExport(hostPlugin(&subscriptions{}, nil))

	demo := demoPlugin(
		decl("Short", "demo.Demo.Math", "int32"),
		decl("NoClass", "demo.Demo.Nope.Add", "int32"),
		decl("NoMethod", "demo.Demo.Math.Nope", "int32"),
		decl("Add", "demo.Demo.Math.Add", "int64", "int32", "int32"),
		decl("Echo", "demo.Demo.Math.Echo", "string", "string"),
	)
	_, err := m.OnPluginLoad(ctx, demo)
	if err == nil {
		t.Fatal("expected load error")
	}
	var list bridgeerrors.List
	if !errors.As(err, &list) || len(list) != 4 {
		t.Fatalf("err = %v, want 4 problems", err)
	}
	for _, want := range []string{
		"'Plugin.Namespace.Class.Method'",
		"failed to find class 'Demo.Nope'",
		"failed to find method 'Demo.Math::Nope'",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("err = %v, want it to contain %q", err, want)
		}
	}
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseValidate, Kind: bridgeerrors.KindTypeMismatch}) {
		t.Errorf("err = %v, want a return type mismatch", err)
	}
	if _, ok := m.FindScript("demo"); ok {
		t.Error("failed plugin left a script instance")
	}

	demo.ExportedMethods = demo.ExportedMethods[4:]
	if _, err := m.OnPluginLoad(ctx, demo); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := m.OnPluginLoad(ctx, demo); !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseLoad, Kind: bridgeerrors.KindDuplicate}) {
		t.Errorf("second load err = %v, want duplicate", err)
	}
}

func TestModule_LoadFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing imports", func(t *testing.T) {
		m, _ := newModule(t, config.Default())
		_, err := m.OnPluginLoad(ctx, demoPlugin())
		var missing *bridgeerrors.MissingImportsError
		if !errors.As(err, &missing) || len(missing.Imports) != len(testbed.NativeDecls()) {
			t.Errorf("err = %v, want every native missing", err)
		}
	})

	tests := []struct {
		name string
		wasm []byte
		want string
	}{
		{"no plugin class", testbed.MathGuest(), "failed to find 'Wand.Plugin' class implementation"},
		{"two plugin classes", testbed.BarePluginGuest(true), "more than one class extends 'Wand.Plugin'"},
		{"not wasm", []byte("nope"), "compile failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newModule(t, config.Default())
			_, err := m.OnPluginLoad(ctx, &langmodule.Plugin{Name: "p", Wasm: tt.wasm})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
			if m.Engine().Images() != 0 {
				t.Errorf("%d images left registered", m.Engine().Images())
			}
		})
	}

	t.Run("entry point", func(t *testing.T) {
		m, _ := newModule(t, config.Default())
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "bare.wasm"), testbed.BarePluginGuest(false), 0o644); err != nil {
			t.Fatal(err)
		}
		p := &langmodule.Plugin{Name: "bare", BaseDir: dir, EntryPoint: "bare.wasm"}
		if _, err := m.OnPluginLoad(ctx, p); err != nil {
			t.Fatalf("OnPluginLoad: %v", err)
		}
		p = &langmodule.Plugin{Name: "gone", BaseDir: dir, EntryPoint: "gone.wasm"}
		if _, err := m.OnPluginLoad(ctx, p); err == nil || !strings.Contains(err.Error(), "failed to read entry point") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestModule_Subscribe(t *testing.T) {
	ctx := context.Background()
	m, _ := newModule(t, config.Default())
	m.OnMethodExport(hostPlugin(&subscriptions{}, nil))

	fnParam := signature.ParamDecl{Type: "function"}
	wide := signature.Decl(signature.MustNew(signature.Int64, signature.P(signature.Int64)))
	var got []uintptr
	record := func(cb uintptr) { got = append(got, cb) }
	m.OnMethodExport(&langmodule.Plugin{Name: "events", Methods: []langmodule.NativeMethod{
		{Decl: signature.MethodDecl{Name: "NoProto", FuncName: "Events.Bus.Hub.NoProto", Return: "void",
			Params: []signature.ParamDecl{fnParam}}, Fn: record},
		{Decl: signature.MethodDecl{Name: "Two", FuncName: "Events.Bus.Hub.Two", Return: "void",
			Params: []signature.ParamDecl{fnParam, fnParam}}, Fn: func(a, b uintptr) {}},
		{Decl: decl("Int", "Events.Bus.Hub.Int", "void", "int32"), Fn: func(int32) {}},
		{Decl: signature.MethodDecl{Name: "Wide", FuncName: "Events.Bus.Hub.Wide", Return: "void",
			Params: []signature.ParamDecl{{Type: "function", Prototype: &wide}}}, Fn: record},
	}})

	if _, err := m.OnPluginLoad(ctx, demoPlugin()); err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	script, _ := m.FindScript("demo")
	sample, _ := script.Image().Class("Demo", "Sample")
	onTick, ok := sample.Method("OnTick")
	if !ok {
		t.Fatal("OnTick not found")
	}

	tests := []struct {
		dest  string
		phase bridgeerrors.Phase
		kind  bridgeerrors.Kind
	}{
		{"Events.Bus.Hub.NoProto", bridgeerrors.PhaseSubscribe, bridgeerrors.KindMissingPrototype},
		{"Events.Bus.Hub.Two", bridgeerrors.PhaseSubscribe, bridgeerrors.KindCountMismatch},
		{"Events.Bus.Hub.Int", bridgeerrors.PhaseSubscribe, bridgeerrors.KindTypeMismatch},
		{"Events.Bus.Hub.Missing", bridgeerrors.PhaseSubscribe, bridgeerrors.KindNotFound},
		{"Events.Bus.Hub.Wide", bridgeerrors.PhaseValidate, bridgeerrors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			_, err := m.Subscribe(tt.dest, onTick, 0)
			if !errors.Is(err, &bridgeerrors.Error{Phase: tt.phase, Kind: tt.kind}) {
				t.Errorf("err = %v, want %s/%s", err, tt.phase, tt.kind)
			}
		})
	}
	if len(got) != 0 {
		t.Errorf("rejected subscriptions reached the destination: %v", got)
	}

	addr, err := m.Subscribe(testbed.SubscribeName, onTick, 0)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := fn[func(int32) int32](t, m, addr)(5); got != 10 {
		t.Errorf("callback(5) = %d, want 10", got)
	}
}

func TestModule_SubscribeReturningDestination(t *testing.T) {
	ctx := context.Background()
	m, _ := newModule(t, config.Default())
	m.OnMethodExport(hostPlugin(&subscriptions{}, nil))

	proto := signature.Decl(testbed.TickPrototype)
	params := []signature.ParamDecl{{Type: "function", Prototype: &proto}}
	var got []uintptr
	m.OnMethodExport(&langmodule.Plugin{Name: "events", Methods: []langmodule.NativeMethod{
		{Decl: signature.MethodDecl{Name: "Reg", FuncName: "Events.Bus.Hub.Reg", Return: "bool", Params: params},
			Fn: func(cb uintptr) bool { got = append(got, cb); return true }},
		{Decl: signature.MethodDecl{Name: "Named", FuncName: "Events.Bus.Hub.Named", Return: "string", Params: params},
			Fn: func(cb uintptr) string { got = append(got, cb); return "tick" }},
		{Decl: signature.MethodDecl{Name: "Out", FuncName: "Events.Bus.Hub.Out", Return: "int32[]", Params: params},
			Fn: func(out *[]int32, cb uintptr) { got = append(got, cb); *out = []int32{1} }},
	}})

	if _, err := m.OnPluginLoad(ctx, demoPlugin()); err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	script, _ := m.FindScript("demo")
	sample, _ := script.Image().Class("Demo", "Sample")
	onTick, _ := sample.Method("OnTick")

	for i, dest := range []string{"Events.Bus.Hub.Reg", "Events.Bus.Hub.Named", "Events.Bus.Hub.Out"} {
		t.Run(dest, func(t *testing.T) {
			addr, err := m.Subscribe(dest, onTick, 0)
			if err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			if len(got) != i+1 || got[i] != uintptr(addr) {
				t.Fatalf("destination received %v, want address %#x", got, addr)
			}
			if r := fn[func(int32) int32](t, m, addr)(21); r != 42 {
				t.Errorf("callback(21) = %d, want 42", r)
			}
		})
	}
}

func TestModule_SubscribeWalkProblems(t *testing.T) {
	ctx := context.Background()
	m, logs := newModule(t, config.Default())
	subs := &subscriptions{}
	m.OnMethodExport(hostPlugin(subs, func(d *signature.MethodDecl) {
		if d.FuncName == testbed.SubscribeName {
			d.Params = []signature.ParamDecl{{Type: "function"}}
		}
	}))

	demo := demoPlugin()
	if _, err := m.OnPluginLoad(ctx, demo); err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	m.OnPluginStart(ctx, demo)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warns) != 1 {
		t.Fatalf("%d warnings, want 1: %v", len(warns), warns)
	}
	msg := warns[0].Message
	for _, want := range []string{
		"Plugin 'demo' has problems related to subscribe method(s): ",
		"could not subscribe to destination method '" + testbed.SubscribeName + "' which does not have prototype information",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("warning %q does not contain %q", msg, want)
		}
	}
	if len(subs.list()) != 0 {
		t.Error("destination called despite the missing prototype")
	}
	// start continues after subscription problems
	if logs.FilterMessage(testbed.StartedLog).Len() != 1 {
		t.Error("OnStart did not run")
	}
}

func TestModule_SubscribeFeatureOff(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SubscribeFeature = false
	m, _ := newModule(t, cfg)
	subs := &subscriptions{}
	m.OnMethodExport(hostPlugin(subs, nil))

	demo := demoPlugin()
	if _, err := m.OnPluginLoad(ctx, demo); err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	m.OnPluginStart(ctx, demo)
	if n := len(subs.list()); n != 0 {
		t.Errorf("%d subscriptions with the feature off", n)
	}
}

func TestModule_Exception(t *testing.T) {
	ctx := context.Background()
	m, logs := newModule(t, config.Default())
	m.OnMethodExport(hostPlugin(&subscriptions{}, nil))

	addrs, err := m.OnPluginLoad(ctx, demoPlugin(
		decl("Throw", "demo.Demo.Math.Throw", "int32"),
		decl("CallFail", "demo.Demo.Calls.CallFail", "int32"),
	))
	if err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}

	if got := fn[func() int32](t, m, addrOf(t, addrs, "Throw"))(); got != 0 {
		t.Errorf("Throw = %d, want the zero value", got)
	}
	if got := fn[func() int32](t, m, addrOf(t, addrs, "CallFail"))(); got != 0 {
		t.Errorf("CallFail = %d, want the zero value", got)
	}

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errs) != 2 {
		t.Fatalf("%d error entries, want 2", len(errs))
	}
	for i, want := range []string{
		"[bridge] [Exception]  | Message: " + testbed.BoomMessage + " | Source: demo",
		testbed.FailMessage,
	} {
		if !strings.Contains(errs[i].Message, want) {
			t.Errorf("entry %d = %q, want it to contain %q", i, errs[i].Message, want)
		}
	}
	if !strings.Contains(errs[0].Message, "TargetSite: Demo.Math::Throw") {
		t.Errorf("entry = %q, want the target site", errs[0].Message)
	}
}

func TestModule_SafeMode(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.SafeMode = true
	m, _ := newModule(t, cfg)
	subs := &subscriptions{}
	m.OnMethodExport(hostPlugin(subs, nil))

	demo := demoPlugin(decl("Add", "demo.Demo.Math.Add", "int32", "int32", "int32"))
	addrs, err := m.OnPluginLoad(ctx, demo)
	if err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	add := addrOf(t, addrs, "Add")
	if _, err := trampoline.As[func(int32, int32) int32](m.Table(), add); err == nil {
		t.Error("safe mode produced a typed function")
	}
	got, err := m.Table().Call(add, int32(2), int32(3))
	if err != nil || got != int32(5) {
		t.Errorf("Call = %v, %v; want 5", got, err)
	}

	m.OnPluginStart(ctx, demo)
	cbs := subs.list()
	if len(cbs) != 1 {
		t.Fatalf("%d subscriptions, want 1", len(cbs))
	}
	got, err = m.Table().Call(trampoline.Address(cbs[0]), int32(4))
	if err != nil || got != int32(8) {
		t.Errorf("callback = %v, %v; want 8", got, err)
	}
}

func TestModule_GuestLogLevel(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Level = "warn"
	m, logs := newModule(t, cfg)

	p := &langmodule.Plugin{Name: "bare", Wasm: testbed.BarePluginGuest(false)}
	if _, err := m.OnPluginLoad(ctx, p); err != nil {
		t.Fatalf("OnPluginLoad: %v", err)
	}
	m.OnPluginStart(ctx, p)
	if n := logs.FilterMessage(testbed.StartedLog).Len(); n != 0 {
		t.Errorf("info guest log passed a warn level filter")
	}
}

func TestModule_Initialize(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	doc := "base_class = \"Game.Plugin\"\ncompiler = \"interpreter\"\n"
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	m := langmodule.New(nil)
	if _, err := m.OnPluginLoad(ctx, demoPlugin()); !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseLoad, Kind: bridgeerrors.KindNotInitialized}) {
		t.Errorf("load before Initialize: %v", err)
	}
	if err := m.Initialize(ctx, dir); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer func() { _ = m.Shutdown(ctx) }()
	if m.Config().BaseClass != "Game.Plugin" {
		t.Errorf("base class = %q", m.Config().BaseClass)
	}
	if err := m.Initialize(ctx, dir); err == nil {
		t.Error("second Initialize succeeded")
	}

	_, err := m.OnPluginLoad(ctx, &langmodule.Plugin{Name: "bare", Wasm: testbed.BarePluginGuest(false)})
	if err == nil || !strings.Contains(err.Error(), "'Game.Plugin'") {
		t.Errorf("err = %v, want the configured base class", err)
	}
}
