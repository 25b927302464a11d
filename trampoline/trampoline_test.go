package trampoline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tetratelabs/wazero/api"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

func TestFuncType(t *testing.T) {
	tests := []struct {
		desc *signature.Descriptor
		want reflect.Type
	}{
		{signature.MustNew(signature.Void), reflect.TypeFor[func()]()},
		{signature.MustNew(signature.Int32, signature.P(signature.Int32), signature.P(signature.Int32)), reflect.TypeFor[func(int32, int32) int32]()},
		{signature.MustNew(signature.String, signature.R(signature.ArrayInt64), signature.P(signature.Function)), reflect.TypeFor[func(*[]int64, uintptr) string]()},
		{signature.MustNew(signature.Void, signature.R(signature.Double)), reflect.TypeFor[func(*float64)]()},
	}
	for _, tt := range tests {
		if got := FuncType(tt.desc); got != tt.want {
			t.Errorf("FuncType(%s) = %v, want %v", tt.desc, got, tt.want)
		}
	}
}

func TestNativeCompiler_Typed(t *testing.T) {
	table := NewTable()
	c := &NativeCompiler{Table: table}
	desc := signature.MustNew(signature.Int64, signature.P(signature.Int32), signature.R(signature.String))

	var gotUser any
	cb := func(d *signature.Descriptor, userData any, args *Frame, ret *Slot) {
		gotUser = userData
		n := args.Values[0].Int()
		s := args.Values[1].Interface().(*string)
		*s += "!"
		ret.Value = reflect.ValueOf(n * 2)
	}

	tr, err := c.Compile("P.N.C.Twice", desc, cb, "user")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Addr == 0 {
		t.Fatal("expected a non-null address")
	}

	fn, err := As[func(int32, *string) int64](table, tr.Addr)
	if err != nil {
		t.Fatal(err)
	}
	s := "hi"
	if got := fn(21, &s); got != 42 {
		t.Errorf("fn(21) = %d, want 42", got)
	}
	if s != "hi!" || gotUser != "user" {
		t.Errorf("s=%q userData=%v", s, gotUser)
	}

	if _, err := As[func() int32](table, tr.Addr); err == nil {
		t.Error("As with the wrong type should fail")
	}
}

func TestNativeCompiler_EmptySlotIsZero(t *testing.T) {
	table := NewTable()
	c := &NativeCompiler{Table: table}
	desc := signature.MustNew(signature.String)

	tr, err := c.Compile("P.N.C.Empty", desc, func(*signature.Descriptor, any, *Frame, *Slot) {}, nil)
	if err != nil {
		t.Fatal(err)
	}
	fn, err := As[func() string](table, tr.Addr)
	if err != nil {
		t.Fatal(err)
	}
	if got := fn(); got != "" {
		t.Errorf("fn() = %q, want empty", got)
	}
}

func TestNativeCompiler_Generic(t *testing.T) {
	table := NewTable()
	c := &NativeCompiler{Table: table, Generic: true}
	desc := signature.MustNew(signature.Double, signature.P(signature.Double), signature.P(signature.Float))

	cb := func(d *signature.Descriptor, _ any, args *Frame, ret *Slot) {
		ret.Value = reflect.ValueOf(args.Values[0].Float() + args.Values[1].Float())
	}
	tr, err := c.Compile("P.N.C.Sum", desc, cb, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := table.Call(tr.Addr, 1.5, float32(2))
	if err != nil {
		t.Fatal(err)
	}
	if got != 3.5 {
		t.Errorf("Call = %v, want 3.5", got)
	}

	if _, err := table.Call(tr.Addr, 1.5); err == nil {
		t.Error("expected arity error")
	}
	if _, err := table.Call(tr.Addr, 1.5, 2.0); err == nil {
		t.Error("expected type error for float64 where float32 is declared")
	}
	if _, err := As[func(float64, float32) float64](table, tr.Addr); err == nil {
		t.Error("generic trampolines are not typed functions")
	}
}

func TestCompile_Errors(t *testing.T) {
	stdcall, err := signature.New(signature.Void, signature.CallConvStdcall)
	if err != nil {
		t.Fatal(err)
	}
	cb := func(*signature.Descriptor, any, *Frame, *Slot) {}

	compilers := map[string]Compiler{
		"native": &NativeCompiler{Table: NewTable()},
		"host":   HostCompiler{},
	}
	for name, c := range compilers {
		t.Run(name, func(t *testing.T) {
			_, err := c.Compile("P.N.C.M", stdcall, cb, nil)
			if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseCompile, Kind: bridgeerrors.KindCodegen}) {
				t.Errorf("stdcall: err = %v", err)
			}
			_, err = c.Compile("P.N.C.M", signature.MustNew(signature.Void), nil, nil)
			if err == nil {
				t.Error("expected error for nil callback")
			}
		})
	}
}

func TestHostCompiler(t *testing.T) {
	desc := signature.MustNew(signature.Int64,
		signature.P(signature.Int32),
		signature.P(signature.Double),
		signature.P(signature.String),
		signature.R(signature.Int64),
	)

	var seen []uint64
	cb := func(d *signature.Descriptor, _ any, args *Frame, ret *Slot) {
		seen = append([]uint64(nil), args.Words...)
		ret.Word = 99
	}
	tr, err := HostCompiler{}.Compile("P.N.C.M", desc, cb, nil)
	if err != nil {
		t.Fatal(err)
	}

	wantParams := []api.ValueType{api.ValueTypeI32, api.ValueTypeF64, api.ValueTypeI32, api.ValueTypeI32}
	if !reflect.DeepEqual(tr.Params, wantParams) {
		t.Errorf("params = %v, want %v", tr.Params, wantParams)
	}
	if !reflect.DeepEqual(tr.Results, []api.ValueType{api.ValueTypeI64}) {
		t.Errorf("results = %v", tr.Results)
	}

	stack := []uint64{1, 2, 3, 4}
	tr.Host.Call(context.Background(), nil, stack)
	if !reflect.DeepEqual(seen, []uint64{1, 2, 3, 4}) {
		t.Errorf("frame words = %v", seen)
	}
	if stack[0] != 99 {
		t.Errorf("result word = %d, want 99", stack[0])
	}
}

func TestStore_Close(t *testing.T) {
	table := NewTable()
	store := NewStore(table)
	c := &NativeCompiler{Table: table}
	cb := func(*signature.Descriptor, any, *Frame, *Slot) {}

	for _, name := range []string{"A.B.C.D", "A.B.C.E"} {
		tr, err := c.Compile(name, signature.MustNew(signature.Void), cb, nil)
		if err != nil {
			t.Fatal(err)
		}
		store.Add(tr)
	}
	if store.Len() != 2 || table.Len() != 2 {
		t.Fatalf("store=%d table=%d", store.Len(), table.Len())
	}
	store.Close()
	if store.Len() != 0 || table.Len() != 0 {
		t.Errorf("after Close store=%d table=%d", store.Len(), table.Len())
	}
}

func TestTable(t *testing.T) {
	table := NewTable()
	if _, err := table.Register(42); err == nil {
		t.Error("registering a non-function should fail")
	}
	a := table.MustRegister(func(a, b int32) int32 { return a - b })
	b := table.MustRegister(func() {})
	if a == 0 || a == b {
		t.Fatalf("addresses a=%#x b=%#x", a, b)
	}

	got, err := table.Call(a, int32(7), int32(2))
	if err != nil || got != int32(5) {
		t.Errorf("Call = %v, %v", got, err)
	}
	table.Release(a)
	if _, ok := table.Resolve(a); ok {
		t.Error("released address still resolves")
	}
	if _, err := table.Call(a); err == nil {
		t.Error("calling a released address should fail")
	}
}
