package callvm

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

func TestCall_DirectScalar(t *testing.T) {
	vm := Get()
	defer Put(vm)

	add := func(a int32, b int64, c float64) float64 { return float64(a) + float64(b) + c }
	vm.PushInt32(2)
	vm.PushInt64(40)
	vm.PushDouble(0.5)

	res, err := vm.Call(reflect.ValueOf(add), signature.Double, reflect.Value{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Float() != 42.5 {
		t.Errorf("result = %v, want 42.5", res.Float())
	}
}

func TestCall_Void(t *testing.T) {
	vm := Get()
	defer Put(vm)

	var seen bool
	vm.PushBool(true)
	res, err := vm.Call(reflect.ValueOf(func(b bool) { seen = b }), signature.Void, reflect.Value{})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsValid() || !seen {
		t.Errorf("res=%v seen=%v", res, seen)
	}
}

func TestCall_ComplexReturnShapes(t *testing.T) {
	direct := func(s string, n int32) string { return strings.Repeat(s, int(n)) }
	outPtr := func(out *string, s string, n int32) { *out = strings.Repeat(s, int(n)) }

	for name, fn := range map[string]any{"direct": direct, "out pointer": outPtr} {
		t.Run(name, func(t *testing.T) {
			vm := Get()
			defer Put(vm)

			var slot string
			vm.PushValue(reflect.ValueOf("ab"))
			vm.PushInt32(3)
			res, err := vm.Call(reflect.ValueOf(fn), signature.String, reflect.ValueOf(&slot))
			if err != nil {
				t.Fatal(err)
			}
			if res.String() != "ababab" || slot != "ababab" {
				t.Errorf("res=%q slot=%q", res.String(), slot)
			}
		})
	}
}

func TestCall_Ref(t *testing.T) {
	vm := Get()
	defer Put(vm)

	inc := func(p *int32, list *[]string) {
		*p++
		*list = append(*list, "more")
	}
	n := int32(9)
	list := []string{"one"}
	vm.PushRef(reflect.ValueOf(&n))
	vm.PushRef(reflect.ValueOf(&list))
	if _, err := vm.Call(reflect.ValueOf(inc), signature.Void, reflect.Value{}); err != nil {
		t.Fatal(err)
	}
	if n != 10 || len(list) != 2 {
		t.Errorf("n=%d list=%v", n, list)
	}
}

func TestCall_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   any
		push func(*VM)
		ret  signature.Tag
		kind bridgeerrors.Kind
	}{
		{
			name: "too few args",
			fn:   func(a, b int32) int32 { return a + b },
			push: func(vm *VM) { vm.PushInt32(1) },
			ret:  signature.Int32,
			kind: bridgeerrors.KindCountMismatch,
		},
		{
			name: "wrong arg type",
			fn:   func(a int32) int32 { return a },
			push: func(vm *VM) { vm.PushInt64(1) },
			ret:  signature.Int32,
			kind: bridgeerrors.KindTypeMismatch,
		},
		{
			name: "wrong return type",
			fn:   func() int64 { return 0 },
			push: func(*VM) {},
			ret:  signature.Int32,
			kind: bridgeerrors.KindTypeMismatch,
		},
		{
			name: "missing result",
			fn:   func() {},
			push: func(*VM) {},
			ret:  signature.Bool,
			kind: bridgeerrors.KindCountMismatch,
		},
		{
			name: "not a function",
			fn:   42,
			push: func(*VM) {},
			ret:  signature.Void,
			kind: bridgeerrors.KindInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := Get()
			defer Put(vm)
			tt.push(vm)
			_, err := vm.Call(reflect.ValueOf(tt.fn), tt.ret, reflect.Value{})
			var be *bridgeerrors.Error
			if !errors.As(err, &be) || be.Kind != tt.kind {
				t.Fatalf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestCall_RecoversPanic(t *testing.T) {
	vm := Get()
	defer Put(vm)

	_, err := vm.Call(reflect.ValueOf(func() int32 { panic("native failure") }), signature.Int32, reflect.Value{})
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseDispatch, Kind: bridgeerrors.KindException}) {
		t.Fatalf("err = %v, want dispatch exception", err)
	}
	if !strings.Contains(err.Error(), "native failure") {
		t.Errorf("panic value missing from %q", err.Error())
	}
}

func TestPool_Reset(t *testing.T) {
	vm := Get()
	vm.PushInt8(1)
	vm.PushUint8(2)
	Put(vm)

	again := Get()
	defer Put(again)
	if again.NumArgs() != 0 {
		t.Errorf("pooled VM has %d stale args", again.NumArgs())
	}
}
