package trampoline

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// GenericFunc is the single entry shape used by safe mode: arguments are
// checked against the descriptor at call time.
type GenericFunc func(args ...any) (any, error)

// NativeCompiler builds native-callable trampolines: Go functions whose type is
// derived from the descriptor, registered in Table.
type NativeCompiler struct {
	Table *Table
	// Generic disables per-signature function generation; every trampoline is
	// a GenericFunc reachable through Table.Call.
	Generic bool
}

// FuncType derives the Go function type for desc. By-reference parameters
// become *T; a Void return has no result.
func FuncType(desc *signature.Descriptor) reflect.Type {
	in := make([]reflect.Type, desc.NumParams())
	for i := range in {
		p := desc.Param(i)
		t := p.Type.NativeType()
		if p.Ref {
			t = reflect.PointerTo(t)
		}
		in[i] = t
	}
	var out []reflect.Type
	if desc.Return() != signature.Void {
		out = []reflect.Type{desc.Return().NativeType()}
	}
	return reflect.FuncOf(in, out, false)
}

// Compile implements Compiler.
func (c *NativeCompiler) Compile(name string, desc *signature.Descriptor, cb Callback, userData any) (*Trampoline, error) {
	if err := checkDescriptor(name, desc); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, errors.Codegen(name, "nil dispatch callback")
	}
	table := c.Table
	if table == nil {
		table = Default
	}

	ft := FuncType(desc)
	var fn reflect.Value
	if c.Generic {
		fn = reflect.ValueOf(genericEntry(desc, ft, cb, userData))
	} else {
		fn = reflect.MakeFunc(ft, typedEntry(desc, ft, cb, userData))
	}

	addr, err := table.Register(fn)
	if err != nil {
		return nil, errors.Codegen(name, err.Error())
	}
	return &Trampoline{Desc: desc, Name: name, Addr: addr, Func: fn}, nil
}

func typedEntry(desc *signature.Descriptor, ft reflect.Type, cb Callback, userData any) func([]reflect.Value) []reflect.Value {
	hasRet := ft.NumOut() == 1
	return func(in []reflect.Value) []reflect.Value {
		frame := Frame{Ctx: context.Background(), Values: in}
		var slot Slot
		cb(desc, userData, &frame, &slot)
		if !hasRet {
			return nil
		}
		return []reflect.Value{coerce(slot.Value, ft.Out(0))}
	}
}

func genericEntry(desc *signature.Descriptor, ft reflect.Type, cb Callback, userData any) GenericFunc {
	return func(args ...any) (any, error) {
		if len(args) != ft.NumIn() {
			return nil, errors.New(errors.PhaseDispatch, errors.KindCountMismatch).
				Detail("%s takes %d arguments, %d given", desc, ft.NumIn(), len(args)).Build()
		}
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			v := reflect.ValueOf(a)
			if !v.IsValid() {
				v = reflect.Zero(ft.In(i))
			}
			if v.Type() != ft.In(i) {
				return nil, errors.TypeMismatch(errors.PhaseDispatch, []string{fmt.Sprintf("arg[%d]", i)}, ft.In(i).String(), v.Type().String())
			}
			in[i] = v
		}
		frame := Frame{Ctx: context.Background(), Values: in}
		var slot Slot
		cb(desc, userData, &frame, &slot)
		if ft.NumOut() == 0 {
			return nil, nil
		}
		return coerce(slot.Value, ft.Out(0)).Interface(), nil
	}
}

// coerce returns v as type t, or the zero value when the callback left the
// slot empty.
func coerce(v reflect.Value, t reflect.Type) reflect.Value {
	if !v.IsValid() {
		return reflect.Zero(t)
	}
	if v.Type() == t {
		return v
	}
	if v.Type().ConvertibleTo(t) {
		return v.Convert(t)
	}
	return reflect.Zero(t)
}
