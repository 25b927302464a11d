package trampoline

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
)

// Address is an opaque native function pointer handed across the bridge.
// Zero is null.
type Address uintptr

const (
	firstAddress Address = 0x1000
	addressStep  Address = 0x10
)

// Table maps addresses to Go function values. Pointer and Function values on
// the native side are addresses from a table.
type Table struct {
	funcs map[Address]reflect.Value
	next  Address
	mu    sync.RWMutex
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{funcs: make(map[Address]reflect.Value), next: firstAddress}
}

// Default is the process-wide table used when none is configured.
var Default = NewTable()

// Register stores fn and returns its address.
func (t *Table) Register(fn any) (Address, error) {
	v, ok := fn.(reflect.Value)
	if !ok {
		v = reflect.ValueOf(fn)
	}
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0, errors.InvalidInput(errors.PhaseCompile, fmt.Sprintf("cannot register %T as a function", fn))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	addr := t.next
	t.next += addressStep
	t.funcs[addr] = v
	return addr, nil
}

// MustRegister is Register for known function values; it panics on error.
func (t *Table) MustRegister(fn any) Address {
	addr, err := t.Register(fn)
	if err != nil {
		panic(err)
	}
	return addr
}

// Resolve returns the function stored at addr.
func (t *Table) Resolve(addr Address) (reflect.Value, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.funcs[addr]
	return v, ok
}

// Release forgets addr.
func (t *Table) Release(addr Address) {
	t.mu.Lock()
	delete(t.funcs, addr)
	t.mu.Unlock()
}

// Len returns the number of registered functions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.funcs)
}

// As resolves addr to a typed function.
func As[F any](t *Table, addr Address) (F, error) {
	var zero F
	v, ok := t.Resolve(addr)
	if !ok {
		return zero, errors.NotFound(errors.PhaseDispatch, "function address", fmt.Sprintf("%#x", uintptr(addr)))
	}
	f, ok := v.Interface().(F)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseDispatch, nil, v.Type().String(), reflect.TypeFor[F]().String())
	}
	return f, nil
}

// Call invokes the function at addr with untyped arguments. It works for
// typed trampolines and for generic ones built in safe mode.
func (t *Table) Call(addr Address, args ...any) (any, error) {
	v, ok := t.Resolve(addr)
	if !ok {
		return nil, errors.NotFound(errors.PhaseDispatch, "function address", fmt.Sprintf("%#x", uintptr(addr)))
	}
	if g, ok := v.Interface().(GenericFunc); ok {
		return g(args...)
	}
	ft := v.Type()
	if ft.NumIn() != len(args) {
		return nil, errors.New(errors.PhaseDispatch, errors.KindCountMismatch).
			NativeType(ft.String()).Detail("%d arguments given", len(args)).Build()
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		av := reflect.ValueOf(a)
		if !av.IsValid() {
			av = reflect.Zero(ft.In(i))
		}
		if !av.Type().AssignableTo(ft.In(i)) {
			return nil, errors.TypeMismatch(errors.PhaseDispatch, []string{fmt.Sprintf("arg[%d]", i)}, ft.In(i).String(), av.Type().String())
		}
		in[i] = av
	}
	out := v.Call(in)
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}
