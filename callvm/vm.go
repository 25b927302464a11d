package callvm

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

const (
	poolInitCap = 8
	poolMaxCap  = 64
)

// VM assembles the arguments of one native call whose signature is only known
// at runtime, then issues the call.
type VM struct {
	args []reflect.Value
}

var vmPool = sync.Pool{
	New: func() any {
		return &VM{args: make([]reflect.Value, 0, poolInitCap)}
	},
}

// Get returns a reset VM from the pool.
func Get() *VM {
	return vmPool.Get().(*VM)
}

// Put resets vm and returns it to the pool.
func Put(vm *VM) {
	if vm == nil || cap(vm.args) > poolMaxCap {
		return
	}
	vm.Reset()
	vmPool.Put(vm)
}

// Reset clears the argument list.
func (vm *VM) Reset() {
	clear(vm.args)
	vm.args = vm.args[:0]
}

// NumArgs returns the number of pushed arguments.
func (vm *VM) NumArgs() int { return len(vm.args) }

func (vm *VM) PushBool(v bool)       { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushInt8(v int8)       { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushInt16(v int16)     { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushInt32(v int32)     { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushInt64(v int64)     { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushUint8(v uint8)     { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushUint16(v uint16)   { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushUint32(v uint32)   { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushUint64(v uint64)   { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushPointer(v uintptr) { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushFloat(v float32)   { vm.args = append(vm.args, reflect.ValueOf(v)) }
func (vm *VM) PushDouble(v float64)  { vm.args = append(vm.args, reflect.ValueOf(v)) }

// PushRef pushes a pointer the callee may write through.
func (vm *VM) PushRef(ptr reflect.Value) {
	vm.args = append(vm.args, ptr)
}

// PushValue pushes an already typed value (strings, slices).
func (vm *VM) PushValue(v reflect.Value) {
	vm.args = append(vm.args, v)
}

// Call invokes fn with the pushed arguments.
//
// Two native shapes are accepted: a function returning its result directly, and
// for string/array returns a function taking an output pointer as implicit
// first argument and returning nothing. out is the caller-owned *T output
// storage for complex returns and may be invalid otherwise; on success it holds
// the result in both shapes.
//
// A panic inside fn is recovered and returned as an exception error.
func (vm *VM) Call(fn reflect.Value, ret signature.Tag, out reflect.Value) (result reflect.Value, err error) {
	if fn.Kind() != reflect.Func || fn.IsNil() {
		return reflect.Value{}, errors.InvalidInput(errors.PhaseDispatch, "call target is not a function")
	}
	ft := fn.Type()
	if ft.IsVariadic() {
		return reflect.Value{}, errors.Unsupported(errors.PhaseDispatch, "variadic native functions")
	}

	args := vm.args
	outPointer := ret.NeedsConversion() && ft.NumOut() == 0 && ft.NumIn() == len(args)+1
	if outPointer {
		if !out.IsValid() {
			return reflect.Value{}, errors.InvalidInput(errors.PhaseDispatch, "missing output storage for "+ret.String())
		}
		args = append([]reflect.Value{out}, args...)
	}
	if err := checkShape(ft, args, ret, outPointer); err != nil {
		return reflect.Value{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.PhaseDispatch, errors.KindException).
				Value(r).Detail("native function panicked: %v", r).Build()
			result = reflect.Value{}
		}
	}()

	results := fn.Call(args)
	switch {
	case outPointer:
		return out.Elem(), nil
	case ret == signature.Void:
		return reflect.Value{}, nil
	}
	result = results[0]
	if out.IsValid() {
		out.Elem().Set(result)
	}
	return result, nil
}

func checkShape(ft reflect.Type, args []reflect.Value, ret signature.Tag, outPointer bool) error {
	if ft.NumIn() != len(args) {
		return errors.New(errors.PhaseDispatch, errors.KindCountMismatch).
			NativeType(ft.String()).
			Detail("function takes %d arguments, %d pushed", ft.NumIn(), len(args)).Build()
	}
	for i, a := range args {
		if !a.IsValid() || !a.Type().AssignableTo(ft.In(i)) {
			got := "invalid"
			if a.IsValid() {
				got = a.Type().String()
			}
			return errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				Path(fmt.Sprintf("arg[%d]", i)).
				NativeType(ft.In(i).String()).
				Detail("pushed %s", got).Build()
		}
	}
	if outPointer {
		return nil
	}
	want := 1
	if ret == signature.Void {
		want = 0
	}
	if ft.NumOut() != want {
		return errors.New(errors.PhaseDispatch, errors.KindCountMismatch).
			NativeType(ft.String()).
			Detail("function returns %d values, %s expects %d", ft.NumOut(), ret, want).Build()
	}
	if want == 1 && ft.Out(0) != ret.NativeType() {
		return errors.TypeMismatch(errors.PhaseDispatch, []string{"return"}, ft.Out(0).String(), ret.String())
	}
	return nil
}
