package dispatch

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/wippyai/wasm-bridge/callvm"
	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// Import binds a native function to the script-callable trampoline guests
// import it through. It is the user data of ScriptToNative.
type Import struct {
	Name     string
	Desc     *signature.Descriptor
	Fn       reflect.Value
	Resolver Resolver
}

// NewImport checks fn against desc and returns the binding.
func NewImport(name string, desc *signature.Descriptor, fn reflect.Value, r Resolver) (*Import, error) {
	if r == nil {
		return nil, errors.NotInitialized(errors.PhaseExport, "converter resolver")
	}
	if err := CheckNative(name, desc, fn); err != nil {
		return nil, err
	}
	return &Import{Name: name, Desc: desc, Fn: fn, Resolver: r}, nil
}

// Compile builds the script-callable trampoline for the binding.
func (imp *Import) Compile(c trampoline.Compiler) (*trampoline.Trampoline, error) {
	return c.Compile(imp.Name, imp.Desc, ScriptToNative, imp)
}

// refArg is a by-reference argument waiting to be written back to its cell.
type refArg struct {
	tag  signature.Tag
	cell uint32
	ptr  reflect.Value
}

// ScriptToNative is the dispatch callback of script-callable trampolines.
//
// Managed arguments become native temporaries owned by a call scope; scalar
// references are read from their cells and written back after the call, in
// parameter order. The return value and every reference written back become
// guest-owned objects. A failure panics so that the guest call traps with the
// error.
func ScriptToNative(desc *signature.Descriptor, userData any, frame *trampoline.Frame, ret *trampoline.Slot) {
	imp, ok := userData.(*Import)
	if !ok || imp == nil {
		panic(errors.NotInitialized(errors.PhaseDispatch, "script import binding"))
	}
	w, err := imp.call(desc, frame)
	if err != nil {
		panic(err)
	}
	ret.Word = w
}

func (imp *Import) call(desc *signature.Descriptor, frame *trampoline.Frame) (uint64, error) {
	conv, err := imp.Resolver.Converter(frame.Module)
	if err != nil {
		return 0, err
	}
	scope := conv.NewScope()
	defer scope.Release()
	vm := callvm.Get()
	defer callvm.Put(vm)

	retTag := desc.Return()
	var out reflect.Value
	if desc.HasComplexReturn() {
		if out, err = scope.Reserve(retTag); err != nil {
			return 0, err
		}
	}

	var refs []refArg
	if desc.HasRefs() {
		refs = make([]refArg, 0, desc.NumParams())
	}
	for i, p := range desc.Params() {
		w := frame.Words[i]
		if !p.Ref {
			if p.Type.NeedsConversion() {
				v, err := conv.ToNative(scope, p.Type, uint32(w))
				if err != nil {
					return 0, argError(imp.Name, i, err)
				}
				vm.PushValue(v.Elem())
				continue
			}
			vm.PushValue(convert.FromWord(p.Type, w))
			continue
		}

		cell := uint32(w)
		if cell == 0 {
			return 0, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
				Path(imp.Name, fmt.Sprintf("param[%d]", i)).
				Detail("null reference for %s", p).Build()
		}
		cw, err := conv.LoadCell(p.Type, cell)
		if err != nil {
			return 0, argError(imp.Name, i, err)
		}
		var ptr reflect.Value
		if p.Type.NeedsConversion() {
			if ptr, err = conv.ToNative(scope, p.Type, uint32(cw)); err != nil {
				return 0, argError(imp.Name, i, err)
			}
		} else {
			// the callee writes straight into the frame word
			frame.Words[i] = cw
			ptr = slotPointer(frame.Words, i, p.Type)
		}
		vm.PushRef(ptr)
		refs = append(refs, refArg{tag: p.Type, cell: cell, ptr: ptr})
	}

	result, err := vm.Call(imp.Fn, retTag, out)
	if err != nil {
		return 0, err
	}

	var word uint64
	switch {
	case retTag == signature.Void:
	case retTag.NeedsConversion():
		ptr, err := conv.ToManaged(nil, retTag, result)
		if err != nil {
			return 0, err
		}
		word = uint64(ptr)
	default:
		word = convert.ToWord(retTag, result)
	}

	// no cell changes unless every reference converts
	words := make([]uint64, len(refs))
	for i, r := range refs {
		if words[i], err = managedWord(conv, r.tag, r.ptr.Elem()); err != nil {
			return 0, err
		}
	}
	for i, r := range refs {
		if err := conv.StoreCell(r.tag, r.cell, words[i]); err != nil {
			return 0, err
		}
	}
	return word, nil
}

// managedWord converts a native value into the word a guest sees, allocating
// a guest-owned object for strings and arrays.
func managedWord(conv *convert.Converter, t signature.Tag, v reflect.Value) (uint64, error) {
	if !t.NeedsConversion() {
		return convert.ToWord(t, v), nil
	}
	ptr, err := conv.ToManaged(nil, t, v)
	return uint64(ptr), err
}

var bigEndian = func() bool {
	probe := uint16(1)
	return *(*byte)(unsafe.Pointer(&probe)) == 0
}()

// slotPointer returns a *T aliasing the low-order bytes of words[i].
func slotPointer(words []uint64, i int, t signature.Tag) reflect.Value {
	p := unsafe.Pointer(&words[i])
	if bigEndian {
		p = unsafe.Add(p, 8-uintptr(t.NativeType().Size()))
	}
	return reflect.NewAt(t.NativeType(), p)
}

func argError(name string, i int, err error) error {
	return errors.Wrap(errors.PhaseDispatch, errors.KindInvalidInput, err, fmt.Sprintf("%s: param[%d]", name, i))
}
