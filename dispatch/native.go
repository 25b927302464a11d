package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
	"github.com/wippyai/wasm-bridge/validate"
)

// Export binds a script method to a native-callable entry point. Instance is
// passed to instance methods; static methods ignore it.
type Export struct {
	Name     string
	Desc     *signature.Descriptor
	Image    *engine.Image
	Method   *engine.Method
	Instance engine.Object
	Logger   *zap.Logger
}

// Bind validates m against desc and returns the binding. Every problem found
// is returned at once as an errors.List.
func Bind(desc *signature.Descriptor, m *engine.Method, inst engine.Object) (*Export, error) {
	if problems := validate.Validate(desc, m.Managed(), inst != 0); len(problems) > 0 {
		return nil, problems
	}
	return &Export{
		Name:     m.QualifiedName(),
		Desc:     desc,
		Image:    m.Class.Image(),
		Method:   m,
		Instance: inst,
	}, nil
}

// Compile builds the native-callable trampoline for the binding.
func (x *Export) Compile(c trampoline.Compiler) (*trampoline.Trampoline, error) {
	return c.Compile(x.Name, x.Desc, NativeToScript, x)
}

func (x *Export) logger() *zap.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return Logger()
}

// Call invokes the script method with native arguments. By-reference
// parameters are pointers; a nil pointer passes the zero value and receives
// nothing back. After a successful call every non-nil reference holds the
// value the script left in its cell, except when the script stored null into
// a string or array reference, which leaves the target unchanged.
//
// On error nothing is written back and every temporary is freed.
func (x *Export) Call(ctx context.Context, args []reflect.Value) (reflect.Value, error) {
	desc := x.Desc
	if len(args) != desc.NumParams() {
		return reflect.Value{}, errors.New(errors.PhaseDispatch, errors.KindCountMismatch).
			Path(x.Name).
			Detail("%s takes %d arguments, %d given", x.Name, desc.NumParams(), len(args)).Build()
	}
	ft := trampoline.FuncType(desc)
	conv := x.Image.Converter()
	scope := conv.NewScope()
	defer scope.Release()

	words := make([]uint64, len(args))
	var refs []refArg
	for i, p := range desc.Params() {
		a := args[i]
		if a.IsValid() && !a.Type().AssignableTo(ft.In(i)) {
			return reflect.Value{}, errors.TypeMismatch(errors.PhaseDispatch,
				[]string{x.Name, fmt.Sprintf("param[%d]", i)}, a.Type().String(), ft.In(i).String())
		}
		if !p.Ref {
			if !a.IsValid() {
				a = reflect.Zero(ft.In(i))
			}
			w, err := scopedWord(scope, conv, p.Type, a)
			if err != nil {
				return reflect.Value{}, err
			}
			words[i] = w
			continue
		}

		cell, err := scope.Alloc(p.Type, convert.CellSize, convert.CellSize)
		if err != nil {
			return reflect.Value{}, err
		}
		if a.IsValid() && !a.IsNil() {
			w, err := scopedWord(scope, conv, p.Type, a.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			if err := conv.StoreCell(p.Type, cell, w); err != nil {
				return reflect.Value{}, err
			}
			refs = append(refs, refArg{tag: p.Type, cell: cell, ptr: a})
		}
		words[i] = uint64(cell)
	}

	res, err := x.Image.Invoke(ctx, x.Method, x.Instance, words...)
	if err != nil {
		return reflect.Value{}, err
	}

	for _, r := range refs {
		w, err := conv.LoadCell(r.tag, r.cell)
		if err != nil {
			return reflect.Value{}, err
		}
		if !r.tag.NeedsConversion() {
			r.ptr.Elem().Set(convert.FromWord(r.tag, w))
			continue
		}
		if w == 0 {
			continue
		}
		v, err := nativeValue(conv, r.tag, uint32(w))
		if err != nil {
			return reflect.Value{}, err
		}
		r.ptr.Elem().Set(v)
	}

	ret := desc.Return()
	switch {
	case ret == signature.Void:
		return reflect.Value{}, nil
	case len(res) != 1:
		return reflect.Value{}, errors.New(errors.PhaseDispatch, errors.KindCountMismatch).
			Path(x.Name).Detail("script returned %d values", len(res)).Build()
	case ret.NeedsConversion():
		return nativeValue(conv, ret, uint32(res[0]))
	}
	return convert.FromWord(ret, res[0]), nil
}

// Invoke is Call for plain Go values; nil stands for a nil reference.
func (x *Export) Invoke(ctx context.Context, args ...any) (any, error) {
	ft := trampoline.FuncType(x.Desc)
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
		if !in[i].IsValid() && i < ft.NumIn() {
			in[i] = reflect.Zero(ft.In(i))
		}
	}
	v, err := x.Call(ctx, in)
	if err != nil || !v.IsValid() {
		return nil, err
	}
	return v.Interface(), nil
}

// NativeToScript is the dispatch callback of native-callable trampolines. A
// script failure is logged as an exception diagnostic and the native caller
// receives the zero value.
func NativeToScript(desc *signature.Descriptor, userData any, frame *trampoline.Frame, ret *trampoline.Slot) {
	x, ok := userData.(*Export)
	if !ok || x == nil {
		Logger().Error("native call without script binding", zap.Stringer("signature", desc))
		return
	}
	v, err := x.Call(frame.Ctx, frame.Values)
	if err != nil {
		d := engine.Diagnose(err, x.Image.Name(), x.Method.QualifiedName())
		x.logger().Error(d.String(), zap.Error(err))
		return
	}
	ret.Value = v
}

// scopedWord converts an argument to its wasm word; managed objects belong to
// the scope.
func scopedWord(s *convert.Scope, conv *convert.Converter, t signature.Tag, v reflect.Value) (uint64, error) {
	if !t.NeedsConversion() {
		return convert.ToWord(t, v), nil
	}
	ptr, err := conv.ToManaged(s, t, v)
	return uint64(ptr), err
}

func nativeValue(conv *convert.Converter, t signature.Tag, ptr uint32) (reflect.Value, error) {
	if t == signature.String {
		s, err := conv.ReadString(ptr)
		return reflect.ValueOf(s), err
	}
	return conv.ReadArray(t, ptr)
}
