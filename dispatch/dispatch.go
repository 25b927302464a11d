package dispatch

import (
	"reflect"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// Logger returns the logger used when a handle carries none.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// SetLogger replaces the package logger; nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}

// Resolver maps the guest module making a call to the converter of its
// image. One script-callable trampoline serves every domain through it.
type Resolver interface {
	Converter(mod api.Module) (*convert.Converter, error)
}

// CheckNative verifies that fn can serve desc: either exactly
// trampoline.FuncType(desc), or for string/array returns the output-pointer
// form func(out *T, params...).
func CheckNative(name string, desc *signature.Descriptor, fn reflect.Value) error {
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return errors.New(errors.PhaseExport, errors.KindInvalidInput).
			Path(name).Detail("native method is not a function").Build()
	}
	ft := fn.Type()
	want := trampoline.FuncType(desc)
	if ft == want {
		return nil
	}
	if desc.HasComplexReturn() && outPointerForm(ft, want, desc.Return()) {
		return nil
	}
	return errors.New(errors.PhaseExport, errors.KindTypeMismatch).
		Path(name).
		NativeType(ft.String()).
		ManagedType(desc.String()).
		Detail("native method %s has type %s, want %s", name, ft, want).Build()
}

func outPointerForm(ft, want reflect.Type, ret signature.Tag) bool {
	if ft.IsVariadic() || ft.NumOut() != 0 || ft.NumIn() != want.NumIn()+1 {
		return false
	}
	if ft.In(0) != reflect.PointerTo(ret.NativeType()) {
		return false
	}
	for i := 0; i < want.NumIn(); i++ {
		if ft.In(i+1) != want.In(i) {
			return false
		}
	}
	return true
}
