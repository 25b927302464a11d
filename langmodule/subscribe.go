package langmodule

import (
	"reflect"

	"github.com/wippyai/wasm-bridge/callvm"
	"github.com/wippyai/wasm-bridge/dispatch"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// Subscribe compiles a native-callable entry point for method shaped after the
// prototype of the destination native method and passes its address to the
// destination. The destination must take exactly one prototyped function;
// whatever it returns is discarded.
func (m *Module) Subscribe(destination string, method *engine.Method, inst engine.Object) (trampoline.Address, error) {
	if err := m.initialized(errors.PhaseSubscribe); err != nil {
		return 0, err
	}
	m.mu.RLock()
	dst, ok := m.imports[destination]
	m.mu.RUnlock()
	if !ok {
		return 0, errors.New(errors.PhaseSubscribe, errors.KindNotFound).
			Path(method.QualifiedName()).
			Detail("failed to find destination method '%s' to subscribe", destination).Build()
	}

	desc := dst.method.Desc
	if desc.NumParams() != 1 {
		return 0, errors.New(errors.PhaseSubscribe, errors.KindCountMismatch).
			Path(method.QualifiedName()).
			Detail("destination method '%s' should have only 1 argument to subscribe", destination).Build()
	}
	param := desc.Param(0)
	if param.Type != signature.Function {
		return 0, errors.New(errors.PhaseSubscribe, errors.KindTypeMismatch).
			Path(method.QualifiedName()).
			NativeType(param.Type.String()).
			Detail("parameter at index '1' of destination method '%s' should be 'function' type", destination).Build()
	}
	if param.Prototype == nil {
		return 0, errors.New(errors.PhaseSubscribe, errors.KindMissingPrototype).
			Path(method.QualifiedName()).
			Detail("could not subscribe to destination method '%s' which does not have prototype information", destination).Build()
	}

	x, err := dispatch.Bind(param.Prototype, method, inst)
	if err != nil {
		return 0, err
	}
	x.Logger = m.logger
	tr, err := x.Compile(m.compiler())
	if err != nil {
		return 0, err
	}

	var out reflect.Value
	if desc.HasComplexReturn() {
		out = reflect.New(desc.Return().NativeType())
	}
	vm := callvm.Get()
	defer callvm.Put(vm)
	vm.PushValue(reflect.ValueOf(uintptr(tr.Addr)))
	if _, err := vm.Call(dst.fn, desc.Return(), out); err != nil {
		m.table.Release(tr.Addr)
		return 0, errors.Wrap(errors.PhaseSubscribe, errors.KindException, err, "destination method '"+destination+"' failed")
	}
	m.store.Add(tr)
	return tr.Addr, nil
}

// subscribeAll walks every method of the plugin's image that names a
// destination and subscribes it. The plugin object is bound to instance
// methods of the plugin class.
func (m *Module) subscribeAll(s *ScriptInstance) error {
	var problems errors.List
	for _, class := range s.Image().Classes() {
		for _, method := range class.Methods() {
			dst := method.Meta.Subscribe
			if dst == "" {
				continue
			}
			var inst engine.Object
			if class == s.Class() && !method.Meta.Static {
				inst = s.Object()
			}
			if _, err := m.Subscribe(dst, method, inst); err != nil {
				addProblem(&problems, errors.PhaseSubscribe, err)
			}
		}
	}
	return problems.Err()
}
