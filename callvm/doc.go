// Package callvm issues native calls whose signature is decided at runtime.
//
// A VM collects typed pushes and then calls a Go function value with them,
// verifying arity and types against the function's real type first:
//
//	vm := callvm.Get()
//	defer callvm.Put(vm)
//	vm.PushInt32(2)
//	vm.PushInt32(3)
//	res, err := vm.Call(reflect.ValueOf(add), signature.Int32, reflect.Value{})
package callvm
