// Package trampoline compiles per-method entry points whose shape is decided at
// runtime by a signature descriptor.
//
// NativeCompiler produces native-callable trampolines: a Go function of the
// type FuncType(desc), registered in a Table and handed out as an Address.
// HostCompiler produces script-callable trampolines: a wazero host function
// with the wasm signature WasmSignature(desc). Both forward every call to one
// generic Callback with the captured arguments and a result Slot.
//
// Safe mode (NativeCompiler.Generic) skips per-signature function generation
// and registers a GenericFunc that checks its arguments against the descriptor
// at call time; such trampolines are reached through Table.Call.
//
// Trampolines are immutable and are released together by Store.Close.
package trampoline
