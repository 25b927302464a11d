package trampoline

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// HostCompiler builds script-callable trampolines: wazero host functions whose
// wasm signature is derived from the descriptor.
type HostCompiler struct{}

// WasmSignature returns the wasm parameter and result types for desc.
func WasmSignature(desc *signature.Descriptor) (params, results []api.ValueType) {
	params = make([]api.ValueType, desc.NumParams())
	for i := range params {
		p := desc.Param(i)
		params[i] = convert.ValueType(p.Type, p.Ref)
	}
	if r := desc.Return(); r != signature.Void {
		results = []api.ValueType{convert.ValueType(r, false)}
	}
	return params, results
}

// Compile implements Compiler.
func (HostCompiler) Compile(name string, desc *signature.Descriptor, cb Callback, userData any) (*Trampoline, error) {
	if err := checkDescriptor(name, desc); err != nil {
		return nil, err
	}
	if cb == nil {
		return nil, errors.Codegen(name, "nil dispatch callback")
	}
	params, results := WasmSignature(desc)
	n := len(params)
	hasRet := len(results) == 1

	fn := api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		frame := Frame{Ctx: ctx, Module: mod, Words: stack[:n]}
		var slot Slot
		cb(desc, userData, &frame, &slot)
		if hasRet {
			stack[0] = slot.Word
		}
	})
	return &Trampoline{Desc: desc, Name: name, Host: fn, Params: params, Results: results}, nil
}
