// Package wasm encodes WebAssembly core modules and edits their custom sections.
//
// Builder assembles a module from function types, imports, functions, one
// memory, globals, exports, data segments and custom sections. Code builds
// function bodies instruction by instruction:
//
//	b := wasm.NewBuilder()
//	sig := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
//	add := b.Func(sig, nil, wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).Bytes())
//	b.ExportFunc("add", add)
//	module := b.Bytes()
//
// Sections, CustomSection and SetCustomSection work on existing binaries
// without decoding anything but the section headers.
package wasm
