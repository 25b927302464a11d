// Package wasmbridge is a bidirectional call bridge between Go (native) code and
// script classes compiled to WebAssembly and hosted in-process by wazero.
//
// Native code calls script methods through typed Go functions generated at
// runtime from a signature descriptor; script code calls native functions through
// host imports whose wasm ABI is derived from the same descriptor. Strings and
// arrays cross the boundary through a type-tag driven converter with call-scoped
// temporaries.
//
// # Architecture Overview
//
//	wasmbridge/          Root package with Memory and Allocator interfaces
//	├── signature/       Type tags, parameters, signature descriptors
//	├── convert/         Value converter and call-scoped temporaries
//	├── callvm/          Dynamic native call builder
//	├── trampoline/      Native and script-callable trampoline compilers
//	├── validate/        Signature validator
//	├── dispatch/        Script->native and native->script dispatchers
//	├── engine/          wazero embedding: domains, images, classes, exceptions
//	├── langmodule/      Plugin lifecycle: load, export, start, end
//	├── config/          TOML configuration
//	├── wasm/            Minimal wasm binary builder and custom sections
//	├── errors/          Structured error types
//	├── testbed/         Guest fixtures and end-to-end tests
//	├── cmd/bridge/      Inspect, pack and run plugins from the command line
//	└── examples/basic/  Minimal embedding
//
// # Quick Start
//
//	lm := langmodule.New(logger)
//	if err := lm.Initialize(ctx, baseDir); err != nil {
//	    log.Fatal(err)
//	}
//	defer lm.Shutdown(ctx)
//
//	methods, err := lm.OnPluginLoad(ctx, plugin)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	add, _ := trampoline.As[func(int32, int32) int32](lm.Table(), methods[0].Addr)
//	fmt.Println(add(2, 3))
//
// # Thread Safety
//
// Calls are synchronous and run on the calling goroutine. A plugin domain must
// not be entered by two goroutines at once; lifecycle transitions are expected
// to be serialized by the host.
package wasmbridge
