// Package engine hosts script classes in WebAssembly guests running on wazero.
//
// # Architecture
//
//	Engine - shares one compilation cache and resolves guest modules to images
//	Domain - an isolated wazero runtime for one plugin
//	Image  - the loaded guest: memory, allocator, converter and classes
//	Class  - a script class with its constructor and methods
//	Method - a script method bound to a guest export
//
// # Load Flow
//
//  1. Domain.Load compiles the guest and decodes its bridge.metadata section
//  2. The bridge host module is built from the built-ins and the native
//     methods the guest imports; unknown imports fail with MissingImportsError
//  3. The guest is instantiated under a unique module name and its
//     _initialize export runs
//  4. The guest allocator is discovered and the canonical empty string
//     allocated
//  5. Every class method is checked against the export implementing it
//
// # Guest ABI
//
// Strings and arrays are i32 pointers to managed objects in linear memory.
// Instance methods take the object handle as a leading i64, constructors
// return it. By-reference parameters are i32 pointers to 8 byte cells.
//
// Built-in imports of module "bridge":
//
//	throw(msg i32)                raise a managed exception
//	log(level i32, msg i32)       forward a log line (0 debug .. 3 error)
//	find_plugin(name i32) -> i64  plugin id by name, -1 when unknown
//
// # Exceptions
//
// A guest call fails when the guest traps or calls throw. Diagnose turns the
// returned error into a Diagnostic with the message, source, wasm stack trace
// and target method.
//
// # Thread Safety
//
// Engine is safe for concurrent use. An Image serves one call stack at a
// time; nested calls through imports are allowed.
package engine
