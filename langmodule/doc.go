// Package langmodule hosts wasm plugins for a plugin manager.
//
// The host drives a Module through the plugin lifecycle:
//
//	m := langmodule.New(logger)
//	if err := m.Initialize(ctx, baseDir); err != nil { ... }
//	defer m.Shutdown(ctx)
//
//	m.OnMethodExport(hostPlugin)          // natives scripts may import
//	addrs, err := m.OnPluginLoad(ctx, p)  // script methods natives may call
//	m.OnPluginStart(ctx, p)
//	...
//	m.OnPluginEnd(ctx, p)
//
// Every plugin gets its own domain. Its entry class is the one class that
// extends the configured base class; it is constructed at load with the
// plugin's id, name, friendly name, description, version, author, url and
// dependency names, and receives OnStart and OnEnd.
//
// Exported script methods are named "Plugin.Namespace.Class.Method". Load
// validates each against its declared signature and reports every problem of
// the plugin in one error. The returned addresses resolve through Table:
//
//	add, err := trampoline.As[func(int32, int32) int32](m.Table(), addrs[0].Addr)
//
// A script method whose metadata names a subscribe destination is compiled
// against the prototype of that native method's function parameter at start
// and the new address is passed to it.
package langmodule
