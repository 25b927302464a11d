// Package dispatch moves calls across the bridge in both directions.
//
// # Script to native
//
// A guest imports a native method through a script-callable trampoline whose
// user data is an *Import. ScriptToNative resolves the converter of the
// calling image, converts managed arguments into native temporaries held by a
// call scope and issues the call through a callvm.VM. String and array returns
// use a reserved output slot, so natives may either return them or take an
// output pointer first:
//
//	func(s string) string
//	func(out *string, s string)
//
// By-reference scalars are passed as pointers into the trampoline frame and
// written back to the guest cell after the call. By-reference strings and
// arrays are written back as fresh guest-owned objects, in parameter order.
// Any failure traps the guest with the error.
//
// # Native to script
//
// An *Export binds a script method, and optionally the object it runs on, to
// a native-callable trampoline. Arguments are converted into guest objects
// owned by a call scope, the method runs, references are copied back and the
// return value is converted into a native value. A managed exception is logged
// as a diagnostic line and the native caller receives the zero value:
//
//	[bridge] [Exception]  | Message: boom | Source: demo | TargetSite: Demo.Math::Throw
//
// # Ownership
//
// Objects the bridge allocates for one call are freed when it returns.
// Objects a guest produces, and objects the bridge hands to a guest as a
// return value or through a reference, belong to the guest.
package dispatch
