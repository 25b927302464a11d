// Package convert converts single values between their native (Go) form and
// their managed form in guest linear memory.
//
// Scalars are reinterpreted bit for bit as wasm stack words (ToWord/FromWord).
// Strings and arrays need heap objects: ToManaged allocates managed objects
// through the guest allocator, ToNative produces native temporaries. Both record
// what they create in a Scope, which releases everything exactly once:
//
//	scope := conv.NewScope()
//	defer scope.Release()
//
//	ptr, err := conv.ToManaged(scope, signature.String, reflect.ValueOf("hi"))
//
// A Tracker installed with SetTracker observes every create and release, which
// lets tests prove the two counts stay balanced.
package convert
