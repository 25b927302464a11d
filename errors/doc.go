// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the method path, native/managed type names and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
//		Path("Demo.Math::Add", "param[1]").
//		NativeType("int32").
//		ManagedType("string").
//		Build()
//
// Validation reports every problem at once through List, whose Error text joins
// the entries with ", ".
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
