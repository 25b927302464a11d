package validate

import (
	"fmt"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// Validate checks a script method against the native descriptor it is about to
// be bound to. bound reports whether an instance is available for instance
// methods. Every problem is collected; an empty list means success.
//
// Checks run in order: static/instance, parameter count, parameter types over
// the common prefix, return type. A managed pointer-sized integer is accepted
// where the descriptor expects Function, for parameters and return alike.
func Validate(expected *signature.Descriptor, m *signature.ManagedMethod, bound bool) errors.List {
	var problems errors.List
	name := m.QualifiedName()

	if !m.Static && !bound {
		problems.Add(errors.New(errors.PhaseValidate, errors.KindNotStatic).
			Path(name).
			Detail("Method '%s' is not static", name).Build())
	}

	if len(m.Params) != expected.NumParams() {
		problems.Add(errors.New(errors.PhaseValidate, errors.KindCountMismatch).
			Path(name).
			Value(len(m.Params)).
			Detail("Method '%s' has %d parameters when it should have %d", name, len(m.Params), expected.NumParams()).Build())
	}

	n := min(len(m.Params), expected.NumParams())
	for i := 0; i < n; i++ {
		problems.Add(checkParam(name, i, expected.Param(i), m.Params[i]))
	}

	problems.Add(checkReturn(name, expected.Return(), m.Return))
	return problems
}

func checkParam(name string, i int, want signature.Param, got signature.ManagedParam) *errors.Error {
	at := fmt.Sprintf("param[%d]", i)
	tag := signature.ParseManaged(got.Type)
	if tag == signature.Invalid || tag == signature.Void {
		return errors.New(errors.PhaseValidate, errors.KindUnsupported).
			Path(name, at).
			ManagedType(got.Type).
			Detail("Parameter at index '%d' of method '%s' not supported '%s'", i, name, got.Type).Build()
	}
	tag = widen(want.Type, tag)
	if tag != want.Type {
		return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
			Path(name, at).
			NativeType(want.Type.String()).
			ManagedType(got.Type).
			Detail("Method '%s' has invalid param type '%s' at index %d when it should have '%s'", name, tag, i, want.Type).Build()
	}
	if got.Ref != want.Ref {
		return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
			Path(name, at).
			NativeType(want.String()).
			ManagedType(refName(got)).
			Detail("Method '%s' has param '%s' at index %d when it should be '%s'", name, refName(got), i, want).Build()
	}
	return nil
}

func checkReturn(name string, want signature.Tag, got string) *errors.Error {
	tag := signature.ParseManaged(got)
	if tag == signature.Invalid {
		return errors.New(errors.PhaseValidate, errors.KindUnsupported).
			Path(name, "return").
			ManagedType(got).
			Detail("Return of method '%s' not supported '%s'", name, got).Build()
	}
	tag = widen(want, tag)
	if tag != want {
		return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
			Path(name, "return").
			NativeType(want.String()).
			ManagedType(got).
			Detail("Method '%s' has invalid return type '%s' when it should have '%s'", name, tag, want).Build()
	}
	return nil
}

// widen applies the single allowed widening: Pointer stands in for Function.
func widen(want, got signature.Tag) signature.Tag {
	if want == signature.Function && got == signature.Pointer {
		return signature.Function
	}
	return got
}

func refName(p signature.ManagedParam) string {
	if p.Ref {
		return "ref " + p.Type
	}
	return p.Type
}
