package signature

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-bridge/errors"
)

// CallConv identifies the native calling convention of a descriptor
type CallConv uint8

const (
	CallConvDefault CallConv = iota
	CallConvCdecl
	CallConvStdcall
	CallConvFastcall
	CallConvThiscall
	CallConvVectorcall
)

var callConvNames = []string{"", "cdecl", "stdcall", "fastcall", "thiscall", "vectorcall"}

func (c CallConv) String() string {
	if int(c) < len(callConvNames) {
		if c == CallConvDefault {
			return "default"
		}
		return callConvNames[c]
	}
	return fmt.Sprintf("callconv(%d)", uint8(c))
}

// ParseCallConv parses a calling convention name; "" and "default" are the default.
func ParseCallConv(name string) (CallConv, error) {
	if name == "" || name == "default" {
		return CallConvDefault, nil
	}
	for i, n := range callConvNames {
		if n == name {
			return CallConv(i), nil
		}
	}
	return 0, fmt.Errorf("unknown calling convention %q", name)
}

// Param is one parameter of a descriptor. Prototype is only meaningful for
// Function parameters that accept callbacks of a known shape.
type Param struct {
	Prototype *Descriptor
	Type      Tag
	Ref       bool
}

func (p Param) String() string {
	s := p.Type.String()
	if p.Ref {
		s = "ref " + s
	}
	if p.Prototype != nil {
		s += p.Prototype.String()
	}
	return s
}

// Descriptor describes one callable. It is immutable once built by New.
type Descriptor struct {
	params   []Param
	ret      Tag
	callConv CallConv
}

// New builds a descriptor. Invalid and Void are rejected as parameter types and
// Invalid as the return type.
func New(ret Tag, callConv CallConv, params ...Param) (*Descriptor, error) {
	if ret == Invalid || ret >= tagCount {
		return nil, errors.New(errors.PhaseValidate, errors.KindUnsupported).
			Detail("return type %s is not allowed", ret).Build()
	}
	for i, p := range params {
		if p.Type == Invalid || p.Type == Void || p.Type >= tagCount {
			return nil, errors.New(errors.PhaseValidate, errors.KindUnsupported).
				Path(fmt.Sprintf("param[%d]", i)).
				Detail("parameter type %s is not allowed", p.Type).Build()
		}
	}
	cp := make([]Param, len(params))
	copy(cp, params)
	return &Descriptor{params: cp, ret: ret, callConv: callConv}, nil
}

// MustNew is New for statically known descriptors; it panics on error.
func MustNew(ret Tag, params ...Param) *Descriptor {
	d, err := New(ret, CallConvDefault, params...)
	if err != nil {
		panic(err)
	}
	return d
}

// P is shorthand for a by-value parameter.
func P(t Tag) Param { return Param{Type: t} }

// R is shorthand for a by-reference parameter.
func R(t Tag) Param { return Param{Type: t, Ref: true} }

// NumParams returns the parameter count.
func (d *Descriptor) NumParams() int { return len(d.params) }

// Param returns the i-th parameter.
func (d *Descriptor) Param(i int) Param { return d.params[i] }

// Params returns a copy of the parameter list.
func (d *Descriptor) Params() []Param {
	out := make([]Param, len(d.params))
	copy(out, d.params)
	return out
}

// Return returns the return tag.
func (d *Descriptor) Return() Tag { return d.ret }

// CallConv returns the calling convention.
func (d *Descriptor) CallConv() CallConv { return d.callConv }

// HasComplexReturn reports whether the return needs conversion; such natives
// receive an output pointer as implicit first argument.
func (d *Descriptor) HasComplexReturn() bool { return d.ret.NeedsConversion() }

// HasRefs reports whether any parameter is by reference.
func (d *Descriptor) HasRefs() bool {
	for _, p := range d.params {
		if p.Ref {
			return true
		}
	}
	return false
}

// String renders the descriptor as "(int32, ref string) -> bool".
func (d *Descriptor) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range d.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> ")
	b.WriteString(d.ret.String())
	if d.callConv != CallConvDefault {
		b.WriteString(" [")
		b.WriteString(d.callConv.String())
		b.WriteByte(']')
	}
	return b.String()
}

// Equal reports structural equality, prototypes included.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.ret != o.ret || d.callConv != o.callConv || len(d.params) != len(o.params) {
		return false
	}
	for i := range d.params {
		a, b := d.params[i], o.params[i]
		if a.Type != b.Type || a.Ref != b.Ref || !a.Prototype.Equal(b.Prototype) {
			return false
		}
	}
	return true
}
