package signature

import (
	"strings"

	"github.com/wippyai/wasm-bridge/errors"
)

// Method is a named callable declared by a plugin. FuncName is the fully
// qualified "Plugin.Namespace.Class.Method" name.
type Method struct {
	Desc     *Descriptor
	Name     string
	FuncName string
}

// QualifiedName identifies a method inside a plugin
type QualifiedName struct {
	Plugin    string
	Namespace string
	Class     string
	Method    string
}

func (q QualifiedName) String() string {
	return q.Plugin + "." + q.Namespace + "." + q.Class + "." + q.Method
}

// ClassMethod renders "Namespace.Class::Method".
func (q QualifiedName) ClassMethod() string {
	return q.Namespace + "." + q.Class + "::" + q.Method
}

// SplitFuncName splits a fully qualified name into its four segments.
func SplitFuncName(funcName string) (QualifiedName, error) {
	parts := strings.Split(funcName, ".")
	if len(parts) != 4 {
		return QualifiedName{}, errors.InvalidName(errors.PhaseLoad, funcName)
	}
	for _, p := range parts {
		if p == "" {
			return QualifiedName{}, errors.InvalidName(errors.PhaseLoad, funcName)
		}
	}
	return QualifiedName{Plugin: parts[0], Namespace: parts[1], Class: parts[2], Method: parts[3]}, nil
}

// ParamDecl is the manifest form of a parameter
type ParamDecl struct {
	Prototype *SignatureDecl `toml:"prototype,omitempty" json:"prototype,omitempty" cbor:"prototype,omitempty"`
	Type      string         `toml:"type" json:"type" cbor:"type"`
	Ref       bool           `toml:"ref,omitempty" json:"ref,omitempty" cbor:"ref,omitempty"`
}

// SignatureDecl is the manifest form of a descriptor
type SignatureDecl struct {
	Return   string      `toml:"return" json:"return" cbor:"return"`
	CallConv string      `toml:"callconv,omitempty" json:"callconv,omitempty" cbor:"callconv,omitempty"`
	Params   []ParamDecl `toml:"params" json:"params" cbor:"params"`
}

// MethodDecl is the manifest form of a method
type MethodDecl struct {
	Name     string      `toml:"name" json:"name"`
	FuncName string      `toml:"func_name" json:"funcName"`
	Return   string      `toml:"return" json:"return"`
	CallConv string      `toml:"callconv,omitempty" json:"callconv,omitempty"`
	Params   []ParamDecl `toml:"params" json:"params"`
}

// Build converts the declaration into an immutable descriptor.
func (s SignatureDecl) Build() (*Descriptor, error) {
	ret := Void
	if s.Return != "" {
		ret = ParseTag(s.Return)
		if ret == Invalid {
			return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
				NativeType(s.Return).Detail("unknown return type").Build()
		}
	}
	cc, err := ParseCallConv(s.CallConv)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindUnsupported, err, "calling convention")
	}
	params := make([]Param, 0, len(s.Params))
	for _, pd := range s.Params {
		t := ParseTag(pd.Type)
		if t == Invalid {
			return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
				NativeType(pd.Type).Detail("unknown parameter type").Build()
		}
		p := Param{Type: t, Ref: pd.Ref}
		if pd.Prototype != nil {
			proto, err := pd.Prototype.Build()
			if err != nil {
				return nil, err
			}
			p.Prototype = proto
		}
		params = append(params, p)
	}
	return New(ret, cc, params...)
}

// Build converts the declaration into a Method.
func (m MethodDecl) Build() (Method, error) {
	d, err := SignatureDecl{Return: m.Return, CallConv: m.CallConv, Params: m.Params}.Build()
	if err != nil {
		return Method{}, err
	}
	return Method{Name: m.Name, FuncName: m.FuncName, Desc: d}, nil
}

// Decl converts a descriptor back into its manifest form.
func Decl(d *Descriptor) SignatureDecl {
	s := SignatureDecl{Return: d.ret.String(), Params: make([]ParamDecl, len(d.params))}
	if d.callConv != CallConvDefault {
		s.CallConv = d.callConv.String()
	}
	for i, p := range d.params {
		pd := ParamDecl{Type: p.Type.String(), Ref: p.Ref}
		if p.Prototype != nil {
			proto := Decl(p.Prototype)
			pd.Prototype = &proto
		}
		s.Params[i] = pd
	}
	return s
}
