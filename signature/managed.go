package signature

import "strings"

// ManagedParam is a parameter as declared by a script class
type ManagedParam struct {
	Type string `cbor:"type" toml:"type"`
	Ref  bool   `cbor:"ref,omitempty" toml:"ref,omitempty"`
}

// ManagedMethod is the real signature of a script method, in the managed
// type vocabulary.
type ManagedMethod struct {
	Namespace string
	Class     string
	Name      string
	Return    string
	Params    []ManagedParam
	Static    bool
}

// QualifiedName renders "Namespace.Class::Method".
func (m *ManagedMethod) QualifiedName() string {
	return m.Namespace + "." + m.Class + "::" + m.Name
}

// ParseManaged maps a managed type name to a tag. Managed code has no function
// type; callbacks are declared as intptr/uintptr and widened by the validator.
func ParseManaged(name string) Tag {
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		t := parseManagedScalar(elem)
		if t == Invalid || t == Void {
			return Invalid
		}
		return ArrayOf(t)
	}
	return parseManagedScalar(name)
}

func parseManagedScalar(name string) Tag {
	switch name {
	case "void":
		return Void
	case "bool":
		return Bool
	case "int8", "sbyte":
		return Int8
	case "int16", "short":
		return Int16
	case "int32", "int":
		return Int32
	case "int64", "long":
		return Int64
	case "uint8", "byte":
		return Uint8
	case "uint16", "ushort":
		return Uint16
	case "uint32", "uint":
		return Uint32
	case "uint64", "ulong":
		return Uint64
	case "intptr", "uintptr", "nint", "nuint":
		return Pointer
	case "float", "single":
		return Float
	case "double":
		return Double
	case "string":
		return String
	}
	return Invalid
}
