package signature

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"
)

// WIT returns the WIT type closest to t. Pointer and Function have no WIT
// counterpart and map to u64, the width they travel with. Void and Invalid
// return nil.
func (t Tag) WIT() wit.Type {
	switch t {
	case Bool:
		return wit.Bool{}
	case Int8:
		return wit.S8{}
	case Int16:
		return wit.S16{}
	case Int32:
		return wit.S32{}
	case Int64:
		return wit.S64{}
	case Uint8:
		return wit.U8{}
	case Uint16:
		return wit.U16{}
	case Uint32:
		return wit.U32{}
	case Uint64, Pointer, Function:
		return wit.U64{}
	case Float:
		return wit.F32{}
	case Double:
		return wit.F64{}
	case String:
		return wit.String{}
	}
	if elem := t.Elem(); elem != Invalid {
		return &wit.TypeDef{Kind: &wit.List{Type: elem.WIT()}}
	}
	return nil
}

// WITName renders a WIT type in source form ("s32", "list<string>").
func WITName(t wit.Type) string {
	switch t := t.(type) {
	case nil:
		return "_"
	case wit.Bool:
		return "bool"
	case wit.S8:
		return "s8"
	case wit.S16:
		return "s16"
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.U8:
		return "u8"
	case wit.U16:
		return "u16"
	case wit.U32:
		return "u32"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if t.Name != nil {
			return *t.Name
		}
		switch k := t.Kind.(type) {
		case *wit.List:
			return "list<" + WITName(k.Type) + ">"
		case *wit.Option:
			return "option<" + WITName(k.Type) + ">"
		}
	}
	return fmt.Sprintf("%T", t)
}

// WIT renders the descriptor as a WIT function type. By-reference parameters
// carry a "ref" marker since WIT has no such notion.
func (d *Descriptor) WIT() string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range d.params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "p%d: ", i)
		if p.Ref {
			b.WriteString("ref ")
		}
		b.WriteString(WITName(p.Type.WIT()))
	}
	b.WriteByte(')')
	if d.ret != Void {
		b.WriteString(" -> ")
		b.WriteString(WITName(d.ret.WIT()))
	}
	return b.String()
}
