package signature

import (
	"fmt"
	"reflect"
)

// Tag is the closed set of value kinds the bridge can marshal.
//
// The order is part of the contract: String and every array kind form one
// contiguous range [String, ArrayString], so "needs heap conversion" is a single
// range check. NeedsConversion is implemented as a switch and tested against the
// range for every tag.
type Tag uint8

const (
	Invalid Tag = iota
	Void
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Pointer
	Float
	Double
	Function
	String
	ArrayBool
	ArrayInt8
	ArrayInt16
	ArrayInt32
	ArrayInt64
	ArrayUint8
	ArrayUint16
	ArrayUint32
	ArrayUint64
	ArrayPointer
	ArrayFloat
	ArrayDouble
	ArrayString

	tagCount
)

var tagNames = [tagCount]string{
	Invalid:      "invalid",
	Void:         "void",
	Bool:         "bool",
	Int8:         "int8",
	Int16:        "int16",
	Int32:        "int32",
	Int64:        "int64",
	Uint8:        "uint8",
	Uint16:       "uint16",
	Uint32:       "uint32",
	Uint64:       "uint64",
	Pointer:      "ptr64",
	Float:        "float",
	Double:       "double",
	Function:     "function",
	String:       "string",
	ArrayBool:    "bool[]",
	ArrayInt8:    "int8[]",
	ArrayInt16:   "int16[]",
	ArrayInt32:   "int32[]",
	ArrayInt64:   "int64[]",
	ArrayUint8:   "uint8[]",
	ArrayUint16:  "uint16[]",
	ArrayUint32:  "uint32[]",
	ArrayUint64:  "uint64[]",
	ArrayPointer: "ptr64[]",
	ArrayFloat:   "float[]",
	ArrayDouble:  "double[]",
	ArrayString:  "string[]",
}

// Tags returns every valid tag in declaration order, Invalid excluded.
func Tags() []Tag {
	out := make([]Tag, 0, tagCount-1)
	for t := Void; t < tagCount; t++ {
		out = append(out, t)
	}
	return out
}

func (t Tag) String() string {
	if t < tagCount {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// ParseTag parses the native descriptor spelling of a tag ("int32", "string[]").
// Unknown names return Invalid.
func ParseTag(name string) Tag {
	for t := Void; t < tagCount; t++ {
		if tagNames[t] == name {
			return t
		}
	}
	switch name {
	case "ptr", "pointer", "uintptr":
		return Pointer
	case "ptr[]", "pointer[]":
		return ArrayPointer
	case "f32":
		return Float
	case "f64":
		return Double
	}
	return Invalid
}

// MarshalText implements encoding.TextMarshaler
func (t Tag) MarshalText() ([]byte, error) {
	if t >= tagCount {
		return nil, fmt.Errorf("unknown tag %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Tag) UnmarshalText(b []byte) error {
	tag := ParseTag(string(b))
	if tag == Invalid && string(b) != "invalid" {
		return fmt.Errorf("unknown type %q", b)
	}
	*t = tag
	return nil
}

// NeedsConversion reports whether values of this tag live on the heap and go
// through the converter. Equivalent to String <= t && t <= ArrayString.
func (t Tag) NeedsConversion() bool {
	switch t {
	case String,
		ArrayBool, ArrayInt8, ArrayInt16, ArrayInt32, ArrayInt64,
		ArrayUint8, ArrayUint16, ArrayUint32, ArrayUint64,
		ArrayPointer, ArrayFloat, ArrayDouble, ArrayString:
		return true
	}
	return false
}

// IsScalar reports whether values are passed as raw bits.
func (t Tag) IsScalar() bool {
	return t > Void && t < String
}

// IsArray reports whether t is one of the array kinds.
func (t Tag) IsArray() bool {
	return t > String && t < tagCount
}

// Elem returns the element tag of an array kind, Invalid otherwise.
func (t Tag) Elem() Tag {
	switch t {
	case ArrayBool:
		return Bool
	case ArrayInt8:
		return Int8
	case ArrayInt16:
		return Int16
	case ArrayInt32:
		return Int32
	case ArrayInt64:
		return Int64
	case ArrayUint8:
		return Uint8
	case ArrayUint16:
		return Uint16
	case ArrayUint32:
		return Uint32
	case ArrayUint64:
		return Uint64
	case ArrayPointer:
		return Pointer
	case ArrayFloat:
		return Float
	case ArrayDouble:
		return Double
	case ArrayString:
		return String
	}
	return Invalid
}

// ArrayOf returns the array kind holding elements of t, Invalid if none exists.
func ArrayOf(t Tag) Tag {
	switch t {
	case Bool:
		return ArrayBool
	case Int8:
		return ArrayInt8
	case Int16:
		return ArrayInt16
	case Int32:
		return ArrayInt32
	case Int64:
		return ArrayInt64
	case Uint8:
		return ArrayUint8
	case Uint16:
		return ArrayUint16
	case Uint32:
		return ArrayUint32
	case Uint64:
		return ArrayUint64
	case Pointer:
		return ArrayPointer
	case Float:
		return ArrayFloat
	case Double:
		return ArrayDouble
	case String:
		return ArrayString
	}
	return Invalid
}

var (
	typeBool    = reflect.TypeFor[bool]()
	typeInt8    = reflect.TypeFor[int8]()
	typeInt16   = reflect.TypeFor[int16]()
	typeInt32   = reflect.TypeFor[int32]()
	typeInt64   = reflect.TypeFor[int64]()
	typeUint8   = reflect.TypeFor[uint8]()
	typeUint16  = reflect.TypeFor[uint16]()
	typeUint32  = reflect.TypeFor[uint32]()
	typeUint64  = reflect.TypeFor[uint64]()
	typeUintptr = reflect.TypeFor[uintptr]()
	typeFloat32 = reflect.TypeFor[float32]()
	typeFloat64 = reflect.TypeFor[float64]()
	typeString  = reflect.TypeFor[string]()
)

// NativeType returns the Go type used for values of t on the native side.
// Pointer and Function are both uintptr. Void and Invalid return nil.
func (t Tag) NativeType() reflect.Type {
	switch t {
	case Bool:
		return typeBool
	case Int8:
		return typeInt8
	case Int16:
		return typeInt16
	case Int32:
		return typeInt32
	case Int64:
		return typeInt64
	case Uint8:
		return typeUint8
	case Uint16:
		return typeUint16
	case Uint32:
		return typeUint32
	case Uint64:
		return typeUint64
	case Pointer, Function:
		return typeUintptr
	case Float:
		return typeFloat32
	case Double:
		return typeFloat64
	case String:
		return typeString
	}
	if t.IsArray() {
		return reflect.SliceOf(t.Elem().NativeType())
	}
	return nil
}

// Size is the width in bytes of a scalar in guest memory. Strings, arrays and
// references are stored as 4 byte object pointers.
func (t Tag) Size() uint32 {
	switch t {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float:
		return 4
	case Int64, Uint64, Pointer, Function, Double:
		return 8
	case Void, Invalid:
		return 0
	}
	return 4
}
