package convert

import (
	"math"
	"reflect"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/signature"
)

// ValueType returns the wasm value type that carries a parameter of tag t.
// References, strings and arrays travel as i32 guest pointers.
func ValueType(t signature.Tag, ref bool) api.ValueType {
	if ref || t.NeedsConversion() {
		return api.ValueTypeI32
	}
	switch t {
	case signature.Int64, signature.Uint64, signature.Pointer, signature.Function:
		return api.ValueTypeI64
	case signature.Float:
		return api.ValueTypeF32
	case signature.Double:
		return api.ValueTypeF64
	}
	return api.ValueTypeI32
}

// ToWord reinterprets a native scalar as a wasm stack word. Values narrower
// than 32 bits are sign or zero extended to i32 first.
func ToWord(t signature.Tag, v reflect.Value) uint64 {
	switch t {
	case signature.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case signature.Int8, signature.Int16, signature.Int32:
		return api.EncodeI32(int32(v.Int()))
	case signature.Uint8, signature.Uint16, signature.Uint32:
		return api.EncodeU32(uint32(v.Uint()))
	case signature.Int64:
		return api.EncodeI64(v.Int())
	case signature.Uint64, signature.Pointer, signature.Function:
		return v.Uint()
	case signature.Float:
		if f, ok := v.Interface().(float32); ok {
			return api.EncodeF32(f)
		}
		return api.EncodeF32(float32(v.Float()))
	case signature.Double:
		return math.Float64bits(v.Float())
	}
	return 0
}

// FromWord is the inverse of ToWord; the result has the tag's native type.
func FromWord(t signature.Tag, w uint64) reflect.Value {
	switch t {
	case signature.Bool:
		return reflect.ValueOf(uint32(w) != 0)
	case signature.Int8:
		return reflect.ValueOf(int8(api.DecodeI32(w)))
	case signature.Int16:
		return reflect.ValueOf(int16(api.DecodeI32(w)))
	case signature.Int32:
		return reflect.ValueOf(api.DecodeI32(w))
	case signature.Uint8:
		return reflect.ValueOf(uint8(w))
	case signature.Uint16:
		return reflect.ValueOf(uint16(w))
	case signature.Uint32:
		return reflect.ValueOf(api.DecodeU32(w))
	case signature.Int64:
		return reflect.ValueOf(int64(w))
	case signature.Uint64:
		return reflect.ValueOf(w)
	case signature.Pointer, signature.Function:
		return reflect.ValueOf(uintptr(w))
	case signature.Float:
		return reflect.ValueOf(api.DecodeF32(w))
	case signature.Double:
		return reflect.ValueOf(api.DecodeF64(w))
	}
	return reflect.Value{}
}

// cellToWord widens the raw little-endian bits of a guest cell to a stack word.
func cellToWord(t signature.Tag, raw uint64) uint64 {
	switch t {
	case signature.Bool:
		if uint8(raw) != 0 {
			return 1
		}
		return 0
	case signature.Int8:
		return api.EncodeI32(int32(int8(raw)))
	case signature.Int16:
		return api.EncodeI32(int32(int16(raw)))
	case signature.Uint8:
		return uint64(uint8(raw))
	case signature.Uint16:
		return uint64(uint16(raw))
	case signature.Int32, signature.Uint32, signature.Float:
		return uint64(uint32(raw))
	}
	return raw
}

func putUint(b []byte, size uint32, v uint64) {
	for i := uint32(0); i < size; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint(b []byte, size uint32) uint64 {
	var v uint64
	for i := uint32(0); i < size; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
