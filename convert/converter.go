package convert

import (
	"encoding/binary"
	"math"
	"reflect"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

const (
	stringHeader = 4 // u32 length
	arrayHeader  = 8 // u32 length, u32 reserved
	stringAlign  = 4
	arrayAlign   = 8

	// CellSize is the size of a by-reference cell allocated for one argument.
	CellSize  = 8
	cellAlign = 8
)

// Converter moves strings and arrays between Go values and managed objects in
// guest linear memory.
//
// Managed string: u32 byte length followed by UTF-8 bytes.
// Managed array:  u32 element count, u32 reserved, packed little-endian elements;
// string elements are u32 object pointers. Pointer 0 is null.
type Converter struct {
	mem     wasmbridge.Memory
	alloc   wasmbridge.Allocator
	tracker Tracker
	empty   uint32
}

// New creates a converter and allocates the canonical empty string of the
// instance. The empty string is never freed.
func New(mem wasmbridge.Memory, alloc wasmbridge.Allocator) (*Converter, error) {
	if mem == nil {
		return nil, errors.NotInitialized(errors.PhaseMarshal, "guest memory")
	}
	if alloc == nil {
		return nil, errors.NotInitialized(errors.PhaseMarshal, "guest allocator")
	}
	c := &Converter{mem: mem, alloc: alloc}
	ptr, err := c.allocate(nil, signature.String, stringHeader, stringAlign)
	if err != nil {
		return nil, err
	}
	if err := mem.WriteU32(ptr, 0); err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindOutOfBounds, err, "canonical empty string")
	}
	c.empty = ptr
	return c, nil
}

// SetTracker installs a temporary tracker; nil disables tracking.
func (c *Converter) SetTracker(t Tracker) {
	c.tracker = t
}

// Empty returns the canonical empty managed string.
func (c *Converter) Empty() uint32 {
	return c.empty
}

// Memory returns the guest memory the converter writes to.
func (c *Converter) Memory() wasmbridge.Memory {
	return c.mem
}

// ToManaged converts a native string or slice into a new managed object.
// Every allocation is recorded in s and freed by s.Release; with a nil scope
// the objects belong to the guest.
func (c *Converter) ToManaged(s *Scope, t signature.Tag, v reflect.Value) (uint32, error) {
	switch {
	case t == signature.String:
		var str string
		if v.IsValid() {
			str = v.String()
		}
		return c.writeString(s, str)
	case t.IsArray():
		return c.writeArray(s, t, v)
	}
	return 0, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
		NativeType(t.String()).Detail("scalar values are passed as raw words").Build()
}

// ToNative converts a managed object into a native temporary of type *T.
// Null converts to an empty, non-nil container. The temporary is owned by s
// until s.Release.
func (c *Converter) ToNative(s *Scope, t signature.Tag, ptr uint32) (reflect.Value, error) {
	var (
		v   reflect.Value
		err error
	)
	switch {
	case t == signature.String:
		var str string
		str, err = c.ReadString(ptr)
		v = reflect.ValueOf(str)
	case t.IsArray():
		v, err = c.ReadArray(t, ptr)
	default:
		return reflect.Value{}, errors.New(errors.PhaseMarshal, errors.KindUnsupported).
			ManagedType(t.String()).Detail("scalar values are passed as raw words").Build()
	}
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(v.Type())
	out.Elem().Set(v)
	if s != nil {
		s.addNative(t, out)
	}
	return out, nil
}

// ReadString reads a managed string; null reads as "".
func (c *Converter) ReadString(ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	n, err := c.mem.ReadU32(ptr)
	if err != nil {
		return "", errors.OutOfBounds(errors.PhaseMarshal, ptr, stringHeader)
	}
	data, err := c.mem.Read(ptr+stringHeader, n)
	if err != nil {
		return "", errors.OutOfBounds(errors.PhaseMarshal, ptr+stringHeader, n)
	}
	return string(data), nil
}

// ReadArray reads a managed array into a fresh slice; null reads as an empty slice.
func (c *Converter) ReadArray(t signature.Tag, ptr uint32) (reflect.Value, error) {
	elem := t.Elem()
	if elem == signature.Invalid {
		return reflect.Value{}, errors.Unsupported(errors.PhaseMarshal, "not an array type: "+t.String())
	}
	sliceType := t.NativeType()
	if ptr == 0 {
		return reflect.MakeSlice(sliceType, 0, 0), nil
	}
	n, err := c.mem.ReadU32(ptr)
	if err != nil {
		return reflect.Value{}, errors.OutOfBounds(errors.PhaseMarshal, ptr, arrayHeader)
	}
	es := elem.Size()
	if uint64(n)*uint64(es) > math.MaxUint32 {
		return reflect.Value{}, errors.OutOfBounds(errors.PhaseMarshal, ptr, n)
	}
	data, err := c.mem.Read(ptr+arrayHeader, n*es)
	if err != nil {
		return reflect.Value{}, errors.OutOfBounds(errors.PhaseMarshal, ptr+arrayHeader, n*es)
	}
	out := reflect.MakeSlice(sliceType, int(n), int(n))
	for i := uint32(0); i < n; i++ {
		raw := getUint(data[i*es:], es)
		if elem == signature.String {
			str, err := c.ReadString(uint32(raw))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(int(i)).SetString(str)
			continue
		}
		out.Index(int(i)).Set(FromWord(elem, cellToWord(elem, raw)))
	}
	return out, nil
}

// LoadCell reads the value stored in a by-reference cell as a stack word.
// Complex cells hold a u32 object pointer.
func (c *Converter) LoadCell(t signature.Tag, addr uint32) (uint64, error) {
	size := t.Size()
	data, err := c.mem.Read(addr, size)
	if err != nil {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, addr, size)
	}
	return cellToWord(t, getUint(data, size)), nil
}

// StoreCell writes a stack word into a by-reference cell.
func (c *Converter) StoreCell(t signature.Tag, addr uint32, w uint64) error {
	size := t.Size()
	var buf [8]byte
	putUint(buf[:], size, w)
	if err := c.mem.Write(addr, buf[:size]); err != nil {
		return errors.OutOfBounds(errors.PhaseMarshal, addr, size)
	}
	return nil
}

func (c *Converter) allocate(s *Scope, t signature.Tag, size, align uint32) (uint32, error) {
	ptr, err := c.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, align, err)
	}
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, align, nil)
	}
	if s != nil {
		s.addGuest(t, ptr, size, align)
	}
	return ptr, nil
}

func (c *Converter) writeString(s *Scope, str string) (uint32, error) {
	if str == "" {
		return c.empty, nil
	}
	if uint64(len(str)) > math.MaxUint32-stringHeader {
		return 0, errors.InvalidInput(errors.PhaseMarshal, "string too large for guest memory")
	}
	size := stringHeader + uint32(len(str))
	ptr, err := c.allocate(s, signature.String, size, stringAlign)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf, uint32(len(str)))
	copy(buf[stringHeader:], str)
	if err := c.mem.Write(ptr, buf); err != nil {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, ptr, size)
	}
	return ptr, nil
}

func (c *Converter) writeArray(s *Scope, t signature.Tag, v reflect.Value) (uint32, error) {
	elem := t.Elem()
	n := 0
	if v.IsValid() {
		if v.Kind() != reflect.Slice {
			return 0, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
				NativeType(v.Type().String()).ManagedType(t.String()).Build()
		}
		n = v.Len()
	}
	es := elem.Size()
	if uint64(n)*uint64(es) > math.MaxUint32-arrayHeader {
		return 0, errors.InvalidInput(errors.PhaseMarshal, "array too large for guest memory")
	}
	size := arrayHeader + uint32(n)*es
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf, uint32(n))
	for i := 0; i < n; i++ {
		at := buf[arrayHeader+uint32(i)*es:]
		if elem == signature.String {
			sp, err := c.writeString(s, v.Index(i).String())
			if err != nil {
				return 0, err
			}
			putUint(at, es, uint64(sp))
			continue
		}
		putUint(at, es, ToWord(elem, v.Index(i)))
	}
	ptr, err := c.allocate(s, t, size, arrayAlign)
	if err != nil {
		return 0, err
	}
	if err := c.mem.Write(ptr, buf); err != nil {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, ptr, size)
	}
	return ptr, nil
}
