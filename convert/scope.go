package convert

import (
	"reflect"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// temporary is one call-scoped buffer: either a guest allocation or a native
// container created by ToNative/Reserve.
type temporary struct {
	native reflect.Value
	ptr    uint32
	size   uint32
	align  uint32
	tag    signature.Tag
}

// Scope owns the temporaries of one call. Release frees them all, once, on
// every exit path; callers defer it right after NewScope.
type Scope struct {
	conv  *Converter
	temps []temporary
}

var scopePool = sync.Pool{
	New: func() any {
		return &Scope{temps: make([]temporary, 0, 8)}
	},
}

const maxPooledScopeCapacity = 128

// NewScope returns an empty scope bound to c.
func (c *Converter) NewScope() *Scope {
	s := scopePool.Get().(*Scope)
	s.conv = c
	return s
}

// Reserve creates an empty native temporary of type *T for tag t.
func (s *Scope) Reserve(t signature.Tag) (reflect.Value, error) {
	typ := t.NativeType()
	if typ == nil {
		return reflect.Value{}, errors.Unsupported(errors.PhaseMarshal, "cannot reserve "+t.String())
	}
	v := reflect.New(typ)
	if t.IsArray() {
		v.Elem().Set(reflect.MakeSlice(typ, 0, 0))
	}
	s.addNative(t, v)
	return v, nil
}

// Alloc reserves guest memory owned by the scope, e.g. a by-reference cell.
func (s *Scope) Alloc(t signature.Tag, size, align uint32) (uint32, error) {
	ptr, err := s.conv.allocate(s, t, size, align)
	if err != nil {
		return 0, err
	}
	// cells start zeroed so a callee that never writes leaves null
	if err := s.conv.mem.Write(ptr, make([]byte, size)); err != nil {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, ptr, size)
	}
	return ptr, nil
}

// Len returns the number of live temporaries.
func (s *Scope) Len() int {
	return len(s.temps)
}

func (s *Scope) addGuest(t signature.Tag, ptr, size, align uint32) {
	s.temps = append(s.temps, temporary{tag: t, ptr: ptr, size: size, align: align})
	s.created(t)
}

func (s *Scope) addNative(t signature.Tag, v reflect.Value) {
	s.temps = append(s.temps, temporary{tag: t, native: v})
	s.created(t)
}

func (s *Scope) created(t signature.Tag) {
	if tr := s.conv.tracker; tr != nil {
		tr.Created(t)
	}
}

// Release frees every temporary in reverse creation order and returns the
// scope to the pool. The scope must not be used afterwards.
func (s *Scope) Release() {
	if s.conv == nil {
		return
	}
	tr := s.conv.tracker
	for i := len(s.temps) - 1; i >= 0; i-- {
		tmp := s.temps[i]
		if tmp.ptr != 0 {
			s.conv.alloc.Free(tmp.ptr, tmp.size, tmp.align)
		} else if tmp.native.IsValid() {
			tmp.native.Elem().SetZero()
		}
		if tr != nil {
			tr.Released(tmp.tag)
		}
	}
	clear(s.temps)
	s.temps = s.temps[:0]
	s.conv = nil
	if cap(s.temps) > maxPooledScopeCapacity {
		return
	}
	scopePool.Put(s)
}
