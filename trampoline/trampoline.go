package trampoline

import (
	"context"
	"reflect"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// Frame is the generic view of the arguments a trampoline captured.
type Frame struct {
	Ctx context.Context
	// Module is the calling guest for script-callable trampolines.
	Module api.Module
	// Values holds the Go arguments of a native-callable trampoline.
	Values []reflect.Value
	// Words holds the raw wasm parameters of a script-callable trampoline.
	Words []uint64
}

// Slot receives the result written by a callback. Native-callable trampolines
// read Value, script-callable ones read Word.
type Slot struct {
	Value reflect.Value
	Word  uint64
}

// Callback is the generic dispatch routine every trampoline forwards to.
type Callback func(desc *signature.Descriptor, userData any, args *Frame, ret *Slot)

// Trampoline is a compiled entry point for one method. It is immutable.
type Trampoline struct {
	Desc *signature.Descriptor
	Name string

	// Addr and Func are set for native-callable trampolines.
	Addr Address
	Func reflect.Value

	// Host, Params and Results are set for script-callable trampolines.
	Host    api.GoModuleFunction
	Params  []api.ValueType
	Results []api.ValueType
}

// Compiler produces trampolines for descriptors.
type Compiler interface {
	Compile(name string, desc *signature.Descriptor, cb Callback, userData any) (*Trampoline, error)
}

func checkDescriptor(name string, desc *signature.Descriptor) error {
	if desc == nil {
		return errors.Codegen(name, "nil descriptor")
	}
	switch desc.CallConv() {
	case signature.CallConvDefault, signature.CallConvCdecl:
	default:
		return errors.Codegen(name, "unsupported calling convention "+desc.CallConv().String())
	}
	for i := 0; i < desc.NumParams(); i++ {
		if t := desc.Param(i).Type; t.NativeType() == nil {
			return errors.Codegen(name, "unsupported parameter type "+t.String())
		}
	}
	if r := desc.Return(); r != signature.Void && r.NativeType() == nil {
		return errors.Codegen(name, "unsupported return type "+r.String())
	}
	return nil
}

// Store owns compiled trampolines until Close; there is no per-method unload.
type Store struct {
	table *Table
	items []*Trampoline
	mu    sync.Mutex
}

// NewStore creates a store releasing native addresses from table on Close.
func NewStore(table *Table) *Store {
	return &Store{table: table}
}

// Add keeps tr alive.
func (s *Store) Add(tr *Trampoline) {
	s.mu.Lock()
	s.items = append(s.items, tr)
	s.mu.Unlock()
}

// Len returns the number of stored trampolines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close releases every trampoline at once.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range s.items {
		if tr.Addr != 0 && s.table != nil {
			s.table.Release(tr.Addr)
		}
	}
	s.items = nil
}
