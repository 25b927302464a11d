package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Allocator export names probed on the guest, in order of preference
const (
	CabiRealloc = "cabi_realloc"
	simpleAlloc = "alloc"
	mallocAlloc = "malloc"
	CabiFree    = "cabi_free"
	simpleFree  = "free"
)

// WazeroMemory is the linear memory of a loaded image. Accesses outside the
// memory fail with an out of bounds marshal error.
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMarshal, offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, offset, 4)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, offset, 8)
	}
	return v, nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, 4)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseMarshal, offset, 8)
	}
	return nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// wazeroAllocator calls the guest's exported allocator.
type wazeroAllocator struct {
	allocFn  api.Function
	freeFn   api.Function
	stackBuf []uint64
	mu       sync.Mutex
	// realloc is true for cabi_realloc(old, oldSize, align, size)
	realloc bool
	// freeArgs is 1 for free(ptr) and 3 for free(ptr, size, align)
	freeArgs int
}

func newAllocator(mod api.Module) *wazeroAllocator {
	a := &wazeroAllocator{stackBuf: make([]uint64, 4)}
	defs := mod.ExportedFunctionDefinitions()

	for _, name := range []string{CabiRealloc, simpleAlloc, mallocAlloc} {
		if def, ok := defs[name]; ok {
			a.allocFn = mod.ExportedFunction(name)
			a.realloc = len(def.ParamTypes()) == 4
			break
		}
	}
	for _, name := range []string{CabiFree, simpleFree} {
		if def, ok := defs[name]; ok {
			a.freeFn = mod.ExportedFunction(name)
			a.freeArgs = len(def.ParamTypes())
			break
		}
	}
	return a
}

func (a *wazeroAllocator) Alloc(size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, errors.NotInitialized(errors.PhaseMarshal, "guest allocator")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	if a.realloc {
		a.stackBuf[0] = 0
		a.stackBuf[1] = 0
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = uint64(size)
		if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:4]); err != nil {
			return 0, err
		}
		return uint32(a.stackBuf[0]), nil
	}
	a.stackBuf[0] = uint64(size)
	if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:1]); err != nil {
		return 0, err
	}
	return uint32(a.stackBuf[0]), nil
}

func (a *wazeroAllocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	a.stackBuf[2] = uint64(align)
	n := 3
	if a.freeArgs == 1 {
		n = 1
	}
	if err := a.freeFn.CallWithStack(context.Background(), a.stackBuf[:n]); err != nil {
		Logger().Warn("free: guest deallocation failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// Compile-time check that WazeroMemory implements wasmbridge.Memory and MemorySizer
var _ wasmbridge.Memory = (*WazeroMemory)(nil)
var _ wasmbridge.MemorySizer = (*WazeroMemory)(nil)

// Compile-time check that wazeroAllocator implements wasmbridge.Allocator
var _ wasmbridge.Allocator = (*wazeroAllocator)(nil)
