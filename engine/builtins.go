package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zapcore"
)

// Built-in imports every guest may use from the bridge module.
const (
	BuiltinThrow      = "throw"
	BuiltinLog        = "log"
	BuiltinFindPlugin = "find_plugin"
)

// Guest log levels accepted by bridge.log.
const (
	GuestLevelDebug int32 = iota
	GuestLevelInfo
	GuestLevelWarn
	GuestLevelError
)

type builtin struct {
	fn      api.GoModuleFunction
	params  []api.ValueType
	results []api.ValueType
}

func (d *Domain) builtins(img *Image) map[string]builtin {
	e := d.engine
	return map[string]builtin{
		// throw(msg string)
		BuiltinThrow: {
			fn: api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
				msg := readGuestString(mod, api.DecodeU32(stack[0]))
				panic(&Exception{Message: msg, Source: img.name})
			}),
			params: []api.ValueType{api.ValueTypeI32},
		},
		// log(level i32, msg string)
		BuiltinLog: {
			fn: api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
				level := guestLevel(api.DecodeI32(stack[0]))
				msg := readGuestString(mod, api.DecodeU32(stack[1]))
				e.hostOrDefault().GuestLog(img, level, msg)
			}),
			params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		},
		// find_plugin(name string) -> i64, -1 when unknown
		BuiltinFindPlugin: {
			fn: api.GoModuleFunc(func(_ context.Context, mod api.Module, stack []uint64) {
				name := readGuestString(mod, api.DecodeU32(stack[0]))
				id, ok := e.hostOrDefault().FindPlugin(name)
				if !ok {
					id = -1
				}
				stack[0] = api.EncodeI64(id)
			}),
			params:  []api.ValueType{api.ValueTypeI32},
			results: []api.ValueType{api.ValueTypeI64},
		},
	}
}

func guestLevel(l int32) zapcore.Level {
	switch l {
	case GuestLevelDebug:
		return zapcore.DebugLevel
	case GuestLevelWarn:
		return zapcore.WarnLevel
	case GuestLevelError:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// readGuestString reads a managed string straight from guest memory. Built-ins
// may run from the start function, before the image has a converter.
func readGuestString(mod api.Module, ptr uint32) string {
	if ptr == 0 {
		return ""
	}
	mem := mod.Memory()
	if mem == nil {
		return ""
	}
	n, ok := mem.ReadUint32Le(ptr)
	if !ok {
		return ""
	}
	data, ok := mem.Read(ptr+4, n)
	if !ok {
		return ""
	}
	return string(data)
}
