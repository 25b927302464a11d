package langmodule

import (
	"os"
	"path/filepath"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// Plugin is the host's description of one plugin.
type Plugin struct {
	Name         string
	FriendlyName string
	Description  string
	Version      string
	CreatedBy    string
	CreatedByURL string
	BaseDir      string
	// EntryPoint is the guest binary, relative to BaseDir.
	EntryPoint   string
	Dependencies []string

	// Wasm, when set, is used instead of reading EntryPoint.
	Wasm []byte

	// ExportedMethods are script methods the plugin offers to native code.
	ExportedMethods []signature.MethodDecl
	// Methods are native functions the plugin offers to scripts.
	Methods []NativeMethod

	ID int64
}

// NativeMethod is a native function made callable from scripts. Fn is a Go
// function value; when it is nil Addr is resolved through the module table,
// which lets the methods returned by OnPluginLoad be exported again.
type NativeMethod struct {
	Fn   any
	Decl signature.MethodDecl
	Addr trampoline.Address
}

// MethodAddress is a native-callable entry point produced for an exported
// script method.
type MethodAddress struct {
	Name string
	Addr trampoline.Address
}

func (p *Plugin) wasmBytes() ([]byte, error) {
	if p.Wasm != nil {
		return p.Wasm, nil
	}
	if p.EntryPoint == "" {
		return nil, errors.Load("plugin "+p.Name+" has no entry point", nil)
	}
	data, err := os.ReadFile(filepath.Join(p.BaseDir, p.EntryPoint))
	if err != nil {
		return nil, errors.Load("failed to read entry point", err)
	}
	return data, nil
}
