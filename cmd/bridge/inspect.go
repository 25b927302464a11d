package main

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/wasm"
)

func readMetadata(data []byte) (*engine.Metadata, error) {
	payload, ok, err := wasm.CustomSection(data, engine.MetadataSection)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no %s section", engine.MetadataSection)
	}
	return engine.DecodeMetadata(payload)
}

func inspect(w io.Writer, wasmFile string) error {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	meta, err := readMetadata(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Guest: %s\n", wasmFile)
	fmt.Fprintf(w, "Metadata version: %d\n", meta.Version)
	fmt.Fprintf(w, "Classes: %d\n", len(meta.Classes))
	for _, c := range meta.Classes {
		fmt.Fprintf(w, "\n%s", c.FullName())
		if c.Base != "" {
			fmt.Fprintf(w, " : %s", c.Base)
		}
		fmt.Fprintln(w)
		if c.Ctor != nil {
			fmt.Fprintf(w, "  .ctor: %s\n", methodWIT(c.Ctor))
		}
		for i := range c.Methods {
			mm := &c.Methods[i]
			fmt.Fprintf(w, "  %s: %s", mm.Name, methodWIT(mm))
			if mm.Static {
				fmt.Fprint(w, " [static]")
			}
			if mm.Subscribe != "" {
				fmt.Fprintf(w, " [subscribe %s]", mm.Subscribe)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// methodWIT renders the managed signature of a script method.
func methodWIT(mm *engine.MethodMeta) string {
	ret := signature.Void
	if mm.Return != "" {
		ret = signature.ParseManaged(mm.Return)
	}
	params := make([]signature.Param, len(mm.Params))
	for i, p := range mm.Params {
		params[i] = signature.Param{Type: signature.ParseManaged(p.Type), Ref: p.Ref}
	}
	desc, err := signature.New(ret, signature.CallConvDefault, params...)
	if err != nil {
		return "unsupported (" + err.Error() + ")"
	}
	return desc.WIT()
}

func pack(wasmFile, metaFile, outFile string) error {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	var meta engine.Metadata
	md, err := toml.DecodeFile(metaFile, &meta)
	if err != nil {
		return fmt.Errorf("parse %s: %w", metaFile, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse %s: unknown keys %v", metaFile, undecoded)
	}

	payload, err := engine.EncodeMetadata(&meta)
	if err != nil {
		return err
	}
	// round trip through the loader's checks
	if _, err := engine.DecodeMetadata(payload); err != nil {
		return err
	}
	out, err := wasm.SetCustomSection(data, engine.MetadataSection, payload)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return os.WriteFile(outFile, out, 0o644)
}
