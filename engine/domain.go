package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// HostModule is the import module name under which a guest finds native
// methods and the bridge built-ins.
const HostModule = "bridge"

// initializeExport is run once after instantiation when the guest exports it.
const initializeExport = "_initialize"

// Imports resolves the native methods a guest imports by their fully
// qualified name.
type Imports interface {
	Import(name string) (*trampoline.Trampoline, bool)
}

// ImportMap is an Imports backed by a map.
type ImportMap map[string]*trampoline.Trampoline

// Import implements Imports.
func (m ImportMap) Import(name string) (*trampoline.Trampoline, bool) {
	tr, ok := m[name]
	return tr, ok
}

// Domain is the isolated runtime of one plugin. Closing it invalidates every
// handle obtained from its image.
type Domain struct {
	engine  *Engine
	runtime wazero.Runtime
	image   *Image
	name    string
	mu      sync.Mutex
	closed  bool
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// Image returns the loaded image or nil.
func (d *Domain) Image() *Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.image
}

// Load compiles and instantiates a guest module in this domain. A domain
// holds a single image.
func (d *Domain) Load(ctx context.Context, wasmBytes []byte, imports Imports) (*Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.NotInitialized(errors.PhaseLoad, "domain "+d.name)
	}
	if d.image != nil {
		return nil, errors.New(errors.PhaseLoad, errors.KindDuplicate).
			Detail("domain %s already has an image", d.name).Build()
	}

	compiled, err := d.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}

	meta, err := readMetadata(compiled)
	if err != nil {
		return nil, err
	}

	img := &Image{domain: d, name: d.name, meta: meta}
	if err := d.instantiateHost(ctx, compiled, imports, img); err != nil {
		return nil, err
	}

	modName := d.name + "-" + uuid.NewString()
	mod, err := d.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName(modName).
		WithStartFunctions(initializeExport))
	if err != nil {
		return nil, errors.Load("instantiate failed", err)
	}
	img.module = mod

	if err := img.init(compiled); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	d.image = img
	d.engine.register(img)
	Logger().Debug("image loaded",
		zap.String("domain", d.name),
		zap.String("module", modName),
		zap.Int("classes", len(img.classes)))
	return img, nil
}

// instantiateHost builds the bridge host module from the built-ins and the
// native methods the guest actually imports.
func (d *Domain) instantiateHost(ctx context.Context, compiled wazero.CompiledModule, imports Imports, img *Image) error {
	builder := d.runtime.NewHostModuleBuilder(HostModule)
	builtins := d.builtins(img)

	var (
		missing  []string
		problems errors.List
		seen     = make(map[string]bool)
	)
	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()
		if modName != HostModule {
			missing = append(missing, modName+"#"+name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true

		if b, ok := builtins[name]; ok {
			if !sameTypes(def.ParamTypes(), b.params) || !sameTypes(def.ResultTypes(), b.results) {
				problems.Add(importMismatch(name, def, b.params, b.results))
				continue
			}
			builder.NewFunctionBuilder().
				WithGoModuleFunction(b.fn, b.params, b.results).
				Export(name)
			continue
		}

		var tr *trampoline.Trampoline
		if imports != nil {
			tr, _ = imports.Import(name)
		}
		if tr == nil || tr.Host == nil {
			missing = append(missing, modName+"#"+name)
			continue
		}
		if !sameTypes(def.ParamTypes(), tr.Params) || !sameTypes(def.ResultTypes(), tr.Results) {
			problems.Add(importMismatch(name, def, tr.Params, tr.Results))
			continue
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(tr.Host, tr.Params, tr.Results).
			WithName(name).
			Export(name)
	}

	if len(missing) > 0 {
		return errors.NewMissingImportsError(missing)
	}
	if err := problems.Err(); err != nil {
		return err
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Load("instantiate "+HostModule, err)
	}
	return nil
}

// Close tears down the runtime and every module in it.
func (d *Domain) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.image != nil {
		d.engine.unregister(d.image)
	}
	Logger().Debug("domain closed", zap.String("domain", d.name))
	return d.runtime.Close(ctx)
}

func readMetadata(compiled wazero.CompiledModule) (*Metadata, error) {
	for _, sec := range compiled.CustomSections() {
		if sec.Name() == MetadataSection {
			return DecodeMetadata(sec.Data())
		}
	}
	return &Metadata{Version: MetadataVersion}, nil
}

func sameTypes(a, b []api.ValueType) bool {
	return slices.Equal(a, b)
}

func importMismatch(name string, def api.FunctionDefinition, params, results []api.ValueType) *errors.Error {
	return errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
		Path(name).
		NativeType(wasmSig(params, results)).
		ManagedType(wasmSig(def.ParamTypes(), def.ResultTypes())).
		Detail("import %s.%s has the wrong wasm signature", HostModule, name).Build()
}

func wasmSig(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) []string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = api.ValueTypeName(t)
		}
		return out
	}
	return fmt.Sprintf("%v -> %v", names(params), names(results))
}

// exportTypes returns the wasm signature a method export must have.
// ok is false when a managed type is unknown; validation reports those.
func exportTypes(m *MethodMeta) (params, results []api.ValueType, ok bool) {
	if !m.Static {
		params = append(params, api.ValueTypeI64)
	}
	for _, p := range m.Params {
		t := signature.ParseManaged(p.Type)
		if t == signature.Invalid || t == signature.Void {
			return nil, nil, false
		}
		params = append(params, convert.ValueType(t, p.Ref))
	}
	ret := signature.ParseManaged(m.Return)
	if m.Return == "" {
		ret = signature.Void
	}
	if ret == signature.Invalid {
		return nil, nil, false
	}
	if ret != signature.Void {
		results = []api.ValueType{convert.ValueType(ret, false)}
	}
	return params, results, true
}
