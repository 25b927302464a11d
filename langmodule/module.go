package langmodule

import (
	"context"
	stderrors "errors"
	"reflect"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/dispatch"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// importMethod is a native function registered for scripts.
type importMethod struct {
	method signature.Method
	fn     reflect.Value
	tramp  *trampoline.Trampoline
}

// Module is the language module: it loads wasm plugins into their own
// domains, exposes native methods to them and script methods to the host.
type Module struct {
	logger  *zap.Logger
	engine  *engine.Engine
	table   *trampoline.Table
	store   *trampoline.Store
	imports map[string]*importMethod
	scripts map[string]*ScriptInstance
	domains map[string]*engine.Domain
	ids     map[string]int64
	cfg     config.Config
	mu      sync.RWMutex
}

// New creates a module logging to logger, which may be nil.
func New(logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{logger: logger}
}

// Initialize reads config.toml from baseDir and starts the runtime.
func (m *Module) Initialize(ctx context.Context, baseDir string) error {
	cfg, err := config.Load(baseDir)
	if err != nil {
		return err
	}
	return m.InitializeWith(ctx, cfg)
}

// InitializeWith starts the runtime with an explicit configuration.
func (m *Module) InitializeWith(_ context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ec, err := cfg.Engine()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		return errors.New(errors.PhaseConfig, errors.KindDuplicate).
			Detail("language module already initialized").Build()
	}

	if lvl := cfg.ZapLevel(); m.logger.Core().Enabled(lvl) {
		m.logger = m.logger.WithOptions(zap.IncreaseLevel(lvl))
	}
	engine.SetLogger(m.logger.Named("engine"))
	dispatch.SetLogger(m.logger.Named("dispatch"))

	m.cfg = cfg
	m.engine = engine.New(ec)
	m.engine.SetHost(m)
	m.table = trampoline.NewTable()
	m.store = trampoline.NewStore(m.table)
	m.imports = make(map[string]*importMethod)
	m.scripts = make(map[string]*ScriptInstance)
	m.domains = make(map[string]*engine.Domain)
	m.ids = make(map[string]int64)

	m.logger.Debug("language module initialized",
		zap.String("base_class", cfg.BaseClass),
		zap.Bool("safe_mode", cfg.SafeMode),
		zap.Bool("subscribe_feature", cfg.SubscribeFeature))
	return nil
}

// Shutdown closes every domain and releases every trampoline.
func (m *Module) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return nil
	}
	var errs []error
	for name, d := range m.domains {
		if err := d.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(m.domains, name)
	}
	m.store.Close()
	if err := m.engine.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	m.engine = nil
	m.imports = nil
	m.scripts = nil
	m.ids = nil

	engine.SetLogger(nil)
	dispatch.SetLogger(nil)
	m.logger.Debug("language module shut down")
	return stderrors.Join(errs...)
}

// Config returns the active configuration.
func (m *Module) Config() config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Table returns the table native-callable addresses are resolved in.
func (m *Module) Table() *trampoline.Table {
	return m.table
}

// Engine returns the runtime, nil before Initialize.
func (m *Module) Engine() *engine.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

// FindScript returns the script instance of a loaded plugin.
func (m *Module) FindScript(name string) (*ScriptInstance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[name]
	return s, ok
}

// Import implements engine.Imports over the exported native methods.
func (m *Module) Import(name string) (*trampoline.Trampoline, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	imp, ok := m.imports[name]
	if !ok {
		return nil, false
	}
	return imp.tramp, true
}

// GuestLog implements engine.Host.
func (m *Module) GuestLog(img *engine.Image, level zapcore.Level, msg string) {
	m.logger.Log(level, msg, zap.String("plugin", img.Name()))
}

// FindPlugin implements engine.Host.
func (m *Module) FindPlugin(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ids[name]
	return id, ok
}

func (m *Module) compiler() *trampoline.NativeCompiler {
	return &trampoline.NativeCompiler{Table: m.table, Generic: m.cfg.SafeMode}
}

func (m *Module) initialized(phase errors.Phase) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.engine == nil {
		return errors.NotInitialized(phase, "language module")
	}
	return nil
}

var codegenFailure = &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindCodegen}

// OnPluginLoad loads the plugin's guest into a new domain, creates its script
// instance and compiles a native-callable entry point for every exported
// method. Lookup and signature problems are reported together and leave
// nothing loaded; a method whose trampoline cannot be generated is logged and
// left out of the result.
func (m *Module) OnPluginLoad(ctx context.Context, p *Plugin) ([]MethodAddress, error) {
	if err := m.initialized(errors.PhaseLoad); err != nil {
		return nil, err
	}
	m.mu.RLock()
	_, loaded := m.domains[p.Name]
	m.mu.RUnlock()
	if loaded {
		return nil, errors.New(errors.PhaseLoad, errors.KindDuplicate).
			Value(p.Name).Detail("plugin %s is already loaded", p.Name).Build()
	}

	data, err := p.wasmBytes()
	if err != nil {
		return nil, err
	}

	domain := m.engine.NewDomain(ctx, p.Name)
	img, err := domain.Load(ctx, data, m)
	if err != nil {
		_ = domain.Close(ctx)
		return nil, err
	}

	script, err := m.newScriptInstance(ctx, p, img)
	if err != nil {
		_ = domain.Close(ctx)
		return nil, err
	}

	var problems errors.List
	methods := make([]MethodAddress, 0, len(p.ExportedMethods))
	for _, decl := range p.ExportedMethods {
		addr, err := m.exportMethod(script, decl)
		if stderrors.Is(err, codegenFailure) {
			m.logger.Error("method trampoline generation failed",
				zap.String("plugin", p.Name),
				zap.String("method", decl.FuncName),
				zap.Error(err))
			continue
		}
		if err != nil {
			addProblem(&problems, errors.PhaseLoad, err)
			continue
		}
		methods = append(methods, MethodAddress{Name: decl.Name, Addr: addr})
	}
	if err := problems.Err(); err != nil {
		for _, ma := range methods {
			m.table.Release(ma.Addr)
		}
		_ = domain.Close(ctx)
		return nil, err
	}

	m.mu.Lock()
	m.domains[p.Name] = domain
	m.scripts[p.Name] = script
	m.ids[p.Name] = p.ID
	m.mu.Unlock()

	m.logger.Debug("plugin loaded",
		zap.String("plugin", p.Name),
		zap.String("class", script.Class().FullName()),
		zap.Int("methods", len(methods)))
	return methods, nil
}

// exportMethod binds one declared method to its script implementation.
func (m *Module) exportMethod(script *ScriptInstance, decl signature.MethodDecl) (trampoline.Address, error) {
	method, err := decl.Build()
	if err != nil {
		return 0, err
	}
	qn, err := signature.SplitFuncName(decl.FuncName)
	if err != nil {
		return 0, err
	}
	img := script.Image()
	class, ok := img.Class(qn.Namespace, qn.Class)
	if !ok {
		return 0, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(decl.FuncName).
			Detail("failed to find class '%s.%s'", qn.Namespace, qn.Class).Build()
	}
	sm, ok := class.Method(qn.Method)
	if !ok {
		return 0, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(decl.FuncName).
			Detail("failed to find method '%s'", qn.ClassMethod()).Build()
	}

	var inst engine.Object
	if class == script.Class() {
		inst = script.Object()
	}
	x, err := dispatch.Bind(method.Desc, sm, inst)
	if err != nil {
		return 0, err
	}
	x.Logger = m.logger
	tr, err := x.Compile(m.compiler())
	if err != nil {
		return 0, err
	}
	m.store.Add(tr)
	return tr.Addr, nil
}

// OnMethodExport registers the native methods of p for scripts loaded from now
// on. A name already registered keeps its first binding; the duplicate is
// logged. A method that fails to compile is logged and skipped.
func (m *Module) OnMethodExport(p *Plugin) {
	if err := m.initialized(errors.PhaseExport); err != nil {
		m.logger.Error("method export failed", zap.String("plugin", p.Name), zap.Error(err))
		return
	}
	for _, nm := range p.Methods {
		name := nm.Decl.FuncName
		m.mu.RLock()
		_, dup := m.imports[name]
		m.mu.RUnlock()
		if dup {
			m.logger.Error("method name duplicate: "+name, zap.String("plugin", p.Name))
			continue
		}

		imp, err := m.importMethod(nm)
		if err != nil {
			m.logger.Error("method trampoline generation failed",
				zap.String("plugin", p.Name),
				zap.String("method", name),
				zap.Error(err))
			continue
		}

		m.mu.Lock()
		m.imports[name] = imp
		m.mu.Unlock()
		m.logger.Debug("method exported",
			zap.String("plugin", p.Name),
			zap.String("method", name),
			zap.Stringer("signature", imp.method.Desc))
	}
}

func (m *Module) importMethod(nm NativeMethod) (*importMethod, error) {
	method, err := nm.Decl.Build()
	if err != nil {
		return nil, err
	}
	var fn reflect.Value
	switch {
	case nm.Fn != nil:
		fn = reflect.ValueOf(nm.Fn)
	case nm.Addr != 0:
		v, ok := m.table.Resolve(nm.Addr)
		if !ok {
			return nil, errors.NotFound(errors.PhaseExport, "function address", method.FuncName)
		}
		fn = v
	default:
		return nil, errors.InvalidInput(errors.PhaseExport, "native method "+method.FuncName+" has no function")
	}

	binding, err := dispatch.NewImport(method.FuncName, method.Desc, fn, m.engine)
	if err != nil {
		return nil, err
	}
	tr, err := binding.Compile(trampoline.HostCompiler{})
	if err != nil {
		return nil, err
	}
	m.store.Add(tr)
	return &importMethod{method: method, fn: fn, tramp: tr}, nil
}

// OnPluginStart runs the subscription walk when enabled, then OnStart.
func (m *Module) OnPluginStart(ctx context.Context, p *Plugin) {
	script, ok := m.FindScript(p.Name)
	if !ok {
		return
	}
	if m.Config().SubscribeFeature {
		if err := m.subscribeAll(script); err != nil {
			m.logger.Warn("Plugin '" + p.Name + "' has problems related to subscribe method(s): " + err.Error())
		}
	}
	script.OnStart(ctx)
}

// OnPluginEnd runs OnEnd of the plugin's script instance.
func (m *Module) OnPluginEnd(ctx context.Context, p *Plugin) {
	if script, ok := m.FindScript(p.Name); ok {
		script.OnEnd(ctx)
	}
}

// addProblem flattens err into l.
func addProblem(l *errors.List, phase errors.Phase, err error) {
	var list errors.List
	if stderrors.As(err, &list) {
		l.Append(list)
		return
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		l.Add(e)
		return
	}
	l.Add(errors.Wrap(phase, errors.KindInvalidInput, err, ""))
}
