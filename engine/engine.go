package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/errors"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// Debug keeps DWARF based source locations in stack traces.
	Debug bool

	// Interpreter forces the interpreter even where the compiler is supported.
	Interpreter bool

	// CloseOnContextDone aborts guest execution when the call context ends.
	CloseOnContextDone bool
}

// Host receives the built-in calls a guest makes into the bridge.
type Host interface {
	// GuestLog forwards a bridge.log call.
	GuestLog(img *Image, level zapcore.Level, msg string)
	// FindPlugin resolves a plugin name to its id.
	FindPlugin(name string) (int64, bool)
}

// Engine owns the compilation cache shared by every domain and the table of
// loaded images keyed by their guest module name.
type Engine struct {
	cfg    Config
	cache  wazero.CompilationCache
	host   Host
	images map[string]*Image
	mu     sync.RWMutex
}

// New creates an engine; cfg may be nil.
func New(cfg *Config) *Engine {
	e := &Engine{
		cache:  wazero.NewCompilationCache(),
		images: make(map[string]*Image),
	}
	if cfg != nil {
		e.cfg = *cfg
	}
	return e
}

// SetHost installs the receiver of built-in guest calls; nil restores the
// default which logs through Logger and knows no plugins.
func (e *Engine) SetHost(h Host) {
	e.mu.Lock()
	e.host = h
	e.mu.Unlock()
}

func (e *Engine) hostOrDefault() Host {
	e.mu.RLock()
	h := e.host
	e.mu.RUnlock()
	if h == nil {
		return defaultHost{}
	}
	return h
}

func (e *Engine) runtimeConfig() wazero.RuntimeConfig {
	var rc wazero.RuntimeConfig
	if e.cfg.Interpreter {
		rc = wazero.NewRuntimeConfigInterpreter()
	} else {
		rc = wazero.NewRuntimeConfig()
	}
	rc = rc.WithCompilationCache(e.cache).
		WithCustomSections(true).
		WithDebugInfoEnabled(e.cfg.Debug).
		WithCloseOnContextDone(e.cfg.CloseOnContextDone)
	if e.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	return rc
}

// NewDomain creates an isolated runtime for one plugin.
func (e *Engine) NewDomain(ctx context.Context, name string) *Domain {
	Logger().Debug("domain created", zap.String("domain", name))
	return &Domain{
		engine:  e,
		name:    name,
		runtime: wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig()),
	}
}

// Image returns the loaded image whose guest module is mod.
func (e *Engine) Image(mod api.Module) (*Image, bool) {
	if mod == nil {
		return nil, false
	}
	e.mu.RLock()
	img, ok := e.images[mod.Name()]
	e.mu.RUnlock()
	return img, ok
}

// Converter resolves the converter of the image backing mod. It serves the
// script-callable trampolines shared by every domain.
func (e *Engine) Converter(mod api.Module) (*convert.Converter, error) {
	img, ok := e.Image(mod)
	if !ok {
		name := "<nil>"
		if mod != nil {
			name = mod.Name()
		}
		return nil, errors.NotFound(errors.PhaseDispatch, "image for module", name)
	}
	return img.conv, nil
}

// Images returns the number of loaded images.
func (e *Engine) Images() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.images)
}

func (e *Engine) register(img *Image) {
	e.mu.Lock()
	e.images[img.module.Name()] = img
	e.mu.Unlock()
}

func (e *Engine) unregister(img *Image) {
	e.mu.Lock()
	delete(e.images, img.module.Name())
	e.mu.Unlock()
}

// Close releases the compilation cache. Domains must be closed first.
func (e *Engine) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}

type defaultHost struct{}

func (defaultHost) GuestLog(img *Image, level zapcore.Level, msg string) {
	Logger().Log(level, msg, zap.String("image", img.Name()))
}

func (defaultHost) FindPlugin(string) (int64, bool) {
	return 0, false
}
