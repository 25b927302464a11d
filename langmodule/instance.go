package langmodule

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/dispatch"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// Lifecycle methods looked up on the plugin class.
const (
	OnStartMethod = "OnStart"
	OnEndMethod   = "OnEnd"
)

// ctorDesc is the constructor every plugin class provides: id, name, friendly
// name, description, version, author, url and dependency names.
var ctorDesc = signature.MustNew(signature.Pointer,
	signature.P(signature.Int64),
	signature.P(signature.String), signature.P(signature.String), signature.P(signature.String),
	signature.P(signature.String), signature.P(signature.String), signature.P(signature.String),
	signature.P(signature.ArrayString))

var lifecycleDesc = signature.MustNew(signature.Void)

// ScriptInstance is the object of a plugin's entry class.
type ScriptInstance struct {
	plugin  *Plugin
	image   *engine.Image
	class   *engine.Class
	logger  *zap.Logger
	onStart *dispatch.Export
	onEnd   *dispatch.Export
	object  engine.Object
}

// newScriptInstance finds the single class extending the base class and
// constructs it.
func (m *Module) newScriptInstance(ctx context.Context, p *Plugin, img *engine.Image) (*ScriptInstance, error) {
	base := m.Config().BaseClass
	classes := img.Subclasses(base)
	switch len(classes) {
	case 0:
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(p.Name).
			Detail("failed to find '%s' class implementation", base).Build()
	case 1:
	default:
		names := make([]string, len(classes))
		for i, c := range classes {
			names[i] = c.FullName()
		}
		return nil, errors.New(errors.PhaseLoad, errors.KindDuplicate).
			Path(p.Name).
			Detail("more than one class extends '%s': %s", base, strings.Join(names, ", ")).Build()
	}
	class := classes[0]
	if class.Ctor == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "constructor of class", class.FullName())
	}

	ctor, err := dispatch.Bind(ctorDesc, class.Ctor, 0)
	if err != nil {
		return nil, err
	}
	ret, err := ctor.Invoke(ctx, p.ID, p.Name, p.FriendlyName, p.Description,
		p.Version, p.CreatedBy, p.CreatedByURL, p.Dependencies)
	if err != nil {
		d := engine.Diagnose(err, img.Name(), class.Ctor.QualifiedName())
		m.logger.Error(d.String(), zap.Error(err))
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindException, err, "constructor of "+class.FullName())
	}
	obj, _ := ret.(uintptr)
	if obj == 0 {
		return nil, errors.Load("constructor of "+class.FullName()+" returned no object", nil)
	}

	s := &ScriptInstance{
		plugin: p,
		image:  img,
		class:  class,
		logger: m.logger,
		object: engine.Object(obj),
	}
	s.onStart = s.lifecycle(OnStartMethod)
	s.onEnd = s.lifecycle(OnEndMethod)
	return s, nil
}

// lifecycle binds an optional zero-argument instance method. A method of that
// name with another shape is ignored and logged.
func (s *ScriptInstance) lifecycle(name string) *dispatch.Export {
	m, ok := s.class.Method(name)
	if !ok {
		return nil
	}
	x, err := dispatch.Bind(lifecycleDesc, m, s.object)
	if err != nil {
		s.logger.Warn("lifecycle method ignored",
			zap.String("plugin", s.plugin.Name),
			zap.String("method", m.QualifiedName()),
			zap.Error(err))
		return nil
	}
	x.Logger = s.logger
	return x
}

// Plugin returns the plugin the instance was created for.
func (s *ScriptInstance) Plugin() *Plugin { return s.plugin }

// Image returns the loaded guest image.
func (s *ScriptInstance) Image() *engine.Image { return s.image }

// Class returns the plugin class.
func (s *ScriptInstance) Class() *engine.Class { return s.class }

// Object returns the handle of the plugin object.
func (s *ScriptInstance) Object() engine.Object { return s.object }

// OnStart calls the plugin's OnStart method if it has one.
func (s *ScriptInstance) OnStart(ctx context.Context) {
	s.invoke(ctx, s.onStart)
}

// OnEnd calls the plugin's OnEnd method if it has one.
func (s *ScriptInstance) OnEnd(ctx context.Context) {
	s.invoke(ctx, s.onEnd)
}

func (s *ScriptInstance) invoke(ctx context.Context, x *dispatch.Export) {
	if x == nil {
		return
	}
	if _, err := x.Call(ctx, nil); err != nil {
		d := engine.Diagnose(err, s.image.Name(), x.Method.QualifiedName())
		s.logger.Error(d.String(), zap.Error(err))
	}
}
