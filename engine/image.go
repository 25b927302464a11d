package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/convert"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// Object is a handle to a managed object owned by a guest.
type Object uint64

// Image is a loaded guest module and the classes it implements.
type Image struct {
	domain  *Domain
	module  api.Module
	memory  *WazeroMemory
	conv    *convert.Converter
	meta    *Metadata
	byName  map[string]*Class
	name    string
	classes []*Class
}

// Class is a script class of an image.
type Class struct {
	image     *Image
	byName    map[string]*Method
	Ctor      *Method
	Namespace string
	Name      string
	Base      string
	methods   []*Method
}

// Method is a script method bound to a guest export.
type Method struct {
	Class *Class
	Meta  MethodMeta
}

func (img *Image) init(compiled wazero.CompiledModule) error {
	mem := img.module.Memory()
	if mem == nil {
		return errors.Load("guest module has no memory", nil)
	}
	img.memory = &WazeroMemory{mem: mem}

	alloc := newAllocator(img.module)
	if alloc.allocFn == nil {
		return errors.Load("guest module exports no allocator ("+CabiRealloc+", "+simpleAlloc+" or "+mallocAlloc+")", nil)
	}
	conv, err := convert.New(img.memory, alloc)
	if err != nil {
		return errors.Load("canonical empty string", err)
	}
	img.conv = conv

	exports := compiled.ExportedFunctions()
	var problems errors.List
	bind := func(c *Class, meta MethodMeta) *Method {
		m := &Method{Class: c, Meta: meta}
		def, ok := exports[meta.Export]
		if !ok {
			problems.Add(errors.NotFound(errors.PhaseLoad, "export", meta.Export))
			return m
		}
		if params, results, known := exportTypes(&meta); known {
			if !sameTypes(def.ParamTypes(), params) || !sameTypes(def.ResultTypes(), results) {
				problems.Add(errors.New(errors.PhaseLoad, errors.KindTypeMismatch).
					Path(c.FullName(), meta.Name).
					NativeType(wasmSig(params, results)).
					ManagedType(wasmSig(def.ParamTypes(), def.ResultTypes())).
					Detail("export %s does not match method %s", meta.Export, m.QualifiedName()).Build())
			}
		}
		return m
	}

	img.byName = make(map[string]*Class, len(img.meta.Classes))
	for _, cm := range img.meta.Classes {
		c := &Class{
			image:     img,
			Namespace: cm.Namespace,
			Name:      cm.Name,
			Base:      cm.Base,
			byName:    make(map[string]*Method, len(cm.Methods)),
		}
		if cm.Ctor != nil {
			ctor := *cm.Ctor
			ctor.Static = true
			if ctor.Name == "" {
				ctor.Name = ".ctor"
			}
			c.Ctor = bind(c, ctor)
		}
		for _, mm := range cm.Methods {
			m := bind(c, mm)
			c.methods = append(c.methods, m)
			c.byName[mm.Name] = m
		}
		img.classes = append(img.classes, c)
		img.byName[c.FullName()] = c
	}
	return problems.Err()
}

// Name returns the image name, the name of its domain.
func (img *Image) Name() string { return img.name }

// ModuleName returns the unique guest module name.
func (img *Image) ModuleName() string { return img.module.Name() }

// Module returns the guest module.
func (img *Image) Module() api.Module { return img.module }

// Converter returns the value converter bound to the guest memory.
func (img *Image) Converter() *convert.Converter { return img.conv }

// Memory returns the guest memory.
func (img *Image) Memory() *WazeroMemory { return img.memory }

// Metadata returns the decoded class metadata.
func (img *Image) Metadata() *Metadata { return img.meta }

// Classes returns the classes in declaration order.
func (img *Image) Classes() []*Class { return img.classes }

// Class finds a class by namespace and name.
func (img *Image) Class(namespace, name string) (*Class, bool) {
	key := name
	if namespace != "" {
		key = namespace + "." + name
	}
	c, ok := img.byName[key]
	return c, ok
}

// Subclasses returns the classes whose base is base ("Namespace.Name").
func (img *Image) Subclasses(base string) []*Class {
	var out []*Class
	for _, c := range img.classes {
		if c.Base == base {
			out = append(out, c)
		}
	}
	return out
}

// Invoke calls the export behind m. Instance methods receive inst as a leading
// i64; static methods ignore it. args are raw wasm words.
func (img *Image) Invoke(ctx context.Context, m *Method, inst Object, args ...uint64) ([]uint64, error) {
	if img.domain.isClosed() {
		return nil, errors.NotInitialized(errors.PhaseDispatch, "domain "+img.domain.name)
	}
	// a fresh api.Function per call keeps nested guest calls independent
	fn := img.module.ExportedFunction(m.Meta.Export)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseDispatch, "export", m.Meta.Export)
	}
	params := args
	if !m.Meta.Static {
		if inst == 0 {
			return nil, errors.New(errors.PhaseDispatch, errors.KindNotStatic).
				Detail("Method '%s' is not static", m.QualifiedName()).Build()
		}
		params = make([]uint64, 0, len(args)+1)
		params = append(params, uint64(inst))
		params = append(params, args...)
	}
	return fn.Call(ctx, params...)
}

// Instantiate runs the class constructor and returns the new object.
func (img *Image) Instantiate(ctx context.Context, c *Class, args ...uint64) (Object, error) {
	if c.Ctor == nil {
		return 0, errors.NotFound(errors.PhaseLoad, "constructor of class", c.FullName())
	}
	res, err := img.Invoke(ctx, c.Ctor, 0, args...)
	if err != nil {
		return 0, err
	}
	if len(res) != 1 || res[0] == 0 {
		return 0, errors.Load("constructor of "+c.FullName()+" returned no object", nil)
	}
	return Object(res[0]), nil
}

// FullName renders "Namespace.Name".
func (c *Class) FullName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

// Image returns the image the class belongs to.
func (c *Class) Image() *Image { return c.image }

// Methods returns the methods in declaration order.
func (c *Class) Methods() []*Method { return c.methods }

// Method finds a method by name.
func (c *Class) Method(name string) (*Method, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// Name returns the method name.
func (m *Method) Name() string { return m.Meta.Name }

// QualifiedName renders "Namespace.Class::Method".
func (m *Method) QualifiedName() string {
	return m.Class.FullName() + "::" + m.Meta.Name
}

// Managed returns the real signature of the method.
func (m *Method) Managed() *signature.ManagedMethod {
	ret := m.Meta.Return
	if ret == "" {
		ret = "void"
	}
	return &signature.ManagedMethod{
		Namespace: m.Class.Namespace,
		Class:     m.Class.Name,
		Name:      m.Meta.Name,
		Return:    ret,
		Params:    m.Meta.Params,
		Static:    m.Meta.Static,
	}
}

func (d *Domain) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
