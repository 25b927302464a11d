package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/langmodule"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// consolePlugin is the name of the built-in plugin offering console natives.
const consolePlugin = "Host"

// manifest is the TOML description of one plugin.
type manifest struct {
	Name            string                 `toml:"name"`
	FriendlyName    string                 `toml:"friendly_name"`
	Description     string                 `toml:"description"`
	Version         string                 `toml:"version"`
	CreatedBy       string                 `toml:"created_by"`
	CreatedByURL    string                 `toml:"created_by_url"`
	EntryPoint      string                 `toml:"entry_point"`
	Dependencies    []string               `toml:"dependencies"`
	ExportedMethods []signature.MethodDecl `toml:"exported_methods"`
	ID              int64                  `toml:"id"`
}

// readManifests loads every *.toml in dir except the module configuration.
// A manifest without a name is named after its file.
func readManifests(dir string) ([]*langmodule.Plugin, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, err
	}
	var plugins []*langmodule.Plugin
	for i, file := range files {
		if filepath.Base(file) == config.FileName {
			continue
		}
		var mf manifest
		md, err := toml.DecodeFile(file, &mf)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse %s: unknown keys %v", file, undecoded)
		}
		if mf.Name == "" {
			mf.Name = strings.TrimSuffix(filepath.Base(file), ".toml")
		}
		if mf.ID == 0 {
			mf.ID = int64(i + 1)
		}
		plugins = append(plugins, &langmodule.Plugin{
			ID:              mf.ID,
			Name:            mf.Name,
			FriendlyName:    mf.FriendlyName,
			Description:     mf.Description,
			Version:         mf.Version,
			CreatedBy:       mf.CreatedBy,
			CreatedByURL:    mf.CreatedByURL,
			BaseDir:         dir,
			EntryPoint:      mf.EntryPoint,
			Dependencies:    mf.Dependencies,
			ExportedMethods: mf.ExportedMethods,
		})
	}
	return plugins, nil
}

// orderPlugins sorts plugins so that every plugin follows its dependencies.
func orderPlugins(plugins []*langmodule.Plugin) ([]*langmodule.Plugin, error) {
	byName := make(map[string]*langmodule.Plugin, len(plugins))
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		if _, dup := byName[p.Name]; dup {
			return nil, fmt.Errorf("plugin %s declared twice", p.Name)
		}
		byName[p.Name] = p
		names = append(names, p.Name)
	}
	slices.Sort(names)

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(plugins))
	out := make([]*langmodule.Plugin, 0, len(plugins))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle: %s", strings.Join(append(path, name), " -> "))
		}
		p := byName[name]
		state[name] = visiting
		for _, dep := range p.Dependencies {
			if dep == consolePlugin {
				continue
			}
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("plugin %s depends on unknown plugin %s", name, dep)
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		out = append(out, p)
		return nil
	}
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// consoleNatives are the natives every plugin may import.
func consoleNatives(w io.Writer) *langmodule.Plugin {
	return &langmodule.Plugin{
		Name: consolePlugin,
		Methods: []langmodule.NativeMethod{
			{
				Decl: signature.MethodDecl{Name: "Print", FuncName: "Host.Console.Out.Print", Return: "void",
					Params: []signature.ParamDecl{{Type: "string"}}},
				Fn: func(s string) { fmt.Fprintln(w, s) },
			},
			{
				Decl: signature.MethodDecl{Name: "Now", FuncName: "Host.Console.Clock.Now", Return: "int64"},
				Fn:   func() int64 { return time.Now().UnixMilli() },
			},
		},
	}
}

type exported struct {
	plugin *langmodule.Plugin
	desc   *signature.Descriptor
	name   string
	addr   trampoline.Address
}

// session is a language module with every plugin of a directory loaded and
// started.
type session struct {
	mod     *langmodule.Module
	methods map[string]exported
	plugins []*langmodule.Plugin
	names   []string
}

func openSession(ctx context.Context, dir string, logger *zap.Logger, out io.Writer) (*session, error) {
	mod := langmodule.New(logger)
	if err := mod.Initialize(ctx, dir); err != nil {
		return nil, err
	}
	s := &session{mod: mod, methods: make(map[string]exported)}

	plugins, err := readManifests(dir)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	plugins, err = orderPlugins(plugins)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	mod.OnMethodExport(consoleNatives(out))
	for _, p := range plugins {
		addrs, err := mod.OnPluginLoad(ctx, p)
		if err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("load plugin %s: %w", p.Name, err)
		}
		s.plugins = append(s.plugins, p)

		// later plugins may import what this one exports
		natives := make([]langmodule.NativeMethod, 0, len(addrs))
		for _, a := range addrs {
			i := slices.IndexFunc(p.ExportedMethods, func(d signature.MethodDecl) bool { return d.Name == a.Name })
			if i < 0 {
				continue
			}
			decl := p.ExportedMethods[i]
			m, err := decl.Build()
			if err != nil {
				continue
			}
			natives = append(natives, langmodule.NativeMethod{Decl: decl, Addr: a.Addr})
			key := p.Name + "." + a.Name
			s.methods[key] = exported{plugin: p, desc: m.Desc, name: key, addr: a.Addr}
			s.names = append(s.names, key)
		}
		mod.OnMethodExport(&langmodule.Plugin{Name: p.Name, Methods: natives})
	}
	slices.Sort(s.names)

	for _, p := range s.plugins {
		mod.OnPluginStart(ctx, p)
	}
	return s, nil
}

func (s *session) close(ctx context.Context) {
	for i := len(s.plugins) - 1; i >= 0; i-- {
		s.mod.OnPluginEnd(ctx, s.plugins[i])
	}
	s.plugins = nil
	_ = s.mod.Shutdown(ctx)
}

// call invokes an exported method with arguments in text form and renders the
// result followed by every by-reference argument.
func (s *session) call(name string, raw []string) (string, error) {
	x, ok := s.methods[name]
	if !ok {
		return "", fmt.Errorf("unknown method %s", name)
	}
	args, refs, err := parseArgs(x.desc, raw)
	if err != nil {
		return "", err
	}
	res, err := s.mod.Table().Call(x.addr, args...)
	if err != nil {
		return "", err
	}

	var parts []string
	if x.desc.Return() != signature.Void {
		parts = append(parts, formatValue(reflect.ValueOf(res)))
	}
	for _, r := range refs {
		parts = append(parts, fmt.Sprintf("ref[%d]=%s", r.index, formatValue(r.ptr.Elem())))
	}
	if len(parts) == 0 {
		return "ok", nil
	}
	return strings.Join(parts, " "), nil
}
