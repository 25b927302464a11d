package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/langmodule"
	"github.com/wippyai/wasm-bridge/signature"
	"github.com/wippyai/wasm-bridge/testbed"
	"github.com/wippyai/wasm-bridge/wasm"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		tag  signature.Tag
		in   string
		want any
	}{
		{signature.Bool, "true", true},
		{signature.Int8, "-128", int8(-128)},
		{signature.Int32, "0x10", int32(16)},
		{signature.Int64, "-9223372036854775808", int64(-9223372036854775808)},
		{signature.Uint64, "18446744073709551615", uint64(18446744073709551615)},
		{signature.Pointer, "0x1000", uintptr(0x1000)},
		{signature.Float, "1.5", float32(1.5)},
		{signature.Double, "-0.25", -0.25},
		{signature.String, " spaced ", " spaced "},
		{signature.ArrayInt32, "1, 2,3", []int32{1, 2, 3}},
		{signature.ArrayInt32, "", []int32{}},
		{signature.ArrayString, "a,b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String()+"/"+tt.in, func(t *testing.T) {
			v, err := parseValue(tt.tag, tt.in)
			if err != nil {
				t.Fatalf("parseValue: %v", err)
			}
			if !reflect.DeepEqual(v.Interface(), tt.want) {
				t.Errorf("got %#v, want %#v", v.Interface(), tt.want)
			}
		})
	}

	for _, bad := range []struct {
		tag signature.Tag
		in  string
	}{
		{signature.Int8, "200"},
		{signature.Bool, "maybe"},
		{signature.ArrayUint8, "1,x"},
		{signature.Void, ""},
	} {
		if _, err := parseValue(bad.tag, bad.in); err == nil {
			t.Errorf("parseValue(%s, %q) succeeded", bad.tag, bad.in)
		}
	}
}

func TestParseArgs_Refs(t *testing.T) {
	desc := signature.MustNew(signature.Void, signature.P(signature.Int32), signature.R(signature.String))
	args, refs, err := parseArgs(desc, []string{"7", "x"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if args[0] != int32(7) {
		t.Errorf("args[0] = %#v", args[0])
	}
	if p, ok := args[1].(*string); !ok || *p != "x" {
		t.Errorf("args[1] = %#v, want *string", args[1])
	}
	if len(refs) != 1 || refs[0].index != 1 {
		t.Errorf("refs = %+v", refs)
	}
	if _, _, err := parseArgs(desc, []string{"7"}); err == nil {
		t.Error("short argument list accepted")
	}
}

func TestOrderPlugins(t *testing.T) {
	mk := func(name string, deps ...string) *langmodule.Plugin {
		return &langmodule.Plugin{Name: name, Dependencies: deps}
	}
	ordered, err := orderPlugins([]*langmodule.Plugin{
		mk("c", "b"), mk("a"), mk("b", "a", consolePlugin),
	})
	if err != nil {
		t.Fatalf("orderPlugins: %v", err)
	}
	var names []string
	for _, p := range ordered {
		names = append(names, p.Name)
	}
	if strings.Join(names, ",") != "a,b,c" {
		t.Errorf("order = %v", names)
	}

	tests := []struct {
		name    string
		plugins []*langmodule.Plugin
		want    string
	}{
		{"cycle", []*langmodule.Plugin{mk("a", "b"), mk("b", "a")}, "cycle: a -> b -> a"},
		{"unknown", []*langmodule.Plugin{mk("a", "zzz")}, "unknown plugin zzz"},
		{"twice", []*langmodule.Plugin{mk("a"), mk("a")}, "declared twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orderPlugins(tt.plugins)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

const sampleManifest = `
name = "sample"
friendly_name = "Sample"
version = "1.0"
entry_point = "sample.wasm"

[[exported_methods]]
name = "NameLen"
func_name = "sample.Demo.Sample.NameLen"
return = "int32"

[[exported_methods]]
name = "Handle"
func_name = "sample.Demo.Sample.Handle"
return = "int32"
params = [{ type = "int32" }]
`

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", []byte(`compiler = "interpreter"`))
	writeFile(t, dir, "sample.toml", []byte(sampleManifest))
	writeFile(t, dir, "sample.wasm", testbed.BarePluginGuest(false))

	var out bytes.Buffer
	s, err := openSession(ctx, dir, zap.NewNop(), &out)
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.close(ctx)

	if strings.Join(s.names, ",") != "sample.Handle,sample.NameLen" {
		t.Errorf("names = %v", s.names)
	}

	tests := []struct {
		method string
		args   []string
		want   string
	}{
		{"sample.NameLen", nil, "6"},
		{"sample.Handle", []string{"41"}, "42"},
	}
	for _, tt := range tests {
		got, err := s.call(tt.method, tt.args)
		if err != nil {
			t.Errorf("%s: %v", tt.method, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.method, got, tt.want)
		}
	}
	if _, err := s.call("sample.Nope", nil); err == nil {
		t.Error("unknown method accepted")
	}
}

func TestSession_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.toml", []byte(`compiler = "interpreter"`))
	writeFile(t, dir, "sample.toml", []byte(strings.Replace(sampleManifest, "Sample.NameLen", "Sample.Nope", 1)))
	writeFile(t, dir, "sample.wasm", testbed.BarePluginGuest(false))

	_, err := openSession(context.Background(), dir, zap.NewNop(), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "load plugin sample") {
		t.Errorf("err = %v", err)
	}
}

func TestPackInspect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wasm")
	out := filepath.Join(dir, "out.wasm")
	meta := filepath.Join(dir, "classes.toml")
	writeFile(t, dir, "in.wasm", testbed.MathGuest())
	writeFile(t, dir, "classes.toml", []byte(`
[[classes]]
namespace = "Game"
name = "Main"
base = "Wand.Plugin"

[[classes.methods]]
name = "Tick"
export = "Game.Main.Tick"
return = "int"
params = [{ type = "int" }, { type = "string[]", ref = true }]
subscribe = "Host.Events.Bus.Subscribe"
`))

	if err := pack(in, meta, out); err != nil {
		t.Fatalf("pack: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	payload, ok, err := wasm.CustomSection(data, engine.MetadataSection)
	if err != nil || !ok {
		t.Fatalf("section: %v %v", ok, err)
	}
	decoded, err := engine.DecodeMetadata(payload)
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if len(decoded.Classes) != 1 || decoded.Classes[0].FullName() != "Game.Main" {
		t.Fatalf("classes = %+v", decoded.Classes)
	}

	var buf bytes.Buffer
	if err := inspect(&buf, out); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{
		"Game.Main : Wand.Plugin",
		"Tick: func(p0: s32, p1: ref list<string>) -> s32 [subscribe Host.Events.Bus.Subscribe]",
	} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("inspect output missing %q:\n%s", want, buf.String())
		}
	}

	writeFile(t, dir, "bad.toml", []byte("[[classes]]\nnmae = \"x\"\n"))
	if err := pack(in, filepath.Join(dir, "bad.toml"), out); err == nil {
		t.Error("unknown metadata key accepted")
	}
}

func TestLogBuffer(t *testing.T) {
	var b logBuffer
	for i := 0; i < logLines+3; i++ {
		_, _ = b.Write([]byte("line\n"))
	}
	_, _ = b.Write([]byte("a\nb\n"))
	lines := b.tail()
	if len(lines) != logLines || lines[logLines-1] != "b" || lines[logLines-2] != "a" {
		t.Errorf("tail = %q", lines)
	}
}
