package signature

import (
	"errors"
	"reflect"
	"testing"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
)

func TestNeedsConversion_MatchesRange(t *testing.T) {
	for tag := Invalid; tag < tagCount; tag++ {
		inRange := tag >= String && tag <= ArrayString
		if got := tag.NeedsConversion(); got != inRange {
			t.Errorf("%s.NeedsConversion() = %v, range check says %v", tag, got, inRange)
		}
	}
}

func TestTag_Partition(t *testing.T) {
	for _, tag := range Tags() {
		kinds := 0
		if tag.IsScalar() {
			kinds++
		}
		if tag == String || tag.IsArray() {
			kinds++
		}
		if tag == Void {
			kinds++
		}
		if kinds != 1 {
			t.Errorf("%s belongs to %d classes", tag, kinds)
		}
	}
}

func TestTag_ElemArrayOf(t *testing.T) {
	for _, tag := range Tags() {
		if !tag.IsArray() {
			continue
		}
		elem := tag.Elem()
		if elem == Invalid {
			t.Fatalf("%s has no element tag", tag)
		}
		if ArrayOf(elem) != tag {
			t.Errorf("ArrayOf(%s) = %s, want %s", elem, ArrayOf(elem), tag)
		}
	}
	if ArrayOf(Function) != Invalid {
		t.Error("function arrays are not supported")
	}
}

func TestTag_TextRoundTrip(t *testing.T) {
	for _, tag := range Tags() {
		text, err := tag.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%s): %v", tag, err)
		}
		var back Tag
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != tag {
			t.Errorf("round trip %s -> %q -> %s", tag, text, back)
		}
	}
	var bad Tag
	if err := bad.UnmarshalText([]byte("char16")); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestTag_NativeType(t *testing.T) {
	tests := []struct {
		tag  Tag
		want reflect.Type
	}{
		{Bool, reflect.TypeFor[bool]()},
		{Int64, reflect.TypeFor[int64]()},
		{Pointer, reflect.TypeFor[uintptr]()},
		{Function, reflect.TypeFor[uintptr]()},
		{Float, reflect.TypeFor[float32]()},
		{String, reflect.TypeFor[string]()},
		{ArrayInt32, reflect.TypeFor[[]int32]()},
		{ArrayString, reflect.TypeFor[[]string]()},
		{Void, nil},
	}
	for _, tt := range tests {
		if got := tt.tag.NativeType(); got != tt.want {
			t.Errorf("%s.NativeType() = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestNew_RejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		ret    Tag
		params []Param
	}{
		{"void param", Int32, []Param{P(Void)}},
		{"invalid param", Int32, []Param{P(Int32), P(Invalid)}},
		{"invalid return", Invalid, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.ret, CallConvDefault, tt.params...)
			if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseValidate, Kind: bridgeerrors.KindUnsupported}) {
				t.Fatalf("expected unsupported error, got %v", err)
			}
		})
	}
}

func TestDescriptor_Immutable(t *testing.T) {
	params := []Param{P(Int32), R(String)}
	d, err := New(ArrayInt32, CallConvCdecl, params...)
	if err != nil {
		t.Fatal(err)
	}
	params[0].Type = Double
	got := d.Params()
	got[1].Type = Bool

	if d.Param(0).Type != Int32 || d.Param(1).Type != String {
		t.Errorf("descriptor changed through caller slices: %s", d)
	}
	if !d.HasComplexReturn() || !d.HasRefs() {
		t.Errorf("HasComplexReturn=%v HasRefs=%v", d.HasComplexReturn(), d.HasRefs())
	}
	if s := d.String(); s != "(int32, ref string) -> int32[] [cdecl]" {
		t.Errorf("String() = %q", s)
	}
}

func TestSplitFuncName(t *testing.T) {
	q, err := SplitFuncName("Sample.Demo.Math.Add")
	if err != nil {
		t.Fatal(err)
	}
	if q.Plugin != "Sample" || q.Namespace != "Demo" || q.Class != "Math" || q.Method != "Add" {
		t.Errorf("SplitFuncName = %+v", q)
	}
	if q.ClassMethod() != "Demo.Math::Add" {
		t.Errorf("ClassMethod = %q", q.ClassMethod())
	}

	for _, bad := range []string{"Sample.Math.Add", "A.B.C.D.E", "A..C.D", ""} {
		_, err := SplitFuncName(bad)
		if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseLoad, Kind: bridgeerrors.KindInvalidName}) {
			t.Errorf("SplitFuncName(%q) err = %v", bad, err)
		}
	}
}

func TestSignatureDecl_Build(t *testing.T) {
	decl := SignatureDecl{
		Return: "void",
		Params: []ParamDecl{{
			Type: "function",
			Prototype: &SignatureDecl{
				Return: "int32",
				Params: []ParamDecl{{Type: "string"}, {Type: "int64[]", Ref: true}},
			},
		}},
	}
	d, err := decl.Build()
	if err != nil {
		t.Fatal(err)
	}
	proto := d.Param(0).Prototype
	if proto == nil || proto.NumParams() != 2 || proto.Param(1).Type != ArrayInt64 || !proto.Param(1).Ref {
		t.Fatalf("prototype = %v", proto)
	}

	again, err := Decl(d).Build()
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(again) {
		t.Errorf("Decl round trip: %s != %s", d, again)
	}

	if _, err := (SignatureDecl{Return: "char8"}).Build(); err == nil {
		t.Error("expected unknown return type error")
	}
	if _, err := (SignatureDecl{Return: "void", CallConv: "pascal"}).Build(); err == nil {
		t.Error("expected unknown calling convention error")
	}
}

func TestParseManaged(t *testing.T) {
	tests := []struct {
		name string
		want Tag
	}{
		{"void", Void},
		{"int", Int32},
		{"uintptr", Pointer},
		{"intptr", Pointer},
		{"string", String},
		{"string[]", ArrayString},
		{"double[]", ArrayDouble},
		{"function", Invalid},
		{"object", Invalid},
		{"void[]", Invalid},
	}
	for _, tt := range tests {
		if got := ParseManaged(tt.name); got != tt.want {
			t.Errorf("ParseManaged(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestDescriptor_WIT(t *testing.T) {
	tests := []struct {
		desc *Descriptor
		want string
	}{
		{MustNew(Void), "func()"},
		{MustNew(Int32, P(Int32), P(Int32)), "func(p0: s32, p1: s32) -> s32"},
		{MustNew(Void, R(String), P(ArrayUint8)), "func(p0: ref string, p1: list<u8>)"},
		{MustNew(ArrayString, P(Function), P(Double)), "func(p0: u64, p1: f64) -> list<string>"},
	}
	for _, tt := range tests {
		if got := tt.desc.WIT(); got != tt.want {
			t.Errorf("WIT(%s) = %q, want %q", tt.desc, got, tt.want)
		}
	}
	for _, tag := range Tags() {
		if tag == Void {
			continue
		}
		if tag.WIT() == nil {
			t.Errorf("%s has no WIT type", tag)
		}
	}
}
