package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-bridge/signature"
)

type refArg struct {
	ptr   reflect.Value
	index int
}

// parseArgs converts text arguments to the native values of desc.
// By-reference parameters are passed as fresh pointers and returned in refs.
func parseArgs(desc *signature.Descriptor, raw []string) (args []any, refs []refArg, err error) {
	if len(raw) != desc.NumParams() {
		return nil, nil, fmt.Errorf("%s takes %d arguments, %d given", desc, desc.NumParams(), len(raw))
	}
	args = make([]any, len(raw))
	for i, p := range desc.Params() {
		v, err := parseValue(p.Type, raw[i])
		if err != nil {
			return nil, nil, fmt.Errorf("arg %d: %w", i, err)
		}
		if !p.Ref {
			args[i] = v.Interface()
			continue
		}
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		args[i] = ptr.Interface()
		refs = append(refs, refArg{ptr: ptr, index: i})
	}
	return args, refs, nil
}

// parseValue parses s as a value of t. Array elements are comma separated.
func parseValue(t signature.Tag, s string) (reflect.Value, error) {
	if t.IsArray() {
		elem := t.Elem()
		out := reflect.MakeSlice(t.NativeType(), 0, 0)
		if strings.TrimSpace(s) == "" {
			return out, nil
		}
		for _, part := range strings.Split(s, ",") {
			if elem != signature.String {
				part = strings.TrimSpace(part)
			}
			v, err := parseValue(elem, part)
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	}

	nt := t.NativeType()
	if nt == nil {
		return reflect.Value{}, fmt.Errorf("cannot pass %s", t)
	}
	v := reflect.New(nt).Elem()
	switch t {
	case signature.String:
		v.SetString(s)
	case signature.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetBool(b)
	case signature.Int8, signature.Int16, signature.Int32, signature.Int64:
		n, err := strconv.ParseInt(s, 0, nt.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(n)
	case signature.Uint8, signature.Uint16, signature.Uint32, signature.Uint64,
		signature.Pointer, signature.Function:
		n, err := strconv.ParseUint(s, 0, nt.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetUint(n)
	case signature.Float, signature.Double:
		f, err := strconv.ParseFloat(s, nt.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetFloat(f)
	default:
		return reflect.Value{}, fmt.Errorf("cannot pass %s", t)
	}
	return v, nil
}

func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return "<nil>"
	}
	switch v.Kind() {
	case reflect.String:
		return strconv.Quote(v.String())
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = formatValue(v.Index(i))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Uintptr:
		return fmt.Sprintf("%#x", v.Uint())
	}
	return fmt.Sprint(v.Interface())
}
