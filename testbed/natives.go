package testbed

import (
	"fmt"
	"strings"
)

// FailMessage is the panic value of the Fail native.
const FailMessage = "native failure"

// HostNatives implements NativeDecls in Go, keyed by fully qualified name.
// Subscribe hands every callback address it receives to onSubscribe, which
// may be nil.
func HostNatives(onSubscribe func(cb uintptr)) map[string]any {
	return map[string]any{
		UpperName: func(s string) string {
			return strings.ToUpper(s)
		},
		FillName: func(x int32, s *string, a *[]int32) {
			*s = fmt.Sprintf("%s-%d", *s, x)
			*a = append(*a, x)
		},
		IncName: func(v *int32) {
			*v++
		},
		TotalName: func(a []int32) int32 {
			var sum int32
			for _, v := range a {
				sum += v
			}
			return sum
		},
		MixName: func(a int64, b float32, c float64, d uint8) float64 {
			return float64(a) + float64(b) + c + float64(d)
		},
		FailName: func() int32 {
			panic(FailMessage)
		},
		SubscribeName: func(cb uintptr) {
			if onSubscribe != nil {
				onSubscribe(cb)
			}
		},
	}
}
