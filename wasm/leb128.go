package wasm

import (
	"errors"
	"io"
)

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// AppendULEB128 appends v in unsigned LEB128.
func AppendULEB128(b []byte, v uint64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

// AppendSLEB128 appends v in signed LEB128.
func AppendSLEB128(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// ReadULEB128 reads an unsigned LEB128 value of at most 64 bits.
func ReadULEB128(r io.ByteReader) (uint64, error) {
	var (
		result uint64
		shift  uint
	)
	for {
		c, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift == 63 && c > 1 {
			return 0, ErrOverflow
		}
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift > 63 {
			return 0, ErrOverflow
		}
	}
}

func appendName(b []byte, s string) []byte {
	b = AppendULEB128(b, uint64(len(s)))
	return append(b, s...)
}
