package wasm

import (
	"encoding/binary"
	"math"
)

// Opcodes used by Code.
const (
	OpUnreachable   byte = 0x00
	OpNop           byte = 0x01
	OpBlock         byte = 0x02
	OpLoop          byte = 0x03
	OpIf            byte = 0x04
	OpElse          byte = 0x05
	OpEnd           byte = 0x0B
	OpBr            byte = 0x0C
	OpBrIf          byte = 0x0D
	OpReturn        byte = 0x0F
	OpCall          byte = 0x10
	OpDrop          byte = 0x1A
	OpSelect        byte = 0x1B
	OpLocalGet      byte = 0x20
	OpLocalSet      byte = 0x21
	OpLocalTee      byte = 0x22
	OpGlobalGet     byte = 0x23
	OpGlobalSet     byte = 0x24
	OpI32Load       byte = 0x28
	OpI64Load       byte = 0x29
	OpF32Load       byte = 0x2A
	OpF64Load       byte = 0x2B
	OpI32Load8U     byte = 0x2D
	OpI32Store      byte = 0x36
	OpI64Store      byte = 0x37
	OpF32Store      byte = 0x38
	OpF64Store      byte = 0x39
	OpI32Store8     byte = 0x3A
	OpMemorySize    byte = 0x3F
	OpMemoryGrow    byte = 0x40
	OpI32Const      byte = 0x41
	OpI64Const      byte = 0x42
	OpF32Const      byte = 0x43
	OpF64Const      byte = 0x44
	OpI32Eqz        byte = 0x45
	OpI32Eq         byte = 0x46
	OpI32Ne         byte = 0x47
	OpI32LtU        byte = 0x49
	OpI32GtU        byte = 0x4B
	OpI32GeU        byte = 0x4F
	OpI64Eqz        byte = 0x50
	OpI64Eq         byte = 0x51
	OpI32Add        byte = 0x6A
	OpI32Sub        byte = 0x6B
	OpI32Mul        byte = 0x6C
	OpI32And        byte = 0x71
	OpI32Or         byte = 0x72
	OpI32Shl        byte = 0x74
	OpI32ShrU       byte = 0x76
	OpI64Add        byte = 0x7C
	OpI64Sub        byte = 0x7D
	OpI64Mul        byte = 0x7E
	OpF32Add        byte = 0x92
	OpF64Add        byte = 0xA0
	OpF64Mul        byte = 0xA2
	OpI32WrapI64    byte = 0xA7
	OpI64ExtendI32S byte = 0xAC
	OpI64ExtendI32U byte = 0xAD
)

// Code accumulates one function body. Methods return the receiver so
// instructions chain.
type Code struct {
	buf []byte
}

// NewCode starts an empty body.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte { return c.buf }

// Op appends a bare opcode.
func (c *Code) Op(ops ...byte) *Code {
	c.buf = append(c.buf, ops...)
	return c
}

func (c *Code) opIdx(op byte, idx uint32) *Code {
	c.buf = append(c.buf, op)
	c.buf = AppendULEB128(c.buf, uint64(idx))
	return c
}

func (c *Code) memOp(op byte, align, offset uint32) *Code {
	c.buf = append(c.buf, op)
	c.buf = AppendULEB128(c.buf, uint64(align))
	c.buf = AppendULEB128(c.buf, uint64(offset))
	return c
}

func (c *Code) LocalGet(i uint32) *Code  { return c.opIdx(OpLocalGet, i) }
func (c *Code) LocalSet(i uint32) *Code  { return c.opIdx(OpLocalSet, i) }
func (c *Code) LocalTee(i uint32) *Code  { return c.opIdx(OpLocalTee, i) }
func (c *Code) GlobalGet(i uint32) *Code { return c.opIdx(OpGlobalGet, i) }
func (c *Code) GlobalSet(i uint32) *Code { return c.opIdx(OpGlobalSet, i) }
func (c *Code) Call(fn uint32) *Code     { return c.opIdx(OpCall, fn) }
func (c *Code) Br(depth uint32) *Code    { return c.opIdx(OpBr, depth) }
func (c *Code) BrIf(depth uint32) *Code  { return c.opIdx(OpBrIf, depth) }

// Load and store take the alignment exponent and a constant offset.
func (c *Code) I32Load(align, offset uint32) *Code   { return c.memOp(OpI32Load, align, offset) }
func (c *Code) I64Load(align, offset uint32) *Code   { return c.memOp(OpI64Load, align, offset) }
func (c *Code) F32Load(align, offset uint32) *Code   { return c.memOp(OpF32Load, align, offset) }
func (c *Code) F64Load(align, offset uint32) *Code   { return c.memOp(OpF64Load, align, offset) }
func (c *Code) I32Load8U(align, offset uint32) *Code { return c.memOp(OpI32Load8U, align, offset) }
func (c *Code) I32Store(align, offset uint32) *Code  { return c.memOp(OpI32Store, align, offset) }
func (c *Code) I64Store(align, offset uint32) *Code  { return c.memOp(OpI64Store, align, offset) }
func (c *Code) F32Store(align, offset uint32) *Code  { return c.memOp(OpF32Store, align, offset) }
func (c *Code) F64Store(align, offset uint32) *Code  { return c.memOp(OpF64Store, align, offset) }
func (c *Code) I32Store8(align, offset uint32) *Code { return c.memOp(OpI32Store8, align, offset) }

func (c *Code) I32Const(v int32) *Code {
	c.buf = append(c.buf, OpI32Const)
	c.buf = AppendSLEB128(c.buf, int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf = append(c.buf, OpI64Const)
	c.buf = AppendSLEB128(c.buf, v)
	return c
}

func (c *Code) F32Const(v float32) *Code {
	c.buf = append(c.buf, OpF32Const)
	c.buf = binary.LittleEndian.AppendUint32(c.buf, math.Float32bits(v))
	return c
}

func (c *Code) F64Const(v float64) *Code {
	c.buf = append(c.buf, OpF64Const)
	c.buf = binary.LittleEndian.AppendUint64(c.buf, math.Float64bits(v))
	return c
}

// Block, Loop and If open a structured instruction with block type bt.
func (c *Code) Block(bt byte) *Code { return c.Op(OpBlock, bt) }
func (c *Code) Loop(bt byte) *Code  { return c.Op(OpLoop, bt) }
func (c *Code) If(bt byte) *Code    { return c.Op(OpIf, bt) }
func (c *Code) Else() *Code         { return c.Op(OpElse) }
func (c *Code) End() *Code          { return c.Op(OpEnd) }

func (c *Code) Drop() *Code        { return c.Op(OpDrop) }
func (c *Code) Return() *Code      { return c.Op(OpReturn) }
func (c *Code) Unreachable() *Code { return c.Op(OpUnreachable) }
