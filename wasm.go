package wasmbridge

// Memory is the linear memory of a script image. Multi-byte values are little
// endian. Strings and arrays are read and written as raw byte ranges; by-ref
// cells are 8 bytes wide.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer reports the current size of a Memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator creates managed objects in script memory. Free is only called for
// objects the bridge allocated itself.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
