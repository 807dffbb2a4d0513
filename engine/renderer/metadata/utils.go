package metadata

import (
	"hash/fnv"
	"unsafe"
)

func GetAligned(operand, granularity uint64) uint64 {
	val := (operand + (granularity - 1)) &^ (granularity - 1)
	return val
}

// HashName returns the FNV-1a 64 bit hash of name.
func HashName(name string) uint64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(name))
	return hasher.Sum64()
}

// SliceToBytes returns a byte view of the records of data. The view shares
// memory with data.
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero)) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), size)
}

// StructToBytes returns a byte view of the struct pointed to by v.
func StructToBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}

// SizeOf returns the size in bytes of one T.
func SizeOf[T any]() uint32 {
	var zero T
	return uint32(unsafe.Sizeof(zero))
}
