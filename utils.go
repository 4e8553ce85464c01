package hephaestus

import (
	"unsafe"
)

const end = "\x00"

// ToBytes views lenInBytes bytes starting at ptr as a byte slice. It is used
// to copy into mapped device memory.
func ToBytes(ptr unsafe.Pointer, lenInBytes int) []byte {
	if ptr == nil || lenInBytes == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), lenInBytes)
}

// safeString null-terminates s for the C side of the bindings.
func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != end[0] {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	ret := make([]string, len(list))
	for i := range list {
		ret[i] = safeString(list[i])
	}
	return ret
}

// sliceUint32 reinterprets SPIR-V bytecode as words. len(data) must be a
// multiple of four.
func sliceUint32(data []byte) []uint32 {
	if len(data) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

// setDuring sets *dst to v and runs fn, which may depend on the new value. If
// fn fails *dst is restored.
func setDuring[T any](dst *T, v T, fn func() error) error {
	prev := *dst
	*dst = v
	if err := fn(); err != nil {
		*dst = prev
		return err
	}
	return nil
}
