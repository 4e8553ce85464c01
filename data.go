package hephaestus

import (
	"unsafe"
)

// VertexSlice is vertex data in the default format.
type VertexSlice []Vertex

// Bytes returns the memory of the slice for upload.
func (v VertexSlice) Bytes() []byte {
	if len(v) == 0 {
		return nil
	}
	return ToBytes(unsafe.Pointer(&v[0]), len(v)*int(unsafe.Sizeof(Vertex{})))
}

type IndexSliceUint16 []uint16

func (i IndexSliceUint16) Bytes() []byte {
	if len(i) == 0 {
		return nil
	}
	return ToBytes(unsafe.Pointer(&i[0]), len(i)*int(unsafe.Sizeof(uint16(1))))
}

func (i IndexSliceUint16) Index32() bool {
	return false
}

type IndexSliceUint32 []uint32

func (i IndexSliceUint32) Bytes() []byte {
	if len(i) == 0 {
		return nil
	}
	return ToBytes(unsafe.Pointer(&i[0]), len(i)*int(unsafe.Sizeof(uint32(1))))
}

func (i IndexSliceUint32) Index32() bool {
	return true
}
