package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"
)

// Memory property presets.
var (
	MemoryLocal = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	MemoryHost  = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
)

// Buffer usage presets. The non-direct variants can be the destination of a
// staging copy.
var (
	VertexUsage               = vk.BufferUsageFlags(vk.BufferUsageTransferDstBit | vk.BufferUsageVertexBufferBit)
	IndexUsage                = vk.BufferUsageFlags(vk.BufferUsageTransferDstBit | vk.BufferUsageIndexBufferBit)
	VertexDirectUsage         = vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	IndexDirectUsage          = vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	StagingUsage              = vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	VertexAndIndexUsage       = vk.BufferUsageFlags(vk.BufferUsageTransferDstBit | vk.BufferUsageIndexBufferBit | vk.BufferUsageVertexBufferBit)
	VertexAndIndexDirectUsage = vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit | vk.BufferUsageVertexBufferBit)
)

// VertexBuffer is a view of vertex data inside a generic buffer.
type VertexBuffer struct {
	Buffer      BufferID
	VertexCount uint32
	Offset      uint64
}

// IndexBuffer is a view of index data inside a generic buffer, running from
// Offset to the end of the buffer.
type IndexBuffer struct {
	Buffer  BufferID
	Index32 bool
	Offset  uint64
}

// NumIndices returns how many indices fit between Offset and the end of the
// buffer, which must have been created by m.
func (ib IndexBuffer) NumIndices(m *BufferManager) uint32 {
	b, ok := m.Get(ib.Buffer)
	if !ok || ib.Offset >= b.Size {
		return 0
	}
	return numIndices(b.Size-ib.Offset, ib.Index32)
}

func numIndices(bytes uint64, index32 bool) uint32 {
	if index32 {
		return uint32(bytes / 4)
	}
	return uint32(bytes / 2)
}
