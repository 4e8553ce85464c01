package hephaestus

import (
	"github.com/docker/go-units"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"
)

// bufferPool is one device memory block that buffers are sub-allocated from.
// Vulkan limits the number of live allocations, so buffers share blocks of a
// configured size, one pool per memory type until a block fills up.
type bufferPool struct {
	memory    *DeviceMemory
	allocator *LinearAllocator
}

func newBufferPool(d *Device, size uint64, typeIndex uint32) (*bufferPool, error) {
	mem, err := d.Allocate(size, 1<<typeIndex, 0)
	if err != nil {
		return nil, err
	}
	p := &bufferPool{memory: mem, allocator: NewLinearAllocator(size)}
	logger().Debug("allocated buffer pool", slog.Any("pool", p))
	return p, nil
}

func (p *bufferPool) allocate(mr vk.MemoryRequirements) *Allocation {
	return p.allocator.Allocate(uint64(mr.Size), uint64(mr.Alignment))
}

func (p *bufferPool) free(a *Allocation) {
	p.allocator.Free(a)
}

func (p *bufferPool) destroy() {
	p.memory.Destroy()
	p.allocator = nil
}

func (p *bufferPool) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("type", int(p.memory.TypeIndex)),
		slog.String("size", units.BytesSize(float64(p.memory.Size))),
		slog.String("used", units.BytesSize(float64(p.allocator.Used()))),
		slog.Int("buffers", p.allocator.Len()),
		slog.Bool("mapped", p.memory.IsMapped()),
	)
}
