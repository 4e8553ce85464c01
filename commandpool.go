package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"
)

type CommandPool struct {
	Device        *Device
	Family        int
	VKCommandPool vk.CommandPool
}

// CreateCommandPool creates a pool for the given queue family whose buffers
// can be reset individually.
func (d *Device) CreateCommandPool(family int) (*CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(family),
	}
	var pool vk.CommandPool
	if err := CheckResult(vk.CreateCommandPool(d.VKDevice, &info, nil, &pool), "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	return &CommandPool{Device: d, Family: family, VKCommandPool: pool}, nil
}

func (c *CommandPool) Destroy() {
	vk.DestroyCommandPool(c.Device.VKDevice, c.VKCommandPool, nil)
}

// AllocateBuffers allocates count primary command buffers.
func (c *CommandPool) AllocateBuffers(count int) ([]*CommandBuffer, error) {
	if count == 0 {
		return nil, nil
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.VKCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	cmds := make([]vk.CommandBuffer, count)
	if err := CheckResult(vk.AllocateCommandBuffers(c.Device.VKDevice, &info, cmds), "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	ret := make([]*CommandBuffer, count)
	for i := range ret {
		ret[i] = &CommandBuffer{VKCommandBuffer: cmds[i]}
	}
	return ret, nil
}

func (c *CommandPool) AllocateBuffer() (*CommandBuffer, error) {
	ret, err := c.AllocateBuffers(1)
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

func (c *CommandPool) FreeBuffers(bs []*CommandBuffer) {
	if len(bs) == 0 {
		return
	}
	b := make([]vk.CommandBuffer, len(bs))
	for i := range bs {
		b[i] = bs[i].VKCommandBuffer
	}
	vk.FreeCommandBuffers(c.Device.VKDevice, c.VKCommandPool, uint32(len(b)), b)
}

func (c *CommandPool) FreeBuffer(b *CommandBuffer) {
	c.FreeBuffers([]*CommandBuffer{b})
}
