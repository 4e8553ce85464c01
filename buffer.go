package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"
)

// Buffer are used to map hunks of data that are then bound to resources used
// by the pipeline and command buffers to render data.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer
	Size     uint64
}

// CreateBuffer creates an exclusive buffer without memory bound to it.
func (d *Device) CreateBuffer(sizeInBytes uint64, usage vk.BufferUsageFlags) (*Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(sizeInBytes),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := CheckResult(vk.CreateBuffer(d.VKDevice, &info, nil, &buffer), "vkCreateBuffer"); err != nil {
		return nil, err
	}
	return &Buffer{Device: d, VKBuffer: buffer, Size: sizeInBytes}, nil
}

func (b *Buffer) MemoryRequirements() vk.MemoryRequirements {
	var mr vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, b.VKBuffer, &mr)
	mr.Deref()
	return mr
}

func (b *Buffer) Bind(memory *DeviceMemory, offset uint64) error {
	return CheckResult(vk.BindBufferMemory(b.Device.VKDevice, b.VKBuffer, memory.VKDeviceMemory, vk.DeviceSize(offset)), "vkBindBufferMemory")
}

func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
	b.VKBuffer = vk.Buffer(vk.NullHandle)
}
