package hephaestus

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DeviceMemory maps to Vulkan DeviceMemory and can either be memory on the
// host or on the device. A block is mapped at most once; Map and Unmap are
// reference counted.
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	Size           uint64
	TypeIndex      uint32
	Properties     vk.MemoryPropertyFlags

	mapCount int
	ptr      unsafe.Pointer
}

// HostVisible reports whether the memory can be mapped.
func (d *DeviceMemory) HostVisible() bool {
	return d.Properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0
}

// HostCoherent reports whether host writes are visible without flushing.
func (d *DeviceMemory) HostCoherent() bool {
	return d.Properties&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0
}

// IsMapped returns true if the device memory is currently mapped
func (d *DeviceMemory) IsMapped() bool {
	return d.mapCount > 0
}

// Map maps the whole block, or returns the existing mapping.
func (d *DeviceMemory) Map() (unsafe.Pointer, error) {
	if !d.HostVisible() {
		return nil, errors.New("memory is not host visible")
	}
	if d.mapCount == 0 {
		var ptr unsafe.Pointer
		if err := CheckResult(vk.MapMemory(d.Device.VKDevice, d.VKDeviceMemory, 0, vk.DeviceSize(d.Size), 0, &ptr), "vkMapMemory"); err != nil {
			return nil, err
		}
		d.ptr = ptr
	}
	d.mapCount++
	return d.ptr, nil
}

// Bytes returns size bytes of the current mapping starting at offset.
func (d *DeviceMemory) Bytes(offset, size uint64) []byte {
	if d.ptr == nil || offset+size > d.Size {
		return nil
	}
	return ToBytes(unsafe.Add(d.ptr, uintptr(offset)), int(size))
}

// Unmap drops one reference to the mapping and unmaps on the last one.
func (d *DeviceMemory) Unmap() {
	if d.mapCount == 0 {
		return
	}
	d.mapCount--
	if d.mapCount == 0 {
		vk.UnmapMemory(d.Device.VKDevice, d.VKDeviceMemory)
		d.ptr = nil
	}
}

func (d *DeviceMemory) mappedRange(offset, size uint64) vk.MappedMemoryRange {
	return vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: d.VKDeviceMemory,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}
}

// Flush makes host writes in the range visible to the device.
func (d *DeviceMemory) Flush(offset, size uint64) error {
	r := d.mappedRange(offset, size)
	return CheckResult(vk.FlushMappedMemoryRanges(d.Device.VKDevice, 1, []vk.MappedMemoryRange{r}), "vkFlushMappedMemoryRanges")
}

// Invalidate makes device writes in the range visible to the host.
func (d *DeviceMemory) Invalidate(offset, size uint64) error {
	r := d.mappedRange(offset, size)
	return CheckResult(vk.InvalidateMappedMemoryRanges(d.Device.VKDevice, 1, []vk.MappedMemoryRange{r}), "vkInvalidateMappedMemoryRanges")
}

// Destroy frees the memory, unmapping it first if needed.
func (d *DeviceMemory) Destroy() {
	if d.mapCount > 0 {
		vk.UnmapMemory(d.Device.VKDevice, d.VKDeviceMemory)
		d.mapCount = 0
		d.ptr = nil
	}
	vk.FreeMemory(d.Device.VKDevice, d.VKDeviceMemory, nil)
}
