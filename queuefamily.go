package hephaestus

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

func (ql QueueFamilySlice) FilterGraphics() QueueFamilySlice {
	return ql.Filter((*QueueFamily).IsGraphics)
}

func (ql QueueFamilySlice) FilterPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.SupportsPresent(surface)
	})
}

// Capabilities reduces the families to what queue selection needs. present
// reports presentation support for a family index.
func (ql QueueFamilySlice) Capabilities(present func(index int) bool) []QueueCapability {
	ret := make([]QueueCapability, len(ql))
	for i, q := range ql {
		ret[i] = QueueCapability{Graphics: q.IsGraphics(), Present: present(q.Index)}
	}
	return ret
}

type QueueFamily struct {
	Index                   int
	PhysicalDevice          *PhysicalDevice
	VKQueueFamilyProperties vk.QueueFamilyProperties
}

func (q *QueueFamily) has(bit vk.QueueFlagBits) bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(bit) != 0
}

func (q *QueueFamily) IsCompute() bool {
	return q.has(vk.QueueComputeBit)
}

func (q *QueueFamily) IsGraphics() bool {
	return q.has(vk.QueueGraphicsBit)
}

func (q *QueueFamily) IsTransfer() bool {
	return q.has(vk.QueueTransferBit)
}

func (q *QueueFamily) SupportsPresent(surface vk.Surface) bool {
	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(q.PhysicalDevice.VKPhysicalDevice, uint32(q.Index), surface, &supported)
	return supported == vk.True
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Compute: %v Graphics: %v Transfer: %v Count: %d }",
		q.Index, q.IsCompute(), q.IsGraphics(), q.IsTransfer(), q.VKQueueFamilyProperties.QueueCount)
}
