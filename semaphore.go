package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/ROTARTSI82/Hephaestus/frame"
)

// Semaphore implements frame.Semaphore.
type Semaphore struct {
	Device      *Device
	VKSemaphore vk.Semaphore
}

var _ frame.Semaphore = (*Semaphore)(nil)

func (d *Device) CreateSemaphore() (*Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sema vk.Semaphore
	if err := CheckResult(vk.CreateSemaphore(d.VKDevice, &info, nil, &sema), "vkCreateSemaphore"); err != nil {
		return nil, err
	}
	return &Semaphore{Device: d, VKSemaphore: sema}, nil
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.Device.VKDevice, s.VKSemaphore, nil)
}
