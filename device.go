package hephaestus

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Device is a logical device.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device

	queues queueSet
}

// queueSet holds one Queue per family so every caller of GetQueue shares the
// same submission lock.
type queueSet struct {
	mu     sync.Mutex
	byFam  map[int]*Queue
	family []int
}

func (s *queueSet) get(family int, create func() *Queue) *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.byFam[family]; ok {
		return q
	}
	if s.byFam == nil {
		s.byFam = make(map[int]*Queue)
	}
	q := create()
	s.byFam[family] = q
	s.family = append(s.family, family)
	return q
}

// lockAll locks every queue in the order they were first requested and
// returns the matching unlock.
func (s *queueSet) lockAll() (unlock func()) {
	s.mu.Lock()
	qs := make([]*Queue, len(s.family))
	for i, f := range s.family {
		qs[i] = s.byFam[f]
	}
	s.mu.Unlock()

	for _, q := range qs {
		q.mu.Lock()
	}
	return func() {
		for i := len(qs) - 1; i >= 0; i-- {
			qs[i].mu.Unlock()
		}
	}
}

func (d *Device) Destroy() {
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

// WaitIdle blocks until all queues of the device are idle. Submissions to
// queues obtained from GetQueue wait until it returns.
func (d *Device) WaitIdle() error {
	unlock := d.queues.lockAll()
	defer unlock()
	return CheckResult(vk.DeviceWaitIdle(d.VKDevice), "vkDeviceWaitIdle")
}

// GetQueue returns queue 0 of the given family. Repeated calls for a family
// return the same Queue.
func (d *Device) GetQueue(family int) *Queue {
	return d.queues.get(family, func() *Queue {
		var vkq vk.Queue
		vk.GetDeviceQueue(d.VKDevice, uint32(family), 0, &vkq)
		return &Queue{Device: d, Family: family, VKQueue: vkq}
	})
}

// Allocate allocates sizeInBytes of device memory of the first type allowed
// by memoryTypeBits that has memoryProperties.
func (d *Device) Allocate(sizeInBytes uint64, memoryTypeBits uint32, memoryProperties vk.MemoryPropertyFlags) (*DeviceMemory, error) {
	typeIndex, err := d.PhysicalDevice.FindMemoryType(memoryTypeBits, memoryProperties)
	if err != nil {
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(sizeInBytes),
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := CheckResult(vk.AllocateMemory(d.VKDevice, &allocateInfo, nil, &mem), "vkAllocateMemory"); err != nil {
		return nil, errors.Wrapf(err, "allocating %d bytes", sizeInBytes)
	}

	return &DeviceMemory{
		Device:         d,
		VKDeviceMemory: mem,
		Size:           sizeInBytes,
		TypeIndex:      typeIndex,
		Properties:     d.PhysicalDevice.MemoryTypes()[typeIndex].PropertyFlags,
	}, nil
}
