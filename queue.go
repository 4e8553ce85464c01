package hephaestus

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// Queue is a device queue. Submit, SubmitWaitIdle, Present and WaitIdle hold
// the queue's lock, so a Queue may be used from several goroutines.
type Queue struct {
	Device  *Device
	Family  int
	VKQueue vk.Queue

	mu sync.Mutex
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return CheckResult(vk.QueueWaitIdle(q.VKQueue), "vkQueueWaitIdle")
}

// Submit queues cmd. It waits on wait at the color attachment output stage
// and signals signal and fence once the work completes. Any of wait, signal
// and fence may be nil.
func (q *Queue) Submit(cmd *CommandBuffer, wait, signal *Semaphore, fence *Fence) error {
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmd.VKCommandBuffer},
	}
	if wait != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{wait.VKSemaphore}
		info.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if signal != nil {
		info.SignalSemaphoreCount = 1
		info.PSignalSemaphores = []vk.Semaphore{signal.VKSemaphore}
	}
	vkFence := vk.NullFence
	if fence != nil {
		vkFence = fence.VKFence
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return CheckResult(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{info}, vkFence), "vkQueueSubmit")
}

// SubmitWaitIdle submits the buffers and blocks until the queue is idle.
func (q *Queue) SubmitWaitIdle(buffers ...*CommandBuffer) error {
	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(b)),
		PCommandBuffers:    b,
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := CheckResult(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{info}, vk.NullFence), "vkQueueSubmit"); err != nil {
		return err
	}
	return CheckResult(vk.QueueWaitIdle(q.VKQueue), "vkQueueWaitIdle")
}

// Present queues image of swapchain for presentation once wait is signaled.
func (q *Queue) Present(swapchain vk.Swapchain, image uint32, wait *Semaphore) error {
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{swapchain},
		PImageIndices:  []uint32{image},
	}
	if wait != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{wait.VKSemaphore}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return CheckResult(vk.QueuePresent(q.VKQueue, &info), "vkQueuePresentKHR")
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s Family: %d}", q.Device, q.Family)
}
