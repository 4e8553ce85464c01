package hephaestus

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/ROTARTSI82/Hephaestus/frame"
)

// Fence implements frame.Fence.
type Fence struct {
	Device  *Device
	VKFence vk.Fence
}

var _ frame.Fence = (*Fence)(nil)

func (d *Device) CreateFence(signaled bool) (*Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := CheckResult(vk.CreateFence(d.VKDevice, &info, nil, &fence), "vkCreateFence"); err != nil {
		return nil, err
	}
	return &Fence{Device: d, VKFence: fence}, nil
}

// timeoutNanos converts a wait timeout for Vulkan. frame.WaitForever and
// negative durations wait indefinitely.
func timeoutNanos(d time.Duration) uint64 {
	if d < 0 || d >= frame.WaitForever {
		return vk.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

// Wait blocks until the fence is signaled. It returns an error wrapping
// frame.ErrTimeout if timeout expires first.
func (f *Fence) Wait(timeout time.Duration) error {
	return CheckResult(vk.WaitForFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}, vk.True, timeoutNanos(timeout)), "vkWaitForFences")
}

func (f *Fence) Reset() error {
	return CheckResult(vk.ResetFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}), "vkResetFences")
}

// Signaled reports whether the fence is signaled without blocking.
func (f *Fence) Signaled() bool {
	return vk.GetFenceStatus(f.Device.VKDevice, f.VKFence) == vk.Success
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.Device.VKDevice, f.VKFence, nil)
}
