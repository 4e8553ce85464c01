// Package frame implements the swapchain lifecycle and the per-frame
// synchronization state machine: F frames in flight, a per-image fence map,
// recreation of swapchain-dependent state on resize, and baking of a
// replayable command recording into one command buffer per framebuffer.
//
// The package does not talk to Vulkan directly. A Device, Swapchain, Fence and
// Semaphore are supplied by the caller (the root package provides Vulkan-backed
// implementations) which keeps the scheduling logic testable without a GPU.
package frame

import (
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

// WaitForever disables the timeout on fence waits and image acquisition.
const WaitForever = time.Duration(math.MaxInt64)

var (
	// ErrOutOfDate is returned by Acquire or Present when the surface no longer
	// matches the swapchain.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal is returned by Acquire or Present when the swapchain can
	// still be used but no longer matches the surface exactly.
	ErrSuboptimal = errors.New("swapchain suboptimal")
	// ErrTimeout is returned when a fence wait or acquisition times out.
	ErrTimeout = errors.New("timed out")
	// ErrDestroyed is returned when the scheduler is used after Destroy.
	ErrDestroyed = errors.New("scheduler destroyed")
)

// IsStale reports whether err means the swapchain must be recreated.
func IsStale(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}

// Extent is a width by height size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether either dimension is zero, as happens when a window
// is minimized.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// Semaphore orders work between GPU queues.
type Semaphore interface {
	Destroy()
}

// Fence signals the CPU that submitted GPU work has finished.
type Fence interface {
	// Wait blocks until the fence is signaled or the timeout expires, in which
	// case it returns ErrTimeout.
	Wait(timeout time.Duration) error
	// Reset returns the fence to the unsignaled state.
	Reset() error
	Destroy()
}

// CommandBuffer is a baked command buffer. It is opaque to the scheduler and
// only handed back to the Device that produced it.
type CommandBuffer interface{}

// Swapchain is one generation of swapchain-dependent state: the swapchain
// itself plus its images, views, framebuffers and render pass.
type Swapchain interface {
	Extent() Extent
	ImageCount() int
	// Acquire returns the index of the next presentable image and arranges for
	// signal to be signaled once the image is ready.
	Acquire(timeout time.Duration, signal Semaphore) (uint32, error)
	// Present queues image for presentation once wait is signaled.
	Present(image uint32, wait Semaphore) error
	// Destroy frees framebuffers, render pass, image views and the swapchain
	// in that order.
	Destroy()
}

// Device is the subset of a logical device the scheduler drives.
type Device interface {
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	// BuildSwapchain negotiates and creates a new swapchain generation. old is
	// nil on the first build and is otherwise handed to the driver so it can
	// recycle resources.
	BuildSwapchain(old Swapchain) (Swapchain, error)
	// Bake replays rec into one command buffer per framebuffer of sc.
	Bake(sc Swapchain, rec *Recording) ([]CommandBuffer, error)
	FreeCommandBuffers(cmds []CommandBuffer)
	// Submit queues cmd on the graphics queue, waiting on wait at the color
	// attachment output stage and signaling signal and fence when done.
	Submit(cmd CommandBuffer, wait, signal Semaphore, fence Fence) error
	WaitIdle() error
}

// Window is the windowing collaborator consulted during recreation.
type Window interface {
	FramebufferSize() Extent
	// WaitEvents blocks until at least one window event has been processed.
	WaitEvents()
}
