package hephaestus

import (
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/ROTARTSI82/Hephaestus/frame"
)

// SwapchainState is one generation of swapchain-dependent state. Images,
// Views and Framebuffers always have the same length.
type SwapchainState struct {
	Device      *Device
	VKSwapchain vk.Swapchain
	VKExtent    vk.Extent2D
	Format      vk.SurfaceFormat
	PresentMode vk.PresentMode

	Images       []vk.Image
	Views        []*ImageView
	Framebuffers []vk.Framebuffer
	RenderPass   vk.RenderPass

	present *Queue
}

var _ frame.Swapchain = (*SwapchainState)(nil)

// SwapchainOptions are the inputs to CreateSwapchainState.
type SwapchainOptions struct {
	Surface  vk.Surface
	Graphics *Queue
	Present  *Queue
	// Framebuffer is the window's framebuffer size, used when the surface
	// leaves the extent up to the application.
	Framebuffer frame.Extent
	// Old is the generation being replaced, or nil.
	Old *SwapchainState
}

// CreateSwapchainState negotiates extent, surface format, present mode and
// image count with the surface and creates the swapchain, one view and one
// framebuffer per image, and a render pass for the chosen format. If anything
// fails the partially built state is destroyed.
func (d *Device) CreateSwapchainState(opts SwapchainOptions) (*SwapchainState, error) {
	phys := d.PhysicalDevice
	caps, err := phys.SurfaceCapabilities(opts.Surface)
	if err != nil {
		return nil, err
	}
	formats, err := phys.SurfaceFormats(opts.Surface)
	if err != nil {
		return nil, err
	}
	modes, err := phys.SurfacePresentModes(opts.Surface)
	if err != nil {
		return nil, err
	}

	s := &SwapchainState{
		Device:      d,
		VKExtent:    ChooseExtent(caps, opts.Framebuffer),
		PresentMode: ChoosePresentMode(modes),
		present:     opts.Present,
	}
	if s.Format, err = ChooseSurfaceFormat(formats); err != nil {
		return nil, err
	}
	imageCount := ChooseImageCount(caps)

	logger().Debug("negotiated swapchain",
		slog.String("extent", s.Extent().String()),
		slog.Int("format", int(s.Format.Format)),
		slog.Int("colorSpace", int(s.Format.ColorSpace)),
		slog.Int("presentMode", int(s.PresentMode)),
		slog.Int("minImages", int(imageCount)))

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          opts.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      s.Format.Format,
		ImageColorSpace:  s.Format.ColorSpace,
		ImageExtent:      s.VKExtent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      s.PresentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if opts.Old != nil {
		info.OldSwapchain = opts.Old.VKSwapchain
	}
	if opts.Graphics.Family != opts.Present.Family {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{uint32(opts.Graphics.Family), uint32(opts.Present.Family)}
	} else {
		info.ImageSharingMode = vk.SharingModeExclusive
	}

	if err := CheckResult(vk.CreateSwapchain(d.VKDevice, &info, nil, &s.VKSwapchain), "vkCreateSwapchainKHR"); err != nil {
		return nil, errors.Wrap(err, "creating swapchain")
	}
	if err := s.createImageResources(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *SwapchainState) createImageResources() error {
	d := s.Device
	var count uint32
	if err := CheckResult(vk.GetSwapchainImages(d.VKDevice, s.VKSwapchain, &count, nil), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	images := make([]vk.Image, count)
	if err := CheckResult(vk.GetSwapchainImages(d.VKDevice, s.VKSwapchain, &count, images), "vkGetSwapchainImagesKHR"); err != nil {
		return err
	}
	s.Images = images[:count]

	for _, img := range s.Images {
		view, err := d.CreateImageView(img, s.Format.Format)
		if err != nil {
			return errors.Wrap(err, "creating swapchain image view")
		}
		s.Views = append(s.Views, view)
	}

	rp, err := d.CreateRenderPass(s.Format.Format)
	if err != nil {
		return errors.Wrap(err, "creating render pass")
	}
	s.RenderPass = rp

	for _, view := range s.Views {
		fb, err := d.CreateFramebuffer(s.RenderPass, view, s.VKExtent)
		if err != nil {
			return errors.Wrap(err, "creating framebuffer")
		}
		s.Framebuffers = append(s.Framebuffers, fb)
	}
	return nil
}

func (s *SwapchainState) Extent() frame.Extent {
	return frame.Extent{Width: s.VKExtent.Width, Height: s.VKExtent.Height}
}

func (s *SwapchainState) ImageCount() int {
	return len(s.Images)
}

func semaphoreOf(s frame.Semaphore) *Semaphore {
	if s == nil {
		return nil
	}
	return s.(*Semaphore)
}

// Acquire returns the next presentable image, signaling signal when it is
// ready. A stale swapchain is reported as frame.ErrOutOfDate or
// frame.ErrSuboptimal.
func (s *SwapchainState) Acquire(timeout time.Duration, signal frame.Semaphore) (uint32, error) {
	sem := vk.NullSemaphore
	if ss := semaphoreOf(signal); ss != nil {
		sem = ss.VKSemaphore
	}
	var idx uint32
	res := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, timeoutNanos(timeout), sem, vk.NullFence, &idx)
	return idx, CheckResult(res, "vkAcquireNextImageKHR")
}

func (s *SwapchainState) Present(image uint32, wait frame.Semaphore) error {
	return s.present.Present(s.VKSwapchain, image, semaphoreOf(wait))
}

// Destroy frees framebuffers, the render pass, image views and finally the
// swapchain. Images are owned by the swapchain.
func (s *SwapchainState) Destroy() {
	d := s.Device.VKDevice
	for _, fb := range s.Framebuffers {
		vk.DestroyFramebuffer(d, fb, nil)
	}
	s.Framebuffers = nil
	if s.RenderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(d, s.RenderPass, nil)
		s.RenderPass = vk.NullRenderPass
	}
	for _, v := range s.Views {
		v.Destroy()
	}
	s.Views = nil
	s.Images = nil
	if s.VKSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(d, s.VKSwapchain, nil)
		s.VKSwapchain = vk.NullSwapchain
	}
}
