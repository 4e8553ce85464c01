package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"
)

// CreateFramebuffer creates a single-layer framebuffer for rp with view as
// its only attachment.
func (d *Device) CreateFramebuffer(rp vk.RenderPass, view *ImageView, extent vk.Extent2D) (vk.Framebuffer, error) {
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{view.VKImageView},
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := CheckResult(vk.CreateFramebuffer(d.VKDevice, &info, nil, &fb), "vkCreateFramebuffer"); err != nil {
		return vk.Framebuffer(vk.NullHandle), err
	}
	return fb, nil
}
