package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandBuffer describes a sequence of commands that will be executed upon
// being sent to a device queue. Only the commands the engine records are
// wrapped; use VKCommandBuffer for anything else.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

// Reset this command buffer
func (c *CommandBuffer) Reset() error {
	return CheckResult(vk.ResetCommandBuffer(c.VKCommandBuffer, 0), "vkResetCommandBuffer")
}

// Begin capturing work for this command buffer
func (c *CommandBuffer) Begin() error {
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	return CheckResult(vk.BeginCommandBuffer(c.VKCommandBuffer, &info), "vkBeginCommandBuffer")
}

// BeginOneTime begins capturing work that will be submitted exactly once.
func (c *CommandBuffer) BeginOneTime() error {
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return CheckResult(vk.BeginCommandBuffer(c.VKCommandBuffer, &info), "vkBeginCommandBuffer")
}

// BeginRenderPass starts rp on framebuffer, clearing the single color
// attachment to clear.
func (c *CommandBuffer) BeginRenderPass(rp vk.RenderPass, framebuffer vk.Framebuffer, extent vk.Extent2D, clear [4]float32) {
	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(clear[:])
	vk.CmdBeginRenderPass(c.VKCommandBuffer, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.VKCommandBuffer)
}

// CopyBuffer records a copy of size bytes between two buffers.
func (c *CommandBuffer) CopyBuffer(src, dst vk.Buffer, srcOffset, dstOffset, size uint64) {
	vk.CmdCopyBuffer(c.VKCommandBuffer, src, dst, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}})
}

// End describing work for this command buffer
func (c *CommandBuffer) End() error {
	return CheckResult(vk.EndCommandBuffer(c.VKCommandBuffer), "vkEndCommandBuffer")
}
