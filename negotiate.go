package hephaestus

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/ROTARTSI82/Hephaestus/frame"
)

// ChooseExtent uses the surface's current extent unless it is the
// vk.MaxUint32 sentinel, in which case the framebuffer size is clamped into
// the surface's supported range.
func ChooseExtent(caps vk.SurfaceCapabilities, framebuffer frame.Extent) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return vk.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height}
	}
	return vk.Extent2D{
		Width:  clamp(framebuffer.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(framebuffer.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB with a non-linear sRGB color
// space and otherwise falls back to the first reported format.
func ChooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every
// implementation supports.
func ChoosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	return vk.PresentModeFifo
}

// ChooseImageCount asks for one image more than the minimum, clamped to the
// maximum. A maximum of zero means there is no limit.
func ChooseImageCount(caps vk.SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount != 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}
