package hephaestus

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slices"
)

// SwapchainExtension must be supported by any device that presents.
const SwapchainExtension = "VK_KHR_swapchain"

// PhysicalDevice is a GPU reported by the instance. Properties, features and
// memory properties are queried once on enumeration.
type PhysicalDevice struct {
	// Index is the position in enumeration order.
	Index      int
	DeviceName string

	VKPhysicalDevice                 vk.PhysicalDevice
	VKPhysicalDeviceProperties       vk.PhysicalDeviceProperties
	VKPhysicalDeviceFeatures         vk.PhysicalDeviceFeatures
	VKPhysicalDeviceMemoryProperties vk.PhysicalDeviceMemoryProperties
}

func newPhysicalDevice(device vk.PhysicalDevice, index int) *PhysicalDevice {
	p := &PhysicalDevice{Index: index, VKPhysicalDevice: device}

	vk.GetPhysicalDeviceProperties(device, &p.VKPhysicalDeviceProperties)
	p.VKPhysicalDeviceProperties.Deref()
	p.VKPhysicalDeviceProperties.Limits.Deref()
	p.DeviceName = vk.ToString(p.VKPhysicalDeviceProperties.DeviceName[:])

	vk.GetPhysicalDeviceFeatures(device, &p.VKPhysicalDeviceFeatures)
	p.VKPhysicalDeviceFeatures.Deref()

	vk.GetPhysicalDeviceMemoryProperties(device, &p.VKPhysicalDeviceMemoryProperties)
	p.VKPhysicalDeviceMemoryProperties.Deref()
	return p
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

// Limits returns the device limits.
func (p *PhysicalDevice) Limits() vk.PhysicalDeviceLimits {
	return p.VKPhysicalDeviceProperties.Limits
}

// IsDiscrete reports whether the device is a discrete GPU.
func (p *PhysicalDevice) IsDiscrete() bool {
	return p.VKPhysicalDeviceProperties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu
}

func (p *PhysicalDevice) SurfacePresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	if err := CheckResult(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := CheckResult(vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, modes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return nil, err
	}
	return modes[:count], nil
}

func (p *PhysicalDevice) SurfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	if err := CheckResult(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := CheckResult(vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return nil, err
	}
	formats = formats[:count]
	for i := range formats {
		formats[i].Deref()
	}
	return formats, nil
}

func (p *PhysicalDevice) SurfaceCapabilities(surface vk.Surface) (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := CheckResult(vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return caps, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, nil
}

// QueueFamilies returns the device's queue families in index order.
func (p *PhysicalDevice) QueueFamilies() QueueFamilySlice {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, nil)
	if count == 0 {
		return nil
	}
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, props)

	ret := make(QueueFamilySlice, count)
	for i, prop := range props[:count] {
		prop.Deref()
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, VKQueueFamilyProperties: prop}
	}
	return ret
}

// SupportedExtensions returns the names of the device extensions.
func (p *PhysicalDevice) SupportedExtensions() ([]string, error) {
	var count uint32
	if err := CheckResult(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := CheckResult(vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, props), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range props[:count] {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// SupportsExtensions reports whether every named device extension is
// supported.
func (p *PhysicalDevice) SupportsExtensions(names ...string) bool {
	supported, err := p.SupportedExtensions()
	if err != nil {
		return false
	}
	for _, n := range names {
		if !slices.Contains(supported, n) {
			return false
		}
	}
	return true
}

// MemoryTypes returns the memory types of the device.
func (p *PhysicalDevice) MemoryTypes() []vk.MemoryType {
	mp := p.VKPhysicalDeviceMemoryProperties
	ret := make([]vk.MemoryType, mp.MemoryTypeCount)
	for i := range ret {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		ret[i] = mt
	}
	return ret
}

// MemoryHeaps returns the memory heaps of the device.
func (p *PhysicalDevice) MemoryHeaps() []vk.MemoryHeap {
	mp := p.VKPhysicalDeviceMemoryProperties
	ret := make([]vk.MemoryHeap, mp.MemoryHeapCount)
	for i := range ret {
		h := mp.MemoryHeaps[i]
		h.Deref()
		ret[i] = h
	}
	return ret
}

// FindMemoryType returns the first memory type allowed by memoryTypeBits that
// has all of properties.
func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	idx, ok := findMemoryType(p.MemoryTypes(), memoryTypeBits, properties)
	if !ok {
		return 0, errors.Newf("no memory type in %#b with properties %#x", memoryTypeBits, uint32(properties))
	}
	return idx, nil
}

func findMemoryType(types []vk.MemoryType, memoryTypeBits uint32, properties vk.MemoryPropertyFlags) (uint32, bool) {
	for i, mt := range types {
		if memoryTypeBits&(1<<uint(i)) != 0 && mt.PropertyFlags&properties == properties {
			return uint32(i), true
		}
	}
	return 0, false
}

// CreateLogicalDevice creates a device with one queue at priority 1.0 for
// each distinct family index, enabling the given device extensions.
func (p *PhysicalDevice) CreateLogicalDevice(families []int, extensions []string) (*Device, error) {
	unique := uniqueFamilies(families)
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(unique))
	for i, f := range unique {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(f),
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	exts := safeStrings(extensions)
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{p.VKPhysicalDeviceFeatures},
	}

	var ldevice vk.Device
	if err := CheckResult(vk.CreateDevice(p.VKPhysicalDevice, &createInfo, nil, &ldevice), "vkCreateDevice"); err != nil {
		return nil, errors.Wrapf(err, "creating logical device on %s", p.DeviceName)
	}
	return &Device{PhysicalDevice: p, VKDevice: ldevice}, nil
}

func uniqueFamilies(families []int) []int {
	ret := make([]int, 0, len(families))
	for _, f := range families {
		if !slices.Contains(ret, f) {
			ret = append(ret, f)
		}
	}
	return ret
}
