package hephaestus

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// ValidationLayer is enabled when App.Validation is set.
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

const debugReportExtension = "VK_EXT_debug_report"

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns a Vulkan compatible version representation
func (v Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// App is used to provide information about this specific application to Vulkan
type App struct {
	Name       string
	EngineName string
	Version    Version
	// APIVersion is the minimum Vulkan API version. It defaults to 1.1.
	APIVersion Version

	// Validation enables the Khronos validation layer and routes its reports
	// through the package logger.
	Validation bool

	// Extensions and Layers are requested in addition to what the window
	// system requires. Unsupported ones are dropped with a warning.
	Extensions []string
	Layers     []string
}

// SupportedLayers returns the names of the instance layers the loader offers.
func SupportedLayers() ([]string, error) {
	var count uint32
	if err := CheckResult(vk.EnumerateInstanceLayerProperties(&count, nil), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if err := CheckResult(vk.EnumerateInstanceLayerProperties(&count, props), "vkEnumerateInstanceLayerProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, p := range props[:count] {
		p.Deref()
		names = append(names, vk.ToString(p.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns the names of the instance extensions the loader
// offers.
func SupportedExtensions() ([]string, error) {
	var count uint32
	if err := CheckResult(vk.EnumerateInstanceExtensionProperties("", &count, nil), "vkEnumerateInstanceExtensionProperties"); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := CheckResult(vk.EnumerateInstanceExtensionProperties("", &count, props), "vkEnumerateInstanceExtensionProperties"); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, p := range props[:count] {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names, nil
}

// instanceTier is one attempt at creating an instance.
type instanceTier struct {
	Name       string
	Extensions []string
	Layers     []string
	Validation bool
}

// instanceTiers lays out the creation attempts from most to least capable:
// everything the loader supports, then only what was asked for, then only
// what the window system requires with validation off. A required extension
// the loader does not support is an error.
func instanceTiers(required, requested, supportedExt, requestedLayers, supportedLayers []string, validation bool) ([]instanceTier, error) {
	var missing []string
	for _, ext := range required {
		if !slices.Contains(supportedExt, ext) {
			missing = append(missing, ext)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Newf("%d/%d required instance extensions unsupported: %v",
			len(missing), len(required), missing)
	}

	if validation {
		requested = append(append([]string(nil), requested...), debugReportExtension)
		requestedLayers = append(append([]string(nil), requestedLayers...), ValidationLayer)
	}

	wanted := append([]string(nil), required...)
	for _, ext := range requested {
		if slices.Contains(supportedExt, ext) && !slices.Contains(wanted, ext) {
			wanted = append(wanted, ext)
		} else if !slices.Contains(supportedExt, ext) {
			logger().Warn("requested instance extension unsupported", slog.String("extension", ext))
		}
	}

	var layers []string
	for _, l := range requestedLayers {
		if slices.Contains(supportedLayers, l) {
			layers = append(layers, l)
		} else {
			logger().Warn("requested layer unsupported", slog.String("layer", l))
		}
	}

	all := instanceTier{Name: "full support", Extensions: supportedExt, Validation: validation}
	if validation {
		all.Layers = supportedLayers
	}
	return []instanceTier{
		all,
		{Name: "requested support", Extensions: wanted, Layers: layers, Validation: validation},
		{Name: "required support", Extensions: required},
	}, nil
}

// VKApplicationInfo creates a structure representing this application in a Vulkan friendly format
func (a *App) VKApplicationInfo() vk.ApplicationInfo {
	api := a.APIVersion
	if api.Major < 1 {
		api = Version{Major: 1, Minor: 1}
	}
	engine := a.EngineName
	if engine == "" {
		engine = "Hephaestus"
	}
	return vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         api.VKVersion(),
		ApplicationVersion: a.Version.VKVersion(),
		PApplicationName:   safeString(a.Name),
		PEngineName:        safeString(engine),
	}
}

// CreateInstance creates the Vulkan instance. required lists the extensions
// the window system needs, typically from glfw.GetRequiredInstanceExtensions.
func (a *App) CreateInstance(required []string) (*Instance, error) {
	supportedExt, err := SupportedExtensions()
	if err != nil {
		return nil, err
	}
	var supportedLayers []string
	if a.Validation || len(a.Layers) > 0 {
		if supportedLayers, err = SupportedLayers(); err != nil {
			return nil, err
		}
	}
	tiers, err := instanceTiers(required, a.Extensions, supportedExt, a.Layers, supportedLayers, a.Validation)
	if err != nil {
		return nil, err
	}

	appInfo := a.VKApplicationInfo()
	for i, tier := range tiers {
		extensions := safeStrings(tier.Extensions)
		layers := safeStrings(tier.Layers)
		createInfo := vk.InstanceCreateInfo{
			SType:                   vk.StructureTypeInstanceCreateInfo,
			PApplicationInfo:        &appInfo,
			EnabledExtensionCount:   uint32(len(extensions)),
			PpEnabledExtensionNames: extensions,
			EnabledLayerCount:       uint32(len(layers)),
			PpEnabledLayerNames:     layers,
		}

		var inst vk.Instance
		err = CheckResult(vk.CreateInstance(&createInfo, nil, &inst), "vkCreateInstance")
		if err != nil {
			if i < len(tiers)-1 {
				logger().Error("instance creation failed, retrying with less",
					slog.String("tier", tier.Name), slog.Any("error", err))
			}
			continue
		}
		vk.InitInstance(inst)

		instance := &Instance{
			VKInstance: inst,
			Extensions: tier.Extensions,
			Layers:     tier.Layers,
			Validation: tier.Validation,
		}
		if tier.Validation {
			instance.enableDebugReport()
		}
		logger().Info("created vulkan instance",
			slog.String("tier", tier.Name),
			slog.Int("extensions", len(tier.Extensions)),
			slog.Int("layers", len(tier.Layers)),
			slog.Bool("validation", tier.Validation))
		return instance, nil
	}
	return nil, errors.Wrap(err, "creating vulkan instance with required support")
}

// Instance is an instance of the Vulkan subsystem
type Instance struct {
	VKInstance vk.Instance
	Extensions []string
	Layers     []string
	Validation bool

	debug vk.DebugReportCallback
}

func (i *Instance) enableDebugReport() {
	err := CheckResult(vk.CreateDebugReportCallback(i.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit |
			vk.DebugReportPerformanceWarningBit),
		PfnCallback: debugReport,
	}, nil, &i.debug), "vkCreateDebugReportCallbackEXT")
	if err != nil {
		logger().Warn("validation messages will not be logged", slog.Any("error", err))
		i.debug = vk.NullDebugReportCallback
	}
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	level := slog.LevelInfo
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		level = slog.LevelError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		level = slog.LevelWarn
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		level = slog.LevelDebug
	}
	logger().Log(context.Background(), level, pMessage,
		slog.String("layer", pLayerPrefix),
		slog.Int("code", int(messageCode)))
	return vk.Bool32(vk.False)
}

// PhysicalDevices returns a list of physical devices known to Vulkan
func (i *Instance) PhysicalDevices() ([]*PhysicalDevice, error) {
	var count uint32
	if err := CheckResult(vk.EnumeratePhysicalDevices(i.VKInstance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.New("no physical devices available")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := CheckResult(vk.EnumeratePhysicalDevices(i.VKInstance, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	ret := make([]*PhysicalDevice, count)
	for idx, device := range devices[:count] {
		ret[idx] = newPhysicalDevice(device, idx)
	}
	return ret, nil
}

func (i *Instance) Destroy() {
	if i.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(i.VKInstance, i.debug, nil)
	}
	vk.DestroyInstance(i.VKInstance, nil)
}
