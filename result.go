package hephaestus

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/ROTARTSI82/Hephaestus/frame"
)

var resultNames = map[vk.Result]string{
	vk.Success:                    "VK_SUCCESS",
	vk.NotReady:                   "VK_NOT_READY",
	vk.Timeout:                    "VK_TIMEOUT",
	vk.EventSet:                   "VK_EVENT_SET",
	vk.EventReset:                 "VK_EVENT_RESET",
	vk.Incomplete:                 "VK_INCOMPLETE",
	vk.Suboptimal:                 "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:       "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:     "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed:  "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:            "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:       "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:       "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:   "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:     "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:    "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:        "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:    "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:        "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorOutOfPoolMemory:       "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorInvalidExternalHandle: "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	vk.ErrorSurfaceLost:           "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:     "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:             "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:   "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorValidationFailed:      "VK_ERROR_VALIDATION_FAILED_EXT",
	vk.ErrorInvalidShaderNv:       "VK_ERROR_INVALID_SHADER_NV",
}

// ResultName returns the symbolic name of a Vulkan result code.
func ResultName(res vk.Result) string {
	if name, ok := resultNames[res]; ok {
		return name
	}
	return "unknown result"
}

// ResultError is a failed Vulkan call.
type ResultError struct {
	Op     string
	Result vk.Result
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, ResultName(e.Result), int32(e.Result))
}

// CheckResult classifies the result of the Vulkan call op. Staleness and
// timeouts map to the frame package's sentinels so the scheduler can react to
// them; other failures are logged and returned as a *ResultError. Positive
// status codes that are not failures, such as VK_INCOMPLETE, return nil.
func CheckResult(res vk.Result, op string) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate:
		logger().Debug("swapchain out of date", slog.String("op", op))
		return errors.Wrap(frame.ErrOutOfDate, op)
	case vk.Suboptimal:
		logger().Debug("swapchain suboptimal", slog.String("op", op))
		return errors.Wrap(frame.ErrSuboptimal, op)
	case vk.Timeout, vk.NotReady:
		return errors.Wrap(frame.ErrTimeout, op)
	}
	if res > 0 {
		logger().Debug("vulkan status", slog.String("op", op), slog.String("result", ResultName(res)))
		return nil
	}
	logger().Error("vulkan call failed",
		slog.String("op", op),
		slog.String("result", ResultName(res)),
		slog.Int("code", int(res)))
	return errors.WithStack(&ResultError{Op: op, Result: res})
}

// IsDeviceLost reports whether err is a lost device, after which nothing but
// teardown is possible.
func IsDeviceLost(err error) bool {
	var re *ResultError
	return errors.As(err, &re) && re.Result == vk.ErrorDeviceLost
}
