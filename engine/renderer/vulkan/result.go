package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

var results = map[vk.Result]gpu.Result{
	vk.Success:                   gpu.Success,
	vk.NotReady:                  gpu.NotReady,
	vk.Timeout:                   gpu.Timeout,
	vk.Incomplete:                gpu.Incomplete,
	vk.Suboptimal:                gpu.Suboptimal,
	vk.ErrorOutOfHostMemory:      gpu.ErrorOutOfHostMemory,
	vk.ErrorOutOfDeviceMemory:    gpu.ErrorOutOfDeviceMemory,
	vk.ErrorInitializationFailed: gpu.ErrorInitializationFailed,
	vk.ErrorDeviceLost:           gpu.ErrorDeviceLost,
	vk.ErrorMemoryMapFailed:      gpu.ErrorMemoryMapFailed,
	vk.ErrorLayerNotPresent:      gpu.ErrorLayerNotPresent,
	vk.ErrorExtensionNotPresent:  gpu.ErrorExtensionNotPresent,
	vk.ErrorFeatureNotPresent:    gpu.ErrorFeatureNotPresent,
	vk.ErrorIncompatibleDriver:   gpu.ErrorIncompatibleDriver,
	vk.ErrorTooManyObjects:       gpu.ErrorTooManyObjects,
	vk.ErrorFormatNotSupported:   gpu.ErrorFormatNotSupported,
	vk.ErrorSurfaceLost:          gpu.ErrorSurfaceLost,
	vk.ErrorNativeWindowInUse:    gpu.ErrorNativeWindowInUse,
	vk.ErrorOutOfDate:            gpu.ErrorOutOfDate,
	vk.ErrorOutOfPoolMemory:      gpu.ErrorOutOfPoolMemory,
}

// toResult maps a Vulkan status onto the driver contract. Codes the renderer
// never acts on collapse to ErrorUnknown.
func toResult(r vk.Result) gpu.Result {
	if res, ok := results[r]; ok {
		return res
	}
	return gpu.ErrorUnknown
}

// check returns nil for VK_SUCCESS and an *gpu.APIError otherwise.
func check(op string, r vk.Result) error {
	return gpu.Check(op, toResult(r))
}

// ResultString describes r, with the registry explanation when extended is set.
// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
func ResultString(r vk.Result, extended bool) string {
	name := toResult(r).String()
	if !extended {
		return name
	}
	switch r {
	case vk.Timeout:
		return name + " A wait operation has not completed in the specified time"
	case vk.Suboptimal:
		return name + " A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully."
	case vk.ErrorOutOfHostMemory:
		return name + " A host memory allocation has failed."
	case vk.ErrorOutOfDeviceMemory:
		return name + " A device memory allocation has failed."
	case vk.ErrorDeviceLost:
		return name + " The logical or physical device has been lost."
	case vk.ErrorMemoryMapFailed:
		return name + " Mapping of a memory object has failed."
	case vk.ErrorLayerNotPresent:
		return name + " A requested layer is not present or could not be loaded."
	case vk.ErrorExtensionNotPresent:
		return name + " A requested extension is not supported."
	case vk.ErrorIncompatibleDriver:
		return name + " The requested version of Vulkan is not supported by the driver."
	case vk.ErrorSurfaceLost:
		return name + " A surface is no longer available."
	case vk.ErrorOutOfDate:
		return name + " A surface has changed in such a way that it is no longer compatible with the swapchain."
	}
	return name
}

var end = "\x00"
var endChar byte = '\x00'

// safeString null-terminates s for the C side.
func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

// cString reads a fixed-size, null-terminated name array.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}
