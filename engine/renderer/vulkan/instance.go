// Package vulkan implements the gpu driver contract on top of the system
// Vulkan loader through github.com/goki/vulkan.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Config struct {
	AppName string
	// ProcAddr is vkGetInstanceProcAddr, usually glfw.GetVulkanGetInstanceProcAddress().
	ProcAddr unsafe.Pointer
	// Extensions are the instance extensions the windowing system requires.
	Extensions []string
	// Debug enables the validation layer and routes its reports to the log.
	Debug bool
}

/**
 * @brief A Vulkan instance. Physical devices and surfaces are handed out as
 * gpu handles and resolved through per-kind tables.
 */
type Instance struct {
	handle    vk.Instance
	allocator *vk.AllocationCallbacks
	debug     vk.DebugReportCallback

	physical []gpu.PhysicalDevice
	devices  *handles[vk.PhysicalDevice]
	surfaces *handles[vk.Surface]
}

var _ gpu.Instance = (*Instance)(nil)

func NewInstance(cfg Config) (*Instance, error) {
	if cfg.ProcAddr == nil {
		core.LogError("GetInstanceProcAddress is nil")
		return nil, fmt.Errorf("GetInstanceProcAddress is nil: %w", core.ErrInvalidState)
	}
	vk.SetGetInstanceProcAddr(cfg.ProcAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(cfg.AppName),
		PEngineName:        safeString("vulx"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, cfg.Extensions...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	var layers []string
	if cfg.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if err := requireLayer(validationLayer); err != nil {
			return nil, err
		}
		layers = append(layers, validationLayer)
	}
	core.LogDebug("Required extensions: %v", extensions)

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	inst := &Instance{
		devices:  newHandles[vk.PhysicalDevice](),
		surfaces: newHandles[vk.Surface](),
	}
	if res := vk.CreateInstance(&createInfo, inst.allocator, &inst.handle); res != vk.Success {
		err := check("vkCreateInstance", res)
		core.LogError("failed in creating the Vulkan Instance with error `%s`", ResultString(res, true))
		return nil, err
	}
	if err := vk.InitInstance(inst.handle); err != nil {
		core.LogError("failed to load Vulkan instance functions: %s", err)
		vk.DestroyInstance(inst.handle, inst.allocator)
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if cfg.Debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		if err := vk.Error(vk.CreateDebugReportCallback(inst.handle, &debugCreateInfo, nil, &inst.debug)); err != nil {
			core.LogWarn("vk.CreateDebugReportCallback failed with %s", err)
		} else {
			core.LogDebug("Vulkan debugger created.")
		}
	}
	return inst, nil
}

func requireLayer(name string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return check("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return check("vkEnumerateInstanceLayerProperties", res)
	}
	core.LogInfo("Searching for layer: %s...", name)
	for i := range available {
		available[i].Deref()
		if cString(available[i].LayerName[:]) == name {
			core.LogInfo("Found.")
			return nil
		}
	}
	core.LogError("Required validation layer is missing: %s", name)
	return &gpu.APIError{Op: "validation layer " + name, Result: gpu.ErrorLayerNotPresent}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}

func (i *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	if i.physical != nil {
		return i.physical, nil
	}
	var count uint32
	if res := vk.EnumeratePhysicalDevices(i.handle, &count, nil); res != vk.Success {
		return nil, check("vkEnumeratePhysicalDevices", res)
	}
	pds := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(i.handle, &count, pds); res != vk.Success {
		return nil, check("vkEnumeratePhysicalDevices", res)
	}
	out := make([]gpu.PhysicalDevice, 0, count)
	for _, pd := range pds[:count] {
		out = append(out, gpu.PhysicalDevice(i.devices.put(pd)))
	}
	i.physical = out
	return out, nil
}

func (i *Instance) physicalDevice(pd gpu.PhysicalDevice) vk.PhysicalDevice {
	h, _ := i.devices.get(uint64(pd))
	return h
}

func (i *Instance) Properties(pd gpu.PhysicalDevice) gpu.PhysicalDeviceProperties {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(i.physicalDevice(pd), &props)
	props.Deref()
	props.Limits.Deref()
	return gpu.PhysicalDeviceProperties{
		Name:                cString(props.DeviceName[:]),
		Type:                fromDeviceType(props.DeviceType),
		APIVersion:          props.ApiVersion,
		DriverVersion:       props.DriverVersion,
		NonCoherentAtomSize: uint64(props.Limits.NonCoherentAtomSize),
	}
}

func (i *Instance) QueueFamilies(pd gpu.PhysicalDevice) []gpu.QueueFamily {
	physical := i.physicalDevice(pd)
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, props)

	out := make([]gpu.QueueFamily, 0, count)
	for idx := range props[:count] {
		props[idx].Deref()
		out = append(out, gpu.QueueFamily{
			Index: uint32(idx),
			Flags: fromQueueFlags(props[idx].QueueFlags),
			Count: props[idx].QueueCount,
		})
	}
	return out
}

func (i *Instance) MemoryProperties(pd gpu.PhysicalDevice) gpu.MemoryProperties {
	var mem vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(i.physicalDevice(pd), &mem)
	mem.Deref()

	var out gpu.MemoryProperties
	for t := uint32(0); t < mem.MemoryTypeCount; t++ {
		mem.MemoryTypes[t].Deref()
		out.Types = append(out.Types, gpu.MemoryType{
			PropertyFlags: fromMemoryFlags(mem.MemoryTypes[t].PropertyFlags),
			HeapIndex:     mem.MemoryTypes[t].HeapIndex,
		})
	}
	for h := uint32(0); h < mem.MemoryHeapCount; h++ {
		mem.MemoryHeaps[h].Deref()
		out.Heaps = append(out.Heaps, gpu.MemoryHeap{
			Size:        uint64(mem.MemoryHeaps[h].Size),
			DeviceLocal: mem.MemoryHeaps[h].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		})
	}
	return out
}

// portabilitySubset reports whether the device requires VK_KHR_portability_subset.
func portabilitySubset(pd vk.PhysicalDevice) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(pd, "", &count, available); res != vk.Success {
		return false
	}
	for idx := range available {
		available[idx].Deref()
		if cString(available[idx].ExtensionName[:]) == "VK_KHR_portability_subset" {
			return true
		}
	}
	return false
}

// CreateDevice creates a logical device with a single queue from
// info.QueueFamily. No device features are requested.
func (i *Instance) CreateDevice(pd gpu.PhysicalDevice, info gpu.DeviceInfo) (gpu.Device, error) {
	physical, ok := i.devices.get(uint64(pd))
	if !ok {
		return nil, &gpu.APIError{Op: "vkCreateDevice", Result: gpu.ErrorInvalidHandle}
	}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: info.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensions := append([]string(nil), info.Extensions...)
	if portabilitySubset(physical) {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var logical vk.Device
	if res := vk.CreateDevice(physical, &deviceCreateInfo, i.allocator, &logical); res != vk.Success {
		core.LogError("vkCreateDevice failed with %s", ResultString(res, true))
		return nil, check("vkCreateDevice", res)
	}
	return newDevice(i, physical, logical, info.QueueFamily), nil
}

func (i *Instance) CreateSurface(w gpu.Window) (gpu.Surface, error) {
	ptr, err := w.CreateWindowSurface(i.handle, nil)
	if err != nil {
		core.LogError("Vulkan surface creation failed: %s", err)
		return 0, err
	}
	return gpu.Surface(i.surfaces.put(vk.SurfaceFromPointer(ptr))), nil
}

func (i *Instance) surface(s gpu.Surface) vk.Surface {
	h, ok := i.surfaces.get(uint64(s))
	if !ok {
		return vk.NullSurface
	}
	return h
}

func (i *Instance) SurfaceSupport(pd gpu.PhysicalDevice, queueFamily uint32, s gpu.Surface) (bool, error) {
	var supported vk.Bool32
	res := vk.GetPhysicalDeviceSurfaceSupport(i.physicalDevice(pd), queueFamily, i.surface(s), &supported)
	if res != vk.Success {
		return false, check("vkGetPhysicalDeviceSurfaceSupportKHR", res)
	}
	return supported == vk.True, nil
}

func (i *Instance) SurfaceCapabilities(pd gpu.PhysicalDevice, s gpu.Surface) (gpu.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(i.physicalDevice(pd), i.surface(s), &caps); res != vk.Success {
		return gpu.SurfaceCapabilities{}, check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return gpu.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  fromExtent(caps.CurrentExtent),
		MinImageExtent: fromExtent(caps.MinImageExtent),
		MaxImageExtent: fromExtent(caps.MaxImageExtent),
	}, nil
}

// SurfaceFormats drops formats the renderer has no equivalent for.
func (i *Instance) SurfaceFormats(pd gpu.PhysicalDevice, s gpu.Surface) ([]gpu.SurfaceFormat, error) {
	physical, surface := i.physicalDevice(pd), i.surface(s)
	var count uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, nil); res != vk.Success {
		return nil, check("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	raw := make([]vk.SurfaceFormat, count)
	if res := vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, raw); res != vk.Success {
		return nil, check("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	var out []gpu.SurfaceFormat
	for idx := range raw[:count] {
		raw[idx].Deref()
		f := fromVkFormat(raw[idx].Format)
		if f == gpu.FormatUndefined || raw[idx].ColorSpace != vk.ColorSpaceSrgbNonlinear {
			continue
		}
		out = append(out, gpu.SurfaceFormat{Format: f, ColorSpace: gpu.ColorSpaceSrgbNonlinear})
	}
	return out, nil
}

func (i *Instance) PresentModes(pd gpu.PhysicalDevice, s gpu.Surface) ([]gpu.PresentMode, error) {
	physical, surface := i.physicalDevice(pd), i.surface(s)
	var count uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &count, nil); res != vk.Success {
		return nil, check("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	raw := make([]vk.PresentMode, count)
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physical, surface, &count, raw); res != vk.Success {
		return nil, check("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	var out []gpu.PresentMode
	for _, m := range raw[:count] {
		if mode, ok := fromPresentMode(m); ok {
			out = append(out, mode)
		}
	}
	return out, nil
}

func (i *Instance) DestroySurface(s gpu.Surface) {
	if h, ok := i.surfaces.take(uint64(s)); ok {
		vk.DestroySurface(i.handle, h, i.allocator)
	}
}

func (i *Instance) Destroy() {
	if i.handle == nil {
		return
	}
	if i.debug != nil {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(i.handle, i.debug, i.allocator)
		i.debug = nil
	}
	core.LogInfo("Destroying Vulkan instance...")
	vk.DestroyInstance(i.handle, i.allocator)
	i.handle = nil
}
