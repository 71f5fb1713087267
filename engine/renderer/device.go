package renderer

import (
	"fmt"
	"io"
	"strings"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// SwapchainExtension must be enabled on devices that present to a surface.
const SwapchainExtension = "VK_KHR_swapchain"

// Device bundles a logical device with the physical device it was created
// from and the single queue the renderer submits to.
type Device struct {
	Instance    gpu.Instance
	Physical    gpu.PhysicalDevice
	Logical     gpu.Device
	QueueFamily uint32
	Queue       gpu.Queue
	Memory      gpu.MemoryProperties
	Properties  gpu.PhysicalDeviceProperties
}

type PhysicalDeviceRequirements struct {
	Graphics    bool
	Compute     bool
	Transfer    bool
	DiscreteGPU bool
	// Present requires the queue family to present to Surface.
	Present bool
	Surface gpu.Surface
}

// DefaultRequirements asks for one queue family with graphics, compute and
// transfer capabilities.
func DefaultRequirements() PhysicalDeviceRequirements {
	return PhysicalDeviceRequirements{
		Graphics: true,
		Compute:  true,
		Transfer: true,
	}
}

// PhysicalDeviceMeetsRequirements returns the first queue family of pd that
// satisfies every requirement.
func PhysicalDeviceMeetsRequirements(inst gpu.Instance, pd gpu.PhysicalDevice, req PhysicalDeviceRequirements) (uint32, bool) {
	props := inst.Properties(pd)
	if req.DiscreteGPU && props.Type != gpu.DeviceTypeDiscreteGPU {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", props.Name)
		return 0, false
	}

	core.LogDebug("Graphics | Present | Compute | Transfer | Name")
	for _, qf := range inst.QueueFamilies(pd) {
		present := false
		if req.Present {
			ok, err := inst.SurfaceSupport(pd, qf.Index, req.Surface)
			if err != nil {
				core.LogWarn("surface support query failed for '%s': %s", props.Name, err)
			}
			present = ok
		}
		core.LogDebug("   %5t |   %5t |   %5t |    %5t | %s (family %d)",
			qf.Flags.Has(gpu.QueueGraphics), present,
			qf.Flags.Has(gpu.QueueCompute), qf.Flags.Has(gpu.QueueTransfer),
			props.Name, qf.Index)

		if (!req.Graphics || qf.Flags.Has(gpu.QueueGraphics)) &&
			(!req.Compute || qf.Flags.Has(gpu.QueueCompute)) &&
			(!req.Transfer || qf.Flags.Has(gpu.QueueTransfer)) &&
			(!req.Present || present) {
			core.LogDebug("Device '%s' meets queue requirements with family %d.", props.Name, qf.Index)
			return qf.Index, true
		}
	}
	return 0, false
}

// SelectPhysicalDevice walks the physical devices in enumeration order and
// returns the first one meeting req.
func SelectPhysicalDevice(inst gpu.Instance, req PhysicalDeviceRequirements) (gpu.PhysicalDevice, uint32, error) {
	pds, err := inst.PhysicalDevices()
	if err != nil {
		return 0, 0, fmt.Errorf("enumerating physical devices: %w", err)
	}
	if len(pds) == 0 {
		return 0, 0, fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrNoSuitableDevice)
	}
	for _, pd := range pds {
		if family, ok := PhysicalDeviceMeetsRequirements(inst, pd, req); ok {
			props := inst.Properties(pd)
			core.LogInfo("Selected device: '%s' (%s).", props.Name, props.Type)
			return pd, family, nil
		}
	}
	return 0, 0, fmt.Errorf("no physical device meets the requirements: %w", core.ErrNoSuitableDevice)
}

// NewDevice selects a physical device and creates a logical device with one
// queue from the matching family.
func NewDevice(inst gpu.Instance, req PhysicalDeviceRequirements, extensions ...string) (*Device, error) {
	pd, family, err := SelectPhysicalDevice(inst, req)
	if err != nil {
		return nil, err
	}
	logical, err := inst.CreateDevice(pd, gpu.DeviceInfo{QueueFamily: family, Extensions: extensions})
	if err != nil {
		core.LogError("failed to create logical device: %s", err)
		return nil, fmt.Errorf("creating logical device: %w", err)
	}
	core.LogInfo("Logical device created.")

	dev := &Device{
		Instance:    inst,
		Physical:    pd,
		Logical:     logical,
		QueueFamily: family,
		Queue:       logical.Queue(family, 0),
		Memory:      inst.MemoryProperties(pd),
		Properties:  inst.Properties(pd),
	}
	return dev, nil
}

// Destroy waits for the device to go idle and releases it. Every object
// created from it must already be destroyed.
func (d *Device) Destroy() {
	if d.Logical == nil {
		return
	}
	if err := d.Logical.WaitIdle(); err != nil {
		core.LogWarn("device wait idle failed during teardown: %s", err)
	}
	core.LogInfo("Destroying logical device...")
	d.Logical.Destroy()
	d.Logical = nil
}

// DescribeDevices prints every physical device, its queue families and
// memory heaps.
func DescribeDevices(inst gpu.Instance, w io.Writer) error {
	pds, err := inst.PhysicalDevices()
	if err != nil {
		return err
	}
	for i, pd := range pds {
		props := inst.Properties(pd)
		fmt.Fprintf(w, "Device %d: %s\n", i, props.Name)
		fmt.Fprintf(w, "  type: %s\n", props.Type)
		fmt.Fprintf(w, "  api version: %d.%d.%d\n", props.APIVersion>>22, (props.APIVersion>>12)&0x3ff, props.APIVersion&0xfff)
		fmt.Fprintf(w, "  queue families:\n")
		for _, qf := range inst.QueueFamilies(pd) {
			var caps []string
			if qf.Flags.Has(gpu.QueueGraphics) {
				caps = append(caps, "graphics")
			}
			if qf.Flags.Has(gpu.QueueCompute) {
				caps = append(caps, "compute")
			}
			if qf.Flags.Has(gpu.QueueTransfer) {
				caps = append(caps, "transfer")
			}
			fmt.Fprintf(w, "    [%d] %d queue(s): %s\n", qf.Index, qf.Count, strings.Join(caps, ", "))
		}
		mem := inst.MemoryProperties(pd)
		fmt.Fprintf(w, "  memory heaps:\n")
		for j, h := range mem.Heaps {
			kind := "shared system"
			if h.DeviceLocal {
				kind = "device local"
			}
			fmt.Fprintf(w, "    [%d] %d MiB (%s)\n", j, h.Size>>20, kind)
		}
		if family, ok := PhysicalDeviceMeetsRequirements(inst, pd, DefaultRequirements()); ok {
			fmt.Fprintf(w, "  suitable: yes (queue family %d)\n", family)
		} else {
			fmt.Fprintf(w, "  suitable: no\n")
		}
	}
	return nil
}
