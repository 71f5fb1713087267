package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	surface := d.inst.surface(info.Surface)
	var caps vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, surface, &caps); res != vk.Success {
		return 0, check("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	caps.Deref()

	var old vk.Swapchain
	if info.OldSwapchain != 0 {
		old, _ = d.swapchains.get(uint64(info.OldSwapchain))
	}

	// The single queue both renders and presents, so images stay exclusive.
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      toVkFormat(info.Format.Format),
		ImageColorSpace:  vk.ColorSpaceSrgbNonlinear,
		ImageExtent:      vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      toPresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}

	var sc vk.Swapchain
	err := d.locks.SafeCall(SwapchainManagement, func() error {
		return check("vkCreateSwapchainKHR", vk.CreateSwapchain(d.handle, &swapchainCreateInfo, d.allocator, &sc))
	})
	if err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return 0, err
	}
	core.LogInfo("Swapchain created successfully.")
	return gpu.Swapchain(d.swapchains.put(sc)), nil
}

// SwapchainImages registers the presentable images, replacing handles issued
// by an earlier call. They are released together with the swapchain.
func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	h, ok := d.swapchains.get(uint64(sc))
	if !ok {
		return nil, &gpu.APIError{Op: "vkGetSwapchainImagesKHR", Result: gpu.ErrorInvalidHandle}
	}
	var count uint32
	if res := vk.GetSwapchainImages(d.handle, h, &count, nil); res != vk.Success {
		return nil, check("vkGetSwapchainImagesKHR", res)
	}
	images := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.handle, h, &count, images); res != vk.Success {
		return nil, check("vkGetSwapchainImagesKHR", res)
	}
	d.images.removeIf(func(i image) bool { return i.owner == uint64(sc) })
	out := make([]gpu.Image, count)
	for i, img := range images[:count] {
		out[i] = gpu.Image(d.images.put(image{handle: img, owner: uint64(sc)}))
	}
	return out, nil
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout uint64, signal gpu.Semaphore) (uint32, error) {
	h, ok := d.swapchains.get(uint64(sc))
	if !ok {
		return 0, &gpu.APIError{Op: "vkAcquireNextImageKHR", Result: gpu.ErrorInvalidHandle}
	}
	sem, _ := d.semaphores.get(uint64(signal))
	var index uint32
	var noFence vk.Fence
	res := vk.AcquireNextImage(d.handle, h, timeout, sem, noFence, &index)
	switch res {
	case vk.Success:
		return index, nil
	case vk.Suboptimal:
		return index, gpu.Suboptimal
	}
	return 0, check("vkAcquireNextImageKHR", res)
}

func (d *Device) QueuePresent(q gpu.Queue, info gpu.PresentInfo) error {
	qu, ok := d.queues.get(uint64(q))
	if !ok {
		return &gpu.APIError{Op: "vkQueuePresentKHR", Result: gpu.ErrorInvalidHandle}
	}
	sc, _ := d.swapchains.get(uint64(info.Swapchain))
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.Wait)),
		PWaitSemaphores:    d.resolveSemaphores(info.Wait),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc},
		PImageIndices:      []uint32{info.ImageIndex},
	}
	return d.locks.SafeQueueCall(qu.family, func() error {
		res := vk.QueuePresent(qu.handle, &presentInfo)
		if res == vk.Suboptimal {
			return gpu.Suboptimal
		}
		return check("vkQueuePresentKHR", res)
	})
}

// DestroySwapchain drops its images; their views must already be gone.
func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	h, ok := d.swapchains.take(uint64(sc))
	if !ok {
		return
	}
	d.images.removeIf(func(i image) bool { return i.owner == uint64(sc) })
	_ = d.locks.SafeCall(SwapchainManagement, func() error {
		vk.DestroySwapchain(d.handle, h, d.allocator)
		return nil
	})
}
