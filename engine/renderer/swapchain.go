package renderer

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type SwapchainSupportInfo struct {
	Capabilities gpu.SurfaceCapabilities
	Formats      []gpu.SurfaceFormat
	PresentModes []gpu.PresentMode
}

func QuerySwapchainSupport(dev *Device, surface gpu.Surface) (*SwapchainSupportInfo, error) {
	caps, err := dev.Instance.SurfaceCapabilities(dev.Physical, surface)
	if err != nil {
		return nil, fmt.Errorf("querying surface capabilities: %w", err)
	}
	formats, err := dev.Instance.SurfaceFormats(dev.Physical, surface)
	if err != nil {
		return nil, fmt.Errorf("querying surface formats: %w", err)
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("surface reports no formats: %w", core.ErrNoSuitableDevice)
	}
	modes, err := dev.Instance.PresentModes(dev.Physical, surface)
	if err != nil {
		return nil, fmt.Errorf("querying present modes: %w", err)
	}
	return &SwapchainSupportInfo{Capabilities: caps, Formats: formats, PresentModes: modes}, nil
}

// ChooseSurfaceFormat prefers B8G8R8A8 UNORM in the sRGB nonlinear colour
// space and falls back to the first reported format.
func (s *SwapchainSupportInfo) ChooseSurfaceFormat() gpu.SurfaceFormat {
	for _, f := range s.Formats {
		if f.Format == gpu.FormatB8G8R8A8Unorm && f.ColorSpace == gpu.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return s.Formats[0]
}

// ChoosePresentMode prefers mailbox. FIFO is always available.
func (s *SwapchainSupportInfo) ChoosePresentMode() gpu.PresentMode {
	for _, m := range s.PresentModes {
		if m == gpu.PresentModeMailbox {
			return m
		}
	}
	return gpu.PresentModeFifo
}

// ChooseExtent uses the surface's current extent unless the surface leaves
// it to the swapchain, then clamps to the supported range.
func (s *SwapchainSupportInfo) ChooseExtent(width, height uint32) gpu.Extent {
	caps := s.Capabilities
	extent := gpu.Extent{Width: width, Height: height}
	if caps.CurrentExtent.Width != stdmath.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = math.Clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = math.Clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	return extent
}

func (s *SwapchainSupportInfo) ImageCount() uint32 {
	count := s.Capabilities.MinImageCount + 1
	if s.Capabilities.MaxImageCount > 0 && count > s.Capabilities.MaxImageCount {
		count = s.Capabilities.MaxImageCount
	}
	return count
}

/**
 * @brief A swapchain with a view per image and, once a render pass is known,
 * a framebuffer per image.
 */
type Swapchain struct {
	Handle       gpu.Swapchain
	ImageFormat  gpu.SurfaceFormat
	PresentMode  gpu.PresentMode
	Extent       gpu.Extent
	Images       []*Image
	Framebuffers []*Framebuffer
}

// NewSwapchain creates a swapchain for surface sized from the surface
// capabilities, falling back to width x height. old may be nil; when set it
// is handed to the driver as the retiring swapchain and stays owned by the
// caller.
func NewSwapchain(dev *Device, surface gpu.Surface, width, height uint32, old *Swapchain) (*Swapchain, error) {
	support, err := QuerySwapchainSupport(dev, surface)
	if err != nil {
		core.LogError("failed to query swapchain support: %s", err)
		return nil, err
	}
	sc := &Swapchain{
		ImageFormat: support.ChooseSurfaceFormat(),
		PresentMode: support.ChoosePresentMode(),
		Extent:      support.ChooseExtent(width, height),
	}

	info := gpu.SwapchainInfo{
		Surface:       surface,
		MinImageCount: support.ImageCount(),
		Format:        sc.ImageFormat,
		Extent:        sc.Extent,
		PresentMode:   sc.PresentMode,
	}
	if old != nil {
		info.OldSwapchain = old.Handle
	}
	handle, err := dev.Logical.CreateSwapchain(info)
	if err != nil {
		core.LogError("failed to create swapchain: %s", err)
		return nil, fmt.Errorf("creating swapchain: %w", err)
	}
	sc.Handle = handle

	images, err := dev.Logical.SwapchainImages(handle)
	if err != nil {
		sc.Destroy(dev)
		core.LogError("failed to get swapchain images: %s", err)
		return nil, fmt.Errorf("getting swapchain images: %w", err)
	}
	for _, h := range images {
		img, err := wrapSwapchainImage(dev, h, sc.Extent, sc.ImageFormat.Format)
		if err != nil {
			sc.Destroy(dev)
			return nil, err
		}
		sc.Images = append(sc.Images, img)
	}

	core.LogInfo("Swapchain created successfully: %dx%d, %d images.", sc.Extent.Width, sc.Extent.Height, len(sc.Images))
	return sc, nil
}

// CreateFramebuffers creates one framebuffer per swapchain image.
func (sc *Swapchain) CreateFramebuffers(dev *Device, renderpass *RenderPass) error {
	sc.destroyFramebuffers(dev)
	for _, img := range sc.Images {
		fb, err := NewFramebuffer(dev, renderpass, img)
		if err != nil {
			sc.destroyFramebuffers(dev)
			return err
		}
		sc.Framebuffers = append(sc.Framebuffers, fb)
	}
	return nil
}

func (sc *Swapchain) destroyFramebuffers(dev *Device) {
	for _, fb := range sc.Framebuffers {
		fb.Destroy(dev)
	}
	sc.Framebuffers = nil
}

// AcquireNextImage returns the index of the next image. The error may be
// gpu.Suboptimal together with a usable index.
func (sc *Swapchain) AcquireNextImage(dev *Device, timeoutNs uint64, imageAvailable gpu.Semaphore) (uint32, error) {
	return dev.Logical.AcquireNextImage(sc.Handle, timeoutNs, imageAvailable)
}

// Present returns the image to the swapchain once renderComplete is
// signaled.
func (sc *Swapchain) Present(dev *Device, renderComplete gpu.Semaphore, imageIndex uint32) error {
	return dev.Logical.QueuePresent(dev.Queue, gpu.PresentInfo{
		Wait:       []gpu.Semaphore{renderComplete},
		Swapchain:  sc.Handle,
		ImageIndex: imageIndex,
	})
}

// Destroy releases the framebuffers and views, then the swapchain, which
// owns the images themselves.
func (sc *Swapchain) Destroy(dev *Device) {
	sc.destroyFramebuffers(dev)
	for _, img := range sc.Images {
		img.Destroy(dev)
	}
	sc.Images = nil
	if sc.Handle != 0 {
		dev.Logical.DestroySwapchain(sc.Handle)
		sc.Handle = 0
	}
}
