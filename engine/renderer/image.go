package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

/**
 * @brief A colour image with its view. Offscreen images also own their
 * memory; swapchain images are owned by the swapchain.
 */
type Image struct {
	Handle gpu.Image
	Memory gpu.DeviceMemory
	View   gpu.ImageView
	Width  uint32
	Height uint32
	Format gpu.Format
	owned  bool
}

// NewImage creates a linear, host-visible colour attachment that can be read
// back on the CPU, together with its view.
func NewImage(dev *Device, width, height uint32, format gpu.Format) (*Image, error) {
	handle, err := dev.Logical.CreateImage(gpu.ImageInfo{
		Width:  width,
		Height: height,
		Format: format,
		Tiling: gpu.ImageTilingLinear,
		Usage:  gpu.ImageUsageColorAttachment | gpu.ImageUsageTransferSrc,
	})
	if err != nil {
		core.LogError("failed to create %dx%d image: %s", width, height, err)
		return nil, fmt.Errorf("creating image: %w", err)
	}
	img := &Image{Handle: handle, Width: width, Height: height, Format: format, owned: true}

	req := dev.Logical.ImageMemoryRequirements(handle)
	typeIndex, err := FindMemoryType(dev.Memory, req.TypeBits, gpu.MemoryHostVisible)
	if err != nil {
		img.Destroy(dev)
		return nil, err
	}
	mem, err := dev.Logical.AllocateMemory(req.Size, typeIndex)
	if err != nil {
		img.Destroy(dev)
		return nil, fmt.Errorf("allocating image memory: %w", err)
	}
	img.Memory = mem
	if err := dev.Logical.BindImageMemory(handle, mem, 0); err != nil {
		img.Destroy(dev)
		return nil, fmt.Errorf("binding image memory: %w", err)
	}
	if err := img.createView(dev); err != nil {
		img.Destroy(dev)
		return nil, err
	}
	core.LogDebug("image created: %dx%d", width, height)
	return img, nil
}

// wrapSwapchainImage adopts an image owned by a swapchain and creates a view
// for it.
func wrapSwapchainImage(dev *Device, handle gpu.Image, extent gpu.Extent, format gpu.Format) (*Image, error) {
	img := &Image{Handle: handle, Width: extent.Width, Height: extent.Height, Format: format}
	if err := img.createView(dev); err != nil {
		return nil, err
	}
	return img, nil
}

func (img *Image) createView(dev *Device) error {
	view, err := dev.Logical.CreateImageView(img.Handle, img.Format)
	if err != nil {
		core.LogError("failed to create image view: %s", err)
		return fmt.Errorf("creating image view: %w", err)
	}
	img.View = view
	return nil
}

func (img *Image) Extent() gpu.Extent {
	return gpu.Extent{Width: img.Width, Height: img.Height}
}

// DestroyView releases only the view.
func (img *Image) DestroyView(dev *Device) {
	if img.View != 0 {
		dev.Logical.DestroyImageView(img.View)
		img.View = 0
	}
}

// Destroy releases the view, then the memory, then the image itself when
// the image is not owned by a swapchain.
func (img *Image) Destroy(dev *Device) {
	img.DestroyView(dev)
	if !img.owned {
		img.Handle = 0
		return
	}
	if img.Memory != 0 {
		dev.Logical.FreeMemory(img.Memory)
		img.Memory = 0
	}
	if img.Handle != 0 {
		dev.Logical.DestroyImage(img.Handle)
		img.Handle = 0
	}
}
