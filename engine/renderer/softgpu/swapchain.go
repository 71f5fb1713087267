package softgpu

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type swapchain struct {
	info    gpu.SwapchainInfo
	surface *surface
	images  []uint64
	next    uint32
	// acquired marks images handed out and not yet presented.
	acquired map[uint32]bool
}

func (d *Device) CreateSwapchain(info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	if r := d.inst.popSwapchainResult(); r != gpu.Success {
		return 0, gpu.Check("vkCreateSwapchain", r)
	}
	sf, err := d.inst.surface(info.Surface)
	if err != nil {
		return 0, err
	}
	w, h := sf.window.GetFramebufferSize()
	if uint32(w) != info.Extent.Width || uint32(h) != info.Extent.Height {
		return 0, gpu.Check("vkCreateSwapchain", gpu.ErrorOutOfDate)
	}
	if info.Extent.Width == 0 || info.Extent.Height == 0 {
		return 0, gpu.Check("vkCreateSwapchain", gpu.ErrorInitializationFailed)
	}
	if info.OldSwapchain != 0 && !d.ledger.alive(uint64(info.OldSwapchain)) {
		d.ledger.violate(ViolationInvalidHandle, fmt.Sprintf("old swapchain %d is not alive", info.OldSwapchain))
	}
	count := info.MinImageCount
	if count == 0 {
		count = 2
	}
	sc := &swapchain{info: info, surface: sf, acquired: make(map[uint32]bool)}
	h64 := d.add("swapchain", sc, uint64(info.Surface))
	for i := uint32(0); i < count; i++ {
		img := &imageObject{
			info: gpu.ImageInfo{
				Width:  info.Extent.Width,
				Height: info.Extent.Height,
				Format: info.Format.Format,
				Tiling: gpu.ImageTilingOptimal,
				Usage:  gpu.ImageUsageColorAttachment,
			},
		}
		img.own = make([]byte, img.size())
		sc.images = append(sc.images, d.ledger.add("image", img, h64))
	}
	core.LogDebug("softgpu swapchain %d created: %dx%d, %d images", h64, info.Extent.Width, info.Extent.Height, count)
	return gpu.Swapchain(h64), nil
}

func (d *Device) swapchain(sc gpu.Swapchain) (*swapchain, error) {
	return lookup[*swapchain](d.ledger, uint64(sc), "swapchain")
}

func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	s, err := d.swapchain(sc)
	if err != nil {
		return nil, err
	}
	out := make([]gpu.Image, len(s.images))
	for i, h := range s.images {
		out[i] = gpu.Image(h)
	}
	return out, nil
}

func (s *swapchain) stale() bool {
	w, h := s.surface.window.GetFramebufferSize()
	return uint32(w) != s.info.Extent.Width || uint32(h) != s.info.Extent.Height
}

// AcquireNextImage hands out images round robin. It reports OutOfDate once
// the window size no longer matches the swapchain extent.
func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout uint64, signal gpu.Semaphore) (uint32, error) {
	s, err := d.swapchain(sc)
	if err != nil {
		return 0, err
	}
	if r, ok := d.inst.popAcquireResult(); ok && r != gpu.Success && r != gpu.Suboptimal {
		return 0, gpu.Check("vkAcquireNextImageKHR", r)
	} else if ok && r == gpu.Suboptimal {
		idx, err := d.acquire(s, signal)
		if err != nil {
			return 0, err
		}
		return idx, gpu.Check("vkAcquireNextImageKHR", gpu.Suboptimal)
	}
	if s.stale() {
		return 0, gpu.Check("vkAcquireNextImageKHR", gpu.ErrorOutOfDate)
	}
	return d.acquire(s, signal)
}

func (d *Device) acquire(s *swapchain, signal gpu.Semaphore) (uint32, error) {
	if len(s.acquired) == len(s.images) {
		return 0, gpu.Check("vkAcquireNextImageKHR", gpu.NotReady)
	}
	idx := s.next
	for s.acquired[idx] {
		idx = (idx + 1) % uint32(len(s.images))
	}
	s.next = (idx + 1) % uint32(len(s.images))
	if signal != 0 {
		if err := d.signalSemaphore("vkAcquireNextImageKHR", signal); err != nil {
			return 0, err
		}
	}
	s.acquired[idx] = true
	return idx, nil
}

func (d *Device) QueuePresent(q gpu.Queue, info gpu.PresentInfo) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	s, err := d.swapchain(info.Swapchain)
	if err != nil {
		return err
	}
	if err := d.waitSemaphores("vkQueuePresentKHR", info.Wait); err != nil {
		return err
	}
	if int(info.ImageIndex) >= len(s.images) || !s.acquired[info.ImageIndex] {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("present of image %d that was not acquired", info.ImageIndex))
		return gpu.Check("vkQueuePresentKHR", gpu.ErrorInitializationFailed)
	}
	delete(s.acquired, info.ImageIndex)
	if s.stale() {
		return gpu.Check("vkQueuePresentKHR", gpu.ErrorOutOfDate)
	}
	img, err := d.image(gpu.Image(s.images[info.ImageIndex]))
	if err != nil {
		return err
	}
	d.inst.recordFrame(Frame{
		Swapchain:  info.Swapchain,
		ImageIndex: info.ImageIndex,
		Width:      img.info.Width,
		Height:     img.info.Height,
		Format:     img.info.Format,
		Pixels:     append([]byte(nil), img.own...),
	})
	return nil
}

// DestroySwapchain releases the images; views still pointing at them are
// reported.
func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	if sc == 0 {
		return
	}
	if s, err := d.swapchain(sc); err == nil {
		for _, h := range s.images {
			d.ledger.destroy(h, "image")
		}
		s.images = nil
	}
	d.ledger.destroy(uint64(sc), "swapchain")
}
