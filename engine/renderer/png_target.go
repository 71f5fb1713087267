package renderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

const offscreenFormat = gpu.FormatR8G8B8A8Unorm

type PNGTargetConfig struct {
	TargetOptions
	Device *Device
	Width  uint32
	Height uint32
	// Path is the output file written at End. Empty keeps the result in
	// memory only.
	Path string
}

/**
 * @brief Renders into a host-readable image and writes it to a file on End.
 */
type PNGTarget struct {
	frame      *frame
	dev        *Device
	path       string
	image      *Image
	renderPass *RenderPass
	fb         *Framebuffer
	pool       *CommandPool
	cb         *CommandBuffer
	fence      *Fence
	pixels     *image.RGBA
}

var _ RenderTarget = (*PNGTarget)(nil)

func NewPNGTarget(cfg PNGTargetConfig) (*PNGTarget, error) {
	if err := core.RequireParams(core.Param{Name: "logical_device", Present: cfg.Device != nil}); err != nil {
		return nil, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("png target size %dx%d: %w", cfg.Width, cfg.Height, core.ErrInvalidState)
	}
	t := &PNGTarget{dev: cfg.Device, path: cfg.Path}
	if err := t.init(cfg); err != nil {
		t.release()
		return nil, err
	}
	core.LogDebug("png target %s created: %dx%d -> %q", t.frame.id.Short(), cfg.Width, cfg.Height, cfg.Path)
	return t, nil
}

func (t *PNGTarget) init(cfg PNGTargetConfig) error {
	var err error
	if t.image, err = NewImage(t.dev, cfg.Width, cfg.Height, offscreenFormat); err != nil {
		return err
	}
	if t.renderPass, err = NewRenderPass(t.dev, offscreenFormat, gpu.ImageLayoutGeneral); err != nil {
		return err
	}
	if t.fb, err = NewFramebuffer(t.dev, t.renderPass, t.image); err != nil {
		return err
	}
	if t.frame, err = newFrame(t.dev, cfg.TargetOptions, t.renderPass, t.image); err != nil {
		return err
	}
	if t.pool, err = NewCommandPool(t.dev); err != nil {
		return err
	}
	buffers, err := t.pool.Allocate(t.dev, 1)
	if err != nil {
		return err
	}
	t.cb = buffers[0]
	if t.fence, err = NewFence(t.dev, false); err != nil {
		return err
	}
	return nil
}

func (t *PNGTarget) Begin() error {
	if err := t.frame.begin(); err != nil {
		return err
	}
	t.frame.startRecording()
	return nil
}

func (t *PNGTarget) Fill(src geometry.Source) error {
	return t.frame.fill(src)
}

// End records and submits the frame, waits for it and reads the image
// back. The file is written when the target has a path.
func (t *PNGTarget) End() error {
	if t.frame.state != TargetRecording {
		return fmt.Errorf("end without begin: %w", core.ErrInvalidState)
	}
	defer t.frame.finish()

	if err := t.frame.record(t.cb, t.fb); err != nil {
		return err
	}
	if err := t.fence.Reset(t.dev); err != nil {
		return err
	}
	err := t.dev.Logical.QueueSubmit(t.dev.Queue, []gpu.SubmitInfo{{
		CommandBuffers: []gpu.CommandBuffer{t.cb.Handle},
	}}, t.fence.Handle)
	if err != nil {
		core.LogError("failed to submit png frame: %s", err)
		return fmt.Errorf("submitting frame: %w", err)
	}
	t.cb.UpdateSubmitted()
	if err := t.fence.Wait(t.dev, gpu.InfiniteTimeout); err != nil {
		return err
	}
	if err := t.dev.Logical.QueueWaitIdle(t.dev.Queue); err != nil {
		return fmt.Errorf("waiting for queue idle: %w", err)
	}

	pixels, err := t.readBack()
	if err != nil {
		return err
	}
	t.pixels = pixels
	if t.path != "" {
		return EncodeImage(t.path, pixels)
	}
	return nil
}

// readBack maps the image memory and copies it row by row, honouring the
// driver's row pitch.
func (t *PNGTarget) readBack() (*image.RGBA, error) {
	layout := t.dev.Logical.ImageSubresourceLayout(t.image.Handle)
	data, err := t.dev.Logical.MapMemory(t.image.Memory, 0, gpu.WholeSize)
	if err != nil {
		core.LogError("failed to map image memory: %s", err)
		return nil, fmt.Errorf("mapping image memory: %w", err)
	}
	defer t.dev.Logical.UnmapMemory(t.image.Memory)
	if err := t.dev.Logical.InvalidateMappedMemory(t.image.Memory, 0, gpu.WholeSize); err != nil {
		return nil, fmt.Errorf("invalidating image memory: %w", err)
	}

	w, h := int(t.image.Width), int(t.image.Height)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	rowBytes := w * 4
	for y := 0; y < h; y++ {
		start := int(layout.Offset) + y*int(layout.RowPitch)
		if start+rowBytes > len(data) {
			return nil, errors.New("image memory smaller than its layout")
		}
		copy(out.Pix[y*out.Stride:y*out.Stride+rowBytes], data[start:start+rowBytes])
	}
	return out, nil
}

// Pixels returns the image read back by the last End, nil before the first.
func (t *PNGTarget) Pixels() *image.RGBA {
	return t.pixels
}

func (t *PNGTarget) Clear() {
	t.frame.clear()
}

func (t *PNGTarget) State() TargetState {
	return t.frame.state
}

func (t *PNGTarget) Stage() *Stage {
	return t.frame.stage
}

func (t *PNGTarget) Image() *Image {
	return t.image
}

// Destroy waits for the device and releases everything in reverse creation
// order.
func (t *PNGTarget) Destroy() error {
	if t.dev == nil {
		return nil
	}
	err := t.dev.Logical.WaitIdle()
	t.release()
	t.dev = nil
	if err != nil {
		return fmt.Errorf("waiting for device idle: %w", err)
	}
	return nil
}

func (t *PNGTarget) release() {
	if t.fence != nil {
		t.fence.Destroy(t.dev)
		t.fence = nil
	}
	if t.pool != nil {
		t.pool.Destroy(t.dev)
		t.pool = nil
		t.cb = nil
	}
	if t.frame != nil {
		t.frame.destroy()
	}
	if t.fb != nil {
		t.fb.Destroy(t.dev)
		t.fb = nil
	}
	if t.renderPass != nil {
		t.renderPass.Destroy(t.dev)
		t.renderPass = nil
	}
	if t.image != nil {
		t.image.Destroy(t.dev)
		t.image = nil
	}
}
