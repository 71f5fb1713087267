package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type Framebuffer struct {
	Handle     gpu.Framebuffer
	Width      uint32
	Height     uint32
	Renderpass *RenderPass
}

func NewFramebuffer(dev *Device, renderpass *RenderPass, image *Image) (*Framebuffer, error) {
	handle, err := dev.Logical.CreateFramebuffer(gpu.FramebufferInfo{
		RenderPass:  renderpass.Handle,
		Attachments: []gpu.ImageView{image.View},
		Width:       image.Width,
		Height:      image.Height,
	})
	if err != nil {
		core.LogError("failed to create framebuffer: %s", err)
		return nil, fmt.Errorf("creating framebuffer: %w", err)
	}
	return &Framebuffer{
		Handle:     handle,
		Width:      image.Width,
		Height:     image.Height,
		Renderpass: renderpass,
	}, nil
}

func (fb *Framebuffer) Destroy(dev *Device) {
	if fb.Handle != 0 {
		dev.Logical.DestroyFramebuffer(fb.Handle)
		fb.Handle = 0
	}
	fb.Renderpass = nil
}
