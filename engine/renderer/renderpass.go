package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// RenderPass has a single colour attachment cleared on load and stored at
// the end.
type RenderPass struct {
	Handle      gpu.RenderPass
	Format      gpu.Format
	FinalLayout gpu.ImageLayout
}

func NewRenderPass(dev *Device, format gpu.Format, finalLayout gpu.ImageLayout) (*RenderPass, error) {
	handle, err := dev.Logical.CreateRenderPass(gpu.RenderPassInfo{Format: format, FinalLayout: finalLayout})
	if err != nil {
		core.LogError("failed to create render pass: %s", err)
		return nil, fmt.Errorf("creating render pass: %w", err)
	}
	return &RenderPass{Handle: handle, Format: format, FinalLayout: finalLayout}, nil
}

func (rp *RenderPass) Destroy(dev *Device) {
	if rp.Handle != 0 {
		dev.Logical.DestroyRenderPass(rp.Handle)
		rp.Handle = 0
	}
}
