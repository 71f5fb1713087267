package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type CommandBufferState int

const (
	CommandBufferNotAllocated CommandBufferState = iota
	CommandBufferReady
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
)

type CommandBuffer struct {
	Handle gpu.CommandBuffer
	State  CommandBufferState
}

// CommandPool owns the command buffers allocated from it; destroying the
// pool frees them.
type CommandPool struct {
	Handle  gpu.CommandPool
	Buffers []*CommandBuffer
}

func NewCommandPool(dev *Device) (*CommandPool, error) {
	handle, err := dev.Logical.CreateCommandPool(dev.QueueFamily)
	if err != nil {
		core.LogError("failed to create command pool: %s", err)
		return nil, fmt.Errorf("creating command pool: %w", err)
	}
	return &CommandPool{Handle: handle}, nil
}

func (p *CommandPool) Allocate(dev *Device, count uint32) ([]*CommandBuffer, error) {
	handles, err := dev.Logical.AllocateCommandBuffers(p.Handle, count)
	if err != nil {
		core.LogError("failed to allocate %d command buffer(s): %s", count, err)
		return nil, fmt.Errorf("allocating command buffers: %w", err)
	}
	out := make([]*CommandBuffer, len(handles))
	for i, h := range handles {
		out[i] = &CommandBuffer{Handle: h, State: CommandBufferReady}
	}
	p.Buffers = append(p.Buffers, out...)
	return out, nil
}

func (p *CommandPool) Destroy(dev *Device) {
	if p.Handle == 0 {
		return
	}
	dev.Logical.DestroyCommandPool(p.Handle)
	p.Handle = 0
	for _, cb := range p.Buffers {
		cb.Handle = 0
		cb.State = CommandBufferNotAllocated
	}
	p.Buffers = nil
}

func (cb *CommandBuffer) Begin(dev *Device, singleUse bool) error {
	if err := dev.Logical.BeginCommandBuffer(cb.Handle, singleUse); err != nil {
		core.LogError("failed to begin command buffer: %s", err)
		return fmt.Errorf("beginning command buffer: %w", err)
	}
	cb.State = CommandBufferRecording
	return nil
}

func (cb *CommandBuffer) End(dev *Device) error {
	if err := dev.Logical.EndCommandBuffer(cb.Handle); err != nil {
		core.LogError("failed to end command buffer: %s", err)
		return fmt.Errorf("ending command buffer: %w", err)
	}
	cb.State = CommandBufferRecordingEnded
	return nil
}

func (cb *CommandBuffer) BeginRenderPass(dev *Device, begin gpu.RenderPassBegin) {
	dev.Logical.CmdBeginRenderPass(cb.Handle, begin)
	cb.State = CommandBufferInRenderPass
}

func (cb *CommandBuffer) EndRenderPass(dev *Device) {
	dev.Logical.CmdEndRenderPass(cb.Handle)
	cb.State = CommandBufferRecording
}

func (cb *CommandBuffer) UpdateSubmitted() {
	cb.State = CommandBufferSubmitted
}

func (cb *CommandBuffer) Reset(dev *Device) error {
	if err := dev.Logical.ResetCommandBuffer(cb.Handle); err != nil {
		return fmt.Errorf("resetting command buffer: %w", err)
	}
	cb.State = CommandBufferReady
	return nil
}
