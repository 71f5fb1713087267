package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// CreateCommandPool allows individual buffers to be reset.
func (d *Device) CreateCommandPool(queueFamily uint32) (gpu.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var p vk.CommandPool
	if res := vk.CreateCommandPool(d.handle, &poolCreateInfo, d.allocator, &p); res != vk.Success {
		return 0, check("vkCreateCommandPool", res)
	}
	core.LogDebug("Graphics command pool created.")
	return gpu.CommandPool(d.commandPools.put(p)), nil
}

// DestroyCommandPool also frees the buffers allocated from it.
func (d *Device) DestroyCommandPool(p gpu.CommandPool) {
	h, ok := d.commandPools.take(uint64(p))
	if !ok {
		return
	}
	d.commandBuffers.removeIf(func(cb commandBuffer) bool { return cb.pool == uint64(p) })
	vk.DestroyCommandPool(d.handle, h, d.allocator)
}

func (d *Device) AllocateCommandBuffers(p gpu.CommandPool, count uint32) ([]gpu.CommandBuffer, error) {
	pool, ok := d.commandPools.get(uint64(p))
	if !ok {
		return nil, &gpu.APIError{Op: "vkAllocateCommandBuffers", Result: gpu.ErrorInvalidHandle}
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	}
	buffers := make([]vk.CommandBuffer, count)
	err := d.locks.SafeCall(CommandBufferManagement, func() error {
		return check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(d.handle, &allocateInfo, buffers))
	})
	if err != nil {
		core.LogError("failed to allocate command buffer: %s", err)
		return nil, err
	}
	out := make([]gpu.CommandBuffer, count)
	for i, cb := range buffers {
		out[i] = gpu.CommandBuffer(d.commandBuffers.put(commandBuffer{handle: cb, pool: uint64(p)}))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(p gpu.CommandPool, cbs []gpu.CommandBuffer) {
	pool, ok := d.commandPools.get(uint64(p))
	if !ok {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if h, ok := d.commandBuffers.take(uint64(cb)); ok {
			handles = append(handles, h.handle)
		}
	}
	if len(handles) == 0 {
		return
	}
	_ = d.locks.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(d.handle, pool, uint32(len(handles)), handles)
		return nil
	})
}

func (d *Device) commandBuffer(cb gpu.CommandBuffer) vk.CommandBuffer {
	h, _ := d.commandBuffers.get(uint64(cb))
	return h.handle
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, oneTimeSubmit bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check("vkBeginCommandBuffer", vk.BeginCommandBuffer(d.commandBuffer(cb), beginInfo))
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	return check("vkEndCommandBuffer", vk.EndCommandBuffer(d.commandBuffer(cb)))
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	return check("vkResetCommandBuffer", vk.ResetCommandBuffer(d.commandBuffer(cb), 0))
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	rp, _ := d.renderPasses.get(uint64(begin.RenderPass))
	fb, _ := d.framebuffers.get(uint64(begin.Framebuffer))

	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor(begin.ClearColor[:])

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: begin.Width, Height: begin.Height},
		},
		ClearValueCount: 1,
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(d.commandBuffer(cb), &beginInfo, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	vk.CmdEndRenderPass(d.commandBuffer(cb))
}

func (d *Device) CmdBindPipeline(cb gpu.CommandBuffer, p gpu.Pipeline) {
	h, _ := d.pipelines.get(uint64(p))
	vk.CmdBindPipeline(d.commandBuffer(cb), vk.PipelineBindPointGraphics, h)
}

func (d *Device) CmdBindDescriptorSets(cb gpu.CommandBuffer, layout gpu.PipelineLayout, sets []gpu.DescriptorSet) {
	l, _ := d.pipelineLayouts.get(uint64(layout))
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		set, _ := d.descriptorSets.get(uint64(s))
		vkSets[i] = set.handle
	}
	vk.CmdBindDescriptorSets(d.commandBuffer(cb), vk.PipelineBindPointGraphics, l, 0, uint32(len(vkSets)), vkSets, 0, nil)
}

func (d *Device) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding uint32, buffers []gpu.Buffer, offsets []uint64) {
	vkBuffers := make([]vk.Buffer, len(buffers))
	vkOffsets := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		vkBuffers[i], _ = d.buffers.get(uint64(b))
		if i < len(offsets) {
			vkOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(d.commandBuffer(cb), firstBinding, uint32(len(vkBuffers)), vkBuffers, vkOffsets)
}

func (d *Device) CmdBindIndexBuffer(cb gpu.CommandBuffer, b gpu.Buffer, offset uint64, t gpu.IndexType) {
	h, _ := d.buffers.get(uint64(b))
	vk.CmdBindIndexBuffer(d.commandBuffer(cb), h, vk.DeviceSize(offset), toIndexType(t))
}

func (d *Device) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(d.commandBuffer(cb), indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if res := vk.CreateFence(d.handle, &fenceCreateInfo, d.allocator, &f); res != vk.Success {
		return 0, check("vkCreateFence", res)
	}
	return gpu.Fence(d.fences.put(f)), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	if h, ok := d.fences.take(uint64(f)); ok {
		vk.DestroyFence(d.handle, h, d.allocator)
	}
}

func (d *Device) resolveFences(fences []gpu.Fence) []vk.Fence {
	out := make([]vk.Fence, len(fences))
	for i, f := range fences {
		out[i], _ = d.fences.get(uint64(f))
	}
	return out
}

func (d *Device) WaitForFences(fences []gpu.Fence, timeout uint64) error {
	vkFences := d.resolveFences(fences)
	res := vk.WaitForFences(d.handle, uint32(len(vkFences)), vkFences, vk.True, timeout)
	if res == vk.Timeout {
		return gpu.Timeout
	}
	return check("vkWaitForFences", res)
}

func (d *Device) ResetFences(fences []gpu.Fence) error {
	vkFences := d.resolveFences(fences)
	return d.locks.SafeCall(SynchronizationManagement, func() error {
		return check("vkResetFences", vk.ResetFences(d.handle, uint32(len(vkFences)), vkFences))
	})
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var s vk.Semaphore
	if res := vk.CreateSemaphore(d.handle, &semaphoreCreateInfo, d.allocator, &s); res != vk.Success {
		return 0, check("vkCreateSemaphore", res)
	}
	return gpu.Semaphore(d.semaphores.put(s)), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	if h, ok := d.semaphores.take(uint64(s)); ok {
		vk.DestroySemaphore(d.handle, h, d.allocator)
	}
}

func (d *Device) resolveSemaphores(sems []gpu.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(sems))
	for i, s := range sems {
		out[i], _ = d.semaphores.get(uint64(s))
	}
	return out
}

// QueueSubmit waits every semaphore at the colour attachment output stage.
func (d *Device) QueueSubmit(q gpu.Queue, submits []gpu.SubmitInfo, fence gpu.Fence) error {
	qu, ok := d.queues.get(uint64(q))
	if !ok {
		return &gpu.APIError{Op: "vkQueueSubmit", Result: gpu.ErrorInvalidHandle}
	}
	infos := make([]vk.SubmitInfo, len(submits))
	for i, s := range submits {
		cbs := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for j, cb := range s.CommandBuffers {
			cbs[j] = d.commandBuffer(cb)
		}
		stages := make([]vk.PipelineStageFlags, len(s.Wait))
		for j := range stages {
			stages[j] = vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(s.Wait)),
			PWaitSemaphores:      d.resolveSemaphores(s.Wait),
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(cbs)),
			PCommandBuffers:      cbs,
			SignalSemaphoreCount: uint32(len(s.Signal)),
			PSignalSemaphores:    d.resolveSemaphores(s.Signal),
		}
	}
	var vkFence vk.Fence
	if fence != 0 {
		vkFence, _ = d.fences.get(uint64(fence))
	}
	return d.locks.SafeQueueCall(qu.family, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(qu.handle, uint32(len(infos)), infos, vkFence))
	})
}

func (d *Device) QueueWaitIdle(q gpu.Queue) error {
	qu, ok := d.queues.get(uint64(q))
	if !ok {
		return &gpu.APIError{Op: "vkQueueWaitIdle", Result: gpu.ErrorInvalidHandle}
	}
	return d.locks.SafeQueueCall(qu.family, func() error {
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(qu.handle))
	})
}
