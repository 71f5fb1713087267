package softgpu

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbInvalid
)

// command runs against the executor at submit time.
type command func(ex *executor) error

type commandPool struct {
	family  uint32
	buffers []uint64
}

type commandBuffer struct {
	pool     uint64
	state    cbState
	oneTime  bool
	inPass   bool
	commands []command
}

type fence struct {
	signaled bool
}

type semaphore struct {
	signaled bool
}

func (d *Device) CreateCommandPool(queueFamily uint32) (gpu.CommandPool, error) {
	if queueFamily != d.family {
		return 0, gpu.Check("vkCreateCommandPool", gpu.ErrorInitializationFailed)
	}
	return gpu.CommandPool(d.add("command_pool", &commandPool{family: queueFamily})), nil
}

// DestroyCommandPool frees the pool's command buffers with it.
func (d *Device) DestroyCommandPool(p gpu.CommandPool) {
	if p == 0 {
		return
	}
	if pool, err := lookup[*commandPool](d.ledger, uint64(p), "command_pool"); err == nil {
		for _, cb := range pool.buffers {
			d.ledger.remove(cb)
		}
		pool.buffers = nil
	}
	d.ledger.destroy(uint64(p), "command_pool")
}

func (d *Device) AllocateCommandBuffers(p gpu.CommandPool, count uint32) ([]gpu.CommandBuffer, error) {
	pool, err := lookup[*commandPool](d.ledger, uint64(p), "command_pool")
	if err != nil {
		return nil, err
	}
	out := make([]gpu.CommandBuffer, count)
	for i := range out {
		h := d.add("command_buffer", &commandBuffer{pool: uint64(p)}, uint64(p))
		pool.buffers = append(pool.buffers, h)
		out[i] = gpu.CommandBuffer(h)
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(p gpu.CommandPool, cbs []gpu.CommandBuffer) {
	pool, err := lookup[*commandPool](d.ledger, uint64(p), "command_pool")
	if err != nil {
		return
	}
	for _, cb := range cbs {
		if !d.ledger.destroy(uint64(cb), "command_buffer") {
			continue
		}
		for i, h := range pool.buffers {
			if h == uint64(cb) {
				pool.buffers = append(pool.buffers[:i], pool.buffers[i+1:]...)
				break
			}
		}
	}
}

func (d *Device) commandBuffer(cb gpu.CommandBuffer) (*commandBuffer, error) {
	return lookup[*commandBuffer](d.ledger, uint64(cb), "command_buffer")
}

func (d *Device) BeginCommandBuffer(cb gpu.CommandBuffer, oneTimeSubmit bool) error {
	c, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	if c.state == cbRecording {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("command buffer %d begun while recording", cb))
		return gpu.Check("vkBeginCommandBuffer", gpu.ErrorInitializationFailed)
	}
	// Begin implicitly resets an executable buffer.
	c.commands = c.commands[:0]
	c.state = cbRecording
	c.oneTime = oneTimeSubmit
	c.inPass = false
	return nil
}

func (d *Device) EndCommandBuffer(cb gpu.CommandBuffer) error {
	c, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	if c.state != cbRecording {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("command buffer %d ended while not recording", cb))
		return gpu.Check("vkEndCommandBuffer", gpu.ErrorInitializationFailed)
	}
	if c.inPass {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("command buffer %d ended inside a render pass", cb))
	}
	c.state = cbExecutable
	return nil
}

func (d *Device) ResetCommandBuffer(cb gpu.CommandBuffer) error {
	c, err := d.commandBuffer(cb)
	if err != nil {
		return err
	}
	c.commands = nil
	c.state = cbInitial
	c.inPass = false
	return nil
}

// record appends cmd when cb is recording.
func (d *Device) record(cb gpu.CommandBuffer, name string, cmd command) *commandBuffer {
	c, err := d.commandBuffer(cb)
	if err != nil {
		return nil
	}
	if c.state != cbRecording {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("%s recorded into command buffer %d outside begin/end", name, cb))
		return nil
	}
	c.commands = append(c.commands, cmd)
	return c
}

func (d *Device) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	c := d.record(cb, "vkCmdBeginRenderPass", func(ex *executor) error {
		return ex.beginRenderPass(begin)
	})
	if c != nil {
		if c.inPass {
			d.ledger.violate(ViolationInvalidUsage, "render pass begun inside a render pass")
		}
		c.inPass = true
	}
}

func (d *Device) CmdEndRenderPass(cb gpu.CommandBuffer) {
	c := d.record(cb, "vkCmdEndRenderPass", func(ex *executor) error {
		ex.endRenderPass()
		return nil
	})
	if c != nil {
		if !c.inPass {
			d.ledger.violate(ViolationInvalidUsage, "render pass ended outside a render pass")
		}
		c.inPass = false
	}
}

func (d *Device) CmdBindPipeline(cb gpu.CommandBuffer, p gpu.Pipeline) {
	d.record(cb, "vkCmdBindPipeline", func(ex *executor) error {
		return ex.bindPipeline(p)
	})
}

func (d *Device) CmdBindDescriptorSets(cb gpu.CommandBuffer, layout gpu.PipelineLayout, sets []gpu.DescriptorSet) {
	sets = append([]gpu.DescriptorSet(nil), sets...)
	d.record(cb, "vkCmdBindDescriptorSets", func(ex *executor) error {
		ex.sets = sets
		return nil
	})
}

func (d *Device) CmdBindVertexBuffers(cb gpu.CommandBuffer, firstBinding uint32, buffers []gpu.Buffer, offsets []uint64) {
	buffers = append([]gpu.Buffer(nil), buffers...)
	offsets = append([]uint64(nil), offsets...)
	d.record(cb, "vkCmdBindVertexBuffers", func(ex *executor) error {
		for i, b := range buffers {
			ex.vertexBuffers[firstBinding+uint32(i)] = boundBuffer{buffer: b, offset: offsets[i]}
		}
		return nil
	})
}

func (d *Device) CmdBindIndexBuffer(cb gpu.CommandBuffer, b gpu.Buffer, offset uint64, t gpu.IndexType) {
	d.record(cb, "vkCmdBindIndexBuffer", func(ex *executor) error {
		ex.indexBuffer = boundBuffer{buffer: b, offset: offset}
		ex.indexType = t
		return nil
	})
}

func (d *Device) CmdDrawIndexed(cb gpu.CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	d.record(cb, "vkCmdDrawIndexed", func(ex *executor) error {
		for i := uint32(0); i < instanceCount; i++ {
			if err := ex.drawIndexed(indexCount, firstIndex, vertexOffset); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	return gpu.Fence(d.add("fence", &fence{signaled: signaled})), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.ledger.destroy(uint64(f), "fence")
}

// WaitForFences never blocks: work has either completed or was never
// submitted, in which case the wait times out.
func (d *Device) WaitForFences(fences []gpu.Fence, timeout uint64) error {
	for _, f := range fences {
		fc, err := lookup[*fence](d.ledger, uint64(f), "fence")
		if err != nil {
			return err
		}
		if !fc.signaled {
			return gpu.Check("vkWaitForFences", gpu.Timeout)
		}
	}
	return nil
}

func (d *Device) ResetFences(fences []gpu.Fence) error {
	for _, f := range fences {
		fc, err := lookup[*fence](d.ledger, uint64(f), "fence")
		if err != nil {
			return err
		}
		fc.signaled = false
	}
	return nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	return gpu.Semaphore(d.add("semaphore", &semaphore{})), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.ledger.destroy(uint64(s), "semaphore")
}

func (d *Device) semaphore(s gpu.Semaphore) (*semaphore, error) {
	return lookup[*semaphore](d.ledger, uint64(s), "semaphore")
}

func (d *Device) waitSemaphores(op string, sems []gpu.Semaphore) error {
	for _, s := range sems {
		sem, err := d.semaphore(s)
		if err != nil {
			return err
		}
		if !sem.signaled {
			d.ledger.violate(ViolationUnsignaledWait, fmt.Sprintf("%s waits on semaphore %d that is never signaled", op, s))
		}
		sem.signaled = false
	}
	return nil
}

func (d *Device) signalSemaphore(op string, s gpu.Semaphore) error {
	sem, err := d.semaphore(s)
	if err != nil {
		return err
	}
	if sem.signaled {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("%s signals semaphore %d that is already signaled", op, s))
	}
	sem.signaled = true
	return nil
}

// QueueSubmit executes every command buffer before returning.
func (d *Device) QueueSubmit(q gpu.Queue, submits []gpu.SubmitInfo, f gpu.Fence) error {
	if err := d.checkQueue(q); err != nil {
		return err
	}
	var fc *fence
	if f != 0 {
		var err error
		if fc, err = lookup[*fence](d.ledger, uint64(f), "fence"); err != nil {
			return err
		}
		if fc.signaled {
			d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("submit with fence %d that is already signaled", f))
		}
	}
	for _, s := range submits {
		if err := d.waitSemaphores("vkQueueSubmit", s.Wait); err != nil {
			return err
		}
		for _, cb := range s.CommandBuffers {
			c, err := d.commandBuffer(cb)
			if err != nil {
				return err
			}
			if c.state != cbExecutable {
				d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("command buffer %d submitted while not executable", cb))
				return gpu.Check("vkQueueSubmit", gpu.ErrorInitializationFailed)
			}
			ex := newExecutor(d)
			for _, cmd := range c.commands {
				if err := cmd(ex); err != nil {
					return fmt.Errorf("executing command buffer %d: %w", cb, err)
				}
			}
			if c.oneTime {
				c.state = cbInvalid
			}
		}
		for _, sem := range s.Signal {
			if err := d.signalSemaphore("vkQueueSubmit", sem); err != nil {
				return err
			}
		}
	}
	if fc != nil {
		fc.signaled = true
	}
	return nil
}
