package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// DefaultFrameTimeout bounds the wait for the previous frame's fence.
const DefaultFrameTimeout = uint64(time.Second)

type SurfaceTargetConfig struct {
	TargetOptions
	Instance gpu.Instance
	Window   gpu.Window
	// Requirements are merged with graphics and present support.
	Requirements PhysicalDeviceRequirements
	// FrameTimeout is in nanoseconds; 0 means DefaultFrameTimeout.
	FrameTimeout uint64
}

/**
 * @brief Renders into a window surface through a swapchain. The target owns
 * the surface and the logical device it creates for it.
 */
type SurfaceTarget struct {
	frame          *frame
	inst           gpu.Instance
	window         gpu.Window
	surface        gpu.Surface
	dev            *Device
	swapchain      *Swapchain
	renderPass     *RenderPass
	pool           *CommandPool
	buffers        []*CommandBuffer
	imageAvailable gpu.Semaphore
	renderComplete gpu.Semaphore
	fence          *Fence
	timeout        uint64

	imageIndex  uint32
	needsResize bool
	recreations int
}

var _ RenderTarget = (*SurfaceTarget)(nil)

func NewSurfaceTarget(cfg SurfaceTargetConfig) (*SurfaceTarget, error) {
	err := core.RequireParams(
		core.Param{Name: "instance", Present: cfg.Instance != nil},
		core.Param{Name: "window", Present: cfg.Window != nil},
	)
	if err != nil {
		return nil, err
	}
	t := &SurfaceTarget{
		inst:    cfg.Instance,
		window:  cfg.Window,
		timeout: cfg.FrameTimeout,
	}
	if t.timeout == 0 {
		t.timeout = DefaultFrameTimeout
	}
	if err := t.init(cfg); err != nil {
		t.release()
		return nil, err
	}
	core.LogDebug("surface target %s created: %dx%d", t.frame.id.Short(), t.swapchain.Extent.Width, t.swapchain.Extent.Height)
	return t, nil
}

func (t *SurfaceTarget) init(cfg SurfaceTargetConfig) error {
	var err error
	if t.surface, err = t.inst.CreateSurface(t.window); err != nil {
		core.LogError("failed to create surface: %s", err)
		return fmt.Errorf("creating surface: %w", err)
	}

	req := cfg.Requirements
	req.Graphics = true
	req.Present = true
	req.Surface = t.surface
	if t.dev, err = NewDevice(t.inst, req, SwapchainExtension); err != nil {
		return err
	}

	w, h := t.window.GetFramebufferSize()
	if t.swapchain, err = NewSwapchain(t.dev, t.surface, uint32(w), uint32(h), nil); err != nil {
		return err
	}
	if t.renderPass, err = NewRenderPass(t.dev, t.swapchain.ImageFormat.Format, gpu.ImageLayoutPresentSrc); err != nil {
		return err
	}
	if err = t.swapchain.CreateFramebuffers(t.dev, t.renderPass); err != nil {
		return err
	}
	if t.frame, err = newFrame(t.dev, cfg.TargetOptions, t.renderPass, t.swapchain.Images[0]); err != nil {
		return err
	}
	if t.pool, err = NewCommandPool(t.dev); err != nil {
		return err
	}
	if err = t.ensureCommandBuffers(); err != nil {
		return err
	}
	if err = t.createSemaphores(); err != nil {
		return err
	}
	// Signaled so the first Begin does not wait.
	if t.fence, err = NewFence(t.dev, true); err != nil {
		return err
	}
	return nil
}

func (t *SurfaceTarget) ensureCommandBuffers() error {
	missing := len(t.swapchain.Images) - len(t.buffers)
	if missing <= 0 {
		return nil
	}
	buffers, err := t.pool.Allocate(t.dev, uint32(missing))
	if err != nil {
		return err
	}
	t.buffers = append(t.buffers, buffers...)
	return nil
}

func (t *SurfaceTarget) createSemaphores() error {
	var err error
	if t.imageAvailable, err = t.dev.Logical.CreateSemaphore(); err != nil {
		return fmt.Errorf("creating semaphore: %w", err)
	}
	if t.renderComplete, err = t.dev.Logical.CreateSemaphore(); err != nil {
		return fmt.Errorf("creating semaphore: %w", err)
	}
	return nil
}

func (t *SurfaceTarget) destroySemaphores() {
	if t.imageAvailable != 0 {
		t.dev.Logical.DestroySemaphore(t.imageAvailable)
		t.imageAvailable = 0
	}
	if t.renderComplete != 0 {
		t.dev.Logical.DestroySemaphore(t.renderComplete)
		t.renderComplete = 0
	}
}

// MarkResized requests a swapchain rebuild at the next Begin. It is meant
// for window resize callbacks.
func (t *SurfaceTarget) MarkResized() {
	t.needsResize = true
}

// recreate rebuilds the swapchain and everything sized from it: views,
// framebuffers, render pass, pipeline and the stage size. The semaphores are
// replaced too since an abandoned acquisition may have left one signaled.
// The old swapchain is kept until its replacement exists, and a failed
// rebuild leaves the resize pending so the next Begin retries it.
func (t *SurfaceTarget) recreate() error {
	t.needsResize = true
	if err := t.dev.Logical.WaitIdle(); err != nil {
		return fmt.Errorf("waiting for device idle: %w", err)
	}
	w, h := t.window.GetFramebufferSize()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("window has no drawable area (%dx%d): %w", w, h, core.ErrInvalidState)
	}

	sc, err := NewSwapchain(t.dev, t.surface, uint32(w), uint32(h), t.swapchain)
	if err != nil {
		return err
	}
	if t.swapchain != nil {
		t.swapchain.Destroy(t.dev)
	}
	t.swapchain = sc

	if sc.ImageFormat.Format != t.renderPass.Format {
		rp, err := NewRenderPass(t.dev, sc.ImageFormat.Format, gpu.ImageLayoutPresentSrc)
		if err != nil {
			return err
		}
		// The pipeline references the old render pass.
		if t.frame.pipeline != nil {
			t.frame.pipeline.Destroy(t.dev)
			t.frame.pipeline = nil
		}
		t.renderPass.Destroy(t.dev)
		t.renderPass = rp
	}
	if err := sc.CreateFramebuffers(t.dev, t.renderPass); err != nil {
		return err
	}

	t.frame.renderPass = t.renderPass
	t.frame.image = sc.Images[0]
	if err := t.frame.rebuildPipeline(); err != nil {
		return err
	}
	// The matrices are rewritten by the next Stage.Update.
	t.frame.stage.Resize(sc.Extent.Width, sc.Extent.Height)

	if err := t.ensureCommandBuffers(); err != nil {
		return err
	}
	t.destroySemaphores()
	if err := t.createSemaphores(); err != nil {
		return err
	}
	t.needsResize = false
	t.recreations++
	core.LogInfo("swapchain recreated: %dx%d", sc.Extent.Width, sc.Extent.Height)
	return nil
}

// Sync waits for the frame in flight and applies a pending resize. After it
// returns the stage and the stored paths are no longer read by the device.
func (t *SurfaceTarget) Sync() error {
	if t.frame.state == TargetRecording {
		return fmt.Errorf("sync while recording: %w", core.ErrInvalidState)
	}
	if err := t.fence.Wait(t.dev, t.timeout); err != nil {
		return err
	}
	if t.needsResize {
		return t.recreate()
	}
	return nil
}

func staleSwapchain(err error) bool {
	return errors.Is(err, gpu.ErrorOutOfDate) || errors.Is(err, gpu.Suboptimal)
}

// Begin waits for the previous frame, then acquires the next image. An
// out-of-date or suboptimal swapchain is rebuilt once before retrying.
func (t *SurfaceTarget) Begin() error {
	if err := t.frame.begin(); err != nil {
		return err
	}
	if err := t.fence.Wait(t.dev, t.timeout); err != nil {
		core.LogError("previous frame did not complete: %s", err)
		return err
	}
	if t.needsResize {
		if err := t.recreate(); err != nil {
			return err
		}
	}

	idx, err := t.swapchain.AcquireNextImage(t.dev, t.timeout, t.imageAvailable)
	if staleSwapchain(err) {
		if err := t.recreate(); err != nil {
			return err
		}
		idx, err = t.swapchain.AcquireNextImage(t.dev, t.timeout, t.imageAvailable)
		if errors.Is(err, gpu.Suboptimal) {
			// The image is still usable; rebuild after this frame.
			t.needsResize = true
			err = nil
		}
	}
	if err != nil {
		core.LogError("failed to acquire swapchain image: %s", err)
		return fmt.Errorf("acquiring swapchain image: %w", err)
	}

	t.imageIndex = idx
	t.frame.startRecording()
	return nil
}

func (t *SurfaceTarget) Fill(src geometry.Source) error {
	return t.frame.fill(src)
}

// End submits the frame and presents it without waiting for the device. A
// stale swapchain reported by present is rebuilt at the next Begin.
func (t *SurfaceTarget) End() error {
	if t.frame.state != TargetRecording {
		return fmt.Errorf("end without begin: %w", core.ErrInvalidState)
	}
	defer t.frame.finish()

	cb := t.buffers[t.imageIndex]
	if err := t.frame.record(cb, t.swapchain.Framebuffers[t.imageIndex]); err != nil {
		return err
	}
	// Reset only once a submission will signal it again.
	if err := t.fence.Reset(t.dev); err != nil {
		return err
	}
	err := t.dev.Logical.QueueSubmit(t.dev.Queue, []gpu.SubmitInfo{{
		CommandBuffers: []gpu.CommandBuffer{cb.Handle},
		Wait:           []gpu.Semaphore{t.imageAvailable},
		Signal:         []gpu.Semaphore{t.renderComplete},
	}}, t.fence.Handle)
	if err != nil {
		core.LogError("failed to submit frame: %s", err)
		return fmt.Errorf("submitting frame: %w", err)
	}
	cb.UpdateSubmitted()

	err = t.swapchain.Present(t.dev, t.renderComplete, t.imageIndex)
	if staleSwapchain(err) {
		t.needsResize = true
		return nil
	}
	if err != nil {
		core.LogError("failed to present swapchain image: %s", err)
		return fmt.Errorf("presenting swapchain image: %w", err)
	}
	return nil
}

// Clear destroys the stored paths once the frame in flight is done with
// them. If that frame cannot be waited for the paths are kept and released
// by Destroy.
func (t *SurfaceTarget) Clear() {
	if err := t.fence.Wait(t.dev, t.timeout); err != nil {
		core.LogError("clear skipped, previous frame did not complete: %s", err)
		return
	}
	t.frame.clear()
}

func (t *SurfaceTarget) State() TargetState {
	return t.frame.state
}

func (t *SurfaceTarget) Stage() *Stage {
	return t.frame.stage
}

func (t *SurfaceTarget) Device() *Device {
	return t.dev
}

// Extent is the current swapchain size.
func (t *SurfaceTarget) Extent() gpu.Extent {
	return t.swapchain.Extent
}

// Recreations counts swapchain rebuilds since construction.
func (t *SurfaceTarget) Recreations() int {
	return t.recreations
}

func (t *SurfaceTarget) Destroy() error {
	if t.dev == nil {
		return nil
	}
	err := t.dev.Logical.WaitIdle()
	t.release()
	if err != nil {
		return fmt.Errorf("waiting for device idle: %w", err)
	}
	return nil
}

// release tears down in reverse dependency order, ending with the device
// and the surface.
func (t *SurfaceTarget) release() {
	if t.dev != nil {
		if t.fence != nil {
			t.fence.Destroy(t.dev)
			t.fence = nil
		}
		t.destroySemaphores()
		if t.pool != nil {
			t.pool.Destroy(t.dev)
			t.pool = nil
			t.buffers = nil
		}
		if t.frame != nil {
			t.frame.destroy()
		}
		if t.swapchain != nil {
			t.swapchain.Destroy(t.dev)
			t.swapchain = nil
		}
		if t.renderPass != nil {
			t.renderPass.Destroy(t.dev)
			t.renderPass = nil
		}
	}
	if t.surface != 0 {
		t.inst.DestroySurface(t.surface)
		t.surface = 0
	}
	if t.dev != nil {
		t.dev.Destroy()
		t.dev = nil
	}
}
