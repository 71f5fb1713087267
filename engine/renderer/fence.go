package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type Fence struct {
	Handle     gpu.Fence
	IsSignaled bool
}

func NewFence(dev *Device, createSignaled bool) (*Fence, error) {
	handle, err := dev.Logical.CreateFence(createSignaled)
	if err != nil {
		core.LogError("failed to create fence: %s", err)
		return nil, fmt.Errorf("creating fence: %w", err)
	}
	return &Fence{Handle: handle, IsSignaled: createSignaled}, nil
}

func (f *Fence) Destroy(dev *Device) {
	if f.Handle != 0 {
		dev.Logical.DestroyFence(f.Handle)
		f.Handle = 0
	}
	f.IsSignaled = false
}

// Wait blocks until the fence is signaled. An already signaled fence returns
// immediately.
func (f *Fence) Wait(dev *Device, timeoutNs uint64) error {
	if f.IsSignaled {
		return nil
	}
	err := dev.Logical.WaitForFences([]gpu.Fence{f.Handle}, timeoutNs)
	switch {
	case err == nil:
		f.IsSignaled = true
		return nil
	case errors.Is(err, gpu.Timeout):
		core.LogWarn("fence wait - timed out")
	case errors.Is(err, gpu.ErrorDeviceLost):
		core.LogError("fence wait - ERROR_DEVICE_LOST")
	case errors.Is(err, gpu.ErrorOutOfHostMemory):
		core.LogError("fence wait - ERROR_OUT_OF_HOST_MEMORY")
	case errors.Is(err, gpu.ErrorOutOfDeviceMemory):
		core.LogError("fence wait - ERROR_OUT_OF_DEVICE_MEMORY")
	default:
		core.LogError("fence wait - an unknown error has occurred: %s", err)
	}
	return fmt.Errorf("waiting for fence: %w", err)
}

func (f *Fence) Reset(dev *Device) error {
	if !f.IsSignaled {
		return nil
	}
	if err := dev.Logical.ResetFences([]gpu.Fence{f.Handle}); err != nil {
		core.LogError("failed to reset fence: %s", err)
		return fmt.Errorf("resetting fence: %w", err)
	}
	f.IsSignaled = false
	return nil
}
