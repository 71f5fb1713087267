package softgpu

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type deviceMarker struct{}

// Device is a logical device. Every object it creates lists the device as a
// parent, so destroying the device early reports each survivor.
type Device struct {
	inst      *Instance
	opt       Options
	family    uint32
	ledger    *ledger
	handle    uint64
	heapUsed  []uint64
	destroyed bool
}

var _ gpu.Device = (*Device)(nil)

func newDevice(in *Instance, opt Options, family uint32) *Device {
	d := &Device{
		inst:     in,
		opt:      opt,
		family:   family,
		ledger:   in.ledger,
		heapUsed: make([]uint64, len(opt.MemoryHeaps)),
	}
	d.handle = in.ledger.add("device", deviceMarker{})
	core.LogDebug("softgpu device %q created (queue family %d)", opt.Name, family)
	return d
}

// add registers a device-owned object.
func (d *Device) add(kind string, value interface{}, parents ...uint64) uint64 {
	return d.ledger.add(kind, value, append([]uint64{d.handle}, parents...)...)
}

func (d *Device) Queue(family, index uint32) gpu.Queue {
	if family != d.family || index != 0 {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("queue %d/%d was not requested at device creation", family, index))
	}
	return gpu.Queue(d.handle)
}

func (d *Device) checkQueue(q gpu.Queue) error {
	if uint64(q) != d.handle {
		d.ledger.violate(ViolationInvalidHandle, fmt.Sprintf("queue %d does not belong to this device", q))
		return &gpu.APIError{Op: "queue", Result: gpu.ErrorInvalidHandle}
	}
	return nil
}

func (d *Device) QueueWaitIdle(q gpu.Queue) error {
	// Submissions complete synchronously.
	return d.checkQueue(q)
}

func (d *Device) WaitIdle() error {
	return nil
}

// Destroy releases the device. Objects still alive are reported.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.ledger.destroy(d.handle, "device")
	d.destroyed = true
	core.LogDebug("softgpu device %q destroyed", d.opt.Name)
}
