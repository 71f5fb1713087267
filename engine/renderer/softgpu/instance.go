// Package softgpu is a CPU implementation of the gpu driver contract.
//
// It executes command buffers synchronously at submit time, rasterizes
// triangles into host memory and keeps a ledger of every object it hands out.
// Misuse that a Vulkan validation layer would flag (destroying a buffer whose
// memory is still allocated, destroying a parent before its children, waiting
// on an unsignaled semaphore, unmapping non-coherent memory with unflushed
// writes) is recorded as a Violation instead of crashing, so tests can assert
// a clean run.
//
// Shader modules are checked for a SPIR-V header but not executed: the vertex
// stage applies projection * view * model from the uniform at set 0 binding 0
// to the position attribute (location 0), and the fragment stage writes the
// interpolated colour attribute (location 1).
package softgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// Options describes one simulated physical device.
type Options struct {
	Name                string
	Type                gpu.DeviceType
	QueueFamilies       []gpu.QueueFamily
	MemoryTypes         []gpu.MemoryType
	MemoryHeaps         []gpu.MemoryHeap
	NonCoherentAtomSize uint64
}

func DefaultOptions() Options {
	return Options{
		Name: "softgpu",
		Type: gpu.DeviceTypeCPU,
		QueueFamilies: []gpu.QueueFamily{
			{Index: 0, Flags: gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer, Count: 1},
		},
		MemoryTypes: []gpu.MemoryType{
			{PropertyFlags: gpu.MemoryDeviceLocal, HeapIndex: 0},
			{PropertyFlags: gpu.MemoryHostVisible, HeapIndex: 1},
			{PropertyFlags: gpu.MemoryHostVisible | gpu.MemoryHostCoherent, HeapIndex: 1},
			{PropertyFlags: gpu.MemoryDeviceLocal | gpu.MemoryHostVisible | gpu.MemoryHostCoherent, HeapIndex: 0},
		},
		MemoryHeaps: []gpu.MemoryHeap{
			{Size: 256 << 20, DeviceLocal: true},
			{Size: 256 << 20},
		},
		NonCoherentAtomSize: 64,
	}
}

type surface struct {
	window gpu.Window
}

// Instance is the driver entry point. It owns the shared object ledger of all
// devices created from it.
type Instance struct {
	mu      sync.Mutex
	devices []Options
	ledger  *ledger
	live    []*Device

	acquireResults   []gpu.Result
	swapchainResults []gpu.Result
	frames           []Frame
}

// NewInstance creates an instance exposing one physical device per option, or
// a single DefaultOptions device when none are given.
func NewInstance(devices ...Options) *Instance {
	if len(devices) == 0 {
		devices = []Options{DefaultOptions()}
	}
	core.LogDebug("softgpu instance created with %d physical device(s)", len(devices))
	return &Instance{
		devices: devices,
		ledger:  newLedger(),
	}
}

func (in *Instance) option(pd gpu.PhysicalDevice) (Options, bool) {
	i := int(pd) - 1
	if i < 0 || i >= len(in.devices) {
		return Options{}, false
	}
	return in.devices[i], true
}

func (in *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	out := make([]gpu.PhysicalDevice, len(in.devices))
	for i := range in.devices {
		out[i] = gpu.PhysicalDevice(i + 1)
	}
	return out, nil
}

func (in *Instance) Properties(pd gpu.PhysicalDevice) gpu.PhysicalDeviceProperties {
	opt, _ := in.option(pd)
	return gpu.PhysicalDeviceProperties{
		Name:                opt.Name,
		Type:                opt.Type,
		APIVersion:          1<<22 | 3<<12,
		NonCoherentAtomSize: opt.NonCoherentAtomSize,
	}
}

func (in *Instance) QueueFamilies(pd gpu.PhysicalDevice) []gpu.QueueFamily {
	opt, _ := in.option(pd)
	return append([]gpu.QueueFamily(nil), opt.QueueFamilies...)
}

func (in *Instance) MemoryProperties(pd gpu.PhysicalDevice) gpu.MemoryProperties {
	opt, _ := in.option(pd)
	return gpu.MemoryProperties{
		Types: append([]gpu.MemoryType(nil), opt.MemoryTypes...),
		Heaps: append([]gpu.MemoryHeap(nil), opt.MemoryHeaps...),
	}
}

func (in *Instance) CreateDevice(pd gpu.PhysicalDevice, info gpu.DeviceInfo) (gpu.Device, error) {
	opt, ok := in.option(pd)
	if !ok {
		return nil, gpu.Check("vkCreateDevice", gpu.ErrorInitializationFailed)
	}
	found := false
	for _, qf := range opt.QueueFamilies {
		if qf.Index == info.QueueFamily {
			found = true
		}
	}
	if !found {
		return nil, gpu.Check("vkCreateDevice", gpu.ErrorFeatureNotPresent)
	}
	d := newDevice(in, opt, info.QueueFamily)
	in.live = append(in.live, d)
	return d, nil
}

func (in *Instance) CreateSurface(w gpu.Window) (gpu.Surface, error) {
	if w == nil {
		return 0, gpu.Check("vkCreateSurface", gpu.ErrorInitializationFailed)
	}
	h := in.ledger.add("surface", &surface{window: w})
	return gpu.Surface(h), nil
}

func (in *Instance) surface(s gpu.Surface) (*surface, error) {
	return lookup[*surface](in.ledger, uint64(s), "surface")
}

func (in *Instance) SurfaceSupport(pd gpu.PhysicalDevice, queueFamily uint32, s gpu.Surface) (bool, error) {
	if _, err := in.surface(s); err != nil {
		return false, err
	}
	opt, _ := in.option(pd)
	for _, qf := range opt.QueueFamilies {
		if qf.Index == queueFamily {
			return qf.Flags.Has(gpu.QueueGraphics), nil
		}
	}
	return false, nil
}

func (in *Instance) SurfaceCapabilities(pd gpu.PhysicalDevice, s gpu.Surface) (gpu.SurfaceCapabilities, error) {
	sf, err := in.surface(s)
	if err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	w, h := sf.window.GetFramebufferSize()
	return gpu.SurfaceCapabilities{
		MinImageCount:  2,
		MaxImageCount:  3,
		CurrentExtent:  gpu.Extent{Width: uint32(w), Height: uint32(h)},
		MinImageExtent: gpu.Extent{Width: 1, Height: 1},
		MaxImageExtent: gpu.Extent{Width: 16384, Height: 16384},
	}, nil
}

func (in *Instance) SurfaceFormats(pd gpu.PhysicalDevice, s gpu.Surface) ([]gpu.SurfaceFormat, error) {
	if _, err := in.surface(s); err != nil {
		return nil, err
	}
	return []gpu.SurfaceFormat{
		{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
		{Format: gpu.FormatR8G8B8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
	}, nil
}

func (in *Instance) PresentModes(pd gpu.PhysicalDevice, s gpu.Surface) ([]gpu.PresentMode, error) {
	if _, err := in.surface(s); err != nil {
		return nil, err
	}
	return []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox}, nil
}

func (in *Instance) DestroySurface(s gpu.Surface) {
	in.ledger.destroy(uint64(s), "surface")
}

// Destroy reports every device or surface still alive as a violation.
func (in *Instance) Destroy() {
	for _, d := range in.live {
		if !d.destroyed {
			in.ledger.violate(ViolationParentBeforeChild, fmt.Sprintf("instance destroyed before device %q", d.opt.Name))
		}
	}
	for _, h := range in.ledger.liveOfKind("surface") {
		in.ledger.violate(ViolationParentBeforeChild, fmt.Sprintf("instance destroyed before surface %d", h))
	}
	core.LogDebug("softgpu instance destroyed")
}

// InjectAcquireResult queues results returned by the next AcquireNextImage
// calls before the real acquisition logic runs.
func (in *Instance) InjectAcquireResult(results ...gpu.Result) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.acquireResults = append(in.acquireResults, results...)
}

func (in *Instance) popAcquireResult() (gpu.Result, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.acquireResults) == 0 {
		return gpu.Success, false
	}
	r := in.acquireResults[0]
	in.acquireResults = in.acquireResults[1:]
	return r, true
}

// InjectSwapchainResult queues results returned by the next CreateSwapchain
// calls. Success lets the call through.
func (in *Instance) InjectSwapchainResult(results ...gpu.Result) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.swapchainResults = append(in.swapchainResults, results...)
}

func (in *Instance) popSwapchainResult() gpu.Result {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.swapchainResults) == 0 {
		return gpu.Success
	}
	r := in.swapchainResults[0]
	in.swapchainResults = in.swapchainResults[1:]
	return r
}

// Violations returns everything recorded so far, in order.
func (in *Instance) Violations() []Violation {
	return in.ledger.violationsCopy()
}

// Created returns how many objects of kind were ever created; an empty kind
// counts all kinds.
func (in *Instance) Created(kind string) int {
	return in.ledger.createdCount(kind)
}

// Live returns how many objects of kind are still alive; an empty kind
// counts all kinds.
func (in *Instance) Live(kind string) int {
	return len(in.ledger.liveOfKind(kind))
}

// Frame is one successful present.
type Frame struct {
	Swapchain  gpu.Swapchain
	ImageIndex uint32
	Width      uint32
	Height     uint32
	Format     gpu.Format
	Pixels     []byte
}

// Frames returns the presented frames in order.
func (in *Instance) Frames() []Frame {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Frame(nil), in.frames...)
}

func (in *Instance) recordFrame(f Frame) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.frames = append(in.frames, f)
}

// Window is an in-memory window whose size tests can change at will.
type Window struct {
	mu            sync.Mutex
	width, height int
}

func NewWindow(width, height int) *Window {
	return &Window{width: width, height: height}
}

func (w *Window) SetSize(width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
}

func (w *Window) GetFramebufferSize() (int, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// CreateWindowSurface always fails: a virtual window has no native handle.
// softgpu surfaces are created by Instance.CreateSurface directly.
func (w *Window) CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error) {
	return 0, fmt.Errorf("softgpu window has no native surface")
}
