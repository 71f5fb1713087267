package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type BufferKind int

const (
	VertexBufferKind BufferKind = iota
	IndexBufferKind
	UniformBufferKind
)

func (k BufferKind) usage() gpu.BufferUsage {
	switch k {
	case IndexBufferKind:
		return gpu.BufferUsageIndex
	case UniformBufferKind:
		return gpu.BufferUsageUniform
	default:
		return gpu.BufferUsageVertex
	}
}

func (k BufferKind) String() string {
	switch k {
	case IndexBufferKind:
		return "index"
	case UniformBufferKind:
		return "uniform"
	default:
		return "vertex"
	}
}

/**
 * @brief A buffer handle and the host-visible memory backing it. The memory
 * exists only after AllocateData and the host view only while mapped.
 */
type DeviceBuffer struct {
	dev       *Device
	kind      BufferKind
	handle    gpu.Buffer
	memory    gpu.DeviceMemory
	mapped    []byte
	size      uint64
	required  gpu.MemoryRequirements
	typeIndex uint32
}

// NewDeviceBuffer creates the buffer handle and picks its memory type. No
// memory is allocated yet.
func NewDeviceBuffer(dev *Device, size uint64, kind BufferKind) (*DeviceBuffer, error) {
	handle, err := dev.Logical.CreateBuffer(gpu.BufferInfo{Size: size, Usage: kind.usage()})
	if err != nil {
		core.LogError("failed to create %s buffer of %d bytes: %s", kind, size, err)
		return nil, fmt.Errorf("creating %s buffer: %w", kind, err)
	}
	req := dev.Logical.BufferMemoryRequirements(handle)
	typeIndex, err := FindMemoryType(dev.Memory, req.TypeBits, gpu.MemoryHostVisible)
	if err != nil {
		dev.Logical.DestroyBuffer(handle)
		core.LogError("no host-visible memory for %s buffer: %s", kind, err)
		return nil, err
	}
	return &DeviceBuffer{
		dev:       dev,
		kind:      kind,
		handle:    handle,
		size:      size,
		required:  req,
		typeIndex: typeIndex,
	}, nil
}

// AllocateData allocates and binds the memory, maps it and copies data in.
// The buffer stays mapped; call Flush and Unmap when done writing.
func (b *DeviceBuffer) AllocateData(data []byte) error {
	if b.memory != 0 {
		return fmt.Errorf("%s buffer memory already allocated: %w", b.kind, core.ErrInvalidState)
	}
	if uint64(len(data)) > b.size {
		return fmt.Errorf("%d bytes do not fit in a %d byte %s buffer: %w", len(data), b.size, b.kind, core.ErrInvalidState)
	}
	mem, err := b.dev.Logical.AllocateMemory(b.required.Size, b.typeIndex)
	if err != nil {
		core.LogError("failed to allocate %d bytes for %s buffer: %s", b.required.Size, b.kind, err)
		return fmt.Errorf("allocating %s buffer memory: %w", b.kind, err)
	}
	if err := b.dev.Logical.BindBufferMemory(b.handle, mem, 0); err != nil {
		b.dev.Logical.FreeMemory(mem)
		return fmt.Errorf("binding %s buffer memory: %w", b.kind, err)
	}
	b.memory = mem
	if err := b.Map(); err != nil {
		return err
	}
	copy(b.mapped, data)
	return nil
}

// Write copies data to the start of the buffer. It fails with
// core.ErrInvalidState unless memory is allocated and mapped.
func (b *DeviceBuffer) Write(data []byte) error {
	if b.memory == 0 || b.mapped == nil {
		return fmt.Errorf("write to unmapped %s buffer: %w", b.kind, core.ErrInvalidState)
	}
	if uint64(len(data)) > b.size {
		return fmt.Errorf("%d bytes do not fit in a %d byte %s buffer: %w", len(data), b.size, b.kind, core.ErrInvalidState)
	}
	copy(b.mapped, data)
	return nil
}

// Flush makes host writes to the whole mapped range visible to the device.
func (b *DeviceBuffer) Flush() error {
	if b.memory == 0 || b.mapped == nil {
		return fmt.Errorf("flush of unmapped %s buffer: %w", b.kind, core.ErrInvalidState)
	}
	if err := b.dev.Logical.FlushMappedMemory(b.memory, 0, gpu.WholeSize); err != nil {
		return fmt.Errorf("flushing %s buffer: %w", b.kind, err)
	}
	return nil
}

// Unmap drops the host view. The memory and its contents stay.
func (b *DeviceBuffer) Unmap() {
	if b.mapped == nil {
		return
	}
	b.dev.Logical.UnmapMemory(b.memory)
	b.mapped = nil
}

// Map maps the allocated memory again and invalidates the host view so it
// reflects device writes.
func (b *DeviceBuffer) Map() error {
	if b.memory == 0 {
		return fmt.Errorf("map of %s buffer without memory: %w", b.kind, core.ErrInvalidState)
	}
	if b.mapped != nil {
		return nil
	}
	host, err := b.dev.Logical.MapMemory(b.memory, 0, gpu.WholeSize)
	if err != nil {
		return fmt.Errorf("mapping %s buffer: %w", b.kind, err)
	}
	if err := b.dev.Logical.InvalidateMappedMemory(b.memory, 0, gpu.WholeSize); err != nil {
		b.dev.Logical.UnmapMemory(b.memory)
		return fmt.Errorf("invalidating %s buffer: %w", b.kind, err)
	}
	b.mapped = host
	return nil
}

// Mapped returns the host view of the buffer, nil when unmapped.
func (b *DeviceBuffer) Mapped() []byte {
	if b.mapped == nil {
		return nil
	}
	return b.mapped[:b.size]
}

func (b *DeviceBuffer) Size() uint64 {
	return b.size
}

func (b *DeviceBuffer) Handle() gpu.Buffer {
	return b.handle
}

// Destroy frees the memory before destroying the buffer handle.
func (b *DeviceBuffer) Destroy() {
	if b.handle == 0 {
		return
	}
	b.Unmap()
	if b.memory != 0 {
		b.dev.Logical.FreeMemory(b.memory)
		b.memory = 0
	}
	b.dev.Logical.DestroyBuffer(b.handle)
	b.handle = 0
}
