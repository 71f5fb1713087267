package softgpu

import (
	"bytes"
	"fmt"

	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type memoryObject struct {
	data  []byte
	flags gpu.MemoryPropertyFlags
	heap  uint32

	mapped    bool
	mapOffset uint64
	mapSize   uint64
	// shadow is the host view of non-coherent memory. Device reads see data
	// only after a flush copies the shadow across.
	shadow []byte
}

func (m *memoryObject) coherent() bool {
	return m.flags.Has(gpu.MemoryHostCoherent)
}

type buffer struct {
	info   gpu.BufferInfo
	memory uint64
	offset uint64
}

const bufferAlignment = 16

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) / a * a
}

func (d *Device) allTypeBits() uint32 {
	return uint32(1)<<uint(len(d.opt.MemoryTypes)) - 1
}

func (d *Device) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, error) {
	if info.Size == 0 {
		d.ledger.violate(ViolationInvalidUsage, "buffer created with size 0")
		return 0, gpu.Check("vkCreateBuffer", gpu.ErrorInitializationFailed)
	}
	return gpu.Buffer(d.add("buffer", &buffer{info: info})), nil
}

func (d *Device) BufferMemoryRequirements(b gpu.Buffer) gpu.MemoryRequirements {
	buf, err := lookup[*buffer](d.ledger, uint64(b), "buffer")
	if err != nil {
		return gpu.MemoryRequirements{}
	}
	return gpu.MemoryRequirements{
		Size:      alignUp(buf.info.Size, bufferAlignment),
		Alignment: bufferAlignment,
		TypeBits:  d.allTypeBits(),
	}
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	if b == 0 {
		return
	}
	if buf, err := lookup[*buffer](d.ledger, uint64(b), "buffer"); err == nil && buf.memory != 0 && d.ledger.alive(buf.memory) {
		d.ledger.violate(ViolationMemoryStillBound, fmt.Sprintf("buffer %d destroyed while memory %d is still allocated", b, buf.memory))
	}
	d.ledger.destroy(uint64(b), "buffer")
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gpu.DeviceMemory, error) {
	if int(typeIndex) >= len(d.opt.MemoryTypes) {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("memory type %d does not exist", typeIndex))
		return 0, gpu.Check("vkAllocateMemory", gpu.ErrorOutOfDeviceMemory)
	}
	mt := d.opt.MemoryTypes[typeIndex]
	heap := mt.HeapIndex
	if int(heap) < len(d.heapUsed) && d.heapUsed[heap]+size > d.opt.MemoryHeaps[heap].Size {
		return 0, gpu.Check("vkAllocateMemory", gpu.ErrorOutOfDeviceMemory)
	}
	if int(heap) < len(d.heapUsed) {
		d.heapUsed[heap] += size
	}
	m := &memoryObject{
		data:  make([]byte, size),
		flags: mt.PropertyFlags,
		heap:  heap,
	}
	return gpu.DeviceMemory(d.add("memory", m)), nil
}

func (d *Device) memory(m gpu.DeviceMemory) (*memoryObject, error) {
	return lookup[*memoryObject](d.ledger, uint64(m), "memory")
}

func (d *Device) BindBufferMemory(b gpu.Buffer, m gpu.DeviceMemory, offset uint64) error {
	buf, err := lookup[*buffer](d.ledger, uint64(b), "buffer")
	if err != nil {
		return err
	}
	mem, err := d.memory(m)
	if err != nil {
		return err
	}
	if buf.memory != 0 {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("buffer %d is already bound", b))
		return gpu.Check("vkBindBufferMemory", gpu.ErrorInitializationFailed)
	}
	if offset+buf.info.Size > uint64(len(mem.data)) {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("buffer %d does not fit in memory %d at offset %d", b, m, offset))
		return gpu.Check("vkBindBufferMemory", gpu.ErrorOutOfDeviceMemory)
	}
	buf.memory = uint64(m)
	buf.offset = offset
	return nil
}

func (d *Device) MapMemory(m gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	mem, err := d.memory(m)
	if err != nil {
		return nil, err
	}
	if !mem.flags.Has(gpu.MemoryHostVisible) {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("memory %d is not host visible", m))
		return nil, gpu.Check("vkMapMemory", gpu.ErrorMemoryMapFailed)
	}
	if mem.mapped {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("memory %d is already mapped", m))
		return nil, gpu.Check("vkMapMemory", gpu.ErrorMemoryMapFailed)
	}
	if size == gpu.WholeSize {
		size = uint64(len(mem.data)) - offset
	}
	if offset+size > uint64(len(mem.data)) {
		return nil, gpu.Check("vkMapMemory", gpu.ErrorMemoryMapFailed)
	}
	mem.mapped = true
	mem.mapOffset = offset
	mem.mapSize = size
	if mem.coherent() {
		return mem.data[offset : offset+size : offset+size], nil
	}
	mem.shadow = make([]byte, size)
	copy(mem.shadow, mem.data[offset:offset+size])
	return mem.shadow, nil
}

// mappedRange converts a memory-relative range into shadow bounds.
func (d *Device) mappedRange(op string, m gpu.DeviceMemory, mem *memoryObject, offset, size uint64) (uint64, uint64, error) {
	if !mem.mapped {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("%s on memory %d that is not mapped", op, m))
		return 0, 0, gpu.Check(op, gpu.ErrorMemoryMapFailed)
	}
	atom := d.opt.NonCoherentAtomSize
	if atom > 0 && offset%atom != 0 {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("%s offset %d is not a multiple of %d", op, offset, atom))
	}
	end := mem.mapOffset + mem.mapSize
	if size != gpu.WholeSize {
		if atom > 0 && size%atom != 0 && offset+size != uint64(len(mem.data)) {
			d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("%s size %d is not a multiple of %d", op, size, atom))
		}
		end = offset + size
	}
	if offset < mem.mapOffset || end > mem.mapOffset+mem.mapSize {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("%s range [%d,%d) outside the mapped range", op, offset, end))
		return 0, 0, gpu.Check(op, gpu.ErrorMemoryMapFailed)
	}
	return offset - mem.mapOffset, end - mem.mapOffset, nil
}

func (d *Device) FlushMappedMemory(m gpu.DeviceMemory, offset, size uint64) error {
	mem, err := d.memory(m)
	if err != nil {
		return err
	}
	lo, hi, err := d.mappedRange("vkFlushMappedMemoryRanges", m, mem, offset, size)
	if err != nil || mem.coherent() {
		return err
	}
	copy(mem.data[mem.mapOffset+lo:mem.mapOffset+hi], mem.shadow[lo:hi])
	return nil
}

func (d *Device) InvalidateMappedMemory(m gpu.DeviceMemory, offset, size uint64) error {
	mem, err := d.memory(m)
	if err != nil {
		return err
	}
	lo, hi, err := d.mappedRange("vkInvalidateMappedMemoryRanges", m, mem, offset, size)
	if err != nil || mem.coherent() {
		return err
	}
	copy(mem.shadow[lo:hi], mem.data[mem.mapOffset+lo:mem.mapOffset+hi])
	return nil
}

func (d *Device) unmap(m gpu.DeviceMemory, mem *memoryObject) {
	if !mem.coherent() && mem.shadow != nil {
		if !bytes.Equal(mem.shadow, mem.data[mem.mapOffset:mem.mapOffset+mem.mapSize]) {
			d.ledger.violate(ViolationUnflushedWrite, fmt.Sprintf("memory %d unmapped with unflushed host writes", m))
		}
	}
	mem.mapped = false
	mem.shadow = nil
}

func (d *Device) UnmapMemory(m gpu.DeviceMemory) {
	mem, err := d.memory(m)
	if err != nil {
		return
	}
	if !mem.mapped {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("unmap of memory %d that is not mapped", m))
		return
	}
	d.unmap(m, mem)
}

func (d *Device) FreeMemory(m gpu.DeviceMemory) {
	if m == 0 {
		return
	}
	mem, err := d.memory(m)
	if err != nil {
		return
	}
	if mem.mapped {
		d.unmap(m, mem)
	}
	if int(mem.heap) < len(d.heapUsed) {
		d.heapUsed[mem.heap] -= uint64(len(mem.data))
	}
	d.ledger.destroy(uint64(m), "memory")
}

// bufferBytes is the device view of a bound buffer.
func (d *Device) bufferBytes(b gpu.Buffer) ([]byte, *buffer, error) {
	buf, err := lookup[*buffer](d.ledger, uint64(b), "buffer")
	if err != nil {
		return nil, nil, err
	}
	if buf.memory == 0 || !d.ledger.alive(buf.memory) {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("buffer %d used without bound memory", b))
		return nil, nil, gpu.Check("buffer access", gpu.ErrorInvalidHandle)
	}
	mem, err := d.memory(gpu.DeviceMemory(buf.memory))
	if err != nil {
		return nil, nil, err
	}
	return mem.data[buf.offset : buf.offset+buf.info.Size], buf, nil
}
