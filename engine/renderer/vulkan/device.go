package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type allocation struct {
	handle vk.DeviceMemory
	size   uint64
}

type image struct {
	handle vk.Image
	// owner is the swapchain handle for presentable images, which are never
	// destroyed individually.
	owner uint64
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   uint64
}

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   uint64
}

type queue struct {
	handle vk.Queue
	family uint32
}

/**
 * @brief A logical device. Every object it creates is registered in a
 * per-kind handle table and resolved when passed back in.
 */
type Device struct {
	inst      *Instance
	physical  vk.PhysicalDevice
	handle    vk.Device
	allocator *vk.AllocationCallbacks
	family    uint32
	locks     *lockPool

	queues          *handles[queue]
	buffers         *handles[vk.Buffer]
	memory          *handles[allocation]
	images          *handles[image]
	views           *handles[vk.ImageView]
	renderPasses    *handles[vk.RenderPass]
	framebuffers    *handles[vk.Framebuffer]
	shaderModules   *handles[vk.ShaderModule]
	setLayouts      *handles[vk.DescriptorSetLayout]
	descriptorPools *handles[vk.DescriptorPool]
	descriptorSets  *handles[descriptorSet]
	pipelineLayouts *handles[vk.PipelineLayout]
	pipelines       *handles[vk.Pipeline]
	commandPools    *handles[vk.CommandPool]
	commandBuffers  *handles[commandBuffer]
	fences          *handles[vk.Fence]
	semaphores      *handles[vk.Semaphore]
	swapchains      *handles[vk.Swapchain]
}

var _ gpu.Device = (*Device)(nil)

func newDevice(inst *Instance, physical vk.PhysicalDevice, handle vk.Device, family uint32) *Device {
	return &Device{
		inst:            inst,
		physical:        physical,
		handle:          handle,
		allocator:       inst.allocator,
		family:          family,
		locks:           newLockPool(),
		queues:          newHandles[queue](),
		buffers:         newHandles[vk.Buffer](),
		memory:          newHandles[allocation](),
		images:          newHandles[image](),
		views:           newHandles[vk.ImageView](),
		renderPasses:    newHandles[vk.RenderPass](),
		framebuffers:    newHandles[vk.Framebuffer](),
		shaderModules:   newHandles[vk.ShaderModule](),
		setLayouts:      newHandles[vk.DescriptorSetLayout](),
		descriptorPools: newHandles[vk.DescriptorPool](),
		descriptorSets:  newHandles[descriptorSet](),
		pipelineLayouts: newHandles[vk.PipelineLayout](),
		pipelines:       newHandles[vk.Pipeline](),
		commandPools:    newHandles[vk.CommandPool](),
		commandBuffers:  newHandles[commandBuffer](),
		fences:          newHandles[vk.Fence](),
		semaphores:      newHandles[vk.Semaphore](),
		swapchains:      newHandles[vk.Swapchain](),
	}
}

// Queue returns the same handle for repeated calls with the same arguments.
func (d *Device) Queue(family, index uint32) gpu.Queue {
	var q vk.Queue
	vk.GetDeviceQueue(d.handle, family, index, &q)
	if id, ok := d.queues.find(func(v queue) bool { return v.handle == q }); ok {
		return gpu.Queue(id)
	}
	return gpu.Queue(d.queues.put(queue{handle: q, family: family}))
}

func (d *Device) CreateBuffer(info gpu.BufferInfo) (gpu.Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       toBufferUsage(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var b vk.Buffer
	if res := vk.CreateBuffer(d.handle, &createInfo, d.allocator, &b); res != vk.Success {
		return 0, check("vkCreateBuffer", res)
	}
	return gpu.Buffer(d.buffers.put(b)), nil
}

func (d *Device) BufferMemoryRequirements(b gpu.Buffer) gpu.MemoryRequirements {
	h, _ := d.buffers.get(uint64(b))
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, h, &req)
	req.Deref()
	return gpu.MemoryRequirements{Size: uint64(req.Size), Alignment: uint64(req.Alignment), TypeBits: req.MemoryTypeBits}
}

func (d *Device) DestroyBuffer(b gpu.Buffer) {
	if h, ok := d.buffers.take(uint64(b)); ok {
		vk.DestroyBuffer(d.handle, h, d.allocator)
	}
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (gpu.DeviceMemory, error) {
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var m vk.DeviceMemory
	err := d.locks.SafeCall(MemoryManagement, func() error {
		return check("vkAllocateMemory", vk.AllocateMemory(d.handle, &allocInfo, d.allocator, &m))
	})
	if err != nil {
		return 0, err
	}
	return gpu.DeviceMemory(d.memory.put(allocation{handle: m, size: size})), nil
}

func (d *Device) allocation(m gpu.DeviceMemory) (allocation, error) {
	a, ok := d.memory.get(uint64(m))
	if !ok {
		return a, &gpu.APIError{Op: "device memory", Result: gpu.ErrorInvalidHandle}
	}
	return a, nil
}

func (d *Device) BindBufferMemory(b gpu.Buffer, m gpu.DeviceMemory, offset uint64) error {
	buf, _ := d.buffers.get(uint64(b))
	a, err := d.allocation(m)
	if err != nil {
		return err
	}
	return check("vkBindBufferMemory", vk.BindBufferMemory(d.handle, buf, a.handle, vk.DeviceSize(offset)))
}

func (d *Device) BindImageMemory(img gpu.Image, m gpu.DeviceMemory, offset uint64) error {
	i, _ := d.images.get(uint64(img))
	a, err := d.allocation(m)
	if err != nil {
		return err
	}
	return check("vkBindImageMemory", vk.BindImageMemory(d.handle, i.handle, a.handle, vk.DeviceSize(offset)))
}

func (d *Device) MapMemory(m gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	a, err := d.allocation(m)
	if err != nil {
		return nil, err
	}
	if size == gpu.WholeSize {
		size = a.size - offset
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.handle, a.handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		return nil, check("vkMapMemory", res)
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Device) mappedRange(m gpu.DeviceMemory, offset, size uint64) ([]vk.MappedMemoryRange, error) {
	a, err := d.allocation(m)
	if err != nil {
		return nil, err
	}
	return []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: a.handle,
		Offset: vk.DeviceSize(offset),
		Size:   vk.DeviceSize(size),
	}}, nil
}

func (d *Device) FlushMappedMemory(m gpu.DeviceMemory, offset, size uint64) error {
	ranges, err := d.mappedRange(m, offset, size)
	if err != nil {
		return err
	}
	return check("vkFlushMappedMemoryRanges", vk.FlushMappedMemoryRanges(d.handle, 1, ranges))
}

func (d *Device) InvalidateMappedMemory(m gpu.DeviceMemory, offset, size uint64) error {
	ranges, err := d.mappedRange(m, offset, size)
	if err != nil {
		return err
	}
	return check("vkInvalidateMappedMemoryRanges", vk.InvalidateMappedMemoryRanges(d.handle, 1, ranges))
}

func (d *Device) UnmapMemory(m gpu.DeviceMemory) {
	if a, err := d.allocation(m); err == nil {
		vk.UnmapMemory(d.handle, a.handle)
	}
}

func (d *Device) FreeMemory(m gpu.DeviceMemory) {
	if a, ok := d.memory.take(uint64(m)); ok {
		_ = d.locks.SafeCall(MemoryManagement, func() error {
			vk.FreeMemory(d.handle, a.handle, d.allocator)
			return nil
		})
	}
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    toVkFormat(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        toImageTiling(info.Tiling),
		Usage:         toImageUsage(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if res := vk.CreateImage(d.handle, &createInfo, d.allocator, &img); res != vk.Success {
		return 0, check("vkCreateImage", res)
	}
	return gpu.Image(d.images.put(image{handle: img})), nil
}

func (d *Device) ImageMemoryRequirements(img gpu.Image) gpu.MemoryRequirements {
	i, _ := d.images.get(uint64(img))
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, i.handle, &req)
	req.Deref()
	return gpu.MemoryRequirements{Size: uint64(req.Size), Alignment: uint64(req.Alignment), TypeBits: req.MemoryTypeBits}
}

func (d *Device) ImageSubresourceLayout(img gpu.Image) gpu.SubresourceLayout {
	i, _ := d.images.get(uint64(img))
	sub := vk.ImageSubresource{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit)}
	var layout vk.SubresourceLayout
	vk.GetImageSubresourceLayout(d.handle, i.handle, &sub, &layout)
	layout.Deref()
	return gpu.SubresourceLayout{
		Offset:   uint64(layout.Offset),
		Size:     uint64(layout.Size),
		RowPitch: uint64(layout.RowPitch),
	}
}

func (d *Device) DestroyImage(img gpu.Image) {
	i, ok := d.images.get(uint64(img))
	if !ok || i.owner != 0 {
		return
	}
	d.images.take(uint64(img))
	vk.DestroyImage(d.handle, i.handle, d.allocator)
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	i, ok := d.images.get(uint64(img))
	if !ok {
		return 0, &gpu.APIError{Op: "vkCreateImageView", Result: gpu.ErrorInvalidHandle}
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.handle,
		ViewType: vk.ImageViewType2d,
		Format:   toVkFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.handle, &viewInfo, d.allocator, &view); res != vk.Success {
		return 0, check("vkCreateImageView", res)
	}
	return gpu.ImageView(d.views.put(view)), nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	if h, ok := d.views.take(uint64(v)); ok {
		vk.DestroyImageView(d.handle, h, d.allocator)
	}
}

func (d *Device) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.handle))
}

// Destroy releases the logical device. Objects still registered are
// reported since the validation layer would flag them as leaks.
func (d *Device) Destroy() {
	if d.handle == nil {
		return
	}
	leaked := d.buffers.len() + d.memory.len() + d.views.len() + d.pipelines.len() +
		d.commandPools.len() + d.fences.len() + d.semaphores.len() + d.swapchains.len()
	if leaked > 0 {
		core.LogWarn("destroying logical device with %d live object(s)", leaked)
	}
	vk.DestroyDevice(d.handle, d.allocator)
	d.handle = nil
}
