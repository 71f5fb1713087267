// Package gpu is the contract between the renderer and a graphics driver.
// It mirrors the subset of Vulkan the renderer needs: enumeration, memory,
// resources, command recording, synchronisation and presentation.
package gpu

import "unsafe"

// Window is the native surface provider. *glfw.Window satisfies it.
type Window interface {
	GetFramebufferSize() (width, height int)
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (surface uintptr, err error)
}

type Instance interface {
	PhysicalDevices() ([]PhysicalDevice, error)
	Properties(pd PhysicalDevice) PhysicalDeviceProperties
	QueueFamilies(pd PhysicalDevice) []QueueFamily
	MemoryProperties(pd PhysicalDevice) MemoryProperties
	CreateDevice(pd PhysicalDevice, info DeviceInfo) (Device, error)

	CreateSurface(w Window) (Surface, error)
	SurfaceSupport(pd PhysicalDevice, queueFamily uint32, s Surface) (bool, error)
	SurfaceCapabilities(pd PhysicalDevice, s Surface) (SurfaceCapabilities, error)
	SurfaceFormats(pd PhysicalDevice, s Surface) ([]SurfaceFormat, error)
	PresentModes(pd PhysicalDevice, s Surface) ([]PresentMode, error)
	DestroySurface(s Surface)

	Destroy()
}

type Device interface {
	Queue(family, index uint32) Queue

	CreateBuffer(info BufferInfo) (Buffer, error)
	BufferMemoryRequirements(b Buffer) MemoryRequirements
	DestroyBuffer(b Buffer)

	AllocateMemory(size uint64, typeIndex uint32) (DeviceMemory, error)
	BindBufferMemory(b Buffer, m DeviceMemory, offset uint64) error
	BindImageMemory(img Image, m DeviceMemory, offset uint64) error
	// MapMemory returns a host view of size bytes starting at offset.
	MapMemory(m DeviceMemory, offset, size uint64) ([]byte, error)
	FlushMappedMemory(m DeviceMemory, offset, size uint64) error
	InvalidateMappedMemory(m DeviceMemory, offset, size uint64) error
	UnmapMemory(m DeviceMemory)
	FreeMemory(m DeviceMemory)

	CreateImage(info ImageInfo) (Image, error)
	ImageMemoryRequirements(img Image) MemoryRequirements
	ImageSubresourceLayout(img Image) SubresourceLayout
	DestroyImage(img Image)
	CreateImageView(img Image, format Format) (ImageView, error)
	DestroyImageView(v ImageView)

	CreateRenderPass(info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreateDescriptorPool(maxSets uint32, sizes []DescriptorPoolSize) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSets(p DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorBufferWrite)

	CreatePipelineLayout(setLayouts []DescriptorSetLayout) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateCommandPool(queueFamily uint32) (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffers(p CommandPool, count uint32) ([]CommandBuffer, error)
	FreeCommandBuffers(p CommandPool, cbs []CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error

	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, sets []DescriptorSet)
	CmdBindVertexBuffers(cb CommandBuffer, firstBinding uint32, buffers []Buffer, offsets []uint64)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset uint64, t IndexType)
	CmdDrawIndexed(cb CommandBuffer, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFences returns Timeout when the wait expires.
	WaitForFences(fences []Fence, timeout uint64) error
	ResetFences(fences []Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	QueueSubmit(q Queue, submits []SubmitInfo, fence Fence) error
	QueueWaitIdle(q Queue) error
	WaitIdle() error

	CreateSwapchain(info SwapchainInfo) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	// AcquireNextImage may return a valid index together with Suboptimal.
	AcquireNextImage(sc Swapchain, timeout uint64, signal Semaphore) (uint32, error)
	QueuePresent(q Queue, info PresentInfo) error
	DestroySwapchain(sc Swapchain)

	Destroy()
}
