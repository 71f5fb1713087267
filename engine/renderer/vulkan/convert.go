package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

var formats = map[gpu.Format]vk.Format{
	gpu.FormatUndefined:          vk.FormatUndefined,
	gpu.FormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	gpu.FormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	gpu.FormatB8G8R8A8Srgb:       vk.FormatB8g8r8a8Srgb,
	gpu.FormatR32G32Sfloat:       vk.FormatR32g32Sfloat,
	gpu.FormatR32G32B32Sfloat:    vk.FormatR32g32b32Sfloat,
	gpu.FormatR32G32B32A32Sfloat: vk.FormatR32g32b32a32Sfloat,
}

func toVkFormat(f gpu.Format) vk.Format {
	if v, ok := formats[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

// fromVkFormat returns FormatUndefined for formats the renderer cannot use.
func fromVkFormat(f vk.Format) gpu.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpu.FormatUndefined
}

func fromDeviceType(t vk.PhysicalDeviceType) gpu.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return gpu.DeviceTypeIntegratedGPU
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return gpu.DeviceTypeDiscreteGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return gpu.DeviceTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return gpu.DeviceTypeCPU
	}
	return gpu.DeviceTypeOther
}

func fromQueueFlags(f vk.QueueFlags) gpu.QueueFlags {
	var out gpu.QueueFlags
	if f&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
		out |= gpu.QueueGraphics
	}
	if f&vk.QueueFlags(vk.QueueComputeBit) != 0 {
		out |= gpu.QueueCompute
	}
	if f&vk.QueueFlags(vk.QueueTransferBit) != 0 {
		out |= gpu.QueueTransfer
	}
	return out
}

func fromMemoryFlags(f vk.MemoryPropertyFlags) gpu.MemoryPropertyFlags {
	var out gpu.MemoryPropertyFlags
	if f&vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit) != 0 {
		out |= gpu.MemoryDeviceLocal
	}
	if f&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
		out |= gpu.MemoryHostVisible
	}
	if f&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0 {
		out |= gpu.MemoryHostCoherent
	}
	if f&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit) != 0 {
		out |= gpu.MemoryHostCached
	}
	return out
}

func toBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	var out vk.BufferUsageFlags
	if u&gpu.BufferUsageTransferSrc != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	}
	if u&gpu.BufferUsageTransferDst != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
	}
	if u&gpu.BufferUsageUniform != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if u&gpu.BufferUsageIndex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if u&gpu.BufferUsageVertex != 0 {
		out |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	return out
}

func toImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	var out vk.ImageUsageFlags
	if u&gpu.ImageUsageTransferSrc != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit)
	}
	if u&gpu.ImageUsageTransferDst != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
	}
	if u&gpu.ImageUsageSampled != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	}
	if u&gpu.ImageUsageColorAttachment != 0 {
		out |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	return out
}

func toImageTiling(t gpu.ImageTiling) vk.ImageTiling {
	if t == gpu.ImageTilingLinear {
		return vk.ImageTilingLinear
	}
	return vk.ImageTilingOptimal
}

func toImageLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.ImageLayoutColorAttachmentOptimal:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.ImageLayoutTransferSrcOptimal:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func toShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	var out vk.ShaderStageFlags
	if s&gpu.ShaderStageVertex != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	}
	if s&gpu.ShaderStageFragment != 0 {
		out |= vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	}
	return out
}

func toShaderStageBit(s gpu.ShaderStage) vk.ShaderStageFlagBits {
	if s == gpu.ShaderStageFragment {
		return vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageVertexBit
}

func toDescriptorType(gpu.DescriptorType) vk.DescriptorType {
	return vk.DescriptorTypeUniformBuffer
}

func toTopology(t gpu.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case gpu.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.TopologyTriangleFan:
		return vk.PrimitiveTopologyTriangleFan
	}
	return vk.PrimitiveTopologyTriangleList
}

func toPolygonMode(m gpu.PolygonMode) vk.PolygonMode {
	if m == gpu.PolygonModeLine {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func toCullMode(m gpu.CullMode) vk.CullModeFlags {
	switch m {
	case gpu.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gpu.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func toFrontFace(f gpu.FrontFace) vk.FrontFace {
	if f == gpu.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func toIndexType(t gpu.IndexType) vk.IndexType {
	if t == gpu.IndexTypeUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

var presentModes = map[gpu.PresentMode]vk.PresentMode{
	gpu.PresentModeImmediate:   vk.PresentModeImmediate,
	gpu.PresentModeMailbox:     vk.PresentModeMailbox,
	gpu.PresentModeFifo:        vk.PresentModeFifo,
	gpu.PresentModeFifoRelaxed: vk.PresentModeFifoRelaxed,
}

func toPresentMode(m gpu.PresentMode) vk.PresentMode {
	if v, ok := presentModes[m]; ok {
		return v
	}
	return vk.PresentModeFifo
}

// fromPresentMode reports false for modes outside the contract.
func fromPresentMode(m vk.PresentMode) (gpu.PresentMode, bool) {
	for k, v := range presentModes {
		if v == m {
			return k, true
		}
	}
	return 0, false
}

func fromExtent(e vk.Extent2D) gpu.Extent {
	return gpu.Extent{Width: e.Width, Height: e.Height}
}
