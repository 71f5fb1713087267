package gpu

// Handles are opaque driver values. Zero is the null handle for every kind.
type (
	PhysicalDevice      uint64
	Queue               uint64
	Buffer              uint64
	DeviceMemory        uint64
	Image               uint64
	ImageView           uint64
	RenderPass          uint64
	Framebuffer         uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Fence               uint64
	Semaphore           uint64
	Surface             uint64
	Swapchain           uint64
)

// WholeSize selects the remainder of a memory object from the given offset.
const WholeSize = ^uint64(0)

// InfiniteTimeout waits forever.
const InfiniteTimeout = ^uint64(0)

type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 1 << iota
	QueueCompute
	QueueTransfer
)

func (f QueueFlags) Has(other QueueFlags) bool {
	return f&other == other
}

type QueueFamily struct {
	Index uint32
	Flags QueueFlags
	Count uint32
}

type DeviceType uint32

const (
	DeviceTypeOther DeviceType = iota
	DeviceTypeIntegratedGPU
	DeviceTypeDiscreteGPU
	DeviceTypeVirtualGPU
	DeviceTypeCPU
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeIntegratedGPU:
		return "integrated"
	case DeviceTypeDiscreteGPU:
		return "discrete"
	case DeviceTypeVirtualGPU:
		return "virtual"
	case DeviceTypeCPU:
		return "cpu"
	default:
		return "other"
	}
}

type PhysicalDeviceProperties struct {
	Name                string
	Type                DeviceType
	APIVersion          uint32
	DriverVersion       uint32
	NonCoherentAtomSize uint64
}

type MemoryPropertyFlags uint32

const (
	MemoryDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
	MemoryHostCached
)

func (f MemoryPropertyFlags) Has(other MemoryPropertyFlags) bool {
	return f&other == other
}

type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	// TypeBits has bit i set when memory type i can back the resource.
	TypeBits uint32
}

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageIndex
	BufferUsageVertex
)

type BufferInfo struct {
	Size  uint64
	Usage BufferUsage
}

type Format uint32

const (
	FormatUndefined Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8Srgb
	FormatR32G32Sfloat
	FormatR32G32B32Sfloat
	FormatR32G32B32A32Sfloat
)

// Size returns the byte size of one element, 0 when unknown.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm, FormatB8G8R8A8Srgb:
		return 4
	case FormatR32G32Sfloat:
		return 8
	case FormatR32G32B32Sfloat:
		return 12
	case FormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

type ColorSpace uint32

const (
	ColorSpaceSrgbNonlinear ColorSpace = iota
)

type ImageTiling uint32

const (
	ImageTilingOptimal ImageTiling = iota
	ImageTilingLinear
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc ImageUsage = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageColorAttachment
)

type ImageLayout uint32

const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachmentOptimal
	ImageLayoutTransferSrcOptimal
	ImageLayoutPresentSrc
)

type ImageInfo struct {
	Width, Height uint32
	Format        Format
	Tiling        ImageTiling
	Usage         ImageUsage
}

type SubresourceLayout struct {
	Offset   uint64
	Size     uint64
	RowPitch uint64
}

type RenderPassInfo struct {
	Format      Format
	FinalLayout ImageLayout
}

type FramebufferInfo struct {
	RenderPass    RenderPass
	Attachments   []ImageView
	Width, Height uint32
}

type ShaderStage uint32

const (
	ShaderStageVertex ShaderStage = 1 << iota
	ShaderStageFragment
)

type DescriptorType uint32

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
)

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorBufferWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Buffer  Buffer
	Offset  uint64
	Range   uint64
}

type PrimitiveTopology uint32

const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyTriangleFan
)

type PolygonMode uint32

const (
	PolygonModeFill PolygonMode = iota
	PolygonModeLine
)

type CullMode uint32

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type IndexType uint32

const (
	IndexTypeUint16 IndexType = iota
	IndexTypeUint32
)

type ShaderStageInfo struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect struct {
	X, Y          int32
	Width, Height uint32
}

type GraphicsPipelineInfo struct {
	Stages           []ShaderStageInfo
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Topology         PrimitiveTopology
	Viewport         Viewport
	Scissor          Rect
	PolygonMode      PolygonMode
	CullMode         CullMode
	FrontFace        FrontFace
	LineWidth        float32
	Samples          uint32
	BlendEnable      bool
	Layout           PipelineLayout
	RenderPass       RenderPass
	Subpass          uint32
}

type RenderPassBegin struct {
	RenderPass    RenderPass
	Framebuffer   Framebuffer
	Width, Height uint32
	ClearColor    [4]float32
}

type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []Semaphore
	Signal         []Semaphore
}

type PresentMode uint32

const (
	PresentModeImmediate PresentMode = iota
	PresentModeMailbox
	PresentModeFifo
	PresentModeFifoRelaxed
)

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type Extent struct {
	Width, Height uint32
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of 0 means no limit.
	MaxImageCount  uint32
	CurrentExtent  Extent
	MinImageExtent Extent
	MaxImageExtent Extent
}

type SwapchainInfo struct {
	Surface       Surface
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent
	PresentMode   PresentMode
	OldSwapchain  Swapchain
}

type PresentInfo struct {
	Wait       []Semaphore
	Swapchain  Swapchain
	ImageIndex uint32
}

type DeviceInfo struct {
	QueueFamily uint32
	Extensions  []string
}
