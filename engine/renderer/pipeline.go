package renderer

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

const defaultPipelineExtent = 100

type PipelineConfig struct {
	/** @brief The render pass the pipeline draws into. Required. */
	RenderPass *RenderPass
	/** @brief Required. */
	Device *Device
	/** @brief Supplies the default viewport extent. Required. */
	Image *Image
	/** @brief Supplies the uniform buffer bound at set 0 binding 0. Required. */
	Stage *Stage
	/** @brief Optional; the builtin shaders are used when nil. */
	VertexShader   *ShaderSource
	FragmentShader *ShaderSource
	/** @brief Viewport size; 0 falls back to the image extent, then 100. */
	Width     uint32
	Height    uint32
	Mode      gpu.PolygonMode
	Topology  gpu.PrimitiveTopology
	LineWidth float32
	Layout    VertexLayout
}

/**
 * @brief The descriptor objects binding a Stage's uniform buffer to a
 * pipeline. The buffer itself belongs to the Stage.
 */
type StageDescriptor struct {
	SetLayout      gpu.DescriptorSetLayout
	Pool           gpu.DescriptorPool
	Sets           []gpu.DescriptorSet
	PipelineLayout gpu.PipelineLayout
	Buffer         *DeviceBuffer
}

// Destroy releases the pipeline layout, then the pool (freeing its sets),
// then the set layout.
func (sd *StageDescriptor) Destroy(dev *Device) {
	if sd.PipelineLayout != 0 {
		dev.Logical.DestroyPipelineLayout(sd.PipelineLayout)
		sd.PipelineLayout = 0
	}
	if sd.Pool != 0 {
		dev.Logical.DestroyDescriptorPool(sd.Pool)
		sd.Pool = 0
		sd.Sets = nil
	}
	if sd.SetLayout != 0 {
		dev.Logical.DestroyDescriptorSetLayout(sd.SetLayout)
		sd.SetLayout = 0
	}
	sd.Buffer = nil
}

type Pipeline struct {
	Handle     gpu.Pipeline
	Descriptor *StageDescriptor
	Width      uint32
	Height     uint32
	Layout     VertexLayout
}

func validatePipelineConfig(cfg PipelineConfig) error {
	return core.RequireParams(
		core.Param{Name: "render_pass", Present: cfg.RenderPass != nil},
		core.Param{Name: "logical_device", Present: cfg.Device != nil},
		core.Param{Name: "image", Present: cfg.Image != nil},
		core.Param{Name: "stage", Present: cfg.Stage != nil},
	)
}

// NewPipeline builds the descriptor objects for the stage's uniform buffer
// and a graphics pipeline drawing into cfg.RenderPass. Missing required
// fields are reported together before any object is created. On failure
// everything created so far is released.
func NewPipeline(cfg PipelineConfig) (*Pipeline, *StageDescriptor, error) {
	if err := validatePipelineConfig(cfg); err != nil {
		return nil, nil, err
	}
	dev := cfg.Device

	width, height := cfg.Width, cfg.Height
	if width == 0 {
		width = cfg.Image.Width
	}
	if height == 0 {
		height = cfg.Image.Height
	}
	if width == 0 {
		width = defaultPipelineExtent
	}
	if height == 0 {
		height = defaultPipelineExtent
	}
	if cfg.LineWidth == 0 {
		cfg.LineWidth = 1
	}

	vertex, fragment := cfg.VertexShader, cfg.FragmentShader
	if vertex == nil || fragment == nil {
		vs, fs, err := DefaultShaders()
		if err != nil {
			return nil, nil, err
		}
		if vertex == nil {
			vertex = &vs
		}
		if fragment == nil {
			fragment = &fs
		}
	}

	desc, err := newStageDescriptor(dev, cfg.Stage)
	if err != nil {
		return nil, nil, err
	}

	vsModule, err := createShaderModule(dev, *vertex)
	if err != nil {
		desc.Destroy(dev)
		return nil, nil, err
	}
	fsModule, err := createShaderModule(dev, *fragment)
	if err != nil {
		dev.Logical.DestroyShaderModule(vsModule)
		desc.Destroy(dev)
		return nil, nil, err
	}

	info := gpu.GraphicsPipelineInfo{
		Stages: []gpu.ShaderStageInfo{
			{Stage: gpu.ShaderStageVertex, Module: vsModule, Entry: vertex.Entry},
			{Stage: gpu.ShaderStageFragment, Module: fsModule, Entry: fragment.Entry},
		},
		VertexBindings:   cfg.Layout.bindings(),
		VertexAttributes: cfg.Layout.attributes(),
		Topology:         cfg.Topology,
		Viewport: gpu.Viewport{
			Width:    float32(width),
			Height:   float32(height),
			MinDepth: 0,
			MaxDepth: 1,
		},
		Scissor:     gpu.Rect{Width: width, Height: height},
		PolygonMode: cfg.Mode,
		CullMode:    gpu.CullModeBack,
		FrontFace:   gpu.FrontFaceClockwise,
		LineWidth:   cfg.LineWidth,
		Samples:     1,
		BlendEnable: false,
		Layout:      desc.PipelineLayout,
		RenderPass:  cfg.RenderPass.Handle,
	}
	handle, err := dev.Logical.CreateGraphicsPipeline(info)

	// Modules are only needed while the pipeline is created.
	dev.Logical.DestroyShaderModule(fsModule)
	dev.Logical.DestroyShaderModule(vsModule)

	if err != nil {
		desc.Destroy(dev)
		core.LogError("failed to create graphics pipeline: %s", err)
		return nil, nil, fmt.Errorf("creating graphics pipeline: %w", err)
	}
	core.LogDebug("graphics pipeline created: %dx%d, layout %s", width, height, cfg.Layout)

	p := &Pipeline{
		Handle:     handle,
		Descriptor: desc,
		Width:      width,
		Height:     height,
		Layout:     cfg.Layout,
	}
	return p, desc, nil
}

func newStageDescriptor(dev *Device, stage *Stage) (*StageDescriptor, error) {
	desc := &StageDescriptor{Buffer: stage.Buffer()}
	var err error

	desc.SetLayout, err = dev.Logical.CreateDescriptorSetLayout([]gpu.DescriptorBinding{{
		Binding: 0,
		Type:    gpu.DescriptorTypeUniformBuffer,
		Count:   1,
		Stages:  gpu.ShaderStageVertex,
	}})
	if err != nil {
		return nil, fmt.Errorf("creating descriptor set layout: %w", err)
	}

	desc.Pool, err = dev.Logical.CreateDescriptorPool(1, []gpu.DescriptorPoolSize{{
		Type:  gpu.DescriptorTypeUniformBuffer,
		Count: 1,
	}})
	if err != nil {
		desc.Destroy(dev)
		return nil, fmt.Errorf("creating descriptor pool: %w", err)
	}

	desc.Sets, err = dev.Logical.AllocateDescriptorSets(desc.Pool, []gpu.DescriptorSetLayout{desc.SetLayout})
	if err != nil {
		desc.Destroy(dev)
		return nil, fmt.Errorf("allocating descriptor sets: %w", err)
	}
	dev.Logical.UpdateDescriptorSets([]gpu.DescriptorBufferWrite{{
		Set:     desc.Sets[0],
		Binding: 0,
		Type:    gpu.DescriptorTypeUniformBuffer,
		Buffer:  desc.Buffer.Handle(),
		Offset:  0,
		Range:   desc.Buffer.Size(),
	}})

	desc.PipelineLayout, err = dev.Logical.CreatePipelineLayout([]gpu.DescriptorSetLayout{desc.SetLayout})
	if err != nil {
		desc.Destroy(dev)
		return nil, fmt.Errorf("creating pipeline layout: %w", err)
	}
	return desc, nil
}

// Destroy releases the pipeline, then its stage descriptor.
func (p *Pipeline) Destroy(dev *Device) {
	if p.Handle != 0 {
		dev.Logical.DestroyPipeline(p.Handle)
		p.Handle = 0
	}
	if p.Descriptor != nil {
		p.Descriptor.Destroy(dev)
		p.Descriptor = nil
	}
}

func ParsePolygonMode(s string) (gpu.PolygonMode, error) {
	switch strings.ToLower(s) {
	case "fill", "":
		return gpu.PolygonModeFill, nil
	case "line":
		return gpu.PolygonModeLine, nil
	}
	return gpu.PolygonModeFill, fmt.Errorf("unknown polygon mode %q", s)
}

func ParseTopology(s string) (gpu.PrimitiveTopology, error) {
	switch strings.ToLower(s) {
	case "triangle_list", "":
		return gpu.TopologyTriangleList, nil
	case "triangle_strip":
		return gpu.TopologyTriangleStrip, nil
	case "triangle_fan":
		return gpu.TopologyTriangleFan, nil
	}
	return gpu.TopologyTriangleList, fmt.Errorf("unknown topology %q", s)
}
