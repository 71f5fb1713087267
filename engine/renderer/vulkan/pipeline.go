package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// CreateRenderPass builds a single subpass with one colour attachment that is
// cleared on load and stored.
func (d *Device) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	colorAttachment := vk.AttachmentDescription{
		Format:         toVkFormat(info.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    toImageLayout(info.FinalLayout),
	}
	colorAttachment.Deref()

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	subpass.Deref()

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}
	dependency.Deref()

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	createInfo.Deref()

	var rp vk.RenderPass
	if res := vk.CreateRenderPass(d.handle, &createInfo, d.allocator, &rp); res != vk.Success {
		return 0, check("vkCreateRenderPass", res)
	}
	return gpu.RenderPass(d.renderPasses.put(rp)), nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	if h, ok := d.renderPasses.take(uint64(rp)); ok {
		vk.DestroyRenderPass(d.handle, h, d.allocator)
	}
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	rp, _ := d.renderPasses.get(uint64(info.RenderPass))
	attachments := make([]vk.ImageView, 0, len(info.Attachments))
	for _, a := range info.Attachments {
		v, _ := d.views.get(uint64(a))
		attachments = append(attachments, v)
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Width,
		Height:          info.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if res := vk.CreateFramebuffer(d.handle, &createInfo, d.allocator, &fb); res != vk.Success {
		return 0, check("vkCreateFramebuffer", res)
	}
	return gpu.Framebuffer(d.framebuffers.put(fb)), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	if h, ok := d.framebuffers.take(uint64(fb)); ok {
		vk.DestroyFramebuffer(d.handle, h, d.allocator)
	}
}

// shaderModuleInfo sizes the module in bytes, not words.
func shaderModuleInfo(code []uint32) vk.ShaderModuleCreateInfo {
	return vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	createInfo := shaderModuleInfo(code)
	var m vk.ShaderModule
	if res := vk.CreateShaderModule(d.handle, &createInfo, d.allocator, &m); res != vk.Success {
		return 0, check("vkCreateShaderModule", res)
	}
	return gpu.ShaderModule(d.shaderModules.put(m)), nil
}

func (d *Device) DestroyShaderModule(m gpu.ShaderModule) {
	if h, ok := d.shaderModules.take(uint64(m)); ok {
		vk.DestroyShaderModule(d.handle, h, d.allocator)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  toDescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      toShaderStages(b.Stages),
		}
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	var l vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.handle, &createInfo, d.allocator, &l); res != vk.Success {
		return 0, check("vkCreateDescriptorSetLayout", res)
	}
	return gpu.DescriptorSetLayout(d.setLayouts.put(l)), nil
}

func (d *Device) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	if h, ok := d.setLayouts.take(uint64(l)); ok {
		vk.DestroyDescriptorSetLayout(d.handle, h, d.allocator)
	}
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gpu.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	vkSizes := make([]vk.DescriptorPoolSize, len(sizes))
	for i, s := range sizes {
		vkSizes[i] = vk.DescriptorPoolSize{Type: toDescriptorType(s.Type), DescriptorCount: s.Count}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(vkSizes)),
		PPoolSizes:    vkSizes,
	}
	var p vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.handle, &createInfo, d.allocator, &p); res != vk.Success {
		return 0, check("vkCreateDescriptorPool", res)
	}
	return gpu.DescriptorPool(d.descriptorPools.put(p)), nil
}

// DestroyDescriptorPool also frees the sets allocated from it.
func (d *Device) DestroyDescriptorPool(p gpu.DescriptorPool) {
	h, ok := d.descriptorPools.take(uint64(p))
	if !ok {
		return
	}
	d.descriptorSets.removeIf(func(s descriptorSet) bool { return s.pool == uint64(p) })
	vk.DestroyDescriptorPool(d.handle, h, d.allocator)
}

func (d *Device) AllocateDescriptorSets(p gpu.DescriptorPool, layouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	pool, ok := d.descriptorPools.get(uint64(p))
	if !ok || len(layouts) == 0 {
		return nil, &gpu.APIError{Op: "vkAllocateDescriptorSets", Result: gpu.ErrorInvalidHandle}
	}
	vkLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		vkLayouts[i], _ = d.setLayouts.get(uint64(l))
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(len(vkLayouts)),
		PSetLayouts:        vkLayouts,
	}
	sets := make([]vk.DescriptorSet, len(vkLayouts))
	if res := vk.AllocateDescriptorSets(d.handle, &allocInfo, &sets[0]); res != vk.Success {
		return nil, check("vkAllocateDescriptorSets", res)
	}
	out := make([]gpu.DescriptorSet, len(sets))
	for i, s := range sets {
		out[i] = gpu.DescriptorSet(d.descriptorSets.put(descriptorSet{handle: s, pool: uint64(p)}))
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorBufferWrite) {
	if len(writes) == 0 {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		set, _ := d.descriptorSets.get(uint64(w.Set))
		buf, _ := d.buffers.get(uint64(w.Buffer))
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set.handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  toDescriptorType(w.Type),
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buf,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}},
		}
	}
	vk.UpdateDescriptorSets(d.handle, uint32(len(vkWrites)), vkWrites, 0, nil)
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	vkLayouts := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		vkLayouts[i], _ = d.setLayouts.get(uint64(l))
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(vkLayouts)),
		PSetLayouts:    vkLayouts,
	}
	createInfo.Deref()

	var l vk.PipelineLayout
	err := d.locks.SafeCall(PipelineManagement, func() error {
		return check("vkCreatePipelineLayout", vk.CreatePipelineLayout(d.handle, &createInfo, d.allocator, &l))
	})
	if err != nil {
		return 0, err
	}
	return gpu.PipelineLayout(d.pipelineLayouts.put(l)), nil
}

func (d *Device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	if h, ok := d.pipelineLayouts.take(uint64(l)); ok {
		_ = d.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipelineLayout(d.handle, h, d.allocator)
			return nil
		})
	}
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		module, _ := d.shaderModules.get(uint64(s.Module))
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  toShaderStageBit(s.Stage),
			Module: module,
			PName:  safeString(s.Entry),
		}
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			X:        info.Viewport.X,
			Y:        info.Viewport.Y,
			Width:    info.Viewport.Width,
			Height:   info.Viewport.Height,
			MinDepth: info.Viewport.MinDepth,
			MaxDepth: info.Viewport.MaxDepth,
		}},
		ScissorCount: 1,
		PScissors: []vk.Rect2D{{
			Offset: vk.Offset2D{X: info.Scissor.X, Y: info.Scissor.Y},
			Extent: vk.Extent2D{Width: info.Scissor.Width, Height: info.Scissor.Height},
		}},
	}
	viewportState.Deref()

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             toPolygonMode(info.PolygonMode),
		LineWidth:               info.LineWidth,
		CullMode:                toCullMode(info.CullMode),
		FrontFace:               toFrontFace(info.FrontFace),
		DepthBiasEnable:         vk.False,
	}
	rasterizerCreateInfo.Deref()

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}
	multisamplingCreateInfo.Deref()

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if info.BlendEnable {
		colorBlendAttachmentState.BlendEnable = vk.True
	}
	colorBlendAttachmentState.Deref()

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}
	colorBlendStateCreateInfo.Deref()

	bindings := make([]vk.VertexInputBindingDescription, len(info.VertexBindings))
	for i, b := range info.VertexBindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex,
		}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(info.VertexAttributes))
	for i, a := range info.VertexAttributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   toVkFormat(a.Format),
			Offset:   a.Offset,
		}
	}
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	vertexInputInfo.Deref()

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toTopology(info.Topology),
		PrimitiveRestartEnable: vk.False,
	}
	inputAssembly.Deref()

	layout, _ := d.pipelineLayouts.get(uint64(info.Layout))
	renderPass, _ := d.renderPasses.get(uint64(info.RenderPass))
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PColorBlendState:    &colorBlendStateCreateInfo,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             info.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	pipelineCreateInfo.Deref()

	pipelines := make([]vk.Pipeline, 1)
	err := d.locks.SafeCall(PipelineManagement, func() error {
		result := vk.CreateGraphicsPipelines(d.handle, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, d.allocator, pipelines)
		if result != vk.Success {
			core.LogError("vkCreateGraphicsPipelines failed with %s", ResultString(result, true))
			return check("vkCreateGraphicsPipelines", result)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	core.LogDebug("Graphics pipeline created!")
	return gpu.Pipeline(d.pipelines.put(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	if h, ok := d.pipelines.take(uint64(p)); ok {
		_ = d.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(d.handle, h, d.allocator)
			return nil
		})
	}
}
