package softgpu

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

const spirvMagic = 0x07230203

type imageObject struct {
	info   gpu.ImageInfo
	memory uint64
	offset uint64
	// own backs swapchain images, which have no bindable memory.
	own []byte
}

func (img *imageObject) size() uint64 {
	return uint64(img.info.Width) * uint64(img.info.Height) * uint64(img.info.Format.Size())
}

func (img *imageObject) rowPitch() uint64 {
	return uint64(img.info.Width) * uint64(img.info.Format.Size())
}

type imageView struct {
	image  uint64
	format gpu.Format
}

type renderPass struct {
	info gpu.RenderPassInfo
}

type framebuffer struct {
	info gpu.FramebufferInfo
}

type shaderModule struct {
	words int
}

type descriptorSetLayout struct {
	bindings []gpu.DescriptorBinding
}

type descriptorPool struct {
	maxSets uint32
	sets    []uint64
}

type descriptorSet struct {
	layout  uint64
	buffers map[uint32]gpu.DescriptorBufferWrite
}

type pipelineLayout struct {
	setLayouts []gpu.DescriptorSetLayout
}

type pipeline struct {
	info gpu.GraphicsPipelineInfo
}

func (d *Device) CreateImage(info gpu.ImageInfo) (gpu.Image, error) {
	if info.Width == 0 || info.Height == 0 || info.Format.Size() != 4 {
		return 0, gpu.Check("vkCreateImage", gpu.ErrorFormatNotSupported)
	}
	return gpu.Image(d.add("image", &imageObject{info: info})), nil
}

func (d *Device) image(i gpu.Image) (*imageObject, error) {
	return lookup[*imageObject](d.ledger, uint64(i), "image")
}

func (d *Device) ImageMemoryRequirements(i gpu.Image) gpu.MemoryRequirements {
	img, err := d.image(i)
	if err != nil {
		return gpu.MemoryRequirements{}
	}
	return gpu.MemoryRequirements{
		Size:      alignUp(img.size(), bufferAlignment),
		Alignment: bufferAlignment,
		TypeBits:  d.allTypeBits(),
	}
}

func (d *Device) ImageSubresourceLayout(i gpu.Image) gpu.SubresourceLayout {
	img, err := d.image(i)
	if err != nil {
		return gpu.SubresourceLayout{}
	}
	return gpu.SubresourceLayout{Offset: 0, Size: img.size(), RowPitch: img.rowPitch()}
}

func (d *Device) BindImageMemory(i gpu.Image, m gpu.DeviceMemory, offset uint64) error {
	img, err := d.image(i)
	if err != nil {
		return err
	}
	mem, err := d.memory(m)
	if err != nil {
		return err
	}
	if img.memory != 0 || img.own != nil {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("image %d is already bound", i))
		return gpu.Check("vkBindImageMemory", gpu.ErrorInitializationFailed)
	}
	if offset+img.size() > uint64(len(mem.data)) {
		return gpu.Check("vkBindImageMemory", gpu.ErrorOutOfDeviceMemory)
	}
	img.memory = uint64(m)
	img.offset = offset
	return nil
}

func (d *Device) DestroyImage(i gpu.Image) {
	if i == 0 {
		return
	}
	img, err := d.image(i)
	if err != nil {
		return
	}
	if img.own != nil {
		d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("image %d belongs to a swapchain", i))
		return
	}
	if img.memory != 0 && d.ledger.alive(img.memory) {
		d.ledger.violate(ViolationMemoryStillBound, fmt.Sprintf("image %d destroyed while memory %d is still allocated", i, img.memory))
	}
	d.ledger.destroy(uint64(i), "image")
}

// pixels is the device view of an image.
func (d *Device) pixels(img *imageObject) ([]byte, error) {
	if img.own != nil {
		return img.own, nil
	}
	if img.memory == 0 || !d.ledger.alive(img.memory) {
		d.ledger.violate(ViolationInvalidUsage, "image used without bound memory")
		return nil, gpu.Check("image access", gpu.ErrorInvalidHandle)
	}
	mem, err := d.memory(gpu.DeviceMemory(img.memory))
	if err != nil {
		return nil, err
	}
	return mem.data[img.offset : img.offset+img.size()], nil
}

func (d *Device) CreateImageView(i gpu.Image, format gpu.Format) (gpu.ImageView, error) {
	img, err := d.image(i)
	if err != nil {
		return 0, err
	}
	if img.info.Format != format {
		return 0, gpu.Check("vkCreateImageView", gpu.ErrorFormatNotSupported)
	}
	return gpu.ImageView(d.add("image_view", &imageView{image: uint64(i), format: format}, uint64(i))), nil
}

func (d *Device) DestroyImageView(v gpu.ImageView) {
	d.ledger.destroy(uint64(v), "image_view")
}

func (d *Device) CreateRenderPass(info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	if info.Format.Size() != 4 {
		return 0, gpu.Check("vkCreateRenderPass", gpu.ErrorFormatNotSupported)
	}
	return gpu.RenderPass(d.add("render_pass", &renderPass{info: info})), nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	d.ledger.destroy(uint64(rp), "render_pass")
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	rp, err := lookup[*renderPass](d.ledger, uint64(info.RenderPass), "render_pass")
	if err != nil {
		return 0, err
	}
	if len(info.Attachments) != 1 {
		return 0, gpu.Check("vkCreateFramebuffer", gpu.ErrorFeatureNotPresent)
	}
	parents := []uint64{uint64(info.RenderPass)}
	for _, a := range info.Attachments {
		view, err := lookup[*imageView](d.ledger, uint64(a), "image_view")
		if err != nil {
			return 0, err
		}
		img, err := d.image(gpu.Image(view.image))
		if err != nil {
			return 0, err
		}
		if img.info.Width < info.Width || img.info.Height < info.Height {
			d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("framebuffer %dx%d larger than attachment %dx%d", info.Width, info.Height, img.info.Width, img.info.Height))
			return 0, gpu.Check("vkCreateFramebuffer", gpu.ErrorInitializationFailed)
		}
		if view.format != rp.info.Format {
			d.ledger.violate(ViolationInvalidUsage, "framebuffer attachment format differs from render pass")
		}
		parents = append(parents, uint64(a))
	}
	info.Attachments = append([]gpu.ImageView(nil), info.Attachments...)
	return gpu.Framebuffer(d.add("framebuffer", &framebuffer{info: info}, parents...)), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	d.ledger.destroy(uint64(fb), "framebuffer")
}

// Framebuffers returns the create info of every live framebuffer.
func (d *Device) Framebuffers() []gpu.FramebufferInfo {
	var out []gpu.FramebufferInfo
	for _, h := range d.ledger.liveOfKind("framebuffer") {
		if fb, err := lookup[*framebuffer](d.ledger, h, "framebuffer"); err == nil {
			out = append(out, fb.info)
		}
	}
	return out
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	if len(code) < 5 || code[0] != spirvMagic {
		return 0, gpu.Check("vkCreateShaderModule", gpu.ErrorInitializationFailed)
	}
	return gpu.ShaderModule(d.add("shader_module", &shaderModule{words: len(code)})), nil
}

func (d *Device) DestroyShaderModule(m gpu.ShaderModule) {
	d.ledger.destroy(uint64(m), "shader_module")
}

func (d *Device) CreateDescriptorSetLayout(bindings []gpu.DescriptorBinding) (gpu.DescriptorSetLayout, error) {
	l := &descriptorSetLayout{bindings: append([]gpu.DescriptorBinding(nil), bindings...)}
	return gpu.DescriptorSetLayout(d.add("descriptor_set_layout", l)), nil
}

func (d *Device) DestroyDescriptorSetLayout(l gpu.DescriptorSetLayout) {
	d.ledger.destroy(uint64(l), "descriptor_set_layout")
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []gpu.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	if maxSets == 0 {
		return 0, gpu.Check("vkCreateDescriptorPool", gpu.ErrorInitializationFailed)
	}
	return gpu.DescriptorPool(d.add("descriptor_pool", &descriptorPool{maxSets: maxSets})), nil
}

// DestroyDescriptorPool frees the pool's sets with it.
func (d *Device) DestroyDescriptorPool(p gpu.DescriptorPool) {
	if p == 0 {
		return
	}
	if pool, err := lookup[*descriptorPool](d.ledger, uint64(p), "descriptor_pool"); err == nil {
		for _, s := range pool.sets {
			d.ledger.remove(s)
		}
		pool.sets = nil
	}
	d.ledger.destroy(uint64(p), "descriptor_pool")
}

func (d *Device) AllocateDescriptorSets(p gpu.DescriptorPool, layouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	pool, err := lookup[*descriptorPool](d.ledger, uint64(p), "descriptor_pool")
	if err != nil {
		return nil, err
	}
	if uint32(len(pool.sets)+len(layouts)) > pool.maxSets {
		return nil, gpu.Check("vkAllocateDescriptorSets", gpu.ErrorOutOfPoolMemory)
	}
	out := make([]gpu.DescriptorSet, 0, len(layouts))
	for _, l := range layouts {
		if _, err := lookup[*descriptorSetLayout](d.ledger, uint64(l), "descriptor_set_layout"); err != nil {
			return nil, err
		}
		h := d.add("descriptor_set", &descriptorSet{layout: uint64(l), buffers: make(map[uint32]gpu.DescriptorBufferWrite)}, uint64(p))
		pool.sets = append(pool.sets, h)
		out = append(out, gpu.DescriptorSet(h))
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorBufferWrite) {
	for _, w := range writes {
		set, err := lookup[*descriptorSet](d.ledger, uint64(w.Set), "descriptor_set")
		if err != nil {
			continue
		}
		buf, err := lookup[*buffer](d.ledger, uint64(w.Buffer), "buffer")
		if err != nil {
			continue
		}
		if buf.info.Usage&gpu.BufferUsageUniform == 0 && w.Type == gpu.DescriptorTypeUniformBuffer {
			d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("buffer %d bound as uniform without uniform usage", w.Buffer))
		}
		set.buffers[w.Binding] = w
	}
}

func (d *Device) CreatePipelineLayout(setLayouts []gpu.DescriptorSetLayout) (gpu.PipelineLayout, error) {
	parents := make([]uint64, 0, len(setLayouts))
	for _, l := range setLayouts {
		if _, err := lookup[*descriptorSetLayout](d.ledger, uint64(l), "descriptor_set_layout"); err != nil {
			return 0, err
		}
		parents = append(parents, uint64(l))
	}
	pl := &pipelineLayout{setLayouts: append([]gpu.DescriptorSetLayout(nil), setLayouts...)}
	return gpu.PipelineLayout(d.add("pipeline_layout", pl, parents...)), nil
}

func (d *Device) DestroyPipelineLayout(l gpu.PipelineLayout) {
	d.ledger.destroy(uint64(l), "pipeline_layout")
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineInfo) (gpu.Pipeline, error) {
	if _, err := lookup[*pipelineLayout](d.ledger, uint64(info.Layout), "pipeline_layout"); err != nil {
		return 0, err
	}
	if _, err := lookup[*renderPass](d.ledger, uint64(info.RenderPass), "render_pass"); err != nil {
		return 0, err
	}
	var haveVertex, haveFragment bool
	for _, s := range info.Stages {
		if _, err := lookup[*shaderModule](d.ledger, uint64(s.Module), "shader_module"); err != nil {
			return 0, err
		}
		haveVertex = haveVertex || s.Stage == gpu.ShaderStageVertex
		haveFragment = haveFragment || s.Stage == gpu.ShaderStageFragment
	}
	if !haveVertex || !haveFragment {
		return 0, gpu.Check("vkCreateGraphicsPipelines", gpu.ErrorInitializationFailed)
	}
	if info.Samples > 1 {
		return 0, gpu.Check("vkCreateGraphicsPipelines", gpu.ErrorFeatureNotPresent)
	}
	info.Stages = append([]gpu.ShaderStageInfo(nil), info.Stages...)
	info.VertexBindings = append([]gpu.VertexBinding(nil), info.VertexBindings...)
	info.VertexAttributes = append([]gpu.VertexAttribute(nil), info.VertexAttributes...)
	p := &pipeline{info: info}
	return gpu.Pipeline(d.add("pipeline", p, uint64(info.Layout), uint64(info.RenderPass))), nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	d.ledger.destroy(uint64(p), "pipeline")
}
