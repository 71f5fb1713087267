package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/assets"
	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type TargetState int

const (
	TargetIdle TargetState = iota
	TargetRecording
)

func (s TargetState) String() string {
	if s == TargetRecording {
		return "recording"
	}
	return "idle"
}

// RenderTarget is an output sink driven by Begin, any number of Fill calls,
// then End. Filled paths stay with the target and are drawn again on every
// frame until Clear.
type RenderTarget interface {
	Begin() error
	Fill(src geometry.Source) error
	End() error
	Clear()
	State() TargetState
	Stage() *Stage
	Destroy() error
}

// ShaderFiles names shader files to load instead of the builtin shaders. An
// empty entry point means "main" for .spv files and is an error for .wgsl.
type ShaderFiles struct {
	Vertex        string
	Fragment      string
	VertexEntry   string
	FragmentEntry string
}

// TargetOptions are shared by every render target.
type TargetOptions struct {
	// ClearColor defaults to opaque black.
	ClearColor *math.Color
	Projection Projection
	Far        float32
	Camera     *Camera
	Mode       gpu.PolygonMode
	Topology   gpu.PrimitiveTopology
	LineWidth  float32
	Layout     VertexLayout
	// Shaders take precedence over VertexShader and FragmentShader.
	Shaders        ShaderFiles
	VertexShader   *ShaderSource
	FragmentShader *ShaderSource
	// Watcher triggers a shader reload at the next Begin.
	Watcher *assets.ShaderWatcher
}

func (o TargetOptions) clearColor() [4]float32 {
	if o.ClearColor == nil {
		return [4]float32{0, 0, 0, 1}
	}
	return o.ClearColor.Array()
}

// frame is the recording state shared by the concrete targets: the stage,
// the pipeline drawing into the target's render pass and the stored paths.
type frame struct {
	id         core.Identifier
	dev        *Device
	opts       TargetOptions
	clearColor [4]float32
	stage      *Stage
	pipeline   *Pipeline
	renderPass *RenderPass
	image      *Image
	paths      []*Path
	state      TargetState
}

func newFrame(dev *Device, opts TargetOptions, renderPass *RenderPass, image *Image) (*frame, error) {
	f := &frame{
		id:         core.NewIdentifier(),
		dev:        dev,
		opts:       opts,
		clearColor: opts.clearColor(),
		renderPass: renderPass,
		image:      image,
	}
	stage, err := NewStage(dev, StageConfig{
		Width:      image.Width,
		Height:     image.Height,
		Projection: opts.Projection,
		Far:        opts.Far,
		Camera:     opts.Camera,
	})
	if err != nil {
		return nil, err
	}
	f.stage = stage
	pipeline, err := f.buildPipeline()
	if err != nil {
		stage.Destroy()
		return nil, err
	}
	f.pipeline = pipeline
	return f, nil
}

func (f *frame) shaders() (vertex, fragment *ShaderSource, err error) {
	vertex, fragment = f.opts.VertexShader, f.opts.FragmentShader
	files := f.opts.Shaders
	if files.Vertex != "" {
		src, err := LoadShaderSource(files.Vertex, files.VertexEntry)
		if err != nil {
			return nil, nil, err
		}
		vertex = &src
	}
	if files.Fragment != "" {
		src, err := LoadShaderSource(files.Fragment, files.FragmentEntry)
		if err != nil {
			return nil, nil, err
		}
		fragment = &src
	}
	return vertex, fragment, nil
}

func (f *frame) buildPipeline() (*Pipeline, error) {
	vertex, fragment, err := f.shaders()
	if err != nil {
		return nil, err
	}
	pipeline, _, err := NewPipeline(PipelineConfig{
		RenderPass:     f.renderPass,
		Device:         f.dev,
		Image:          f.image,
		Stage:          f.stage,
		VertexShader:   vertex,
		FragmentShader: fragment,
		Mode:           f.opts.Mode,
		Topology:       f.opts.Topology,
		LineWidth:      f.opts.LineWidth,
		Layout:         f.opts.Layout,
	})
	return pipeline, err
}

// rebuildPipeline swaps in a pipeline built against the current render pass
// and image. The old pipeline is kept when the new one fails.
func (f *frame) rebuildPipeline() error {
	pipeline, err := f.buildPipeline()
	if err != nil {
		return err
	}
	if f.pipeline != nil {
		f.pipeline.Destroy(f.dev)
	}
	f.pipeline = pipeline
	return nil
}

// begin checks the state and picks up reloaded shaders. It does not enter
// Recording; the caller does once it holds a framebuffer to draw into.
func (f *frame) begin() error {
	if f.state == TargetRecording {
		return fmt.Errorf("begin while recording: %w", core.ErrInvalidState)
	}
	if f.opts.Watcher != nil && f.opts.Watcher.Dirty() {
		if err := f.rebuildPipeline(); err != nil {
			core.LogWarn("shader reload failed, keeping the previous pipeline: %s", err)
		} else {
			core.LogInfo("target %s: shaders reloaded", f.id.Short())
		}
	}
	return nil
}

func (f *frame) startRecording() {
	f.state = TargetRecording
	f.stage.recording = true
}

func (f *frame) fill(src geometry.Source) error {
	if f.state != TargetRecording {
		return fmt.Errorf("fill outside begin/end: %w", core.ErrInvalidState)
	}
	path, err := CompilePath(f.dev, src, f.opts.Layout)
	if err != nil {
		return err
	}
	f.paths = append(f.paths, path)
	return nil
}

// record writes one render pass drawing every stored path into fb.
func (f *frame) record(cb *CommandBuffer, fb *Framebuffer) error {
	if f.pipeline == nil {
		return fmt.Errorf("no pipeline bound: %w", core.ErrInvalidState)
	}
	if err := cb.Begin(f.dev, true); err != nil {
		return err
	}
	cb.BeginRenderPass(f.dev, gpu.RenderPassBegin{
		RenderPass:  fb.Renderpass.Handle,
		Framebuffer: fb.Handle,
		Width:       fb.Width,
		Height:      fb.Height,
		ClearColor:  f.clearColor,
	})
	logical := f.dev.Logical
	logical.CmdBindPipeline(cb.Handle, f.pipeline.Handle)
	logical.CmdBindDescriptorSets(cb.Handle, f.pipeline.Descriptor.PipelineLayout, f.pipeline.Descriptor.Sets)
	for _, path := range f.paths {
		for i, vb := range path.Buffers {
			ib := path.IndexBuffers[i]
			logical.CmdBindVertexBuffers(cb.Handle, 0, []gpu.Buffer{vb.Handle()}, []uint64{0})
			logical.CmdBindIndexBuffer(cb.Handle, ib.Buffer.Handle(), 0, gpu.IndexTypeUint32)
			logical.CmdDrawIndexed(cb.Handle, ib.Count, 1, 0, 0, 0)
		}
	}
	cb.EndRenderPass(f.dev)
	return cb.End(f.dev)
}

func (f *frame) finish() {
	f.state = TargetIdle
	f.stage.recording = false
}

func (f *frame) clear() {
	for _, p := range f.paths {
		p.Destroy()
	}
	f.paths = nil
}

// destroy releases the paths, the pipeline and the stage.
func (f *frame) destroy() {
	f.clear()
	if f.pipeline != nil {
		f.pipeline.Destroy(f.dev)
		f.pipeline = nil
	}
	if f.stage != nil {
		f.stage.Destroy()
		f.stage = nil
	}
}
