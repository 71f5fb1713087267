package renderer

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
	"github.com/spaghettifunk/vulx/engine/renderer/softgpu"
)

// stubCode is the smallest SPIR-V header softgpu accepts.
var stubCode = []uint32{0x07230203, 0x00010000, 0, 1, 0}

func stubShaders() (*ShaderSource, *ShaderSource) {
	return &ShaderSource{Code: stubCode, Entry: "main"}, &ShaderSource{Code: stubCode, Entry: "main"}
}

func stubOptions() TargetOptions {
	vs, fs := stubShaders()
	return TargetOptions{VertexShader: vs, FragmentShader: fs}
}

func newSoftDevice(t *testing.T, opts ...softgpu.Options) (*softgpu.Instance, *Device) {
	t.Helper()
	inst := softgpu.NewInstance(opts...)
	dev, err := NewDevice(inst, DefaultRequirements())
	require.NoError(t, err)
	return inst, dev
}

func TestFindMemoryType(t *testing.T) {
	props := gpu.MemoryProperties{Types: []gpu.MemoryType{
		{PropertyFlags: gpu.MemoryDeviceLocal},
		{PropertyFlags: gpu.MemoryHostVisible},
		{PropertyFlags: gpu.MemoryHostVisible | gpu.MemoryHostCoherent},
	}}
	tests := []struct {
		name     string
		typeBits uint32
		required gpu.MemoryPropertyFlags
		want     uint32
		wantErr  bool
	}{
		{name: "first fit host visible", typeBits: 0b111, required: gpu.MemoryHostVisible, want: 1},
		{name: "coherent", typeBits: 0b111, required: gpu.MemoryHostVisible | gpu.MemoryHostCoherent, want: 2},
		{name: "type bits exclude first match", typeBits: 0b100, required: gpu.MemoryHostVisible, want: 2},
		{name: "device local", typeBits: 0b111, required: gpu.MemoryDeviceLocal, want: 0},
		{name: "no match", typeBits: 0b001, required: gpu.MemoryHostVisible, wantErr: true},
		{name: "no bits", typeBits: 0, required: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindMemoryType(props, tt.typeBits, tt.required)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrNoSuitableMemory)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeviceBufferRoundTrip(t *testing.T) {
	inst, dev := newSoftDevice(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	buf, err := NewDeviceBuffer(dev, uint64(len(data)), VertexBufferKind)
	require.NoError(t, err)
	require.NoError(t, buf.AllocateData(data))
	require.NoError(t, buf.Flush())
	buf.Unmap()
	assert.Nil(t, buf.Mapped())

	require.NoError(t, buf.Map())
	assert.Equal(t, data, buf.Mapped())
	buf.Unmap()

	buf.Destroy()
	dev.Destroy()
	assert.Empty(t, inst.Violations())
	assert.Zero(t, inst.Live(""))
}

func TestDeviceBufferWriteRequiresMapping(t *testing.T) {
	inst, dev := newSoftDevice(t)
	buf, err := NewDeviceBuffer(dev, 16, UniformBufferKind)
	require.NoError(t, err)

	assert.ErrorIs(t, buf.Write([]byte{1}), core.ErrInvalidState, "no memory yet")
	assert.ErrorIs(t, buf.Flush(), core.ErrInvalidState)

	require.NoError(t, buf.AllocateData(make([]byte, 16)))
	require.NoError(t, buf.Write([]byte{1, 2, 3}))
	assert.ErrorIs(t, buf.Write(make([]byte, 17)), core.ErrInvalidState, "too large")
	require.NoError(t, buf.Flush())
	buf.Unmap()
	assert.ErrorIs(t, buf.Write([]byte{1}), core.ErrInvalidState, "unmapped")

	buf.Destroy()
	dev.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestDeviceBufferWithoutHostVisibleMemory(t *testing.T) {
	opts := softgpu.DefaultOptions()
	opts.MemoryTypes = []gpu.MemoryType{{PropertyFlags: gpu.MemoryDeviceLocal, HeapIndex: 0}}
	inst, dev := newSoftDevice(t, opts)

	_, err := NewDeviceBuffer(dev, 64, VertexBufferKind)
	assert.ErrorIs(t, err, core.ErrNoSuitableMemory)
	assert.Zero(t, inst.Live("buffer"), "handle is destroyed on failure")
	dev.Destroy()
}

func TestBufferKinds(t *testing.T) {
	kinds := []struct {
		kind  BufferKind
		name  string
		usage gpu.BufferUsage
	}{
		{VertexBufferKind, "vertex", gpu.BufferUsageVertex},
		{IndexBufferKind, "index", gpu.BufferUsageIndex},
		{UniformBufferKind, "uniform", gpu.BufferUsageUniform},
	}
	for _, k := range kinds {
		assert.Equal(t, k.name, k.kind.String())
		assert.Equal(t, k.usage, k.kind.usage())
	}
}

func TestLoadShaderSourceEntryPoints(t *testing.T) {
	dir := t.TempDir()
	spv := filepath.Join(dir, "flat.spv")
	header := make([]byte, 20)
	binary.LittleEndian.PutUint32(header, 0x07230203)
	require.NoError(t, os.WriteFile(spv, header, 0o644))

	src, err := LoadShaderSource(spv, "")
	require.NoError(t, err)
	assert.Equal(t, "main", src.Entry)
	src, err = LoadShaderSource(spv, "vs_flat")
	require.NoError(t, err)
	assert.Equal(t, "vs_flat", src.Entry)

	_, err = LoadShaderSource(filepath.Join(dir, "flat.wgsl"), "")
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.ErrorContains(t, err, "no entry point")
}

func TestCompilePath(t *testing.T) {
	inst, dev := newSoftDevice(t)
	red := math.NewVec4(1, 0, 0, 1)
	b := geometry.NewBuilder().
		Triangle([3]math.Vec4{math.NewPoint(0, 0), math.NewPoint(1, 0), math.NewPoint(0, 1)}, [3]math.Vec4{red, red, red}).
		Rect(0, 0, 4, 4, red)

	path, err := CompilePath(dev, b, Vertex4Color4)
	require.NoError(t, err)
	require.Len(t, path.Buffers, 2)
	require.Len(t, path.IndexBuffers, 2)
	assert.Equal(t, uint64(3*32), path.Buffers[0].Size())
	assert.Equal(t, uint32(3), path.IndexBuffers[0].Count)
	assert.Equal(t, uint64(4*32), path.Buffers[1].Size())
	assert.Equal(t, uint32(6), path.IndexBuffers[1].Count)
	assert.Equal(t, uint64(24), path.IndexBuffers[1].Buffer.Size())
	assert.Nil(t, path.Buffers[0].Mapped(), "buffers are unmapped after upload")
	assert.Equal(t, VertexBufferKind, path.Buffers[0].kind)
	assert.Equal(t, IndexBufferKind, path.IndexBuffers[0].Buffer.kind)

	path.Destroy()
	assert.Zero(t, inst.Live("buffer"))
	assert.Zero(t, inst.Live("memory"))
	dev.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestCompilePathPacksLayout(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	c := math.NewVec4(0, 1, 0, 1)
	b := geometry.NewBuilder().Triangle([3]math.Vec4{math.NewPoint(0, 0), math.NewPoint(1, 0), math.NewPoint(0, 1)}, [3]math.Vec4{c, c, c})

	path, err := CompilePath(dev, b, Vertex2Color3)
	require.NoError(t, err)
	defer path.Destroy()
	assert.Equal(t, uint64(3*Vertex2Color3.Stride()), path.Buffers[0].Size())
	assert.Equal(t, uint32(20), Vertex2Color3.Stride())
}

func TestCompilePathSkipsEmptyBatches(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	path, err := CompilePath(dev, geometry.NewBuilder(), Vertex4Color4)
	require.NoError(t, err)
	assert.Empty(t, path.Buffers)
	assert.Empty(t, path.IndexBuffers)
}

func newPipelineFixture(t *testing.T, dev *Device) (*RenderPass, *Image, *Stage) {
	t.Helper()
	img, err := NewImage(dev, 32, 16, gpu.FormatR8G8B8A8Unorm)
	require.NoError(t, err)
	rp, err := NewRenderPass(dev, gpu.FormatR8G8B8A8Unorm, gpu.ImageLayoutGeneral)
	require.NoError(t, err)
	stage, err := NewStage(dev, StageConfig{Width: 32, Height: 16})
	require.NoError(t, err)
	return rp, img, stage
}

func TestNewPipelineReportsMissingParameters(t *testing.T) {
	inst, dev := newSoftDevice(t)
	defer dev.Destroy()
	before := inst.Created("")

	_, _, err := NewPipeline(PipelineConfig{Device: dev})
	var missing *core.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"render_pass", "image", "stage"}, missing.Names)
	assert.True(t, missing.Has("render_pass"))
	assert.False(t, missing.Has("logical_device"))

	_, _, err = NewPipeline(PipelineConfig{})
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"render_pass", "logical_device", "image", "stage"}, missing.Names)

	assert.Equal(t, before, inst.Created(""), "no objects are created before validation passes")
}

func TestNewPipelineAndTeardownOrder(t *testing.T) {
	inst, dev := newSoftDevice(t)
	rp, img, stage := newPipelineFixture(t, dev)
	vs, fs := stubShaders()

	p, desc, err := NewPipeline(PipelineConfig{
		RenderPass:     rp,
		Device:         dev,
		Image:          img,
		Stage:          stage,
		VertexShader:   vs,
		FragmentShader: fs,
	})
	require.NoError(t, err)
	assert.Same(t, p.Descriptor, desc)
	assert.Equal(t, uint32(32), p.Width, "viewport defaults to the image extent")
	assert.Equal(t, uint32(16), p.Height)
	assert.Len(t, desc.Sets, 1)
	assert.Same(t, stage.Buffer(), desc.Buffer)
	assert.Zero(t, inst.Live("shader_module"), "modules are released after pipeline creation")

	p.Destroy(dev)
	assert.Zero(t, inst.Live("pipeline"))
	assert.Zero(t, inst.Live("descriptor_set"))
	assert.Equal(t, 1, inst.Live("buffer"), "the stage keeps its uniform buffer")

	stage.Destroy()
	rp.Destroy(dev)
	img.Destroy(dev)
	dev.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestNewPipelineReleasesOnShaderFailure(t *testing.T) {
	inst, dev := newSoftDevice(t)
	rp, img, stage := newPipelineFixture(t, dev)
	vs, _ := stubShaders()
	bad := &ShaderSource{Code: []uint32{1, 2, 3}, Entry: "main"}

	_, _, err := NewPipeline(PipelineConfig{
		RenderPass:     rp,
		Device:         dev,
		Image:          img,
		Stage:          stage,
		VertexShader:   vs,
		FragmentShader: bad,
	})
	require.Error(t, err)
	assert.Zero(t, inst.Live("descriptor_set_layout"))
	assert.Zero(t, inst.Live("descriptor_pool"))
	assert.Zero(t, inst.Live("pipeline_layout"))
	assert.Zero(t, inst.Live("shader_module"))

	stage.Destroy()
	rp.Destroy(dev)
	img.Destroy(dev)
	dev.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestNewPipelineDefaultExtent(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	rp, img, stage := newPipelineFixture(t, dev)
	defer img.Destroy(dev)
	defer rp.Destroy(dev)
	defer stage.Destroy()
	vs, fs := stubShaders()

	zero := &Image{Handle: img.Handle, View: img.View, Format: img.Format}
	p, _, err := NewPipeline(PipelineConfig{RenderPass: rp, Device: dev, Image: zero, Stage: stage, VertexShader: vs, FragmentShader: fs})
	require.NoError(t, err)
	defer p.Destroy(dev)
	assert.Equal(t, uint32(100), p.Width)
	assert.Equal(t, uint32(100), p.Height)
}

func TestParseOptions(t *testing.T) {
	mode, err := ParsePolygonMode("line")
	require.NoError(t, err)
	assert.Equal(t, gpu.PolygonModeLine, mode)
	_, err = ParsePolygonMode("points")
	assert.Error(t, err)

	topo, err := ParseTopology("triangle_fan")
	require.NoError(t, err)
	assert.Equal(t, gpu.TopologyTriangleFan, topo)
	_, err = ParseTopology("line_list")
	assert.Error(t, err)

	proj, err := ParseProjection("perspective")
	require.NoError(t, err)
	assert.Equal(t, Perspective, proj)

	layout, err := ParseVertexLayout("vertex2_color3")
	require.NoError(t, err)
	assert.Equal(t, Vertex2Color3, layout)
	assert.Equal(t, "vertex2_color3", layout.String())
}

func TestDefaultShaders(t *testing.T) {
	vs, fs, err := DefaultShaders()
	if err != nil {
		t.Skipf("builtin WGSL does not compile with this naga version: %v", err)
	}
	assert.Equal(t, uint32(0x07230203), vs.Code[0])
	assert.Equal(t, "vs_main", vs.Entry)
	assert.Equal(t, "fs_main", fs.Entry)
}

func TestTargetOptionsFromConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Render.ClearColor = [4]float32{0.1, 0.2, 0.3, 1}
	cfg.Render.PolygonMode = "line"
	cfg.Shaders.Vertex = "shaders/custom.wgsl"

	opts, err := TargetOptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, opts.clearColor())
	assert.Equal(t, gpu.PolygonModeLine, opts.Mode)
	assert.Equal(t, Ortho, opts.Projection)
	assert.Equal(t, Vertex4Color4, opts.Layout)
	assert.Equal(t, "shaders/custom.wgsl", opts.Shaders.Vertex)
	assert.Equal(t, float32(100), opts.Far)

	cfg.Render.Topology = "points"
	cfg.Render.Layout = "vertex9"
	_, err = TargetOptionsFromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "points")
	assert.Contains(t, err.Error(), "vertex9")
}
