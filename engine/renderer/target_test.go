package renderer

import (
	"bytes"
	"image/color"
	"image/png"
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

var (
	red   = math.NewVec4(1, 0, 0, 1)
	green = math.NewVec4(0, 1, 0, 1)
)

// fullScreenQuad covers clip space with identity transforms.
func fullScreenQuad(c math.Vec4) *geometry.Builder {
	return geometry.NewBuilder().Rectangle(
		[4]math.Vec4{math.NewPoint(-1, -1), math.NewPoint(1, 1), math.NewPoint(-1, 1), math.NewPoint(1, -1)},
		[4]math.Vec4{c, c, c, c},
	)
}

func newPNGTarget(t *testing.T, dev *Device, w, h uint32, path string) *PNGTarget {
	t.Helper()
	target, err := NewPNGTarget(PNGTargetConfig{
		TargetOptions: stubOptions(),
		Device:        dev,
		Width:         w,
		Height:        h,
		Path:          path,
	})
	require.NoError(t, err)
	return target
}

func assertFilled(t *testing.T, target *PNGTarget, want color.RGBA) {
	t.Helper()
	img := target.Pixels()
	require.NotNil(t, img)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if got := img.RGBAAt(x, y); got != want {
				t.Fatalf("pixel %d,%d = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestPNGTargetRendersRectangle(t *testing.T) {
	inst, dev := newSoftDevice(t)
	out := filepath.Join(t.TempDir(), "rect.png")
	target := newPNGTarget(t, dev, 64, 64, out)

	// Pixel coordinates through the orthographic stage.
	require.NoError(t, target.Stage().Update())
	require.NoError(t, target.Begin())
	require.NoError(t, target.Fill(geometry.NewBuilder().Rect(0, 0, 64, 64, red)))
	require.NoError(t, target.End())
	assertFilled(t, target, color.RGBA{R: 255, A: 255})

	f, err := os.Open(out)
	require.NoError(t, err)
	decoded, err := png.Decode(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, 64, decoded.Bounds().Dx())
	assert.Equal(t, 64, decoded.Bounds().Dy())
	r, g, b, a := decoded.At(10, 50).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a})

	require.NoError(t, target.Destroy())
	dev.Destroy()
	assert.Empty(t, inst.Violations())
	assert.Zero(t, inst.Live(""))
}

func TestPNGTargetClearColor(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()

	target := newPNGTarget(t, dev, 8, 8, "")
	require.NoError(t, target.Begin())
	require.NoError(t, target.End())
	assertFilled(t, target, color.RGBA{A: 255})
	require.NoError(t, target.Destroy())

	opts := stubOptions()
	opts.ClearColor = &math.Color{R: 0, G: 0, B: 1, A: 1}
	blue, err := NewPNGTarget(PNGTargetConfig{TargetOptions: opts, Device: dev, Width: 8, Height: 8})
	require.NoError(t, err)
	require.NoError(t, blue.Begin())
	require.NoError(t, blue.End())
	assertFilled(t, blue, color.RGBA{B: 255, A: 255})
	require.NoError(t, blue.Destroy())
}

func TestPNGTargetStateMachine(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	target := newPNGTarget(t, dev, 8, 8, "")
	defer target.Destroy()

	assert.Equal(t, TargetIdle, target.State())
	assert.ErrorIs(t, target.Fill(fullScreenQuad(red)), core.ErrInvalidState, "fill before begin")
	assert.ErrorIs(t, target.End(), core.ErrInvalidState, "end before begin")

	require.NoError(t, target.Begin())
	assert.Equal(t, TargetRecording, target.State())
	assert.ErrorIs(t, target.Begin(), core.ErrInvalidState, "begin while recording")
	require.NoError(t, target.End())

	assert.Equal(t, TargetIdle, target.State())
	assert.ErrorIs(t, target.Fill(fullScreenQuad(red)), core.ErrInvalidState, "fill after end")
}

func TestStageUpdateRejectedWhileRecording(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	target := newPNGTarget(t, dev, 8, 8, "")
	defer target.Destroy()

	require.NoError(t, target.Begin())
	assert.ErrorIs(t, target.Stage().Update(), core.ErrInvalidState)
	require.NoError(t, target.End())
	assert.NoError(t, target.Stage().Update())
}

func TestPNGTargetPathsPersistUntilClear(t *testing.T) {
	inst, dev := newSoftDevice(t)
	defer dev.Destroy()
	target := newPNGTarget(t, dev, 8, 8, "")
	defer target.Destroy()

	require.NoError(t, target.Begin())
	require.NoError(t, target.Fill(fullScreenQuad(green)))
	require.NoError(t, target.End())
	assertFilled(t, target, color.RGBA{G: 255, A: 255})

	require.NoError(t, target.Begin())
	require.NoError(t, target.End())
	assertFilled(t, target, color.RGBA{G: 255, A: 255})

	target.Clear()
	assert.Equal(t, 1, inst.Live("buffer"), "only the stage uniform buffer remains")
	require.NoError(t, target.Begin())
	require.NoError(t, target.End())
	assertFilled(t, target, color.RGBA{A: 255})
}

func TestPNGTargetLaterFillsDrawOnTop(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	target := newPNGTarget(t, dev, 8, 8, "")
	defer target.Destroy()

	require.NoError(t, target.Begin())
	require.NoError(t, target.Fill(fullScreenQuad(red)))
	require.NoError(t, target.Fill(fullScreenQuad(green)))
	require.NoError(t, target.End())
	assertFilled(t, target, color.RGBA{G: 255, A: 255})
}

func TestEndWithoutPipelineFails(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	target := newPNGTarget(t, dev, 8, 8, "")
	defer target.Destroy()

	require.NoError(t, target.Begin())
	target.frame.pipeline.Destroy(dev)
	target.frame.pipeline = nil
	assert.ErrorIs(t, target.End(), core.ErrInvalidState)
	assert.Equal(t, TargetIdle, target.State())
}

func TestPNGTargetRequiresDevice(t *testing.T) {
	_, err := NewPNGTarget(PNGTargetConfig{Width: 8, Height: 8})
	var missing *core.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"logical_device"}, missing.Names)
}

func TestPNGTargetReleasesOnFailure(t *testing.T) {
	inst, dev := newSoftDevice(t)
	opts := stubOptions()
	opts.FragmentShader = &ShaderSource{Code: []uint32{0}, Entry: "main"}

	_, err := NewPNGTarget(PNGTargetConfig{TargetOptions: opts, Device: dev, Width: 8, Height: 8})
	require.Error(t, err)
	dev.Destroy()
	assert.Empty(t, inst.Violations())
	assert.Zero(t, inst.Live(""))
}

func TestEncodeImageByExtension(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	target := newPNGTarget(t, dev, 4, 4, "")
	defer target.Destroy()
	require.NoError(t, target.Begin())
	require.NoError(t, target.End())

	dir := t.TempDir()
	for _, name := range []string{"out.png", "out.BMP", "out.tiff", "out.tif"} {
		path := filepath.Join(dir, name)
		require.NoError(t, EncodeImage(path, target.Pixels()), name)
		fi, err := os.Stat(path)
		require.NoError(t, err)
		assert.NotZero(t, fi.Size(), name)
	}
	assert.Error(t, EncodeImage(filepath.Join(dir, "out.jpg"), target.Pixels()))
}

func newSurfaceTarget(t *testing.T, inst *softgpu.Instance, win *softgpu.Window) *SurfaceTarget {
	t.Helper()
	target, err := NewSurfaceTarget(SurfaceTargetConfig{
		TargetOptions: stubOptions(),
		Instance:      inst,
		Window:        win,
	})
	require.NoError(t, err)
	return target
}

func drawFrame(t *testing.T, target RenderTarget) {
	t.Helper()
	require.NoError(t, target.Begin())
	require.NoError(t, target.End())
}

func TestSurfaceTargetPresents(t *testing.T) {
	inst := softgpu.NewInstance()
	win := softgpu.NewWindow(16, 16)
	target := newSurfaceTarget(t, inst, win)

	require.NoError(t, target.Begin())
	require.NoError(t, target.Fill(fullScreenQuad(green)))
	require.NoError(t, target.End())

	frames := inst.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, uint32(16), frames[0].Width)
	assert.Equal(t, gpu.FormatB8G8R8A8Unorm, frames[0].Format)
	assert.Equal(t, []byte{0, 255, 0, 255}, frames[0].Pixels[:4])
	assert.Zero(t, target.Recreations())

	require.NoError(t, target.Destroy())
	inst.Destroy()
	assert.Empty(t, inst.Violations())
	assert.Zero(t, inst.Live(""))
}

func TestSurfaceTargetRecreatesOnOutOfDate(t *testing.T) {
	inst := softgpu.NewInstance()
	win := softgpu.NewWindow(16, 16)
	target := newSurfaceTarget(t, inst, win)
	drawFrame(t, target)

	win.SetSize(24, 20)
	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations())
	assert.Equal(t, gpu.Extent{Width: 24, Height: 20}, target.Extent())
	w, h := target.Stage().Size()
	assert.Equal(t, [2]uint32{24, 20}, [2]uint32{w, h})

	frames := inst.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(24), frames[1].Width)
	assert.Equal(t, uint32(20), frames[1].Height)

	fbs := target.Device().Logical.(*softgpu.Device).Framebuffers()
	require.NotEmpty(t, fbs)
	for _, fb := range fbs {
		assert.Equal(t, uint32(24), fb.Width)
	}

	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations(), "a stable size does not rebuild again")

	require.NoError(t, target.Destroy())
	inst.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestSurfaceTargetSuboptimalAcquire(t *testing.T) {
	inst := softgpu.NewInstance()
	win := softgpu.NewWindow(16, 16)
	target := newSurfaceTarget(t, inst, win)

	inst.InjectAcquireResult(gpu.Suboptimal)
	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations())
	assert.Len(t, inst.Frames(), 1)

	require.NoError(t, target.Destroy())
	inst.Destroy()
	assert.Empty(t, inst.Violations(), "semaphores signaled by the abandoned acquire are replaced")
}

func TestSurfaceTargetPresentOutOfDate(t *testing.T) {
	inst := softgpu.NewInstance()
	win := softgpu.NewWindow(16, 16)
	target := newSurfaceTarget(t, inst, win)

	require.NoError(t, target.Begin())
	win.SetSize(20, 20)
	require.NoError(t, target.End(), "out of date present is not an error")
	assert.Empty(t, inst.Frames())
	assert.Zero(t, target.Recreations())

	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations())
	assert.Len(t, inst.Frames(), 1)

	require.NoError(t, target.Destroy())
	inst.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestSurfaceTargetMarkResized(t *testing.T) {
	inst := softgpu.NewInstance()
	target := newSurfaceTarget(t, inst, softgpu.NewWindow(16, 16))
	defer inst.Destroy()
	defer target.Destroy()

	target.MarkResized()
	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations())
	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations())
}

func TestSurfaceTargetAcquireFailure(t *testing.T) {
	inst := softgpu.NewInstance()
	target := newSurfaceTarget(t, inst, softgpu.NewWindow(16, 16))
	defer inst.Destroy()
	defer target.Destroy()

	inst.InjectAcquireResult(gpu.ErrorSurfaceLost)
	err := target.Begin()
	assert.ErrorIs(t, err, gpu.ErrorSurfaceLost)
	assert.Equal(t, TargetIdle, target.State())
}

func TestSurfaceTargetRequiresWindow(t *testing.T) {
	inst := softgpu.NewInstance()
	before := inst.Created("")
	_, err := NewSurfaceTarget(SurfaceTargetConfig{Instance: inst})
	var missing *core.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"window"}, missing.Names)
	assert.Equal(t, before, inst.Created(""))
}

func TestSurfaceTargetSyncAppliesResize(t *testing.T) {
	inst := softgpu.NewInstance()
	win := softgpu.NewWindow(16, 16)
	target := newSurfaceTarget(t, inst, win)
	drawFrame(t, target)

	win.SetSize(32, 8)
	target.MarkResized()
	require.NoError(t, target.Sync())
	assert.Equal(t, 1, target.Recreations())
	w, h := target.Stage().Size()
	assert.Equal(t, [2]uint32{32, 8}, [2]uint32{w, h})
	require.NoError(t, target.Stage().Update())

	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations())

	require.NoError(t, target.Begin())
	assert.ErrorIs(t, target.Sync(), core.ErrInvalidState)
	require.NoError(t, target.End())

	require.NoError(t, target.Destroy())
	inst.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestSurfaceTargetRetriesFailedRecreate(t *testing.T) {
	inst := softgpu.NewInstance()
	win := softgpu.NewWindow(16, 16)
	target := newSurfaceTarget(t, inst, win)
	drawFrame(t, target)

	win.SetSize(24, 24)
	inst.InjectSwapchainResult(gpu.ErrorOutOfDeviceMemory)
	assert.ErrorIs(t, target.Begin(), gpu.ErrorOutOfDeviceMemory)
	assert.Equal(t, TargetIdle, target.State())
	assert.Zero(t, target.Recreations())
	assert.Equal(t, gpu.Extent{Width: 16, Height: 16}, target.Extent(), "the old swapchain is kept")
	assert.Equal(t, 1, inst.Live("swapchain"))

	drawFrame(t, target)
	assert.Equal(t, 1, target.Recreations())
	assert.Equal(t, gpu.Extent{Width: 24, Height: 24}, target.Extent())
	frames := inst.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(24), frames[1].Width)

	require.NoError(t, target.Destroy())
	inst.Destroy()
	assert.Empty(t, inst.Violations())
	assert.Zero(t, inst.Live(""))
}

func TestSurfaceTargetClearWaitsForFrameInFlight(t *testing.T) {
	inst := softgpu.NewInstance()
	target := newSurfaceTarget(t, inst, softgpu.NewWindow(16, 16))
	require.NoError(t, target.Begin())
	require.NoError(t, target.Fill(fullScreenQuad(green)))
	require.NoError(t, target.End())
	withPaths := inst.Live("buffer")
	require.Greater(t, withPaths, 1)

	// Unsignal the fence as if the device were still drawing the frame.
	logical := target.Device().Logical
	require.NoError(t, logical.ResetFences([]gpu.Fence{target.fence.Handle}))
	var out bytes.Buffer
	restore := core.SetLogOutput(&out)
	target.Clear()
	restore()
	assert.Equal(t, withPaths, inst.Live("buffer"), "paths of a frame in flight are kept")
	assert.Contains(t, out.String(), "clear skipped")

	require.NoError(t, logical.QueueSubmit(target.Device().Queue, nil, target.fence.Handle))
	target.Clear()
	assert.Equal(t, 1, inst.Live("buffer"), "only the stage uniform buffer remains")

	drawFrame(t, target)
	require.NoError(t, target.Destroy())
	inst.Destroy()
	assert.Empty(t, inst.Violations())
}
