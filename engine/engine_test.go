package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
	"github.com/spaghettifunk/vulx/engine/renderer/softgpu"
)

var stubCode = []uint32{0x07230203, 0x00010000, 0, 1, 0}

var green = math.NewVec4(0, 1, 0, 1)

type fakeHost struct {
	pumps    int
	waits    int
	shutdown bool
	// onPump runs before every pump; returning false closes the window.
	onPump func(n int) bool
}

func (h *fakeHost) PumpMessages() bool {
	h.pumps++
	if h.onPump != nil {
		return h.onPump(h.pumps)
	}
	return true
}

func (h *fakeHost) WaitMessages() { h.waits++ }

func (h *fakeHost) Shutdown() error {
	h.shutdown = true
	return nil
}

type fixture struct {
	inst   *softgpu.Instance
	win    *softgpu.Window
	target *renderer.SurfaceTarget
	host   *fakeHost
	bus    *core.EventBus
	input  *core.Input
	engine *Engine
	scenes int
}

func newFixture(t *testing.T, maxFrames uint64) *fixture {
	t.Helper()
	f := &fixture{
		inst: softgpu.NewInstance(),
		win:  softgpu.NewWindow(16, 16),
		host: &fakeHost{},
		bus:  core.NewEventBus(0),
	}
	f.input = core.NewInput(f.bus)
	target, err := renderer.NewSurfaceTarget(renderer.SurfaceTargetConfig{
		TargetOptions: renderer.TargetOptions{
			VertexShader:   &renderer.ShaderSource{Code: stubCode, Entry: "main"},
			FragmentShader: &renderer.ShaderSource{Code: stubCode, Entry: "main"},
		},
		Instance: f.inst,
		Window:   f.win,
	})
	require.NoError(t, err)
	f.target = target

	game := &Game{
		ApplicationConfig: &ApplicationConfig{Name: "test", PanStep: 4, ZoomStep: 0.5, MaxFrames: maxFrames},
		FnScene: func(width, height uint32) ([]geometry.Source, error) {
			f.scenes++
			return []geometry.Source{geometry.NewBuilder().Rect(0, 0, float32(width), float32(height), green)}, nil
		},
	}
	f.engine, err = New(game, f.host, target, f.bus, f.input)
	require.NoError(t, err)
	require.NoError(t, f.engine.Initialize())
	return f
}

func (f *fixture) finish(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.Shutdown())
	assert.True(t, f.host.shutdown)
	f.inst.Destroy()
	assert.Empty(t, f.inst.Violations())
	assert.Zero(t, f.inst.Live(""))
}

func TestEngineDrawsSceneOnce(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.engine.Run(context.Background()))

	frames := f.inst.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, 1, f.scenes, "paths stay in the target across frames")
	for _, fr := range frames {
		assert.Equal(t, []byte{0, 255, 0, 255}, fr.Pixels[:4])
	}
	assert.Equal(t, uint64(3), f.engine.Frames())
	f.finish(t)
}

func TestEngineStopsOnEscape(t *testing.T) {
	f := newFixture(t, 0)
	f.host.onPump = func(n int) bool {
		if n == 2 {
			f.input.ProcessKey(core.KEY_ESCAPE, true)
		}
		return true
	}
	require.NoError(t, f.engine.Run(context.Background()))
	assert.Len(t, f.inst.Frames(), 1)
	f.finish(t)
}

func TestEngineStopsWhenWindowCloses(t *testing.T) {
	f := newFixture(t, 0)
	f.host.onPump = func(n int) bool { return n < 3 }
	require.NoError(t, f.engine.Run(context.Background()))
	assert.Len(t, f.inst.Frames(), 2)
	f.finish(t)
}

func TestEngineStopsOnContext(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	f.host.onPump = func(n int) bool {
		if n == 2 {
			cancel()
		}
		return true
	}
	require.NoError(t, f.engine.Run(ctx))
	assert.Len(t, f.inst.Frames(), 2)
	f.finish(t)
}

func TestEngineResizeRebuildsAndUpdatesStage(t *testing.T) {
	f := newFixture(t, 3)
	f.host.onPump = func(n int) bool {
		if n == 2 {
			f.win.SetSize(24, 20)
			require.NoError(t, f.bus.Post(core.EVENT_CODE_RESIZED, nil, core.ResizeEventContext(24, 20)))
		}
		return true
	}
	require.NoError(t, f.engine.Run(context.Background()))

	assert.Equal(t, 1, f.target.Recreations())
	frames := f.inst.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, uint32(24), frames[1].Width)

	stage := f.target.Stage()
	assert.True(t, stage.Mvp().Projection.Compare(stage.ProjectionMatrix(), 1e-6))
	f.finish(t)
}

func TestEngineSuspendsWhileMinimized(t *testing.T) {
	f := newFixture(t, 2)
	f.host.onPump = func(n int) bool {
		switch n {
		case 2:
			require.NoError(t, f.bus.Post(core.EVENT_CODE_RESIZED, nil, core.ResizeEventContext(0, 0)))
		case 4:
			require.NoError(t, f.bus.Post(core.EVENT_CODE_RESIZED, nil, core.ResizeEventContext(16, 16)))
		}
		return true
	}
	require.NoError(t, f.engine.Run(context.Background()))
	assert.Equal(t, 2, f.host.waits)
	assert.Len(t, f.inst.Frames(), 2)
	f.finish(t)
}

func TestEngineKeysMoveCamera(t *testing.T) {
	f := newFixture(t, 2)
	f.host.onPump = func(n int) bool {
		if n == 2 {
			f.input.ProcessKey(core.KEY_RIGHT, true)
		}
		return true
	}
	require.NoError(t, f.engine.Run(context.Background()))

	stage := f.target.Stage()
	assert.Equal(t, float32(4), stage.Camera.Position.X)
	assert.Equal(t, float32(4), stage.Mvp().Model.At(0, 3), "the model matrix carries the pan")
	f.finish(t)
}

func TestEngineReloadRefillsScene(t *testing.T) {
	f := newFixture(t, 3)
	var buffers int
	f.host.onPump = func(n int) bool {
		if n == 2 {
			buffers = f.inst.Live("buffer")
			f.input.ProcessKey(core.KEY_SPACE, true)
		}
		return true
	}
	require.NoError(t, f.engine.Run(context.Background()))
	assert.Equal(t, 2, f.scenes)
	assert.Equal(t, buffers, f.inst.Live("buffer"), "the old paths are released before the refill")
	f.finish(t)
}

func TestEngineUpdateErrorStopsLoop(t *testing.T) {
	f := newFixture(t, 0)
	boom := errors.New("boom")
	f.engine.game.FnUpdate = func(camera *renderer.Camera, delta time.Duration) (bool, error) {
		return false, boom
	}
	assert.ErrorIs(t, f.engine.Run(context.Background()), boom)
	assert.Empty(t, f.inst.Frames())
	f.finish(t)
}

func TestNewEngineReportsMissingParameters(t *testing.T) {
	_, err := New(&Game{}, nil, nil, nil, nil)
	var missing *core.MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"scene", "host", "target", "event_bus"}, missing.Names)
}

func TestRunRequiresInitialize(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.engine.Run(context.Background()))
	assert.ErrorIs(t, f.engine.Run(context.Background()), core.ErrInvalidState)
	f.finish(t)
}

func TestEngineLogsResizeHandlerErrors(t *testing.T) {
	var out bytes.Buffer
	restore := core.SetLogOutput(&out)
	defer restore()

	f := newFixture(t, 2)
	f.engine.game.FnOnResize = func(width, height uint32) error {
		return errors.New("layout at 100%s")
	}
	f.host.onPump = func(n int) bool {
		if n == 1 {
			require.NoError(t, f.bus.Post(core.EVENT_CODE_RESIZED, nil, core.ResizeEventContext(16, 16)))
		}
		return true
	}
	require.NoError(t, f.engine.Run(context.Background()))
	assert.Contains(t, out.String(), "resize handler failed: layout at 100%s")
	f.finish(t)
}
