// Package engine runs the interactive render loop: it pumps window events,
// moves the stage camera from the keyboard and redraws a surface target.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Host is the window side of the loop.
type Host interface {
	// PumpMessages processes window events; false means the window closed.
	PumpMessages() bool
	// WaitMessages blocks until an event arrives. Used while minimized.
	WaitMessages()
	Shutdown() error
}

// Target is a render target bound to a resizable surface.
type Target interface {
	renderer.RenderTarget
	MarkResized()
	Sync() error
}

type Engine struct {
	currentStage Stage
	game         *Game
	config       *ApplicationConfig
	host         Host
	target       Target
	bus          *core.EventBus
	input        *core.Input
	clock        *core.Clock
	metrics      *core.FrameMetrics
	lastTime     time.Duration

	isRunning   bool
	isSuspended bool
	needsFill   bool
	needsClear  bool
	stageDirty  bool
	width       uint32
	height      uint32
}

// New takes ownership of host and target; Shutdown releases both.
func New(g *Game, host Host, target Target, bus *core.EventBus, input *core.Input) (*Engine, error) {
	err := core.RequireParams(
		core.Param{Name: "game", Present: g != nil},
		core.Param{Name: "scene", Present: g != nil && g.FnScene != nil},
		core.Param{Name: "host", Present: host != nil},
		core.Param{Name: "target", Present: target != nil},
		core.Param{Name: "event_bus", Present: bus != nil},
	)
	if err != nil {
		return nil, err
	}
	cfg := g.ApplicationConfig
	if cfg == nil {
		cfg = NewApplicationConfig(core.DefaultConfig())
	}
	if input == nil {
		input = core.NewInput(bus)
	}
	w, h := target.Stage().Size()
	return &Engine{
		currentStage: EngineStageUninitialized,
		game:         g,
		config:       cfg,
		host:         host,
		target:       target,
		bus:          bus,
		input:        input,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        w,
		height:       h,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine initialized twice: %w", core.ErrInvalidState)
	}
	e.bus.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.bus.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.bus.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	e.isRunning = true
	e.needsFill = true
	e.stageDirty = true
	e.currentStage = EngineStageInitialized
	return nil
}

// Run loops until the window closes, a quit event arrives, ctx is done or
// MaxFrames frames were drawn.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("run before initialize: %w", core.ErrInvalidState)
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()
	e.lastTime = 0

	for e.isRunning {
		if ctx.Err() != nil {
			core.LogInfo("context done, stopping the render loop")
			break
		}
		if !e.host.PumpMessages() {
			e.isRunning = false
			break
		}
		e.bus.Dispatch()
		if !e.isRunning {
			break
		}
		if e.isSuspended {
			e.host.WaitMessages()
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		e.lastTime = currentTime

		if err := e.drawFrame(delta); err != nil {
			core.LogError("frame failed, shutting down: %s", err)
			e.isRunning = false
			return err
		}
		e.input.Update()

		if e.metrics.Update(delta) {
			core.LogDebug("%.0f fps, %.2f ms/frame", e.metrics.FPS(), e.metrics.FrameTime())
		}
		if e.config.MaxFrames > 0 && e.metrics.Frames() >= e.config.MaxFrames {
			e.isRunning = false
		}
	}
	return nil
}

func (e *Engine) drawFrame(delta time.Duration) error {
	if e.game.FnUpdate != nil {
		moved, err := e.game.FnUpdate(e.target.Stage().Camera, delta)
		if err != nil {
			return fmt.Errorf("game update: %w", err)
		}
		e.stageDirty = e.stageDirty || moved
	}

	// Paths and the uniform buffer are only touched once the device is done
	// with the previous frame.
	if e.needsClear || e.stageDirty {
		if err := e.target.Sync(); err != nil {
			return err
		}
	}
	if e.needsClear {
		e.target.Clear()
		e.needsClear = false
	}
	if e.stageDirty {
		if err := e.target.Stage().Update(); err != nil {
			return err
		}
		e.stageDirty = false
	}

	if err := e.target.Begin(); err != nil {
		return err
	}
	if e.needsFill {
		if err := e.fill(); err != nil {
			// Close the frame so the target is idle again.
			_ = e.target.End()
			return err
		}
		e.needsFill = false
	}
	if err := e.target.End(); err != nil {
		return err
	}

	// Begin may have rebuilt the swapchain on its own.
	if w, h := e.target.Stage().Size(); w != e.width || h != e.height {
		e.width, e.height = w, h
		e.stageDirty = true
	}
	return nil
}

func (e *Engine) fill() error {
	w, h := e.target.Stage().Size()
	sources, err := e.game.FnScene(w, h)
	if err != nil {
		return fmt.Errorf("building scene: %w", err)
	}
	for _, src := range sources {
		if err := e.target.Fill(src); err != nil {
			return err
		}
	}
	core.LogDebug("scene filled with %d sources", len(sources))
	return nil
}

// Frames is the number of frames drawn so far.
func (e *Engine) Frames() uint64 {
	return e.metrics.Frames()
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.bus.Unregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	e.bus.Unregister(core.EVENT_CODE_KEY_PRESSED, e)
	e.bus.Unregister(core.EVENT_CODE_RESIZED, e)

	var errs []error
	if err := e.target.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := e.host.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	e.currentStage = EngineStageUninitialized
	if len(errs) > 0 {
		return fmt.Errorf("engine shutdown: %v", errs)
	}
	return nil
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	camera := e.target.Stage().Camera
	step := e.config.PanStep

	switch core.KeyCode(data.Data.U16[0]) {
	case core.KEY_ESCAPE, core.KEY_Q:
		e.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		return true
	case core.KEY_LEFT, core.KEY_A:
		camera.Position.X -= step
	case core.KEY_RIGHT, core.KEY_D:
		camera.Position.X += step
	case core.KEY_UP, core.KEY_W:
		camera.Position.Y -= step
	case core.KEY_DOWN, core.KEY_S:
		camera.Position.Y += step
	case core.KEY_PLUS:
		camera.Angle.Z = max(camera.Angle.Z-e.config.ZoomStep, e.config.ZoomStep)
	case core.KEY_MINUS:
		camera.Angle.Z += e.config.ZoomStep
	case core.KEY_R:
		camera.Reset()
	case core.KEY_C:
		e.needsClear = true
		return true
	case core.KEY_SPACE:
		e.needsClear = true
		e.needsFill = true
		return true
	default:
		return false
	}
	e.stageDirty = true
	return true
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == 0 || height == 0 {
		if !e.isSuspended {
			core.LogInfo("Window minimized, suspending application.")
		}
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	core.LogDebug("Window resize: %d, %d", width, height)
	e.target.MarkResized()
	e.stageDirty = true
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(width, height); err != nil {
			core.LogError("resize handler failed: %s", err)
		}
	}
	return true
}
