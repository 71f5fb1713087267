// Package platform owns the glfw window the surface target presents into.
package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type Platform struct {
	window *glfw.Window
	bus    *core.EventBus
	input  *core.Input
}

// New returns a platform reporting window events on bus and key transitions
// through input. Either may be nil.
func New(bus *core.EventBus, input *core.Input) *Platform {
	return &Platform{bus: bus, input: input}
}

// Init initializes glfw and checks that a Vulkan loader is present. It must
// run on the main thread before ProcAddr is used, with or without a window.
func Init() error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("glfw: vulkan loader not found: %w", core.ErrNoSuitableDevice)
	}
	return nil
}

// Terminate releases glfw. Call it last, on the main thread.
func Terminate() {
	glfw.Terminate()
}

// ProcAddr is vkGetInstanceProcAddr as resolved by glfw. Valid after Init.
func ProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (p *Platform) Startup(cfg core.WindowConfig) error {
	if err := Init(); err != nil {
		return err
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.window = window
	p.window.SetKeyCallback(p.keyCallback)
	p.window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.window.SetCloseCallback(p.closeCallback)

	core.LogInfo("window %q created: %dx%d", cfg.Title, cfg.Width, cfg.Height)
	return nil
}

// Window is the surface provider for the renderer.
func (p *Platform) Window() gpu.Window {
	return p.window
}

// RequiredExtensions lists the instance extensions the window surface needs.
func (p *Platform) RequiredExtensions() []string {
	if p.window == nil {
		return nil
	}
	return p.window.GetRequiredInstanceExtensions()
}

// PumpMessages processes pending window events. It returns false once the
// window was asked to close.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.window.ShouldClose()
}

// WaitMessages blocks until at least one window event arrives.
func (p *Platform) WaitMessages() {
	glfw.WaitEvents()
}

func (p *Platform) Shutdown() error {
	if p.window != nil {
		p.window.Destroy()
		p.window = nil
	}
	Terminate()
	return nil
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if p.input == nil || action == glfw.Repeat {
		return
	}
	code, ok := translateKey(key)
	if !ok {
		return
	}
	p.input.ProcessKey(code, action == glfw.Press)
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.post(core.EVENT_CODE_RESIZED, core.ResizeEventContext(uint32(width), uint32(height)))
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.post(core.EVENT_CODE_APPLICATION_QUIT, core.EventContext{})
}

func (p *Platform) post(code core.SystemEventCode, data core.EventContext) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Post(code, p, data); err != nil {
		core.LogWarn("dropping window event %d: %s", code, err)
	}
}

var keys = map[glfw.Key]core.KeyCode{
	glfw.KeyBackspace:  core.KEY_BACKSPACE,
	glfw.KeyTab:        core.KEY_TAB,
	glfw.KeyEnter:      core.KEY_ENTER,
	glfw.KeyEscape:     core.KEY_ESCAPE,
	glfw.KeySpace:      core.KEY_SPACE,
	glfw.KeyHome:       core.KEY_HOME,
	glfw.KeyLeft:       core.KEY_LEFT,
	glfw.KeyUp:         core.KEY_UP,
	glfw.KeyRight:      core.KEY_RIGHT,
	glfw.KeyDown:       core.KEY_DOWN,
	glfw.KeyA:          core.KEY_A,
	glfw.KeyC:          core.KEY_C,
	glfw.KeyD:          core.KEY_D,
	glfw.KeyP:          core.KEY_P,
	glfw.KeyQ:          core.KEY_Q,
	glfw.KeyR:          core.KEY_R,
	glfw.KeyS:          core.KEY_S,
	glfw.KeyW:          core.KEY_W,
	glfw.KeyEqual:      core.KEY_PLUS,
	glfw.KeyKPAdd:      core.KEY_PLUS,
	glfw.KeyMinus:      core.KEY_MINUS,
	glfw.KeyKPSubtract: core.KEY_MINUS,
}

func translateKey(key glfw.Key) (core.KeyCode, bool) {
	code, ok := keys[key]
	return code, ok
}
