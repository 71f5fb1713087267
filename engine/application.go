package engine

import "github.com/spaghettifunk/vulx/engine/core"

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string
	// Window starting width and height.
	StartWidth  uint32
	StartHeight uint32
	// Camera translation per arrow key press, in pixels for ortho stages.
	PanStep float32
	// Eye distance change per +/- key press.
	ZoomStep float32
	// Stops the loop after this many frames; 0 runs until quit.
	MaxFrames uint64
}

func NewApplicationConfig(cfg *core.Config) *ApplicationConfig {
	return &ApplicationConfig{
		Name:        cfg.Window.Title,
		StartWidth:  cfg.Window.Width,
		StartHeight: cfg.Window.Height,
		PanStep:     10,
		ZoomStep:    0.25,
	}
}
