package engine

import (
	"time"

	"github.com/spaghettifunk/vulx/engine/renderer"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
)

// Game supplies what the engine draws. Only FnScene is required.
type Game struct {
	ApplicationConfig *ApplicationConfig
	FnScene           Scene
	FnUpdate          Update
	FnOnResize        OnResize
}

// Scene returns the paths filled into the target on start and after a reload.
type Scene func(width, height uint32) ([]geometry.Source, error)

// Update runs once per frame before recording. It reports whether it moved
// the camera, in which case the stage matrices are rewritten.
type Update func(camera *renderer.Camera, deltaTime time.Duration) (bool, error)

type OnResize func(width uint32, height uint32) error
