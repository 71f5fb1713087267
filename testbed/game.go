// Package testbed holds the demo scene drawn by the render and window
// commands.
package testbed

import (
	"github.com/spaghettifunk/vulx/engine"
	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
)

var (
	gridColor   = math.NewVec4(0.18, 0.18, 0.22, 1)
	panelColor  = math.NewVec4(0.15, 0.35, 0.75, 1)
	accentColor = math.NewVec4(0.95, 0.55, 0.1, 1)
	lineColor   = math.NewVec4(0.9, 0.9, 0.9, 1)
)

// gridSpacing is the distance between background grid lines in pixels.
const gridSpacing = 32

const (
	// triangleTilt rotates the demo triangle, in radians.
	triangleTilt = 0.2
	insetScale   = 0.3
)

func NewTestGame(config *engine.ApplicationConfig) *engine.Game {
	return &engine.Game{
		ApplicationConfig: config,
		FnScene:           Scene,
		FnOnResize: func(width, height uint32) error {
			core.LogDebug("testbed: window is now %dx%d", width, height)
			return nil
		},
	}
}

// Scene lays out a grid, a panel, a triangle with an inset and a diagonal
// stroke scaled to a width x height pixel canvas with a y-down origin at the
// top left.
func Scene(width, height uint32) ([]geometry.Source, error) {
	w, h := float32(width), float32(height)

	grid := geometry.NewBuilder()
	for x := float32(0); x <= w; x += gridSpacing {
		grid.Line(math.NewPoint(x, 0), math.NewPoint(x, h), 1, gridColor)
	}
	for y := float32(0); y <= h; y += gridSpacing {
		grid.Line(math.NewPoint(0, y), math.NewPoint(w, y), 1, gridColor)
	}

	shapes := geometry.NewBuilder().Rect(w*0.1, h*0.1, w*0.35, h*0.3, panelColor)

	// The triangle is modelled around the origin and placed by a transform.
	from := shapes.Len()
	shapes.Triangle(
		[3]math.Vec4{math.NewPoint(-1, 1), math.NewPoint(1, 1), math.NewPoint(0, -1)},
		[3]math.Vec4{accentColor, panelColor, lineColor},
	)
	place := math.TransformFromPosition(math.NewVec3(w*0.75, h*0.6, 0))
	place.SetScale(math.NewVec3(w*0.15, h*0.15, 1))
	place.SetRotation(triangleTilt)
	shapes.Transform(from, place)

	// An inverted inset, placed relative to the triangle.
	from = shapes.Len()
	shapes.Triangle(
		[3]math.Vec4{math.NewPoint(-1, 1), math.NewPoint(1, 1), math.NewPoint(0, -1)},
		[3]math.Vec4{lineColor, lineColor, lineColor},
	)
	inset := math.TransformCreate()
	inset.SetScale(math.NewVec3(insetScale, insetScale, 1))
	inset.Rotate(math.K_PI)
	inset.Parent = place
	shapes.Transform(from, inset)

	shapes.Line(math.NewPoint(w*0.1, h*0.9), math.NewPoint(w*0.9, h*0.2), 3, lineColor)

	return []geometry.Source{grid, shapes}, nil
}
