package testbed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vulx/engine"
	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
)

func TestSceneStaysInsideCanvas(t *testing.T) {
	sources, err := Scene(320, 200)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	for _, src := range sources {
		b, ok := src.(*geometry.Builder)
		require.True(t, ok)
		ext, ok := b.Bounds()
		require.True(t, ok)
		// Lines may extend by their thickness past the last grid row.
		assert.GreaterOrEqual(t, ext.Min.X, float32(-3))
		assert.GreaterOrEqual(t, ext.Min.Y, float32(-3))
		assert.LessOrEqual(t, ext.Max.X, float32(323))
		assert.LessOrEqual(t, ext.Max.Y, float32(203))

		for _, batch := range b.Batches() {
			require.NotEmpty(t, batch.Indices)
			for _, v := range batch.Vertices {
				assert.Equal(t, float32(1), v.Position.W)
			}
		}
	}
}

// inside reports whether p lies in the triangle, edges included.
func inside(p math.Vec4, tri []geometry.Vertex) bool {
	side := func(a, b math.Vec4) float32 {
		return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	}
	d1 := side(tri[0].Position, tri[1].Position)
	d2 := side(tri[1].Position, tri[2].Position)
	d3 := side(tri[2].Position, tri[0].Position)
	neg := d1 < 0 || d2 < 0 || d3 < 0
	pos := d1 > 0 || d2 > 0 || d3 > 0
	return !(neg && pos)
}

func TestSceneInsetSitsInsideTriangle(t *testing.T) {
	sources, err := Scene(320, 200)
	require.NoError(t, err)
	batches := sources[1].(*geometry.Builder).Batches()
	require.GreaterOrEqual(t, len(batches), 3)
	triangle, inset := batches[1], batches[2]
	require.Len(t, triangle.Vertices, 3)
	require.Len(t, inset.Vertices, 3)

	for _, v := range inset.Vertices {
		assert.True(t, inside(v.Position, triangle.Vertices), "inset vertex %v", v.Position)
	}
	// Turned half a revolution: the apex points the other way.
	assert.Greater(t, inset.Vertices[2].Position.Y, inset.Vertices[0].Position.Y)
	assert.Less(t, triangle.Vertices[2].Position.Y, triangle.Vertices[0].Position.Y)
}

func TestNewTestGame(t *testing.T) {
	cfg := &engine.ApplicationConfig{Name: "demo"}
	g := NewTestGame(cfg)
	assert.Same(t, cfg, g.ApplicationConfig)
	require.NotNil(t, g.FnScene)
	assert.NoError(t, g.FnOnResize(10, 10))
}
