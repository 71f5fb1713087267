package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vulx/engine/math"
)

var red = math.NewVec4(1, 0, 0, 1)

func rectPositions() [4]math.Vec4 {
	return [4]math.Vec4{
		math.NewPoint(-0.5, -0.5),
		math.NewPoint(0.5, 0.5),
		math.NewPoint(-0.5, 0.5),
		math.NewPoint(0.5, -0.5),
	}
}

func triPositions() [3]math.Vec4 {
	return [3]math.Vec4{
		math.NewPoint(0, -0.5),
		math.NewPoint(0.5, 0.5),
		math.NewPoint(-0.5, 0.5),
	}
}

func TestBuilderSize(t *testing.T) {
	tests := []struct {
		name       string
		rectangles int
		triangles  int
	}{
		{"empty", 0, 0},
		{"single triangle", 0, 1},
		{"single rectangle", 1, 0},
		{"mixed", 3, 2},
		{"many rectangles", 17, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			for i := 0; i < tt.rectangles; i++ {
				b.Rectangle(rectPositions(), [4]math.Vec4{red, red, red, red})
			}
			for i := 0; i < tt.triangles; i++ {
				b.Triangle(triPositions(), [3]math.Vec4{red, red, red})
			}
			assert.Equal(t, 4*tt.rectangles+3*tt.triangles, b.Size())
			assert.Equal(t, tt.rectangles+tt.triangles, b.Len())
		})
	}
}

func TestBuilderIndexPatterns(t *testing.T) {
	b := NewBuilder().
		Triangle(triPositions(), [3]math.Vec4{red, red, red}).
		Rectangle(rectPositions(), [4]math.Vec4{red, red, red, red})

	batches := b.Batches()
	require.Len(t, batches, 2)
	assert.Equal(t, []uint32{0, 1, 2}, batches[0].Indices)
	assert.Equal(t, []uint32{0, 1, 2, 1, 0, 3}, batches[1].Indices)
	assert.Equal(t, rectPositions()[3], batches[1].Vertices[3].Position)
}

func TestBuilderBatchesDoNotShareIndices(t *testing.T) {
	b := NewBuilder()
	b.Rectangle(rectPositions(), [4]math.Vec4{red, red, red, red})
	b.Rectangle(rectPositions(), [4]math.Vec4{red, red, red, red})

	b.Batches()[0].Indices[0] = 9
	assert.Equal(t, uint32(0), b.Batches()[1].Indices[0])
}

func TestLine(t *testing.T) {
	b := NewBuilder().Line(math.NewPoint(0, 0), math.NewPoint(10, 0), 2, red)

	require.Equal(t, 4, b.Size())
	v := b.Batches()[0].Vertices
	assert.Equal(t, math.NewPoint(0, 0), v[0].Position)
	assert.Equal(t, math.NewPoint(10, 2), v[1].Position)
	assert.Equal(t, math.NewPoint(0, 2), v[2].Position)
	assert.Equal(t, math.NewPoint(10, 0), v[3].Position)
	assert.InDelta(t, 20, b.Area(), 1e-4)
}

func TestLineDegenerate(t *testing.T) {
	b := NewBuilder().Line(math.NewPoint(3, 3), math.NewPoint(3, 3), 1, red)
	v := b.Batches()[0].Vertices
	assert.Equal(t, math.NewPoint(3, 4), v[1].Position)
}

func TestRectArea(t *testing.T) {
	b := NewBuilder().Rect(0, 0, 64, 32, red)
	assert.InDelta(t, 64*32, b.Area(), 1e-3)

	b.Reset()
	assert.Zero(t, b.Size())
}

func TestTransformPlacesNewestShapes(t *testing.T) {
	b := NewBuilder().Rect(0, 0, 1, 1, red)
	from := b.Len()
	b.Rect(0, 0, 2, 2, red)

	tr := math.TransformFromPosition(math.NewVec3(10, 20, 0))
	b.Transform(from, tr)

	batches := b.Batches()
	assert.Equal(t, math.NewPoint(0, 0), batches[0].Vertices[0].Position, "earlier shapes stay put")
	assert.True(t, batches[1].Vertices[0].Position.Compare(math.NewPoint(10, 20), 1e-5))
	assert.True(t, batches[1].Vertices[1].Position.Compare(math.NewPoint(12, 22), 1e-5))
	assert.InDelta(t, 5, b.Area(), 1e-4, "translation keeps the area")
}

func TestBounds(t *testing.T) {
	_, ok := NewBuilder().Bounds()
	assert.False(t, ok)

	b := NewBuilder().Rect(10, 20, 5, 5, red).Rect(-3, 0, 1, 40, red)
	ext, ok := b.Bounds()
	require.True(t, ok)
	assert.Equal(t, math.NewVec2(-3, 0), ext.Min)
	assert.Equal(t, math.NewVec2(15, 40), ext.Max)
}
