package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-5

func TestMat4MulAppliesRightFirst(t *testing.T) {
	translate := NewMat4Translation(NewVec3(5, 0, 0))
	scale := NewMat4Scale(NewVec3(2, 2, 1))

	p := translate.Mul(scale).MulVec4(NewPoint(1, 1))
	assert.True(t, p.Compare(NewPoint(7, 2), eps), "got %v", p)

	p = scale.Mul(translate).MulVec4(NewPoint(1, 1))
	assert.True(t, p.Compare(NewPoint(12, 2), eps), "got %v", p)
}

func TestMat4At(t *testing.T) {
	m := NewMat4Translation(NewVec3(1, 2, 3))
	assert.Equal(t, float32(1), m.At(0, 3))
	assert.Equal(t, float32(2), m.At(1, 3))
	assert.Equal(t, float32(3), m.At(2, 3))
	assert.True(t, m.Transposed().Transposed().Compare(m, 0))
}

func TestOrthographicMapsCorners(t *testing.T) {
	m := NewMat4Orthographic(0, 200, 0, 100, -1, 1)
	lo := m.MulVec4(NewPoint(0, 0))
	hi := m.MulVec4(NewPoint(200, 100))
	assert.InDelta(t, -1, lo.X, eps)
	assert.InDelta(t, 1, hi.X, eps)
	assert.InDelta(t, 2, abs(hi.Y-lo.Y), eps)
}

func TestTransformOrder(t *testing.T) {
	tr := TransformFromPositionRotationScale(NewVec3(10, 0, 0), DegToRad(90), NewVec3(2, 2, 1))
	// Scale (1,0) to (2,0), rotate to (0,2), then translate.
	p := tr.GetLocal().MulVec4(NewPoint(1, 0))
	assert.True(t, p.Compare(NewPoint(10, 2), eps), "got %v", p)

	tr.Translate(NewVec3(0, 5, 0))
	p = tr.GetLocal().MulVec4(NewPoint(1, 0))
	assert.True(t, p.Compare(NewPoint(10, 7), eps), "the cached matrix is rebuilt, got %v", p)
}

func TestTransformSettersRebuildLocal(t *testing.T) {
	tr := TransformCreate()
	assert.True(t, tr.GetLocal().Compare(NewMat4Identity(), 0))

	tr.SetScale(NewVec3(3, 3, 1))
	p := tr.GetLocal().MulVec4(NewPoint(1, 0))
	assert.True(t, p.Compare(NewPoint(3, 0), eps), "got %v", p)

	tr.SetRotation(DegToRad(90))
	p = tr.GetLocal().MulVec4(NewPoint(1, 0))
	assert.True(t, p.Compare(NewPoint(0, 3), eps), "got %v", p)

	tr.Rotate(DegToRad(90))
	p = tr.GetLocal().MulVec4(NewPoint(1, 0))
	assert.True(t, p.Compare(NewPoint(-3, 0), eps), "got %v", p)
	assert.InDelta(t, K_PI, tr.Rotation, eps)
}

func TestTransformParent(t *testing.T) {
	parent := TransformFromPosition(NewVec3(100, 0, 0))
	child := TransformFromPosition(NewVec3(0, 50, 0))
	child.Parent = parent
	p := child.GetWorld().MulVec4(NewPoint(0, 0))
	assert.True(t, p.Compare(NewPoint(100, 50), eps))

	var none *Transform
	assert.True(t, none.GetWorld().Compare(NewMat4Identity(), 0))
}

func TestClampMinMax(t *testing.T) {
	assert.Equal(t, 3, Clamp(5, 0, 3))
	assert.Equal(t, float32(0), Clamp(float32(-1), 0, 3))
	assert.Equal(t, 2, Min(2, 7))
	assert.Equal(t, 7, Max(2, 7))
}

func TestVectors(t *testing.T) {
	v := NewVec2(3, 4)
	assert.InDelta(t, 5, v.Length(), eps)
	assert.InDelta(t, 1, v.Normalized().Length(), eps)
	assert.Equal(t, NewVec2(-4, 3), v.Perp())

	c := NewVec3(1, 0, 0).Cross(NewVec3(0, 1, 0))
	assert.Equal(t, NewVec3(0, 0, 1), c)
	assert.InDelta(t, float32(K_PI), DegToRad(180), eps)
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
