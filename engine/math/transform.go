package math

import "github.com/chewxy/math32"

// Transform places a shape in the plane: scale first, then a rotation about
// the Z axis, then the translation. A non-nil Parent is applied after it.
type Transform struct {
	Position Vec3
	// Rotation around +Z in radians.
	Rotation float32
	Scale    Vec3
	Parent   *Transform

	local   Mat4
	isDirty bool
}

func TransformCreate() *Transform {
	return TransformFromPositionRotationScale(Vec3{}, 0, NewVec3(1, 1, 1))
}

func TransformFromPosition(position Vec3) *Transform {
	return TransformFromPositionRotationScale(position, 0, NewVec3(1, 1, 1))
}

func TransformFromPositionRotationScale(position Vec3, rotation float32, scale Vec3) *Transform {
	return &Transform{
		Position: position,
		Rotation: rotation,
		Scale:    scale,
		isDirty:  true,
	}
}

func (t *Transform) SetPosition(position Vec3) {
	t.Position = position
	t.isDirty = true
}

func (t *Transform) Translate(translation Vec3) {
	t.Position = t.Position.Add(translation)
	t.isDirty = true
}

func (t *Transform) SetRotation(radians float32) {
	t.Rotation = radians
	t.isDirty = true
}

func (t *Transform) Rotate(radians float32) {
	t.Rotation += radians
	t.isDirty = true
}

func (t *Transform) SetScale(scale Vec3) {
	t.Scale = scale
	t.isDirty = true
}

func (t *Transform) GetLocal() Mat4 {
	if t == nil {
		return NewMat4Identity()
	}
	if t.isDirty {
		rs := NewMat4RotationZ(t.Rotation).Mul(NewMat4Scale(t.Scale))
		t.local = NewMat4Translation(t.Position).Mul(rs)
		t.isDirty = false
	}
	return t.local
}

func (t *Transform) GetWorld() Mat4 {
	if t == nil {
		return NewMat4Identity()
	}
	l := t.GetLocal()
	if t.Parent != nil {
		return t.Parent.GetWorld().Mul(l)
	}
	return l
}

/**
 * @brief Returns a counter-clockwise rotation about +Z. In a y-down screen
 * space it turns clockwise on screen.
 */
func NewMat4RotationZ(radians float32) Mat4 {
	s, c := math32.Sincos(radians)
	out_matrix := NewMat4Identity()
	out_matrix.Data[0] = c
	out_matrix.Data[1] = s
	out_matrix.Data[4] = -s
	out_matrix.Data[5] = c
	return out_matrix
}
