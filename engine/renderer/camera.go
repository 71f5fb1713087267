package renderer

import (
	"github.com/spaghettifunk/vulx/engine/math"
)

/** @brief Model, view and projection matrices in uniform buffer order. */
type Mvp struct {
	Model      math.Mat4
	View       math.Mat4
	Projection math.Mat4
}

func NewMvpIdentity() Mvp {
	return Mvp{
		Model:      math.NewMat4Identity(),
		View:       math.NewMat4Identity(),
		Projection: math.NewMat4Identity(),
	}
}

/**
 * @brief The camera feeding a Stage. Position moves the geometry, Angle is
 * the eye position the view looks at the origin from.
 */
type Camera struct {
	/** @brief Vertical field of view in radians, used by perspective stages. */
	Fov float32
	/** @brief Translation applied to every model. */
	Position math.Vec3
	/**
	 * @brief Eye coordinates handed to look-at. Despite the name this is not
	 * a rotation.
	 */
	Angle math.Vec3
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.Fov = math.DegToRad(45)
	c.Position = math.Vec3{}
	c.Angle = math.NewVec3(0, 0, 1)
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
}

func (c *Camera) SetAngle(angle math.Vec3) {
	c.Angle = angle
}

// Mvp builds the transform triple for the given projection.
func (c *Camera) Mvp(projection math.Mat4) Mvp {
	return Mvp{
		Model:      math.NewMat4Translation(c.Position),
		View:       math.NewMat4LookAt(c.Angle, math.Vec3{}, math.NewVec3Up()),
		Projection: projection,
	}
}
