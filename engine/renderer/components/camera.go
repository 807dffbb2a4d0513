package components

import (
	"github.com/spaghettifunk/renderworld/engine/math"
)

// 89 degrees
const pitchLimit float32 = 1.55334306

/**
 * @brief A free flying camera. Position and rotation are set through the
 * methods below so the view matrix is rebuilt only when needed.
 */
type Camera struct {
	/** @brief The position of this camera. */
	Position math.Vec3
	/** @brief The rotation of this camera using Euler angles (pitch, yaw, roll). */
	EulerRotation math.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	/** @brief The cached view matrix; read it through GetView. */
	ViewMatrix math.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func NewCameraAt(position math.Vec3) *Camera {
	camera := NewCamera()
	camera.SetPosition(position)
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.NewVec3Zero()
	c.Position = math.NewVec3Zero()
	c.IsDirty = false
	c.ViewMatrix = math.NewMat4Identity()
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

// LookAt turns the camera towards target, keeping it level (no roll).
func (c *Camera) LookAt(target math.Vec3) {
	dir := target.Sub(c.Position).Normalize()
	if dir.LengthSquared() == 0 {
		return
	}
	c.EulerRotation.X = math.Clamp(math.Asin(dir.Y), -pitchLimit, pitchLimit)
	c.EulerRotation.Y = math.Atan2(-dir.X, -dir.Z)
	c.EulerRotation.Z = 0
	c.IsDirty = true
}

// GetView returns the view matrix, the inverse of the camera world transform.
func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		rotation := math.NewMat4EulerXYZ(c.EulerRotation.X, c.EulerRotation.Y, c.EulerRotation.Z)
		translation := math.NewMat4Translation(c.Position)

		c.ViewMatrix = rotation.Mul(translation).Inverse()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) Forward() math.Vec3 {
	view := c.GetView()
	return view.Forward()
}

func (c *Camera) Backward() math.Vec3 {
	view := c.GetView()
	return view.Backward()
}

func (c *Camera) Left() math.Vec3 {
	view := c.GetView()
	return view.Left()
}

func (c *Camera) Right() math.Vec3 {
	view := c.GetView()
	return view.Right()
}

func (c *Camera) move(direction math.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.MulScalar(amount))
	c.IsDirty = true
}

func (c *Camera) MoveForward(amount float32)  { c.move(c.Forward(), amount) }
func (c *Camera) MoveBackward(amount float32) { c.move(c.Backward(), amount) }
func (c *Camera) MoveLeft(amount float32)     { c.move(c.Left(), amount) }
func (c *Camera) MoveRight(amount float32)    { c.move(c.Right(), amount) }
func (c *Camera) MoveUp(amount float32)       { c.move(math.NewVec3Up(), amount) }
func (c *Camera) MoveDown(amount float32)     { c.move(math.NewVec3Down(), amount) }

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation.Y += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation.X += amount

	// Clamp to avoid Gimbal lock.
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -pitchLimit, pitchLimit)
	c.IsDirty = true
}
