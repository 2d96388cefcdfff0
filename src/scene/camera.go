package scene

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a first person camera turning around the world up axis. A zero
// Yaw looks down -Z.
type Camera struct {
	Position mgl32.Vec3
	Yaw      float32
	// Speed is in units per second, TurnRate in radians per second.
	Speed    float32
	TurnRate float32
}

func (c *Camera) Forward() mgl32.Vec3 {
	sin, cos := math32.Sincos(c.Yaw)
	return mgl32.Vec3{-sin, 0, -cos}
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.Forward().Cross(worldUp).Normalize()
}

// Update moves the camera by dt seconds of the given input.
func (c *Camera) Update(dt float32, move mgl32.Vec3, turn float32) {
	c.Yaw += turn * c.TurnRate * dt
	step := c.Forward().Mul(move.Z()).
		Add(c.Right().Mul(move.X())).
		Add(worldUp.Mul(move.Y()))
	c.Position = c.Position.Add(step.Mul(c.Speed * dt))
}

func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Forward()), worldUp)
}
