package scene

import "github.com/go-gl/mathgl/mgl32"

var worldUp = mgl32.Vec3{0, 1, 0}

// vulkanClip maps OpenGL clip space onto Vulkan's, where y points down and
// depth spans [0, 1].
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Perspective is a right handed projection into Vulkan clip space.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	return vulkanClip.Mul4(mgl32.Perspective(fovy, aspect, near, far))
}
