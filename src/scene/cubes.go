package scene

import (
	"encoding/binary"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// CubeVertexCount is the number of vertices drawn per cube instance.
const CubeVertexCount = 36

// Vertex and instance strides of the cube pipeline: a vec3 position per
// vertex and a vec3 offset plus a vec3 color per instance.
const (
	VertexStride   = 3 * 4
	InstanceStride = 6 * 4
)

var cubeCorners = [8]mgl32.Vec3{
	{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5},
	{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5},
}

// counter clockwise when seen from outside
var cubeFaces = [6][4]int{
	{0, 1, 2, 3}, // front
	{5, 4, 7, 6}, // back
	{4, 0, 3, 7}, // left
	{1, 5, 6, 2}, // right
	{3, 2, 6, 7}, // top
	{4, 5, 1, 0}, // bottom
}

// CubeVertices returns the triangle list of a unit cube centered on the
// origin.
func CubeVertices() []mgl32.Vec3 {
	out := make([]mgl32.Vec3, 0, CubeVertexCount)
	for _, f := range cubeFaces {
		a, b, c, d := cubeCorners[f[0]], cubeCorners[f[1]], cubeCorners[f[2]], cubeCorners[f[3]]
		out = append(out, a, b, c, c, d, a)
	}
	return out
}

// Instance is one cube of the grid.
type Instance struct {
	Offset mgl32.Vec3
	Color  mgl32.Vec3
}

// Grid lays out n*n cubes on the XZ plane, spacing apart, centered on the
// origin, colored by position.
func Grid(n int, spacing float32) []Instance {
	if n <= 0 {
		return nil
	}
	out := make([]Instance, 0, n*n)
	half := float32(n-1) * spacing / 2
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			u, v := float32(0.5), float32(0.5)
			if n > 1 {
				u, v = float32(i)/float32(n-1), float32(j)/float32(n-1)
			}
			out = append(out, Instance{
				Offset: mgl32.Vec3{float32(i)*spacing - half, 0, float32(j)*spacing - half},
				Color:  mgl32.Vec3{u, 0.4, v},
			})
		}
	}
	return out
}

// VertexBytes packs vertices for the vertex buffer.
func VertexBytes(vs []mgl32.Vec3) []byte {
	b := make([]byte, 0, len(vs)*VertexStride)
	for _, v := range vs {
		b = appendVec3(b, v)
	}
	return b
}

// InstanceBytes packs instances for the instance buffer.
func InstanceBytes(in []Instance) []byte {
	b := make([]byte, 0, len(in)*InstanceStride)
	for _, i := range in {
		b = appendVec3(b, i.Offset)
		b = appendVec3(b, i.Color)
	}
	return b
}

func appendVec3(b []byte, v mgl32.Vec3) []byte {
	for _, f := range v {
		b = appendFloat(b, f)
	}
	return b
}

func appendMat4(b []byte, m mgl32.Mat4) []byte {
	for _, f := range m {
		b = appendFloat(b, f)
	}
	return b
}

func appendFloat(b []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math32.Float32bits(f))
}
