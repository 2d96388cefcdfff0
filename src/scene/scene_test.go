package scene

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epsilon-frontend/src/render"
)

const eps = 1e-5

func assertVec(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], eps, "component %d of %v", i, got)
	}
}

func TestPerspective(t *testing.T) {
	p := Perspective(mgl32.DegToRad(90), 1, 0.5, 50)

	for idx, tc := range []struct {
		in    mgl32.Vec3
		depth float32
	}{
		{in: mgl32.Vec3{0, 0, -0.5}, depth: 0},
		{in: mgl32.Vec3{0, 0, -50}, depth: 1},
	} {
		t.Run(fmt.Sprintf("%d/depth", idx), func(t *testing.T) {
			assert.InDelta(t, tc.depth, mgl32.TransformCoordinate(tc.in, p).Z(), eps)
		})
	}
	// Vulkan clip space has y pointing down
	center := mgl32.TransformCoordinate(mgl32.Vec3{0, 0, -1}, p)
	assertVec(t, mgl32.Vec3{0, -1, center.Z()}, mgl32.TransformCoordinate(mgl32.Vec3{0, 1, -1}, p))
}

func TestCameraView(t *testing.T) {
	c := Camera{Position: mgl32.Vec3{0, 0, 5}}
	v := c.View()
	assertVec(t, mgl32.Vec3{}, mgl32.TransformCoordinate(c.Position, v))
	assertVec(t, mgl32.Vec3{0, 0, -5}, mgl32.TransformCoordinate(mgl32.Vec3{}, v))
	assertVec(t, mgl32.Vec3{1, 0, -5}, mgl32.TransformCoordinate(mgl32.Vec3{1, 0, 0}, v))
}

func TestCameraUpdate(t *testing.T) {
	c := Camera{Speed: 2, TurnRate: math32.Pi / 2}
	assertVec(t, mgl32.Vec3{0, 0, -1}, c.Forward())
	assertVec(t, mgl32.Vec3{1, 0, 0}, c.Right())

	c.Update(1, mgl32.Vec3{0, 0, 1}, 0)
	assertVec(t, mgl32.Vec3{0, 0, -2}, c.Position)

	c.Update(1, mgl32.Vec3{}, 1)
	assert.InDelta(t, math32.Pi/2, c.Yaw, eps)
	assertVec(t, mgl32.Vec3{-1, 0, 0}, c.Forward())

	c.Update(0.5, mgl32.Vec3{0, 1, 0}, 0)
	assertVec(t, mgl32.Vec3{0, 1, -2}, c.Position)
}

func TestControlsAxes(t *testing.T) {
	c := NewControls()
	move, turn := c.Axes()
	assert.Equal(t, mgl32.Vec3{}, move)
	assert.Zero(t, turn)

	c.Set(MoveForward, true)
	c.Set(MoveLeft, true)
	c.Set(TurnRight, true)
	c.Set(actionCount, true)
	move, turn = c.Axes()
	assert.Equal(t, mgl32.Vec3{-1, 0, 1}, move)
	assert.Equal(t, float32(-1), turn)
	assert.True(t, c.Held(MoveForward))
	assert.False(t, c.Held(actionCount))

	c.Set(MoveBackward, true)
	c.Set(MoveLeft, false)
	move, _ = c.Axes()
	assert.Equal(t, mgl32.Vec3{}, move)
}

func TestGrid(t *testing.T) {
	assert.Nil(t, Grid(0, 1))

	g := Grid(3, 2)
	require.Len(t, g, 9)
	assertVec(t, mgl32.Vec3{-2, 0, -2}, g[0].Offset)
	assertVec(t, mgl32.Vec3{}, g[4].Offset)
	assertVec(t, mgl32.Vec3{2, 0, 2}, g[8].Offset)

	one := Grid(1, 5)
	require.Len(t, one, 1)
	assertVec(t, mgl32.Vec3{}, one[0].Offset)
}

func TestCubeGeometry(t *testing.T) {
	vs := CubeVertices()
	require.Len(t, vs, CubeVertexCount)
	for _, v := range vs {
		for _, c := range v {
			assert.InDelta(t, 0.5, math32.Abs(c), eps)
		}
	}
	// every triangle faces outwards
	for i := 0; i < len(vs); i += 3 {
		n := vs[i+1].Sub(vs[i]).Cross(vs[i+2].Sub(vs[i]))
		center := vs[i].Add(vs[i+1]).Add(vs[i+2]).Mul(1.0 / 3)
		assert.Positive(t, n.Dot(center), "triangle %d", i/3)
	}

	b := VertexBytes(vs)
	assert.Len(t, b, CubeVertexCount*VertexStride)
	assert.Equal(t, math32.Float32bits(vs[0].X()), binary.LittleEndian.Uint32(b))
	assert.Len(t, InstanceBytes(Grid(2, 1)), 4*InstanceStride)
}

type uniformWrite struct {
	image int
	data  []byte
}

type recordingUniforms struct {
	writes []uniformWrite
	err    error
}

func (r *recordingUniforms) Write(image int, data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.writes = append(r.writes, uniformWrite{image: image, data: append([]byte(nil), data...)})
	return nil
}

func TestSceneUpdate(t *testing.T) {
	opts := DefaultOptions()
	opts.GridSize = 4
	opts.RotationSpeed = 2
	controls := NewControls()
	s, err := New(opts, controls)
	require.NoError(t, err)

	clock := time.Unix(100, 0)
	s.now = func() time.Time { return clock }
	frame := render.Frame{Image: 2, Extent: render.Extent{Width: 1600, Height: 900}}

	fs, err := s.Update(frame)
	require.NoError(t, err, "no uniform storage yet")
	assert.Equal(t, opts.ClearColor, fs.ClearColor)
	require.Len(t, fs.PushConstants, PushConstantSize)
	require.Equal(t, []render.DrawCall{{VertexCount: CubeVertexCount, InstanceCount: 16}}, fs.Draws)
	assert.Zero(t, angleOf(fs.PushConstants), "first frame has no elapsed time")

	uniforms := &recordingUniforms{}
	s.SetUniforms(uniforms)
	clock = clock.Add(500 * time.Millisecond)
	controls.Set(MoveForward, true)
	s.SetClearColor([4]float32{1, 0, 0, 1})
	fs, err = s.Update(frame)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, angleOf(fs.PushConstants), eps)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, fs.ClearColor)
	assert.InDelta(t, opts.Camera.Position.Z()-opts.Camera.Speed/2, s.Camera().Position.Z(), eps)

	require.Len(t, uniforms.writes, 1)
	w := uniforms.writes[0]
	assert.Equal(t, 2, w.image)
	require.Len(t, w.data, UniformSize)
	camera := s.Camera()
	aspect := float32(frame.Extent.Width) / float32(frame.Extent.Height)
	assert.Equal(t, camera.View(), mat4At(w.data, 0))
	assert.Equal(t, Perspective(opts.FovY, aspect, opts.Near, opts.Far), mat4At(w.data, 64))

	_, err = s.Update(render.Frame{})
	require.NoError(t, err, "zero extent falls back to a square aspect")
	assert.Len(t, uniforms.writes, 2)
}

func TestSceneUniformFailure(t *testing.T) {
	s, err := New(DefaultOptions(), nil)
	require.NoError(t, err)
	full := errors.New("uniform buffer too small")
	s.SetUniforms(&recordingUniforms{err: full})

	_, err = s.Update(render.Frame{Image: 1, Extent: render.Extent{Width: 4, Height: 4}})
	require.ErrorIs(t, err, full)
	assert.Contains(t, err.Error(), "image 1")
}

func TestNewSceneValidates(t *testing.T) {
	for idx, tc := range []struct {
		name string
		mod  func(*Options)
	}{
		{name: "grid", mod: func(o *Options) { o.GridSize = 0 }},
		{name: "near", mod: func(o *Options) { o.Near = 0 }},
		{name: "far", mod: func(o *Options) { o.Far = o.Near }},
	} {
		t.Run(fmt.Sprintf("%d/%s", idx, tc.name), func(t *testing.T) {
			opts := DefaultOptions()
			tc.mod(&opts)
			_, err := New(opts, nil)
			require.Error(t, err)
		})
	}
}

func angleOf(push []byte) float32 {
	return math32.Float32frombits(binary.LittleEndian.Uint32(push))
}

func mat4At(b []byte, off int) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = math32.Float32frombits(binary.LittleEndian.Uint32(b[off+4*i:]))
	}
	return m
}
