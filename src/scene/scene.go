// Package scene produces the per-frame state of the cube grid. The camera
// is moved by the held controls and written to the uniform block of the
// target image; the grid's spin angle goes out as a push constant.
package scene

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"epsilon-frontend/src/render"
)

// UniformSize is the size of the camera uniform block: the view matrix
// followed by the projection matrix.
const UniformSize = 2 * 16 * 4

// PushConstantSize is the size of the vertex stage push constant block, the
// rotation angle padded to a vec4.
const PushConstantSize = 4 * 4

// UniformWriter stores the camera block of one presentable image.
type UniformWriter interface {
	Write(image int, data []byte) error
}

type Options struct {
	GridSize      int
	Spacing       float32
	FovY          float32
	Near, Far     float32
	RotationSpeed float32
	ClearColor    [4]float32
	Camera        Camera
}

func DefaultOptions() Options {
	return Options{
		GridSize:      8,
		Spacing:       2,
		FovY:          mgl32.DegToRad(60),
		Near:          0.1,
		Far:           100,
		RotationSpeed: 0.8,
		ClearColor:    [4]float32{0.02, 0.02, 0.04, 1},
		Camera: Camera{
			Position: mgl32.Vec3{0, 4, 14},
			Speed:    6,
			TurnRate: 1.5,
		},
	}
}

// Scene implements render.SceneUpdater.
type Scene struct {
	opts      Options
	controls  *Controls
	instances []Instance
	now       func() time.Time
	uniforms  UniformWriter

	camera Camera
	angle  float32
	last   time.Time

	mu    sync.Mutex
	clear [4]float32
}

var _ render.SceneUpdater = (*Scene)(nil)

func New(opts Options, controls *Controls) (*Scene, error) {
	if opts.GridSize <= 0 {
		return nil, fmt.Errorf("grid size must be positive, got %d", opts.GridSize)
	}
	if opts.Near <= 0 || opts.Far <= opts.Near {
		return nil, fmt.Errorf("invalid depth range [%v, %v]", opts.Near, opts.Far)
	}
	if controls == nil {
		controls = NewControls()
	}
	return &Scene{
		opts:      opts,
		controls:  controls,
		instances: Grid(opts.GridSize, opts.Spacing),
		now:       time.Now,
		camera:    opts.Camera,
		clear:     opts.ClearColor,
	}, nil
}

// Instances returns the cube grid to upload into the instance buffer.
func (s *Scene) Instances() []Instance {
	return s.instances
}

// SetClearColor may be called from any goroutine. It applies from the next
// frame on.
func (s *Scene) SetClearColor(c [4]float32) {
	s.mu.Lock()
	s.clear = c
	s.mu.Unlock()
}

func (s *Scene) clearColor() [4]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clear
}

// SetUniforms replaces the uniform storage. Image sets are rebuilt with
// the swapchain, so it is called from the prepare hook on the loop
// goroutine.
func (s *Scene) SetUniforms(w UniformWriter) {
	s.uniforms = w
}

func (s *Scene) Camera() Camera {
	return s.camera
}

func (s *Scene) Update(frame render.Frame) (render.FrameState, error) {
	now := s.now()
	var dt float32
	if !s.last.IsZero() {
		dt = float32(now.Sub(s.last).Seconds())
	}
	s.last = now

	move, turn := s.controls.Axes()
	s.camera.Update(dt, move, turn)
	s.angle += s.opts.RotationSpeed * dt

	aspect := float32(1)
	if frame.Extent.Height > 0 {
		aspect = float32(frame.Extent.Width) / float32(frame.Extent.Height)
	}
	if s.uniforms != nil {
		block := uniformBlock(s.camera.View(), Perspective(s.opts.FovY, aspect, s.opts.Near, s.opts.Far))
		if err := s.uniforms.Write(frame.Image, block); err != nil {
			return render.FrameState{}, fmt.Errorf("camera uniforms of image %d: %w", frame.Image, err)
		}
	}

	return render.FrameState{
		ClearColor:    s.clearColor(),
		PushConstants: pushConstants(s.angle),
		Draws: []render.DrawCall{{
			VertexCount:   CubeVertexCount,
			InstanceCount: uint32(len(s.instances)),
		}},
	}, nil
}

func uniformBlock(view, proj mgl32.Mat4) []byte {
	b := make([]byte, 0, UniformSize)
	b = appendMat4(b, view)
	return appendMat4(b, proj)
}

func pushConstants(angle float32) []byte {
	b := make([]byte, 0, PushConstantSize)
	b = appendFloat(b, angle)
	return append(b, make([]byte, 12)...)
}
