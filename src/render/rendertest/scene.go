package rendertest

import (
	"sync"

	"epsilon-frontend/src/render"
)

// Scene records every frame it was asked to update and returns a single
// triangle draw.
type Scene struct {
	mu     sync.Mutex
	frames []render.Frame

	// Err, when set, is returned by Update.
	Err error
}

func (s *Scene) Update(frame render.Frame) (render.FrameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return render.FrameState{}, s.Err
	}
	s.frames = append(s.frames, frame)
	return render.FrameState{
		ClearColor:    [4]float32{0, 0, 0, 1},
		PushConstants: make([]byte, 64),
		Draws:         []render.DrawCall{{VertexCount: 3, InstanceCount: 1}},
	}, nil
}

// Frames returns the frames updated so far.
func (s *Scene) Frames() []render.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]render.Frame(nil), s.frames...)
}

// Iterations returns a shutdown predicate that stops after n calls.
func Iterations(n int) func() bool {
	calls := 0
	return func() bool {
		if calls >= n {
			return true
		}
		calls++
		return false
	}
}
