package rendertest

import (
	"sync"

	"epsilon-frontend/src/render"
)

// Surface is a window whose size tests change at will.
type Surface struct {
	mu          sync.Mutex
	extent      render.Extent
	invalidated bool
	waits       int

	// OnWaitEvents, when set, runs every time the loop blocks for events.
	// Tests use it to restore a minimized window.
	OnWaitEvents func(s *Surface)
}

// NewSurface returns a surface of the given size.
func NewSurface(width, height uint32) *Surface {
	return &Surface{extent: render.Extent{Width: width, Height: height}}
}

// Resize changes the size and raises the invalidation flag, like a
// framebuffer-size callback would.
func (s *Surface) Resize(width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extent = render.Extent{Width: width, Height: height}
	s.invalidated = true
}

func (s *Surface) Extent() render.Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

func (s *Surface) Invalidated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidated
}

func (s *Surface) ClearInvalidated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = false
}

func (s *Surface) WaitEvents() {
	s.mu.Lock()
	s.waits++
	fn := s.OnWaitEvents
	s.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// Waits returns how many times the loop blocked for events.
func (s *Surface) Waits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waits
}
