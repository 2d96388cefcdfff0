package rendertest

import (
	"fmt"
	"time"

	"epsilon-frontend/src/render"
)

// Swapchain hands out images round-robin. It reports the surface unusable
// on acquire and stale on present once the surface extent no longer matches.
type Swapchain struct {
	dev       *Device
	info      render.SwapchainInfo
	images    int
	next      int
	destroyed bool
}

// Info returns the parameters the swapchain was created with.
func (s *Swapchain) Info() render.SwapchainInfo {
	return s.info
}

// Destroyed reports whether the swapchain was released.
func (s *Swapchain) Destroyed() bool {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.destroyed
}

func (s *Swapchain) Destroy() {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.destroyed {
		s.dev.violate("swapchain destroyed twice")
		return
	}
	s.destroyed = true
	s.dev.live--
}

func (s *Swapchain) Images() ([]render.Image, error) {
	imgs := make([]render.Image, s.images)
	for i := range imgs {
		imgs[i] = i
	}
	return imgs, nil
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal render.Semaphore) (uint32, render.Status, error) {
	extent := s.dev.surface.Extent()

	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquires++
	if s.destroyed {
		d.violate("acquire on a destroyed swapchain")
	}
	if d.cfg.AcquireTimeouts > 0 {
		d.cfg.AcquireTimeouts--
		return 0, render.StatusSurfaceUnusable, fmt.Errorf("acquire after %v: %w", timeout, render.ErrTimeout)
	}
	if d.cfg.AcquireErrAt > 0 && d.acquires == d.cfg.AcquireErrAt {
		if d.cfg.AcquireErr != nil {
			return 0, render.StatusSurfaceUnusable, d.cfg.AcquireErr
		}
		return 0, render.StatusSurfaceUnusable, fmt.Errorf("acquire %d: %w", d.acquires, ErrInjected)
	}

	status := render.StatusReady
	if extent != s.info.Extent {
		status = render.StatusSurfaceUnusable
	}
	if len(d.cfg.AcquireStatuses) > 0 {
		status = d.cfg.AcquireStatuses[0]
		d.cfg.AcquireStatuses = d.cfg.AcquireStatuses[1:]
	}
	if status == render.StatusSurfaceUnusable {
		return 0, status, nil
	}

	if sem, ok := signal.(*Semaphore); ok {
		if sem.pending > 0 {
			d.violate("image semaphore signaled twice without a wait")
		}
		sem.pending++
	}
	idx := s.next
	s.next = (s.next + 1) % s.images
	return uint32(idx), status, nil
}

func (s *Swapchain) Present(imageIndex uint32, wait render.Semaphore) (render.Status, error) {
	extent := s.dev.surface.Extent()

	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.destroyed {
		d.violate("present on a destroyed swapchain")
	}
	if int(imageIndex) >= s.images {
		d.violate("present of image %d out of %d", imageIndex, s.images)
	}
	if sem, ok := wait.(*Semaphore); ok {
		if sem.pending == 0 {
			d.violate("present waits on a semaphore nothing signals")
		} else {
			sem.pending--
		}
	}
	if d.cfg.PresentTimeouts > 0 {
		d.cfg.PresentTimeouts--
		return render.StatusSurfaceUnusable, fmt.Errorf("present of image %d: %w", imageIndex, render.ErrTimeout)
	}

	status := render.StatusReady
	if extent != s.info.Extent {
		status = render.StatusSurfaceStale
	}
	if len(d.cfg.PresentStatuses) > 0 {
		status = d.cfg.PresentStatuses[0]
		d.cfg.PresentStatuses = d.cfg.PresentStatuses[1:]
	}
	if status != render.StatusSurfaceUnusable {
		d.presents++
	}
	return status, nil
}
