package render

import (
	"errors"
	"fmt"
	"time"
)

// DefaultFramesInFlight is the number of frame slots used when none is
// configured.
const DefaultFramesInFlight = 2

// FrameSlot holds the synchronization primitives of one frame in flight.
type FrameSlot struct {
	Index int
	// ImageAvailable fires once the acquired image can be written.
	ImageAvailable Semaphore
	// RenderComplete fires once the slot's commands have executed. Presents
	// wait on it.
	RenderComplete Semaphore
	// Complete is signaled by the device when the slot's submission
	// finished. It is created signaled.
	Complete Fence
}

func (s *FrameSlot) destroy() {
	for _, d := range []Destroyer{s.ImageAvailable, s.RenderComplete, s.Complete} {
		if d != nil {
			d.Destroy()
		}
	}
	s.ImageAvailable, s.RenderComplete, s.Complete = nil, nil, nil
}

// FrameSynchronizer bounds the number of frames the host runs ahead of the
// device and tracks which slot last wrote each presentable image.
type FrameSynchronizer struct {
	dev     Device
	timeout time.Duration
	slots   []*FrameSlot
	// guards maps an image index to the slot that last submitted work
	// targeting it, or -1.
	guards []int
}

// NewFrameSynchronizer creates n frame slots for an image set of imageCount
// images. Fence waits give up after timeout; zero waits forever.
func NewFrameSynchronizer(dev Device, n, imageCount int, timeout time.Duration) (*FrameSynchronizer, error) {
	if n <= 0 {
		return nil, NewError(ErrResourceCreation, "create frame synchronizer", fmt.Errorf("invalid frames in flight %d", n))
	}
	s := &FrameSynchronizer{dev: dev, timeout: timeout, slots: make([]*FrameSlot, n)}
	if err := s.Rebuild(imageCount); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// FramesInFlight returns the number of slots.
func (s *FrameSynchronizer) FramesInFlight() int {
	return len(s.slots)
}

// Slot returns slot i.
func (s *FrameSynchronizer) Slot(i int) *FrameSlot {
	return s.slots[i]
}

// WaitForSlot blocks until the previous submission of slot has finished. A
// slot that was never submitted returns immediately. The wait does not reset
// the fence; Arm does that right before the next submission, so an iteration
// abandoned after this call leaves the slot usable.
func (s *FrameSynchronizer) WaitForSlot(slot int) error {
	if err := s.slots[slot].Complete.Wait(s.timeout); err != nil {
		return s.waitError(fmt.Sprintf("wait for slot %d", slot), err)
	}
	return nil
}

// AcquireGuard records slot as the guardian of image and returns the slot
// that guarded it before, or nil when the image was unguarded or guarded by
// the same slot. The caller must wait on the returned slot before writing
// anything the image depends on.
func (s *FrameSynchronizer) AcquireGuard(image, slot int) *FrameSlot {
	prev := s.guards[image]
	s.guards[image] = slot
	if prev < 0 || prev == slot {
		return nil
	}
	return s.slots[prev]
}

// WaitForGuard blocks until the submission of a previous guardian finished.
func (s *FrameSynchronizer) WaitForGuard(prev *FrameSlot) error {
	if err := prev.Complete.Wait(s.timeout); err != nil {
		return s.waitError(fmt.Sprintf("wait for guardian slot %d", prev.Index), err)
	}
	return nil
}

// Arm resets the completion fence of slot so the next submission can signal
// it. Call it only once the submission is certain to follow.
func (s *FrameSynchronizer) Arm(slot int) error {
	if err := s.slots[slot].Complete.Reset(); err != nil {
		return NewError(ErrSubmission, fmt.Sprintf("reset fence of slot %d", slot), err)
	}
	return nil
}

// Advance returns the slot after slot.
func (s *FrameSynchronizer) Advance(slot int) int {
	return (slot + 1) % len(s.slots)
}

// Rebuild recreates every slot's primitives and forgets all guards. The
// device must be idle. Fences start signaled.
func (s *FrameSynchronizer) Rebuild(imageCount int) error {
	for i := range s.slots {
		if s.slots[i] != nil {
			s.slots[i].destroy()
		}
		slot, err := s.newSlot(i)
		if err != nil {
			return NewError(ErrResourceCreation, fmt.Sprintf("create frame slot %d", i), err)
		}
		s.slots[i] = slot
	}
	s.guards = make([]int, imageCount)
	for i := range s.guards {
		s.guards[i] = -1
	}
	return nil
}

func (s *FrameSynchronizer) newSlot(index int) (*FrameSlot, error) {
	slot := &FrameSlot{Index: index}
	var err error
	if slot.ImageAvailable, err = s.dev.CreateSemaphore(); err != nil {
		return nil, err
	}
	if slot.RenderComplete, err = s.dev.CreateSemaphore(); err != nil {
		slot.destroy()
		return nil, err
	}
	if slot.Complete, err = s.dev.CreateFence(true); err != nil {
		slot.destroy()
		return nil, err
	}
	return slot, nil
}

// Destroy releases every slot. The device must be idle.
func (s *FrameSynchronizer) Destroy() {
	for _, slot := range s.slots {
		if slot != nil {
			slot.destroy()
		}
	}
	s.guards = nil
}

// waitError classifies a failed fence wait. A fence that never signals means
// the device stopped making progress.
func (s *FrameSynchronizer) waitError(op string, err error) error {
	if errors.Is(err, ErrTimeout) {
		err = fmt.Errorf("no progress after %v: %w", s.timeout, err)
	}
	return NewError(ErrDeviceLost, op, err)
}
