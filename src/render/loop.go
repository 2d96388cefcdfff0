package render

import (
	"context"
	"time"
)

// Defaults applied by NewFrameLoop to zero Options fields.
const (
	DefaultAcquireTimeout = time.Second
)

// Options configures a FrameLoop.
type Options struct {
	// FramesInFlight is the number of frames the host may run ahead of the
	// device. Zero means DefaultFramesInFlight.
	FramesInFlight int
	// AcquireTimeout bounds the wait for a presentable image. A timeout is
	// treated as an unusable surface. Zero means DefaultAcquireTimeout.
	AcquireTimeout time.Duration
	// FenceTimeout bounds the wait for a frame slot. Expiry is fatal. Zero
	// waits forever.
	FenceTimeout time.Duration
	Swapchain    SwapchainOptions
}

// Stats counts what the loop did so far.
type Stats struct {
	Iterations  uint64
	Submitted   uint64
	Presented   uint64
	Skipped     uint64
	Recreations uint64
}

// ExitCode is the process-level result of Run.
type ExitCode int

const (
	ExitNormal ExitCode = iota
	ExitFailure
)

// ExitStatus is returned by Run. Err is set when Code is ExitFailure.
type ExitStatus struct {
	Code  ExitCode
	Err   error
	Stats Stats
}

// OK reports whether the loop stopped because shutdown was requested.
func (s ExitStatus) OK() bool {
	return s.Code == ExitNormal
}

// FrameLoop drives the acquire, update, record, submit and present cycle.
//
// The loop is single-threaded. Run, Step and the hooks are all called from
// the goroutine that owns the window.
type FrameLoop struct {
	dev     Device
	surface Surface
	scene   SceneUpdater
	opts    Options

	swapchains *SwapchainManager
	sync       *FrameSynchronizer
	submitter  *CommandSubmitter

	prepared bool
	slot     int
	frame    uint64
	stats    Stats

	onPrepare    func(*SwapchainState) error
	onInvalidate func(Outcome)
	onCleanup    func() error
}

// NewFrameLoop wires a loop. No device objects are created until Prepare or
// Run.
func NewFrameLoop(dev Device, surface Surface, binding PipelineBinding, scene SceneUpdater, opts Options) *FrameLoop {
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}
	return &FrameLoop{
		dev:        dev,
		surface:    surface,
		scene:      scene,
		opts:       opts,
		swapchains: NewSwapchainManager(dev, binding.RenderPass, opts.Swapchain),
		submitter:  NewCommandSubmitter(dev, binding),
	}
}

// SetOnPrepare sets a hook called after every successful swapchain
// (re)creation, before any frame uses the new generation.
func (l *FrameLoop) SetOnPrepare(fn func(*SwapchainState) error) {
	l.onPrepare = fn
}

// SetOnInvalidate sets a hook called when the loop decides to recreate the
// swapchain. Swapchain().Recreate called from the hook returns the current
// state without rebuilding.
func (l *FrameLoop) SetOnInvalidate(fn func(Outcome)) {
	l.onInvalidate = fn
}

// SetOnCleanup sets a hook called after the device went idle on exit.
func (l *FrameLoop) SetOnCleanup(fn func() error) {
	l.onCleanup = fn
}

// Stats returns the loop counters.
func (l *FrameLoop) Stats() Stats {
	return l.stats
}

// Swapchain returns the swapchain manager.
func (l *FrameLoop) Swapchain() *SwapchainManager {
	return l.swapchains
}

// SetDescriptorSets replaces the descriptor sets recorded from the next
// frame on. Call it from the prepare hook when the sets follow the image
// count.
func (l *FrameLoop) SetDescriptorSets(sets []DescriptorSet) {
	l.submitter.SetDescriptorSets(sets)
}

// Prepare creates the first image set and the frame slots. Run calls it if
// it has not been called.
func (l *FrameLoop) Prepare() error {
	if l.prepared {
		return nil
	}
	l.surface.ClearInvalidated()
	state, err := l.swapchains.Create(l.surface.Extent())
	if err != nil {
		return err
	}
	imageCount := 0
	if state != nil {
		imageCount = len(state.Images)
	}
	l.sync, err = NewFrameSynchronizer(l.dev, l.opts.FramesInFlight, imageCount, l.opts.FenceTimeout)
	if err != nil {
		return err
	}
	l.prepared = true
	if state != nil {
		return l.adopt(state)
	}
	return nil
}

// Run iterates until shutdown returns true or a fatal error occurs. shutdown
// is checked between iterations. On every exit path the device is drained
// before the cleanup hook runs.
func (l *FrameLoop) Run(shutdown func() bool) ExitStatus {
	log := Logger()
	log.Info("frame loop starting", "frames_in_flight", l.opts.FramesInFlight)

	err := l.run(shutdown)
	if werr := l.dev.WaitIdle(); werr != nil {
		log.Warn("wait idle on exit failed", "err", werr)
		if err == nil {
			err = NewError(ErrDeviceLost, "wait idle on exit", werr)
		}
	}
	if l.onCleanup != nil {
		if cerr := l.onCleanup(); cerr != nil && err == nil {
			err = NewError(ErrResourceCreation, "cleanup hook", cerr)
		}
	}

	if err != nil {
		log.Error("frame loop failed", "err", err, "kind", KindOf(err), "iterations", l.stats.Iterations)
		return ExitStatus{Code: ExitFailure, Err: err, Stats: l.stats}
	}
	log.Info("frame loop stopped", "iterations", l.stats.Iterations, "presented", l.stats.Presented)
	return ExitStatus{Code: ExitNormal, Stats: l.stats}
}

func (l *FrameLoop) run(shutdown func() bool) (err error) {
	defer CheckError(&err)
	if err := l.Prepare(); err != nil {
		return err
	}
	for !shutdown() {
		if err := l.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step runs one iteration. An iteration abandoned because the surface is
// unusable returns nil without advancing the frame slot.
func (l *FrameLoop) Step() error {
	if err := l.Prepare(); err != nil {
		return err
	}
	l.stats.Iterations++
	log := Logger()

	slot := l.slot
	if err := l.sync.WaitForSlot(slot); err != nil {
		return err
	}
	l.submitter.Retire(slot)

	if l.swapchains.Deferred() && !l.surface.Extent().IsZero() {
		if err := l.recreate(OutcomeUnusable); err != nil {
			return err
		}
	}
	fs := l.sync.Slot(slot)

	image, status, err := l.swapchains.AcquireNext(l.opts.AcquireTimeout, fs.ImageAvailable)
	if err != nil {
		return err
	}
	if status == StatusSurfaceUnusable {
		l.stats.Skipped++
		if l.swapchains.Deferred() {
			if w, ok := l.surface.(EventWaiter); ok {
				w.WaitEvents()
			}
			return nil
		}
		log.Debug("surface unusable, skipping frame", "slot", slot, "generation", l.swapchains.Generation())
		return l.recreate(OutcomeUnusable)
	}
	outcome := status.Outcome()

	if prev := l.sync.AcquireGuard(image, slot); prev != nil {
		if err := l.sync.WaitForGuard(prev); err != nil {
			return err
		}
		l.submitter.Retire(prev.Index)
	}

	state := l.swapchains.State()
	frame := Frame{Number: l.frame, Slot: slot, Image: image, Extent: state.Extent, Generation: state.Generation}
	update, err := l.scene.Update(frame)
	if err != nil {
		return NewError(ErrRecording, "scene update", err)
	}
	seq, err := l.submitter.Record(image, update)
	if err != nil {
		return err
	}
	if err := l.sync.Arm(slot); err != nil {
		return err
	}
	if err := l.submitter.Submit(seq, fs); err != nil {
		return err
	}
	l.frame++
	l.stats.Submitted++
	log.Debug("frame submitted", "frame", frame.Number, "slot", slot, "image", image, "generation", frame.Generation)

	status, err = l.swapchains.Present(image, fs.RenderComplete)
	if err != nil {
		return err
	}
	if status != StatusSurfaceUnusable {
		l.stats.Presented++
	}
	outcome = outcome.Merge(status.Outcome())
	if l.surface.Invalidated() {
		outcome = outcome.Merge(OutcomeNeedsRecreate)
	}
	l.slot = l.sync.Advance(slot)

	if outcome.Recreate() {
		return l.recreate(outcome)
	}
	return nil
}

// recreate rebuilds the image set and everything that depends on it. The
// resize flag is cleared before the extent is read so a resize landing
// during the rebuild raises it again.
func (l *FrameLoop) recreate(reason Outcome) error {
	if l.onInvalidate != nil {
		l.invalidate(reason)
	}
	l.surface.ClearInvalidated()
	state, err := l.swapchains.Recreate(l.surface.Extent())
	if err != nil {
		return err
	}
	if state == nil {
		l.submitter.Release()
		return l.sync.Rebuild(0)
	}
	if err := l.sync.Rebuild(len(state.Images)); err != nil {
		return err
	}
	l.stats.Recreations++
	return l.adopt(state)
}

// invalidate runs the invalidate hook. The rebuild that follows is the one
// the hook announces, so a Recreate from inside it does nothing.
func (l *FrameLoop) invalidate(reason Outcome) {
	l.swapchains.rebuilding = true
	defer func() { l.swapchains.rebuilding = false }()
	l.onInvalidate(reason)
}

func (l *FrameLoop) adopt(state *SwapchainState) error {
	if err := l.submitter.Prepare(state); err != nil {
		return err
	}
	if l.onPrepare != nil {
		// a hook asking for another rebuild gets the state it was handed
		l.swapchains.rebuilding = true
		defer func() { l.swapchains.rebuilding = false }()
		if err := l.onPrepare(state); err != nil {
			return NewError(ErrResourceCreation, "prepare hook", err)
		}
	}
	return nil
}

// Destroy releases every object the loop created. Call it after Run
// returned.
func (l *FrameLoop) Destroy() {
	l.submitter.Release()
	if l.sync != nil {
		l.sync.Destroy()
	}
	l.swapchains.Destroy()
}

// ShutdownOnDone returns a shutdown predicate that reports true once ctx is
// done.
func ShutdownOnDone(ctx context.Context) func() bool {
	return func() bool {
		return ctx.Err() != nil
	}
}

// ShutdownAny combines shutdown predicates.
func ShutdownAny(preds ...func() bool) func() bool {
	return func() bool {
		for _, p := range preds {
			if p() {
				return true
			}
		}
		return false
	}
}
