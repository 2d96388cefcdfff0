// Package rendertest provides an in-memory asynchronous device for testing
// the frame engine. Submitted work completes on a worker goroutine after a
// configurable latency, and ordering mistakes made by the host are recorded
// as violations instead of corrupting anything.
package rendertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"epsilon-frontend/src/render"
)

// ErrInjected is returned by operations failed on purpose through Config.
var ErrInjected = errors.New("injected failure")

// Config scripts the behaviour of a Device.
type Config struct {
	// Caps is the base capability set. CurrentExtent is always taken from
	// the surface. Zero value means DefaultCaps.
	Caps *render.SurfaceCapabilities
	// Latency is how long each submission takes to complete.
	Latency time.Duration
	// FailSubmitAt makes the n-th Submit call (1-based) fail with SubmitErr,
	// or ErrInjected when SubmitErr is nil.
	FailSubmitAt int
	SubmitErr    error
	// AcquireStatuses and PresentStatuses are returned by successive calls
	// before the device falls back to comparing extents.
	AcquireStatuses []render.Status
	PresentStatuses []render.Status
	// AcquireTimeouts makes the first n acquires time out.
	AcquireTimeouts int
	// AcquireErrAt makes the n-th acquire (1-based) fail with AcquireErr,
	// or ErrInjected when AcquireErr is nil.
	AcquireErrAt int
	AcquireErr   error
	// PresentTimeouts makes the first n presents time out.
	PresentTimeouts int
	// FailSwapchainAt, FailFramebufferAt, FailSemaphoreAt and FailFenceAt
	// make the n-th creation (1-based) of that object fail with ErrInjected.
	FailSwapchainAt   int
	FailFramebufferAt int
	FailSemaphoreAt   int
	FailFenceAt       int
}

// DefaultCaps returns the capabilities of a typical desktop surface.
func DefaultCaps() render.SurfaceCapabilities {
	return render.SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 8,
		MinExtent:     render.Extent{Width: 1, Height: 1},
		MaxExtent:     render.Extent{Width: 4096, Height: 4096},
		Formats:       []render.SurfaceFormat{{Format: 44, ColorSpace: 0}},
		PresentModes:  []render.PresentMode{render.PresentModeFifo, render.PresentModeMailbox},
	}
}

type job struct {
	cb    *CommandBuffer
	fence *Fence
}

// Device implements render.Device in memory.
type Device struct {
	surface *Surface
	cfg     Config

	mu          sync.Mutex
	jobs        chan job
	pending     sync.WaitGroup
	closed      bool
	fences      []*Fence
	swapchains  []*Swapchain
	live        int
	submits     int
	completed   int
	inFlight    int
	maxInFlight int
	maxUnwaited int
	fbExtents   []render.Extent
	violations  []string
	acquires    int
	presents    int
	idleWaits   int
	submitted   [][]string

	swapchainCreates   int
	framebufferCreates int
	semaphoreCreates   int
	fenceCreates       int
}

// inject counts a creation and reports whether the script fails it.
func inject(count *int, at int) bool {
	*count++
	return at > 0 && *count == at
}

// NewDevice starts a device presenting to surface. Close must be called to
// stop its worker.
func NewDevice(surface *Surface, cfg Config) *Device {
	if cfg.Caps == nil {
		caps := DefaultCaps()
		cfg.Caps = &caps
	}
	d := &Device{surface: surface, cfg: cfg, jobs: make(chan job, 64)}
	go d.work()
	return d
}

func (d *Device) work() {
	for j := range d.jobs {
		if d.cfg.Latency > 0 {
			time.Sleep(d.cfg.Latency)
		}
		d.mu.Lock()
		j.cb.inFlight = false
		d.inFlight--
		d.completed++
		d.mu.Unlock()
		if j.fence != nil {
			j.fence.signal()
		}
		d.pending.Done()
	}
}

// Close drains outstanding work and stops the worker.
func (d *Device) Close() {
	d.pending.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
}

// violate records a violation. d.mu must be held.
func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) report(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.violate("%s", msg)
}

func (d *Device) SurfaceCapabilities() (render.SurfaceCapabilities, error) {
	caps := *d.cfg.Caps
	caps.CurrentExtent = d.surface.Extent()
	return caps, nil
}

func (d *Device) CreateSwapchain(info render.SwapchainInfo, old render.Swapchain) (render.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.IsZero() {
		d.violate("swapchain created with zero extent")
		return nil, fmt.Errorf("zero extent: %w", ErrInjected)
	}
	if old != nil && old.(*Swapchain).destroyed {
		d.violate("retired swapchain passed as old swapchain")
	}
	if inject(&d.swapchainCreates, d.cfg.FailSwapchainAt) {
		return nil, fmt.Errorf("create swapchain %d: %w", d.swapchainCreates, ErrInjected)
	}
	sc := &Swapchain{dev: d, info: info, images: int(info.ImageCount)}
	d.swapchains = append(d.swapchains, sc)
	d.live++
	return sc, nil
}

func (d *Device) CreateImageView(img render.Image, format render.Format) (render.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.live++
	return &object{dev: d, kind: "image view"}, nil
}

func (d *Device) CreateFramebuffer(pass render.RenderPass, view render.ImageView, extent render.Extent) (render.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := view.(*object); !ok || v.destroyed {
		d.violate("framebuffer built on a destroyed image view")
	}
	if inject(&d.framebufferCreates, d.cfg.FailFramebufferAt) {
		return nil, fmt.Errorf("create framebuffer %d: %w", d.framebufferCreates, ErrInjected)
	}
	d.fbExtents = append(d.fbExtents, extent)
	d.live++
	return &object{dev: d, kind: "framebuffer"}, nil
}

func (d *Device) CreateSemaphore() (render.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if inject(&d.semaphoreCreates, d.cfg.FailSemaphoreAt) {
		return nil, fmt.Errorf("create semaphore %d: %w", d.semaphoreCreates, ErrInjected)
	}
	d.live++
	return &Semaphore{object: object{dev: d, kind: "semaphore"}}, nil
}

func (d *Device) CreateFence(signaled bool) (render.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if inject(&d.fenceCreates, d.cfg.FailFenceAt) {
		return nil, fmt.Errorf("create fence %d: %w", d.fenceCreates, ErrInjected)
	}
	f := &Fence{object: object{dev: d, kind: "fence"}, done: make(chan struct{}), waited: true}
	if signaled {
		f.signaled = true
		close(f.done)
	}
	d.fences = append(d.fences, f)
	d.live++
	return f, nil
}

func (d *Device) AllocateCommandBuffers(n int) ([]render.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cbs := make([]render.CommandBuffer, n)
	for i := range cbs {
		cbs[i] = &CommandBuffer{dev: d}
		d.live++
	}
	return cbs, nil
}

func (d *Device) FreeCommandBuffers(cbs []render.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cbs {
		cb := c.(*CommandBuffer)
		if cb.inFlight {
			d.violate("command buffer freed while in flight")
		}
		if cb.freed {
			d.violate("command buffer freed twice")
			continue
		}
		cb.freed = true
		d.live--
	}
}

func (d *Device) Submit(info render.SubmitInfo) error {
	j, err := d.enqueue(info)
	if err != nil {
		return err
	}
	d.jobs <- j
	return nil
}

func (d *Device) enqueue(info render.SubmitInfo) (job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits++
	if d.cfg.FailSubmitAt > 0 && d.submits == d.cfg.FailSubmitAt {
		if d.cfg.SubmitErr != nil {
			return job{}, d.cfg.SubmitErr
		}
		return job{}, ErrInjected
	}
	cb := info.Commands.(*CommandBuffer)
	if cb.recording {
		d.violate("submitted command buffer still recording")
	}
	if cb.inFlight {
		d.violate("command buffer submitted twice")
	}
	if wait, ok := info.WaitOn.(*Semaphore); ok {
		if wait.pending == 0 {
			d.violate("submission waits on a semaphore nothing signals")
		} else {
			wait.pending--
		}
	}
	if sig, ok := info.Signal.(*Semaphore); ok {
		if sig.pending > 0 {
			d.violate("render semaphore signaled twice without a wait")
		}
		sig.pending++
	}
	var fence *Fence
	if info.Completion != nil {
		fence = info.Completion.(*Fence)
		fence.mu.Lock()
		if fence.signaled || fence.armed {
			d.violate("submission signals a fence that was not reset")
		}
		fence.armed = true
		fence.mu.Unlock()
	}

	unwaited := 0
	for _, f := range d.fences {
		f.mu.Lock()
		if !f.destroyed && !f.waited {
			unwaited++
		}
		f.mu.Unlock()
	}
	if unwaited > d.maxUnwaited {
		d.maxUnwaited = unwaited
	}

	d.submitted = append(d.submitted, append([]string(nil), cb.commands...))
	cb.inFlight = true
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.pending.Add(1)
	return job{cb: cb, fence: fence}, nil
}

func (d *Device) WaitIdle() error {
	d.pending.Wait()
	d.mu.Lock()
	d.idleWaits++
	d.mu.Unlock()
	return nil
}

// Swapchains returns every swapchain created so far.
func (d *Device) Swapchains() []*Swapchain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Swapchain(nil), d.swapchains...)
}

// SubmittedCommands returns the recorded commands of every accepted
// submission, in submission order.
func (d *Device) SubmittedCommands() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]string(nil), d.submitted...)
}

// FramebufferExtents returns the extent of every framebuffer created so far.
func (d *Device) FramebufferExtents() []render.Extent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]render.Extent(nil), d.fbExtents...)
}

// Violations returns every ordering mistake observed.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Live returns the number of created objects not yet destroyed.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Counters is a snapshot of the device's activity.
type Counters struct {
	Submits     int
	Completed   int
	Acquires    int
	Presents    int
	IdleWaits   int
	MaxInFlight int
	// MaxUnwaited is the largest number of fences that had been reset but
	// not yet observed signaled by the host at any submission.
	MaxUnwaited int
}

func (d *Device) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Counters{
		Submits:     d.submits,
		Completed:   d.completed,
		Acquires:    d.acquires,
		Presents:    d.presents,
		IdleWaits:   d.idleWaits,
		MaxInFlight: d.maxInFlight,
		MaxUnwaited: d.maxUnwaited,
	}
}

type object struct {
	dev       *Device
	kind      string
	destroyed bool
}

func (o *object) Destroy() {
	o.dev.mu.Lock()
	defer o.dev.mu.Unlock()
	if o.destroyed {
		o.dev.violate("%s destroyed twice", o.kind)
		return
	}
	o.destroyed = true
	o.dev.live--
}

// Semaphore counts pending signals so unmatched waits are detected.
type Semaphore struct {
	object
	pending int
}

// Fence is signaled by the worker when the submission it was attached to
// completes.
type Fence struct {
	object

	mu       sync.Mutex
	done     chan struct{}
	signaled bool
	armed    bool
	// waited is false from a reset until the host observes the fence
	// signaled.
	waited bool
}

func (f *Fence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()

	if timeout <= 0 {
		<-done
	} else {
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			return render.ErrTimeout
		}
	}
	f.mu.Lock()
	f.waited = true
	f.mu.Unlock()
	return nil
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed {
		// the device lock is taken before fence locks, so report later
		defer f.dev.report("fence reset while its submission is in flight")
		return fmt.Errorf("fence in use: %w", ErrInjected)
	}
	if f.signaled {
		f.signaled = false
		f.done = make(chan struct{})
	}
	f.waited = false
	return nil
}

func (f *Fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	if !f.signaled {
		f.signaled = true
		close(f.done)
	}
}

// Destroy releases the fence. Destroying a fence a pending submission will
// signal is a violation.
func (f *Fence) Destroy() {
	f.mu.Lock()
	armed := f.armed
	f.mu.Unlock()
	if armed {
		f.dev.report("fence destroyed while in flight")
	}
	f.object.Destroy()
}
