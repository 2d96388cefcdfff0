package render

import (
	"errors"
	"fmt"
	"time"
)

// SwapchainOptions are the swapchain parameters the application asks for.
// The surface may not grant all of them.
type SwapchainOptions struct {
	// ImageCount is the desired number of presentable images. Zero asks for
	// one more than the surface minimum.
	ImageCount  uint32
	Format      SurfaceFormat
	PresentMode PresentMode
}

// PresentableImage is one image of the swapchain together with the objects
// the engine built for it.
type PresentableImage struct {
	Index       int
	Image       Image
	View        ImageView
	Framebuffer Framebuffer
}

// SwapchainState is one generation of the presentable image set.
type SwapchainState struct {
	Generation  Generation
	Extent      Extent
	Format      SurfaceFormat
	PresentMode PresentMode
	Images      []*PresentableImage
}

// SwapchainManager owns the presentable image set and rebuilds it when the
// surface is invalidated. It is not safe for concurrent use; the frame loop
// drives it from a single goroutine.
type SwapchainManager struct {
	dev  Device
	pass RenderPass
	opts SwapchainOptions

	swapchain  Swapchain
	state      *SwapchainState
	generation Generation
	deferred   bool
	rebuilding bool
}

// NewSwapchainManager returns a manager that builds framebuffers against pass.
// Nothing is created until Create is called.
func NewSwapchainManager(dev Device, pass RenderPass, opts SwapchainOptions) *SwapchainManager {
	return &SwapchainManager{dev: dev, pass: pass, opts: opts}
}

// State returns the current generation, or nil while creation is deferred.
func (m *SwapchainManager) State() *SwapchainState {
	return m.state
}

// Generation returns the number of image sets built so far.
func (m *SwapchainManager) Generation() Generation {
	return m.generation
}

// Deferred reports whether creation is on hold because the surface has no
// area.
func (m *SwapchainManager) Deferred() bool {
	return m.deferred
}

// SetPresentMode changes the mode requested from the next rebuild on. It
// must not race with Recreate.
func (m *SwapchainManager) SetPresentMode(mode PresentMode) {
	m.opts.PresentMode = mode
}

// Create builds the first image set. A zero preferred extent on a surface
// that leaves the size to the swapchain defers creation; the returned state is
// then nil and Deferred reports true.
func (m *SwapchainManager) Create(preferred Extent) (*SwapchainState, error) {
	if m.swapchain != nil {
		return m.Recreate(preferred)
	}
	return m.build(preferred)
}

// Recreate waits for the device to go idle, retires the current image set and
// builds a new one for extent. Every successful rebuild increments the
// generation exactly once. A call made while a rebuild is in progress returns
// the current state without touching any resources.
func (m *SwapchainManager) Recreate(extent Extent) (*SwapchainState, error) {
	if m.rebuilding {
		return m.state, nil
	}
	if err := m.dev.WaitIdle(); err != nil {
		return nil, NewError(ErrDeviceLost, "wait idle before recreate", err)
	}
	return m.build(extent)
}

func (m *SwapchainManager) build(preferred Extent) (*SwapchainState, error) {
	m.rebuilding = true
	defer func() { m.rebuilding = false }()

	log := Logger()
	caps, err := m.dev.SurfaceCapabilities()
	if err != nil {
		return nil, NewError(ErrResourceCreation, "query surface capabilities", err)
	}
	info, err := negotiate(caps, preferred, m.opts)
	if err != nil {
		return nil, NewError(ErrResourceCreation, "negotiate swapchain", err)
	}
	if info.Extent.IsZero() {
		// Nothing can be presented to a surface without area. Release the old
		// set now, the device is idle.
		m.retire(m.state, m.swapchain)
		m.state, m.swapchain = nil, nil
		if !m.deferred {
			log.Warn("swapchain creation deferred, surface has no area", "extent", info.Extent.String())
		}
		m.deferred = true
		return nil, nil
	}

	sc, err := m.dev.CreateSwapchain(info, m.swapchain)
	if err != nil {
		return nil, NewError(ErrResourceCreation, "create swapchain", err)
	}
	images, err := sc.Images()
	if err != nil {
		sc.Destroy()
		return nil, NewError(ErrResourceCreation, "get swapchain images", err)
	}

	state := &SwapchainState{
		Generation:  m.generation + 1,
		Extent:      info.Extent,
		Format:      info.Format,
		PresentMode: info.PresentMode,
		Images:      make([]*PresentableImage, 0, len(images)),
	}
	for i, img := range images {
		pi, err := m.buildImage(i, img, state)
		if err != nil {
			m.retire(state, sc)
			return nil, NewError(ErrResourceCreation, fmt.Sprintf("build image %d/%d", i, len(images)), err)
		}
		state.Images = append(state.Images, pi)
	}

	m.retire(m.state, m.swapchain)
	m.swapchain = sc
	m.state = state
	m.generation = state.Generation
	m.deferred = false

	log.Info("swapchain ready",
		"generation", state.Generation,
		"extent", state.Extent.String(),
		"images", len(state.Images),
		"format", state.Format.Format,
		"present_mode", state.PresentMode.String())
	return state, nil
}

func (m *SwapchainManager) buildImage(index int, img Image, state *SwapchainState) (*PresentableImage, error) {
	view, err := m.dev.CreateImageView(img, state.Format.Format)
	if err != nil {
		return nil, err
	}
	fb, err := m.dev.CreateFramebuffer(m.pass, view, state.Extent)
	if err != nil {
		view.Destroy()
		return nil, err
	}
	return &PresentableImage{Index: index, Image: img, View: view, Framebuffer: fb}, nil
}

// retire destroys a generation. The device must be idle. Destroyed handles are
// cleared so a second retire of the same state is a no-op.
func (m *SwapchainManager) retire(state *SwapchainState, sc Swapchain) {
	if state != nil {
		for _, pi := range state.Images {
			if pi.Framebuffer != nil {
				pi.Framebuffer.Destroy()
				pi.Framebuffer = nil
			}
			if pi.View != nil {
				pi.View.Destroy()
				pi.View = nil
			}
		}
		state.Images = nil
	}
	if sc != nil {
		sc.Destroy()
	}
}

// AcquireNext requests the next image and arms signal to fire once the image
// is ready. While creation is deferred it reports StatusSurfaceUnusable
// without calling the device. A timeout is reported as unusable as well.
func (m *SwapchainManager) AcquireNext(timeout time.Duration, signal Semaphore) (int, Status, error) {
	if m.deferred || m.swapchain == nil {
		return 0, StatusSurfaceUnusable, nil
	}
	idx, status, err := m.swapchain.AcquireNextImage(timeout, signal)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			Logger().Warn("acquire timed out", "timeout", timeout, "generation", m.generation)
			return 0, StatusSurfaceUnusable, nil
		}
		return 0, StatusSurfaceUnusable, NewError(kindOfDeviceFault(err), "acquire next image", err)
	}
	if status != StatusSurfaceUnusable && int(idx) >= len(m.state.Images) {
		return 0, StatusSurfaceUnusable, NewError(ErrDeviceLost, "acquire next image",
			fmt.Errorf("image index %d out of range [0,%d)", idx, len(m.state.Images)))
	}
	return int(idx), status, nil
}

// Present queues image for display once wait has fired.
func (m *SwapchainManager) Present(image int, wait Semaphore) (Status, error) {
	if m.swapchain == nil {
		return StatusSurfaceUnusable, nil
	}
	status, err := m.swapchain.Present(uint32(image), wait)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return StatusSurfaceUnusable, nil
		}
		return StatusSurfaceUnusable, NewError(kindOfDeviceFault(err), "present", err)
	}
	return status, nil
}

// Destroy releases the current image set. The device must be idle.
func (m *SwapchainManager) Destroy() {
	m.retire(m.state, m.swapchain)
	m.state, m.swapchain = nil, nil
}

func kindOfDeviceFault(err error) error {
	if errors.Is(err, ErrDeviceLost) {
		return ErrDeviceLost
	}
	return ErrSubmission
}

// negotiate picks the swapchain parameters from what the surface supports.
func negotiate(caps SurfaceCapabilities, preferred Extent, opts SwapchainOptions) (SwapchainInfo, error) {
	format, err := ChooseFormat(caps.Formats, opts.Format)
	if err != nil {
		return SwapchainInfo{}, err
	}
	return SwapchainInfo{
		ImageCount:  chooseImageCount(caps, opts.ImageCount),
		Format:      format,
		Extent:      chooseExtent(caps, preferred),
		PresentMode: choosePresentMode(caps.PresentModes, opts.PresentMode),
	}, nil
}

func chooseImageCount(caps SurfaceCapabilities, desired uint32) uint32 {
	count := desired
	if count == 0 {
		count = caps.MinImageCount + 1
	}
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// chooseExtent returns the surface's current extent, or the preferred extent
// clamped to the surface bounds when the surface leaves it undefined. A zero
// preferred extent stays zero so a minimized window defers creation.
func chooseExtent(caps SurfaceCapabilities, preferred Extent) Extent {
	if !caps.CurrentExtent.IsUndefined() {
		if caps.CurrentExtent.IsZero() {
			return Extent{}
		}
		return caps.CurrentExtent.Clamp(caps.MinExtent, caps.MaxExtent)
	}
	if preferred.IsZero() {
		return Extent{}
	}
	return preferred.Clamp(caps.MinExtent, caps.MaxExtent)
}

// ChooseFormat picks preferred when the surface offers it, or the first
// offered format otherwise. The render pass must be built for the result.
func ChooseFormat(available []SurfaceFormat, preferred SurfaceFormat) (SurfaceFormat, error) {
	switch {
	case len(available) == 0:
		return SurfaceFormat{}, errors.New("surface has no pixel formats")
	case len(available) == 1 && available[0].Format == FormatUndefined:
		return preferred, nil
	}
	for _, f := range available {
		if f == preferred {
			return f, nil
		}
	}
	return available[0], nil
}

func choosePresentMode(available []PresentMode, preferred PresentMode) PresentMode {
	for _, m := range available {
		if m == preferred {
			return m
		}
	}
	return PresentModeFifo
}
