package render_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epsilon-frontend/src/render"
	"epsilon-frontend/src/render/rendertest"
)

func newManager(t *testing.T, opts render.SwapchainOptions) (*render.SwapchainManager, *rendertest.Device, *rendertest.Surface) {
	t.Helper()
	surface := rendertest.NewSurface(800, 600)
	dev := rendertest.NewDevice(surface, rendertest.Config{})
	t.Cleanup(dev.Close)
	return render.NewSwapchainManager(dev, "pass", opts), dev, surface
}

func TestSwapchainCreate(t *testing.T) {
	m, dev, _ := newManager(t, render.SwapchainOptions{
		ImageCount:  3,
		Format:      render.SurfaceFormat{Format: 44},
		PresentMode: render.PresentModeMailbox,
	})

	state, err := m.Create(render.Extent{Width: 800, Height: 600})
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, render.Generation(1), state.Generation)
	assert.Equal(t, render.Extent{Width: 800, Height: 600}, state.Extent)
	assert.Equal(t, render.PresentModeMailbox, state.PresentMode)
	require.Len(t, state.Images, 3)
	for i, img := range state.Images {
		assert.Equal(t, i, img.Index)
		assert.NotNil(t, img.View)
		assert.NotNil(t, img.Framebuffer)
	}
	assert.Same(t, state, m.State())
	assert.False(t, m.Deferred())

	m.Destroy()
	assert.Zero(t, dev.Live())
	assert.Empty(t, dev.Violations())
}

func TestSwapchainRecreateIdempotent(t *testing.T) {
	m, dev, surface := newManager(t, render.SwapchainOptions{ImageCount: 3})

	first, err := m.Create(surface.Extent())
	require.NoError(t, err)

	for gen := render.Generation(2); gen <= 4; gen++ {
		state, err := m.Recreate(surface.Extent())
		require.NoError(t, err)
		assert.Equal(t, gen, state.Generation)
		assert.Equal(t, first.Extent, state.Extent)
		assert.Equal(t, first.Format, state.Format)
		assert.Len(t, state.Images, 3)
	}
	assert.Nil(t, first.Images, "retired generation releases its images")

	swapchains := dev.Swapchains()
	require.Len(t, swapchains, 4)
	for _, sc := range swapchains[:3] {
		assert.True(t, sc.Destroyed())
	}
	assert.False(t, swapchains[3].Destroyed())
	// one swapchain plus a view and a framebuffer per image
	assert.Equal(t, 1+2*3, dev.Live())

	m.Destroy()
	m.Destroy()
	assert.Zero(t, dev.Live())
	assert.Empty(t, dev.Violations())
}

func TestSwapchainDeferredWhileMinimized(t *testing.T) {
	m, dev, surface := newManager(t, render.SwapchainOptions{})

	_, err := m.Create(surface.Extent())
	require.NoError(t, err)

	surface.Resize(0, 0)
	state, err := m.Recreate(surface.Extent())
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.True(t, m.Deferred())
	assert.Zero(t, dev.Live(), "old generation released while minimized")

	for i := 0; i < 3; i++ {
		_, status, err := m.AcquireNext(time.Second, nil)
		require.NoError(t, err)
		assert.Equal(t, render.StatusSurfaceUnusable, status)

		state, err = m.Recreate(surface.Extent())
		require.NoError(t, err)
		assert.Nil(t, state)
	}
	assert.Len(t, dev.Swapchains(), 1)
	assert.Zero(t, dev.Counters().Acquires)

	surface.Resize(800, 600)
	state, err = m.Recreate(surface.Extent())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, render.Generation(2), state.Generation)
	assert.Equal(t, render.Extent{Width: 800, Height: 600}, state.Extent)
	assert.False(t, m.Deferred())

	m.Destroy()
	assert.Empty(t, dev.Violations())
}

func TestSwapchainAcquireStatus(t *testing.T) {
	m, dev, surface := newManager(t, render.SwapchainOptions{ImageCount: 2})
	_, err := m.Create(surface.Extent())
	require.NoError(t, err)

	idx, status, err := m.AcquireNext(time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, render.StatusReady, status)

	status, err = m.Present(idx, nil)
	require.NoError(t, err)
	assert.Equal(t, render.StatusReady, status)

	surface.Resize(1024, 768)
	_, status, err = m.AcquireNext(time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, render.StatusSurfaceUnusable, status)

	m.Destroy()
	assert.Empty(t, dev.Violations())
}

func TestSwapchainSetPresentMode(t *testing.T) {
	m, dev, surface := newManager(t, render.SwapchainOptions{})
	state, err := m.Create(surface.Extent())
	require.NoError(t, err)
	assert.Equal(t, render.PresentModeFifo, state.PresentMode)

	m.SetPresentMode(render.PresentModeMailbox)
	state, err = m.Recreate(surface.Extent())
	require.NoError(t, err)
	assert.Equal(t, render.PresentModeMailbox, state.PresentMode)

	m.SetPresentMode(render.PresentModeImmediate)
	state, err = m.Recreate(surface.Extent())
	require.NoError(t, err)
	assert.Equal(t, render.PresentModeFifo, state.PresentMode, "unsupported modes fall back to fifo")

	m.Destroy()
	assert.Empty(t, dev.Violations())
}
