// Package platform owns the glfw window the engine presents to. All
// functions must be called from the main thread, see LockMainThread.
package platform

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
	"epsilon-frontend/src/scene"
)

// LockMainThread pins the calling goroutine to its OS thread. glfw requires
// every call to come from the thread that initialised it; call this from an
// init function of package main.
func LockMainThread() {
	runtime.LockOSThread()
}

// Init initialises glfw and points the Vulkan loader at glfw's instance
// proc address lookup.
func Init() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("init glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("vulkan is not supported by the windowing system")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		return fmt.Errorf("init vulkan loader: %w", err)
	}
	return nil
}

func Terminate() {
	glfw.Terminate()
}

// Wake unblocks a WaitEvents call. It may be called from any goroutine.
func Wake() {
	glfw.PostEmptyEvent()
}

type WindowOptions struct {
	Width, Height int
	Title         string
	Resizable     bool
}

// Window is a glfw window without a client API. It is the render.Surface
// of the frame loop: framebuffer resizes raise the invalidation flag, and
// WaitEvents blocks while the window is minimized.
type Window struct {
	win         *glfw.Window
	invalidated atomic.Bool
	controls    *scene.Controls
}

var keyActions = map[glfw.Key]scene.Action{
	glfw.KeyW:         scene.MoveForward,
	glfw.KeyS:         scene.MoveBackward,
	glfw.KeyA:         scene.MoveLeft,
	glfw.KeyD:         scene.MoveRight,
	glfw.KeySpace:     scene.MoveUp,
	glfw.KeyLeftShift: scene.MoveDown,
	glfw.KeyLeft:      scene.TurnLeft,
	glfw.KeyRight:     scene.TurnRight,
}

var (
	_ render.Surface     = (*Window)(nil)
	_ render.EventWaiter = (*Window)(nil)
)

func NewWindow(opts WindowOptions) (*Window, error) {
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	resizable := glfw.False
	if opts.Resizable {
		resizable = glfw.True
	}
	glfw.WindowHint(glfw.Resizable, resizable)

	win, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	w := &Window{win: win, controls: scene.NewControls()}
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.invalidated.Store(true)
		render.Logger().Debug("framebuffer resized", "width", width, "height", height)
	})
	win.SetKeyCallback(func(gw *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.SetShouldClose(true)
			return
		}
		if a, ok := keyActions[key]; ok && action != glfw.Repeat {
			w.controls.Set(a, action == glfw.Press)
		}
	})
	return w, nil
}

// Extent is the framebuffer size in pixels, zero while minimized.
func (w *Window) Extent() render.Extent {
	width, height := w.win.GetFramebufferSize()
	if width < 0 || height < 0 {
		return render.Extent{}
	}
	return render.Extent{Width: uint32(width), Height: uint32(height)}
}

func (w *Window) Invalidated() bool {
	return w.invalidated.Load()
}

func (w *Window) ClearInvalidated() {
	w.invalidated.Store(false)
}

// Invalidate raises the invalidation flag from any goroutine and wakes the
// event loop, so the swapchain is rebuilt on the next iteration.
func (w *Window) Invalidate() {
	w.invalidated.Store(true)
	Wake()
}

func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

func (w *Window) SetTitle(title string) {
	w.win.SetTitle(title)
}

func (w *Window) ShouldClose() bool {
	return w.win.ShouldClose()
}

// Controls are the movement keys currently held.
func (w *Window) Controls() *scene.Controls {
	return w.controls
}

// RequiredInstanceExtensions are the NUL terminated instance extensions the
// window surface needs.
func (w *Window) RequiredInstanceExtensions() []string {
	exts := w.win.GetRequiredInstanceExtensions()
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = e + "\x00"
	}
	return out
}

func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	addr, err := w.win.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("create window surface: %w", err)
	}
	return vk.SurfaceFromPointer(addr), nil
}

func (w *Window) Destroy() {
	w.win.Destroy()
}
