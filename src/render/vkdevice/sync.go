package vkdevice

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

type Semaphore struct {
	dev    *Device
	handle vk.Semaphore
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.dev.handle, s.handle, nil)
}

type Fence struct {
	dev    *Device
	handle vk.Fence
}

var (
	_ render.Semaphore = (*Semaphore)(nil)
	_ render.Fence     = (*Fence)(nil)
)

// Wait blocks until the fence is signaled. An expired wait matches
// render.ErrTimeout.
func (f *Fence) Wait(timeout time.Duration) error {
	return NewError(vk.WaitForFences(f.dev.handle, 1, []vk.Fence{f.handle}, vk.True, nanos(timeout)))
}

func (f *Fence) Reset() error {
	return NewError(vk.ResetFences(f.dev.handle, 1, []vk.Fence{f.handle}))
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.dev.handle, f.handle, nil)
}
