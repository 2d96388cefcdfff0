package vkdevice

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

// Swapchain wraps a VkSwapchainKHR created by Device.CreateSwapchain.
type Swapchain struct {
	dev    *Device
	handle vk.Swapchain
}

var _ render.Swapchain = (*Swapchain)(nil)

func (s *Swapchain) Images() ([]render.Image, error) {
	var count uint32
	if err := NewError(vk.GetSwapchainImages(s.dev.handle, s.handle, &count, nil)); err != nil {
		return nil, err
	}
	handles := make([]vk.Image, count)
	if err := NewError(vk.GetSwapchainImages(s.dev.handle, s.handle, &count, handles)); err != nil {
		return nil, err
	}
	out := make([]render.Image, count)
	for i, h := range handles {
		out[i] = h
	}
	return out, nil
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, signal render.Semaphore) (uint32, render.Status, error) {
	sem := vk.Semaphore(vk.NullHandle)
	if signal != nil {
		ss, ok := signal.(*Semaphore)
		if !ok {
			return 0, render.StatusSurfaceUnusable, fmt.Errorf("unexpected semaphore type %T", signal)
		}
		sem = ss.handle
	}
	var idx uint32
	ret := vk.AcquireNextImage(s.dev.handle, s.handle, nanos(timeout), sem, vk.NullFence, &idx)
	status, err := statusOf(ret)
	return idx, status, err
}

func (s *Swapchain) Present(imageIndex uint32, wait render.Semaphore) (render.Status, error) {
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if ws, ok := wait.(*Semaphore); ok {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{ws.handle}
	}
	return statusOf(vk.QueuePresent(s.dev.present, &info))
}

func (s *Swapchain) Destroy() {
	vk.DestroySwapchain(s.dev.handle, s.handle, nil)
}

// nanos converts a wait timeout, zero meaning forever.
func nanos(timeout time.Duration) uint64 {
	if timeout <= 0 {
		return vk.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}
