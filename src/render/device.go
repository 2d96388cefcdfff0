package render

import "time"

// Destroyer releases a device object.
type Destroyer interface {
	Destroy()
}

// Semaphore orders work between device queue operations. The CPU never waits
// on it.
type Semaphore interface {
	Destroyer
}

// Fence is a completion primitive: the device signals it when submitted work
// finishes and the CPU waits on it.
type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled. A zero timeout waits forever.
	// When the timeout expires Wait returns an error matching ErrTimeout.
	Wait(timeout time.Duration) error
	// Reset returns a signaled fence to the unsignaled state.
	Reset() error
}

// Image is a presentable image owned by a swapchain.
type Image interface{}

// ImageView is a view over a swapchain image.
type ImageView interface {
	Destroyer
}

// Framebuffer binds image views to a render pass.
type Framebuffer interface {
	Destroyer
}

// Objects built outside the engine. They are passed through to the device
// untouched.
type (
	RenderPass    interface{}
	Pipeline      interface{}
	DescriptorSet interface{}
	Buffer        interface{}
)

// SwapchainInfo holds the negotiated parameters for a new swapchain.
type SwapchainInfo struct {
	ImageCount  uint32
	Format      SurfaceFormat
	Extent      Extent
	PresentMode PresentMode
}

// Swapchain is the device-side set of presentable images.
type Swapchain interface {
	Destroyer
	Images() ([]Image, error)
	// AcquireNextImage requests the next image and arms signal to fire when
	// it is ready. Staleness is reported through Status; err is only set for
	// faults the engine cannot recover from.
	AcquireNextImage(timeout time.Duration, signal Semaphore) (uint32, Status, error)
	// Present queues imageIndex for display once wait has fired.
	Present(imageIndex uint32, wait Semaphore) (Status, error)
}

// CommandBuffer is a command recording target.
type CommandBuffer interface {
	Reset() error
	Begin() error
	BeginRenderPass(pass RenderPass, fb Framebuffer, area Extent, clear [4]float32)
	SetViewport(area Extent)
	BindPipeline(p Pipeline)
	BindDescriptorSets(p Pipeline, sets ...DescriptorSet)
	PushConstants(p Pipeline, data []byte)
	BindVertexBuffers(buffers ...Buffer)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	EndRenderPass()
	End() error
}

// SubmitInfo describes one queue submission.
type SubmitInfo struct {
	Commands CommandBuffer
	// WaitOn is waited on at the color attachment output stage.
	WaitOn Semaphore
	Signal Semaphore
	// Completion is signaled once the device finished executing Commands.
	Completion Fence
}

// Device is the engine's borrowed view of the graphics device and its queues.
type Device interface {
	SurfaceCapabilities() (SurfaceCapabilities, error)
	CreateSwapchain(info SwapchainInfo, old Swapchain) (Swapchain, error)
	CreateImageView(img Image, format Format) (ImageView, error)
	CreateFramebuffer(pass RenderPass, view ImageView, extent Extent) (Framebuffer, error)
	CreateSemaphore() (Semaphore, error)
	CreateFence(signaled bool) (Fence, error)
	AllocateCommandBuffers(n int) ([]CommandBuffer, error)
	FreeCommandBuffers(cbs []CommandBuffer)
	Submit(info SubmitInfo) error
	// WaitIdle blocks until no submitted work is outstanding on any queue.
	WaitIdle() error
}
