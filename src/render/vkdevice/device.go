package vkdevice

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

// Device is a logical device with one graphics and one present queue,
// presenting to a single surface. It implements render.Device.
type Device struct {
	gpu     vk.PhysicalDevice
	handle  vk.Device
	surface vk.Surface

	graphicsFamily uint32
	presentFamily  uint32
	graphics       vk.Queue
	present        vk.Queue
	pool           vk.CommandPool
}

var _ render.Device = (*Device)(nil)

type queueFamilies struct {
	graphics, present       uint32
	hasGraphics, hasPresent bool
}

func (q queueFamilies) complete() bool {
	return q.hasGraphics && q.hasPresent
}

// Open picks the first physical device able to render and present to
// surface and creates a logical device on it.
func Open(instance *Instance, surface vk.Surface, validation bool) (*Device, error) {
	gpu, families, err := pickPhysicalDevice(instance.Handle, surface)
	if err != nil {
		return nil, err
	}
	d := &Device{gpu: gpu, surface: surface, graphicsFamily: families.graphics, presentFamily: families.present}

	unique := map[uint32]bool{families.graphics: true, families.present: true}
	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(unique))
	for family := range unique {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
	}
	if validation {
		info.EnabledLayerCount = uint32(len(validationLayers))
		info.PpEnabledLayerNames = validationLayers
	}
	if err := NewError(vk.CreateDevice(gpu, &info, nil, &d.handle)); err != nil {
		return nil, fmt.Errorf("create logical device: %w", err)
	}
	vk.GetDeviceQueue(d.handle, families.graphics, 0, &d.graphics)
	vk.GetDeviceQueue(d.handle, families.present, 0, &d.present)

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: families.graphics,
	}
	if err := NewError(vk.CreateCommandPool(d.handle, &poolInfo, nil, &d.pool)); err != nil {
		vk.DestroyDevice(d.handle, nil)
		return nil, fmt.Errorf("create command pool: %w", err)
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(gpu, &props)
	props.Deref()
	render.Logger().Info("device opened",
		"gpu", vk.ToString(props.DeviceName[:]),
		"graphics_family", families.graphics,
		"present_family", families.present)
	return d, nil
}

func pickPhysicalDevice(instance vk.Instance, surface vk.Surface) (vk.PhysicalDevice, queueFamilies, error) {
	var count uint32
	vk.EnumeratePhysicalDevices(instance, &count, nil)
	if count == 0 {
		return nil, queueFamilies{}, errors.New("no GPU with Vulkan support")
	}
	gpus := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(instance, &count, gpus)

	for _, gpu := range gpus {
		families := findQueueFamilies(gpu, surface)
		if families.complete() && supportsExtensions(gpu) && canPresent(gpu, surface) {
			return gpu, families, nil
		}
	}
	return nil, queueFamilies{}, errors.New("no suitable GPU")
}

func findQueueFamilies(gpu vk.PhysicalDevice, surface vk.Surface) queueFamilies {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, props)

	var q queueFamilies
	for i, p := range props {
		p.Deref()
		flags := p.QueueFlags
		p.Free()

		if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && !q.hasGraphics {
			q.graphics, q.hasGraphics = uint32(i), true
		}
		var supported vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(gpu, uint32(i), surface, &supported)
		if supported == vk.True && !q.hasPresent {
			q.present, q.hasPresent = uint32(i), true
		}
		if q.complete() {
			break
		}
	}
	return q
}

func supportsExtensions(gpu vk.PhysicalDevice) bool {
	var count uint32
	vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil)
	exts := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(gpu, "", &count, exts)

	required := make(map[string]bool, len(deviceExtensions))
	for _, e := range deviceExtensions {
		required[strings.TrimRight(e, "\x00")] = true
	}
	for _, e := range exts {
		e.Deref()
		delete(required, vk.ToString(e.ExtensionName[:]))
		e.Free()
	}
	return len(required) == 0
}

func canPresent(gpu vk.PhysicalDevice, surface vk.Surface) bool {
	var formats, modes uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formats, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &modes, nil)
	return formats > 0 && modes > 0
}

func (d *Device) SurfaceCapabilities() (render.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := NewError(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps)); err != nil {
		return render.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	out := render.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: extentFrom(caps.CurrentExtent),
		MinExtent:     extentFrom(caps.MinImageExtent),
		MaxExtent:     extentFrom(caps.MaxImageExtent),
	}

	var count uint32
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, nil)
	formats := make([]vk.SurfaceFormat, count)
	vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, formats)
	for _, f := range formats {
		f.Deref()
		out.Formats = append(out.Formats, render.SurfaceFormat{
			Format:     render.Format(f.Format),
			ColorSpace: render.ColorSpace(f.ColorSpace),
		})
	}

	vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, nil)
	modes := make([]vk.PresentMode, count)
	vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, modes)
	for _, m := range modes {
		if pm, ok := presentModeFrom(m); ok {
			out.PresentModes = append(out.PresentModes, pm)
		}
	}
	return out, nil
}

func (d *Device) CreateSwapchain(info render.SwapchainInfo, old render.Swapchain) (render.Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if err := NewError(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps)); err != nil {
		return nil, err
	}
	caps.Deref()

	oldHandle := vk.NullSwapchain
	if sc, ok := old.(*Swapchain); ok && sc != nil {
		oldHandle = sc.handle
	}
	ci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.ImageCount,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      extentTo(info.Extent),
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentModeTo(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     oldHandle,
	}
	if d.graphicsFamily != d.presentFamily {
		ci.ImageSharingMode = vk.SharingModeConcurrent
		ci.QueueFamilyIndexCount = 2
		ci.PQueueFamilyIndices = []uint32{d.graphicsFamily, d.presentFamily}
	} else {
		ci.ImageSharingMode = vk.SharingModeExclusive
	}

	sc := &Swapchain{dev: d}
	if err := NewError(vk.CreateSwapchain(d.handle, &ci, nil, &sc.handle)); err != nil {
		return nil, err
	}
	return sc, nil
}

func (d *Device) CreateImageView(img render.Image, format render.Format) (render.ImageView, error) {
	image, ok := img.(vk.Image)
	if !ok {
		return nil, fmt.Errorf("unexpected image type %T", img)
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	v := &imageView{dev: d}
	if err := NewError(vk.CreateImageView(d.handle, &info, nil, &v.handle)); err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Device) CreateFramebuffer(pass render.RenderPass, view render.ImageView, extent render.Extent) (render.Framebuffer, error) {
	rp, ok := pass.(vk.RenderPass)
	if !ok {
		return nil, fmt.Errorf("unexpected render pass type %T", pass)
	}
	v, ok := view.(*imageView)
	if !ok {
		return nil, fmt.Errorf("unexpected image view type %T", view)
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: 1,
		PAttachments:    []vk.ImageView{v.handle},
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	fb := &framebuffer{dev: d}
	if err := NewError(vk.CreateFramebuffer(d.handle, &info, nil, &fb.handle)); err != nil {
		return nil, err
	}
	return fb, nil
}

func (d *Device) CreateSemaphore() (render.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	s := &Semaphore{dev: d}
	if err := NewError(vk.CreateSemaphore(d.handle, &info, nil, &s.handle)); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Device) CreateFence(signaled bool) (render.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	f := &Fence{dev: d}
	if err := NewError(vk.CreateFence(d.handle, &info, nil, &f.handle)); err != nil {
		return nil, err
	}
	return f, nil
}

func (d *Device) AllocateCommandBuffers(n int) ([]render.CommandBuffer, error) {
	handles := make([]vk.CommandBuffer, n)
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	if err := NewError(vk.AllocateCommandBuffers(d.handle, &info, handles)); err != nil {
		return nil, err
	}
	out := make([]render.CommandBuffer, n)
	for i, h := range handles {
		out[i] = &CommandBuffer{dev: d, handle: h}
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(cbs []render.CommandBuffer) {
	handles := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if c, ok := cb.(*CommandBuffer); ok {
			handles = append(handles, c.handle)
		}
	}
	if len(handles) > 0 {
		vk.FreeCommandBuffers(d.handle, d.pool, uint32(len(handles)), handles)
	}
}

func (d *Device) Submit(info render.SubmitInfo) error {
	cb, ok := info.Commands.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("unexpected command buffer type %T", info.Commands)
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.handle},
	}
	if s, ok := info.WaitOn.(*Semaphore); ok {
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{s.handle}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
	}
	if s, ok := info.Signal.(*Semaphore); ok {
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{s.handle}
	}
	fence := vk.NullFence
	if f, ok := info.Completion.(*Fence); ok {
		fence = f.handle
	}
	return NewError(vk.QueueSubmit(d.graphics, 1, []vk.SubmitInfo{submit}, fence))
}

func (d *Device) WaitIdle() error {
	return NewError(vk.DeviceWaitIdle(d.handle))
}

// Destroy releases the command pool and the logical device. Everything
// created from the device must have been destroyed.
func (d *Device) Destroy() {
	vk.DestroyCommandPool(d.handle, d.pool, nil)
	vk.DestroyDevice(d.handle, nil)
}

type imageView struct {
	dev    *Device
	handle vk.ImageView
}

func (v *imageView) Destroy() {
	vk.DestroyImageView(v.dev.handle, v.handle, nil)
}

type framebuffer struct {
	dev    *Device
	handle vk.Framebuffer
}

func (f *framebuffer) Destroy() {
	vk.DestroyFramebuffer(f.dev.handle, f.handle, nil)
}

func extentFrom(e vk.Extent2D) render.Extent {
	return render.Extent{Width: e.Width, Height: e.Height}
}

func extentTo(e render.Extent) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func presentModeFrom(m vk.PresentMode) (render.PresentMode, bool) {
	switch m {
	case vk.PresentModeFifo:
		return render.PresentModeFifo, true
	case vk.PresentModeMailbox:
		return render.PresentModeMailbox, true
	case vk.PresentModeImmediate:
		return render.PresentModeImmediate, true
	}
	return 0, false
}

func presentModeTo(m render.PresentMode) vk.PresentMode {
	switch m {
	case render.PresentModeMailbox:
		return vk.PresentModeMailbox
	case render.PresentModeImmediate:
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}

// bytePointer returns a pointer to the first byte of b for push constants.
func bytePointer(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}
