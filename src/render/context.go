package render

// Surface is the presentation surface as seen by the engine: the native
// window reports its framebuffer size and raises Invalidated on resize.
type Surface interface {
	// Extent is the current framebuffer size. Minimized windows report a
	// zero extent.
	Extent() Extent
	// Invalidated reports whether the surface was resized since the last
	// ClearInvalidated.
	Invalidated() bool
	ClearInvalidated()
}

// EventWaiter is implemented by surfaces that can block until the windowing
// system delivers an event. The loop uses it to avoid spinning while the
// surface is minimized.
type EventWaiter interface {
	WaitEvents()
}

// PipelineBinding is the externally constructed drawing state the submitter
// records with. None of these objects are introspected.
type PipelineBinding struct {
	RenderPass RenderPass
	Pipeline   Pipeline
	// DescriptorSets holds one set per image, or a single set shared by
	// all images. It may be empty.
	DescriptorSets []DescriptorSet
	VertexBuffers  []Buffer
}

// descriptorSet returns the set bound for image, if any.
func (b *PipelineBinding) descriptorSet(image int) (DescriptorSet, bool) {
	if len(b.DescriptorSets) == 0 {
		return nil, false
	}
	return b.DescriptorSets[image%len(b.DescriptorSets)], true
}

// Frame describes the iteration a scene update is for.
type Frame struct {
	// Number counts submitted frames, starting at zero.
	Number     uint64
	Slot       int
	Image      int
	Extent     Extent
	Generation Generation
}

// DrawCall is one non-indexed draw.
type DrawCall struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// FrameState is the per-frame data the scene hands to the submitter.
type FrameState struct {
	ClearColor [4]float32
	// PushConstants is pushed before the draws when non-empty.
	PushConstants []byte
	Draws         []DrawCall
}

// SceneUpdater is invoked once per iteration, after the target image is safe
// to write and before recording. Uniform data for the image may be written
// here.
type SceneUpdater interface {
	Update(frame Frame) (FrameState, error)
}

// SceneUpdaterFunc adapts a function to SceneUpdater.
type SceneUpdaterFunc func(frame Frame) (FrameState, error)

func (f SceneUpdaterFunc) Update(frame Frame) (FrameState, error) {
	return f(frame)
}
