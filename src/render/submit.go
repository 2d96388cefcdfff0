package render

import (
	"errors"
	"fmt"
)

// SequenceState is the lifecycle stage of a command sequence.
type SequenceState uint8

const (
	SequenceIdle SequenceState = iota
	SequenceRecording
	SequenceSubmitted
	// SequenceExecuting is the device-side stage between submission and
	// completion. The host cannot observe it and reports Submitted instead.
	SequenceExecuting
	SequenceComplete
)

func (s SequenceState) String() string {
	switch s {
	case SequenceIdle:
		return "idle"
	case SequenceRecording:
		return "recording"
	case SequenceSubmitted:
		return "submitted"
	case SequenceExecuting:
		return "executing"
	case SequenceComplete:
		return "complete"
	}
	return "unknown"
}

var errStaleGeneration = errors.New("sequence belongs to a retired swapchain generation")

// CommandSequence is the recorded drawing work for one presentable image.
type CommandSequence struct {
	Image      int
	Generation Generation
	Commands   CommandBuffer

	state SequenceState
	slot  int
}

// State returns the host-visible lifecycle stage.
func (q *CommandSequence) State() SequenceState {
	return q.state
}

// CommandSubmitter records and submits one command sequence per presentable
// image of the current generation.
type CommandSubmitter struct {
	dev       Device
	binding   PipelineBinding
	state     *SwapchainState
	buffers   []CommandBuffer
	sequences []*CommandSequence
}

// NewCommandSubmitter returns a submitter recording against binding.
func NewCommandSubmitter(dev Device, binding PipelineBinding) *CommandSubmitter {
	return &CommandSubmitter{dev: dev, binding: binding}
}

// Prepare allocates the sequences for a generation. Sequences of the previous
// generation are released, so the device must be idle.
func (c *CommandSubmitter) Prepare(state *SwapchainState) error {
	if c.state != nil && c.state.Generation == state.Generation {
		return nil
	}
	c.Release()
	bufs, err := c.dev.AllocateCommandBuffers(len(state.Images))
	if err != nil {
		return NewError(ErrResourceCreation, "allocate command buffers", err)
	}
	c.buffers = bufs
	c.sequences = make([]*CommandSequence, len(bufs))
	for i, cb := range bufs {
		c.sequences[i] = &CommandSequence{Image: i, Generation: state.Generation, Commands: cb, slot: -1}
	}
	c.state = state
	return nil
}

// SetDescriptorSets replaces the sets bound by Record, one per image or a
// single shared set. Sets built per generation are handed over here from
// the prepare hook.
func (c *CommandSubmitter) SetDescriptorSets(sets []DescriptorSet) {
	c.binding.DescriptorSets = sets
}

// Sequence returns the sequence targeting image.
func (c *CommandSubmitter) Sequence(image int) *CommandSequence {
	return c.sequences[image]
}

// Record rewrites the sequence of image with the frame's draws. The previous
// submission of that sequence must have been retired.
func (c *CommandSubmitter) Record(image int, fs FrameState) (*CommandSequence, error) {
	if c.state == nil {
		return nil, NewError(ErrRecording, "record", errors.New("no swapchain generation prepared"))
	}
	if image < 0 || image >= len(c.sequences) {
		return nil, NewError(ErrRecording, "record", fmt.Errorf("image %d out of range [0,%d)", image, len(c.sequences)))
	}
	seq := c.sequences[image]
	if seq.state == SequenceSubmitted {
		return nil, NewError(ErrRecording, "record",
			fmt.Errorf("image %d still in flight on slot %d", image, seq.slot))
	}

	seq.state = SequenceRecording
	cb := seq.Commands
	if err := cb.Reset(); err != nil {
		return nil, NewError(ErrRecording, "reset command buffer", err)
	}
	if err := cb.Begin(); err != nil {
		return nil, NewError(ErrRecording, "begin command buffer", err)
	}
	target := c.state.Images[image]
	cb.BeginRenderPass(c.binding.RenderPass, target.Framebuffer, c.state.Extent, fs.ClearColor)
	cb.SetViewport(c.state.Extent)
	cb.BindPipeline(c.binding.Pipeline)
	if set, ok := c.binding.descriptorSet(image); ok {
		cb.BindDescriptorSets(c.binding.Pipeline, set)
	}
	if len(fs.PushConstants) > 0 {
		cb.PushConstants(c.binding.Pipeline, fs.PushConstants)
	}
	if len(c.binding.VertexBuffers) > 0 {
		cb.BindVertexBuffers(c.binding.VertexBuffers...)
	}
	for _, d := range fs.Draws {
		cb.Draw(d.VertexCount, d.InstanceCount, d.FirstVertex, d.FirstInstance)
	}
	cb.EndRenderPass()
	if err := cb.End(); err != nil {
		return nil, NewError(ErrRecording, "end command buffer", err)
	}
	return seq, nil
}

// Submit queues seq for execution. It waits on the slot's image semaphore,
// signals the slot's render semaphore and completes the slot's fence, which
// the caller must have armed.
func (c *CommandSubmitter) Submit(seq *CommandSequence, slot *FrameSlot) error {
	if c.state == nil || seq.Generation != c.state.Generation {
		return NewError(ErrSubmission, "submit", errStaleGeneration)
	}
	if seq.state != SequenceRecording {
		return NewError(ErrSubmission, "submit", fmt.Errorf("sequence for image %d is %s", seq.Image, seq.state))
	}
	err := c.dev.Submit(SubmitInfo{
		Commands:   seq.Commands,
		WaitOn:     slot.ImageAvailable,
		Signal:     slot.RenderComplete,
		Completion: slot.Complete,
	})
	if err != nil {
		return NewError(ErrSubmission, fmt.Sprintf("submit image %d on slot %d", seq.Image, slot.Index), err)
	}
	seq.state = SequenceSubmitted
	seq.slot = slot.Index
	return nil
}

// Retire marks every sequence submitted on slot as complete. Call it after
// the slot's fence was observed signaled.
func (c *CommandSubmitter) Retire(slot int) {
	for _, seq := range c.sequences {
		if seq.state == SequenceSubmitted && seq.slot == slot {
			seq.state = SequenceComplete
		}
	}
}

// Release frees the sequences of the current generation. The device must be
// idle.
func (c *CommandSubmitter) Release() {
	if len(c.buffers) > 0 {
		c.dev.FreeCommandBuffers(c.buffers)
	}
	c.buffers = nil
	c.sequences = nil
	c.state = nil
}
