package vkdevice

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

// CommandBuffer records into a primary command buffer from the device pool.
// An object of the wrong type fails the recording: every later command is
// dropped and End reports the failure without ending the buffer, which is
// left for the next Reset.
type CommandBuffer struct {
	dev    *Device
	handle vk.CommandBuffer
	err    error
}

var _ render.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) fail(what string, v interface{}) {
	if c.err == nil {
		c.err = fmt.Errorf("unexpected %s type %T", what, v)
	}
}

func (c *CommandBuffer) Reset() error {
	c.err = nil
	return NewError(vk.ResetCommandBuffer(c.handle, 0))
}

func (c *CommandBuffer) Begin() error {
	return NewError(vk.BeginCommandBuffer(c.handle, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}))
}

func (c *CommandBuffer) BeginRenderPass(pass render.RenderPass, fb render.Framebuffer, area render.Extent, clear [4]float32) {
	if c.err != nil {
		return
	}
	rp, ok := pass.(vk.RenderPass)
	if !ok {
		c.fail("render pass", pass)
		return
	}
	f, ok := fb.(*framebuffer)
	if !ok {
		c.fail("framebuffer", fb)
		return
	}
	var clearColor vk.ClearValue
	clearColor.SetColor(clear[:])
	vk.CmdBeginRenderPass(c.handle, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: f.handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extentTo(area),
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clearColor},
	}, vk.SubpassContentsInline)
}

// SetViewport sets both the viewport and the scissor to area.
func (c *CommandBuffer) SetViewport(area render.Extent) {
	if c.err != nil {
		return
	}
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{{
		Width:    float32(area.Width),
		Height:   float32(area.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extentTo(area),
	}})
}

func (c *CommandBuffer) BindPipeline(p render.Pipeline) {
	if c.err != nil {
		return
	}
	pl, ok := p.(*Pipeline)
	if !ok {
		c.fail("pipeline", p)
		return
	}
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPointGraphics, pl.Handle)
}

func (c *CommandBuffer) BindDescriptorSets(p render.Pipeline, sets ...render.DescriptorSet) {
	if c.err != nil {
		return
	}
	pl, ok := p.(*Pipeline)
	if !ok {
		c.fail("pipeline", p)
		return
	}
	handles := make([]vk.DescriptorSet, 0, len(sets))
	for _, s := range sets {
		h, ok := s.(vk.DescriptorSet)
		if !ok {
			c.fail("descriptor set", s)
			return
		}
		handles = append(handles, h)
	}
	vk.CmdBindDescriptorSets(c.handle, vk.PipelineBindPointGraphics, pl.Layout,
		0, uint32(len(handles)), handles, 0, nil)
}

func (c *CommandBuffer) PushConstants(p render.Pipeline, data []byte) {
	if c.err != nil {
		return
	}
	pl, ok := p.(*Pipeline)
	if !ok {
		c.fail("pipeline", p)
		return
	}
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.handle, pl.Layout, pl.PushStages, 0, uint32(len(data)), bytePointer(data))
}

func (c *CommandBuffer) BindVertexBuffers(buffers ...render.Buffer) {
	if c.err != nil {
		return
	}
	handles := make([]vk.Buffer, 0, len(buffers))
	offsets := make([]vk.DeviceSize, 0, len(buffers))
	for _, b := range buffers {
		switch buf := b.(type) {
		case *Buffer:
			handles = append(handles, buf.handle)
		case vk.Buffer:
			handles = append(handles, buf)
		default:
			c.fail("buffer", b)
			return
		}
		offsets = append(offsets, 0)
	}
	vk.CmdBindVertexBuffers(c.handle, 0, uint32(len(handles)), handles, offsets)
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if c.err != nil {
		return
	}
	vk.CmdDraw(c.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) EndRenderPass() {
	if c.err != nil {
		return
	}
	vk.CmdEndRenderPass(c.handle)
}

func (c *CommandBuffer) End() error {
	if c.err != nil {
		return c.err
	}
	return NewError(vk.EndCommandBuffer(c.handle))
}
