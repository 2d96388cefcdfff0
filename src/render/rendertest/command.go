package rendertest

import (
	"fmt"

	"epsilon-frontend/src/render"
)

// CommandBuffer records the commands issued to it as readable strings.
type CommandBuffer struct {
	dev       *Device
	recording bool
	inFlight  bool
	freed     bool
	commands  []string
}

// Commands returns what was recorded since the last reset.
func (c *CommandBuffer) Commands() []string {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	return append([]string(nil), c.commands...)
}

// touch reports writes to a buffer the device may still be reading.
func (c *CommandBuffer) touch(op string) error {
	if c.freed {
		c.dev.violate("%s on a freed command buffer", op)
		return fmt.Errorf("%s: freed: %w", op, ErrInjected)
	}
	if c.inFlight {
		c.dev.violate("%s on a command buffer in flight", op)
		return fmt.Errorf("%s: in flight: %w", op, ErrInjected)
	}
	return nil
}

func (c *CommandBuffer) record(format string, args ...interface{}) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if !c.recording {
		c.dev.violate("%s outside begin/end", fmt.Sprintf(format, args...))
	}
	c.commands = append(c.commands, fmt.Sprintf(format, args...))
}

func (c *CommandBuffer) Reset() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if err := c.touch("reset"); err != nil {
		return err
	}
	c.recording = false
	c.commands = nil
	return nil
}

func (c *CommandBuffer) Begin() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if err := c.touch("begin"); err != nil {
		return err
	}
	c.recording = true
	return nil
}

func (c *CommandBuffer) BeginRenderPass(pass render.RenderPass, fb render.Framebuffer, area render.Extent, clear [4]float32) {
	c.record("begin-render-pass %s", area)
}

func (c *CommandBuffer) SetViewport(area render.Extent) {
	c.record("viewport %s", area)
}

func (c *CommandBuffer) BindPipeline(p render.Pipeline) {
	c.record("bind-pipeline")
}

func (c *CommandBuffer) BindDescriptorSets(p render.Pipeline, sets ...render.DescriptorSet) {
	c.record("bind-descriptor-sets %v", sets)
}

func (c *CommandBuffer) PushConstants(p render.Pipeline, data []byte) {
	c.record("push-constants %d", len(data))
}

func (c *CommandBuffer) BindVertexBuffers(buffers ...render.Buffer) {
	c.record("bind-vertex-buffers %d", len(buffers))
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.record("draw %dx%d", vertexCount, instanceCount)
}

func (c *CommandBuffer) EndRenderPass() {
	c.record("end-render-pass")
}

func (c *CommandBuffer) End() error {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	if !c.recording {
		return fmt.Errorf("end without begin: %w", ErrInjected)
	}
	c.recording = false
	return nil
}
