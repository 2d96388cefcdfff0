package vkdevice

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

// CreateUniformLayout creates the layout of a set holding one uniform
// buffer at binding 0, read by the vertex stage.
func (d *Device) CreateUniformLayout() (vk.DescriptorSetLayout, error) {
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}}
	var layout vk.DescriptorSetLayout
	err := NewError(vk.CreateDescriptorSetLayout(d.handle, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &layout))
	if err != nil {
		return nil, fmt.Errorf("create descriptor set layout: %w", err)
	}
	return layout, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.handle, layout, nil)
}

// UniformSets is one uniform buffer per presentable image and the
// descriptor sets pointing at them. The pool is sized for one generation,
// so the sets are rebuilt whenever the image count may have changed.
type UniformSets struct {
	dev     *Device
	pool    vk.DescriptorPool
	sets    []vk.DescriptorSet
	buffers []*Buffer
}

// NewUniformSets allocates count sets of layout, each bound to its own
// uniform buffer of size bytes.
func (d *Device) NewUniformSets(layout vk.DescriptorSetLayout, count, size int) (*UniformSets, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid uniform set count %d", count)
	}
	u := &UniformSets{dev: d}
	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeUniformBuffer,
		DescriptorCount: uint32(count),
	}}
	if err := NewError(vk.CreateDescriptorPool(d.handle, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(count),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}, nil, &u.pool)); err != nil {
		return nil, fmt.Errorf("create descriptor pool: %w", err)
	}

	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}
	u.sets = make([]vk.DescriptorSet, count)
	if err := NewError(vk.AllocateDescriptorSets(d.handle, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     u.pool,
		DescriptorSetCount: uint32(count),
		PSetLayouts:        layouts,
	}, &u.sets[0])); err != nil {
		u.Destroy()
		return nil, fmt.Errorf("allocate descriptor sets: %w", err)
	}

	for i, set := range u.sets {
		buf, err := d.NewUniformBuffer(size)
		if err != nil {
			u.Destroy()
			return nil, fmt.Errorf("uniform buffer %d: %w", i, err)
		}
		u.buffers = append(u.buffers, buf)
		writes := []vk.WriteDescriptorSet{{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buf.handle,
				Offset: 0,
				Range:  vk.DeviceSize(size),
			}},
		}}
		vk.UpdateDescriptorSets(d.handle, uint32(len(writes)), writes, 0, nil)
	}
	return u, nil
}

// Sets returns the descriptor sets indexed by image, for the frame loop.
func (u *UniformSets) Sets() []render.DescriptorSet {
	out := make([]render.DescriptorSet, len(u.sets))
	for i, s := range u.sets {
		out[i] = s
	}
	return out
}

// Write stores data in the uniform buffer of image. The image must not be
// in flight.
func (u *UniformSets) Write(image int, data []byte) error {
	if image < 0 || image >= len(u.buffers) {
		return fmt.Errorf("image %d out of range [0,%d)", image, len(u.buffers))
	}
	return u.buffers[image].Update(data)
}

// Destroy releases the buffers and the pool, which frees the sets. The
// device must be idle.
func (u *UniformSets) Destroy() {
	for _, b := range u.buffers {
		b.Destroy()
	}
	u.buffers = nil
	vk.DestroyDescriptorPool(u.dev.handle, u.pool, nil)
	u.sets = nil
}
