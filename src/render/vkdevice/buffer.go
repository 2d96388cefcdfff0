package vkdevice

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// Buffer is a host visible, coherent buffer. It stays mapped for its whole
// life so per-frame data can be rewritten in place.
type Buffer struct {
	dev    *Device
	handle vk.Buffer
	memory vk.DeviceMemory
	mapped unsafe.Pointer
	size   int
}

// NewVertexBuffer allocates a vertex buffer of len(data) bytes and fills it.
func (d *Device) NewVertexBuffer(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("empty vertex buffer")
	}
	b, err := d.newBuffer(len(data), vk.BufferUsageVertexBufferBit)
	if err != nil {
		return nil, err
	}
	if err := b.Update(data); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// NewUniformBuffer allocates a zeroed uniform buffer of size bytes.
func (d *Device) NewUniformBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid uniform buffer size %d", size)
	}
	b, err := d.newBuffer(size, vk.BufferUsageUniformBufferBit)
	if err != nil {
		return nil, err
	}
	if err := b.Update(make([]byte, size)); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (d *Device) newBuffer(n int, usage vk.BufferUsageFlagBits) (*Buffer, error) {
	b := &Buffer{dev: d, size: n}
	size := vk.DeviceSize(n)

	if err := NewError(vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.handle)); err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, b.handle, &reqs)
	reqs.Deref()

	typeIndex, err := findMemoryType(d.gpu, reqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(d.handle, b.handle, nil)
		return nil, err
	}
	if err := NewError(vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &b.memory)); err != nil {
		vk.DestroyBuffer(d.handle, b.handle, nil)
		return nil, fmt.Errorf("allocate buffer memory: %w", err)
	}
	vk.BindBufferMemory(d.handle, b.handle, b.memory, 0)

	if err := NewError(vk.MapMemory(d.handle, b.memory, 0, size, 0, &b.mapped)); err != nil {
		b.Destroy()
		return nil, fmt.Errorf("map buffer memory: %w", err)
	}
	return b, nil
}

// Update overwrites the start of the buffer. The caller must make sure no
// in-flight frame reads it.
func (b *Buffer) Update(data []byte) error {
	if err := fits(len(data), b.size); err != nil {
		return err
	}
	vk.Memcopy(b.mapped, data)
	return nil
}

func (b *Buffer) Destroy() {
	if b.mapped != nil {
		vk.UnmapMemory(b.dev.handle, b.memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(b.dev.handle, b.handle, nil)
	vk.FreeMemory(b.dev.handle, b.memory, nil)
}

func fits(n, size int) error {
	if n > size {
		return fmt.Errorf("%d bytes do not fit a %d byte buffer", n, size)
	}
	return nil
}

func findMemoryType(gpu vk.PhysicalDevice, typeFilter uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(gpu, &props)
	props.Deref()

	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		mt := props.MemoryTypes[i]
		mt.Deref()
		if typeFilter&(1<<i) != 0 && mt.PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, errors.New("no suitable memory type")
}
