package vkdevice

import (
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

func TestStatusOf(t *testing.T) {
	for idx, tc := range []struct {
		ret     vk.Result
		status  render.Status
		wantErr bool
	}{
		{ret: vk.Success, status: render.StatusReady},
		{ret: vk.Suboptimal, status: render.StatusSurfaceStale},
		{ret: vk.ErrorOutOfDate, status: render.StatusSurfaceUnusable},
		{ret: vk.ErrorDeviceLost, status: render.StatusSurfaceUnusable, wantErr: true},
		{ret: vk.Timeout, status: render.StatusSurfaceUnusable, wantErr: true},
	} {
		t.Run(fmt.Sprintf("%d/%d", idx, tc.ret), func(t *testing.T) {
			status, err := statusOf(tc.ret)
			assert.Equal(t, tc.status, status)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewError(t *testing.T) {
	require.NoError(t, NewError(vk.Success))

	err := NewError(vk.ErrorDeviceLost)
	require.ErrorIs(t, err, render.ErrDeviceLost)
	assert.Contains(t, err.Error(), "TestNewError")

	require.ErrorIs(t, NewError(vk.Timeout), render.ErrTimeout)

	err = NewError(vk.ErrorOutOfHostMemory)
	require.Error(t, err)
	assert.NotErrorIs(t, err, render.ErrDeviceLost)
	assert.NotErrorIs(t, err, render.ErrTimeout)
}

func TestSPIRVWords(t *testing.T) {
	code := make([]byte, 12)
	binary.LittleEndian.PutUint32(code, spirvMagic)
	binary.LittleEndian.PutUint32(code[4:], 0x00010000)
	binary.LittleEndian.PutUint32(code[8:], 42)

	words, err := spirvWords(code)
	require.NoError(t, err)
	assert.Equal(t, []uint32{spirvMagic, 0x00010000, 42}, words)

	for idx, bad := range [][]byte{nil, code[:3], code[:6], {1, 2, 3, 4}} {
		t.Run(fmt.Sprintf("%d/invalid", idx), func(t *testing.T) {
			_, err := spirvWords(bad)
			require.ErrorIs(t, err, ErrInvalidSPIRV)
		})
	}
}

func TestPresentModeConversion(t *testing.T) {
	for _, m := range []render.PresentMode{render.PresentModeFifo, render.PresentModeMailbox, render.PresentModeImmediate} {
		back, ok := presentModeFrom(presentModeTo(m))
		require.True(t, ok)
		assert.Equal(t, m, back)
	}
	_, ok := presentModeFrom(vk.PresentModeFifoRelaxed)
	assert.False(t, ok)
}

func TestVertexInput(t *testing.T) {
	bindings, attributes := vertexInput([]VertexBinding{
		{Stride: 12, Attributes: []VertexAttribute{{Format: vk.FormatR32g32b32Sfloat}}},
		{Stride: 24, PerInstance: true, Attributes: []VertexAttribute{
			{Format: vk.FormatR32g32b32Sfloat},
			{Format: vk.FormatR32g32b32Sfloat, Offset: 12},
		}},
	})
	require.Len(t, bindings, 2)
	assert.Equal(t, vk.VertexInputRateVertex, bindings[0].InputRate)
	assert.Equal(t, vk.VertexInputRateInstance, bindings[1].InputRate)
	assert.Equal(t, uint32(24), bindings[1].Stride)

	require.Len(t, attributes, 3)
	for i, a := range attributes {
		assert.Equal(t, uint32(i), a.Location)
	}
	assert.Equal(t, uint32(1), attributes[2].Binding)
	assert.Equal(t, uint32(12), attributes[2].Offset)
}

func TestNanos(t *testing.T) {
	assert.Equal(t, uint64(vk.MaxUint64), nanos(0))
	assert.Equal(t, uint64(time.Millisecond), nanos(time.Millisecond))
}

func TestCommandBufferStopsAfterTypeError(t *testing.T) {
	cb := &CommandBuffer{}
	cb.BeginRenderPass("pass", nil, render.Extent{Width: 4, Height: 4}, [4]float32{})
	cb.SetViewport(render.Extent{Width: 4, Height: 4})
	cb.BindPipeline(&Pipeline{})
	cb.BindDescriptorSets(&Pipeline{})
	cb.PushConstants(&Pipeline{}, []byte{1, 2, 3, 4})
	cb.BindVertexBuffers(&Buffer{})
	cb.Draw(36, 1, 0, 0)
	cb.EndRenderPass()

	err := cb.End()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render pass type string")
}

func TestBufferBounds(t *testing.T) {
	for idx, tc := range []struct {
		name    string
		write   func() error
		wantErr string
	}{
		{
			name:    "oversized update",
			write:   func() error { return (&Buffer{size: 4}).Update(make([]byte, 8)) },
			wantErr: "8 bytes do not fit a 4 byte buffer",
		},
		{
			name:    "uniform image out of range",
			write:   func() error { return (&UniformSets{}).Write(0, make([]byte, 4)) },
			wantErr: "image 0 out of range [0,0)",
		},
		{
			name:    "negative uniform image",
			write:   func() error { return (&UniformSets{buffers: []*Buffer{{size: 4}}}).Write(-1, nil) },
			wantErr: "image -1 out of range [0,1)",
		},
	} {
		t.Run(fmt.Sprintf("%d/%s", idx, tc.name), func(t *testing.T) {
			err := tc.write()
			require.Error(t, err)
			assert.EqualError(t, err, tc.wantErr)
		})
	}
}
