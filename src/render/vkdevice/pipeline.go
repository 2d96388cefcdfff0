package vkdevice

import (
	"encoding/binary"
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

const spirvMagic = 0x07230203

var ErrInvalidSPIRV = errors.New("invalid SPIR-V module")

// VertexAttribute is one shader input of a vertex binding. Locations are
// assigned in declaration order across all bindings.
type VertexAttribute struct {
	Format vk.Format
	Offset uint32
}

type VertexBinding struct {
	Stride      uint32
	PerInstance bool
	Attributes  []VertexAttribute
}

// PipelineConfig describes a single subpass graphics pipeline with dynamic
// viewport and scissor, so it survives swapchain recreation unchanged.
type PipelineConfig struct {
	VertexShader   []byte
	FragmentShader []byte
	Bindings       []VertexBinding
	// SetLayouts are bound in order starting at set 0.
	SetLayouts []vk.DescriptorSetLayout
	// PushConstantSize is the size of the vertex stage push constant block,
	// zero for none.
	PushConstantSize uint32
	CullBackFaces    bool
}

// Pipeline is passed to the engine as render.Pipeline.
type Pipeline struct {
	dev        *Device
	Handle     vk.Pipeline
	Layout     vk.PipelineLayout
	PushStages vk.ShaderStageFlags
}

// CreateRenderPass creates a single color attachment pass that clears and
// leaves the image ready for presentation.
func (d *Device) CreateRenderPass(format render.Format) (vk.RenderPass, error) {
	attachments := []vk.AttachmentDescription{{
		Format:         vk.Format(format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}
	refs := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(refs)),
		PColorAttachments:    refs,
	}}
	// the acquire semaphore is waited on at color output, so the layout
	// transition has to wait for it too
	deps := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}}

	var pass vk.RenderPass
	err := NewError(vk.CreateRenderPass(d.handle, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}, nil, &pass))
	if err != nil {
		return nil, fmt.Errorf("create render pass: %w", err)
	}
	return pass, nil
}

func (d *Device) DestroyRenderPass(pass vk.RenderPass) {
	vk.DestroyRenderPass(d.handle, pass, nil)
}

func (d *Device) CreatePipeline(pass vk.RenderPass, cfg PipelineConfig) (*Pipeline, error) {
	vert, err := d.createShaderModule(cfg.VertexShader)
	if err != nil {
		return nil, fmt.Errorf("vertex shader: %w", err)
	}
	defer vk.DestroyShaderModule(d.handle, vert, nil)
	frag, err := d.createShaderModule(cfg.FragmentShader)
	if err != nil {
		return nil, fmt.Errorf("fragment shader: %w", err)
	}
	defer vk.DestroyShaderModule(d.handle, frag, nil)

	p := &Pipeline{dev: d}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(cfg.SetLayouts)),
		PSetLayouts:    cfg.SetLayouts,
	}
	if cfg.PushConstantSize > 0 {
		p.PushStages = vk.ShaderStageFlags(vk.ShaderStageVertexBit)
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: p.PushStages,
			Offset:     0,
			Size:       cfg.PushConstantSize,
		}}
	}
	if err := NewError(vk.CreatePipelineLayout(d.handle, &layoutInfo, nil, &p.Layout)); err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}

	bindings, attributes := vertexInput(cfg.Bindings)
	cull := vk.CullModeFlags(vk.CullModeNone)
	if cfg.CullBackFaces {
		cull = vk.CullModeFlags(vk.CullModeBackBit)
	}
	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}

	infos := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages: []vk.PipelineShaderStageCreateInfo{
			{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageVertexBit,
				Module: vert,
				PName:  "main\x00",
			},
			{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageFragmentBit,
				Module: frag,
				PName:  "main\x00",
			},
		},
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			LineWidth:   1.0,
			CullMode:    cull,
			FrontFace:   vk.FrontFaceCounterClockwise,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
		Layout:             p.Layout,
		RenderPass:         pass,
		BasePipelineHandle: vk.Pipeline(vk.NullHandle),
	}}

	pipelines := make([]vk.Pipeline, 1)
	if err := NewError(vk.CreateGraphicsPipelines(d.handle, vk.PipelineCache(vk.NullHandle),
		1, infos, nil, pipelines)); err != nil {
		vk.DestroyPipelineLayout(d.handle, p.Layout, nil)
		return nil, fmt.Errorf("create graphics pipeline: %w", err)
	}
	p.Handle = pipelines[0]
	return p, nil
}

func (p *Pipeline) Destroy() {
	vk.DestroyPipeline(p.dev.handle, p.Handle, nil)
	vk.DestroyPipelineLayout(p.dev.handle, p.Layout, nil)
}

func (d *Device) createShaderModule(code []byte) (vk.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		return nil, err
	}
	var module vk.ShaderModule
	if err := NewError(vk.CreateShaderModule(d.handle, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}, nil, &module)); err != nil {
		return nil, err
	}
	return module, nil
}

// spirvWords reinterprets a little endian SPIR-V binary as words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSPIRV, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

func vertexInput(in []VertexBinding) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription) {
	var (
		bindings   []vk.VertexInputBindingDescription
		attributes []vk.VertexInputAttributeDescription
		location   uint32
	)
	for i, b := range in {
		rate := vk.VertexInputRateVertex
		if b.PerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings = append(bindings, vk.VertexInputBindingDescription{
			Binding:   uint32(i),
			Stride:    b.Stride,
			InputRate: rate,
		})
		for _, a := range b.Attributes {
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Binding:  uint32(i),
				Location: location,
				Format:   a.Format,
				Offset:   a.Offset,
			})
			location++
		}
	}
	return bindings, attributes
}
