package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"

	"zephyr/internal/mesh"
)

// Pipeline is the fixed rendering configuration: one single-subpass render
// pass, the uniform descriptor layout, and the graphics pipeline, plus one
// descriptor set per frame slot.
type Pipeline struct {
	device vulkan.Device

	RenderPass vulkan.RenderPass
	SetLayout  vulkan.DescriptorSetLayout
	Layout     vulkan.PipelineLayout
	Handle     vulkan.Pipeline
	Pool       vulkan.DescriptorPool
	Sets       []vulkan.DescriptorSet
}

// vertexInput describes mesh.Vertex at binding 0: position, normal and
// texture coordinate at locations 0, 1 and 2.
func vertexInput() (vulkan.VertexInputBindingDescription, []vulkan.VertexInputAttributeDescription) {
	binding := vulkan.VertexInputBindingDescription{
		Binding:   0,
		Stride:    uint32(mesh.VertexSize),
		InputRate: vulkan.VertexInputRateVertex,
	}
	attributes := []vulkan.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vulkan.FormatR32g32b32Sfloat, Offset: mesh.PositionOffset},
		{Location: 1, Binding: 0, Format: vulkan.FormatR32g32b32Sfloat, Offset: mesh.NormalOffset},
		{Location: 2, Binding: 0, Format: vulkan.FormatR32g32Sfloat, Offset: mesh.TexCoordOffset},
	}
	return binding, attributes
}

func newPipeline(device vulkan.Device, format vulkan.Format, vert, frag Shader) (*Pipeline, error) {
	p := &Pipeline{device: device}
	if err := p.createRenderPass(format); err != nil {
		return nil, err
	}
	if err := p.createSetLayout(); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createGraphicsPipeline(vert, frag); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) createRenderPass(format vulkan.Format) error {
	colorAttachment := vulkan.AttachmentDescription{
		Format:         format,
		Samples:        vulkan.SampleCount1Bit,
		LoadOp:         vulkan.AttachmentLoadOpClear,
		StoreOp:        vulkan.AttachmentStoreOpStore,
		StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
		StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
		InitialLayout:  vulkan.ImageLayoutUndefined,
		FinalLayout:    vulkan.ImageLayoutPresentSrc,
	}
	colorRef := vulkan.AttachmentReference{
		Attachment: 0,
		Layout:     vulkan.ImageLayoutColorAttachmentOptimal,
	}
	subpass := vulkan.SubpassDescription{
		PipelineBindPoint:    vulkan.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vulkan.AttachmentReference{colorRef},
	}
	// The layout transition has to wait for the acquire semaphore, which
	// is waited on at the color output stage.
	dependency := vulkan.SubpassDependency{
		SrcSubpass:    vulkan.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit),
	}
	createInfo := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vulkan.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vulkan.SubpassDependency{dependency},
	}
	return vkCheck(vulkan.CreateRenderPass(p.device, &createInfo, nil, &p.RenderPass), "create render pass")
}

func (p *Pipeline) createSetLayout() error {
	binding := vulkan.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vulkan.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vulkan.ShaderStageFlags(vulkan.ShaderStageVertexBit),
	}
	layoutInfo := vulkan.DescriptorSetLayoutCreateInfo{
		SType:        vulkan.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vulkan.DescriptorSetLayoutBinding{binding},
	}
	return vkCheck(vulkan.CreateDescriptorSetLayout(p.device, &layoutInfo, nil, &p.SetLayout), "create descriptor set layout")
}

func (p *Pipeline) createShaderModule(s Shader) (vulkan.ShaderModule, error) {
	createInfo := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(s.Code) * 4),
		PCode:    s.Code,
	}
	var module vulkan.ShaderModule
	if err := vkCheck(vulkan.CreateShaderModule(p.device, &createInfo, nil, &module), "create shader module"); err != nil {
		return vulkan.ShaderModule(vulkan.NullHandle), errors.Wrapf(err, "shader %s", s.Source)
	}
	return module, nil
}

func (p *Pipeline) createGraphicsPipeline(vert, frag Shader) error {
	vertModule, err := p.createShaderModule(vert)
	if err != nil {
		return err
	}
	defer vulkan.DestroyShaderModule(p.device, vertModule, nil)
	fragModule, err := p.createShaderModule(frag)
	if err != nil {
		return err
	}
	defer vulkan.DestroyShaderModule(p.device, fragModule, nil)

	stages := []vulkan.PipelineShaderStageCreateInfo{
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageVertexBit,
			Module: vertModule,
			PName:  vert.Entry + "\x00",
		},
		{
			SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vulkan.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  frag.Entry + "\x00",
		},
	}

	binding, attributes := vertexInput()
	vertexInputState := vulkan.PipelineVertexInputStateCreateInfo{
		SType:                           vulkan.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vulkan.VertexInputBindingDescription{binding},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}
	inputAssembly := vulkan.PipelineInputAssemblyStateCreateInfo{
		SType:                  vulkan.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vulkan.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vulkan.False,
	}
	// Viewport and scissor are dynamic so the pipeline survives swapchain
	// recreation.
	viewportState := vulkan.PipelineViewportStateCreateInfo{
		SType:         vulkan.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	dynamicStates := []vulkan.DynamicState{vulkan.DynamicStateViewport, vulkan.DynamicStateScissor}
	dynamicState := vulkan.PipelineDynamicStateCreateInfo{
		SType:             vulkan.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}
	rasterizer := vulkan.PipelineRasterizationStateCreateInfo{
		SType:                   vulkan.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vulkan.False,
		RasterizerDiscardEnable: vulkan.False,
		PolygonMode:             vulkan.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vulkan.CullModeFlags(vulkan.CullModeBackBit),
		FrontFace:               vulkan.FrontFaceCounterClockwise,
		DepthBiasEnable:         vulkan.False,
	}
	multisampling := vulkan.PipelineMultisampleStateCreateInfo{
		SType:                vulkan.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vulkan.SampleCount1Bit,
	}
	colorBlendAttachment := vulkan.PipelineColorBlendAttachmentState{
		ColorWriteMask: vulkan.ColorComponentFlags(vulkan.ColorComponentRBit | vulkan.ColorComponentGBit | vulkan.ColorComponentBBit | vulkan.ColorComponentABit),
		BlendEnable:    vulkan.False,
	}
	colorBlending := vulkan.PipelineColorBlendStateCreateInfo{
		SType:           vulkan.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vulkan.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	layoutInfo := vulkan.PipelineLayoutCreateInfo{
		SType:          vulkan.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vulkan.DescriptorSetLayout{p.SetLayout},
	}
	if err := vkCheck(vulkan.CreatePipelineLayout(p.device, &layoutInfo, nil, &p.Layout), "create pipeline layout"); err != nil {
		return err
	}

	pipelineInfo := vulkan.GraphicsPipelineCreateInfo{
		SType:               vulkan.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PColorBlendState:    &colorBlending,
		PDynamicState:       &dynamicState,
		Layout:              p.Layout,
		RenderPass:          p.RenderPass,
		Subpass:             0,
	}
	pipelines := make([]vulkan.Pipeline, 1)
	if err := vkCheck(vulkan.CreateGraphicsPipelines(p.device, vulkan.PipelineCache(vulkan.NullHandle), 1, []vulkan.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines), "create graphics pipeline"); err != nil {
		return err
	}
	p.Handle = pipelines[0]
	return nil
}

// BindUniforms allocates one descriptor set per uniform region and points
// binding 0 of each at its region.
func (p *Pipeline) BindUniforms(uniforms *UniformSet) error {
	count := uint32(len(uniforms.Regions))
	if count == 0 {
		return errors.AssertionFailedf("no uniform regions to bind")
	}
	poolInfo := vulkan.DescriptorPoolCreateInfo{
		SType:         vulkan.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       count,
		PoolSizeCount: 1,
		PPoolSizes: []vulkan.DescriptorPoolSize{{
			Type:            vulkan.DescriptorTypeUniformBuffer,
			DescriptorCount: count,
		}},
	}
	if err := vkCheck(vulkan.CreateDescriptorPool(p.device, &poolInfo, nil, &p.Pool), "create descriptor pool"); err != nil {
		return err
	}

	layouts := make([]vulkan.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = p.SetLayout
	}
	allocInfo := vulkan.DescriptorSetAllocateInfo{
		SType:              vulkan.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Pool,
		DescriptorSetCount: count,
		PSetLayouts:        layouts,
	}
	p.Sets = make([]vulkan.DescriptorSet, count)
	if err := vkCheck(vulkan.AllocateDescriptorSets(p.device, &allocInfo, &p.Sets[0]), "allocate descriptor sets"); err != nil {
		p.Sets = nil
		return err
	}

	for i, region := range uniforms.Regions {
		write := vulkan.WriteDescriptorSet{
			SType:           vulkan.StructureTypeWriteDescriptorSet,
			DstSet:          p.Sets[i],
			DstBinding:      0,
			DstArrayElement: 0,
			DescriptorType:  vulkan.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			PBufferInfo: []vulkan.DescriptorBufferInfo{{
				Buffer: region.Buffer,
				Offset: 0,
				Range:  region.Size,
			}},
		}
		vulkan.UpdateDescriptorSets(p.device, 1, []vulkan.WriteDescriptorSet{write}, 0, nil)
	}
	return nil
}

// Destroy releases the descriptor pool (and with it the sets), the
// pipeline, its layout, the set layout and the render pass.
func (p *Pipeline) Destroy() {
	if p.device == vulkan.Device(vulkan.NullHandle) {
		return
	}
	if p.Pool != vulkan.DescriptorPool(vulkan.NullHandle) {
		vulkan.DestroyDescriptorPool(p.device, p.Pool, nil)
		p.Pool = vulkan.DescriptorPool(vulkan.NullHandle)
		p.Sets = nil
	}
	if p.Handle != vulkan.Pipeline(vulkan.NullHandle) {
		vulkan.DestroyPipeline(p.device, p.Handle, nil)
		p.Handle = vulkan.Pipeline(vulkan.NullHandle)
	}
	if p.Layout != vulkan.PipelineLayout(vulkan.NullHandle) {
		vulkan.DestroyPipelineLayout(p.device, p.Layout, nil)
		p.Layout = vulkan.PipelineLayout(vulkan.NullHandle)
	}
	if p.SetLayout != vulkan.DescriptorSetLayout(vulkan.NullHandle) {
		vulkan.DestroyDescriptorSetLayout(p.device, p.SetLayout, nil)
		p.SetLayout = vulkan.DescriptorSetLayout(vulkan.NullHandle)
	}
	if p.RenderPass != vulkan.RenderPass(vulkan.NullHandle) {
		vulkan.DestroyRenderPass(p.device, p.RenderPass, nil)
		p.RenderPass = vulkan.RenderPass(vulkan.NullHandle)
	}
}
