package render

import (
	"unsafe"

	"github.com/vulkan-go/vulkan"
)

var _ Driver = (*Device)(nil)

func (d *Device) Families() QueueFamilies     { return d.families }
func (d *Device) GraphicsQueue() vulkan.Queue { return d.graphics }
func (d *Device) PresentQueue() vulkan.Queue  { return d.present }
func (d *Device) Surface() vulkan.Surface     { return d.surface }

func (d *Device) MemoryProperties() vulkan.PhysicalDeviceMemoryProperties {
	return d.memory
}

// SurfaceSupport queries the surface capabilities, formats and present
// modes. It is re-run on every swapchain (re)creation since the extent
// follows the window.
func (d *Device) SurfaceSupport() (SurfaceSupport, error) {
	var s SurfaceSupport
	if err := vkCheck(vulkan.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &s.Capabilities), "query surface capabilities"); err != nil {
		return s, err
	}
	s.Capabilities.Deref()
	s.Capabilities.CurrentExtent.Deref()
	s.Capabilities.MinImageExtent.Deref()
	s.Capabilities.MaxImageExtent.Deref()

	var count uint32
	if err := vkCheck(vulkan.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil), "query surface formats"); err != nil {
		return s, err
	}
	if count > 0 {
		s.Formats = make([]vulkan.SurfaceFormat, count)
		if err := vkCheck(vulkan.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, s.Formats), "query surface formats list"); err != nil {
			return s, err
		}
		for i := range s.Formats {
			s.Formats[i].Deref()
		}
	}

	count = 0
	if err := vkCheck(vulkan.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, nil), "query present modes"); err != nil {
		return s, err
	}
	if count > 0 {
		s.PresentModes = make([]vulkan.PresentMode, count)
		if err := vkCheck(vulkan.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &count, s.PresentModes), "query present modes list"); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (d *Device) WaitIdle() error {
	return vkCheck(vulkan.DeviceWaitIdle(d.handle), "device wait idle")
}

func (d *Device) CreateSwapchain(info *vulkan.SwapchainCreateInfo) (vulkan.Swapchain, error) {
	var sc vulkan.Swapchain
	if err := vkCheck(vulkan.CreateSwapchain(d.handle, info, nil, &sc), "create swapchain"); err != nil {
		return vulkan.NullSwapchain, err
	}
	return sc, nil
}

func (d *Device) SwapchainImages(swapchain vulkan.Swapchain) ([]vulkan.Image, error) {
	var count uint32
	if err := vkCheck(vulkan.GetSwapchainImages(d.handle, swapchain, &count, nil), "get swapchain image count"); err != nil {
		return nil, err
	}
	images := make([]vulkan.Image, count)
	if err := vkCheck(vulkan.GetSwapchainImages(d.handle, swapchain, &count, images), "get swapchain images"); err != nil {
		return nil, err
	}
	return images, nil
}

func (d *Device) DestroySwapchain(swapchain vulkan.Swapchain) {
	vulkan.DestroySwapchain(d.handle, swapchain, nil)
}

func (d *Device) CreateImageView(info *vulkan.ImageViewCreateInfo) (vulkan.ImageView, error) {
	var view vulkan.ImageView
	if err := vkCheck(vulkan.CreateImageView(d.handle, info, nil, &view), "create image view"); err != nil {
		return vulkan.NullImageView, err
	}
	return view, nil
}

func (d *Device) DestroyImageView(view vulkan.ImageView) {
	vulkan.DestroyImageView(d.handle, view, nil)
}

func (d *Device) CreateFramebuffer(info *vulkan.FramebufferCreateInfo) (vulkan.Framebuffer, error) {
	var fb vulkan.Framebuffer
	if err := vkCheck(vulkan.CreateFramebuffer(d.handle, info, nil, &fb), "create framebuffer"); err != nil {
		return vulkan.Framebuffer(vulkan.NullHandle), err
	}
	return fb, nil
}

func (d *Device) DestroyFramebuffer(framebuffer vulkan.Framebuffer) {
	vulkan.DestroyFramebuffer(d.handle, framebuffer, nil)
}

func (d *Device) AcquireNextImage(swapchain vulkan.Swapchain, signal vulkan.Semaphore) (uint32, vulkan.Result) {
	var index uint32
	res := vulkan.AcquireNextImage(d.handle, swapchain, vulkan.MaxUint64, signal, vulkan.Fence(vulkan.NullHandle), &index)
	return index, res
}

func (d *Device) QueuePresent(queue vulkan.Queue, info *vulkan.PresentInfo) vulkan.Result {
	return vulkan.QueuePresent(queue, info)
}

func (d *Device) CreateSemaphore() (vulkan.Semaphore, error) {
	info := vulkan.SemaphoreCreateInfo{SType: vulkan.StructureTypeSemaphoreCreateInfo}
	var sem vulkan.Semaphore
	if err := vkCheck(vulkan.CreateSemaphore(d.handle, &info, nil, &sem), "create semaphore"); err != nil {
		return vulkan.Semaphore(vulkan.NullHandle), err
	}
	return sem, nil
}

func (d *Device) DestroySemaphore(semaphore vulkan.Semaphore) {
	vulkan.DestroySemaphore(d.handle, semaphore, nil)
}

func (d *Device) CreateFence(signaled bool) (vulkan.Fence, error) {
	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fence vulkan.Fence
	if err := vkCheck(vulkan.CreateFence(d.handle, &info, nil, &fence), "create fence"); err != nil {
		return vulkan.Fence(vulkan.NullHandle), err
	}
	return fence, nil
}

func (d *Device) DestroyFence(fence vulkan.Fence) {
	vulkan.DestroyFence(d.handle, fence, nil)
}

func (d *Device) WaitForFence(fence vulkan.Fence) error {
	return vkCheck(vulkan.WaitForFences(d.handle, 1, []vulkan.Fence{fence}, vulkan.True, vulkan.MaxUint64), "wait for fence")
}

func (d *Device) ResetFence(fence vulkan.Fence) error {
	return vkCheck(vulkan.ResetFences(d.handle, 1, []vulkan.Fence{fence}), "reset fence")
}

func (d *Device) CreateBuffer(info *vulkan.BufferCreateInfo) (vulkan.Buffer, error) {
	var buf vulkan.Buffer
	if err := vkCheck(vulkan.CreateBuffer(d.handle, info, nil, &buf), "create buffer"); err != nil {
		return vulkan.Buffer(vulkan.NullHandle), err
	}
	return buf, nil
}

func (d *Device) DestroyBuffer(buffer vulkan.Buffer) {
	vulkan.DestroyBuffer(d.handle, buffer, nil)
}

func (d *Device) BufferMemoryRequirements(buffer vulkan.Buffer) vulkan.MemoryRequirements {
	var req vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(d.handle, buffer, &req)
	req.Deref()
	return req
}

func (d *Device) AllocateMemory(info *vulkan.MemoryAllocateInfo) (vulkan.DeviceMemory, error) {
	var mem vulkan.DeviceMemory
	if err := vkCheck(vulkan.AllocateMemory(d.handle, info, nil, &mem), "allocate memory"); err != nil {
		return vulkan.DeviceMemory(vulkan.NullHandle), err
	}
	return mem, nil
}

func (d *Device) FreeMemory(memory vulkan.DeviceMemory) {
	vulkan.FreeMemory(d.handle, memory, nil)
}

func (d *Device) BindBufferMemory(buffer vulkan.Buffer, memory vulkan.DeviceMemory) error {
	return vkCheck(vulkan.BindBufferMemory(d.handle, buffer, memory, 0), "bind buffer memory")
}

func (d *Device) MapMemory(memory vulkan.DeviceMemory, size vulkan.DeviceSize) (unsafe.Pointer, error) {
	var data unsafe.Pointer
	if err := vkCheck(vulkan.MapMemory(d.handle, memory, 0, size, 0, &data), "map memory"); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *Device) UnmapMemory(memory vulkan.DeviceMemory) {
	vulkan.UnmapMemory(d.handle, memory)
}

func (d *Device) CreateCommandPool(family uint32) (vulkan.CommandPool, error) {
	info := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		Flags:            vulkan.CommandPoolCreateFlags(vulkan.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}
	var pool vulkan.CommandPool
	if err := vkCheck(vulkan.CreateCommandPool(d.handle, &info, nil, &pool), "create command pool"); err != nil {
		return vulkan.CommandPool(vulkan.NullHandle), err
	}
	return pool, nil
}

func (d *Device) DestroyCommandPool(pool vulkan.CommandPool) {
	vulkan.DestroyCommandPool(d.handle, pool, nil)
}

func (d *Device) AllocateCommandBuffers(pool vulkan.CommandPool, count int) ([]vulkan.CommandBuffer, error) {
	info := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	buffers := make([]vulkan.CommandBuffer, count)
	if err := vkCheck(vulkan.AllocateCommandBuffers(d.handle, &info, buffers), "allocate command buffers"); err != nil {
		return nil, err
	}
	return buffers, nil
}

func (d *Device) FreeCommandBuffers(pool vulkan.CommandPool, buffers []vulkan.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	vulkan.FreeCommandBuffers(d.handle, pool, uint32(len(buffers)), buffers)
}

func (d *Device) BeginCommandBuffer(cb vulkan.CommandBuffer, flags vulkan.CommandBufferUsageFlags) error {
	info := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	return vkCheck(vulkan.BeginCommandBuffer(cb, &info), "begin command buffer")
}

func (d *Device) EndCommandBuffer(cb vulkan.CommandBuffer) error {
	return vkCheck(vulkan.EndCommandBuffer(cb), "end command buffer")
}

func (d *Device) ResetCommandBuffer(cb vulkan.CommandBuffer) error {
	return vkCheck(vulkan.ResetCommandBuffer(cb, 0), "reset command buffer")
}

func (d *Device) QueueSubmit(queue vulkan.Queue, info *vulkan.SubmitInfo, fence vulkan.Fence) error {
	return vkCheck(vulkan.QueueSubmit(queue, 1, []vulkan.SubmitInfo{*info}, fence), "queue submit")
}

func (d *Device) QueueWaitIdle(queue vulkan.Queue) error {
	return vkCheck(vulkan.QueueWaitIdle(queue), "queue wait idle")
}

func (d *Device) CmdCopyBuffer(cb vulkan.CommandBuffer, src, dst vulkan.Buffer, size vulkan.DeviceSize) {
	vulkan.CmdCopyBuffer(cb, src, dst, 1, []vulkan.BufferCopy{{Size: size}})
}

func (d *Device) CmdBeginRenderPass(cb vulkan.CommandBuffer, info *vulkan.RenderPassBeginInfo) {
	vulkan.CmdBeginRenderPass(cb, info, vulkan.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(cb vulkan.CommandBuffer) {
	vulkan.CmdEndRenderPass(cb)
}

func (d *Device) CmdBindPipeline(cb vulkan.CommandBuffer, pipeline vulkan.Pipeline) {
	vulkan.CmdBindPipeline(cb, vulkan.PipelineBindPointGraphics, pipeline)
}

func (d *Device) CmdBindVertexBuffer(cb vulkan.CommandBuffer, buffer vulkan.Buffer) {
	vulkan.CmdBindVertexBuffers(cb, 0, 1, []vulkan.Buffer{buffer}, []vulkan.DeviceSize{0})
}

func (d *Device) CmdBindIndexBuffer(cb vulkan.CommandBuffer, buffer vulkan.Buffer) {
	vulkan.CmdBindIndexBuffer(cb, buffer, 0, vulkan.IndexTypeUint32)
}

func (d *Device) CmdSetViewport(cb vulkan.CommandBuffer, viewport vulkan.Viewport) {
	vulkan.CmdSetViewport(cb, 0, 1, []vulkan.Viewport{viewport})
}

func (d *Device) CmdSetScissor(cb vulkan.CommandBuffer, scissor vulkan.Rect2D) {
	vulkan.CmdSetScissor(cb, 0, 1, []vulkan.Rect2D{scissor})
}

func (d *Device) CmdBindDescriptorSet(cb vulkan.CommandBuffer, layout vulkan.PipelineLayout, set vulkan.DescriptorSet) {
	vulkan.CmdBindDescriptorSets(cb, vulkan.PipelineBindPointGraphics, layout, 0, 1, []vulkan.DescriptorSet{set}, 0, nil)
}

func (d *Device) CmdDrawIndexed(cb vulkan.CommandBuffer, indexCount uint32) {
	vulkan.CmdDrawIndexed(cb, indexCount, 1, 0, 0, 0)
}
