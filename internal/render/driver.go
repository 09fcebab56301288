package render

import (
	"unsafe"

	"github.com/vulkan-go/vulkan"
)

// MaxFramesInFlight is the number of frame slots pipelined between the CPU
// and the GPU.
const MaxFramesInFlight = 2

// QueueFamilies are the family indices of the graphics and present queues.
type QueueFamilies struct {
	Graphics uint32
	Present  uint32
}

// Shared reports whether one family serves both roles, in which case
// swapchain images can use exclusive sharing.
func (q QueueFamilies) Shared() bool {
	return q.Graphics == q.Present
}

type SurfaceSupport struct {
	Capabilities vulkan.SurfaceCapabilities
	Formats      []vulkan.SurfaceFormat
	PresentModes []vulkan.PresentMode
}

// Window is what the frame loop needs from the platform window.
type Window interface {
	FramebufferSize() (width, height int)
	IsResized() bool
	ClearResized()
}

// Driver is the device-level API surface the frame lifecycle drives: queues,
// swapchain, synchronization, buffers and command buffers. *Device
// implements it on top of Vulkan. Every blocking call waits without timeout.
type Driver interface {
	Families() QueueFamilies
	GraphicsQueue() vulkan.Queue
	PresentQueue() vulkan.Queue
	Surface() vulkan.Surface
	SurfaceSupport() (SurfaceSupport, error)
	MemoryProperties() vulkan.PhysicalDeviceMemoryProperties
	WaitIdle() error

	CreateSwapchain(info *vulkan.SwapchainCreateInfo) (vulkan.Swapchain, error)
	SwapchainImages(swapchain vulkan.Swapchain) ([]vulkan.Image, error)
	DestroySwapchain(swapchain vulkan.Swapchain)
	CreateImageView(info *vulkan.ImageViewCreateInfo) (vulkan.ImageView, error)
	DestroyImageView(view vulkan.ImageView)
	CreateFramebuffer(info *vulkan.FramebufferCreateInfo) (vulkan.Framebuffer, error)
	DestroyFramebuffer(framebuffer vulkan.Framebuffer)
	AcquireNextImage(swapchain vulkan.Swapchain, signal vulkan.Semaphore) (uint32, vulkan.Result)
	QueuePresent(queue vulkan.Queue, info *vulkan.PresentInfo) vulkan.Result

	CreateSemaphore() (vulkan.Semaphore, error)
	DestroySemaphore(semaphore vulkan.Semaphore)
	CreateFence(signaled bool) (vulkan.Fence, error)
	DestroyFence(fence vulkan.Fence)
	WaitForFence(fence vulkan.Fence) error
	ResetFence(fence vulkan.Fence) error

	CreateBuffer(info *vulkan.BufferCreateInfo) (vulkan.Buffer, error)
	DestroyBuffer(buffer vulkan.Buffer)
	BufferMemoryRequirements(buffer vulkan.Buffer) vulkan.MemoryRequirements
	AllocateMemory(info *vulkan.MemoryAllocateInfo) (vulkan.DeviceMemory, error)
	FreeMemory(memory vulkan.DeviceMemory)
	BindBufferMemory(buffer vulkan.Buffer, memory vulkan.DeviceMemory) error
	MapMemory(memory vulkan.DeviceMemory, size vulkan.DeviceSize) (unsafe.Pointer, error)
	UnmapMemory(memory vulkan.DeviceMemory)

	CreateCommandPool(family uint32) (vulkan.CommandPool, error)
	DestroyCommandPool(pool vulkan.CommandPool)
	AllocateCommandBuffers(pool vulkan.CommandPool, count int) ([]vulkan.CommandBuffer, error)
	FreeCommandBuffers(pool vulkan.CommandPool, buffers []vulkan.CommandBuffer)
	BeginCommandBuffer(cb vulkan.CommandBuffer, flags vulkan.CommandBufferUsageFlags) error
	EndCommandBuffer(cb vulkan.CommandBuffer) error
	ResetCommandBuffer(cb vulkan.CommandBuffer) error
	QueueSubmit(queue vulkan.Queue, info *vulkan.SubmitInfo, fence vulkan.Fence) error
	QueueWaitIdle(queue vulkan.Queue) error

	Recorder
}

// Recorder records commands into a command buffer in the recording state.
type Recorder interface {
	CmdCopyBuffer(cb vulkan.CommandBuffer, src, dst vulkan.Buffer, size vulkan.DeviceSize)
	CmdBeginRenderPass(cb vulkan.CommandBuffer, info *vulkan.RenderPassBeginInfo)
	CmdEndRenderPass(cb vulkan.CommandBuffer)
	CmdBindPipeline(cb vulkan.CommandBuffer, pipeline vulkan.Pipeline)
	CmdBindVertexBuffer(cb vulkan.CommandBuffer, buffer vulkan.Buffer)
	CmdBindIndexBuffer(cb vulkan.CommandBuffer, buffer vulkan.Buffer)
	CmdSetViewport(cb vulkan.CommandBuffer, viewport vulkan.Viewport)
	CmdSetScissor(cb vulkan.CommandBuffer, scissor vulkan.Rect2D)
	CmdBindDescriptorSet(cb vulkan.CommandBuffer, layout vulkan.PipelineLayout, set vulkan.DescriptorSet)
	CmdDrawIndexed(cb vulkan.CommandBuffer, indexCount uint32)
}
