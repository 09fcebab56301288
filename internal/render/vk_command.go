package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"
)

// CommandPool allocates command buffers for the graphics family; buffers can
// be reset individually.
type CommandPool struct {
	drv    Driver
	Handle vulkan.CommandPool
	queue  vulkan.Queue
}

func NewCommandPool(drv Driver) (*CommandPool, error) {
	handle, err := drv.CreateCommandPool(drv.Families().Graphics)
	if err != nil {
		return nil, err
	}
	return &CommandPool{drv: drv, Handle: handle, queue: drv.GraphicsQueue()}, nil
}

func (p *CommandPool) Allocate(count int) ([]vulkan.CommandBuffer, error) {
	return p.drv.AllocateCommandBuffers(p.Handle, count)
}

func (p *CommandPool) Free(buffers []vulkan.CommandBuffer) {
	p.drv.FreeCommandBuffers(p.Handle, buffers)
}

// RunOnce records a one-shot command buffer with record, submits it without
// a fence and blocks until the graphics queue is idle.
func (p *CommandPool) RunOnce(record func(cb vulkan.CommandBuffer)) error {
	buffers, err := p.Allocate(1)
	if err != nil {
		return err
	}
	defer p.Free(buffers)
	cb := buffers[0]

	if err := p.drv.BeginCommandBuffer(cb, vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit)); err != nil {
		return err
	}
	record(cb)
	if err := p.drv.EndCommandBuffer(cb); err != nil {
		return err
	}

	submit := vulkan.SubmitInfo{
		SType:              vulkan.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    buffers,
	}
	if err := p.drv.QueueSubmit(p.queue, &submit, vulkan.Fence(vulkan.NullHandle)); err != nil {
		return errors.Wrap(err, "submit one-shot commands")
	}
	return p.drv.QueueWaitIdle(p.queue)
}

func (p *CommandPool) Destroy() {
	if p.Handle != vulkan.CommandPool(vulkan.NullHandle) {
		p.drv.DestroyCommandPool(p.Handle)
		p.Handle = vulkan.CommandPool(vulkan.NullHandle)
	}
}
