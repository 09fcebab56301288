package render

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"
)

type fakeObject struct {
	kind string
	id   int

	// fences
	signaled bool
	pending  bool

	// semaphores
	semSignaled bool

	// buffers and memory
	size   vulkan.DeviceSize
	data   []byte
	memory *fakeObject
	mapped bool

	// command buffers
	ops         []func()
	draws       int
	inFlight    *fakeObject
	recording   bool
	descriptors []vulkan.DescriptorSet

	// swapchains
	images    []vulkan.Image
	nextImage uint32
}

type submitRecord struct {
	waits   []vulkan.Semaphore
	signals []vulkan.Semaphore
	fence   vulkan.Fence
	cb      vulkan.CommandBuffer
	sets    []vulkan.DescriptorSet
}

// fakeDriver is an in-memory Driver. Submitted work "completes" when its
// fence is waited or the device or queue is waited idle. Misuse that a real
// driver would turn into undefined behavior is collected in violations.
type fakeDriver struct {
	families   QueueFamilies
	support    SurfaceSupport
	memory     vulkan.PhysicalDeviceMemoryProperties
	imageCount int

	graphics vulkan.Queue
	present  vulkan.Queue
	surface  vulkan.Surface

	live       map[unsafe.Pointer]*fakeObject
	nextID     int
	events     []string
	violations []string
	fail       map[string]bool

	swapchainInfos []vulkan.SwapchainCreateInfo
	acquireResults map[int]vulkan.Result
	presentResults map[int]vulkan.Result
	acquireCalls   int
	presentCalls   int
	submits        []submitRecord
	presents       []vulkan.PresentInfo
	draws          int
}

var _ Driver = (*fakeDriver)(nil)

func newFakeDriver() *fakeDriver {
	f := &fakeDriver{
		families:       QueueFamilies{Graphics: 0, Present: 0},
		imageCount:     3,
		live:           make(map[unsafe.Pointer]*fakeObject),
		fail:           make(map[string]bool),
		acquireResults: make(map[int]vulkan.Result),
		presentResults: make(map[int]vulkan.Result),
	}
	f.support = SurfaceSupport{
		Capabilities: vulkan.SurfaceCapabilities{
			MinImageCount:    2,
			MaxImageCount:    0,
			CurrentExtent:    vulkan.Extent2D{Width: 800, Height: 600},
			MinImageExtent:   vulkan.Extent2D{Width: 1, Height: 1},
			MaxImageExtent:   vulkan.Extent2D{Width: 4096, Height: 4096},
			CurrentTransform: vulkan.SurfaceTransformIdentityBit,
		},
		Formats: []vulkan.SurfaceFormat{
			{Format: vulkan.FormatB8g8r8a8Unorm, ColorSpace: vulkan.ColorSpaceSrgbNonlinear},
			{Format: vulkan.FormatB8g8r8a8Srgb, ColorSpace: vulkan.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []vulkan.PresentMode{vulkan.PresentModeFifo, vulkan.PresentModeMailbox},
	}
	f.memory.MemoryTypeCount = 2
	f.memory.MemoryTypes[0].PropertyFlags = vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyDeviceLocalBit)
	f.memory.MemoryTypes[1].PropertyFlags = vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCoherentBit)

	f.graphics = vulkan.Queue(f.untracked("queue"))
	f.present = f.graphics
	f.surface = vulkan.Surface(f.untracked("surface"))
	return f
}

// untracked returns a handle that the code under test never destroys.
func (f *fakeDriver) untracked(kind string) unsafe.Pointer {
	f.nextID++
	return unsafe.Pointer(&fakeObject{kind: kind, id: f.nextID})
}

func (f *fakeDriver) create(kind string) (*fakeObject, unsafe.Pointer, error) {
	if f.fail[kind] {
		return nil, nil, errors.Newf("injected %s failure", kind)
	}
	f.nextID++
	o := &fakeObject{kind: kind, id: f.nextID}
	p := unsafe.Pointer(o)
	f.live[p] = o
	return o, p, nil
}

func (f *fakeDriver) get(p unsafe.Pointer, kind string) *fakeObject {
	if p == nil {
		return nil
	}
	o, ok := f.live[p]
	if !ok {
		f.violate("use of dead or unknown %s", kind)
		return nil
	}
	if o.kind != kind {
		f.violate("handle is a %s, used as %s", o.kind, kind)
	}
	return o
}

func (f *fakeDriver) destroy(p unsafe.Pointer, kind string) {
	if p == nil {
		return
	}
	if f.get(p, kind) == nil {
		return
	}
	delete(f.live, p)
	f.events = append(f.events, "destroy:"+kind)
}

func (f *fakeDriver) violate(format string, args ...interface{}) {
	f.violations = append(f.violations, fmt.Sprintf(format, args...))
}

func (f *fakeDriver) liveCount(kind string) int {
	n := 0
	for _, o := range f.live {
		if o.kind == kind {
			n++
		}
	}
	return n
}

func (f *fakeDriver) completeAll() {
	for _, o := range f.live {
		if o.kind == "fence" && o.pending {
			o.pending, o.signaled = false, true
		}
	}
}

func (f *fakeDriver) Families() QueueFamilies     { return f.families }
func (f *fakeDriver) GraphicsQueue() vulkan.Queue { return f.graphics }
func (f *fakeDriver) PresentQueue() vulkan.Queue  { return f.present }
func (f *fakeDriver) Surface() vulkan.Surface     { return f.surface }

func (f *fakeDriver) SurfaceSupport() (SurfaceSupport, error) {
	if f.fail["surface"] {
		return SurfaceSupport{}, errors.New("injected surface failure")
	}
	return f.support, nil
}

func (f *fakeDriver) MemoryProperties() vulkan.PhysicalDeviceMemoryProperties { return f.memory }

func (f *fakeDriver) WaitIdle() error {
	f.events = append(f.events, "waitidle")
	f.completeAll()
	return nil
}

func (f *fakeDriver) CreateSwapchain(info *vulkan.SwapchainCreateInfo) (vulkan.Swapchain, error) {
	o, p, err := f.create("swapchain")
	if err != nil {
		return vulkan.NullSwapchain, err
	}
	if info.OldSwapchain != vulkan.NullSwapchain {
		f.get(unsafe.Pointer(info.OldSwapchain), "swapchain")
	}
	f.swapchainInfos = append(f.swapchainInfos, *info)
	for i := 0; i < f.imageCount; i++ {
		o.images = append(o.images, vulkan.Image(f.untracked("image")))
	}
	return vulkan.Swapchain(p), nil
}

func (f *fakeDriver) SwapchainImages(swapchain vulkan.Swapchain) ([]vulkan.Image, error) {
	o := f.get(unsafe.Pointer(swapchain), "swapchain")
	if o == nil {
		return nil, errors.New("unknown swapchain")
	}
	return append([]vulkan.Image(nil), o.images...), nil
}

func (f *fakeDriver) DestroySwapchain(swapchain vulkan.Swapchain) {
	f.destroy(unsafe.Pointer(swapchain), "swapchain")
}

func (f *fakeDriver) CreateImageView(info *vulkan.ImageViewCreateInfo) (vulkan.ImageView, error) {
	_, p, err := f.create("imageview")
	if err != nil {
		return vulkan.NullImageView, err
	}
	return vulkan.ImageView(p), nil
}

func (f *fakeDriver) DestroyImageView(view vulkan.ImageView) {
	f.destroy(unsafe.Pointer(view), "imageview")
}

func (f *fakeDriver) CreateFramebuffer(info *vulkan.FramebufferCreateInfo) (vulkan.Framebuffer, error) {
	for _, v := range info.PAttachments {
		f.get(unsafe.Pointer(v), "imageview")
	}
	_, p, err := f.create("framebuffer")
	if err != nil {
		return vulkan.Framebuffer(vulkan.NullHandle), err
	}
	return vulkan.Framebuffer(p), nil
}

func (f *fakeDriver) DestroyFramebuffer(framebuffer vulkan.Framebuffer) {
	f.destroy(unsafe.Pointer(framebuffer), "framebuffer")
}

func (f *fakeDriver) AcquireNextImage(swapchain vulkan.Swapchain, signal vulkan.Semaphore) (uint32, vulkan.Result) {
	f.acquireCalls++
	res, ok := f.acquireResults[f.acquireCalls]
	if !ok {
		res = vulkan.Success
	}
	sc := f.get(unsafe.Pointer(swapchain), "swapchain")
	if sc == nil || (res != vulkan.Success && res != vulkan.Suboptimal) {
		return 0, res
	}
	sem := f.get(unsafe.Pointer(signal), "semaphore")
	if sem != nil {
		if sem.semSignaled {
			f.violate("acquire signals semaphore %d that is already signaled", sem.id)
		}
		sem.semSignaled = true
	}
	index := sc.nextImage
	sc.nextImage = (sc.nextImage + 1) % uint32(len(sc.images))
	return index, res
}

func (f *fakeDriver) QueuePresent(queue vulkan.Queue, info *vulkan.PresentInfo) vulkan.Result {
	f.presentCalls++
	for _, s := range info.PWaitSemaphores {
		sem := f.get(unsafe.Pointer(s), "semaphore")
		if sem != nil {
			if !sem.semSignaled {
				f.violate("present waits on unsignaled semaphore %d", sem.id)
			}
			sem.semSignaled = false
		}
	}
	for _, sc := range info.PSwapchains {
		f.get(unsafe.Pointer(sc), "swapchain")
	}
	f.presents = append(f.presents, *info)
	if res, ok := f.presentResults[f.presentCalls]; ok {
		return res
	}
	return vulkan.Success
}

func (f *fakeDriver) CreateSemaphore() (vulkan.Semaphore, error) {
	_, p, err := f.create("semaphore")
	if err != nil {
		return vulkan.Semaphore(vulkan.NullHandle), err
	}
	return vulkan.Semaphore(p), nil
}

func (f *fakeDriver) DestroySemaphore(semaphore vulkan.Semaphore) {
	f.destroy(unsafe.Pointer(semaphore), "semaphore")
}

func (f *fakeDriver) CreateFence(signaled bool) (vulkan.Fence, error) {
	o, p, err := f.create("fence")
	if err != nil {
		return vulkan.Fence(vulkan.NullHandle), err
	}
	o.signaled = signaled
	return vulkan.Fence(p), nil
}

func (f *fakeDriver) DestroyFence(fence vulkan.Fence) {
	if o := f.get(unsafe.Pointer(fence), "fence"); o != nil && o.pending {
		f.violate("fence %d destroyed while in flight", o.id)
	}
	f.destroy(unsafe.Pointer(fence), "fence")
}

func (f *fakeDriver) WaitForFence(fence vulkan.Fence) error {
	o := f.get(unsafe.Pointer(fence), "fence")
	if o == nil {
		return errors.New("unknown fence")
	}
	switch {
	case o.pending:
		o.pending, o.signaled = false, true
	case !o.signaled:
		f.violate("wait on fence %d that nothing will signal", o.id)
	}
	return nil
}

func (f *fakeDriver) ResetFence(fence vulkan.Fence) error {
	o := f.get(unsafe.Pointer(fence), "fence")
	if o == nil {
		return errors.New("unknown fence")
	}
	if o.pending {
		f.violate("reset of fence %d while in flight", o.id)
	}
	o.signaled = false
	return nil
}

func (f *fakeDriver) CreateBuffer(info *vulkan.BufferCreateInfo) (vulkan.Buffer, error) {
	o, p, err := f.create("buffer")
	if err != nil {
		return vulkan.Buffer(vulkan.NullHandle), err
	}
	o.size = info.Size
	return vulkan.Buffer(p), nil
}

func (f *fakeDriver) DestroyBuffer(buffer vulkan.Buffer) {
	f.destroy(unsafe.Pointer(buffer), "buffer")
}

func (f *fakeDriver) BufferMemoryRequirements(buffer vulkan.Buffer) vulkan.MemoryRequirements {
	o := f.get(unsafe.Pointer(buffer), "buffer")
	if o == nil {
		return vulkan.MemoryRequirements{}
	}
	return vulkan.MemoryRequirements{Size: o.size, Alignment: 4, MemoryTypeBits: 0b11}
}

func (f *fakeDriver) AllocateMemory(info *vulkan.MemoryAllocateInfo) (vulkan.DeviceMemory, error) {
	o, p, err := f.create("memory")
	if err != nil {
		return vulkan.DeviceMemory(vulkan.NullHandle), err
	}
	o.size = info.AllocationSize
	o.data = make([]byte, info.AllocationSize)
	return vulkan.DeviceMemory(p), nil
}

func (f *fakeDriver) FreeMemory(memory vulkan.DeviceMemory) {
	if o := f.get(unsafe.Pointer(memory), "memory"); o != nil && o.mapped {
		o.mapped = false
	}
	f.destroy(unsafe.Pointer(memory), "memory")
}

func (f *fakeDriver) BindBufferMemory(buffer vulkan.Buffer, memory vulkan.DeviceMemory) error {
	b := f.get(unsafe.Pointer(buffer), "buffer")
	m := f.get(unsafe.Pointer(memory), "memory")
	if b == nil || m == nil {
		return errors.New("bind of unknown buffer or memory")
	}
	b.memory = m
	return nil
}

func (f *fakeDriver) MapMemory(memory vulkan.DeviceMemory, size vulkan.DeviceSize) (unsafe.Pointer, error) {
	m := f.get(unsafe.Pointer(memory), "memory")
	if m == nil {
		return nil, errors.New("map of unknown memory")
	}
	if m.mapped {
		f.violate("memory %d mapped twice", m.id)
	}
	if size > m.size {
		return nil, errors.Newf("map of %d bytes from %d byte allocation", size, m.size)
	}
	m.mapped = true
	return unsafe.Pointer(&m.data[0]), nil
}

func (f *fakeDriver) UnmapMemory(memory vulkan.DeviceMemory) {
	if m := f.get(unsafe.Pointer(memory), "memory"); m != nil {
		m.mapped = false
	}
}

func (f *fakeDriver) CreateCommandPool(family uint32) (vulkan.CommandPool, error) {
	_, p, err := f.create("commandpool")
	if err != nil {
		return vulkan.CommandPool(vulkan.NullHandle), err
	}
	return vulkan.CommandPool(p), nil
}

func (f *fakeDriver) DestroyCommandPool(pool vulkan.CommandPool) {
	f.destroy(unsafe.Pointer(pool), "commandpool")
}

func (f *fakeDriver) AllocateCommandBuffers(pool vulkan.CommandPool, count int) ([]vulkan.CommandBuffer, error) {
	f.get(unsafe.Pointer(pool), "commandpool")
	out := make([]vulkan.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		_, p, err := f.create("commandbuffer")
		if err != nil {
			f.FreeCommandBuffers(pool, out)
			return nil, err
		}
		out = append(out, vulkan.CommandBuffer(p))
	}
	return out, nil
}

func (f *fakeDriver) FreeCommandBuffers(pool vulkan.CommandPool, buffers []vulkan.CommandBuffer) {
	for _, cb := range buffers {
		if o := f.get(unsafe.Pointer(cb), "commandbuffer"); o != nil && o.inFlight != nil && o.inFlight.pending {
			f.violate("command buffer %d freed while in flight", o.id)
		}
		f.destroy(unsafe.Pointer(cb), "commandbuffer")
	}
}

func (f *fakeDriver) cb(cb vulkan.CommandBuffer) *fakeObject {
	return f.get(unsafe.Pointer(cb), "commandbuffer")
}

func (f *fakeDriver) checkReusable(o *fakeObject, op string) {
	if o.inFlight != nil && o.inFlight.pending {
		f.violate("%s of command buffer %d while its fence is in flight", op, o.id)
	}
}

func (f *fakeDriver) BeginCommandBuffer(cb vulkan.CommandBuffer, flags vulkan.CommandBufferUsageFlags) error {
	o := f.cb(cb)
	if o == nil {
		return errors.New("unknown command buffer")
	}
	f.checkReusable(o, "begin")
	o.ops, o.draws, o.descriptors, o.recording = nil, 0, nil, true
	return nil
}

func (f *fakeDriver) EndCommandBuffer(cb vulkan.CommandBuffer) error {
	o := f.cb(cb)
	if o == nil {
		return errors.New("unknown command buffer")
	}
	if !o.recording {
		f.violate("end of command buffer %d that is not recording", o.id)
	}
	o.recording = false
	return nil
}

func (f *fakeDriver) ResetCommandBuffer(cb vulkan.CommandBuffer) error {
	o := f.cb(cb)
	if o == nil {
		return errors.New("unknown command buffer")
	}
	f.checkReusable(o, "reset")
	o.ops, o.draws, o.descriptors = nil, 0, nil
	return nil
}

func (f *fakeDriver) QueueSubmit(queue vulkan.Queue, info *vulkan.SubmitInfo, fence vulkan.Fence) error {
	rec := submitRecord{
		waits:   info.PWaitSemaphores,
		signals: info.PSignalSemaphores,
		fence:   fence,
	}
	for _, s := range info.PWaitSemaphores {
		if sem := f.get(unsafe.Pointer(s), "semaphore"); sem != nil {
			if !sem.semSignaled {
				f.violate("submit waits on unsignaled semaphore %d", sem.id)
			}
			sem.semSignaled = false
		}
	}
	fo := f.get(unsafe.Pointer(fence), "fence")
	if fo != nil {
		if fo.signaled || fo.pending {
			f.violate("submit with fence %d that was not reset", fo.id)
		}
		fo.pending = true
	}
	for _, cb := range info.PCommandBuffers {
		o := f.cb(cb)
		if o == nil {
			continue
		}
		if o.recording {
			f.violate("submit of command buffer %d still recording", o.id)
		}
		for _, op := range o.ops {
			op()
		}
		f.draws += o.draws
		o.inFlight = fo
		rec.cb = cb
		rec.sets = o.descriptors
	}
	for _, s := range info.PSignalSemaphores {
		if sem := f.get(unsafe.Pointer(s), "semaphore"); sem != nil {
			sem.semSignaled = true
		}
	}
	f.submits = append(f.submits, rec)
	return nil
}

func (f *fakeDriver) QueueWaitIdle(queue vulkan.Queue) error {
	f.completeAll()
	return nil
}

func (f *fakeDriver) record(cb vulkan.CommandBuffer, op func()) {
	o := f.cb(cb)
	if o == nil {
		return
	}
	if !o.recording {
		f.violate("command recorded into command buffer %d outside begin/end", o.id)
	}
	if op != nil {
		o.ops = append(o.ops, op)
	}
}

func (f *fakeDriver) CmdCopyBuffer(cb vulkan.CommandBuffer, src, dst vulkan.Buffer, size vulkan.DeviceSize) {
	s := f.get(unsafe.Pointer(src), "buffer")
	d := f.get(unsafe.Pointer(dst), "buffer")
	f.record(cb, func() {
		if s == nil || d == nil || s.memory == nil || d.memory == nil {
			f.violate("copy between unbound buffers")
			return
		}
		copy(d.memory.data[:size], s.memory.data[:size])
	})
}

func (f *fakeDriver) CmdBeginRenderPass(cb vulkan.CommandBuffer, info *vulkan.RenderPassBeginInfo) {
	f.get(unsafe.Pointer(info.Framebuffer), "framebuffer")
	f.record(cb, nil)
}

func (f *fakeDriver) CmdEndRenderPass(cb vulkan.CommandBuffer) { f.record(cb, nil) }

func (f *fakeDriver) CmdBindPipeline(cb vulkan.CommandBuffer, pipeline vulkan.Pipeline) {
	f.record(cb, nil)
}

func (f *fakeDriver) CmdBindVertexBuffer(cb vulkan.CommandBuffer, buffer vulkan.Buffer) {
	f.get(unsafe.Pointer(buffer), "buffer")
	f.record(cb, nil)
}

func (f *fakeDriver) CmdBindIndexBuffer(cb vulkan.CommandBuffer, buffer vulkan.Buffer) {
	f.get(unsafe.Pointer(buffer), "buffer")
	f.record(cb, nil)
}

func (f *fakeDriver) CmdSetViewport(cb vulkan.CommandBuffer, viewport vulkan.Viewport) {
	f.record(cb, nil)
}

func (f *fakeDriver) CmdSetScissor(cb vulkan.CommandBuffer, scissor vulkan.Rect2D) {
	f.record(cb, nil)
}

func (f *fakeDriver) CmdBindDescriptorSet(cb vulkan.CommandBuffer, layout vulkan.PipelineLayout, set vulkan.DescriptorSet) {
	f.record(cb, nil)
	if o := f.cb(cb); o != nil {
		o.descriptors = append(o.descriptors, set)
	}
}

func (f *fakeDriver) CmdDrawIndexed(cb vulkan.CommandBuffer, indexCount uint32) {
	f.record(cb, nil)
	if o := f.cb(cb); o != nil {
		o.draws++
	}
}

type fakeWindow struct {
	width, height int
	resized       bool
}

func (w *fakeWindow) FramebufferSize() (int, int) { return w.width, w.height }
func (w *fakeWindow) IsResized() bool             { return w.resized }
func (w *fakeWindow) ClearResized()               { w.resized = false }

// fakePipeline has handles the fake driver never sees; with no device its
// Destroy is a no-op.
func fakePipeline(f *fakeDriver) *Pipeline {
	p := &Pipeline{
		RenderPass: vulkan.RenderPass(f.untracked("renderpass")),
		Layout:     vulkan.PipelineLayout(f.untracked("pipelinelayout")),
		Handle:     vulkan.Pipeline(f.untracked("pipeline")),
	}
	for i := 0; i < MaxFramesInFlight; i++ {
		p.Sets = append(p.Sets, vulkan.DescriptorSet(f.untracked("descriptorset")))
	}
	return p
}
