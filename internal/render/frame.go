package render

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"

	"zephyr/internal/mesh"
)

// FrameState is where the orchestrator is inside DrawFrame.
type FrameState int

const (
	StateIdle FrameState = iota
	StateAcquiring
	StateRecording
	StateSubmitted
	StatePresenting
	StateSwapchainStale
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StatePresenting:
		return "presenting"
	case StateSwapchainStale:
		return "swapchain-stale"
	}
	return "unknown"
}

type FrameStats struct {
	Submitted   uint64
	Skipped     uint64
	Recreations uint64
}

type RendererOptions struct {
	PresentMode vulkan.PresentMode
	Convention  Convention
	// MaxRetired bounds the retired swapchain list; zero means
	// DefaultMaxRetired.
	MaxRetired int
	ClearColor [4]float32
}

// Renderer runs the per-frame lifecycle against a Driver. It is not safe for
// concurrent use; all calls belong on the thread that owns the window.
type Renderer struct {
	log  *slog.Logger
	drv  Driver
	win  Window
	opts RendererOptions

	pipeline *Pipeline
	chain    *Swapchain
	sync     *SyncObjects
	pool     *CommandPool
	cmds     []vulkan.CommandBuffer
	geometry *Geometry
	uniforms *UniformSet

	slot  int
	state FrameState
	// stale is set when present reports the chain out of date or
	// suboptimal; the next frame recreates before drawing.
	stale bool
	start time.Time
	now   func() time.Time
	stats FrameStats
}

// NewRenderer builds the per-frame resources around chain and pipeline and
// uploads m. It takes ownership of chain and pipeline, also when it fails.
// Descriptor sets are not allocated here; see Pipeline.BindUniforms.
func NewRenderer(drv Driver, win Window, chain *Swapchain, pipeline *Pipeline, m mesh.Mesh, opts RendererOptions, log *slog.Logger) (*Renderer, error) {
	if log == nil {
		log = nopLogger()
	}
	if opts.MaxRetired <= 0 {
		opts.MaxRetired = DefaultMaxRetired
	}
	r := &Renderer{
		log:      log,
		drv:      drv,
		win:      win,
		opts:     opts,
		pipeline: pipeline,
		chain:    chain,
		now:      time.Now,
	}
	if err := r.init(m); err != nil {
		r.Destroy()
		return nil, err
	}
	r.start = r.now()
	return r, nil
}

func (r *Renderer) init(m mesh.Mesh) error {
	var err error
	if err = r.chain.CreateFramebuffers(r.pipeline.RenderPass); err != nil {
		return err
	}
	if r.pool, err = NewCommandPool(r.drv); err != nil {
		return err
	}
	if r.geometry, err = UploadMesh(r.pool, m); err != nil {
		return err
	}
	if r.uniforms, err = NewUniformSet(r.drv, MaxFramesInFlight, UniformSize); err != nil {
		return err
	}
	if r.cmds, err = r.pool.Allocate(MaxFramesInFlight); err != nil {
		return err
	}
	if r.sync, err = NewSyncObjects(r.drv, MaxFramesInFlight, len(r.chain.Images)); err != nil {
		return err
	}
	return nil
}

// DrawFrame renders and presents one frame. A swapchain that went out of
// date is recreated and the frame is skipped without error, and a minimized
// window draws nothing. Only fatal conditions are returned.
func (r *Renderer) DrawFrame() error {
	slot := r.slot

	if w, h := r.win.FramebufferSize(); w == 0 || h == 0 {
		// Minimized: nothing to acquire into. Recreate once the window
		// has a size again.
		r.stale = true
		r.setState(StateSwapchainStale)
		return nil
	}

	r.setState(StateAcquiring)
	if err := r.drv.WaitForFence(r.sync.InFlight[slot]); err != nil {
		return err
	}
	imageIndex, res := r.drv.AcquireNextImage(r.chain.Handle, r.sync.ImageAvailable[slot])
	switch res {
	case vulkan.Success, vulkan.Suboptimal, vulkan.ErrorOutOfDate:
	default:
		return errors.Wrap(vulkan.Error(res), "acquire next image")
	}
	if res != vulkan.Success || r.win.IsResized() || r.stale {
		return r.skip(res)
	}

	// The fence has been waited, so the slot's command buffer and uniform
	// region are no longer read by the GPU.
	if err := r.drv.ResetFence(r.sync.InFlight[slot]); err != nil {
		return err
	}
	cb := r.cmds[slot]
	if err := r.drv.ResetCommandBuffer(cb); err != nil {
		return err
	}
	elapsed := float32(r.now().Sub(r.start).Seconds())
	if err := r.uniforms.WritePayload(slot, computeUniform(elapsed, r.chain.Extent, r.opts.Convention)); err != nil {
		return err
	}

	r.setState(StateRecording)
	if err := r.record(cb, imageIndex); err != nil {
		return err
	}

	waitStages := []vulkan.PipelineStageFlags{vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit)}
	submitInfo := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vulkan.Semaphore{r.sync.ImageAvailable[slot]},
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   1,
		PCommandBuffers:      []vulkan.CommandBuffer{cb},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vulkan.Semaphore{r.sync.RenderFinished[imageIndex]},
	}
	if err := r.drv.QueueSubmit(r.drv.GraphicsQueue(), &submitInfo, r.sync.InFlight[slot]); err != nil {
		return err
	}
	r.setState(StateSubmitted)
	r.stats.Submitted++

	presentInfo := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{r.sync.RenderFinished[imageIndex]},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{r.chain.Handle},
		PImageIndices:      []uint32{imageIndex},
	}
	r.setState(StatePresenting)
	switch res := r.drv.QueuePresent(r.drv.PresentQueue(), &presentInfo); res {
	case vulkan.Success:
	case vulkan.ErrorOutOfDate, vulkan.Suboptimal:
		r.log.Debug("present reported stale swapchain", "result", res)
		r.stale = true
	default:
		return errors.Wrap(vulkan.Error(res), "queue present")
	}

	r.advance()
	return nil
}

func (r *Renderer) setState(s FrameState) {
	r.state = s
	r.log.Debug("frame state", "slot", r.slot, "state", s)
}

func (r *Renderer) skip(acquired vulkan.Result) error {
	r.setState(StateSwapchainStale)
	r.log.Debug("skipping frame",
		"slot", r.slot,
		"acquire", acquired,
		"resized", r.win.IsResized(),
		"stale", r.stale)
	r.win.ClearResized()
	if err := r.recreateSwapchain(); err != nil {
		return err
	}
	r.stats.Skipped++
	r.advance()
	return nil
}

// advance moves to the next frame slot. It also runs after a skipped frame:
// the skipped slot's fence was never reset and its semaphores were rebuilt.
func (r *Renderer) advance() {
	r.slot = (r.slot + 1) % MaxFramesInFlight
	r.setState(StateIdle)
}

func (r *Renderer) record(cb vulkan.CommandBuffer, imageIndex uint32) error {
	if err := r.drv.BeginCommandBuffer(cb, 0); err != nil {
		return err
	}
	extent := r.chain.Extent
	r.drv.CmdBeginRenderPass(cb, &vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  r.pipeline.RenderPass,
		Framebuffer: r.chain.Framebuffers[imageIndex],
		RenderArea: vulkan.Rect2D{
			Offset: vulkan.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: 1,
		PClearValues:    []vulkan.ClearValue{vulkan.NewClearValue(r.opts.ClearColor[:])},
	})
	r.drv.CmdBindPipeline(cb, r.pipeline.Handle)
	r.drv.CmdBindVertexBuffer(cb, r.geometry.Vertices.Buffer)
	r.drv.CmdBindIndexBuffer(cb, r.geometry.Indices.Buffer)
	r.drv.CmdSetViewport(cb, vulkan.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	r.drv.CmdSetScissor(cb, vulkan.Rect2D{Extent: extent})
	r.drv.CmdBindDescriptorSet(cb, r.pipeline.Layout, r.pipeline.Sets[r.slot])
	r.drv.CmdDrawIndexed(cb, r.geometry.IndexCount)
	r.drv.CmdEndRenderPass(cb)
	return r.drv.EndCommandBuffer(cb)
}

// recreateSwapchain replaces the chain after the device drained. The old
// handle is retired rather than destroyed; the retired list is then cut
// back to the configured bound.
func (r *Renderer) recreateSwapchain() error {
	if w, h := r.win.FramebufferSize(); w == 0 || h == 0 {
		// Minimized since the acquire: keep the old chain.
		r.stale = true
		return nil
	}
	if err := r.drv.WaitIdle(); err != nil {
		return err
	}

	old := r.chain
	old.ReleaseViews()
	chain, err := NewSwapchain(r.drv, r.win, r.opts.PresentMode, old)
	if err != nil {
		return errors.Wrap(err, "recreate swapchain")
	}
	r.chain = chain
	if err := chain.CreateFramebuffers(r.pipeline.RenderPass); err != nil {
		return errors.Wrap(err, "recreate framebuffers")
	}
	if err := r.sync.RebuildSemaphores(len(chain.Images)); err != nil {
		return errors.Wrap(err, "rebuild semaphores")
	}
	chain.PruneRetired(r.opts.MaxRetired)

	r.stale = false
	r.stats.Recreations++
	r.log.Debug("swapchain recreated",
		"width", chain.Extent.Width,
		"height", chain.Extent.Height,
		"images", len(chain.Images),
		"retired", len(chain.Retired))
	return nil
}

// ReadBackGeometry copies the uploaded vertex and index data back to host
// memory.
func (r *Renderer) ReadBackGeometry() (vertices, indices []byte, err error) {
	if vertices, err = ReadBack(r.pool, r.geometry.Vertices); err != nil {
		return nil, nil, err
	}
	if indices, err = ReadBack(r.pool, r.geometry.Indices); err != nil {
		return nil, nil, err
	}
	return vertices, indices, nil
}

func (r *Renderer) Stats() FrameStats     { return r.stats }
func (r *Renderer) Slot() int             { return r.slot }
func (r *Renderer) State() FrameState     { return r.state }
func (r *Renderer) Swapchain() *Swapchain { return r.chain }

// Destroy waits for the device to drain and releases everything the
// renderer owns, in reverse dependency order.
func (r *Renderer) Destroy() {
	if err := r.drv.WaitIdle(); err != nil {
		r.log.Error("wait idle before teardown", "err", err)
	}
	if r.chain != nil {
		r.chain.Destroy()
		r.chain = nil
	}
	if r.geometry != nil {
		r.geometry.Destroy()
		r.geometry = nil
	}
	if r.uniforms != nil {
		r.uniforms.Destroy()
		r.uniforms = nil
	}
	if r.pipeline != nil {
		r.pipeline.Destroy()
		r.pipeline = nil
	}
	if r.sync != nil {
		r.sync.Destroy()
		r.sync = nil
	}
	if r.pool != nil {
		if len(r.cmds) > 0 {
			r.pool.Free(r.cmds)
			r.cmds = nil
		}
		r.pool.Destroy()
		r.pool = nil
	}
}
