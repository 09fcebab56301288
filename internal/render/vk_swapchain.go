package render

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"
)

// DefaultMaxRetired bounds how many superseded swapchain handles are kept
// alive after a recreation.
const DefaultMaxRetired = 3

// Swapchain is the presentable image chain plus one view and one framebuffer
// per image. Images, Views and Framebuffers always have equal length once
// CreateFramebuffers has run.
type Swapchain struct {
	drv Driver

	Handle       vulkan.Swapchain
	Format       vulkan.SurfaceFormat
	PresentMode  vulkan.PresentMode
	Extent       vulkan.Extent2D
	Images       []vulkan.Image
	Views        []vulkan.ImageView
	Framebuffers []vulkan.Framebuffer

	// Retired holds superseded handles, oldest first.
	Retired []vulkan.Swapchain
}

// ParsePresentMode maps a config name to a present mode.
func ParsePresentMode(name string) (vulkan.PresentMode, error) {
	switch strings.ToLower(name) {
	case "mailbox":
		return vulkan.PresentModeMailbox, nil
	case "fifo":
		return vulkan.PresentModeFifo, nil
	case "fifo_relaxed":
		return vulkan.PresentModeFifoRelaxed, nil
	case "immediate":
		return vulkan.PresentModeImmediate, nil
	}
	return vulkan.PresentModeFifo, errors.Newf("unknown present mode %q", name)
}

func chooseSurfaceFormat(available []vulkan.SurfaceFormat) vulkan.SurfaceFormat {
	for _, f := range available {
		if f.Format == vulkan.FormatB8g8r8a8Srgb && f.ColorSpace == vulkan.ColorSpaceSrgbNonlinear {
			return f
		}
	}
	return available[0]
}

// choosePresentMode returns preferred when the surface offers it. FIFO is
// always available.
func choosePresentMode(available []vulkan.PresentMode, preferred vulkan.PresentMode) vulkan.PresentMode {
	for _, m := range available {
		if m == preferred {
			return m
		}
	}
	return vulkan.PresentModeFifo
}

func chooseExtent(caps vulkan.SurfaceCapabilities, width, height int) vulkan.Extent2D {
	if caps.CurrentExtent.Width != math.MaxUint32 {
		return caps.CurrentExtent
	}
	lo, hi := caps.MinImageExtent, caps.MaxImageExtent
	return vulkan.Extent2D{
		Width:  clamp(uint32(width), lo.Width, hi.Width),
		Height: clamp(uint32(height), lo.Height, hi.Height),
	}
}

func chooseImageCount(caps vulkan.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NewSwapchain builds a chain sized to the window. When previous holds a
// live handle it is passed as the old-swapchain hint and moves, together
// with previous's own retired handles, onto the new chain's Retired list;
// previous is left without handles and must only have its views and
// framebuffers released.
func NewSwapchain(drv Driver, win Window, preferred vulkan.PresentMode, previous *Swapchain) (*Swapchain, error) {
	support, err := drv.SurfaceSupport()
	if err != nil {
		return nil, err
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return nil, errors.New("surface reports no formats or present modes")
	}

	caps := support.Capabilities
	width, height := win.FramebufferSize()
	sc := &Swapchain{
		drv:         drv,
		Format:      chooseSurfaceFormat(support.Formats),
		PresentMode: choosePresentMode(support.PresentModes, preferred),
		Extent:      chooseExtent(caps, width, height),
	}

	createInfo := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          drv.Surface(),
		MinImageCount:    chooseImageCount(caps),
		ImageFormat:      sc.Format.Format,
		ImageColorSpace:  sc.Format.ColorSpace,
		ImageExtent:      sc.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vulkan.CompositeAlphaOpaqueBit,
		PresentMode:      sc.PresentMode,
		Clipped:          vulkan.True,
		OldSwapchain:     vulkan.NullSwapchain,
	}
	if previous != nil && previous.Handle != vulkan.NullSwapchain {
		createInfo.OldSwapchain = previous.Handle
	}

	families := drv.Families()
	if families.Shared() {
		createInfo.ImageSharingMode = vulkan.SharingModeExclusive
	} else {
		indices := []uint32{families.Graphics, families.Present}
		createInfo.ImageSharingMode = vulkan.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(indices))
		createInfo.PQueueFamilyIndices = indices
	}

	if sc.Handle, err = drv.CreateSwapchain(&createInfo); err != nil {
		return nil, err
	}
	if sc.Images, err = drv.SwapchainImages(sc.Handle); err != nil {
		sc.Destroy()
		return nil, err
	}
	if err := sc.createViews(); err != nil {
		sc.Destroy()
		return nil, err
	}

	if previous != nil {
		sc.Retired = append(sc.Retired, previous.Retired...)
		if previous.Handle != vulkan.NullSwapchain {
			sc.Retired = append(sc.Retired, previous.Handle)
		}
		previous.Retired = nil
		previous.Handle = vulkan.NullSwapchain
	}
	return sc, nil
}

func (sc *Swapchain) createViews() error {
	sc.Views = make([]vulkan.ImageView, 0, len(sc.Images))
	for i, img := range sc.Images {
		view, err := sc.drv.CreateImageView(&vulkan.ImageViewCreateInfo{
			SType:    vulkan.StructureTypeImageViewCreateInfo,
			Image:    img,
			ViewType: vulkan.ImageViewType2d,
			Format:   sc.Format.Format,
			Components: vulkan.ComponentMapping{
				R: vulkan.ComponentSwizzleIdentity,
				G: vulkan.ComponentSwizzleIdentity,
				B: vulkan.ComponentSwizzleIdentity,
				A: vulkan.ComponentSwizzleIdentity,
			},
			SubresourceRange: vulkan.ImageSubresourceRange{
				AspectMask:     vulkan.ImageAspectFlags(vulkan.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrapf(err, "image view %d", i)
		}
		sc.Views = append(sc.Views, view)
	}
	return nil
}

// CreateFramebuffers builds one single-attachment framebuffer per view.
func (sc *Swapchain) CreateFramebuffers(renderPass vulkan.RenderPass) error {
	sc.Framebuffers = make([]vulkan.Framebuffer, 0, len(sc.Views))
	for i, view := range sc.Views {
		fb, err := sc.drv.CreateFramebuffer(&vulkan.FramebufferCreateInfo{
			SType:           vulkan.StructureTypeFramebufferCreateInfo,
			RenderPass:      renderPass,
			AttachmentCount: 1,
			PAttachments:    []vulkan.ImageView{view},
			Width:           sc.Extent.Width,
			Height:          sc.Extent.Height,
			Layers:          1,
		})
		if err != nil {
			return errors.Wrapf(err, "framebuffer %d", i)
		}
		sc.Framebuffers = append(sc.Framebuffers, fb)
	}
	if len(sc.Framebuffers) != len(sc.Images) || len(sc.Views) != len(sc.Images) {
		return errors.AssertionFailedf("swapchain has %d images, %d views, %d framebuffers",
			len(sc.Images), len(sc.Views), len(sc.Framebuffers))
	}
	return nil
}

// ReleaseViews destroys framebuffers and views but keeps the handle, which
// is still needed as the old-swapchain hint.
func (sc *Swapchain) ReleaseViews() {
	for _, fb := range sc.Framebuffers {
		sc.drv.DestroyFramebuffer(fb)
	}
	sc.Framebuffers = nil
	for _, v := range sc.Views {
		sc.drv.DestroyImageView(v)
	}
	sc.Views = nil
}

// PruneRetired destroys the oldest retired handles until at most keep remain.
func (sc *Swapchain) PruneRetired(keep int) {
	if keep < 0 {
		keep = 0
	}
	for len(sc.Retired) > keep {
		sc.drv.DestroySwapchain(sc.Retired[0])
		sc.Retired = sc.Retired[1:]
	}
}

// Destroy releases everything the chain owns, retired handles included.
func (sc *Swapchain) Destroy() {
	sc.ReleaseViews()
	if sc.Handle != vulkan.NullSwapchain {
		sc.drv.DestroySwapchain(sc.Handle)
		sc.Handle = vulkan.NullSwapchain
	}
	sc.PruneRetired(0)
	sc.Images = nil
}
