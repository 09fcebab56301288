package render

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"zephyr/internal/mesh"
)

// PlatformWindow is everything the engine needs from the window: frame-loop
// queries plus surface creation.
type PlatformWindow interface {
	Window
	SurfaceSource
}

type Options struct {
	Validation  bool
	PresentMode string
	Convention  string
	// SPIR-V paths. Missing files fall back to the embedded WGSL shaders.
	VertexShader         string
	FragmentShader       string
	MaxRetiredSwapchains int
	ClearColor           [4]float32
}

// Engine owns the whole GPU side of the application. Close releases it in
// reverse order of construction.
type Engine struct {
	log      *slog.Logger
	instance *Instance
	device   *Device
	renderer *Renderer
}

func New(win PlatformWindow, m mesh.Mesh, opts Options, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = nopLogger()
	}
	presentMode, err := ParsePresentMode(opts.PresentMode)
	if err != nil {
		return nil, err
	}
	conv, err := ParseConvention(opts.Convention)
	if err != nil {
		return nil, err
	}
	vert, err := LoadShader(opts.VertexShader, "shader.vert.wgsl", "vs_main")
	if err != nil {
		return nil, err
	}
	frag, err := LoadShader(opts.FragmentShader, "shader.frag.wgsl", "fs_main")
	if err != nil {
		return nil, err
	}
	log.Debug("shaders loaded", "vertex", vert.Source, "fragment", frag.Source)

	e := &Engine{log: log}
	if e.instance, err = newInstance(win, opts.Validation, log); err != nil {
		return nil, errors.Wrap(err, "instance")
	}
	if e.device, err = newDevice(e.instance, log); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "device")
	}

	chain, err := NewSwapchain(e.device, win, presentMode, nil)
	if err != nil {
		e.Close()
		return nil, errors.Wrap(err, "swapchain")
	}
	pipeline, err := newPipeline(e.device.handle, chain.Format.Format, vert, frag)
	if err != nil {
		chain.Destroy()
		e.Close()
		return nil, errors.Wrap(err, "pipeline")
	}
	e.renderer, err = NewRenderer(e.device, win, chain, pipeline, m, RendererOptions{
		PresentMode: presentMode,
		Convention:  conv,
		MaxRetired:  opts.MaxRetiredSwapchains,
		ClearColor:  opts.ClearColor,
	}, log)
	if err != nil {
		e.Close()
		return nil, errors.Wrap(err, "renderer")
	}
	if err := pipeline.BindUniforms(e.renderer.uniforms); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "descriptor sets")
	}

	log.Info("swapchain created",
		"width", chain.Extent.Width,
		"height", chain.Extent.Height,
		"images", len(chain.Images),
		"present_mode", chain.PresentMode,
		"convention", conv)
	return e, nil
}

func (e *Engine) DrawFrame() error {
	return e.renderer.DrawFrame()
}

func (e *Engine) Stats() FrameStats {
	return e.renderer.Stats()
}

// ReadBackGeometry returns the vertex and index bytes as stored on the GPU.
func (e *Engine) ReadBackGeometry() (vertices, indices []byte, err error) {
	return e.renderer.ReadBackGeometry()
}

// Close is safe to call more than once and on a partially built engine.
func (e *Engine) Close() {
	if e.renderer != nil {
		stats := e.renderer.Stats()
		e.renderer.Destroy()
		e.renderer = nil
		e.log.Info("renderer released",
			"frames", stats.Submitted,
			"skipped", stats.Skipped,
			"recreations", stats.Recreations)
	}
	if e.device != nil {
		if err := e.device.WaitIdle(); err != nil {
			e.log.Error("wait idle before device teardown", "err", err)
		}
		e.device.Destroy()
		e.device = nil
	}
	if e.instance != nil {
		e.instance.Destroy()
		e.instance = nil
	}
}
