package main

//go:generate glslc assets/shaders/shader.vert -o assets/shaders/shader.vert.spv
//go:generate glslc assets/shaders/shader.frag -o assets/shaders/shader.frag.spv

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"

	"zephyr/internal/config"
	"zephyr/internal/mesh"
	"zephyr/internal/render"
	"zephyr/internal/window"
)

func init() {
	// GLFW/Vulkan require the main thread.
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		slog.Error("zephyr exited", "err", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Path(os.Getenv))
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "init glfw")
	}
	defer glfw.Terminate()

	win, err := window.Open(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return err
	}
	defer win.Destroy()

	// Vulkan needs a non-zero framebuffer to size the first swapchain.
	for w, h := win.FramebufferSize(); (w == 0 || h == 0) && win.IsOpen(); w, h = win.FramebufferSize() {
		glfw.WaitEventsTimeout(0.01)
	}

	engine, err := render.New(win, mesh.Cube(1), render.Options{
		Validation:           cfg.Validation,
		PresentMode:          cfg.PresentMode,
		Convention:           cfg.Convention,
		VertexShader:         cfg.Shaders.Vertex,
		FragmentShader:       cfg.Shaders.Fragment,
		MaxRetiredSwapchains: cfg.MaxRetiredSwapchains,
		ClearColor:           cfg.ClearColor,
	}, log)
	if err != nil {
		return errors.Wrap(err, "init vulkan")
	}
	defer engine.Close()

	log.Info("entering main loop")
	for win.IsOpen() {
		win.Update()
		if err := engine.DrawFrame(); err != nil {
			return errors.Wrap(err, "draw frame")
		}
	}
	return nil
}
