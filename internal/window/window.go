// Package window wraps a glfw window for a Vulkan renderer: no client API,
// resizable, with a sticky resize flag the frame loop consumes.
package window

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
)

// Window must be created and driven from the main OS thread. glfw.Init has
// to be called before Open.
type Window struct {
	handle  *glfw.Window
	resized bool
	width   int
	height  int
}

func Open(title string, width, height int) (*Window, error) {
	if !glfw.VulkanSupported() {
		return nil, errors.New("GLFW Vulkan loader not found")
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	handle, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create window")
	}
	w := &Window{handle: handle}
	w.width, w.height = handle.GetFramebufferSize()

	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.onResize(width, height)
	})
	handle.SetKeyCallback(func(gw *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			gw.SetShouldClose(true)
		}
	})
	return w, nil
}

func (w *Window) onResize(width, height int) {
	w.resized = true
	w.width = width
	w.height = height
}

// Update polls pending events. While the framebuffer is zero-sized
// (minimized) it blocks until the window is restored or asked to close.
func (w *Window) Update() {
	glfw.PollEvents()
	for w.minimized() && !w.handle.ShouldClose() {
		glfw.WaitEvents()
	}
}

func (w *Window) minimized() bool {
	return w.width == 0 || w.height == 0
}

func (w *Window) IsOpen() bool {
	return !w.handle.ShouldClose()
}

func (w *Window) IsResized() bool { return w.resized }

func (w *Window) ClearResized() { w.resized = false }

func (w *Window) FramebufferSize() (int, int) {
	return w.handle.GetFramebufferSize()
}

// InstanceProcAddr is the loader entry point glfw found.
func (w *Window) InstanceProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *Window) GetRequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

// CreateWindowSurface returns the raw VkSurfaceKHR for instance.
func (w *Window) CreateWindowSurface(instance interface{}, allocator unsafe.Pointer) (uintptr, error) {
	return w.handle.CreateWindowSurface(instance, allocator)
}

func (w *Window) Destroy() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
}
