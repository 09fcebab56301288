package render

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation\x00"}

// SurfaceSource is the platform side of surface creation; a glfw window
// satisfies it.
type SurfaceSource interface {
	InstanceProcAddr() unsafe.Pointer
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocator unsafe.Pointer) (uintptr, error)
}

// Instance owns the Vulkan instance, the optional debug report callback and
// the presentation surface, which all outlive the device.
type Instance struct {
	log        *slog.Logger
	handle     vulkan.Instance
	debug      vulkan.DebugReportCallback
	surface    vulkan.Surface
	validation bool
}

func newInstance(src SurfaceSource, validation bool, log *slog.Logger) (*Instance, error) {
	inst := &Instance{log: log, validation: validation}

	vulkan.SetGetInstanceProcAddr(src.InstanceProcAddr())
	if err := vulkan.Init(); err != nil {
		return nil, errors.Wrap(err, "init vulkan loader")
	}
	if validation && !validationLayersSupported() {
		return nil, ErrValidationUnavailable
	}

	appInfo := vulkan.ApplicationInfo{
		SType:              vulkan.StructureTypeApplicationInfo,
		PApplicationName:   "Zephyr\x00",
		ApplicationVersion: vulkan.MakeVersion(0, 1, 0),
		PEngineName:        "Zephyr\x00",
		EngineVersion:      vulkan.MakeVersion(0, 1, 0),
		ApiVersion:         vulkan.MakeVersion(1, 1, 0),
	}

	extensions := safeStrings(src.GetRequiredInstanceExtensions())
	if validation {
		extensions = append(extensions, "VK_EXT_debug_report\x00")
	}

	createInfo := vulkan.InstanceCreateInfo{
		SType:                   vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}
	if err := vkCheck(vulkan.CreateInstance(&createInfo, nil, &inst.handle), "create instance"); err != nil {
		return nil, err
	}
	if err := vulkan.InitInstance(inst.handle); err != nil {
		inst.Destroy()
		return nil, errors.Wrap(err, "init instance")
	}
	if err := inst.setupDebugCallback(); err != nil {
		inst.Destroy()
		return nil, err
	}

	surfacePtr, err := src.CreateWindowSurface(inst.handle, nil)
	if err != nil {
		inst.Destroy()
		return nil, errors.Wrap(err, "create window surface")
	}
	inst.surface = vulkan.SurfaceFromPointer(surfacePtr)
	return inst, nil
}

func validationLayersSupported() bool {
	var count uint32
	if vulkan.EnumerateInstanceLayerProperties(&count, nil) != vulkan.Success {
		return false
	}
	props := make([]vulkan.LayerProperties, count)
	if vulkan.EnumerateInstanceLayerProperties(&count, props) != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].LayerName[:])] = true
	}
	for _, l := range validationLayers {
		if !supported[trimNull(l)] {
			return false
		}
	}
	return true
}

func (inst *Instance) setupDebugCallback() error {
	if !inst.validation {
		return nil
	}
	createInfo := vulkan.DebugReportCallbackCreateInfo{
		SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vulkan.DebugReportFlags(
			vulkan.DebugReportErrorBit |
				vulkan.DebugReportWarningBit |
				vulkan.DebugReportPerformanceWarningBit),
		PfnCallback: inst.onDebugReport,
	}
	return vkCheck(vulkan.CreateDebugReportCallback(inst.handle, &createInfo, nil, &inst.debug), "create debug callback")
}

func (inst *Instance) onDebugReport(flags vulkan.DebugReportFlags, objectType vulkan.DebugReportObjectType, object uint64, location uint, messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vulkan.Bool32 {
	lvl := slog.LevelWarn
	if flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0 {
		lvl = slog.LevelError
	}
	inst.log.Log(context.Background(), lvl, message, "layer", layerPrefix, "code", messageCode, "object_type", objectType)
	return vulkan.False
}

// Destroy releases the surface, the debug callback and the instance. The
// device must already be gone.
func (inst *Instance) Destroy() {
	if inst.surface != vulkan.NullSurface {
		vulkan.DestroySurface(inst.handle, inst.surface, nil)
		inst.surface = vulkan.NullSurface
	}
	if inst.debug != vulkan.NullDebugReportCallback {
		vulkan.DestroyDebugReportCallback(inst.handle, inst.debug, nil)
		inst.debug = vulkan.NullDebugReportCallback
	}
	if inst.handle != vulkan.Instance(vulkan.NullHandle) {
		vulkan.DestroyInstance(inst.handle, nil)
		inst.handle = vulkan.Instance(vulkan.NullHandle)
	}
}

// safeStrings null-terminates every string for the C side.
func safeStrings(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if len(s) == 0 || s[len(s)-1] != 0 {
			s += "\x00"
		}
		out = append(out, s)
	}
	return out
}

func trimNull(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s[:len(s)-1]
	}
	return s
}
