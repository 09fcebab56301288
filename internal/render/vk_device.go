package render

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"
)

var deviceExtensions = []string{"VK_KHR_swapchain\x00"}

// Device is the device context: the chosen physical device, the logical
// device created on it, its graphics and present queues and the surface it
// presents to. It implements Driver.
type Device struct {
	physical vulkan.PhysicalDevice
	handle   vulkan.Device
	surface  vulkan.Surface
	families QueueFamilies
	graphics vulkan.Queue
	present  vulkan.Queue
	memory   vulkan.PhysicalDeviceMemoryProperties
}

type familyCaps struct {
	graphics bool
	present  bool
}

// deviceCandidate is what selection needs to know about a physical device.
type deviceCandidate struct {
	handle        vulkan.PhysicalDevice
	name          string
	deviceType    vulkan.PhysicalDeviceType
	maxImageDim2D uint32
	families      []familyCaps
	extensions    bool
	formats       int
	presentModes  int
}

func (c deviceCandidate) eligible() bool {
	_, ok := chooseQueueFamilies(c.families)
	return ok && c.extensions && c.formats > 0 && c.presentModes > 0
}

// discreteBonus is added to the score of a discrete GPU.
const discreteBonus = 1000

// scoreDevice adds the discrete bonus to the largest supported 2D image
// dimension. Integrated, virtual and CPU devices get no bonus.
func scoreDevice(deviceType vulkan.PhysicalDeviceType, maxImageDim2D uint32) uint64 {
	score := uint64(maxImageDim2D)
	if deviceType == vulkan.PhysicalDeviceTypeDiscreteGpu {
		score += discreteBonus
	}
	return score
}

// bestCandidate returns the highest scoring eligible candidate; on a tie the
// first one listed wins. A zero score is never selected.
func bestCandidate(candidates []deviceCandidate) (deviceCandidate, error) {
	var best deviceCandidate
	var bestScore uint64
	found := false
	for _, c := range candidates {
		if !c.eligible() {
			continue
		}
		if score := scoreDevice(c.deviceType, c.maxImageDim2D); score > bestScore {
			best, bestScore, found = c, score, true
		}
	}
	if !found {
		return deviceCandidate{}, ErrNoSuitableDevice
	}
	return best, nil
}

// chooseQueueFamilies prefers a single family that can both draw and
// present; otherwise it takes the first of each.
func chooseQueueFamilies(families []familyCaps) (QueueFamilies, bool) {
	for i, f := range families {
		if f.graphics && f.present {
			return QueueFamilies{Graphics: uint32(i), Present: uint32(i)}, true
		}
	}
	var q QueueFamilies
	hasGraphics, hasPresent := false, false
	for i, f := range families {
		if f.graphics && !hasGraphics {
			q.Graphics, hasGraphics = uint32(i), true
		}
		if f.present && !hasPresent {
			q.Present, hasPresent = uint32(i), true
		}
	}
	return q, hasGraphics && hasPresent
}

// findMemoryType returns the first memory type allowed by typeFilter whose
// property flags contain all of properties.
func findMemoryType(props vulkan.PhysicalDeviceMemoryProperties, typeFilter uint32, properties vulkan.MemoryPropertyFlagBits) (uint32, error) {
	want := vulkan.MemoryPropertyFlags(properties)
	for i := uint32(0); i < props.MemoryTypeCount && i < vulkan.MaxMemoryTypes; i++ {
		if typeFilter&(1<<i) != 0 && props.MemoryTypes[i].PropertyFlags&want == want {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrNoMemoryType, "filter %#b properties %#x", typeFilter, uint32(properties))
}

func pickPhysicalDevice(instance vulkan.Instance, surface vulkan.Surface, log *slog.Logger) (deviceCandidate, error) {
	var count uint32
	if err := vkCheck(vulkan.EnumeratePhysicalDevices(instance, &count, nil), "enumerate physical devices"); err != nil {
		return deviceCandidate{}, err
	}
	if count == 0 {
		return deviceCandidate{}, errors.Wrap(ErrNoSuitableDevice, "no devices with Vulkan support")
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if err := vkCheck(vulkan.EnumeratePhysicalDevices(instance, &count, devices), "enumerate physical devices list"); err != nil {
		return deviceCandidate{}, err
	}

	candidates := make([]deviceCandidate, 0, len(devices))
	for _, dev := range devices {
		c := describeDevice(dev, surface)
		log.Debug("physical device", "name", c.name, "type", c.deviceType, "max_image_2d", c.maxImageDim2D, "eligible", c.eligible())
		candidates = append(candidates, c)
	}
	return bestCandidate(candidates)
}

func describeDevice(dev vulkan.PhysicalDevice, surface vulkan.Surface) deviceCandidate {
	var props vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(dev, &props)
	props.Deref()
	props.Limits.Deref()

	c := deviceCandidate{
		handle:        dev,
		name:          vulkan.ToString(props.DeviceName[:]),
		deviceType:    props.DeviceType,
		maxImageDim2D: props.Limits.MaxImageDimension2D,
		extensions:    deviceExtensionsSupported(dev),
	}

	var familyCount uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &familyCount, nil)
	families := make([]vulkan.QueueFamilyProperties, familyCount)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(dev, &familyCount, families)
	for i := range families {
		families[i].Deref()
		var present vulkan.Bool32
		vulkan.GetPhysicalDeviceSurfaceSupport(dev, uint32(i), surface, &present)
		c.families = append(c.families, familyCaps{
			graphics: families[i].QueueFlags&vulkan.QueueFlags(vulkan.QueueGraphicsBit) != 0,
			present:  present == vulkan.True,
		})
	}

	var formatCount, modeCount uint32
	vulkan.GetPhysicalDeviceSurfaceFormats(dev, surface, &formatCount, nil)
	vulkan.GetPhysicalDeviceSurfacePresentModes(dev, surface, &modeCount, nil)
	c.formats, c.presentModes = int(formatCount), int(modeCount)
	return c
}

func deviceExtensionsSupported(device vulkan.PhysicalDevice) bool {
	var count uint32
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vulkan.Success {
		return false
	}
	props := make([]vulkan.ExtensionProperties, count)
	if res := vulkan.EnumerateDeviceExtensionProperties(device, "", &count, props); res != vulkan.Success {
		return false
	}
	supported := make(map[string]bool)
	for i := range props {
		props[i].Deref()
		supported[vulkan.ToString(props[i].ExtensionName[:])] = true
	}
	for _, ext := range deviceExtensions {
		if !supported[trimNull(ext)] {
			return false
		}
	}
	return true
}

// newDevice selects a physical device for surface and creates the logical
// device with one queue per distinct family.
func newDevice(inst *Instance, log *slog.Logger) (*Device, error) {
	chosen, err := pickPhysicalDevice(inst.handle, inst.surface, log)
	if err != nil {
		return nil, err
	}
	families, _ := chooseQueueFamilies(chosen.families)

	d := &Device{
		physical: chosen.handle,
		surface:  inst.surface,
		families: families,
	}

	priority := float32(1.0)
	queueInfos := []vulkan.DeviceQueueCreateInfo{{
		SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: families.Graphics,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}}
	if !families.Shared() {
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: families.Present,
			QueueCount:       1,
			PQueuePriorities: []float32{priority},
		})
	}

	createInfo := vulkan.DeviceCreateInfo{
		SType:                   vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vulkan.PhysicalDeviceFeatures{{}},
		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,
	}
	if inst.validation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = validationLayers
	}
	if err := vkCheck(vulkan.CreateDevice(d.physical, &createInfo, nil, &d.handle), "create logical device"); err != nil {
		return nil, err
	}

	vulkan.GetDeviceQueue(d.handle, families.Graphics, 0, &d.graphics)
	vulkan.GetDeviceQueue(d.handle, families.Present, 0, &d.present)

	vulkan.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()
	for i := range d.memory.MemoryTypes {
		d.memory.MemoryTypes[i].Deref()
	}

	log.Info("device selected",
		"name", chosen.name,
		"type", chosen.deviceType,
		"graphics_family", families.Graphics,
		"present_family", families.Present)
	return d, nil
}

// FindMemoryType resolves a memory type index on this device.
func (d *Device) FindMemoryType(typeFilter uint32, properties vulkan.MemoryPropertyFlagBits) (uint32, error) {
	return findMemoryType(d.memory, typeFilter, properties)
}

// Destroy releases the logical device. Every object allocated from it must
// already be destroyed.
func (d *Device) Destroy() {
	if d.handle != vulkan.Device(vulkan.NullHandle) {
		vulkan.DestroyDevice(d.handle, nil)
		d.handle = vulkan.Device(vulkan.NullHandle)
	}
}
