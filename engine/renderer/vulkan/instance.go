package vulkan

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/renderworld/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var errNoDevice = errors.New("no Vulkan device can render to the window surface")

// safeStrings null terminates the names handed to the C API.
func safeStrings(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = safeString(name)
	}
	return out
}

func safeString(name string) string {
	if n := len(name); n > 0 && name[n-1] == '\x00' {
		return name
	}
	return name + "\x00"
}

func createInstance(window *glfw.Window, appName string, validation bool) (vk.Instance, error) {
	if !glfw.VulkanSupported() {
		return nil, errors.New("no Vulkan loader found")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("loading Vulkan: %w", err)
	}

	extensions := window.GetRequiredInstanceExtensions()
	var flags vk.InstanceCreateFlags
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration")
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		flags |= 1
	}
	var layers []string
	if validation {
		if hasLayer(validationLayer) {
			layers = append(layers, validationLayer)
		} else {
			core.LogWarn("validation requested but %s is not installed", validationLayer)
		}
	}
	for _, e := range extensions {
		core.LogDebug("Vulkan instance extension: %s", e)
	}

	createInfo := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		Flags: flags,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         vk.MakeVersion(1, 0, 0),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PApplicationName:   safeString(appName),
			PEngineName:        safeString("RenderWorld"),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}

	var instance vk.Instance
	if err := checkResult(vk.CreateInstance(&createInfo, nil, &instance), "vkCreateInstance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}
	core.LogInfo("Vulkan instance created")
	return instance, nil
}

func hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success || count == 0 {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if vk.ToString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func createSurface(window *glfw.Window, instance vk.Instance) (vk.Surface, error) {
	surface, err := window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("creating window surface: %w", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}

type queueFamily struct {
	graphics bool
	present  bool
}

// pickQueueFamilies prefers one family that both draws and presents.
func pickQueueFamilies(families []queueFamily) (graphics, present uint32, ok bool) {
	graphicsFound, presentFound := false, false
	for i, f := range families {
		if f.graphics && f.present {
			return uint32(i), uint32(i), true
		}
		if f.graphics && !graphicsFound {
			graphics, graphicsFound = uint32(i), true
		}
		if f.present && !presentFound {
			present, presentFound = uint32(i), true
		}
	}
	return graphics, present, graphicsFound && presentFound
}

// deviceRank orders candidate GPUs; higher is better.
func deviceRank(deviceType vk.PhysicalDeviceType) int {
	switch deviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return 4
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return 3
	case vk.PhysicalDeviceTypeVirtualGpu:
		return 2
	case vk.PhysicalDeviceTypeCpu:
		return 1
	default:
		return 0
	}
}

type deviceCandidate struct {
	physical    vk.PhysicalDevice
	name        string
	rank        int
	graphics    uint32
	present     uint32
	portability bool
}

func deviceExtensions(physical vk.PhysicalDevice) map[string]bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(physical, "", &count, nil) != vk.Success || count == 0 {
		return nil
	}
	properties := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(physical, "", &count, properties) != vk.Success {
		return nil
	}
	out := make(map[string]bool, count)
	for i := range properties {
		properties[i].Deref()
		out[vk.ToString(properties[i].ExtensionName[:])] = true
	}
	return out
}

func queueFamilies(physical vk.PhysicalDevice, surface vk.Surface) []queueFamily {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physical, &count, properties)

	families := make([]queueFamily, count)
	for i := range properties {
		properties[i].Deref()
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(physical, uint32(i), surface, &supportsPresent)
		families[i] = queueFamily{
			graphics: properties[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0,
			present:  supportsPresent.B(),
		}
	}
	return families
}

func selectPhysicalDevice(instance vk.Instance, surface vk.Surface) (deviceCandidate, error) {
	var count uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return deviceCandidate{}, err
	}
	if count == 0 {
		return deviceCandidate{}, errNoDevice
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := checkResult(vk.EnumeratePhysicalDevices(instance, &count, devices), "vkEnumeratePhysicalDevices"); err != nil {
		return deviceCandidate{}, err
	}

	best := deviceCandidate{rank: -1}
	for _, physical := range devices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physical, &properties)
		properties.Deref()
		name := vk.ToString(properties.DeviceName[:])

		extensions := deviceExtensions(physical)
		if !extensions[vk.KhrSwapchainExtensionName] {
			core.LogDebug("%s: no swapchain support, skipping", name)
			continue
		}
		graphics, present, ok := pickQueueFamilies(queueFamilies(physical, surface))
		if !ok {
			core.LogDebug("%s: cannot draw and present to the surface, skipping", name)
			continue
		}
		candidate := deviceCandidate{
			physical:    physical,
			name:        name,
			rank:        deviceRank(properties.DeviceType),
			graphics:    graphics,
			present:     present,
			portability: extensions["VK_KHR_portability_subset"],
		}
		if candidate.rank > best.rank {
			best = candidate
		}
	}
	if best.rank < 0 {
		return deviceCandidate{}, errNoDevice
	}
	core.LogInfo("Selected device: '%s'", best.name)
	return best, nil
}

// createLogicalDevice returns the device with its graphics and present queues.
func createLogicalDevice(candidate deviceCandidate) (vk.Device, vk.Queue, vk.Queue, error) {
	families := []uint32{candidate.graphics}
	if candidate.present != candidate.graphics {
		families = append(families, candidate.present)
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if candidate.portability {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	var device vk.Device
	err := checkResult(vk.CreateDevice(candidate.physical, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
	}, nil, &device), "vkCreateDevice")
	if err != nil {
		return nil, nil, nil, err
	}

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device, candidate.graphics, 0, &graphicsQueue)
	vk.GetDeviceQueue(device, candidate.present, 0, &presentQueue)
	core.LogInfo("Logical device created")
	return device, graphicsQueue, presentQueue, nil
}
