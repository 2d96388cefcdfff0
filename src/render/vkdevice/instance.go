// Package vkdevice implements the render device on top of Vulkan.
//
// The Vulkan loader must be initialised before NewInstance, see
// platform.Init.
package vkdevice

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

var (
	validationLayers = []string{"VK_LAYER_KHRONOS_validation\x00"}
	deviceExtensions = []string{"VK_KHR_swapchain\x00"}
)

const debugReportExtension = "VK_EXT_debug_report\x00"

// Instance is a Vulkan instance, with a debug report callback forwarding
// validation messages to the engine logger when validation is on.
type Instance struct {
	Handle vk.Instance

	debug    vk.DebugReportCallback
	hasDebug bool
}

// NewInstance creates an instance enabling extensions, which must be NUL
// terminated.
func NewInstance(appName string, extensions []string, validation bool) (*Instance, error) {
	if validation && !validationLayersSupported() {
		return nil, errors.New("validation layers requested, but not available")
	}
	exts := append([]string(nil), extensions...)
	if validation {
		exts = append(exts, debugReportExtension)
	}

	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			PApplicationName:   safeString(appName),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PEngineName:        "epsilon\x00",
			EngineVersion:      vk.MakeVersion(1, 0, 0),
			ApiVersion:         vk.ApiVersion10,
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
	}
	if validation {
		info.EnabledLayerCount = uint32(len(validationLayers))
		info.PpEnabledLayerNames = validationLayers
	}

	var instance vk.Instance
	if err := NewError(vk.CreateInstance(&info, nil, &instance)); err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("init instance: %w", err)
	}

	in := &Instance{Handle: instance}
	if validation {
		dbgInfo := &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit | vk.DebugReportWarningBit | vk.DebugReportErrorBit),
			PfnCallback: debugReport,
		}
		if err := NewError(vk.CreateDebugReportCallback(instance, dbgInfo, nil, &in.debug)); err != nil {
			render.Logger().Warn("debug report callback unavailable", "err", err)
		} else {
			in.hasDebug = true
		}
	}
	return in, nil
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint,
	messageCode int32, layerPrefix string, message string, userData unsafe.Pointer) vk.Bool32 {
	log := render.Logger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error("validation", "layer", layerPrefix, "code", messageCode, "msg", message)
	default:
		log.Warn("validation", "layer", layerPrefix, "code", messageCode, "msg", message)
	}
	return vk.False
}

// DestroySurface releases a surface created for this instance.
func (in *Instance) DestroySurface(surface vk.Surface) {
	vk.DestroySurface(in.Handle, surface, nil)
}

func (in *Instance) Destroy() {
	if in.hasDebug {
		vk.DestroyDebugReportCallback(in.Handle, in.debug, nil)
		in.hasDebug = false
	}
	vk.DestroyInstance(in.Handle, nil)
}

func validationLayersSupported() bool {
	var count uint32
	vk.EnumerateInstanceLayerProperties(&count, nil)
	layers := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, layers)

	available := make(map[string]bool, count)
	for _, l := range layers {
		l.Deref()
		available[vk.ToString(l.LayerName[:])] = true
		l.Free()
	}
	for _, name := range validationLayers {
		if !available[strings.TrimRight(name, "\x00")] {
			return false
		}
	}
	return true
}

func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}
