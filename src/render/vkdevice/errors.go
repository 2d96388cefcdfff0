package vkdevice

import (
	"fmt"
	"path/filepath"
	"runtime"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/render"
)

// NewError turns a failed result into an error. Lost devices match
// render.ErrDeviceLost and expired waits match render.ErrTimeout.
func NewError(ret vk.Result) error {
	if !IsError(ret) {
		return nil
	}
	err := vk.Error(ret)
	if err == nil {
		err = fmt.Errorf("result %d", ret)
	}
	switch ret {
	case vk.ErrorDeviceLost:
		err = fmt.Errorf("%w: %w", render.ErrDeviceLost, err)
	case vk.Timeout, vk.NotReady:
		err = fmt.Errorf("%w: %w", render.ErrTimeout, err)
	}
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return fmt.Errorf("vulkan error: %w (%d)", err, ret)
	}
	return fmt.Errorf("vulkan error: %w (%d) on %s", err, ret, caller(pc))
}

func IsError(ret vk.Result) bool {
	return ret != vk.Success
}

func caller(pc uintptr) string {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	file, line := fn.FileLine(pc)
	return fmt.Sprintf("%s (%s:%d)", fn.Name(), filepath.Base(file), line)
}

// statusOf maps the result of an acquire or a present. Out-of-date and
// suboptimal swapchains are statuses, anything else that is not a success is
// an error.
func statusOf(ret vk.Result) (render.Status, error) {
	switch ret {
	case vk.Success:
		return render.StatusReady, nil
	case vk.Suboptimal:
		return render.StatusSurfaceStale, nil
	case vk.ErrorOutOfDate:
		return render.StatusSurfaceUnusable, nil
	}
	return render.StatusSurfaceUnusable, NewError(ret)
}
