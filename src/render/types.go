package render

import (
	"fmt"
	"math"
)

// Extent is a two dimensional size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// UndefinedExtent is reported by surfaces whose size is decided by the swapchain
// rather than by the window.
var UndefinedExtent = Extent{Width: math.MaxUint32, Height: math.MaxUint32}

// IsZero reports whether the extent has no area, which is what a minimized
// window reports.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

// IsUndefined reports whether the extent is the UndefinedExtent sentinel.
func (e Extent) IsUndefined() bool {
	return e.Width == math.MaxUint32
}

// Clamp returns e bounded component-wise by min and max.
func (e Extent) Clamp(min, max Extent) Extent {
	return Extent{
		Width:  clamp(e.Width, min.Width, max.Width),
		Height: clamp(e.Height, min.Height, max.Height),
	}
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

func clamp(val, lo, hi uint32) uint32 {
	if val < lo {
		return lo
	} else if val > hi {
		return hi
	}
	return val
}

// Format is a backend pixel format value, e.g. a vk.Format.
type Format uint32

// FormatUndefined is the zero format. A surface offering only this format
// accepts any format.
const FormatUndefined Format = 0

// ColorSpace is a backend color space value.
type ColorSpace uint32

// SurfaceFormat pairs a pixel format with the color space it is presented in.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// PresentMode selects how presented images are queued for display.
type PresentMode uint32

const (
	// PresentModeFifo waits for vertical blank and is always supported.
	PresentModeFifo PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeFifo:
		return "fifo"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("PresentMode(%d)", uint32(m))
	}
}

// ParsePresentMode parses the names produced by PresentMode.String.
func ParsePresentMode(s string) (PresentMode, error) {
	switch s {
	case "fifo", "":
		return PresentModeFifo, nil
	case "mailbox":
		return PresentModeMailbox, nil
	case "immediate":
		return PresentModeImmediate, nil
	}
	return PresentModeFifo, fmt.Errorf("unknown present mode %q", s)
}

// SurfaceCapabilities are the bounds a surface places on swapchain creation.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of zero means there is no upper bound.
	MaxImageCount uint32
	CurrentExtent Extent
	MinExtent     Extent
	MaxExtent     Extent
	Formats       []SurfaceFormat
	PresentModes  []PresentMode
}

// Generation tags a swapchain image set. It increments on every recreation.
type Generation uint64
