// Package config loads the frontend configuration from a TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"epsilon-frontend/src/render"
)

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Config struct {
	Window WindowConfig `toml:"window"`
	Frames FramesConfig `toml:"frames"`
	Render RenderConfig `toml:"render"`
	Log    LogConfig    `toml:"log"`
}

type WindowConfig struct {
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	Title     string `toml:"title"`
	Resizable bool   `toml:"resizable"`
}

type FramesConfig struct {
	InFlight       int      `toml:"in_flight"`
	ImageCount     uint32   `toml:"image_count"`
	AcquireTimeout Duration `toml:"acquire_timeout"`
	// FenceTimeout bounds the wait for a frame slot. Zero waits forever.
	FenceTimeout Duration `toml:"fence_timeout"`
	// PresentMode is one of fifo, mailbox or immediate. When empty, VSync
	// picks fifo or immediate.
	PresentMode string `toml:"present_mode"`
	VSync       bool   `toml:"vsync"`
}

type RenderConfig struct {
	ClearColor     [4]float32 `toml:"clear_color"`
	VertexShader   string     `toml:"vertex_shader"`
	FragmentShader string     `toml:"fragment_shader"`
	Validation     bool       `toml:"validation"`
	GridSize       int        `toml:"grid_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func Default() Config {
	return Config{
		Window: WindowConfig{
			Width:     1280,
			Height:    720,
			Title:     "epsilon",
			Resizable: true,
		},
		Frames: FramesConfig{
			InFlight:       render.DefaultFramesInFlight,
			ImageCount:     3,
			AcquireTimeout: Duration(render.DefaultAcquireTimeout),
			FenceTimeout:   Duration(5 * time.Second),
			VSync:          true,
		},
		Render: RenderConfig{
			ClearColor:     [4]float32{0.02, 0.02, 0.04, 1},
			VertexShader:   "shaders/cube.vert.spv",
			FragmentShader: "shaders/cube.frag.spv",
			GridSize:       8,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. Keys that are not part of Config are an
// error.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(bytes.NewReader(b))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w\n%s", err, strict.String())
		}
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height))
	}
	if c.Frames.InFlight < 1 || c.Frames.InFlight > 8 {
		errs = append(errs, fmt.Errorf("frames.in_flight %d out of [1, 8]", c.Frames.InFlight))
	}
	if c.Frames.AcquireTimeout < 0 || c.Frames.FenceTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if _, err := c.PresentMode(); err != nil {
		errs = append(errs, err)
	}
	for i, v := range c.Render.ClearColor {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("render.clear_color[%d] = %v out of [0, 1]", i, v))
		}
	}
	if c.Render.GridSize <= 0 {
		errs = append(errs, fmt.Errorf("render.grid_size %d must be positive", c.Render.GridSize))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c Config) PresentMode() (render.PresentMode, error) {
	if c.Frames.PresentMode == "" {
		if c.Frames.VSync {
			return render.PresentModeFifo, nil
		}
		return render.PresentModeImmediate, nil
	}
	return render.ParsePresentMode(c.Frames.PresentMode)
}

func (c Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// FrameOptions are the frame loop options of a validated config.
func (c Config) FrameOptions(format render.SurfaceFormat) render.Options {
	mode, _ := c.PresentMode()
	return render.Options{
		FramesInFlight: c.Frames.InFlight,
		AcquireTimeout: time.Duration(c.Frames.AcquireTimeout),
		FenceTimeout:   time.Duration(c.Frames.FenceTimeout),
		Swapchain: render.SwapchainOptions{
			ImageCount:  c.Frames.ImageCount,
			Format:      format,
			PresentMode: mode,
		},
	}
}
