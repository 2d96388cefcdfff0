// Command epsilon opens a window and renders a spinning grid of cubes with
// the frame loop until the window is closed or the process is interrupted.
package main

//go:generate glslc ../../shaders/cube.vert -o ../../shaders/cube.vert.spv
//go:generate glslc ../../shaders/cube.frag -o ../../shaders/cube.frag.spv

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	vk "github.com/vulkan-go/vulkan"

	"epsilon-frontend/src/config"
	"epsilon-frontend/src/platform"
	"epsilon-frontend/src/render"
	"epsilon-frontend/src/render/vkdevice"
	"epsilon-frontend/src/scene"
)

func init() {
	platform.LockMainThread()
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "epsilon.toml", "path to the TOML configuration")
	watch := flag.Bool("watch", true, "reload the configuration when the file changes")
	flag.Parse()

	var level slog.LevelVar
	render.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))
	log := render.Logger()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		return 2
	}
	l, _ := cfg.LogLevel()
	level.Set(l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		log.Error("startup failed", "err", err)
		return 1
	}
	defer a.destroy()

	if *watch {
		w, err := config.Watch(*configPath, cfg, func(next config.Config) {
			if l, err := next.LogLevel(); err == nil {
				level.Set(l)
			}
			a.reload(next)
		})
		if err != nil {
			log.Warn("config watch disabled", "err", err)
		} else {
			defer w.Close()
		}
	}

	go func() {
		<-ctx.Done()
		platform.Wake()
	}()

	status := a.loop.Run(render.ShutdownAny(
		render.ShutdownOnDone(ctx),
		func() bool {
			a.window.PollEvents()
			return a.window.ShouldClose()
		},
	))
	stats := status.Stats
	log.Info("exit",
		"code", status.Code,
		"presented", stats.Presented,
		"skipped", stats.Skipped,
		"recreations", stats.Recreations)
	if !status.OK() {
		return 1
	}
	return 0
}

// loadConfig falls back to the defaults when path does not exist.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		render.Logger().Info("no config file, using defaults", "path", path)
		return config.Default(), nil
	}
	return cfg, err
}

type app struct {
	window    *platform.Window
	instance  *vkdevice.Instance
	surface   vk.Surface
	device    *vkdevice.Device
	pass      vk.RenderPass
	layout    vk.DescriptorSetLayout
	pipeline  *vkdevice.Pipeline
	vertices  *vkdevice.Buffer
	instances *vkdevice.Buffer
	uniforms  *vkdevice.UniformSets
	scene     *scene.Scene
	loop      *render.FrameLoop

	presentMode atomic.Uint32
	destroyers  []func()
}

func newApp(cfg config.Config) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.destroy()
			a = nil
		}
	}()

	if err := platform.Init(); err != nil {
		return a, err
	}
	a.onDestroy(platform.Terminate)

	a.window, err = platform.NewWindow(platform.WindowOptions{
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		Title:     cfg.Window.Title,
		Resizable: cfg.Window.Resizable,
	})
	if err != nil {
		return a, err
	}
	a.onDestroy(a.window.Destroy)

	a.instance, err = vkdevice.NewInstance(cfg.Window.Title, a.window.RequiredInstanceExtensions(), cfg.Render.Validation)
	if err != nil {
		return a, err
	}
	a.onDestroy(a.instance.Destroy)

	a.surface, err = a.window.CreateSurface(a.instance.Handle)
	if err != nil {
		return a, err
	}
	a.onDestroy(func() { a.instance.DestroySurface(a.surface) })

	a.device, err = vkdevice.Open(a.instance, a.surface, cfg.Render.Validation)
	if err != nil {
		return a, err
	}
	a.onDestroy(a.device.Destroy)

	caps, err := a.device.SurfaceCapabilities()
	if err != nil {
		return a, fmt.Errorf("query surface: %w", err)
	}
	format, err := render.ChooseFormat(caps.Formats, render.SurfaceFormat{
		Format:     render.Format(vk.FormatB8g8r8a8Srgb),
		ColorSpace: render.ColorSpace(vk.ColorSpaceSrgbNonlinear),
	})
	if err != nil {
		return a, err
	}

	a.pass, err = a.device.CreateRenderPass(format.Format)
	if err != nil {
		return a, err
	}
	a.onDestroy(func() { a.device.DestroyRenderPass(a.pass) })

	a.layout, err = a.device.CreateUniformLayout()
	if err != nil {
		return a, err
	}
	a.onDestroy(func() { a.device.DestroyDescriptorSetLayout(a.layout) })

	if err := a.buildPipeline(cfg); err != nil {
		return a, err
	}

	opts := scene.DefaultOptions()
	opts.GridSize = cfg.Render.GridSize
	opts.ClearColor = cfg.Render.ClearColor
	a.scene, err = scene.New(opts, a.window.Controls())
	if err != nil {
		return a, err
	}
	if err := a.buildGeometry(); err != nil {
		return a, err
	}

	frameOpts := cfg.FrameOptions(format)
	a.presentMode.Store(uint32(frameOpts.Swapchain.PresentMode))
	a.loop = render.NewFrameLoop(a.device, a.window, render.PipelineBinding{
		RenderPass:    a.pass,
		Pipeline:      a.pipeline,
		VertexBuffers: []render.Buffer{a.vertices, a.instances},
	}, a.scene, frameOpts)
	a.loop.SetOnInvalidate(func(reason render.Outcome) {
		a.loop.Swapchain().SetPresentMode(render.PresentMode(a.presentMode.Load()))
		render.Logger().Debug("swapchain invalidated", "reason", reason)
	})
	a.loop.SetOnPrepare(func(state *render.SwapchainState) error {
		if err := a.buildUniforms(len(state.Images)); err != nil {
			return err
		}
		a.window.SetTitle(fmt.Sprintf("%s %s %s", cfg.Window.Title, state.Extent, state.PresentMode))
		return nil
	})
	a.onDestroy(a.releaseUniforms)
	a.onDestroy(a.loop.Destroy)
	return a, nil
}

func (a *app) buildPipeline(cfg config.Config) error {
	vert, err := os.ReadFile(cfg.Render.VertexShader)
	if err != nil {
		return fmt.Errorf("vertex shader: %w", err)
	}
	frag, err := os.ReadFile(cfg.Render.FragmentShader)
	if err != nil {
		return fmt.Errorf("fragment shader: %w", err)
	}
	vec3 := vk.FormatR32g32b32Sfloat
	a.pipeline, err = a.device.CreatePipeline(a.pass, vkdevice.PipelineConfig{
		VertexShader:   vert,
		FragmentShader: frag,
		Bindings: []vkdevice.VertexBinding{
			{Stride: scene.VertexStride, Attributes: []vkdevice.VertexAttribute{{Format: vec3}}},
			{Stride: scene.InstanceStride, PerInstance: true, Attributes: []vkdevice.VertexAttribute{
				{Format: vec3},
				{Format: vec3, Offset: 12},
			}},
		},
		SetLayouts:       []vk.DescriptorSetLayout{a.layout},
		PushConstantSize: scene.PushConstantSize,
		CullBackFaces:    true,
	})
	if err != nil {
		return err
	}
	a.onDestroy(a.pipeline.Destroy)
	return nil
}

func (a *app) buildGeometry() (err error) {
	a.vertices, err = a.device.NewVertexBuffer(scene.VertexBytes(scene.CubeVertices()))
	if err != nil {
		return fmt.Errorf("cube vertices: %w", err)
	}
	a.onDestroy(a.vertices.Destroy)
	a.instances, err = a.device.NewVertexBuffer(scene.InstanceBytes(a.scene.Instances()))
	if err != nil {
		return fmt.Errorf("cube instances: %w", err)
	}
	a.onDestroy(a.instances.Destroy)
	return nil
}

// buildUniforms replaces the camera uniforms with one buffer and set per
// image of the new generation. The device is idle while the prepare hook
// runs.
func (a *app) buildUniforms(images int) error {
	a.releaseUniforms()
	u, err := a.device.NewUniformSets(a.layout, images, scene.UniformSize)
	if err != nil {
		return fmt.Errorf("camera uniforms: %w", err)
	}
	a.uniforms = u
	a.loop.SetDescriptorSets(u.Sets())
	a.scene.SetUniforms(u)
	return nil
}

func (a *app) releaseUniforms() {
	if a.uniforms == nil {
		return
	}
	a.scene.SetUniforms(nil)
	a.loop.SetDescriptorSets(nil)
	a.uniforms.Destroy()
	a.uniforms = nil
}

// reload applies the live parts of a new config. It runs on the watcher
// goroutine.
func (a *app) reload(cfg config.Config) {
	a.scene.SetClearColor(cfg.Render.ClearColor)
	mode, err := cfg.PresentMode()
	if err != nil {
		return
	}
	if old := a.presentMode.Swap(uint32(mode)); old != uint32(mode) {
		render.Logger().Info("present mode changed", "from", render.PresentMode(old), "to", mode)
		a.window.Invalidate()
	}
}

func (a *app) onDestroy(fn func()) {
	a.destroyers = append(a.destroyers, fn)
}

// destroy releases everything in reverse creation order.
func (a *app) destroy() {
	for i := len(a.destroyers) - 1; i >= 0; i-- {
		a.destroyers[i]()
	}
	a.destroyers = nil
}
