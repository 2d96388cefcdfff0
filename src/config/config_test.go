package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epsilon-frontend/src/render"
)

const sample = `
[window]
width = 800
height = 600
title = "cubes"

[frames]
in_flight = 3
image_count = 4
acquire_timeout = "250ms"
fence_timeout = "2s"
present_mode = "mailbox"

[render]
clear_color = [0.1, 0.2, 0.3, 1.0]
validation = true

[log]
level = "debug"
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	mode, err := cfg.PresentMode()
	require.NoError(t, err)
	assert.Equal(t, render.PresentModeFifo, mode)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, WindowConfig{Width: 800, Height: 600, Title: "cubes", Resizable: true}, cfg.Window)
	assert.Equal(t, 3, cfg.Frames.InFlight)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, cfg.Render.ClearColor)
	assert.True(t, cfg.Render.Validation)
	assert.Equal(t, Default().Render.VertexShader, cfg.Render.VertexShader, "unset keys keep defaults")

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	format := render.SurfaceFormat{Format: 44}
	assert.Equal(t, render.Options{
		FramesInFlight: 3,
		AcquireTimeout: 250 * time.Millisecond,
		FenceTimeout:   2 * time.Second,
		Swapchain: render.SwapchainOptions{
			ImageCount:  4,
			Format:      format,
			PresentMode: render.PresentModeMailbox,
		},
	}, cfg.FrameOptions(format))
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("[window]\nwidht = 3\n"))
	var strict *toml.StrictMissingError
	require.ErrorAs(t, err, &strict)
	assert.Contains(t, err.Error(), "widht")
}

func TestParseInvalid(t *testing.T) {
	for idx, tc := range []struct {
		name string
		doc  string
	}{
		{name: "duration", doc: "[frames]\nacquire_timeout = \"soon\"\n"},
		{name: "in_flight", doc: "[frames]\nin_flight = 0\n"},
		{name: "present_mode", doc: "[frames]\npresent_mode = \"vsync\"\n"},
		{name: "window", doc: "[window]\nwidth = -1\n"},
		{name: "clear_color", doc: "[render]\nclear_color = [2.0, 0.0, 0.0, 1.0]\n"},
		{name: "grid_size", doc: "[render]\ngrid_size = 0\n"},
		{name: "log", doc: "[log]\nlevel = \"loud\"\n"},
		{name: "syntax", doc: "[frames\n"},
	} {
		t.Run(fmt.Sprintf("%d/%s", idx, tc.name), func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.doc))
			require.Error(t, err)
		})
	}
}

func TestPresentMode(t *testing.T) {
	for idx, tc := range []struct {
		mode  string
		vsync bool
		want  render.PresentMode
	}{
		{vsync: true, want: render.PresentModeFifo},
		{vsync: false, want: render.PresentModeImmediate},
		{mode: "mailbox", vsync: true, want: render.PresentModeMailbox},
		{mode: "fifo", vsync: false, want: render.PresentModeFifo},
	} {
		t.Run(fmt.Sprintf("%d/%s", idx, tc.mode), func(t *testing.T) {
			cfg := Default()
			cfg.Frames.PresentMode = tc.mode
			cfg.Frames.VSync = tc.vsync
			got, err := cfg.PresentMode()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epsilon.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Window.Width)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// replace writes doc next to path and renames it over path, the way editors
// save.
func replace(t *testing.T, path, doc string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(doc), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epsilon.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	initial, err := Load(path)
	require.NoError(t, err)

	changes := make(chan Config, 8)
	w, err := Watch(path, initial, func(c Config) { changes <- c })
	require.NoError(t, err)
	defer w.Close()

	replace(t, path, "[frames\n")
	replace(t, path, strings.Replace(sample, "[0.1, 0.2, 0.3, 1.0]", "[1.0, 0.0, 0.0, 1.0]", 1))

	select {
	case cfg := <-changes:
		assert.Equal(t, [4]float32{1, 0, 0, 1}, cfg.Render.ClearColor)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	select {
	case cfg := <-changes:
		// a second event for the same save carries the same document
		assert.Equal(t, [4]float32{1, 0, 0, 1}, cfg.Render.ClearColor)
	default:
	}
}
