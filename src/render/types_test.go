package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ext(w, h uint32) Extent { return Extent{Width: w, Height: h} }

func TestExtentClamp(t *testing.T) {
	for idx, tc := range []struct {
		in, min, max, out Extent
	}{
		{ext(800, 600), ext(1, 1), ext(4096, 4096), ext(800, 600)},
		{ext(0, 600), ext(1, 1), ext(4096, 4096), ext(1, 600)},
		{ext(8000, 600), ext(1, 1), ext(4096, 4096), ext(4096, 600)},
		{ext(800, 9000), ext(1, 1), ext(4096, 4096), ext(800, 4096)},
		{ext(640, 480), ext(640, 480), ext(640, 480), ext(640, 480)},
	} {
		t.Run(fmt.Sprintf("%d/%s", idx, tc.in), func(t *testing.T) {
			require.Equal(t, tc.out, tc.in.Clamp(tc.min, tc.max))
		})
	}
}

func TestExtentPredicates(t *testing.T) {
	assert.True(t, ext(0, 0).IsZero())
	assert.True(t, ext(0, 600).IsZero())
	assert.True(t, ext(800, 0).IsZero())
	assert.False(t, ext(1, 1).IsZero())
	assert.True(t, UndefinedExtent.IsUndefined())
	assert.False(t, ext(800, 600).IsUndefined())
	assert.Equal(t, "800x600", ext(800, 600).String())
}

func TestParsePresentMode(t *testing.T) {
	for _, m := range []PresentMode{PresentModeFifo, PresentModeMailbox, PresentModeImmediate} {
		got, err := ParsePresentMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	got, err := ParsePresentMode("")
	require.NoError(t, err)
	require.Equal(t, PresentModeFifo, got)

	_, err = ParsePresentMode("vsync")
	require.Error(t, err)
}

func TestOutcomeMerge(t *testing.T) {
	for idx, tc := range []struct {
		a, b, out Outcome
	}{
		{OutcomeReady, OutcomeReady, OutcomeReady},
		{OutcomeReady, OutcomeNeedsRecreate, OutcomeNeedsRecreate},
		{OutcomeNeedsRecreate, OutcomeReady, OutcomeNeedsRecreate},
		{OutcomeNeedsRecreate, OutcomeUnusable, OutcomeUnusable},
		{OutcomeUnusable, OutcomeNeedsRecreate, OutcomeUnusable},
	} {
		t.Run(fmt.Sprintf("%d/%s+%s", idx, tc.a, tc.b), func(t *testing.T) {
			require.Equal(t, tc.out, tc.a.Merge(tc.b))
		})
	}
	assert.Equal(t, OutcomeReady, StatusReady.Outcome())
	assert.Equal(t, OutcomeNeedsRecreate, StatusSurfaceStale.Outcome())
	assert.Equal(t, OutcomeUnusable, StatusSurfaceUnusable.Outcome())
	assert.False(t, OutcomeReady.Recreate())
	assert.True(t, OutcomeNeedsRecreate.Recreate())
	assert.True(t, OutcomeUnusable.Recreate())
}

func TestChooseImageCount(t *testing.T) {
	for idx, tc := range []struct {
		min, max, desired, out uint32
	}{
		{2, 8, 0, 3},
		{2, 8, 3, 3},
		{2, 8, 1, 2},
		{2, 3, 5, 3},
		{3, 0, 12, 12},
		{3, 3, 0, 3},
	} {
		t.Run(fmt.Sprintf("%d/%d-%d", idx, tc.min, tc.max), func(t *testing.T) {
			caps := SurfaceCapabilities{MinImageCount: tc.min, MaxImageCount: tc.max}
			require.Equal(t, tc.out, chooseImageCount(caps, tc.desired))
		})
	}
}

func TestChooseExtent(t *testing.T) {
	bounds := SurfaceCapabilities{MinExtent: ext(1, 1), MaxExtent: ext(2048, 2048)}
	with := func(current Extent) SurfaceCapabilities {
		c := bounds
		c.CurrentExtent = current
		return c
	}
	for idx, tc := range []struct {
		caps      SurfaceCapabilities
		preferred Extent
		out       Extent
	}{
		{with(ext(800, 600)), ext(1024, 768), ext(800, 600)},
		{with(UndefinedExtent), ext(1024, 768), ext(1024, 768)},
		{with(UndefinedExtent), ext(4000, 768), ext(2048, 768)},
		{with(UndefinedExtent), ext(0, 0), ext(0, 0)},
		{with(ext(0, 0)), ext(800, 600), ext(0, 0)},
	} {
		t.Run(fmt.Sprintf("%d/%s", idx, tc.caps.CurrentExtent), func(t *testing.T) {
			require.Equal(t, tc.out, chooseExtent(tc.caps, tc.preferred))
		})
	}
}

func TestChooseFormat(t *testing.T) {
	srgb := SurfaceFormat{Format: 50, ColorSpace: 0}
	unorm := SurfaceFormat{Format: 44, ColorSpace: 0}

	f, err := ChooseFormat([]SurfaceFormat{unorm, srgb}, srgb)
	require.NoError(t, err)
	require.Equal(t, srgb, f)

	f, err = ChooseFormat([]SurfaceFormat{unorm}, srgb)
	require.NoError(t, err)
	require.Equal(t, unorm, f)

	f, err = ChooseFormat([]SurfaceFormat{{Format: FormatUndefined}}, srgb)
	require.NoError(t, err)
	require.Equal(t, srgb, f)

	_, err = ChooseFormat(nil, srgb)
	require.Error(t, err)
}

func TestChoosePresentMode(t *testing.T) {
	modes := []PresentMode{PresentModeFifo, PresentModeMailbox}
	require.Equal(t, PresentModeMailbox, choosePresentMode(modes, PresentModeMailbox))
	require.Equal(t, PresentModeFifo, choosePresentMode(modes, PresentModeImmediate))
	require.Equal(t, PresentModeFifo, choosePresentMode(nil, PresentModeMailbox))
}

func TestNewError(t *testing.T) {
	require.NoError(t, NewError(ErrSubmission, "submit", nil))

	cause := errors.New("queue rejected")
	err := NewError(ErrSubmission, "submit", cause)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrSubmission)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrRecording)
	require.Equal(t, ErrSubmission, KindOf(err))
	require.Contains(t, err.Error(), "submit: submission failed: queue rejected")
	require.Contains(t, err.Error(), "TestNewError")

	wrapped := fmt.Errorf("frame 3: %w", err)
	require.Equal(t, ErrSubmission, KindOf(wrapped))
	require.Nil(t, KindOf(cause))
}

func TestCheckError(t *testing.T) {
	run := func(v interface{}) (err error) {
		defer CheckError(&err)
		panic(v)
	}
	err := run(ErrDeviceLost)
	require.ErrorIs(t, err, ErrDeviceLost)

	err = run("boom")
	require.EqualError(t, err, "recovered: boom")
}

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	require.False(t, Logger().Enabled(context.Background(), slog.LevelError))

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Logger().Info("swapchain ready", "generation", 1)
	require.Contains(t, buf.String(), "swapchain ready")
	require.Contains(t, buf.String(), "generation=1")

	SetLogger(nil)
	require.False(t, Logger().Enabled(context.Background(), slog.LevelError))
}
