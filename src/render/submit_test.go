package render_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epsilon-frontend/src/render"
	"epsilon-frontend/src/render/rendertest"
)

type submitFixture struct {
	dev        *rendertest.Device
	swapchains *render.SwapchainManager
	sync       *render.FrameSynchronizer
	submitter  *render.CommandSubmitter
	state      *render.SwapchainState
}

func newSubmitFixture(t *testing.T, latency time.Duration) *submitFixture {
	t.Helper()
	surface := rendertest.NewSurface(640, 480)
	f := &submitFixture{dev: rendertest.NewDevice(surface, rendertest.Config{Latency: latency})}
	t.Cleanup(f.dev.Close)

	f.swapchains = render.NewSwapchainManager(f.dev, "pass", render.SwapchainOptions{ImageCount: 2})
	var err error
	f.state, err = f.swapchains.Create(surface.Extent())
	require.NoError(t, err)
	f.sync, err = render.NewFrameSynchronizer(f.dev, 2, len(f.state.Images), time.Second)
	require.NoError(t, err)
	f.submitter = render.NewCommandSubmitter(f.dev, render.PipelineBinding{
		RenderPass:     "pass",
		Pipeline:       "pipeline",
		DescriptorSets: []render.DescriptorSet{"set-0", "set-1"},
		VertexBuffers:  []render.Buffer{"cubes"},
	})
	require.NoError(t, f.submitter.Prepare(f.state))
	return f
}

// submit arms slot and submits seq without a preceding acquire.
func (f *submitFixture) submit(t *testing.T, seq *render.CommandSequence, slot int) error {
	t.Helper()
	require.NoError(t, f.sync.Arm(slot))
	return f.submitter.Submit(seq, f.sync.Slot(slot))
}

func TestCommandSubmitterRecord(t *testing.T) {
	f := newSubmitFixture(t, 0)

	seq, err := f.submitter.Record(1, render.FrameState{
		PushConstants: make([]byte, 16),
		Draws:         []render.DrawCall{{VertexCount: 36, InstanceCount: 8}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seq.Image)
	assert.Equal(t, render.Generation(1), seq.Generation)
	assert.Equal(t, render.SequenceRecording, seq.State())

	cb := seq.Commands.(*rendertest.CommandBuffer)
	assert.Equal(t, []string{
		"begin-render-pass 640x480",
		"viewport 640x480",
		"bind-pipeline",
		"bind-descriptor-sets [set-1]",
		"push-constants 16",
		"bind-vertex-buffers 1",
		"draw 36x8",
		"end-render-pass",
	}, cb.Commands())
	assert.Same(t, seq, f.submitter.Sequence(1))
}

func TestCommandSubmitterLifecycle(t *testing.T) {
	f := newSubmitFixture(t, 20*time.Millisecond)

	seq, err := f.submitter.Record(0, render.FrameState{})
	require.NoError(t, err)
	// nothing signals the image semaphore here, so the fake reports it
	err = f.submit(t, seq, 0)
	require.NoError(t, err)
	assert.Equal(t, render.SequenceSubmitted, seq.State())

	_, err = f.submitter.Record(0, render.FrameState{})
	require.ErrorIs(t, err, render.ErrRecording, "recording over an in-flight sequence")

	require.NoError(t, f.sync.WaitForSlot(0))
	f.submitter.Retire(1)
	assert.Equal(t, render.SequenceSubmitted, seq.State(), "other slot retires nothing")
	f.submitter.Retire(0)
	assert.Equal(t, render.SequenceComplete, seq.State())

	_, err = f.submitter.Record(0, render.FrameState{})
	require.NoError(t, err)
	require.NoError(t, f.dev.WaitIdle())
	assert.Equal(t, []string{"submission waits on a semaphore nothing signals"}, f.dev.Violations())
}

func TestCommandSubmitterRefusesStaleGeneration(t *testing.T) {
	f := newSubmitFixture(t, 0)

	stale, err := f.submitter.Record(0, render.FrameState{})
	require.NoError(t, err)

	state, err := f.swapchains.Recreate(f.state.Extent)
	require.NoError(t, err)
	require.NoError(t, f.sync.Rebuild(len(state.Images)))
	require.NoError(t, f.submitter.Prepare(state))

	err = f.submit(t, stale, 0)
	require.ErrorIs(t, err, render.ErrSubmission)
	assert.Zero(t, f.dev.Counters().Submits)
}

func TestCommandSubmitterRecordWithoutGeneration(t *testing.T) {
	dev := rendertest.NewDevice(rendertest.NewSurface(1, 1), rendertest.Config{})
	t.Cleanup(dev.Close)
	c := render.NewCommandSubmitter(dev, render.PipelineBinding{})

	_, err := c.Record(0, render.FrameState{})
	require.ErrorIs(t, err, render.ErrRecording)
}

func TestFrameSynchronizerGuards(t *testing.T) {
	f := newSubmitFixture(t, 0)
	s, err := render.NewFrameSynchronizer(f.dev, 3, 2, time.Second)
	require.NoError(t, err)
	defer s.Destroy()

	assert.Equal(t, 3, s.FramesInFlight())
	assert.Nil(t, s.AcquireGuard(0, 0), "unguarded image")
	assert.Nil(t, s.AcquireGuard(0, 0), "same slot")
	prev := s.AcquireGuard(0, 2)
	require.NotNil(t, prev)
	assert.Equal(t, 0, prev.Index)
	assert.Same(t, s.Slot(0), prev)
	require.NoError(t, s.WaitForGuard(prev))

	assert.Nil(t, s.AcquireGuard(1, 1))
	require.NoError(t, s.Rebuild(2))
	assert.Nil(t, s.AcquireGuard(1, 2), "rebuild forgets guards")

	assert.Equal(t, 1, s.Advance(0))
	assert.Equal(t, 2, s.Advance(1))
	assert.Equal(t, 0, s.Advance(2))
}

func TestFrameSynchronizerWaitTimeout(t *testing.T) {
	f := newSubmitFixture(t, 0)
	s, err := render.NewFrameSynchronizer(f.dev, 1, 1, 10*time.Millisecond)
	require.NoError(t, err)
	defer s.Destroy()

	require.NoError(t, s.WaitForSlot(0), "fresh slots start signaled")
	// armed but never submitted: nothing will ever signal it
	require.NoError(t, s.Arm(0))
	err = s.WaitForSlot(0)
	require.ErrorIs(t, err, render.ErrDeviceLost)
	require.ErrorIs(t, err, render.ErrTimeout)
}

func TestFrameSynchronizerInvalidSlots(t *testing.T) {
	f := newSubmitFixture(t, 0)
	_, err := render.NewFrameSynchronizer(f.dev, 0, 2, 0)
	require.ErrorIs(t, err, render.ErrResourceCreation)
}
