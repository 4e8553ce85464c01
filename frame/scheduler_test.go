package frame

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/ROTARTSI82/Hephaestus/handle"
)

func newTestScheduler(t *testing.T, g *fakeGPU, frames int) (*Scheduler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := New(g, g.win, Options{FramesInFlight: frames, Logger: logger})
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	g.events = nil
	return s, &buf
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 0)

	assert.Equal(t, DefaultFramesInFlight, s.FramesInFlight())
	assert.Equal(t, 3, s.Swapchain().ImageCount())
	assert.Len(t, s.CommandBuffers(), 3)
	assert.Equal(t, 1, g.bakes)
	assert.Equal(t, StateReady, s.State())
	for _, f := range g.fences {
		assert.True(t, f.signaled, "slot fences start signaled")
	}
}

func TestFramesInFlightBound(t *testing.T) {
	for _, lag := range []int{0, 1, 2, 3, 8} {
		g := newFakeGPU(t, 3)
		g.lag = lag
		s, _ := newTestScheduler(t, g, 2)

		for i := 0; i < 20; i++ {
			require.NoError(t, s.DrawFrame())
		}

		assert.Equal(t, 20, g.submits, "lag %d", lag)
		assert.LessOrEqual(t, g.maxPending, 2, "lag %d", lag)
		if lag >= 2 {
			assert.Equal(t, 2, g.maxPending, "lag %d", lag)
			assert.Positive(t, g.blocks, "lag %d", lag)
		}
		if lag == 0 {
			assert.Zero(t, g.blocks)
		}
	}
}

func TestStalledGPUBlocksInsteadOfOverSubmitting(t *testing.T) {
	g := newFakeGPU(t, 3)
	g.stalled = true
	s, _ := newTestScheduler(t, g, 2)

	require.NoError(t, s.DrawFrame())
	require.NoError(t, s.DrawFrame())

	err := s.DrawFrame()
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, g.submits)
	assert.Equal(t, StateReady, s.State())
}

func TestImageReuseWaitsOnOwningFence(t *testing.T) {
	g := newFakeGPU(t, 3)
	g.lag = 100
	g.acquireImages = []uint32{0, 0}
	s, _ := newTestScheduler(t, g, 2)

	require.NoError(t, s.DrawFrame())
	require.NoError(t, s.DrawFrame())

	assert.Equal(t, []string{
		"wait f0", "acquire img0", "submit img0 f0", "present img0",
		"wait f1", "acquire img0", "wait f0", "block f0", "submit img0 f1", "present img0",
	}, g.events)
}

func TestImageOwnedByCurrentSlotIsNotWaitedTwice(t *testing.T) {
	g := newFakeGPU(t, 2)
	g.lag = 100
	g.acquireImages = []uint32{0, 0}
	s, _ := newTestScheduler(t, g, 1)

	require.NoError(t, s.DrawFrame())
	g.events = nil
	require.NoError(t, s.DrawFrame())

	assert.Equal(t, []string{
		"wait f0", "block f0", "acquire img0", "submit img0 f0", "present img0",
	}, g.events)
}

func TestFrameSlotsRotate(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)

	var slots []int
	for i := 0; i < 5; i++ {
		slots = append(slots, s.CurrentFrame())
		require.NoError(t, s.DrawFrame())
		assert.Equal(t, StateReady, s.State())
	}

	assert.Equal(t, []int{0, 1, 0, 1, 0}, slots)
	assert.Equal(t, []int{0, 1, 0, 1, 0}, g.submitFences)
	assert.Equal(t, []uint32{0, 1, 2, 0, 1}, g.submitImages)
	assert.Equal(t, 5, g.acquires)
	assert.Equal(t, 5, g.submits)
	assert.Equal(t, 5, g.presents)
	assert.Equal(t, 1, s.CurrentFrame())
}

func TestZeroFramebufferWaitsBeforeBuild(t *testing.T) {
	g := newFakeGPU(t, 3)
	g.win.zeroFor = 3
	s, _ := newTestScheduler(t, g, 2)

	require.Len(t, g.buildWaits, 1)
	assert.Equal(t, 3, g.buildWaits[0])

	g.win.zeroFor = 2
	require.NoError(t, s.Recreate())

	require.Len(t, g.buildWaits, 2)
	assert.Equal(t, 5, g.buildWaits[1])
	assert.Equal(t, Extent{Width: 800, Height: 600}, s.Swapchain().Extent())
}

func TestRecreationOrder(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	s.AddResizeListener(ListenerFunc(func(e Extent) {
		g.event("resize %s", e)
	}))
	old := g.swapchains[0]
	oldCmds := s.CommandBuffers()

	require.NoError(t, s.Recreate())

	assert.Equal(t, []string{
		"build sc1", "resize 800x600", "idle", "free 3", "destroy sc0", "bake 3",
	}, g.events)
	require.Len(t, g.swapchains, 2)
	assert.Same(t, old, g.swapchains[1].old)
	assert.True(t, old.destroyed)
	for _, c := range oldCmds {
		assert.True(t, c.(*fakeCmd).freed)
	}
	for _, f := range s.imageFences {
		assert.Nil(t, f)
	}
	assert.Equal(t, uint64(1), s.Stats().Recreated)

	// slot semaphores are replaced, slot fences survive
	require.Len(t, g.semaphores, 8)
	for _, sem := range g.semaphores[:4] {
		assert.True(t, sem.destroyed)
	}
	for _, sem := range g.semaphores[4:] {
		assert.False(t, sem.destroyed)
	}
	assert.Len(t, g.fences, 2)
}

func TestImageCountChangeResizesFenceMap(t *testing.T) {
	g := newFakeGPU(t, 2)
	s, _ := newTestScheduler(t, g, 2)
	require.NoError(t, s.DrawFrame())

	g.images = 4
	require.NoError(t, s.Recreate())
	assert.Len(t, s.imageFences, 4)
	assert.Len(t, s.CommandBuffers(), 4)

	for i := 0; i < 8; i++ {
		require.NoError(t, s.DrawFrame())
	}
}

func TestStaleAcquireRecreatesWithoutSubmitting(t *testing.T) {
	for _, stale := range []error{ErrOutOfDate, ErrSuboptimal, errors.Wrap(ErrOutOfDate, "acquire")} {
		g := newFakeGPU(t, 3)
		g.acquireErrs = []error{stale}
		s, _ := newTestScheduler(t, g, 2)

		require.NoError(t, s.DrawFrame())
		assert.Zero(t, g.submits)
		assert.Zero(t, g.presents)
		assert.Len(t, g.swapchains, 2)
		assert.Equal(t, 0, s.CurrentFrame())

		require.NoError(t, s.DrawFrame())
		assert.Equal(t, 1, g.submits)
		assert.Equal(t, 1, s.CurrentFrame())
	}
}

func TestStalePresentRecreatesAndAdvances(t *testing.T) {
	g := newFakeGPU(t, 3)
	g.presentErrs = []error{ErrOutOfDate}
	s, _ := newTestScheduler(t, g, 2)

	require.NoError(t, s.DrawFrame())
	assert.Equal(t, 1, g.submits)
	assert.Equal(t, 1, g.presents)
	assert.Len(t, g.swapchains, 2)
	assert.Equal(t, 1, s.CurrentFrame())
}

func TestResizeFlagConsumedAfterPresent(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)

	s.NotifyResize()
	require.NoError(t, s.DrawFrame())
	assert.Len(t, g.swapchains, 2)

	require.NoError(t, s.DrawFrame())
	assert.Len(t, g.swapchains, 2)
}

func TestAcquireErrorPropagates(t *testing.T) {
	g := newFakeGPU(t, 3)
	lost := errors.New("device lost")
	g.acquireErrs = []error{lost}
	s, _ := newTestScheduler(t, g, 2)

	err := s.DrawFrame()
	require.ErrorIs(t, err, lost)
	assert.Len(t, g.swapchains, 1)
	assert.Zero(t, g.submits)
}

func TestPresentErrorPropagates(t *testing.T) {
	g := newFakeGPU(t, 3)
	lost := errors.New("surface lost")
	g.presentErrs = []error{lost}
	s, _ := newTestScheduler(t, g, 2)

	err := s.DrawFrame()
	require.ErrorIs(t, err, lost)
	assert.Len(t, g.swapchains, 1)
}

func TestRecordingSurvivesRecreation(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	s.AddResizeListener(ListenerFunc(func(Extent) {}))

	pipelines := handle.NewTable[string]()
	buffers := handle.NewTable[string]()
	pipe := pipelines.Insert("triangle")
	vbo := buffers.Insert("vertices")

	s.Recording().
		BindPipeline(pipe).
		SetDefaultViewport().
		SetDefaultScissor().
		BindVertexBuffer(0, vbo, 0).
		Draw(3)
	require.NoError(t, s.SaveRecording())

	expect := func(w, h string) []string {
		return []string{
			"pipeline " + pipe.String(),
			"viewport 0,0 " + w + "x" + h,
			"scissor 0,0 " + w + "x" + h,
			"vertex 0 " + vbo.String() + " +0",
			"draw 3",
		}
	}

	cmds := s.CommandBuffers()
	require.Len(t, cmds, 3)
	for _, c := range cmds {
		assert.Equal(t, expect("800", "600"), c.(*fakeCmd).calls)
	}

	g.images = 4
	g.win.size = Extent{Width: 1024, Height: 768}
	s.NotifyResize()
	require.NoError(t, s.DrawFrame())

	cmds = s.CommandBuffers()
	require.Len(t, cmds, 4)
	for i, c := range cmds {
		assert.Equal(t, i, c.(*fakeCmd).image)
		assert.Equal(t, expect("1024", "768"), c.(*fakeCmd).calls)
	}
}

func TestSaveRecordingFreesOldBuffers(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	old := s.CommandBuffers()

	s.Recording().Draw(3)
	require.NoError(t, s.SaveRecording())

	assert.Equal(t, []string{"bake 3", "idle", "free 3"}, g.events)
	for _, c := range old {
		assert.True(t, c.(*fakeCmd).freed)
	}
	for _, c := range s.CommandBuffers() {
		assert.False(t, c.(*fakeCmd).freed)
		assert.Equal(t, []string{"draw 3"}, c.(*fakeCmd).calls)
	}
}

func TestRebuildRunsWhileIdleThenRebakes(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	require.NoError(t, s.DrawFrame())
	g.events = nil

	require.NoError(t, s.Rebuild(func() error {
		assert.Empty(t, g.pending, "device is idle inside fn")
		g.event("fn")
		return nil
	}))
	assert.Equal(t, []string{"idle", "fn", "bake 3", "idle", "free 3"}, g.events)
}

func TestRebuildFailureKeepsCommandBuffers(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	old := s.CommandBuffers()

	err := s.Rebuild(func() error { return errors.New("pipeline failed") })
	require.Error(t, err)
	assert.Equal(t, old, s.CommandBuffers())
	assert.Equal(t, 1, g.bakes)
}

func TestSaveRecordingFromListenerDefers(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	s.Recording().Draw(3)
	require.NoError(t, s.SaveRecording())
	bakes := g.bakes

	s.AddResizeListener(ListenerFunc(func(e Extent) {
		s.Recording().Clear()
		s.Recording().SetDefaultViewport().Draw(6)
		assert.NoError(t, s.SaveRecording())
	}))

	require.NoError(t, s.Recreate())
	assert.Equal(t, bakes+1, g.bakes, "only the recreation bakes")
	for _, c := range s.CommandBuffers() {
		assert.Equal(t, []string{"viewport 0,0 800x600", "draw 6"}, c.(*fakeCmd).calls)
	}
}

func recreateWithin(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Recreate() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(d):
		t.Fatal("Recreate did not return")
	}
}

func TestListenerMayRebuildAndReadState(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	require.NoError(t, s.DrawFrame())
	old := s.Swapchain()
	g.events = nil

	var (
		current  int
		seen     Swapchain
		cmds     int
		rebuilds []error
	)
	s.AddResizeListener(ListenerFunc(func(Extent) {
		current = s.CurrentFrame()
		seen = s.Swapchain()
		cmds = len(s.CommandBuffers())
		_ = s.Stats()
		rebuilds = append(rebuilds, s.Rebuild(func() error {
			g.event("fn")
			return nil
		}))
		rebuilds = append(rebuilds, s.Rebuild(func() error {
			return errors.New("pipeline failed")
		}))
	}))

	recreateWithin(t, s, 5*time.Second)

	assert.Equal(t, 1, current)
	assert.Same(t, old, seen, "listeners run before the new generation is installed")
	assert.Equal(t, 3, cmds)
	require.Len(t, rebuilds, 2)
	assert.NoError(t, rebuilds[0])
	assert.EqualError(t, rebuilds[1], "pipeline failed")
	assert.Equal(t, []string{
		"build sc1", "idle", "fn", "idle", "idle", "free 3", "destroy sc0", "bake 3",
	}, g.events)
	assert.Equal(t, 2, g.bakes, "only the recreation bakes")
}

func TestSaveRecordingFromOtherGoroutineDuringNotification(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.AddResizeListener(ListenerFunc(func(Extent) {
		close(entered)
		<-release
	}))

	var saveErr error
	go func() {
		defer close(release)
		<-entered
		s.Recording().Clear()
		s.Recording().Draw(9)
		saveErr = s.SaveRecording()
	}()

	recreateWithin(t, s, 5*time.Second)

	require.NoError(t, saveErr)
	assert.Equal(t, 2, g.bakes)
	for _, c := range s.CommandBuffers() {
		assert.Equal(t, []string{"draw 9"}, c.(*fakeCmd).calls)
	}
}

func TestRecreateWithoutListenerWarns(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, logs := newTestScheduler(t, g, 2)

	require.NoError(t, s.Recreate())
	assert.Contains(t, logs.String(), "no resize listener")

	logs.Reset()
	remove := s.AddResizeListener(ListenerFunc(func(Extent) {}))
	require.NoError(t, s.Recreate())
	assert.NotContains(t, logs.String(), "no resize listener")

	remove()
	remove()
	require.NoError(t, s.Recreate())
	assert.Contains(t, logs.String(), "no resize listener")
}

func TestListenersNotifiedInOrder(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)

	var got []int
	s.AddResizeListener(ListenerFunc(func(Extent) { got = append(got, 1) }))
	removeSecond := s.AddResizeListener(ListenerFunc(func(Extent) { got = append(got, 2) }))
	s.AddResizeListener(ListenerFunc(func(Extent) { got = append(got, 3) }))

	require.NoError(t, s.Recreate())
	removeSecond()
	require.NoError(t, s.Recreate())

	assert.Equal(t, []int{1, 2, 3, 1, 3}, got)
}

func TestDestroy(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	require.NoError(t, s.DrawFrame())
	cmds := s.CommandBuffers()

	s.Destroy()
	s.Destroy()

	for _, c := range cmds {
		assert.True(t, c.(*fakeCmd).freed)
	}
	assert.True(t, g.swapchains[0].destroyed)
	for _, f := range g.fences {
		assert.True(t, f.destroyed)
	}
	for _, sem := range g.semaphores {
		assert.True(t, sem.destroyed)
	}

	assert.ErrorIs(t, s.DrawFrame(), ErrDestroyed)
	assert.ErrorIs(t, s.Recreate(), ErrDestroyed)
	assert.ErrorIs(t, s.SaveRecording(), ErrDestroyed)
	assert.ErrorIs(t, s.Rebuild(func() error { return nil }), ErrDestroyed)
}

func TestStats(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.DrawFrame())
	}

	st := s.Stats()
	assert.Equal(t, uint64(3), st.Frames)
	assert.LessOrEqual(t, st.Min, st.Max)
	assert.Equal(t, st.Total/3, st.Mean())
	assert.Zero(t, Stats{}.Mean())
}

func TestConcurrentResizeNotifications(t *testing.T) {
	g := newFakeGPU(t, 3)
	s, _ := newTestScheduler(t, g, 2)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				s.NotifyResize()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		require.NoError(t, s.DrawFrame())
	}
	close(done)
	wg.Wait()

	assert.Equal(t, 50, g.submits)
	assert.GreaterOrEqual(t, len(g.swapchains), 2)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "recreating", StateRecreating.String())
	assert.Equal(t, "unknown", State(42).String())
}
