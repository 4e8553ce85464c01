package frame

import (
	"fmt"
	"testing"
	"time"

	"github.com/ROTARTSI82/Hephaestus/handle"
)

// fakeGPU stands in for a device, its queue and the presentation engine. Work
// submitted to it completes lazily: once more than lag submissions are pending
// the oldest one retires, and waiting on an unsignaled fence retires pending
// work in submission order until that fence is signaled.
type fakeGPU struct {
	t   *testing.T
	win *fakeWindow

	lag     int
	stalled bool

	images int
	extent Extent

	// scripted acquisition results, consumed front to back
	acquireImages []uint32
	acquireErrs   []error
	presentErrs   []error

	fences     []*fakeFence
	semaphores []*fakeSemaphore
	swapchains []*fakeSwapchain
	pending    []*fakeFence
	maxPending int

	acquires, submits, presents int
	blocks                      int
	idles                       int
	bakes                       int
	freed                       int
	nextCmd                     int

	buildWaits   []int
	submitFences []int
	submitImages []uint32

	events []string
}

func newFakeGPU(t *testing.T, images int) *fakeGPU {
	return &fakeGPU{
		t:      t,
		win:    &fakeWindow{size: Extent{Width: 800, Height: 600}},
		lag:    0,
		images: images,
	}
}

func (g *fakeGPU) event(format string, args ...interface{}) {
	g.events = append(g.events, fmt.Sprintf(format, args...))
}

func (g *fakeGPU) retireOldest() {
	f := g.pending[0]
	g.pending = g.pending[1:]
	f.signaled = true
}

func (g *fakeGPU) CreateSemaphore() (Semaphore, error) {
	s := &fakeSemaphore{id: len(g.semaphores)}
	g.semaphores = append(g.semaphores, s)
	return s, nil
}

func (g *fakeGPU) CreateFence(signaled bool) (Fence, error) {
	f := &fakeFence{gpu: g, id: len(g.fences), signaled: signaled}
	g.fences = append(g.fences, f)
	return f, nil
}

func (g *fakeGPU) BuildSwapchain(old Swapchain) (Swapchain, error) {
	extent := g.win.size
	if g.extent.Width != 0 {
		extent = g.extent
	}
	sc := &fakeSwapchain{gpu: g, gen: len(g.swapchains), images: g.images, extent: extent}
	if old != nil {
		sc.old = old.(*fakeSwapchain)
	}
	g.swapchains = append(g.swapchains, sc)
	g.buildWaits = append(g.buildWaits, g.win.waits)
	g.event("build sc%d", sc.gen)
	return sc, nil
}

func (g *fakeGPU) Bake(sc Swapchain, rec *Recording) ([]CommandBuffer, error) {
	g.bakes++
	g.event("bake %d", sc.ImageCount())
	cmds := make([]CommandBuffer, sc.ImageCount())
	for i := range cmds {
		enc := &captureEncoder{}
		rec.Replay(enc, sc.Extent())
		cmds[i] = &fakeCmd{id: g.nextCmd, image: i, calls: enc.calls}
		g.nextCmd++
	}
	return cmds, nil
}

func (g *fakeGPU) FreeCommandBuffers(cmds []CommandBuffer) {
	for _, c := range cmds {
		fc := c.(*fakeCmd)
		if fc.freed {
			g.t.Errorf("command buffer %d freed twice", fc.id)
		}
		fc.freed = true
	}
	g.freed += len(cmds)
	g.event("free %d", len(cmds))
}

func (g *fakeGPU) Submit(cmd CommandBuffer, wait, signal Semaphore, fence Fence) error {
	fc := cmd.(*fakeCmd)
	if fc.freed {
		g.t.Errorf("submitted freed command buffer %d", fc.id)
	}
	f := fence.(*fakeFence)
	if f.signaled {
		g.t.Errorf("submitted with signaled fence f%d", f.id)
	}
	if wait.(*fakeSemaphore).destroyed || signal.(*fakeSemaphore).destroyed {
		g.t.Errorf("submitted with a destroyed semaphore")
	}
	g.submits++
	g.submitFences = append(g.submitFences, f.id)
	g.submitImages = append(g.submitImages, uint32(fc.image))
	g.event("submit img%d f%d", fc.image, f.id)

	g.pending = append(g.pending, f)
	if len(g.pending) > g.maxPending {
		g.maxPending = len(g.pending)
	}
	for !g.stalled && len(g.pending) > g.lag {
		g.retireOldest()
	}
	return nil
}

func (g *fakeGPU) WaitIdle() error {
	g.idles++
	g.event("idle")
	if g.stalled {
		return nil
	}
	for len(g.pending) > 0 {
		g.retireOldest()
	}
	return nil
}

type fakeFence struct {
	gpu       *fakeGPU
	id        int
	signaled  bool
	destroyed bool
}

func (f *fakeFence) Wait(timeout time.Duration) error {
	f.gpu.event("wait f%d", f.id)
	if f.signaled {
		return nil
	}
	f.gpu.blocks++
	f.gpu.event("block f%d", f.id)
	if f.gpu.stalled {
		return ErrTimeout
	}
	for !f.signaled && len(f.gpu.pending) > 0 {
		f.gpu.retireOldest()
	}
	if !f.signaled {
		// never submitted: a real wait would hang
		return ErrTimeout
	}
	return nil
}

func (f *fakeFence) Reset() error {
	f.signaled = false
	return nil
}

func (f *fakeFence) Destroy() {
	f.destroyed = true
}

type fakeSemaphore struct {
	id        int
	destroyed bool
}

func (s *fakeSemaphore) Destroy() {
	s.destroyed = true
}

type fakeSwapchain struct {
	gpu       *fakeGPU
	gen       int
	old       *fakeSwapchain
	images    int
	extent    Extent
	next      int
	destroyed bool
}

func (s *fakeSwapchain) Extent() Extent  { return s.extent }
func (s *fakeSwapchain) ImageCount() int { return s.images }

func (s *fakeSwapchain) Acquire(timeout time.Duration, signal Semaphore) (uint32, error) {
	g := s.gpu
	if s.destroyed {
		g.t.Errorf("acquire on destroyed swapchain sc%d", s.gen)
	}
	g.acquires++
	if len(g.acquireErrs) > 0 {
		err := g.acquireErrs[0]
		g.acquireErrs = g.acquireErrs[1:]
		if err != nil {
			g.event("acquire %v", err)
			return 0, err
		}
	}
	var image uint32
	if len(g.acquireImages) > 0 {
		image = g.acquireImages[0]
		g.acquireImages = g.acquireImages[1:]
	} else {
		image = uint32(s.next % s.images)
		s.next++
	}
	g.event("acquire img%d", image)
	return image, nil
}

func (s *fakeSwapchain) Present(image uint32, wait Semaphore) error {
	g := s.gpu
	g.presents++
	g.event("present img%d", image)
	if len(g.presentErrs) > 0 {
		err := g.presentErrs[0]
		g.presentErrs = g.presentErrs[1:]
		return err
	}
	return nil
}

func (s *fakeSwapchain) Destroy() {
	if s.destroyed {
		s.gpu.t.Errorf("swapchain sc%d destroyed twice", s.gen)
	}
	s.destroyed = true
	s.gpu.event("destroy sc%d", s.gen)
}

// fakeWindow reports a zero framebuffer for the next zeroFor queries.
type fakeWindow struct {
	size    Extent
	zeroFor int
	waits   int
}

func (w *fakeWindow) FramebufferSize() Extent {
	if w.zeroFor > 0 {
		w.zeroFor--
		return Extent{}
	}
	return w.size
}

func (w *fakeWindow) WaitEvents() {
	w.waits++
}

type fakeCmd struct {
	id    int
	image int
	calls []string
	freed bool
}

type captureEncoder struct {
	calls []string
}

func (e *captureEncoder) add(format string, args ...interface{}) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *captureEncoder) BindPipeline(pipeline handle.ID) {
	e.add("pipeline %v", pipeline)
}

func (e *captureEncoder) SetViewport(v Viewport) {
	e.add("viewport %v,%v %vx%v", v.X, v.Y, v.Width, v.Height)
}

func (e *captureEncoder) SetScissor(r Rect) {
	e.add("scissor %d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

func (e *captureEncoder) BindVertexBuffer(binding uint32, buffer handle.ID, offset uint64) {
	e.add("vertex %d %v +%d", binding, buffer, offset)
}

func (e *captureEncoder) BindIndexBuffer(buffer handle.ID, offset uint64, index32 bool) {
	e.add("index %v +%d 32=%t", buffer, offset, index32)
}

func (e *captureEncoder) Draw(vertexCount uint32) {
	e.add("draw %d", vertexCount)
}

func (e *captureEncoder) DrawIndexed(indexCount uint32) {
	e.add("drawIndexed %d", indexCount)
}
