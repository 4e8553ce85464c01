package frame

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// DefaultFramesInFlight is used when Options.FramesInFlight is zero.
const DefaultFramesInFlight = 2

// State is the scheduler's position in the per-frame state machine.
type State int32

const (
	StateReady State = iota
	StateAcquiring
	StateSubmitting
	StatePresenting
	StateRecreating
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAcquiring:
		return "acquiring"
	case StateSubmitting:
		return "submitting"
	case StatePresenting:
		return "presenting"
	case StateRecreating:
		return "recreating"
	}
	return "unknown"
}

// Options configures a Scheduler.
type Options struct {
	// FramesInFlight is the number of frames the CPU may run ahead of the GPU.
	FramesInFlight int
	// Timeout bounds fence waits and image acquisition. Zero means WaitForever.
	Timeout time.Duration
	Logger  *slog.Logger
}

type slot struct {
	imageAvailable Semaphore
	renderFinished Semaphore
	inFlight       Fence
}

// Scheduler drives the presentation loop for one window. It owns the frame
// slots, the live swapchain generation and the baked command buffers.
//
// DrawFrame, Recreate, SaveRecording and Rebuild are serialized by the render
// lock. The accessors only take a read lock on the published state and may be
// called from anywhere, including resize listeners.
type Scheduler struct {
	dev     Device
	win     Window
	log     *slog.Logger
	timeout time.Duration

	lock    RenderLock
	slots   []slot
	current int

	swapchain Swapchain
	// imageFences[i] is the in-flight fence of the slot that last rendered to
	// image i, or nil if the image has not been used by this generation.
	imageFences []Fence
	cmds        []CommandBuffer
	rec         Recording

	// mu guards current, slots, swapchain, cmds and stats for readers that do
	// not hold the render lock. Writers hold both.
	mu sync.RWMutex

	listeners     listeners
	needsRecreate atomic.Bool
	state         atomic.Int32
	destroyed     bool

	notifyMu  sync.Mutex
	notifying *notification

	stats Stats
}

// notification is the window during recreation in which resize listeners
// run. The listeners run on their own goroutine while the goroutine holding
// the render lock serves their requests.
type notification struct {
	requests chan request
	finished chan struct{}
}

// request is a SaveRecording (rebuild nil) or a Rebuild made while listeners
// are being notified.
type request struct {
	rebuild func() error
	done    chan error
}

// New creates the frame slots, builds the first swapchain generation and bakes
// the (initially empty) recording against it.
func New(dev Device, win Window, opts Options) (*Scheduler, error) {
	if dev == nil || win == nil {
		return nil, errors.New("frame: device and window are required")
	}
	if opts.FramesInFlight <= 0 {
		opts.FramesInFlight = DefaultFramesInFlight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = WaitForever
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Scheduler{
		dev:     dev,
		win:     win,
		log:     opts.Logger,
		timeout: opts.Timeout,
	}

	if err := s.createSlots(opts.FramesInFlight); err != nil {
		s.destroySlots()
		return nil, err
	}

	s.waitForNonZeroSize()

	sc, err := dev.BuildSwapchain(nil)
	if err != nil {
		s.destroySlots()
		return nil, errors.Wrap(err, "building swapchain")
	}
	s.swapchain = sc
	s.imageFences = make([]Fence, sc.ImageCount())

	cmds, err := dev.Bake(sc, &s.rec)
	if err != nil {
		sc.Destroy()
		s.destroySlots()
		return nil, errors.Wrap(err, "baking command buffers")
	}
	s.cmds = cmds

	s.log.Debug("frame scheduler ready",
		slog.Int("framesInFlight", len(s.slots)),
		slog.Int("images", sc.ImageCount()),
		slog.String("extent", sc.Extent().String()))

	return s, nil
}

func (s *Scheduler) createSlots(n int) error {
	s.slots = make([]slot, n)
	for i := range s.slots {
		sl := &s.slots[i]
		var err error
		if sl.imageAvailable, err = s.dev.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "creating image-available semaphore %d", i)
		}
		if sl.renderFinished, err = s.dev.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "creating render-finished semaphore %d", i)
		}
		// signaled so the first wait on each slot returns immediately
		if sl.inFlight, err = s.dev.CreateFence(true); err != nil {
			return errors.Wrapf(err, "creating in-flight fence %d", i)
		}
	}
	return nil
}

// recreateSemaphores replaces every slot semaphore. An acquisition that was
// abandoned because the swapchain went stale may have left imageAvailable
// with a pending signal.
func (s *Scheduler) recreateSemaphores() error {
	for i := range s.slots {
		sl := &s.slots[i]
		sl.imageAvailable.Destroy()
		sl.renderFinished.Destroy()
		sl.imageAvailable, sl.renderFinished = nil, nil

		var err error
		if sl.imageAvailable, err = s.dev.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "recreating image-available semaphore %d", i)
		}
		if sl.renderFinished, err = s.dev.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "recreating render-finished semaphore %d", i)
		}
	}
	return nil
}

func (s *Scheduler) destroySlots() {
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.imageAvailable != nil {
			sl.imageAvailable.Destroy()
		}
		if sl.renderFinished != nil {
			sl.renderFinished.Destroy()
		}
		if sl.inFlight != nil {
			sl.inFlight.Destroy()
		}
	}
	s.slots = nil
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// State returns the current state of the per-frame state machine.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// DrawFrame renders one frame: it waits for the current slot, acquires an
// image, submits the baked command buffer for it and presents. A stale
// swapchain or a pending resize triggers recreation instead of an error.
func (s *Scheduler) DrawFrame() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}

	timer := startTimer()
	err := s.drawFrameLocked()
	s.setState(StateReady)
	if err != nil {
		return err
	}
	s.mu.Lock()
	timer.record(&s.stats)
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) drawFrameLocked() error {
	sl := &s.slots[s.current]

	s.setState(StateAcquiring)
	if err := sl.inFlight.Wait(s.timeout); err != nil {
		return errors.Wrapf(err, "waiting for frame slot %d", s.current)
	}

	image, err := s.swapchain.Acquire(s.timeout, sl.imageAvailable)
	if IsStale(err) {
		s.log.Debug("swapchain stale on acquire", slog.Any("reason", err))
		return s.recreateLocked()
	}
	if err != nil {
		return errors.Wrap(err, "acquiring swapchain image")
	}
	if int(image) >= len(s.imageFences) || int(image) >= len(s.cmds) {
		return errors.Newf("acquired image %d but only %d command buffers are baked", image, len(s.cmds))
	}

	// The number of images need not match the number of slots, so the image
	// may still be in use by a frame submitted from another slot.
	if prev := s.imageFences[image]; prev != nil && prev != sl.inFlight {
		if err := prev.Wait(s.timeout); err != nil {
			return errors.Wrapf(err, "waiting for image %d", image)
		}
	}
	s.imageFences[image] = sl.inFlight

	s.setState(StateSubmitting)
	if err := sl.inFlight.Reset(); err != nil {
		return errors.Wrapf(err, "resetting fence of frame slot %d", s.current)
	}
	if err := s.dev.Submit(s.cmds[image], sl.imageAvailable, sl.renderFinished, sl.inFlight); err != nil {
		return errors.Wrap(err, "submitting command buffer")
	}

	s.setState(StatePresenting)
	err = s.swapchain.Present(image, sl.renderFinished)
	if err != nil && !IsStale(err) {
		return errors.Wrap(err, "presenting swapchain image")
	}
	resized := s.needsRecreate.Swap(false)
	if err != nil || resized {
		if err != nil {
			s.log.Debug("swapchain stale on present", slog.Any("reason", err))
		}
		if rerr := s.recreateLocked(); rerr != nil {
			return rerr
		}
	}

	s.mu.Lock()
	s.current = (s.current + 1) % len(s.slots)
	s.mu.Unlock()
	return nil
}

// Recreate rebuilds the swapchain and everything that depends on it.
func (s *Scheduler) Recreate() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	err := s.recreateLocked()
	s.setState(StateReady)
	return err
}

func (s *Scheduler) recreateLocked() error {
	s.setState(StateRecreating)
	s.needsRecreate.Store(false)

	s.waitForNonZeroSize()

	old := s.swapchain
	next, err := s.dev.BuildSwapchain(old)
	if err != nil {
		return errors.Wrap(err, "rebuilding swapchain")
	}

	s.notifyResize(next.Extent())

	if err := s.dev.WaitIdle(); err != nil {
		next.Destroy()
		return errors.Wrap(err, "waiting for device idle")
	}
	s.dev.FreeCommandBuffers(s.cmds)
	old.Destroy()

	s.mu.Lock()
	s.cmds = nil
	s.swapchain = next
	s.mu.Unlock()
	s.imageFences = make([]Fence, next.ImageCount())
	if err := s.recreateSemaphores(); err != nil {
		return err
	}

	cmds, err := s.dev.Bake(next, &s.rec)
	if err != nil {
		return errors.Wrap(err, "baking command buffers")
	}
	s.mu.Lock()
	s.cmds = cmds
	s.stats.Recreated++
	s.mu.Unlock()

	s.log.Info("swapchain recreated",
		slog.String("extent", next.Extent().String()),
		slog.Int("images", next.ImageCount()))
	return nil
}

func (s *Scheduler) waitForNonZeroSize() Extent {
	size := s.win.FramebufferSize()
	if size.IsZero() {
		s.log.Debug("framebuffer has zero area, waiting for window events")
	}
	for size.IsZero() {
		s.win.WaitEvents()
		size = s.win.FramebufferSize()
	}
	return size
}

func (s *Scheduler) notifyResize(extent Extent) {
	ls := s.listeners.snapshot()
	if len(ls) == 0 {
		s.log.Warn("swapchain recreated with no resize listener registered, the recording may still assume the old extent",
			slog.String("extent", extent.String()))
		return
	}

	n := &notification{
		requests: make(chan request),
		finished: make(chan struct{}),
	}
	s.notifyMu.Lock()
	s.notifying = n
	s.notifyMu.Unlock()
	defer func() {
		s.notifyMu.Lock()
		s.notifying = nil
		s.notifyMu.Unlock()
	}()

	go func() {
		defer close(n.finished)
		for _, l := range ls {
			l.OnResize(extent)
		}
	}()
	for {
		select {
		case r := <-n.requests:
			r.done <- s.serveLocked(r)
		case <-n.finished:
			return
		}
	}
}

// serveLocked runs a request made during notification. Baking is left to the
// recreation, which bakes once every listener has returned.
func (s *Scheduler) serveLocked(r request) error {
	if r.rebuild == nil {
		return nil
	}
	if err := s.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for device idle")
	}
	return r.rebuild()
}

// forward hands r to the recreation in progress, if listeners are being
// notified. It reports false when there is no notification or it ended
// before r was taken, in which case the caller takes the render lock itself.
func (s *Scheduler) forward(r request) (bool, error) {
	s.notifyMu.Lock()
	n := s.notifying
	s.notifyMu.Unlock()
	if n == nil {
		return false, nil
	}

	r.done = make(chan error, 1)
	select {
	case n.requests <- r:
		return true, <-r.done
	case <-n.finished:
		return false, nil
	}
}

// SaveRecording bakes the current recording into one command buffer per
// framebuffer and swaps them in, freeing the previous ones first. Made while
// resize listeners are running it returns once the recreation in progress
// has taken the request; that recreation bakes the recording before it
// releases the render lock.
func (s *Scheduler) SaveRecording() error {
	if ok, err := s.forward(request{}); ok {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	return s.saveRecordingLocked()
}

func (s *Scheduler) saveRecordingLocked() error {
	cmds, err := s.dev.Bake(s.swapchain, &s.rec)
	if err != nil {
		return errors.Wrap(err, "baking command buffers")
	}
	if err := s.dev.WaitIdle(); err != nil {
		s.dev.FreeCommandBuffers(cmds)
		return errors.Wrap(err, "waiting for device idle")
	}
	s.dev.FreeCommandBuffers(s.cmds)
	s.mu.Lock()
	s.cmds = cmds
	s.mu.Unlock()
	return nil
}

// Rebuild runs fn with the render lock held and the device idle, then bakes
// the recording again. Resources that baked command buffers refer to, such as
// pipelines, are replaced inside fn. If fn fails the old command buffers stay
// installed. Made while resize listeners are running, fn runs before the old
// swapchain generation is freed and the recreation does the bake.
func (s *Scheduler) Rebuild(fn func() error) error {
	if ok, err := s.forward(request{rebuild: fn}); ok {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	if err := s.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for device idle")
	}
	if err := fn(); err != nil {
		return err
	}
	return s.saveRecordingLocked()
}

// Recording returns the recording baked by SaveRecording and by recreation.
func (s *Scheduler) Recording() *Recording {
	return &s.rec
}

// NotifyResize flags the swapchain for recreation after the next present. It
// is safe to call from window callbacks.
func (s *Scheduler) NotifyResize() {
	s.needsRecreate.Store(true)
}

// AddResizeListener registers l and returns a function that removes it.
func (s *Scheduler) AddResizeListener(l ResizeListener) (remove func()) {
	return s.listeners.add(l)
}

// CurrentFrame returns the index of the frame slot the next DrawFrame uses.
func (s *Scheduler) CurrentFrame() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// FramesInFlight returns the number of frame slots.
func (s *Scheduler) FramesInFlight() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Swapchain returns the live swapchain generation.
func (s *Scheduler) Swapchain() Swapchain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.swapchain
}

// CommandBuffers returns the command buffers baked for the live swapchain.
func (s *Scheduler) CommandBuffers() []CommandBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CommandBuffer, len(s.cmds))
	copy(out, s.cmds)
	return out
}

// Stats returns frame timing statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Destroy waits for the device to go idle and frees the command buffers, the
// swapchain generation and the frame slots.
func (s *Scheduler) Destroy() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true

	if err := s.dev.WaitIdle(); err != nil {
		s.log.Error("waiting for device idle during teardown", slog.Any("error", err))
	}
	s.dev.FreeCommandBuffers(s.cmds)
	if s.swapchain != nil {
		s.swapchain.Destroy()
	}
	s.imageFences = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = nil
	s.swapchain = nil
	s.destroySlots()
}
