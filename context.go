package hephaestus

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/ROTARTSI82/Hephaestus/config"
	"github.com/ROTARTSI82/Hephaestus/frame"
	"github.com/ROTARTSI82/Hephaestus/handle"
	"github.com/ROTARTSI82/Hephaestus/shaderpack"
)

// Init initializes GLFW and loads the Vulkan entry points through it. It must
// be called from the main goroutine before NewContext.
func Init() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(err, "initializing glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.New("glfw reports no vulkan support")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		return errors.Wrap(err, "loading vulkan")
	}
	return nil
}

// InitHeadless loads Vulkan without a window system, for tools that only
// enumerate instances and devices.
func InitHeadless() error {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return errors.Wrap(err, "locating vulkan loader")
	}
	return errors.Wrap(vk.Init(), "loading vulkan")
}

// Terminate releases GLFW. Every Context must be destroyed first.
func Terminate() {
	glfw.Terminate()
}

// Context is a window together with the Vulkan objects needed to draw into
// it: instance, surface, logical device, queues, buffers, shader programs and
// the frame scheduler. It implements frame.Device and frame.Window for its
// scheduler.
type Context struct {
	Window         *glfw.Window
	Instance       *Instance
	Surface        vk.Surface
	PhysicalDevice *PhysicalDevice
	Device         *Device
	Graphics       *Queue
	Present        *Queue
	Buffers        *BufferManager

	cmdPool    *CommandPool
	target     *pipelineTarget
	format     vk.Format
	shaders    *handle.Table[*ShaderProgram]
	descriptor string
	clearColor [4]float32
	scheduler  *frame.Scheduler
}

var (
	_ frame.Device = (*Context)(nil)
	_ frame.Window = (*Context)(nil)
)

// NewContext opens a window and sets up everything needed to draw into it as
// described by cfg. sel customizes device selection; an empty
// SelectorOptions.PreferredName is taken from cfg.
func NewContext(cfg *config.Config, sel SelectorOptions) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Context{
		shaders:    handle.NewTable[*ShaderProgram](),
		descriptor: cfg.Shaders.Descriptor,
		clearColor: cfg.Render.ClearColor,
	}
	if err := c.init(cfg, sel); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

func (c *Context) init(cfg *config.Config, sel SelectorOptions) error {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	win, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		return errors.Wrap(err, "creating window")
	}
	c.Window = win

	major, minor, patch, err := cfg.App.ParseVersion()
	if err != nil {
		return err
	}
	app := &App{
		Name:       cfg.App.Name,
		Version:    Version{Major: int(major), Minor: int(minor), Patch: int(patch)},
		Validation: cfg.Render.Validation,
	}
	if c.Instance, err = app.CreateInstance(win.GetRequiredInstanceExtensions()); err != nil {
		return err
	}

	surface, err := win.CreateWindowSurface(c.Instance.VKInstance, nil)
	if err != nil {
		return errors.Wrap(err, "creating window surface")
	}
	c.Surface = vk.SurfaceFromPointer(surface)

	devices, err := c.Instance.PhysicalDevices()
	if err != nil {
		return err
	}
	cands := make([]DeviceCandidate, len(devices))
	for i, d := range devices {
		cands[i] = d.Candidate(c.Surface)
	}
	if sel.PreferredName == "" {
		sel.PreferredName = cfg.Render.PreferredDevice
	}
	pos, err := SelectDevice(cands, sel)
	if err != nil {
		return err
	}
	c.PhysicalDevice = devices[pos]
	queues := cands[pos].Queues

	if c.Device, err = c.PhysicalDevice.CreateLogicalDevice(queues.Families(), []string{SwapchainExtension}); err != nil {
		return err
	}
	c.Graphics = c.Device.GetQueue(queues.Graphics)
	c.Present = c.Device.GetQueue(queues.Present)
	logger().Debug("queues",
		slog.Int("graphics", queues.Graphics),
		slog.Int("present", queues.Present),
		slog.Bool("shared", queues.Shared()))

	if c.cmdPool, err = c.Device.CreateCommandPool(queues.Graphics); err != nil {
		return err
	}
	cache, err := c.Device.CreatePipelineCache()
	if err != nil {
		return err
	}
	c.target = &pipelineTarget{device: c.Device, cache: cache}
	if c.Buffers, err = NewBufferManager(c.Device, c.Graphics, cfg.Memory.PoolSize.Bytes()); err != nil {
		return err
	}

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		c.NotifyResize()
	})
	win.SetIconifyCallback(func(_ *glfw.Window, iconified bool) {
		c.NotifyResize()
	})

	c.scheduler, err = frame.New(c, c, frame.Options{
		FramesInFlight: cfg.Render.FramesInFlight,
		Timeout:        cfg.Render.FenceTimeout.Duration,
		Logger:         logger(),
	})
	return err
}

func (c *Context) CreateSemaphore() (frame.Semaphore, error) {
	s, err := c.Device.CreateSemaphore()
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Context) CreateFence(signaled bool) (frame.Fence, error) {
	f, err := c.Device.CreateFence(signaled)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// BuildSwapchain creates the next swapchain generation. If the surface format
// changed, every shader program's pipeline is rebuilt for the new render pass.
func (c *Context) BuildSwapchain(old frame.Swapchain) (frame.Swapchain, error) {
	var prev *SwapchainState
	if old != nil {
		prev = old.(*SwapchainState)
	}
	sc, err := c.Device.CreateSwapchainState(SwapchainOptions{
		Surface:     c.Surface,
		Graphics:    c.Graphics,
		Present:     c.Present,
		Framebuffer: c.FramebufferSize(),
		Old:         prev,
	})
	if err != nil {
		return nil, err
	}

	rebuild := func() error { return nil }
	if prev != nil && sc.Format.Format != c.format && c.shaders.Len() > 0 {
		logger().Info("surface format changed, rebuilding pipelines",
			slog.Int("from", int(c.format)), slog.Int("to", int(sc.Format.Format)))
		rebuild = c.rebuildPipelines
	}
	if err := setDuring(&c.target.renderPass, sc.RenderPass, rebuild); err != nil {
		sc.Destroy()
		return nil, err
	}
	c.format = sc.Format.Format
	return sc, nil
}

func (c *Context) rebuildPipelines() error {
	if err := c.Device.WaitIdle(); err != nil {
		return err
	}
	var errs error
	c.shaders.Each(func(_ handle.ID, p *ShaderProgram) {
		errs = errors.CombineErrors(errs, p.RebuildPipeline(nil))
	})
	return errs
}

// Bake records one command buffer per framebuffer of sc: the render pass
// cleared to the configured color with rec replayed inside it.
func (c *Context) Bake(sc frame.Swapchain, rec *frame.Recording) ([]frame.CommandBuffer, error) {
	state := sc.(*SwapchainState)
	cmds, err := c.cmdPool.AllocateBuffers(state.ImageCount())
	if err != nil {
		return nil, errors.Wrap(err, "allocating command buffers")
	}

	out := make([]frame.CommandBuffer, len(cmds))
	for i, cmd := range cmds {
		if err := cmd.Begin(); err != nil {
			c.cmdPool.FreeBuffers(cmds)
			return nil, err
		}
		cmd.BeginRenderPass(state.RenderPass, state.Framebuffers[i], state.VKExtent, c.clearColor)
		rec.Replay(&encoder{cmd: cmd.VKCommandBuffer, shaders: c.shaders, buffers: c.Buffers}, state.Extent())
		cmd.EndRenderPass()
		if err := cmd.End(); err != nil {
			c.cmdPool.FreeBuffers(cmds)
			return nil, err
		}
		out[i] = cmd
	}
	return out, nil
}

func (c *Context) FreeCommandBuffers(cmds []frame.CommandBuffer) {
	if len(cmds) == 0 {
		return
	}
	bs := make([]*CommandBuffer, len(cmds))
	for i, cmd := range cmds {
		bs[i] = cmd.(*CommandBuffer)
	}
	c.cmdPool.FreeBuffers(bs)
}

func (c *Context) Submit(cmd frame.CommandBuffer, wait, signal frame.Semaphore, fence frame.Fence) error {
	var f *Fence
	if fence != nil {
		f = fence.(*Fence)
	}
	return c.Graphics.Submit(cmd.(*CommandBuffer), semaphoreOf(wait), semaphoreOf(signal), f)
}

func (c *Context) WaitIdle() error {
	return c.Device.WaitIdle()
}

// FramebufferSize returns the window's framebuffer size in pixels.
func (c *Context) FramebufferSize() frame.Extent {
	w, h := c.Window.GetFramebufferSize()
	return frame.Extent{Width: uint32(w), Height: uint32(h)}
}

func (c *Context) WaitEvents() {
	glfw.WaitEvents()
}

// Scheduler returns the frame scheduler driving this context.
func (c *Context) Scheduler() *frame.Scheduler {
	return c.scheduler
}

// DrawFrame renders and presents one frame.
func (c *Context) DrawFrame() error {
	return c.scheduler.DrawFrame()
}

// Recording returns the recording replayed into every frame.
func (c *Context) Recording() *frame.Recording {
	return c.scheduler.Recording()
}

// SaveRecording bakes the recording so the next frame uses it.
func (c *Context) SaveRecording() error {
	return c.scheduler.SaveRecording()
}

func (c *Context) AddResizeListener(l frame.ResizeListener) (remove func()) {
	return c.scheduler.AddResizeListener(l)
}

// NotifyResize flags the swapchain for recreation. Window callbacks call it.
func (c *Context) NotifyResize() {
	if c.scheduler != nil {
		c.scheduler.NotifyResize()
	}
}

func (c *Context) ShouldClose() bool {
	return c.Window.ShouldClose()
}

// LoadShaderProgram builds a pipeline from the shader descriptor in dir.
// layout describes the vertex input and may be nil for shaders that take no
// vertex buffers.
func (c *Context) LoadShaderProgram(dir string, layout *VertexLayout) (ShaderID, error) {
	p, err := newShaderProgram(c.target, dir, c.descriptor, layout)
	if err != nil {
		return handle.Nil, err
	}
	return c.shaders.Insert(p), nil
}

func (c *Context) ShaderProgram(id ShaderID) (*ShaderProgram, bool) {
	return c.shaders.Get(id)
}

func (c *Context) shaderProgram(id ShaderID) (*ShaderProgram, error) {
	p, ok := c.shaders.Get(id)
	if !ok {
		return nil, errors.Newf("unknown shader program %s", id)
	}
	return p, nil
}

// ReloadShaderProgram reloads a program from disk and rebakes the recording.
// A failed reload leaves the previous pipeline in place.
func (c *Context) ReloadShaderProgram(id ShaderID) error {
	p, err := c.shaderProgram(id)
	if err != nil {
		return err
	}
	return c.scheduler.Rebuild(p.ReloadFromFile)
}

// RebuildShaderPipeline rebuilds a program's pipeline with a new vertex
// layout and rebakes the recording.
func (c *Context) RebuildShaderPipeline(id ShaderID, layout *VertexLayout) error {
	p, err := c.shaderProgram(id)
	if err != nil {
		return err
	}
	return c.scheduler.Rebuild(func() error {
		return p.RebuildPipeline(layout)
	})
}

// DeleteShaderProgram destroys a program. Recordings that still bind it skip
// the bind from the next bake on.
func (c *Context) DeleteShaderProgram(id ShaderID) error {
	return c.scheduler.Rebuild(func() error {
		p, ok := c.shaders.Remove(id)
		if !ok {
			logger().Warn("deleting unknown shader program", slog.String("id", id.String()))
			return nil
		}
		p.Destroy()
		return nil
	})
}

// WatchShaderProgram reloads the program whenever its descriptor or bytecode
// changes on disk, until ctx is done. Failed reloads are logged.
func (c *Context) WatchShaderProgram(ctx context.Context, id ShaderID) error {
	p, err := c.shaderProgram(id)
	if err != nil {
		return err
	}
	return shaderpack.Watch(ctx, p.Dir, p.Descriptor, logger(), func() {
		if err := c.ReloadShaderProgram(id); err != nil {
			logger().Error("shader reload failed, keeping previous pipeline",
				slog.String("dir", p.Dir), slog.Any("error", err))
		}
	})
}

// Destroy tears everything down in reverse order of creation. It is safe on a
// partially initialized context.
func (c *Context) Destroy() {
	if c.scheduler != nil {
		c.scheduler.Destroy()
		c.scheduler = nil
	} else if c.Device != nil {
		if err := c.Device.WaitIdle(); err != nil {
			logger().Error("waiting for device idle during teardown", slog.Any("error", err))
		}
	}
	if c.Buffers != nil {
		c.Buffers.Destroy()
		c.Buffers = nil
	}
	c.shaders.Drain(func(_ handle.ID, p *ShaderProgram) {
		p.Destroy()
	})
	if c.target != nil {
		c.target.cache.Destroy()
		c.target = nil
	}
	if c.cmdPool != nil {
		c.cmdPool.Destroy()
		c.cmdPool = nil
	}
	if c.Device != nil {
		c.Device.Destroy()
		c.Device = nil
	}
	if c.Instance != nil {
		if c.Surface != vk.NullSurface {
			vk.DestroySurface(c.Instance.VKInstance, c.Surface, nil)
			c.Surface = vk.NullSurface
		}
		c.Instance.Destroy()
		c.Instance = nil
	}
	if c.Window != nil {
		c.Window.Destroy()
		c.Window = nil
	}
}
