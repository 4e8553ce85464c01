/*
Package hephaestus is a thin layer over Vulkan and GLFW for go. It owns the
parts of a Vulkan renderer that every application writes the same way: the
instance with its validation layers, the choice of physical device, the
swapchain and everything that depends on it, and the synchronization of
frames in flight. Everything else stays in the hands of the application.

Native vulkan structures are exposed on every object under fields prefixed
with 'VK', so an application is never limited to what this package wraps.

Vulkan terms used throughout
	Instance	the vulkan runtime instance
	PhysicalDevice	the physical hardware device
	Device		the logical device, target of most of the vulkan apis
	Queue		a queue command buffers are submitted to
	Surface		the window system target presentation goes to
	Swapchain	the presentable images of a surface
	RenderPass	a description of the attachments a pipeline draws into
	Framebuffer	the attachments of one swapchain image bound to a render pass
	Pipeline	a description of how to process data on the GPU
	DeviceMemory	an allocation of memory used to back buffers
	Semaphore	GPU to GPU ordering between submit and present
	Fence		GPU to host signal that a submission has finished

Lifecycle

A Context is created from a config.Config once Init has been called on the
main thread:

	1. The window and the instance are created. Validation layers and the
	   debug callback are enabled when requested and available.
	2. A surface is created for the window and a physical device is selected
	   among the devices able to present to it.
	3. The logical device, graphics and present queues, a command pool, a
	   pipeline cache and the BufferManager are created.
	4. The frame scheduler builds the first swapchain generation: images,
	   views, the render pass and one framebuffer per image.

Frames

Drawing is described once as a frame.Recording: an ordered list of operations
(bind a shader program, bind vertex and index buffers, draw). The scheduler
bakes the recording into one command buffer per swapchain image and replays
it every time the swapchain is rebuilt, so the application never re-records
after a resize.

DrawFrame waits for the current frame slot, acquires an image, submits the
baked command buffer and presents. An out of date or suboptimal swapchain, or
a resize notification from the window, causes the swapchain to be recreated
after the device is idle. A minimized window blocks in WaitEvents until it has
a non-zero framebuffer again.

Shader programs

Shader programs are directories holding compiled SPIR-V stages and a meta
file naming them. They are loaded into the pipeline cache and can be reloaded
while the application runs. A failed reload keeps the previous pipeline.

Packages
	config		configuration loaded from TOML with defaults
	frame		the frame scheduler, recordings and frame statistics
	handle		typed handle tables for shader programs and buffers
	shaderpack	parsing, loading and watching shader program directories
*/
package hephaestus
