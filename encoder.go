package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"
	"golang.org/x/exp/slog"

	"github.com/ROTARTSI82/Hephaestus/frame"
	"github.com/ROTARTSI82/Hephaestus/handle"
)

// encoder replays a recording into a command buffer. Unknown shader or
// buffer IDs are logged and the operation is skipped, as are draws with no
// pipeline bound.
type encoder struct {
	cmd     vk.CommandBuffer
	shaders *handle.Table[*ShaderProgram]
	buffers *BufferManager

	bound bool
}

var _ frame.Encoder = (*encoder)(nil)

func (e *encoder) BindPipeline(id handle.ID) {
	p, ok := e.shaders.Get(id)
	if !ok {
		logger().Warn("recording binds an unknown shader program, skipping", slog.String("id", id.String()))
		return
	}
	vk.CmdBindPipeline(e.cmd, vk.PipelineBindPointGraphics, p.Pipeline())
	e.bound = true
}

func (e *encoder) SetViewport(v frame.Viewport) {
	vk.CmdSetViewport(e.cmd, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (e *encoder) SetScissor(r frame.Rect) {
	vk.CmdSetScissor(e.cmd, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}})
}

func (e *encoder) buffer(id handle.ID) (vk.Buffer, bool) {
	b, ok := e.buffers.Get(id)
	if !ok {
		logger().Warn("recording uses an unknown buffer, skipping", slog.String("id", id.String()))
		return vk.Buffer(vk.NullHandle), false
	}
	return b.VKBuffer, true
}

func (e *encoder) BindVertexBuffer(binding uint32, id handle.ID, offset uint64) {
	if b, ok := e.buffer(id); ok {
		vk.CmdBindVertexBuffers(e.cmd, binding, 1, []vk.Buffer{b}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

func (e *encoder) BindIndexBuffer(id handle.ID, offset uint64, index32 bool) {
	b, ok := e.buffer(id)
	if !ok {
		return
	}
	indexType := vk.IndexTypeUint16
	if index32 {
		indexType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(e.cmd, b, vk.DeviceSize(offset), indexType)
}

func (e *encoder) canDraw() bool {
	if !e.bound {
		logger().Warn("recording draws with no pipeline bound, skipping")
	}
	return e.bound
}

func (e *encoder) Draw(vertexCount uint32) {
	if e.canDraw() {
		vk.CmdDraw(e.cmd, vertexCount, 1, 0, 0)
	}
}

func (e *encoder) DrawIndexed(indexCount uint32) {
	if e.canDraw() {
		vk.CmdDrawIndexed(e.cmd, indexCount, 1, 0, 0, 0)
	}
}
