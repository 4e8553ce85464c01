package frame

import (
	"fmt"

	"github.com/ROTARTSI82/Hephaestus/handle"
)

// OpKind identifies a recorded operation.
type OpKind int

const (
	OpBindPipeline OpKind = iota
	OpSetViewport
	OpSetScissor
	OpSetDefaultViewport
	OpSetDefaultScissor
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpDraw
	OpDrawIndexed
)

var opNames = [...]string{
	OpBindPipeline:       "BindPipeline",
	OpSetViewport:        "SetViewport",
	OpSetScissor:         "SetScissor",
	OpSetDefaultViewport: "SetDefaultViewport",
	OpSetDefaultScissor:  "SetDefaultScissor",
	OpBindVertexBuffer:   "BindVertexBuffer",
	OpBindIndexBuffer:    "BindIndexBuffer",
	OpDraw:               "Draw",
	OpDrawIndexed:        "DrawIndexed",
}

func (k OpKind) String() string {
	if k >= 0 && int(k) < len(opNames) {
		return opNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Viewport mirrors a Vulkan viewport.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// Op is a single recorded operation. Only the fields relevant to Kind are set.
type Op struct {
	Kind     OpKind
	Target   handle.ID
	Binding  uint32
	Offset   uint64
	Index32  bool
	Count    uint32
	Viewport Viewport
	Scissor  Rect
}

// Encoder receives replayed operations. The Vulkan implementation translates
// them into vkCmd* calls on a command buffer.
type Encoder interface {
	BindPipeline(pipeline handle.ID)
	SetViewport(v Viewport)
	SetScissor(r Rect)
	BindVertexBuffer(binding uint32, buffer handle.ID, offset uint64)
	BindIndexBuffer(buffer handle.ID, offset uint64, index32 bool)
	Draw(vertexCount uint32)
	DrawIndexed(indexCount uint32)
}

// Recording is an ordered list of draw operations. It is independent of the
// swapchain image count: the same recording is replayed once per framebuffer.
//
// A Recording is not safe for concurrent use. Mutate it from the render
// goroutine and call Scheduler.SaveRecording to bake it.
type Recording struct {
	ops []Op
}

// Clear removes every operation.
func (r *Recording) Clear() {
	r.ops = r.ops[:0]
}

func (r *Recording) add(op Op) *Recording {
	r.ops = append(r.ops, op)
	return r
}

func (r *Recording) BindPipeline(pipeline handle.ID) *Recording {
	return r.add(Op{Kind: OpBindPipeline, Target: pipeline})
}

func (r *Recording) SetViewport(v Viewport) *Recording {
	return r.add(Op{Kind: OpSetViewport, Viewport: v})
}

func (r *Recording) SetScissor(rect Rect) *Recording {
	return r.add(Op{Kind: OpSetScissor, Scissor: rect})
}

// SetDefaultViewport covers the whole swapchain extent. The extent is resolved
// when the recording is replayed, so it follows resizes.
func (r *Recording) SetDefaultViewport() *Recording {
	return r.add(Op{Kind: OpSetDefaultViewport})
}

// SetDefaultScissor covers the whole swapchain extent, resolved at replay.
func (r *Recording) SetDefaultScissor() *Recording {
	return r.add(Op{Kind: OpSetDefaultScissor})
}

func (r *Recording) BindVertexBuffer(binding uint32, buffer handle.ID, offset uint64) *Recording {
	return r.add(Op{Kind: OpBindVertexBuffer, Binding: binding, Target: buffer, Offset: offset})
}

func (r *Recording) BindIndexBuffer(buffer handle.ID, offset uint64, index32 bool) *Recording {
	return r.add(Op{Kind: OpBindIndexBuffer, Target: buffer, Offset: offset, Index32: index32})
}

func (r *Recording) Draw(vertexCount uint32) *Recording {
	return r.add(Op{Kind: OpDraw, Count: vertexCount})
}

func (r *Recording) DrawIndexed(indexCount uint32) *Recording {
	return r.add(Op{Kind: OpDrawIndexed, Count: indexCount})
}

// Len returns the number of recorded operations.
func (r *Recording) Len() int {
	return len(r.ops)
}

// Ops returns a copy of the recorded operations.
func (r *Recording) Ops() []Op {
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Replay feeds every operation to enc in order. Default viewport and scissor
// operations are expanded against extent.
func (r *Recording) Replay(enc Encoder, extent Extent) {
	for _, op := range r.ops {
		switch op.Kind {
		case OpBindPipeline:
			enc.BindPipeline(op.Target)
		case OpSetViewport:
			enc.SetViewport(op.Viewport)
		case OpSetScissor:
			enc.SetScissor(op.Scissor)
		case OpSetDefaultViewport:
			enc.SetViewport(DefaultViewport(extent))
		case OpSetDefaultScissor:
			enc.SetScissor(DefaultScissor(extent))
		case OpBindVertexBuffer:
			enc.BindVertexBuffer(op.Binding, op.Target, op.Offset)
		case OpBindIndexBuffer:
			enc.BindIndexBuffer(op.Target, op.Offset, op.Index32)
		case OpDraw:
			enc.Draw(op.Count)
		case OpDrawIndexed:
			enc.DrawIndexed(op.Count)
		}
	}
}

// DefaultViewport returns a viewport covering extent with a 0..1 depth range.
func DefaultViewport(extent Extent) Viewport {
	return Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// DefaultScissor returns a scissor rectangle covering extent.
func DefaultScissor(extent Extent) Rect {
	return Rect{Width: extent.Width, Height: extent.Height}
}
