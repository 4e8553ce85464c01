package hephaestus

import (
	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"
	"golang.org/x/exp/slog"
)

// VertexDescriptor describes one vertex input binding of a pipeline.
type VertexDescriptor interface {
	GetBindingDescription() vk.VertexInputBindingDescription
	GetAttributeDescriptions() []vk.VertexInputAttributeDescription
}

var floatFormats = [...]vk.Format{
	vk.FormatR32Sfloat,
	vk.FormatR32g32Sfloat,
	vk.FormatR32g32b32Sfloat,
	vk.FormatR32g32b32a32Sfloat,
}

// VertexLayout builds the attributes of a tightly packed, per-vertex binding.
// Attribute locations are assigned in push order starting at 0.
type VertexLayout struct {
	Binding uint32

	attributes []vk.VertexInputAttributeDescription
	stride     uint32
	finalized  bool
}

var _ VertexDescriptor = (*VertexLayout)(nil)

func NewVertexLayout(binding uint32) *VertexLayout {
	return &VertexLayout{Binding: binding}
}

// PushFloats appends an attribute of n 32-bit floats. n must be between 1 and
// 4; anything else, or a push after Finalize, is logged and ignored.
func (l *VertexLayout) PushFloats(n int) *VertexLayout {
	if l.finalized {
		logger().Warn("pushing to a finalized vertex layout is ignored")
		return l
	}
	if n < 1 || n > len(floatFormats) {
		logger().Warn("vertex attribute must have 1 to 4 floats, ignoring", slog.Int("floats", n))
		return l
	}
	l.attributes = append(l.attributes, vk.VertexInputAttributeDescription{
		Location: uint32(len(l.attributes)),
		Binding:  l.Binding,
		Format:   floatFormats[n-1],
		Offset:   l.stride,
	})
	l.stride += uint32(n) * 4
	return l
}

// Finalize freezes the layout.
func (l *VertexLayout) Finalize() *VertexLayout {
	l.finalized = true
	return l
}

func (l *VertexLayout) Finalized() bool {
	return l.finalized
}

// Stride is the size of one vertex in bytes.
func (l *VertexLayout) Stride() uint32 {
	return l.stride
}

func (l *VertexLayout) GetBindingDescription() vk.VertexInputBindingDescription {
	return vk.VertexInputBindingDescription{
		Binding:   l.Binding,
		Stride:    l.stride,
		InputRate: vk.VertexInputRateVertex,
	}
}

func (l *VertexLayout) GetAttributeDescriptions() []vk.VertexInputAttributeDescription {
	ret := make([]vk.VertexInputAttributeDescription, len(l.attributes))
	copy(ret, l.attributes)
	return ret
}

// Vertex is the default vertex format: a 2D position at location 0 and an RGB
// color at location 1.
type Vertex struct {
	Pos   lin.Vec2
	Color lin.Vec3
}

// DefaultVertexLayout returns a finalized layout matching Vertex.
func DefaultVertexLayout() *VertexLayout {
	return NewVertexLayout(0).PushFloats(2).PushFloats(3).Finalize()
}
