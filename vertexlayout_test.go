package hephaestus

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestDefaultVertexLayout(t *testing.T) {
	l := DefaultVertexLayout()
	assert.True(t, l.Finalized())
	assert.Equal(t, uint32(unsafe.Sizeof(Vertex{})), l.Stride())

	b := l.GetBindingDescription()
	assert.Equal(t, uint32(0), b.Binding)
	assert.Equal(t, uint32(20), b.Stride)
	assert.Equal(t, vk.VertexInputRateVertex, b.InputRate)

	attrs := l.GetAttributeDescriptions()
	require.Len(t, attrs, 2)
	assert.Equal(t, vk.VertexInputAttributeDescription{Location: 0, Format: vk.FormatR32g32Sfloat, Offset: 0}, attrs[0])
	assert.Equal(t, vk.VertexInputAttributeDescription{Location: 1, Format: vk.FormatR32g32b32Sfloat, Offset: 8}, attrs[1])
}

func TestVertexLayoutPushFloats(t *testing.T) {
	l := NewVertexLayout(1)
	l.PushFloats(0).PushFloats(5).PushFloats(4).PushFloats(1)
	assert.Equal(t, uint32(20), l.Stride())

	attrs := l.GetAttributeDescriptions()
	require.Len(t, attrs, 2, "out of range pushes are ignored")
	assert.Equal(t, vk.FormatR32g32b32a32Sfloat, attrs[0].Format)
	assert.Equal(t, uint32(1), attrs[1].Location)
	assert.Equal(t, uint32(1), attrs[1].Binding)
	assert.Equal(t, uint32(16), attrs[1].Offset)

	l.Finalize().PushFloats(2)
	assert.Len(t, l.GetAttributeDescriptions(), 2, "finalized layouts do not change")
}

func TestDataBytes(t *testing.T) {
	vs := VertexSlice{{Pos: [2]float32{1, 2}, Color: [3]float32{0, 0, 1}}, {}}
	b := vs.Bytes()
	require.Len(t, b, 40)
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, b[0:4], "little endian 1.0")
	assert.Nil(t, VertexSlice(nil).Bytes())

	assert.Len(t, IndexSliceUint16{0, 1, 2}.Bytes(), 6)
	assert.False(t, IndexSliceUint16{}.Index32())
	assert.Len(t, IndexSliceUint32{0, 1, 2}.Bytes(), 12)
	assert.True(t, IndexSliceUint32{}.Index32())
}
