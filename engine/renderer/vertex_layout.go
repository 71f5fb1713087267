package renderer

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

// VertexLayout selects how many position and colour components a vertex
// carries on the GPU.
type VertexLayout int

const (
	Vertex4Color4 VertexLayout = iota
	Vertex4Color3
	Vertex3Color4
	Vertex3Color3
	Vertex2Color4
	Vertex2Color3
)

var vertexLayoutNames = map[VertexLayout]string{
	Vertex2Color3: "vertex2_color3",
	Vertex2Color4: "vertex2_color4",
	Vertex3Color3: "vertex3_color3",
	Vertex3Color4: "vertex3_color4",
	Vertex4Color3: "vertex4_color3",
	Vertex4Color4: "vertex4_color4",
}

func (l VertexLayout) String() string {
	if n, ok := vertexLayoutNames[l]; ok {
		return n
	}
	return fmt.Sprintf("VertexLayout(%d)", int(l))
}

func ParseVertexLayout(s string) (VertexLayout, error) {
	for l, n := range vertexLayoutNames {
		if strings.EqualFold(n, s) {
			return l, nil
		}
	}
	return Vertex4Color4, fmt.Errorf("unknown vertex layout %q", s)
}

func (l VertexLayout) components() (position, color int) {
	switch l {
	case Vertex2Color3:
		return 2, 3
	case Vertex2Color4:
		return 2, 4
	case Vertex3Color3:
		return 3, 3
	case Vertex3Color4:
		return 3, 4
	case Vertex4Color3:
		return 4, 3
	default:
		return 4, 4
	}
}

func floatFormat(components int) gpu.Format {
	switch components {
	case 2:
		return gpu.FormatR32G32Sfloat
	case 3:
		return gpu.FormatR32G32B32Sfloat
	default:
		return gpu.FormatR32G32B32A32Sfloat
	}
}

// Stride is the byte size of one packed vertex.
func (l VertexLayout) Stride() uint32 {
	p, c := l.components()
	return uint32(p+c) * 4
}

func (l VertexLayout) bindings() []gpu.VertexBinding {
	return []gpu.VertexBinding{{Binding: 0, Stride: l.Stride()}}
}

// attributes places the position at location 0 and the colour right after
// it at location 1.
func (l VertexLayout) attributes() []gpu.VertexAttribute {
	p, c := l.components()
	return []gpu.VertexAttribute{
		{Location: 0, Binding: 0, Format: floatFormat(p), Offset: 0},
		{Location: 1, Binding: 0, Format: floatFormat(c), Offset: uint32(p) * 4},
	}
}

func putVec(dst []byte, v math.Vec4, n int) []byte {
	vals := [4]float32{v.X, v.Y, v.Z, v.W}
	for _, f := range vals[:n] {
		dst = binary.LittleEndian.AppendUint32(dst, math32.Float32bits(f))
	}
	return dst
}

// EncodeVertices packs vertices little-endian in layout order.
func (l VertexLayout) EncodeVertices(vertices []geometry.Vertex) []byte {
	p, c := l.components()
	out := make([]byte, 0, len(vertices)*int(l.Stride()))
	for _, v := range vertices {
		out = putVec(out, v.Position, p)
		out = putVec(out, v.Color, c)
	}
	return out
}

func encodeIndices(indices []uint32) []byte {
	out := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		out = binary.LittleEndian.AppendUint32(out, i)
	}
	return out
}
