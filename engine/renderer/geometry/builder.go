// Package geometry accumulates shapes into indexed vertex batches. It never
// touches the GPU.
package geometry

import (
	"github.com/spaghettifunk/vulx/engine/math"
)

type Vertex struct {
	Position math.Vec4
	Color    math.Vec4
}

// IndexedBatch is one shape's vertices and the indices drawing them.
type IndexedBatch struct {
	Vertices []Vertex
	Indices  []uint32
}

// Source is anything that can hand over its batches for compilation.
type Source interface {
	Batches() []IndexedBatch
}

var (
	triangleIndices = []uint32{0, 1, 2}
	// Two triangles sharing the 0-1 edge.
	quadIndices = []uint32{0, 1, 2, 1, 0, 3}
)

// Builder collects batches in insertion order. The zero value is ready to use.
type Builder struct {
	batches []IndexedBatch
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Triangle(positions [3]math.Vec4, colors [3]math.Vec4) *Builder {
	return b.appendBatch(positions[:], colors[:], triangleIndices)
}

// Rectangle appends positions p0..p3 drawn as (p0, p1, p2) and (p1, p0, p3),
// so p0 and p1 must be opposite corners.
func (b *Builder) Rectangle(positions [4]math.Vec4, colors [4]math.Vec4) *Builder {
	return b.appendBatch(positions[:], colors[:], quadIndices)
}

func (b *Builder) appendBatch(positions, colors []math.Vec4, indices []uint32) *Builder {
	batch := IndexedBatch{
		Vertices: make([]Vertex, len(positions)),
		Indices:  make([]uint32, len(indices)),
	}
	for i := range positions {
		batch.Vertices[i] = Vertex{Position: positions[i], Color: colors[i]}
	}
	copy(batch.Indices, indices)
	b.batches = append(b.batches, batch)
	return b
}

// Size returns the number of vertices across all batches.
func (b *Builder) Size() int {
	n := 0
	for _, batch := range b.batches {
		n += len(batch.Vertices)
	}
	return n
}

// Len returns the number of batches.
func (b *Builder) Len() int {
	return len(b.batches)
}

func (b *Builder) Batches() []IndexedBatch {
	return b.batches
}

func (b *Builder) Reset() {
	b.batches = nil
}
