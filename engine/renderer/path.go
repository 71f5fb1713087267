package renderer

import (
	"fmt"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/geometry"
)

type IndexBuffer struct {
	Buffer *DeviceBuffer
	Count  uint32
}

// Path is the GPU-resident form of a geometry source: one vertex buffer and
// one index buffer per batch, in batch order.
type Path struct {
	ID           core.Identifier
	Buffers      []*DeviceBuffer
	IndexBuffers []IndexBuffer
}

// CompilePath uploads every batch of src into its own pair of buffers. On
// failure the buffers created so far are destroyed.
func CompilePath(dev *Device, src geometry.Source, layout VertexLayout) (*Path, error) {
	path := &Path{ID: core.NewIdentifier()}
	for i, batch := range src.Batches() {
		if len(batch.Vertices) == 0 || len(batch.Indices) == 0 {
			continue
		}
		vb, err := uploadBuffer(dev, VertexBufferKind, layout.EncodeVertices(batch.Vertices))
		if err != nil {
			path.Destroy()
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		path.Buffers = append(path.Buffers, vb)

		ib, err := uploadBuffer(dev, IndexBufferKind, encodeIndices(batch.Indices))
		if err != nil {
			path.Destroy()
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		path.IndexBuffers = append(path.IndexBuffers, IndexBuffer{Buffer: ib, Count: uint32(len(batch.Indices))})
	}
	core.LogDebug("path %s compiled: %d batch(es)", path.ID.Short(), len(path.IndexBuffers))
	return path, nil
}

// uploadBuffer runs the allocate, flush, unmap sequence for one buffer.
func uploadBuffer(dev *Device, kind BufferKind, data []byte) (*DeviceBuffer, error) {
	buf, err := NewDeviceBuffer(dev, uint64(len(data)), kind)
	if err != nil {
		return nil, err
	}
	if err := buf.AllocateData(data); err != nil {
		buf.Destroy()
		return nil, err
	}
	if err := buf.Flush(); err != nil {
		buf.Destroy()
		return nil, err
	}
	buf.Unmap()
	return buf, nil
}

// Destroy releases every buffer of the path.
func (p *Path) Destroy() {
	for _, b := range p.Buffers {
		b.Destroy()
	}
	for _, ib := range p.IndexBuffers {
		ib.Buffer.Destroy()
	}
	p.Buffers = nil
	p.IndexBuffers = nil
}
