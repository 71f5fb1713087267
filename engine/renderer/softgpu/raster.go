package softgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/vulx/engine/math"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

type boundBuffer struct {
	buffer gpu.Buffer
	offset uint64
}

// executor carries command buffer state during one submission.
type executor struct {
	d *Device

	target   []byte
	format   gpu.Format
	width    uint32
	height   uint32
	inPass   bool
	pipeline *pipeline

	sets          []gpu.DescriptorSet
	vertexBuffers map[uint32]boundBuffer
	indexBuffer   boundBuffer
	indexType     gpu.IndexType
}

func newExecutor(d *Device) *executor {
	return &executor{d: d, vertexBuffers: make(map[uint32]boundBuffer)}
}

func (ex *executor) beginRenderPass(begin gpu.RenderPassBegin) error {
	fb, err := lookup[*framebuffer](ex.d.ledger, uint64(begin.Framebuffer), "framebuffer")
	if err != nil {
		return err
	}
	if fb.info.RenderPass != begin.RenderPass {
		ex.d.ledger.violate(ViolationInvalidUsage, "framebuffer was created for another render pass")
	}
	view, err := lookup[*imageView](ex.d.ledger, uint64(fb.info.Attachments[0]), "image_view")
	if err != nil {
		return err
	}
	img, err := ex.d.image(gpu.Image(view.image))
	if err != nil {
		return err
	}
	px, err := ex.d.pixels(img)
	if err != nil {
		return err
	}
	ex.target = px
	ex.format = img.info.Format
	ex.width = img.info.Width
	ex.height = img.info.Height
	ex.inPass = true

	w := math.Min(begin.Width, fb.info.Width)
	h := math.Min(begin.Height, fb.info.Height)
	c := packColor(ex.format, begin.ClearColor)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			copy(ex.target[(y*ex.width+x)*4:], c[:])
		}
	}
	return nil
}

func (ex *executor) endRenderPass() {
	ex.inPass = false
	ex.target = nil
}

func (ex *executor) bindPipeline(p gpu.Pipeline) error {
	pl, err := lookup[*pipeline](ex.d.ledger, uint64(p), "pipeline")
	if err != nil {
		return err
	}
	ex.pipeline = pl
	return nil
}

// packColor converts to 8-bit unorm in the byte order of format.
func packColor(format gpu.Format, c [4]float32) [4]byte {
	var out [4]byte
	for i, v := range c {
		out[i] = uint8(math.Clamp(v, 0, 1)*255 + 0.5)
	}
	if format == gpu.FormatB8G8R8A8Unorm || format == gpu.FormatB8G8R8A8Srgb {
		out[0], out[2] = out[2], out[0]
	}
	return out
}

// transform reads model, view and projection from set 0 binding 0.
func (ex *executor) transform() (math.Mat4, error) {
	mvp := math.NewMat4Identity()
	if len(ex.sets) == 0 {
		return mvp, nil
	}
	set, err := lookup[*descriptorSet](ex.d.ledger, uint64(ex.sets[0]), "descriptor_set")
	if err != nil {
		return mvp, err
	}
	w, ok := set.buffers[0]
	if !ok {
		return mvp, nil
	}
	data, _, err := ex.d.bufferBytes(w.Buffer)
	if err != nil {
		return mvp, err
	}
	data = data[w.Offset:]
	if len(data) < 3*64 {
		return mvp, fmt.Errorf("uniform buffer holds %d bytes, need %d", len(data), 3*64)
	}
	var m [3]math.Mat4
	for i := range m {
		for j := 0; j < 16; j++ {
			m[i].Data[j] = math32.Float32frombits(binary.LittleEndian.Uint32(data[(i*16+j)*4:]))
		}
	}
	return m[2].Mul(m[1]).Mul(m[0]), nil
}

func decodeAttribute(data []byte, format gpu.Format) math.Vec4 {
	f := func(i int) float32 {
		return math32.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	switch format {
	case gpu.FormatR32G32Sfloat:
		return math.Vec4{X: f(0), Y: f(1), Z: 0, W: 1}
	case gpu.FormatR32G32B32Sfloat:
		return math.Vec4{X: f(0), Y: f(1), Z: f(2), W: 1}
	default:
		return math.Vec4{X: f(0), Y: f(1), Z: f(2), W: f(3)}
	}
}

type shadedVertex struct {
	clip  math.Vec4
	color math.Vec4
}

func (ex *executor) fetchVertex(index uint32, mvp math.Mat4) (shadedVertex, error) {
	var out shadedVertex
	out.color = math.Vec4{X: 1, Y: 1, Z: 1, W: 1}
	pos := math.Vec4{W: 1}
	for _, attr := range ex.pipeline.info.VertexAttributes {
		var stride uint32
		for _, b := range ex.pipeline.info.VertexBindings {
			if b.Binding == attr.Binding {
				stride = b.Stride
			}
		}
		bound, ok := ex.vertexBuffers[attr.Binding]
		if !ok {
			return out, fmt.Errorf("no vertex buffer bound at binding %d", attr.Binding)
		}
		data, _, err := ex.d.bufferBytes(bound.buffer)
		if err != nil {
			return out, err
		}
		start := bound.offset + uint64(index)*uint64(stride) + uint64(attr.Offset)
		if start+uint64(attr.Format.Size()) > uint64(len(data)) {
			ex.d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("vertex %d reads past the end of buffer %d", index, bound.buffer))
			return out, gpu.Check("vkCmdDrawIndexed", gpu.ErrorDeviceLost)
		}
		v := decodeAttribute(data[start:], attr.Format)
		switch attr.Location {
		case 0:
			pos = v
		case 1:
			out.color = v
		}
	}
	out.clip = mvp.MulVec4(pos)
	return out, nil
}

func (ex *executor) readIndices(count, first uint32) ([]uint32, error) {
	data, _, err := ex.d.bufferBytes(ex.indexBuffer.buffer)
	if err != nil {
		return nil, err
	}
	size := uint64(4)
	if ex.indexType == gpu.IndexTypeUint16 {
		size = 2
	}
	start := ex.indexBuffer.offset + uint64(first)*size
	if start+uint64(count)*size > uint64(len(data)) {
		ex.d.ledger.violate(ViolationInvalidUsage, fmt.Sprintf("draw of %d indices reads past the end of buffer %d", count, ex.indexBuffer.buffer))
		return nil, gpu.Check("vkCmdDrawIndexed", gpu.ErrorDeviceLost)
	}
	out := make([]uint32, count)
	for i := range out {
		off := start + uint64(i)*size
		if size == 2 {
			out[i] = uint32(binary.LittleEndian.Uint16(data[off:]))
		} else {
			out[i] = binary.LittleEndian.Uint32(data[off:])
		}
	}
	return out, nil
}

func (ex *executor) drawIndexed(count, first uint32, vertexOffset int32) error {
	if !ex.inPass || ex.pipeline == nil {
		ex.d.ledger.violate(ViolationInvalidUsage, "draw outside a render pass or without a pipeline")
		return gpu.Check("vkCmdDrawIndexed", gpu.ErrorInitializationFailed)
	}
	mvp, err := ex.transform()
	if err != nil {
		return err
	}
	indices, err := ex.readIndices(count, first)
	if err != nil {
		return err
	}
	cache := make(map[uint32]shadedVertex)
	vertex := func(i uint32) (shadedVertex, error) {
		idx := uint32(int32(i) + vertexOffset)
		if v, ok := cache[idx]; ok {
			return v, nil
		}
		v, err := ex.fetchVertex(idx, mvp)
		if err == nil {
			cache[idx] = v
		}
		return v, err
	}

	for _, tri := range assemble(ex.pipeline.info.Topology, indices) {
		var vs [3]shadedVertex
		for k, i := range tri {
			if vs[k], err = vertex(i); err != nil {
				return err
			}
		}
		ex.rasterize(vs)
	}
	return nil
}

// assemble splits an index stream into triangles.
func assemble(topology gpu.PrimitiveTopology, idx []uint32) [][3]uint32 {
	var out [][3]uint32
	switch topology {
	case gpu.TopologyTriangleStrip:
		for i := 0; i+2 < len(idx); i++ {
			if i%2 == 0 {
				out = append(out, [3]uint32{idx[i], idx[i+1], idx[i+2]})
			} else {
				out = append(out, [3]uint32{idx[i+1], idx[i], idx[i+2]})
			}
		}
	case gpu.TopologyTriangleFan:
		for i := 1; i+1 < len(idx); i++ {
			out = append(out, [3]uint32{idx[0], idx[i], idx[i+1]})
		}
	default:
		for i := 0; i+2 < len(idx); i += 3 {
			out = append(out, [3]uint32{idx[i], idx[i+1], idx[i+2]})
		}
	}
	return out
}

type screenVertex struct {
	x, y  float32
	invW  float32
	color math.Vec4
}

func (ex *executor) toScreen(v shadedVertex) screenVertex {
	vp := ex.pipeline.info.Viewport
	invW := 1 / v.clip.W
	return screenVertex{
		x:     (v.clip.X*invW+1)*vp.Width/2 + vp.X,
		y:     (v.clip.Y*invW+1)*vp.Height/2 + vp.Y,
		invW:  invW,
		color: v.color,
	}
}

// scissor returns the pixel bounds drawing may touch.
func (ex *executor) scissor() (x0, y0, x1, y1 int) {
	s := ex.pipeline.info.Scissor
	x0, y0 = int(s.X), int(s.Y)
	x1, y1 = x0+int(s.Width), y0+int(s.Height)
	if s.Width == 0 || s.Height == 0 {
		x0, y0, x1, y1 = 0, 0, int(ex.width), int(ex.height)
	}
	return math.Max(x0, 0), math.Max(y0, 0), math.Min(x1, int(ex.width)), math.Min(y1, int(ex.height))
}

func (ex *executor) plot(x, y int, c math.Vec4) {
	px := packColor(ex.format, [4]float32{c.X, c.Y, c.Z, c.W})
	copy(ex.target[(y*int(ex.width)+x)*4:], px[:])
}

func edge(a, b screenVertex, px, py float32) float32 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// topLeft reports whether a->b owns the pixels lying exactly on it, for a
// triangle whose interior has positive edge values.
func topLeft(a, b screenVertex) bool {
	dx, dy := b.x-a.x, b.y-a.y
	return dy < 0 || (dy == 0 && dx > 0)
}

func (ex *executor) rasterize(vs [3]shadedVertex) {
	for _, v := range vs {
		if v.clip.W <= 0 {
			return
		}
	}
	s := [3]screenVertex{ex.toScreen(vs[0]), ex.toScreen(vs[1]), ex.toScreen(vs[2])}

	// Signed area as defined for Vulkan polygon facing.
	var sum float32
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		sum += s[i].x*s[j].y - s[j].x*s[i].y
	}
	area := -0.5 * sum
	if area == 0 {
		return
	}
	info := ex.pipeline.info
	front := area > 0
	if info.FrontFace == gpu.FrontFaceClockwise {
		front = area < 0
	}
	switch info.CullMode {
	case gpu.CullModeBack:
		if !front {
			return
		}
	case gpu.CullModeFront:
		if front {
			return
		}
	}

	if info.PolygonMode == gpu.PolygonModeLine {
		for i := 0; i < 3; i++ {
			ex.line(s[i], s[(i+1)%3])
		}
		return
	}

	// Reorder so every edge function is positive inside.
	if sum < 0 {
		s[1], s[2] = s[2], s[1]
		sum = -sum
	}
	sx0, sy0, sx1, sy1 := ex.scissor()
	minX := math.Max(int(math32.Floor(math.Min(s[0].x, math.Min(s[1].x, s[2].x)))), sx0)
	maxX := math.Min(int(math32.Ceil(math.Max(s[0].x, math.Max(s[1].x, s[2].x)))), sx1-1)
	minY := math.Max(int(math32.Floor(math.Min(s[0].y, math.Min(s[1].y, s[2].y)))), sy0)
	maxY := math.Min(int(math32.Ceil(math.Max(s[0].y, math.Max(s[1].y, s[2].y)))), sy1-1)

	owns := [3]bool{topLeft(s[1], s[2]), topLeft(s[2], s[0]), topLeft(s[0], s[1])}
	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5
		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5
			w := [3]float32{edge(s[1], s[2], px, py), edge(s[2], s[0], px, py), edge(s[0], s[1], px, py)}
			inside := true
			for k := range w {
				if w[k] < 0 || (w[k] == 0 && !owns[k]) {
					inside = false
					break
				}
			}
			if !inside {
				continue
			}
			ex.plot(x, y, interpolate(s, w))
		}
	}
}

// interpolate blends vertex colours with perspective correction.
func interpolate(s [3]screenVertex, w [3]float32) math.Vec4 {
	var c math.Vec4
	var norm float32
	for k := range s {
		f := w[k] * s[k].invW
		c = c.Add(s[k].color.Scale(f))
		norm += f
	}
	if norm == 0 {
		return s[0].color
	}
	return c.Scale(1 / norm)
}

// line draws a one pixel wide segment with a DDA walk.
func (ex *executor) line(a, b screenVertex) {
	sx0, sy0, sx1, sy1 := ex.scissor()
	dx, dy := b.x-a.x, b.y-a.y
	steps := int(math32.Ceil(math.Max(math32.Abs(dx), math32.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	for i := 0; i <= steps; i++ {
		t := float32(i) / float32(steps)
		x := int(math32.Floor(a.x + dx*t))
		y := int(math32.Floor(a.y + dy*t))
		if x < sx0 || y < sy0 || x >= sx1 || y >= sy1 {
			continue
		}
		c := a.color.Scale(1 - t).Add(b.color.Scale(t))
		ex.plot(x, y, c)
	}
}
