package geometry

import (
	"github.com/spaghettifunk/vulx/engine/math"
)

// Line appends a quad of the given thickness covering the segment start-end.
// The quad extends to the left of the direction of travel (+Y for a segment
// pointing along +X), and zero length segments extend along +Y.
func (b *Builder) Line(start, end math.Vec4, thickness float32, color math.Vec4) *Builder {
	dir := end.ToVec2().Sub(start.ToVec2()).Normalized()
	n := dir.Perp()
	if dir.Length() == 0 {
		n = math.NewVec2(0, 1)
	}
	offset := math.Vec4{X: n.X * thickness, Y: n.Y * thickness}
	positions := [4]math.Vec4{
		start,
		end.Add(offset),
		start.Add(offset),
		end,
	}
	return b.Rectangle(positions, [4]math.Vec4{color, color, color, color})
}

// Rect appends an axis aligned rectangle with its top-left corner at (x, y)
// in a y-down space, filled with a single colour.
func (b *Builder) Rect(x, y, w, h float32, color math.Vec4) *Builder {
	positions := [4]math.Vec4{
		math.NewPoint(x, y),
		math.NewPoint(x+w, y+h),
		math.NewPoint(x, y+h),
		math.NewPoint(x+w, y),
	}
	return b.Rectangle(positions, [4]math.Vec4{color, color, color, color})
}

// Area returns the screen-space area of all batches, counting each indexed
// triangle once. Overlapping shapes are counted twice.
func (b *Builder) Area() float32 {
	var area float32
	for _, batch := range b.batches {
		for i := 0; i+2 < len(batch.Indices); i += 3 {
			p0 := batch.Vertices[batch.Indices[i]].Position
			p1 := batch.Vertices[batch.Indices[i+1]].Position
			p2 := batch.Vertices[batch.Indices[i+2]].Position
			cross := (p1.X-p0.X)*(p2.Y-p0.Y) - (p2.X-p0.X)*(p1.Y-p0.Y)
			if cross < 0 {
				cross = -cross
			}
			area += cross / 2
		}
	}
	return area
}

// Transform moves the vertices of batches[from:] by t's world matrix. Pass
// the Len taken before appending to place only the newest shapes.
func (b *Builder) Transform(from int, t *math.Transform) *Builder {
	if from < 0 {
		from = 0
	}
	m := t.GetWorld()
	for i := from; i < len(b.batches); i++ {
		for j := range b.batches[i].Vertices {
			v := &b.batches[i].Vertices[j]
			v.Position = m.MulVec4(v.Position)
		}
	}
	return b
}

// Bounds returns the axis aligned extents of every vertex. ok is false for
// an empty builder.
func (b *Builder) Bounds() (ext math.Extents2D, ok bool) {
	for _, batch := range b.batches {
		for _, v := range batch.Vertices {
			p := v.Position.ToVec2()
			if !ok {
				ext = math.Extents2D{Min: p, Max: p}
				ok = true
				continue
			}
			ext.Min = math.NewVec2(math.Min(ext.Min.X, p.X), math.Min(ext.Min.Y, p.Y))
			ext.Max = math.NewVec2(math.Max(ext.Max.X, p.X), math.Max(ext.Max.Y, p.Y))
		}
	}
	return ext, ok
}
