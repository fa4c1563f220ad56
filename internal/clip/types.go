// Package clip implements the screen-space clipping and tessellation engine.
//
// The engine intersects an axis-aligned damage rectangle with a surface
// rectangle that has been mapped to screen space by an arbitrary affine
// transform. The result is a convex polygon of at most eight vertices,
// emitted as a triangle fan together with matching texture coordinates.
package clip

import "math"

// MaxVertices is the largest vertex count a clipped quad can produce.
const MaxVertices = 8

// Point represents a 2D point with float64 coordinates.
type Point struct {
	X, Y float64
}

// Pt creates a Point from x, y coordinates.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Rect represents an axis-aligned rectangle with float64 coordinates.
type Rect struct {
	X, Y float64 // Top-left corner
	W, H float64 // Width and height
}

// NewRect creates a Rect from position and size.
func NewRect(x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Right returns the right edge x-coordinate.
func (r Rect) Right() float64 {
	return r.X + r.W
}

// Bottom returns the bottom edge y-coordinate.
func (r Rect) Bottom() float64 {
	return r.Y + r.H
}

// IsEmpty returns true if the rectangle has zero area.
func (r Rect) IsEmpty() bool {
	return r.W <= 0 || r.H <= 0
}

// Corners returns the rectangle's vertices in clockwise screen order
// (y grows downwards), starting at the top-left corner.
func (r Rect) Corners() Quad {
	return Quad{
		{r.X, r.Y},
		{r.Right(), r.Y},
		{r.Right(), r.Bottom()},
		{r.X, r.Bottom()},
	}
}

// Quad is a quadrilateral, typically a surface rectangle mapped to screen space.
type Quad [4]Point

// Bounds returns the axis-aligned bounding box of the quad.
func (q Quad) Bounds() Rect {
	return bounds(q[:])
}

func bounds(pts []Point) Rect {
	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Polygon is a convex polygon with at most MaxVertices vertices.
type Polygon struct {
	V [MaxVertices]Point
	N int
}

// Points returns the polygon's vertices.
func (p *Polygon) Points() []Point {
	return p.V[:p.N]
}

// Area returns the absolute area of the polygon.
func (p *Polygon) Area() float64 {
	if p.N < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < p.N; i++ {
		a := p.V[i]
		b := p.V[(i+1)%p.N]
		sum += a.X*b.Y - b.X*a.Y
	}
	return math.Abs(sum) / 2
}

// Bounds returns the axis-aligned bounding box of the polygon.
func (p *Polygon) Bounds() Rect {
	if p.N == 0 {
		return Rect{}
	}
	return bounds(p.V[:p.N])
}
