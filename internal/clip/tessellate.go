package clip

// Transform maps between surface-local and global (screen) coordinates.
type Transform interface {
	// Enabled reports whether the mapping is more than a translation.
	Enabled() bool
	ToGlobal(p Point) Point
	FromGlobal(p Point) Point
}

// TexSpace normalizes surface coordinates into [0,1] texture coordinates.
type TexSpace struct {
	// Pitch is the buffer row length in pixels; it can exceed the
	// surface width when rows are padded.
	Pitch float64

	// Height is the buffer height in pixels.
	Height float64

	// YInverted is set when row 0 of the buffer is the top of the surface.
	YInverted bool
}

// Map returns the texture coordinate of the surface point p.
func (ts TexSpace) Map(p Point) Point {
	s := p.X / ts.Pitch
	t := p.Y / ts.Height
	if !ts.YInverted {
		t = 1 - t
	}
	return Point{X: s, Y: t}
}

// Vertex is one fan vertex: screen position and texture coordinate.
type Vertex struct {
	Pos Point
	Tex Point
}

// Fan is a convex polygon emitted as a triangle fan. The first vertex is
// an arbitrary apex since the polygon is convex.
type Fan struct {
	V [MaxVertices]Vertex
	N int
}

// Tessellate clips the surface rectangle surf, given in surface
// coordinates, against the screen rectangle r. Every kept vertex is mapped
// back to surface space to produce its texture coordinate.
func Tessellate(r, surf Rect, xf Transform, ts TexSpace) Fan {
	var q Quad
	for i, c := range surf.Corners() {
		q[i] = xf.ToGlobal(c)
	}

	poly := Clip(r, q, xf.Enabled())

	var fan Fan
	for i, p := range poly.Points() {
		fan.V[i] = Vertex{Pos: p, Tex: ts.Map(xf.FromGlobal(p))}
	}
	fan.N = poly.N
	return fan
}

// Drawable reports whether the fan has at least one triangle.
func (f *Fan) Drawable() bool {
	return f.N >= 3
}

// AppendTriangles appends the fan as a triangle list of 3(N-2) vertices.
func (f *Fan) AppendTriangles(dst []Vertex) []Vertex {
	for i := 1; i+1 < f.N; i++ {
		dst = append(dst, f.V[0], f.V[i], f.V[i+1])
	}
	return dst
}

// AppendWireframe appends every triangle edge of the fan as line-list
// vertex pairs.
func (f *Fan) AppendWireframe(dst []Vertex) []Vertex {
	for i := 1; i+1 < f.N; i++ {
		a, b, c := f.V[0], f.V[i], f.V[i+1]
		dst = append(dst, a, b, b, c, c, a)
	}
	return dst
}
