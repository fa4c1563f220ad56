package clip

// edge identifies one half-plane of the clip rectangle.
type edge int

const (
	edgeLeft edge = iota
	edgeRight
	edgeTop
	edgeBottom
)

// inside classifies p against the half-plane. Left and top edges are
// inclusive, right and bottom edges exclusive, matching pixel coverage.
func (e edge) inside(p Point, r Rect) bool {
	switch e {
	case edgeLeft:
		return p.X >= r.X
	case edgeRight:
		return p.X < r.Right()
	case edgeTop:
		return p.Y >= r.Y
	default:
		return p.Y < r.Bottom()
	}
}

// intersect returns the point where prev-cur crosses the half-plane boundary.
func (e edge) intersect(prev, cur Point, r Rect) Point {
	switch e {
	case edgeLeft:
		return Point{X: r.X, Y: intersectX(prev, cur, r.X)}
	case edgeRight:
		return Point{X: r.Right(), Y: intersectX(prev, cur, r.Right())}
	case edgeTop:
		return Point{X: intersectY(prev, cur, r.Y), Y: r.Y}
	default:
		return Point{X: intersectY(prev, cur, r.Bottom()), Y: r.Bottom()}
	}
}

// stage holds the output of one clip stage. Clipping a convex polygon by a
// half-plane adds at most one vertex, so a quad never exceeds MaxVertices;
// the extra room only absorbs transient duplicates.
type stage struct {
	v [2 * MaxVertices]Point
	n int
}

func (s *stage) emit(p Point) {
	if s.n < len(s.v) {
		s.v[s.n] = p
		s.n++
	}
}

func (s *stage) points() []Point {
	return s.v[:s.n]
}

// clipEdge runs one Sutherland-Hodgman pass. Each vertex is classified
// against the half-plane and compared with the classification of the
// previous vertex, starting from the last one, to detect crossings.
func clipEdge(e edge, r Rect, src []Point, dst *stage) {
	dst.n = 0
	if len(src) == 0 {
		return
	}
	prev := src[len(src)-1]
	prevIn := e.inside(prev, r)
	for _, cur := range src {
		curIn := e.inside(cur, r)
		switch {
		case prevIn && curIn:
			dst.emit(cur)
		case prevIn:
			dst.emit(e.intersect(prev, cur, r))
		case curIn:
			dst.emit(e.intersect(prev, cur, r))
			dst.emit(cur)
		}
		prev, prevIn = cur, curIn
	}
}

// ClipPolygon clips a convex polygon against r using the general
// Sutherland-Hodgman path. The result has consecutive duplicate vertices
// removed, including a closing vertex equal to the first; fewer than three
// remaining vertices yield an empty polygon.
func ClipPolygon(r Rect, pts []Point) Polygon {
	var a, b stage
	clipEdge(edgeLeft, r, pts, &a)
	clipEdge(edgeRight, r, a.points(), &b)
	clipEdge(edgeTop, r, b.points(), &a)
	clipEdge(edgeBottom, r, a.points(), &b)
	return dedup(b.points())
}

func dedup(src []Point) Polygon {
	var out Polygon
	if len(src) == 0 {
		return out
	}
	out.V[0] = src[0]
	n := 1
	for _, p := range src[1:] {
		if samePoint(out.V[n-1], p) {
			continue
		}
		if n == MaxVertices {
			break
		}
		out.V[n] = p
		n++
	}
	if n > 1 && samePoint(out.V[n-1], out.V[0]) {
		n--
	}
	if n < 3 {
		return Polygon{}
	}
	out.N = n
	return out
}

// Clip intersects the screen-space quad q with the rectangle r.
//
// A quad whose bounding box misses r is rejected with zero vertices before
// any clipping work. When transformed is false the quad must be
// axis-aligned: each vertex is clamped to r and exactly four vertices are
// returned, possibly degenerate. Otherwise the general path runs and the
// result has zero or three to eight vertices.
func Clip(r Rect, q Quad, transformed bool) Polygon {
	b := q.Bounds()
	if b.X >= r.Right() || b.Right() <= r.X || b.Y >= r.Bottom() || b.Bottom() <= r.Y {
		return Polygon{}
	}

	if !transformed {
		var out Polygon
		for i, p := range q {
			out.V[i] = Point{
				X: clamp(p.X, r.X, r.Right()),
				Y: clamp(p.Y, r.Y, r.Bottom()),
			}
		}
		out.N = len(q)
		return out
	}

	return ClipPolygon(r, q[:])
}
