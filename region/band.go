package region

import (
	"image"
	"slices"
)

// op decides whether an x interval belongs to the result given its
// membership in each operand.
type op func(inA, inB bool) bool

func opUnion(a, b bool) bool     { return a || b }
func opIntersect(a, b bool) bool { return a && b }
func opSubtract(a, b bool) bool  { return a && !b }

// span is a half-open x interval within one band.
type span struct{ x0, x1 int }

// combine applies o to the pixel sets of a and b and returns the result
// in canonical band form. The operands may overlap themselves.
func combine(a, b []image.Rectangle, o op) Region {
	ys := make([]int, 0, 2*(len(a)+len(b)))
	for _, rr := range a {
		ys = append(ys, rr.Min.Y, rr.Max.Y)
	}
	for _, rr := range b {
		ys = append(ys, rr.Min.Y, rr.Max.Y)
	}
	slices.Sort(ys)
	ys = slices.Compact(ys)

	var out []image.Rectangle
	var sa, sb, cur, prev []span
	var xs []int
	bandStart, prevBottom := -1, 0
	for k := 0; k+1 < len(ys); k++ {
		y0, y1 := ys[k], ys[k+1]
		sa = spansAt(sa, a, y0, y1)
		sb = spansAt(sb, b, y0, y1)
		cur, xs = merge(cur[:0], xs, sa, sb, o)
		if len(cur) == 0 {
			continue
		}
		if bandStart >= 0 && prevBottom == y0 && slices.Equal(prev, cur) {
			for i := bandStart; i < len(out); i++ {
				out[i].Max.Y = y1
			}
		} else {
			bandStart = len(out)
			for _, s := range cur {
				out = append(out, image.Rect(s.x0, y0, s.x1, y1))
			}
			prev = append(prev[:0], cur...)
		}
		prevBottom = y1
	}
	return Region{rects: out}
}

// spansAt returns the sorted, merged x spans of the rectangles covering
// the band [y0, y1). Band edges come from the rectangle edges, so a
// rectangle either covers the whole band or none of it.
func spansAt(dst []span, rects []image.Rectangle, y0, y1 int) []span {
	dst = dst[:0]
	for _, rr := range rects {
		if rr.Min.Y <= y0 && rr.Max.Y >= y1 {
			dst = append(dst, span{rr.Min.X, rr.Max.X})
		}
	}
	if len(dst) < 2 {
		return dst
	}
	slices.SortFunc(dst, func(p, q span) int { return p.x0 - q.x0 })
	n := 0
	for _, s := range dst[1:] {
		if s.x0 <= dst[n].x1 {
			dst[n].x1 = max(dst[n].x1, s.x1)
			continue
		}
		n++
		dst[n] = s
	}
	return dst[:n+1]
}

// merge walks the x breakpoints of two merged span lists and appends the
// intervals selected by o to dst, joining touching intervals.
func merge(dst []span, xs []int, a, b []span, o op) ([]span, []int) {
	xs = xs[:0]
	for _, s := range a {
		xs = append(xs, s.x0, s.x1)
	}
	for _, s := range b {
		xs = append(xs, s.x0, s.x1)
	}
	slices.Sort(xs)
	xs = slices.Compact(xs)

	ia, ib := 0, 0
	for k := 0; k+1 < len(xs); k++ {
		x0, x1 := xs[k], xs[k+1]
		for ia < len(a) && a[ia].x1 <= x0 {
			ia++
		}
		for ib < len(b) && b[ib].x1 <= x0 {
			ib++
		}
		inA := ia < len(a) && a[ia].x0 <= x0
		inB := ib < len(b) && b[ib].x0 <= x0
		if !o(inA, inB) {
			continue
		}
		if n := len(dst); n > 0 && dst[n-1].x1 == x0 {
			dst[n-1].x1 = x1
		} else {
			dst = append(dst, span{x0, x1})
		}
	}
	return dst, xs
}
