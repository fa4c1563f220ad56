// Package region implements pixel regions as sets of disjoint rectangles.
//
// A Region is the unit of damage bookkeeping in wlrender: surface damage,
// per-buffer damage history and the repaint area of an output are all
// regions. The zero value is the empty region.
//
// Regions are kept in the canonical form pixman uses: rectangles are
// grouped into horizontal bands sorted top to bottom, rectangles within a
// band are sorted left to right and never touch, and vertically adjacent
// bands with identical spans are merged. Two regions covering the same
// pixels therefore have identical rectangle lists.
//
// Regions are values. Every operation returns a new Region and never
// mutates its receiver or arguments, so regions can be stored and shared
// without copying.
package region

import (
	"image"
	"slices"
)

// Region is a set of pixels described by pairwise disjoint rectangles.
type Region struct {
	rects []image.Rectangle
}

// New returns the union of the given rectangles.
func New(rects ...image.Rectangle) Region {
	in := make([]image.Rectangle, 0, len(rects))
	for _, rr := range rects {
		if rr = rr.Canon(); !rr.Empty() {
			in = append(in, rr)
		}
	}
	switch len(in) {
	case 0:
		return Region{}
	case 1:
		return Region{rects: in}
	}
	return combine(in, nil, opUnion)
}

// Rect returns a region covering a single rectangle.
func Rect(x0, y0, x1, y1 int) Region {
	return New(image.Rect(x0, y0, x1, y1))
}

// IsEmpty reports whether the region covers no pixels.
func (r Region) IsEmpty() bool {
	return len(r.rects) == 0
}

// Len returns the number of rectangles in the region.
func (r Region) Len() int {
	return len(r.rects)
}

// Rects returns a copy of the region's rectangles in band order.
func (r Region) Rects() []image.Rectangle {
	return slices.Clone(r.rects)
}

// Extents returns the bounding box of the region.
func (r Region) Extents() image.Rectangle {
	var ext image.Rectangle
	for _, rr := range r.rects {
		ext = ext.Union(rr)
	}
	return ext
}

// Area returns the number of pixels covered by the region.
func (r Region) Area() int {
	n := 0
	for _, rr := range r.rects {
		n += rr.Dx() * rr.Dy()
	}
	return n
}

// Contains reports whether the pixel at p is inside the region.
func (r Region) Contains(p image.Point) bool {
	for _, rr := range r.rects {
		if p.In(rr) {
			return true
		}
	}
	return false
}

// ContainsRect reports whether every pixel of rr is inside the region.
func (r Region) ContainsRect(rr image.Rectangle) bool {
	return New(rr).Subtract(r).IsEmpty()
}

// Equal reports whether both regions cover the same pixels.
func (r Region) Equal(o Region) bool {
	return slices.Equal(r.rects, o.rects)
}

// Union returns the pixels covered by r or o.
func (r Region) Union(o Region) Region {
	switch {
	case o.IsEmpty():
		return r
	case r.IsEmpty():
		return o
	}
	return combine(r.rects, o.rects, opUnion)
}

// UnionRect returns the pixels covered by r or rr.
func (r Region) UnionRect(rr image.Rectangle) Region {
	return r.Union(New(rr))
}

// Intersect returns the pixels covered by both r and o.
func (r Region) Intersect(o Region) Region {
	if r.IsEmpty() || o.IsEmpty() || !r.Extents().Overlaps(o.Extents()) {
		return Region{}
	}
	return combine(r.rects, o.rects, opIntersect)
}

// IntersectRect returns the pixels covered by both r and rr.
func (r Region) IntersectRect(rr image.Rectangle) Region {
	return r.Intersect(New(rr))
}

// Subtract returns the pixels covered by r but not by o.
func (r Region) Subtract(o Region) Region {
	if r.IsEmpty() || o.IsEmpty() || !r.Extents().Overlaps(o.Extents()) {
		return r
	}
	return combine(r.rects, o.rects, opSubtract)
}

// SubtractRect returns the pixels covered by r but not by rr.
func (r Region) SubtractRect(rr image.Rectangle) Region {
	return r.Subtract(New(rr))
}

// Translate returns the region shifted by d.
func (r Region) Translate(d image.Point) Region {
	if len(r.rects) == 0 {
		return r
	}
	out := make([]image.Rectangle, len(r.rects))
	for i, rr := range r.rects {
		out[i] = rr.Add(d)
	}
	return Region{rects: out}
}
