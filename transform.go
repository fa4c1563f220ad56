package wlrender

import (
	"image"
	"math"

	"golang.org/x/image/math/f64"

	"github.com/gogpu/wlrender/internal/clip"
	"github.com/gogpu/wlrender/region"
)

// viewTransform maps a view's surface space to global space and back.
type viewTransform struct {
	enabled bool
	fwd     f64.Aff3
	inv     f64.Aff3
}

var _ clip.Transform = (*viewTransform)(nil)

func translation(x, y float64) viewTransform {
	return viewTransform{
		fwd: f64.Aff3{1, 0, x, 0, 1, y},
		inv: f64.Aff3{1, 0, -x, 0, 1, -y},
	}
}

// newViewTransform returns the transform of v. ok is false when the
// matrix cannot be inverted.
func newViewTransform(v *View) (viewTransform, bool) {
	if !v.Transformed {
		return translation(v.X, v.Y), true
	}
	m := v.Transform
	det := m[0]*m[4] - m[1]*m[3]
	if math.Abs(det) < 1e-12 {
		return viewTransform{}, false
	}
	ia, ib := m[4]/det, -m[1]/det
	id, ie := -m[3]/det, m[0]/det
	return viewTransform{
		enabled: m[0] != 1 || m[1] != 0 || m[3] != 0 || m[4] != 1,
		fwd:     m,
		inv: f64.Aff3{
			ia, ib, -(ia*m[2] + ib*m[5]),
			id, ie, -(id*m[2] + ie*m[5]),
		},
	}, true
}

func (t *viewTransform) Enabled() bool { return t.enabled }

func (t *viewTransform) ToGlobal(p clip.Point) clip.Point {
	return apply(&t.fwd, p)
}

func (t *viewTransform) FromGlobal(p clip.Point) clip.Point {
	return apply(&t.inv, p)
}

func apply(m *f64.Aff3, p clip.Point) clip.Point {
	return clip.Point{
		X: m[0]*p.X + m[1]*p.Y + m[2],
		Y: m[3]*p.X + m[4]*p.Y + m[5],
	}
}

// bounds returns the smallest integer rectangle holding the transformed
// w×h surface.
func (t *viewTransform) bounds(w, h int) image.Rectangle {
	var q clip.Quad
	for i, c := range clip.NewRect(0, 0, float64(w), float64(h)).Corners() {
		q[i] = t.ToGlobal(c)
	}
	b := q.Bounds()
	return image.Rect(
		int(math.Floor(b.X)), int(math.Floor(b.Y)),
		int(math.Ceil(b.Right())), int(math.Ceil(b.Bottom())),
	)
}

// globalRegion maps a surface-local region to global space. Only whole
// pixel translations map exactly; ok is false otherwise.
func (t *viewTransform) globalRegion(r region.Region) (region.Region, bool) {
	if t.enabled {
		return region.Region{}, false
	}
	x, y := t.fwd[2], t.fwd[5]
	if x != math.Trunc(x) || y != math.Trunc(y) {
		return region.Region{}, false
	}
	return r.Translate(image.Pt(int(x), int(y))), true
}
