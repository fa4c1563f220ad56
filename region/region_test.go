package region

import (
	"image"
	"math/rand"
	"testing"
)

func TestRegion_Empty(t *testing.T) {
	var r Region
	if !r.IsEmpty() {
		t.Fatal("zero region should be empty")
	}
	if got := New(image.Rect(5, 5, 5, 10)); !got.IsEmpty() {
		t.Errorf("zero-width rect produced %d rects", got.Len())
	}
	if ext := r.Extents(); !ext.Empty() {
		t.Errorf("Extents() = %v, want empty", ext)
	}
}

func TestRegion_UnionOverlapping(t *testing.T) {
	r := Rect(0, 0, 10, 10).Union(Rect(5, 5, 15, 15))

	if got, want := r.Area(), 100+100-25; got != want {
		t.Errorf("Area() = %d, want %d", got, want)
	}
	if got, want := r.Extents(), image.Rect(0, 0, 15, 15); got != want {
		t.Errorf("Extents() = %v, want %v", got, want)
	}
	assertDisjoint(t, r)
}

func TestRegion_UnionContained(t *testing.T) {
	r := Rect(0, 0, 100, 100)
	got := r.UnionRect(image.Rect(10, 10, 20, 20))
	if got.Len() != 1 {
		t.Errorf("union with contained rect produced %d rects, want 1", got.Len())
	}
}

func TestRegion_Coalesce(t *testing.T) {
	tests := []struct {
		name string
		r    Region
		want []image.Rectangle
	}{
		{
			"adjacent horizontally",
			Rect(0, 0, 10, 10).Union(Rect(10, 0, 20, 10)),
			[]image.Rectangle{image.Rect(0, 0, 20, 10)},
		},
		{
			"adjacent vertically",
			Rect(0, 0, 10, 10).Union(Rect(0, 10, 10, 20)),
			[]image.Rectangle{image.Rect(0, 0, 10, 20)},
		},
		{
			"overlapping",
			Rect(0, 0, 10, 10).Union(Rect(5, 5, 15, 15)),
			[]image.Rectangle{image.Rect(0, 0, 10, 5), image.Rect(0, 5, 15, 10), image.Rect(5, 10, 15, 15)},
		},
		{
			"hole filled back",
			Rect(0, 0, 10, 10).SubtractRect(image.Rect(2, 2, 8, 8)).UnionRect(image.Rect(2, 2, 8, 8)),
			[]image.Rectangle{image.Rect(0, 0, 10, 10)},
		},
		{
			"two columns",
			New(image.Rect(0, 0, 4, 4), image.Rect(8, 0, 12, 4), image.Rect(0, 4, 4, 8), image.Rect(8, 4, 12, 8)),
			[]image.Rectangle{image.Rect(0, 0, 4, 8), image.Rect(8, 0, 12, 8)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.r.Rects()
			if len(got) != len(tt.want) {
				t.Fatalf("rects = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("rects = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRegion_UnionCoveringRect(t *testing.T) {
	full := image.Rect(0, 0, 640, 480)
	rng := rand.New(rand.NewSource(1))
	var r Region
	for i := 0; i < 300; i++ {
		x, y := rng.Intn(600), rng.Intn(440)
		r = r.UnionRect(image.Rect(x, y, x+1+rng.Intn(40), y+1+rng.Intn(40)))
	}
	assertDisjoint(t, r)
	assertBanded(t, r)

	got := r.UnionRect(full)
	if got.Len() != 1 || got.Rects()[0] != full {
		t.Errorf("union with covering rect = %d rects, want 1", got.Len())
	}
	if inside := New(full).Intersect(r); !inside.Equal(r) {
		t.Error("intersecting with a covering rect changed the region")
	}
	if rest := New(full).Subtract(r).Union(r); rest.Len() != 1 {
		t.Errorf("complement union = %d rects, want 1", rest.Len())
	}
}

func TestRegion_Subtract(t *testing.T) {
	tests := []struct {
		name string
		a, b Region
		area int
	}{
		{"disjoint", Rect(0, 0, 10, 10), Rect(20, 20, 30, 30), 100},
		{"hole", Rect(0, 0, 10, 10), Rect(2, 2, 8, 8), 100 - 36},
		{"covering", Rect(2, 2, 8, 8), Rect(0, 0, 10, 10), 0},
		{"edge", Rect(0, 0, 10, 10), Rect(5, 0, 10, 10), 50},
		{"corner", Rect(0, 0, 10, 10), Rect(5, 5, 20, 20), 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Subtract(tt.b)
			if got.Area() != tt.area {
				t.Errorf("Area() = %d, want %d", got.Area(), tt.area)
			}
			if !got.Intersect(tt.b).IsEmpty() {
				t.Error("difference still intersects subtrahend")
			}
			assertDisjoint(t, got)
		})
	}
}

func TestRegion_Intersect(t *testing.T) {
	a := Rect(0, 0, 10, 10).Union(Rect(20, 0, 30, 10))
	got := a.IntersectRect(image.Rect(5, 5, 25, 15))

	want := Rect(5, 5, 10, 10).Union(Rect(20, 5, 25, 10))
	if !got.Equal(want) {
		t.Errorf("Intersect = %v, want %v", got.Rects(), want.Rects())
	}
}

func TestRegion_Translate(t *testing.T) {
	r := Rect(0, 0, 10, 10).Translate(image.Pt(3, -2))
	if got, want := r.Extents(), image.Rect(3, -2, 13, 8); got != want {
		t.Errorf("Extents() = %v, want %v", got, want)
	}
}

func TestRegion_ValueSemantics(t *testing.T) {
	a := Rect(0, 0, 10, 10)
	_ = a.UnionRect(image.Rect(50, 50, 60, 60))
	_ = a.SubtractRect(image.Rect(0, 0, 5, 5))
	if a.Area() != 100 {
		t.Errorf("receiver mutated: area %d", a.Area())
	}
}

func TestRegion_ContainsRect(t *testing.T) {
	r := Rect(0, 0, 10, 10).Union(Rect(10, 0, 20, 10))
	if !r.ContainsRect(image.Rect(5, 2, 15, 8)) {
		t.Error("rect spanning two pieces should be contained")
	}
	if r.ContainsRect(image.Rect(5, 2, 25, 8)) {
		t.Error("rect leaving the region should not be contained")
	}
	if !r.Contains(image.Pt(19, 9)) || r.Contains(image.Pt(20, 9)) {
		t.Error("Contains uses half-open rectangles")
	}
}

// assertBanded checks the canonical form: rects sorted by band then x,
// rects in a band sharing y edges and never touching.
func assertBanded(t *testing.T, r Region) {
	t.Helper()
	rects := r.Rects()
	for i := 1; i < len(rects); i++ {
		p, c := rects[i-1], rects[i]
		switch {
		case c.Min.Y == p.Min.Y:
			if c.Max.Y != p.Max.Y || c.Min.X <= p.Max.X {
				t.Fatalf("band broken between %v and %v", p, c)
			}
		case c.Min.Y < p.Max.Y:
			t.Fatalf("bands out of order: %v then %v", p, c)
		}
	}
}

func assertDisjoint(t *testing.T, r Region) {
	t.Helper()
	rects := r.Rects()
	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if rects[i].Overlaps(rects[j]) {
				t.Fatalf("rects %v and %v overlap", rects[i], rects[j])
			}
		}
	}
}
