package clip

import "math"

const (
	// maxAbsDiff is four times the smallest normal float32.
	maxAbsDiff = 4 * 0x1p-126
	maxRelDiff = 4.0e-5
)

// floatDifference returns a-b, or exactly 0 when a and b are equal within
// an absolute and relative tolerance. Transformed vertex coordinates
// accumulate rounding error, and raw equality would let nearly identical
// points through as zero-length edges.
func floatDifference(a, b float64) float64 {
	diff := a - b
	adiff := math.Abs(diff)
	if adiff < maxAbsDiff {
		return 0
	}
	if adiff <= math.Max(math.Abs(a), math.Abs(b))*maxRelDiff {
		return 0
	}
	return diff
}

// intersectX returns the y coordinate where segment p1-p2 crosses x.
// A nearly vertical segment reuses the y of its endpoint p2.
func intersectX(p1, p2 Point, x float64) float64 {
	diff := floatDifference(p1.X, p2.X)
	if diff == 0 {
		return p2.Y
	}
	return p2.Y + (x-p2.X)*(p1.Y-p2.Y)/diff
}

// intersectY returns the x coordinate where segment p1-p2 crosses y.
// A nearly horizontal segment reuses the x of its endpoint p2.
func intersectY(p1, p2 Point, y float64) float64 {
	diff := floatDifference(p1.Y, p2.Y)
	if diff == 0 {
		return p2.X
	}
	return p2.X + (y-p2.Y)*(p1.X-p2.X)/diff
}

func samePoint(a, b Point) bool {
	return floatDifference(a.X, b.X) == 0 && floatDifference(a.Y, b.Y) == 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
