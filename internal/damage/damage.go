// Package damage tracks per-output damage history for buffer-age repaint.
//
// A Tracker keeps one region per recent frame. When the presentation
// target reports the age of the back buffer about to be drawn, the tracker
// returns the union of the current damage with every region drawn into
// other buffers since that buffer was last current.
package damage

import "github.com/gogpu/wlrender/region"

// BorderFlags records which output border sides must be redrawn.
type BorderFlags uint8

const (
	BorderTop BorderFlags = 1 << iota
	BorderLeft
	BorderRight
	BorderBottom

	// BorderSizeChanged marks a frame in which any border changed size.
	// The content area moves, so every buffer still holding the old
	// layout needs a full repaint.
	BorderSizeChanged BorderFlags = 0x10

	BorderAll = BorderTop | BorderLeft | BorderRight | BorderBottom
)

// DefaultDepth is the default number of tracked frames.
const DefaultDepth = 2

// Tracker is the damage ring of a single output.
type Tracker struct {
	regions []region.Region
	borders []BorderFlags
}

// NewTracker returns a tracker remembering depth frames. Depths below
// DefaultDepth are raised to it.
func NewTracker(depth int) *Tracker {
	if depth < DefaultDepth {
		depth = DefaultDepth
	}
	return &Tracker{
		regions: make([]region.Region, depth),
		borders: make([]BorderFlags, depth),
	}
}

// Depth returns the number of frames the ring remembers.
func (t *Tracker) Depth() int {
	return len(t.regions)
}

// Redraw returns the region that must be drawn into the back buffer and
// the border sides to redraw with it.
//
// ageKnown is false when the target cannot report buffer age; the whole
// output is then redrawn. An age of 0 (undefined contents) or an age
// beyond the ring depth also forces a full redraw. Otherwise the a-1 most
// recent ring entries are unioned with damage. A BorderSizeChanged flag in
// pending or in any of those entries forces a full redraw.
func (t *Tracker) Redraw(age int, ageKnown bool, damage, full region.Region, pending BorderFlags) (region.Region, BorderFlags) {
	if !ageKnown || age <= 0 || age > len(t.regions) {
		return full, pending | BorderAll
	}

	flags := pending
	for i := 0; i < age-1; i++ {
		flags |= t.borders[i]
	}
	if flags&BorderSizeChanged != 0 {
		return full, flags | BorderAll
	}

	out := damage
	for i := 0; i < age-1; i++ {
		out = out.Union(t.regions[i])
	}
	return out, flags
}

// Rotate records the damage applied in the frame just drawn. The oldest
// entry is dropped and the new one becomes entry 0.
func (t *Tracker) Rotate(damage region.Region, flags BorderFlags) {
	copy(t.regions[1:], t.regions[:len(t.regions)-1])
	copy(t.borders[1:], t.borders[:len(t.borders)-1])
	t.regions[0] = damage
	t.borders[0] = flags
}

// Reset forgets all history.
func (t *Tracker) Reset() {
	for i := range t.regions {
		t.regions[i] = region.Region{}
		t.borders[i] = 0
	}
}
