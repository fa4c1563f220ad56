package wlrender

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wlrender/internal/clip"
	"github.com/gogpu/wlrender/internal/damage"
	"github.com/gogpu/wlrender/internal/gpu"
	"github.com/gogpu/wlrender/internal/resource"
	"github.com/gogpu/wlrender/internal/shader"
	"github.com/gogpu/wlrender/region"
)

// fanColors cycle through the outlines drawn in fan debug mode.
var fanColors = [...][4]float32{
	{1, 0, 0, 1},
	{0, 1, 0, 1},
	{0, 0, 1, 1},
	{1, 1, 1, 1},
}

// RepaintOutput draws views, listed bottom to top, into the next back
// buffer of an output and presents it.
//
// damage is the global area that changed since the previous frame. On
// return it holds the area that was actually redrawn, which grows beyond
// the input when the back buffer is older than one frame. A nil damage
// is treated as empty.
//
// Errors wrapping ErrFrameSkipped are per-frame: the renderer stays
// usable and the next repaint draws again.
func (r *Renderer) RepaintOutput(id OutputID, views []View, dmg *region.Region) error {
	if r.destroyed {
		return ErrDestroyed
	}
	o, ok := r.outputs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOutput, id)
	}
	if err := r.fitTarget(o); err != nil {
		o.logOnce(latchAcquire, "wlrender: cannot resize output target", err)
		return fmt.Errorf("%w: %w", ErrFrameSkipped, err)
	}

	frame, err := o.target.Acquire()
	if err != nil {
		o.logOnce(latchAcquire, "wlrender: cannot acquire back buffer", err)
		return fmt.Errorf("%w: acquire: %w", ErrFrameSkipped, err)
	}

	full := region.New(o.rect)
	var frameDamage region.Region
	if dmg != nil {
		frameDamage = dmg.IntersectRect(o.rect)
	}

	indirect, fresh := r.prepareIndirect(o)
	pending := o.pending
	redraw, flags := o.tracker.Redraw(frame.Age, o.target.HasBufferAge(), frameDamage, full, pending)
	if o.forceFull || fresh {
		redraw = full
		flags |= damage.BorderAll
	}
	isFull := redraw.Equal(full)

	stats := FrameStats{Age: frame.Age, Full: isFull, Redrawn: redraw, Indirect: indirect}
	passes, drawn := r.buildPasses(o, frame, views, redraw, flags, indirect, fresh, &stats)

	var all []gpu.Draw
	for _, p := range passes {
		ps, err := r.device.Render(p)
		if err != nil {
			o.target.Discard(frame)
			o.logOnce(latchRender, "wlrender: rendering failed", err)
			return fmt.Errorf("%w: render %s: %w", ErrFrameSkipped, p.Label, err)
		}
		stats.Draws += ps.Draws
		stats.Vertices += ps.Vertices
		stats.ProgramBinds += ps.ProgramBinds
		stats.PipelineBinds += ps.PipelineBinds
		all = append(all, p.Draws...)
	}

	var presentErr error
	if err := o.target.Present(frame, o.presentDamage(frameDamage, drawn, isFull || o.forceFull)); err != nil {
		o.logOnce(latchPresent, "wlrender: present failed", err)
		presentErr = fmt.Errorf("%w: present: %w", ErrFrameSkipped, err)
	} else {
		stats.Presented = true
	}

	rotated := frameDamage
	if o.forceFull {
		rotated = full
	}
	o.tracker.Rotate(rotated, pending)
	o.pending = 0
	o.forceFull = false
	o.stats = stats
	o.draws = all
	if dmg != nil {
		*dmg = redraw
	}

	slogger().Debug("wlrender: repaint",
		slog.Uint64("output", uint64(id)),
		slog.String("stats", stats.String()),
		slog.Int("rects", redraw.Len()))
	return presentErr
}

// prepareIndirect reports whether the output blends into its linear
// offscreen target, creating it on first use. fresh is set when the
// target was created for this frame. A failed creation disables the
// indirect path for the lifetime of the output.
func (r *Renderer) prepareIndirect(o *output) (active, fresh bool) {
	if !r.opts.colorManaged || o.indirectOff {
		return false, false
	}
	if o.offscreen != nil {
		return true, false
	}
	tex, err := r.device.CreateTexture(gpu.TextureConfig{
		Width:  o.rect.Dx(),
		Height: o.rect.Dy(),
		Format: gpu.TextureFormatRGBA16F,
		Label:  fmt.Sprintf("wlr_output_%d_linear", o.id),
		Usage:  gpu.RenderTextureUsage,
	})
	if err != nil {
		o.indirectOff = true
		o.logOnce(latchOffscreen, "wlrender: no offscreen target, color management disabled for output", err)
		return false, false
	}
	o.offscreen = tex
	return true, true
}

// buildPasses assembles the frame. It returns the border sides drawn.
func (r *Renderer) buildPasses(o *output, frame *gpu.Frame, views []View, redraw region.Region,
	flags damage.BorderFlags, indirect, fresh bool, stats *FrameStats) ([]*gpu.Pass, []BorderSide) {
	fb := o.framebuffer()
	w, h := o.target.Size()

	var clearBack *gputypes.Color
	if stats.Full {
		clearBack = &gputypes.Color{A: 1}
	}
	back := &gpu.Pass{
		Label:      fmt.Sprintf("wlr_output_%d", o.id),
		View:       frame.View,
		Format:     o.target.Format(),
		Width:      w,
		Height:     h,
		Projection: gpu.Ortho(float64(fb.Min.X), float64(fb.Min.Y), float64(w), float64(h)),
		Clear:      clearBack,
	}

	content := r.drawViews(views, redraw, indirect, stats)

	var passes []*gpu.Pass
	if indirect {
		var clearLinear *gputypes.Color
		if fresh || stats.Full {
			clearLinear = &gputypes.Color{A: 1}
		}
		passes = append(passes, &gpu.Pass{
			Label:  fmt.Sprintf("wlr_output_%d_linear", o.id),
			View:   o.offscreen.View(),
			Format: gpu.TextureFormatRGBA16F.ToWGPUFormat(),
			Width:  o.rect.Dx(),
			Height: o.rect.Dy(),
			Projection: gpu.Ortho(float64(o.rect.Min.X), float64(o.rect.Min.Y),
				float64(o.rect.Dx()), float64(o.rect.Dy())),
			Clear: clearLinear,
			Draws: content,
		})
		back.Draws = r.appendEncode(back.Draws, o, redraw)
	} else {
		back.Draws = content
	}

	var drawn []BorderSide
	back.Draws, drawn = r.appendBorders(back.Draws, o, flags)
	stats.Borders = len(drawn)
	return append(passes, back), drawn
}

// drawViews walks views top to bottom to accumulate the opaque area
// hiding each view, then emits draws bottom to top.
func (r *Renderer) drawViews(views []View, redraw region.Region, indirect bool, stats *FrameStats) []gpu.Draw {
	clips := make([]region.Region, len(views))
	var above region.Region
	for i := len(views) - 1; i >= 0; i-- {
		clips[i] = above
		v := &views[i]
		if v.Alpha < 1 {
			continue
		}
		s, ok := r.surfaces.Lookup(v.Surface)
		if !ok || s.Kind == resource.KindNone {
			continue
		}
		xf, ok := newViewTransform(v)
		if !ok {
			continue
		}
		if g, ok := xf.globalRegion(opaqueRegion(v, s)); ok {
			above = above.Union(g)
		}
	}

	var draws []gpu.Draw
	for i := range views {
		draws = r.drawView(draws, &views[i], clips[i], redraw, indirect, stats)
	}
	return draws
}

// opaqueRegion returns the surface-local area of v known to be opaque.
func opaqueRegion(v *View, s *resource.State) region.Region {
	bounds := image.Rect(0, 0, v.Width, v.Height)
	switch {
	case s.Kind == resource.KindSolid:
		if s.Color[3] >= 1 {
			return region.New(bounds)
		}
	case !s.Input.Transparent():
		return region.New(bounds)
	}
	return v.Opaque.IntersectRect(bounds)
}

func (r *Renderer) drawView(draws []gpu.Draw, v *View, hidden, redraw region.Region, indirect bool, stats *FrameStats) []gpu.Draw {
	s, ok := r.surfaces.Lookup(v.Surface)
	if !ok || s.Kind == resource.KindNone || v.Alpha <= 0 || v.Width <= 0 || v.Height <= 0 {
		return draws
	}
	xf, ok := newViewTransform(v)
	if !ok {
		return draws
	}
	repaint := redraw.IntersectRect(xf.bounds(v.Width, v.Height)).Subtract(hidden)
	if repaint.IsEmpty() {
		return draws
	}
	if s.NeedsUpload() {
		if err := r.surfaces.Upload(v.Surface); err != nil {
			slogger().Warn("wlrender: surface upload failed",
				slog.Uint64("surface", uint64(v.Surface)),
				slog.String("error", err.Error()))
			return draws
		}
		stats.Uploads++
	}
	stats.Views++

	conv := s.Conversion
	if !indirect {
		conv = shader.ConversionNone
	}
	out := shader.OutputBlend
	if v.Alpha < 1 {
		out = shader.OutputTransparent
	}

	pitch, height := float64(s.Pitch), float64(s.Height)
	if s.Kind == resource.KindSolid || pitch <= 0 || height <= 0 {
		pitch, height = float64(v.Width), float64(v.Height)
	}
	d := viewDraw{
		view:    v,
		state:   s,
		xf:      &xf,
		ts:      clip.TexSpace{Pitch: pitch, Height: height, YInverted: s.YInverted},
		repaint: repaint,
		planes:  s.Textures[:s.Planes],
	}

	opaque := opaqueRegion(v, s)
	translucent := region.New(image.Rect(0, 0, v.Width, v.Height)).Subtract(opaque)

	if !opaque.IsEmpty() {
		in := s.Input
		if in == shader.InputRGBA {
			// Alpha of an RGBA buffer may hold garbage inside the
			// declared opaque region.
			in = shader.InputRGBX
		}
		od := d
		c := conv
		if indirect && s.SRGB != nil {
			od.planes = []*gpu.Texture{s.SRGB}
			c = shader.ConversionNone
		}
		var added bool
		draws, added = r.appendRegion(draws, shader.Key{Input: in, Output: out, Conversion: c}, v.Alpha < 1, &od, opaque)
		if added {
			stats.OpaqueDraws++
		}
	}
	if !translucent.IsEmpty() {
		var added bool
		draws, added = r.appendRegion(draws, shader.Key{Input: s.Input, Output: out, Conversion: conv}, true, &d, translucent)
		if added {
			stats.BlendDraws++
		}
	}
	return draws
}

type viewDraw struct {
	view    *View
	state   *resource.State
	xf      clip.Transform
	ts      clip.TexSpace
	repaint region.Region
	planes  []*gpu.Texture
}

// appendRegion clips every repaint rectangle against every rectangle of
// the surface-local region surf and appends the fans as one draw.
func (r *Renderer) appendRegion(draws []gpu.Draw, k shader.Key, blend bool, d *viewDraw, surf region.Region) ([]gpu.Draw, bool) {
	prog, ok := r.program(k)
	if !ok {
		return draws, false
	}
	var verts, wire []clip.Vertex
	for _, dr := range d.repaint.Rects() {
		screen := clip.NewRect(float64(dr.Min.X), float64(dr.Min.Y), float64(dr.Dx()), float64(dr.Dy()))
		for _, sr := range surf.Rects() {
			src := clip.NewRect(float64(sr.Min.X), float64(sr.Min.Y), float64(sr.Dx()), float64(sr.Dy()))
			fan := clip.Tessellate(screen, src, d.xf, d.ts)
			if !fan.Drawable() {
				continue
			}
			verts = fan.AppendTriangles(verts)
			if r.opts.fanDebug {
				wire = fan.AppendWireframe(wire)
			}
		}
	}
	if len(verts) == 0 {
		return draws, false
	}
	draws = append(draws, gpu.Draw{
		Program:  prog,
		Blend:    blend,
		Vertices: verts,
		Planes:   d.planes,
		Linear:   d.xf.Enabled(),
		Color:    d.state.Color,
		Alpha:    d.view.Alpha,
	})
	return r.appendFanDebug(draws, wire), true
}

func (r *Renderer) appendFanDebug(draws []gpu.Draw, wire []clip.Vertex) []gpu.Draw {
	if len(wire) == 0 {
		return draws
	}
	prog, ok := r.program(keySolid)
	if !ok {
		return draws
	}
	c := fanColors[r.fanColor]
	r.fanColor = (r.fanColor + 1) % len(fanColors)
	return append(draws, gpu.Draw{
		Program:  prog,
		Blend:    true,
		Lines:    true,
		Vertices: wire,
		Color:    c,
		Alpha:    1,
	})
}

// appendEncode copies the redrawn part of the linear offscreen target into
// the back buffer through the sRGB encoder.
func (r *Renderer) appendEncode(draws []gpu.Draw, o *output, redraw region.Region) []gpu.Draw {
	prog, ok := r.program(keyEncode)
	if !ok {
		return draws
	}
	w, h := o.rect.Dx(), o.rect.Dy()
	xf := translation(float64(o.rect.Min.X), float64(o.rect.Min.Y))
	ts := clip.TexSpace{Pitch: float64(w), Height: float64(h), YInverted: true}
	src := clip.NewRect(0, 0, float64(w), float64(h))

	var verts []clip.Vertex
	for _, dr := range redraw.Rects() {
		screen := clip.NewRect(float64(dr.Min.X), float64(dr.Min.Y), float64(dr.Dx()), float64(dr.Dy()))
		fan := clip.Tessellate(screen, src, &xf, ts)
		if fan.Drawable() {
			verts = fan.AppendTriangles(verts)
		}
	}
	if len(verts) == 0 {
		return draws
	}
	return append(draws, gpu.Draw{
		Program:  prog,
		Vertices: verts,
		Planes:   []*gpu.Texture{o.offscreen},
		Alpha:    1,
	})
}

// appendBorders draws the border sides selected by flags. Textures are
// uploaded only when their side changed.
func (r *Renderer) appendBorders(draws []gpu.Draw, o *output, flags damage.BorderFlags) ([]gpu.Draw, []BorderSide) {
	var drawn []BorderSide
	for side := BorderTop; side < borderCount; side++ {
		b := &o.borders[side]
		if b.data == nil || flags&(damage.BorderFlags(1)<<side) == 0 {
			continue
		}
		prog, ok := r.program(keyBorder)
		if !ok {
			break
		}
		tex, err := r.uploadBorder(o, side)
		if err != nil {
			o.logOnce(latchBorder, "wlrender: border upload failed", err)
			continue
		}
		rect := o.borderRect(side)
		if rect.Empty() {
			continue
		}
		xf := translation(float64(rect.Min.X), float64(rect.Min.Y))
		ts := clip.TexSpace{Pitch: float64(b.stride / 4), Height: float64(b.height), YInverted: true}
		screen := clip.NewRect(float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()))
		src := clip.NewRect(0, 0, float64(rect.Dx()), float64(rect.Dy()))
		fan := clip.Tessellate(screen, src, &xf, ts)
		if !fan.Drawable() {
			continue
		}
		draws = append(draws, gpu.Draw{
			Program:  prog,
			Blend:    true,
			Vertices: fan.AppendTriangles(nil),
			Planes:   []*gpu.Texture{tex},
			Alpha:    1,
		})
		draws = r.appendFanDebug(draws, wireframe(fan, r.opts.fanDebug))
		drawn = append(drawn, side)
	}
	return draws, drawn
}

func wireframe(fan clip.Fan, on bool) []clip.Vertex {
	if !on {
		return nil
	}
	return fan.AppendWireframe(nil)
}

// presentDamage converts the frame damage and the drawn borders to
// back-buffer coordinates. A nil result presents the whole buffer.
func (o *output) presentDamage(frameDamage region.Region, borders []BorderSide, whole bool) []image.Rectangle {
	if whole || !o.target.PartialPresent() {
		return nil
	}
	fb := o.framebuffer()
	off := image.Pt(-fb.Min.X, -fb.Min.Y)
	rects := make([]image.Rectangle, 0, frameDamage.Len()+len(borders))
	for _, rr := range frameDamage.Rects() {
		rects = append(rects, rr.Add(off))
	}
	for _, side := range borders {
		rects = append(rects, o.borderRect(side).Add(off))
	}
	return rects
}
