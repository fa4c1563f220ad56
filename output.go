package wlrender

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wlrender/internal/damage"
	"github.com/gogpu/wlrender/internal/gpu"
)

type latch uint8

const (
	latchAcquire latch = iota
	latchRender
	latchPresent
	latchOffscreen
	latchBorder
)

type border struct {
	tex     *gpu.Texture
	width   int
	height  int
	stride  int
	data    []byte
	dirty   bool
	uploads int
}

func (b *border) release() {
	b.tex.Close()
	b.tex = nil
}

type output struct {
	id     OutputID
	rect   image.Rectangle
	target Target

	// owned targets are resized to fit the borders and destroyed with
	// the output.
	owned     bool
	ownedCfg  OutputConfig
	ownFormat gpu.TextureFormat

	tracker *damage.Tracker
	pending damage.BorderFlags
	borders [borderCount]border

	offscreen   *gpu.Texture
	indirectOff bool
	forceFull   bool

	latched map[latch]bool
	stats   FrameStats

	// draws holds the draw list of the last frame.
	draws []gpu.Draw
}

// logOnce logs err at most once per output and kind.
func (o *output) logOnce(l latch, msg string, err error) {
	if o.latched[l] {
		return
	}
	o.latched[l] = true
	slogger().Warn(msg, slog.Uint64("output", uint64(o.id)), slog.String("error", err.Error()))
}

// insets returns the border sizes around the content area.
func (o *output) insets() (left, top, right, bottom int) {
	return o.borders[BorderLeft].width, o.borders[BorderTop].height,
		o.borders[BorderRight].width, o.borders[BorderBottom].height
}

// framebuffer returns the global rectangle covered by the back buffer.
func (o *output) framebuffer() image.Rectangle {
	left, top, right, bottom := o.insets()
	return image.Rect(o.rect.Min.X-left, o.rect.Min.Y-top, o.rect.Max.X+right, o.rect.Max.Y+bottom)
}

// borderRect returns the global rectangle of side. Top and bottom span
// the framebuffer width, left and right the content height.
func (o *output) borderRect(side BorderSide) image.Rectangle {
	fb := o.framebuffer()
	r := o.rect
	switch side {
	case BorderTop:
		return image.Rect(fb.Min.X, fb.Min.Y, fb.Max.X, r.Min.Y)
	case BorderBottom:
		return image.Rect(fb.Min.X, r.Max.Y, fb.Max.X, fb.Max.Y)
	case BorderLeft:
		return image.Rect(fb.Min.X, r.Min.Y, r.Min.X, r.Max.Y)
	case BorderRight:
		return image.Rect(r.Max.X, r.Min.Y, fb.Max.X, r.Max.Y)
	}
	return image.Rectangle{}
}

func (o *output) destroy() {
	for i := range o.borders {
		o.borders[i].release()
	}
	o.offscreen.Close()
	o.offscreen = nil
	if o.owned && o.target != nil {
		o.target.Destroy()
	}
	o.target = nil
}

// OutputCreate adds an output. With a nil target the renderer allocates
// an offscreen swapchain sized to cfg.Rect and owns it.
func (r *Renderer) OutputCreate(id OutputID, target Target, cfg OutputConfig) error {
	if r.destroyed {
		return ErrDestroyed
	}
	if _, ok := r.outputs[id]; ok {
		return fmt.Errorf("%w: %d", ErrOutputExists, id)
	}
	if cfg.Rect.Empty() {
		return fmt.Errorf("wlrender: output %d has an empty rectangle", id)
	}
	o := &output{
		id:      id,
		rect:    cfg.Rect,
		target:  target,
		tracker: damage.NewTracker(r.opts.damageDepth),
		latched: make(map[latch]bool),
	}
	if target == nil {
		format := cfg.Format
		if format == gputypes.TextureFormatUndefined {
			format = r.opts.outputFormat
		}
		tf, ok := gpu.FormatFromWGPU(format)
		if !ok {
			return fmt.Errorf("%w: output format %s", ErrUnsupportedFormat, format)
		}
		o.owned = true
		o.ownedCfg = cfg
		o.ownFormat = tf
		sc, err := r.newSwapchain(o, cfg.Rect.Dx(), cfg.Rect.Dy())
		if err != nil {
			return err
		}
		o.target = sc
	}
	r.device.AddTargetFormat(o.target.Format())
	r.outputs[id] = o

	w, h := o.target.Size()
	slogger().Info("wlrender: output created",
		slog.Uint64("output", uint64(id)),
		slog.String("rect", cfg.Rect.String()),
		slog.Int("width", w),
		slog.Int("height", h),
		slog.Bool("buffer_age", o.target.HasBufferAge()))
	return nil
}

func (r *Renderer) newSwapchain(o *output, w, h int) (*gpu.Swapchain, error) {
	sc, err := gpu.NewSwapchain(r.device, gpu.SwapchainConfig{
		Width:            w,
		Height:           h,
		Format:           o.ownFormat,
		Buffers:          o.ownedCfg.Buffers,
		NoPartialPresent: o.ownedCfg.NoPartialPresent,
	})
	if err != nil {
		return nil, fmt.Errorf("wlrender: output %d swapchain: %w", o.id, err)
	}
	return sc, nil
}

// NewSurfaceTarget wraps a window-system surface as an output target in
// the renderer's output format.
func (r *Renderer) NewSurfaceTarget(surface hal.Surface, width, height int) (Target, error) {
	return gpu.NewSurfaceTarget(r.device, surface, width, height, r.opts.outputFormat)
}

// OutputDestroy removes an output and releases its resources.
func (r *Renderer) OutputDestroy(id OutputID) {
	o, ok := r.outputs[id]
	if !ok {
		return
	}
	delete(r.outputs, id)
	o.destroy()
}

// OutputSurface returns the target of an output, or nil.
func (r *Renderer) OutputSurface(id OutputID) Target {
	if o, ok := r.outputs[id]; ok {
		return o.target
	}
	return nil
}

// Stats returns the statistics of the last repaint of an output.
func (r *Renderer) Stats(id OutputID) FrameStats {
	if o, ok := r.outputs[id]; ok {
		return o.stats
	}
	return FrameStats{}
}

// OutputSetBorder sets the decoration drawn on one side of an output.
// pixels holds height rows of stride bytes in BGRA order; nil removes the
// border. A size change forces a full repaint of every buffer.
func (r *Renderer) OutputSetBorder(id OutputID, side BorderSide, width, height, stride int, pixels []byte) error {
	o, ok := r.outputs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOutput, id)
	}
	if side < 0 || side >= borderCount {
		return fmt.Errorf("wlrender: invalid border side %d", int(side))
	}
	if pixels != nil {
		if width <= 0 || height <= 0 || stride < width*4 || len(pixels) < stride*height {
			return fmt.Errorf("wlrender: %s border %dx%d stride %d does not fit %d bytes",
				side, width, height, stride, len(pixels))
		}
	}

	b := &o.borders[side]
	if b.width != width || b.height != height {
		o.pending |= damage.BorderSizeChanged
	}
	if pixels == nil {
		width, height, stride = 0, 0, 0
		b.release()
		b.data = nil
	} else {
		b.data = append(b.data[:0], pixels[:stride*height]...)
	}
	b.width = width
	b.height = height
	b.stride = stride
	b.dirty = true
	o.pending |= damage.BorderFlags(1) << side
	return nil
}

// fitTarget resizes an owned swapchain to the content area plus borders.
func (r *Renderer) fitTarget(o *output) error {
	if !o.owned {
		return nil
	}
	fb := o.framebuffer()
	if w, h := o.target.Size(); w == fb.Dx() && h == fb.Dy() {
		return nil
	}
	sc, err := r.newSwapchain(o, fb.Dx(), fb.Dy())
	if err != nil {
		return err
	}
	o.target.Destroy()
	o.target = sc
	o.tracker.Reset()
	return nil
}

// uploadBorder brings the texture of side up to date with its pixels.
func (r *Renderer) uploadBorder(o *output, side BorderSide) (*gpu.Texture, error) {
	b := &o.borders[side]
	if !b.dirty && b.tex != nil {
		return b.tex, nil
	}
	pitch := b.stride / 4
	if b.tex == nil || b.tex.Width() != pitch || b.tex.Height() != b.height {
		b.release()
		tex, err := r.device.CreateTexture(gpu.TextureConfig{
			Width:  pitch,
			Height: b.height,
			Format: gpu.TextureFormatBGRA8,
			Label:  fmt.Sprintf("wlr_output_%d_border_%s", o.id, side),
		})
		if err != nil {
			return nil, err
		}
		b.tex = tex
	}
	if err := b.tex.Upload(b.data, b.stride, image.Rect(0, 0, pitch, b.height)); err != nil {
		return nil, err
	}
	b.dirty = false
	b.uploads++
	return b.tex, nil
}
