package wlrender

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
)

// ReadPixels copies rect, given in back-buffer coordinates, of the most
// recently presented frame of an output into dst as tightly packed rows.
// Only the 32-bit formats are supported.
func (r *Renderer) ReadPixels(id OutputID, format PixelFormat, dst []byte, rect image.Rectangle) error {
	if r.destroyed {
		return ErrDestroyed
	}
	o, ok := r.outputs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOutput, id)
	}
	if format != PixelFormatBGRA8888 && format != PixelFormatRGBA8888 {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	w, h := o.target.Size()
	if rect.Empty() || !rect.In(image.Rect(0, 0, w, h)) {
		return fmt.Errorf("%w: %v not in %dx%d", ErrOutOfBounds, rect, w, h)
	}
	if n := rect.Dx() * rect.Dy() * 4; len(dst) < n {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, n, len(dst))
	}

	bgra, ok := targetOrder(o.target.Format())
	if !ok {
		return fmt.Errorf("%w: target format %s", ErrUnsupportedFormat, o.target.Format())
	}
	front, err := o.target.Front()
	if err != nil {
		return fmt.Errorf("wlrender: read output %d: %w", id, err)
	}
	data, err := r.device.ReadTexture(front, rect, 4)
	if err != nil {
		return fmt.Errorf("wlrender: read output %d: %w", id, err)
	}
	n := copy(dst, data)
	if bgra != (format == PixelFormatBGRA8888) {
		swapRB(dst[:n])
	}
	return nil
}

// targetOrder reports whether f stores blue first. ok is false for
// formats ReadPixels cannot convert.
func targetOrder(f gputypes.TextureFormat) (bgra, ok bool) {
	switch f {
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return true, true
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return false, true
	}
	return false, false
}

// swapRB exchanges the first and third byte of every 4-byte pixel.
func swapRB(p []byte) {
	for i := 0; i+3 < len(p); i += 4 {
		p[i], p[i+2] = p[i+2], p[i]
	}
}
