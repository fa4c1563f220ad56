package gpu

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture-related errors.
var (
	// ErrTextureReleased is returned when operating on a released texture.
	ErrTextureReleased = errors.New("gpu: texture has been released")

	// ErrInvalidDimensions is returned for non-positive texture sizes.
	ErrInvalidDimensions = errors.New("gpu: invalid texture dimensions")

	// ErrUploadBounds is returned when an upload rectangle leaves the texture
	// or the source data is too short for it.
	ErrUploadBounds = errors.New("gpu: upload out of bounds")
)

// TextureFormat represents the pixel format of a GPU texture.
type TextureFormat uint8

const (
	// TextureFormatBGRA8 matches little-endian XRGB8888/ARGB8888 memory.
	TextureFormatBGRA8 TextureFormat = iota

	// TextureFormatRGBA8 is the standard RGBA format with 8 bits per channel.
	TextureFormatRGBA8

	// TextureFormatBGRA8SRGB samples BGRA8 data with hardware sRGB decode.
	TextureFormatBGRA8SRGB

	// TextureFormatRGBA8SRGB samples RGBA8 data with hardware sRGB decode.
	TextureFormatRGBA8SRGB

	// TextureFormatR8 is a single 8-bit channel, used for luma planes.
	TextureFormatR8

	// TextureFormatRG8 holds interleaved chroma.
	TextureFormatRG8

	// TextureFormatRGBA16F is the linear offscreen format.
	TextureFormatRGBA16F

	// TextureFormatR32F backs the color lookup tables.
	TextureFormatR32F
)

// String returns a human-readable name for the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatBGRA8:
		return "BGRA8"
	case TextureFormatRGBA8:
		return "RGBA8"
	case TextureFormatBGRA8SRGB:
		return "BGRA8-sRGB"
	case TextureFormatRGBA8SRGB:
		return "RGBA8-sRGB"
	case TextureFormatR8:
		return "R8"
	case TextureFormatRG8:
		return "RG8"
	case TextureFormatRGBA16F:
		return "RGBA16F"
	case TextureFormatR32F:
		return "R32F"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerPixel returns the number of bytes per pixel for the format.
func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatR8:
		return 1
	case TextureFormatRG8:
		return 2
	case TextureFormatRGBA16F:
		return 8
	default:
		return 4
	}
}

// ToWGPUFormat converts to gputypes.TextureFormat.
func (f TextureFormat) ToWGPUFormat() gputypes.TextureFormat {
	switch f {
	case TextureFormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case TextureFormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case TextureFormatBGRA8SRGB:
		return gputypes.TextureFormatBGRA8UnormSrgb
	case TextureFormatRGBA8SRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case TextureFormatR8:
		return gputypes.TextureFormatR8Unorm
	case TextureFormatRG8:
		return gputypes.TextureFormatRG8Unorm
	case TextureFormatRGBA16F:
		return gputypes.TextureFormatRGBA16Float
	case TextureFormatR32F:
		return gputypes.TextureFormatR32Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// TextureConfig holds configuration for creating a new texture.
type TextureConfig struct {
	// Width is the texture width in pixels.
	Width int

	// Height is the texture height in pixels.
	Height int

	// Format is the pixel format.
	Format TextureFormat

	// Label is an optional debug label.
	Label string

	// Usage flags (default: CopySrc | CopyDst | TextureBinding)
	Usage gputypes.TextureUsage
}

// DefaultTextureUsage is the default usage for textures created without specific flags.
const DefaultTextureUsage = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding

// RenderTextureUsage is the usage of offscreen targets.
const RenderTextureUsage = DefaultTextureUsage | gputypes.TextureUsageRenderAttachment

// Texture is a sampled or rendered GPU image owned by the renderer.
//
// Close is idempotent; every other method on a closed texture fails with
// ErrTextureReleased or returns zero values.
type Texture struct {
	dev  *Device
	tex  hal.Texture
	view hal.TextureView

	width  int
	height int
	format TextureFormat

	sizeBytes uint64
	tracked   bool
	released  atomic.Bool
	label     string
}

// CreateTexture allocates a texture with its default view. The contents
// are undefined until uploaded or rendered.
func (d *Device) CreateTexture(config TextureConfig) (*Texture, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, config.Width, config.Height)
	}
	usage := config.Usage
	if usage == 0 {
		usage = DefaultTextureUsage
	}

	//nolint:gosec // G115: dimensions are validated positive
	sizeBytes := uint64(config.Width) * uint64(config.Height) * uint64(config.Format.BytesPerPixel())
	if err := d.memory.reserve(sizeBytes); err != nil {
		return nil, err
	}

	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label: config.Label,
		Size: hal.Extent3D{
			Width:              uint32(config.Width),  //nolint:gosec // validated positive
			Height:             uint32(config.Height), //nolint:gosec // validated positive
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        config.Format.ToWGPUFormat(),
		Usage:         usage,
	})
	if err != nil {
		d.memory.release(sizeBytes)
		return nil, fmt.Errorf("gpu: create texture %q: %w", config.Label, err)
	}
	t, err := d.wrap(tex, config.Width, config.Height, config.Format, config.Label)
	if err != nil {
		d.dev.DestroyTexture(tex)
		d.memory.release(sizeBytes)
		return nil, err
	}
	t.sizeBytes = sizeBytes
	t.tracked = true
	return t, nil
}

// WrapTexture takes ownership of an externally created texture, such as
// an imported client image plane. It is destroyed by Close.
func (d *Device) WrapTexture(tex hal.Texture, width, height int, format TextureFormat, label string) (*Texture, error) {
	if tex == nil {
		return nil, fmt.Errorf("gpu: wrap %q: nil texture", label)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return d.wrap(tex, width, height, format, label)
}

func (d *Device) wrap(tex hal.Texture, width, height int, format TextureFormat, label string) (*Texture, error) {
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format.ToWGPUFormat(),
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create view %q: %w", label, err)
	}
	return &Texture{
		dev:    d,
		tex:    tex,
		view:   view,
		width:  width,
		height: height,
		format: format,
		label:  label,
	}, nil
}

// Upload copies the pixels of r from data, laid out with the given row
// stride and origin at data[0], into the same rectangle of the texture.
func (t *Texture) Upload(data []byte, stride int, r image.Rectangle) error {
	if t.released.Load() {
		return ErrTextureReleased
	}
	if r.Empty() {
		return nil
	}
	if !r.In(image.Rect(0, 0, t.width, t.height)) {
		return fmt.Errorf("%w: %v outside %dx%d", ErrUploadBounds, r, t.width, t.height)
	}
	bpp := t.format.BytesPerPixel()
	off := r.Min.Y*stride + r.Min.X*bpp
	end := (r.Max.Y-1)*stride + r.Max.X*bpp
	if stride < r.Max.X*bpp || end > len(data) {
		return fmt.Errorf("%w: %d bytes, stride %d, rect %v", ErrUploadBounds, len(data), stride, r)
	}

	//nolint:gosec // G115: rectangle validated inside texture bounds
	return t.dev.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture: t.tex,
			Origin:  hal.Origin3D{X: uint32(r.Min.X), Y: uint32(r.Min.Y)},
			Aspect:  gputypes.TextureAspectAll,
		},
		data[off:end],
		&hal.ImageDataLayout{
			BytesPerRow:  uint32(stride),
			RowsPerImage: uint32(r.Dy()),
		},
		&hal.Extent3D{Width: uint32(r.Dx()), Height: uint32(r.Dy()), DepthOrArrayLayers: 1},
	)
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// Format returns the texture format.
func (t *Texture) Format() TextureFormat { return t.format }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Raw returns the HAL texture.
func (t *Texture) Raw() hal.Texture { return t.tex }

// View returns the default view.
func (t *Texture) View() hal.TextureView { return t.view }

// IsReleased reports whether Close has been called.
func (t *Texture) IsReleased() bool { return t.released.Load() }

// Close destroys the view and texture. Safe to call multiple times.
func (t *Texture) Close() {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	if t.view != nil {
		t.dev.dev.DestroyTextureView(t.view)
	}
	if t.tex != nil {
		t.dev.dev.DestroyTexture(t.tex)
	}
	if t.tracked {
		t.dev.memory.release(t.sizeBytes)
	}
	t.view = nil
	t.tex = nil
}

func (t *Texture) String() string {
	return fmt.Sprintf("Texture(%s %dx%d %s)", t.label, t.width, t.height, t.format)
}

// FormatFromWGPU maps a HAL format onto the formats the renderer samples.
func FormatFromWGPU(f gputypes.TextureFormat) (TextureFormat, bool) {
	switch f {
	case gputypes.TextureFormatBGRA8Unorm:
		return TextureFormatBGRA8, true
	case gputypes.TextureFormatRGBA8Unorm:
		return TextureFormatRGBA8, true
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return TextureFormatBGRA8SRGB, true
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return TextureFormatRGBA8SRGB, true
	case gputypes.TextureFormatR8Unorm:
		return TextureFormatR8, true
	case gputypes.TextureFormatRG8Unorm:
		return TextureFormatRG8, true
	case gputypes.TextureFormatRGBA16Float:
		return TextureFormatRGBA16F, true
	case gputypes.TextureFormatR32Float:
		return TextureFormatR32F, true
	}
	return 0, false
}
