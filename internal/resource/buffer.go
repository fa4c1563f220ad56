package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wlrender/internal/shader"
)

// MaxPlanes is the largest number of textures one surface samples.
const MaxPlanes = 3

// SHMFormat is a wl_shm pixel format code.
type SHMFormat uint32

// Shared-memory formats. The first two use the wl_shm enum values, the
// rest their DRM fourcc.
const (
	SHMFormatARGB8888 SHMFormat = 0
	SHMFormatXRGB8888 SHMFormat = 1
	SHMFormatRGB565   SHMFormat = 0x36314752
)

func (f SHMFormat) String() string {
	switch f {
	case SHMFormatARGB8888:
		return "argb8888"
	case SHMFormatXRGB8888:
		return "xrgb8888"
	case SHMFormatRGB565:
		return "rgb565"
	}
	return fmt.Sprintf("SHMFormat(%#x)", uint32(f))
}

// ImageLayout is the declared plane layout of a GPU-backed buffer.
type ImageLayout uint8

const (
	ImageRGB ImageLayout = iota
	ImageRGBA
	ImageExternal
	ImageYUV
	ImageYUVPlanar
	ImageYXUXV
)

func (l ImageLayout) String() string {
	switch l {
	case ImageRGB:
		return "rgb"
	case ImageRGBA:
		return "rgba"
	case ImageExternal:
		return "external"
	case ImageYUV:
		return "y_uv"
	case ImageYUVPlanar:
		return "y_u_v"
	case ImageYXUXV:
		return "y_xuxv"
	}
	return fmt.Sprintf("ImageLayout(%d)", uint8(l))
}

// input maps a layout onto its shader input kind.
func (l ImageLayout) input() (shader.Input, bool) {
	switch l {
	case ImageRGB:
		return shader.InputRGBX, true
	case ImageRGBA:
		return shader.InputRGBA, true
	case ImageExternal:
		return shader.InputExternal, true
	case ImageYUV:
		return shader.InputYUV, true
	case ImageYUVPlanar:
		return shader.InputYUVPlanar, true
	case ImageYXUXV:
		return shader.InputYXUXV, true
	}
	return 0, false
}

// Buffer is a client buffer attached to a surface.
type Buffer interface {
	Size() (width, height int)
}

// SHMBuffer is a shared-memory buffer. Data starts at the first pixel of
// the first row.
type SHMBuffer interface {
	Buffer
	Stride() int
	Format() SHMFormat
	Data() []byte
}

// Plane is one imported texture of a GPU-backed buffer.
type Plane struct {
	Texture hal.Texture
	Width   int
	Height  int
	Format  gputypes.TextureFormat
}

// ImageBuffer is a GPU-backed buffer imported one plane at a time.
type ImageBuffer interface {
	Buffer
	Layout() ImageLayout

	// ImportPlane creates a texture for plane. With srgb set the texture
	// samples through hardware sRGB decode.
	ImportPlane(dev hal.Device, plane int, srgb bool) (Plane, error)
}

// Releaser is implemented by buffers that hold a client reference until
// their contents are no longer needed.
type Releaser interface {
	Release()
}

// yInverter lets image buffers report whether their first row is the
// top of the surface. Buffers without it are assumed top-down.
type yInverter interface {
	YInverted() bool
}

func release(b Buffer) {
	if r, ok := b.(Releaser); ok {
		r.Release()
	}
}
