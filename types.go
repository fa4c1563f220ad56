package wlrender

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/math/f64"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wlrender/internal/gpu"
	"github.com/gogpu/wlrender/internal/resource"
	"github.com/gogpu/wlrender/region"
)

// Buffer collaborator types. A client buffer is either a shared-memory
// buffer (SHMBuffer) or a GPU-backed image imported plane by plane
// (ImageBuffer). Buffers that also implement Releaser are released as
// soon as their contents are on the GPU.
type (
	SurfaceID   = resource.SurfaceID
	Buffer      = resource.Buffer
	SHMBuffer   = resource.SHMBuffer
	ImageBuffer = resource.ImageBuffer
	Plane       = resource.Plane
	Releaser    = resource.Releaser
	SHMFormat   = resource.SHMFormat
	ImageLayout = resource.ImageLayout
)

// Shared-memory formats.
const (
	SHMFormatARGB8888 = resource.SHMFormatARGB8888
	SHMFormatXRGB8888 = resource.SHMFormatXRGB8888
	SHMFormatRGB565   = resource.SHMFormatRGB565
)

// Image plane layouts.
const (
	ImageRGB       = resource.ImageRGB
	ImageRGBA      = resource.ImageRGBA
	ImageExternal  = resource.ImageExternal
	ImageYUV       = resource.ImageYUV
	ImageYUVPlanar = resource.ImageYUVPlanar
	ImageYXUXV     = resource.ImageYXUXV
)

// MaxPlanes is the largest number of planes a buffer can have.
const MaxPlanes = resource.MaxPlanes

// Target is the presentable surface of an output.
type Target = gpu.Target

// OutputID identifies an output.
type OutputID uint32

// OutputConfig describes an output.
type OutputConfig struct {
	// Rect is the output's area in the global compositor space.
	Rect image.Rectangle

	// Format is the pixel format of a renderer-created target. It is
	// ignored when a target is supplied.
	Format gputypes.TextureFormat

	// Buffers is the length of a renderer-created swapchain.
	Buffers int

	// NoPartialPresent makes a renderer-created swapchain present
	// whole buffers.
	NoPartialPresent bool
}

// BorderSide names one of the four output decorations.
type BorderSide int

const (
	BorderTop BorderSide = iota
	BorderLeft
	BorderRight
	BorderBottom

	borderCount = 4
)

func (s BorderSide) String() string {
	switch s {
	case BorderTop:
		return "top"
	case BorderLeft:
		return "left"
	case BorderRight:
		return "right"
	case BorderBottom:
		return "bottom"
	}
	return fmt.Sprintf("BorderSide(%d)", int(s))
}

// PixelFormat is a ReadPixels destination format.
type PixelFormat int

const (
	// PixelFormatBGRA8888 stores bytes B, G, R, A (a8r8g8b8 in memory
	// order of a little-endian word).
	PixelFormatBGRA8888 PixelFormat = iota
	// PixelFormatRGBA8888 stores bytes R, G, B, A (a8b8g8r8).
	PixelFormatRGBA8888
	// PixelFormatRGB565 is listed for completeness; ReadPixels rejects it.
	PixelFormatRGB565
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatBGRA8888:
		return "bgra8888"
	case PixelFormatRGBA8888:
		return "rgba8888"
	case PixelFormatRGB565:
		return "rgb565"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// View is one placement of a surface on the screen.
type View struct {
	Surface SurfaceID

	// Width and Height are the surface size.
	Width, Height int

	// X and Y place the surface in global space when Transformed is
	// false.
	X, Y float64

	// Transform maps surface coordinates to global coordinates when
	// Transformed is set. The inverse is computed by the renderer.
	Transform   f64.Aff3
	Transformed bool

	// Alpha is the view opacity in [0, 1].
	Alpha float32

	// Opaque is the surface-local region the client declared opaque.
	Opaque region.Region
}

// Translate returns an untransformed view of surface at (x, y).
func Translate(surface SurfaceID, x, y float64, width, height int) View {
	return View{Surface: surface, X: x, Y: y, Width: width, Height: height, Alpha: 1}
}

// Rotate returns a view of surface rotated by deg degrees clockwise about
// its center, with the center placed at (cx, cy).
func Rotate(surface SurfaceID, cx, cy, deg float64, width, height int) View {
	rad := deg * math.Pi / 180
	sin, cos := math.Sincos(rad)
	hw, hh := float64(width)/2, float64(height)/2
	return View{
		Surface: surface,
		Width:   width,
		Height:  height,
		Transform: f64.Aff3{
			cos, -sin, cx - cos*hw + sin*hh,
			sin, cos, cy - sin*hw - cos*hh,
		},
		Transformed: true,
		Alpha:       1,
	}
}

// Caps lists the optional device features the renderer relies on.
type Caps struct {
	// SubImageUpload allows per-rectangle texture uploads.
	SubImageUpload bool

	// ExternalImage allows platform-opaque image buffers.
	ExternalImage bool

	// ImageSRGB allows importing opaque images through an sRGB view.
	ImageSRGB bool
}

// DefaultCaps are the capabilities of a WebGPU device.
func DefaultCaps() Caps {
	return Caps{SubImageUpload: true, ImageSRGB: true}
}

// FrameStats describes the last repaint of an output.
type FrameStats struct {
	// Age is the buffer age reported by the target.
	Age int

	// Full is set when the whole output was redrawn.
	Full bool

	// Redrawn is the region drawn into the back buffer.
	Redrawn region.Region

	Views       int
	OpaqueDraws int
	BlendDraws  int
	Draws       int
	Vertices    int

	ProgramBinds  int
	PipelineBinds int

	// Indirect is set when surfaces were blended in linear light and
	// encoded to sRGB in a final pass.
	Indirect bool

	Borders   int
	Uploads   int
	Presented bool
}

func (s FrameStats) String() string {
	return fmt.Sprintf("age=%d full=%v views=%d draws=%d (opaque %d, blend %d) vertices=%d borders=%d indirect=%v",
		s.Age, s.Full, s.Views, s.Draws, s.OpaqueDraws, s.BlendDraws, s.Vertices, s.Borders, s.Indirect)
}
