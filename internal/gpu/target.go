package gpu

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrNotReadable is returned by targets that cannot be read back.
var ErrNotReadable = errors.New("gpu: target is not readable")

// Frame is an acquired back buffer.
type Frame struct {
	Texture hal.Texture
	View    hal.TextureView

	// Age is the number of presents since this buffer was last shown,
	// or 0 when its contents are undefined.
	Age int

	slot    int
	surface hal.SurfaceTexture
}

// Target is a presentable set of back buffers bound to one output.
type Target interface {
	Size() (width, height int)
	Format() gputypes.TextureFormat

	// HasBufferAge reports whether Frame.Age is meaningful.
	HasBufferAge() bool

	// PartialPresent reports whether Present honours damage rectangles.
	PartialPresent() bool

	Acquire() (*Frame, error)

	// Present shows f. Damage is in buffer coordinates; nil means the
	// whole buffer.
	Present(f *Frame, damage []image.Rectangle) error

	// Discard releases f without presenting it.
	Discard(f *Frame)

	// Front returns the most recently presented buffer for readback.
	Front() (hal.Texture, error)

	Destroy()
}

// Swapchain is an offscreen ring of render textures with exact buffer
// ages. It backs headless outputs and tests.
type Swapchain struct {
	dev    *Device
	slots  []*Texture
	shown  []uint64
	serial uint64
	next   int
	front  int

	width   int
	height  int
	format  TextureFormat
	partial bool

	lastDamage []image.Rectangle
	presents   int
}

// SwapchainConfig configures a Swapchain.
type SwapchainConfig struct {
	Width  int
	Height int
	Format TextureFormat

	// Buffers is the ring length, at least 2.
	Buffers int

	// NoPartialPresent makes Present ignore damage.
	NoPartialPresent bool
}

// NewSwapchain allocates the ring.
func NewSwapchain(d *Device, cfg SwapchainConfig) (*Swapchain, error) {
	n := cfg.Buffers
	if n < 2 {
		n = 2
	}
	s := &Swapchain{
		dev:     d,
		shown:   make([]uint64, n),
		front:   -1,
		width:   cfg.Width,
		height:  cfg.Height,
		format:  cfg.Format,
		partial: !cfg.NoPartialPresent,
	}
	for i := 0; i < n; i++ {
		t, err := d.CreateTexture(TextureConfig{
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: cfg.Format,
			Label:  fmt.Sprintf("wlr_swapchain_%d", i),
			Usage:  RenderTextureUsage,
		})
		if err != nil {
			s.Destroy()
			return nil, err
		}
		s.slots = append(s.slots, t)
	}
	return s, nil
}

func (s *Swapchain) Size() (int, int)               { return s.width, s.height }
func (s *Swapchain) Format() gputypes.TextureFormat { return s.format.ToWGPUFormat() }
func (s *Swapchain) HasBufferAge() bool             { return true }
func (s *Swapchain) PartialPresent() bool           { return s.partial }

// Acquire returns the next buffer of the ring.
func (s *Swapchain) Acquire() (*Frame, error) {
	t := s.slots[s.next]
	if t.IsReleased() {
		return nil, ErrTextureReleased
	}
	f := &Frame{Texture: t.Raw(), View: t.View(), slot: s.next}
	if s.shown[s.next] > 0 {
		f.Age = int(s.serial + 1 - s.shown[s.next]) //nolint:gosec // G115: bounded by ring length
	}
	return f, nil
}

// Present records f as shown and advances the ring.
func (s *Swapchain) Present(f *Frame, damage []image.Rectangle) error {
	s.serial++
	s.shown[f.slot] = s.serial
	s.front = f.slot
	s.next = (f.slot + 1) % len(s.slots)
	s.presents++
	if s.partial && damage != nil {
		s.lastDamage = append(s.lastDamage[:0], damage...)
	} else {
		s.lastDamage = nil
	}
	return nil
}

// Discard leaves the ring untouched.
func (s *Swapchain) Discard(*Frame) {}

// Front returns the last presented texture.
func (s *Swapchain) Front() (hal.Texture, error) {
	if s.front < 0 {
		return nil, fmt.Errorf("%w: nothing presented", ErrNotReadable)
	}
	return s.slots[s.front].Raw(), nil
}

// Presents returns the number of presented frames.
func (s *Swapchain) Presents() int { return s.presents }

// LastDamage returns the damage of the last present, nil for a full
// present.
func (s *Swapchain) LastDamage() []image.Rectangle {
	return append([]image.Rectangle(nil), s.lastDamage...)
}

// Destroy releases the ring.
func (s *Swapchain) Destroy() {
	for _, t := range s.slots {
		t.Close()
	}
	s.slots = nil
}

// SurfaceTarget presents to a window-system surface. Buffer age is not
// exposed by the HAL, so every frame starts from undefined contents.
type SurfaceTarget struct {
	dev     *Device
	surface hal.Surface
	config  hal.SurfaceConfiguration
}

// NewSurfaceTarget configures surface for rendering.
func NewSurfaceTarget(d *Device, surface hal.Surface, width, height int, format gputypes.TextureFormat) (*SurfaceTarget, error) {
	if surface == nil {
		return nil, errors.New("gpu: nil surface")
	}
	s := &SurfaceTarget{
		dev:     d,
		surface: surface,
		config: hal.SurfaceConfiguration{
			Width:               uint32(width),  //nolint:gosec // G115: output sizes are positive
			Height:              uint32(height), //nolint:gosec // G115: output sizes are positive
			Format:              format,
			Usage:               gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
			PresentMode:         gputypes.PresentModeFifo,
			AlphaMode:           gputypes.CompositeAlphaModeOpaque,
			EnableDamagePresent: true,
		},
	}
	if err := surface.Configure(d.dev, &s.config); err != nil {
		return nil, fmt.Errorf("gpu: configure surface: %w", err)
	}
	return s, nil
}

func (s *SurfaceTarget) Size() (int, int)               { return int(s.config.Width), int(s.config.Height) }
func (s *SurfaceTarget) Format() gputypes.TextureFormat { return s.config.Format }
func (s *SurfaceTarget) HasBufferAge() bool             { return false }
func (s *SurfaceTarget) PartialPresent() bool           { return true }

// Acquire takes the next surface texture. An outdated or lost surface is
// reconfigured and the error returned so the frame can be skipped.
func (s *SurfaceTarget) Acquire() (*Frame, error) {
	acquired, err := s.surface.AcquireTexture(nil)
	if err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) || errors.Is(err, hal.ErrSurfaceLost) {
			if cerr := s.surface.Configure(s.dev.dev, &s.config); cerr != nil {
				return nil, fmt.Errorf("gpu: reconfigure surface: %w", cerr)
			}
		}
		return nil, fmt.Errorf("gpu: acquire surface texture: %w", err)
	}
	view, err := s.dev.dev.CreateTextureView(acquired.Texture, &hal.TextureViewDescriptor{
		Label:         "wlr_surface_view",
		Format:        s.config.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		s.surface.DiscardTexture(acquired.Texture)
		return nil, fmt.Errorf("gpu: create surface view: %w", err)
	}
	return &Frame{Texture: acquired.Texture, View: view, surface: acquired.Texture}, nil
}

// Present queues f with damage rectangles.
func (s *SurfaceTarget) Present(f *Frame, damage []image.Rectangle) error {
	defer s.dev.dev.DestroyTextureView(f.View)
	if err := s.dev.queue.Present(s.surface, f.surface, damage); err != nil {
		return fmt.Errorf("gpu: present: %w", err)
	}
	return nil
}

// Discard returns f to the surface unpresented.
func (s *SurfaceTarget) Discard(f *Frame) {
	s.dev.dev.DestroyTextureView(f.View)
	s.surface.DiscardTexture(f.surface)
}

// Front always fails: presented surface textures are not readable.
func (s *SurfaceTarget) Front() (hal.Texture, error) {
	return nil, ErrNotReadable
}

// Destroy unconfigures the surface.
func (s *SurfaceTarget) Destroy() {
	s.surface.Unconfigure(s.dev.dev)
}
