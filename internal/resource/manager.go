// Package resource owns the GPU textures behind client surfaces.
//
// Surface state lives in a single arena keyed by surface ID. Either
// teardown path (surface destroyed, renderer destroyed) removes the entry
// from the arena, so textures are released exactly once.
package resource

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/gogpu/wlrender/internal/gpu"
	"github.com/gogpu/wlrender/internal/shader"
	"github.com/gogpu/wlrender/region"
)

// Errors returned by Attach.
var (
	ErrUnsupportedFormat = errors.New("resource: unsupported shm format")
	ErrUnsupportedLayout = errors.New("resource: unsupported image layout")
	ErrImportFailed      = errors.New("resource: plane import failed")
	ErrUnknownBuffer     = errors.New("resource: unknown buffer type")
)

// SurfaceID identifies a client surface.
type SurfaceID uint64

// Kind classifies the content of a surface.
type Kind uint8

const (
	KindNone Kind = iota
	KindSHM
	KindImage
	KindSolid
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSHM:
		return "shm"
	case KindImage:
		return "gpu-image"
	case KindSolid:
		return "solid"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// State is the GPU side of one surface. The orchestrator borrows its
// textures for the duration of a frame and never retains them.
type State struct {
	Kind     Kind
	Textures [MaxPlanes]*gpu.Texture
	Planes   int

	// SRGB is an sRGB-decoding view of an opaque image, set when color
	// management is on and the import succeeded.
	SRGB *gpu.Texture

	Color      [4]float32
	Input      shader.Input
	Conversion shader.Conversion

	Width     int
	Height    int
	Pitch     int
	YInverted bool

	shmFormat  SHMFormat
	damage     region.Region
	fullUpload bool
	held       Buffer
}

// Damage returns the accumulated texture damage not yet uploaded.
func (s *State) Damage() region.Region { return s.damage }

// NeedsUpload reports whether texture contents lag the client buffer.
func (s *State) NeedsUpload() bool {
	return s.Kind == KindSHM && (s.fullUpload || !s.damage.IsEmpty())
}

// Holding reports whether a client buffer reference is retained.
func (s *State) Holding() bool { return s.held != nil }

func (s *State) releaseTextures() {
	for i := range s.Textures {
		s.Textures[i].Close()
		s.Textures[i] = nil
	}
	s.SRGB.Close()
	s.SRGB = nil
	s.Planes = 0
}

func (s *State) drop() {
	if s.held != nil {
		release(s.held)
		s.held = nil
	}
}

// Config configures a Manager.
type Config struct {
	// ColorManaged makes client content decode from sRGB.
	ColorManaged bool

	// SubImageUpload allows per-rectangle uploads.
	SubImageUpload bool

	// ExternalImage allows platform-opaque image layouts.
	ExternalImage bool

	// SRGBImport allows importing opaque images a second time through
	// an sRGB-decoding view.
	SRGBImport bool
}

// Stats counts texture work since the manager was created.
type Stats struct {
	TexturesCreated int
	PlanesImported  int
	FullUploads     int
	SubUploads      int
}

// Manager is the surface arena.
type Manager struct {
	dev    *gpu.Device
	cfg    Config
	states map[SurfaceID]*State
	stats  Stats

	scratch []byte
}

// NewManager returns an empty arena.
func NewManager(dev *gpu.Device, cfg Config) *Manager {
	return &Manager{
		dev:    dev,
		cfg:    cfg,
		states: make(map[SurfaceID]*State),
	}
}

// SetColorManaged changes the conversion applied to subsequently
// attached buffers.
func (m *Manager) SetColorManaged(on bool) { m.cfg.ColorManaged = on }

// Stats returns the counters.
func (m *Manager) Stats() Stats { return m.stats }

// Lookup returns the state of id.
func (m *Manager) Lookup(id SurfaceID) (*State, bool) {
	s, ok := m.states[id]
	return s, ok
}

// Len returns the number of tracked surfaces.
func (m *Manager) Len() int { return len(m.states) }

func (m *Manager) state(id SurfaceID) *State {
	s, ok := m.states[id]
	if !ok {
		s = &State{}
		m.states[id] = s
	}
	return s
}

func (m *Manager) conversion() shader.Conversion {
	if m.cfg.ColorManaged {
		return shader.ConversionFromSRGB
	}
	return shader.ConversionNone
}

// Attach binds buf to surface id. A nil buf releases everything and
// leaves the surface without content.
func (m *Manager) Attach(id SurfaceID, buf Buffer) error {
	s := m.state(id)
	switch b := buf.(type) {
	case nil:
		s.releaseTextures()
		s.drop()
		s.Kind = KindNone
		s.damage = region.Region{}
		s.fullUpload = false
		return nil
	case SHMBuffer:
		return m.attachSHM(id, s, b)
	case ImageBuffer:
		return m.attachImage(id, s, b)
	}
	return fmt.Errorf("%w: %T", ErrUnknownBuffer, buf)
}

func (m *Manager) attachSHM(id SurfaceID, s *State, b SHMBuffer) error {
	var input shader.Input
	var bpp int
	switch b.Format() {
	case SHMFormatXRGB8888:
		input, bpp = shader.InputRGBX, 4
	case SHMFormatARGB8888:
		input, bpp = shader.InputRGBA, 4
	case SHMFormatRGB565:
		input, bpp = shader.InputRGBX, 2
	default:
		slogger().Warn("resource: unsupported shm format",
			slog.Uint64("surface", uint64(id)),
			slog.String("format", b.Format().String()))
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, b.Format())
	}

	w, h := b.Size()
	pitch := b.Stride() / bpp
	reuse := s.Kind == KindSHM && s.Textures[0] != nil &&
		s.Pitch == pitch && s.Height == h && s.shmFormat == b.Format()
	if !reuse {
		tex, err := m.dev.CreateTexture(gpu.TextureConfig{
			Width:  pitch,
			Height: h,
			Format: gpu.TextureFormatBGRA8,
			Label:  fmt.Sprintf("wlr_surface_%d", id),
		})
		if err != nil {
			slogger().Warn("resource: texture allocation failed",
				slog.Uint64("surface", uint64(id)),
				slog.String("error", err.Error()))
			return err
		}
		s.releaseTextures()
		s.Textures[0] = tex
		s.Planes = 1
		s.fullUpload = true
		m.stats.TexturesCreated++
	}

	s.drop()
	s.Kind = KindSHM
	s.held = b
	s.Input = input
	s.Conversion = m.conversion()
	s.shmFormat = b.Format()
	s.Width = w
	s.Height = h
	s.Pitch = pitch
	s.YInverted = true
	return nil
}

func (m *Manager) attachImage(id SurfaceID, s *State, b ImageBuffer) error {
	layout := b.Layout()
	input, ok := layout.input()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedLayout, layout)
	}
	if input == shader.InputExternal && !m.cfg.ExternalImage {
		return fmt.Errorf("%w: %s needs external image support", ErrUnsupportedLayout, layout)
	}

	n := input.Planes()
	var planes [MaxPlanes]*gpu.Texture
	rollback := func() {
		for i := range planes {
			planes[i].Close()
		}
	}
	for i := 0; i < n; i++ {
		t, err := m.importPlane(id, b, i, false)
		if err != nil {
			rollback()
			s.releaseTextures()
			s.drop()
			s.Kind = KindNone
			slogger().Warn("resource: image import failed",
				slog.Uint64("surface", uint64(id)),
				slog.Int("plane", i),
				slog.String("error", err.Error()))
			return fmt.Errorf("%w: plane %d: %w", ErrImportFailed, i, err)
		}
		planes[i] = t
	}

	s.releaseTextures()
	s.drop()
	s.Textures = planes
	s.Planes = n
	m.stats.TexturesCreated += n

	if m.cfg.ColorManaged && m.cfg.SRGBImport && layout == ImageRGB {
		if t, err := m.importPlane(id, b, 0, true); err == nil {
			s.SRGB = t
			m.stats.TexturesCreated++
		} else {
			slogger().Debug("resource: no sRGB view", slog.Uint64("surface", uint64(id)), slog.String("error", err.Error()))
		}
	}

	w, h := b.Size()
	s.Kind = KindImage
	s.Input = input
	s.Conversion = m.conversion()
	s.Width = w
	s.Height = h
	s.Pitch = w
	s.YInverted = true
	if yi, ok := b.(yInverter); ok {
		s.YInverted = yi.YInverted()
	}
	s.damage = region.Region{}
	s.fullUpload = false
	return nil
}

func (m *Manager) importPlane(id SurfaceID, b ImageBuffer, plane int, srgb bool) (*gpu.Texture, error) {
	p, err := b.ImportPlane(m.dev.HAL(), plane, srgb)
	if err != nil {
		return nil, err
	}
	format, ok := gpu.FormatFromWGPU(p.Format)
	if !ok {
		if p.Texture != nil {
			m.dev.HAL().DestroyTexture(p.Texture)
		}
		return nil, fmt.Errorf("unsupported plane format %v", p.Format)
	}
	t, err := m.dev.WrapTexture(p.Texture, p.Width, p.Height, format, fmt.Sprintf("wlr_surface_%d_plane_%d", id, plane))
	if err != nil {
		return nil, err
	}
	m.stats.PlanesImported++
	return t, nil
}

// FlushDamage accumulates surface damage. When needed is set the pending
// damage is uploaded now; otherwise it is kept, together with the client
// buffer, until a frame needs the texture.
func (m *Manager) FlushDamage(id SurfaceID, damage region.Region, needed bool) error {
	s, ok := m.states[id]
	if !ok {
		return nil
	}
	if s.Kind != KindSHM {
		// Image and solid surfaces have no texture to bring up to date.
		return nil
	}
	s.damage = s.damage.Union(damage)
	if !needed {
		return nil
	}
	return m.Upload(id)
}

// Upload brings the texture of id up to date with its held buffer.
func (m *Manager) Upload(id SurfaceID) error {
	s, ok := m.states[id]
	if !ok || !s.NeedsUpload() {
		return nil
	}
	b, ok := s.held.(SHMBuffer)
	if !ok {
		// Nothing to read from; the texture keeps its last contents.
		s.damage = region.Region{}
		s.fullUpload = false
		return nil
	}
	tex := s.Textures[0]
	data, stride, err := m.pixels(b)
	if err != nil {
		return fmt.Errorf("resource: upload surface %d: %w", id, err)
	}

	bounds := image.Rect(0, 0, s.Pitch, s.Height)
	if s.fullUpload || !m.cfg.SubImageUpload {
		if err := tex.Upload(data, stride, bounds); err != nil {
			return fmt.Errorf("resource: upload surface %d: %w", id, err)
		}
		m.stats.FullUploads++
	} else {
		for _, r := range s.damage.IntersectRect(bounds).Rects() {
			if err := tex.Upload(data, stride, r); err != nil {
				return fmt.Errorf("resource: upload surface %d %v: %w", id, r, err)
			}
			m.stats.SubUploads++
		}
	}

	s.damage = region.Region{}
	s.fullUpload = false
	s.drop()
	return nil
}

// pixels returns BGRA8 data for b, expanding 16-bit formats. Short
// 16-bit buffers fail with gpu.ErrUploadBounds, as direct uploads do.
func (m *Manager) pixels(b SHMBuffer) ([]byte, int, error) {
	if b.Format() != SHMFormatRGB565 {
		return b.Data(), b.Stride(), nil
	}
	_, h := b.Size()
	src := b.Data()
	if len(src) < b.Stride()*h {
		return nil, 0, fmt.Errorf("%w: %d bytes, stride %d", gpu.ErrUploadBounds, len(src), b.Stride())
	}
	pitch := b.Stride() / 2
	need := pitch * h * 4
	if cap(m.scratch) < need {
		m.scratch = make([]byte, need)
	}
	dst := m.scratch[:need]
	for y := 0; y < h; y++ {
		row := src[y*b.Stride():]
		for x := 0; x < pitch; x++ {
			v := binary.LittleEndian.Uint16(row[2*x:])
			r := byte(v>>11) & 0x1f
			g := byte(v>>5) & 0x3f
			bl := byte(v) & 0x1f
			o := (y*pitch + x) * 4
			dst[o+0] = bl<<3 | bl>>2
			dst[o+1] = g<<2 | g>>4
			dst[o+2] = r<<3 | r>>2
			dst[o+3] = 0xff
		}
	}
	return dst, pitch * 4, nil
}

// SetColor turns id into a solid fill. Premultiplied components.
func (m *Manager) SetColor(id SurfaceID, r, g, b, a float32) {
	s := m.state(id)
	s.releaseTextures()
	s.drop()
	s.Kind = KindSolid
	s.Color = [4]float32{r, g, b, a}
	s.Input = shader.InputSolid
	s.Conversion = shader.ConversionNone
	s.damage = region.Region{}
	s.fullUpload = false
}

// Destroy releases id. Calling it again, or after DestroyAll, is a no-op.
func (m *Manager) Destroy(id SurfaceID) {
	s, ok := m.states[id]
	if !ok {
		return
	}
	delete(m.states, id)
	s.releaseTextures()
	s.drop()
	s.Kind = KindNone
}

// DestroyAll releases every surface.
func (m *Manager) DestroyAll() {
	for id := range m.states {
		m.Destroy(id)
	}
}
