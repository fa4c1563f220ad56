package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/wlrender"
	"github.com/gogpu/wlrender/region"
)

// scene is a headless test composition loaded from TOML:
//
//	[output]
//	width = 320
//	height = 240
//
//	[[surface]]
//	format = "xrgb8888"
//	width = 320
//	height = 240
//	fill = [32, 32, 64, 255]
//
//	[[surface]]
//	format = "argb8888"
//	width = 64
//	height = 64
//	x = 160
//	y = 120
//	rotate = 30
//	alpha = 0.8
//
// Surfaces are listed bottom to top.
type scene struct {
	Output  sceneOutput    `toml:"output"`
	Surface []sceneSurface `toml:"surface"`
	Border  []sceneBorder  `toml:"border"`
}

type sceneOutput struct {
	Width   int  `toml:"width"`
	Height  int  `toml:"height"`
	Buffers int  `toml:"buffers"`
	Frames  int  `toml:"frames"`
	Linear  bool `toml:"linear"`
}

type sceneSurface struct {
	// Format is xrgb8888, argb8888, rgb565 or solid.
	Format string     `toml:"format"`
	Width  int        `toml:"width"`
	Height int        `toml:"height"`
	X      float64    `toml:"x"`
	Y      float64    `toml:"y"`
	Rotate float64    `toml:"rotate"`
	Alpha  *float64   `toml:"alpha"`
	Fill   [4]uint8   `toml:"fill"`
	Color  [4]float32 `toml:"color"`
	Opaque []int      `toml:"opaque"`
}

type sceneBorder struct {
	Side   string   `toml:"side"`
	Width  int      `toml:"width"`
	Height int      `toml:"height"`
	Fill   [4]uint8 `toml:"fill"`
}

func loadScene(path string) (*scene, error) {
	var s scene
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("read scene: unknown key %q", undec[0].String())
	}
	return &s, s.validate()
}

func (s *scene) validate() error {
	if s.Output.Width <= 0 || s.Output.Height <= 0 {
		return errors.New("scene: output needs a positive width and height")
	}
	if s.Output.Frames <= 0 {
		s.Output.Frames = 1
	}
	for i, sf := range s.Surface {
		if sf.Width <= 0 || sf.Height <= 0 {
			return fmt.Errorf("scene: surface %d needs a positive size", i)
		}
		if _, ok := shmFormats[sf.Format]; !ok && sf.Format != "solid" {
			return fmt.Errorf("scene: surface %d has unknown format %q", i, sf.Format)
		}
		if sf.Opaque != nil && len(sf.Opaque) != 4 {
			return fmt.Errorf("scene: surface %d opaque must be [x0, y0, x1, y1]", i)
		}
	}
	for i, b := range s.Border {
		if _, ok := borderSides[b.Side]; !ok {
			return fmt.Errorf("scene: border %d has unknown side %q", i, b.Side)
		}
		if b.Width <= 0 || b.Height <= 0 {
			return fmt.Errorf("scene: border %d needs a positive size", i)
		}
	}
	return nil
}

var shmFormats = map[string]wlrender.SHMFormat{
	"xrgb8888": wlrender.SHMFormatXRGB8888,
	"argb8888": wlrender.SHMFormatARGB8888,
	"rgb565":   wlrender.SHMFormatRGB565,
}

var borderSides = map[string]wlrender.BorderSide{
	"top":    wlrender.BorderTop,
	"left":   wlrender.BorderLeft,
	"right":  wlrender.BorderRight,
	"bottom": wlrender.BorderBottom,
}

// shmBuffer is a client buffer filled with one pixel value.
type shmBuffer struct {
	w, h   int
	stride int
	format wlrender.SHMFormat
	data   []byte
}

func newSHMBuffer(w, h int, format wlrender.SHMFormat, fill [4]uint8) *shmBuffer {
	b := &shmBuffer{w: w, h: h, format: format}
	if format == wlrender.SHMFormatRGB565 {
		b.stride = w * 2
		b.data = make([]byte, b.stride*h)
		// fill is R, G, B, A.
		v := uint16(fill[0]>>3)<<11 | uint16(fill[1]>>2)<<5 | uint16(fill[2]>>3)
		for i := 0; i < len(b.data); i += 2 {
			b.data[i], b.data[i+1] = byte(v), byte(v>>8)
		}
		return b
	}
	b.stride = w * 4
	b.data = make([]byte, b.stride*h)
	for i := 0; i < len(b.data); i += 4 {
		// Little-endian ARGB word: B, G, R, A in memory.
		b.data[i], b.data[i+1], b.data[i+2], b.data[i+3] = fill[2], fill[1], fill[0], fill[3]
	}
	return b
}

func (b *shmBuffer) Size() (int, int)           { return b.w, b.h }
func (b *shmBuffer) Stride() int                { return b.stride }
func (b *shmBuffer) Format() wlrender.SHMFormat { return b.format }
func (b *shmBuffer) Data() []byte               { return b.data }

// render draws the scene on a fresh output and returns the front buffer.
func (s *scene) render(r *wlrender.Renderer) (*image.RGBA, wlrender.FrameStats, error) {
	const out wlrender.OutputID = 1
	rect := image.Rect(0, 0, s.Output.Width, s.Output.Height)
	if err := r.OutputCreate(out, nil, wlrender.OutputConfig{Rect: rect, Buffers: s.Output.Buffers}); err != nil {
		return nil, wlrender.FrameStats{}, err
	}
	defer r.OutputDestroy(out)

	for _, b := range s.Border {
		px := newSHMBuffer(b.Width, b.Height, wlrender.SHMFormatARGB8888, b.Fill)
		if err := r.OutputSetBorder(out, borderSides[b.Side], b.Width, b.Height, px.stride, px.data); err != nil {
			return nil, wlrender.FrameStats{}, err
		}
	}

	views := make([]wlrender.View, 0, len(s.Surface))
	defer func() {
		for i := range s.Surface {
			r.SurfaceDestroy(wlrender.SurfaceID(i + 1))
		}
	}()
	for i, sf := range s.Surface {
		id := wlrender.SurfaceID(i + 1)
		if sf.Format == "solid" {
			r.SurfaceSetColor(id, sf.Color[0], sf.Color[1], sf.Color[2], sf.Color[3])
		} else {
			buf := newSHMBuffer(sf.Width, sf.Height, shmFormats[sf.Format], sf.Fill)
			if err := r.Attach(id, buf); err != nil {
				return nil, wlrender.FrameStats{}, err
			}
			if err := r.FlushDamage(id, region.Rect(0, 0, sf.Width, sf.Height), true); err != nil {
				return nil, wlrender.FrameStats{}, err
			}
		}

		var v wlrender.View
		if sf.Rotate != 0 {
			v = wlrender.Rotate(id, sf.X+float64(sf.Width)/2, sf.Y+float64(sf.Height)/2, sf.Rotate, sf.Width, sf.Height)
		} else {
			v = wlrender.Translate(id, sf.X, sf.Y, sf.Width, sf.Height)
		}
		if sf.Alpha != nil {
			v.Alpha = float32(*sf.Alpha)
		}
		if len(sf.Opaque) == 4 {
			v.Opaque = region.Rect(sf.Opaque[0], sf.Opaque[1], sf.Opaque[2], sf.Opaque[3])
		}
		views = append(views, v)
	}

	var stats wlrender.FrameStats
	for i := 0; i < s.Output.Frames; i++ {
		dmg := region.New(rect)
		if err := r.RepaintOutput(out, views, &dmg); err != nil {
			return nil, stats, err
		}
		stats = r.Stats(out)
	}

	w, h := r.OutputSurface(out).Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := r.ReadPixels(out, wlrender.PixelFormatRGBA8888, img.Pix, img.Rect); err != nil {
		return nil, stats, err
	}
	return img, stats, nil
}

// writeBMP encodes img, scaled by factor when it is not 1.
func writeBMP(w io.Writer, img image.Image, factor float64) error {
	if factor > 0 && factor != 1 {
		b := img.Bounds()
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(b.Dx())*factor), int(float64(b.Dy())*factor)))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}
	return bmp.Encode(w, img)
}

func saveBMP(path string, img image.Image, factor float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeBMP(f, img, factor); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
