package wlrender

import (
	"bytes"
	"errors"
	"image"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/wlrender/internal/gpu"
	"github.com/gogpu/wlrender/internal/shader"
	"github.com/gogpu/wlrender/region"
)

func addOutput(t *testing.T, r *Renderer, id OutputID, cfg OutputConfig) *gpu.Swapchain {
	t.Helper()
	if err := r.OutputCreate(id, nil, cfg); err != nil {
		t.Fatalf("OutputCreate: %v", err)
	}
	return r.OutputSurface(id).(*gpu.Swapchain)
}

func repaint(t *testing.T, r *Renderer, id OutputID, views []View, dmg region.Region) region.Region {
	t.Helper()
	if err := r.RepaintOutput(id, views, &dmg); err != nil {
		t.Fatalf("RepaintOutput: %v", err)
	}
	return dmg
}

func lastDraws(r *Renderer, id OutputID) []gpu.Draw {
	return r.outputs[id].draws
}

func drawKeys(draws []gpu.Draw) []string {
	keys := make([]string, len(draws))
	for i, d := range draws {
		keys[i] = d.Program.Key().String()
	}
	return keys
}

func TestRepaint_SingleOpaqueSurface(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 64, 48)
	sc := addOutput(t, r, 1, OutputConfig{Rect: rect})
	buf := attachSHM(t, r, 1, 64, 48, SHMFormatXRGB8888)
	if buf.released != 1 {
		t.Errorf("buffer released %d times after upload, want 1", buf.released)
	}

	got := repaint(t, r, 1, []View{Translate(1, 0, 0, 64, 48)}, region.New(rect))

	st := r.Stats(1)
	if !st.Full || st.Age != 0 || !st.Presented {
		t.Errorf("stats = %+v", st)
	}
	if !got.Equal(region.New(rect)) {
		t.Errorf("redrawn = %v, want whole output", got.Rects())
	}
	draws := lastDraws(r, 1)
	if len(draws) != 1 {
		t.Fatalf("draws = %v", drawKeys(draws))
	}
	d := draws[0]
	if d.Program.Key().String() != "rgbx/blend/none" || d.Blend || d.Linear {
		t.Errorf("draw = %s blend=%v linear=%v", d.Program.Key(), d.Blend, d.Linear)
	}
	if len(d.Vertices) != 6 || len(d.Planes) != 1 {
		t.Errorf("vertices=%d planes=%d", len(d.Vertices), len(d.Planes))
	}
	if st.Draws != 1 || st.Vertices != 6 || st.OpaqueDraws != 1 || st.BlendDraws != 0 {
		t.Errorf("stats = %s", st)
	}
	if sc.Presents() != 1 || sc.LastDamage() != nil {
		t.Errorf("presents=%d damage=%v", sc.Presents(), sc.LastDamage())
	}
}

func TestRepaint_RotatedTranslucentView(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 64, 64)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	attachSHM(t, r, 1, 64, 64, SHMFormatXRGB8888)
	attachSHM(t, r, 2, 32, 32, SHMFormatARGB8888)

	views := []View{Translate(1, 0, 0, 64, 64), Rotate(2, 32, 32, 45, 32, 32)}
	repaint(t, r, 1, views, region.New(rect))

	draws := lastDraws(r, 1)
	if len(draws) != 2 {
		t.Fatalf("draws = %v", drawKeys(draws))
	}
	d := draws[1]
	if d.Program.Key().String() != "rgba/blend/none" || !d.Blend || !d.Linear {
		t.Errorf("rotated draw = %s blend=%v linear=%v", d.Program.Key(), d.Blend, d.Linear)
	}
	if n := len(d.Vertices); n == 0 || n%3 != 0 || n/3+2 > 8 {
		t.Fatalf("rotated fan has %d vertices", n)
	}
	const eps = 1e-6
	for _, v := range d.Vertices {
		if v.Pos.X < 9-eps || v.Pos.X > 55+eps || v.Pos.Y < 9-eps || v.Pos.Y > 55+eps {
			t.Errorf("vertex %v outside the view bounds", v.Pos)
		}
		if v.Tex.X < -eps || v.Tex.X > 1+eps || v.Tex.Y < -eps || v.Tex.Y > 1+eps {
			t.Errorf("texcoord %v outside [0,1]", v.Tex)
		}
	}
	if st := r.Stats(1); st.Views != 2 || st.OpaqueDraws != 1 || st.BlendDraws != 1 {
		t.Errorf("stats = %s", st)
	}
}

func TestRepaint_BufferAge(t *testing.T) {
	rect := image.Rect(0, 0, 32, 32)
	small := func(i int) region.Region { return region.Rect(i*4, 0, i*4+2, 2) }

	t.Run("age beyond history", func(t *testing.T) {
		r := newTestRenderer(t)
		addOutput(t, r, 1, OutputConfig{Rect: rect, Buffers: 3})
		attachSHM(t, r, 1, 32, 32, SHMFormatXRGB8888)
		views := []View{Translate(1, 0, 0, 32, 32)}
		for i, wantAge := range []int{0, 0, 0, 3} {
			repaint(t, r, 1, views, small(i))
			st := r.Stats(1)
			if st.Age != wantAge || !st.Full {
				t.Errorf("frame %d: age=%d full=%v, want age %d full", i, st.Age, st.Full, wantAge)
			}
		}
	})

	t.Run("deeper history", func(t *testing.T) {
		r := newTestRenderer(t, WithBufferDamageCount(3))
		addOutput(t, r, 1, OutputConfig{Rect: rect, Buffers: 3})
		attachSHM(t, r, 1, 32, 32, SHMFormatXRGB8888)
		views := []View{Translate(1, 0, 0, 32, 32)}
		for i := 0; i < 3; i++ {
			repaint(t, r, 1, views, small(i))
		}
		got := repaint(t, r, 1, views, small(3))
		want := small(3).Union(small(2)).Union(small(1))
		if r.Stats(1).Full || !got.Equal(want) {
			t.Errorf("redrawn = %v, want %v", got.Rects(), want.Rects())
		}
	})

	t.Run("partial redraw", func(t *testing.T) {
		r := newTestRenderer(t)
		sc := addOutput(t, r, 1, OutputConfig{Rect: rect})
		attachSHM(t, r, 1, 32, 32, SHMFormatXRGB8888)
		views := []View{Translate(1, 0, 0, 32, 32)}

		repaint(t, r, 1, views, region.New(rect))
		repaint(t, r, 1, views, region.Rect(0, 0, 4, 4))
		got := repaint(t, r, 1, views, region.Rect(8, 8, 16, 16))

		st := r.Stats(1)
		if st.Full || st.Age != 2 {
			t.Fatalf("stats = %s", st)
		}
		want := region.New(image.Rect(0, 0, 4, 4), image.Rect(8, 8, 16, 16))
		if !got.Equal(want) {
			t.Errorf("redrawn = %v, want %v", got.Rects(), want.Rects())
		}
		if d := sc.LastDamage(); len(d) != 1 || d[0] != image.Rect(8, 8, 16, 16) {
			t.Errorf("present damage = %v", d)
		}
		draws := lastDraws(r, 1)
		if len(draws) != 1 || len(draws[0].Vertices) != 12 {
			t.Errorf("draws = %v", drawKeys(draws))
		}
	})

	t.Run("no partial present", func(t *testing.T) {
		r := newTestRenderer(t)
		sc := addOutput(t, r, 1, OutputConfig{Rect: rect, NoPartialPresent: true})
		views := []View{}
		repaint(t, r, 1, views, region.New(rect))
		repaint(t, r, 1, views, region.New(rect))
		repaint(t, r, 1, views, region.Rect(0, 0, 1, 1))
		if sc.LastDamage() != nil {
			t.Errorf("present damage = %v", sc.LastDamage())
		}
	})
}

func TestRepaint_Occlusion(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 64, 48)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	attachSHM(t, r, 1, 64, 48, SHMFormatXRGB8888)
	attachSHM(t, r, 2, 64, 48, SHMFormatXRGB8888)
	attachSHM(t, r, 3, 32, 48, SHMFormatXRGB8888)

	repaint(t, r, 1, []View{Translate(1, 0, 0, 64, 48), Translate(2, 0, 0, 64, 48)}, region.New(rect))
	if st := r.Stats(1); st.Views != 1 || st.Draws != 1 {
		t.Errorf("fully covered view drawn: %s", st)
	}

	r.OutputDestroy(1)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	repaint(t, r, 1, []View{Translate(1, 0, 0, 64, 48), Translate(3, 0, 0, 32, 48)}, region.New(rect))
	draws := lastDraws(r, 1)
	if len(draws) != 2 {
		t.Fatalf("draws = %v", drawKeys(draws))
	}
	for _, v := range draws[0].Vertices {
		if v.Pos.X < 32 {
			t.Fatalf("covered half of the bottom view drawn: %v", v.Pos)
		}
	}

	// Translucent views hide nothing.
	r.OutputDestroy(1)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	top := Translate(2, 0, 0, 64, 48)
	top.Alpha = 0.5
	repaint(t, r, 1, []View{Translate(1, 0, 0, 64, 48), top}, region.New(rect))
	draws = lastDraws(r, 1)
	if got := drawKeys(draws); len(got) != 2 || got[1] != "rgbx/transparent/none" || !draws[1].Blend {
		t.Errorf("draws = %v", got)
	}
	if draws[1].Alpha != 0.5 {
		t.Errorf("alpha = %v", draws[1].Alpha)
	}
}

func TestRepaint_OpaqueRegionForcesRGBX(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 64, 48)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	attachSHM(t, r, 1, 64, 48, SHMFormatARGB8888)

	v := Translate(1, 0, 0, 64, 48)
	v.Opaque = region.Rect(0, 0, 32, 48)
	repaint(t, r, 1, []View{v}, region.New(rect))

	draws := lastDraws(r, 1)
	if got := drawKeys(draws); len(got) != 2 || got[0] != "rgbx/blend/none" || got[1] != "rgba/blend/none" {
		t.Fatalf("draws = %v", got)
	}
	if draws[0].Blend || !draws[1].Blend {
		t.Errorf("blend = %v, %v", draws[0].Blend, draws[1].Blend)
	}
}

func TestRepaint_SkipsEmptySurfaces(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 16, 16)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	attachSHM(t, r, 1, 16, 16, SHMFormatXRGB8888)
	if err := r.Attach(1, nil); err != nil {
		t.Fatal(err)
	}
	hidden := Translate(2, 0, 0, 16, 16)
	hidden.Alpha = 0
	attachSHM(t, r, 2, 16, 16, SHMFormatXRGB8888)

	repaint(t, r, 1, []View{Translate(1, 0, 0, 16, 16), hidden, Translate(7, 0, 0, 16, 16)}, region.New(rect))
	if st := r.Stats(1); st.Views != 0 || st.Draws != 0 || !st.Presented {
		t.Errorf("stats = %s", st)
	}
}

func TestRepaint_SolidColor(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 16, 16)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	r.SurfaceSetColor(1, 0, 0, 1, 1)
	r.SurfaceSetColor(2, 0, 0.5, 0, 0.5)

	repaint(t, r, 1, []View{Translate(1, 0, 0, 16, 16), Translate(2, 4, 4, 8, 8)}, region.New(rect))
	draws := lastDraws(r, 1)
	if got := drawKeys(draws); len(got) != 2 || got[0] != "solid/blend/none" || got[1] != "solid/blend/none" {
		t.Fatalf("draws = %v", got)
	}
	if draws[0].Blend || !draws[1].Blend {
		t.Errorf("blend = %v, %v", draws[0].Blend, draws[1].Blend)
	}
	if draws[1].Color != [4]float32{0, 0.5, 0, 0.5} || len(draws[1].Planes) != 0 {
		t.Errorf("solid draw = %+v", draws[1])
	}
}

func TestRepaint_YUVImage(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 64, 48)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	if err := r.Attach(1, &testImage{w: 64, h: 48, layout: ImageYUV}); err != nil {
		t.Fatal(err)
	}

	repaint(t, r, 1, []View{Translate(1, 0, 0, 64, 48)}, region.New(rect))
	draws := lastDraws(r, 1)
	if len(draws) != 1 {
		t.Fatalf("draws = %v", drawKeys(draws))
	}
	if k := draws[0].Program.Key(); k.Input != shader.InputYUV || draws[0].Blend {
		t.Errorf("draw = %s blend=%v", k, draws[0].Blend)
	}
	if len(draws[0].Planes) != 2 {
		t.Errorf("planes = %d, want 2", len(draws[0].Planes))
	}
	if r.Stats(1).Uploads != 0 {
		t.Error("image buffer uploaded")
	}
}

func TestRepaint_LazyUpload(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 16, 16)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	buf := newTestSHM(16, 16, SHMFormatXRGB8888)
	if err := r.Attach(1, buf); err != nil {
		t.Fatal(err)
	}
	if err := r.FlushDamage(1, region.Rect(0, 0, 16, 16), false); err != nil {
		t.Fatal(err)
	}
	if buf.released != 0 {
		t.Fatal("buffer released before upload")
	}
	repaint(t, r, 1, []View{Translate(1, 0, 0, 16, 16)}, region.New(rect))
	if r.Stats(1).Uploads != 1 || buf.released != 1 {
		t.Errorf("uploads=%d released=%d", r.Stats(1).Uploads, buf.released)
	}
}

func TestRepaint_Borders(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 64, 48)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	attachSHM(t, r, 1, 64, 48, SHMFormatXRGB8888)
	views := []View{Translate(1, 0, 0, 64, 48)}
	pixels := make([]byte, 256*8)

	if err := r.OutputSetBorder(9, BorderTop, 64, 8, 256, pixels); !errors.Is(err, ErrUnknownOutput) {
		t.Errorf("unknown output err = %v", err)
	}
	if err := r.OutputSetBorder(1, BorderSide(7), 64, 8, 256, pixels); err == nil {
		t.Error("invalid side accepted")
	}
	if err := r.OutputSetBorder(1, BorderTop, 64, 8, 256, pixels[:100]); err == nil {
		t.Error("short border pixels accepted")
	}
	if err := r.OutputSetBorder(1, BorderTop, 64, 8, 256, pixels); err != nil {
		t.Fatal(err)
	}

	repaint(t, r, 1, views, region.New(rect))
	sc := r.OutputSurface(1).(*gpu.Swapchain)
	if w, h := sc.Size(); w != 64 || h != 56 {
		t.Fatalf("target = %dx%d, want 64x56", w, h)
	}
	o := r.outputs[1]
	if st := r.Stats(1); st.Borders != 1 || !st.Full {
		t.Errorf("frame 1: %s", st)
	}
	draws := lastDraws(r, 1)
	if last := draws[len(draws)-1]; last.Program.Key().String() != "rgba/blend/none" || !last.Blend {
		t.Errorf("border draw = %s", last.Program.Key())
	} else {
		for _, v := range last.Vertices {
			if v.Pos.Y < -8 || v.Pos.Y > 0 {
				t.Errorf("border vertex %v outside the top strip", v.Pos)
			}
		}
	}

	repaint(t, r, 1, views, region.Region{})
	if o.borders[BorderTop].uploads != 1 {
		t.Errorf("uploads = %d after an unchanged frame", o.borders[BorderTop].uploads)
	}
	repaint(t, r, 1, views, region.Region{})
	if st := r.Stats(1); st.Full || st.Borders != 0 {
		t.Errorf("frame 3: %s", st)
	}

	if err := r.OutputSetBorder(1, BorderTop, 64, 8, 256, pixels); err != nil {
		t.Fatal(err)
	}
	repaint(t, r, 1, views, region.Region{})
	if st := r.Stats(1); st.Full || st.Borders != 1 {
		t.Errorf("frame 4: %s", st)
	}
	if o.borders[BorderTop].uploads != 2 {
		t.Errorf("uploads = %d, want 2", o.borders[BorderTop].uploads)
	}
	if d := sc.LastDamage(); len(d) != 1 || d[0] != image.Rect(0, 0, 64, 8) {
		t.Errorf("present damage = %v", d)
	}

	// Same height, new width: the target keeps its size but every buffer
	// is redrawn.
	if err := r.OutputSetBorder(1, BorderTop, 32, 8, 128, pixels[:128*8]); err != nil {
		t.Fatal(err)
	}
	repaint(t, r, 1, views, region.Region{})
	if !r.Stats(1).Full {
		t.Error("border size change did not force a full repaint")
	}

	if err := r.OutputSetBorder(1, BorderTop, 0, 0, 0, nil); err != nil {
		t.Fatal(err)
	}
	repaint(t, r, 1, views, region.Region{})
	sc = r.OutputSurface(1).(*gpu.Swapchain)
	if w, h := sc.Size(); w != 64 || h != 48 || !r.Stats(1).Full {
		t.Errorf("after removing the border: %dx%d full=%v", w, h, r.Stats(1).Full)
	}
}

func TestRepaint_DebugModesForceFull(t *testing.T) {
	r := newTestRenderer(t)
	rect := image.Rect(0, 0, 16, 16)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	attachSHM(t, r, 1, 16, 16, SHMFormatXRGB8888)
	views := []View{Translate(1, 0, 0, 16, 16)}

	repaint(t, r, 1, views, region.New(rect))
	repaint(t, r, 1, views, region.New(rect))

	if !r.ToggleShaderDebug() {
		t.Fatal("ToggleShaderDebug returned false")
	}
	got := repaint(t, r, 1, views, region.Rect(0, 0, 1, 1))
	if !r.Stats(1).Full || !got.Equal(region.New(rect)) {
		t.Errorf("shader debug toggle: %s", r.Stats(1))
	}

	repaint(t, r, 1, views, region.Rect(0, 0, 1, 1))
	repaint(t, r, 1, views, region.Rect(0, 0, 1, 1))
	if r.Stats(1).Full {
		t.Fatal("expected a partial frame")
	}
	r.SetFanDebug(true)
	repaint(t, r, 1, views, region.Rect(0, 0, 1, 1))
	if !r.Stats(1).Full {
		t.Error("fan debug did not force a full repaint")
	}
	draws := lastDraws(r, 1)
	if len(draws) != 2 || !draws[1].Lines || draws[1].Program.Key().Input != shader.InputSolid {
		t.Errorf("draws = %v", drawKeys(draws))
	}
	if len(draws[1].Vertices) != 12 {
		t.Errorf("outline vertices = %d, want 12", len(draws[1].Vertices))
	}
}

func TestRepaint_ColorManaged(t *testing.T) {
	r := newTestRenderer(t, WithColorManagement(true))
	rect := image.Rect(0, 0, 64, 48)
	addOutput(t, r, 1, OutputConfig{Rect: rect})
	attachSHM(t, r, 1, 64, 48, SHMFormatXRGB8888)

	repaint(t, r, 1, []View{Translate(1, 0, 0, 64, 48)}, region.New(rect))
	st := r.Stats(1)
	if !st.Indirect || !st.Full {
		t.Fatalf("stats = %s", st)
	}
	got := drawKeys(lastDraws(r, 1))
	if len(got) != 2 || got[0] != "rgbx/blend/from_srgb" || got[1] != "rgbx/to_srgb/none" {
		t.Errorf("draws = %v", got)
	}

	// An image with an sRGB view skips the shader conversion.
	if err := r.Attach(2, &testImage{w: 64, h: 48, layout: ImageRGB}); err != nil {
		t.Fatal(err)
	}
	repaint(t, r, 1, []View{Translate(2, 0, 0, 64, 48)}, region.New(rect))
	if got := drawKeys(lastDraws(r, 1)); len(got) != 2 || got[0] != "rgbx/blend/none" {
		t.Errorf("sRGB image draws = %v", got)
	}
}

func TestRepaint_OffscreenFallback(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	r := newTestRenderer(t, WithColorManagement(true), WithTextureBudget(3))
	rect := image.Rect(0, 0, 512, 512)
	addOutput(t, r, 1, OutputConfig{Rect: rect})

	for i := 0; i < 2; i++ {
		repaint(t, r, 1, nil, region.New(rect))
		if r.Stats(1).Indirect {
			t.Fatalf("frame %d drawn through the offscreen target", i)
		}
	}
	if n := r.Memory().Rejections; n != 1 {
		t.Errorf("rejections = %d, want 1", n)
	}
	if n := strings.Count(buf.String(), "no offscreen target"); n != 1 {
		t.Errorf("fallback logged %d times", n)
	}
}

type failingTarget struct {
	*gpu.Swapchain
	err error
}

func (f *failingTarget) Present(*gpu.Frame, []image.Rectangle) error { return f.err }

func TestRepaint_PresentFailure(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	r := newTestRenderer(t)
	sc, err := gpu.NewSwapchain(r.device, gpu.SwapchainConfig{Width: 16, Height: 16, Format: gpu.TextureFormatBGRA8})
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Destroy()
	lost := errors.New("device lost")
	if err := r.OutputCreate(1, &failingTarget{Swapchain: sc, err: lost}, OutputConfig{Rect: image.Rect(0, 0, 16, 16)}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		dmg := region.Rect(0, 0, 16, 16)
		err := r.RepaintOutput(1, nil, &dmg)
		if !errors.Is(err, ErrFrameSkipped) || !errors.Is(err, lost) {
			t.Fatalf("frame %d err = %v", i, err)
		}
		if r.Stats(1).Presented {
			t.Error("failed frame reported as presented")
		}
	}
	if n := strings.Count(buf.String(), "present failed"); n != 1 {
		t.Errorf("present failure logged %d times, want 1", n)
	}
}
