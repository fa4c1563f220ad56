package gpu

import (
	"encoding/binary"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/wlrender/internal/clip"
	"github.com/gogpu/wlrender/internal/shader"
)

func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, hal.Instance) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue, instance
}

func newTestDevice(t *testing.T, cfg DeviceConfig) *Device {
	t.Helper()
	dev, queue, _ := createNoopDevice(t)
	d, err := NewDevice(dev, queue, cfg)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func fragmentFor(t *testing.T, k shader.Key) string {
	t.Helper()
	src, ok := shader.Source(k, shader.Features{External: true})
	if !ok {
		t.Fatalf("%s not constructible", k)
	}
	return src
}

func TestNewDevice_NilArgs(t *testing.T) {
	if _, err := NewDevice(nil, nil, DeviceConfig{}); !errors.Is(err, ErrNilDevice) {
		t.Errorf("err = %v, want ErrNilDevice", err)
	}
}

func TestTexture_Upload(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	tex, err := d.CreateTexture(TextureConfig{Width: 8, Height: 4, Format: TextureFormatBGRA8, Label: "t"})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Close()

	data := make([]byte, 8*4*4)
	tests := []struct {
		name   string
		stride int
		r      image.Rectangle
		data   []byte
		ok     bool
	}{
		{"full", 32, image.Rect(0, 0, 8, 4), data, true},
		{"sub rect", 32, image.Rect(2, 1, 6, 3), data, true},
		{"empty", 32, image.Rect(3, 3, 3, 3), nil, true},
		{"outside", 32, image.Rect(4, 0, 9, 4), data, false},
		{"short data", 32, image.Rect(0, 0, 8, 4), data[:100], false},
		{"stride too small", 16, image.Rect(0, 0, 8, 1), data, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tex.Upload(tt.data, tt.stride, tt.r)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUploadBounds) {
				t.Errorf("err = %v, want ErrUploadBounds", err)
			}
		})
	}
}

func TestTexture_CloseIdempotent(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	before := d.Memory()

	tex, err := d.CreateTexture(TextureConfig{Width: 16, Height: 16, Format: TextureFormatRGBA8})
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Memory().UsedBytes - before.UsedBytes; got != 16*16*4 {
		t.Errorf("tracked %d bytes, want %d", got, 16*16*4)
	}
	tex.Close()
	tex.Close()
	if !tex.IsReleased() {
		t.Error("texture not released")
	}
	if d.Memory().UsedBytes != before.UsedBytes {
		t.Errorf("memory not returned: %v", d.Memory())
	}
	if err := tex.Upload(make([]byte, 4), 4, image.Rect(0, 0, 1, 1)); !errors.Is(err, ErrTextureReleased) {
		t.Errorf("Upload after Close: %v", err)
	}
}

func TestCreateTexture_InvalidDimensions(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	if _, err := d.CreateTexture(TextureConfig{Width: 0, Height: 4}); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("err = %v", err)
	}
}

func TestMemoryBudget(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{BudgetMB: 1})
	_, err := d.CreateTexture(TextureConfig{Width: 512, Height: 512, Format: TextureFormatRGBA8})
	if !errors.Is(err, ErrMemoryBudgetExceeded) {
		t.Fatalf("err = %v, want ErrMemoryBudgetExceeded", err)
	}
	if d.Memory().Rejections != 1 {
		t.Errorf("rejections = %d", d.Memory().Rejections)
	}
	small, err := d.CreateTexture(TextureConfig{Width: 64, Height: 64, Format: TextureFormatRGBA8})
	if err != nil {
		t.Fatalf("small allocation: %v", err)
	}
	small.Close()
}

func TestTextureFormat(t *testing.T) {
	tests := []struct {
		f    TextureFormat
		bpp  int
		wgpu gputypes.TextureFormat
	}{
		{TextureFormatBGRA8, 4, gputypes.TextureFormatBGRA8Unorm},
		{TextureFormatRGBA8SRGB, 4, gputypes.TextureFormatRGBA8UnormSrgb},
		{TextureFormatR8, 1, gputypes.TextureFormatR8Unorm},
		{TextureFormatRG8, 2, gputypes.TextureFormatRG8Unorm},
		{TextureFormatRGBA16F, 8, gputypes.TextureFormatRGBA16Float},
		{TextureFormatR32F, 4, gputypes.TextureFormatR32Float},
	}
	for _, tt := range tests {
		if tt.f.BytesPerPixel() != tt.bpp || tt.f.ToWGPUFormat() != tt.wgpu {
			t.Errorf("%s: bpp %d format %v", tt.f, tt.f.BytesPerPixel(), tt.f.ToWGPUFormat())
		}
	}
}

func TestCompile_EagerPipelines(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	k := shader.Key{Input: shader.InputRGBX}

	p, err := d.Compile(k, fragmentFor(t, k))
	if err != nil {
		t.Fatal(err)
	}
	if p.Pipelines() != 0 {
		t.Errorf("pipelines before any target format = %d", p.Pipelines())
	}
	p.Destroy()

	d.AddTargetFormat(gputypes.TextureFormatBGRA8Unorm)
	d.AddTargetFormat(gputypes.TextureFormatBGRA8Unorm)
	p, err = d.Compile(k, fragmentFor(t, k))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Destroy()
	if p.Pipelines() != 2 {
		t.Errorf("pipelines = %d, want blend and opaque", p.Pipelines())
	}
	if p.Key() != k {
		t.Errorf("Key = %s", p.Key())
	}
}

func quad(x, y, w, h float64) []clip.Vertex {
	fan := clip.Fan{N: 4}
	for i, c := range clip.NewRect(x, y, w, h).Corners() {
		fan.V[i] = clip.Vertex{Pos: c}
	}
	return fan.AppendTriangles(nil)
}

func TestRender_BindSuppression(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	sc, err := NewSwapchain(d, SwapchainConfig{Width: 64, Height: 64, Format: TextureFormatBGRA8})
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Destroy()
	d.AddTargetFormat(sc.Format())

	rgbx := shader.Key{Input: shader.InputRGBX}
	solid := shader.Key{Input: shader.InputSolid, Output: shader.OutputTransparent}
	a, err := d.Compile(rgbx, fragmentFor(t, rgbx))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Destroy()
	b, err := d.Compile(solid, fragmentFor(t, solid))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Destroy()

	frame, err := sc.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	pass := &Pass{
		Label:      "test",
		View:       frame.View,
		Format:     sc.Format(),
		Width:      64,
		Height:     64,
		Projection: Ortho(0, 0, 64, 64),
		Clear:      &gputypes.Color{A: 1},
		Draws: []Draw{
			{Program: a, Vertices: quad(0, 0, 8, 8)},
			{Program: a, Vertices: quad(8, 0, 8, 8)},
			{Program: a, Blend: true, Vertices: quad(16, 0, 8, 8)},
			{Program: b, Blend: true, Vertices: quad(24, 0, 8, 8), Color: [4]float32{1, 0, 0, 1}, Alpha: 0.5},
			{Program: b, Blend: true, Lines: true, Vertices: quad(24, 0, 8, 8)},
			{Program: b},
		},
	}
	stats, err := d.Render(pass)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Draws != 5 || stats.Vertices != 30 {
		t.Errorf("draws=%d vertices=%d", stats.Draws, stats.Vertices)
	}
	if stats.ProgramBinds != 2 {
		t.Errorf("program binds = %d, want 2", stats.ProgramBinds)
	}
	if stats.PipelineBinds != 4 {
		t.Errorf("pipeline binds = %d, want 4", stats.PipelineBinds)
	}
	if b.Pipelines() != 3 {
		t.Errorf("solid pipelines = %d, want 3 after the line draw", b.Pipelines())
	}
}

func TestRender_NoTarget(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	if _, err := d.Render(&Pass{}); !errors.Is(err, ErrNoTarget) {
		t.Errorf("err = %v", err)
	}
}

func TestSwapchain_Ages(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	for _, tt := range []struct {
		buffers int
		want    []int
	}{
		{2, []int{0, 0, 2, 2, 2}},
		{3, []int{0, 0, 0, 3, 3}},
		{1, []int{0, 0, 2, 2}},
	} {
		sc, err := NewSwapchain(d, SwapchainConfig{Width: 4, Height: 4, Format: TextureFormatBGRA8, Buffers: tt.buffers})
		if err != nil {
			t.Fatal(err)
		}
		for i, want := range tt.want {
			f, err := sc.Acquire()
			if err != nil {
				t.Fatal(err)
			}
			if f.Age != want {
				t.Errorf("ring %d frame %d: age %d, want %d", tt.buffers, i, f.Age, want)
			}
			if err := sc.Present(f, nil); err != nil {
				t.Fatal(err)
			}
		}
		sc.Destroy()
	}
}

func TestSwapchain_DiscardKeepsSlot(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	sc, err := NewSwapchain(d, SwapchainConfig{Width: 4, Height: 4, Format: TextureFormatBGRA8})
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Destroy()

	if _, err := sc.Front(); !errors.Is(err, ErrNotReadable) {
		t.Errorf("Front before present: %v", err)
	}
	f, _ := sc.Acquire()
	sc.Discard(f)
	g, _ := sc.Acquire()
	if g.slot != f.slot {
		t.Error("discard advanced the ring")
	}
	damage := []image.Rectangle{image.Rect(0, 0, 2, 2)}
	if err := sc.Present(g, damage); err != nil {
		t.Fatal(err)
	}
	if got := sc.LastDamage(); len(got) != 1 || got[0] != damage[0] {
		t.Errorf("LastDamage = %v", got)
	}
	if sc.Presents() != 1 {
		t.Errorf("Presents = %d", sc.Presents())
	}
	if _, err := sc.Front(); err != nil {
		t.Errorf("Front: %v", err)
	}
}

func TestReadTexture(t *testing.T) {
	d := newTestDevice(t, DeviceConfig{})
	tex, err := d.CreateTexture(TextureConfig{Width: 70, Height: 3, Format: TextureFormatBGRA8, Usage: RenderTextureUsage})
	if err != nil {
		t.Fatal(err)
	}
	defer tex.Close()

	out, err := d.ReadTexture(tex.Raw(), image.Rect(1, 0, 66, 3), 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 65*3*4 {
		t.Errorf("len = %d, want %d", len(out), 65*3*4)
	}
	if out, err := d.ReadTexture(tex.Raw(), image.Rectangle{}, 4); err != nil || out != nil {
		t.Errorf("empty read = %v, %v", out, err)
	}
}

func TestSurfaceTarget(t *testing.T) {
	dev, queue, instance := createNoopDevice(t)
	d, err := NewDevice(dev, queue, DeviceConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Destroy()

	surface, err := instance.CreateSurface(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	st, err := NewSurfaceTarget(d, surface, 320, 240, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Destroy()

	if st.HasBufferAge() || !st.PartialPresent() {
		t.Error("unexpected surface capabilities")
	}
	if w, h := st.Size(); w != 320 || h != 240 {
		t.Errorf("Size = %dx%d", w, h)
	}
	f, err := st.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if f.Age != 0 {
		t.Errorf("Age = %d", f.Age)
	}
	if err := st.Present(f, []image.Rectangle{image.Rect(0, 0, 10, 10)}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Front(); !errors.Is(err, ErrNotReadable) {
		t.Errorf("Front: %v", err)
	}
}

func TestOrtho(t *testing.T) {
	m := Ortho(100, 50, 200, 100)
	apply := func(x, y float32) (float32, float32) {
		return m[0]*x + m[1]*y + m[3], m[4]*x + m[5]*y + m[7]
	}
	tests := []struct{ x, y, wx, wy float32 }{
		{100, 50, -1, 1},
		{300, 150, 1, -1},
		{200, 100, 0, 0},
	}
	for _, tt := range tests {
		gx, gy := apply(tt.x, tt.y)
		if math.Abs(float64(gx-tt.wx)) > 1e-6 || math.Abs(float64(gy-tt.wy)) > 1e-6 {
			t.Errorf("(%v,%v) -> (%v,%v), want (%v,%v)", tt.x, tt.y, gx, gy, tt.wx, tt.wy)
		}
	}
}

func TestWriteUniforms_ColumnMajor(t *testing.T) {
	m := Ortho(0, 0, 100, 100)
	buf := make([]byte, uniformStride)
	writeUniforms(buf, m, &Draw{Color: [4]float32{0.25, 0.5, 0.75, 1}, Alpha: 0.5})

	read := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	}
	// Row 0 column 3 is the x translation; column-major puts it at
	// column 3, row 0.
	if got := read(shader.UniformProjection + 12*4); got != m[3] {
		t.Errorf("translation = %v, want %v", got, m[3])
	}
	if got := read(shader.UniformProjection + 5*4); got != m[5] {
		t.Errorf("y scale = %v, want %v", got, m[5])
	}
	if got := read(shader.UniformColor + 8); got != 0.75 {
		t.Errorf("color.b = %v", got)
	}
	if got := read(shader.UniformAlpha); got != 0.5 {
		t.Errorf("alpha = %v", got)
	}
}
