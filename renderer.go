package wlrender

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wlrender/internal/gpu"
	"github.com/gogpu/wlrender/internal/resource"
	"github.com/gogpu/wlrender/internal/shader"
	"github.com/gogpu/wlrender/region"
)

// MemoryStats reports texture memory use.
type MemoryStats = gpu.MemoryStats

// UploadStats counts texture allocations and uploads.
type UploadStats = resource.Stats

var (
	keyBorder = shader.Key{Input: shader.InputRGBA, Output: shader.OutputBlend, Conversion: shader.ConversionNone}
	keySolid  = shader.Key{Input: shader.InputSolid, Output: shader.OutputBlend, Conversion: shader.ConversionNone}
	keyEncode = shader.Key{Input: shader.InputRGBX, Output: shader.OutputToSRGB, Conversion: shader.ConversionNone}
)

// Renderer composites surfaces onto outputs.
type Renderer struct {
	opts options
	caps Caps

	device   *gpu.Device
	programs *shader.Cache[*gpu.Program]
	surfaces *resource.Manager
	outputs  map[OutputID]*output

	adapter gpucontext.AdapterInfo

	// missing latches the warning for permutations that failed to build.
	missing  map[shader.Key]bool
	fanColor int

	destroyed bool
}

// New creates a renderer on the device of provider. The provider must
// implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue. A provider that is also a gpucontext.DeviceProvider
// supplies the default output format.
func New(provider any, opts ...Option) (*Renderer, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoDevice
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoDevice)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	info := gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		if o.outputFormat == gputypes.TextureFormatUndefined {
			o.outputFormat = dp.SurfaceFormat()
		}
		info = dp.AdapterInfo()
	}

	r, err := newRenderer(device, queue, o)
	if err != nil {
		return nil, err
	}
	r.adapter = info
	slogger().Info("wlrender: using shared device",
		slog.String("adapter", info.Name),
		slog.String("type", info.Type.String()))
	return r, nil
}

// NewWithDevice creates a renderer on an already opened HAL device.
func NewWithDevice(device hal.Device, queue hal.Queue, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newRenderer(device, queue, o)
}

func newRenderer(device hal.Device, queue hal.Queue, o options) (*Renderer, error) {
	if o.outputFormat == gputypes.TextureFormatUndefined {
		o.outputFormat = gputypes.TextureFormatBGRA8Unorm
	}
	if _, ok := gpu.FormatFromWGPU(o.outputFormat); !ok {
		return nil, fmt.Errorf("%w: output format %s", ErrUnsupportedFormat, o.outputFormat)
	}
	caps := DefaultCaps()
	if o.caps != nil {
		caps = *o.caps
	}

	d, err := gpu.NewDevice(device, queue, gpu.DeviceConfig{SPIRV: o.spirv, BudgetMB: o.budgetMB})
	if err != nil {
		return nil, fmt.Errorf("wlrender: create device: %w", err)
	}
	d.AddTargetFormat(o.outputFormat)
	if o.colorManaged {
		d.AddTargetFormat(gpu.TextureFormatRGBA16F.ToWGPUFormat())
	}

	programs := shader.NewCache[*gpu.Program](d,
		shader.Features{External: caps.ExternalImage, Debug: o.shaderDebug},
		shader.WithValidation(o.validate))
	required := []shader.Key{keyBorder, keySolid}
	if o.colorManaged {
		required = append(required, keyEncode)
	}
	for _, k := range required {
		if _, ok := programs.Lookup(k); !ok {
			programs.Destroy()
			d.Destroy()
			return nil, fmt.Errorf("%w: %s", ErrShaderSetup, k)
		}
	}

	r := &Renderer{
		opts:     o,
		caps:     caps,
		device:   d,
		programs: programs,
		surfaces: resource.NewManager(d, resource.Config{
			ColorManaged:   o.colorManaged,
			SubImageUpload: caps.SubImageUpload,
			ExternalImage:  caps.ExternalImage,
			SRGBImport:     caps.ImageSRGB,
		}),
		outputs: make(map[OutputID]*output),
		missing: make(map[shader.Key]bool),
		adapter: gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown},
	}
	slogger().Info("wlrender: renderer created",
		slog.Int("permutations", programs.Len()),
		slog.Int("failed", programs.Failed()),
		slog.Bool("color_managed", o.colorManaged),
		slog.String("format", o.outputFormat.String()),
		slog.Int("damage_depth", o.damageDepth))
	return r, nil
}

// Caps returns the capabilities the renderer was created with.
func (r *Renderer) Caps() Caps { return r.caps }

// Adapter returns the adapter reported by a gpucontext provider.
func (r *Renderer) Adapter() gpucontext.AdapterInfo { return r.adapter }

// ColorManaged reports whether outputs blend in linear light.
func (r *Renderer) ColorManaged() bool { return r.opts.colorManaged }

// Memory returns texture memory statistics.
func (r *Renderer) Memory() MemoryStats { return r.device.Memory() }

// Uploads returns texture upload statistics.
func (r *Renderer) Uploads() UploadStats { return r.surfaces.Stats() }

// Attach binds buf to a surface. A nil buf detaches the current buffer;
// the surface is skipped until the next attach.
func (r *Renderer) Attach(id SurfaceID, buf Buffer) error {
	if r.destroyed {
		return ErrDestroyed
	}
	return r.surfaces.Attach(id, buf)
}

// FlushDamage records surface-local damage. Textures of surfaces that are
// not on the primary plane are uploaded lazily by the next repaint that
// draws them.
func (r *Renderer) FlushDamage(id SurfaceID, damage region.Region, onPrimaryPlane bool) error {
	if r.destroyed {
		return ErrDestroyed
	}
	return r.surfaces.FlushDamage(id, damage, onPrimaryPlane)
}

// SurfaceSetColor turns a surface into a solid fill. The components are
// premultiplied.
func (r *Renderer) SurfaceSetColor(id SurfaceID, red, green, blue, alpha float32) {
	if r.destroyed {
		return
	}
	r.surfaces.SetColor(id, red, green, blue, alpha)
}

// SurfaceDestroy releases the textures of a surface. It is safe to call
// more than once and after Destroy.
func (r *Renderer) SurfaceDestroy(id SurfaceID) {
	if r.destroyed {
		return
	}
	r.surfaces.Destroy(id)
}

// ToggleShaderDebug flips the shader debug tint, rebuilds every program
// and damages all outputs. It returns the new state.
func (r *Renderer) ToggleShaderDebug() bool {
	r.SetShaderDebug(!r.programs.Features().Debug)
	return r.programs.Features().Debug
}

// SetShaderDebug enables or disables the shader debug tint.
func (r *Renderer) SetShaderDebug(on bool) {
	if r.destroyed || r.programs.Features().Debug == on {
		return
	}
	r.programs.SetDebug(on)
	clear(r.missing)
	r.damageAll()
	slogger().Info("wlrender: shader table rebuilt",
		slog.Bool("debug", on),
		slog.Int("permutations", r.programs.Len()))
}

// SetFanDebug enables or disables triangle outlines.
func (r *Renderer) SetFanDebug(on bool) {
	if r.opts.fanDebug == on {
		return
	}
	r.opts.fanDebug = on
	r.damageAll()
}

func (r *Renderer) damageAll() {
	for _, o := range r.outputs {
		o.forceFull = true
	}
}

// ProgramInfo describes one slot of the permutation table.
type ProgramInfo struct {
	Name          string
	Constructible bool
	Built         bool
	Pipelines     int
}

// Programs lists every permutation slot in table order.
func (r *Renderer) Programs() []ProgramInfo {
	f := r.programs.Features()
	out := make([]ProgramInfo, 0, shader.Permutations)
	for i := 0; i < shader.Permutations; i++ {
		k := shader.KeyAt(i)
		info := ProgramInfo{Name: k.String(), Constructible: shader.Constructible(k, f)}
		if p, ok := r.programs.Lookup(k); ok {
			info.Built = true
			info.Pipelines = p.Pipelines()
		}
		out = append(out, info)
	}
	return out
}

// ProgramGLSL returns the fragment shader of the named permutation, for
// example "rgba/blend/none", translated to GLSL ES 3.00 with WithGLES or
// desktop GLSL 3.30 otherwise.
func (r *Renderer) ProgramGLSL(name string) (string, error) {
	k, err := shader.ParseKey(name)
	if err != nil {
		return "", err
	}
	src, ok := shader.Source(k, r.programs.Features())
	if !ok {
		return "", fmt.Errorf("wlrender: permutation %s is not constructible", k)
	}
	return shader.TranslateGLSL(src, shader.FragmentEntry, r.opts.gles)
}

// program returns the program for k, or false after logging once when the
// slot failed to build.
func (r *Renderer) program(k shader.Key) (*gpu.Program, bool) {
	p, ok := r.programs.Lookup(k)
	if !ok && !r.missing[k] {
		r.missing[k] = true
		slogger().Warn("wlrender: permutation unavailable, skipping draws", slog.String("key", k.String()))
	}
	return p, ok
}

// Destroy releases every output, surface and program. Further calls are
// no-ops.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	for id := range r.outputs {
		r.OutputDestroy(id)
	}
	r.surfaces.DestroyAll()
	r.programs.Destroy()
	r.device.Destroy()
	slogger().Info("wlrender: renderer destroyed")
}
