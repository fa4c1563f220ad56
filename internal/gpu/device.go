package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wlrender/internal/shader"
)

// ErrNilDevice is returned when a Device is created without a HAL device
// or queue.
var ErrNilDevice = errors.New("gpu: nil device or queue")

// DeviceConfig configures a Device.
type DeviceConfig struct {
	// SPIRV precompiles every WGSL module to SPIR-V with naga before
	// handing it to the HAL.
	SPIRV bool

	// BudgetMB caps texture memory. Zero is unlimited.
	BudgetMB int
}

// Device owns the objects shared by every program and frame.
type Device struct {
	dev   hal.Device
	queue hal.Queue
	cfg   DeviceConfig

	uniformLayout  hal.BindGroupLayout
	textureLayout  hal.BindGroupLayout
	lutLayout      hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	vertexModule   hal.ShaderModule

	nearest hal.Sampler
	linear  hal.Sampler

	decodeLUT *Texture
	encodeLUT *Texture
	lutGroup  hal.BindGroup

	// blank fills plane slots the active permutation does not sample.
	blank *Texture

	formats []gputypes.TextureFormat
	memory  *memoryTracker
}

// NewDevice creates the shared layouts, samplers and lookup tables.
func NewDevice(dev hal.Device, queue hal.Queue, cfg DeviceConfig) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, ErrNilDevice
	}
	d := &Device{
		dev:    dev,
		queue:  queue,
		cfg:    cfg,
		memory: newMemoryTracker(cfg.BudgetMB),
	}
	if err := d.init(); err != nil {
		d.Destroy()
		return nil, err
	}
	slogger().Debug("gpu: device ready", slog.Bool("spirv", cfg.SPIRV), slog.Int("budget_mb", cfg.BudgetMB))
	return d, nil
}

func (d *Device) init() error {
	var err error
	d.uniformLayout, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "wlr_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}

	planeEntry := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		}
	}
	d.textureLayout, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "wlr_texture_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			planeEntry(0),
			planeEntry(1),
			planeEntry(2),
			{
				Binding:    shader.BindingSampler,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create texture layout: %w", err)
	}

	lutEntry := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeUnfilterableFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		}
	}
	d.lutLayout, err = d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "wlr_lut_layout",
		Entries: []gputypes.BindGroupLayoutEntry{lutEntry(shader.BindingDecodeLUT), lutEntry(shader.BindingEncodeLUT)},
	})
	if err != nil {
		return fmt.Errorf("create lut layout: %w", err)
	}

	d.pipelineLayout, err = d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "wlr_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.uniformLayout, d.textureLayout, d.lutLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	d.vertexModule, err = d.createModule("wlr_vertex", shader.VertexSource)
	if err != nil {
		return fmt.Errorf("compile vertex shader: %w", err)
	}

	if d.nearest, err = d.createSampler("wlr_nearest", gputypes.FilterModeNearest); err != nil {
		return err
	}
	if d.linear, err = d.createSampler("wlr_linear", gputypes.FilterModeLinear); err != nil {
		return err
	}

	if d.decodeLUT, err = d.createLUT("wlr_decode_lut", shader.DecodeLUT()); err != nil {
		return err
	}
	if d.encodeLUT, err = d.createLUT("wlr_encode_lut", shader.EncodeLUT()); err != nil {
		return err
	}
	d.lutGroup, err = d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "wlr_lut_group",
		Layout: d.lutLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: shader.BindingDecodeLUT, Resource: gputypes.TextureViewBinding{TextureView: d.decodeLUT.view.NativeHandle()}},
			{Binding: shader.BindingEncodeLUT, Resource: gputypes.TextureViewBinding{TextureView: d.encodeLUT.view.NativeHandle()}},
		},
	})
	if err != nil {
		return fmt.Errorf("create lut bind group: %w", err)
	}

	d.blank, err = d.CreateTexture(TextureConfig{Width: 1, Height: 1, Format: TextureFormatRGBA8, Label: "wlr_blank"})
	if err != nil {
		return err
	}
	return d.blank.Upload([]byte{0, 0, 0, 0}, 4, image.Rect(0, 0, 1, 1))
}

// createModule builds a shader module from WGSL, optionally through
// naga's SPIR-V backend.
func (d *Device) createModule(label, src string) (hal.ShaderModule, error) {
	source := hal.ShaderSource{WGSL: src}
	if d.cfg.SPIRV {
		words, err := shader.CompileSPIRV(src)
		if err != nil {
			return nil, err
		}
		source = hal.ShaderSource{SPIRV: words}
	}
	return d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: source})
}

func (d *Device) createSampler(label string, filter gputypes.FilterMode) (hal.Sampler, error) {
	s, err := d.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
		Anisotropy:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler %s: %w", label, err)
	}
	return s, nil
}

func (d *Device) createLUT(label string, values []float32) (*Texture, error) {
	t, err := d.CreateTexture(TextureConfig{Width: len(values), Height: 1, Format: TextureFormatR32F, Label: label})
	if err != nil {
		return nil, err
	}
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	if err := t.Upload(data, len(data), image.Rect(0, 0, len(values), 1)); err != nil {
		t.Close()
		return nil, fmt.Errorf("upload %s: %w", label, err)
	}
	return t, nil
}

// HAL returns the underlying HAL device.
func (d *Device) HAL() hal.Device { return d.dev }

// Queue returns the underlying HAL queue.
func (d *Device) Queue() hal.Queue { return d.queue }

// Memory returns texture memory statistics.
func (d *Device) Memory() MemoryStats { return d.memory.snapshot() }

// AddTargetFormat registers a render target format. Programs compiled
// afterwards create their pipelines for it eagerly; existing programs
// create them on first use.
func (d *Device) AddTargetFormat(f gputypes.TextureFormat) {
	for _, have := range d.formats {
		if have == f {
			return
		}
	}
	d.formats = append(d.formats, f)
}

// TargetFormats returns the registered render target formats.
func (d *Device) TargetFormats() []gputypes.TextureFormat {
	return append([]gputypes.TextureFormat(nil), d.formats...)
}

// Destroy releases every shared object. Programs and textures created
// from d must be released first.
func (d *Device) Destroy() {
	if d.dev == nil {
		return
	}
	if d.lutGroup != nil {
		d.dev.DestroyBindGroup(d.lutGroup)
		d.lutGroup = nil
	}
	d.blank.Close()
	d.decodeLUT.Close()
	d.encodeLUT.Close()
	if d.linear != nil {
		d.dev.DestroySampler(d.linear)
		d.linear = nil
	}
	if d.nearest != nil {
		d.dev.DestroySampler(d.nearest)
		d.nearest = nil
	}
	if d.vertexModule != nil {
		d.dev.DestroyShaderModule(d.vertexModule)
		d.vertexModule = nil
	}
	if d.pipelineLayout != nil {
		d.dev.DestroyPipelineLayout(d.pipelineLayout)
		d.pipelineLayout = nil
	}
	for _, l := range []*hal.BindGroupLayout{&d.lutLayout, &d.textureLayout, &d.uniformLayout} {
		if *l != nil {
			d.dev.DestroyBindGroupLayout(*l)
			*l = nil
		}
	}
}
