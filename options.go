package wlrender

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/wlrender/internal/damage"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := wlrender.New(provider,
//	    wlrender.WithColorManagement(true),
//	    wlrender.WithBufferDamageCount(3))
type Option func(*options)

type options struct {
	colorManaged bool
	gles         bool
	validate     bool
	spirv        bool
	caps         *Caps
	damageDepth  int
	outputFormat gputypes.TextureFormat
	shaderDebug  bool
	fanDebug     bool
	budgetMB     int
}

func defaultOptions() options {
	return options{
		damageDepth:  damage.DefaultDepth,
		outputFormat: gputypes.TextureFormatUndefined,
	}
}

// WithColorManagement blends client content in linear light: surfaces
// are decoded from sRGB into an offscreen target which is encoded back
// to sRGB when copied to the output.
func WithColorManagement(on bool) Option {
	return func(o *options) {
		o.colorManaged = on
	}
}

// WithGLES selects GLSL ES 3.00 instead of desktop GLSL 3.30 for
// ProgramGLSL.
func WithGLES(on bool) Option {
	return func(o *options) {
		o.gles = on
	}
}

// WithShaderValidation runs every generated shader through the WGSL
// front-end before it reaches the device. Invalid permutations are
// logged with their source and left out of the program table.
func WithShaderValidation(on bool) Option {
	return func(o *options) {
		o.validate = on
	}
}

// WithSPIRV hands shaders to the device as SPIR-V compiled by naga
// instead of WGSL source.
func WithSPIRV(on bool) Option {
	return func(o *options) {
		o.spirv = on
	}
}

// WithCaps overrides the detected device capabilities.
func WithCaps(c Caps) Option {
	return func(o *options) {
		o.caps = &c
	}
}

// WithBufferDamageCount sets how many frames of damage each output
// remembers. Targets reporting a buffer age beyond it are fully
// redrawn. Values below 2 are raised to 2.
func WithBufferDamageCount(n int) Option {
	return func(o *options) {
		o.damageDepth = max(n, damage.DefaultDepth)
	}
}

// WithOutputFormat sets the pixel format of renderer-created targets.
func WithOutputFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		o.outputFormat = f
	}
}

// WithShaderDebug starts with every permutation tinted green.
func WithShaderDebug(on bool) Option {
	return func(o *options) {
		o.shaderDebug = on
	}
}

// WithFanDebug outlines every drawn triangle.
func WithFanDebug(on bool) Option {
	return func(o *options) {
		o.fanDebug = on
	}
}

// WithTextureBudget caps texture memory in megabytes. Zero is unlimited.
func WithTextureBudget(mb int) Option {
	return func(o *options) {
		o.budgetMB = mb
	}
}
