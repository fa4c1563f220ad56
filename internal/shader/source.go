package shader

import "strings"

// UniformSize is the byte size of the Uniforms block shared by the
// vertex and fragment stages: a column-major mat4x4, a vec4 color and
// the alpha scalar, padded to 16 bytes.
const UniformSize = 64 + 16 + 16

// Offsets inside the uniform block.
const (
	UniformProjection = 0
	UniformColor      = 64
	UniformAlpha      = 80
)

// Bind group indices.
const (
	GroupUniforms = 0
	GroupTextures = 1
	GroupLUT      = 2
)

// LUT binding slots inside GroupLUT.
const (
	BindingDecodeLUT = 0
	BindingEncodeLUT = 1
)

// BindingSampler is the sampler slot inside GroupTextures; planes use
// bindings 0..2.
const BindingSampler = 3

// Entry points.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

const uniformsDecl = `struct Uniforms {
    projection: mat4x4<f32>,
    color: vec4<f32>,
    alpha: f32,
}

@group(0) @binding(0) var<uniform> u: Uniforms;
`

// VertexSource is the shared vertex stage. Positions are in output
// pixels, projected by the uniform matrix.
const VertexSource = uniformsDecl + `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) texcoord: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec2<f32>, @location(1) texcoord: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = u.projection * vec4<f32>(position, 0.0, 1.0);
    out.texcoord = texcoord;
    return out;
}
`

var planeDecls = [3]string{
	"@group(1) @binding(0) var tex0: texture_2d<f32>;\n",
	"@group(1) @binding(1) var tex1: texture_2d<f32>;\n",
	"@group(1) @binding(2) var tex2: texture_2d<f32>;\n",
}

const samplerDecl = "@group(1) @binding(3) var samp: sampler;\n"

const decodeDecl = `
@group(2) @binding(0) var decode_lut: texture_2d<f32>;

fn srgb_decode(c: vec3<f32>) -> vec3<f32> {
    let i = vec3<i32>(clamp(c, vec3<f32>(0.0), vec3<f32>(1.0)) * 255.0 + vec3<f32>(0.5));
    return vec3<f32>(
        textureLoad(decode_lut, vec2<i32>(i.x, 0), 0).r,
        textureLoad(decode_lut, vec2<i32>(i.y, 0), 0).r,
        textureLoad(decode_lut, vec2<i32>(i.z, 0), 0).r);
}
`

const encodeDecl = `
@group(2) @binding(1) var encode_lut: texture_2d<f32>;

fn srgb_encode(c: vec3<f32>) -> vec3<f32> {
    let i = vec3<i32>(clamp(c, vec3<f32>(0.0), vec3<f32>(1.0)) * 4095.0 + vec3<f32>(0.5));
    return vec3<f32>(
        textureLoad(encode_lut, vec2<i32>(i.x, 0), 0).r,
        textureLoad(encode_lut, vec2<i32>(i.y, 0), 0).r,
        textureLoad(encode_lut, vec2<i32>(i.z, 0), 0).r);
}
`

const yuvToRGB = `    yuv = vec3<f32>(1.16438356 * (yuv.x - 0.0625), yuv.yz - vec2<f32>(0.5));
    color = vec4<f32>(
        yuv.x + 1.59602678 * yuv.z,
        yuv.x - 0.39176229 * yuv.y - 0.81296764 * yuv.z,
        yuv.x + 2.01723214 * yuv.y,
        1.0);
`

// builder collects the three sections of a fragment module. Each
// stage of a permutation appends to the lists it needs; the module is
// their concatenation in order.
type builder struct {
	directives []string
	globals    []string
	body       []string
}

func (b *builder) String() string {
	var sb strings.Builder
	for _, d := range b.directives {
		sb.WriteString(d)
	}
	for _, g := range b.globals {
		sb.WriteString(g)
	}
	sb.WriteString("\nstruct FragmentInput {\n    @location(0) texcoord: vec2<f32>,\n}\n")
	sb.WriteString("\n@fragment\nfn fs_main(in: FragmentInput) -> @location(0) vec4<f32> {\n")
	sb.WriteString("    var color: vec4<f32>;\n")
	for _, s := range b.body {
		sb.WriteString(s)
	}
	sb.WriteString("    return color;\n}\n")
	return sb.String()
}

// Source returns the fragment module for k, or false when k is not
// constructible under f.
func Source(k Key, f Features) (string, bool) {
	if !Constructible(k, f) {
		return "", false
	}

	b := &builder{}
	b.directives = append(b.directives, "// fragment "+k.String()+"\n")
	b.globals = append(b.globals, uniformsDecl)

	planes := k.Input.Planes()
	for i := 0; i < planes; i++ {
		b.globals = append(b.globals, planeDecls[i])
	}
	if planes > 0 {
		b.globals = append(b.globals, samplerDecl)
	}

	switch k.Input {
	case InputRGBX:
		b.body = append(b.body, "    color = vec4<f32>(textureSample(tex0, samp, in.texcoord).rgb, 1.0);\n")
	case InputRGBA, InputExternal:
		b.body = append(b.body, "    color = textureSample(tex0, samp, in.texcoord);\n")
	case InputYUV:
		b.body = append(b.body,
			"    let p0 = textureSample(tex0, samp, in.texcoord);\n",
			"    let p1 = textureSample(tex1, samp, in.texcoord);\n",
			"    var yuv = vec3<f32>(p0.x, p1.x, p1.y);\n",
			yuvToRGB)
	case InputYUVPlanar:
		b.body = append(b.body,
			"    let p0 = textureSample(tex0, samp, in.texcoord);\n",
			"    let p1 = textureSample(tex1, samp, in.texcoord);\n",
			"    let p2 = textureSample(tex2, samp, in.texcoord);\n",
			"    var yuv = vec3<f32>(p0.x, p1.x, p2.x);\n",
			yuvToRGB)
	case InputYXUXV:
		b.body = append(b.body,
			"    let p0 = textureSample(tex0, samp, in.texcoord);\n",
			"    let p1 = textureSample(tex1, samp, in.texcoord);\n",
			"    var yuv = vec3<f32>(p0.x, p1.y, p1.w);\n",
			yuvToRGB)
	case InputSolid:
		b.body = append(b.body, "    color = u.color;\n")
	}

	if k.Conversion == ConversionFromSRGB {
		b.globals = append(b.globals, decodeDecl)
		if k.Input.Transparent() {
			b.body = append(b.body,
				"    if (color.a > 0.0) {\n",
				"        color = vec4<f32>(srgb_decode(color.rgb / color.a) * color.a, color.a);\n",
				"    }\n")
		} else {
			b.body = append(b.body, "    color = vec4<f32>(srgb_decode(color.rgb), color.a);\n")
		}
	}

	switch k.Output {
	case OutputBlend:
	case OutputTransparent:
		b.body = append(b.body, "    color = color * u.alpha;\n")
	case OutputToSRGB:
		b.globals = append(b.globals, encodeDecl)
		b.body = append(b.body, "    color = vec4<f32>(srgb_encode(color.rgb), color.a);\n")
	}

	if f.Debug {
		b.body = append(b.body, "    color = vec4<f32>(0.0, 0.3, 0.0, 0.2) + color * 0.8;\n")
	}
	return b.String(), true
}

// UsesLUT reports which lookup tables the permutation binds.
func (k Key) UsesLUT() (decode, encode bool) {
	return k.Conversion == ConversionFromSRGB, k.Output == OutputToSRGB
}
