package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/wlrender/internal/clip"
	"github.com/gogpu/wlrender/internal/shader"
)

// uniformStride is the distance between per-draw uniform blocks; it
// satisfies minUniformBufferOffsetAlignment on every backend.
const uniformStride = 256

// ErrNoTarget is returned when a pass has no color attachment.
var ErrNoTarget = errors.New("gpu: pass has no target view")

// Draw is one draw call: a vertex list rendered with one program.
type Draw struct {
	Program *Program

	// Blend selects the premultiplied blending pipeline.
	Blend bool

	// Lines draws Vertices as a line list instead of triangles.
	Lines bool

	Vertices []clip.Vertex

	// Planes are bound to tex0..tex2 in order.
	Planes []*Texture

	// Linear selects bilinear filtering instead of nearest.
	Linear bool

	// Color is the premultiplied solid color.
	Color [4]float32

	// Alpha scales the output of transparent permutations.
	Alpha float32
}

// Pass renders a list of draws into one target view.
type Pass struct {
	Label  string
	View   hal.TextureView
	Format gputypes.TextureFormat
	Width  int
	Height int

	// Projection maps global coordinates to clip space.
	Projection f32.Mat4

	// Clear clears the target before drawing when non-nil.
	Clear *gputypes.Color

	Draws []Draw
}

// PassStats describes what a pass submitted.
type PassStats struct {
	Draws    int
	Vertices int
	// ProgramBinds counts program switches only. A program has several
	// pipelines, so it is informational and never gates a bind.
	ProgramBinds int
	// PipelineBinds counts SetPipeline calls, the state actually
	// suppressed between consecutive draws.
	PipelineBinds int
}

type pipelineBinding struct {
	program *Program
	blend   bool
	lines   bool
}

type passResources struct {
	vertBuf    hal.Buffer
	uniformBuf hal.Buffer
	groups     []hal.BindGroup
}

func (r *passResources) destroy(device hal.Device) {
	for _, g := range r.groups {
		device.DestroyBindGroup(g)
	}
	if r.uniformBuf != nil {
		device.DestroyBuffer(r.uniformBuf)
	}
	if r.vertBuf != nil {
		device.DestroyBuffer(r.vertBuf)
	}
}

// Render encodes p, submits it and waits for completion.
func (d *Device) Render(p *Pass) (PassStats, error) {
	var stats PassStats
	if p.View == nil {
		return stats, ErrNoTarget
	}
	d.AddTargetFormat(p.Format)

	res := &passResources{}
	defer res.destroy(d.dev)

	if err := d.prepare(p, res); err != nil {
		return stats, err
	}

	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: p.Label})
	if err != nil {
		return stats, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(p.Label); err != nil {
		return stats, fmt.Errorf("begin encoding: %w", err)
	}

	load := gputypes.LoadOpLoad
	var clearValue gputypes.Color
	if p.Clear != nil {
		load = gputypes.LoadOpClear
		clearValue = *p.Clear
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: p.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       p.View,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: clearValue,
		}},
	})
	//nolint:gosec // G115: target dimensions are positive
	rp.SetViewport(0, 0, float32(p.Width), float32(p.Height), 0, 1)

	var programs shader.Binder[*Program]
	var pipelines shader.Binder[pipelineBinding]
	var offset uint64
	for i := range p.Draws {
		dr := &p.Draws[i]
		n := len(dr.Vertices)
		if n == 0 {
			continue
		}
		pl, err := dr.Program.pipeline(p.Format, dr.Blend, dr.Lines)
		if err != nil {
			rp.End()
			encoder.DiscardEncoding()
			return stats, err
		}
		programs.Use(dr.Program) // counted for stats
		if pipelines.Use(pipelineBinding{dr.Program, dr.Blend, dr.Lines}) {
			rp.SetPipeline(pl)
		}
		rp.SetBindGroup(shader.GroupUniforms, res.groups[2*i], nil)
		rp.SetBindGroup(shader.GroupTextures, res.groups[2*i+1], nil)
		rp.SetBindGroup(shader.GroupLUT, d.lutGroup, nil)
		rp.SetVertexBuffer(0, res.vertBuf, offset)
		rp.Draw(uint32(n), 1, 0, 0) //nolint:gosec // G115: fan vertex counts are small
		offset += uint64(n) * vertexStride
		stats.Draws++
		stats.Vertices += n
	}
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return stats, fmt.Errorf("end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)

	if _, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return stats, fmt.Errorf("submit: %w", err)
	}
	if err := d.dev.WaitIdle(); err != nil {
		return stats, fmt.Errorf("wait for GPU: %w", err)
	}

	stats.ProgramBinds = programs.Binds()
	stats.PipelineBinds = pipelines.Binds()
	return stats, nil
}

// prepare uploads vertices and uniforms and creates the per-draw bind
// groups. groups[2i] and groups[2i+1] belong to draw i.
func (d *Device) prepare(p *Pass, res *passResources) error {
	if len(p.Draws) == 0 {
		return nil
	}
	var total int
	for i := range p.Draws {
		total += len(p.Draws[i].Vertices)
	}

	if total > 0 {
		verts := make([]byte, 0, total*vertexStride)
		for i := range p.Draws {
			for _, v := range p.Draws[i].Vertices {
				verts = appendVertex(verts, v)
			}
		}
		buf, err := d.upload("wlr_vertices", verts, gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
		if err != nil {
			return err
		}
		res.vertBuf = buf
	}

	uniforms := make([]byte, len(p.Draws)*uniformStride)
	for i := range p.Draws {
		writeUniforms(uniforms[i*uniformStride:], p.Projection, &p.Draws[i])
	}
	buf, err := d.upload("wlr_uniforms", uniforms, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	res.uniformBuf = buf

	for i := range p.Draws {
		ug, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:  "wlr_uniform_group",
			Layout: d.uniformLayout,
			Entries: []gputypes.BindGroupEntry{{
				Binding: 0,
				Resource: gputypes.BufferBinding{
					Buffer: res.uniformBuf.NativeHandle(),
					Offset: uint64(i) * uniformStride, //nolint:gosec // G115: index is non-negative
					Size:   shader.UniformSize,
				},
			}},
		})
		if err != nil {
			return fmt.Errorf("create uniform bind group: %w", err)
		}
		res.groups = append(res.groups, ug)

		tg, err := d.textureGroup(&p.Draws[i])
		if err != nil {
			return err
		}
		res.groups = append(res.groups, tg)
	}
	return nil
}

func (d *Device) textureGroup(dr *Draw) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, 0, 4)
	for slot := 0; slot < 3; slot++ {
		t := d.blank
		if slot < len(dr.Planes) && dr.Planes[slot] != nil && !dr.Planes[slot].IsReleased() {
			t = dr.Planes[slot]
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(slot), //nolint:gosec // G115: slot < 3
			Resource: gputypes.TextureViewBinding{TextureView: t.view.NativeHandle()},
		})
	}
	sampler := d.nearest
	if dr.Linear {
		sampler = d.linear
	}
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  shader.BindingSampler,
		Resource: gputypes.SamplerBinding{Sampler: sampler.NativeHandle()},
	})
	g, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "wlr_texture_group",
		Layout:  d.textureLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture bind group: %w", err)
	}
	return g, nil
}

func (d *Device) upload(label string, data []byte, usage gputypes.BufferUsage) (hal.Buffer, error) {
	buf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		d.dev.DestroyBuffer(buf)
		return nil, fmt.Errorf("write %s: %w", label, err)
	}
	return buf, nil
}

func appendVertex(dst []byte, v clip.Vertex) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Pos.X)))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Pos.Y)))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Tex.X)))
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(float32(v.Tex.Y)))
	return dst
}

// writeUniforms packs the Uniforms block. WGSL matrices are column-major
// while f32.Mat4 is row-major.
func writeUniforms(buf []byte, m f32.Mat4, dr *Draw) {
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			binary.LittleEndian.PutUint32(buf[shader.UniformProjection+(c*4+r)*4:], math.Float32bits(m[r*4+c]))
		}
	}
	for i, v := range dr.Color {
		binary.LittleEndian.PutUint32(buf[shader.UniformColor+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[shader.UniformAlpha:], math.Float32bits(dr.Alpha))
}

// Ortho returns the projection mapping the global rectangle with origin
// (x, y) and size w×h onto clip space, y pointing down.
func Ortho(x, y, w, h float64) f32.Mat4 {
	sx := 2 / w
	sy := -2 / h
	return f32.Mat4{
		float32(sx), 0, 0, float32(-1 - x*sx),
		0, float32(sy), 0, float32(1 - y*sy),
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}
