package gpu

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wlrender/internal/shader"
)

// vertexStride is the byte stride per vertex:
//
//	position (vec2<f32>) = 8 bytes (location 0)
//	texcoord (vec2<f32>) = 8 bytes (location 1)
const vertexStride = 16

type pipelineKey struct {
	format gputypes.TextureFormat
	blend  bool
	lines  bool
}

// Program is one compiled fragment permutation together with its render
// pipelines. A pipeline exists per target format, blend state and
// primitive topology.
type Program struct {
	dev       *Device
	key       shader.Key
	module    hal.ShaderModule
	pipelines map[pipelineKey]hal.RenderPipeline
}

var _ shader.Compiler[*Program] = (*Device)(nil)

// Compile creates the fragment module for k and the triangle pipelines
// for every registered target format.
func (d *Device) Compile(k shader.Key, fragment string) (*Program, error) {
	module, err := d.createModule("wlr_fragment_"+k.String(), fragment)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", k, err)
	}
	p := &Program{
		dev:       d,
		key:       k,
		module:    module,
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
	}
	for _, f := range d.formats {
		for _, blend := range []bool{false, true} {
			if _, err := p.pipeline(f, blend, false); err != nil {
				p.Destroy()
				return nil, err
			}
		}
	}
	return p, nil
}

// Key returns the permutation the program was built for.
func (p *Program) Key() shader.Key { return p.key }

// Pipelines returns how many pipelines have been created.
func (p *Program) Pipelines() int { return len(p.pipelines) }

func (p *Program) pipeline(format gputypes.TextureFormat, blend, lines bool) (hal.RenderPipeline, error) {
	pk := pipelineKey{format: format, blend: blend, lines: lines}
	if pl, ok := p.pipelines[pk]; ok {
		return pl, nil
	}

	var blendState *gputypes.BlendState
	if blend {
		premul := gputypes.BlendStatePremultiplied()
		blendState = &premul
	}
	topology := gputypes.PrimitiveTopologyTriangleList
	if lines {
		topology = gputypes.PrimitiveTopologyLineList
	}

	pl, err := p.dev.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("wlr_%s_%v_blend=%v_lines=%v", p.key, format, blend, lines),
		Layout: p.dev.pipelineLayout,
		Vertex: hal.VertexState{
			Module:     p.dev.vertexModule,
			EntryPoint: shader.VertexEntry,
			Buffers:    vertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.module,
			EntryPoint: shader.FragmentEntry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					Blend:     blendState,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline %s for %v: %w", p.key, format, err)
	}
	p.pipelines[pk] = pl
	slogger().Debug("gpu: pipeline created",
		slog.String("key", p.key.String()),
		slog.String("format", format.String()),
		slog.Bool("blend", blend),
		slog.Bool("lines", lines))
	return pl, nil
}

// Destroy releases the pipelines and the fragment module.
func (p *Program) Destroy() {
	for pk, pl := range p.pipelines {
		p.dev.dev.DestroyRenderPipeline(pl)
		delete(p.pipelines, pk)
	}
	if p.module != nil {
		p.dev.dev.DestroyShaderModule(p.module)
		p.module = nil
	}
}

func vertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: vertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}, // position
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1}, // texcoord
			},
		},
	}
}
