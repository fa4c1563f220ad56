package main

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"
)

// provider exposes an opened HAL device the way gpucontext hosts do.
type provider struct {
	instance hal.Instance
	dev      hal.Device
	queue    hal.Queue
	info     gputypes.AdapterInfo
	format   gputypes.TextureFormat
}

var _ gpucontext.DeviceProvider = (*provider)(nil)

func (p *provider) HalDevice() any                        { return p.dev }
func (p *provider) HalQueue() any                         { return p.queue }
func (p *provider) Device() gpucontext.Device             { return p.dev }
func (p *provider) Queue() gpucontext.Queue               { return p.queue }
func (p *provider) Adapter() gpucontext.Adapter           { return nil }
func (p *provider) SurfaceFormat() gputypes.TextureFormat { return p.format }

func (p *provider) AdapterInfo() gpucontext.AdapterInfo {
	t := gpucontext.AdapterTypeUnknown
	switch p.info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		t = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		t = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		t = gpucontext.AdapterTypeSoftware
	}
	return gpucontext.AdapterInfo{Name: p.info.Name, Type: t}
}

func (p *provider) Close() {
	if p.dev != nil {
		p.dev.Destroy()
	}
	if p.instance != nil {
		p.instance.Destroy()
	}
}

// openBackend opens the first adapter of a headless HAL backend.
func openBackend(name string, format gputypes.TextureFormat) (*provider, error) {
	var api hal.Backend
	switch name {
	case "noop":
		api = noop.API{}
	case "software":
		api = software.API{}
	default:
		return nil, fmt.Errorf("unknown backend %q (want noop or software)", name)
	}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create instance: %w", name, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%s: no adapters", name)
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%s: open device: %w", name, err)
	}
	return &provider{
		instance: instance,
		dev:      open.Device,
		queue:    open.Queue,
		info:     adapters[0].Info,
		format:   format,
	}, nil
}
