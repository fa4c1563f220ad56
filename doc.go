// Package wlrender is the GPU compositing backend of a Wayland compositor.
//
// # Overview
//
// A Renderer turns the views of an output, each backed by a client
// buffer, plus the damage accumulated since the last frame into draw
// calls on a WebGPU HAL device, and presents the result. Repaints are
// minimised with buffer-age damage tracking: only the pixels that differ
// between the back buffer and the current scene are drawn.
//
// # Quick Start
//
//	r, err := wlrender.New(provider) // provider exposes HalDevice()/HalQueue()
//	if err != nil {
//	    return err
//	}
//	defer r.Destroy()
//
//	// Headless output backed by a two-buffer swapchain.
//	_ = r.OutputCreate(1, nil, wlrender.OutputConfig{Rect: image.Rect(0, 0, 1920, 1080)})
//
//	_ = r.Attach(surfaceID, shmBuffer)
//	_ = r.FlushDamage(surfaceID, region.Rect(0, 0, 64, 64), true)
//
//	damage := region.Rect(0, 0, 1920, 1080)
//	_ = r.RepaintOutput(1, views, &damage)
//
// # Architecture
//
// The package is organized into:
//   - Public API: Renderer, View, OutputConfig, buffer collaborator interfaces
//   - region: pixel regions used for every damage argument
//   - internal/clip: clipping of transformed surface quads into triangle fans
//   - internal/shader: fragment shader permutations and the program table
//   - internal/resource: per-surface textures, uploads and imports
//   - internal/damage: the per-output buffer-age damage ring
//   - internal/gpu: programs, passes, swapchains and readback on gogpu/wgpu
//
// # Threading
//
// A Renderer is not safe for concurrent use. All calls are expected from
// the compositor's repaint thread.
//
// # Logging
//
// wlrender is silent by default. Call SetLogger to receive diagnostics.
package wlrender
