// Package gpu drives the WebGPU HAL for the compositor: shared layouts,
// samplers and lookup tables, texture lifetime, per-permutation render
// pipelines, frame encoding and presentation targets.
//
// Everything here assumes a single goroutine owns the Device, matching
// the compositor's event loop.
package gpu
