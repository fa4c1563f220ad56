package wlrender

import (
	"errors"

	"github.com/gogpu/wlrender/internal/resource"
)

var (
	// ErrNoDevice is returned by New when the provider does not expose
	// a HAL device and queue.
	ErrNoDevice = errors.New("wlrender: provider does not expose a HAL device")

	// ErrShaderSetup is returned by New when a permutation every frame
	// depends on could not be built.
	ErrShaderSetup = errors.New("wlrender: required shader permutation unavailable")

	// ErrFrameSkipped wraps per-frame failures. The renderer stays
	// usable and the next repaint retries.
	ErrFrameSkipped = errors.New("wlrender: frame skipped")

	ErrUnknownOutput     = errors.New("wlrender: unknown output")
	ErrOutputExists      = errors.New("wlrender: output already exists")
	ErrUnsupportedFormat = errors.New("wlrender: unsupported pixel format")
	ErrOutOfBounds       = errors.New("wlrender: rectangle outside the output")
	ErrShortBuffer       = errors.New("wlrender: destination buffer too small")
	ErrDestroyed         = errors.New("wlrender: renderer destroyed")
)

// Errors returned by Attach.
var (
	ErrUnsupportedSHMFormat = resource.ErrUnsupportedFormat
	ErrUnsupportedLayout    = resource.ErrUnsupportedLayout
	ErrImportFailed         = resource.ErrImportFailed
	ErrUnknownBuffer        = resource.ErrUnknownBuffer
)
