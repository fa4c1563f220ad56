package gpu

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the WebGPU BytesPerRow requirement for
// texture-to-buffer copies.
const copyPitchAlignment = 256

// ReadTexture copies rectangle r of tex into tightly packed rows of bpp
// bytes per pixel. The texture must have been rendered to.
func (d *Device) ReadTexture(tex hal.Texture, r image.Rectangle, bpp int) ([]byte, error) {
	if r.Empty() {
		return nil, nil
	}
	w, h := r.Dx(), r.Dy()
	bytesPerRow := uint32(w * bpp) //nolint:gosec // G115: caller validated the rectangle
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	staging, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "wlr_readback",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.dev.DestroyBuffer(staging)

	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "wlr_readback"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("wlr_readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	// After rendering the texture is in attachment layout; copies need
	// CopySrc. No-op on backends without explicit layouts.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	//nolint:gosec // G115: rectangle validated by caller
	encoder.CopyTextureToBuffer(tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: alignedBytesPerRow, RowsPerImage: uint32(h)},
		TextureBase: hal.ImageCopyTexture{
			Texture: tex,
			Origin:  hal.Origin3D{X: uint32(r.Min.X), Y: uint32(r.Min.Y)},
		},
		Size: hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)

	if _, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err := d.dev.WaitIdle(); err != nil {
		return nil, fmt.Errorf("wait for GPU: %w", err)
	}

	mapping, err := d.dev.MapBuffer(staging, 0, stagingSize)
	if err != nil {
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	defer func() { _ = d.dev.UnmapBuffer(staging) }()
	src := unsafe.Slice((*byte)(mapping.Ptr), stagingSize)

	out := make([]byte, int(bytesPerRow)*h)
	for row := 0; row < h; row++ {
		copy(out[row*int(bytesPerRow):(row+1)*int(bytesPerRow)], src[row*int(alignedBytesPerRow):])
	}
	return out, nil
}
