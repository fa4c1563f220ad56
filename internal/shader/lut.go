package shader

import "github.com/gogpu/wlrender/internal/color"

// Lookup table widths. Decode maps 8-bit sRGB codes, encode maps
// linear values quantized to 12 bits.
const (
	DecodeLUTSize = 256
	EncodeLUTSize = 4096
)

// DecodeLUT returns the sRGB to linear table.
func DecodeLUT() []float32 {
	return color.DecodeTable(DecodeLUTSize)
}

// EncodeLUT returns the linear to sRGB table.
func EncodeLUT() []float32 {
	return color.EncodeTable(EncodeLUTSize)
}
