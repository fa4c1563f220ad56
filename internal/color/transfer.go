// Package color holds the sRGB transfer functions and the lookup tables
// the shaders sample for linear-light blending.
//
// References:
//   - sRGB: https://www.w3.org/Graphics/Color/sRGB
//   - GPU Gems 3, Chapter 24: https://developer.nvidia.com/gpugems/gpugems3/part-iv-image-effects/chapter-24-importance-being-linear
package color

import "math"

// SRGBToLinear converts an sRGB component to linear (EOTF).
// Formula: if s <= 0.04045: s/12.92; else: pow((s+0.055)/1.055, 2.4)
// Input and output are in range [0,1].
func SRGBToLinear(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}

// LinearToSRGB converts a linear component to sRGB (OETF).
// Formula: if l <= 0.0031308: l*12.92; else: 1.055*pow(l, 1/2.4)-0.055
// Input and output are in range [0,1].
func LinearToSRGB(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*math.Pow(l, 1.0/2.4) - 0.055
}

// DecodeTable samples SRGBToLinear at n evenly spaced codes in [0,1].
func DecodeTable(n int) []float32 {
	return table(n, SRGBToLinear)
}

// EncodeTable samples LinearToSRGB at n evenly spaced values in [0,1].
func EncodeTable(n int) []float32 {
	return table(n, LinearToSRGB)
}

func table(n int, f func(float64) float64) []float32 {
	if n < 2 {
		return nil
	}
	lut := make([]float32, n)
	last := float64(n - 1)
	for i := range lut {
		lut[i] = float32(f(float64(i) / last))
	}
	return lut
}
