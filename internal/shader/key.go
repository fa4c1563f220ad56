// Package shader builds the fragment shader permutations used by the
// compositor and caches the compiled programs.
//
// A permutation is selected by three independent dimensions: how the
// source pixels are sampled (Input), what the draw produces (Output) and
// whether the samples are decoded from sRGB first (Conversion). Every
// combination has a fixed slot in a dense table so that lookups during
// a repaint never allocate.
package shader

import (
	"fmt"
	"strings"
)

// Input selects how source pixels are fetched.
type Input uint8

const (
	InputRGBX Input = iota
	InputRGBA
	InputExternal
	InputYUV
	InputYUVPlanar
	InputYXUXV
	InputSolid

	// InputCount is the number of input kinds.
	InputCount = 7
)

var inputNames = [InputCount]string{"rgbx", "rgba", "external", "y_uv", "y_u_v", "y_xuxv", "solid"}

func (i Input) String() string {
	if int(i) < len(inputNames) {
		return inputNames[i]
	}
	return fmt.Sprintf("Input(%d)", uint8(i))
}

// Planes returns how many textures the input samples.
func (i Input) Planes() int {
	switch i {
	case InputSolid:
		return 0
	case InputRGBX, InputRGBA, InputExternal:
		return 1
	case InputYUV, InputYXUXV:
		return 2
	case InputYUVPlanar:
		return 3
	}
	return 0
}

// Transparent reports whether the input carries premultiplied alpha.
func (i Input) Transparent() bool {
	return i == InputRGBA || i == InputExternal || i == InputSolid
}

// Output selects what the fragment writes.
type Output uint8

const (
	// OutputBlend writes the sample unchanged.
	OutputBlend Output = iota
	// OutputTransparent scales the sample by the view alpha.
	OutputTransparent
	// OutputToSRGB encodes a linear sample to sRGB.
	OutputToSRGB

	OutputCount = 3
)

var outputNames = [OutputCount]string{"blend", "transparent", "to_srgb"}

func (o Output) String() string {
	if int(o) < len(outputNames) {
		return outputNames[o]
	}
	return fmt.Sprintf("Output(%d)", uint8(o))
}

// Conversion selects an optional decode applied right after sampling.
type Conversion uint8

const (
	ConversionNone Conversion = iota
	ConversionFromSRGB

	ConversionCount = 2
)

func (c Conversion) String() string {
	switch c {
	case ConversionNone:
		return "none"
	case ConversionFromSRGB:
		return "from_srgb"
	}
	return fmt.Sprintf("Conversion(%d)", uint8(c))
}

// Permutations is the size of the program table.
const Permutations = InputCount * OutputCount * ConversionCount

// Key identifies one permutation.
type Key struct {
	Input      Input
	Output     Output
	Conversion Conversion
}

// Index returns the dense table slot of k.
func (k Key) Index() int {
	return int(k.Input) + int(k.Output)*InputCount + int(k.Conversion)*InputCount*OutputCount
}

func (k Key) String() string {
	return k.Input.String() + "/" + k.Output.String() + "/" + k.Conversion.String()
}

// ParseKey parses the form produced by Key.String, for example
// "rgba/transparent/from_srgb".
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("shader: malformed permutation %q", s)
	}
	in, ok := indexOf(inputNames[:], parts[0])
	if !ok {
		return Key{}, fmt.Errorf("shader: unknown input %q", parts[0])
	}
	out, ok := indexOf(outputNames[:], parts[1])
	if !ok {
		return Key{}, fmt.Errorf("shader: unknown output %q", parts[1])
	}
	k := Key{Input: Input(in), Output: Output(out)}
	switch parts[2] {
	case "none":
		k.Conversion = ConversionNone
	case "from_srgb":
		k.Conversion = ConversionFromSRGB
	default:
		return Key{}, fmt.Errorf("shader: unknown conversion %q", parts[2])
	}
	return k, nil
}

func indexOf(names []string, s string) (int, bool) {
	for i, n := range names {
		if n == s {
			return i, true
		}
	}
	return 0, false
}

// KeyAt is the inverse of Key.Index.
func KeyAt(i int) Key {
	return Key{
		Input:      Input(i % InputCount),
		Output:     Output(i / InputCount % OutputCount),
		Conversion: Conversion(i / (InputCount * OutputCount)),
	}
}

// Features describes the build environment of a permutation table.
type Features struct {
	// External reports support for platform-imported image inputs.
	External bool
	// Debug tints every fragment.
	Debug bool
}

// Constructible reports whether k has a program under f. Absent keys
// are never built and must never be selected.
func Constructible(k Key, f Features) bool {
	switch {
	case k.Input.Transparent() && k.Output == OutputToSRGB:
		return false
	case k.Conversion == ConversionFromSRGB && k.Output == OutputToSRGB:
		return false
	case k.Input == InputSolid && k.Conversion != ConversionNone:
		return false
	case k.Input == InputExternal && !f.External:
		return false
	}
	return true
}
