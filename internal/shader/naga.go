package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
)

// ErrInvalidSource is wrapped by every front-end failure.
var ErrInvalidSource = errors.New("shader: invalid source")

// Validate parses, lowers and validates a WGSL module.
func Validate(src string) error {
	ast, err := naga.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: parse: %w", ErrInvalidSource, err)
	}
	mod, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return fmt.Errorf("%w: lower: %w", ErrInvalidSource, err)
	}
	verrs, err := naga.Validate(mod)
	if err != nil {
		return fmt.Errorf("%w: validate: %w", ErrInvalidSource, err)
	}
	if len(verrs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSource, &verrs[0])
	}
	return nil
}

// TranslateGLSL converts a WGSL module to GLSL for the given entry
// point. ES selects GLSL ES 3.00, otherwise desktop GLSL 3.30.
func TranslateGLSL(src, entry string, es bool) (string, error) {
	ast, err := naga.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: parse: %w", ErrInvalidSource, err)
	}
	mod, err := naga.LowerWithSource(ast, src)
	if err != nil {
		return "", fmt.Errorf("%w: lower: %w", ErrInvalidSource, err)
	}
	version := glsl.Version330
	if es {
		version = glsl.VersionES300
	}
	out, _, err := glsl.Compile(mod, glsl.Options{
		LangVersion: version,
		EntryPoint:  entry,
	})
	if err != nil {
		return "", fmt.Errorf("shader: glsl %s: %w", entry, err)
	}
	return out, nil
}

// CompileSPIRV compiles WGSL to little-endian SPIR-V words.
func CompileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: spirv: %w", ErrInvalidSource, err)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}
