// Command wlrinfo reports what the wlrender compositing backend can do on
// a headless device, prints the generated shaders, and renders TOML scene
// files to BMP images.
//
// Usage:
//
//	wlrinfo [-backend noop|software] [-v] [-linear]
//	wlrinfo -glsl rgba/blend/none [-gles]
//	wlrinfo -scene desktop.toml -output desktop.bmp [-scale 0.5]
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/wlrender"
)

func main() {
	var (
		backend  = flag.String("backend", "noop", "HAL backend: noop or software")
		verbose  = flag.Bool("v", false, "list every shader permutation and log renderer events")
		linear   = flag.Bool("linear", false, "blend in linear light")
		validate = flag.Bool("validate", true, "validate generated shaders")
		glslName = flag.String("glsl", "", "print the GLSL of a permutation, e.g. rgba/blend/none")
		gles     = flag.Bool("gles", false, "print GLSL ES 3.00 instead of GLSL 3.30")
		scenePth = flag.String("scene", "", "render a TOML scene file")
		output   = flag.String("output", "scene.bmp", "BMP file written by -scene")
		scale    = flag.Float64("scale", 1, "scale factor applied to the -scene image")
	)
	flag.Parse()

	if *verbose {
		wlrender.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var sc *scene
	if *scenePth != "" {
		var err error
		if sc, err = loadScene(*scenePth); err != nil {
			log.Fatal(err)
		}
		*linear = *linear || sc.Output.Linear
	}

	p, err := openBackend(*backend, gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	r, err := wlrender.New(p,
		wlrender.WithColorManagement(*linear),
		wlrender.WithShaderValidation(*validate),
		wlrender.WithGLES(*gles))
	if err != nil {
		log.Fatalf("create renderer: %v", err)
	}
	defer r.Destroy()

	switch {
	case *glslName != "":
		src, err := r.ProgramGLSL(*glslName)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Print(src)
	case sc != nil:
		img, st, err := sc.render(r)
		if err != nil {
			log.Fatalf("render %s: %v", *scenePth, err)
		}
		if err := saveBMP(*output, img, *scale); err != nil {
			log.Fatalf("write %s: %v", *output, err)
		}
		reportFrame(os.Stdout, st, r.Uploads())
		log.Printf("scene saved to %s (%dx%d)", *output, img.Rect.Dx(), img.Rect.Dy())
	default:
		if err := report(os.Stdout, p, r, *verbose); err != nil {
			log.Fatal(err)
		}
	}
}
