package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/wlrender"
)

// report prints what the renderer found on the device.
func report(w io.Writer, p *provider, r *wlrender.Renderer, verbose bool) error {
	pr := message.NewPrinter(language.English)

	info := r.Adapter()
	pr.Fprintf(w, "adapter:      %s (%s)\n", info.Name, info.Type)
	pr.Fprintf(w, "backend:      %s\n", p.info.Backend)
	if p.info.Vendor != "" || p.info.Driver != "" {
		pr.Fprintf(w, "vendor:       %s %s\n", p.info.Vendor, p.info.Driver)
	}
	pr.Fprintf(w, "color:        managed=%v\n", r.ColorManaged())

	c := r.Caps()
	pr.Fprintf(w, "capabilities: sub-image upload=%v external image=%v image sRGB=%v\n",
		c.SubImageUpload, c.ExternalImage, c.ImageSRGB)

	progs := r.Programs()
	var built, possible int
	for _, pi := range progs {
		if pi.Constructible {
			possible++
		}
		if pi.Built {
			built++
		}
	}
	pr.Fprintf(w, "programs:     %d of %d built, %d slots\n", built, possible, len(progs))

	m := r.Memory()
	pr.Fprintf(w, "textures:     %d live, %d bytes (peak %d)\n", m.TextureCount, m.UsedBytes, m.PeakBytes)

	if !verbose {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERMUTATION\tSTATUS\tPIPELINES")
	for _, pi := range progs {
		status := "-"
		switch {
		case pi.Built:
			status = "built"
		case pi.Constructible:
			status = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", pi.Name, status, pi.Pipelines)
	}
	return tw.Flush()
}

func reportFrame(w io.Writer, st wlrender.FrameStats, uploads wlrender.UploadStats) {
	pr := message.NewPrinter(language.English)
	pr.Fprintf(w, "frame:        %s\n", st)
	pr.Fprintf(w, "uploads:      %d full, %d partial, %d textures created\n",
		uploads.FullUploads, uploads.SubUploads, uploads.TexturesCreated)
}
