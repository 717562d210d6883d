// Package render turns diagram payloads into the viewer's HTML
// fragments. Every renderer emits the same two-layer markup: an outer
// transform layer the shell pans and zooms, and an inner content
// viewport holding the format-specific element.
package render

import (
	"fmt"
	"io"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// Payload is the fetched or decoded content handed to a renderer.
// Data carries the body for content formats; URL is used by the
// iframe renderer, which embeds without fetching.
type Payload struct {
	Format diagram.Format
	Data   []byte
	URL    string
}

// Result describes what a renderer actually produced. Format is the
// effective format after sniffing or degradation (a base64 payload
// that turns out to be PNG reports png; unparseable SVG degrades to
// txt), and Blob holds the bytes retained for download, save and
// clipboard export. Blob is nil for formats with nothing to retain.
type Result struct {
	Format diagram.Format
	Blob   []byte
}

// Renderer writes viewer markup for one payload format.
type Renderer func(w io.Writer, p *Payload) (*Result, error)

// ForFormat selects the renderer for a format. jpeg shares the png
// renderer since both are raster, and unknown formats fall back to
// the svg renderer, which itself degrades gracefully on non-SVG text.
func ForFormat(f diagram.Format) Renderer {
	switch f {
	case diagram.FormatSVG:
		return RenderSVG
	case diagram.FormatPNG, diagram.FormatJPEG:
		return RenderRaster
	case diagram.FormatPDF:
		return RenderPDF
	case diagram.FormatTxt:
		return RenderText
	case diagram.FormatBase64:
		return RenderBase64
	case diagram.FormatIframe:
		return RenderIframe
	case diagram.FormatMarkdown:
		return RenderMarkdown
	default:
		return RenderSVG
	}
}

// Render dispatches p to the renderer for its format.
func Render(w io.Writer, p *Payload) (*Result, error) {
	return ForFormat(p.Format)(w, p)
}

// writeLayers wraps inner markup in the transform/content layer pair
// shared by all renderers.
func writeLayers(w io.Writer, inner string) error {
	_, err := fmt.Fprintf(w,
		`<div class="view-transform"><div class="view-content">%s</div></div>`, inner)
	return err
}
