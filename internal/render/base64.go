package render

import (
	"encoding/base64"
	"io"
	"strings"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// RenderBase64 handles the base64-wrapped-unknown format: decode, then
// sniff magic bytes to redirect to the raster or SVG path, falling
// back to a text view. A payload that is not actually base64 is shown
// as text rather than rejected.
func RenderBase64(w io.Writer, p *Payload) (*Result, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(p.Data)))
	if err != nil {
		return RenderText(w, p)
	}

	switch {
	case IsPNG(decoded):
		return RenderRaster(w, &Payload{Format: diagram.FormatPNG, Data: decoded})
	case IsJPEG(decoded):
		return RenderRaster(w, &Payload{Format: diagram.FormatJPEG, Data: decoded})
	case LooksLikeSVG(decoded):
		return RenderSVG(w, &Payload{Format: diagram.FormatSVG, Data: decoded})
	}
	return RenderText(w, &Payload{Format: diagram.FormatTxt, Data: decoded})
}
