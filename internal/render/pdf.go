package render

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// Embedded PDF viewers rarely report intrinsic dimensions, so the
// object gets a fixed fallback size the shell can still fit and zoom.
const (
	pdfFallbackWidth  = 800
	pdfFallbackHeight = 600
)

// RenderPDF embeds the payload in a native object element with a
// text fallback for browsers without an inline PDF plugin.
func RenderPDF(w io.Writer, p *Payload) (*Result, error) {
	obj := fmt.Sprintf(
		`<object class="payload-pdf" type="application/pdf" data="data:application/pdf;base64,%s" width="%d" height="%d"><p>PDF preview is not available in this browser.</p></object>`,
		base64.StdEncoding.EncodeToString(p.Data), pdfFallbackWidth, pdfFallbackHeight)
	if err := writeLayers(w, obj); err != nil {
		return nil, err
	}
	return &Result{Format: diagram.FormatPDF, Blob: p.Data}, nil
}
