package render

import (
	"html"
	"io"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// RenderText shows the payload as a scrollable monospace block.
func RenderText(w io.Writer, p *Payload) (*Result, error) {
	block := `<pre class="payload-text">` + html.EscapeString(string(p.Data)) + `</pre>`
	if err := writeLayers(w, block); err != nil {
		return nil, err
	}
	return &Result{Format: diagram.FormatTxt, Blob: p.Data}, nil
}
