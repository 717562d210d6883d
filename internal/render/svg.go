package render

import (
	"bytes"
	"encoding/xml"
	"html"
	"io"
	"strings"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// RenderSVG inserts the payload as inline vector markup when it parses
// to an <svg> root, preserving native scaling. Anything else degrades
// to a preformatted text block showing the raw content instead of
// erroring, so a half-broken upstream response still shows something.
func RenderSVG(w io.Writer, p *Payload) (*Result, error) {
	text := string(p.Data)

	root, err := rootElement(p.Data)
	if err != nil || !strings.EqualFold(root, "svg") {
		if err := writeLayers(w, `<pre class="payload-text">`+html.EscapeString(text)+`</pre>`); err != nil {
			return nil, err
		}
		return &Result{Format: diagram.FormatTxt, Blob: p.Data}, nil
	}

	if err := writeLayers(w, text); err != nil {
		return nil, err
	}
	return &Result{Format: diagram.FormatSVG, Blob: p.Data}, nil
}

// rootElement returns the local name of the first XML start element.
// Parsing is deliberately lenient, matching how browsers treat the
// entity soup real-world SVG exporters produce.
func rootElement(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// LooksLikeSVG sniffs whether bytes begin with XML or SVG markup,
// ignoring leading whitespace.
func LooksLikeSVG(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<svg"))
}
