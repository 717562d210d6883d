package render

import (
	"html"
	"io"
	"net/url"
	"strings"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// RenderIframe embeds the payload URL in a sandboxed frame. Only
// http(s) and data URLs are embeddable; anything else shows a
// placeholder instead of leaking an arbitrary scheme into the page.
func RenderIframe(w io.Writer, p *Payload) (*Result, error) {
	target := strings.TrimSpace(p.URL)

	if !embeddableURL(target) {
		placeholder := `<div class="payload-placeholder">No embeddable URL provided.</div>`
		if err := writeLayers(w, placeholder); err != nil {
			return nil, err
		}
		return &Result{Format: diagram.FormatIframe}, nil
	}

	frame := `<iframe class="payload-frame" sandbox="allow-scripts allow-same-origin allow-forms allow-popups" src="` +
		html.EscapeString(target) + `"></iframe>`
	if err := writeLayers(w, frame); err != nil {
		return nil, err
	}
	return &Result{Format: diagram.FormatIframe}, nil
}

func embeddableURL(target string) bool {
	if target == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(target), "data:") {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
