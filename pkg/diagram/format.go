// Package diagram defines the shared vocabulary of the rendering
// pipeline: diagram languages understood by the Kroki service, output
// formats the viewer can display, and helpers for inferring a format
// from a payload URL.
package diagram

import "strings"

// Format identifies how a rendered payload is encoded and therefore
// which viewer renderer handles it.
type Format string

const (
	FormatSVG      Format = "svg"
	FormatPNG      Format = "png"
	FormatJPEG     Format = "jpeg"
	FormatPDF      Format = "pdf"
	FormatTxt      Format = "txt"
	FormatBase64   Format = "base64"
	FormatIframe   Format = "iframe"
	FormatMarkdown Format = "markdown"
)

// Formats returns every viewer format in dispatch order.
func Formats() []Format {
	return []Format{
		FormatSVG, FormatPNG, FormatJPEG, FormatPDF,
		FormatTxt, FormatBase64, FormatIframe, FormatMarkdown,
	}
}

// ParseFormat maps a user-supplied string to a Format. "jpg" is
// accepted as an alias for jpeg. The second return is false when the
// value names no known format.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatSVG:
		return FormatSVG, true
	case FormatPNG:
		return FormatPNG, true
	case FormatJPEG, Format("jpg"):
		return FormatJPEG, true
	case FormatPDF:
		return FormatPDF, true
	case FormatTxt:
		return FormatTxt, true
	case FormatBase64:
		return FormatBase64, true
	case FormatIframe:
		return FormatIframe, true
	case FormatMarkdown:
		return FormatMarkdown, true
	}
	return "", false
}

// FromURL infers the payload format from a URL or data URI. It is
// total: any input, including the empty string, yields a format, with
// svg as the safe default for plain URLs and base64 for data URIs
// carrying an unrecognized MIME. The result is advisory; an explicit
// format parameter always overrides it.
func FromURL(rawURL string) Format {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if lower == "" {
		return FormatSVG
	}

	if strings.HasPrefix(lower, "data:") {
		switch {
		case strings.Contains(lower, "image/svg+xml"):
			return FormatSVG
		case strings.Contains(lower, "image/png"):
			return FormatPNG
		case strings.Contains(lower, "image/jpeg"):
			return FormatJPEG
		case strings.Contains(lower, "text/plain"):
			return FormatTxt
		case strings.Contains(lower, "text/markdown"):
			return FormatMarkdown
		}
		// An unrecognized MIME is opaque bytes, not markup.
		return FormatBase64
	}

	// Kroki embeds the output format as a path segment.
	for _, f := range []Format{FormatSVG, FormatPNG, FormatJPEG, FormatPDF, FormatTxt, FormatBase64} {
		if strings.Contains(lower, "/"+string(f)+"/") {
			return f
		}
	}
	return FormatSVG
}

// IsRaster reports whether the format carries pixel data.
func (f Format) IsRaster() bool {
	return f == FormatPNG || f == FormatJPEG
}

// Croppable reports whether the crop tool can derive a sub-rectangle
// payload from this format.
func (f Format) Croppable() bool {
	return f.IsRaster() || f == FormatSVG
}

// RetainsBlob reports whether a render of this format keeps the raw
// payload bytes around, enabling download and save-to-host.
func (f Format) RetainsBlob() bool {
	switch f {
	case FormatIframe, FormatMarkdown:
		return false
	}
	return true
}

// ContentType returns the MIME type used when serving a payload of
// this format over HTTP.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatIframe:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
