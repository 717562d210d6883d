package diagram

import (
	"net/url"
	"strings"
)

// ViewerPath is where the companion viewer page is mounted.
const ViewerPath = "/viewer"

// ViewerURLs holds the standalone and embeddable viewer addresses for
// a rendered diagram.
type ViewerURLs struct {
	Page   string `json:"viewer_url"`
	Iframe string `json:"viewer_url_iframe"`
}

// BuildViewerURLs builds viewer page links for a payload URL. The
// format query parameter is inferred from the URL so the viewer does
// not have to guess; jpeg collapses to png since the viewer treats
// both as raster.
func BuildViewerURLs(target string) ViewerURLs {
	target = strings.TrimSpace(target)
	if target == "" {
		return ViewerURLs{
			Page:   ViewerPath,
			Iframe: ViewerPath + "?embed=1",
		}
	}

	format := FromURL(target)
	if format == FormatJPEG {
		format = FormatPNG
	}

	q := url.Values{}
	q.Set("url", target)
	q.Set("format", string(format))
	encoded := q.Encode()

	return ViewerURLs{
		Page:   ViewerPath + "?" + encoded,
		Iframe: ViewerPath + "?embed=1&" + encoded,
	}
}
