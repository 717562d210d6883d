package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// pngMagic is the fixed 8-byte PNG file signature.
var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// RenderRaster embeds png/jpeg bytes as an inline image. The bytes
// travel as a data URI so the emitted fragment is self-contained.
func RenderRaster(w io.Writer, p *Payload) (*Result, error) {
	format := p.Format
	if !format.IsRaster() {
		format = diagram.FormatPNG
	}

	img := fmt.Sprintf(`<img class="payload-image" alt="diagram" src="data:%s;base64,%s"/>`,
		format.ContentType(), base64.StdEncoding.EncodeToString(p.Data))
	if err := writeLayers(w, img); err != nil {
		return nil, err
	}
	return &Result{Format: format, Blob: p.Data}, nil
}

// IsPNG reports whether data starts with the PNG signature.
func IsPNG(data []byte) bool {
	return len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic)
}

// IsJPEG reports whether data starts with the JPEG SOI marker.
func IsJPEG(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xff && data[1] == 0xd8
}
