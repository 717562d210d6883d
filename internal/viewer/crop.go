package viewer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"regexp"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/nodecanvas/umlview/pkg/schema"
)

var (
	svgOpenTagRe = regexp.MustCompile(`(?is)<svg\b[^>]*>`)
	viewBoxRe    = regexp.MustCompile(`(?i)\sviewBox\s*=\s*("[^"]*"|'[^']*')`)
	widthAttrRe  = regexp.MustCompile(`(?i)\swidth\s*=\s*("[^"]*"|'[^']*')`)
	heightAttrRe = regexp.MustCompile(`(?i)\sheight\s*=\s*("[^"]*"|'[^']*')`)
)

// CropSVG produces a standalone SVG clipped to a content-space
// rectangle. The source document is preserved byte for byte except for
// the root element, whose viewBox is rewritten to the crop rectangle
// and whose width/height are set to the crop dimensions. Vector
// content stays vector: nothing is rasterized.
func CropSVG(data []byte, r Rect) ([]byte, error) {
	if r.Empty() {
		return nil, schema.NewError(schema.ErrCodeRender, "crop rectangle has no area")
	}

	loc := svgOpenTagRe.FindIndex(data)
	if loc == nil {
		return nil, schema.NewError(schema.ErrCodeRender, "payload has no <svg> root element")
	}

	tag := string(data[loc[0]:loc[1]])
	viewBox := fmt.Sprintf("%g %g %g %g", r.X, r.Y, r.W, r.H)

	tag = stripAttr(tag, viewBoxRe)
	tag = stripAttr(tag, widthAttrRe)
	tag = stripAttr(tag, heightAttrRe)

	attrs := fmt.Sprintf(` viewBox="%s" width="%g" height="%g"`, viewBox, r.W, r.H)
	if strings.HasSuffix(tag, "/>") {
		tag = tag[:len(tag)-2] + attrs + "/>"
	} else {
		tag = tag[:len(tag)-1] + attrs + ">"
	}

	out := make([]byte, 0, len(data)+len(attrs))
	out = append(out, data[:loc[0]]...)
	out = append(out, tag...)
	out = append(out, data[loc[1]:]...)
	return out, nil
}

func stripAttr(tag string, re *regexp.Regexp) string {
	return re.ReplaceAllString(tag, "")
}

// CropRaster decodes a PNG or JPEG payload and re-encodes the given
// content-space sub-rectangle as PNG. The rectangle is clamped to the
// image bounds; a crop entirely outside the image is an error.
func CropRaster(data []byte, r Rect) ([]byte, error) {
	if r.Empty() {
		return nil, schema.NewError(schema.ErrCodeRender, "crop rectangle has no area")
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "payload is not a decodable image").WithCause(err)
	}

	crop := image.Rect(int(r.X), int(r.Y), int(r.X+r.W), int(r.Y+r.H)).Intersect(src.Bounds())
	if crop.Empty() {
		return nil, schema.NewError(schema.ErrCodeRender, "crop rectangle lies outside the image")
	}

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, crop.Min, xdraw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, "png encode failed").WithCause(err)
	}
	return buf.Bytes(), nil
}

// Thumbnail downscales a raster payload so its longer edge is at most
// maxDim pixels, preserving aspect ratio, and returns it as PNG.
// Images already within the limit are re-encoded unscaled.
func Thumbnail(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		return nil, schema.NewError(schema.ErrCodeRender, "thumbnail dimension must be positive")
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "payload is not a decodable image").WithCause(err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxDim || h > maxDim {
		if w >= h {
			h = h * maxDim / w
			w = maxDim
		} else {
			w = w * maxDim / h
			h = maxDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, "png encode failed").WithCause(err)
	}
	return buf.Bytes(), nil
}
