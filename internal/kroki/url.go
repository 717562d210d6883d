package kroki

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// EncodeSource compresses diagram source with zlib at best compression
// and base64url-encodes it. The encoding matches the pako-based
// JavaScript clients so share URLs are interchangeable.
func EncodeSource(source string) string {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	w, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	w.Write([]byte(source))
	w.Close()
	return base64.URLEncoding.EncodeToString(buf.Bytes())
}

// DecodeSource reverses EncodeSource.
func DecodeSource(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeDecode, "share url payload is not base64url: %v", err).WithCause(err)
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeDecode, "share url payload is not zlib data: %v", err).WithCause(err)
	}
	defer r.Close()

	source, err := io.ReadAll(r)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeDecode, "share url payload is truncated: %v", err).WithCause(err)
	}
	return string(source), nil
}

// ShareURL builds the GET form of a render request: the diagram source
// travels deflate-compressed inside the URL path, so the link can be
// pasted anywhere without a request body.
func ShareURL(baseURL string, typ diagram.Type, format diagram.Format, source string, opts Options) (string, error) {
	if err := diagram.ValidateRender(typ, format); err != nil {
		return "", err
	}

	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	shareURL := fmt.Sprintf("%s/%s/%s/%s", base, typ, format, EncodeSource(source))
	if q := optionsQuery(opts); q != "" {
		shareURL += "?" + q
	}
	return shareURL, nil
}

// optionsQuery renders diagram options as URL query parameters. Flag
// options (true or empty string) become bare keys with empty values.
func optionsQuery(opts Options) string {
	if len(opts) == 0 {
		return ""
	}
	q := url.Values{}
	for k, v := range opts {
		if v == true || v == "" {
			q.Set(k, "")
			continue
		}
		q.Set(k, fmt.Sprintf("%v", v))
	}
	return q.Encode()
}
