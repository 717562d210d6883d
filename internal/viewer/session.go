package viewer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nodecanvas/umlview/internal/render"
	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

const fetchTimeout = 30 * time.Second

// LoadRequest describes one payload to bring into the viewer.
type LoadRequest struct {
	// URL locates the payload. A data: URI is decoded inline without
	// any network fetch.
	URL string
	// Format forces the renderer; empty means infer from the URL.
	Format string
	// Content carries inline markdown, bypassing the fetch entirely.
	Content string
	// Embed marks the load as coming from the compact embedded page.
	Embed bool
}

// Loaded is the committed outcome of a Load: the rendered markup plus
// the raw blob the toolbar operates on.
type Loaded struct {
	Generation int64
	URL        string
	// Format is the effective format after rendering. A base64 payload
	// that sniffed as PNG reports png here, which is what capability
	// gating keys off.
	Format  diagram.Format
	HTML    []byte
	Blob    []byte
	AutoFit bool
}

// Session owns one viewer instance: its transform state, its current
// payload, and the fetch pipeline. Loads are serialized by a
// generation counter; a completion that lost the race to a newer Load
// is discarded instead of clobbering the view.
type Session struct {
	httpc    *retryablehttp.Client
	logger   *slog.Logger
	proxyURL string

	generation atomic.Int64

	mu      sync.Mutex
	state   *ViewerState
	current *Loaded
}

// SessionOptions configures NewSession. The zero value is usable.
type SessionOptions struct {
	// ProxyURL is the same-origin proxy endpoint used to retry fetches
	// that fail directly. Empty disables the retry.
	ProxyURL   string
	HTTPClient *retryablehttp.Client
	Logger     *slog.Logger
}

// NewSession creates a viewer session.
func NewSession(opts SessionOptions) *Session {
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = retryablehttp.NewClient()
		httpc.RetryMax = 1
		httpc.Logger = nil
		httpc.HTTPClient.Timeout = fetchTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		httpc:    httpc,
		logger:   logger,
		proxyURL: opts.ProxyURL,
		state:    NewViewerState(),
	}
}

// Load resolves, fetches and renders one payload. Data URIs are
// decoded inline, iframe payloads skip the fetch, inline markdown
// renders directly, and everything else is fetched over HTTP with one
// proxy retry on transport failure. If a newer Load starts before this
// one commits, the result is discarded and a CANCELLED error returned.
func (s *Session) Load(ctx context.Context, req LoadRequest) (*Loaded, error) {
	gen := s.generation.Add(1)

	format := diagram.FromURL(req.URL)
	if f, ok := diagram.ParseFormat(req.Format); ok {
		format = f
	}

	payload := render.Payload{Format: format, URL: req.URL}
	switch {
	case strings.HasPrefix(req.URL, "data:"):
		_, data, err := DecodeDataURI(req.URL)
		if err != nil {
			return nil, err
		}
		payload.Data = data
	case format == diagram.FormatIframe:
		// The renderer embeds the URL itself; nothing to fetch.
	case format == diagram.FormatMarkdown && req.Content != "":
		payload.Data = []byte(req.Content)
	case req.URL == "":
		return nil, schema.NewError(schema.ErrCodeFetch, "nothing to load: no url or content")
	default:
		data, err := s.fetch(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		payload.Data = data
	}

	var buf bytes.Buffer
	result, err := render.Render(&buf, &payload)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeRender, "payload rendering failed").WithCause(err)
	}

	loaded := &Loaded{
		Generation: gen,
		URL:        req.URL,
		Format:     result.Format,
		HTML:       buf.Bytes(),
		Blob:       result.Blob,
		AutoFit:    req.Embed,
	}
	if !s.commit(gen, loaded) {
		s.logger.Debug("stale load discarded", "url", req.URL, "generation", gen)
		return nil, schema.NewError(schema.ErrCodeCancelled, "load superseded by a newer request")
	}
	return loaded, nil
}

// commit installs the loaded payload and resets the transform, unless
// a newer Load has started since gen was issued.
func (s *Session) commit(gen int64, loaded *Loaded) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation.Load() {
		return false
	}
	s.current = loaded
	s.state.Reset()
	return true
}

// Current returns the committed payload, or nil before the first
// successful Load.
func (s *Session) Current() *Loaded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Transform runs fn against the session's view state under the
// session lock.
func (s *Session) Transform(fn func(*ViewerState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// CropSelection crops the current payload to the active selection and
// clears it. SVG payloads stay vector; raster payloads re-encode as
// PNG.
func (s *Session) CropSelection() ([]byte, diagram.Format, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, "", schema.NewError(schema.ErrCodeNotFound, "no payload loaded")
	}
	if s.state.Selection == nil {
		return nil, "", schema.NewError(schema.ErrCodeValidation, "no active selection")
	}
	sel := *s.state.Selection

	blob, format, err := Crop(s.current.Format, s.current.Blob, sel)
	if err != nil {
		return nil, "", err
	}
	s.state.ClearSelection()
	return blob, format, nil
}

// Crop clips a payload to a content-space rectangle. SVG input yields
// a re-view-boxed SVG; raster input yields a PNG of the
// sub-rectangle.
func Crop(format diagram.Format, data []byte, r Rect) ([]byte, diagram.Format, error) {
	if len(data) == 0 {
		return nil, "", schema.NewError(schema.ErrCodeValidation, "empty payload")
	}
	switch {
	case format == diagram.FormatSVG:
		out, err := CropSVG(data, r)
		return out, diagram.FormatSVG, err
	case format.IsRaster():
		out, err := CropRaster(data, r)
		return out, diagram.FormatPNG, err
	default:
		return nil, "", schema.NewErrorf(schema.ErrCodeUnsupported, "crop not supported for %s payloads", format)
	}
}

// DecodeDataURI splits a data: URI into its MIME type and decoded
// payload. The base64 and percent-encoded forms are both handled;
// parameters such as charset are skipped.
func DecodeDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, schema.NewError(schema.ErrCodeDecode, "not a data URI")
	}
	head, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, schema.NewError(schema.ErrCodeDecode, "data URI has no comma separator")
	}

	isBase64 := false
	for i, part := range strings.Split(head, ";") {
		switch {
		case i == 0:
			mime = part
		case part == "base64":
			isBase64 = true
		}
	}
	if mime == "" {
		mime = "text/plain"
	}

	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Browsers tolerate stripped padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return "", nil, schema.NewError(schema.ErrCodeDecode, "data URI payload is not valid base64").WithCause(err)
		}
		return mime, data, nil
	}

	text, uerr := url.PathUnescape(payload)
	if uerr != nil {
		return "", nil, schema.NewError(schema.ErrCodeDecode, "data URI payload is not valid percent encoding").WithCause(uerr)
	}
	return mime, []byte(text), nil
}

// statusError marks a completed HTTP exchange with a failure status,
// as opposed to a transport error. Status failures are not retried
// through the proxy.
type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.status, e.url)
}

func (s *Session) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := s.get(ctx, rawURL)
	if err == nil {
		return data, nil
	}

	var se *statusError
	if errors.As(err, &se) || s.proxyURL == "" || !isHTTP(rawURL) {
		return nil, schema.NewErrorf(schema.ErrCodeFetch, "fetch failed: %v", err).WithPath(rawURL).WithCause(err)
	}

	s.logger.Debug("direct fetch failed, retrying via proxy", "url", rawURL, "error", err)
	data, perr := s.get(ctx, s.proxyURL+"?url="+url.QueryEscape(rawURL))
	if perr != nil {
		return nil, schema.NewErrorf(schema.ErrCodeFetch, "direct fetch and proxy retry both failed: %v", perr).
			WithPath(rawURL).WithCause(perr)
	}
	return data, nil
}

func (s *Session) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{status: resp.StatusCode, url: rawURL}
	}
	return io.ReadAll(resp.Body)
}

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
