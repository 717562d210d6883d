package viewer

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var uerr *schema.UMLError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, code, uerr.Code)
}

func testSession(proxyURL string) *Session {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	c.HTTPClient.Timeout = 5 * time.Second
	return NewSession(SessionOptions{ProxyURL: proxyURL, HTTPClient: c})
}

func svgDataURI(svg string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

func TestDecodeDataURI_Base64(t *testing.T) {
	magic := "\x89PNG\r\n\x1a\n"
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(magic))

	mime, data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, []byte(magic), data)
}

func TestDecodeDataURI_PercentEncoded(t *testing.T) {
	mime, data, err := DecodeDataURI("data:text/plain,Hello%20world")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, "Hello world", string(data))
}

func TestDecodeDataURI_DefaultMime(t *testing.T) {
	mime, data, err := DecodeDataURI("data:,Hi")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, "Hi", string(data))
}

func TestDecodeDataURI_CharsetParameter(t *testing.T) {
	mime, data, err := DecodeDataURI("data:text/plain;charset=utf-8;base64,SGk=")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, "Hi", string(data))
}

func TestDecodeDataURI_UnpaddedBase64(t *testing.T) {
	_, data, err := DecodeDataURI("data:text/plain;base64,SGk")
	require.NoError(t, err)
	assert.Equal(t, "Hi", string(data))
}

func TestDecodeDataURI_Errors(t *testing.T) {
	cases := []string{
		"http://example.com/x.png",
		"data:text/plain",
		"data:text/plain;base64,!!!not-base64!!!",
	}
	for _, uri := range cases {
		_, _, err := DecodeDataURI(uri)
		requireCode(t, err, schema.ErrCodeDecode)
	}
}

func TestSession_LoadDataURI(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 10 10"/>`
	s := testSession("")

	loaded, err := s.Load(context.Background(), LoadRequest{URL: svgDataURI(svg)})
	require.NoError(t, err)

	assert.Equal(t, diagram.FormatSVG, loaded.Format)
	assert.Contains(t, string(loaded.HTML), "<svg")
	assert.Equal(t, []byte(svg), loaded.Blob)
	assert.Equal(t, int64(1), loaded.Generation)
	assert.False(t, loaded.AutoFit)
}

func TestSession_LoadFetchesText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello viewer"))
	}))
	defer srv.Close()

	s := testSession("")
	loaded, err := s.Load(context.Background(), LoadRequest{URL: srv.URL + "/txt/note"})
	require.NoError(t, err)

	assert.Equal(t, diagram.FormatTxt, loaded.Format)
	assert.Contains(t, string(loaded.HTML), "payload-text")
	assert.Contains(t, string(loaded.HTML), "hello viewer")
}

func TestSession_LoadExplicitFormatWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("raw contents"))
	}))
	defer srv.Close()

	s := testSession("")
	loaded, err := s.Load(context.Background(), LoadRequest{URL: srv.URL + "/svg/diagram", Format: "txt"})
	require.NoError(t, err)
	assert.Equal(t, diagram.FormatTxt, loaded.Format)
}

func TestSession_LoadIframeSkipsFetch(t *testing.T) {
	s := testSession("")

	// The host is unreachable; an iframe load must never touch it.
	loaded, err := s.Load(context.Background(), LoadRequest{URL: "http://127.0.0.1:1/page", Format: "iframe"})
	require.NoError(t, err)

	assert.Equal(t, diagram.FormatIframe, loaded.Format)
	assert.Contains(t, string(loaded.HTML), "<iframe")
	assert.Nil(t, loaded.Blob)
}

func TestSession_LoadInlineMarkdown(t *testing.T) {
	s := testSession("")

	loaded, err := s.Load(context.Background(), LoadRequest{Format: "markdown", Content: "# Title"})
	require.NoError(t, err)

	assert.Equal(t, diagram.FormatMarkdown, loaded.Format)
	assert.Contains(t, string(loaded.HTML), "markdown-body")
	assert.Contains(t, string(loaded.HTML), "<h1")
	assert.Nil(t, loaded.Blob)
}

func TestSession_LoadNothing(t *testing.T) {
	s := testSession("")
	_, err := s.Load(context.Background(), LoadRequest{})
	requireCode(t, err, schema.ErrCodeFetch)
}

func TestSession_ProxyRetryOnTransportError(t *testing.T) {
	dead := "http://127.0.0.1:1/png/diagram"
	var proxyHits atomic.Int32

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		assert.Equal(t, dead, r.URL.Query().Get("url"))
		w.Write([]byte("\x89PNG\r\n\x1a\nbody"))
	}))
	defer proxy.Close()

	s := testSession(proxy.URL + "/api/uml/proxy")
	loaded, err := s.Load(context.Background(), LoadRequest{URL: dead})
	require.NoError(t, err)

	assert.Equal(t, diagram.FormatPNG, loaded.Format)
	assert.Contains(t, string(loaded.HTML), "data:image/png;base64,")
	assert.Equal(t, int32(1), proxyHits.Load())
}

func TestSession_NoProxyRetryOnStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	var proxyHits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
	}))
	defer proxy.Close()

	s := testSession(proxy.URL + "/api/uml/proxy")
	_, err := s.Load(context.Background(), LoadRequest{URL: srv.URL + "/txt/x"})
	requireCode(t, err, schema.ErrCodeFetch)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Equal(t, int32(0), proxyHits.Load())
}

func TestSession_ProxyRetryAlsoFails(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusNotFound)
	}))
	defer proxy.Close()

	s := testSession(proxy.URL + "/api/uml/proxy")
	_, err := s.Load(context.Background(), LoadRequest{URL: "http://127.0.0.1:1/txt/x"})
	requireCode(t, err, schema.ErrCodeFetch)
	assert.Contains(t, err.Error(), "proxy retry")
}

func TestSession_StaleLoadDiscarded(t *testing.T) {
	s := testSession("")

	gen1 := s.generation.Add(1)
	gen2 := s.generation.Add(1)

	assert.False(t, s.commit(gen1, &Loaded{URL: "old"}))
	assert.True(t, s.commit(gen2, &Loaded{URL: "new"}))

	require.NotNil(t, s.Current())
	assert.Equal(t, "new", s.Current().URL)
}

func TestSession_LoadResetsTransform(t *testing.T) {
	s := testSession("")
	uri := svgDataURI(`<svg xmlns="http://www.w3.org/2000/svg"/>`)

	_, err := s.Load(context.Background(), LoadRequest{URL: uri})
	require.NoError(t, err)
	s.Transform(func(st *ViewerState) { st.ZoomAt(2, 0, 0) })

	_, err = s.Load(context.Background(), LoadRequest{URL: uri})
	require.NoError(t, err)
	s.Transform(func(st *ViewerState) {
		assert.Equal(t, 1.0, st.Scale)
	})
}

func TestSession_CropSelectionSVG(t *testing.T) {
	s := testSession("")
	_, err := s.Load(context.Background(), LoadRequest{URL: svgDataURI(cropSVG)})
	require.NoError(t, err)

	s.Transform(func(st *ViewerState) {
		st.BeginSelection(10, 10)
		require.True(t, st.EndSelection(60, 60))
	})

	blob, format, err := s.CropSelection()
	require.NoError(t, err)
	assert.Equal(t, diagram.FormatSVG, format)

	attrs := rootAttrs(t, blob)
	assert.Equal(t, "10 10 50 50", attrs["viewBox"])

	s.Transform(func(st *ViewerState) {
		assert.Nil(t, st.Selection)
	})
}

func TestSession_CropSelectionRequiresPayload(t *testing.T) {
	s := testSession("")
	_, _, err := s.CropSelection()
	requireCode(t, err, schema.ErrCodeNotFound)
}

func TestSession_CropSelectionRequiresSelection(t *testing.T) {
	s := testSession("")
	_, err := s.Load(context.Background(), LoadRequest{URL: svgDataURI(cropSVG)})
	require.NoError(t, err)

	_, _, err = s.CropSelection()
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestCrop_UnsupportedFormat(t *testing.T) {
	_, _, err := Crop(diagram.FormatTxt, []byte("plain text"), Rect{X: 0, Y: 0, W: 10, H: 10})
	requireCode(t, err, schema.ErrCodeUnsupported)
}

func TestCrop_EmptyPayload(t *testing.T) {
	_, _, err := Crop(diagram.FormatSVG, nil, Rect{X: 0, Y: 0, W: 10, H: 10})
	requireCode(t, err, schema.ErrCodeValidation)
}

func TestCrop_RasterYieldsPNG(t *testing.T) {
	data := encodePNG(t, testImage(64, 64))

	blob, format, err := Crop(diagram.FormatJPEG, data, Rect{X: 0, Y: 0, W: 32, H: 32})
	require.NoError(t, err)
	assert.Equal(t, diagram.FormatPNG, format)
	assert.True(t, len(blob) > 8)
}
