package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/internal/policy"
	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/viewer"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu        sync.Mutex
	cache     map[string]*store.CacheEntry
	artifacts []*store.Artifact
}

func newMemStore() *memStore {
	return &memStore{cache: make(map[string]*store.CacheEntry)}
}

func (m *memStore) GetCached(_ context.Context, key string) (*store.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.cache[key]; ok {
		return e, nil
	}
	return nil, nil
}

func (m *memStore) PutCached(_ context.Context, entry *store.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[entry.Key] = entry
	return nil
}

func (m *memStore) DeleteCached(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func (m *memStore) PruneExpired(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memStore) CacheStats(context.Context) (*store.CacheStats, error) {
	return &store.CacheStats{}, nil
}

func (m *memStore) RecordArtifact(_ context.Context, a *store.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = append(m.artifacts, a)
	return nil
}

func (m *memStore) GetArtifact(_ context.Context, id string) (*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.artifacts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}
func (m *memStore) ListArtifacts(context.Context, store.ArtifactFilter) ([]*store.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifacts, nil
}
func (m *memStore) DeleteArtifact(context.Context, string) error { return nil }
func (m *memStore) Migrate(context.Context) error                { return nil }
func (m *memStore) Vacuum(context.Context) error                 { return nil }
func (m *memStore) Close() error                                 { return nil }

func newTestServer(t *testing.T, krokiURL string, st store.Store) *Server {
	t.Helper()
	pol, err := policy.New(policy.Options{AllowPrivate: true})
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Store:     st,
		Kroki:     kroki.NewClient(krokiURL, nil),
		Policy:    pol,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	return srv
}

func TestHandleNormalize_RebuildsMalformedLinks(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	body := `{"nodes":[{"id":1,"outputs":[{"links":[5]}]},{"id":2,"inputs":[{"link":5}]}],` +
		`"links":[[null,null,null,null,null,null]]}`
	req := httptest.NewRequest(http.MethodPost, "/api/workflow/normalize", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Document struct {
			Links []map[string]any `json:"links"`
		} `json:"document"`
		Report struct {
			Repairs []any `json:"repairs"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Document.Links, 1)
	assert.EqualValues(t, 5, resp.Document.Links[0]["id"])
	assert.EqualValues(t, 1, resp.Document.Links[0]["origin_id"])
	assert.EqualValues(t, 2, resp.Document.Links[0]["target_id"])
	assert.NotEmpty(t, resp.Report.Repairs)
}

func TestHandleNormalize_NonObjectFallsBack(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/workflow/normalize", strings.NewReader(`"not a graph"`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Fallback bool           `json:"fallback"`
		Document map[string]any `json:"document"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Fallback)
	assert.Contains(t, resp.Document, "nodes")
	assert.Contains(t, resp.Document, "links")
	assert.Contains(t, resp.Document, "groups")
}

func TestHandleRender_CacheMissThenHit(t *testing.T) {
	var calls int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("<svg xmlns=\"http://www.w3.org/2000/svg\"/>"))
	}))
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL, newMemStore())

	body := `{"type":"mermaid","source":"graph TD; A-->B","format":"svg"}`
	for i, want := range []string{"miss", "hit"} {
		req := httptest.NewRequest(http.MethodPost, "/api/diagram/render", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, want, rec.Header().Get("X-Umlview-Cache"))
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	}
	assert.Equal(t, 1, calls, "second render must come from cache")
}

func TestHandleRender_RejectsUnknownTypeAndFormat(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/diagram/render",
		strings.NewReader(`{"type":"not-a-type","source":"x"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/diagram/render",
		strings.NewReader(`{"type":"plantuml","source":"x","format":"gif"}`))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSave_WritesFileAndRecordsArtifact(t *testing.T) {
	st := newMemStore()
	srv := newTestServer(t, "http://unused", st)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="diagram.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	part.Write([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uml/save", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp["filename"], "uml_saved_"))
	assert.True(t, strings.HasSuffix(resp["filename"], ".png"))
	assert.Equal(t, "uml/"+resp["filename"], resp["relative"])

	require.Len(t, st.artifacts, 1)
	assert.Equal(t, store.ArtifactSourceSave, st.artifacts[0].Source)
	assert.Equal(t, "image/png", st.artifacts[0].MIME)
}

func TestHandleSave_DisallowedMIME(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="evil.html"`},
		"Content-Type":        {"text/html"},
	})
	require.NoError(t, err)
	part.Write([]byte("<script>"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uml/save", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Disallowed type")
}

func TestSafeExt_JPGNormalizesToPNG(t *testing.T) {
	assert.Equal(t, "png", safeExt("", "photo.jpg"))
	assert.Equal(t, "jpeg", safeExt("image/jpeg", "photo.jpg"))
	assert.Equal(t, "svg", safeExt("image/svg+xml", ""))
	assert.Equal(t, "png", safeExt("", "unknown.bin"))
}

func TestHandleProxy_PolicyDenies(t *testing.T) {
	pol, err := policy.New(policy.Options{Expression: `host == "kroki.io" || host.endsWith(".kroki.io")`})
	require.NoError(t, err)
	srv, err := NewServer(Deps{
		Kroki:     kroki.NewClient("http://unused", nil),
		Policy:    pol,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/uml/proxy?url="+url.QueryEscape("https://evil.example/x"), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleView_DataURISVG(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><rect/></svg>`
	uri := "data:image/svg+xml," + url.PathEscape(svg)

	req := httptest.NewRequest(http.MethodGet, "/api/view?url="+url.QueryEscape(uri), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Session      string          `json:"session"`
		Format       string          `json:"format"`
		HTML         string          `json:"html"`
		Capabilities map[string]bool `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Session)
	assert.Equal(t, "svg", resp.Format)
	assert.Contains(t, resp.HTML, "<svg")
	assert.True(t, resp.Capabilities["crop"])
	assert.True(t, resp.Capabilities["download"])
}

func TestHandleCrop_SVGSelectionRewritesViewBox(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	svg := `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><rect/></svg>`
	uri := "data:image/svg+xml," + url.PathEscape(svg)

	req := httptest.NewRequest(http.MethodGet, "/api/view?url="+url.QueryEscape(uri), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var view struct {
		Session string `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))

	crop := cropRequest{Session: view.Session, Mode: "save", Selection: viewer.Rect{X: 10, Y: 10, W: 50, H: 50}}
	body, err := json.Marshal(crop)
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/api/view/crop", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `viewBox="10 10 50 50"`)
}

func TestHandleCrop_UnknownSession(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	body := `{"session":"nope","mode":"save","selection":{"x":0,"y":0,"w":10,"h":10}}`
	req := httptest.NewRequest(http.MethodPost, "/api/view/crop", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleViewerPage_EmbedMode(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodGet, "/viewer?url=https://kroki.io/x/svg/y&embed=1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="embed"`)
	assert.Contains(t, rec.Body.String(), "viewer.js")
}

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleArtifacts_ListsRecorded(t *testing.T) {
	st := newMemStore()
	st.artifacts = append(st.artifacts, &store.Artifact{
		ID:       "a1",
		Filename: "uml_saved_1.png",
		Relative: "uml/uml_saved_1.png",
		MIME:     "image/png",
		Source:   store.ArtifactSourceSave,
	})
	srv := newTestServer(t, "http://unused", st)

	req := httptest.NewRequest(http.MethodGet, "/api/uml/artifacts", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Artifacts []store.Artifact `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Artifacts, 1)
	assert.Equal(t, "a1", resp.Artifacts[0].ID)
	assert.Equal(t, "image/png", resp.Artifacts[0].MIME)
}

func TestHandleArtifacts_NoStore(t *testing.T) {
	srv := newTestServer(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/uml/artifacts", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleArtifactThumbnail_DownscalesPNG(t *testing.T) {
	st := newMemStore()
	srv := newTestServer(t, "http://unused", st)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 400, 200))))
	rel := filepath.Join("uml", "uml_saved_2.png")
	require.NoError(t, os.MkdirAll(filepath.Join(srv.deps.OutputDir, "uml"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srv.deps.OutputDir, rel), buf.Bytes(), 0o644))

	st.artifacts = append(st.artifacts, &store.Artifact{
		ID:       "a2",
		Filename: "uml_saved_2.png",
		Relative: rel,
		MIME:     "image/png",
		Source:   store.ArtifactSourceSave,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/uml/artifacts/a2/thumbnail?size=100", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	thumb, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Bounds().Dx())
	assert.Equal(t, 50, thumb.Bounds().Dy())
}

func TestHandleArtifactThumbnail_UnknownID(t *testing.T) {
	srv := newTestServer(t, "http://unused", newMemStore())

	req := httptest.NewRequest(http.MethodGet, "/api/uml/artifacts/missing/thumbnail", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
