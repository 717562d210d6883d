package kroki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

type cacheOnlyStore struct {
	store.Store

	mu      sync.Mutex
	entries map[string]*store.CacheEntry
	puts    int
}

func newCacheOnlyStore() *cacheOnlyStore {
	return &cacheOnlyStore{entries: make(map[string]*store.CacheEntry)}
}

func (c *cacheOnlyStore) GetCached(_ context.Context, key string) (*store.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *cacheOnlyStore) PutCached(_ context.Context, entry *store.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = entry
	c.puts++
	return nil
}

func TestService_RenderCachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	cs := newCacheOnlyStore()
	svc := NewService(NewClient(srv.URL, nil), ServiceOptions{Store: cs})

	req := RenderRequest{Type: diagram.TypeMermaid, Format: diagram.FormatSVG, Source: "graph TD; A-->B"}

	blob, cached, err := svc.Render(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "<svg/>", string(blob))
	assert.Equal(t, 1, cs.puts)

	blob, cached, err = svc.Render(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "<svg/>", string(blob))
	assert.Equal(t, 1, calls, "second render must come from the cache")
}

func TestService_CacheKeyVariesWithOptions(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	cs := newCacheOnlyStore()
	svc := NewService(NewClient(srv.URL, nil), ServiceOptions{Store: cs})

	base := RenderRequest{Type: diagram.TypeMermaid, Format: diagram.FormatSVG, Source: "graph TD; A-->B"}
	_, _, err := svc.Render(context.Background(), base)
	require.NoError(t, err)

	withOpts := base
	withOpts.Options = Options{"theme": "dark"}
	_, cached, err := svc.Render(context.Background(), withOpts)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, calls)
}

func TestService_LocalBackendFallsThroughToWeb(t *testing.T) {
	// The local renderer only speaks graphviz; any other type must
	// still reach the web service.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	svc := NewService(NewClient(srv.URL, nil), ServiceOptions{Backend: "local"})

	blob, cached, err := svc.Render(context.Background(), RenderRequest{
		Type:   diagram.TypeMermaid,
		Format: diagram.FormatSVG,
		Source: "graph TD; A-->B",
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "<svg/>", string(blob))
}

func TestService_LocalFailureFallsBackToWeb(t *testing.T) {
	// A graphviz source the local engine cannot parse must not fail
	// the render; the web service gets the same source.
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("<svg/>"))
	}))
	defer srv.Close()

	svc := NewService(NewClient(srv.URL, nil), ServiceOptions{Backend: "local"})

	blob, cached, err := svc.Render(context.Background(), RenderRequest{
		Type:   diagram.TypeGraphviz,
		Format: diagram.FormatSVG,
		Source: "digraph { bad !!!",
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "<svg/>", string(blob))
	assert.Equal(t, 1, calls)
}

func TestRenderLocal_ParseFailureReportsNotHandled(t *testing.T) {
	blob, ok, err := RenderLocal(context.Background(), diagram.TypeGraphviz, diagram.FormatSVG, "digraph { bad !!!")
	assert.Nil(t, blob)
	assert.False(t, ok)
	require.Error(t, err)

	var uerr *schema.UMLError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, schema.ErrCodeRender, uerr.Code)
}

func TestService_RejectsEmptySource(t *testing.T) {
	svc := NewService(NewClient("http://unused", nil), ServiceOptions{})

	_, _, err := svc.Render(context.Background(), RenderRequest{
		Type:   diagram.TypeMermaid,
		Format: diagram.FormatSVG,
	})
	require.Error(t, err)
	var umlErr *schema.UMLError
	require.ErrorAs(t, err, &umlErr)
	assert.Equal(t, schema.ErrCodeValidation, umlErr.Code)
}

func TestService_RejectsUnsupportedPair(t *testing.T) {
	svc := NewService(NewClient("http://unused", nil), ServiceOptions{})

	_, _, err := svc.Render(context.Background(), RenderRequest{
		Type:   diagram.TypeBPMN,
		Format: diagram.FormatPNG,
		Source: "<definitions/>",
	})
	require.Error(t, err)
}

func TestService_ShareURLUsesClientBase(t *testing.T) {
	svc := NewService(NewClient("http://kroki.local:8000", nil), ServiceOptions{})

	url, err := svc.ShareURL(RenderRequest{
		Type:   diagram.TypeMermaid,
		Format: diagram.FormatSVG,
		Source: "graph TD; A-->B",
	})
	require.NoError(t, err)
	assert.Contains(t, url, "http://kroki.local:8000/mermaid/svg/")
}
