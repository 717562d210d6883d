// Package httpapi exposes the viewer page and the JSON API: payload
// loading, crop/export, workflow normalization, diagram rendering,
// uploads, the proxy and the status event stream.
package httpapi

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/internal/normalize"
	"github.com/nodecanvas/umlview/internal/policy"
	"github.com/nodecanvas/umlview/internal/prompt"
	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/streaming"
)

//go:embed templates static
var content embed.FS

// Deps holds everything the API server needs. Store and Hub may be
// nil; the affected endpoints then skip caching and event publishing.
type Deps struct {
	Store     store.Store
	Hub       streaming.EventHub
	Kroki     *kroki.Client
	Policy    *policy.Policy
	Prompts   *prompt.Engine
	LLM       *prompt.Client
	Logger    *slog.Logger
	OutputDir string
	// Backend selects the default render backend: "web" or "local".
	Backend string
	// CacheTTL bounds how long rendered blobs stay in the cache.
	CacheTTL time.Duration
}

// Server is the umlview HTTP server.
type Server struct {
	deps     Deps
	renderer *kroki.Service
	verifier *normalize.Verifier
	sessions *sessionRegistry
	viewer   *template.Template
}

// NewServer creates a Server with parsed templates and a compiled
// document verifier.
func NewServer(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Backend == "" {
		deps.Backend = "web"
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = 24 * time.Hour
	}

	verifier, err := normalize.NewVerifier()
	if err != nil {
		return nil, err
	}

	viewer := template.Must(template.New("").ParseFS(content, "templates/viewer.html"))

	renderer := kroki.NewService(deps.Kroki, kroki.ServiceOptions{
		Store:    deps.Store,
		Hub:      deps.Hub,
		Logger:   deps.Logger,
		CacheTTL: deps.CacheTTL,
		Backend:  deps.Backend,
	})

	return &Server{
		deps:     deps,
		renderer: renderer,
		verifier: verifier,
		sessions: newSessionRegistry(deps),
		viewer:   viewer,
	}, nil
}

// Handler returns the HTTP handler for all umlview routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Viewer page and pipeline.
	mux.HandleFunc("GET /viewer", s.handleViewerPage)
	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("POST /api/view/crop", s.handleCrop)

	// Workflow repair.
	mux.HandleFunc("POST /api/workflow/normalize", s.handleNormalize)
	mux.HandleFunc("POST /api/workflow/prompt", s.handlePrompt)

	// Rendering and exports.
	mux.HandleFunc("POST /api/diagram/render", s.handleRender)
	mux.HandleFunc("POST /api/uml/save", s.handleSave)
	mux.HandleFunc("GET /api/uml/proxy", s.handleProxy)

	// Saved artifact browsing.
	mux.HandleFunc("GET /api/uml/artifacts", s.handleArtifacts)
	mux.HandleFunc("GET /api/uml/artifacts/{id}/thumbnail", s.handleArtifactThumbnail)

	// LLM helper.
	mux.HandleFunc("POST /api/llm/models", s.handleLLMModels)

	// Status stream.
	mux.HandleFunc("GET /api/events", s.handleSSE)

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
