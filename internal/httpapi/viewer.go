package httpapi

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/nodecanvas/umlview/internal/logging"
	"github.com/nodecanvas/umlview/internal/viewer"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// maxSessions bounds the registry; the oldest session is evicted when
// a new one would exceed it.
const maxSessions = 256

// sessionRegistry hands out viewer sessions keyed by opaque IDs, so
// crop and transform calls find the payload a previous load produced.
type sessionRegistry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*viewer.Session
	order    []string
}

func newSessionRegistry(deps Deps) *sessionRegistry {
	return &sessionRegistry{
		deps:     deps,
		sessions: make(map[string]*viewer.Session),
	}
}

// acquire returns the session for id, creating one under a fresh ID
// when id is empty or unknown.
func (r *sessionRegistry) acquire(id string) (string, *viewer.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if sess, ok := r.sessions[id]; ok {
			return id, sess
		}
	}

	id = uuid.New().String()
	sess := viewer.NewSession(viewer.SessionOptions{
		ProxyURL: "/api/uml/proxy",
		Logger:   r.deps.Logger,
	})
	r.sessions[id] = sess
	r.order = append(r.order, id)
	for len(r.order) > maxSessions {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.sessions, oldest)
	}
	return id, sess
}

// lookup returns an existing session without creating one.
func (r *sessionRegistry) lookup(id string) (*viewer.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// viewerPageData feeds templates/viewer.html.
type viewerPageData struct {
	URL     string
	Format  string
	Content string
	Embed   bool
}

// handleViewerPage serves the single-page viewer. The page's script
// drives /api/view and the toolbar endpoints.
func (s *Server) handleViewerPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := viewerPageData{
		URL:     q.Get("url"),
		Format:  q.Get("format"),
		Content: q.Get("content"),
		Embed:   q.Get("embed") == "1",
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.viewer.ExecuteTemplate(w, "viewer.html", data); err != nil {
		s.deps.Logger.Error("viewer template render error", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// viewResponse is the /api/view payload: the rendered fragment plus
// what the toolbar is allowed to do with it.
type viewResponse struct {
	Session      string         `json:"session"`
	Format       string         `json:"format"`
	HTML         template.HTML  `json:"html"`
	AutoFit      bool           `json:"auto_fit"`
	Generation   int64          `json:"generation"`
	Capabilities map[string]any `json:"capabilities"`
}

// handleView runs the load pipeline for one URL/format pair.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID, sess := s.sessions.acquire(q.Get("session"))
	ctx := logging.WithSessionID(r.Context(), sessionID)

	req := viewer.LoadRequest{
		URL:     q.Get("url"),
		Format:  q.Get("format"),
		Content: q.Get("content"),
		Embed:   q.Get("embed") == "1",
	}

	loaded, err := sess.Load(ctx, req)
	if err != nil {
		logging.LogWith(ctx, s.deps.Logger).Warn("view load failed", "url", req.URL, "error", err)
		s.writeViewError(w, sessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, viewResponse{
		Session:    sessionID,
		Format:     string(loaded.Format),
		HTML:       template.HTML(loaded.HTML),
		AutoFit:    loaded.AutoFit,
		Generation: loaded.Generation,
		Capabilities: map[string]any{
			"crop":       loaded.Format.Croppable(),
			"copy_image": loaded.Format.Croppable(),
			"download":   loaded.Format.RetainsBlob() && len(loaded.Blob) > 0,
			"save":       loaded.Format.RetainsBlob() && len(loaded.Blob) > 0,
		},
	})
}

// writeViewError responds with an inline error fragment the page can
// show in place of content. Load failures never leave a blank screen.
func (s *Server) writeViewError(w http.ResponseWriter, sessionID string, err error) {
	msg := err.Error()
	var ue *schema.UMLError
	status := http.StatusInternalServerError
	if schemaErr, ok := err.(*schema.UMLError); ok {
		ue = schemaErr
		msg = ue.Message
		status = statusFor(ue.Code)
	}
	fragment := fmt.Sprintf(`<div class="viewer-error">%s</div>`, template.HTMLEscapeString(msg))
	body := map[string]any{
		"session": sessionID,
		"error":   msg,
		"html":    fragment,
	}
	if ue != nil {
		body["code"] = ue.Code
	}
	writeJSON(w, status, body)
}

// cropRequest is the /api/view/crop body.
type cropRequest struct {
	Session   string      `json:"session"`
	Mode      string      `json:"mode"` // save | zoom
	Selection viewer.Rect `json:"selection"`
	Container struct {
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"container"`
}

// handleCrop crops the current payload to a content-space selection.
// Mode "save" streams the derived blob; mode "zoom" returns the
// transform that fills the container with the selection.
func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	var req cropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	sess, ok := s.sessions.lookup(req.Session)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown viewer session")
		return
	}
	if req.Selection.Empty() {
		writeError(w, http.StatusBadRequest, "selection is empty")
		return
	}

	switch req.Mode {
	case "zoom":
		var scale, panX, panY float64
		applied := false
		sess.Transform(func(st *viewer.ViewerState) {
			sel := req.Selection
			st.Selection = &sel
			applied = st.ZoomToSelection(req.Container.W, req.Container.H)
			scale, panX, panY = st.Scale, st.PanX, st.PanY
		})
		if !applied {
			writeError(w, http.StatusBadRequest, "selection could not be applied")
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{
			"scale": scale,
			"pan_x": panX,
			"pan_y": panY,
		})

	case "save", "":
		current := sess.Current()
		if current == nil {
			writeError(w, http.StatusNotFound, "no payload loaded")
			return
		}
		blob, format, err := viewer.Crop(current.Format, current.Blob, req.Selection)
		if err != nil {
			writeUMLError(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("X-Umlview-Format", string(format))
		w.WriteHeader(http.StatusOK)
		w.Write(blob)

	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown crop mode %q", req.Mode))
	}
}
