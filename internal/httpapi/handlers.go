package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/internal/logging"
	"github.com/nodecanvas/umlview/internal/normalize"
	"github.com/nodecanvas/umlview/internal/streaming"
	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// maxBodyBytes caps request bodies on the JSON endpoints.
const maxBodyBytes = 8 << 20

// handleNormalize repairs a workflow document. The response always
// carries a document the host can load: unparseable input falls down
// the repair chain to the minimal valid document.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	doc, report, err := normalize.Normalize(raw)
	if err != nil {
		// Not a JSON object at all: run the fallback chain so the
		// caller still gets something loadable, and say so.
		repaired, rep := normalize.Repair(raw)
		streaming.Notify(r.Context(), s.deps.Hub, schema.EventNormalizeFallback,
			"input was not a JSON object; fallback document served", nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"document": json.RawMessage(repaired),
			"report":   rep,
			"fallback": true,
		})
		return
	}

	result := s.verifier.Verify(doc)
	streaming.Notify(r.Context(), s.deps.Hub, schema.EventNormalizeCompleted,
		fmt.Sprintf("normalized workflow with %d repairs", len(report.Repairs)), nil)

	writeJSON(w, http.StatusOK, map[string]any{
		"document":     doc,
		"report":       report,
		"verification": result,
	})
}

// handlePrompt patches a compiled prompt against its live document.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt   json.RawMessage `json:"prompt"`
		Workflow json.RawMessage `json:"workflow"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(body.Prompt) == 0 {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	compiled, err := normalize.ParsePrompt(body.Prompt)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid prompt: %v", err))
		return
	}

	var doc *schema.Document
	if len(body.Workflow) > 0 {
		if d, _, nerr := normalize.Normalize(body.Workflow); nerr == nil {
			doc = d
		}
	}

	report := normalize.PatchPrompt(compiled, doc)
	writeJSON(w, http.StatusOK, map[string]any{
		"prompt": compiled,
		"report": report,
	})
}

// renderRequest is the /api/diagram/render body.
type renderRequest struct {
	Type    string         `json:"type"`
	Source  string         `json:"source"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
	Backend string         `json:"backend,omitempty"`
}

// handleRender renders one diagram: cache, then the local renderer
// when selected, then the Kroki web service.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	typ, err := diagram.ParseType(req.Type)
	if err != nil {
		writeUMLError(w, err)
		return
	}
	format := diagram.FormatSVG
	if req.Format != "" {
		f, ok := diagram.ParseFormat(req.Format)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", req.Format))
			return
		}
		format = f
	}
	if err := diagram.ValidateRender(typ, format); err != nil {
		writeUMLError(w, err)
		return
	}
	source := req.Source
	if strings.TrimSpace(source) == "" {
		source = kroki.DefaultSource(typ)
	}
	backend := req.Backend
	if backend == "" {
		backend = s.deps.Backend
	}

	ctx := logging.WithDiagramType(r.Context(), string(typ))
	blob, cached, err := s.renderer.Render(ctx, kroki.RenderRequest{
		Type:    typ,
		Format:  format,
		Source:  source,
		Options: kroki.Options(req.Options),
		Backend: backend,
	})
	if err != nil {
		logging.LogWith(ctx, s.deps.Logger).Warn("render failed", "type", typ, "format", format, "error", err)
		streaming.Notify(ctx, s.deps.Hub, schema.EventRenderFailed, err.Error(),
			map[string]any{"type": string(typ), "format": string(format)})
		writeUMLError(w, err)
		return
	}

	cacheState := "miss"
	if cached {
		cacheState = "hit"
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-Umlview-Cache", cacheState)
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

// handleLLMModels lists the model tags an Ollama instance offers.
func (s *Server) handleLLMModels(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	models, err := s.deps.LLM.ListOllamaModels(r.Context(), body.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models)
}
