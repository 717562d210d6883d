package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/viewer"
)

// Thumbnail sizing for /api/uml/artifacts/{id}/thumbnail.
const (
	defaultThumbDim = 256
	maxThumbDim     = 1024
)

// handleArtifacts lists recorded artifacts, newest first. Source and
// MIME filters and limit/offset paging come from the query string.
func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact log disabled: no database configured")
		return
	}

	filter := store.ArtifactFilter{
		Source: r.URL.Query().Get("source"),
		MIME:   r.URL.Query().Get("mime"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	artifacts, err := s.deps.Store.ListArtifacts(r.Context(), filter)
	if err != nil {
		writeUMLError(w, err)
		return
	}
	if artifacts == nil {
		artifacts = []*store.Artifact{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

// handleArtifactThumbnail serves a downscaled PNG preview of a raster
// artifact. SVG artifacts scale losslessly in the page, so they are
// served verbatim.
func (s *Server) handleArtifactThumbnail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "artifact log disabled: no database configured")
		return
	}

	artifact, err := s.deps.Store.GetArtifact(r.Context(), r.PathValue("id"))
	if err != nil {
		writeUMLError(w, err)
		return
	}
	if artifact == nil {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if !filepath.IsLocal(artifact.Relative) {
		writeError(w, http.StatusBadRequest, "artifact path is not relative to the output directory")
		return
	}

	data, err := os.ReadFile(filepath.Join(s.deps.OutputDir, artifact.Relative))
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("artifact payload missing: %v", err))
		return
	}

	switch artifact.MIME {
	case "image/png", "image/jpeg":
		dim := queryInt(r, "size", defaultThumbDim)
		if dim > maxThumbDim {
			dim = maxThumbDim
		}
		thumb, err := viewer.Thumbnail(data, dim)
		if err != nil {
			writeUMLError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(thumb)
	case "image/svg+xml":
		w.Header().Set("Content-Type", artifact.MIME)
		w.Write(data)
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("no thumbnail for artifact type %s", artifact.MIME))
	}
}
