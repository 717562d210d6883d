package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/streaming"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// Upload limits and naming rules for /api/uml/save.
const (
	maxUploadBytes = 32 << 20
	maxFilenameLen = 200
)

// allowedMIME is the upload allow-list.
var allowedMIME = map[string]bool{
	"image/png":     true,
	"image/svg+xml": true,
	"image/jpeg":    true,
}

// mimeToExt maps allowed MIME types to file extensions.
var mimeToExt = map[string]string{
	"image/png":     "png",
	"image/svg+xml": "svg",
	"image/jpeg":    "jpeg",
}

// safeExt picks the saved file's extension: MIME first, then the
// client filename. jpg maps to png here, a quirk kept from the
// upstream viewer so existing tooling sees the same names.
func safeExt(mimeType, filename string) string {
	if ext, ok := mimeToExt[mimeType]; ok {
		return ext
	}
	if filename != "" {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
		switch ext {
		case "png", "svg", "jpeg":
			return ext
		case "jpg":
			return "png"
		}
	}
	return "png"
}

// handleSave persists an uploaded diagram under <output>/uml/ and
// records an artifact row.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// The upstream viewer sometimes posts the blob as "image".
		file, header, err = r.FormFile("image")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file in request (use field 'file' or 'image')")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read file: %v", err))
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Empty file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	mimeType, _, _ := strings.Cut(contentType, ";")
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType != "" && !allowedMIME[mimeType] {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Disallowed type: %s. Use image/png, image/svg+xml, or image/jpeg", contentType))
		return
	}

	ext := safeExt(mimeType, header.Filename)
	name := fmt.Sprintf("uml_saved_%d.%s", time.Now().UnixMilli(), ext)
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}

	outDir := filepath.Join(s.deps.OutputDir, "uml")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		streaming.Notify(r.Context(), s.deps.Hub, schema.EventSaveFailed, err.Error(), nil)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	relative := filepath.Join("uml", name)
	if s.deps.Store != nil {
		sum := sha256.Sum256(body)
		artifact := &store.Artifact{
			ID:        uuid.New().String(),
			Filename:  name,
			Relative:  relative,
			MIME:      mimeType,
			Size:      int64(len(body)),
			SHA256:    hex.EncodeToString(sum[:]),
			Source:    store.ArtifactSourceSave,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.deps.Store.RecordArtifact(r.Context(), artifact); err != nil {
			s.deps.Logger.Warn("artifact record failed", "filename", name, "error", err)
		}
	}

	streaming.Notify(r.Context(), s.deps.Hub, schema.EventSaveCompleted,
		fmt.Sprintf("saved %s (%d bytes)", name, len(body)), map[string]any{"filename": name})

	writeJSON(w, http.StatusOK, map[string]string{
		"path":     path,
		"filename": name,
		"relative": relative,
	})
}

// handleProxy fetches a URL on the viewer's behalf when a direct
// cross-origin fetch failed in the page. The CEL policy gates every
// request; a denial is a 403, not a pass-through.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	if err := s.deps.Policy.Check(r.Context(), target); err != nil {
		streaming.Notify(r.Context(), s.deps.Hub, schema.EventProxyDenied, target, nil)
		writeUMLError(w, err)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid url: %v", err))
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("proxy fetch failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, io.LimitReader(resp.Body, maxUploadBytes))
}
