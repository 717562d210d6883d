package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/internal/normalize"
	"github.com/nodecanvas/umlview/internal/prompt"
	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/pkg/diagram"
)

// handleRender renders a diagram and, by default, writes the result
// under the output directory so the caller gets a local path alongside
// the share URL.
func (s *UMLServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required"), nil
	}
	typ, err := diagram.ParseType(rawType)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, ok := diagram.ParseFormat(req.GetString("format", "svg"))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown output format: %s", req.GetString("format", ""))), nil
	}
	if err := diagram.ValidateRender(typ, format); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	source := req.GetString("source", "")
	if source == "" {
		source = kroki.DefaultSource(typ)
	}
	if source == "" {
		return mcp.NewToolResultError(fmt.Sprintf("no source given and no example source for %s", typ)), nil
	}

	s.captureSession(ctx)

	renderReq := kroki.RenderRequest{
		Type:    typ,
		Format:  format,
		Source:  source,
		Options: kroki.Options(mcp.ParseStringMap(req, "options", nil)),
		Backend: req.GetString("backend", ""),
	}

	blob, cached, renderErr := s.renderer.Render(ctx, renderReq)
	if renderErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", renderErr)), nil
	}

	result := map[string]any{
		"type":   string(typ),
		"format": string(format),
		"cached": cached,
		"size":   len(blob),
	}

	// Text outputs are small enough to return inline.
	if format == diagram.FormatTxt || format == diagram.FormatBase64 {
		result["content"] = string(blob)
	}

	if shareURL, urlErr := s.renderer.ShareURL(renderReq); urlErr == nil {
		result["share_url"] = shareURL
		urls := diagram.BuildViewerURLs(shareURL)
		result["viewer_url"] = urls.Page
		result["viewer_url_iframe"] = urls.Iframe
	}

	if req.GetBool("save", true) && s.outputDir != "" {
		relative, path, saveErr := s.saveRendered(ctx, typ, format, blob)
		if saveErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("render succeeded but save failed: %v", saveErr)), nil
		}
		result["path"] = path
		result["relative"] = relative
	}

	return marshalResult(result)
}

// handleTypes returns the diagram type / output format matrix.
func (s *UMLServer) handleTypes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	types := diagram.Types()
	entries := make([]map[string]any, 0, len(types))
	for _, t := range types {
		formats := t.OutputFormats()
		names := make([]string, len(formats))
		for i, f := range formats {
			names[i] = string(f)
		}
		entries = append(entries, map[string]any{
			"type":    string(t),
			"formats": names,
		})
	}
	return marshalResult(map[string]any{"types": entries})
}

// handleNormalize repairs a workflow graph document. Parse failures
// fall back to the element-dropping repair pass so the tool never
// refuses malformed content outright.
func (s *UMLServer) handleNormalize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	s.captureSession(ctx)

	doc, report, normErr := normalize.Normalize([]byte(raw))
	if normErr != nil {
		repaired, repairReport := normalize.Repair([]byte(raw))
		return marshalResult(map[string]any{
			"document": json.RawMessage(repaired),
			"report":   repairReport,
			"fallback": true,
		})
	}

	return marshalResult(map[string]any{
		"document":     doc,
		"report":       report,
		"verification": s.verifier.Verify(doc),
	})
}

// handlePreview builds viewer page links for a payload URL.
func (s *UMLServer) handlePreview(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("url is required"), nil
	}
	return marshalResult(diagram.BuildViewerURLs(target))
}

// handlePrompt assembles the LLM prompt triple from a preset or
// inline template.
func (s *UMLServer) handlePrompt(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError("description is required"), nil
	}

	built := s.prompts.Build(prompt.BuildInput{
		Template:    req.GetString("template", ""),
		Description: description,
		Positive:    req.GetString("positive", ""),
		Negative:    req.GetString("negative", ""),
		PresetFile:  req.GetString("preset", ""),
		DiagramType: req.GetString("diagram_type", ""),
		Format:      req.GetString("format", ""),
	})

	return marshalResult(map[string]any{
		"prompt":      built.Prompt,
		"positive":    built.Positive,
		"negative":    built.Negative,
		"user_prompt": built.UserPrompt(),
	})
}

// --- Internal helpers ---

// saveRendered writes a rendered blob under <output>/uml/ and records
// the artifact row when a store is attached.
func (s *UMLServer) saveRendered(ctx context.Context, typ diagram.Type, format diagram.Format, blob []byte) (relative, path string, err error) {
	name := fmt.Sprintf("uml_%s_%d.%s", typ, time.Now().UnixMilli(), formatExt(format))
	outDir := filepath.Join(s.outputDir, "uml")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", err
	}
	path = filepath.Join(outDir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", "", err
	}

	relative = filepath.Join("uml", name)
	if s.store != nil {
		sum := sha256.Sum256(blob)
		artifact := &store.Artifact{
			ID:          uuid.New().String(),
			Filename:    name,
			Relative:    relative,
			MIME:        format.ContentType(),
			Size:        int64(len(blob)),
			SHA256:      hex.EncodeToString(sum[:]),
			Source:      store.ArtifactSourceMCP,
			DiagramType: string(typ),
			CreatedAt:   time.Now().UTC(),
		}
		if recErr := s.store.RecordArtifact(ctx, artifact); recErr != nil {
			s.logger.Warn("artifact record failed", "filename", name, "error", recErr)
		}
	}
	return relative, path, nil
}

// formatExt maps an output format to its file extension.
func formatExt(f diagram.Format) string {
	switch f {
	case diagram.FormatJPEG:
		return "jpg"
	case diagram.FormatTxt, diagram.FormatBase64:
		return "txt"
	default:
		return string(f)
	}
}

// captureSession remembers the calling MCP session so hub events can
// be pushed back to it.
func (s *UMLServer) captureSession(ctx context.Context) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
