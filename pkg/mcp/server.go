// Package mcp exposes umlview over the Model Context Protocol:
// diagram rendering, the type/format matrix, workflow normalization,
// viewer links and prompt assembly, served over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/internal/normalize"
	"github.com/nodecanvas/umlview/internal/prompt"
	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/streaming"
)

// UMLServerDeps holds the dependencies for creating a UMLServer.
// Store and Hub are optional; without a Store rendered files are still
// written but no artifact rows are recorded.
type UMLServerDeps struct {
	Renderer  *kroki.Service
	Store     store.Store
	Prompts   *prompt.Engine
	Hub       streaming.EventHub
	Logger    *slog.Logger
	OutputDir string
}

// UMLServer wraps an MCP server with umlview tool handlers.
type UMLServer struct {
	renderer  *kroki.Service
	store     store.Store
	prompts   *prompt.Engine
	hub       streaming.EventHub
	logger    *slog.Logger
	outputDir string
	verifier  *normalize.Verifier
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewUMLServer creates a new UMLServer with all 5 tools registered.
func NewUMLServer(deps UMLServerDeps) (*UMLServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	verifier, err := normalize.NewVerifier()
	if err != nil {
		return nil, err
	}

	s := &UMLServer{
		renderer:  deps.Renderer,
		store:     deps.Store,
		prompts:   deps.Prompts,
		hub:       deps.Hub,
		logger:    logger,
		outputDir: deps.OutputDir,
		verifier:  verifier,
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"umlview",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("umlview renders textual diagram descriptions (Mermaid, PlantUML, Graphviz, ...) into images. Use uml.render to render a diagram, uml.types to list supported diagram types and output formats, uml.normalize to repair a workflow graph document, uml.preview to build viewer page links for a rendered diagram, and uml.prompt to assemble LLM prompts for diagram generation."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *UMLServer) Serve(ctx context.Context) error {
	if s.hub != nil {
		stop := s.startNotifier(ctx)
		defer stop()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *UMLServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *UMLServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: typesTool(), Handler: s.handleTypes},
		{Tool: normalizeTool(), Handler: s.handleNormalize},
		{Tool: previewTool(), Handler: s.handlePreview},
		{Tool: promptTool(), Handler: s.handlePrompt},
	}
}

// --- Tool definitions ---

func renderTool() mcp.Tool {
	return mcp.NewTool("uml.render",
		mcp.WithDescription("Render a diagram from textual source. Saves the image under the output directory and returns the path plus a Kroki share URL and viewer links"),
		mcp.WithString("type", mcp.Required(), mcp.Description("Diagram type, e.g. mermaid, plantuml, graphviz (see uml.types)")),
		mcp.WithString("source", mcp.Description("Diagram source text (default: the type's example source)")),
		mcp.WithString("format", mcp.Description("Output format: svg, png, jpeg, pdf, txt or base64 (default: svg)")),
		mcp.WithString("backend", mcp.Enum("web", "local"), mcp.Description("Render backend: web (Kroki) or local (in-process Graphviz with web fallback)")),
		mcp.WithObject("options", mcp.Description("Diagram options forwarded to the renderer")),
		mcp.WithBoolean("save", mcp.Description("Write the rendered diagram to the output directory (default true)")),
	)
}

func typesTool() mcp.Tool {
	return mcp.NewTool("uml.types",
		mcp.WithDescription("List the supported diagram types and the output formats each allows"),
	)
}

func normalizeTool() mcp.Tool {
	return mcp.NewTool("uml.normalize",
		mcp.WithDescription("Repair a workflow graph document into its canonical shape: rebuilt links, synthesized group bounds, canonical id counters and defaulted containers. Never fails on malformed content"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("The workflow document as a JSON string")),
	)
}

func previewTool() mcp.Tool {
	return mcp.NewTool("uml.preview",
		mcp.WithDescription("Build viewer page links (standalone and embeddable) for a rendered diagram URL"),
		mcp.WithString("url", mcp.Required(), mcp.Description("The payload URL, typically a Kroki share URL")),
	)
}

func promptTool() mcp.Tool {
	return mcp.NewTool("uml.prompt",
		mcp.WithDescription("Assemble an LLM prompt for diagram generation from a preset or inline template plus a description"),
		mcp.WithString("description", mcp.Required(), mcp.Description("What the diagram should show")),
		mcp.WithString("preset", mcp.Description("Name of a bundled prompt preset (e.g. mermaid)")),
		mcp.WithString("template", mcp.Description("Inline template with {{expression}} placeholders; the preset wins when both are given")),
		mcp.WithString("diagram_type", mcp.Description("Diagram type exposed to the template as diagram_type")),
		mcp.WithString("format", mcp.Description("Output format exposed to the template as format")),
		mcp.WithString("positive", mcp.Description("Extra positive instructions")),
		mcp.WithString("negative", mcp.Description("Negative instructions (things the model must not do)")),
	)
}
