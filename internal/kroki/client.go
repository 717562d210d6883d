// Package kroki talks to a Kroki rendering service over HTTP and
// provides an in-process Graphviz fallback plus embedded example
// sources per diagram type.
package kroki

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// DefaultBaseURL is the public Kroki instance.
const DefaultBaseURL = "https://kroki.io"

// maxErrorBody caps how much upstream response text is quoted in errors.
const maxErrorBody = 200

// Options tune diagram engines server-side, e.g. GraphViz scale,
// Mermaid theme, BlockDiag antialias. Flag options carry an empty value.
type Options map[string]any

// Client renders diagrams through the Kroki web API.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// NewClient builds a client for the given Kroki base URL. An empty
// base URL selects the public instance.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	rc.HTTPClient.Timeout = 30 * time.Second

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		logger:  logger,
	}
}

// BaseURL returns the configured Kroki endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Render posts diagram source to the Kroki service and returns the
// rendered payload bytes. Plain-text POST is preferred; when options
// are present the request switches to the JSON body form so Kroki can
// hand them to the diagram engine.
func (c *Client) Render(ctx context.Context, typ diagram.Type, format diagram.Format, source string, opts Options) ([]byte, error) {
	if err := diagram.ValidateRender(typ, format); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, typ, format)

	var (
		body        []byte
		contentType string
	)
	if len(opts) > 0 {
		payload, err := json.Marshal(map[string]any{
			"diagram_source":  source,
			"diagram_options": opts,
		})
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeRender, "encode diagram options: %v", err).WithCause(err)
		}
		body = payload
		contentType = "application/json"
	} else {
		body = []byte(source)
		contentType = "text/plain; charset=utf-8"
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "kroki request failed: %v", err).WithCause(err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "kroki request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream, "kroki response read failed: %v", err).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeUpstream,
			"Kroki HTTP %d: %s", resp.StatusCode, truncate(string(data), maxErrorBody)).
			WithDetails(map[string]any{
				"status":       resp.StatusCode,
				"diagram_type": string(typ),
				"format":       string(format),
			})
	}

	c.logger.Debug("kroki render completed",
		"diagram_type", string(typ),
		"format", string(format),
		"bytes", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return decodeBase64Response(format, data), nil
}

// decodeBase64Response unwraps the base64 body Kroki returns for the
// base64 output format. Undecodable bodies pass through untouched.
func decodeBase64Response(format diagram.Format, content []byte) []byte {
	if format != diagram.FormatBase64 || len(content) == 0 {
		return content
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(content)))
	if err != nil {
		return content
	}
	return decoded
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
