package kroki

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nodecanvas/umlview/internal/store"
	"github.com/nodecanvas/umlview/internal/streaming"
	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// DefaultCacheTTL bounds how long rendered blobs stay cached.
const DefaultCacheTTL = 24 * time.Hour

// RenderRequest is one diagram render through the service pipeline.
type RenderRequest struct {
	Type    diagram.Type
	Format  diagram.Format
	Source  string
	Options Options
	// Backend is "web" (Kroki only) or "local" (in-process Graphviz
	// first, Kroki when the local renderer cannot serve). Empty uses
	// the service default.
	Backend string
}

// Service runs the render pipeline: cache lookup, then the local
// renderer when selected, then the Kroki web service, then a cache
// write. Store and Hub are optional.
type Service struct {
	client  *Client
	store   store.Store
	hub     streaming.EventHub
	logger  *slog.Logger
	ttl     time.Duration
	backend string
}

// ServiceOptions configures NewService. Zero values select the
// defaults.
type ServiceOptions struct {
	Store    store.Store
	Hub      streaming.EventHub
	Logger   *slog.Logger
	CacheTTL time.Duration
	Backend  string
}

// NewService wraps a Client in the cache/local/web pipeline.
func NewService(client *Client, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	backend := opts.Backend
	if backend == "" {
		backend = "web"
	}
	return &Service{
		client:  client,
		store:   opts.Store,
		hub:     opts.Hub,
		logger:  logger,
		ttl:     ttl,
		backend: backend,
	}
}

// Render validates the request and runs the pipeline. The bool result
// reports whether the blob came from the cache.
func (s *Service) Render(ctx context.Context, req RenderRequest) ([]byte, bool, error) {
	if err := diagram.ValidateRender(req.Type, req.Format); err != nil {
		return nil, false, err
	}
	if req.Source == "" {
		return nil, false, schema.NewError(schema.ErrCodeValidation, "diagram source is empty")
	}
	backend := req.Backend
	if backend == "" {
		backend = s.backend
	}

	key := store.CacheKey(string(req.Type), string(req.Format), backend, req.Source, flattenOptions(req.Options))
	if s.store != nil {
		if entry, err := s.store.GetCached(ctx, key); err == nil && entry != nil {
			streaming.Notify(ctx, s.hub, schema.EventRenderCached,
				fmt.Sprintf("%s/%s served from cache", req.Type, req.Format), nil)
			return entry.Blob, true, nil
		}
	}

	streaming.Notify(ctx, s.hub, schema.EventRenderStarted,
		fmt.Sprintf("rendering %s as %s via %s", req.Type, req.Format, backend), nil)

	var blob []byte
	if backend == "local" {
		local, ok, err := RenderLocal(ctx, req.Type, req.Format, req.Source)
		switch {
		case err != nil:
			// A broken local toolchain must not take rendering down; the
			// web service gets a chance at the same source.
			s.logger.Warn("local render failed, deferring to web",
				"type", req.Type, "format", req.Format, "error", err)
		case ok:
			blob = local
		}
	}
	if blob == nil {
		web, err := s.client.Render(ctx, req.Type, req.Format, req.Source, req.Options)
		if err != nil {
			return nil, false, err
		}
		blob = web
	}

	if s.store != nil {
		now := time.Now().UTC()
		expires := now.Add(s.ttl)
		entry := &store.CacheEntry{
			Key:         key,
			DiagramType: string(req.Type),
			Format:      string(req.Format),
			Backend:     backend,
			ContentType: req.Format.ContentType(),
			Blob:        blob,
			Size:        int64(len(blob)),
			CreatedAt:   now,
			ExpiresAt:   &expires,
		}
		if err := s.store.PutCached(ctx, entry); err != nil {
			s.logger.Warn("render cache write failed", "key", key, "error", err)
		}
	}

	streaming.Notify(ctx, s.hub, schema.EventRenderCompleted,
		fmt.Sprintf("%s/%s rendered (%d bytes)", req.Type, req.Format, len(blob)), nil)
	return blob, false, nil
}

// ShareURL builds the deflate+base64url GET link for the request
// against the service's Kroki base.
func (s *Service) ShareURL(req RenderRequest) (string, error) {
	return ShareURL(s.client.BaseURL(), req.Type, req.Format, req.Source, req.Options)
}

// flattenOptions stringifies render options for cache keying.
func flattenOptions(options Options) map[string]string {
	if len(options) == 0 {
		return nil
	}
	out := make(map[string]string, len(options))
	for k, v := range options {
		out[k] = fmt.Sprint(v)
	}
	return out
}
