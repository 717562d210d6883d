package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nodecanvas/umlview/internal/streaming"
)

// MCPNotifier pushes pipeline events to connected MCP sessions.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP notifications.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Broadcast sends a notification to every registered session.
// Best-effort: expired sessions are dropped from the registry, other
// send errors are ignored.
func (n *MCPNotifier) Broadcast(_ context.Context, payload map[string]any) {
	for _, sessionID := range n.sessions.Sessions() {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sessionID)
		}
	}
}

// startNotifier subscribes to the event hub and forwards render, save
// and normalize events to connected sessions until ctx is cancelled.
// The returned stop function blocks until the forwarder exits.
func (s *UMLServer) startNotifier(ctx context.Context) func() {
	events, cancel, err := s.hub.Subscribe(ctx, streaming.Filter{})
	if err != nil {
		s.logger.Warn("event subscription failed", "error", err)
		return func() {}
	}

	notifier := NewMCPNotifier(s.mcpServer, s.sessions)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			payload := map[string]any{
				"type":      event.Type,
				"message":   event.Message,
				"timestamp": event.Timestamp,
			}
			if len(event.Details) > 0 {
				payload["details"] = event.Details
			}
			notifier.Broadcast(ctx, payload)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
