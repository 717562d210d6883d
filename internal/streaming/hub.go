package streaming

import (
	"context"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// Filter specifies which events a subscriber wants to receive.
// An empty filter receives everything.
type Filter struct {
	Types []string `json:"types,omitempty"`
}

// EventHub provides pub/sub for viewer status events.
type EventHub interface {
	Publish(ctx context.Context, event schema.Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan schema.Event, func(), error)
}

// Notify publishes a status event, swallowing the error. Status notices
// are advisory; a failed publish must never fail the operation it reports on.
func Notify(ctx context.Context, hub EventHub, eventType, message string, details map[string]any) {
	if hub == nil {
		return
	}
	_ = hub.Publish(ctx, schema.Event{
		Type:    eventType,
		Message: message,
		Details: details,
	})
}
