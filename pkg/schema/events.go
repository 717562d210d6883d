package schema

import "time"

// Event type constants for the viewer status stream.
const (
	EventRenderStarted   = "render_started"
	EventRenderCompleted = "render_completed"
	EventRenderFailed    = "render_failed"
	EventRenderCached    = "render_cached"

	EventSaveCompleted = "save_completed"
	EventSaveFailed    = "save_failed"

	EventNormalizeCompleted = "normalize_completed"
	EventNormalizeFallback  = "normalize_fallback"

	EventProxyDenied  = "proxy_denied"
	EventCacheSwept   = "cache_swept"
	EventWatchChanged = "watch_changed"
)

// Event is one entry on the status stream: transient render/save/normalize
// notices the viewer surfaces instead of throwing.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
