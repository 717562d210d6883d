package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Artifact sources record which surface produced a saved file.
const (
	ArtifactSourceSave   = "save"   // POST /api/uml/save upload
	ArtifactSourceCrop   = "crop"   // crop-and-save from the viewer
	ArtifactSourceRender = "render" // one-shot render written to disk
	ArtifactSourceMCP    = "mcp"    // MCP tool call
)

// CacheEntry is one rendered diagram in the render cache, keyed by content hash.
type CacheEntry struct {
	Key         string     `json:"key"`
	DiagramType string     `json:"diagram_type"`
	Format      string     `json:"format"`
	Backend     string     `json:"backend"`
	ContentType string     `json:"content_type"`
	Blob        []byte     `json:"-"`
	Size        int64      `json:"size"`
	Hits        int64      `json:"hits"`
	CreatedAt   time.Time  `json:"created_at"`
	LastHitAt   *time.Time `json:"last_hit_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Artifact is the metadata row for a file written under the output directory.
type Artifact struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Relative    string    `json:"relative"` // path relative to the output root, e.g. "uml/uml_saved_1712345.png"
	MIME        string    `json:"mime"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256"`
	Source      string    `json:"source"`
	DiagramType string    `json:"diagram_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CacheStats summarizes the render cache contents.
type CacheStats struct {
	Entries    int64 `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	TotalHits  int64 `json:"total_hits"`
}

// ArtifactFilter specifies criteria for listing artifacts.
type ArtifactFilter struct {
	Source string     `json:"source,omitempty"`
	MIME   string     `json:"mime,omitempty"`
	Since  *time.Time `json:"since,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// CacheKey derives the cache key for a render request. Two requests that
// would produce the same bytes hash to the same key, so option order
// must not matter.
func CacheKey(diagramType, format, backend, source string, options map[string]string) string {
	h := sha256.New()
	for _, part := range []string{diagramType, format, backend, source} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	if len(options) > 0 {
		keys := make([]string, 0, len(options))
		for k := range options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{'='})
			h.Write([]byte(options[k]))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
