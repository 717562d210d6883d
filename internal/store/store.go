package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Render cache
	GetCached(ctx context.Context, key string) (*CacheEntry, error)
	PutCached(ctx context.Context, entry *CacheEntry) error
	DeleteCached(ctx context.Context, key string) error
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
	CacheStats(ctx context.Context) (*CacheStats, error)

	// Saved artifacts (append-mostly metadata)
	RecordArtifact(ctx context.Context, artifact *Artifact) error
	GetArtifact(ctx context.Context, id string) (*Artifact, error)
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]*Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
