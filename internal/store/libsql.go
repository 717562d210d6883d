package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Render cache ---

// GetCached returns the cache entry for key and counts the hit.
// Expired rows read as misses; the janitor removes them.
func (s *LibSQLStore) GetCached(ctx context.Context, key string) (*CacheEntry, error) {
	e := &CacheEntry{}
	var lastHit, expires sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT key, diagram_type, format, backend, content_type, blob, size, hits, created_at, last_hit_at, expires_at
		 FROM render_cache WHERE key = ?`, key,
	).Scan(&e.Key, &e.DiagramType, &e.Format, &e.Backend, &e.ContentType, &e.Blob,
		&e.Size, &e.Hits, &e.CreatedAt, &lastHit, &expires)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("cache entry", key)
	}
	if err != nil {
		return nil, err
	}
	if lastHit.Valid {
		e.LastHitAt = &lastHit.Time
	}
	if expires.Valid {
		e.ExpiresAt = &expires.Time
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(time.Now().UTC()) {
		return nil, storeNotFound("cache entry", key)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE render_cache SET hits = hits + 1, last_hit_at = CURRENT_TIMESTAMP WHERE key = ?`, key,
	); err != nil {
		return nil, fmt.Errorf("count cache hit: %w", err)
	}
	e.Hits++
	return e, nil
}

// PutCached inserts or replaces the cache entry for entry.Key.
// Re-rendering the same content refreshes the blob and expiry but keeps the hit count.
func (s *LibSQLStore) PutCached(ctx context.Context, entry *CacheEntry) error {
	if entry.Size == 0 {
		entry.Size = int64(len(entry.Blob))
	}
	backend := entry.Backend
	if backend == "" {
		backend = "web"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO render_cache (key, diagram_type, format, backend, content_type, blob, size, hits, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   content_type=excluded.content_type, blob=excluded.blob, size=excluded.size,
		   expires_at=excluded.expires_at`,
		entry.Key, entry.DiagramType, entry.Format, backend, entry.ContentType, entry.Blob,
		entry.Size, timeOrNow(entry.CreatedAt), nullTime(entry.ExpiresAt),
	)
	return err
}

func (s *LibSQLStore) DeleteCached(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM render_cache WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "cache entry", key)
}

// PruneExpired deletes cache rows whose expiry is at or before now and
// returns the number of rows removed.
func (s *LibSQLStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM render_cache WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *LibSQLStore) CacheStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(hits), 0) FROM render_cache`,
	).Scan(&stats.Entries, &stats.TotalBytes, &stats.TotalHits)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// --- Artifacts ---

func (s *LibSQLStore) RecordArtifact(ctx context.Context, artifact *Artifact) error {
	source := artifact.Source
	if source == "" {
		source = ArtifactSourceSave
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, filename, relative, mime, size, sha256, source, diagram_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artifact.ID, artifact.Filename, artifact.Relative, artifact.MIME, artifact.Size,
		artifact.SHA256, source, nullStr(artifact.DiagramType), timeOrNow(artifact.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	a := &Artifact{}
	var diagramType sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, relative, mime, size, sha256, source, diagram_type, created_at
		 FROM artifacts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Filename, &a.Relative, &a.MIME, &a.Size, &a.SHA256, &a.Source, &diagramType, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("artifact", id)
	}
	if err != nil {
		return nil, err
	}
	a.DiagramType = diagramType.String
	return a, nil
}

func (s *LibSQLStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]*Artifact, error) {
	var where []string
	var args []any

	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.MIME != "" {
		where = append(where, "mime = ?")
		args = append(args, filter.MIME)
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, filename, relative, mime, size, sha256, source, diagram_type, created_at FROM artifacts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// rowid breaks created_at ties in insertion order.
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a := &Artifact{}
		var diagramType sql.NullString
		if err := rows.Scan(&a.ID, &a.Filename, &a.Relative, &a.MIME, &a.Size, &a.SHA256,
			&a.Source, &diagramType, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.DiagramType = diagramType.String
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (s *LibSQLStore) DeleteArtifact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "artifact", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.UMLError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
