package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CachedScore looks up a judged score by content hash and evaluator
// version. Returns nil on a miss. A hash cached under one evaluator
// version is never returned for another.
func (db *DB) CachedScore(contentHash, evaluatorVersion string) (*float64, error) {
	var score float64
	err := db.QueryRow(`
		SELECT score FROM score_cache
		WHERE content_hash = ? AND evaluator_version = ?
	`, contentHash, evaluatorVersion).Scan(&score)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cached score: %w", err)
	}
	return &score, nil
}

// StoreCachedScore upserts a judged score. Within one evaluator version
// the last write wins and refreshes the timestamp.
func (db *DB) StoreCachedScore(contentHash, evaluatorVersion string, score float64) error {
	_, err := db.Exec(`
		INSERT INTO score_cache (content_hash, evaluator_version, score, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (content_hash, evaluator_version)
		DO UPDATE SET score = excluded.score, cached_at = excluded.cached_at
	`, contentHash, evaluatorVersion, score, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store cached score: %w", err)
	}
	return nil
}

// CacheSize returns the number of cache entries. Entries are never
// purged; this keeps growth observable.
func (db *DB) CacheSize() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM score_cache").Scan(&n)
	return n, err
}
