package discovery

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores ranked candidate lists in cache.db with a TTL. Keys include
// the snapshot version, so a rebuild naturally invalidates every entry; the
// cache is never authoritative and any failure degrades to recomputation.
type Cache struct {
	cacheDB *sql.DB
	ttl     time.Duration
	log     zerolog.Logger
}

// NewCache creates a discovery result cache.
func NewCache(cacheDB *sql.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		cacheDB: cacheDB,
		ttl:     ttl,
		log:     log.With().Str("component", "discovery_cache").Logger(),
	}
}

func cacheKey(cardID string, topK int, minScore float64, snapshotVersion string) string {
	return fmt.Sprintf("%s|%d|%g|%s", cardID, topK, minScore, snapshotVersion)
}

// Get returns the cached candidates for a key, or nil on miss, expiry or any
// error.
func (c *Cache) Get(cardID string, topK int, minScore float64, snapshotVersion string) []Candidate {
	key := cacheKey(cardID, topK, minScore, snapshotVersion)

	var (
		payload   []byte
		expiresAt string
	)
	err := c.cacheDB.QueryRow(
		"SELECT payload, expires_at FROM discovery_cache WHERE key = ?", key).
		Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Cache read failed, recomputing")
		return nil
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil || time.Now().UTC().After(expiry) {
		return nil
	}

	var candidates []Candidate
	if err := msgpack.Unmarshal(payload, &candidates); err != nil {
		c.log.Warn().Err(err).Msg("Cache payload corrupt, recomputing")
		return nil
	}
	return candidates
}

// Put stores candidates under a key. Failures only warn; the response was
// already computed.
func (c *Cache) Put(cardID string, topK int, minScore float64, snapshotVersion string, candidates []Candidate) {
	payload, err := msgpack.Marshal(candidates)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode cache payload")
		return
	}

	key := cacheKey(cardID, topK, minScore, snapshotVersion)
	expiresAt := time.Now().UTC().Add(c.ttl).Format(time.RFC3339)

	_, err = c.cacheDB.Exec(
		`INSERT INTO discovery_cache (key, payload, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		key, payload, expiresAt)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to write cache entry")
	}
}

// Prune drops expired entries.
func (c *Cache) Prune() error {
	_, err := c.cacheDB.Exec("DELETE FROM discovery_cache WHERE expires_at < ?",
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to prune discovery cache: %w", err)
	}
	return nil
}
