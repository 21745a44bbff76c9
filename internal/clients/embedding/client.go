// Package embedding provides the client for the multilingual text embedding
// service, plus a content-addressed cache so identical text always maps to an
// identical vector regardless of provider drift.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Provider maps a text string to a fixed-length dense vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Client is an HTTP client for the embedding microservice.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new embedding client.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("client", "embedding").Logger(),
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed requests a vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d", resp.StatusCode)
	}

	var payload embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}

	if len(payload.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}

	return payload.Embedding, nil
}

// CachedProvider wraps a Provider with a persistent content-hash cache.
// The first vector computed for a given text wins; later provider output for
// the same text is never consulted, which keeps discovery deterministic.
type CachedProvider struct {
	inner   Provider
	cacheDB *sql.DB
	log     zerolog.Logger
}

// NewCachedProvider creates a caching wrapper around inner, persisting
// vectors in the given cache database.
func NewCachedProvider(inner Provider, cacheDB *sql.DB, log zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cacheDB: cacheDB,
		log:     log.With().Str("component", "embedding_cache").Logger(),
	}
}

// Embed returns the cached vector for text, computing and storing it on a
// cache miss.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	hash := textHash(text)

	var blob []byte
	err := p.cacheDB.QueryRowContext(ctx,
		"SELECT vector FROM embedding_cache WHERE text_hash = ?", hash).Scan(&blob)
	switch {
	case err == nil:
		var vector []float64
		if err := msgpack.Unmarshal(blob, &vector); err != nil {
			return nil, fmt.Errorf("failed to decode cached embedding: %w", err)
		}
		return vector, nil
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("failed to query embedding cache: %w", err)
	}

	vector, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	blob, err = msgpack.Marshal(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}

	_, err = p.cacheDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO embedding_cache (text_hash, vector, created_at) VALUES (?, ?, ?)",
		hash, blob, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		// Cache write failure is not fatal; the vector is still usable.
		p.log.Warn().Err(err).Msg("Failed to persist embedding to cache")
	}

	return vector, nil
}

func textHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", sum)
}
