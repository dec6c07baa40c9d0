package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"document-rag-platform/internal/logger"
	"document-rag-platform/models"
	"document-rag-platform/utils"
)

// QueryCache memoizes full query responses in Redis. Answers plus chunk
// previews compress well, so payloads above the small-value threshold are
// stored brotli compressed. Every cache failure is a miss: queries must
// keep working when Redis is down.
type QueryCache struct {
	client  *redis.Client
	ttl     time.Duration
	enabled bool
}

// cachedPayload wraps the compressed response with its algorithm so the
// reader does not have to guess.
type cachedPayload struct {
	Compression string `json:"compression"`
	Data        []byte `json:"data"`
}

// NewQueryCache creates a new query cache. A nil client disables caching.
func NewQueryCache(client *redis.Client, ttl time.Duration) *QueryCache {
	return &QueryCache{
		client:  client,
		ttl:     ttl,
		enabled: client != nil,
	}
}

// Enabled reports whether the cache is backed by a live client.
func (qc *QueryCache) Enabled() bool {
	return qc.enabled
}

// key embeds the document id in clear so invalidation can match by
// document, and hashes the request knobs that change the response.
func (qc *QueryCache) key(fileID, query string, topK int, withSimilarity bool) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%t", query, topK, withSimilarity)))
	return fmt.Sprintf("query:%s:%s", fileID, hex.EncodeToString(sum[:16]))
}

// Get returns the cached response for this exact request, or a miss.
func (qc *QueryCache) Get(ctx context.Context, fileID, query string, topK int, withSimilarity bool) (*models.QueryResponse, bool) {
	if !qc.enabled {
		return nil, false
	}

	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()

	raw, err := qc.client.Get(ctx, qc.key(fileID, query, topK, withSimilarity)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("Query cache read failed", "error", err.Error())
		return nil, false
	}

	var payload cachedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warn("Query cache entry corrupted", "error", err.Error())
		return nil, false
	}

	decoded, err := utils.DecompressText(payload.Data, utils.CompressionAlgorithm(payload.Compression))
	if err != nil {
		logger.Warn("Query cache decompression failed", "error", err.Error())
		return nil, false
	}

	var resp models.QueryResponse
	if err := json.Unmarshal([]byte(decoded), &resp); err != nil {
		logger.Warn("Query cache entry corrupted", "error", err.Error())
		return nil, false
	}

	resp.Cached = true
	return &resp, true
}

// Set stores the response with the configured TTL. Failures are logged
// and ignored.
func (qc *QueryCache) Set(ctx context.Context, fileID, query string, topK int, withSimilarity bool, resp *models.QueryResponse) {
	if !qc.enabled || resp == nil {
		return
	}

	ctx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()

	encoded, err := json.Marshal(resp)
	if err != nil {
		logger.Warn("Query cache encode failed", "error", err.Error())
		return
	}

	compressed, algorithm, err := utils.CompressText(string(encoded))
	if err != nil {
		logger.Warn("Query cache compression failed", "error", err.Error())
		return
	}

	payload, err := json.Marshal(cachedPayload{
		Compression: string(algorithm),
		Data:        compressed,
	})
	if err != nil {
		logger.Warn("Query cache encode failed", "error", err.Error())
		return
	}

	if err := qc.client.Set(ctx, qc.key(fileID, query, topK, withSimilarity), payload, qc.ttl).Err(); err != nil {
		logger.Warn("Query cache write failed", "error", err.Error())
	}
}

// InvalidateDocument removes every cached response for one document.
// Called when the document is deleted or re-ingested.
func (qc *QueryCache) InvalidateDocument(ctx context.Context, fileID string) {
	if !qc.enabled {
		return
	}

	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	pattern := fmt.Sprintf("query:%s:*", fileID)
	iter := qc.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Warn("Query cache scan failed", "file_id", fileID, "error", err.Error())
		return
	}

	if len(keys) > 0 {
		if err := qc.client.Del(ctx, keys...).Err(); err != nil {
			logger.Warn("Query cache invalidation failed", "file_id", fileID, "error", err.Error())
			return
		}
		logger.Debug("Query cache invalidated", "file_id", fileID, "entries", len(keys))
	}
}
