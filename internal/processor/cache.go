package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/seanankenbruck/samarth-qa/internal/observability"
)

const cacheKeyPrefix = "qa:"

// ResponseCache keeps answered envelopes in Redis. A nil cache is a no-op.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *observability.Logger
}

type cachedResponse struct {
	Response
	UsedFallback bool   `json:"used_fallback"`
	Rule         string `json:"rule,omitempty"`
}

// NewResponseCache creates a cache with the given entry TTL
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ResponseCache{
		client: client,
		ttl:    ttl,
		logger: observability.NewLogger("response-cache"),
	}
}

func cacheKey(question string) string {
	return cacheKeyPrefix + question
}

// Get returns the cached envelope for question, if any
func (rc *ResponseCache) Get(ctx context.Context, question string) (*Response, bool) {
	if rc == nil {
		return nil, false
	}

	data, err := rc.client.Get(ctx, cacheKey(question)).Bytes()
	if err != nil {
		if err != redis.Nil {
			rc.logger.Warn(ctx, "Failed to read cached response", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, false
	}

	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		rc.logger.Warn(ctx, "Discarding malformed cached response", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}

	resp := cached.Response
	resp.UsedFallback = cached.UsedFallback
	resp.Rule = cached.Rule
	resp.Cached = true
	return &resp, true
}

// Set stores an envelope. Failures are logged, never returned.
func (rc *ResponseCache) Set(ctx context.Context, question string, resp *Response) {
	if rc == nil {
		return
	}

	data, err := json.Marshal(cachedResponse{Response: *resp, UsedFallback: resp.UsedFallback, Rule: resp.Rule})
	if err != nil {
		rc.logger.Warn(ctx, "Failed to encode response for cache", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := rc.client.Set(ctx, cacheKey(question), data, rc.ttl).Err(); err != nil {
		rc.logger.Warn(ctx, "Failed to cache response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Ping checks the Redis connection
func (rc *ResponseCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}
