package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/redact"
)

// ResultCache handles Redis-based caching of redaction results. Entries are
// keyed by the rule set fingerprint and a hash of the input, so a rule
// change never serves stale output.
type ResultCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache creates a new Redis-based result cache
func NewResultCache(config *Config, logger *zap.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	cache := newResultCache(redis.NewClient(opts), config, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		_ = cache.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache.logger.Info("Result cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

func newResultCache(client *redis.Client, config *Config, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{client: client, config: config, logger: logger}
}

// Get returns the cached result for text under the given rule set. Lookup
// failures are logged and reported as misses.
func (rc *ResultCache) Get(ctx context.Context, fingerprint, text string) (*CachedResult, bool) {
	key := rc.key(fingerprint, text)

	data, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		rc.misses.Add(1)
		rc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		rc.misses.Add(1)
		rc.logger.Warn("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		rc.misses.Add(1)
		rc.logger.Error("Failed to unmarshal cached result", zap.Error(err))
		rc.client.Del(ctx, key)
		return nil, false
	}

	rc.hits.Add(1)
	rc.logger.Debug("Cache hit", zap.String("key", key))
	return &cached, true
}

// Store caches a result. Original text captured in matches is dropped.
func (rc *ResultCache) Store(ctx context.Context, fingerprint, text string, result *redact.Result) error {
	key := rc.key(fingerprint, text)

	matches := make([]redact.MatchSpan, len(result.Matches))
	for i, m := range result.Matches {
		m.OriginalText = ""
		matches[i] = m
	}

	data, err := json.Marshal(&CachedResult{
		RedactedText: result.RedactedText,
		Matches:      matches,
		Counts:       result.Counts,
		CachedAt:     time.Now(),
		TTL:          int64(rc.config.DefaultTTL.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	if err := rc.client.Set(ctx, key, data, rc.config.DefaultTTL).Err(); err != nil {
		rc.logger.Warn("Failed to cache result", zap.Error(err))
		return fmt.Errorf("failed to cache result: %w", err)
	}
	return nil
}

// GetStats returns cache performance statistics
func (rc *ResultCache) GetStats(ctx context.Context) (*CacheStats, error) {
	stats := rc.localStats()

	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return stats, fmt.Errorf("failed to get Redis info: %w", err)
	}
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}
	return stats, nil
}

func (rc *ResultCache) localStats() *CacheStats {
	stats := &CacheStats{Hits: rc.hits.Load(), Misses: rc.misses.Load()}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear removes all cached results
func (rc *ResultCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.config.KeyPrefix+":res:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

func (rc *ResultCache) key(fingerprint, text string) string {
	return resultKey(rc.config.KeyPrefix, fingerprint, text)
}

// resultKey is prefix:res:<fingerprint>:<first 32 hex chars of sha256(text)>.
func resultKey(prefix, fingerprint, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:res:%s:%s", prefix, fingerprint, hex.EncodeToString(sum[:])[:32])
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "://")
	userinfo := url[:at]
	start := 0
	if scheme >= 0 {
		start = scheme + 3
	}
	colon := strings.Index(userinfo[start:], ":")
	if colon < 0 {
		return url
	}
	return userinfo[:start+colon+1] + "***" + url[at:]
}
