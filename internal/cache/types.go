package cache

import (
	"time"

	"github.com/raaihank/piiredact/internal/redact"
)

// CachedResult is a stored redaction outcome. It never carries original text.
type CachedResult struct {
	RedactedText string             `json:"redacted_text"`
	Matches      []redact.MatchSpan `json:"matches"`
	Counts       map[string]int     `json:"counts"`
	CachedAt     time.Time          `json:"cached_at"`
	TTL          int64              `json:"ttl"`
}

// Result rebuilds a redaction result from the cached entry.
func (c *CachedResult) Result() *redact.Result {
	matches := c.Matches
	if matches == nil {
		matches = []redact.MatchSpan{}
	}
	counts := c.Counts
	if counts == nil {
		counts = map[string]int{}
	}
	return &redact.Result{RedactedText: c.RedactedText, Matches: matches, Counts: counts}
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// Config contains cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}
