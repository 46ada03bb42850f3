package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Redaction RedactionConfig `yaml:"redaction" mapstructure:"redaction"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	NER       NERConfig       `yaml:"ner" mapstructure:"ner"`
}

// RedactionConfig controls rule loading and replacement
type RedactionConfig struct {
	Patterns         string        `yaml:"patterns" mapstructure:"patterns"`
	UseDefaults      bool          `yaml:"use_defaults" mapstructure:"use_defaults"`
	Strategy         string        `yaml:"strategy" mapstructure:"strategy"` // placeholder, hash or fake
	MatchTimeout     time.Duration `yaml:"match_timeout" mapstructure:"match_timeout"`
	IncludeOriginals bool          `yaml:"include_originals" mapstructure:"include_originals"`
	LineInfo         bool          `yaml:"line_info" mapstructure:"line_info"`
	FakeSeed         uint64        `yaml:"fake_seed" mapstructure:"fake_seed"`
	WatchPatterns    bool          `yaml:"watch_patterns" mapstructure:"watch_patterns"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string          `yaml:"host" mapstructure:"host"`
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64           `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxBatchSize int             `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig controls the per-client token bucket
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig contains Redis result cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// AuditConfig contains audit store configuration
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Driver  string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// BatchConfig controls batch redaction
type BatchConfig struct {
	Workers    int    `yaml:"workers" mapstructure:"workers"`
	IDColumn   string `yaml:"id_column" mapstructure:"id_column"`
	TextColumn string `yaml:"text_column" mapstructure:"text_column"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Username        string        `yaml:"username" mapstructure:"username"`
	Password        string        `yaml:"password" mapstructure:"password"`
}

// NERConfig contains entity recognizer configuration
type NERConfig struct {
	Enabled   bool              `yaml:"enabled" mapstructure:"enabled"`
	ModelPath string            `yaml:"model_path" mapstructure:"model_path"`
	VocabPath string            `yaml:"vocab_path" mapstructure:"vocab_path"`
	Labels    []string          `yaml:"labels" mapstructure:"labels"`
	Mapping   map[string]string `yaml:"mapping" mapstructure:"mapping"`
	MaxLength int               `yaml:"max_length" mapstructure:"max_length"`
	Lowercase bool              `yaml:"lowercase" mapstructure:"lowercase"`
	MinScore  float64           `yaml:"min_score" mapstructure:"min_score"`
	Priority  int               `yaml:"priority" mapstructure:"priority"`
	Timeout   time.Duration     `yaml:"timeout" mapstructure:"timeout"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Redaction: RedactionConfig{
			UseDefaults:  true,
			Strategy:     "placeholder",
			MatchTimeout: 250 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
			MaxBatchSize: 100,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 20,
				Burst:             40,
			},
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     time.Hour,
			KeyPrefix:      "piiredact",
		},
		Audit: AuditConfig{
			Enabled: false,
			Driver:  "sqlite",
			DSN:     "piiredact-audit.db",
		},
		Batch: BatchConfig{
			Workers:    4,
			IDColumn:   "id",
			TextColumn: "text",
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  512,
			AllowedOrigins:  []string{"*"},
		},
		NER: NERConfig{
			Enabled:   false,
			ModelPath: "models/ner.onnx",
			VocabPath: "models/vocab.txt",
			MaxLength: 128,
			MinScore:  0.6,
			Priority:  30,
			Timeout:   2 * time.Second,
		},
	}
	cfg.Logging.File.Path = "logs/piiredact.log"
	return cfg
}
