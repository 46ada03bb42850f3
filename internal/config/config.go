// Package config loads piiredact settings from a YAML file, PIIREDACT_*
// environment variables and CLI flag overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. PIIREDACT_SERVER_PORT.
const EnvPrefix = "PIIREDACT"

// LoadOptions controls configuration loading.
type LoadOptions struct {
	// ConfigPath names a config file. When empty, piiredact.yaml is searched
	// for in the working directory, ./configs and ~/.piiredact.
	ConfigPath string
	// FlagOverrides are highest-priority overrides from CLI flags (dot-notated keys).
	FlagOverrides map[string]any
}

// Load returns the effective configuration after applying precedence:
// defaults < config file < env (PIIREDACT_*) < flags.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if opts.ConfigPath != "" {
		v.SetConfigFile(opts.ConfigPath)
	} else {
		v.SetConfigName("piiredact")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.piiredact/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || opts.ConfigPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, value := range opts.FlagOverrides {
		v.Set(key, value)
	}

	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults seeds viper with built-in defaults so every key can be
// overridden from the environment.
func setDefaults(v *viper.Viper) {
	def := GetDefaults()

	v.SetDefault("redaction.patterns", def.Redaction.Patterns)
	v.SetDefault("redaction.use_defaults", def.Redaction.UseDefaults)
	v.SetDefault("redaction.strategy", def.Redaction.Strategy)
	v.SetDefault("redaction.match_timeout", def.Redaction.MatchTimeout)
	v.SetDefault("redaction.include_originals", def.Redaction.IncludeOriginals)
	v.SetDefault("redaction.line_info", def.Redaction.LineInfo)
	v.SetDefault("redaction.fake_seed", def.Redaction.FakeSeed)
	v.SetDefault("redaction.watch_patterns", def.Redaction.WatchPatterns)

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.file.enabled", def.Logging.File.Enabled)
	v.SetDefault("logging.file.path", def.Logging.File.Path)

	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.read_timeout", def.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", def.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", def.Server.IdleTimeout)
	v.SetDefault("server.max_body_bytes", def.Server.MaxBodyBytes)
	v.SetDefault("server.max_batch_size", def.Server.MaxBatchSize)
	v.SetDefault("server.rate_limit.enabled", def.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.requests_per_second", def.Server.RateLimit.RequestsPerSecond)
	v.SetDefault("server.rate_limit.burst", def.Server.RateLimit.Burst)

	v.SetDefault("cache.enabled", def.Cache.Enabled)
	v.SetDefault("cache.redis_url", def.Cache.RedisURL)
	v.SetDefault("cache.max_connections", def.Cache.MaxConnections)
	v.SetDefault("cache.min_idle_conns", def.Cache.MinIdleConns)
	v.SetDefault("cache.default_ttl", def.Cache.DefaultTTL)
	v.SetDefault("cache.key_prefix", def.Cache.KeyPrefix)

	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.driver", def.Audit.Driver)
	v.SetDefault("audit.dsn", def.Audit.DSN)

	v.SetDefault("batch.workers", def.Batch.Workers)
	v.SetDefault("batch.id_column", def.Batch.IDColumn)
	v.SetDefault("batch.text_column", def.Batch.TextColumn)

	v.SetDefault("websocket.enabled", def.WebSocket.Enabled)
	v.SetDefault("websocket.path", def.WebSocket.Path)
	v.SetDefault("websocket.max_connections", def.WebSocket.MaxConnections)
	v.SetDefault("websocket.read_buffer_size", def.WebSocket.ReadBufferSize)
	v.SetDefault("websocket.write_buffer_size", def.WebSocket.WriteBufferSize)
	v.SetDefault("websocket.ping_interval", def.WebSocket.PingInterval)
	v.SetDefault("websocket.pong_timeout", def.WebSocket.PongTimeout)
	v.SetDefault("websocket.write_timeout", def.WebSocket.WriteTimeout)
	v.SetDefault("websocket.max_message_size", def.WebSocket.MaxMessageSize)
	v.SetDefault("websocket.allowed_origins", def.WebSocket.AllowedOrigins)
	v.SetDefault("websocket.username", def.WebSocket.Username)
	v.SetDefault("websocket.password", def.WebSocket.Password)

	v.SetDefault("ner.enabled", def.NER.Enabled)
	v.SetDefault("ner.model_path", def.NER.ModelPath)
	v.SetDefault("ner.vocab_path", def.NER.VocabPath)
	v.SetDefault("ner.max_length", def.NER.MaxLength)
	v.SetDefault("ner.lowercase", def.NER.Lowercase)
	v.SetDefault("ner.min_score", def.NER.MinScore)
	v.SetDefault("ner.priority", def.NER.Priority)
	v.SetDefault("ner.timeout", def.NER.Timeout)
}

// Validate validates the loaded configuration
func Validate(config *Config) error {
	switch config.Redaction.Strategy {
	case "placeholder", "hash", "fake":
	default:
		return fmt.Errorf("invalid redaction strategy: %s (must be placeholder, hash, or fake)", config.Redaction.Strategy)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Logging.File.Enabled && config.Logging.File.Path == "" {
		return fmt.Errorf("logging.file.path is required when file logging is enabled")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.RateLimit.Enabled && (config.Server.RateLimit.RequestsPerSecond <= 0 || config.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}

	if config.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d", config.Batch.Workers)
	}

	if config.Audit.Enabled {
		if config.Audit.Driver != "sqlite" && config.Audit.Driver != "postgres" {
			return fmt.Errorf("invalid audit driver: %s (must be sqlite or postgres)", config.Audit.Driver)
		}
		if config.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required when audit is enabled")
		}
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache is enabled")
	}

	if config.NER.Enabled && (config.NER.ModelPath == "" || config.NER.VocabPath == "") {
		return fmt.Errorf("ner.model_path and ner.vocab_path are required when ner is enabled")
	}

	return nil
}
