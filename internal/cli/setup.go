package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/audit"
	"github.com/raaihank/piiredact/internal/cache"
	"github.com/raaihank/piiredact/internal/config"
	"github.com/raaihank/piiredact/internal/logger"
	"github.com/raaihank/piiredact/internal/ner"
	"github.com/raaihank/piiredact/internal/redact"
	"github.com/raaihank/piiredact/internal/rules"
)

// loadConfig reads the configuration and applies the flags the user set.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	overrides := map[string]any{}
	flags := cmd.Flags()

	if flags.Changed("patterns") {
		overrides["redaction.patterns"] = a.flags.patterns
	}
	if flags.Changed("no-defaults") {
		overrides["redaction.use_defaults"] = !a.flags.noDefaults
	}
	if flags.Changed("strategy") {
		overrides["redaction.strategy"] = a.flags.strategy
	}
	if flags.Changed("match-timeout") {
		overrides["redaction.match_timeout"] = a.flags.matchTimeout
	}
	if flags.Changed("log-file") {
		overrides["logging.file.enabled"] = a.flags.logFile != ""
		overrides["logging.file.path"] = a.flags.logFile
	}
	if flags.Changed("log-level") {
		overrides["logging.level"] = a.flags.logLevel
	}
	if flags.Changed("log-format") {
		overrides["logging.format"] = a.flags.logFormat
	}

	cfg, err := config.Load(config.LoadOptions{ConfigPath: a.flags.configPath, FlagOverrides: overrides})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	lc := logger.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cmd.ErrOrStderr(),
	}
	if cfg.Logging.File.Enabled {
		lc.File = &logger.FileConfig{Enabled: true, Path: cfg.Logging.File.Path}
	}
	log, err := logger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// buildRegistry loads and compiles the effective rule set.
func buildRegistry(cfg *config.Config, log *logger.Logger) (*rules.Registry, error) {
	reg, err := rules.Build(cfg.Redaction.Patterns, cfg.Redaction.UseDefaults, rules.Options{MatchTimeout: cfg.Redaction.MatchTimeout})
	if err != nil {
		log.Error("Failed to load redaction rules",
			zap.String("patterns", cfg.Redaction.Patterns),
			zap.Error(err))
		return nil, err
	}
	log.LogRuleSet(reg.Names(), reg.Fingerprint())
	return reg, nil
}

// newRedactor builds the redactor and, when enabled, its entity recognizer.
// The returned cleanup releases the recognizer.
func newRedactor(cfg *config.Config, reg *rules.Registry, log *logger.Logger) (*redact.Redactor, func(), error) {
	cleanup := func() {}

	var entities redact.EntitySource
	if cfg.NER.Enabled {
		source, err := newEntitySource(cfg.NER, log)
		if err != nil {
			return nil, cleanup, err
		}
		entities = source
		cleanup = func() {
			if err := source.Close(); err != nil {
				log.Warn("Failed to close entity recognizer", zap.Error(err))
			}
		}
	}

	redactor, err := redact.NewRedactor(reg, redact.Config{
		Strategy:         redact.Strategy(cfg.Redaction.Strategy),
		IncludeOriginals: cfg.Redaction.IncludeOriginals,
		LineInfo:         cfg.Redaction.LineInfo,
		FakeSeed:         cfg.Redaction.FakeSeed,
	}, entities, log)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return redactor, cleanup, nil
}

func newEntitySource(cfg config.NERConfig, log *logger.Logger) (*ner.Source, error) {
	nc := ner.Config{
		Enabled:   cfg.Enabled,
		ModelPath: cfg.ModelPath,
		VocabPath: cfg.VocabPath,
		Labels:    cfg.Labels,
		Mapping:   cfg.Mapping,
		MaxLength: cfg.MaxLength,
		Lowercase: cfg.Lowercase,
		MinScore:  float32(cfg.MinScore),
		Priority:  cfg.Priority,
		Timeout:   cfg.Timeout,
	}
	recognizer, err := ner.NewRecognizer(nc, log.WithComponent("ner").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize entity recognizer: %w", err)
	}
	log.Info("Entity recognizer enabled",
		zap.String("model", cfg.ModelPath),
		zap.Int("priority", cfg.Priority))
	return ner.NewSource(recognizer, nc), nil
}

func openAuditStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*audit.Store, error) {
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	return audit.NewStore(ctx, &audit.Config{
		Driver: cfg.Audit.Driver,
		DSN:    cfg.Audit.DSN,
	}, log.WithComponent("audit").Logger)
}

func openResultCache(cfg *config.Config, log *logger.Logger) (*cache.ResultCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	return cache.NewResultCache(&cache.Config{
		RedisURL:       cfg.Cache.RedisURL,
		MaxConnections: cfg.Cache.MaxConnections,
		MinIdleConns:   cfg.Cache.MinIdleConns,
		DefaultTTL:     cfg.Cache.DefaultTTL,
		KeyPrefix:      cfg.Cache.KeyPrefix,
	}, log.WithComponent("cache").Logger)
}
