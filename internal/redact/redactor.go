package redact

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/logger"
	"github.com/raaihank/piiredact/internal/rules"
)

// EntitySource supplies candidate spans from outside the rule set.
type EntitySource interface {
	Entities(ctx context.Context, text string) ([]Entity, error)
}

// Config holds per-Redactor settings.
type Config struct {
	Strategy         Strategy
	IncludeOriginals bool
	LineInfo         bool
	FakeSeed         uint64
}

// Redactor carries the active registry, options and log sink. It is safe for
// concurrent use; Swap replaces the registry without blocking callers.
type Redactor struct {
	registry atomic.Pointer[rules.Registry]
	config   Config
	entities EntitySource
	logger   *logger.Logger
}

// NewRedactor creates a Redactor. entities may be nil.
func NewRedactor(reg *rules.Registry, cfg Config, entities EntitySource, log *logger.Logger) (*Redactor, error) {
	if reg == nil {
		return nil, fmt.Errorf("redactor requires a rule registry")
	}
	strategy, err := ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	cfg.Strategy = strategy
	if log == nil {
		log = logger.NewNop()
	}

	r := &Redactor{
		config:   cfg,
		entities: entities,
		logger:   log.WithComponent("redactor"),
	}
	r.registry.Store(reg)
	return r, nil
}

// Registry returns the active rule set.
func (r *Redactor) Registry() *rules.Registry {
	return r.registry.Load()
}

// Swap installs a new rule set and returns the previous one.
func (r *Redactor) Swap(reg *rules.Registry) *rules.Registry {
	prev := r.registry.Swap(reg)
	r.logger.LogRuleSet(reg.Names(), reg.Fingerprint())
	return prev
}

// Config returns the Redactor's settings.
func (r *Redactor) Config() Config {
	return r.config
}

// Redact runs the entity source (if any) and the engine on text. Recognizer
// failures are logged and the run continues with pattern rules only.
func (r *Redactor) Redact(ctx context.Context, text string) (*Result, error) {
	return r.redact(ctx, text, r.config.IncludeOriginals)
}

// RedactOriginals is Redact with OriginalText filled regardless of config.
func (r *Redactor) RedactOriginals(ctx context.Context, text string) (*Result, error) {
	return r.redact(ctx, text, true)
}

func (r *Redactor) redact(ctx context.Context, text string, originals bool) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	reg := r.registry.Load()

	opts := Options{
		Strategy:         r.config.Strategy,
		IncludeOriginals: originals,
		FakeSeed:         r.config.FakeSeed,
	}
	if r.entities != nil {
		entities, err := r.entities.Entities(ctx, text)
		if err != nil {
			r.logger.Warn("Entity recognition failed, continuing with patterns only", zap.Error(err))
		} else {
			opts.Entities = entities
		}
	}

	result, err := RedactWithOptions(text, reg, opts)
	if err != nil {
		return nil, err
	}
	result.Fingerprint = reg.Fingerprint()
	if r.config.LineInfo {
		AddLineInfo(text, result.Matches)
	}

	for _, w := range result.Warnings {
		r.logger.Warn("Rule skipped for this input",
			zap.String("rule", w.Rule),
			zap.Duration("timeout", w.Timeout),
		)
	}
	r.logger.Debug("Redacted text",
		zap.Int("bytes", len(text)),
		zap.Int("matches", len(result.Matches)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
