// Package batch redacts many documents concurrently and returns the
// outcomes in input order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/piiredact/internal/redact"
)

// DocumentHook is called from worker goroutines after each successful
// redaction, so implementations must be safe for concurrent use.
type DocumentHook func(ctx context.Context, doc Document, result *redact.Result, elapsed time.Duration)

// Runner fans documents out to a fixed number of workers
type Runner struct {
	redactor *redact.Redactor
	config   *Config
	logger   *zap.Logger
	hook     DocumentHook
}

// NewRunner creates a batch runner
func NewRunner(redactor *redact.Redactor, config *Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := *config
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{redactor: redactor, config: &cfg, logger: logger}
}

// OnDocument registers a hook run after each redacted document
func (r *Runner) OnDocument(hook DocumentHook) {
	r.hook = hook
}

// Run redacts docs. A document rejected with an InputError is recorded in
// its Outcome and the batch continues; any other error, including context
// cancellation, stops the batch.
func (r *Runner) Run(ctx context.Context, docs []Document) ([]Outcome, *Summary, error) {
	start := time.Now()
	outcomes := make([]Outcome, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for i := range docs {
		doc := docs[i]
		g.Go(func() error {
			docStart := time.Now()
			result, err := r.redactor.Redact(ctx, doc.Text)
			if err != nil {
				var inputErr *redact.InputError
				if errors.As(err, &inputErr) {
					r.logger.Warn("Document rejected", zap.String("id", doc.ID), zap.Error(err))
					outcomes[i] = Outcome{ID: doc.ID, Error: err.Error()}
					return nil
				}
				return fmt.Errorf("document %s: %w", doc.ID, err)
			}

			outcomes[i] = Outcome{
				ID:           doc.ID,
				RedactedText: result.RedactedText,
				Matches:      result.Matches,
				Counts:       result.Counts,
				Warnings:     result.WarningMessages(),
			}
			if r.hook != nil {
				r.hook(ctx, doc, result, time.Since(docStart))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	summary := Summarize(outcomes)
	summary.Duration = time.Since(start)

	r.logger.Info("Batch completed",
		zap.Int("documents", summary.Documents),
		zap.Int("redacted", summary.Redacted),
		zap.Int("failed", summary.Failed),
		zap.Int("total_matches", summary.TotalMatches),
		zap.Int("workers", r.config.Workers),
		zap.Duration("duration", summary.Duration))

	return outcomes, summary, nil
}

// ProcessFile reads input, redacts every document and writes output. When
// output is empty nothing is written.
func (r *Runner) ProcessFile(ctx context.Context, input, output string) (*Summary, error) {
	r.logger.Info("Starting batch",
		zap.String("input", input),
		zap.String("format", string(DetectFileFormat(input))),
		zap.Int("workers", r.config.Workers))

	docs, err := ReadDocuments(input, r.config)
	if err != nil {
		return nil, err
	}

	outcomes, summary, err := r.Run(ctx, docs)
	if err != nil {
		return nil, err
	}

	if output != "" {
		if err := WriteOutcomes(output, outcomes); err != nil {
			return summary, fmt.Errorf("failed to write batch output: %w", err)
		}
	}
	return summary, nil
}

// Summarize totals outcomes
func Summarize(outcomes []Outcome) *Summary {
	summary := &Summary{Documents: len(outcomes), Counts: map[string]int{}}
	for _, o := range outcomes {
		if o.Error != "" {
			summary.Failed++
			summary.Errors = append(summary.Errors, DocumentError{ID: o.ID, Error: o.Error})
			continue
		}
		if len(o.Matches) > 0 {
			summary.Redacted++
		}
		summary.TotalMatches += len(o.Matches)
		summary.Warnings += len(o.Warnings)
		for category, n := range o.Counts {
			summary.Counts[category] += n
		}
	}
	return summary
}
