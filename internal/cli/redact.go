package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/fsutil"
	"github.com/raaihank/piiredact/internal/redact"
)

type redactOptions struct {
	output string
	report string
}

// matchReport is the document written by --report.
type matchReport struct {
	RuleFingerprint string             `json:"rule_fingerprint"`
	Strategy        string             `json:"strategy"`
	InputBytes      int                `json:"input_bytes"`
	Total           int                `json:"total"`
	Counts          map[string]int     `json:"counts"`
	Matches         []redact.MatchSpan `json:"matches"`
	Warnings        []string           `json:"warnings,omitempty"`
}

func (a *app) runRedact(cmd *cobra.Command, args []string, opts redactOptions) error {
	var text string
	switch {
	case len(args) == 1:
		text = args[0]
	case a.isTerminal(cmd.InOrStdin()):
		_ = cmd.Help()
		return errUsage
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return &redact.InputError{Reason: "failed to read stdin", Err: err}
		}
		text = string(data)
	}

	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	reg, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}
	redactor, cleanup, err := newRedactor(cfg, reg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := redactor.Redact(cmd.Context(), text)
	if err != nil {
		log.Error("Redaction failed", zap.Error(err))
		return err
	}

	if opts.output != "" {
		err = fsutil.WriteAtomic(opts.output, func(w io.Writer) error {
			_, err := io.WriteString(w, result.RedactedText)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else if _, err := io.WriteString(cmd.OutOrStdout(), result.RedactedText); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if opts.report != "" {
		report := matchReport{
			RuleFingerprint: result.Fingerprint,
			Strategy:        string(redactor.Config().Strategy),
			InputBytes:      len(text),
			Total:           result.Total(),
			Counts:          result.Counts,
			Matches:         result.Matches,
			Warnings:        result.WarningMessages(),
		}
		err := fsutil.WriteAtomic(opts.report, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		})
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	log.LogCounts(result.Counts)
	if len(result.Warnings) > 0 {
		log.Warn("Some rules were skipped",
			zap.Int("skipped", len(result.Warnings)),
			zap.Strings("rules", skippedRules(result)))
	}
	return nil
}

func skippedRules(result *redact.Result) []string {
	names := make([]string, len(result.Warnings))
	for i, w := range result.Warnings {
		names[i] = w.Rule
	}
	return names
}
