package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/audit"
	"github.com/raaihank/piiredact/internal/batch"
	"github.com/raaihank/piiredact/internal/redact"
)

func (a *app) batchCommand() *cobra.Command {
	var (
		output  string
		workers int
		idCol   string
		textCol string
	)

	cmd := &cobra.Command{
		Use:   "batch <input>",
		Short: "Redact every document of a CSV, Parquet or JSON lines file",
		Long: `Redact a file of documents in parallel and write one outcome per document,
in input order. The format of both files is taken from their extension:
.csv, .parquet, anything else is read as JSON lines.

Documents that are not valid UTF-8 are reported per document and do not stop
the batch. A summary is printed to stdout as JSON.

	Examples:
	  piiredact batch tickets.csv -o tickets.redacted.csv
	  piiredact batch dump.parquet -o dump.redacted.jsonl --workers 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openAuditStore(ctx, cfg, log)
			if err != nil {
				return err
			}

			bc := &batch.Config{Workers: cfg.Batch.Workers, IDColumn: cfg.Batch.IDColumn, TextColumn: cfg.Batch.TextColumn}
			if cmd.Flags().Changed("workers") {
				bc.Workers = workers
			}
			if idCol != "" {
				bc.IDColumn = idCol
			}
			if textCol != "" {
				bc.TextColumn = textCol
			}

			runner := batch.NewRunner(redactor, bc, log.WithComponent("batch").Logger)
			if store != nil {
				defer store.Close()
				runID := uuid.NewString()
				strategy := string(redactor.Config().Strategy)
				runner.OnDocument(func(ctx context.Context, doc batch.Document, result *redact.Result, elapsed time.Duration) {
					rec := audit.NewRecord(runID+"/"+doc.ID, "batch", doc.Text, result, strategy, result.Fingerprint, elapsed)
					if err := store.Record(ctx, rec); err != nil {
						log.Warn("Failed to write audit record", zap.String("document_id", doc.ID), zap.Error(err))
					}
				})
			}

			summary, err := runner.ProcessFile(ctx, args[0], output)
			if err != nil {
				return err
			}

			log.LogCounts(summary.Counts)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return fmt.Errorf("failed to write summary: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.csv, .parquet or .jsonl)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "number of parallel workers")
	cmd.Flags().StringVar(&idCol, "id-column", "", "CSV/JSON field holding the document ID")
	cmd.Flags().StringVar(&textCol, "text-column", "", "CSV/JSON field holding the document text")
	return cmd
}
