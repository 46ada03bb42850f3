package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/piiredact/internal/server"
)

func (a *app) serveCommand() *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the redaction HTTP service",
		Long: `Serve POST /v1/redact and POST /v1/redact/batch over HTTP and stream
redaction events to WebSocket clients.

The Redis result cache and the audit store are enabled in the configuration
file. With --watch the pattern file is reloaded when it changes; an invalid
file is logged and the previous rules stay active.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("watch") {
				cfg.Redaction.WatchPatterns = watch
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

			opts := server.Options{
				Config:   cfg,
				Redactor: redactor,
				Logger:   log,
				Version:  a.version,
			}

			resultCache, err := openResultCache(cfg, log)
			if err != nil {
				return err
			}
			if resultCache != nil {
				defer resultCache.Close()
				opts.Cache = resultCache
			}

			store, err := openAuditStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				opts.Audit = store
			}

			srv, err := server.New(opts)
			if err != nil {
				return err
			}

			log.Info("Starting piiredact",
				zap.String("version", a.version),
				zap.String("strategy", cfg.Redaction.Strategy))

			if err := srv.Run(ctx); err != nil {
				log.Error("Server error", zap.Error(err))
				return err
			}
			log.Info("Server shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen address (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the pattern file when it changes")
	return cmd
}
