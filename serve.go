package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
	"github.com/ahmad-alkadri/depot-upload/internal/logging"
	"github.com/ahmad-alkadri/depot-upload/internal/server"
	"github.com/ahmad-alkadri/depot-upload/internal/storage"
)

type serveFlags struct {
	addr      string
	backend   string
	bucket    string
	logLevel  string
	logFormat string
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (SERVER_ADDR)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "storage backend: minio, s3, gcs or memory (STORAGE_BACKEND)")
	cmd.Flags().StringVar(&flags.bucket, "bucket", "", "bucket name (BUCKET_NAME)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "text or json (LOG_FORMAT)")
	return cmd
}

// apply overrides cfg with the flags that were set explicitly.
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("addr") {
		cfg.ServerAddr = f.addr
	}
	if set("backend") {
		cfg.StorageBackend = f.backend
	}
	if set("bucket") {
		cfg.Bucket = f.bucket
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if set("log-format") {
		cfg.LogFormat = f.logFormat
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	out, closeLog, err := logging.OpenOutput(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, out)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting depot", "version", version, "backend", cfg.StorageBackend, "bucket", cfg.Bucket)

	store, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	srv, err := server.New(cfg, storage.NewTracedStore(store, otel.GetTracerProvider()), logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
