package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/usagelog"
	"github.com/loykin/usagelog/internal/config"
	"github.com/loykin/usagelog/internal/logger"
	"github.com/loykin/usagelog/internal/transport/factory"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the collector",
		Long: `Run the collector HTTP service. Received batches are written to the
[server].sink DSN.

Examples:
  usagelog serve --config=usagelog.toml
  usagelog serve --listen=:8080 --sink=sqlite:///var/lib/usagelog.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *serveFlags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address (overrides [server].listen)")
	cmd.Flags().StringVar(&serveFlags.Sink, "sink", "", "storage DSN (overrides [server].sink)")
	return cmd
}

// runServe blocks until ctx is done, then shuts the collector down.
func runServe(ctx context.Context, flags ServeFlags, out io.Writer) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.Listen != "" {
		cfg.Server.Listen = flags.Listen
	}
	if flags.Sink != "" {
		cfg.Server.Sink = flags.Sink
	}

	log, logCloser, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(log)

	sink, err := factory.NewSinkFromDSN(cfg.Server.Sink, factory.Options{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to open sink %s: %w", cfg.Server.Sink, err)
	}
	defer func() {
		if c, ok := sink.(io.Closer); ok {
			_ = c.Close()
		}
	}()

	opts := []usagelog.CollectorOption{
		usagelog.WithCollectorLogger(log),
	}
	if cfg.Server.JWTSecret != "" {
		authOpt, err := usagelog.WithCollectorAuth(cfg.Server.JWTSecret)
		if err != nil {
			return err
		}
		opts = append(opts, authOpt)
	}
	if cfg.Server.TLS.Enabled {
		tlsOpt, err := usagelog.WithCollectorTLS(cfg.Server.TLS)
		if err != nil {
			return err
		}
		opts = append(opts, tlsOpt)
	}
	if cfg.Server.StrictTypes {
		opts = append(opts, usagelog.WithCollectorStrictTypes())
	}
	if cfg.Metrics.Enabled {
		if err := usagelog.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		go func() {
			if err := usagelog.ServeMetrics(cfg.Metrics.Listen); err != nil {
				log.Error("metrics server error", "error", err)
			}
		}()
	}

	server := usagelog.NewCollectorServer(cfg.Server.Listen, cfg.Server.BasePath, sink, opts...)
	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	_, _ = fmt.Fprintf(out, "Starting usagelog collector on %s://%s%s (sink %s)\n", scheme, cfg.Server.Listen, cfg.Server.BasePath, cfg.Server.Sink)
	if ca := cfg.Server.TLS.CACertPath(); cfg.Server.TLS.Enabled && ca != "" {
		_, _ = fmt.Fprintf(out, "Clients can trust %s\n", ca)
	}

	<-ctx.Done()

	_, _ = fmt.Fprintln(out, "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
