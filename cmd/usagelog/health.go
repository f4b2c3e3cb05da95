package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/usagelog/internal/config"
	"github.com/loykin/usagelog/pkg/client"
)

func createHealthCommand(globalFlags *GlobalFlags) *cobra.Command {
	healthFlags := &HealthFlags{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that a collector is reachable",
		Long: `Call the collector's healthz endpoint. Without --collector the base URL is
derived from [client].sink by dropping its trailing /logs.

Examples:
  usagelog health --collector=http://localhost:8080/api
  usagelog health --collector=https://collector:8443/api --ca-cert=tls/tls_ca.crt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			healthFlags.ConfigPath = globalFlags.ConfigPath
			return runHealth(cmd.Context(), *healthFlags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&healthFlags.Collector, "collector", "", "collector base URL, e.g. http://localhost:8080/api")
	cmd.Flags().StringVar(&healthFlags.CACert, "ca-cert", "", "CA certificate to trust for https collectors")
	cmd.Flags().BoolVar(&healthFlags.Insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().DurationVar(&healthFlags.Timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

func runHealth(ctx context.Context, flags HealthFlags, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	base := flags.Collector
	if base == "" {
		cfg, err := config.Load(flags.ConfigPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		base = strings.TrimSuffix(strings.TrimRight(cfg.Client.Sink, "/"), "/logs")
	}
	lower := strings.ToLower(base)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("%s is not an http(s) collector", base)
	}

	cc := client.Config{BaseURL: base, Timeout: flags.Timeout, Insecure: flags.Insecure}
	if flags.CACert != "" {
		cc.TLS = &client.TLSClientConfig{CACert: flags.CACert}
	}
	c, err := client.New(cc)
	if err != nil {
		return err
	}
	if err := c.Health(ctx); err != nil {
		return fmt.Errorf("collector %s is unhealthy: %w", c.BaseURL(), err)
	}
	_, _ = fmt.Fprintf(out, "collector %s is healthy\n", c.BaseURL())
	return nil
}
